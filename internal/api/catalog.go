package api

import (
	"net/http"
	"strconv"
	"strings"

	"storefront/internal/apperr"
	"storefront/internal/catalog"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func (h *Handler) listProducts(c *gin.Context) {
	q, err := parseQuery(c)
	if err != nil {
		h.respondError(c, err, apperr.KindValidation)
		return
	}

	products, err := h.deps.Catalog.ListProducts(c.Request.Context())
	if err != nil {
		h.respondError(c, err, apperr.KindInternal)
		return
	}

	matched := catalog.Filter(products, q)
	c.JSON(http.StatusOK, gin.H{
		"products":       matched,
		"total":          len(matched),
		"active_filters": q.ActiveFilterCount(),
	})
}

func (h *Handler) getProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.respondError(c, badRequest("id", "Invalid product ID"), apperr.KindValidation)
		return
	}

	product, err := h.deps.Catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, apperr.KindInternal)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"product":  product,
		"variants": product.Variants,
		"on_sale":  product.OnSale(),
	})
}

func parseQuery(c *gin.Context) (catalog.Query, error) {
	q := catalog.Query{
		Search:     strings.TrimSpace(c.Query("search")),
		Categories: listParam(c, "category"),
		Brands:     listParam(c, "brand"),
		Ratings:    listParam(c, "rating"),
		InStock:    c.Query("in_stock") == "true",
		OnSale:     c.Query("on_sale") == "true",
		Sort:       c.Query("sort"),
	}

	var err error
	if q.MinPrice, err = priceParam(c, "min_price"); err != nil {
		return q, err
	}
	if q.MaxPrice, err = priceParam(c, "max_price"); err != nil {
		return q, err
	}
	if err := q.Validate(); err != nil {
		return q, apperr.Validation(map[string]string{"query": err.Error()}, err)
	}
	return q, nil
}

// listParam accepts both repeated and comma-separated values.
func listParam(c *gin.Context, key string) []string {
	var out []string
	for _, raw := range c.QueryArray(key) {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func priceParam(c *gin.Context, key string) (decimal.NullDecimal, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return decimal.NullDecimal{}, badRequest(key, "Enter a valid price")
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}
