package api

import (
	"net/http"
	"strconv"

	"storefront/internal/apperr"
	"storefront/internal/promo"
	"storefront/internal/service"

	"github.com/gin-gonic/gin"
)

type addItemRequest struct {
	ProductID int64             `json:"product_id" binding:"required"`
	Quantity  int               `json:"quantity"`
	Variants  map[string]string `json:"variants"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}

type promoRequest struct {
	Code string `json:"code"`
}

func (h *Handler) getCart(c *gin.Context) {
	view, err := h.deps.Carts.View(c.Request.Context(), sessionID(c))
	if err != nil {
		h.respondError(c, err, apperr.KindInternal)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) getCartCount(c *gin.Context) {
	n, err := h.deps.Carts.Count(c.Request.Context(), sessionID(c))
	if err != nil {
		h.respondError(c, err, apperr.KindInternal)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func (h *Handler) addCartItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, badRequest("product_id", "Select a product"), apperr.KindValidation)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	item, err := h.deps.Carts.AddItem(c.Request.Context(), sessionID(c), req.ProductID, req.Quantity, req.Variants)
	if err != nil {
		h.respondError(c, err, apperr.KindInternal)
		return
	}
	h.respondCart(c, http.StatusCreated, gin.H{"item": item})
}

func (h *Handler) updateCartItem(c *gin.Context) {
	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, badRequest("quantity", "Quantity is required"), apperr.KindValidation)
		return
	}

	if err := h.deps.Carts.UpdateQuantity(c.Request.Context(), sessionID(c), c.Param("id"), req.Quantity); err != nil {
		h.respondError(c, err, apperr.KindInternal)
		return
	}
	h.respondCart(c, http.StatusOK, nil)
}

func (h *Handler) removeCartItem(c *gin.Context) {
	if err := h.deps.Carts.RemoveItem(c.Request.Context(), sessionID(c), c.Param("id")); err != nil {
		h.respondError(c, err, apperr.KindInternal)
		return
	}
	h.respondCart(c, http.StatusOK, nil)
}

func (h *Handler) saveItemForLater(c *gin.Context) {
	item, err := h.deps.Carts.SaveForLater(c.Request.Context(), sessionID(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err, apperr.KindInternal)
		return
	}
	h.respondCart(c, http.StatusOK, gin.H{"saved": item})
}

func (h *Handler) saveAllForLater(c *gin.Context) {
	items, err := h.deps.Carts.SaveAllForLater(c.Request.Context(), sessionID(c))
	if err != nil {
		h.respondError(c, err, apperr.KindInternal)
		return
	}
	h.respondCart(c, http.StatusOK, gin.H{"saved": items})
}

func (h *Handler) clearCart(c *gin.Context) {
	if err := h.deps.Carts.Clear(c.Request.Context(), sessionID(c), service.ClearReasonShopper); err != nil {
		h.respondError(c, err, apperr.KindInternal)
		return
	}
	h.respondCart(c, http.StatusOK, nil)
}

func (h *Handler) applyPromo(c *gin.Context) {
	var req promoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, badRequest("code", "Please enter a promo code"), apperr.KindValidation)
		return
	}

	applied, err := h.deps.Carts.ApplyPromo(c.Request.Context(), sessionID(c), req.Code)
	if err != nil {
		h.respondError(c, err, apperr.KindInternal)
		return
	}
	h.respondCart(c, http.StatusOK, gin.H{"message": promo.SuccessMessage(applied)})
}

func (h *Handler) getWishlist(c *gin.Context) {
	products, err := h.deps.Carts.Wishlist(c.Request.Context(), sessionID(c))
	if err != nil {
		h.respondError(c, err, apperr.KindInternal)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products, "count": len(products)})
}

func (h *Handler) addToWishlist(c *gin.Context) {
	id, ok := h.productIDParam(c)
	if !ok {
		return
	}
	if err := h.deps.Carts.AddToWishlist(c.Request.Context(), sessionID(c), id); err != nil {
		h.respondError(c, err, apperr.KindInternal)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product_id": id, "in_wishlist": true})
}

func (h *Handler) removeFromWishlist(c *gin.Context) {
	id, ok := h.productIDParam(c)
	if !ok {
		return
	}
	if err := h.deps.Carts.RemoveFromWishlist(c.Request.Context(), sessionID(c), id); err != nil {
		h.respondError(c, err, apperr.KindInternal)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product_id": id, "in_wishlist": false})
}

func (h *Handler) productIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("productId"), 10, 64)
	if err != nil {
		h.respondError(c, badRequest("product_id", "Invalid product ID"), apperr.KindValidation)
		return 0, false
	}
	return id, true
}

// respondCart renders the fresh cart view merged with extra fields.
func (h *Handler) respondCart(c *gin.Context, status int, extra gin.H) {
	view, err := h.deps.Carts.View(c.Request.Context(), sessionID(c))
	if err != nil {
		h.respondError(c, err, apperr.KindInternal)
		return
	}
	body := gin.H{"cart": view}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, body)
}
