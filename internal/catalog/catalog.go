package catalog

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

var ErrProductNotFound = errors.New("product not found")

// Source provides the products that can be browsed and added to a cart
type Source interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
}

// Sort orders
const (
	SortRelevance    = "relevance"
	SortPriceLowHigh = "price-low-high"
	SortPriceHighLow = "price-high-low"
	SortRating       = "rating"
	SortNewest       = "newest"
	SortPopularity   = "popularity"
	SortNameAZ       = "name-a-z"
	SortNameZA       = "name-z-a"
)

// Rating buckets
const (
	Rating4Plus = "4-plus"
	Rating3Plus = "3-plus"
	Rating2Plus = "2-plus"
	Rating1Plus = "1-plus"
)

var ratingFloors = map[string]float64{
	Rating4Plus: 4,
	Rating3Plus: 3,
	Rating2Plus: 2,
	Rating1Plus: 1,
}

// Query describes a catalog listing request
type Query struct {
	Search     string
	Categories []string
	Brands     []string
	MinPrice   decimal.NullDecimal
	MaxPrice   decimal.NullDecimal
	Ratings    []string
	InStock    bool
	OnSale     bool
	Sort       string
}

// ActiveFilterCount counts the filters the shopper has switched on. Search
// and sort are not filters.
func (q Query) ActiveFilterCount() int {
	n := len(q.Categories) + len(q.Brands) + len(q.Ratings)
	if q.MinPrice.Valid || q.MaxPrice.Valid {
		n++
	}
	if q.InStock {
		n++
	}
	if q.OnSale {
		n++
	}
	return n
}

// Validate rejects unknown sort orders and rating buckets.
func (q Query) Validate() error {
	switch q.Sort {
	case "", SortRelevance, SortPriceLowHigh, SortPriceHighLow, SortRating,
		SortNewest, SortPopularity, SortNameAZ, SortNameZA:
	default:
		return fmt.Errorf("unknown sort %q", q.Sort)
	}
	for _, r := range q.Ratings {
		if _, ok := ratingFloors[r]; !ok {
			return fmt.Errorf("unknown rating filter %q", r)
		}
	}
	if q.MinPrice.Valid && q.MaxPrice.Valid && q.MinPrice.Decimal.GreaterThan(q.MaxPrice.Decimal) {
		return fmt.Errorf("min price %s exceeds max price %s", q.MinPrice.Decimal, q.MaxPrice.Decimal)
	}
	return nil
}

// Filter returns the products matching q in the requested order. The input
// slice is not modified.
func Filter(products []models.Product, q Query) []models.Product {
	search := strings.ToLower(strings.TrimSpace(q.Search))

	out := make([]models.Product, 0, len(products))
	for _, p := range products {
		if search != "" && !matchesSearch(p, search) {
			continue
		}
		if len(q.Categories) > 0 && !slices.Contains(q.Categories, p.Category) {
			continue
		}
		if len(q.Brands) > 0 && !slices.Contains(q.Brands, p.Brand) {
			continue
		}
		if q.MinPrice.Valid && p.Price.LessThan(q.MinPrice.Decimal) {
			continue
		}
		if q.MaxPrice.Valid && p.Price.GreaterThan(q.MaxPrice.Decimal) {
			continue
		}
		if len(q.Ratings) > 0 && !matchesRating(p, q.Ratings) {
			continue
		}
		if q.InStock && p.Stock < 1 {
			continue
		}
		if q.OnSale && !p.OnSale() {
			continue
		}
		out = append(out, p)
	}

	if order := comparator(q.Sort); order != nil {
		slices.SortStableFunc(out, order)
	}
	return out
}

func matchesSearch(p models.Product, term string) bool {
	return strings.Contains(strings.ToLower(p.Name), term) ||
		strings.Contains(strings.ToLower(p.Description), term) ||
		strings.Contains(strings.ToLower(p.Category), term)
}

func matchesRating(p models.Product, buckets []string) bool {
	for _, b := range buckets {
		if p.Rating >= ratingFloors[b] {
			return true
		}
	}
	return false
}

func comparator(sort string) func(a, b models.Product) int {
	switch sort {
	case SortPriceLowHigh:
		return func(a, b models.Product) int { return a.Price.Cmp(b.Price) }
	case SortPriceHighLow:
		return func(a, b models.Product) int { return b.Price.Cmp(a.Price) }
	case SortRating:
		return func(a, b models.Product) int { return cmp.Compare(b.Rating, a.Rating) }
	case SortNewest:
		return func(a, b models.Product) int { return cmp.Compare(b.ID, a.ID) }
	case SortPopularity:
		return func(a, b models.Product) int { return cmp.Compare(b.ReviewCount, a.ReviewCount) }
	case SortNameAZ:
		return func(a, b models.Product) int { return compareName(a.Name, b.Name) }
	case SortNameZA:
		return func(a, b models.Product) int { return compareName(b.Name, a.Name) }
	}
	return nil
}

func compareName(a, b string) int {
	if c := strings.Compare(strings.ToLower(a), strings.ToLower(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}
