package catalog

import (
	"context"
	"fmt"
	"sync"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

// MemorySource is a Source backed by an in-process product list
type MemorySource struct {
	mu       sync.RWMutex
	products []models.Product
	byID     map[int64]int
}

// NewMemorySource creates a source over products, in listing order.
func NewMemorySource(products []models.Product) *MemorySource {
	s := &MemorySource{}
	s.Replace(products)
	return s
}

// ListProducts returns every product in listing order.
func (s *MemorySource) ListProducts(ctx context.Context) ([]models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Product, len(s.products))
	copy(out, s.products)
	return out, nil
}

// GetProduct returns the product with id.
func (s *MemorySource) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrProductNotFound, id)
	}
	p := s.products[idx]
	return &p, nil
}

// SetStock overrides the stock of one product.
func (s *MemorySource) SetStock(id int64, stock int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrProductNotFound, id)
	}
	s.products[idx].Stock = stock
	return nil
}

// Replace swaps the whole product list.
func (s *MemorySource) Replace(products []models.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.products = make([]models.Product, len(products))
	copy(s.products, products)
	s.byID = make(map[int64]int, len(products))
	for i, p := range s.products {
		s.byID[p.ID] = i
	}
}

// SeedProducts returns the demo catalog.
func SeedProducts() []models.Product {
	return []models.Product{
		{
			ID:            1,
			SKU:           "SKU-0001",
			Name:          "iPhone 15 Pro Max",
			Description:   "The most advanced iPhone with titanium design and A17 Pro chip",
			Category:      "electronics",
			Brand:         "apple",
			Price:         money("1199.99"),
			OriginalPrice: original("1299.99"),
			Rating:        4.8,
			ReviewCount:   2847,
			Stock:         15,
			Variants:      models.VariantAxes{"storage": {"256GB", "512GB", "1TB"}},
		},
		{
			ID:          2,
			SKU:         "SKU-0002",
			Name:        "Samsung Galaxy S24 Ultra",
			Description: "Premium Android smartphone with S Pen and advanced camera system",
			Category:    "electronics",
			Brand:       "samsung",
			Price:       money("1099.99"),
			Rating:      4.7,
			ReviewCount: 1923,
			Stock:       8,
		},
		{
			ID:            3,
			SKU:           "SKU-0003",
			Name:          "Nike Air Max 270",
			Description:   "Comfortable running shoes with Max Air cushioning",
			Category:      "clothing",
			Brand:         "nike",
			Price:         money("149.99"),
			OriginalPrice: original("179.99"),
			Rating:        4.5,
			ReviewCount:   856,
			Stock:         23,
			Variants:      models.VariantAxes{"size": {"8", "9", "10", "11"}},
		},
		{
			ID:          4,
			SKU:         "SKU-0004",
			Name:        "Sony WH-1000XM5 Headphones",
			Description: "Industry-leading noise canceling wireless headphones",
			Category:    "electronics",
			Brand:       "sony",
			Price:       money("349.99"),
			Rating:      4.9,
			ReviewCount: 1456,
			Stock:       12,
			Variants:    models.VariantAxes{"color": {"black", "white", "blue", "red"}, "size": {"standard", "large"}},
		},
		{
			ID:          5,
			SKU:         "SKU-0005",
			Name:        "Adidas Ultraboost 22",
			Description: "Premium running shoes with responsive BOOST midsole",
			Category:    "clothing",
			Brand:       "adidas",
			Price:       money("189.99"),
			Rating:      4.6,
			ReviewCount: 734,
			Stock:       0,
			Variants:    models.VariantAxes{"size": {"8", "9", "10", "11"}},
		},
		{
			ID:          6,
			SKU:         "SKU-0006",
			Name:        "MacBook Pro 16-inch",
			Description: "Powerful laptop with M3 Pro chip for professional workflows",
			Category:    "electronics",
			Brand:       "apple",
			Price:       money("2399.99"),
			Rating:      4.8,
			ReviewCount: 923,
			Stock:       5,
		},
		{
			ID:            7,
			SKU:           "SKU-0007",
			Name:          "Smart Garden Kit",
			Description:   "Indoor hydroponic garden system for fresh herbs and vegetables",
			Category:      "home-garden",
			Brand:         "lg",
			Price:         money("299.99"),
			OriginalPrice: original("349.99"),
			Rating:        4.3,
			ReviewCount:   234,
			Stock:         18,
		},
		{
			ID:          8,
			SKU:         "SKU-0008",
			Name:        "Gaming Mechanical Keyboard",
			Description: "RGB backlit mechanical keyboard with tactile switches",
			Category:    "electronics",
			Brand:       "hp",
			Price:       money("129.99"),
			Rating:      4.4,
			ReviewCount: 567,
			Stock:       31,
		},
		{
			ID:            9,
			SKU:           "SKU-0009",
			Name:          "Wireless Charging Pad",
			Description:   "Fast wireless charging pad compatible with all Qi-enabled devices",
			Category:      "electronics",
			Brand:         "samsung",
			Price:         money("39.99"),
			OriginalPrice: original("59.99"),
			Rating:        4.2,
			ReviewCount:   445,
			Stock:         67,
		},
		{
			ID:          10,
			SKU:         "SKU-0010",
			Name:        "Fitness Tracker Watch",
			Description: "Advanced fitness tracking with heart rate monitoring and GPS",
			Category:    "sports",
			Brand:       "samsung",
			Price:       money("199.99"),
			Rating:      4.5,
			ReviewCount: 1234,
			Stock:       14,
		},
		{
			ID:            11,
			SKU:           "SKU-0011",
			Name:          "Bluetooth Speaker",
			Description:   "Portable waterproof speaker with 360-degree sound",
			Category:      "electronics",
			Brand:         "sony",
			Price:         money("79.99"),
			OriginalPrice: original("99.99"),
			Rating:        4.3,
			ReviewCount:   678,
			Stock:         25,
		},
		{
			ID:          12,
			SKU:         "SKU-0012",
			Name:        "Coffee Maker Machine",
			Description: "Programmable drip coffee maker with thermal carafe",
			Category:    "home-garden",
			Brand:       "hp",
			Price:       money("249.99"),
			Rating:      4.6,
			ReviewCount: 892,
			Stock:       9,
		},
		{
			ID:          13,
			SKU:         "SKU-0013",
			Name:        "Gaming Mouse",
			Description: "High-precision gaming mouse with customizable RGB lighting",
			Category:    "electronics",
			Brand:       "dell",
			Price:       money("69.99"),
			Rating:      4.4,
			ReviewCount: 456,
			Stock:       43,
		},
		{
			ID:            14,
			SKU:           "SKU-0014",
			Name:          "Yoga Mat Premium",
			Description:   "Non-slip premium yoga mat with alignment lines",
			Category:      "sports",
			Brand:         "nike",
			Price:         money("49.99"),
			OriginalPrice: original("69.99"),
			Rating:        4.7,
			ReviewCount:   234,
			Stock:         56,
		},
		{
			ID:          15,
			SKU:         "SKU-0015",
			Name:        "Desk Lamp LED",
			Description: "Adjustable LED desk lamp with USB charging port",
			Category:    "home-garden",
			Brand:       "lg",
			Price:       money("89.99"),
			Rating:      4.5,
			ReviewCount: 345,
			Stock:       22,
		},
		{
			ID:          16,
			SKU:         "SKU-0016",
			Name:        "Wireless Earbuds Pro",
			Description: "Premium wireless earbuds with active noise cancellation",
			Category:    "electronics",
			Brand:       "apple",
			Price:       money("249.99"),
			Rating:      4.8,
			ReviewCount: 1567,
			Stock:       33,
		},
		{
			ID:            17,
			SKU:           "SKU-0017",
			Name:          "Running Shorts",
			Description:   "Lightweight running shorts with moisture-wicking fabric",
			Category:      "clothing",
			Brand:         "adidas",
			Price:         money("34.99"),
			OriginalPrice: original("44.99"),
			Rating:        4.3,
			ReviewCount:   123,
			Stock:         78,
			Variants:      models.VariantAxes{"size": {"S", "M", "L"}},
		},
		{
			ID:          18,
			SKU:         "SKU-0018",
			Name:        "Tablet 10-inch",
			Description: "Versatile tablet perfect for work and entertainment",
			Category:    "electronics",
			Brand:       "samsung",
			Price:       money("329.99"),
			Rating:      4.4,
			ReviewCount: 789,
			Stock:       16,
		},
		{
			ID:            19,
			SKU:           "SKU-0019",
			Name:          "Kitchen Blender",
			Description:   "High-performance blender for smoothies and food preparation",
			Category:      "home-garden",
			Brand:         "hp",
			Price:         money("159.99"),
			OriginalPrice: original("199.99"),
			Rating:        4.6,
			ReviewCount:   456,
			Stock:         11,
		},
		{
			ID:          20,
			SKU:         "SKU-0020",
			Name:        "Basketball Shoes",
			Description: "High-top basketball shoes with superior ankle support",
			Category:    "sports",
			Brand:       "nike",
			Price:       money("119.99"),
			Rating:      4.5,
			ReviewCount: 567,
			Stock:       29,
			Variants:    models.VariantAxes{"size": {"9", "10", "11", "12"}},
		},
	}
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func original(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(money(s))
}
