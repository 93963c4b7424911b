package domain

import (
	"time"
)

// Product is the storefront's read-only copy of a catalog product, as
// assembled by the product data service for one product detail page.
type Product struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Image        string   `json:"image"`
	Description  string   `json:"description"`
	Price        int64    `json:"price"`
	Currency     string   `json:"currency"`
	Rating       float64  `json:"rating"`
	NumReviews   int      `json:"num_reviews"`
	CountInStock int      `json:"count_in_stock"`
	Reviews      []Review `json:"reviews"`
}

// InStock reports whether at least one unit can be added to the cart.
func (p *Product) InStock() bool {
	return p.CountInStock > 0
}

// CanOrder reports whether qty units may be ordered against the known stock.
func (p *Product) CanOrder(qty int) bool {
	return qty >= 1 && qty <= p.CountInStock
}

// QuantityOptions returns the selectable quantities 1..stock. It returns nil
// when nothing is in stock, meaning no quantity control is offered.
func QuantityOptions(stock int) []int {
	if stock <= 0 {
		return nil
	}
	opts := make([]int, stock)
	for i := range opts {
		opts[i] = i + 1
	}
	return opts
}

// Review is a shopper review attached to a product.
type Review struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	Name      string    `json:"name"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// Rating bounds for submitted reviews. RatingUnset marks "not yet chosen".
const (
	RatingUnset = 0
	RatingMin   = 1
	RatingMax   = 5
)

// ReviewInput is the payload of a review submission.
type ReviewInput struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// RatingLabel returns the option label shown in the rating select.
func RatingLabel(r int) string {
	switch r {
	case 1:
		return "1 - Poor"
	case 2:
		return "2 - Fair"
	case 3:
		return "3 - Good"
	case 4:
		return "4 - Very good"
	case 5:
		return "5 - Excellent"
	default:
		return "Select..."
	}
}
