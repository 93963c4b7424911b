package page

import (
	"context"
	"fmt"
	"strings"

	"github.com/cengoxius/ecommerce01/internal/domain"
)

// View is the render model of the product detail page. Product is nil
// unless the page is Ready, so nothing is ever attributed to the wrong
// identifier while a fetch is outstanding.
type View struct {
	Phase     string       `json:"phase"`
	ProductID string       `json:"product_id"`
	Loading   bool         `json:"loading"`
	Product   *ProductView `json:"product,omitempty"`
	Form      Form         `json:"form"`
	Review    ReviewForm   `json:"review"`
}

// ProductView is the Ready-state product block.
type ProductView struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Image           string       `json:"image"`
	Description     string       `json:"description"`
	Price           string       `json:"price"`
	Rating          float64      `json:"rating"`
	NumReviews      int          `json:"num_reviews"`
	StockStatus     string       `json:"stock_status"`
	QuantityOptions []int        `json:"quantity_options,omitempty"`
	CanAddToCart    bool         `json:"can_add_to_cart"`
	Reviews         []ReviewView `json:"reviews"`
}

// ReviewView is one listed review.
type ReviewView struct {
	Name    string `json:"name"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
	Date    string `json:"date"`
}

// ReviewForm describes the review block under the review list. Guests get
// a sign-in prompt instead of the form.
type ReviewForm struct {
	SignInRequired bool           `json:"sign_in_required"`
	Submitting     bool           `json:"submitting"`
	Error          string         `json:"error,omitempty"`
	RatingOptions  []RatingOption `json:"rating_options,omitempty"`
}

// RatingOption is one entry of the rating select.
type RatingOption struct {
	Value    int    `json:"value"`
	Label    string `json:"label"`
	Selected bool   `json:"selected"`
}

// View returns the render model for the current request.
func (c *Controller) View(ctx context.Context) View {
	v := View{
		Phase:     c.phase.String(),
		ProductID: c.productID,
		Loading:   c.phase == PhaseLoading,
		Form:      c.form,
	}

	if c.phase == PhaseReady && c.product != nil {
		v.Product = newProductView(c.product)
	}

	if !c.identity.CurrentSession(ctx).Authenticated() {
		v.Review.SignInRequired = true
		return v
	}

	v.Review.Submitting = c.submitting
	v.Review.Error = c.reviewErr
	v.Review.RatingOptions = make([]RatingOption, 0, domain.RatingMax+1)
	for r := domain.RatingUnset; r <= domain.RatingMax; r++ {
		v.Review.RatingOptions = append(v.Review.RatingOptions, RatingOption{
			Value:    r,
			Label:    domain.RatingLabel(r),
			Selected: r == c.form.Rating,
		})
	}
	return v
}

func newProductView(p *domain.Product) *ProductView {
	pv := &ProductView{
		ID:              p.ID,
		Name:            p.Name,
		Image:           p.Image,
		Description:     p.Description,
		Price:           FormatPrice(p.Price, p.Currency),
		Rating:          p.Rating,
		NumReviews:      p.NumReviews,
		StockStatus:     "Out of stock",
		QuantityOptions: domain.QuantityOptions(p.CountInStock),
		CanAddToCart:    p.InStock(),
		Reviews:         make([]ReviewView, 0, len(p.Reviews)),
	}
	if p.InStock() {
		pv.StockStatus = "In stock"
	}
	for _, r := range p.Reviews {
		rv := ReviewView{Name: r.Name, Rating: r.Rating, Comment: r.Comment}
		if !r.CreatedAt.IsZero() {
			rv.Date = r.CreatedAt.Format("2006-01-02")
		}
		pv.Reviews = append(pv.Reviews, rv)
	}
	return pv
}

// FormatPrice renders a price held in minor units, e.g. 1999 USD as "$19.99".
func FormatPrice(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	amount := fmt.Sprintf("%d.%02d", minor/100, minor%100)

	switch strings.ToUpper(currency) {
	case "", "USD":
		return sign + "$" + amount
	case "EUR":
		return sign + "€" + amount
	case "GBP":
		return sign + "£" + amount
	default:
		return sign + amount + " " + strings.ToUpper(currency)
	}
}
