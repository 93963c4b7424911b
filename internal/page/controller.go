package page

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cengoxius/ecommerce01/internal/domain"
	apperrors "github.com/cengoxius/ecommerce01/pkg/errors"
)

// ProductService is the product data service as seen by the product page.
type ProductService interface {
	FetchByID(ctx context.Context, id string) (*domain.Product, error)
	SubmitReview(ctx context.Context, id string, review domain.ReviewInput) error
}

// CartService receives add-to-cart requests. The cart owns its own state;
// the page never mutates a local copy.
type CartService interface {
	AddToCart(ctx context.Context, id string, quantity int) error
}

// SessionReader returns the identity bound to the current request.
type SessionReader interface {
	CurrentSession(ctx context.Context) domain.Session
}

// Navigator moves the shopper to another view.
type Navigator interface {
	GoTo(route domain.Route)
}

// Phase is the fetch state of the page.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseReady
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	case PhaseFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Errors returned by user actions. They are AppErrors so the transport can
// map them onto status codes and inline messages directly.
var (
	ErrNotReady           = &apperrors.AppError{Code: "PRODUCT_NOT_READY", Message: "product is not loaded yet", Status: 409, Err: apperrors.ErrConflict}
	ErrOutOfStock         = apperrors.Conflict("product is out of stock")
	ErrQuantityOutOfRange = apperrors.InvalidInput("selected quantity is not available")
	ErrInvalidRating      = apperrors.InvalidInput("rating must be between 0 and 5, 0 meaning none chosen")
	ErrSignInRequired     = apperrors.Unauthorized("sign in to write a review")
	ErrReviewPending      = apperrors.Conflict("a review is already being submitted")
)

// Form is the transient, per-visit form state.
type Form struct {
	Quantity int    `json:"quantity"`
	Rating   int    `json:"rating"`
	Comment  string `json:"comment"`
}

// DefaultForm returns the form state of a fresh page.
func DefaultForm() Form {
	return Form{Quantity: 1, Rating: domain.RatingUnset}
}

// Msg is the result of a finished command, fed back through Update.
type Msg interface {
	msg()
}

// Cmd is asynchronous work issued by the controller. It runs off the loop
// and must not touch controller state; it reports back with a Msg.
type Cmd func(ctx context.Context) Msg

type productFetched struct {
	ticket  uint64
	id      string
	product *domain.Product
	err     error
}

type reviewSubmitted struct {
	ticket uint64
	id     string
	err    error
}

type cartItemAdded struct {
	id       string
	quantity int
	err      error
}

func (productFetched) msg()  {}
func (reviewSubmitted) msg() {}
func (cartItemAdded) msg()   {}

// Controller drives one product detail page. It is not safe for concurrent
// use; a Loop serialises every call onto one logical thread.
type Controller struct {
	products ProductService
	cart     CartService
	identity SessionReader
	nav      Navigator
	logger   *slog.Logger

	productID string
	phase     Phase
	product   *domain.Product

	// fetchTicket identifies the most recent fetch; results carrying any
	// other ticket are stale and dropped.
	fetchTicket  uint64
	reviewTicket uint64

	form        Form
	reviewErr   string
	submitting  bool
	clearReview bool
}

// NewController creates a controller in the Idle phase.
func NewController(products ProductService, cart CartService, identity SessionReader, nav Navigator, logger *slog.Logger) *Controller {
	return &Controller{
		products: products,
		cart:     cart,
		identity: identity,
		nav:      nav,
		logger:   logger,
		form:     DefaultForm(),
	}
}

// Phase returns the current fetch phase.
func (c *Controller) Phase() Phase { return c.phase }

// ProductID returns the identifier the page currently shows or loads.
func (c *Controller) ProductID() string { return c.productID }

// Form returns the transient form state.
func (c *Controller) Form() Form { return c.form }

// Enter points the page at a product. A new identifier, or re-entering
// after a failed load, discards the cached product and starts a fetch.
// Re-entering the identifier already loading or shown issues nothing.
func (c *Controller) Enter(id string) Cmd {
	if id == c.productID && (c.phase == PhaseLoading || c.phase == PhaseReady) {
		return nil
	}
	if id != c.productID {
		c.resetForm()
	}
	c.productID = id
	return c.load()
}

// Open is a fresh load of the product page: the form resets and the
// product is fetched again, so stock and reviews are current. While a fetch
// for id is already in flight, Open issues nothing.
func (c *Controller) Open(id string) Cmd {
	if id == c.productID && c.phase == PhaseLoading {
		return nil
	}
	c.resetForm()
	c.productID = id
	return c.load()
}

func (c *Controller) resetForm() {
	c.form = DefaultForm()
	c.reviewErr = ""
	c.submitting = false
	c.clearReview = false
}

func (c *Controller) load() Cmd {
	c.fetchTicket++
	c.phase = PhaseLoading
	c.product = nil

	ticket, id, products := c.fetchTicket, c.productID, c.products
	pageFetchesTotal.Inc()

	return func(ctx context.Context) Msg {
		p, err := products.FetchByID(ctx, id)
		if err == nil && p == nil {
			err = apperrors.NotFound("product", id)
		}
		return productFetched{ticket: ticket, id: id, product: p, err: err}
	}
}

// Update applies a finished command and returns any follow-up command.
func (c *Controller) Update(msg Msg) Cmd {
	switch m := msg.(type) {
	case productFetched:
		return c.onFetched(m)
	case reviewSubmitted:
		return c.onReviewSubmitted(m)
	case cartItemAdded:
		if m.err != nil {
			c.logger.Warn("add to cart failed",
				slog.String("product_id", m.id),
				slog.Int("quantity", m.quantity),
				slog.String("error", m.err.Error()),
			)
		}
	}
	return nil
}

func (c *Controller) onFetched(m productFetched) Cmd {
	if m.ticket != c.fetchTicket {
		staleResponsesTotal.WithLabelValues("fetch").Inc()
		c.logger.Debug("discarding stale product response",
			slog.String("product_id", m.id),
			slog.String("current_product_id", c.productID),
		)
		return nil
	}

	if m.err != nil {
		c.phase = PhaseFailed
		c.product = nil
		c.clearReview = false
		c.logger.Warn("product fetch failed, leaving detail page",
			slog.String("product_id", m.id),
			slog.String("error", m.err.Error()),
		)
		redirectsTotal.WithLabelValues("fetch_failed").Inc()
		c.nav.GoTo(domain.RouteHome)
		return nil
	}

	c.phase = PhaseReady
	c.product = m.product
	c.clampQuantity()
	if c.clearReview {
		c.form.Rating = domain.RatingUnset
		c.form.Comment = ""
		c.clearReview = false
	}
	return nil
}

func (c *Controller) onReviewSubmitted(m reviewSubmitted) Cmd {
	if m.id != c.productID || m.ticket != c.reviewTicket {
		staleResponsesTotal.WithLabelValues("review").Inc()
		return nil
	}
	c.submitting = false

	if m.err != nil {
		reviewSubmissionsTotal.WithLabelValues("rejected").Inc()
		c.reviewErr = apperrors.UserMessage(m.err, "your review could not be saved, please try again")
		c.logger.Info("review rejected",
			slog.String("product_id", m.id),
			slog.String("error", m.err.Error()),
		)
		return nil
	}

	reviewSubmissionsTotal.WithLabelValues("accepted").Inc()
	c.reviewErr = ""
	c.clearReview = true
	return c.load()
}

// clampQuantity keeps the selected quantity within the known stock.
func (c *Controller) clampQuantity() {
	if c.form.Quantity < 1 {
		c.form.Quantity = 1
	}
	if c.product != nil && c.product.InStock() && c.form.Quantity > c.product.CountInStock {
		c.form.Quantity = c.product.CountInStock
	}
}

// SelectQuantity sets the quantity to add to the cart. It must lie in
// 1..stock of the loaded product.
func (c *Controller) SelectQuantity(n int) error {
	if c.phase != PhaseReady {
		return ErrNotReady
	}
	if !c.product.CanOrder(n) {
		return fmt.Errorf("%w: %d of %d in stock", ErrQuantityOutOfRange, n, c.product.CountInStock)
	}
	c.form.Quantity = n
	return nil
}

// AddToCart hands the selected quantity to the cart and navigates to it.
func (c *Controller) AddToCart() (Cmd, error) {
	if c.phase != PhaseReady {
		return nil, ErrNotReady
	}
	if !c.product.InStock() {
		return nil, ErrOutOfStock
	}
	if !c.product.CanOrder(c.form.Quantity) {
		return nil, fmt.Errorf("%w: %d of %d in stock", ErrQuantityOutOfRange, c.form.Quantity, c.product.CountInStock)
	}

	id, qty, cart := c.productID, c.form.Quantity, c.cart
	c.nav.GoTo(domain.RouteCart)

	return func(ctx context.Context) Msg {
		return cartItemAdded{id: id, quantity: qty, err: cart.AddToCart(ctx, id, qty)}
	}, nil
}

// SelectRating records the pending rating; 0 means not yet chosen.
func (c *Controller) SelectRating(r int) error {
	if r < domain.RatingUnset || r > domain.RatingMax {
		return ErrInvalidRating
	}
	c.form.Rating = r
	return nil
}

// EditComment records the pending review comment.
func (c *Controller) EditComment(text string) {
	c.form.Comment = text
}

// SubmitReview sends the pending rating and comment. Guests are rejected
// before the product service is called. The review is not appended locally;
// a successful submission triggers a refetch instead.
func (c *Controller) SubmitReview(ctx context.Context) (Cmd, error) {
	if !c.identity.CurrentSession(ctx).Authenticated() {
		return nil, ErrSignInRequired
	}
	if c.phase != PhaseReady {
		return nil, ErrNotReady
	}
	if c.submitting {
		return nil, ErrReviewPending
	}

	c.reviewTicket++
	c.submitting = true
	c.reviewErr = ""

	ticket, id, products := c.reviewTicket, c.productID, c.products
	input := domain.ReviewInput{Rating: c.form.Rating, Comment: c.form.Comment}

	return func(ctx context.Context) Msg {
		return reviewSubmitted{ticket: ticket, id: id, err: products.SubmitReview(ctx, id, input)}
	}, nil
}
