package http

import (
	"context"
	"errors"
	"html"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/microcosm-cc/bluemonday"

	"github.com/cengoxius/ecommerce01/internal/domain"
	"github.com/cengoxius/ecommerce01/internal/event"
	"github.com/cengoxius/ecommerce01/internal/header"
	"github.com/cengoxius/ecommerce01/internal/identity"
	"github.com/cengoxius/ecommerce01/internal/page"
	"github.com/cengoxius/ecommerce01/internal/search"
	apperrors "github.com/cengoxius/ecommerce01/pkg/errors"
	"github.com/cengoxius/ecommerce01/pkg/httputil"
	"github.com/cengoxius/ecommerce01/pkg/logger"
	"github.com/cengoxius/ecommerce01/pkg/validator"
)

// maxFormBytes bounds urlencoded form posts.
const maxFormBytes = 64 << 10

// Searcher finds products by free text.
type Searcher interface {
	Search(ctx context.Context, q string, page int) (*search.Result, error)
}

// StorefrontHandler serves the storefront pages and their form actions.
type StorefrontHandler struct {
	sessions *identity.Store
	nav      *header.Navigation
	events   *event.Producer
	search   Searcher
	pages    *renderer
	policy   *bluemonday.Policy
	settle   time.Duration
	logger   *slog.Logger
}

// NewStorefrontHandler creates the page handler. settle bounds how long a
// request waits for product data before rendering the loading state.
func NewStorefrontHandler(sessions *identity.Store, events *event.Producer, searcher Searcher, settle time.Duration, logger *slog.Logger) (*StorefrontHandler, error) {
	pages, err := newRenderer()
	if err != nil {
		return nil, err
	}
	return &StorefrontHandler{
		sessions: sessions,
		nav:      header.NewNavigation(sessions, logger),
		events:   events,
		search:   searcher,
		pages:    pages,
		policy:   bluemonday.StrictPolicy(),
		settle:   settle,
		logger:   logger,
	}, nil
}

// --- Request DTOs ---

// cartForm is the add-to-cart form.
type cartForm struct {
	Quantity int `json:"qty" form:"qty" validate:"required,min=1"`
}

// reviewForm is the review form. A rating of 0 means none was chosen; the
// product service decides whether that is acceptable.
type reviewForm struct {
	Rating  int    `json:"rating" form:"rating" validate:"min=0,max=5"`
	Comment string `json:"comment" form:"comment" validate:"max=2000"`
}

// --- Handlers ---

// Home handles GET /
func (h *StorefrontHandler) Home(w http.ResponseWriter, r *http.Request) {
	data := homePage{Header: h.nav.View(r.Context())}
	if httputil.WantsJSON(r) {
		httputil.WriteData(w, http.StatusOK, data)
		return
	}
	h.render(w, r, http.StatusOK, pageHome, data)
}

// Search handles GET /search
func (h *StorefrontHandler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	data := searchPage{Header: h.nav.View(ctx), Query: q, Results: []searchHit{}, Page: 1}

	pageNum := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.searchFailed(w, r, data, apperrors.InvalidInput("page must be a positive number"))
			return
		}
		pageNum = n
	}

	res, err := h.search.Search(ctx, q, pageNum)
	if err != nil {
		h.searchFailed(w, r, data, err)
		return
	}

	data.Total, data.Page, data.Pages = res.Total, res.Page, res.Pages()
	for _, hit := range res.Hits {
		data.Results = append(data.Results, searchHit{
			ID:    hit.ID,
			Name:  hit.Name,
			Image: hit.ImageURL,
			Price: page.FormatPrice(hit.BasePrice, hit.Currency),
			Path:  domain.ProductRoute(hit.ID).String(),
		})
	}
	if data.Page > 1 {
		data.PrevURL = searchURL(q, data.Page-1)
	}
	if data.Page < data.Pages {
		data.NextURL = searchURL(q, data.Page+1)
	}

	if httputil.WantsJSON(r) {
		httputil.WriteData(w, http.StatusOK, data)
		return
	}
	h.render(w, r, http.StatusOK, pageSearch, data)
}

func (h *StorefrontHandler) searchFailed(w http.ResponseWriter, r *http.Request, data searchPage, err error) {
	ctx := r.Context()
	code, status, _ := apperrors.Classify(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(ctx).Warn("product search failed", slog.String("error", err.Error()))
	}
	resp := h.errorResponse(ctx, code, apperrors.UserMessage(err, "search is temporarily unavailable"))
	data.Notice = resp.Message

	if httputil.WantsJSON(r) {
		httputil.WriteJSON(w, status, httputil.Response{Data: data, Error: resp})
		return
	}
	h.render(w, r, status, pageSearch, data)
}

func searchURL(q string, pageNum int) string {
	return domain.RouteSearch.String() + "?" + url.Values{
		"q":    {q},
		"page": {strconv.Itoa(pageNum)},
	}.Encode()
}

// ShowProduct handles GET /products/{id}
func (h *StorefrontHandler) ShowProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	loop, ok := h.loop(w, r, id)
	if !ok {
		return
	}

	// Every page load refetches. A meta refresh while the fetch is still
	// running just waits on it.
	_ = loop.Do(ctx, func(c *page.Controller) (page.Cmd, error) {
		return c.Open(id), nil
	})
	h.wait(ctx, loop)
	if h.redirected(w, r, loop) {
		return
	}

	data := h.productPage(ctx, loop, "")
	h.renderProduct(w, r, http.StatusOK, data, nil)
	if p := data.Page.Product; p != nil {
		h.events.ProductViewed(ctx, p.ID, p.CanAddToCart)
	}
}

// AddToCart handles POST /products/{id}/cart
func (h *StorefrontHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	loop, ok := h.loop(w, r, id)
	if !ok {
		return
	}

	form, formErr := bindCartForm(w, r)

	h.enter(ctx, loop, id)
	if h.redirected(w, r, loop) {
		return
	}
	if formErr != nil {
		h.reject(w, r, loop, formErr)
		return
	}

	err := loop.Do(ctx, func(c *page.Controller) (page.Cmd, error) {
		if err := c.SelectQuantity(form.Quantity); err != nil {
			return nil, err
		}
		return c.AddToCart()
	})
	if err != nil {
		h.reject(w, r, loop, err)
		return
	}

	h.wait(ctx, loop)
	h.events.CartItemAdded(ctx, id, form.Quantity)
	if h.redirected(w, r, loop) {
		return
	}
	httputil.SeeOther(w, r, domain.RouteCart.String())
}

// SubmitReview handles POST /products/{id}/reviews
func (h *StorefrontHandler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	loop, ok := h.loop(w, r, id)
	if !ok {
		return
	}

	form, formErr := bindReviewForm(w, r)

	h.enter(ctx, loop, id)
	if h.redirected(w, r, loop) {
		return
	}
	if formErr != nil {
		h.reject(w, r, loop, formErr)
		return
	}

	comment := h.sanitize(form.Comment)
	err := loop.Do(ctx, func(c *page.Controller) (page.Cmd, error) {
		if err := c.SelectRating(form.Rating); err != nil {
			return nil, err
		}
		c.EditComment(comment)
		return c.SubmitReview(ctx)
	})
	if err != nil {
		h.reject(w, r, loop, err)
		return
	}

	h.wait(ctx, loop)
	// An accepted review refetches the product; a failed refetch leaves.
	if h.redirected(w, r, loop) {
		return
	}

	data := h.productPage(ctx, loop, "")
	switch {
	case data.Page.Review.Error != "":
		h.renderProduct(w, r, http.StatusUnprocessableEntity, data, h.errorResponse(ctx, "REVIEW_REJECTED", data.Page.Review.Error))
	case data.Page.Review.Submitting:
		h.renderProduct(w, r, http.StatusAccepted, data, nil)
	default:
		h.events.ReviewSubmitted(ctx, id, h.sessions.CurrentSession(ctx).UserID, form.Rating)
		httputil.SeeOther(w, r, domain.ProductRoute(id).String())
	}
}

// Logout handles POST /logout
func (h *StorefrontHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.nav.Logout(r.Context())
	h.sessions.ClearCookie(w)

	if httputil.WantsJSON(r) {
		httputil.WriteData(w, http.StatusOK, homePage{Header: header.Build(domain.Guest())})
		return
	}
	httputil.SeeOther(w, r, domain.RouteHome.String())
}

// --- Page flow ---

// loop returns the visit's page for product id. Each product has its own
// page, so concurrent tabs never see each other's product.
func (h *StorefrontHandler) loop(w http.ResponseWriter, r *http.Request, id string) (*page.Loop, bool) {
	v, ok := visitFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Internal(errors.New("request is not bound to a visit")), h.logger)
		return nil, false
	}
	return v.Page(id), true
}

// enter makes sure the page for id has its data, fetching it when the page
// is new or its last load failed, and waits for it.
func (h *StorefrontHandler) enter(ctx context.Context, loop *page.Loop, id string) {
	_ = loop.Do(ctx, func(c *page.Controller) (page.Cmd, error) {
		return c.Enter(id), nil
	})
	h.wait(ctx, loop)
}

// wait blocks until the page's commands land or the settle timeout passes.
func (h *StorefrontHandler) wait(ctx context.Context, loop *page.Loop) {
	ctx, cancel := context.WithTimeout(ctx, h.settle)
	defer cancel()
	if err := loop.Settle(ctx); err != nil {
		logger.FromContext(ctx).Debug("page still busy, rendering current state",
			slog.String("error", err.Error()),
		)
	}
}

// redirected turns the controller's last navigation request into a 303.
func (h *StorefrontHandler) redirected(w http.ResponseWriter, r *http.Request, loop *page.Loop) bool {
	route, ok := loop.Navigation()
	if !ok {
		return false
	}
	httputil.SeeOther(w, r, route.String())
	return true
}

func (h *StorefrontHandler) productPage(ctx context.Context, loop *page.Loop, notice string) productPage {
	var v page.View
	loop.Read(func(c *page.Controller) { v = c.View(ctx) })
	return productPage{Header: h.nav.View(ctx), Page: v, Notice: notice}
}

// reject re-renders the product page for an action the controller or the
// form refused.
func (h *StorefrontHandler) reject(w http.ResponseWriter, r *http.Request, loop *page.Loop, err error) {
	ctx := r.Context()
	status := http.StatusUnprocessableEntity
	resp := h.errorResponse(ctx, "VALIDATION_ERROR", "")

	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		resp.Message = valErr.First()
		resp.Fields = valErr.Fields()
	} else {
		resp.Code, status, _ = apperrors.Classify(err)
		if errors.Is(err, apperrors.ErrInvalidInput) {
			status = http.StatusUnprocessableEntity
		}
		resp.Message = apperrors.UserMessage(err, "something went wrong, please try again")
	}

	if status >= http.StatusInternalServerError {
		logger.FromContext(ctx).Error("product action failed", slog.String("error", err.Error()))
	}
	h.renderProduct(w, r, status, h.productPage(ctx, loop, resp.Message), resp)
}

func (h *StorefrontHandler) errorResponse(ctx context.Context, code, message string) *httputil.ErrorResponse {
	return &httputil.ErrorResponse{
		Code:      code,
		Message:   message,
		RequestID: logger.CorrelationIDFromContext(ctx),
	}
}

func (h *StorefrontHandler) renderProduct(w http.ResponseWriter, r *http.Request, status int, data productPage, errResp *httputil.ErrorResponse) {
	if httputil.WantsJSON(r) {
		httputil.WriteJSON(w, status, httputil.Response{Data: data, Error: errResp})
		return
	}
	h.render(w, r, status, pageProduct, data)
}

func (h *StorefrontHandler) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	if err := h.pages.render(w, status, name, data); err != nil {
		logger.FromContext(r.Context()).Error("failed to render page",
			slog.String("page", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Something went wrong. Please try again.", http.StatusInternalServerError)
	}
}

// sanitize strips markup from a review comment. Entities are decoded again
// since templates escape on output.
func (h *StorefrontHandler) sanitize(comment string) string {
	return strings.TrimSpace(html.UnescapeString(h.policy.Sanitize(comment)))
}

// --- Form binding ---

func bindCartForm(w http.ResponseWriter, r *http.Request) (cartForm, error) {
	var f cartForm
	if httputil.IsJSONBody(r) {
		return f, decodeJSON(w, r, &f)
	}
	if err := parseForm(w, r); err != nil {
		return f, err
	}
	qty, err := formInt(r, "qty")
	if err != nil {
		return f, err
	}
	f.Quantity = qty
	return f, validator.Validate(f)
}

func bindReviewForm(w http.ResponseWriter, r *http.Request) (reviewForm, error) {
	var f reviewForm
	if httputil.IsJSONBody(r) {
		return f, decodeJSON(w, r, &f)
	}
	if err := parseForm(w, r); err != nil {
		return f, err
	}
	rating, err := formInt(r, "rating")
	if err != nil {
		return f, err
	}
	f.Rating = rating
	f.Comment = r.PostForm.Get("comment")
	return f, validator.Validate(f)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	err := validator.DecodeAndValidate(w, r, dst)
	var valErr *validator.ValidationError
	if err != nil && !errors.As(err, &valErr) {
		return apperrors.InvalidInput("malformed request body")
	}
	return err
}

func parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		return apperrors.InvalidInput("malformed form body")
	}
	return nil
}

// formInt reads an optional integer field; a missing field reads as 0.
func formInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.PostForm.Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.InvalidInput(name + " must be a whole number")
	}
	return n, nil
}
