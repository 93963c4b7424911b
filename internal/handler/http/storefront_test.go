package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cengoxius/ecommerce01/internal/domain"
	"github.com/cengoxius/ecommerce01/internal/event"
	"github.com/cengoxius/ecommerce01/internal/header"
	"github.com/cengoxius/ecommerce01/internal/identity"
	"github.com/cengoxius/ecommerce01/internal/page"
	"github.com/cengoxius/ecommerce01/internal/search"
	"github.com/cengoxius/ecommerce01/internal/visit"
	apperrors "github.com/cengoxius/ecommerce01/pkg/errors"
	"github.com/cengoxius/ecommerce01/pkg/health"
	"github.com/cengoxius/ecommerce01/pkg/httputil"
	"github.com/cengoxius/ecommerce01/pkg/kafka"
	"github.com/cengoxius/ecommerce01/pkg/middleware"
)

// ============================================================================
// Mocks
// ============================================================================

type mockProducts struct {
	mock.Mock
}

func (m *mockProducts) FetchByID(ctx context.Context, id string) (*domain.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *mockProducts) SubmitReview(ctx context.Context, id string, review domain.ReviewInput) error {
	args := m.Called(ctx, id, review)
	return args.Error(0)
}

type mockCart struct {
	mock.Mock
}

func (m *mockCart) AddToCart(ctx context.Context, id string, quantity int) error {
	args := m.Called(ctx, id, quantity)
	return args.Error(0)
}

type mockSearch struct {
	mock.Mock
}

func (m *mockSearch) Search(ctx context.Context, q string, page int) (*search.Result, error) {
	args := m.Called(ctx, q, page)
	if r := args.Get(0); r != nil {
		return r.(*search.Result), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, topic string, evt *kafka.Event) error {
	args := m.Called(ctx, topic, evt)
	return args.Error(0)
}

// ============================================================================
// Test helpers
// ============================================================================

const testVisitCookie = "sf_visit"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testEnv is one browser talking to a fully wired storefront router.
type testEnv struct {
	t        *testing.T
	products *mockProducts
	cart     *mockCart
	events   *mockPublisher
	search   *mockSearch
	verifier *identity.Verifier
	visits   *visit.Registry
	router   http.Handler

	visitCookie *http.Cookie
}

func newTestEnv(t *testing.T, settle time.Duration) *testEnv {
	t.Helper()
	logger := testLogger()

	env := &testEnv{
		t:        t,
		products: new(mockProducts),
		cart:     new(mockCart),
		events:   new(mockPublisher),
		search:   new(mockSearch),
		verifier: identity.NewVerifier("test-secret", ""),
	}
	env.events.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	sessions := identity.NewStore(env.verifier, nil, false, logger)
	env.visits = visit.NewRegistry(visit.Config{TTL: time.Minute, MaxVisits: 100}, func() *page.Loop {
		return page.NewLoop(env.products, env.cart, sessions, logger)
	}, logger)

	handler, err := NewStorefrontHandler(sessions, event.NewProducer(env.events, logger), env.search, settle, logger)
	require.NoError(t, err)

	env.router = NewRouter(RouterConfig{
		RequestTimeout: 5 * time.Second,
		VisitCookie:    testVisitCookie,
		VisitTTL:       time.Minute,
	}, handler, sessions, env.visits, middleware.NewLimiter(100, 100, time.Minute), health.NewHandler(time.Second), logger)
	return env
}

func (e *testEnv) send(req *http.Request) *httptest.ResponseRecorder {
	e.t.Helper()
	if e.visitCookie != nil {
		req.AddCookie(e.visitCookie)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == testVisitCookie {
			e.visitCookie = &http.Cookie{Name: c.Name, Value: c.Value}
		}
	}
	return rec
}

func (e *testEnv) get(target string, opts ...func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Accept", "text/html")
	for _, opt := range opts {
		opt(req)
	}
	return e.send(req)
}

func (e *testEnv) post(target string, form url.Values, opts ...func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/html")
	for _, opt := range opts {
		opt(req)
	}
	return e.send(req)
}

// signedIn attaches an access token cookie for a freshly issued session.
func (e *testEnv) signedIn(userID, name, role string) func(*http.Request) {
	token, err := e.verifier.Issue(userID, userID+"@example.com", name, role, time.Hour)
	require.NoError(e.t, err)
	return func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: identity.CookieName, Value: token})
	}
}

func asJSON(r *http.Request) {
	r.Header.Set("Accept", "application/json")
}

type productPayload struct {
	Data  productPage             `json:"data"`
	Error *httputil.ErrorResponse `json:"error"`
}

func decodeProduct(t *testing.T, rec *httptest.ResponseRecorder) productPayload {
	t.Helper()
	var resp productPayload
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *httputil.ErrorResponse {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.Error)
	return resp.Error
}

func sampleProduct() *domain.Product {
	return &domain.Product{
		ID:           "p1",
		Name:         "Airpods Wireless Bluetooth Headphones",
		Image:        "/images/airpods.jpg",
		Description:  "Bluetooth technology lets you connect it with compatible devices wirelessly",
		Price:        8999,
		Currency:     "USD",
		Rating:       4.5,
		NumReviews:   1,
		CountInStock: 3,
		Reviews: []domain.Review{
			{ID: "r1", Name: "Jane Doe", Rating: 5, Comment: "Great sound", CreatedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		},
	}
}

// ============================================================================
// Tests
// ============================================================================

func TestHome_GuestHeader(t *testing.T) {
	env := newTestEnv(t, time.Second)

	rec := env.get("/")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Equal(t, "private, no-store", rec.Header().Get("Cache-Control"))
	body := rec.Body.String()
	assert.Contains(t, body, header.Brand)
	assert.Contains(t, body, "Sign In")
	assert.NotContains(t, body, "Logout")
	assert.NotContains(t, body, "adminmenu")
}

func TestHome_AdminHeader(t *testing.T) {
	env := newTestEnv(t, time.Second)

	rec := env.get("/", env.signedIn("u-1", "Ada Admin", domain.RoleAdmin))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Ada Admin")
	assert.Contains(t, body, "Logout")
	assert.Contains(t, body, "adminmenu")
	assert.Contains(t, body, "/admin/orders")
	assert.NotContains(t, body, "Sign In")
}

func TestHome_JSON(t *testing.T) {
	env := newTestEnv(t, time.Second)

	rec := env.get("/", asJSON, env.signedIn("u-2", "Sam Shopper", domain.RoleCustomer))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data homePage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, header.StateUser, resp.Data.Header.State)
	require.NotNil(t, resp.Data.Header.Account)
	assert.Equal(t, "Sam Shopper", resp.Data.Header.Account.Title)
	assert.Nil(t, resp.Data.Header.Admin)
}

func TestShowProduct_Ready(t *testing.T) {
	env := newTestEnv(t, time.Second)
	env.products.On("FetchByID", mock.Anything, "p1").Return(sampleProduct(), nil).Once()

	rec := env.get("/products/p1")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Airpods Wireless Bluetooth Headphones")
	assert.Contains(t, body, "$89.99")
	assert.Contains(t, body, "In stock")
	assert.Contains(t, body, `<option value="1" selected>1</option>`)
	assert.Contains(t, body, `<option value="3">3</option>`)
	assert.Contains(t, body, "Great sound")
	assert.Contains(t, body, "sign in</a> to write a review")
	require.NotNil(t, env.visitCookie, "a new visit is handed to the browser")

	env.events.AssertCalled(t, "Publish", mock.Anything, event.TopicProductViewed, mock.Anything)
}

func TestShowProduct_ReloadRefetches(t *testing.T) {
	env := newTestEnv(t, time.Second)
	soldDown := sampleProduct()
	soldDown.CountInStock = 1
	env.products.On("FetchByID", mock.Anything, "p1").Return(sampleProduct(), nil).Once()
	env.products.On("FetchByID", mock.Anything, "p1").Return(soldDown, nil).Once()

	require.Equal(t, http.StatusOK, env.get("/products/p1").Code)
	rec := env.get("/products/p1", asJSON)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeProduct(t, rec)
	require.NotNil(t, resp.Data.Page.Product)
	assert.Equal(t, []int{1}, resp.Data.Page.Product.QuantityOptions)
	env.products.AssertNumberOfCalls(t, "FetchByID", 2)
	assert.Equal(t, 1, env.visits.Len())

	rec = env.post("/products/p1/cart", url.Values{"qty": {"2"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	env.cart.AssertNotCalled(t, "AddToCart", mock.Anything, mock.Anything, mock.Anything)
}

func TestShowProduct_TabsShowTheirOwnProduct(t *testing.T) {
	env := newTestEnv(t, time.Second)
	env.products.On("FetchByID", mock.Anything, "p0").Return(sampleProduct(), nil).Once()
	require.Equal(t, http.StatusOK, env.get("/products/p0").Code)
	require.NotNil(t, env.visitCookie)

	started := make(chan struct{})
	release := make(chan struct{})
	slow := sampleProduct()
	slow.ID, slow.Name = "p1", "Slow One"
	fast := sampleProduct()
	fast.ID, fast.Name = "p2", "Fast Two"
	env.products.On("FetchByID", mock.Anything, "p1").
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(slow, nil).Once()
	env.products.On("FetchByID", mock.Anything, "p2").Return(fast, nil).Once()

	firstTab := make(chan *httptest.ResponseRecorder, 1)
	go func() { firstTab <- env.get("/products/p1", asJSON) }()

	<-started
	rec := env.get("/products/p2", asJSON)
	close(release)

	require.Equal(t, http.StatusOK, rec.Code)
	second := decodeProduct(t, rec)
	require.NotNil(t, second.Data.Page.Product)
	assert.Equal(t, "p2", second.Data.Page.Product.ID)

	var slowRec *httptest.ResponseRecorder
	select {
	case slowRec = <-firstTab:
	case <-time.After(2 * time.Second):
		t.Fatal("first tab did not answer")
	}
	require.Equal(t, http.StatusOK, slowRec.Code)
	first := decodeProduct(t, slowRec)
	assert.Equal(t, "p1", first.Data.Page.ProductID)
	if first.Data.Page.Product != nil {
		assert.Equal(t, "p1", first.Data.Page.Product.ID)
		assert.Equal(t, "Slow One", first.Data.Page.Product.Name)
	}
}

func TestAddToCart_UsesProductOfItsOwnPage(t *testing.T) {
	env := newTestEnv(t, time.Second)
	other := sampleProduct()
	other.ID = "p2"
	env.products.On("FetchByID", mock.Anything, "p1").Return(sampleProduct(), nil).Once()
	env.products.On("FetchByID", mock.Anything, "p2").Return(other, nil).Once()
	env.cart.On("AddToCart", mock.Anything, "p1", 2).Return(nil).Once()

	require.Equal(t, http.StatusOK, env.get("/products/p1").Code)
	require.Equal(t, http.StatusOK, env.get("/products/p2").Code)
	rec := env.post("/products/p1/cart", url.Values{"qty": {"2"}})

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/cart", rec.Header().Get("Location"))
	env.cart.AssertExpectations(t)
	env.products.AssertNumberOfCalls(t, "FetchByID", 2)
}

func TestShowProduct_SeparateVisitsFetchSeparately(t *testing.T) {
	env := newTestEnv(t, time.Second)
	env.products.On("FetchByID", mock.Anything, "p1").Return(sampleProduct(), nil).Twice()

	require.Equal(t, http.StatusOK, env.get("/products/p1").Code)
	env.visitCookie = nil
	require.Equal(t, http.StatusOK, env.get("/products/p1").Code)

	env.products.AssertNumberOfCalls(t, "FetchByID", 2)
	assert.Equal(t, 2, env.visits.Len())
}

func TestShowProduct_FetchFailureRedirectsHome(t *testing.T) {
	env := newTestEnv(t, time.Second)
	env.products.On("FetchByID", mock.Anything, "missing").Return(nil, apperrors.NotFound("product", "missing")).Once()

	rec := env.get("/products/missing")

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestShowProduct_JSON(t *testing.T) {
	env := newTestEnv(t, time.Second)
	env.products.On("FetchByID", mock.Anything, "p1").Return(sampleProduct(), nil).Once()

	rec := env.get("/products/p1", asJSON)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeProduct(t, rec)
	assert.Nil(t, resp.Error)
	assert.Equal(t, header.StateGuest, resp.Data.Header.State)
	assert.Equal(t, "ready", resp.Data.Page.Phase)
	assert.False(t, resp.Data.Page.Loading)
	require.NotNil(t, resp.Data.Page.Product)
	assert.Equal(t, []int{1, 2, 3}, resp.Data.Page.Product.QuantityOptions)
	assert.True(t, resp.Data.Page.Product.CanAddToCart)
	assert.Equal(t, 1, resp.Data.Page.Form.Quantity)
	assert.True(t, resp.Data.Page.Review.SignInRequired)
}

func TestShowProduct_SlowFetchRendersLoading(t *testing.T) {
	env := newTestEnv(t, 20*time.Millisecond)
	release := make(chan struct{})
	env.products.On("FetchByID", mock.Anything, "p1").
		Run(func(mock.Arguments) { <-release }).
		Return(sampleProduct(), nil).Twice()

	rec := env.get("/products/p1")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Loading...")
	assert.Contains(t, rec.Body.String(), `http-equiv="refresh"`)
	assert.NotContains(t, rec.Body.String(), "Airpods")

	// The meta refresh lands while the fetch is still running.
	rec = env.get("/products/p1")
	assert.Contains(t, rec.Body.String(), "Loading...")

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, env.visits.Drain(ctx))

	rec = env.get("/products/p1")
	assert.Contains(t, rec.Body.String(), "Airpods")
	// One fetch for the first load and its refresh, one for the reload.
	env.products.AssertNumberOfCalls(t, "FetchByID", 2)
}

func TestAddToCart_RedirectsToCart(t *testing.T) {
	env := newTestEnv(t, time.Second)
	env.products.On("FetchByID", mock.Anything, "p1").Return(sampleProduct(), nil).Once()
	env.cart.On("AddToCart", mock.Anything, "p1", 2).Return(nil).Once()

	rec := env.post("/products/p1/cart", url.Values{"qty": {"2"}})

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/cart", rec.Header().Get("Location"))
	env.cart.AssertExpectations(t)
	env.events.AssertCalled(t, "Publish", mock.Anything, event.TopicCartItemAdded, mock.Anything)
}

func TestAddToCart_QuantityAboveStock(t *testing.T) {
	env := newTestEnv(t, time.Second)
	env.products.On("FetchByID", mock.Anything, "p1").Return(sampleProduct(), nil).Once()

	rec := env.post("/products/p1/cart", url.Values{"qty": {"5"}})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "selected quantity is not available")
	assert.Contains(t, rec.Body.String(), "Airpods")
	env.cart.AssertNotCalled(t, "AddToCart", mock.Anything, mock.Anything, mock.Anything)
}

func TestAddToCart_InvalidForm(t *testing.T) {
	tests := []struct {
		name    string
		qty     string
		message string
	}{
		{"not a number", "two", "qty must be a whole number"},
		{"zero", "0", "qty is required"},
		{"missing", "", "qty is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, time.Second)
			env.products.On("FetchByID", mock.Anything, "p1").Return(sampleProduct(), nil).Once()

			rec := env.post("/products/p1/cart", url.Values{"qty": {tt.qty}}, asJSON)

			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			resp := decodeProduct(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.message, resp.Error.Message)
			assert.Equal(t, "ready", resp.Data.Page.Phase)
			env.cart.AssertNotCalled(t, "AddToCart", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestAddToCart_OutOfStockHasNoQuantityControl(t *testing.T) {
	env := newTestEnv(t, time.Second)
	p := sampleProduct()
	p.CountInStock = 0
	env.products.On("FetchByID", mock.Anything, "p1").Return(p, nil).Once()

	rec := env.get("/products/p1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Out of stock")
	assert.NotContains(t, rec.Body.String(), `name="qty"`)
	assert.Contains(t, rec.Body.String(), "disabled>Add To Cart")

	rec = env.post("/products/p1/cart", url.Values{"qty": {"1"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	env.cart.AssertNotCalled(t, "AddToCart", mock.Anything, mock.Anything, mock.Anything)
}

func TestAddToCart_JSONBody(t *testing.T) {
	env := newTestEnv(t, time.Second)
	env.products.On("FetchByID", mock.Anything, "p1").Return(sampleProduct(), nil).Once()
	env.cart.On("AddToCart", mock.Anything, "p1", 3).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/products/p1/cart", strings.NewReader(`{"qty":3}`))
	req.Header.Set("Content-Type", "application/json")
	rec := env.send(req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/cart", rec.Header().Get("Location"))
	env.cart.AssertExpectations(t)
}

func TestSubmitReview_GuestIsAskedToSignIn(t *testing.T) {
	env := newTestEnv(t, time.Second)
	env.products.On("FetchByID", mock.Anything, "p1").Return(sampleProduct(), nil).Once()

	rec := env.post("/products/p1/reviews", url.Values{"rating": {"5"}, "comment": {"Love it"}})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "sign in to write a review")
	assert.NotContains(t, rec.Body.String(), `name="rating"`)
	env.products.AssertNotCalled(t, "SubmitReview", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitReview_AcceptedRefetchesAndClearsForm(t *testing.T) {
	env := newTestEnv(t, time.Second)
	shopper := env.signedIn("u-7", "Sam Shopper", domain.RoleCustomer)

	updated := sampleProduct()
	updated.NumReviews = 2
	updated.Reviews = append(updated.Reviews, domain.Review{ID: "r2", Name: "Sam Shopper", Rating: 4, Comment: "Nice buds"})

	env.products.On("FetchByID", mock.Anything, "p1").Return(sampleProduct(), nil).Once()
	env.products.On("FetchByID", mock.Anything, "p1").Return(updated, nil).Twice()
	env.products.On("SubmitReview", mock.Anything, "p1", domain.ReviewInput{Rating: 4, Comment: "Nice buds"}).Return(nil).Once()

	rec := env.post("/products/p1/reviews", url.Values{"rating": {"4"}, "comment": {"<b>Nice</b> buds"}}, shopper)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/products/p1", rec.Header().Get("Location"))
	env.products.AssertCalled(t, "SubmitReview", mock.Anything, "p1", domain.ReviewInput{Rating: 4, Comment: "Nice buds"})
	env.events.AssertCalled(t, "Publish", mock.Anything, event.TopicReviewSubmitted, mock.Anything)

	rec = env.get("/products/p1", asJSON, shopper)
	resp := decodeProduct(t, rec)
	require.NotNil(t, resp.Data.Page.Product)
	assert.Equal(t, 2, resp.Data.Page.Product.NumReviews)
	assert.Equal(t, domain.RatingUnset, resp.Data.Page.Form.Rating)
	assert.Empty(t, resp.Data.Page.Form.Comment)
	assert.Empty(t, resp.Data.Page.Review.Error)
	env.products.AssertExpectations(t)
}

func TestSubmitReview_RejectedShowsInlineError(t *testing.T) {
	env := newTestEnv(t, time.Second)
	shopper := env.signedIn("u-7", "Sam Shopper", domain.RoleCustomer)
	env.products.On("FetchByID", mock.Anything, "p1").Return(sampleProduct(), nil).Once()
	env.products.On("SubmitReview", mock.Anything, "p1", mock.Anything).
		Return(apperrors.Conflict("product already reviewed")).Once()

	rec := env.post("/products/p1/reviews", url.Values{"rating": {"3"}, "comment": {"Decent"}}, shopper)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "product already reviewed")
	assert.Contains(t, body, `<option value="3" selected>`)
	assert.Contains(t, body, ">Decent</textarea>")
	env.products.AssertNumberOfCalls(t, "FetchByID", 1)
}

func TestSubmitReview_RejectedJSON(t *testing.T) {
	env := newTestEnv(t, time.Second)
	shopper := env.signedIn("u-7", "Sam Shopper", domain.RoleCustomer)
	env.products.On("FetchByID", mock.Anything, "p1").Return(sampleProduct(), nil).Once()
	env.products.On("SubmitReview", mock.Anything, "p1", domain.ReviewInput{Rating: 0, Comment: ""}).
		Return(apperrors.InvalidInput("rating is required")).Once()

	rec := env.post("/products/p1/reviews", url.Values{"rating": {"0"}}, shopper, asJSON)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeProduct(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "REVIEW_REJECTED", resp.Error.Code)
	assert.Equal(t, "rating is required", resp.Data.Page.Review.Error)
	assert.False(t, resp.Data.Page.Review.Submitting)
}

func TestSubmitReview_RatingOutOfRange(t *testing.T) {
	env := newTestEnv(t, time.Second)
	shopper := env.signedIn("u-7", "Sam Shopper", domain.RoleCustomer)
	env.products.On("FetchByID", mock.Anything, "p1").Return(sampleProduct(), nil).Once()

	rec := env.post("/products/p1/reviews", url.Values{"rating": {"9"}}, shopper, asJSON)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeProduct(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Contains(t, resp.Error.Fields, "rating")
	env.products.AssertNotCalled(t, "SubmitReview", mock.Anything, mock.Anything, mock.Anything)
}

func TestSearch_ListsHits(t *testing.T) {
	env := newTestEnv(t, time.Second)
	env.search.On("Search", mock.Anything, "airpods", 2).Return(&search.Result{
		Query: "airpods",
		Hits: []search.Hit{
			{ID: "p1", Name: "Airpods Wireless", ImageURL: "/images/airpods.jpg", BasePrice: 8999, Currency: "USD"},
		},
		Total:   45,
		Page:    2,
		PerPage: search.PerPage,
	}, nil).Once()

	rec := env.get("/search?q=+airpods+&page=2")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `45 results for "airpods"`)
	assert.Contains(t, body, `href="/products/p1"`)
	assert.Contains(t, body, "$89.99")
	assert.Contains(t, body, `href="/search?page=1&amp;q=airpods"`)
	assert.Contains(t, body, `href="/search?page=3&amp;q=airpods"`)
	env.search.AssertExpectations(t)
}

func TestSearch_JSON(t *testing.T) {
	env := newTestEnv(t, time.Second)
	env.search.On("Search", mock.Anything, "case", 1).Return(&search.Result{
		Query:   "case",
		Hits:    []search.Hit{{ID: "p2", Name: "Airpods Case", BasePrice: 1299, Currency: "USD"}},
		Total:   1,
		Page:    1,
		PerPage: search.PerPage,
	}, nil).Once()

	rec := env.get("/search?q=case", asJSON)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data searchPage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, []searchHit{{ID: "p2", Name: "Airpods Case", Price: "$12.99", Path: "/products/p2"}}, resp.Data.Results)
	assert.Equal(t, 1, resp.Data.Pages)
	assert.Empty(t, resp.Data.PrevURL)
	assert.Empty(t, resp.Data.NextURL)
	assert.Equal(t, domain.RouteSearch, resp.Data.Header.Search)
}

func TestSearch_NoResults(t *testing.T) {
	env := newTestEnv(t, time.Second)
	env.search.On("Search", mock.Anything, "zzz", 1).Return(&search.Result{Query: "zzz", Hits: []search.Hit{}, Page: 1, PerPage: search.PerPage}, nil).Once()

	rec := env.get("/search?q=zzz")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No products found")
}

func TestSearch_InvalidPage(t *testing.T) {
	env := newTestEnv(t, time.Second)

	rec := env.get("/search?q=airpods&page=abc", asJSON)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "INVALID_INPUT", resp.Code)
	assert.Equal(t, "page must be a positive number", resp.Message)
	env.search.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything)
}

func TestSearch_IndexDownRendersNotice(t *testing.T) {
	env := newTestEnv(t, time.Second)
	env.search.On("Search", mock.Anything, "airpods", 1).
		Return(nil, apperrors.ServiceUnavailable("search", errors.New("connection refused"))).Once()

	rec := env.get("/search?q=airpods")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "search is temporarily unavailable")
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestLogout_ClearsCookieAndRedirects(t *testing.T) {
	env := newTestEnv(t, time.Second)

	rec := env.post("/logout", url.Values{}, env.signedIn("u-7", "Sam Shopper", domain.RoleCustomer))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	var cleared *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == identity.CookieName {
			cleared = c
		}
	}
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Negative(t, cleared.MaxAge)
}

func TestLogout_JSONReturnsGuestHeader(t *testing.T) {
	env := newTestEnv(t, time.Second)

	rec := env.post("/logout", url.Values{}, env.signedIn("u-7", "Sam Shopper", domain.RoleCustomer), asJSON)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data homePage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, header.StateGuest, resp.Data.Header.State)
	assert.NotNil(t, resp.Data.Header.SignIn)
}

func TestVisitCookie_UnknownVisitIsReplaced(t *testing.T) {
	env := newTestEnv(t, time.Second)
	env.visitCookie = &http.Cookie{Name: testVisitCookie, Value: "not-a-uuid"}

	env.get("/")

	require.NotNil(t, env.visitCookie)
	assert.NotEqual(t, "not-a-uuid", env.visitCookie.Value)
	assert.Len(t, env.visitCookie.Value, 36)
}

func TestHealthRoutesSkipVisits(t *testing.T) {
	env := newTestEnv(t, time.Second)

	rec := env.get("/health/live")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, env.visitCookie)
	assert.Zero(t, env.visits.Len())
}
