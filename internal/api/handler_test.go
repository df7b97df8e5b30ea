package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"storefront/internal/apperr"
	"storefront/internal/cart"
	"storefront/internal/catalog"
	"storefront/internal/checkout"
	"storefront/internal/identity"
	"storefront/internal/models"
	"storefront/internal/promo"
	"storefront/internal/service"
	"storefront/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCarts struct {
	Carts
	addErr   error
	promoErr error
	count    int
}

func (s *stubCarts) View(context.Context, string) (*service.CartView, error) {
	return &service.CartView{}, nil
}

func (s *stubCarts) Count(context.Context, string) (int, error) {
	return s.count, nil
}

func (s *stubCarts) AddItem(_ context.Context, _ string, productID int64, quantity int, _ map[string]string) (models.LineItem, error) {
	if s.addErr != nil {
		return models.LineItem{}, s.addErr
	}
	return models.LineItem{ID: "line-1", ProductID: productID, Quantity: quantity}, nil
}

func (s *stubCarts) ApplyPromo(_ context.Context, _ string, code string) (models.PromoState, error) {
	if s.promoErr != nil {
		return models.PromoState{}, s.promoErr
	}
	v, _ := promo.NewValidator(promo.DefaultTable())
	return v.Lookup(code)
}

type stubCheckout struct {
	Checkouts
	err     error
	gotKey  string
	gotTerm bool
}

func (s *stubCheckout) SubmitShipping(context.Context, string, models.ShippingAddress) (checkout.State, error) {
	return checkout.State{}, s.err
}

func (s *stubCheckout) PlaceOrder(_ context.Context, _ string, terms bool, key string) (*models.Order, error) {
	s.gotKey, s.gotTerm = key, terms
	if s.err != nil {
		return nil, s.err
	}
	return &models.Order{OrderID: "ORD-1", Status: models.OrderStatusPlaced}, nil
}

type stubAccounts struct {
	Accounts
	user *identity.User
	err  error
}

func (s *stubAccounts) CurrentUser(context.Context, string) (*identity.User, error) {
	return s.user, s.err
}

func (s *stubAccounts) SignIn(context.Context, string, string, string) (*identity.Session, error) {
	return nil, s.err
}

type stubOrders struct {
	Orders
	owners map[string]string
}

func (s *stubOrders) GetOrder(_ context.Context, sessionID, orderID string) (*models.Order, []models.OrderItem, error) {
	if owner, ok := s.owners[orderID]; !ok || owner != sessionID {
		return nil, nil, store.ErrOrderNotFound
	}
	return &models.Order{OrderID: orderID, Email: "ada@example.com"}, []models.OrderItem{{OrderID: orderID, ProductID: 2, Quantity: 1}}, nil
}

type stubSessions struct {
	touched []string
	err     error
}

func (s *stubSessions) TouchSession(_ context.Context, sessionID string) error {
	s.touched = append(s.touched, sessionID)
	return s.err
}

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type fixture struct {
	router   *gin.Engine
	carts    *stubCarts
	checkout *stubCheckout
	orders   *stubOrders
	accounts *stubAccounts
	sessions *stubSessions
}

func newFixture() *fixture {
	gin.SetMode(gin.TestMode)
	f := &fixture{
		carts:    &stubCarts{},
		checkout: &stubCheckout{},
		orders:   &stubOrders{owners: map[string]string{}},
		accounts: &stubAccounts{},
		sessions: &stubSessions{},
	}
	h := NewHandler(Deps{
		Catalog:  catalog.NewMemorySource(catalog.SeedProducts()),
		Carts:    f.carts,
		Checkout: f.checkout,
		Orders:   f.orders,
		Accounts: f.accounts,
		Sessions: f.sessions,
		Ready: map[string]Pinger{
			"redis": pingerFunc(func(context.Context) error { return nil }),
		},
	})
	f.router = gin.New()
	h.SetupRoutes(f.router)
	return f
}

func (f *fixture) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealthAndReady(t *testing.T) {
	f := newFixture()

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/ready", "").Code)
}

func TestReadyReportsFailingDependency(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHandler(Deps{Ready: map[string]Pinger{
		"postgres": pingerFunc(func(context.Context) error { return errors.New("connection refused") }),
	}})
	router := gin.New()
	h.SetupRoutes(router)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "not_ready", decode(t, w)["status"])
}

func TestSessionIssuedAndReused(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodGet, "/api/v1/cart", "")
	require.Equal(t, http.StatusOK, w.Code)
	issued := w.Header().Get(SessionHeader)
	assert.Len(t, issued, 36)
	assert.Contains(t, w.Header().Get("Set-Cookie"), SessionCookie+"="+issued)

	w = f.do(http.MethodGet, "/api/v1/cart", "", SessionHeader, "session-abc123")
	assert.Equal(t, "session-abc123", w.Header().Get(SessionHeader))

	w = f.do(http.MethodGet, "/api/v1/cart", "", SessionHeader, "bad id!")
	assert.NotEqual(t, "bad id!", w.Header().Get(SessionHeader))

	assert.Equal(t, []string{"session-abc123"}, f.sessions.touched)
}

func TestSessionTouchFailureDoesNotBlock(t *testing.T) {
	f := newFixture()
	f.sessions.err = errors.New("redis down")

	w := f.do(http.MethodGet, "/api/v1/cart", "", SessionHeader, "session-abc123")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"session-abc123"}, f.sessions.touched)
}

func TestCartCount(t *testing.T) {
	f := newFixture()
	f.carts.count = 3

	w := f.do(http.MethodGet, "/api/v1/cart/count", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), decode(t, w)["count"])
}

func TestGetOrderOnlyForOwningSession(t *testing.T) {
	f := newFixture()
	f.orders.owners["ORD-1700000000000-ABC123"] = "session-alice1"

	w := f.do(http.MethodGet, "/api/v1/orders/ORD-1700000000000-ABC123", "", SessionHeader, "session-alice1")
	require.Equal(t, http.StatusOK, w.Code)
	order := decode(t, w)["order"].(map[string]interface{})
	assert.Equal(t, "ORD-1700000000000-ABC123", order["order_id"])

	w = f.do(http.MethodGet, "/api/v1/orders/ORD-1700000000000-ABC123", "", SessionHeader, "session-bob123")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotContains(t, w.Body.String(), "ada@example.com")
}

func TestListProductsFiltersAndSorts(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodGet, "/api/v1/products?category=electronics&sort=price-low-high&in_stock=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(2), body["active_filters"])

	products := body["products"].([]interface{})
	require.NotEmpty(t, products)
	for _, p := range products {
		assert.Equal(t, "electronics", p.(map[string]interface{})["category"])
	}

	w = f.do(http.MethodGet, "/api/v1/products?sort=cheapest", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "validation", decode(t, w)["kind"])

	w = f.do(http.MethodGet, "/api/v1/products?min_price=abc", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestGetProduct(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodGet, "/api/v1/products/4", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode(t, w)["variants"], "color")

	w = f.do(http.MethodGet, "/api/v1/products/999", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Product not found", decode(t, w)["error"])

	assert.Equal(t, http.StatusUnprocessableEntity, f.do(http.MethodGet, "/api/v1/products/abc", "").Code)
}

func TestAddCartItem(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodPost, "/api/v1/cart/items", `{"product_id": 2}`)
	require.Equal(t, http.StatusCreated, w.Code)
	item := decode(t, w)["item"].(map[string]interface{})
	assert.Equal(t, float64(1), item["quantity"])

	f.carts.addErr = cart.ErrProductOutOfStock
	w = f.do(http.MethodPost, "/api/v1/cart/items", `{"product_id": 5}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	assert.Equal(t, http.StatusUnprocessableEntity, f.do(http.MethodPost, "/api/v1/cart/items", `{}`).Code)
}

func TestApplyPromo(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodPost, "/api/v1/cart/promo", `{"code": "welcome20"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Promo code applied! 20% discount", decode(t, w)["message"])

	w = f.do(http.MethodPost, "/api/v1/cart/promo", `{"code": "NOPE"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, "domain", body["kind"])
	assert.Equal(t, "Invalid promo code. Try FIRST15, SAVE10, or WELCOME20", body["error"])
}

func TestCheckoutValidationFields(t *testing.T) {
	f := newFixture()
	f.checkout.err = &checkout.ValidationError{Fields: map[string]string{"zip_code": "ZIP code is required"}}

	w := f.do(http.MethodPut, "/api/v1/checkout/shipping", `{"first_name": "Ada"}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	fields := decode(t, w)["fields"].(map[string]interface{})
	assert.Equal(t, "ZIP code is required", fields["zip_code"])
}

func TestPlaceOrder(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodPost, "/api/v1/checkout/order", `{"accept_terms": true}`, idempotencyHeader, "key-1")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "key-1", f.checkout.gotKey)
	assert.True(t, f.checkout.gotTerm)

	f.checkout.err = checkout.ErrTermsNotAccepted
	w = f.do(http.MethodPost, "/api/v1/checkout/order", `{"accept_terms": false}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, checkout.TermsPrompt, decode(t, w)["error"])

	f.checkout.err = checkout.ErrSubmissionInFlight
	assert.Equal(t, http.StatusConflict, f.do(http.MethodPost, "/api/v1/checkout/order", `{"accept_terms": true}`).Code)

	f.checkout.err = errors.New("insert order: connection reset")
	w = f.do(http.MethodPost, "/api/v1/checkout/order", `{"accept_terms": true}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	body := decode(t, w)
	assert.Equal(t, "processing", body["kind"])
	assert.Equal(t, true, body["retryable"])
}

func TestAuthErrors(t *testing.T) {
	f := newFixture()

	f.accounts.err = apperr.Wrap(apperr.KindConnectivity, errors.New("dial tcp"), identity.ConnectivityMessage)
	w := f.do(http.MethodPost, "/api/v1/auth/signin", `{"email": "a@b.co", "password": "pw"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, identity.ConnectivityMessage, decode(t, w)["error"])

	f.accounts.err = identity.Classify(identity.OpSignIn, &identity.APIError{Status: http.StatusBadRequest, Message: "Invalid login credentials"})
	w = f.do(http.MethodPost, "/api/v1/auth/signin", `{"email": "a@b.co", "password": "bad"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid login credentials", decode(t, w)["error"])
}

func TestSessionViewer(t *testing.T) {
	f := newFixture()

	body := decode(t, f.do(http.MethodGet, "/api/v1/auth/session", ""))
	assert.Equal(t, false, body["authenticated"])

	f.accounts.user = &identity.User{ID: "u1", Email: "ada@example.com", Metadata: identity.UserMetadata{Role: identity.RoleAdmin}}
	body = decode(t, f.do(http.MethodGet, "/api/v1/auth/session", ""))
	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, identity.RoleAdmin, body["role"])
}

func TestClassifyFallback(t *testing.T) {
	assert.Equal(t, apperr.KindInternal, classify(errors.New("x"), apperr.KindInternal).Kind())
	assert.Equal(t, apperr.KindNotFound, classify(service.ErrNoCheckout, apperr.KindInternal).Kind())
	assert.Equal(t, apperr.KindConnectivity, classify(context.DeadlineExceeded, apperr.KindProcessing).Kind())
}
