package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/catalog"
	"storefront/internal/checkout"
	"storefront/internal/identity"
	"storefront/internal/models"
	"storefront/internal/service"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Carts is the cart and wishlist surface
type Carts interface {
	View(ctx context.Context, sessionID string) (*service.CartView, error)
	Count(ctx context.Context, sessionID string) (int, error)
	AddItem(ctx context.Context, sessionID string, productID int64, quantity int, variants map[string]string) (models.LineItem, error)
	UpdateQuantity(ctx context.Context, sessionID, itemID string, quantity int) error
	RemoveItem(ctx context.Context, sessionID, itemID string) error
	SaveForLater(ctx context.Context, sessionID, itemID string) (models.LineItem, error)
	SaveAllForLater(ctx context.Context, sessionID string) ([]models.LineItem, error)
	Clear(ctx context.Context, sessionID, reason string) error
	ApplyPromo(ctx context.Context, sessionID, code string) (models.PromoState, error)
	Wishlist(ctx context.Context, sessionID string) ([]models.Product, error)
	AddToWishlist(ctx context.Context, sessionID string, productID int64) error
	RemoveFromWishlist(ctx context.Context, sessionID string, productID int64) error
}

// Checkouts drives the checkout steps
type Checkouts interface {
	Enter(ctx context.Context, sessionID, guestEmail string) (checkout.State, error)
	State(ctx context.Context, sessionID string) (checkout.State, error)
	SubmitShipping(ctx context.Context, sessionID string, addr models.ShippingAddress) (checkout.State, error)
	SubmitPayment(ctx context.Context, sessionID string, method models.PaymentMethod) (checkout.State, error)
	Edit(ctx context.Context, sessionID string, step checkout.Step) (checkout.State, error)
	PlaceOrder(ctx context.Context, sessionID string, termsAccepted bool, idempotencyKey string) (*models.Order, error)
}

// Orders looks up placed orders
type Orders interface {
	GetOrder(ctx context.Context, sessionID, orderID string) (*models.Order, []models.OrderItem, error)
	LastOrder(ctx context.Context, sessionID string) (*models.Order, error)
}

// Accounts is the identity surface
type Accounts interface {
	CurrentUser(ctx context.Context, sessionID string) (*identity.User, error)
	SignUp(ctx context.Context, sessionID, email, password string, meta identity.UserMetadata) (*identity.SignUpResult, error)
	SignIn(ctx context.Context, sessionID, email, password string) (*identity.Session, error)
	OAuthURL(ctx context.Context, provider string) (string, error)
	SignOut(ctx context.Context, sessionID string) error
	ResetPassword(ctx context.Context, email string) error
	UpdateProfile(ctx context.Context, sessionID string, update identity.UserUpdate) (*identity.User, error)
	ResendVerification(ctx context.Context, sessionID string) error
}

// Sessions keeps shopper session state alive while it is in use
type Sessions interface {
	TouchSession(ctx context.Context, sessionID string) error
}

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services behind the HTTP API
type Deps struct {
	Catalog  catalog.Source
	Carts    Carts
	Checkout Checkouts
	Orders   Orders
	Accounts Accounts
	Sessions Sessions
	// Ready is checked by /ready, keyed by dependency name.
	Ready    map[string]Pinger
}

// Handler contains HTTP handlers
type Handler struct {
	deps   Deps
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(deps Deps) *Handler {
	return &Handler{
		deps:   deps,
		logger: util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger(h.logger))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)
	}

	sess := v1.Group("", h.sessionMiddleware())
	{
		sess.GET("/cart", h.getCart)
		sess.GET("/cart/count", h.getCartCount)
		sess.POST("/cart/items", h.addCartItem)
		sess.PATCH("/cart/items/:id", h.updateCartItem)
		sess.DELETE("/cart/items/:id", h.removeCartItem)
		sess.POST("/cart/items/:id/save-for-later", h.saveItemForLater)
		sess.POST("/cart/save-for-later", h.saveAllForLater)
		sess.DELETE("/cart", h.clearCart)
		sess.POST("/cart/promo", h.applyPromo)

		sess.GET("/wishlist", h.getWishlist)
		sess.PUT("/wishlist/:productId", h.addToWishlist)
		sess.DELETE("/wishlist/:productId", h.removeFromWishlist)

		sess.POST("/checkout", h.enterCheckout)
		sess.GET("/checkout", h.getCheckout)
		sess.PUT("/checkout/shipping", h.submitShipping)
		sess.PUT("/checkout/payment", h.submitPayment)
		sess.POST("/checkout/edit", h.editCheckout)
		sess.POST("/checkout/order", h.placeOrder)

		sess.GET("/orders/last", h.getLastOrder)
		sess.GET("/orders/:id", h.getOrder)

		sess.GET("/auth/session", h.getSession)
		sess.POST("/auth/signup", h.signUp)
		sess.POST("/auth/signin", h.signIn)
		sess.GET("/auth/oauth/:provider", h.oauthRedirect)
		sess.POST("/auth/signout", h.signOut)
		sess.POST("/auth/reset-password", h.resetPassword)
		sess.PUT("/auth/profile", h.updateProfile)
		sess.POST("/auth/resend", h.resendVerification)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.deps.Ready))
	ready := true
	for name, p := range h.deps.Ready {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	status, label := http.StatusOK, "ready"
	if !ready {
		status, label = http.StatusServiceUnavailable, "not_ready"
	}
	c.JSON(status, gin.H{
		"status": label,
		"checks": checks,
		"time":   time.Now().Unix(),
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		util.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
		util.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
