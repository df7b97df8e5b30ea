package api

import (
	"errors"
	"io"
	"net/http"

	"storefront/internal/apperr"
	"storefront/internal/checkout"
	"storefront/internal/models"
	"storefront/internal/store"

	"github.com/gin-gonic/gin"
)

type enterCheckoutRequest struct {
	GuestEmail string `json:"guest_email"`
}

type editRequest struct {
	Step string `json:"step" binding:"required"`
}

type placeOrderRequest struct {
	AcceptTerms    bool   `json:"accept_terms"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (h *Handler) enterCheckout(c *gin.Context) {
	var req enterCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.respondError(c, badRequest("guest_email", "Invalid request body"), apperr.KindValidation)
		return
	}

	state, err := h.deps.Checkout.Enter(c.Request.Context(), sessionID(c), req.GuestEmail)
	if err != nil {
		h.respondError(c, err, apperr.KindInternal)
		return
	}
	c.JSON(http.StatusCreated, state)
}

func (h *Handler) getCheckout(c *gin.Context) {
	state, err := h.deps.Checkout.State(c.Request.Context(), sessionID(c))
	if err != nil {
		h.respondError(c, err, apperr.KindInternal)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *Handler) submitShipping(c *gin.Context) {
	var addr models.ShippingAddress
	if err := c.ShouldBindJSON(&addr); err != nil {
		h.respondError(c, badRequest("address", "Invalid request body"), apperr.KindValidation)
		return
	}

	state, err := h.deps.Checkout.SubmitShipping(c.Request.Context(), sessionID(c), addr)
	if err != nil {
		h.respondError(c, err, apperr.KindInternal)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *Handler) submitPayment(c *gin.Context) {
	var method models.PaymentMethod
	if err := c.ShouldBindJSON(&method); err != nil {
		h.respondError(c, badRequest("kind", "Invalid request body"), apperr.KindValidation)
		return
	}

	state, err := h.deps.Checkout.SubmitPayment(c.Request.Context(), sessionID(c), method)
	if err != nil {
		h.respondError(c, err, apperr.KindInternal)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *Handler) editCheckout(c *gin.Context) {
	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, badRequest("step", "Select a step"), apperr.KindValidation)
		return
	}
	step, err := checkout.ParseStep(req.Step)
	if err != nil {
		h.respondError(c, badRequest("step", "Unknown checkout step"), apperr.KindValidation)
		return
	}

	state, err := h.deps.Checkout.Edit(c.Request.Context(), sessionID(c), step)
	if err != nil {
		h.respondError(c, err, apperr.KindInternal)
		return
	}
	c.JSON(http.StatusOK, state)
}

// placeOrder submits the order. Unrecognised failures are processing
// errors: the shopper stays on review with the cart intact.
func (h *Handler) placeOrder(c *gin.Context) {
	var req placeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, badRequest("accept_terms", "Invalid request body"), apperr.KindValidation)
		return
	}
	key := c.GetHeader(idempotencyHeader)
	if key == "" {
		key = req.IdempotencyKey
	}

	order, err := h.deps.Checkout.PlaceOrder(c.Request.Context(), sessionID(c), req.AcceptTerms, key)
	if err != nil {
		h.respondError(c, err, apperr.KindProcessing)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order": order})
}

func (h *Handler) getLastOrder(c *gin.Context) {
	order, err := h.deps.Orders.LastOrder(c.Request.Context(), sessionID(c))
	if err != nil {
		h.respondError(c, err, apperr.KindInternal)
		return
	}
	if order == nil {
		h.respondError(c, store.ErrOrderNotFound, apperr.KindNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (h *Handler) getOrder(c *gin.Context) {
	order, items, err := h.deps.Orders.GetOrder(c.Request.Context(), sessionID(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err, apperr.KindInternal)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order": order,
		"items": items,
	})
}
