package api

import (
	"context"
	"errors"

	"storefront/internal/apperr"
	"storefront/internal/cart"
	"storefront/internal/catalog"
	"storefront/internal/checkout"
	"storefront/internal/promo"
	"storefront/internal/service"
	"storefront/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// classify maps lower-layer errors onto the error taxonomy. Errors nothing
// recognises get the fallback kind.
func classify(err error, fallback apperr.Kind) *apperr.Error {
	if typed := apperr.As(err); typed != nil {
		return typed
	}

	var verr *checkout.ValidationError
	if errors.As(err, &verr) {
		return apperr.Validation(verr.Fields, err)
	}
	var invalidPromo *promo.InvalidCodeError
	if errors.As(err, &invalidPromo) {
		return apperr.Wrap(apperr.KindDomain, err, invalidPromo.Message)
	}

	switch {
	case errors.Is(err, promo.ErrEmptyCode):
		return apperr.Validation(map[string]string{"code": "Please enter a promo code"}, err)
	case errors.Is(err, checkout.ErrTermsNotAccepted):
		return apperr.Wrap(apperr.KindDomain, err, checkout.TermsPrompt)
	case errors.Is(err, checkout.ErrGuestEmailRequired):
		return apperr.Validation(map[string]string{"email": "Email is required for order confirmation"}, err)
	case errors.Is(err, checkout.ErrEmptyCart):
		return apperr.Wrap(apperr.KindDomain, err, "Your cart is empty")
	case errors.Is(err, checkout.ErrUnavailableItems):
		return apperr.Wrap(apperr.KindConflict, err, "Some items in your cart are unavailable. Remove them to continue.")
	case errors.Is(err, checkout.ErrSubmissionInFlight):
		return apperr.Wrap(apperr.KindConflict, err, "Your order is already being processed")
	case errors.Is(err, checkout.ErrOrderPlaced):
		return apperr.Wrap(apperr.KindConflict, err, "This order has already been placed")
	case errors.Is(err, checkout.ErrWrongStep), errors.Is(err, checkout.ErrCannotEditForward):
		return apperr.Wrap(apperr.KindConflict, err, "Complete the checkout steps in order")
	case errors.Is(err, service.ErrNoCheckout):
		return apperr.Wrap(apperr.KindNotFound, err, "No checkout in progress")
	case errors.Is(err, cart.ErrItemNotFound):
		return apperr.Wrap(apperr.KindNotFound, err, "Item not found in cart")
	case errors.Is(err, cart.ErrQuantityOutOfRange):
		return apperr.Validation(map[string]string{"quantity": "Quantity is not available"}, err)
	case errors.Is(err, cart.ErrProductOutOfStock):
		return apperr.Wrap(apperr.KindConflict, err, "This product is out of stock")
	case errors.Is(err, service.ErrInvalidVariant):
		return apperr.Validation(map[string]string{"variants": "Select a valid option"}, err)
	case errors.Is(err, catalog.ErrProductNotFound):
		return apperr.Wrap(apperr.KindNotFound, err, "Product not found")
	case errors.Is(err, store.ErrOrderNotFound):
		return apperr.Wrap(apperr.KindNotFound, err, "Order not found")
	case errors.Is(err, context.DeadlineExceeded):
		return apperr.Wrap(apperr.KindConnectivity, err, "")
	}

	return apperr.Wrap(fallback, err, "")
}

func badRequest(field, message string) *apperr.Error {
	return apperr.Validation(map[string]string{field: message}, nil)
}

// respondError renders err as {"error", "kind", "retryable", "fields"}.
func (h *Handler) respondError(c *gin.Context, err error, fallback apperr.Kind) {
	appErr := classify(err, fallback)
	meta := apperr.MetadataFor(appErr.Kind())

	switch appErr.Kind() {
	case apperr.KindInternal, apperr.KindProcessing, apperr.KindConnectivity:
		h.logger.Error("request failed", append(apperr.DumpOf(err).Fields(),
			zap.String("path", c.FullPath()),
			zap.String("session_id", sessionID(c)))...)
	default:
		h.logger.Debug("request rejected", zap.String("kind", string(appErr.Kind())), zap.Error(err))
	}

	body := gin.H{
		"error":     appErr.Message(),
		"kind":      appErr.Kind(),
		"retryable": meta.Retryable,
	}
	if meta.DetailsAllowed && len(appErr.Fields()) > 0 {
		body["fields"] = appErr.Fields()
	}
	c.AbortWithStatusJSON(appErr.Status(), body)
}
