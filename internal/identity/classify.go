package identity

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"storefront/internal/apperr"
)

// Op names an identity operation for error reporting
type Op string

const (
	OpSession       Op = "session"
	OpSignUp        Op = "sign_up"
	OpSignIn        Op = "sign_in"
	OpOAuth         Op = "oauth"
	OpSignOut       Op = "sign_out"
	OpResetPassword Op = "reset_password"
	OpUpdateProfile Op = "update_profile"
	OpResend        Op = "resend_verification"
)

// ConnectivityMessage is shown when the identity backend cannot be reached.
const ConnectivityMessage = "Cannot connect to authentication service. Please check your connection and try again."

var fallbackMessages = map[Op]string{
	OpSession:       "Failed to initialize authentication",
	OpSignUp:        "Failed to create account",
	OpSignIn:        "Failed to sign in",
	OpOAuth:         "Failed to sign in with provider",
	OpSignOut:       "Failed to sign out",
	OpResetPassword: "Failed to send reset email",
	OpUpdateProfile: "Failed to update profile",
	OpResend:        "Failed to resend verification email",
}

var connectivityMarkers = []string{"Failed to fetch", "AuthRetryableFetchError"}

// Classify separates connectivity failures from domain failures and attaches
// the message the shopper should see.
func Classify(op Op, err error) *apperr.Error {
	if err == nil {
		return nil
	}
	if typed := apperr.As(err); typed != nil {
		return typed
	}

	switch {
	case errors.Is(err, ErrNotAuthenticated):
		return apperr.Wrap(apperr.KindDomain, err, "Please sign in to continue").WithStatus(http.StatusUnauthorized)
	case errors.Is(err, ErrSessionExpired):
		return apperr.Wrap(apperr.KindDomain, err, "Your session has expired. Please sign in again.").WithStatus(http.StatusUnauthorized)
	case IsConnectivity(err):
		return apperr.Wrap(apperr.KindConnectivity, err, ConnectivityMessage)
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = fallbackMessages[op]
		}
		return apperr.Wrap(apperr.KindDomain, err, msg).WithStatus(apiErr.Status)
	}

	msg, ok := fallbackMessages[op]
	if !ok {
		msg = "Authentication request failed"
	}
	return apperr.Wrap(apperr.KindDomain, err, msg)
}

// IsConnectivity reports whether err means the backend could not be reached
// or answered with a transient server failure.
func IsConnectivity(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}

	msg := err.Error()
	for _, marker := range connectivityMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusInternalServerError || apiErr.Status == 0
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
