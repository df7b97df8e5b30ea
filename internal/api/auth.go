package api

import (
	"net/http"

	"storefront/internal/apperr"
	"storefront/internal/identity"

	"github.com/gin-gonic/gin"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type resetRequest struct {
	Email string `json:"email"`
}

type profileRequest struct {
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

// viewer is the session's identity as shown to the storefront
type viewer struct {
	Authenticated bool           `json:"authenticated"`
	EmailVerified bool           `json:"email_verified"`
	Role          string         `json:"role,omitempty"`
	User          *identity.User `json:"user,omitempty"`
}

func newViewer(u *identity.User) viewer {
	if u == nil {
		return viewer{}
	}
	return viewer{
		Authenticated: true,
		EmailVerified: u.EmailVerified(),
		Role:          u.Role(),
		User:          u,
	}
}

func (h *Handler) getSession(c *gin.Context) {
	user, err := h.deps.Accounts.CurrentUser(c.Request.Context(), sessionID(c))
	if err != nil {
		h.respondError(c, err, apperr.KindInternal)
		return
	}
	c.JSON(http.StatusOK, newViewer(user))
}

func (h *Handler) signUp(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, badRequest("email", "Invalid request body"), apperr.KindValidation)
		return
	}

	meta := identity.UserMetadata{FullName: req.FullName, Role: identity.RoleCustomer}
	result, err := h.deps.Accounts.SignUp(c.Request.Context(), sessionID(c), req.Email, req.Password, meta)
	if err != nil {
		h.respondError(c, err, apperr.KindInternal)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"viewer":                   newViewer(signedIn(result)),
		"needs_email_verification": result.NeedsEmailVerification,
	})
}

func (h *Handler) signIn(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, badRequest("email", "Invalid request body"), apperr.KindValidation)
		return
	}

	session, err := h.deps.Accounts.SignIn(c.Request.Context(), sessionID(c), req.Email, req.Password)
	if err != nil {
		h.respondError(c, err, apperr.KindInternal)
		return
	}
	c.JSON(http.StatusOK, newViewer(&session.User))
}

func (h *Handler) oauthRedirect(c *gin.Context) {
	url, err := h.deps.Accounts.OAuthURL(c.Request.Context(), c.Param("provider"))
	if err != nil {
		h.respondError(c, err, apperr.KindInternal)
		return
	}
	c.Redirect(http.StatusFound, url)
}

func (h *Handler) signOut(c *gin.Context) {
	if err := h.deps.Accounts.SignOut(c.Request.Context(), sessionID(c)); err != nil {
		h.respondError(c, err, apperr.KindInternal)
		return
	}
	c.JSON(http.StatusOK, newViewer(nil))
}

func (h *Handler) resetPassword(c *gin.Context) {
	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, badRequest("email", "Invalid request body"), apperr.KindValidation)
		return
	}
	if err := h.deps.Accounts.ResetPassword(c.Request.Context(), req.Email); err != nil {
		h.respondError(c, err, apperr.KindInternal)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Check your email for a password reset link"})
}

func (h *Handler) updateProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, badRequest("password", "Invalid request body"), apperr.KindValidation)
		return
	}

	update := identity.UserUpdate{Password: req.Password}
	if req.FullName != "" {
		update.Data = &identity.UserMetadata{FullName: req.FullName}
	}
	user, err := h.deps.Accounts.UpdateProfile(c.Request.Context(), sessionID(c), update)
	if err != nil {
		h.respondError(c, err, apperr.KindInternal)
		return
	}
	c.JSON(http.StatusOK, newViewer(user))
}

func (h *Handler) resendVerification(c *gin.Context) {
	if err := h.deps.Accounts.ResendVerification(c.Request.Context(), sessionID(c)); err != nil {
		h.respondError(c, err, apperr.KindInternal)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Verification email sent"})
}

func signedIn(result *identity.SignUpResult) *identity.User {
	if result.Session == nil {
		return nil
	}
	return &result.Session.User
}
