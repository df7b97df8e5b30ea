package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNotAuthenticated = errors.New("no authenticated user")
	ErrSessionExpired   = errors.New("session expired")
)

// Roles
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// UserMetadata is the profile data attached to an account at sign up
type UserMetadata struct {
	FullName      string `json:"full_name,omitempty"`
	Role          string `json:"role,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
}

// User is an account as reported by the identity backend
type User struct {
	ID               string       `json:"id"`
	Email            string       `json:"email"`
	EmailConfirmedAt *time.Time   `json:"email_confirmed_at,omitempty"`
	Metadata         UserMetadata `json:"user_metadata"`
}

// EmailVerified reports whether the account's email has been confirmed.
func (u *User) EmailVerified() bool {
	return u != nil && (u.EmailConfirmedAt != nil || u.Metadata.EmailVerified)
}

// Role returns the account role, defaulting to customer.
func (u *User) Role() string {
	if u == nil || u.Metadata.Role == "" {
		return RoleCustomer
	}
	return u.Metadata.Role
}

func (u *User) IsAdmin() bool {
	return u.Role() == RoleAdmin
}

// Session is an authenticated session issued by the backend
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// SignUpResult is returned by SignUp. Session is nil while the email awaits
// verification.
type SignUpResult struct {
	User                   *User    `json:"user"`
	Session                *Session `json:"session,omitempty"`
	NeedsEmailVerification bool     `json:"needs_email_verification"`
}

// UserUpdate changes the password and/or profile data of the current user
type UserUpdate struct {
	Password string        `json:"password,omitempty"`
	Data     *UserMetadata `json:"data,omitempty"`
}

// Backend is the identity/profile service the storefront delegates to
type Backend interface {
	GetSession(ctx context.Context, accessToken string) (*Session, error)
	SignUp(ctx context.Context, email, password string, meta UserMetadata) (*SignUpResult, error)
	SignInWithEmail(ctx context.Context, email, password string) (*Session, error)
	SignInWithOAuth(ctx context.Context, provider, redirectTo string) (string, error)
	SignOut(ctx context.Context, accessToken string) error
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	UpdateUser(ctx context.Context, accessToken string, update UserUpdate) (*User, error)
	Resend(ctx context.Context, email string) error
}

// AccessClaims are the claims read from a backend access token
type AccessClaims struct {
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// ParseAccessToken decodes the claims of an access token without verifying
// its signature; the backend remains the authority on validity. Expired
// tokens return ErrSessionExpired.
func ParseAccessToken(token string, now time.Time) (*AccessClaims, error) {
	claims := &AccessClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}
	if claims.ExpiresAt != nil && !claims.ExpiresAt.After(now) {
		return claims, ErrSessionExpired
	}
	return claims, nil
}
