package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/async"
	"storefront/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	defaultTokenTTL    = time.Hour
	defaultCallTimeout = 10 * time.Second
)

// TokenStore records the access token held by a storefront session
type TokenStore interface {
	SaveAuthToken(ctx context.Context, sessionID, token string, ttl time.Duration) error
	AuthToken(ctx context.Context, sessionID string) (string, error)
	ClearAuthToken(ctx context.Context, sessionID string) error
}

// ServiceConfig configures Service
type ServiceConfig struct {
	// SiteURL is the storefront origin used to build OAuth and password
	// reset redirects.
	SiteURL     string
	CallTimeout time.Duration
}

// Service exposes the identity backend to the storefront. Failures are
// classified once here and never retried automatically.
type Service struct {
	backend     Backend
	tokens      TokenStore
	siteURL     string
	callTimeout time.Duration
	now         func() time.Time
	logger      *zap.Logger
}

// NewService creates an identity service.
func NewService(backend Backend, tokens TokenStore, cfg ServiceConfig) *Service {
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &Service{
		backend:     backend,
		tokens:      tokens,
		siteURL:     strings.TrimRight(cfg.SiteURL, "/"),
		callTimeout: timeout,
		now:         time.Now,
		logger:      util.GetLogger(),
	}
}

// CurrentUser returns the user signed in on the session, or nil for an
// anonymous session. Expired or revoked tokens are dropped.
func (s *Service) CurrentUser(ctx context.Context, sessionID string) (*User, error) {
	ctx, span := util.StartSpan(ctx, "IdentityService.CurrentUser")
	defer span.End()

	token, err := s.tokens.AuthToken(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load auth token: %w", err)
	}
	if token == "" {
		return nil, nil
	}

	session, err := call(ctx, s, OpSession, func(ctx context.Context) (*Session, error) {
		return s.backend.GetSession(ctx, token)
	})
	if err != nil {
		if errors.Is(err, ErrSessionExpired) || isUnauthorized(err) {
			s.logger.Info("dropping stale auth token", zap.String("session_id", sessionID))
			if clearErr := s.tokens.ClearAuthToken(ctx, sessionID); clearErr != nil {
				s.logger.Warn("failed to clear auth token", zap.Error(clearErr))
			}
			return nil, nil
		}
		return nil, err
	}
	return &session.User, nil
}

// SignUp registers an account. When the backend signs the user in right
// away the token is kept on the session.
func (s *Service) SignUp(ctx context.Context, sessionID, email, password string, meta UserMetadata) (*SignUpResult, error) {
	ctx, span := util.StartSpan(ctx, "IdentityService.SignUp")
	defer span.End()

	if err := requireCredentials(email, password); err != nil {
		return nil, err
	}

	result, err := call(ctx, s, OpSignUp, func(ctx context.Context) (*SignUpResult, error) {
		return s.backend.SignUp(ctx, strings.TrimSpace(email), password, meta)
	})
	if err != nil {
		return nil, err
	}
	if result.Session != nil {
		if err := s.storeToken(ctx, sessionID, result.Session); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// SignIn authenticates with email and password.
func (s *Service) SignIn(ctx context.Context, sessionID, email, password string) (*Session, error) {
	ctx, span := util.StartSpan(ctx, "IdentityService.SignIn")
	defer span.End()

	if err := requireCredentials(email, password); err != nil {
		return nil, err
	}

	session, err := call(ctx, s, OpSignIn, func(ctx context.Context) (*Session, error) {
		return s.backend.SignInWithEmail(ctx, strings.TrimSpace(email), password)
	})
	if err != nil {
		return nil, err
	}
	if err := s.storeToken(ctx, sessionID, session); err != nil {
		return nil, err
	}

	s.logger.Info("user signed in", zap.String("session_id", sessionID), zap.String("user_id", session.User.ID))
	return session, nil
}

// OAuthURL returns the provider URL to redirect the shopper to. The provider
// sends the shopper back to the product listing.
func (s *Service) OAuthURL(ctx context.Context, provider string) (string, error) {
	return call(ctx, s, OpOAuth, func(ctx context.Context) (string, error) {
		return s.backend.SignInWithOAuth(ctx, provider, s.siteURL+"/product-catalog")
	})
}

// SignOut ends the backend session. The local token is dropped even when the
// backend call fails.
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	ctx, span := util.StartSpan(ctx, "IdentityService.SignOut")
	defer span.End()

	token, err := s.tokens.AuthToken(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load auth token: %w", err)
	}
	if clearErr := s.tokens.ClearAuthToken(ctx, sessionID); clearErr != nil {
		return fmt.Errorf("clear auth token: %w", clearErr)
	}
	if token == "" {
		return nil
	}

	_, err = call(ctx, s, OpSignOut, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.backend.SignOut(ctx, token)
	})
	return err
}

// ResetPassword sends a password reset email.
func (s *Service) ResetPassword(ctx context.Context, email string) error {
	if strings.TrimSpace(email) == "" {
		return apperr.Validation(map[string]string{"email": "Email is required"}, nil)
	}
	_, err := call(ctx, s, OpResetPassword, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.backend.ResetPasswordForEmail(ctx, strings.TrimSpace(email), s.siteURL+"/reset-password")
	})
	return err
}

// UpdateProfile changes the password or profile of the signed-in user.
func (s *Service) UpdateProfile(ctx context.Context, sessionID string, update UserUpdate) (*User, error) {
	ctx, span := util.StartSpan(ctx, "IdentityService.UpdateProfile")
	defer span.End()

	token, err := s.requireToken(ctx, sessionID, OpUpdateProfile)
	if err != nil {
		return nil, err
	}
	return call(ctx, s, OpUpdateProfile, func(ctx context.Context) (*User, error) {
		return s.backend.UpdateUser(ctx, token, update)
	})
}

// ResendVerification resends the sign up confirmation to the signed-in user.
func (s *Service) ResendVerification(ctx context.Context, sessionID string) error {
	user, err := s.CurrentUser(ctx, sessionID)
	if err != nil {
		return err
	}
	if user == nil {
		return Classify(OpResend, ErrNotAuthenticated)
	}
	_, err = call(ctx, s, OpResend, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.backend.Resend(ctx, user.Email)
	})
	return err
}

func (s *Service) requireToken(ctx context.Context, sessionID string, op Op) (string, error) {
	token, err := s.tokens.AuthToken(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("load auth token: %w", err)
	}
	if token == "" {
		return "", Classify(op, ErrNotAuthenticated)
	}
	return token, nil
}

func (s *Service) storeToken(ctx context.Context, sessionID string, session *Session) error {
	ttl := defaultTokenTTL
	if !session.ExpiresAt.IsZero() {
		ttl = session.ExpiresAt.Sub(s.now())
	}
	if ttl <= 0 {
		return Classify(OpSignIn, ErrSessionExpired)
	}
	if err := s.tokens.SaveAuthToken(ctx, sessionID, session.AccessToken, ttl); err != nil {
		return fmt.Errorf("save auth token: %w", err)
	}
	return nil
}

// call runs fn against the backend with the service timeout and classifies
// any failure.
func call[T any](ctx context.Context, s *Service, op Op, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, span := util.StartSpan(ctx, "identity."+string(op), attribute.String("identity.operation", string(op)))
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	start := time.Now()
	task := async.Go(callCtx, fn)
	value, err := task.Wait(callCtx)
	if err != nil {
		task.Cancel()
	}
	util.IdentityRequestLatency.WithLabelValues(string(op)).Observe(time.Since(start).Seconds())

	if err != nil {
		classified := Classify(op, err)
		util.IdentityRequestsTotal.WithLabelValues(string(op), string(classified.Kind())).Inc()
		util.RecordError(span, err)
		s.logger.Warn("identity request failed",
			zap.String("operation", string(op)),
			zap.String("kind", string(classified.Kind())),
			zap.Error(err),
		)
		var zero T
		return zero, classified
	}

	util.IdentityRequestsTotal.WithLabelValues(string(op), "ok").Inc()
	return value, nil
}

func requireCredentials(email, password string) error {
	fields := map[string]string{}
	if strings.TrimSpace(email) == "" {
		fields["email"] = "Email is required"
	}
	if password == "" {
		fields["password"] = "Password is required"
	}
	if len(fields) > 0 {
		return apperr.Validation(fields, nil)
	}
	return nil
}

func isUnauthorized(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden
	}
	return false
}
