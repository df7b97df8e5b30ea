package identity

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"storefront/internal/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryTokens struct {
	mu     sync.Mutex
	tokens map[string]string
	ttls   map[string]time.Duration
}

func newMemoryTokens() *memoryTokens {
	return &memoryTokens{tokens: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryTokens) SaveAuthToken(_ context.Context, sessionID, token string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[sessionID] = token
	m.ttls[sessionID] = ttl
	return nil
}

func (m *memoryTokens) AuthToken(_ context.Context, sessionID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[sessionID], nil
}

func (m *memoryTokens) ClearAuthToken(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, sessionID)
	return nil
}

type fakeBackend struct {
	session    *Session
	sessionErr error
	signInErr  error
	signUp     *SignUpResult
	signOutErr error
	resent     []string
	updates    []UserUpdate
	redirects  []string
	block      chan struct{}
}

func (f *fakeBackend) GetSession(ctx context.Context, token string) (*Session, error) {
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}
	return f.session, nil
}

func (f *fakeBackend) SignUp(ctx context.Context, email, password string, meta UserMetadata) (*SignUpResult, error) {
	return f.signUp, nil
}

func (f *fakeBackend) SignInWithEmail(ctx context.Context, email, password string) (*Session, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	return f.session, nil
}

func (f *fakeBackend) SignInWithOAuth(ctx context.Context, provider, redirectTo string) (string, error) {
	f.redirects = append(f.redirects, redirectTo)
	return "https://auth.example/authorize?provider=" + provider, nil
}

func (f *fakeBackend) SignOut(ctx context.Context, token string) error {
	return f.signOutErr
}

func (f *fakeBackend) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	f.redirects = append(f.redirects, redirectTo)
	return nil
}

func (f *fakeBackend) UpdateUser(ctx context.Context, token string, update UserUpdate) (*User, error) {
	f.updates = append(f.updates, update)
	return &User{ID: "user-1", Metadata: *update.Data}, nil
}

func (f *fakeBackend) Resend(ctx context.Context, email string) error {
	f.resent = append(f.resent, email)
	return nil
}

func newTestService(backend Backend, tokens TokenStore) *Service {
	s := NewService(backend, tokens, ServiceConfig{SiteURL: "https://shop.example/", CallTimeout: time.Second})
	s.now = func() time.Time { return testNow }
	return s
}

func testSession() *Session {
	return &Session{
		AccessToken: "tok",
		ExpiresAt:   testNow.Add(2 * time.Hour),
		User:        User{ID: "user-1", Email: "ada@example.com"},
	}
}

func TestServiceSignInStoresToken(t *testing.T) {
	tokens := newMemoryTokens()
	svc := newTestService(&fakeBackend{session: testSession()}, tokens)

	session, err := svc.SignIn(context.Background(), "sess-1", " ada@example.com ", "secret")

	require.NoError(t, err)
	assert.Equal(t, "user-1", session.User.ID)
	assert.Equal(t, "tok", tokens.tokens["sess-1"])
	assert.Equal(t, 2*time.Hour, tokens.ttls["sess-1"])
}

func TestServiceSignInRequiresCredentials(t *testing.T) {
	svc := newTestService(&fakeBackend{}, newMemoryTokens())

	_, err := svc.SignIn(context.Background(), "sess-1", "", "")

	typed := apperr.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, apperr.KindValidation, typed.Kind())
	assert.Len(t, typed.Fields(), 2)
}

func TestServiceSignInClassifiesConnectivity(t *testing.T) {
	tokens := newMemoryTokens()
	svc := newTestService(&fakeBackend{signInErr: errors.New("Failed to fetch")}, tokens)

	_, err := svc.SignIn(context.Background(), "sess-1", "ada@example.com", "secret")

	assert.Equal(t, apperr.KindConnectivity, apperr.KindOf(err))
	assert.Empty(t, tokens.tokens)
}

func TestServiceCallTimeout(t *testing.T) {
	backend := &fakeBackend{session: testSession(), block: make(chan struct{})}
	defer close(backend.block)
	svc := newTestService(backend, newMemoryTokens())
	svc.callTimeout = 10 * time.Millisecond

	_, err := svc.SignIn(context.Background(), "sess-1", "ada@example.com", "secret")

	assert.Equal(t, apperr.KindConnectivity, apperr.KindOf(err))
}

func TestServiceCurrentUser(t *testing.T) {
	tokens := newMemoryTokens()
	backend := &fakeBackend{session: testSession()}
	svc := newTestService(backend, tokens)
	ctx := context.Background()

	user, err := svc.CurrentUser(ctx, "anon")
	require.NoError(t, err)
	assert.Nil(t, user)

	require.NoError(t, tokens.SaveAuthToken(ctx, "sess-1", "tok", time.Hour))
	user, err = svc.CurrentUser(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)

	backend.sessionErr = ErrSessionExpired
	user, err = svc.CurrentUser(ctx, "sess-1")
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.Empty(t, tokens.tokens)
}

func TestServiceCurrentUserRevokedToken(t *testing.T) {
	tokens := newMemoryTokens()
	backend := &fakeBackend{sessionErr: &APIError{Status: http.StatusUnauthorized, Message: "invalid JWT"}}
	svc := newTestService(backend, tokens)
	ctx := context.Background()
	require.NoError(t, tokens.SaveAuthToken(ctx, "sess-1", "tok", time.Hour))

	user, err := svc.CurrentUser(ctx, "sess-1")

	require.NoError(t, err)
	assert.Nil(t, user)
	assert.Empty(t, tokens.tokens)
}

func TestServiceSignOutClearsTokenOnFailure(t *testing.T) {
	tokens := newMemoryTokens()
	backend := &fakeBackend{signOutErr: &APIError{Status: http.StatusInternalServerError, Message: "down"}}
	svc := newTestService(backend, tokens)
	ctx := context.Background()
	require.NoError(t, tokens.SaveAuthToken(ctx, "sess-1", "tok", time.Hour))

	err := svc.SignOut(ctx, "sess-1")

	assert.Equal(t, apperr.KindConnectivity, apperr.KindOf(err))
	assert.Empty(t, tokens.tokens)
	assert.NoError(t, svc.SignOut(ctx, "sess-1"))
}

func TestServiceSignUpWithoutSession(t *testing.T) {
	tokens := newMemoryTokens()
	backend := &fakeBackend{signUp: &SignUpResult{User: &User{ID: "user-9"}, NeedsEmailVerification: true}}
	svc := newTestService(backend, tokens)

	result, err := svc.SignUp(context.Background(), "sess-1", "ada@example.com", "secret", UserMetadata{FullName: "Ada"})

	require.NoError(t, err)
	assert.True(t, result.NeedsEmailVerification)
	assert.Empty(t, tokens.tokens)
}

func TestServiceRedirects(t *testing.T) {
	backend := &fakeBackend{}
	svc := newTestService(backend, newMemoryTokens())
	ctx := context.Background()

	_, err := svc.OAuthURL(ctx, "google")
	require.NoError(t, err)
	require.NoError(t, svc.ResetPassword(ctx, "ada@example.com"))

	assert.Equal(t, []string{
		"https://shop.example/product-catalog",
		"https://shop.example/reset-password",
	}, backend.redirects)

	assert.Equal(t, apperr.KindValidation, apperr.KindOf(svc.ResetPassword(ctx, " ")))
}

func TestServiceProfileRequiresSignIn(t *testing.T) {
	tokens := newMemoryTokens()
	backend := &fakeBackend{session: testSession()}
	svc := newTestService(backend, tokens)
	ctx := context.Background()

	_, err := svc.UpdateProfile(ctx, "sess-1", UserUpdate{Data: &UserMetadata{FullName: "Ada King"}})
	typed := apperr.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, http.StatusUnauthorized, typed.Status())
	assert.Equal(t, http.StatusUnauthorized, apperr.As(svc.ResendVerification(ctx, "sess-1")).Status())

	require.NoError(t, tokens.SaveAuthToken(ctx, "sess-1", "tok", time.Hour))
	user, err := svc.UpdateProfile(ctx, "sess-1", UserUpdate{Data: &UserMetadata{FullName: "Ada King"}})
	require.NoError(t, err)
	assert.Equal(t, "Ada King", user.Metadata.FullName)

	require.NoError(t, svc.ResendVerification(ctx, "sess-1"))
	assert.Equal(t, []string{"ada@example.com"}, backend.resent)
}
