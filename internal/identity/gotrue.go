package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	authPath             = "/auth/v1"
	errorBodyLimit int64 = 4096
	defaultTimeout       = 10 * time.Second
)

var errAnonKeyRequired = errors.New("identity anon key is required")

// APIError is a non-2xx response from the identity backend
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("identity backend %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("identity backend %d: %s", e.Status, e.Message)
}

// GoTrueClient talks to a GoTrue compatible auth REST API
type GoTrueClient struct {
	httpClient *http.Client
	baseURL    string
	anonKey    string
	now        func() time.Time
}

// ClientOption configures a GoTrueClient
type ClientOption func(*GoTrueClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *GoTrueClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithClock overrides the clock used to compute session expiry.
func WithClock(now func() time.Time) ClientOption {
	return func(c *GoTrueClient) {
		if now != nil {
			c.now = now
		}
	}
}

// NewGoTrueClient builds a client for the project at baseURL.
func NewGoTrueClient(baseURL, anonKey string, opts ...ClientOption) (*GoTrueClient, error) {
	key := strings.TrimSpace(anonKey)
	if key == "" {
		return nil, errAnonKeyRequired
	}
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid identity url %q: %w", baseURL, err)
	}

	c := &GoTrueClient{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    base + authPath,
		anonKey:    key,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

type sessionResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         *User  `json:"user"`
}

// signUpResponse is either a session (auto-confirm) or a bare user.
type signUpResponse struct {
	sessionResponse
	User
}

func (c *GoTrueClient) toSession(r sessionResponse) *Session {
	s := &Session{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken}
	switch {
	case r.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(r.ExpiresAt, 0).UTC()
	case r.ExpiresIn > 0:
		s.ExpiresAt = c.now().Add(time.Duration(r.ExpiresIn) * time.Second).UTC()
	}
	if r.User != nil {
		s.User = *r.User
	}
	return s
}

// GetSession resolves the user behind an access token.
func (c *GoTrueClient) GetSession(ctx context.Context, accessToken string) (*Session, error) {
	claims, err := ParseAccessToken(accessToken, c.now())
	if err != nil {
		return nil, err
	}

	var user User
	if err := c.do(ctx, http.MethodGet, "/user", nil, accessToken, nil, &user); err != nil {
		return nil, err
	}

	s := &Session{AccessToken: accessToken, User: user}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return s, nil
}

func (c *GoTrueClient) SignUp(ctx context.Context, email, password string, meta UserMetadata) (*SignUpResult, error) {
	if meta.Role == "" {
		meta.Role = RoleCustomer
	}
	body := map[string]interface{}{
		"email":    email,
		"password": password,
		"data":     meta,
	}

	var resp signUpResponse
	if err := c.do(ctx, http.MethodPost, "/signup", nil, "", body, &resp); err != nil {
		return nil, err
	}

	if resp.AccessToken == "" {
		user := resp.User
		return &SignUpResult{User: &user, NeedsEmailVerification: true}, nil
	}
	session := c.toSession(resp.sessionResponse)
	return &SignUpResult{User: &session.User, Session: session}, nil
}

func (c *GoTrueClient) SignInWithEmail(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}
	query := url.Values{"grant_type": {"password"}}

	var resp sessionResponse
	if err := c.do(ctx, http.MethodPost, "/token", query, "", body, &resp); err != nil {
		return nil, err
	}
	return c.toSession(resp), nil
}

// SignInWithOAuth returns the provider authorization URL the shopper must be
// redirected to. No request is made.
func (c *GoTrueClient) SignInWithOAuth(ctx context.Context, provider, redirectTo string) (string, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return "", &APIError{Status: http.StatusBadRequest, Code: "validation_failed", Message: "provider is required"}
	}
	query := url.Values{"provider": {provider}}
	if redirectTo != "" {
		query.Set("redirect_to", redirectTo)
	}
	return c.baseURL + "/authorize?" + query.Encode(), nil
}

func (c *GoTrueClient) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/logout", nil, accessToken, nil, nil)
}

func (c *GoTrueClient) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	var query url.Values
	if redirectTo != "" {
		query = url.Values{"redirect_to": {redirectTo}}
	}
	return c.do(ctx, http.MethodPost, "/recover", query, "", map[string]string{"email": email}, nil)
}

func (c *GoTrueClient) UpdateUser(ctx context.Context, accessToken string, update UserUpdate) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodPut, "/user", nil, accessToken, update, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *GoTrueClient) Resend(ctx context.Context, email string) error {
	body := map[string]string{"type": "signup", "email": email}
	return c.do(ctx, http.MethodPost, "/resend", nil, "", body, nil)
}

func (c *GoTrueClient) do(ctx context.Context, method, path string, query url.Values, bearer string, in, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", path, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))

	var payload struct {
		Error            string      `json:"error"`
		ErrorDescription string      `json:"error_description"`
		ErrorCode        string      `json:"error_code"`
		Msg              string      `json:"msg"`
		Message          string      `json:"message"`
		Code             interface{} `json:"code"`
	}
	_ = json.Unmarshal(raw, &payload)

	apiErr := &APIError{Status: resp.StatusCode, Code: payload.ErrorCode}
	if apiErr.Code == "" {
		apiErr.Code = payload.Error
	}
	for _, msg := range []string{payload.ErrorDescription, payload.Msg, payload.Message} {
		if msg != "" {
			apiErr.Message = msg
			break
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
