package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// StaticTokenSource serves a fixed token, e.g. an API key issued to the
// terminal at provisioning time.
type StaticTokenSource string

func (s StaticTokenSource) Token(_ context.Context) (string, error) {
	return string(s), nil
}

// LoginTokenSource logs the terminal into the remote auth endpoint and
// caches the access token until shortly before it expires. The expiry is
// read from the JWT's exp claim; the signature is the server's concern.
type LoginTokenSource struct {
	baseURL  string
	username string
	password string
	http     *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewLoginTokenSource(baseURL string, username string, password string, timeout time.Duration) *LoginTokenSource {
	if timeout < 1 {
		timeout = 15 * time.Second
	}
	return &LoginTokenSource{
		baseURL:  baseURL,
		username: username,
		password: password,
		http:     &http.Client{Timeout: timeout},
	}
}

// expirySlack renews the token slightly early so an almost-expired token is
// never attached to a slow request.
const expirySlack = 30 * time.Second

func (s *LoginTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Now().Before(s.expiresAt.Add(-expirySlack)) {
		return s.token, nil
	}

	token, err := s.login(ctx)
	if err != nil {
		return "", err
	}

	s.token = token
	s.expiresAt = tokenExpiry(token)
	return s.token, nil
}

func (s *LoginTokenSource) login(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"username": s.username,
		"password": s.password,
	})
	if err != nil {
		return "", fmt.Errorf("%w: encode login: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/login", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read login response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: login status %d", ErrRejected, resp.StatusCode)
	}

	var login struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &login); err != nil || login.AccessToken == "" {
		return "", fmt.Errorf("%w: decode login response", ErrRejected)
	}
	return login.AccessToken, nil
}

// tokenExpiry extracts the exp claim without verifying the signature. When
// the claim is missing or unreadable a short TTL forces a fresh login soon.
func tokenExpiry(token string) time.Time {
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil || claims.ExpiresAt == nil {
		return time.Now().Add(5 * time.Minute)
	}
	return claims.ExpiresAt.Time
}
