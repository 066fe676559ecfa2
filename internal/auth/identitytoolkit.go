package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/your-org/doorguard/internal/config"
)

// Authenticator verifies admin credentials and returns the signed-in subject.
type Authenticator interface {
	SignIn(ctx context.Context, identifier, secret string) (string, error)
}

// Error is a rejection reported by the identity provider. Message is shown to
// the operator as-is.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var ErrNotConfigured = errors.New("authentication is not configured")

// IdentityToolkit signs in against the accounts:signInWithPassword REST API.
type IdentityToolkit struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewIdentityToolkit(cfg config.AuthConfig) *IdentityToolkit {
	return &IdentityToolkit{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

type signInRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type signInResponse struct {
	LocalID string `json:"localId"`
	Email   string `json:"email"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (t *IdentityToolkit) SignIn(ctx context.Context, identifier, secret string) (string, error) {
	if t.apiKey == "" || t.endpoint == "" {
		return "", ErrNotConfigured
	}

	body, err := json.Marshal(signInRequest{Email: identifier, Password: secret, ReturnSecureToken: true})
	if err != nil {
		return "", fmt.Errorf("marshal sign-in request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint+"?key="+url.QueryEscape(t.apiKey), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build sign-in request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sign in: %w", err)
	}
	defer resp.Body.Close()

	var out signInResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode sign-in response (status %d): %w", resp.StatusCode, err)
	}

	if out.Error != nil {
		return "", &Error{Code: out.Error.Code, Message: out.Error.Message}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &Error{Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	if out.LocalID != "" {
		return out.LocalID, nil
	}
	return identifier, nil
}
