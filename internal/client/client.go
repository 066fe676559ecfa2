// Package client talks to the door terminal HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/your-org/doorguard/pkg/dto"
)

// APIError is a non-2xx answer from the terminal.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.StatusCode)
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New returns a client for the terminal at baseURL. timeout bounds every
// request; enrollment and door runs can take minutes.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) Login(ctx context.Context, identifier, secret string) (dto.LoginResponse, error) {
	var out dto.LoginResponse
	err := c.do(ctx, http.MethodPost, "/v1/admin/login", dto.LoginRequest{Identifier: identifier, Secret: secret}, &out)
	return out, err
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/admin/logout", nil, nil)
}

func (c *Client) Enroll(ctx context.Context, name string) (dto.EnrollResponse, error) {
	var out dto.EnrollResponse
	err := c.do(ctx, http.MethodPost, "/v1/identities", dto.EnrollRequest{Name: name}, &out)
	return out, err
}

func (c *Client) DeleteIdentity(ctx context.Context, name string) (dto.DeleteIdentityResponse, error) {
	var out dto.DeleteIdentityResponse
	err := c.do(ctx, http.MethodDelete, "/v1/identities/"+url.PathEscape(name), nil, &out)
	return out, err
}

func (c *Client) Identities(ctx context.Context) (dto.IdentityListResponse, error) {
	var out dto.IdentityListResponse
	err := c.do(ctx, http.MethodGet, "/v1/identities", nil, &out)
	return out, err
}

func (c *Client) OpenDoor(ctx context.Context) (dto.DoorResponse, error) {
	var out dto.DoorResponse
	err := c.do(ctx, http.MethodPost, "/v1/door/open", nil, &out)
	return out, err
}

func (c *Client) Logs(ctx context.Context, limit int) (dto.AccessLogListResponse, error) {
	path := "/v1/logs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out dto.AccessLogListResponse
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) Status(ctx context.Context) (dto.StatusResponse, error) {
	var out dto.StatusResponse
	err := c.do(ctx, http.MethodGet, "/v1/status", nil, &out)
	return out, err
}

// WatchStatus calls fn for every status update pushed by the terminal until
// ctx is done or the connection drops. The returned channel is closed when
// watching stops.
func (c *Client) WatchStatus(ctx context.Context, fn func(dto.StatusResponse)) (<-chan struct{}, error) {
	u, err := url.Parse(c.baseURL + "/v1/ws")
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	header := http.Header{}
	if c.apiKey != "" {
		header.Set("X-API-Key", c.apiKey)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("dial status stream: %w", err)
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	go func() {
		defer close(done)
		defer conn.Close()
		for {
			var msg dto.WSMessage
			if err := conn.ReadJSON(&msg); err != nil {
				var closeErr *websocket.CloseError
				if ctx.Err() == nil && !errors.As(err, &closeErr) {
					slog.Debug("status stream closed", "error", err)
				}
				return
			}
			if msg.Type == dto.WSTypeStatus && msg.Status != nil {
				fn(*msg.Status)
			}
		}
	}()
	return done, nil
}
