package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/doorguard/internal/api/ws"
	"github.com/your-org/doorguard/internal/auth"
	"github.com/your-org/doorguard/internal/enroll"
	"github.com/your-org/doorguard/internal/gallery"
	"github.com/your-org/doorguard/internal/models"
	"github.com/your-org/doorguard/internal/recognition"
	"github.com/your-org/doorguard/internal/terminal"
	"github.com/your-org/doorguard/pkg/dto"
)

type fakeStation struct {
	session    auth.Session
	enrollErr  error
	deleteErr  error
	openResult recognition.Result
	openErr    error
	logs       []models.AccessLogEntry
	lastLimit  int
	preview    []byte
}

func (s *fakeStation) Login(_ context.Context, id, secret string) (string, error) {
	if secret != "hunter2" {
		return "", &auth.Error{Code: 400, Message: "INVALID_PASSWORD"}
	}
	s.session.Set(id)
	return id, nil
}

func (s *fakeStation) Logout() { s.session.Clear() }
func (s *fakeStation) Admin() string { return s.session.Subject() }
func (s *fakeStation) Session() *auth.Session { return &s.session }
func (s *fakeStation) Preview() []byte { return s.preview }
func (s *fakeStation) Identities() []models.Identity {
	return []models.Identity{{Name: "Alice", Encodings: 7}, {Name: "Bob", Encodings: 5}}
}

func (s *fakeStation) Status() models.Status {
	return models.Status{Phase: models.PhaseRecognized, Message: "Welcome Alice", At: time.Unix(0, 0)}
}

func (s *fakeStation) Enroll(_ context.Context, name string) (enroll.Result, error) {
	if s.enrollErr != nil {
		return enroll.Result{}, s.enrollErr
	}
	return enroll.Result{Name: name, Captured: 7, Attempts: 9, Encodings: 7}, nil
}

func (s *fakeStation) DeleteIdentity(_ context.Context, name string) (int, error) {
	if s.deleteErr != nil {
		return 0, s.deleteErr
	}
	return 7, nil
}

func (s *fakeStation) OpenDoor(context.Context) (recognition.Result, error) {
	return s.openResult, s.openErr
}

func (s *fakeStation) RecentLogs(_ context.Context, limit int) ([]models.AccessLogEntry, error) {
	s.lastLimit = limit
	return s.logs, nil
}

func newTestRouter(st *fakeStation, apiKey string) http.Handler {
	return NewRouter(RouterConfig{APIKey: apiKey, Hub: ws.NewHub(), Station: st})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRouter_Healthz(t *testing.T) {
	w := do(t, newTestRouter(&fakeStation{}, ""), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_ReadyzWithoutNATS(t *testing.T) {
	w := do(t, newTestRouter(&fakeStation{}, ""), http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"nats":"disabled"`)
}

func TestRouter_APIKeyGuardsV1(t *testing.T) {
	r := newTestRouter(&fakeStation{}, "secret")
	assert.Equal(t, http.StatusUnauthorized, do(t, r, http.MethodGet, "/v1/status", "").Code)
	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/v1/status?api_key=secret", "").Code)
}

func TestRouter_Login(t *testing.T) {
	st := &fakeStation{}
	r := newTestRouter(st, "")

	w := do(t, r, http.MethodPost, "/v1/admin/login", `{"identifier":"admin@example.com","secret":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"INVALID_PASSWORD"}`, w.Body.String())
	assert.Empty(t, st.Admin())

	w = do(t, r, http.MethodPost, "/v1/admin/login", `{"identifier":"admin@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/v1/admin/login", `{"identifier":"admin@example.com","secret":"hunter2"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/v1/admin/session", "").Code)

	assert.Equal(t, http.StatusNoContent, do(t, r, http.MethodPost, "/v1/admin/logout", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, r, http.MethodGet, "/v1/admin/session", "").Code)
}

func TestRouter_EnrollRequiresAdmin(t *testing.T) {
	st := &fakeStation{}
	r := newTestRouter(st, "")

	assert.Equal(t, http.StatusForbidden, do(t, r, http.MethodPost, "/v1/identities", `{"name":"Alice"}`).Code)
	assert.Equal(t, http.StatusForbidden, do(t, r, http.MethodDelete, "/v1/identities/Alice", "").Code)

	st.session.Set("admin")
	w := do(t, r, http.MethodPost, "/v1/identities", `{"name":"Alice"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp dto.EnrollResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, dto.EnrollResponse{Name: "Alice", Captured: 7, Attempts: 9, Encodings: 7}, resp)
}

func TestRouter_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		enroll error
		delete error
		method string
		path   string
		body   string
		want   int
	}{
		{"duplicate", fmt.Errorf("%q: %w", "Alice", gallery.ErrDuplicate), nil, http.MethodPost, "/v1/identities", `{"name":"Alice"}`, http.StatusConflict},
		{"encoding failed", enroll.ErrEncodingFailed, nil, http.MethodPost, "/v1/identities", `{"name":"Alice"}`, http.StatusUnprocessableEntity},
		{"invalid name", models.ErrInvalidName, nil, http.MethodPost, "/v1/identities", `{"name":"Unknown"}`, http.StatusBadRequest},
		{"busy", terminal.ErrBusy, nil, http.MethodPost, "/v1/identities", `{"name":"Alice"}`, http.StatusConflict},
		{"not found", nil, gallery.ErrNotFound, http.MethodDelete, "/v1/identities/Zed", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &fakeStation{enrollErr: tt.enroll, deleteErr: tt.delete}
			st.session.Set("admin")
			w := do(t, newTestRouter(st, ""), tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code)
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestRouter_Identities(t *testing.T) {
	w := do(t, newTestRouter(&fakeStation{}, ""), http.MethodGet, "/v1/identities", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.IdentityListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, dto.IdentityResponse{Name: "Alice", Encodings: 7}, resp.Identities[0])
}

func TestRouter_OpenDoor(t *testing.T) {
	st := &fakeStation{openResult: recognition.Result{
		State:           recognition.StateRecognized,
		Identity:        "Alice",
		Distance:        0.21,
		FramesAttempted: 3,
		FramesRead:      3,
		Message:         "Welcome Alice",
	}}
	w := do(t, newTestRouter(st, ""), http.MethodPost, "/v1/door/open", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.DoorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "recognized", resp.State)
	assert.Equal(t, "Alice", resp.Identity)
	require.NotNil(t, resp.Distance)
	assert.InDelta(t, 0.21, *resp.Distance, 1e-9)
}

func TestRouter_OpenDoorWithoutMatchOmitsDistance(t *testing.T) {
	st := &fakeStation{openResult: recognition.Result{State: recognition.StateExhausted, Distance: math.Inf(1), Message: "Not recognized."}}
	w := do(t, newTestRouter(st, ""), http.MethodPost, "/v1/door/open", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "distance")
}

func TestRouter_Logs(t *testing.T) {
	st := &fakeStation{logs: []models.AccessLogEntry{
		{Name: "Alice", Time: time.Date(2024, 5, 1, 8, 31, 0, 0, time.UTC), Success: true, ImageURL: "u2"},
		{Name: "Unknown", Time: time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)},
	}}
	r := newTestRouter(st, "")

	w := do(t, r, http.MethodGet, "/v1/logs", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, st.lastLimit)

	var resp dto.AccessLogListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Logs, 2)
	assert.Equal(t, "Alice", resp.Logs[0].Name)
	assert.Equal(t, "2024-05-01T08:31:00Z", resp.Logs[0].Time)

	do(t, r, http.MethodGet, "/v1/logs?limit=500", "")
	assert.Equal(t, 100, st.lastLimit)

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/v1/logs?limit=abc", "").Code)
}

func TestRouter_Preview(t *testing.T) {
	st := &fakeStation{}
	r := newTestRouter(st, "")
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/v1/preview", "").Code)

	st.preview = []byte{0xFF, 0xD8, 0xFF, 0xD9}
	w := do(t, r, http.MethodGet, "/v1/preview", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, st.preview, w.Body.Bytes())
}

func TestRouter_Status(t *testing.T) {
	w := do(t, newTestRouter(&fakeStation{}, ""), http.MethodGet, "/v1/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"phase":"recognized","message":"Welcome Alice","at":"1970-01-01T00:00:00Z"}`, w.Body.String())
}
