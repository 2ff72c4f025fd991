package httphandler_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httphandler "github.com/ericfisherdev/keyquota/internal/adapter/driving/http"
	"github.com/ericfisherdev/keyquota/internal/application"
	"github.com/ericfisherdev/keyquota/internal/domain/model"
)

// --- Mock implementations ---

type mockUpstream struct {
	status     int
	body       []byte
	err        error
	lastSecret string
	calls      int
}

func (m *mockUpstream) Usage(_ context.Context, secret string) (int, []byte, error) {
	m.calls++
	m.lastSecret = secret
	return m.status, m.body, m.err
}

type mockSnapshotter struct {
	state *application.AppState
}

func (m *mockSnapshotter) Snapshot() *application.AppState {
	return m.state.Clone()
}

// --- Helpers ---

func setupMux(upstream *mockUpstream, state *application.AppState) http.Handler {
	if state == nil {
		state = application.NewAppState()
	}
	h := httphandler.NewHandler(upstream, &mockSnapshotter{state: state}, httphandler.NewSessionStore(), slog.Default())
	return httphandler.NewServeMux(h, slog.Default())
}

// startSession calls the session endpoint and returns the cookie and token.
func startSession(t *testing.T, mux http.Handler) (*http.Cookie, string) {
	t.Helper()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/session", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body httphandler.SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Token, 64)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, httphandler.SessionCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	return cookies[0], body.Token
}

func usageRequest(cookie *http.Cookie, token, secret string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/usage?t=1", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	if token != "" {
		req.Header.Set("X-CSRF-Token", token)
	}
	if secret != "" {
		req.Header.Set("X-DeepL-Auth-Key", secret)
	}
	return req
}

func decodeRelayError(t *testing.T, rec *httptest.ResponseRecorder) httphandler.RelayErrorResponse {
	t.Helper()
	var body httphandler.RelayErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// --- Tests ---

func TestSession_ReusesExistingSession(t *testing.T) {
	mux := setupMux(&mockUpstream{}, nil)
	cookie, token := startSession(t, mux)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var body httphandler.SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, token, body.Token)
	assert.Empty(t, rec.Result().Cookies(), "no new cookie for a live session")
}

func TestUsage_ForwardsUpstreamAnswer(t *testing.T) {
	upstream := &mockUpstream{status: http.StatusOK, body: []byte(`{"character_count":10,"character_limit":500000}`)}
	mux := setupMux(upstream, nil)
	cookie, token := startSession(t, mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, usageRequest(cookie, token, "  secret-key:fx  "))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"character_count":10,"character_limit":500000}`, rec.Body.String())
	assert.Equal(t, "secret-key:fx", upstream.lastSecret)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestUsage_ForwardsUpstreamErrorStatus(t *testing.T) {
	upstream := &mockUpstream{status: http.StatusForbidden, body: []byte(`{"message":"Forbidden"}`)}
	mux := setupMux(upstream, nil)
	cookie, token := startSession(t, mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, usageRequest(cookie, token, "bad"))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Forbidden", decodeRelayError(t, rec).Message)
}

func TestUsage_KeyFromQuery(t *testing.T) {
	upstream := &mockUpstream{status: http.StatusOK, body: []byte(`{}`)}
	mux := setupMux(upstream, nil)
	cookie, token := startSession(t, mux)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/usage?key="+url.QueryEscape("from-query"), nil)
	req.AddCookie(cookie)
	req.Header.Set("X-CSRF-Token", token)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "from-query", upstream.lastSecret)
}

func TestUsage_CSRFRejections(t *testing.T) {
	upstream := &mockUpstream{status: http.StatusOK, body: []byte(`{}`)}
	mux := setupMux(upstream, nil)
	cookie, token := startSession(t, mux)

	tests := []struct {
		name   string
		cookie *http.Cookie
		token  string
	}{
		{"no token", cookie, ""},
		{"wrong token", cookie, token[:63] + "x"},
		{"no session cookie", nil, token},
		{"unknown session", &http.Cookie{Name: httphandler.SessionCookieName, Value: "forged"}, token},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, usageRequest(tt.cookie, tt.token, "secret"))

			assert.Equal(t, http.StatusForbidden, rec.Code)
			assert.Equal(t, httphandler.RelayErrorResponse{
				Message: "Security Check Failed (CSRF)",
				Detail:  "Invalid or missing CSRF token. Please refresh the page.",
			}, decodeRelayError(t, rec))
		})
	}
	assert.Zero(t, upstream.calls)
}

func TestUsage_MissingKey(t *testing.T) {
	upstream := &mockUpstream{}
	mux := setupMux(upstream, nil)
	cookie, token := startSession(t, mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, usageRequest(cookie, token, ""))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, httphandler.RelayErrorResponse{
		Message: "Missing API Key",
		Detail:  "Please provide X-DeepL-Auth-Key header or key parameter",
	}, decodeRelayError(t, rec))
	assert.Zero(t, upstream.calls)
}

func TestUsage_TransportFailure(t *testing.T) {
	mux := setupMux(&mockUpstream{err: errors.New("dial tcp: i/o timeout")}, nil)
	cookie, token := startSession(t, mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, usageRequest(cookie, token, "secret"))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, httphandler.RelayErrorResponse{Message: "Request Failed", Detail: "dial tcp: i/o timeout"}, decodeRelayError(t, rec))
}

func TestUsage_EmptyUpstreamBody(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantStatus int
	}{
		{"success status becomes bad gateway", http.StatusOK, http.StatusBadGateway},
		{"error status kept", http.StatusTooManyRequests, http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := setupMux(&mockUpstream{status: tt.status}, nil)
			cookie, token := startSession(t, mux)

			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, usageRequest(cookie, token, "secret"))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, `{"message":"Empty response from DeepL"}`, rec.Body.String())
		})
	}
}

func TestHealth(t *testing.T) {
	mux := setupMux(&mockUpstream{}, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestListKeys_MasksSecrets(t *testing.T) {
	state := application.NewAppState()
	state.Keys = model.Collection{
		{ID: "k1", Secret: "0f1e2d3c-aaaa-bbbb-cccc-123456789abc:fx", Email: "a@b.com", Password: "hunter2",
			Usage: &model.Usage{CharacterCount: 400000, CharacterLimit: 500000}},
		{ID: "k2", Secret: "ffffffff-1111-2222-3333-444444444444", LastError: "Forbidden"},
	}
	state.Busy["k2"] = true

	rec := httptest.NewRecorder()
	setupMux(&mockUpstream{}, state).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/keys", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.NotContains(t, rec.Body.String(), "hunter2")
	assert.NotContains(t, rec.Body.String(), "0f1e2d3c-aaaa")

	var body httphandler.KeysResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Keys, 2)
	assert.Equal(t, "0f1e...c:fx", body.Keys[0].Key)
	assert.Equal(t, "warning", body.Keys[0].Usage.Level)
	assert.InDelta(t, 80.0, body.Keys[0].Usage.Percent, 0.001)
	assert.Equal(t, "Forbidden", body.Keys[1].Error)
	assert.True(t, body.Keys[1].Checking)
	require.NotNil(t, body.Totals)
	assert.Equal(t, int64(400000), body.Totals.CharacterCount)
	assert.False(t, body.Cooldown.Cooling)
}

func TestRecoveryMiddleware(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := httptest.NewRecorder()
	httphandler.ApplyMiddleware(mux, slog.Default()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}
