package web

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/keyquota/internal/application"
	"github.com/ericfisherdev/keyquota/internal/domain/model"
)

const (
	testSecret = "0f1e2d3c-aaaa-bbbb-cccc-123456789abc:fx"
	testToken  = "test-csrf-token"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

type stubRelay struct {
	mu    sync.Mutex
	calls int
	usage model.Usage
	err   error
}

func (s *stubRelay) Init(context.Context) error { return nil }

func (s *stubRelay) FetchUsage(context.Context, string) (model.Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.usage, s.err
}

// frozenScheduler never fires, so a started cooldown stays at its full length.
type frozenScheduler struct{}

func (frozenScheduler) Every(time.Duration, func()) func() { return func() {} }

type fixedProbe struct{}

func (fixedProbe) Environment() model.Environment {
	return model.Environment{UserAgent: "test", Locale: "en-US", Processors: "4"}
}

type webFixture struct {
	mux   *http.ServeMux
	keys  *application.KeyService
	relay *stubRelay
	store *memoryStore
}

func newWebFixture(t *testing.T) *webFixture {
	t.Helper()

	store := &memoryStore{data: map[string]string{}}
	relay := &stubRelay{usage: model.Usage{CharacterCount: 12345, CharacterLimit: 500000}}
	history := application.NewHistoryService(store, 0, slog.Default())
	keys := application.NewKeyService(
		application.NewCodec(fixedProbe{}),
		store,
		relay,
		history,
		frozenScheduler{},
		slog.Default(),
	)
	t.Cleanup(keys.Close)

	h := NewHandler(keys, history, slog.Default())
	h.now = func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) }

	mux := http.NewServeMux()
	RegisterRoutes(mux, h)

	return &webFixture{mux: mux, keys: keys, relay: relay, store: store}
}

// get performs a GET carrying the CSRF cookie and any extra cookies.
func (f *webFixture) get(path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: testToken})
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

// post submits a form with the given CSRF field value.
func (f *webFixture) post(path string, form url.Values, token string) *httptest.ResponseRecorder {
	if form == nil {
		form = url.Values{}
	}
	if token != "" {
		form.Set(csrfFormField, token)
	}
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: testToken})
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

// follow renders the dashboard with the flash cookie set by a redirect.
func (f *webFixture) follow(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/", rec.Header().Get("Location"))

	var flash *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == flashCookieName {
			flash = c
		}
	}
	if flash == nil {
		return f.get("/").Body.String()
	}
	return f.get("/", flash).Body.String()
}

func (f *webFixture) importKey(t *testing.T, text string) {
	t.Helper()
	rec := f.post("/app/import", url.Values{"text": {text}}, testToken)
	require.Equal(t, http.StatusSeeOther, rec.Code)
}

func (f *webFixture) firstKeyID(t *testing.T) string {
	t.Helper()
	snap := f.keys.Snapshot()
	require.NotEmpty(t, snap.Keys)
	return snap.Keys[0].ID
}
