package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"eventclient/internal/auth"
	"eventclient/internal/bootstrap"
	"eventclient/internal/config"
	"eventclient/internal/dashboard"
	"eventclient/internal/db"
	"eventclient/internal/eventapi"
	"eventclient/internal/session"
	"eventclient/internal/store"
)

const (
	testSecret = "this_is_a_valid_long_session_encrypt_key_123456"
	testCSRF   = "csrf-token-for-tests"
)

type fakeEvents struct {
	mu      sync.Mutex
	queries []string
	users   map[string]eventapi.LoginResult
	// hold, when set, parks every FetchEvents call until it is closed.
	hold    chan struct{}
	started chan struct{}
}

func (f *fakeEvents) FetchEvents(ctx context.Context, req eventapi.FetchRequest) ([]eventapi.Event, error) {
	f.mu.Lock()
	hold, started := f.hold, f.started
	f.mu.Unlock()
	if hold != nil {
		if started != nil {
			started <- struct{}{}
		}
		<-hold
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, req.Query.Encode())
	return []eventapi.Event{{"query": req.Query.Encode()}}, nil
}

func (f *fakeEvents) GetEventData(ctx context.Context, req eventapi.EventRequest) (eventapi.Event, error) {
	if req.ID == "42" {
		return eventapi.Event{"id": 42}, nil
	}
	return nil, &eventapi.Error{Status: http.StatusNotFound, Message: "Event not found"}
}

func (f *fakeEvents) Login(ctx context.Context, email, password string) (eventapi.LoginResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res, ok := f.users[email+"|"+password]
	if !ok {
		return eventapi.LoginResult{}, &eventapi.Error{Status: http.StatusUnauthorized, Message: "invalid credentials"}
	}
	return res, nil
}

func (f *fakeEvents) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func (f *fakeEvents) lastQuery() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queries) == 0 {
		return ""
	}
	return f.queries[len(f.queries)-1]
}

type testEnv struct {
	cfg      config.Config
	kv       store.KV
	sessions *session.Manager
	host     *dashboard.Host
	events   *fakeEvents
	router   http.Handler
	now      time.Time
}

func testConfig() config.Config {
	return config.Config{
		ListenAddr:         "127.0.0.1:8080",
		SessionCookieName:  "eventclient_sid",
		CSRFCookieName:     "eventclient_csrf",
		NavFromCookieName:  "eventclient_nav_from",
		SessionMaxAgeHours: 24,
		SessionEncryptKey:  testSecret,
		LoginRateLimit:     100,
		LoginRateWindowSec: 60,
	}
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	sqdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "app.db"), 1, 1, time.Minute)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqdb.Close() })
	if err := db.ApplyMigrationFile(sqdb, db.MigrationPath(filepath.Join("..", "..", "migrations"), "sqlite")); err != nil {
		t.Fatalf("apply migration: %v", err)
	}

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	env := &testEnv{
		cfg:    cfg,
		kv:     store.NewSQL(sqdb, "sqlite"),
		events: &fakeEvents{users: map[string]eventapi.LoginResult{}},
		now:    time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	env.sessions = session.NewManager(env.kv, cfg.SessionEncryptKey)
	env.host = dashboard.NewHost(context.Background(), env.events, dashboard.Options{})
	clock := func() time.Time { return env.now }

	webDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(webDir, "assets"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(webDir, "assets", "app.js"), []byte("console.log('app')"), 0o644); err != nil {
		t.Fatalf("write asset: %v", err)
	}

	env.router = NewRouter(cfg, Deps{
		Store:      env.kv,
		Sessions:   env.sessions,
		Bootstrap:  bootstrap.NewChecker(env.sessions).WithClock(clock),
		Dashboards: env.host,
		Events:     env.events,
		WebDir:     webDir,
		Now:        clock,
	})
	return env
}

func (e *testEnv) token(t *testing.T, exp time.Time) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).SignedString([]byte("api-signing-key"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return raw
}

// loginBrowser persists a session and returns the raw browser cookie value
// together with the storage key it maps to.
func (e *testEnv) loginBrowser(t *testing.T, identity, role string, exp time.Time) (string, string) {
	t.Helper()
	raw, browserID, err := auth.NewBrowserKey()
	if err != nil {
		t.Fatalf("browser key: %v", err)
	}
	if err := e.sessions.Login(context.Background(), browserID, identity, role, e.token(t, exp)); err != nil {
		t.Fatalf("login: %v", err)
	}
	return raw, browserID
}

func (e *testEnv) do(t *testing.T, method, target, browserKey, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if browserKey != "" {
		req.AddCookie(&http.Cookie{Name: e.cfg.SessionCookieName, Value: browserKey})
	}
	req.AddCookie(&http.Cookie{Name: e.cfg.CSRFCookieName, Value: testCSRF})
	req.Header.Set("X-CSRF-Token", testCSRF)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
