package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"eventclient/internal/auth"
	"eventclient/internal/config"
	"eventclient/internal/eventapi"
	"eventclient/internal/store"
)

func TestLoginPersistsSessionUnderFreshBrowserKey(t *testing.T) {
	env := newTestEnv(t, nil)
	env.events.users["org@example.com|SecretPass123!"] = eventapi.LoginResult{
		Token:  env.token(t, env.now.Add(time.Hour)),
		UserID: "17",
		Role:   "organizer",
	}

	rec := env.do(t, http.MethodPost, "/api/v1/login", "pre-login-key", `{"email":"org@example.com","password":"SecretPass123!"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected login 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["user_id"] != "17" || out["role"] != "organizer" || out["can_create"] != true || out["redirect"] != "/dashboard" {
		t.Fatalf("unexpected login response %v", out)
	}

	sid := cookieNamed(rec, env.cfg.SessionCookieName)
	if sid == nil || sid.Value == "pre-login-key" || !sid.HttpOnly {
		t.Fatalf("expected a rotated http-only browser cookie, got %+v", sid)
	}
	csrf := cookieNamed(rec, env.cfg.CSRFCookieName)
	if csrf == nil || csrf.Value != out["csrf_token"] {
		t.Fatalf("expected csrf cookie to match response token")
	}
	if v, err := env.kv.Get(context.Background(), auth.HashBrowserKey(sid.Value), store.KeyUserID); err != nil || v != "17" {
		t.Fatalf("expected identity under the new browser key, got %q err=%v", v, err)
	}
	if _, err := env.kv.Get(context.Background(), auth.HashBrowserKey("pre-login-key"), store.KeyUserID); err == nil {
		t.Fatalf("the pre-login key must not name the session")
	}

	rec = env.do(t, http.MethodGet, "/dashboard", sid.Value, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected dashboard after login, got %d", rec.Code)
	}
}

func TestLoginAlwaysLandsOnDashboard(t *testing.T) {
	env := newTestEnv(t, nil)
	env.events.users["sub@example.com|pw"] = eventapi.LoginResult{Token: env.token(t, env.now.Add(time.Hour)), UserID: "5", Role: "subscriber"}

	req := httptestLoginRequest(env, `{"email":"sub@example.com","password":"pw"}`)
	req.AddCookie(&http.Cookie{Name: env.cfg.NavFromCookieName, Value: url.QueryEscape("/event-details?id=9")})
	rec := serve(env, req)
	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	if rec.Code != http.StatusOK || out["redirect"] != "/dashboard" || out["from"] != "/event-details?id=9" {
		t.Fatalf("expected dashboard redirect with recorded location reported, got %d %s", rec.Code, rec.Body.String())
	}
	if c := cookieNamed(rec, env.cfg.NavFromCookieName); c == nil || c.MaxAge >= 0 {
		t.Fatalf("expected intent cookie to be cleared")
	}

	req = httptestLoginRequest(env, `{"email":"sub@example.com","password":"pw"}`)
	req.AddCookie(&http.Cookie{Name: env.cfg.NavFromCookieName, Value: url.QueryEscape("//evil.example.com/")})
	rec = serve(env, req)
	out = nil
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	if _, ok := out["from"]; ok || out["redirect"] != "/dashboard" {
		t.Fatalf("cross-origin location must be ignored, got %s", rec.Body.String())
	}
}

func TestLogoutThenLoginCarriesNoStaleLocation(t *testing.T) {
	env := newTestEnv(t, nil)
	env.events.users["sub@example.com|pw"] = eventapi.LoginResult{Token: env.token(t, env.now.Add(time.Hour)), UserID: "5", Role: "subscriber"}
	key, _ := env.loginBrowser(t, "5", "subscriber", env.now.Add(time.Hour))

	rec := env.do(t, http.MethodGet, "/login", key, "")
	if rec.Code != http.StatusSeeOther || cookieNamed(rec, env.cfg.NavFromCookieName) != nil {
		t.Fatalf("expected intent-free redirect away from login, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/logout", nil)
	req.AddCookie(&http.Cookie{Name: env.cfg.SessionCookieName, Value: key})
	req.AddCookie(&http.Cookie{Name: env.cfg.CSRFCookieName, Value: testCSRF})
	req.AddCookie(&http.Cookie{Name: env.cfg.NavFromCookieName, Value: url.QueryEscape("/login")})
	req.Header.Set("X-CSRF-Token", testCSRF)
	rec = serve(env, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: %d %s", rec.Code, rec.Body.String())
	}
	if c := cookieNamed(rec, env.cfg.NavFromCookieName); c == nil || c.MaxAge >= 0 {
		t.Fatalf("expected logout to clear the recorded location")
	}

	rec = serve(env, httptestLoginRequest(env, `{"email":"sub@example.com","password":"pw"}`))
	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	if out["redirect"] != "/dashboard" {
		t.Fatalf("expected dashboard after login, got %s", rec.Body.String())
	}
	if _, ok := out["from"]; ok {
		t.Fatalf("expected no recorded location after logout, got %s", rec.Body.String())
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/api/v1/login", "", `{"email":"x@example.com","password":"nope"}`)
	if rec.Code != http.StatusUnauthorized || !strings.Contains(rec.Body.String(), "invalid_credentials") {
		t.Fatalf("expected 401 invalid_credentials, got %d %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodPost, "/api/v1/login", "", `{"email":"","password":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty credentials, got %d", rec.Code)
	}
}

func TestLoginIsRateLimited(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.LoginRateLimit = 2 })
	for i := 0; i < 2; i++ {
		env.do(t, http.MethodPost, "/api/v1/login", "", `{"email":"x@example.com","password":"nope"}`)
	}
	rec := env.do(t, http.MethodPost, "/api/v1/login", "", `{"email":"x@example.com","password":"nope"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

func TestLogoutClearsEverything(t *testing.T) {
	env := newTestEnv(t, nil)
	key, browserID := env.loginBrowser(t, "u1", "organizer", env.now.Add(time.Hour))
	rec := env.do(t, http.MethodPost, "/api/v1/logout", key, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"redirect":"/login"`) {
		t.Fatalf("unexpected logout response %d %s", rec.Code, rec.Body.String())
	}
	values, _ := env.kv.GetAll(context.Background(), browserID)
	if len(values) != 0 {
		t.Fatalf("expected storage cleared, got %v", values)
	}
	if c := cookieNamed(rec, env.cfg.SessionCookieName); c == nil || c.MaxAge >= 0 {
		t.Fatalf("expected browser cookie cleared")
	}
}

func TestMutatingCallsRequireCSRF(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptestLoginRequest(env, `{}`)
	req.Header.Del("X-CSRF-Token")
	rec := serve(env, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without csrf header, got %d", rec.Code)
	}
}

func TestStatusReportsRole(t *testing.T) {
	env := newTestEnv(t, nil)
	key, _ := env.loginBrowser(t, "u1", "organizer", env.now.Add(time.Hour))
	rec := env.do(t, http.MethodGet, "/api/v1/status", key, "")
	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	if out["fetching"] != false || out["authenticated"] != true || out["can_create"] != true || out["credential_live"] != true {
		t.Fatalf("unexpected status %v", out)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/status", "", "")
	out = nil
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	if out["authenticated"] != false || out["can_create"] != false {
		t.Fatalf("unexpected anonymous status %v", out)
	}
}

func TestStatusFetchingIsPerBrowser(t *testing.T) {
	env := newTestEnv(t, nil)
	keyA, _ := env.loginBrowser(t, "a", "subscriber", env.now.Add(time.Hour))
	keyB, _ := env.loginBrowser(t, "b", "subscriber", env.now.Add(time.Hour))
	env.do(t, http.MethodGet, "/dashboard", keyA, "")
	env.host.Wait()

	env.events.mu.Lock()
	env.events.hold = make(chan struct{})
	env.events.started = make(chan struct{}, 1)
	env.events.mu.Unlock()
	env.do(t, http.MethodGet, "/dashboard", keyB, "")
	<-env.events.started

	fetching := func(key string) any {
		var out map[string]any
		_ = json.Unmarshal(env.do(t, http.MethodGet, "/api/v1/status", key, "").Body.Bytes(), &out)
		return out["fetching"]
	}
	if fetching(keyA) != false {
		t.Fatalf("another browser's fetch must not show as loading")
	}
	if fetching(keyB) != true {
		t.Fatalf("expected the fetching browser to report loading")
	}
	close(env.events.hold)
	env.host.Wait()
	if fetching(keyB) != false {
		t.Fatalf("expected loading to end with the response")
	}
}
