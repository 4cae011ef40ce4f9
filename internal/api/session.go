package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"eventclient/internal/auth"
	"eventclient/internal/bootstrap"
	"eventclient/internal/dashboard"
	"eventclient/internal/eventapi"
	"eventclient/internal/middleware"
	"eventclient/internal/nav"
	"eventclient/internal/obs"
	"eventclient/internal/session"
	"eventclient/internal/util"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Mount runs the expiry check for an SPA shell that was not loaded through
// a document navigation.
func (h *Handlers) Mount(w http.ResponseWriter, r *http.Request) {
	res, err := h.runBootstrap(w, r)
	if err != nil {
		util.WriteError(w, 500, "internal_error", "session check failed", middleware.RequestID(r.Context()))
		return
	}
	util.WriteJSON(w, 200, res)
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		util.WriteError(w, 400, "bad_request", "invalid json", middleware.RequestID(r.Context()))
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		util.WriteError(w, 400, "bad_request", "email and password are required", middleware.RequestID(r.Context()))
		return
	}
	res, err := h.events.Login(r.Context(), email, req.Password)
	if err != nil {
		status, code, msg := 502, "upstream_error", "login service unavailable"
		var apiErr *eventapi.Error
		if errors.Is(err, eventapi.ErrUnauthorized) {
			status, code, msg = 401, "invalid_credentials", "invalid email or password"
		} else if errors.As(err, &apiErr) && apiErr.Status < 500 {
			status, code, msg = 400, "login_rejected", apiErr.Message
		}
		log.Printf("login_failed request_id=%s status=%d error=%v", middleware.RequestID(r.Context()), status, err)
		util.WriteError(w, status, code, msg, middleware.RequestID(r.Context()))
		return
	}

	// A fresh browser key on every login so a pre-login cookie never names
	// an authenticated session.
	oldID := middleware.BrowserID(r.Context())
	raw, browserID, err := auth.NewBrowserKey()
	if err != nil {
		util.WriteError(w, 500, "internal_error", "unable to start session", middleware.RequestID(r.Context()))
		return
	}
	if err := h.sessions.Clear(r.Context(), oldID); err != nil {
		log.Printf("session_clear_failed request_id=%s error=%v", middleware.RequestID(r.Context()), err)
	}
	h.dash.Drop(oldID)
	if err := h.sessions.Login(r.Context(), browserID, res.UserID, res.Role, res.Token); err != nil {
		util.WriteError(w, 500, "internal_error", "unable to persist session", middleware.RequestID(r.Context()))
		return
	}

	csrfToken := randomToken()
	h.setAuthCookies(w, r, raw, csrfToken)
	h.clearNavFrom(w, r)
	out := map[string]any{
		"user_id":    res.UserID,
		"role":       res.Role,
		"can_create": dashboard.CanCreate(session.Session{Identity: res.UserID, Role: res.Role}),
		"csrf_token": csrfToken,
		"redirect":   nav.DashboardPath,
	}
	// The recorded location is reported but not followed.
	if from, ok := h.navFrom(r); ok {
		out["from"] = from
	}
	util.WriteJSON(w, 200, out)
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	browserID := middleware.BrowserID(r.Context())
	if err := h.sessions.Clear(r.Context(), browserID); err != nil {
		log.Printf("session_clear_failed request_id=%s error=%v", middleware.RequestID(r.Context()), err)
	}
	h.dash.Drop(browserID)
	h.clearAuthCookies(w, r)
	h.clearNavFrom(w, r)
	util.WriteJSON(w, 200, map[string]string{"status": "ok", "redirect": nav.LoginPath})
}

// Status feeds the layout: the loading overlay and the signed-in header.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	sess := middleware.Session(r.Context())
	out := map[string]any{
		"fetching":      h.dash.Fetching(middleware.BrowserID(r.Context())),
		"authenticated": sess.Authenticated(),
		"can_create":    false,
	}
	if sess.Authenticated() {
		out["user_id"] = sess.Identity
		out["role"] = sess.Role
		out["can_create"] = dashboard.CanCreate(sess)
		if sess.Credential != nil {
			out["credential_live"] = sess.Live(h.now())
			out["expires_at"] = sess.Credential.Exp.UTC().Format(time.RFC3339)
		}
	}
	util.WriteJSON(w, 200, out)
}

// runBootstrap clears an expired session together with its dashboard view
// and any recorded location.
func (h *Handlers) runBootstrap(w http.ResponseWriter, r *http.Request) (bootstrap.Result, error) {
	browserID := middleware.BrowserID(r.Context())
	res, err := h.bootstrap.Run(r.Context(), browserID)
	if err != nil {
		log.Printf("bootstrap_failed request_id=%s error=%v", middleware.RequestID(r.Context()), err)
		return bootstrap.Result{}, err
	}
	if res.Expired {
		obs.SessionExpired()
		h.dash.Drop(browserID)
		h.clearNavFrom(w, r)
	}
	return res, nil
}

func (h *Handlers) setNavFrom(w http.ResponseWriter, r *http.Request, from nav.Location) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.NavFromCookieName,
		Value:    url.QueryEscape(from.String()),
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cfg.ResolveCookieSecure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(navFromTTL.Seconds()),
	})
}

// navFrom returns the location recorded by the last redirect to login. Only
// same-origin paths are honoured.
func (h *Handlers) navFrom(r *http.Request) (string, bool) {
	c, err := r.Cookie(h.cfg.NavFromCookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	v, err := url.QueryUnescape(c.Value)
	if err != nil || !strings.HasPrefix(v, "/") || strings.HasPrefix(v, "//") || strings.Contains(v, "\\") {
		return "", false
	}
	return v, true
}

func (h *Handlers) clearNavFrom(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.NavFromCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cfg.ResolveCookieSecure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(1, 0).UTC(),
	})
}
