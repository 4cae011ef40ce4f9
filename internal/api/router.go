package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"eventclient/internal/bootstrap"
	"eventclient/internal/config"
	"eventclient/internal/dashboard"
	"eventclient/internal/eventapi"
	"eventclient/internal/middleware"
	"eventclient/internal/nav"
	"eventclient/internal/obs"
	"eventclient/internal/rate"
	"eventclient/internal/session"
	"eventclient/internal/store"
	"eventclient/internal/util"
	"eventclient/internal/version"
)

// EventsAPI is the part of the events API client the handlers call directly.
type EventsAPI interface {
	Login(ctx context.Context, email, password string) (eventapi.LoginResult, error)
}

type Deps struct {
	Store      store.KV
	Sessions   *session.Manager
	Bootstrap  *bootstrap.Checker
	Table      *nav.Table
	Dashboards *dashboard.Host
	Events     EventsAPI
	// WebDir holds static assets. Defaults to "web".
	WebDir string
	Now    func() time.Time
}

type Handlers struct {
	cfg       config.Config
	kv        store.KV
	sessions  *session.Manager
	bootstrap *bootstrap.Checker
	table     *nav.Table
	dash      *dashboard.Host
	events    EventsAPI
	limiter   *rate.Limiter
	static    http.Handler
	now       func() time.Time
}

func NewRouter(cfg config.Config, d Deps) http.Handler {
	webDir := d.WebDir
	if webDir == "" {
		webDir = "web"
	}
	table := d.Table
	if table == nil {
		table = nav.DefaultTable()
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	h := &Handlers{
		cfg:       cfg,
		kv:        d.Store,
		sessions:  d.Sessions,
		bootstrap: d.Bootstrap,
		table:     table,
		dash:      d.Dashboards,
		events:    d.Events,
		limiter:   rate.NewLimiter(),
		static:    http.FileServer(http.Dir(webDir)),
		now:       now,
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.RequestLogger(cfg.TrustProxy))
	r.Use(obs.Instrument)
	r.Use(middleware.SecurityHeaders)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "X-CSRF-Token"},
			AllowCredentials: true,
		}))
	}

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		util.WriteJSON(w, 200, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ready := map[string]any{
			"checked_at": time.Now().UTC().Format(time.RFC3339),
		}
		if err := h.kv.Ping(r.Context()); err != nil {
			ready["status"] = "degraded"
			ready["components"] = map[string]any{"session_store": map[string]any{"ok": false, "error": err.Error()}}
			util.WriteJSON(w, 503, ready)
			return
		}
		ready["status"] = "ready"
		ready["components"] = map[string]any{"session_store": map[string]any{"ok": true}}
		util.WriteJSON(w, 200, ready)
	})
	r.Handle("/metrics", obs.Handler())

	sessionMW := middleware.BrowserSession(h.sessions, middleware.CookieOptions{
		SessionName: cfg.SessionCookieName,
		CSRFName:    cfg.CSRFCookieName,
		MaxAge:      cfg.SessionMaxAge(),
		Secure:      cfg.ResolveCookieSecure,
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(sessionMW)
		r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
			util.WriteJSON(w, 200, version.Current())
		})
		r.Get("/status", h.Status)
		r.Get("/navigate", h.NavigateJSON)

		r.Group(func(r chi.Router) {
			r.Use(middleware.CSRFFromCookie(h.cfg.CSRFCookieName))
			r.Post("/session/mount", h.Mount)
			r.With(middleware.RateLimit(h.limiter, "login", cfg.LoginRateLimit, cfg.LoginRateWindow(), cfg.TrustProxy)).Post("/login", h.Login)
			r.Post("/logout", h.Logout)
		})

		r.Route("/dashboard", func(r chi.Router) {
			r.Use(middleware.RequireIdentity)
			r.Get("/", h.DashboardState)
			r.Get("/options", h.DashboardOptions)
			r.Get("/notifications", h.DashboardNotifications)
			r.Group(func(r chi.Router) {
				r.Use(middleware.CSRFFromCookie(h.cfg.CSRFCookieName))
				r.Post("/event-type", h.SetEventType)
				r.Post("/status", h.SetStatus)
				r.Post("/fee-type", h.SetFeeType)
				r.Post("/date-range", h.SetDateRange)
				r.Post("/search", h.SubmitSearch)
				r.Post("/created-by-me", h.ToggleCreatedByMe)
				r.Post("/remove-filters", h.RemoveFilters)
				r.Post("/events/{id}/open", h.OpenEvent)
			})
		})
	})

	r.With(sessionMW).Get("/*", func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Path
		if strings.HasPrefix(p, "/api/") || strings.HasPrefix(p, "/health/") {
			http.NotFound(w, r)
			return
		}
		if isAssetPath(p) {
			h.static.ServeHTTP(w, r)
			return
		}
		h.NavigateDocument(w, r)
	})

	return r
}

// isAssetPath reports whether p names a static file rather than a view.
func isAssetPath(p string) bool {
	if strings.HasPrefix(p, "/assets/") {
		return true
	}
	last := p[strings.LastIndex(p, "/")+1:]
	return strings.Contains(last, ".")
}
