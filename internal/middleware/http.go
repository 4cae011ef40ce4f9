package middleware

import (
	"context"
	"crypto/subtle"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"eventclient/internal/auth"
	"eventclient/internal/rate"
	"eventclient/internal/session"
	"eventclient/internal/util"
)

func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := uuid.NewString()
		r = r.WithContext(WithRequestID(r.Context(), rid))
		w.Header().Set("X-Request-ID", rid)
		next.ServeHTTP(w, r)
	})
}

// SessionLoader reads the persisted session of a browser.
type SessionLoader interface {
	Load(ctx context.Context, browserID string) (session.Session, error)
}

type CookieOptions struct {
	SessionName string
	CSRFName    string
	MaxAge      time.Duration
	Secure      func(r *http.Request) bool
}

// BrowserSession identifies the browser by its cookie, issuing one when it is
// missing, and loads the persisted session once for the request. A storage
// failure degrades to the anonymous session.
func BrowserSession(loader SessionLoader, opts CookieOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secure := opts.Secure != nil && opts.Secure(r)
			var browserID string
			if c, err := r.Cookie(opts.SessionName); err == nil && c.Value != "" {
				browserID = auth.HashBrowserKey(c.Value)
			} else {
				raw, hash, err := auth.NewBrowserKey()
				if err != nil {
					util.WriteError(w, http.StatusInternalServerError, "internal_error", "unable to start session", RequestID(r.Context()))
					return
				}
				browserID = hash
				http.SetCookie(w, &http.Cookie{
					Name:     opts.SessionName,
					Value:    raw,
					Path:     "/",
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
					MaxAge:   int(opts.MaxAge.Seconds()),
				})
			}
			if opts.CSRFName != "" {
				if c, err := r.Cookie(opts.CSRFName); err != nil || c.Value == "" {
					http.SetCookie(w, &http.Cookie{
						Name:     opts.CSRFName,
						Value:    uuid.NewString(),
						Path:     "/",
						HttpOnly: false,
						Secure:   secure,
						SameSite: http.SameSiteLaxMode,
						MaxAge:   int(opts.MaxAge.Seconds()),
					})
				}
			}
			sess, err := loader.Load(r.Context(), browserID)
			if err != nil {
				log.Printf("session_load_failed request_id=%s error=%v", RequestID(r.Context()), err)
				sess = session.Session{}
			}
			ctx := WithBrowserID(r.Context(), browserID)
			ctx = WithSession(ctx, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireIdentity rejects API calls from a browser without an identity.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !Session(r.Context()).Authenticated() {
			util.WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required", RequestID(r.Context()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func CSRFFromCookie(cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			h := r.Header.Get("X-CSRF-Token")
			c, err := r.Cookie(cookieName)
			if err != nil || c.Value == "" || h == "" {
				util.WriteError(w, http.StatusForbidden, "csrf_failed", "missing csrf token", RequestID(r.Context()))
				return
			}
			if subtle.ConstantTimeCompare([]byte(h), []byte(c.Value)) != 1 {
				util.WriteError(w, http.StatusForbidden, "csrf_failed", "invalid csrf token", RequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func RateLimit(l *rate.Limiter, route string, limit int, window time.Duration, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := route + ":" + ClientIP(r, trustProxy)
			if !l.Allow(key, limit, window) {
				util.WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", RequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			return strings.TrimSpace(parts[0])
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func RequestLogger(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sr, r)
			rid := RequestID(r.Context())
			log.Printf("request method=%s path=%s status=%d duration_ms=%d request_id=%s remote_ip=%s",
				r.Method, r.URL.Path, sr.status, time.Since(start).Milliseconds(), rid, ClientIP(r, trustProxy))
		})
	}
}
