package middleware

import (
	"context"
	"net/http"

	"eventclient/internal/session"
)

type ctxKey string

const (
	ctxRequestID ctxKey = "request_id"
	ctxBrowserID ctxKey = "browser_id"
	ctxSession   ctxKey = "session"
)

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxRequestID, id)
}

func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(ctxRequestID).(string)
	return v
}

// WithBrowserID stores the hashed browser key that names the persisted session.
func WithBrowserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxBrowserID, id)
}

func BrowserID(ctx context.Context) string {
	v, _ := ctx.Value(ctxBrowserID).(string)
	return v
}

func WithSession(ctx context.Context, s session.Session) context.Context {
	return context.WithValue(ctx, ctxSession, s)
}

// Session returns the session loaded for this request, or the anonymous session.
func Session(ctx context.Context) session.Session {
	s, _ := ctx.Value(ctxSession).(session.Session)
	return s
}

func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "same-origin")
		w.Header().Set(
			"Content-Security-Policy",
			"default-src 'self'; "+
				"img-src 'self' data:; "+
				"style-src 'self' 'unsafe-inline'; "+
				"font-src 'self' data:; "+
				"connect-src 'self'; "+
				"script-src 'self'; frame-ancestors 'none'; base-uri 'self'",
		)
		next.ServeHTTP(w, r)
	})
}
