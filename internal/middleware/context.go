package middleware

import (
	"context"
	"net/http"

	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/i18n"
	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/session"
)

// context keys are unexported to avoid collisions
type ctxKey string

const (
	ctxKeyIsHTMX         ctxKey = "is_htmx"
	ctxKeySession        ctxKey = "session"
	ctxKeySessionExpired ctxKey = "session_expired"
	ctxKeyLang           ctxKey = "lang"
	ctxKeyBundle         ctxKey = "bundle"
)

// WithHTMX marks request as HTMX
func WithHTMX(ctx context.Context, is bool) context.Context {
	return context.WithValue(ctx, ctxKeyIsHTMX, is)
}

// IsHTMX returns whether this is an htmx request
func IsHTMX(ctx context.Context) bool {
	v, _ := ctx.Value(ctxKeyIsHTMX).(bool)
	return v
}

// WithSession stores the request session.
func WithSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, ctxKeySession, s)
}

// GetSession returns the request session, or nil outside the Session middleware.
func GetSession(r *http.Request) *session.Session {
	s, _ := r.Context().Value(ctxKeySession).(*session.Session)
	return s
}

// SessionExpired reports whether the browser presented a session that had expired and was
// replaced for this request.
func SessionExpired(ctx context.Context) bool {
	v, _ := ctx.Value(ctxKeySessionExpired).(bool)
	return v
}

// Lang returns the locale chosen by the Locale middleware, or "ja".
func Lang(r *http.Request) string {
	if v, ok := r.Context().Value(ctxKeyLang).(string); ok && v != "" {
		return v
	}
	return "ja"
}

// Translate looks key up in the bundle installed by the Locale middleware. Without one the
// key itself is returned.
func Translate(r *http.Request, key string) string {
	b, ok := r.Context().Value(ctxKeyBundle).(*i18n.Bundle)
	if !ok || b == nil {
		return key
	}
	return b.T(Lang(r), key)
}
