package middleware

import (
	"context"
	"net/http"

	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/i18n"
)

// Locale picks the response language: an ?hl= override (remembered in the session), then
// the session, then Accept-Language.
func Locale(bundle *i18n.Bundle) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := GetSession(r)
			lang := ""
			if q := bundle.Normalize(r.URL.Query().Get("hl")); q != "" {
				lang = q
				if s != nil {
					s.SetLocale(q)
				}
			} else if s != nil {
				lang = bundle.Normalize(s.Locale())
			}
			if lang == "" {
				lang = bundle.Resolve(r.Header.Get("Accept-Language"))
			}

			w.Header().Add("Vary", "Accept-Language")
			w.Header().Set("Content-Language", lang)
			ctx := context.WithValue(r.Context(), ctxKeyLang, lang)
			ctx = context.WithValue(ctx, ctxKeyBundle, bundle)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
