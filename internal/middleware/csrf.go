package middleware

import (
	"crypto/subtle"
	"net/http"

	"go.uber.org/zap"

	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/observability"
)

const (
	CSRFHeader    = "X-CSRF-Token"
	CSRFFormField = "csrf_token"
)

// CSRF makes sure the session carries a token and rejects unsafe requests that do not
// echo it in the X-CSRF-Token header or the csrf_token form field.
func CSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := GetSession(r)
		if s == nil {
			writeError(w, r, http.StatusInternalServerError, ErrKeyInternal)
			return
		}
		token, err := s.EnsureCSRFToken()
		if err != nil {
			observability.FromContext(r.Context()).Error("csrf token generation failed", zap.Error(err))
			writeError(w, r, http.StatusInternalServerError, ErrKeyInternal)
			return
		}

		if !isSafeMethod(r.Method) {
			sent := r.Header.Get(CSRFHeader)
			if sent == "" {
				sent = r.PostFormValue(CSRFFormField)
			}
			if sent == "" || subtle.ConstantTimeCompare([]byte(sent), []byte(token)) != 1 {
				observability.FromContext(r.Context()).Warn("csrf token mismatch")
				writeError(w, r, http.StatusForbidden, ErrKeySessionExpired)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// CSRFToken returns the token of the request session.
func CSRFToken(r *http.Request) string {
	if s := GetSession(r); s != nil {
		return s.CSRFToken()
	}
	return ""
}

func isSafeMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}
