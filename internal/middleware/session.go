package middleware

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/observability"
	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/session"
)

// Session loads the cookie session into the request context and writes it back just before
// the first byte of the response when it changed.
func Session(mgr *session.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logger := observability.FromContext(ctx)

			sess, err := mgr.Load(r)
			if err != nil {
				if !errors.Is(err, session.ErrExpired) {
					logger.Warn("session load failed", zap.Error(err))
				}
				sess = mgr.New()
				ctx = context.WithValue(ctx, ctxKeySessionExpired, errors.Is(err, session.ErrExpired))
			}
			ctx = WithSession(ctx, sess)

			hw := newHookWriter(w, func(w http.ResponseWriter) {
				if !sess.Dirty() {
					return
				}
				if err := mgr.Save(w, sess); err != nil {
					logger.Error("session save failed", zap.Error(err))
				}
			})
			next.ServeHTTP(hw, r.WithContext(ctx))
			// Nothing was written (e.g. HEAD); persist now.
			hw.fire()
		})
	}
}
