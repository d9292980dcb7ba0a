package middleware

import (
	"encoding/json"
	"net/http"
)

// Message keys answered by the middleware chain itself.
const (
	ErrKeyInternal       = "error.internal"
	ErrKeySessionExpired = "registration.status.session_expired"
)

type errorResponse struct {
	Key     string `json:"key"`
	Message string `json:"message"`
}

// writeError answers with the translated message for key. htmx requests get JSON and
// HX-Reswap: none so the current view stays on screen.
func writeError(w http.ResponseWriter, r *http.Request, code int, key string) {
	msg := Translate(r, key)
	if IsHTMX(r.Context()) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("HX-Reswap", "none")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(errorResponse{Key: key, Message: msg})
		return
	}
	http.Error(w, msg, code)
}
