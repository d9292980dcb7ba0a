package middleware

import "net/http"

// hookWriter runs a callback once, right before the response headers are sent.
type hookWriter struct {
	http.ResponseWriter
	before func(http.ResponseWriter)
	wrote  bool
}

func newHookWriter(w http.ResponseWriter, before func(http.ResponseWriter)) *hookWriter {
	return &hookWriter{ResponseWriter: w, before: before}
}

func (w *hookWriter) fire() {
	if w.wrote {
		return
	}
	w.wrote = true
	if w.before != nil {
		w.before(w.ResponseWriter)
	}
}

func (w *hookWriter) WriteHeader(statusCode int) {
	w.fire()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *hookWriter) Write(b []byte) (int, error) {
	w.fire()
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *hookWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
