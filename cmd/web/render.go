package main

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/handlers"
	mw "github.com/qomolangma-jp/alumni-komatsu-liff/internal/middleware"
	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/observability"
)

// templateSet parses every .tmpl under dir. In dev mode templates are reparsed on each
// request.
type templateSet struct {
	dir    string
	dev    bool
	parsed *template.Template
}

func newTemplateSet(dir string, dev bool) (*templateSet, error) {
	ts := &templateSet{dir: dir, dev: dev}
	if dev {
		return ts, nil
	}
	t, err := parseTemplates(dir)
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	ts.parsed = t
	return ts, nil
}

func (ts *templateSet) get() (*template.Template, error) {
	if ts.dev {
		return parseTemplates(ts.dir)
	}
	if ts.parsed == nil {
		return nil, fmt.Errorf("templates not initialized")
	}
	return ts.parsed, nil
}

func parseTemplates(dir string) (*template.Template, error) {
	funcMap := template.FuncMap{
		"now": time.Now,
	}
	// ParseGlob doesn't support **, so walk the tree.
	var files []string
	if err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".tmpl") {
			files = append(files, path)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no templates found under %s", dir)
	}
	return template.New("_root").Funcs(funcMap).ParseFiles(files...)
}

// renderPage executes the base layout.
func (a *app) renderPage(w http.ResponseWriter, r *http.Request, vm handlers.PageData) {
	a.renderTemplate(w, r, "base", vm)
}

// renderTemplate executes a named template into a buffer first so a failure still yields
// a clean error response.
func (a *app) renderTemplate(w http.ResponseWriter, r *http.Request, name string, data any) {
	logger := observability.FromContext(r.Context())
	t, err := a.templates.get()
	if err != nil {
		logger.Error("template parse failed", zap.Error(err))
		a.renderError(w, r, http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, data); err != nil {
		logger.Error("template exec failed", zap.String("template", name), zap.Error(err))
		a.renderError(w, r, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (a *app) renderError(w http.ResponseWriter, r *http.Request, code int) {
	key := "error.internal"
	if code == http.StatusBadRequest {
		key = "error.bad_request"
	}
	http.Error(w, a.bundle.T(mw.Lang(r), key), code)
}
