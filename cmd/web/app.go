package main

import (
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/config"
	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/content"
	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/i18n"
	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/liff"
	mw "github.com/qomolangma-jp/alumni-komatsu-liff/internal/middleware"
	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/observability"
	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/regapi"
	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/registration"
	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/session"
	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/viewstore"
)

const minRequestTimeout = 30 * time.Second

// app holds the dependencies shared by the HTTP handlers.
type app struct {
	cfg        config.Config
	logger     *zap.Logger
	bundle     *i18n.Bundle
	notices    *content.Library
	sessions   *session.Manager
	controller *registration.Controller
	views      *viewstore.Store
	verifier   liff.TokenVerifier
	templates  *templateSet
	newViewID  func() string
}

type appOption func(*appDeps)

type appDeps struct {
	api      registration.API
	verifier liff.TokenVerifier
	now      func() time.Time
}

func withAPI(api registration.API) appOption {
	return func(d *appDeps) { d.api = api }
}

func withVerifier(v liff.TokenVerifier) appOption {
	return func(d *appDeps) { d.verifier = v }
}

func withClock(now func() time.Time) appOption {
	return func(d *appDeps) { d.now = now }
}

func newApp(cfg config.Config, logger *zap.Logger, opts ...appOption) (*app, error) {
	deps := appDeps{now: time.Now}
	for _, opt := range opts {
		opt(&deps)
	}

	bundle, err := i18n.Load(cfg.Resources.LocalesDir, cfg.Resources.DefaultLocale, []string{"ja", "en"})
	if err != nil {
		return nil, err
	}

	hashKey, blockKey := cfg.Session.HashKey, cfg.Session.BlockKey
	if len(hashKey) == 0 {
		logger.Warn("using ephemeral session keys; set LIFF_SESSION_HASH_KEY and LIFF_SESSION_BLOCK_KEY in production")
		hashKey, blockKey = session.EphemeralKeys()
	}
	sessions, err := session.NewManager(session.Config{
		HashKey:      hashKey,
		BlockKey:     blockKey,
		CookieSecure: cfg.Session.Secure,
		IdleTimeout:  cfg.Session.IdleTimeout,
		Lifetime:     cfg.Session.Lifetime,
	})
	if err != nil {
		return nil, err
	}

	if deps.api == nil {
		if deps.api, err = newRegistrationAPI(cfg, logger); err != nil {
			return nil, err
		}
	}
	if deps.verifier == nil {
		deps.verifier = liff.NewVerifier(cfg.LIFF.LINEAPIBaseURL, cfg.LIFF.ChannelID, liff.WithLogger(logger))
	}
	if cfg.LIFF.ChannelID == "" {
		logger.Warn("LIFF_CHANNEL_ID not set; access tokens from any LINE channel are accepted")
	}

	var contentOpts []content.Option
	if cfg.Server.Dev {
		contentOpts = append(contentOpts, content.WithoutCache())
	}

	templates, err := newTemplateSet(cfg.Resources.TemplatesDir, cfg.Server.Dev)
	if err != nil {
		return nil, err
	}

	controller := registration.NewController(deps.api, registration.Options{
		Schema:            registration.ParseNameSchema(cfg.Registration.NameSchema),
		CheckRegistration: cfg.Registration.CheckRegistration,
		CloseOnSuccess:    cfg.Registration.CloseOnSuccess,
		AllowStubSession:  cfg.LIFF.AllowStubSession,
		StubProfile: registration.Profile{
			ID:          cfg.LIFF.StubUserID,
			DisplayName: cfg.LIFF.StubDisplayName,
		},
		Timeout: cfg.Registration.APITimeout,
		Now:     deps.now,
	})

	return &app{
		cfg:        cfg,
		logger:     logger,
		bundle:     bundle,
		notices:    content.NewLibrary(cfg.Resources.ContentDir, bundle.Fallback(), contentOpts...),
		sessions:   sessions,
		controller: controller,
		views:      viewstore.New(cfg.Registration.ViewTTL, 0),
		verifier:   deps.verifier,
		templates:  templates,
		newViewID:  func() string { return ulid.Make().String() },
	}, nil
}

// newRegistrationAPI returns the HTTP client, or the in-memory fake when no base URL is
// configured.
func newRegistrationAPI(cfg config.Config, logger *zap.Logger) (registration.API, error) {
	if cfg.Registration.APIBaseURL == "" {
		logger.Warn("LIFF_API_BASE_URL not set; using in-memory registration API")
		return regapi.NewStatic(nil), nil
	}
	client, err := regapi.NewClient(cfg.Registration.APIBaseURL, regapi.WithTimeout(cfg.Registration.APITimeout))
	if err != nil {
		return nil, fmt.Errorf("registration api: %w", err)
	}
	return client, nil
}

func (a *app) routes() http.Handler {
	requestTimeout := 3 * a.cfg.Registration.APITimeout
	if requestTimeout < minRequestTimeout {
		requestTimeout = minRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	// RealIP trusts X-Forwarded-For; deploy behind a proxy that sets it.
	r.Use(chimw.RealIP)
	r.Use(observability.TraceMiddleware)
	r.Use(observability.RequestLogger(a.logger))
	r.Use(observability.Recovery)
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(requestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	assets := http.StripPrefix("/assets", mw.AssetsWithCache(filepath.Join(a.cfg.Resources.PublicDir, "assets")))
	r.Handle("/assets/*", assets)

	r.Group(func(r chi.Router) {
		r.Use(mw.HTMX)
		r.Use(mw.Session(a.sessions))
		r.Use(mw.Locale(a.bundle))
		r.Use(mw.CSRF)
		r.Use(mw.NoStore)

		r.Get("/", a.RegistrationPageHandler)
		r.Post("/liff/bootstrap", a.LIFFBootstrapHandler)
		r.Post("/register/input", a.RegistrationInputHandler)
		r.Post("/register", a.RegisterSubmitHandler)
	})
	return r
}
