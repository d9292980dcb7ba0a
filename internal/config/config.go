package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile         = ".env"
	defaultPort            = "8080"
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 120 * time.Second
	defaultAPITimeout      = 10 * time.Second
	defaultLINEAPIBaseURL  = "https://api.line.me"
	defaultStubUserID      = "dev-user"
	defaultStubDisplayName = "開発ユーザー"
	defaultViewTTL         = 30 * time.Minute
	defaultSessionIdle     = 30 * time.Minute
	defaultSessionLifetime = 12 * time.Hour
	defaultLocale          = "ja"
	defaultLogLevel        = "info"
)

// Name schemas accepted by LIFF_NAME_SCHEMA.
const (
	NameSchemaSplit    = "split"
	NameSchemaCombined = "combined"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server       ServerConfig
	LIFF         LIFFConfig
	Registration RegistrationConfig
	Session      SessionConfig
	Resources    ResourceConfig
	Observe      ObservabilityConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	Dev          bool
}

// LIFFConfig identifies the LIFF app and how sessions are verified.
type LIFFConfig struct {
	ID               string
	ChannelID        string
	LINEAPIBaseURL   string
	AllowStubSession bool
	StubUserID       string
	StubDisplayName  string
}

// RegistrationConfig controls the Registration API client and form behaviour.
type RegistrationConfig struct {
	APIBaseURL        string
	APITimeout        time.Duration
	CheckRegistration bool
	NameSchema        string
	CloseOnSuccess    bool
	ViewTTL           time.Duration
}

// SessionConfig holds cookie keys and lifetimes.
type SessionConfig struct {
	HashKey     []byte
	BlockKey    []byte
	Secure      bool
	IdleTimeout time.Duration
	Lifetime    time.Duration
}

// ResourceConfig points at on-disk templates, assets, locale bundles and notices.
type ResourceConfig struct {
	TemplatesDir  string
	PublicDir     string
	LocalesDir    string
	ContentDir    string
	DefaultLocale string
}

// ObservabilityConfig controls logging and tracing.
type ObservabilityConfig struct {
	LogLevel      string
	TraceExporter string
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map. Values in the map take precedence over
// system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles configuration from defaults, the .env file, the process environment and
// any explicit map, in increasing order of precedence.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	port := stringWithDefault(lookup, "LIFF_SERVER_PORT", "")
	if port == "" {
		// Cloud Run injects PORT.
		port = stringWithDefault(lookup, "PORT", defaultPort)
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         port,
			ReadTimeout:  durationWithDefault(lookup, "LIFF_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "LIFF_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "LIFF_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			Dev:          boolWithDefault(lookup, "LIFF_DEV", false),
		},
		LIFF: LIFFConfig{
			ID:               stringWithDefault(lookup, "LIFF_ID", ""),
			ChannelID:        stringWithDefault(lookup, "LIFF_CHANNEL_ID", ""),
			LINEAPIBaseURL:   strings.TrimRight(stringWithDefault(lookup, "LIFF_LINE_API_BASE_URL", defaultLINEAPIBaseURL), "/"),
			AllowStubSession: boolWithDefault(lookup, "LIFF_ALLOW_STUB_SESSION", false),
			StubUserID:       stringWithDefault(lookup, "LIFF_STUB_USER_ID", defaultStubUserID),
			StubDisplayName:  stringWithDefault(lookup, "LIFF_STUB_DISPLAY_NAME", defaultStubDisplayName),
		},
		Registration: RegistrationConfig{
			APIBaseURL:        strings.TrimSpace(stringWithDefault(lookup, "LIFF_API_BASE_URL", "")),
			APITimeout:        durationWithDefault(lookup, "LIFF_API_TIMEOUT", defaultAPITimeout),
			CheckRegistration: boolWithDefault(lookup, "LIFF_CHECK_REGISTRATION", true),
			NameSchema:        strings.ToLower(strings.TrimSpace(stringWithDefault(lookup, "LIFF_NAME_SCHEMA", NameSchemaSplit))),
			CloseOnSuccess:    boolWithDefault(lookup, "LIFF_CLOSE_ON_SUCCESS", true),
			ViewTTL:           durationWithDefault(lookup, "LIFF_VIEW_TTL", defaultViewTTL),
		},
		Session: SessionConfig{
			HashKey:     bytesWithDefault(lookup, "LIFF_SESSION_HASH_KEY"),
			BlockKey:    bytesWithDefault(lookup, "LIFF_SESSION_BLOCK_KEY"),
			Secure:      boolWithDefault(lookup, "LIFF_SESSION_SECURE", false),
			IdleTimeout: durationWithDefault(lookup, "LIFF_SESSION_IDLE_TIMEOUT", defaultSessionIdle),
			Lifetime:    durationWithDefault(lookup, "LIFF_SESSION_LIFETIME", defaultSessionLifetime),
		},
		Resources: ResourceConfig{
			TemplatesDir:  stringWithDefault(lookup, "LIFF_TEMPLATES_DIR", "templates"),
			PublicDir:     stringWithDefault(lookup, "LIFF_PUBLIC_DIR", "public"),
			LocalesDir:    stringWithDefault(lookup, "LIFF_LOCALES_DIR", "locales"),
			ContentDir:    stringWithDefault(lookup, "LIFF_CONTENT_DIR", "content"),
			DefaultLocale: strings.ToLower(stringWithDefault(lookup, "LIFF_DEFAULT_LOCALE", defaultLocale)),
		},
		Observe: ObservabilityConfig{
			LogLevel:      stringWithDefault(lookup, "LOG_LEVEL", defaultLogLevel),
			TraceExporter: strings.ToLower(stringWithDefault(lookup, "LIFF_TRACE_EXPORTER", "none")),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	var invalid []string

	if cfg.Server.Port == "" {
		invalid = append(invalid, "Server.Port")
	}
	if strings.TrimSpace(cfg.LIFF.ID) == "" {
		invalid = append(invalid, "LIFF.ID")
	}
	if cfg.LIFF.AllowStubSession && strings.TrimSpace(cfg.LIFF.StubUserID) == "" {
		invalid = append(invalid, "LIFF.StubUserID")
	}
	switch cfg.Registration.NameSchema {
	case NameSchemaSplit, NameSchemaCombined:
	default:
		invalid = append(invalid, "Registration.NameSchema")
	}
	if cfg.Registration.APITimeout <= 0 {
		invalid = append(invalid, "Registration.APITimeout")
	}
	if cfg.Registration.ViewTTL <= 0 {
		invalid = append(invalid, "Registration.ViewTTL")
	}
	if n := len(cfg.Session.HashKey); n != 0 && n < 32 {
		invalid = append(invalid, "Session.HashKey")
	}
	if n := len(cfg.Session.BlockKey); n != 0 && n != 16 && n != 24 && n != 32 {
		invalid = append(invalid, "Session.BlockKey")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return parsed
		}
		switch strings.ToLower(value) {
		case "yes", "on":
			return true
		case "no", "off":
			return false
		}
	}
	return fallback
}

func bytesWithDefault(lookup func(string) (string, bool), key string) []byte {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return []byte(strings.TrimSpace(value))
	}
	return nil
}
