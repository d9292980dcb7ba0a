package liff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/observability"
	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/registration"
)

const (
	lineIssuer      = "https://access.line.me"
	instrumentation = "github.com/qomolangma-jp/alumni-komatsu-liff/internal/liff"
)

var (
	// ErrInvalidToken is returned when a token fails signature or claim checks.
	ErrInvalidToken = errors.New("liff: invalid token")
	// ErrNoToken is returned when the browser reported no usable token.
	ErrNoToken = errors.New("liff: no token supplied")
)

// HTTPClient matches the subset of http.Client used by this package.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Verifier turns tokens issued to the LIFF app into a verified profile.
type Verifier struct {
	baseURL   string
	channelID string
	client    HTTPClient
	keys      *KeySet
	logger    *zap.Logger
	now       func() time.Time
	tracer    trace.Tracer
}

// VerifierOption customises a Verifier.
type VerifierOption func(*Verifier)

// WithHTTPClient overrides the client used for LINE platform calls.
func WithHTTPClient(client HTTPClient) VerifierOption {
	return func(v *Verifier) {
		if client != nil {
			v.client = client
		}
	}
}

// WithClock injects a time source for claim validation.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// WithLogger sets the logger used outside request scope.
func WithLogger(logger *zap.Logger) VerifierOption {
	return func(v *Verifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// NewVerifier constructs a verifier against the LINE platform at baseURL. channelID is the
// LINE Login channel the LIFF app belongs to; ID tokens are only accepted when it is set.
func NewVerifier(baseURL, channelID string, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		baseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		channelID: strings.TrimSpace(channelID),
		client:    &http.Client{Timeout: 10 * time.Second},
		logger:    zap.NewNop(),
		now:       time.Now,
		tracer:    otel.Tracer(instrumentation),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.keys = NewKeySet(v.baseURL+"/oauth2/v2.1/certs", v.client, v.logger)
	v.keys.now = v.now
	return v
}

type idTokenClaims struct {
	jwt.RegisteredClaims
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// VerifyIDToken checks an ES256 ID token issued for the channel and returns its subject.
func (v *Verifier) VerifyIDToken(ctx context.Context, raw string) (registration.Profile, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return registration.Profile{}, ErrNoToken
	}
	if v.channelID == "" {
		return registration.Profile{}, fmt.Errorf("%w: channel id not configured", ErrInvalidToken)
	}

	ctx, span := v.tracer.Start(ctx, "liff.VerifyIDToken")
	var err error
	defer func() { observability.EndSpan(span, err) }()

	var claims idTokenClaims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}), jwt.WithoutClaimsValidation())
	if _, err = parser.ParseWithClaims(raw, &claims, v.keys.Keyfunc(ctx)); err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidToken, err)
		return registration.Profile{}, err
	}

	now := v.now()
	switch {
	case !claims.VerifyExpiresAt(now, true):
		err = fmt.Errorf("%w: expired", ErrInvalidToken)
	case !claims.VerifyIssuedAt(now.Add(time.Minute), false):
		err = fmt.Errorf("%w: issued in the future", ErrInvalidToken)
	case !claims.VerifyIssuer(lineIssuer, true):
		err = fmt.Errorf("%w: unexpected issuer %q", ErrInvalidToken, claims.Issuer)
	case !claims.VerifyAudience(v.channelID, true):
		err = fmt.Errorf("%w: audience mismatch", ErrInvalidToken)
	case strings.TrimSpace(claims.Subject) == "":
		err = fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if err != nil {
		return registration.Profile{}, err
	}
	return registration.Profile{ID: claims.Subject, DisplayName: claims.Name}, nil
}

type verifyResponse struct {
	ClientID  string `json:"client_id"`
	ExpiresIn int64  `json:"expires_in"`
	Scope     string `json:"scope"`
}

type profileResponse struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

// VerifyAccessToken validates an access token with LINE and fetches the profile it grants.
func (v *Verifier) VerifyAccessToken(ctx context.Context, token string) (registration.Profile, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return registration.Profile{}, ErrNoToken
	}

	ctx, span := v.tracer.Start(ctx, "liff.VerifyAccessToken")
	var err error
	defer func() { observability.EndSpan(span, err) }()

	verifyURL := v.baseURL + "/oauth2/v2.1/verify?" + url.Values{"access_token": {token}}.Encode()
	var verified verifyResponse
	if err = v.getJSON(ctx, verifyURL, "", &verified); err != nil {
		return registration.Profile{}, err
	}
	if verified.ExpiresIn <= 0 {
		err = fmt.Errorf("%w: access token expired", ErrInvalidToken)
		return registration.Profile{}, err
	}
	if v.channelID != "" && verified.ClientID != v.channelID {
		err = fmt.Errorf("%w: access token issued for another channel", ErrInvalidToken)
		return registration.Profile{}, err
	}

	var profile profileResponse
	if err = v.getJSON(ctx, v.baseURL+"/v2/profile", token, &profile); err != nil {
		return registration.Profile{}, err
	}
	if strings.TrimSpace(profile.UserID) == "" {
		err = fmt.Errorf("%w: profile has no user id", ErrInvalidToken)
		return registration.Profile{}, err
	}
	return registration.Profile{ID: profile.UserID, DisplayName: profile.DisplayName}, nil
}

func (v *Verifier) getJSON(ctx context.Context, endpoint, bearer string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("liff: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("liff: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		observability.FromContext(ctx).Debug("line platform rejected token",
			zap.Int("status", resp.StatusCode),
			zap.String("path", req.URL.Path),
		)
		return fmt.Errorf("%w: status %d: %s", ErrInvalidToken, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("liff: decode %s: %w", req.URL.Path, err)
	}
	return nil
}
