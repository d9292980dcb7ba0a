package regapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/observability"
	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/registration"
)

const (
	defaultTimeout    = 10 * time.Second
	idempotencyHeader = "Idempotency-Key"
	statusRegistered  = "registered"
	maxErrorBody      = 1 << 16
	instrumentation   = "github.com/qomolangma-jp/alumni-komatsu-liff/internal/regapi"
)

// ErrMissingUserID is returned when a lookup is attempted without a LINE user id.
var ErrMissingUserID = errors.New("regapi: missing line user id")

// HTTPClient matches the subset of http.Client used by Client.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Client talks to the Registration API.
type Client struct {
	base    *url.URL
	http    HTTPClient
	timeout time.Duration
	newKey  func() string
	tracer  trace.Tracer
	meter   metric.Meter
	latency metric.Float64Histogram
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc HTTPClient) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds every request. Expiry surfaces as a transport error.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithIdempotencyKeys overrides how Idempotency-Key values are generated.
func WithIdempotencyKeys(fn func() string) Option {
	return func(c *Client) {
		if fn != nil {
			c.newKey = fn
		}
	}
}

// WithMeter injects the meter used for request metrics. The global provider is used
// otherwise.
func WithMeter(m metric.Meter) Option {
	return func(c *Client) {
		if m != nil {
			c.meter = m
		}
	}
}

// NewClient constructs a client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errors.New("regapi: base URL is required")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("regapi: parse base URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("regapi: unsupported base URL scheme %q", parsed.Scheme)
	}

	c := &Client{
		base:    parsed,
		http:    http.DefaultClient,
		timeout: defaultTimeout,
		newKey:  func() string { return ulid.Make().String() },
		tracer:  otel.Tracer(instrumentation),
		meter:   otel.GetMeterProvider().Meter(instrumentation),
	}
	for _, opt := range opts {
		opt(c)
	}

	latency, err := c.meter.Float64Histogram(
		"regapi.request.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds of Registration API requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("regapi: register latency metric: %w", err)
	}
	c.latency = latency
	return c, nil
}

type userResponse struct {
	Status string                       `json:"status"`
	User   *registration.RegisteredUser `json:"user"`
}

type registerResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// CheckRegistration fetches the registration record of lineUserID. Any status other than
// "registered" is reported as not registered.
func (c *Client) CheckRegistration(ctx context.Context, lineUserID string) (registration.RegistrationStatus, error) {
	lineUserID = strings.TrimSpace(lineUserID)
	if lineUserID == "" {
		return registration.RegistrationStatus{}, ErrMissingUserID
	}

	ctx, span := c.tracer.Start(ctx, "regapi.CheckRegistration", trace.WithSpanKind(trace.SpanKindClient))
	var err error
	defer func() { observability.EndSpan(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, nil, "user", url.PathEscape(lineUserID))
	if err != nil {
		return registration.RegistrationStatus{}, err
	}
	resp, err := c.do(ctx, span, req)
	if err != nil {
		return registration.RegistrationStatus{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err = errorFromResponse("check registration", resp)
		return registration.RegistrationStatus{}, err
	}

	var payload userResponse
	if err = json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		err = fmt.Errorf("regapi: decode user response: %w", err)
		return registration.RegistrationStatus{}, err
	}
	if payload.Status != statusRegistered || payload.User == nil {
		return registration.RegistrationStatus{}, nil
	}
	return registration.RegistrationStatus{Registered: true, User: *payload.User}, nil
}

// Register posts a registration. A 2xx reply is returned as an Ack whatever its status;
// other replies become *Error.
func (c *Client) Register(ctx context.Context, body registration.RegisterRequest) (registration.Ack, error) {
	ctx, span := c.tracer.Start(ctx, "regapi.Register", trace.WithSpanKind(trace.SpanKindClient))
	var err error
	defer func() { observability.EndSpan(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err = enc.Encode(body); err != nil {
		err = fmt.Errorf("regapi: encode payload: %w", err)
		return registration.Ack{}, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, &buf, "register")
	if err != nil {
		return registration.Ack{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(idempotencyHeader, c.newKey())

	resp, err := c.do(ctx, span, req)
	if err != nil {
		return registration.Ack{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err = errorFromResponse("register", resp)
		return registration.Ack{}, err
	}

	var payload registerResponse
	if err = json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		err = fmt.Errorf("regapi: decode register response: %w", err)
		return registration.Ack{}, err
	}
	return registration.Ack{Status: payload.Status, Message: payload.Message}, nil
}

func (c *Client) newRequest(ctx context.Context, method string, body io.Reader, elem ...string) (*http.Request, error) {
	endpoint := c.base.JoinPath(elem...)
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return nil, fmt.Errorf("regapi: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	return req, nil
}

func (c *Client) do(ctx context.Context, span trace.Span, req *http.Request) (*http.Response, error) {
	span.SetAttributes(
		attribute.String("http.request.method", req.Method),
		attribute.String("url.path", req.URL.Path),
	)
	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)
	logger := observability.FromContext(ctx).With(
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Duration("latency", elapsed),
	)

	outcome := "error"
	if err == nil {
		outcome = strconv.Itoa(resp.StatusCode)
	}
	c.latency.Record(ctx, float64(elapsed.Microseconds())/1000, metric.WithAttributes(
		attribute.String("http.request.method", req.Method),
		attribute.String("outcome", outcome),
	))

	if err != nil {
		logger.Debug("registration api request failed", zap.Error(err))
		return nil, fmt.Errorf("regapi: request failed: %w", err)
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	logger.Debug("registration api request", zap.Int("status", resp.StatusCode))
	return resp, nil
}
