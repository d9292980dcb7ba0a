package regapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/regapi"
	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/registration"
)

func TestCheckRegistrationRegistered(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/user/U123", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"registered","user":{"email":"taro@example.com","graduation_year":2008,"main":{"kana_sei":"ヤマダ"}}}`))
	}))
	t.Cleanup(ts.Close)

	client, err := regapi.NewClient(ts.URL+"/api/", regapi.WithHTTPClient(ts.Client()))
	require.NoError(t, err)

	status, err := client.CheckRegistration(context.Background(), "U123")
	require.NoError(t, err)
	require.True(t, status.Registered)
	require.Equal(t, "taro@example.com", status.User.Email.String())
	require.Equal(t, "2008", status.User.GraduationYear.String())
	require.Equal(t, "ヤマダ", registration.Surname(status.User))
}

func TestCheckRegistrationOtherStatus(t *testing.T) {
	t.Parallel()

	for _, body := range []string{`{"status":"not_registered"}`, `{"status":"registered"}`, `{}`} {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		client, err := regapi.NewClient(ts.URL, regapi.WithHTTPClient(ts.Client()))
		require.NoError(t, err)

		status, err := client.CheckRegistration(context.Background(), "U1")
		require.NoError(t, err, body)
		require.False(t, status.Registered, body)
		ts.Close()
	}
}

func TestCheckRegistrationEscapesUserID(t *testing.T) {
	t.Parallel()

	var rawPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawPath = r.URL.EscapedPath()
		_, _ = w.Write([]byte(`{"status":"none"}`))
	}))
	t.Cleanup(ts.Close)

	client, err := regapi.NewClient(ts.URL, regapi.WithHTTPClient(ts.Client()))
	require.NoError(t, err)

	_, err = client.CheckRegistration(context.Background(), "U1/../admin")
	require.NoError(t, err)
	require.Equal(t, "/user/U1%2F..%2Fadmin", rawPath)

	_, err = client.CheckRegistration(context.Background(), "  ")
	require.ErrorIs(t, err, regapi.ErrMissingUserID)
}

func TestCheckRegistrationNon2xxIsError(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	t.Cleanup(ts.Close)

	client, err := regapi.NewClient(ts.URL, regapi.WithHTTPClient(ts.Client()))
	require.NoError(t, err)

	_, err = client.CheckRegistration(context.Background(), "U1")
	var apiErr *regapi.Error
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	require.Equal(t, "upstream unavailable", apiErr.Body)
	require.Empty(t, apiErr.ServerMessage())
}

func TestRegisterPostsPayload(t *testing.T) {
	t.Parallel()

	var received map[string]any
	var idempotencyKey string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/register", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		idempotencyKey = r.Header.Get("Idempotency-Key")

		defer r.Body.Close()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = w.Write([]byte(`{"status":"success"}`))
	}))
	t.Cleanup(ts.Close)

	client, err := regapi.NewClient(ts.URL,
		regapi.WithHTTPClient(ts.Client()),
		regapi.WithIdempotencyKeys(func() string { return "01HZZZTESTKEY" }),
	)
	require.NoError(t, err)

	req := registration.BuildRequest(registration.SchemaSplit, registration.FormFields{
		registration.FieldEmail:          "taro@example.com",
		registration.FieldLastName:       "山田",
		registration.FieldFirstName:      "太郎",
		registration.FieldGraduationYear: "2008",
	}, registration.Profile{ID: "U123"})

	ack, err := client.Register(context.Background(), req)
	require.NoError(t, err)
	require.True(t, ack.Succeeded())
	require.Equal(t, "01HZZZTESTKEY", idempotencyKey)
	require.Equal(t, "U123", received["line_user_id"])
	require.Equal(t, "山田", received["last_name"])
	require.Equal(t, float64(2008), received["graduation_year"])
	require.Equal(t, "", received["old_name"])
}

func TestRegisterNonSuccessStatusIsAck(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"error","message":"duplicate email"}`))
	}))
	t.Cleanup(ts.Close)

	client, err := regapi.NewClient(ts.URL, regapi.WithHTTPClient(ts.Client()))
	require.NoError(t, err)

	ack, err := client.Register(context.Background(), registration.RegisterRequest{LineUserID: "U1"})
	require.NoError(t, err)
	require.False(t, ack.Succeeded())
	require.Equal(t, "duplicate email", ack.Message)
}

func TestRegisterErrorCarriesServerMessage(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"X"}`))
	}))
	t.Cleanup(ts.Close)

	client, err := regapi.NewClient(ts.URL, regapi.WithHTTPClient(ts.Client()))
	require.NoError(t, err)

	_, err = client.Register(context.Background(), registration.RegisterRequest{LineUserID: "U1"})
	require.Error(t, err)

	var sm registration.ServerMessager
	require.True(t, errors.As(err, &sm))
	require.Equal(t, "X", sm.ServerMessage())
	require.Contains(t, err.Error(), "status 400")
}

func TestRegisterGatewayPageIsNotAServerMessage(t *testing.T) {
	t.Parallel()

	page := "<html><body><h1>502 Bad Gateway</h1></body></html>"
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(page))
	}))
	t.Cleanup(ts.Close)

	client, err := regapi.NewClient(ts.URL, regapi.WithHTTPClient(ts.Client()))
	require.NoError(t, err)

	_, err = client.Register(context.Background(), registration.RegisterRequest{LineUserID: "U1"})
	var sm registration.ServerMessager
	require.True(t, errors.As(err, &sm))
	require.Empty(t, sm.ServerMessage())

	var sc registration.StatusCoder
	require.True(t, errors.As(err, &sc))
	require.Equal(t, http.StatusBadGateway, sc.HTTPStatus())

	var apiErr *regapi.Error
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, page, apiErr.Body)
}

func TestRegisterTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		ts.Close()
	})

	client, err := regapi.NewClient(ts.URL, regapi.WithHTTPClient(ts.Client()), regapi.WithTimeout(30*time.Millisecond))
	require.NoError(t, err)

	_, err = client.Register(context.Background(), registration.RegisterRequest{LineUserID: "U1"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClientWithMeter(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(ts.Close)

	client, err := regapi.NewClient(ts.URL,
		regapi.WithHTTPClient(ts.Client()),
		regapi.WithMeter(noop.NewMeterProvider().Meter("test")),
	)
	require.NoError(t, err)

	_, err = client.CheckRegistration(context.Background(), "U1")
	var apiErr *regapi.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
}

func TestNewClientRejectsBadBaseURL(t *testing.T) {
	t.Parallel()

	_, err := regapi.NewClient("")
	require.Error(t, err)
	_, err = regapi.NewClient("ftp://example.com")
	require.Error(t, err)
}

func TestStaticRemembersRegistrations(t *testing.T) {
	t.Parallel()

	api := regapi.NewStatic(nil)
	status, err := api.CheckRegistration(context.Background(), "U1")
	require.NoError(t, err)
	require.False(t, status.Registered)

	year := 2010
	name := "山田"
	ack, err := api.Register(context.Background(), registration.RegisterRequest{
		LineUserID:     "U1",
		Email:          "a@example.com",
		LastName:       &name,
		GraduationYear: &year,
	})
	require.NoError(t, err)
	require.True(t, ack.Succeeded())

	status, err = api.CheckRegistration(context.Background(), "U1")
	require.NoError(t, err)
	require.True(t, status.Registered)
	require.Equal(t, "2010", status.User.GraduationYear.String())
	require.Equal(t, "山田", registration.Surname(status.User))
	require.Len(t, api.Submitted(), 1)
}

func TestStaticHonoursCancellation(t *testing.T) {
	t.Parallel()

	api := regapi.NewStatic(map[string]registration.RegisteredUser{"U2": {Email: "b@example.com"}})
	status, err := api.CheckRegistration(context.Background(), "U2")
	require.NoError(t, err)
	require.True(t, status.Registered)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = api.Register(ctx, registration.RegisterRequest{LineUserID: "U3"})
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, api.Submitted())
}
