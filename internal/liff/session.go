package liff

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/observability"
	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/registration"
)

// ErrInitFailed is returned when the browser reported that liff.init rejected.
var ErrInitFailed = errors.New("liff: sdk init failed")

// Command is a client-side LIFF action requested by the server. The value is the htmx
// event name the page script listens for.
type Command string

const (
	CommandLogin Command = "liff:login"
	CommandClose Command = "liff:close"
)

// Report is what the page script learned from the LIFF SDK after liff.init.
type Report struct {
	InitError   string
	InClient    bool
	LoggedIn    bool
	IDToken     string
	AccessToken string
}

// TokenVerifier resolves LIFF tokens into a profile.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, raw string) (registration.Profile, error)
	VerifyAccessToken(ctx context.Context, token string) (registration.Profile, error)
}

// ClientSession adapts a browser report to registration.SessionProvider. Actions that only
// the browser can perform are queued as commands for the response.
type ClientSession struct {
	report   Report
	verifier TokenVerifier

	mu       sync.Mutex
	commands []Command
}

// NewClientSession wraps report. verifier may be nil when tokens cannot be checked, in which
// case Profile fails.
func NewClientSession(report Report, verifier TokenVerifier) *ClientSession {
	return &ClientSession{report: report, verifier: verifier}
}

// Init reports the outcome of liff.init in the browser.
func (s *ClientSession) Init(context.Context) error {
	if msg := strings.TrimSpace(s.report.InitError); msg != "" {
		return fmt.Errorf("%w: %s", ErrInitFailed, msg)
	}
	return nil
}

// InClient reports whether the page runs inside the LINE app.
func (s *ClientSession) InClient() bool {
	return s.report.InClient
}

// LoggedIn reports whether LIFF holds a login session.
func (s *ClientSession) LoggedIn() bool {
	return s.report.LoggedIn
}

// Login asks the browser to start liff.login.
func (s *ClientSession) Login(context.Context) error {
	s.queue(CommandLogin)
	return nil
}

// CloseWindow asks the browser to call liff.closeWindow.
func (s *ClientSession) CloseWindow(context.Context) error {
	s.queue(CommandClose)
	return nil
}

// Profile verifies the ID token, falling back to the access token, and returns the user.
func (s *ClientSession) Profile(ctx context.Context) (registration.Profile, error) {
	if s.verifier == nil {
		return registration.Profile{}, errors.New("liff: no token verifier configured")
	}
	logger := observability.FromContext(ctx)

	var errs []error
	if s.report.IDToken != "" {
		profile, err := s.verifier.VerifyIDToken(ctx, s.report.IDToken)
		if err == nil {
			return profile, nil
		}
		logger.Debug("id token rejected, trying access token", zap.Error(err))
		errs = append(errs, err)
	}
	if s.report.AccessToken != "" {
		profile, err := s.verifier.VerifyAccessToken(ctx, s.report.AccessToken)
		if err == nil {
			return profile, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return registration.Profile{}, ErrNoToken
	}
	return registration.Profile{}, errors.Join(errs...)
}

// Commands returns the queued browser actions in order.
func (s *ClientSession) Commands() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Command, len(s.commands))
	copy(out, s.commands)
	return out
}

func (s *ClientSession) queue(cmd Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.commands {
		if existing == cmd {
			return
		}
	}
	s.commands = append(s.commands, cmd)
}

// DetachedSession is used for requests that carry no fresh LIFF report, such as form
// submissions. It can only queue browser commands.
func DetachedSession() *ClientSession {
	return &ClientSession{report: Report{InClient: true, LoggedIn: true}}
}
