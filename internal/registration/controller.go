package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/observability"
)

const defaultTimeout = 10 * time.Second

// SessionProvider exposes the LINE login session of the current page.
type SessionProvider interface {
	Init(ctx context.Context) error
	InClient() bool
	LoggedIn() bool
	Login(ctx context.Context) error
	Profile(ctx context.Context) (Profile, error)
	CloseWindow(ctx context.Context) error
}

// API is the remote Registration API.
type API interface {
	CheckRegistration(ctx context.Context, lineUserID string) (RegistrationStatus, error)
	Register(ctx context.Context, req RegisterRequest) (Ack, error)
}

// ServerMessager is implemented by errors that carry a message produced by the server.
type ServerMessager interface {
	ServerMessage() string
}

// StatusCoder is implemented by errors that carry the HTTP status of a failed call.
type StatusCoder interface {
	HTTPStatus() int
}

// Options configures a Controller.
type Options struct {
	Schema            NameSchema
	CheckRegistration bool
	CloseOnSuccess    bool
	AllowStubSession  bool
	StubProfile       Profile
	Timeout           time.Duration
	Now               func() time.Time
}

// Controller drives registration pages: bootstrapping the session and submitting forms.
type Controller struct {
	api    API
	opts   Options
	flight singleflight.Group
}

// NewController constructs a controller backed by api.
func NewController(api API, opts Options) *Controller {
	if opts.Schema == "" {
		opts.Schema = SchemaSplit
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{api: api, opts: opts}
}

// Schema returns the name schema forms are built with.
func (c *Controller) Schema() NameSchema {
	return c.opts.Schema
}

// NewInstance creates the state of a freshly mounted page.
func (c *Controller) NewInstance(id string) *Instance {
	return &Instance{
		ID:      id,
		Catalog: NewCatalog(c.opts.Now()),
		state:   NewState(c.opts.Schema),
	}
}

// Instance is one mounted registration page.
type Instance struct {
	ID      string
	Catalog Catalog

	mu    sync.Mutex
	state State
}

// Snapshot returns the current state.
func (i *Instance) Snapshot() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Dispatch applies ev and returns the resulting state.
func (i *Instance) Dispatch(ev Event) State {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.state = Reduce(i.state, ev)
	return i.state
}

// Bootstrap runs the mount sequence: init, environment gate, login gate, profile, then the
// optional registration check. Each step starts only after the previous one resolved.
// Failures end in an advisory state; nothing is returned as an error.
func (c *Controller) Bootstrap(ctx context.Context, inst *Instance, session SessionProvider) State {
	logger := observability.FromContext(ctx).With(zap.String("view_id", inst.ID))

	if st := inst.Snapshot(); st.View != ViewLoading || st.Halted || st.Profile != nil {
		return st
	}

	if err := session.Init(ctx); err != nil {
		logger.Warn("liff init failed", zap.Error(err))
		return inst.Dispatch(InitFailed{})
	}

	var profile Profile
	switch {
	case !session.InClient() && c.opts.AllowStubSession:
		profile = c.opts.StubProfile
		logger.Info("using stub session", zap.String("line_user_id", profile.ID))
	case !session.InClient():
		return inst.Dispatch(EnvironmentRejected{})
	case !session.LoggedIn():
		if err := session.Login(ctx); err != nil {
			logger.Warn("liff login trigger failed", zap.Error(err))
			return inst.Dispatch(InitFailed{})
		}
		return inst.Dispatch(LoginRequested{})
	default:
		p, err := session.Profile(ctx)
		if err != nil {
			logger.Warn("profile fetch failed", zap.Error(err))
			return inst.Dispatch(InitFailed{})
		}
		profile = p
	}
	if strings.TrimSpace(profile.ID) == "" {
		logger.Warn("profile has no user id")
		return inst.Dispatch(InitFailed{})
	}
	inst.Dispatch(ProfileLoaded{Profile: profile})

	if !c.opts.CheckRegistration {
		return inst.Dispatch(RegistrationMissing{})
	}
	return inst.Dispatch(c.checkRegistration(ctx, logger, profile.ID))
}

// checkRegistration fails open: every error is logged and treated as not registered.
func (c *Controller) checkRegistration(ctx context.Context, logger *zap.Logger, lineUserID string) Event {
	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	status, err := c.api.CheckRegistration(callCtx, lineUserID)
	if err != nil {
		logger.Warn("registration check failed", zap.Error(err))
		return RegistrationMissing{}
	}
	if status.Registered {
		return RegistrationFound{User: status.User}
	}
	return RegistrationMissing{}
}

// Submit posts the form of inst. Concurrent calls for the same instance share a single
// request; calls made while nothing can be submitted return the current state unchanged.
func (c *Controller) Submit(ctx context.Context, inst *Instance, session SessionProvider) State {
	v, _, _ := c.flight.Do(inst.ID, func() (any, error) {
		return c.submit(ctx, inst, session), nil
	})
	return v.(State)
}

func (c *Controller) submit(ctx context.Context, inst *Instance, session SessionProvider) State {
	logger := observability.FromContext(ctx).With(zap.String("view_id", inst.ID))

	inst.mu.Lock()
	st := inst.state
	if st.Submitting || st.Submitted {
		inst.mu.Unlock()
		return st
	}
	if st.Profile == nil {
		inst.state = Reduce(st, SubmitRejected{Status: *infoStatus(MsgProfileLoading)})
		st = inst.state
		inst.mu.Unlock()
		return st
	}
	if st.View != ViewFormEntry {
		inst.mu.Unlock()
		return st
	}
	if problem := Validate(st.Schema, st.Fields); problem != nil {
		inst.state = Reduce(st, SubmitRejected{Status: *problem})
		st = inst.state
		inst.mu.Unlock()
		return st
	}
	req := BuildRequest(st.Schema, st.Fields, *st.Profile)
	inst.state = Reduce(st, SubmitStarted{})
	inst.mu.Unlock()

	// The request outlives a client that disconnects mid-flight; only the timeout stops it.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.Timeout)
	defer cancel()

	ack, err := c.api.Register(callCtx, req)
	finished := SubmitFinished{}
	switch {
	case err != nil:
		logger.Warn("registration submit failed", zap.Error(err))
		finished.Status = *errorStatus(MsgError, failureDetail(err))
	case ack.Succeeded():
		finished.Status = StatusMessage{Key: MsgSuccess, Kind: StatusSuccess}
		finished.Done = true
		logger.Info("registration submitted", zap.String("line_user_id", req.LineUserID))
	default:
		logger.Info("registration rejected", zap.String("status", ack.Status), zap.String("message", ack.Message))
		finished.Status = *errorStatus(MsgFailure, "")
	}

	if finished.Done && c.opts.CloseOnSuccess {
		if err := session.CloseWindow(ctx); err != nil {
			logger.Warn("close window failed", zap.Error(err))
		}
	}
	return inst.Dispatch(finished)
}

// failureDetail returns the text shown to the user for a failed call. Raw
// response bodies and transport errors stay in the logs.
func failureDetail(err error) string {
	var sm ServerMessager
	if errors.As(err, &sm) {
		if msg := strings.TrimSpace(sm.ServerMessage()); msg != "" {
			return msg
		}
	}
	var sc StatusCoder
	if errors.As(err, &sc) && sc.HTTPStatus() > 0 {
		return fmt.Sprintf("request failed with status code %d", sc.HTTPStatus())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	return "network error"
}
