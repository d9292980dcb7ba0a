package registration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	initErr    error
	inClient   bool
	loggedIn   bool
	profile    Profile
	profileErr error

	logins int
	closes int
}

func (f *fakeSession) Init(context.Context) error {
	return f.initErr
}

func (f *fakeSession) InClient() bool {
	return f.inClient
}

func (f *fakeSession) LoggedIn() bool {
	return f.loggedIn
}

func (f *fakeSession) Login(context.Context) error {
	f.logins++
	return nil
}

func (f *fakeSession) Profile(context.Context) (Profile, error) {
	return f.profile, f.profileErr
}

func (f *fakeSession) CloseWindow(context.Context) error {
	f.closes++
	return nil
}

func signedIn() *fakeSession {
	return &fakeSession{inClient: true, loggedIn: true, profile: Profile{ID: "U123", DisplayName: "山田"}}
}

type fakeAPI struct {
	status   RegistrationStatus
	checkErr error
	ack      Ack
	err      error
	block    chan struct{}

	checks   atomic.Int32
	submits  atomic.Int32
	lastBody RegisterRequest
	mu       sync.Mutex
}

func (f *fakeAPI) CheckRegistration(ctx context.Context, _ string) (RegistrationStatus, error) {
	f.checks.Add(1)
	return f.status, f.checkErr
}

func (f *fakeAPI) Register(ctx context.Context, req RegisterRequest) (Ack, error) {
	f.submits.Add(1)
	f.mu.Lock()
	f.lastBody = req
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return Ack{}, ctx.Err()
		}
	}
	return f.ack, f.err
}

type serverError struct{ msg string }

func (e *serverError) Error() string {
	return "request failed with status code 400"
}

func (e *serverError) ServerMessage() string {
	return e.msg
}

func (e *serverError) HTTPStatus() int {
	return 400
}

type gatewayError struct{ body string }

func (e *gatewayError) Error() string {
	return "status 502: " + e.body
}

func (e *gatewayError) ServerMessage() string {
	return ""
}

func (e *gatewayError) HTTPStatus() int {
	return 502
}

func newTestController(api API, mutate func(*Options)) *Controller {
	opts := Options{
		Schema:            SchemaSplit,
		CheckRegistration: true,
		CloseOnSuccess:    true,
		Timeout:           time.Second,
		Now:               func() time.Time { return time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC) },
	}
	if mutate != nil {
		mutate(&opts)
	}
	return NewController(api, opts)
}

func fillForm(inst *Instance) {
	for name, value := range map[string]string{
		FieldEmail:          "taro@example.com",
		FieldLastName:       "山田",
		FieldFirstName:      "太郎",
		FieldLastFurigana:   "ヤマダ",
		FieldFirstFurigana:  "タロウ",
		FieldGraduationYear: "2008",
	} {
		inst.Dispatch(FieldChanged{Name: name, Value: value})
	}
	inst.Dispatch(BirthChanged{Part: BirthYear, Value: "1990"})
	inst.Dispatch(BirthChanged{Part: BirthMonth, Value: "4"})
	inst.Dispatch(BirthChanged{Part: BirthDay, Value: "7"})
}

func TestBootstrapOutsideClientHalts(t *testing.T) {
	api := &fakeAPI{}
	ctrl := newTestController(api, nil)
	inst := ctrl.NewInstance("v1")
	session := &fakeSession{inClient: false, loggedIn: false}

	state := ctrl.Bootstrap(context.Background(), inst, session)
	require.True(t, state.Halted)
	require.Equal(t, ViewLoading, state.View)
	require.Equal(t, MsgNotInClient, state.Status.Key)
	require.Zero(t, session.logins)
	require.Zero(t, api.checks.Load())
}

func TestBootstrapStubSessionOutsideClient(t *testing.T) {
	api := &fakeAPI{}
	ctrl := newTestController(api, func(o *Options) {
		o.AllowStubSession = true
		o.StubProfile = Profile{ID: "dev-user", DisplayName: "開発ユーザー"}
	})
	inst := ctrl.NewInstance("v1")

	state := ctrl.Bootstrap(context.Background(), inst, &fakeSession{})
	require.Equal(t, ViewFormEntry, state.View)
	require.Equal(t, "dev-user", state.Profile.ID)
	require.EqualValues(t, 1, api.checks.Load())
}

func TestBootstrapTriggersLogin(t *testing.T) {
	api := &fakeAPI{}
	ctrl := newTestController(api, nil)
	inst := ctrl.NewInstance("v1")
	session := &fakeSession{inClient: true}

	state := ctrl.Bootstrap(context.Background(), inst, session)
	require.True(t, state.AwaitingLogin)
	require.Equal(t, ViewLoading, state.View)
	require.Equal(t, 1, session.logins)
	require.Zero(t, api.checks.Load())
}

func TestBootstrapInitAndProfileFailuresHalt(t *testing.T) {
	cases := map[string]*fakeSession{
		"init":    {initErr: errors.New("liff init"), inClient: true, loggedIn: true},
		"profile": {inClient: true, loggedIn: true, profileErr: errors.New("profile")},
		"no id":   {inClient: true, loggedIn: true, profile: Profile{DisplayName: "x"}},
	}
	for name, session := range cases {
		t.Run(name, func(t *testing.T) {
			api := &fakeAPI{}
			ctrl := newTestController(api, nil)
			state := ctrl.Bootstrap(context.Background(), ctrl.NewInstance("v1"), session)
			require.True(t, state.Halted)
			require.Equal(t, MsgInitFailed, state.Status.Key)
			require.Zero(t, api.checks.Load())
		})
	}
}

func TestBootstrapRegistrationCheck(t *testing.T) {
	user := RegisteredUser{Email: "taro@example.com"}
	cases := []struct {
		name string
		api  *fakeAPI
		want ViewState
	}{
		{name: "registered", api: &fakeAPI{status: RegistrationStatus{Registered: true, User: user}}, want: ViewAlreadyRegistered},
		{name: "not registered", api: &fakeAPI{status: RegistrationStatus{}}, want: ViewFormEntry},
		{name: "network error", api: &fakeAPI{checkErr: errors.New("connection refused")}, want: ViewFormEntry},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := newTestController(tc.api, nil)
			state := ctrl.Bootstrap(context.Background(), ctrl.NewInstance("v1"), signedIn())
			require.Equal(t, tc.want, state.View)
			require.Nil(t, state.Status)
			if tc.want == ViewAlreadyRegistered {
				require.Equal(t, user, *state.Registered)
			}
		})
	}
}

func TestBootstrapSkipsCheckWhenDisabled(t *testing.T) {
	api := &fakeAPI{status: RegistrationStatus{Registered: true}}
	ctrl := newTestController(api, func(o *Options) { o.CheckRegistration = false })

	state := ctrl.Bootstrap(context.Background(), ctrl.NewInstance("v1"), signedIn())
	require.Equal(t, ViewFormEntry, state.View)
	require.Zero(t, api.checks.Load())
}

func TestBootstrapIsIdempotentOnceResolved(t *testing.T) {
	api := &fakeAPI{}
	ctrl := newTestController(api, nil)
	inst := ctrl.NewInstance("v1")

	ctrl.Bootstrap(context.Background(), inst, signedIn())
	ctrl.Bootstrap(context.Background(), inst, signedIn())
	require.EqualValues(t, 1, api.checks.Load())
}

func TestSubmitWithoutProfileMakesNoCall(t *testing.T) {
	api := &fakeAPI{}
	ctrl := newTestController(api, nil)
	inst := ctrl.NewInstance("v1")

	state := ctrl.Submit(context.Background(), inst, signedIn())
	require.Equal(t, MsgProfileLoading, state.Status.Key)
	require.Zero(t, api.submits.Load())
}

func TestSubmitOutcomes(t *testing.T) {
	cases := []struct {
		name       string
		api        *fakeAPI
		wantKey    string
		wantDetail string
		wantDone   bool
	}{
		{name: "success", api: &fakeAPI{ack: Ack{Status: "success"}}, wantKey: MsgSuccess, wantDone: true},
		{name: "other status", api: &fakeAPI{ack: Ack{Status: "duplicate"}}, wantKey: MsgFailure},
		{name: "server message", api: &fakeAPI{err: &serverError{msg: "X"}}, wantKey: MsgError, wantDetail: "X"},
		{name: "status without message", api: &fakeAPI{err: &serverError{}}, wantKey: MsgError, wantDetail: "request failed with status code 400"},
		{name: "transport error", api: &fakeAPI{err: errors.New("dial tcp 10.0.0.7:443: connection refused")}, wantKey: MsgError, wantDetail: "network error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := newTestController(tc.api, nil)
			inst := ctrl.NewInstance("v1")
			session := signedIn()
			ctrl.Bootstrap(context.Background(), inst, session)
			fillForm(inst)

			state := ctrl.Submit(context.Background(), inst, session)
			require.EqualValues(t, 1, tc.api.submits.Load())
			require.Equal(t, tc.wantKey, state.Status.Key)
			require.Equal(t, tc.wantDetail, state.Status.Detail)
			require.Equal(t, tc.wantDone, state.Submitted)
			require.False(t, state.Submitting)
			if tc.wantDone {
				require.Equal(t, 1, session.closes)
			} else {
				require.Zero(t, session.closes)
				require.Equal(t, "taro@example.com", state.Fields.Get(FieldEmail))
			}
		})
	}
}

func TestSubmitSendsDerivedBirthDate(t *testing.T) {
	api := &fakeAPI{ack: Ack{Status: "success"}}
	ctrl := newTestController(api, func(o *Options) { o.CloseOnSuccess = false })
	inst := ctrl.NewInstance("v1")
	session := signedIn()
	ctrl.Bootstrap(context.Background(), inst, session)
	fillForm(inst)

	ctrl.Submit(context.Background(), inst, session)
	require.Equal(t, "U123", api.lastBody.LineUserID)
	require.Equal(t, "1990-04-07", api.lastBody.BirthDate)
	require.Equal(t, 2008, *api.lastBody.GraduationYear)
	require.Zero(t, session.closes)
}

func TestSubmitRejectsInvalidFormBeforeNetwork(t *testing.T) {
	api := &fakeAPI{ack: Ack{Status: "success"}}
	ctrl := newTestController(api, nil)
	inst := ctrl.NewInstance("v1")
	session := signedIn()
	ctrl.Bootstrap(context.Background(), inst, session)
	fillForm(inst)
	inst.Dispatch(FieldChanged{Name: FieldGraduationYear, Value: "abc"})

	state := ctrl.Submit(context.Background(), inst, session)
	require.Equal(t, MsgInvalidGradYear, state.Status.Key)
	require.Zero(t, api.submits.Load())
	require.True(t, state.Editable())
}

func TestSubmitSingleInFlight(t *testing.T) {
	api := &fakeAPI{ack: Ack{Status: "success"}, block: make(chan struct{})}
	ctrl := newTestController(api, func(o *Options) { o.Timeout = 5 * time.Second })
	inst := ctrl.NewInstance("v1")
	session := signedIn()
	ctrl.Bootstrap(context.Background(), inst, session)
	fillForm(inst)

	var wg sync.WaitGroup
	results := make([]State, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = ctrl.Submit(context.Background(), inst, session)
		}(i)
	}

	require.Eventually(t, func() bool { return inst.Snapshot().Submitting }, time.Second, 5*time.Millisecond)
	close(api.block)
	wg.Wait()

	require.EqualValues(t, 1, api.submits.Load())
	for _, st := range results {
		require.False(t, st.Submitting)
		require.True(t, st.Submitted)
	}

	// A later click on a submitted form is a no-op.
	ctrl.Submit(context.Background(), inst, session)
	require.EqualValues(t, 1, api.submits.Load())
}

func TestSubmitTimeoutIsTransportFailure(t *testing.T) {
	api := &fakeAPI{block: make(chan struct{})}
	ctrl := newTestController(api, func(o *Options) { o.Timeout = 20 * time.Millisecond })
	inst := ctrl.NewInstance("v1")
	session := signedIn()
	ctrl.Bootstrap(context.Background(), inst, session)
	fillForm(inst)

	state := ctrl.Submit(context.Background(), inst, session)
	require.Equal(t, MsgError, state.Status.Key)
	require.Equal(t, "request timed out", state.Status.Detail)
	require.True(t, state.Editable())
}

func TestSubmitFailureDetailOmitsResponseBody(t *testing.T) {
	body := "<html><body><h1>502 Bad Gateway</h1><p>upstream 10.0.0.7 refused</p></body></html>"
	api := &fakeAPI{err: fmt.Errorf("register: %w", &gatewayError{body: body})}
	ctrl := newTestController(api, nil)
	inst := ctrl.NewInstance("v1")
	session := signedIn()
	ctrl.Bootstrap(context.Background(), inst, session)
	fillForm(inst)

	state := ctrl.Submit(context.Background(), inst, session)
	require.Equal(t, MsgError, state.Status.Key)
	require.Equal(t, "request failed with status code 502", state.Status.Detail)
	require.NotContains(t, state.Status.Detail, "<html>")
	require.NotContains(t, state.Status.Detail, "10.0.0.7")
}

func TestSubmitSurvivesCallerCancellation(t *testing.T) {
	api := &fakeAPI{ack: Ack{Status: "success"}, block: make(chan struct{})}
	ctrl := newTestController(api, nil)
	inst := ctrl.NewInstance("v1")
	session := signedIn()
	ctrl.Bootstrap(context.Background(), inst, session)
	fillForm(inst)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan State, 1)
	go func() { done <- ctrl.Submit(ctx, inst, session) }()

	require.Eventually(t, func() bool { return inst.Snapshot().Submitting }, time.Second, 5*time.Millisecond)
	cancel()
	close(api.block)

	state := <-done
	require.Equal(t, MsgSuccess, state.Status.Key)
}
