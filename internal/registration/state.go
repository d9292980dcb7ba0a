package registration

// State is the complete view state of one registration page. It is only changed through
// Reduce.
type State struct {
	Schema NameSchema
	View   ViewState

	// Halted is set once an advisory message ended bootstrap; the view stays in Loading.
	Halted        bool
	AwaitingLogin bool

	Profile    *Profile
	Registered *RegisteredUser

	Fields FormFields
	Birth  BirthSelection

	Submitting bool
	Submitted  bool
	Status     *StatusMessage
}

// NewState returns the initial Loading state for schema.
func NewState(schema NameSchema) State {
	return State{
		Schema: schema,
		View:   ViewLoading,
		Fields: FormFields{},
	}
}

// Editable reports whether the form accepts input.
func (s State) Editable() bool {
	return s.View == ViewFormEntry && !s.Submitting && !s.Submitted
}

// Event is an input to Reduce.
type Event interface {
	isEvent()
}

// EnvironmentRejected halts bootstrap outside the LINE client.
type EnvironmentRejected struct{}

// InitFailed halts bootstrap after an SDK or profile failure.
type InitFailed struct{}

// LoginRequested records that an interactive login was triggered.
type LoginRequested struct{}

// ProfileLoaded stores the signed-in user's profile.
type ProfileLoaded struct{ Profile Profile }

// RegistrationFound switches to the read-only summary.
type RegistrationFound struct{ User RegisteredUser }

// RegistrationMissing switches to the editable form.
type RegistrationMissing struct{}

// FieldChanged sets one text field.
type FieldChanged struct {
	Name  string
	Value string
}

// BirthChanged sets one part of the birth date selection.
type BirthChanged struct {
	Part  BirthPart
	Value string
}

// SubmitRejected reports a submission stopped before any network call.
type SubmitRejected struct{ Status StatusMessage }

// SubmitStarted marks a submission as in flight.
type SubmitStarted struct{}

// SubmitFinished records the outcome of an in-flight submission. Done marks the form as
// submitted for good.
type SubmitFinished struct {
	Status StatusMessage
	Done   bool
}

func (EnvironmentRejected) isEvent() {}
func (InitFailed) isEvent()          {}
func (LoginRequested) isEvent()      {}
func (ProfileLoaded) isEvent()       {}
func (RegistrationFound) isEvent()   {}
func (RegistrationMissing) isEvent() {}
func (FieldChanged) isEvent()        {}
func (BirthChanged) isEvent()        {}
func (SubmitRejected) isEvent()      {}
func (SubmitStarted) isEvent()       {}
func (SubmitFinished) isEvent()      {}

// Reduce applies ev to s and returns the next state. Events that are not valid in the
// current state leave it unchanged: the view only ever moves from Loading to one of the
// two resolved states, and a submitted form stays submitted.
func Reduce(s State, ev Event) State {
	switch e := ev.(type) {
	case EnvironmentRejected:
		if s.View != ViewLoading || s.Halted {
			return s
		}
		s.Halted = true
		s.Status = infoStatus(MsgNotInClient)

	case InitFailed:
		if s.View != ViewLoading || s.Halted {
			return s
		}
		s.Halted = true
		s.AwaitingLogin = false
		s.Status = errorStatus(MsgInitFailed, "")

	case LoginRequested:
		if s.View != ViewLoading || s.Halted {
			return s
		}
		s.AwaitingLogin = true

	case ProfileLoaded:
		if s.View != ViewLoading || s.Halted || s.Profile != nil {
			return s
		}
		p := e.Profile
		s.Profile = &p
		s.AwaitingLogin = false

	case RegistrationFound:
		if !s.resolvable() {
			return s
		}
		u := e.User
		s.View = ViewAlreadyRegistered
		s.Registered = &u
		s.Status = nil

	case RegistrationMissing:
		if !s.resolvable() {
			return s
		}
		s.View = ViewFormEntry
		s.Status = nil

	case FieldChanged:
		if !s.Editable() || !s.Schema.Accepts(e.Name) {
			return s
		}
		s.Fields = s.Fields.Clone()
		s.Fields[e.Name] = e.Value

	case BirthChanged:
		if !s.Editable() {
			return s
		}
		s.Birth = s.Birth.with(e.Part, e.Value)
		if next := applyBirth(s.Fields.Get(FieldBirthDate), s.Birth); next != s.Fields.Get(FieldBirthDate) {
			s.Fields = s.Fields.Clone()
			s.Fields[FieldBirthDate] = next
		}

	case SubmitRejected:
		if s.Submitting || s.Submitted {
			return s
		}
		st := e.Status
		s.Status = &st

	case SubmitStarted:
		if !s.Editable() || s.Profile == nil {
			return s
		}
		s.Submitting = true
		s.Status = nil

	case SubmitFinished:
		if !s.Submitting {
			return s
		}
		st := e.Status
		s.Submitting = false
		s.Submitted = e.Done
		s.Status = &st
	}
	return s
}

func (s State) resolvable() bool {
	return s.View == ViewLoading && !s.Halted && s.Profile != nil
}
