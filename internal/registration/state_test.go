package registration

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func formEntryState(schema NameSchema) State {
	state := NewState(schema)
	state = Reduce(state, ProfileLoaded{Profile: Profile{ID: "U123", DisplayName: "山田"}})
	return Reduce(state, RegistrationMissing{})
}

func TestReduceLoadingResolvesOnce(t *testing.T) {
	state := NewState(SchemaSplit)
	require.Equal(t, ViewLoading, state.View)

	// No resolution before a profile exists.
	require.Equal(t, ViewLoading, Reduce(state, RegistrationMissing{}).View)

	state = Reduce(state, ProfileLoaded{Profile: Profile{ID: "U1"}})
	registered := Reduce(state, RegistrationFound{User: RegisteredUser{Email: "a@example.com"}})
	require.Equal(t, ViewAlreadyRegistered, registered.View)
	require.NotNil(t, registered.Registered)
	require.Equal(t, "a@example.com", registered.Registered.Email.String())

	require.Equal(t, ViewAlreadyRegistered, Reduce(registered, RegistrationMissing{}).View)

	form := Reduce(state, RegistrationMissing{})
	require.Equal(t, ViewFormEntry, form.View)
	require.Equal(t, ViewFormEntry, Reduce(form, RegistrationFound{}).View)
}

func TestReduceHaltedStateIgnoresBootstrapEvents(t *testing.T) {
	state := Reduce(NewState(SchemaSplit), EnvironmentRejected{})
	require.True(t, state.Halted)
	require.Equal(t, MsgNotInClient, state.Status.Key)

	state = Reduce(state, InitFailed{})
	require.Equal(t, MsgNotInClient, state.Status.Key)

	state = Reduce(state, ProfileLoaded{Profile: Profile{ID: "U1"}})
	require.Nil(t, state.Profile)
	require.Equal(t, ViewLoading, state.View)
}

func TestReduceInitFailedClearsLoginWait(t *testing.T) {
	state := Reduce(NewState(SchemaSplit), LoginRequested{})
	require.True(t, state.AwaitingLogin)

	state = Reduce(state, InitFailed{})
	require.False(t, state.AwaitingLogin)
	require.True(t, state.Halted)
	require.Equal(t, MsgInitFailed, state.Status.Key)
	require.Equal(t, StatusError, state.Status.Kind)
}

func TestReduceFieldChangedRespectsSchema(t *testing.T) {
	split := formEntryState(SchemaSplit)
	split = Reduce(split, FieldChanged{Name: FieldLastName, Value: "山田"})
	split = Reduce(split, FieldChanged{Name: FieldName, Value: "山田 太郎"})
	split = Reduce(split, FieldChanged{Name: FieldBirthDate, Value: "2000-01-01"})
	require.Equal(t, "山田", split.Fields.Get(FieldLastName))
	require.Empty(t, split.Fields.Get(FieldName))
	require.Empty(t, split.Fields.Get(FieldBirthDate))

	combined := formEntryState(SchemaCombined)
	combined = Reduce(combined, FieldChanged{Name: FieldName, Value: "山田 太郎"})
	combined = Reduce(combined, FieldChanged{Name: FieldLastName, Value: "山田"})
	require.Equal(t, "山田 太郎", combined.Fields.Get(FieldName))
	require.Empty(t, combined.Fields.Get(FieldLastName))
}

func TestReduceDoesNotShareFieldMaps(t *testing.T) {
	before := formEntryState(SchemaSplit)
	after := Reduce(before, FieldChanged{Name: FieldEmail, Value: "a@example.com"})
	require.Empty(t, before.Fields.Get(FieldEmail))
	require.Equal(t, "a@example.com", after.Fields.Get(FieldEmail))
}

func TestReduceSubmissionLifecycle(t *testing.T) {
	state := formEntryState(SchemaSplit)

	state = Reduce(state, SubmitStarted{})
	require.True(t, state.Submitting)
	require.False(t, state.Editable())

	// Input and a second start are ignored while in flight.
	again := Reduce(state, SubmitStarted{})
	require.Equal(t, state, again)
	require.Empty(t, Reduce(state, FieldChanged{Name: FieldEmail, Value: "x"}).Fields.Get(FieldEmail))

	failed := Reduce(state, SubmitFinished{Status: StatusMessage{Key: MsgFailure, Kind: StatusError}})
	require.False(t, failed.Submitting)
	require.False(t, failed.Submitted)
	require.True(t, failed.Editable())
	require.Equal(t, MsgFailure, failed.Status.Key)

	done := Reduce(state, SubmitFinished{Status: StatusMessage{Key: MsgSuccess, Kind: StatusSuccess}, Done: true})
	require.True(t, done.Submitted)
	require.Equal(t, ViewFormEntry, done.View)
	require.Equal(t, done, Reduce(done, SubmitStarted{}))
	require.Equal(t, done, Reduce(done, SubmitRejected{Status: StatusMessage{Key: MsgProfileLoading}}))
}

func TestReduceSubmitFinishedWithoutStartIsIgnored(t *testing.T) {
	state := formEntryState(SchemaSplit)
	require.Equal(t, state, Reduce(state, SubmitFinished{Status: StatusMessage{Key: MsgSuccess}, Done: true}))
}
