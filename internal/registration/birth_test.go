package registration

import (
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDeriveBirthDatePadsMonthAndDay(t *testing.T) {
	got, ok := DeriveBirthDate(BirthSelection{Year: "1990", Month: "4", Day: "7"})
	require.True(t, ok)
	require.Equal(t, "1990-04-07", got)

	got, ok = DeriveBirthDate(BirthSelection{Year: "2001", Month: "12", Day: "31"})
	require.True(t, ok)
	require.Equal(t, "2001-12-31", got)
}

func TestDeriveBirthDateAcceptsDayBeyondMonthLength(t *testing.T) {
	got, ok := DeriveBirthDate(BirthSelection{Year: "1985", Month: "2", Day: "31"})
	require.True(t, ok)
	require.Equal(t, "1985-02-31", got)
}

func TestDeriveBirthDateProperty(t *testing.T) {
	rapid.Check(t, func(r *rapid.T) {
		year := rapid.IntRange(1900, 2100).Draw(r, "year")
		month := rapid.IntRange(1, 12).Draw(r, "month")
		day := rapid.IntRange(1, 31).Draw(r, "day")

		got, ok := DeriveBirthDate(BirthSelection{
			Year:  strconv.Itoa(year),
			Month: strconv.Itoa(month),
			Day:   strconv.Itoa(day),
		})
		require.True(r, ok)
		require.Equal(r, fmt.Sprintf("%d-%02d-%02d", year, month, day), got)
	})
}

func TestBirthDateKeptWhileSelectionIncomplete(t *testing.T) {
	rapid.Check(t, func(r *rapid.T) {
		state := formEntryState(SchemaSplit)
		state = Reduce(state, BirthChanged{Part: BirthYear, Value: "1990"})
		state = Reduce(state, BirthChanged{Part: BirthMonth, Value: "5"})
		state = Reduce(state, BirthChanged{Part: BirthDay, Value: "20"})
		require.Equal(r, "1990-05-20", state.Fields.Get(FieldBirthDate))

		part := rapid.SampledFrom([]BirthPart{BirthYear, BirthMonth, BirthDay}).Draw(r, "cleared")
		state = Reduce(state, BirthChanged{Part: part, Value: ""})
		require.Equal(r, "1990-05-20", state.Fields.Get(FieldBirthDate))
	})
}

func TestBirthDateEmptyUntilComplete(t *testing.T) {
	state := formEntryState(SchemaSplit)
	state = Reduce(state, BirthChanged{Part: BirthYear, Value: "1990"})
	state = Reduce(state, BirthChanged{Part: BirthDay, Value: "3"})
	require.Empty(t, state.Fields.Get(FieldBirthDate))

	state = Reduce(state, BirthChanged{Part: BirthMonth, Value: "11"})
	require.Equal(t, "1990-11-03", state.Fields.Get(FieldBirthDate))
}
