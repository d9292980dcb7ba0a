package registration

import "strings"

// Resolver extracts one displayable value from a registered user.
type Resolver func(RegisteredUser) string

// FirstOf returns the first non-empty value produced by resolvers, in order.
func FirstOf(resolvers ...Resolver) Resolver {
	return func(u RegisteredUser) string {
		for _, r := range resolvers {
			if v := r(u); v != "" {
				return v
			}
		}
		return ""
	}
}

func nested(pick func(MainRecord) Text) Resolver {
	return func(u RegisteredUser) string {
		if u.Main == nil {
			return ""
		}
		return pick(*u.Main).String()
	}
}

func flat(pick func(RegisteredUser) Text) Resolver {
	return func(u RegisteredUser) string {
		return pick(u).String()
	}
}

// namePart splits the legacy single name field on whitespace.
func namePart(index int) Resolver {
	return func(u RegisteredUser) string {
		parts := strings.Fields(u.Name.String())
		if index < len(parts) {
			return parts[index]
		}
		return ""
	}
}

var (
	resolveSurname = FirstOf(
		nested(func(m MainRecord) Text { return m.KanaSei }),
		flat(func(u RegisteredUser) Text { return u.LastName }),
		namePart(0),
	)
	resolveGivenName = FirstOf(
		nested(func(m MainRecord) Text { return m.KanaMei }),
		flat(func(u RegisteredUser) Text { return u.FirstName }),
		namePart(1),
	)
	resolveSurnameReading = FirstOf(
		nested(func(m MainRecord) Text { return m.KanaSei }),
		flat(func(u RegisteredUser) Text { return u.LastFurigana }),
	)
	resolveGivenNameReading = FirstOf(
		nested(func(m MainRecord) Text { return m.KanaMei }),
		flat(func(u RegisteredUser) Text { return u.FirstFurigana }),
	)
	resolveBirthDate = FirstOf(
		nested(func(m MainRecord) Text { return m.Birthday }),
		flat(func(u RegisteredUser) Text { return u.BirthDate }),
	)
	resolveGraduationYear = FirstOf(
		nested(func(m MainRecord) Text { return m.GradYear }),
		flat(func(u RegisteredUser) Text { return u.GraduationYear }),
	)
	resolveOldName = FirstOf(
		nested(func(m MainRecord) Text { return m.OldName }),
		flat(func(u RegisteredUser) Text { return u.OldName }),
	)
)

var resolveEmail = flat(func(u RegisteredUser) Text { return u.Email })

// Summary row identifiers; the label is translated from "registration.summary.<ID>".
const (
	RowName           = "name"
	RowReading        = "reading"
	RowEmail          = "email"
	RowBirthDate      = "birth_date"
	RowGraduationYear = "graduation_year"
	RowOldName        = "old_name"
	RowLegacyName     = "legacy_name"
)

// SummaryRow is one line of the read-only registration table.
type SummaryRow struct {
	ID    string
	Value string
}

// Surname and GivenName expose the name resolvers to callers that render them separately.
func Surname(u RegisteredUser) string   { return resolveSurname(u) }
func GivenName(u RegisteredUser) string { return resolveGivenName(u) }

// Summary builds the rows shown for an already registered user. The old name row appears
// only when a value exists, and the legacy name row only for records that have a single
// name field and no split surname.
func Summary(u RegisteredUser) []SummaryRow {
	rows := []SummaryRow{
		{ID: RowName, Value: joinName(resolveSurname(u), resolveGivenName(u))},
		{ID: RowReading, Value: joinName(resolveSurnameReading(u), resolveGivenNameReading(u))},
		{ID: RowEmail, Value: resolveEmail(u)},
		{ID: RowBirthDate, Value: resolveBirthDate(u)},
		{ID: RowGraduationYear, Value: resolveGraduationYear(u)},
	}
	if old := resolveOldName(u); old != "" {
		rows = append(rows, SummaryRow{ID: RowOldName, Value: old})
	}
	if u.Name.String() != "" && u.LastName.String() == "" {
		rows = append(rows, SummaryRow{ID: RowLegacyName, Value: u.Name.String()})
	}
	return rows
}

func joinName(first, second string) string {
	return strings.TrimSpace(first + " " + second)
}
