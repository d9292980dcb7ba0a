package registration

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Profile identifies the signed-in LINE user.
type Profile struct {
	ID          string
	DisplayName string
}

// Field names accepted from the form and sent to the Registration API.
const (
	FieldEmail          = "email"
	FieldName           = "name"
	FieldFurigana       = "furigana"
	FieldLastName       = "last_name"
	FieldFirstName      = "first_name"
	FieldLastFurigana   = "last_furigana"
	FieldFirstFurigana  = "first_furigana"
	FieldOldName        = "old_name"
	FieldBirthDate      = "birth_date"
	FieldGraduationYear = "graduation_year"
)

// NameSchema selects how names are collected. A deployment uses exactly one.
type NameSchema string

const (
	SchemaSplit    NameSchema = "split"
	SchemaCombined NameSchema = "combined"
)

// ParseNameSchema maps a configuration value onto a schema, defaulting to split.
func ParseNameSchema(raw string) NameSchema {
	if strings.EqualFold(strings.TrimSpace(raw), string(SchemaCombined)) {
		return SchemaCombined
	}
	return SchemaSplit
}

// Fields lists the recognized form fields of the schema in display order.
func (s NameSchema) Fields() []string {
	if s == SchemaCombined {
		return []string{FieldEmail, FieldName, FieldFurigana, FieldOldName, FieldBirthDate, FieldGraduationYear}
	}
	return []string{
		FieldEmail,
		FieldLastName, FieldFirstName,
		FieldLastFurigana, FieldFirstFurigana,
		FieldOldName, FieldBirthDate, FieldGraduationYear,
	}
}

// Required lists the fields that must be non-empty before submission.
func (s NameSchema) Required() []string {
	out := make([]string, 0, 8)
	for _, f := range s.Fields() {
		if f == FieldOldName {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Accepts reports whether name is an editable field of the schema. birth_date is derived
// and cannot be set directly.
func (s NameSchema) Accepts(name string) bool {
	if name == FieldBirthDate {
		return false
	}
	for _, f := range s.Fields() {
		if f == name {
			return true
		}
	}
	return false
}

// FormFields holds the raw string values typed by the user.
type FormFields map[string]string

// Clone returns a copy safe to hand to another goroutine.
func (f FormFields) Clone() FormFields {
	out := make(FormFields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Get returns the value for name, or "" when unset.
func (f FormFields) Get(name string) string {
	if f == nil {
		return ""
	}
	return f[name]
}

// BirthPart names one of the three birth date selects.
type BirthPart string

const (
	BirthYear  BirthPart = "year"
	BirthMonth BirthPart = "month"
	BirthDay   BirthPart = "day"
)

// ParseBirthPart validates a part name received from the form.
func ParseBirthPart(raw string) (BirthPart, bool) {
	switch BirthPart(raw) {
	case BirthYear, BirthMonth, BirthDay:
		return BirthPart(raw), true
	}
	return "", false
}

// BirthSelection is the transient year/month/day selection.
type BirthSelection struct {
	Year  string
	Month string
	Day   string
}

// Complete reports whether all three parts are selected.
func (b BirthSelection) Complete() bool {
	return b.Year != "" && b.Month != "" && b.Day != ""
}

func (b BirthSelection) with(part BirthPart, value string) BirthSelection {
	switch part {
	case BirthYear:
		b.Year = value
	case BirthMonth:
		b.Month = value
	case BirthDay:
		b.Day = value
	}
	return b
}

// ViewState selects which of the three presentations is active.
type ViewState int

const (
	ViewLoading ViewState = iota
	ViewAlreadyRegistered
	ViewFormEntry
)

func (v ViewState) String() string {
	switch v {
	case ViewLoading:
		return "loading"
	case ViewAlreadyRegistered:
		return "already_registered"
	case ViewFormEntry:
		return "form_entry"
	default:
		return "unknown"
	}
}

// Text is a string that also decodes from JSON numbers, booleans and null, since the
// Registration API has returned numeric years in some versions.
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*t = Text(n.String())
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*t = Text(strconv.FormatBool(b))
		return nil
	}
	// Objects and arrays carry nothing displayable.
	*t = ""
	return nil
}

// String returns the trimmed value.
func (t Text) String() string {
	return strings.TrimSpace(string(t))
}

// RegisteredUser is the record returned for a registered user. Either the flat fields or
// the nested Main group may be populated depending on the API version.
type RegisteredUser struct {
	Name           Text        `json:"name"`
	LastName       Text        `json:"last_name"`
	FirstName      Text        `json:"first_name"`
	LastFurigana   Text        `json:"last_furigana"`
	FirstFurigana  Text        `json:"first_furigana"`
	Email          Text        `json:"email"`
	BirthDate      Text        `json:"birth_date"`
	GraduationYear Text        `json:"graduation_year"`
	OldName        Text        `json:"old_name"`
	Main           *MainRecord `json:"main,omitempty"`
}

// MainRecord is the nested field group used by newer API versions.
type MainRecord struct {
	KanaSei  Text `json:"kana_sei"`
	KanaMei  Text `json:"kana_mei"`
	Birthday Text `json:"birthday"`
	GradYear Text `json:"grad_year"`
	OldName  Text `json:"old_name"`
}

// RegistrationStatus is the outcome of a registration check.
type RegistrationStatus struct {
	Registered bool
	User       RegisteredUser
}

// Ack is the Registration API's reply to a submission.
type Ack struct {
	Status  string
	Message string
}

// Succeeded reports whether the server accepted the registration.
func (a Ack) Succeeded() bool {
	return a.Status == "success"
}
