package registration

import (
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// RegisterRequest is the JSON body posted to the Registration API. Only the name fields of
// the active schema are set; GraduationYear encodes as null when the input was not a
// number.
type RegisterRequest struct {
	LineUserID     string  `json:"line_user_id"`
	Email          string  `json:"email"`
	Name           *string `json:"name,omitempty"`
	Furigana       *string `json:"furigana,omitempty"`
	LastName       *string `json:"last_name,omitempty"`
	FirstName      *string `json:"first_name,omitempty"`
	LastFurigana   *string `json:"last_furigana,omitempty"`
	FirstFurigana  *string `json:"first_furigana,omitempty"`
	OldName        string  `json:"old_name"`
	BirthDate      string  `json:"birth_date"`
	GraduationYear *int    `json:"graduation_year"`
}

// BuildRequest maps the form onto the request body. It never fails: unparsable years become
// nil and absent optional fields become "".
func BuildRequest(schema NameSchema, fields FormFields, profile Profile) RegisterRequest {
	req := RegisterRequest{
		LineUserID:     profile.ID,
		Email:          NormalizeEmail(fields.Get(FieldEmail)),
		OldName:        NormalizeText(fields.Get(FieldOldName)),
		BirthDate:      strings.TrimSpace(fields.Get(FieldBirthDate)),
		GraduationYear: ParseYear(fields.Get(FieldGraduationYear)),
	}
	text := func(name string) *string {
		v := NormalizeText(fields.Get(name))
		return &v
	}
	if schema == SchemaCombined {
		req.Name = text(FieldName)
		req.Furigana = text(FieldFurigana)
		return req
	}
	req.LastName = text(FieldLastName)
	req.FirstName = text(FieldFirstName)
	req.LastFurigana = text(FieldLastFurigana)
	req.FirstFurigana = text(FieldFirstFurigana)
	return req
}

// Validate returns the first problem that should stop a submission, or nil.
func Validate(schema NameSchema, fields FormFields) *StatusMessage {
	for _, name := range schema.Required() {
		var value string
		switch name {
		case FieldEmail:
			value = NormalizeEmail(fields.Get(name))
		case FieldBirthDate, FieldGraduationYear:
			value = strings.TrimSpace(fields.Get(name))
		default:
			value = NormalizeText(fields.Get(name))
		}
		if value == "" {
			return fieldStatus(MsgMissingField, name)
		}
	}
	if ParseYear(fields.Get(FieldGraduationYear)) == nil {
		return fieldStatus(MsgInvalidGradYear, FieldGraduationYear)
	}
	return nil
}

// ParseYear parses a year typed with either narrow or full-width digits.
func ParseYear(raw string) *int {
	v, err := strconv.Atoi(strings.TrimSpace(width.Narrow.String(raw)))
	if err != nil {
		return nil
	}
	return &v
}

// NormalizeText folds compatibility characters (half-width katakana, full-width ASCII)
// and trims surrounding space. Input is otherwise sent as typed; escaping happens at render.
func NormalizeText(raw string) string {
	return strings.TrimSpace(norm.NFKC.String(raw))
}

// NormalizeEmail narrows full-width characters often produced by Japanese IMEs.
func NormalizeEmail(raw string) string {
	return strings.TrimSpace(width.Narrow.String(NormalizeText(raw)))
}
