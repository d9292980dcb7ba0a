package main

import (
	"strconv"

	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/content"
	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/format"
	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/i18n"
	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/registration"
)

// Form names of the birth date selects.
const (
	birthYearField  = "birth_year"
	birthMonthField = "birth_month"
	birthDayField   = "birth_day"
)

// RegistrationView aggregates everything the registration fragments render.
type RegistrationView struct {
	ID        string
	Lang      string
	View      string
	CSRFToken string

	// Loading
	Busy      bool
	BusyLabel string
	Status    *StatusView

	// AlreadyRegistered
	SummaryTitle string
	Summary      []SummaryRowView
	Support      content.Notice

	// FormEntry
	FormTitle       string
	Welcome         string
	Fields          []FieldView
	Birth           BirthView
	Graduation      SelectView
	OldName         FieldView
	SubmitLabel     string
	SubmittingLabel string
	Submitting      bool
	Submitted       bool
	Editable        bool
}

// StatusView is a translated status line.
type StatusView struct {
	Kind string
	Text string
}

// SummaryRowView is one row of the read-only summary table.
type SummaryRowView struct {
	ID    string
	Label string
	Value string
}

// FieldView describes one text input.
type FieldView struct {
	Name         string
	Label        string
	Type         string
	Autocomplete string
	Value        string
	Required     bool
	RequiredMark string
	OptionalMark string
	Invalid      bool
	Hint         content.Notice
}

// OptionView is one <option>.
type OptionView struct {
	Value    string
	Label    string
	Selected bool
}

// SelectView describes one <select>.
type SelectView struct {
	Name        string
	Label       string
	Placeholder string
	Required    bool
	Invalid     bool
	Options     []OptionView
}

// BirthView groups the three birth date selects and the derived date.
type BirthView struct {
	Label        string
	RequiredMark string
	Year         SelectView
	Month        SelectView
	Day          SelectView
	Value        string
	Preview      string
}

var autocomplete = map[string]string{
	registration.FieldEmail:         "email",
	registration.FieldName:          "name",
	registration.FieldLastName:      "family-name",
	registration.FieldFirstName:     "given-name",
	registration.FieldOldName:       "off",
	registration.FieldFurigana:      "off",
	registration.FieldLastFurigana:  "off",
	registration.FieldFirstFurigana: "off",
}

// buildRegistrationView renders st for lang. inst may be nil when the view expired.
func buildRegistrationView(bundle *i18n.Bundle, notices *content.Library, lang string, inst *registration.Instance, st registration.State, csrf string) RegistrationView {
	v := RegistrationView{
		Lang:      lang,
		View:      st.View.String(),
		CSRFToken: csrf,
		Status:    statusView(bundle, lang, st.Status),
	}
	if inst != nil {
		v.ID = inst.ID
	}

	switch st.View {
	case registration.ViewLoading:
		v.Busy = !st.Halted
		v.BusyLabel = bundle.T(lang, "registration.busy.loading")

	case registration.ViewAlreadyRegistered:
		v.SummaryTitle = bundle.T(lang, "registration.summary.title")
		v.Support = notices.Lookup(content.SlugSupport, lang)
		if st.Registered != nil {
			empty := bundle.T(lang, "format.empty")
			for _, row := range registration.Summary(*st.Registered) {
				value := format.FmtSummaryValue(row, lang)
				if value == "" {
					value = empty
				}
				v.Summary = append(v.Summary, SummaryRowView{
					ID:    row.ID,
					Label: bundle.T(lang, "registration.summary."+row.ID),
					Value: value,
				})
			}
		}

	case registration.ViewFormEntry:
		buildFormView(&v, bundle, notices, lang, inst, st)
	}
	return v
}

func buildFormView(v *RegistrationView, bundle *i18n.Bundle, notices *content.Library, lang string, inst *registration.Instance, st registration.State) {
	required := map[string]bool{}
	for _, name := range st.Schema.Required() {
		required[name] = true
	}
	invalid := ""
	if st.Status != nil {
		invalid = st.Status.Field
	}
	requiredMark := bundle.T(lang, "registration.required")

	v.FormTitle = bundle.T(lang, "registration.form.title")
	if st.Profile != nil && st.Profile.DisplayName != "" {
		v.Welcome = bundle.Format(lang, "registration.welcome", map[string]string{"name": st.Profile.DisplayName})
	}
	v.Submitting = st.Submitting
	v.Submitted = st.Submitted
	v.Editable = st.Editable()
	v.SubmitLabel = bundle.T(lang, "registration.submit")
	v.SubmittingLabel = bundle.T(lang, "registration.busy.submitting")

	for _, name := range st.Schema.Fields() {
		switch name {
		case registration.FieldBirthDate, registration.FieldGraduationYear:
			continue
		}
		field := FieldView{
			Name:         name,
			Label:        bundle.T(lang, "registration.field."+name),
			Type:         "text",
			Autocomplete: autocomplete[name],
			Value:        st.Fields.Get(name),
			Required:     required[name],
			RequiredMark: requiredMark,
			Invalid:      invalid == name,
		}
		if name == registration.FieldEmail {
			field.Type = "email"
		}
		if name == registration.FieldOldName {
			field.OptionalMark = bundle.T(lang, "registration.optional")
			field.Hint = notices.Lookup(content.SlugOldNameHint, lang)
			v.OldName = field
			continue
		}
		v.Fields = append(v.Fields, field)
	}

	var catalog registration.Catalog
	if inst != nil {
		catalog = inst.Catalog
	}
	placeholder := bundle.T(lang, "registration.select.placeholder")

	birthDate := st.Fields.Get(registration.FieldBirthDate)
	v.Birth = BirthView{
		Label:        bundle.T(lang, "registration.field.birth_date"),
		RequiredMark: requiredMark,
		Year:         selectView(birthYearField, bundle.T(lang, "registration.birth.year"), catalog.BirthYears, st.Birth.Year, plainLabel),
		Month:        selectView(birthMonthField, bundle.T(lang, "registration.birth.month"), catalog.Months, st.Birth.Month, plainLabel),
		Day:          selectView(birthDayField, bundle.T(lang, "registration.birth.day"), catalog.Days, st.Birth.Day, plainLabel),
		Value:        birthDate,
		Preview:      birthPreview(bundle, lang, birthDate),
	}
	for _, s := range []*SelectView{&v.Birth.Year, &v.Birth.Month, &v.Birth.Day} {
		s.Required = true
		s.Placeholder = s.Label
		s.Invalid = invalid == registration.FieldBirthDate
	}

	v.Graduation = selectView(registration.FieldGraduationYear, bundle.T(lang, "registration.field.graduation_year"),
		catalog.GraduationYears, st.Fields.Get(registration.FieldGraduationYear),
		func(year int) string { return format.FmtYear(strconv.Itoa(year), lang) })
	v.Graduation.Placeholder = placeholder
	v.Graduation.Required = true
	v.Graduation.Invalid = invalid == registration.FieldGraduationYear
}

func plainLabel(n int) string { return strconv.Itoa(n) }

func selectView(name, label string, values []int, selected string, labelFor func(int) string) SelectView {
	s := SelectView{Name: name, Label: label, Options: make([]OptionView, 0, len(values))}
	for _, n := range values {
		value := strconv.Itoa(n)
		s.Options = append(s.Options, OptionView{Value: value, Label: labelFor(n), Selected: value == selected})
	}
	return s
}

func birthPreview(bundle *i18n.Bundle, lang, birthDate string) string {
	if birthDate == "" {
		return ""
	}
	return bundle.Format(lang, "registration.birth.preview", map[string]string{
		"date": format.FmtBirthDate(birthDate, lang),
	})
}

func statusView(bundle *i18n.Bundle, lang string, st *registration.StatusMessage) *StatusView {
	if st == nil {
		return nil
	}
	args := map[string]string{"detail": st.Detail}
	if st.Field != "" {
		args["field"] = bundle.T(lang, "registration.field."+st.Field)
	}
	return &StatusView{Kind: string(st.Kind), Text: bundle.Format(lang, st.Key, args)}
}
