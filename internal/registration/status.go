package registration

// Message keys resolved by the i18n bundle when the view is rendered.
const (
	MsgNotInClient     = "registration.status.not_in_client"
	MsgInitFailed      = "registration.status.init_failed"
	MsgProfileLoading  = "registration.status.profile_loading"
	MsgSuccess         = "registration.status.success"
	MsgFailure         = "registration.status.failure"
	MsgError           = "registration.status.error"
	MsgMissingField    = "registration.status.missing_field"
	MsgInvalidGradYear = "registration.status.invalid_graduation_year"
	MsgSessionExpired  = "registration.status.session_expired"
)

// StatusKind styles a status message.
type StatusKind string

const (
	StatusInfo    StatusKind = "info"
	StatusSuccess StatusKind = "success"
	StatusError   StatusKind = "error"
)

// StatusMessage is a translatable message plus the untranslated detail it embeds.
type StatusMessage struct {
	Key    string
	Detail string
	Field  string // offending form field for validation messages
	Kind   StatusKind
}

func infoStatus(key string) *StatusMessage {
	return &StatusMessage{Key: key, Kind: StatusInfo}
}

func errorStatus(key, detail string) *StatusMessage {
	return &StatusMessage{Key: key, Detail: detail, Kind: StatusError}
}

func fieldStatus(key, field string) *StatusMessage {
	return &StatusMessage{Key: key, Field: field, Kind: StatusError}
}
