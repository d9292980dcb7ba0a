package handlers

// PageData is the view model for pages rendered with the shared layout.
type PageData struct {
	Title       string
	Description string
	Lang        string
	Path        string

	// LIFFID is handed to liff.init by the page script.
	LIFFID    string
	CSRFToken string
	Dev       bool

	Registration any
}
