package format

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/width"

	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/registration"
)

var dateLayouts = []string{"2006-01-02", "2006/01/02", "2006-1-2", "2006/1/2", time.RFC3339}

// FmtDate formats t in a locale-friendly form.
// Example: FmtDate(1990-04-01, "ja") => "1990年4月1日"
func FmtDate(t time.Time, lang string) string {
	switch strings.ToLower(lang) {
	case "ja":
		return t.Format("2006年1月2日")
	default:
		return t.Format("Jan 2, 2006")
	}
}

// FmtBirthDate formats a stored birth date. Values that do not parse are shown unchanged.
func FmtBirthDate(raw, lang string) string {
	raw = strings.TrimSpace(width.Narrow.String(raw))
	if raw == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return FmtDate(t, lang)
		}
	}
	return raw
}

// FmtYear formats a calendar year such as a graduation year.
func FmtYear(raw, lang string) string {
	raw = strings.TrimSpace(width.Narrow.String(raw))
	year, err := strconv.Atoi(raw)
	if err != nil || year <= 0 {
		return raw
	}
	if strings.ToLower(lang) == "ja" {
		return strconv.Itoa(year) + "年"
	}
	return strconv.Itoa(year)
}

// FmtSummaryValue formats one summary row value for display.
func FmtSummaryValue(row registration.SummaryRow, lang string) string {
	switch row.ID {
	case registration.RowBirthDate:
		return FmtBirthDate(row.Value, lang)
	case registration.RowGraduationYear:
		return FmtYear(row.Value, lang)
	default:
		return row.Value
	}
}
