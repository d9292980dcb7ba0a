package registration

import (
	"fmt"
	"strconv"
	"strings"
)

// DeriveBirthDate formats a complete selection as YYYY-MM-DD with month and day padded to
// two digits. ok is false while any part is empty.
func DeriveBirthDate(sel BirthSelection) (string, bool) {
	if !sel.Complete() {
		return "", false
	}
	return fmt.Sprintf("%s-%s-%s", strings.TrimSpace(sel.Year), pad2(sel.Month), pad2(sel.Day)), true
}

// applyBirth returns the birth_date that follows a selection change: the derived value when
// the selection is complete, the previous value otherwise.
func applyBirth(previous string, sel BirthSelection) string {
	if derived, ok := DeriveBirthDate(sel); ok {
		return derived
	}
	return previous
}

func pad2(raw string) string {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
		return fmt.Sprintf("%02d", n)
	}
	if len(raw) < 2 {
		return strings.Repeat("0", 2-len(raw)) + raw
	}
	return raw
}
