package utils

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeText trims surrounding whitespace and brings user-supplied text
// into NFC form so equal-looking titles compare and index equal.
func NormalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
