package parser

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// CleanText collapses every run of whitespace (including non-breaking
// spaces) into one space, trims the ends and normalizes to NFC.
func CleanText(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}
