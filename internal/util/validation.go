package util

import (
	"strings"

	"github.com/google/uuid"
)

// IsValidUUID accepts only the canonical hyphenated form, in either case.
func IsValidUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// NormalizeAccountIdentifier strips spaces and dashes from a phone-like identifier.
func NormalizeAccountIdentifier(s string) string {
	return strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(s))
}
