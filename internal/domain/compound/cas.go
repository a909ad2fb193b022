package compound

import (
	"regexp"
	"strings"

	"github.com/turtacn/FoodSafety-MS-KB/pkg/errors"
)

// casPattern is the registry format: two to seven digits, two digits, one
// check digit.
var casPattern = regexp.MustCompile(`^\d{2,7}-\d{2}-\d$`)

// missingMarkers are literal strings that literature extraction emits in
// place of an absent value.
var missingMarkers = map[string]struct{}{
	"":          {},
	"none":      {},
	"null":      {},
	"nan":       {},
	"n/a":       {},
	"not_found": {},
}

// NormalizeCAS trims a raw CAS string and collapses the extraction
// pipeline's missing-value markers to the empty string.
func NormalizeCAS(raw string) string {
	s := strings.TrimSpace(raw)
	if _, missing := missingMarkers[strings.ToLower(s)]; missing {
		return ""
	}
	return s
}

// NormalizeName lowercases a compound name and collapses internal
// whitespace, yielding the identity key used for deduplication and lookup.
// Missing-value markers normalize to the empty string.
func NormalizeName(raw string) string {
	s := strings.Join(strings.Fields(raw), " ")
	if _, missing := missingMarkers[strings.ToLower(s)]; missing {
		return ""
	}
	return strings.ToLower(s)
}

// IsCASFormat reports whether s matches the registry number pattern.
func IsCASFormat(s string) bool {
	return casPattern.MatchString(s)
}

// CASChecksumValid reports whether a format-valid CAS number passes the
// registry checksum: reading the digits before the check digit from right
// to left, each digit is multiplied by its 1-based position, and the sum
// modulo 10 must equal the check digit.
func CASChecksumValid(s string) bool {
	if !IsCASFormat(s) {
		return false
	}
	digits := strings.ReplaceAll(s, "-", "")
	check := int(digits[len(digits)-1] - '0')
	sum := 0
	pos := 1
	for i := len(digits) - 2; i >= 0; i-- {
		sum += pos * int(digits[i]-'0')
		pos++
	}
	return sum%10 == check
}

// ValidateCAS normalizes raw and verifies both format and checksum.
// It returns the normalized value, or an error carrying the precise
// failure class so callers can count format and checksum rejections
// separately.
func ValidateCAS(raw string) (string, error) {
	cas := NormalizeCAS(raw)
	if cas == "" {
		return "", errors.New(errors.ErrCodeCASFormatInvalid, "CAS number is empty")
	}
	if !IsCASFormat(cas) {
		return "", errors.New(errors.ErrCodeCASFormatInvalid, "CAS number format is invalid").
			WithDetail("cas=" + cas)
	}
	if !CASChecksumValid(cas) {
		return "", errors.New(errors.ErrCodeCASChecksumInvalid, "CAS number checksum is invalid").
			WithDetail("cas=" + cas)
	}
	return cas, nil
}
