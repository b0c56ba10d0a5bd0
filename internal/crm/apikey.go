package crm

import (
	"regexp"
	"strings"
)

const MinAPIKeyLength = 16

var (
	apiKeyPattern    = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	apiKeyDisallowed = regexp.MustCompile(`[^A-Za-z0-9_-]`)
)

// ValidateAPIKey reports whether key has the CRM's key shape.
func ValidateAPIKey(key string) bool {
	if len(key) < MinAPIKeyLength {
		return false
	}
	return apiKeyPattern.MatchString(key)
}

// SanitizeAPIKey trims key and drops characters a key can never contain.
func SanitizeAPIKey(key string) string {
	return apiKeyDisallowed.ReplaceAllString(strings.TrimSpace(key), "")
}

// MaskAPIKey keeps the last four characters for display.
func MaskAPIKey(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}
