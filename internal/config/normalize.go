package config

import (
	"regexp"
	"strings"
)

const DefaultSessionID = "default"

var (
	validSessionRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)
	invalidChars   = regexp.MustCompile(`[^a-z0-9_-]+`)
	edgeDashes     = regexp.MustCompile(`^-+|-+$`)
)

// NormalizeSessionID converts a user-provided session tag into a stable ID:
// lowercase, max 64 chars, only [a-z0-9_-], invalid runs collapsed to "-",
// leading/trailing dashes stripped. Empty input maps to "default".
func NormalizeSessionID(tag string) string {
	trimmed := strings.TrimSpace(tag)
	if trimmed == "" {
		return DefaultSessionID
	}

	lower := strings.ToLower(trimmed)
	if validSessionRe.MatchString(lower) {
		return lower
	}

	result := invalidChars.ReplaceAllString(lower, "-")
	result = edgeDashes.ReplaceAllString(result, "")
	if len(result) > 64 {
		result = result[:64]
	}
	if result == "" {
		return DefaultSessionID
	}
	return result
}
