package logging

import (
	"net/url"
	"regexp"
	"strings"
)

// Sensitive field names that should be redacted.
var sensitiveFields = []string{
	"password",
	"secret",
	"token",
	"authorization",
	"auth",
	"credential",
}

// Patterns for secrets that should be redacted.
var secretPatterns = []*regexp.Regexp{
	// Bearer tokens and raw JWTs
	regexp.MustCompile(`(?i)bearer\s+([a-zA-Z0-9._-]{20,})`),
	regexp.MustCompile(`(eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+)`),

	// Generic long strings attached to secret-ish keys
	regexp.MustCompile(`(?i)(key|token|secret|password|auth)[=:]["']?([a-zA-Z0-9+/=_-]{32,})["']?`),
}

// RedactedValue is the replacement for sensitive values.
const RedactedValue = "[REDACTED]"

// Redact replaces sensitive information in a string.
func Redact(s string) string {
	result := s

	for _, pattern := range secretPatterns {
		result = pattern.ReplaceAllString(result, RedactedValue)
	}

	return result
}

// RedactURI strips credentials from a connection URI (mongodb://, redis://)
// so it can be logged safely.
func RedactURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return Redact(uri)
	}
	if u.User != nil {
		u.User = url.User(RedactedValue)
	}
	return u.String()
}

// IsSensitiveField checks if a field name is considered sensitive.
func IsSensitiveField(name string) bool {
	lowerName := strings.ToLower(name)
	for _, field := range sensitiveFields {
		if strings.Contains(lowerName, field) {
			return true
		}
	}
	return false
}
