package logger

import (
	"regexp"
	"strings"
)

type redaction struct {
	pattern *regexp.Regexp
	replace string
}

var redactions = []redaction{
	// Credentials embedded in URLs, e.g. a Sentry DSN https://key@host/1
	{regexp.MustCompile(`(?i)(https?://)[^/@\s]+@`), "${1}[REDACTED]@"},
	// Bearer tokens
	{regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9-._~+/]+=*`), "${1}[REDACTED]"},
}

// SensitiveKeywords are keywords that indicate a config key holds a secret
var SensitiveKeywords = []string{"dsn", "password", "secret", "token", "apikey", "api_key"}

// RedactSensitiveData replaces sensitive information with "[REDACTED]"
func RedactSensitiveData(input string) string {
	if input == "" {
		return input
	}
	for _, r := range redactions {
		input = r.pattern.ReplaceAllString(input, r.replace)
	}
	return input
}

// IsSensitiveKey reports whether a key name suggests its value is a secret.
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, kw := range SensitiveKeywords {
		if strings.Contains(keyLower, kw) {
			return true
		}
	}
	return false
}
