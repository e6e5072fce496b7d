// Package privacy scrubs sensitive material from anything destined for a
// log sink. Redaction happens before the write, never after.
package privacy

import (
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

// sensitiveKeys are matched as substrings of lowercased map keys. Header
// names and env-style keys both funnel through here.
var sensitiveKeys = []string{
	"token",
	"authorization",
	"x-signature",
	"password",
	"secret",
	"api_key",
	"cookie",
}

// tokenPatterns catch credential-shaped substrings inside free-form text,
// e.g. tracker API keys pasted into an upstream error message.
var tokenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)pk_\d+_[A-Z0-9]+`),
	regexp.MustCompile(`(?i)xoxb-[0-9]+-[0-9]+-[a-zA-Z0-9]+`),
	regexp.MustCompile(`(?i)ghu_[a-zA-Z0-9]+`),
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._\-]+`),
}

// SensitiveKey reports whether a map or header key should be redacted.
func SensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, sk := range sensitiveKeys {
		if strings.Contains(lower, sk) {
			return true
		}
	}
	return false
}

// SanitizeMap returns a copy of m with sensitive keys redacted. Nested maps
// and slices are walked recursively; the input is never mutated.
func SanitizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if SensitiveKey(k) {
			out[k] = redacted
			continue
		}
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		return SanitizeMap(tv)
	case []any:
		out := make([]any, len(tv))
		for i, item := range tv {
			out[i] = sanitizeValue(item)
		}
		return out
	case string:
		return SanitizeMessage(tv)
	default:
		return v
	}
}

// SanitizeHeaders flattens headers to a loggable map with sensitive values
// redacted.
func SanitizeHeaders(headers map[string][]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, vals := range headers {
		if SensitiveKey(k) {
			out[k] = redacted
			continue
		}
		out[k] = strings.Join(vals, ",")
	}
	return out
}

// SanitizeMessage redacts credential-shaped substrings from free-form text.
func SanitizeMessage(message string) string {
	for _, p := range tokenPatterns {
		message = p.ReplaceAllString(message, redacted)
	}
	return message
}

// AnonymizeIP truncates an IP for logging: /24 prefix for IPv4, first two
// groups for IPv6. Good enough to correlate abuse without storing the full
// address.
func AnonymizeIP(ip string) string {
	if ip == "" {
		return "unknown"
	}
	if strings.Contains(ip, ":") {
		parts := strings.Split(ip, ":")
		if len(parts) >= 2 {
			return parts[0] + ":" + parts[1] + "::/32"
		}
		return ip
	}
	parts := strings.Split(ip, ".")
	if len(parts) == 4 {
		return strings.Join(parts[:3], ".") + ".0/24"
	}
	return ip
}
