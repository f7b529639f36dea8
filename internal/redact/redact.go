// Package redact strips sensitive values from headers and payloads before
// any captured data leaves the buffer.
package redact

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Sentinel replaces every redacted value.
const Sentinel = "[REDACTED]"

// sensitiveHeaders are replaced wholesale, matched on the lowercased name.
var sensitiveHeaders = map[string]struct{}{
	"authorization": {},
	"cookie":        {},
	"set-cookie":    {},
	"x-api-key":     {},
}

var sensitiveFieldPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)password`),
	regexp.MustCompile(`(?i)passwd`),
	regexp.MustCompile(`(?i)secret`),
	regexp.MustCompile(`(?i)token`),
	regexp.MustCompile(`(?i)credit.?card`),
	regexp.MustCompile(`(?i)card.?number`),
	regexp.MustCompile(`(?i)cvv`),
	regexp.MustCompile(`(?i)cvc`),
	regexp.MustCompile(`(?i)ssn`),
	regexp.MustCompile(`(?i)social.?security`),
}

// Headers returns a copy of headers with deny-listed names replaced by the
// sentinel. All other headers pass through unchanged.
func Headers(headers map[string]string) map[string]string {
	result := make(map[string]string, len(headers))
	for name, value := range headers {
		if _, sensitive := sensitiveHeaders[strings.ToLower(name)]; sensitive {
			result[name] = Sentinel
		} else {
			result[name] = value
		}
	}
	return result
}

// IsSensitiveField reports whether a field name matches any known sensitive
// pattern (password/secret/token/credit-card/cvv/cvc/ssn variants).
func IsSensitiveField(name string) bool {
	for _, pattern := range sensitiveFieldPatterns {
		if pattern.MatchString(name) {
			return true
		}
	}
	return false
}

// FormValues returns a copy of form with every value under a sensitive field
// name collapsed to the sentinel. Other fields keep all their values.
func FormValues(form url.Values) url.Values {
	result := make(url.Values, len(form))
	for name, values := range form {
		if IsSensitiveField(name) {
			result[name] = []string{Sentinel}
		} else {
			result[name] = append([]string(nil), values...)
		}
	}
	return result
}

// Body redacts sensitive field values in a body string. If body is valid
// JSON, objects are walked recursively and every value under a sensitive key
// is replaced by the sentinel regardless of type. Non-JSON bodies (and nil)
// are returned unchanged; content-based redaction of opaque text is a
// documented limitation, not an error.
func Body(body *string) *string {
	if body == nil {
		return nil
	}
	var parsed any
	if err := json.Unmarshal([]byte(*body), &parsed); err != nil {
		return body
	}
	switch parsed.(type) {
	case map[string]any, []any:
	default:
		// JSON scalars have nothing to redact by key.
		return body
	}
	redacted := redactValue(parsed, false)
	encoded, err := json.Marshal(redacted)
	if err != nil {
		return body
	}
	out := string(encoded)
	return &out
}

// TruncateBody caps body at max bytes, appending a human-readable marker
// when truncation occurs. Nil passes through.
func TruncateBody(body *string, max int) *string {
	if body == nil {
		return nil
	}
	if len(*body) <= max {
		return body
	}
	truncated := (*body)[:max] + fmt.Sprintf("... [truncated at %d bytes]", max)
	return &truncated
}

func redactValue(value any, sensitive bool) any {
	if sensitive {
		return Sentinel
	}
	switch typed := value.(type) {
	case map[string]any:
		result := make(map[string]any, len(typed))
		for key, nested := range typed {
			result[key] = redactValue(nested, IsSensitiveField(key))
		}
		return result
	case []any:
		result := make([]any, len(typed))
		for i, item := range typed {
			result[i] = redactValue(item, false)
		}
		return result
	default:
		return value
	}
}
