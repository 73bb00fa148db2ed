package zerolog

import "strings"

// Redacted replaces values of sensitive fields in sanitized payloads.
const Redacted = "[REDACTED]"

// denyList holds key substrings whose values are always fully redacted.
// Matching is case-insensitive.
var denyList = []string{
	"password",
	"passwd",
	"token",
	"secret",
	"apikey",
	"api_key",
	"auth",
	"authorization",
	"cookie",
	"credential",
}

// Sanitize returns a deep copy of v with sensitive fields redacted.
// Map keys that case-insensitively contain a deny-listed substring have
// their values replaced with Redacted; a key named exactly "cpf" keeps the
// first 3 and last 2 digits. Sanitization recurses into maps and slices;
// anything else passes through unchanged. Sanitize never panics on
// unexpected shapes.
func Sanitize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = sanitizeField(k, item)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = sanitizeField(k, item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Sanitize(item)
		}
		return out
	default:
		return v
	}
}

// Fields is a convenience wrapper for zerolog's Event.Fields: it sanitizes
// the payload and guarantees a map result.
func Fields(payload map[string]any) map[string]any {
	sanitized, ok := Sanitize(payload).(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return sanitized
}

func sanitizeField(key string, v any) any {
	if strings.EqualFold(key, "cpf") {
		return maskCPF(v)
	}
	lower := strings.ToLower(key)
	for _, deny := range denyList {
		if strings.Contains(lower, deny) {
			return Redacted
		}
	}
	return Sanitize(v)
}

// maskCPF keeps the first 3 and last 2 digits of a CPF value, e.g.
// "12345678909" becomes "123.***.**09". Non-string or too-short values are
// fully redacted.
func maskCPF(v any) any {
	s, ok := v.(string)
	if !ok {
		return Redacted
	}
	digits := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			digits = append(digits, s[i])
		}
	}
	if len(digits) < 6 {
		return Redacted
	}
	return string(digits[:3]) + ".***.**" + string(digits[len(digits)-2:])
}
