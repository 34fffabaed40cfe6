// internal/webhook/redact.go
package webhook

import "strings"

// DefaultSensitiveKeys are the substrings that mark a payload key as secret.
var DefaultSensitiveKeys = []string{"password", "token", "secret", "key", "auth", "credential", "remember_token"}

// Redactor removes top-level keys whose lowercased name contains a sensitive substring.
type Redactor struct {
	keys []string
}

// NewRedactor returns a redactor for keys, or for DefaultSensitiveKeys when none are given.
func NewRedactor(keys ...string) *Redactor {
	if len(keys) == 0 {
		keys = DefaultSensitiveKeys
	}
	lowered := make([]string, len(keys))
	for i, k := range keys {
		lowered[i] = strings.ToLower(k)
	}
	return &Redactor{keys: lowered}
}

// Sensitive reports whether key would be removed.
func (r *Redactor) Sensitive(key string) bool {
	key = strings.ToLower(key)
	for _, s := range r.keys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

// Redact returns a copy of data without sensitive keys. data is not modified.
func (r *Redactor) Redact(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if r.Sensitive(k) {
			continue
		}
		out[k] = v
	}
	return out
}
