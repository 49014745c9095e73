package monitor

import "strings"

// Redacted replaces the value of any sensitive detail key.
const Redacted = "[REDACTED]"

var sensitiveKeySubstrings = []string{
	"password", "token", "key", "secret", "auth", "credit",
}

// SanitizeDetails returns a copy of details with sensitive values redacted.
// Matching is a case-insensitive substring test on the key name, applied
// uniformly to activity and security events before storage or flush.
func SanitizeDetails(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}

	sanitized := make(map[string]any, len(details))
	for key, value := range details {
		if sensitiveKey(key) {
			sanitized[key] = Redacted
			continue
		}
		sanitized[key] = value
	}
	return sanitized
}

func sensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, sub := range sensitiveKeySubstrings {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}
