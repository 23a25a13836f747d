package util

import (
	"html"
	"strings"
)

// SanitizeInput trims whitespace and escapes HTML/script-like characters so
// user-supplied strings are safe to echo back in responses and logs.
func SanitizeInput(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}

// ContainsSuspicious flags strings carrying obvious injection markers.
func ContainsSuspicious(s string) bool {
	lowered := strings.ToLower(s)
	for _, marker := range []string{"<", ">", "${", "script", "onerror", "onload"} {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}
