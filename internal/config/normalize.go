package config

import (
	"strings"
)

// NormalizeBaseURL trims whitespace and trailing slashes and adds an http://
// scheme when none is given, so endpoint paths can be appended directly.
//   - "127.0.0.1:8000/"      → "http://127.0.0.1:8000"
//   - "https://pair.example" → unchanged
func NormalizeBaseURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return ""
	}
	if !strings.Contains(u, "://") {
		u = "http://" + u
	}
	return strings.TrimRight(u, "/")
}

// NormalizeLogLevel lowercases a level name and maps aliases; unknown values become "info".
func NormalizeLogLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "trace":
		return "debug"
	case "warn", "warning":
		return "warn"
	case "error", "err":
		return "error"
	default:
		return "info"
	}
}
