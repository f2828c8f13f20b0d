package ratelimit

import (
	"net/http"
	"strings"
)

// Identifier derives the rate limit identifier for an outgoing request.
// Returning false lets the request through without counting it.
type Identifier func(req *http.Request) (identifier string, ok bool)

// MatchURL returns an Identifier that matches the request's host and path
// against glob patterns and uses the first matching pattern as the
// identifier, so every endpoint under one pattern shares one budget.
//
//   - "api.stripe.com/*" matches anything on that host
//   - "api.openai.com/v1/chat/*" matches only chat endpoints
//   - "api.example.com/v1/*/items" matches one path segment in the middle
//   - "api.example.com/v1/specific" matches exactly
func MatchURL(patterns ...string) Identifier {
	cleaned := make([]string, len(patterns))
	for i, p := range patterns {
		cleaned[i] = strings.TrimRight(p, "/")
	}
	return func(req *http.Request) (string, bool) {
		if req.URL == nil {
			return "", false
		}
		target := strings.TrimRight(req.URL.Host+req.URL.Path, "/")
		for i, p := range cleaned {
			if globMatch(p, target) {
				return patterns[i], true
			}
		}
		return "", false
	}
}

// globMatch reports whether value matches pattern. A trailing "/*" matches
// the prefix itself and everything below it; any other "*" matches a run of
// characters that does not cross a "/".
func globMatch(pattern, value string) bool {
	if pattern == value || pattern == "*" {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if value == prefix || strings.HasPrefix(value, prefix+"/") {
			return true
		}
	}
	return segmentMatch(pattern, value)
}

func segmentMatch(pattern, value string) bool {
	for pattern != "" {
		if pattern[0] != '*' {
			if value == "" || pattern[0] != value[0] {
				return false
			}
			pattern, value = pattern[1:], value[1:]
			continue
		}

		pattern = pattern[1:]
		for i := 0; i <= len(value); i++ {
			if segmentMatch(pattern, value[i:]) {
				return true
			}
			if i < len(value) && value[i] == '/' {
				return false
			}
		}
		return false
	}
	return value == ""
}
