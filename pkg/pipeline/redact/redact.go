package redact

import (
	"regexp"
	"strings"
)

var (
	// Matches "Bearer <token>" (JWTs and opaque tokens).
	bearerTokenRe = regexp.MustCompile(`(?i)\bBearer\s+[^\s"']+`)

	// Common key=value formats that sometimes leak in error strings.
	apiKeyKVRe = regexp.MustCompile(`(?i)\b(api[_-]?key|openai[_-]?api[_-]?key|gemini[_-]?api[_-]?key|anthropic[_-]?api[_-]?key|x-api-key)\b\s*[:=]\s*[^\s"']+`)

	// Query-string keys, e.g. Custom Search URLs echoed back by url.Error.
	queryKeyRe = regexp.MustCompile(`([?&])(key|cx)=[^&\s"']+`)

	// OpenAI/Anthropic style secret keys.
	skKeyRe = regexp.MustCompile(`\bsk-[A-Za-z0-9_\-]{8,}`)
)

// Secrets removes obvious secret-bearing substrings from error/log strings.
func Secrets(s string) string {
	if s == "" {
		return ""
	}
	out := s
	out = bearerTokenRe.ReplaceAllString(out, "Bearer <redacted>")
	out = apiKeyKVRe.ReplaceAllString(out, "<redacted_kv>")
	out = queryKeyRe.ReplaceAllString(out, "${1}${2}=<redacted>")
	out = skKeyRe.ReplaceAllString(out, "sk-<redacted>")
	return strings.TrimSpace(out)
}
