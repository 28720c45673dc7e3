package fetch

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/shpitdev/pds-validator/pkg/pipeline/redact"
)

// HTTPError is a sanitized summary of a rejected document response.
//
// Important: do not include raw response bodies here (can leak tokens).
type HTTPError struct {
	Op          string
	StatusCode  int
	Status      string
	ContentType string

	// Snippet is a redacted, truncated hint for non-PDF responses.
	Snippet string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "document http error"
	}
	parts := []string{
		fmt.Sprintf("document fetch rejected: op=%s status=%s", strings.TrimSpace(e.Op), strings.TrimSpace(e.Status)),
	}
	if strings.TrimSpace(e.ContentType) != "" {
		parts = append(parts, "contentType="+strings.TrimSpace(e.ContentType))
	}
	if strings.TrimSpace(e.Snippet) != "" {
		parts = append(parts, "body="+strings.TrimSpace(e.Snippet))
	}
	return strings.Join(parts, " ")
}

func newHTTPError(op string, resp *http.Response, body []byte) error {
	h := &HTTPError{Op: op}
	if resp != nil {
		h.StatusCode = resp.StatusCode
		h.Status = resp.Status
		h.ContentType = resp.Header.Get("Content-Type")
	}
	h.Snippet = redactAndTruncate(body)
	return h
}

func redactAndTruncate(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	const max = 256
	b := body
	if len(b) > max {
		b = b[:max]
	}
	s := redact.Secrets(string(b))
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(body) > max {
		return s + "..."
	}
	return s
}
