// Package logutil shapes request data and error text into single log-line values.
package logutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"strings"
)

const truncatedMarker = "... [truncated]"

// credentialHeaders are never logged. The service has no auth of its own, but a fronting
// proxy or client may still send credentials meant for someone else.
var credentialHeaders = []string{
	"Authorization",
	"Cookie",
	"Proxy-Authorization",
	"Set-Cookie",
}

// IsCredentialHeader reports whether the canonical form of name carries credentials.
func IsCredentialHeader(name string) bool {
	return slices.Contains(credentialHeaders, http.CanonicalHeaderKey(strings.TrimSpace(name)))
}

// FormatHeadersForLog renders headers as `name="v1, v2"` pairs sorted by name, with
// credential headers replaced by [REDACTED].
func FormatHeadersForLog(headers http.Header) string {
	if len(headers) == 0 {
		return "{}"
	}

	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	slices.Sort(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(strings.ToLower(name))
		b.WriteByte('=')
		if IsCredentialHeader(name) {
			b.WriteString(`"[REDACTED]"`)
			continue
		}
		b.WriteString(strconv.Quote(strings.Join(headers.Values(name), ", ")))
	}
	return b.String()
}

// FormatBodyForLog renders at most maxBytes of body on one line. Complete JSON bodies are
// compacted; anything else has its newlines escaped. truncated marks a body that was
// already cut short by the caller.
func FormatBodyForLog(contentType string, body []byte, maxBytes int, truncated bool) string {
	if len(body) == 0 {
		return ""
	}
	if maxBytes > 0 && len(body) > maxBytes {
		body = body[:maxBytes]
		truncated = true
	}

	text := ""
	if strings.Contains(strings.ToLower(contentType), "json") {
		var compact bytes.Buffer
		if err := json.Compact(&compact, body); err == nil {
			text = compact.String()
		}
	}
	if text == "" {
		text = escapeNewlines(strings.TrimSpace(string(body)))
	}
	if truncated {
		return text + truncatedMarker
	}
	return text
}

// TruncateForLog trims value to a single line of at most maxChars characters, plus a marker
// when it was cut.
func TruncateForLog(value string, maxChars int) string {
	line := escapeNewlines(strings.TrimSpace(value))
	if maxChars <= 0 || len(line) <= maxChars {
		return line
	}
	return line[:maxChars] + truncatedMarker
}

func escapeNewlines(s string) string {
	return strings.ReplaceAll(s, "\n", `\n`)
}
