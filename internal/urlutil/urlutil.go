// Package urlutil builds absolute URLs for resources served by this process.
package urlutil

import (
	"net/http"
	"strings"
)

// OriginFromRequest returns the origin (scheme + host) the client used to reach us,
// honoring X-Forwarded-Proto and X-Forwarded-Host from a fronting proxy. fallback is
// returned when no host can be determined.
func OriginFromRequest(r *http.Request, fallback string) string {
	base := normalizeBaseURL(fallback)
	if r == nil {
		return base
	}

	host := firstForwarded(r.Header.Get("X-Forwarded-Host"))
	if host == "" {
		host = strings.TrimSpace(r.Host)
	}
	if host == "" {
		return base
	}
	return normalizeBaseURL(requestScheme(r) + "://" + host)
}

// BuildAbsolute joins a base origin and a path. Absolute paths are returned unchanged.
func BuildAbsolute(base, path string) string {
	base = normalizeBaseURL(base)
	switch {
	case path == "":
		return base
	case strings.HasPrefix(path, "http://"), strings.HasPrefix(path, "https://"):
		return path
	case strings.HasPrefix(path, "/"):
		return base + path
	default:
		return base + "/" + path
	}
}

// ResourceURL is the absolute URL of path as seen by the client that sent r.
func ResourceURL(r *http.Request, path string) string {
	return BuildAbsolute(OriginFromRequest(r, "http://localhost"), path)
}

func requestScheme(r *http.Request) string {
	switch proto := firstForwarded(r.Header.Get("X-Forwarded-Proto")); proto {
	case "http", "https":
		return proto
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// firstForwarded returns the first entry of a comma-separated forwarding header.
func firstForwarded(value string) string {
	if comma := strings.Index(value, ","); comma >= 0 {
		value = value[:comma]
	}
	return strings.TrimSpace(value)
}

func normalizeBaseURL(base string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/")
}
