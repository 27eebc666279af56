// Package security rejects scanner traffic and oversized requests before
// they reach the claim handlers.
package security

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// Config holds the configuration for security middleware
type Config struct {
	FilterEnabled bool
	MaxBodySizeMB int
	MaxQueryKB    int // claim links carry base64 permits in the query
}

var exemptPaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// probePrefixes are paths requested by vulnerability scanners. Nothing
// served here lives under them.
var probePrefixes = []string{
	"/.env",
	"/.git/",
	"/.htaccess",
	"/.htpasswd",
	"/.php",
	"/cgi-bin/",
	"/phpinfo",
	"/phpmyadmin",
	"/server-status",
	"/wp-",
	"/xmlrpc.php",
	"/keystore",
	"/wallet.dat",
}

var traversalMarkers = []string{"../", "..\\", "..%2f", "..%5c", "%2e%2e/", "%00"}

// Middleware applies the filter, the query size limit and the body size
// limit in that order.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	filter := FilterMiddleware(cfg.FilterEnabled)
	query := MaxQuerySizeMiddleware(cfg.MaxQueryKB)
	body := MaxBodySizeMiddleware(cfg.MaxBodySizeMB)
	return func(next http.Handler) http.Handler {
		return filter(query(body(next)))
	}
}

// FilterMiddleware returns middleware that blocks scanner probes and path traversal.
func FilterMiddleware(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !exemptPaths[r.URL.Path] && suspicious(r.URL) {
				writeRejection(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func suspicious(u *url.URL) bool {
	path := strings.ToLower(u.Path)
	for _, prefix := range probePrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}

	candidates := []string{path, strings.ToLower(u.EscapedPath())}
	if decoded, err := url.PathUnescape(u.EscapedPath()); err == nil {
		candidates = append(candidates, strings.ToLower(decoded))
	}
	for _, c := range candidates {
		for _, marker := range traversalMarkers {
			if strings.Contains(c, marker) {
				return true
			}
		}
	}
	return false
}

// MaxQuerySizeMiddleware rejects requests whose raw query exceeds maxKB kilobytes.
// A non-positive limit disables the check.
func MaxQuerySizeMiddleware(maxKB int) func(http.Handler) http.Handler {
	limit := maxKB * 1024
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(r.URL.RawQuery) > limit {
				writeRejection(w, http.StatusRequestURITooLong, "URI_TOO_LONG", "Claim link is too long")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// MaxBodySizeMiddleware limits request bodies to maxSizeMB megabytes.
func MaxBodySizeMiddleware(maxSizeMB int) func(http.Handler) http.Handler {
	maxBytes := int64(maxSizeMB) * 1024 * 1024
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// writeRejection answers without revealing which rule matched.
func writeRejection(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
