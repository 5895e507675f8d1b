package api

import (
	"net/http"
	"strings"

	"github.com/jmcleod/heist/session"
)

const (
	defaultCSP = "default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; connect-src 'self'"
	// The generated documentation pages load their bundles from public CDNs
	// and bootstrap them with an inline script.
	docsCSP = "default-src 'self'; script-src 'self' 'unsafe-inline' https://unpkg.com https://cdn.jsdelivr.net; " +
		"style-src 'self' 'unsafe-inline' https://unpkg.com https://fonts.googleapis.com; font-src https://fonts.gstatic.com; " +
		"img-src 'self' data: https:; worker-src blob:; connect-src 'self'"
)

func isDocsPath(p string) bool {
	return strings.HasPrefix(p, "/api/docs") || strings.HasPrefix(p, "/api/redoc")
}

// SecurityHeaders is middleware that sets standard security response headers
// on every response. It should be placed early in the middleware chain.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		if isDocsPath(r.URL.Path) {
			w.Header().Set("Content-Security-Policy", docsCSP)
		} else {
			w.Header().Set("Content-Security-Policy", defaultCSP)
		}

		if session.RequestIsSecure(r) {
			w.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}
