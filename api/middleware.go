package api

import (
	"net/http"

	"github.com/jmcleod/heist/session"
)

// SessionMiddleware resolves the caller's session from the session cookie,
// starting a new one when the cookie is missing, expired or tampered with,
// and stores it on the request context.
func (a *API) SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, started, err := a.sessions.Resolve(w, r)
		if err != nil {
			a.logger.Error("resolving session", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if started {
			a.audit.logEvent(AuditSessionStarted, r, sess.ID)
		}
		next.ServeHTTP(w, r.WithContext(session.NewContext(r.Context(), sess)))
	})
}

func sessionFromContext(r *http.Request) session.Session {
	sess, _ := session.FromContext(r.Context())
	return sess
}
