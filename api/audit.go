package api

import (
	"log/slog"
	"net/http"
	"time"
)

// AuditEvent identifies the type of game action being logged.
type AuditEvent string

const (
	AuditSessionStarted  AuditEvent = "session_started"
	AuditSessionReset    AuditEvent = "session_reset"
	AuditAnswerCorrect   AuditEvent = "answer_correct"
	AuditAnswerIncorrect AuditEvent = "answer_incorrect"
	AuditFlagAccepted    AuditEvent = "flag_accepted"
	AuditFlagDuplicate   AuditEvent = "flag_duplicate"
	AuditFlagRejected    AuditEvent = "flag_rejected"
	AuditVaultOpened     AuditEvent = "vault_opened"
)

// auditLogger wraps slog.Logger for structured audit logging.
type auditLogger struct {
	logger  *slog.Logger
	metrics *metricsCollector
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
	}
}

// log writes a structured audit log entry and feeds the metrics collector.
func (al *auditLogger) log(event AuditEvent, r *http.Request, attrs ...slog.Attr) {
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	baseAttrs = append(baseAttrs, attrs...)

	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", baseAttrs...)
	if al.metrics != nil {
		al.metrics.recordEvent(event)
	}
}

// logEvent is a convenience for events tied to a session. Submitted answers
// and flags are never logged, only the puzzle an answer was aimed at.
func (al *auditLogger) logEvent(event AuditEvent, r *http.Request, sessionID string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("session_id", sessionID),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}
