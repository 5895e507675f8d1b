package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jmcleod/heist/game"
	"github.com/jmcleod/heist/puzzle"
)

// maxBodyBytes bounds answer and flag submissions.
const maxBodyBytes = 16 << 10

// decodeBody decodes a JSON request body into dst. Decoding is best-effort:
// a missing, oversized or malformed body leaves dst at its zero value, which
// the handlers treat as an empty submission.
func (a *API) decodeBody(w http.ResponseWriter, r *http.Request, dst any) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		a.logger.DebugContext(r.Context(), "ignoring undecodable request body", "path", r.URL.Path, "error", err)
	}
}

// ListPuzzles handles GET /puzzles.
func (a *API) ListPuzzles(w http.ResponseWriter, r *http.Request) {
	list := a.puzzles.List()
	out := make([]PuzzleSummary, len(list))
	for i, p := range list {
		out[i] = PuzzleSummary{ID: p.ID, Title: p.Title, Type: string(p.Type)}
	}
	writeJSON(w, http.StatusOK, out)
}

// GetPuzzle handles GET /puzzle/{id}.
func (a *API) GetPuzzle(w http.ResponseWriter, r *http.Request) {
	d, err := a.puzzles.Get(chi.URLParam(r, "id"))
	if errors.Is(err, game.ErrUnknownPuzzle) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		a.mapError(w, r, err)
		return
	}

	resp := PuzzleDetailResponse{
		ID:          d.ID,
		Title:       d.Title,
		Type:        string(d.Type),
		Description: d.Description,
	}
	switch d.Type {
	case puzzle.TypePhishing:
		resp.Email = d.Artifact
	case puzzle.TypeEncrypt:
		resp.JSCode = d.Artifact
	case puzzle.TypeLogs:
		resp.PNGBase64 = d.Artifact
	}
	writeJSON(w, http.StatusOK, resp)
}

// SubmitAnswer handles POST /submit_answer/{id}.
func (a *API) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req SubmitAnswerRequest
	a.decodeBody(w, r, &req)

	res, err := a.puzzles.SubmitAnswer(id, req.Answer)
	if err != nil {
		a.mapError(w, r, err)
		return
	}

	sess := sessionFromContext(r)
	if res.Correct {
		a.audit.logEvent(AuditAnswerCorrect, r, sess.ID, slog.String("puzzle_id", id))
	} else {
		a.audit.logEvent(AuditAnswerIncorrect, r, sess.ID, slog.String("puzzle_id", id))
	}
	writeJSON(w, http.StatusOK, SubmitAnswerResponse{
		Correct:    res.Correct,
		RewardFlag: res.RewardFlag,
	})
}

// SubmitFlag handles POST /submit_flag.
func (a *API) SubmitFlag(w http.ResponseWriter, r *http.Request) {
	var req SubmitFlagRequest
	a.decodeBody(w, r, &req)

	sess := sessionFromContext(r)
	res, err := a.vault.SubmitFlag(r.Context(), sess, req.Flag)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	if !res.Valid {
		a.audit.logEvent(AuditFlagRejected, r, sess.ID)
		writeJSON(w, http.StatusOK, SubmitFlagResponse{Valid: false})
		return
	}

	if res.Already {
		a.audit.logEvent(AuditFlagDuplicate, r, sess.ID)
	} else {
		a.audit.logEvent(AuditFlagAccepted, r, sess.ID)
		a.auditVaultOpened(r)
	}
	already := res.Already
	writeJSON(w, http.StatusOK, SubmitFlagResponse{
		Valid:   true,
		Already: &already,
		Flag:    res.Flag,
	})
}

// auditVaultOpened records the moment a newly registered flag completes the
// session's collection. Failures only affect the audit trail.
func (a *API) auditVaultOpened(r *http.Request) {
	sess := sessionFromContext(r)
	status, err := a.vault.Check(r.Context(), sess)
	if err != nil {
		a.logger.WarnContext(r.Context(), "checking vault after flag registration", "error", err)
		return
	}
	if status.Opened {
		a.audit.logEvent(AuditVaultOpened, r, sess.ID)
	}
}

// ListFlags handles GET /flags.
func (a *API) ListFlags(w http.ResponseWriter, r *http.Request) {
	flags, err := a.vault.Flags(r.Context(), sessionFromContext(r))
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flags)
}

// CheckVault handles GET /check_vault.
func (a *API) CheckVault(w http.ResponseWriter, r *http.Request) {
	status, err := a.vault.Check(r.Context(), sessionFromContext(r))
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CheckVaultResponse{
		Opened:    status.Opened,
		FinalFlag: status.FinalFlag,
		Missing:   status.Missing,
	})
}

// ResetSession handles DELETE /session. The current session ends with its
// flags and the client receives a cookie for a fresh one.
func (a *API) ResetSession(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r)
	if err := a.vault.Reset(r.Context(), sess); err != nil {
		a.mapError(w, r, err)
		return
	}
	next, err := a.sessions.Restart(w, r)
	if err != nil {
		a.logger.ErrorContext(r.Context(), "starting session after reset", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	a.audit.logEvent(AuditSessionReset, r, sess.ID, slog.String("new_session_id", next.ID))
	a.audit.logEvent(AuditSessionStarted, r, next.ID)
	writeJSON(w, http.StatusOK, ResetResponse{Reset: true})
}
