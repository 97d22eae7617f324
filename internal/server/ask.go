package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/AssetOverflow/BibleStudyAI/internal/errors"
	"github.com/AssetOverflow/BibleStudyAI/internal/logging"
	"github.com/AssetOverflow/BibleStudyAI/internal/search"
	"github.com/AssetOverflow/BibleStudyAI/internal/session"
)

// handleAsk runs one full question: session resolution, hybrid retrieval,
// synthesis, and history recording.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	ctx := r.Context()
	start := time.Now()

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, apperrors.ErrCodeInvalidInput, "invalid request body", nil)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.writeError(w, http.StatusBadRequest, apperrors.ErrCodeQueryEmpty, "query is required", nil)
		return
	}

	sessionID, created, err := s.sessions.GetOrCreate(ctx, req.SessionID)
	if err != nil {
		s.failAsk(w, log, err, nil, start)
		return
	}

	history, err := s.sessions.ContextWindow(ctx, sessionID)
	if err != nil {
		s.failAsk(w, log, err, nil, start)
		return
	}

	result, err := s.retriever.Retrieve(ctx, &search.Request{
		Query:       req.Query,
		TopK:        req.TopK,
		LabelFilter: req.LabelFilter,
	})
	if err != nil {
		s.failAsk(w, log, err, nil, start)
		return
	}
	for _, origin := range result.FailedOrigins {
		s.metrics.adapterFailures.WithLabelValues(string(origin)).Inc()
	}
	if result.Degraded {
		s.metrics.degradedTotal.Inc()
	}

	ans, err := s.synth.Synthesize(ctx, req.Query, result.Results, history, result.Degraded)
	if err != nil {
		// Retrieval already succeeded; hand the caller the raw passages.
		s.failAsk(w, log, err, result, start)
		return
	}

	// Record the turn only after a successful answer, so failed queries do
	// not pollute the conversation history.
	if _, err := s.sessions.Append(ctx, sessionID, session.RoleUser, req.Query); err != nil {
		s.failAsk(w, log, err, nil, start)
		return
	}
	if _, err := s.sessions.Append(ctx, sessionID, session.RoleAssistant, ans.Text); err != nil {
		s.failAsk(w, log, err, nil, start)
		return
	}

	outcome := "ok"
	if !ans.Grounded {
		outcome = "no_evidence"
	}
	s.observeAsk(outcome, start)

	writeJSON(w, http.StatusOK, askResponse{
		Answer:         ans.Text,
		Citations:      ans.Citations,
		Confidence:     ans.Confidence,
		SessionID:      sessionID,
		SessionCreated: created,
		Degraded:       result.Degraded,
		FailedOrigins:  result.FailedOrigins,
	})
}

// handleSessionMessages returns the full message history of one session.
func (s *Server) handleSessionMessages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	msgs, err := s.sessions.History(r.Context(), id)
	if err != nil {
		status, code := statusForError(err)
		s.writeError(w, status, code, err.Error(), nil)
		return
	}

	resp := historyResponse{SessionID: id, Messages: make([]historyMessage, 0, len(msgs))}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, historyMessage{
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// failAsk maps a pipeline error onto an HTTP response and records metrics.
// When retrieval succeeded before the failure, its passages ride along in
// the error body.
func (s *Server) failAsk(w http.ResponseWriter, log *slog.Logger, err error, retrieved *search.Result, start time.Time) {
	status, code := statusForError(err)

	var passages []passage
	if retrieved != nil {
		for _, r := range retrieved.Results {
			passages = append(passages, passage{
				ChunkID:   r.ChunkID,
				Reference: r.Reference,
				Excerpt:   r.Content,
			})
		}
	}

	log.Error("ask failed",
		slog.String("code", code),
		slog.Int("status", status),
		slog.Any("error", err))
	s.observeAsk(outcomeForCode(code), start)

	s.writeError(w, status, code, err.Error(), passages)
}

// observeAsk records one completed ask request.
func (s *Server) observeAsk(outcome string, start time.Time) {
	s.metrics.queriesTotal.WithLabelValues(outcome).Inc()
	s.metrics.queryDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

// statusForError maps the error taxonomy onto HTTP statuses. Degraded-mode
// faults never reach this path; only terminal failures do.
func statusForError(err error) (int, string) {
	code := apperrors.GetCode(err)
	switch code {
	case apperrors.ErrCodeQueryEmpty, apperrors.ErrCodeInvalidInput, apperrors.ErrCodeInvalidDepth:
		return http.StatusBadRequest, code
	case apperrors.ErrCodeSessionNotFound:
		return http.StatusNotFound, code
	case apperrors.ErrCodeSessionExpired:
		return http.StatusGone, code
	case apperrors.ErrCodeAllAdaptersFailed, apperrors.ErrCodeModelUnavailable:
		return http.StatusServiceUnavailable, code
	case apperrors.ErrCodeSynthesisTimeout:
		return http.StatusGatewayTimeout, code
	case "":
		return http.StatusInternalServerError, apperrors.ErrCodeInternal
	default:
		return http.StatusInternalServerError, code
	}
}

// outcomeForCode buckets failure codes for the queries_total metric.
func outcomeForCode(code string) string {
	switch code {
	case apperrors.ErrCodeSynthesisTimeout:
		return "synthesis_timeout"
	case apperrors.ErrCodeAllAdaptersFailed:
		return "retrieval_failed"
	default:
		return "error"
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string, passages []passage) {
	writeJSON(w, status, errorResponse{Code: code, Message: message, Passages: passages})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
