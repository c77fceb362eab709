package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/intellisearch/synthesizer/internal/db"
	"github.com/intellisearch/synthesizer/internal/metrics"
	"github.com/intellisearch/synthesizer/internal/profiles"
	"github.com/intellisearch/synthesizer/internal/session"
	"github.com/intellisearch/synthesizer/internal/streaming"
	"github.com/intellisearch/synthesizer/internal/synthesis"
)

// Synthesizer runs one report synthesis; implemented by synthesis.Engine.
type Synthesizer interface {
	Synthesize(ctx context.Context, req synthesis.Request) (*synthesis.Result, error)
}

// ResearchHandler serves the research report API:
//
//	POST /api/v1/research               submit a synthesis job
//	GET  /api/v1/research/profiles      list report profiles
//	GET  /api/v1/research/{id}          session status and progress
//	GET  /api/v1/research/{id}/report   the finished report
type ResearchHandler struct {
	engine     Synthesizer
	sessions   *session.Manager
	registry   *profiles.Registry
	store      *db.Store
	stream     *streaming.Manager
	logger     *zap.Logger
	runTimeout time.Duration
}

// NewResearchHandler constructs the handler. store may be nil when archiving
// is disabled.
func NewResearchHandler(
	engine Synthesizer,
	sessions *session.Manager,
	registry *profiles.Registry,
	store *db.Store,
	stream *streaming.Manager,
	logger *zap.Logger,
) *ResearchHandler {
	return &ResearchHandler{
		engine:     engine,
		sessions:   sessions,
		registry:   registry,
		store:      store,
		stream:     stream,
		logger:     logger,
		runTimeout: 15 * time.Minute,
	}
}

// RegisterRoutes registers research endpoints on the given mux.
func (h *ResearchHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/research", h.instrument("/api/v1/research", h.handleResearch))
	mux.HandleFunc("/api/v1/research/", h.instrument("/api/v1/research/{id}", h.handleResearchSubpath))
}

// ResearchRequest is a synthesis job submission. Chunks arrive
// relevance-ordered from the retrieval pipeline; Outline is an optional
// proposed section plan.
type ResearchRequest struct {
	Topic   string                  `json:"topic"`
	Profile string                  `json:"profile"`
	Chunks  []synthesis.Chunk       `json:"chunks"`
	Outline []synthesis.OutlineItem `json:"outline,omitempty"`
}

func (h *ResearchHandler) handleResearch(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleSubmit(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *ResearchHandler) handleResearchSubpath(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/research/")
	if rest == "profiles" {
		h.handleProfiles(w, r)
		return
	}

	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		h.handleStatus(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "report":
		h.handleReport(w, r, parts[0])
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (h *ResearchHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req ResearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Topic = strings.TrimSpace(req.Topic)
	if req.Topic == "" {
		writeError(w, http.StatusBadRequest, "topic is required")
		return
	}
	if req.Profile == "" {
		req.Profile = "concise"
	}
	profile, ok := h.registry.Get(req.Profile)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown profile: "+req.Profile)
		return
	}

	sess, err := h.sessions.Create(r.Context(), req.Topic, profile.Name)
	if err != nil {
		h.logger.Error("Failed to create session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	go h.runSynthesis(sess.ID, profile, req)

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"session_id": sess.ID,
		"status":     sess.Status,
		"profile":    profile.Name,
	})
}

// runSynthesis drives one job in the background, publishing progress events
// and recording the outcome on the session.
func (h *ResearchHandler) runSynthesis(sessionID string, profile profiles.ReportProfile, req ResearchRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), h.runTimeout)
	defer cancel()

	_ = h.sessions.SetStatus(ctx, sessionID, session.StatusPlanning)

	// Not yet wired into the engine, which only accepts a progress callback
	// at construction time via synthesis.WithProgress.
	progress := func(event string, fields map[string]interface{}) {
		evt := streaming.Event{Type: event, Payload: fields}
		if title, ok := fields["title"].(string); ok {
			evt.Section = title
		}
		h.stream.Publish(sessionID, evt)

		switch event {
		case synthesis.EventChunksAllocated:
			_ = h.sessions.SetStatus(ctx, sessionID, session.StatusGenerating)
		case synthesis.EventReportTruncated, synthesis.EventExpansionRound:
			_ = h.sessions.SetStatus(ctx, sessionID, session.StatusFinalizing)
		}
	}
	_ = progress

	result, err := h.engine.Synthesize(ctx, synthesis.Request{
		Topic:   req.Topic,
		Profile: profile,
		Chunks:  req.Chunks,
		Outline: req.Outline,
	})
	// Rebuild a fresh context for bookkeeping; the run context may have
	// expired and the outcome still needs to be recorded.
	bg, bgCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer bgCancel()

	if err != nil {
		h.logger.Error("Synthesis failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		_ = h.sessions.Fail(bg, sessionID, err.Error())
		h.stream.Publish(sessionID, streaming.Event{Type: "report_failed", Message: err.Error()})
		return
	}

	if err := h.sessions.Complete(bg, sessionID, result); err != nil {
		h.logger.Error("Failed to record result", zap.String("session_id", sessionID), zap.Error(err))
	}

	if h.store != nil {
		rec := &db.ReportRecord{
			SessionID:      sessionID,
			Topic:          req.Topic,
			Profile:        profile.Name,
			Body:           result.Document.Body,
			CitationsBlock: result.Document.CitationsBlock,
			WordCount:      result.Document.WordCount,
			UniqueSources:  result.UniqueSources,
			Warnings:       db.MarshalWarnings(result.Warnings),
		}
		if err := h.store.Archive(bg, rec); err != nil {
			h.logger.Warn("Failed to archive report", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
}

func (h *ResearchHandler) handleProfiles(w http.ResponseWriter, r *http.Request) {
	names := h.registry.Names()
	out := make([]profiles.ReportProfile, 0, len(names))
	for _, name := range names {
		if p, ok := h.registry.Get(name); ok {
			out = append(out, p)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"profiles": out})
}

func (h *ResearchHandler) handleStatus(w http.ResponseWriter, r *http.Request, sessionID string) {
	sess, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sess.ID,
		"topic":      sess.Topic,
		"profile":    sess.Profile,
		"status":     sess.Status,
		"progress":   sess.Progress,
		"created_at": sess.CreatedAt,
		"updated_at": sess.UpdatedAt,
		"error":      sess.Error,
	})
}

func (h *ResearchHandler) handleReport(w http.ResponseWriter, r *http.Request, sessionID string) {
	sess, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	switch sess.Status {
	case session.StatusCompleted:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"session_id":      sess.ID,
			"topic":           sess.Topic,
			"profile":         sess.Profile,
			"document":        sess.Result.Document,
			"warnings":        sess.Result.Warnings,
			"unique_sources":  sess.Result.UniqueSources,
			"sections_failed": sess.Result.SectionsFailed,
		})
	case session.StatusFailed:
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"session_id": sess.ID,
			"status":     sess.Status,
			"error":      sess.Error,
		})
	default:
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"session_id": sess.ID,
			"status":     sess.Status,
			"message":    "report not ready",
		})
	}
}

// instrument wraps a handler with request counting.
func (h *ResearchHandler) instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		metrics.HTTPRequestsTotal.WithLabelValues(endpoint, r.Method, httpStatusClass(rec.status)).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func httpStatusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}

func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, session.ErrSessionExpired):
		writeError(w, http.StatusGone, "session expired")
	default:
		writeError(w, http.StatusInternalServerError, "failed to load session")
	}
}

// writeJSON writes a JSON response with status and content-type.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
