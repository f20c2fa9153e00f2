package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	contrib "contactdir/internal/contribution"
	"contactdir/internal/gateway/middleware"
	contribsvc "contactdir/internal/gateway/service/contribution"
	"contactdir/internal/logging"
)

const (
	ndjsonContentType = "application/x-ndjson"
	maxSubmissionSize = 1 << 20
)

// ContributionHandler runs submissions and streams their progress.
type ContributionHandler struct {
	svc    *contribsvc.Service
	logger *zap.Logger
}

func NewContributionHandler(svc *contribsvc.Service, logger *zap.Logger) *ContributionHandler {
	return &ContributionHandler{svc: svc, logger: logging.OrNop(logger).Named("http.contribution")}
}

// progressLine is one NDJSON record of a running contribution.
type progressLine struct {
	RunID string `json:"runId"`
	contrib.StateView
}

// HandleSubmit runs the pipeline for the posted submission and writes one
// JSON line per state. The last line is always terminal. Submissions that
// fail validation get a plain 400 before any line is written.
func (h *ContributionHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var sub contrib.Submission
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmissionSize)).Decode(&sub); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json body", Code: string(contrib.CodeInvalidInput)})
		return
	}

	runID := uuid.NewString()
	ctx := contrib.WithRunID(r.Context(), runID)
	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)
	started := false

	_, _, err := h.svc.Submit(ctx, middleware.CredentialFromContext(r.Context()), sub, func(st contrib.State) {
		if !started {
			w.Header().Set("Content-Type", ndjsonContentType)
			w.Header().Set("X-Run-Id", runID)
			w.Header().Set("Cache-Control", "no-cache")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if err := enc.Encode(progressLine{RunID: runID, StateView: contrib.View(st)}); err != nil {
			h.logger.Debug("progress write failed", zap.String("run_id", runID), zap.Error(err))
			return
		}
		_ = rc.Flush()
	})
	if err != nil {
		writeError(w, err)
	}
}

// HandleStatus returns the last recorded state of a run.
func (h *ContributionHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(chi.URLParam(r, "runID"))
	status, ok := h.svc.Status(runID)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "run " + runID + " not found", Code: "NOT_FOUND"})
		return
	}
	writeJSON(w, http.StatusOK, status)
}
