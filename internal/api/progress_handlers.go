package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

const (
	defaultCheckpointLimit = 50
	maxCheckpointLimit     = 1000
)

// progressHandler exposes the checkpoint log and manual run triggers.
type progressHandler struct {
	checkpoints crawler.CheckpointStore
	runner      Runner
	runTimeout  time.Duration
	logger      *zap.Logger
}

// listCheckpoints handles GET /v1/checkpoints?limit=&offset=, newest first.
func (h *progressHandler) listCheckpoints(w http.ResponseWriter, r *http.Request) {
	if h.checkpoints == nil {
		writeError(w, http.StatusServiceUnavailable, "checkpoint store unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultCheckpointLimit, maxCheckpointLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	history, err := h.checkpoints.History(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("list checkpoints failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list checkpoints")
		return
	}
	if history == nil {
		history = []crawler.Checkpoint{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"checkpoints": history})
}

// triggerRun handles POST /v1/runs. It blocks until the run finishes and
// answers 409 when another run holds the lock.
func (h *progressHandler) triggerRun(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "crawler unavailable")
		return
	}
	ctx := r.Context()
	if h.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.runTimeout)
		defer cancel()
	}
	result := h.runner.Run(ctx)
	status := http.StatusOK
	switch result.Status {
	case crawler.RunSkipped:
		status = http.StatusConflict
	case crawler.RunFailed:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]any{"run": result})
}
