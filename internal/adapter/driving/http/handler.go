package httphandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericfisherdev/barsync/internal/application"
	"github.com/ericfisherdev/barsync/internal/domain/model"
	"github.com/ericfisherdev/barsync/internal/domain/port/driven"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 200
	maxRequestBody   = 1 << 20

	// scheduleTriggerWait bounds how long a triggered schedule is awaited for
	// logging. The sync itself runs under the scheduler's context.
	scheduleTriggerWait = time.Hour
)

// BatchProcessor runs one processor pass over a queued batch.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, batchID string, limit int) (model.BatchResult, error)
}

// ScheduleTrigger runs the scheduled sync on demand.
type ScheduleTrigger interface {
	Trigger(ctx context.Context) error
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	runner     application.SyncRunner
	processor  BatchProcessor
	queue      driven.QueueStore
	runs       driven.RunStore
	scheduler  ScheduleTrigger // nil when the scheduler is disabled.
	claimLimit int
	validate   *validator.Validate
	logger     *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. scheduler may be nil.
func NewHandler(
	runner application.SyncRunner,
	processor BatchProcessor,
	queue driven.QueueStore,
	runs driven.RunStore,
	scheduler ScheduleTrigger,
	claimLimit int,
	logger *slog.Logger,
) *Handler {
	if claimLimit <= 0 {
		claimLimit = 100
	}
	return &Handler{
		runner:     runner,
		processor:  processor,
		queue:      queue,
		runs:       runs,
		scheduler:  scheduler,
		claimLimit: claimLimit,
		validate:   newRequestValidator(),
		logger:     logger,
	}
}

// newRequestValidator reports failures under JSON field names.
func newRequestValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/sync", h.Sync)
	mux.HandleFunc("GET /api/v1/batches/pending", h.ListPendingBatches)
	mux.HandleFunc("GET /api/v1/batches/{id}", h.GetBatch)
	mux.HandleFunc("POST /api/v1/batches/{id}/process", h.ProcessBatch)
	mux.HandleFunc("GET /api/v1/runs", h.ListRuns)
	mux.HandleFunc("POST /api/v1/schedule/trigger", h.TriggerSchedule)
	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// Sync runs an orchestrated sync and returns its RunSummary. With ?async=true
// the run continues in the background and the request returns 202 at once.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	var body SyncRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	req, err := body.toRunRequest()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if r.URL.Query().Get("async") == "true" {
		// The request context ends with the response; the run must not.
		ctx := context.WithoutCancel(r.Context())
		go func() {
			if _, err := h.runner.RunSync(ctx, req); err != nil {
				h.logger.Error("async sync failed", "tenant_id", req.TenantID, "error", err)
			}
		}()
		writeJSON(w, http.StatusAccepted, statusResponse{Status: "accepted"})
		return
	}

	summary, err := h.runner.RunSync(r.Context(), req)
	if err != nil {
		if errors.Is(err, model.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("sync failed", "tenant_id", req.TenantID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "sync interrupted")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// ProcessBatch runs one processor pass over the batch. ?limit overrides the
// configured claim limit.
func (h *Handler) ProcessBatch(w http.ResponseWriter, r *http.Request) {
	batchID := r.PathValue("id")

	limit, ok := queryInt(r, "limit", h.claimLimit)
	if !ok || limit <= 0 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	result, err := h.processor.ProcessBatch(r.Context(), batchID, limit)
	if err != nil {
		h.logger.Error("failed to process batch", "batch_id", batchID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetBatch returns the per-status item counts of a batch.
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	batchID := r.PathValue("id")

	status, err := h.queue.BatchStatus(r.Context(), batchID)
	if err != nil {
		h.logger.Error("failed to get batch status", "batch_id", batchID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if status.Total() == 0 {
		writeError(w, http.StatusNotFound, "batch not found")
		return
	}

	writeJSON(w, http.StatusOK, toBatchStatusResponse(status))
}

// ListPendingBatches returns the ids of batches that still hold pending items.
func (h *Handler) ListPendingBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := h.queue.ListPendingBatches(r.Context())
	if err != nil {
		h.logger.Error("failed to list pending batches", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if batches == nil {
		batches = []string{}
	}
	writeJSON(w, http.StatusOK, batches)
}

// ListRuns returns recent run summaries, optionally for one tenant.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := queryInt(r, "tenant_id", 0)
	if !ok || tenantID < 0 {
		writeError(w, http.StatusBadRequest, "invalid tenant_id")
		return
	}
	limit, ok := queryInt(r, "limit", defaultRunsLimit)
	if !ok || limit <= 0 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	limit = min(limit, maxRunsLimit)

	runs, err := h.runs.ListRecent(r.Context(), int64(tenantID), limit)
	if err != nil {
		h.logger.Error("failed to list runs", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if runs == nil {
		runs = []model.RunSummary{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// TriggerSchedule starts the scheduled sync now and returns 202. The sync
// itself runs on the scheduler's goroutine.
func (h *Handler) TriggerSchedule(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		writeError(w, http.StatusNotFound, "scheduler is disabled")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), scheduleTriggerWait)
	go func() {
		defer cancel()
		err := h.scheduler.Trigger(ctx)
		switch {
		case err == nil:
		case errors.Is(err, context.DeadlineExceeded):
			h.logger.Warn("stopped waiting for scheduled sync", "wait", scheduleTriggerWait)
		default:
			h.logger.Error("scheduled sync trigger failed", "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, statusResponse{Status: "accepted"})
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// queryInt parses an optional integer query parameter. ok is false when the
// parameter is present but not an integer.
func queryInt(r *http.Request, key string, fallback int) (int, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
