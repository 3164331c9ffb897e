package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ericfisherdev/barsync/internal/domain/model"
	"github.com/ericfisherdev/barsync/internal/domain/port/driven"
	"github.com/ericfisherdev/barsync/internal/metrics"
)

// SyncRunner runs one orchestrated sync. The scheduler and the HTTP adapter
// depend on this instead of the concrete Orchestrator.
type SyncRunner interface {
	RunSync(ctx context.Context, req model.RunRequest) (model.RunSummary, error)
}

// OrchestratorConfig tunes pacing, retry and processing of a run.
type OrchestratorConfig struct {
	Environment          string
	InterDayDelay        time.Duration // Minimum spacing between vendor units of work.
	ClaimLimit           int
	RetryAttempts        int // Total collect attempts per unit, including the first.
	RetryInitialInterval time.Duration
	MaxRangeDays         int
}

const (
	defaultClaimLimit    = 100
	defaultRetryAttempts = 3
	defaultRetryInterval = 2 * time.Second
	defaultMaxRangeDays  = 400
	maxFailedDaysListed  = 10
)

// Compile-time interface satisfaction check.
var _ SyncRunner = (*Orchestrator)(nil)

// Orchestrator drives Collector, SyncQueue and Processor for every
// (day, data type) of a date range and reports the outcome.
type Orchestrator struct {
	vendors   *VendorRegistry
	creds     driven.CredentialStore
	queue     driven.QueueStore
	processor *Processor
	runs      driven.RunStore
	notifier  driven.Notifier
	cfg       OrchestratorConfig
	validate  *validator.Validate
	now       func() time.Time
}

// NewOrchestrator creates an Orchestrator. Zero config fields take defaults.
func NewOrchestrator(
	vendors *VendorRegistry,
	creds driven.CredentialStore,
	queue driven.QueueStore,
	processor *Processor,
	runs driven.RunStore,
	notifier driven.Notifier,
	cfg OrchestratorConfig,
) *Orchestrator {
	if cfg.ClaimLimit <= 0 {
		cfg.ClaimLimit = defaultClaimLimit
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = defaultRetryAttempts
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = defaultRetryInterval
	}
	if cfg.MaxRangeDays <= 0 {
		cfg.MaxRangeDays = defaultMaxRangeDays
	}

	return &Orchestrator{
		vendors:   vendors,
		creds:     creds,
		queue:     queue,
		processor: processor,
		runs:      runs,
		notifier:  notifier,
		cfg:       cfg,
		validate:  newValidator(),
		now:       time.Now,
	}
}

// RunSync processes every day of the inclusive range for every requested data
// type, in date order. A failed day is recorded and the run moves on. The
// returned error is non-nil only for an invalid request or a canceled context;
// in the latter case the summary covers the days attempted so far.
func (o *Orchestrator) RunSync(ctx context.Context, req model.RunRequest) (model.RunSummary, error) {
	if err := o.normalize(&req); err != nil {
		return model.RunSummary{}, err
	}

	summary := model.RunSummary{
		RunID:     uuid.NewString(),
		TenantID:  req.TenantID,
		DataTypes: req.DataTypes,
		DateStart: req.DateStart.Format(model.DateLayout),
		DateEnd:   req.DateEnd.Format(model.DateLayout),
		Trigger:   req.Trigger,
		Days:      []model.DayResult{},
		StartedAt: o.now(),
	}

	logger := slog.With("run_id", summary.RunID, "tenant_id", req.TenantID)
	logger.Info("sync run started",
		"date_start", summary.DateStart,
		"date_end", summary.DateEnd,
		"data_types", req.DataTypes,
		"trigger", req.Trigger,
	)

	limiter := rate.NewLimiter(rate.Every(o.cfg.InterDayDelay), 1)
	st := newRunState(req.TenantID)

	var runErr error
days:
	for day := req.DateStart; !day.After(req.DateEnd); day = day.AddDate(0, 0, 1) {
		for _, dt := range req.DataTypes {
			if err := limiter.Wait(ctx); err != nil {
				runErr = err
				break days
			}

			result := o.syncDay(ctx, st, dt, day, logger)
			summary.Record(result)
			metrics.DaysSynced.WithLabelValues(string(dt), string(result.State)).Inc()

			if ctx.Err() != nil {
				runErr = ctx.Err()
				break days
			}
		}
	}

	summary.FinishedAt = o.now()
	metrics.RunDuration.Observe(summary.FinishedAt.Sub(summary.StartedAt).Seconds())

	logger.Info("sync run finished",
		"days_attempted", summary.DaysAttempted,
		"days_succeeded", summary.DaysSucceeded,
		"days_no_data", summary.DaysNoData,
		"days_failed", summary.DaysFailed,
		"records_collected", summary.RecordsCollected,
		"records_written", summary.RecordsWritten,
		"errors", summary.Errors,
		"duration", summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond),
	)

	// Bookkeeping outlives a canceled run.
	bgCtx := context.WithoutCancel(ctx)
	if err := o.runs.Save(bgCtx, summary); err != nil {
		logger.Error("save run summary failed", "error", err)
	}
	if err := o.notifier.Send(bgCtx, buildNotification(summary)); err != nil {
		metrics.NotificationsFailed.Inc()
		logger.Error("run notification failed", "error", err)
	}

	return summary, runErr
}

// syncDay walks one (day, data type) unit through collect, enqueue and process.
func (o *Orchestrator) syncDay(ctx context.Context, st *runState, dt model.DataType, day time.Time, logger *slog.Logger) model.DayResult {
	res := model.DayResult{
		Date:     day.Format(model.DateLayout),
		DataType: dt,
		State:    model.DayStatePendingCollect,
	}
	fail := func(err error) model.DayResult {
		res.State = model.DayStateFailed
		res.Error = err.Error()
		logger.Warn("day failed", "date", res.Date, "data_type", dt, "attempts", res.Attempts, "error", err)
		return res
	}

	client, ok := o.vendors.Get(dt.Vendor())
	if !ok {
		return fail(fmt.Errorf("no client registered for vendor %s", dt.Vendor()))
	}

	cred, err := o.credential(ctx, st, dt.Vendor())
	if err != nil {
		return fail(err)
	}

	batch, attempts, err := o.collect(ctx, st, client, *cred, dt, day, logger)
	res.Attempts = attempts
	if err != nil {
		return fail(err)
	}
	res.State = model.DayStateCollected
	res.Collected = len(batch.Records)
	metrics.RecordsCollected.WithLabelValues(string(dt)).Add(float64(res.Collected))

	batchID, err := o.queue.Enqueue(ctx, batch)
	if err != nil {
		return fail(fmt.Errorf("enqueue: %w", err))
	}
	if batchID == "" {
		// An empty day replaces whatever an earlier run stored for it.
		if err := o.processor.ClearEmptyDay(ctx, dt, st.tenantID, day); err != nil {
			return fail(err)
		}
		res.State = model.DayStateNoData
		logger.Info("no data for day", "date", res.Date, "data_type", dt)
		return res
	}
	res.BatchID = batchID
	res.State = model.DayStatePendingProcess

	br, err := o.processor.Drain(ctx, batchID, o.cfg.ClaimLimit)
	res.Written = br.Inserted
	res.Skipped = br.Skipped
	res.Errors = br.Errors
	if err != nil {
		return fail(fmt.Errorf("process batch %s: %w", batchID, err))
	}
	res.State = model.DayStateProcessed

	logger.Info("day synced",
		"date", res.Date,
		"data_type", dt,
		"batch_id", batchID,
		"collected", res.Collected,
		"written", res.Written,
		"skipped", res.Skipped,
		"errors", res.Errors,
	)

	res.State = model.DayStateDone
	return res
}

// collect runs Collect under a bounded exponential backoff. An expired session
// is dropped so the next attempt logs in again.
func (o *Orchestrator) collect(
	ctx context.Context,
	st *runState,
	client driven.VendorClient,
	cred model.ExternalCredential,
	dt model.DataType,
	day time.Time,
	logger *slog.Logger,
) (model.RawBatch, int, error) {
	var batch model.RawBatch
	attempts := 0

	op := func() error {
		attempts++

		session, err := st.session(ctx, client, cred)
		if err != nil {
			return permanentIf(ctx, err)
		}

		b, err := client.Collect(ctx, session, cred, dt, day)
		if err != nil {
			if errors.Is(err, model.ErrSessionExpired) {
				st.dropSession(client.Vendor())
			}
			return permanentIf(ctx, err)
		}

		batch = b
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = o.cfg.RetryInitialInterval
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(o.cfg.RetryAttempts-1)), ctx)

	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		logger.Warn("collect attempt failed, retrying",
			"date", day.Format(model.DateLayout),
			"data_type", dt,
			"attempt", attempts,
			"wait", wait.Round(time.Millisecond),
			"error", err,
		)
	})

	return batch, attempts, err
}

// permanentIf stops retrying errors a later attempt cannot fix.
func permanentIf(ctx context.Context, err error) error {
	if ctx.Err() != nil ||
		errors.Is(err, model.ErrInvalidCredentials) ||
		errors.Is(err, model.ErrUnexpectedResponse) ||
		errors.Is(err, model.ErrVendorUnavailable) {
		return backoff.Permanent(err)
	}
	return err
}

func (o *Orchestrator) credential(ctx context.Context, st *runState, vendor model.Vendor) (*model.ExternalCredential, error) {
	if cred, ok := st.creds[vendor]; ok {
		return cred, nil
	}
	if err, ok := st.credErrs[vendor]; ok {
		return nil, err
	}

	cred, err := o.creds.Get(ctx, st.tenantID, vendor, o.cfg.Environment)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			authErr := &model.AuthError{
				Vendor: vendor,
				Err:    fmt.Errorf("%w: no active credential for tenant %d in %s", model.ErrInvalidCredentials, st.tenantID, o.cfg.Environment),
			}
			st.credErrs[vendor] = authErr
			return nil, authErr
		}
		return nil, fmt.Errorf("load %s credential: %w", vendor, err)
	}

	st.creds[vendor] = cred
	return cred, nil
}

// normalize validates req and fills defaults in place.
func (o *Orchestrator) normalize(req *model.RunRequest) error {
	if len(req.DataTypes) == 0 {
		req.DataTypes = slices.Clone(model.AllDataTypes)
	}
	if req.Trigger == "" {
		req.Trigger = "manual"
	}

	if err := o.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidRequest, err)
	}

	req.DateStart = truncateToDay(req.DateStart)
	req.DateEnd = truncateToDay(req.DateEnd)

	days := int(req.DateEnd.Sub(req.DateStart).Hours()/24) + 1
	if days > o.cfg.MaxRangeDays {
		return fmt.Errorf("%w: range of %d days exceeds the maximum of %d", model.ErrInvalidRequest, days, o.cfg.MaxRangeDays)
	}

	seen := make(map[model.DataType]bool, len(req.DataTypes))
	unique := req.DataTypes[:0:0]
	for _, dt := range req.DataTypes {
		if !seen[dt] {
			seen[dt] = true
			unique = append(unique, dt)
		}
	}
	req.DataTypes = unique

	return nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("datatype", func(fl validator.FieldLevel) bool {
		return model.DataType(fl.Field().String()).Valid()
	})
	return v
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// runState is the per-run cache of credentials and vendor sessions. It is
// never shared between runs.
type runState struct {
	tenantID int64
	creds    map[model.Vendor]*model.ExternalCredential
	credErrs map[model.Vendor]error
	sessions map[model.Vendor]model.SessionHandle
}

func newRunState(tenantID int64) *runState {
	return &runState{
		tenantID: tenantID,
		creds:    make(map[model.Vendor]*model.ExternalCredential),
		credErrs: make(map[model.Vendor]error),
		sessions: make(map[model.Vendor]model.SessionHandle),
	}
}

func (st *runState) session(ctx context.Context, client driven.VendorClient, cred model.ExternalCredential) (model.SessionHandle, error) {
	if s, ok := st.sessions[client.Vendor()]; ok {
		return s, nil
	}
	s, err := client.Authenticate(ctx, cred)
	if err != nil {
		return model.SessionHandle{}, err
	}
	st.sessions[client.Vendor()] = s
	return s, nil
}

func (st *runState) dropSession(vendor model.Vendor) {
	delete(st.sessions, vendor)
}

// buildNotification renders the fixed notification contract for a run.
func buildNotification(s model.RunSummary) model.Notification {
	status := "ok"
	switch {
	case s.DaysFailed > 0 && s.DaysSucceeded == 0:
		status = "failed"
	case s.DaysFailed > 0 || s.Errors > 0:
		status = "partial"
	}

	dataTypes := make([]string, len(s.DataTypes))
	for i, dt := range s.DataTypes {
		dataTypes[i] = string(dt)
	}

	fields := []model.NotificationField{
		{Name: "Days", Value: fmt.Sprintf("%d/%d", s.DaysSucceeded, s.DaysAttempted), Inline: true},
		{Name: "No data", Value: fmt.Sprint(s.DaysNoData), Inline: true},
		{Name: "Failed", Value: fmt.Sprint(s.DaysFailed), Inline: true},
		{Name: "Records collected", Value: fmt.Sprint(s.RecordsCollected), Inline: true},
		{Name: "Records written", Value: fmt.Sprint(s.RecordsWritten), Inline: true},
		{Name: "Errors", Value: fmt.Sprint(s.Errors), Inline: true},
		{Name: "Duration", Value: s.FinishedAt.Sub(s.StartedAt).Round(time.Second).String(), Inline: true},
	}

	if failed := s.Failed(); len(failed) > 0 {
		lines := make([]string, 0, maxFailedDaysListed+1)
		for i, d := range failed {
			if i == maxFailedDaysListed {
				lines = append(lines, fmt.Sprintf("... and %d more", len(failed)-maxFailedDaysListed))
				break
			}
			lines = append(lines, fmt.Sprintf("%s %s: %s", d.Date, d.DataType, d.Error))
		}
		fields = append(fields, model.NotificationField{Name: "Failed days", Value: strings.Join(lines, "\n")})
	}

	return model.Notification{
		Title:       fmt.Sprintf("Sync %s: tenant %d", status, s.TenantID),
		Description: fmt.Sprintf("%s to %s (%s), run %s", s.DateStart, s.DateEnd, strings.Join(dataTypes, ", "), s.RunID),
		Fields:      fields,
		BarID:       s.TenantID,
		WebhookType: "sync",
	}
}
