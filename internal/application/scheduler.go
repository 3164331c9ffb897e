package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ericfisherdev/barsync/internal/domain/model"
	"github.com/ericfisherdev/barsync/internal/domain/port/driven"
)

// ErrSchedulerStopped is returned by Trigger once Serve has returned.
var ErrSchedulerStopped = errors.New("scheduler is not running")

// triggerRequest represents a manual "run the schedule now" request.
type triggerRequest struct {
	done chan error
}

// SchedulerConfig controls the daily sync.
type SchedulerConfig struct {
	Environment string
	Interval    time.Duration
	DataTypes   []model.DataType // Empty means every data type.
	ClaimLimit  int
	Location    *time.Location // Business-day timezone. Defaults to UTC.
}

// Scheduler syncs yesterday for every tenant with active credentials on a
// fixed interval, and first drains batches a previous process left pending.
// It implements suture.Service.
type Scheduler struct {
	runner    SyncRunner
	creds     driven.CredentialStore
	queue     driven.QueueStore
	processor *Processor
	cfg       SchedulerConfig
	triggerCh chan triggerRequest
	now       func() time.Time

	mu      sync.Mutex
	stopped chan struct{} // Closed when the current Serve returns.
}

// NewScheduler creates a Scheduler with all required dependencies.
func NewScheduler(
	runner SyncRunner,
	creds driven.CredentialStore,
	queue driven.QueueStore,
	processor *Processor,
	cfg SchedulerConfig,
) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.ClaimLimit <= 0 {
		cfg.ClaimLimit = defaultClaimLimit
	}
	if len(cfg.DataTypes) == 0 {
		cfg.DataTypes = slices.Clone(model.AllDataTypes)
	}

	return &Scheduler{
		runner:    runner,
		creds:     creds,
		queue:     queue,
		processor: processor,
		cfg:       cfg,
		triggerCh: make(chan triggerRequest),
		now:       time.Now,
		stopped:   make(chan struct{}),
	}
}

// Serve runs the schedule loop until ctx is canceled. Pending batches are
// resumed immediately; the first scheduled sync runs after one interval.
func (s *Scheduler) Serve(ctx context.Context) error {
	stopped := s.startServing()
	defer close(stopped)

	if err := s.ResumePending(ctx); err != nil {
		slog.Error("resume pending batches failed", "error", err)
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.runAll(ctx); err != nil {
				slog.Error("scheduled sync failed", "error", err)
			}
		case req := <-s.triggerCh:
			req.done <- s.runAll(ctx)
		}
	}
}

// String names the service in supervisor logs.
func (s *Scheduler) String() string { return "scheduler" }

// startServing returns the channel the current Serve closes on return. A
// channel closed by an earlier Serve is replaced.
func (s *Scheduler) startServing() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.stopped:
		s.stopped = make(chan struct{})
	default:
	}
	return s.stopped
}

// Trigger runs the scheduled sync now, bypassing the interval. It blocks until
// the sync completes, ctx is canceled or Serve returns. ErrSchedulerStopped
// means Serve had already returned or returned before finishing the sync.
func (s *Scheduler) Trigger(ctx context.Context) error {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()

	done := make(chan error, 1)

	select {
	case s.triggerCh <- triggerRequest{done: done}:
	case <-stopped:
		return ErrSchedulerStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-stopped:
		// Serve answers before returning, so a result may already be waiting.
		select {
		case err := <-done:
			return err
		default:
			return ErrSchedulerStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ResumePending drains every batch that still holds pending items.
func (s *Scheduler) ResumePending(ctx context.Context) error {
	batches, err := s.queue.ListPendingBatches(ctx)
	if err != nil {
		return fmt.Errorf("list pending batches: %w", err)
	}

	for _, batchID := range batches {
		result, err := s.processor.Drain(ctx, batchID, s.cfg.ClaimLimit)
		if err != nil {
			slog.Error("resume batch failed", "batch_id", batchID, "error", err)
			continue
		}
		slog.Info("resumed pending batch",
			"batch_id", batchID,
			"processed", result.Processed,
			"inserted", result.Inserted,
			"skipped", result.Skipped,
			"errors", result.Errors,
		)
	}
	return nil
}

// runAll syncs yesterday's business day for every tenant, one tenant at a time.
func (s *Scheduler) runAll(ctx context.Context) error {
	start := time.Now()

	creds, err := s.creds.ListActive(ctx, s.cfg.Environment)
	if err != nil {
		return fmt.Errorf("list active credentials: %w", err)
	}

	yesterday := s.yesterday()
	plans := planTenants(creds, s.cfg.DataTypes)

	var failed int
	for _, plan := range plans {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		summary, err := s.runner.RunSync(ctx, model.RunRequest{
			TenantID:  plan.tenantID,
			DataTypes: plan.dataTypes,
			DateStart: yesterday,
			DateEnd:   yesterday,
			Trigger:   "schedule",
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			slog.Error("tenant sync failed", "tenant_id", plan.tenantID, "error", err)
			failed++
			continue
		}
		if summary.DaysFailed > 0 {
			failed++
		}
	}

	slog.Info("scheduled sync complete",
		"date", yesterday.Format(model.DateLayout),
		"tenants", len(plans),
		"tenants_with_failures", failed,
		"duration", time.Since(start).Round(time.Millisecond),
	)

	return nil
}

func (s *Scheduler) yesterday() time.Time {
	y, m, d := s.now().In(s.cfg.Location).AddDate(0, 0, -1).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type tenantPlan struct {
	tenantID  int64
	dataTypes []model.DataType
}

// planTenants groups credentials by tenant and keeps only the data types whose
// vendor the tenant has a credential for. Tenants are returned in id order.
func planTenants(creds []model.ExternalCredential, dataTypes []model.DataType) []tenantPlan {
	vendorsByTenant := make(map[int64]map[model.Vendor]bool)
	var tenants []int64
	for _, c := range creds {
		if _, ok := vendorsByTenant[c.TenantID]; !ok {
			vendorsByTenant[c.TenantID] = make(map[model.Vendor]bool)
			tenants = append(tenants, c.TenantID)
		}
		vendorsByTenant[c.TenantID][c.Vendor] = true
	}
	slices.Sort(tenants)

	plans := make([]tenantPlan, 0, len(tenants))
	for _, id := range tenants {
		var types []model.DataType
		for _, dt := range dataTypes {
			if vendorsByTenant[id][dt.Vendor()] {
				types = append(types, dt)
			}
		}
		if len(types) > 0 {
			plans = append(plans, tenantPlan{tenantID: id, dataTypes: types})
		}
	}
	return plans
}
