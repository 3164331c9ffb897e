package application_test

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ericfisherdev/barsync/internal/domain/model"
)

// --- In-memory port implementations shared by the application tests ---

type fakeQueue struct {
	mu       sync.Mutex
	items    []model.QueueItem
	nextID   int64
	batches  int
	cleared  map[string]bool
	clearErr error
}

func (q *fakeQueue) Enqueue(_ context.Context, batch model.RawBatch) (string, error) {
	if batch.Empty() {
		return "", nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	q.batches++
	batchID := fmt.Sprintf("batch-%d", q.batches)
	for _, rec := range batch.Records {
		q.nextID++
		q.items = append(q.items, model.QueueItem{
			ID:           q.nextID,
			BatchID:      batchID,
			TenantID:     batch.TenantID,
			DataType:     batch.DataType,
			BusinessDate: batch.BusinessDate,
			RawData:      rec,
			Status:       model.QueueStatusPending,
		})
	}
	return batchID, nil
}

func (q *fakeQueue) ClaimBatch(_ context.Context, batchID string, limit int) ([]model.QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var claimed []model.QueueItem
	for i := range q.items {
		if len(claimed) == limit {
			break
		}
		if q.items[i].BatchID == batchID && q.items[i].Status == model.QueueStatusPending {
			q.items[i].Status = model.QueueStatusProcessing
			q.items[i].Attempts++
			claimed = append(claimed, q.items[i])
		}
	}
	return claimed, nil
}

func (q *fakeQueue) MarkProcessed(_ context.Context, itemID int64, success bool, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.items {
		if q.items[i].ID == itemID {
			q.items[i].Status = model.QueueStatusDone
			if !success {
				q.items[i].Status = model.QueueStatusError
			}
			q.items[i].Error = errMsg
			q.items[i].ProcessedAt = time.Now()
			return nil
		}
	}
	return model.ErrNotFound
}

func (q *fakeQueue) BatchStatus(_ context.Context, batchID string) (model.BatchStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := model.BatchStatus{BatchID: batchID}
	for _, it := range q.items {
		if it.BatchID != batchID {
			continue
		}
		switch it.Status {
		case model.QueueStatusPending:
			s.Pending++
		case model.QueueStatusProcessing:
			s.Processing++
		case model.QueueStatusDone:
			s.Done++
		case model.QueueStatusError:
			s.Error++
		}
	}
	return s, nil
}

func (q *fakeQueue) ListPendingBatches(_ context.Context) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var ids []string
	for _, it := range q.items {
		if it.Status == model.QueueStatusPending && !slices.Contains(ids, it.BatchID) {
			ids = append(ids, it.BatchID)
		}
	}
	return ids, nil
}

func clearKey(batchID string, dt model.DataType, tenantID int64, d time.Time) string {
	return fmt.Sprintf("%s|%s|%d|%s", batchID, dt, tenantID, d.Format(model.DateLayout))
}

func (q *fakeQueue) DayCleared(_ context.Context, batchID string, dt model.DataType, tenantID int64, d time.Time) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cleared[clearKey(batchID, dt, tenantID, d)], nil
}

func (q *fakeQueue) MarkDayCleared(_ context.Context, batchID string, dt model.DataType, tenantID int64, d time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.clearErr != nil {
		return q.clearErr
	}
	if q.cleared == nil {
		q.cleared = make(map[string]bool)
	}
	q.cleared[clearKey(batchID, dt, tenantID, d)] = true
	return nil
}

func (q *fakeQueue) statuses() map[model.QueueStatus]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[model.QueueStatus]int)
	for _, it := range q.items {
		out[it.Status]++
	}
	return out
}

type fakeCanonical struct {
	mu        sync.Mutex
	hourly    []model.HourlySale
	analytic  []model.AnalyticLine
	payments  []model.Payment
	payables  map[string]model.ScheduledPayable
	clears    int
	clearErr  func(call int) error
	insertErr func(model.HourlySale) error
}

func newFakeCanonical() *fakeCanonical {
	return &fakeCanonical{payables: make(map[string]model.ScheduledPayable)}
}

func (c *fakeCanonical) ClearDay(_ context.Context, dt model.DataType, tenantID int64, date time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clears++
	if c.clearErr != nil {
		if err := c.clearErr(c.clears); err != nil {
			return err
		}
	}

	keep := func(t int64, d time.Time) bool { return t != tenantID || !d.Equal(date) }
	switch dt {
	case model.DataTypeHourlySales:
		c.hourly = slices.DeleteFunc(c.hourly, func(s model.HourlySale) bool { return !keep(s.TenantID, s.BusinessDate) })
	case model.DataTypeAnalytic:
		c.analytic = slices.DeleteFunc(c.analytic, func(l model.AnalyticLine) bool { return !keep(l.TenantID, l.BusinessDate) })
	case model.DataTypePayments:
		c.payments = slices.DeleteFunc(c.payments, func(p model.Payment) bool { return !keep(p.TenantID, p.BusinessDate) })
	default:
		return fmt.Errorf("clear day: %s is not replace-semantics", dt)
	}
	return nil
}

func (c *fakeCanonical) InsertHourlySale(_ context.Context, s model.HourlySale) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.insertErr != nil {
		if err := c.insertErr(s); err != nil {
			return err
		}
	}
	c.hourly = append(c.hourly, s)
	return nil
}

func (c *fakeCanonical) InsertAnalyticLine(_ context.Context, l model.AnalyticLine) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.analytic = append(c.analytic, l)
	return nil
}

func (c *fakeCanonical) InsertPayment(_ context.Context, p model.Payment) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payments = append(c.payments, p)
	return nil
}

func (c *fakeCanonical) UpsertPayable(_ context.Context, p model.ScheduledPayable) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payables[fmt.Sprintf("%d|%s", p.TenantID, p.ScheduleID)] = p
	return nil
}

func (c *fakeCanonical) ListHourlySales(_ context.Context, tenantID int64, date time.Time) ([]model.HourlySale, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []model.HourlySale
	for _, s := range c.hourly {
		if s.TenantID == tenantID && s.BusinessDate.Equal(date) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (c *fakeCanonical) ListAnalyticLines(_ context.Context, _ int64, _ time.Time) ([]model.AnalyticLine, error) {
	return c.analytic, nil
}

func (c *fakeCanonical) ListPayments(_ context.Context, _ int64, _ time.Time) ([]model.Payment, error) {
	return c.payments, nil
}

func (c *fakeCanonical) ListPayables(_ context.Context, tenantID int64) ([]model.ScheduledPayable, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []model.ScheduledPayable
	for _, p := range c.payables {
		if p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b model.ScheduledPayable) int {
		if a.ScheduleID < b.ScheduleID {
			return -1
		}
		if a.ScheduleID > b.ScheduleID {
			return 1
		}
		return 0
	})
	return out, nil
}

type fakeCreds struct {
	creds []model.ExternalCredential
}

func (f *fakeCreds) Upsert(_ context.Context, c model.ExternalCredential) error {
	f.creds = append(f.creds, c)
	return nil
}

func (f *fakeCreds) Get(_ context.Context, tenantID int64, vendor model.Vendor, env string) (*model.ExternalCredential, error) {
	for _, c := range f.creds {
		if c.TenantID == tenantID && c.Vendor == vendor && c.Environment == env && c.Active {
			c := c
			return &c, nil
		}
	}
	return nil, model.ErrNotFound
}

func (f *fakeCreds) ListActive(_ context.Context, env string) ([]model.ExternalCredential, error) {
	var out []model.ExternalCredential
	for _, c := range f.creds {
		if c.Environment == env && c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCreds) Deactivate(_ context.Context, _ int64, _ model.Vendor, _ string) error {
	return nil
}

type fakeRuns struct {
	saved []model.RunSummary
}

func (f *fakeRuns) Save(_ context.Context, s model.RunSummary) error {
	f.saved = append(f.saved, s)
	return nil
}

func (f *fakeRuns) ListRecent(_ context.Context, _ int64, _ int) ([]model.RunSummary, error) {
	return f.saved, nil
}

type fakeNotifier struct {
	sent []model.Notification
	err  error
}

func (f *fakeNotifier) Send(_ context.Context, n model.Notification) error {
	f.sent = append(f.sent, n)
	return f.err
}

// fakeVendor serves Collect from collectFn and counts login and collect calls.
type fakeVendor struct {
	vendor       model.Vendor
	authErr      error
	collectFn    func(dt model.DataType, day time.Time, call int) ([]json.RawMessage, error)
	authCalls    int
	collectCalls int
}

func (f *fakeVendor) Vendor() model.Vendor { return f.vendor }

func (f *fakeVendor) Authenticate(_ context.Context, _ model.ExternalCredential) (model.SessionHandle, error) {
	f.authCalls++
	if f.authErr != nil {
		return model.SessionHandle{}, f.authErr
	}
	return model.SessionHandle{Vendor: f.vendor, Cookie: fmt.Sprintf("s=%d", f.authCalls)}, nil
}

func (f *fakeVendor) Collect(_ context.Context, _ model.SessionHandle, cred model.ExternalCredential, dt model.DataType, day time.Time) (model.RawBatch, error) {
	f.collectCalls++
	batch := model.RawBatch{TenantID: cred.TenantID, Vendor: f.vendor, DataType: dt, BusinessDate: day}
	records, err := f.collectFn(dt, day, f.collectCalls)
	if err != nil {
		return batch, err
	}
	batch.Records = records
	return batch, nil
}

func raw(records ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(records))
	for i, r := range records {
		out[i] = json.RawMessage(r)
	}
	return out
}

func date(s string) time.Time {
	d, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}
