package webhook_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bulkwave/campaign-engine/internal/model"
	"github.com/bulkwave/campaign-engine/internal/repository"
	"github.com/bulkwave/campaign-engine/internal/webhook"
)

// memLogRepo mirrors the SQL guards of the real repository: advances
// are forward-only and report whether a row actually moved.
type memLogRepo struct {
	mu   sync.Mutex
	rows map[string]*model.MessageLog
}

func newMemLogRepo(rows ...*model.MessageLog) *memLogRepo {
	m := &memLogRepo{rows: map[string]*model.MessageLog{}}
	for _, r := range rows {
		m.rows[r.ProviderMessageID] = r
	}
	return m
}

func (m *memLogRepo) GetByProviderMessageID(ctx context.Context, id string) (*model.MessageLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (m *memLogRepo) AdvanceDelivered(ctx context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.Status != model.MessageSent {
		return false, nil
	}
	row.Status = model.MessageDelivered
	row.DeliveryTime = &at
	return true, nil
}

func (m *memLogRepo) AdvanceRead(ctx context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || (row.Status != model.MessageSent && row.Status != model.MessageDelivered) {
		return false, nil
	}
	row.Status = model.MessageRead
	row.ReadTime = &at
	if row.DeliveryTime == nil {
		row.DeliveryTime = &at
	}
	return true, nil
}

func (m *memLogRepo) MarkFailed(ctx context.Context, id, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || (row.Status != model.MessageSent && row.Status != model.MessageDelivered) {
		return false, nil
	}
	row.Status = model.MessageFailed
	row.FailureReason = reason
	return true, nil
}

func (m *memLogRepo) SetStatusRaw(ctx context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		row.Status = status
	}
	return nil
}

func (m *memLogRepo) status(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		return row.Status
	}
	return ""
}

type memCounters struct {
	mu      sync.Mutex
	applied map[int64]repository.CounterDeltas
}

func newMemCounters() *memCounters {
	return &memCounters{applied: map[int64]repository.CounterDeltas{}}
}

func (m *memCounters) ApplyCounterDeltas(ctx context.Context, campaignID int64, d repository.CounterDeltas) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.applied[campaignID]
	cur.Sent += d.Sent
	cur.Failed += d.Failed
	cur.Delivered += d.Delivered
	cur.Read += d.Read
	m.applied[campaignID] = cur
	return nil
}

func (m *memCounters) total(campaignID int64) repository.CounterDeltas {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applied[campaignID]
}

func sentRow(id string, campaignID int64) *model.MessageLog {
	return &model.MessageLog{
		CampaignID:        campaignID,
		ProviderMessageID: id,
		Recipient:         "+254700000001",
		Status:            model.MessageSent,
	}
}

func newReconciler(logs *memLogRepo, counters *memCounters) *webhook.Reconciler {
	return &webhook.Reconciler{Logs: logs, Campaigns: counters}
}

func apply(t *testing.T, r *webhook.Reconciler, id, status string) {
	t.Helper()
	if err := r.ApplyReport(context.Background(), webhook.DeliveryReport{MessageID: id, Status: status}); err != nil {
		t.Fatalf("ApplyReport(%s): %v", status, err)
	}
}

func TestDeliveredAdvancesOnce(t *testing.T) {
	logs := newMemLogRepo(sentRow("m1", 10))
	counters := newMemCounters()
	r := newReconciler(logs, counters)

	apply(t, r, "m1", "delivered")
	apply(t, r, "m1", "delivered") // duplicate DLR replay

	if got := logs.status("m1"); got != model.MessageDelivered {
		t.Errorf("status = %s", got)
	}
	if got := counters.total(10); got.Delivered != 1 {
		t.Errorf("delivered_count incremented %d times, want 1", got.Delivered)
	}
}

func TestJumpStraightToRead(t *testing.T) {
	logs := newMemLogRepo(sentRow("m1", 10))
	counters := newMemCounters()
	r := newReconciler(logs, counters)

	apply(t, r, "m1", "read")

	if got := logs.status("m1"); got != model.MessageRead {
		t.Errorf("status = %s", got)
	}
	got := counters.total(10)
	if got.Delivered != 1 || got.Read != 1 {
		t.Errorf("deltas = %+v, want exactly one delivered and one read", got)
	}
	row, _ := logs.GetByProviderMessageID(context.Background(), "m1")
	if row.DeliveryTime == nil {
		t.Error("delivery_time must be backfilled on a jump to read")
	}
	if row.ReadTime == nil {
		t.Error("read_time must be set")
	}
}

func TestReadAfterDeliveredCountsReadOnly(t *testing.T) {
	logs := newMemLogRepo(sentRow("m1", 10))
	counters := newMemCounters()
	r := newReconciler(logs, counters)

	apply(t, r, "m1", "delivered")
	apply(t, r, "m1", "read")
	apply(t, r, "m1", "read") // replay

	got := counters.total(10)
	if got.Delivered != 1 || got.Read != 1 {
		t.Errorf("deltas = %+v", got)
	}
}

func TestNoBackwardMovement(t *testing.T) {
	logs := newMemLogRepo(sentRow("m1", 10))
	counters := newMemCounters()
	r := newReconciler(logs, counters)

	apply(t, r, "m1", "read")
	apply(t, r, "m1", "delivered") // stale, late event
	apply(t, r, "m1", "sent")      // even staler

	if got := logs.status("m1"); got != model.MessageRead {
		t.Errorf("status moved backward to %s", got)
	}
	got := counters.total(10)
	if got.Delivered != 1 || got.Read != 1 {
		t.Errorf("deltas = %+v", got)
	}
}

func TestUnknownMessageIDDropped(t *testing.T) {
	logs := newMemLogRepo()
	counters := newMemCounters()
	r := newReconciler(logs, counters)

	if err := r.ApplyReport(context.Background(), webhook.DeliveryReport{MessageID: "ghost", Status: "delivered"}); err != nil {
		t.Fatalf("ApplyReport: %v", err)
	}
	if len(logs.rows) != 0 {
		t.Error("no row may be fabricated for an untracked message id")
	}
	if got := counters.total(10); got.Delivered != 0 {
		t.Errorf("deltas = %+v", got)
	}
}

func TestFailureTerminalAndCountedOnce(t *testing.T) {
	logs := newMemLogRepo(sentRow("m1", 10))
	counters := newMemCounters()
	r := newReconciler(logs, counters)

	if err := r.ApplyReport(context.Background(), webhook.DeliveryReport{
		MessageID: "m1", Status: "failed", Error: "number unreachable",
	}); err != nil {
		t.Fatalf("ApplyReport: %v", err)
	}
	apply(t, r, "m1", "failed")    // replay
	apply(t, r, "m1", "delivered") // failed is terminal

	if got := logs.status("m1"); got != model.MessageFailed {
		t.Errorf("status = %s", got)
	}
	row, _ := logs.GetByProviderMessageID(context.Background(), "m1")
	if row.FailureReason != "number unreachable" {
		t.Errorf("failure_reason = %q", row.FailureReason)
	}
	if got := counters.total(10); got.Failed != 1 || got.Delivered != 0 {
		t.Errorf("deltas = %+v", got)
	}
}

func TestUnknownStatusStoredVerbatim(t *testing.T) {
	logs := newMemLogRepo(sentRow("m1", 10))
	counters := newMemCounters()
	r := newReconciler(logs, counters)

	apply(t, r, "m1", "throttled_by_carrier")

	if got := logs.status("m1"); got != "throttled_by_carrier" {
		t.Errorf("status = %s, want stored verbatim", got)
	}
	if got := counters.total(10); !got.IsZero() {
		t.Errorf("unknown statuses must not move counters, got %+v", got)
	}
}
