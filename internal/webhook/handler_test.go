package webhook_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/bulkwave/campaign-engine/internal/model"
	"github.com/bulkwave/campaign-engine/internal/webhook"
)

type memInboundRepo struct {
	mu      sync.Mutex
	created []model.InboundMessage
}

func (m *memInboundRepo) Create(ctx context.Context, msg *model.InboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, *msg)
	return nil
}

func newHandler(logs *memLogRepo, counters *memCounters, inbound *memInboundRepo) *webhook.Handler {
	return &webhook.Handler{
		Reconciler: newReconciler(logs, counters),
		Inbound:    inbound,
	}
}

func post(t *testing.T, h *webhook.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/provider", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	h.HandleProviderWebhook(rec, req)
	return rec
}

func TestWebhookAppliesDeliveryReport(t *testing.T) {
	logs := newMemLogRepo(sentRow("m1", 10))
	counters := newMemCounters()
	h := newHandler(logs, counters, &memInboundRepo{})

	rec := post(t, h, `{"message_id": "m1", "status": "delivered"}`)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if got := logs.status("m1"); got != model.MessageDelivered {
		t.Errorf("message status = %s", got)
	}
}

func TestWebhookInboundReplyJournaled(t *testing.T) {
	logs := newMemLogRepo(sentRow("m1", 10))
	counters := newMemCounters()
	inbound := &memInboundRepo{}
	h := newHandler(logs, counters, inbound)

	rec := post(t, h, `{"sender": "+254700000001", "message": "STOP", "recipient": "+254711111111"}`)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if len(inbound.created) != 1 {
		t.Fatalf("inbound journal entries = %d, want 1", len(inbound.created))
	}
	msg := inbound.created[0]
	if msg.Sender != "+254700000001" || msg.Body != "STOP" {
		t.Errorf("journal entry = %+v", msg)
	}
	// The inbound branch never touches message logs or counters.
	if got := logs.status("m1"); got != model.MessageSent {
		t.Errorf("message status = %s", got)
	}
	if got := counters.total(10); !got.IsZero() {
		t.Errorf("deltas = %+v", got)
	}
}

func TestWebhookInboundTextField(t *testing.T) {
	inbound := &memInboundRepo{}
	h := newHandler(newMemLogRepo(), newMemCounters(), inbound)

	post(t, h, `{"sender": "+254700000002", "text": "what is this?"}`)
	if len(inbound.created) != 1 || inbound.created[0].Body != "what is this?" {
		t.Fatalf("journal = %+v", inbound.created)
	}
}

func TestWebhookAlwaysAcks(t *testing.T) {
	h := newHandler(newMemLogRepo(), newMemCounters(), &memInboundRepo{})

	for _, body := range []string{
		`not json at all`,
		`{}`,
		`{"something": "else"}`,
		`{"message_id": "ghost", "status": "delivered"}`, // untracked id
	} {
		rec := post(t, h, body)
		if rec.Code != http.StatusOK {
			t.Errorf("body %q: status = %d, want 200", body, rec.Code)
		}
	}
}
