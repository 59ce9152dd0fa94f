package webhook

import (
    "context"
    "encoding/json"
    "io"
    "net/http"

    "github.com/rs/zerolog"

    "github.com/bulkwave/campaign-engine/internal/metrics"
    "github.com/bulkwave/campaign-engine/internal/model"
)

type InboundRepo interface {
    Create(ctx context.Context, msg *model.InboundMessage) error
}

// Handler is the single provider-webhook ingress. Two unrelated event
// shapes share the endpoint: delivery reports (message_id + status) and
// inbound customer replies (sender + text). The handler branches
// immediately into the two independent paths and always acknowledges
// with 200 so transient internal errors never induce a provider
// retry storm.
type Handler struct {
    Reconciler *Reconciler
    Inbound    InboundRepo
    Log        zerolog.Logger
}

type webhookPayload struct {
    MessageID string `json:"message_id"`
    Status    string `json:"status"`
    Error     string `json:"error"`

    Sender    string `json:"sender"`
    Message   string `json:"message"`
    Text      string `json:"text"`
    Recipient string `json:"recipient"`
}

func (h *Handler) HandleProviderWebhook(w http.ResponseWriter, r *http.Request) {
    defer h.ack(w)

    body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
    if err != nil {
        metrics.WebhookEventsTotal.WithLabelValues("unknown", "error").Inc()
        h.Log.Warn().Err(err).Msg("reading webhook body failed")
        return
    }

    var p webhookPayload
    if err := json.Unmarshal(body, &p); err != nil {
        metrics.WebhookEventsTotal.WithLabelValues("unknown", "dropped").Inc()
        h.Log.Warn().Err(err).Msg("malformed webhook payload, dropping")
        return
    }

    switch {
    case p.MessageID != "" && p.Status != "":
        h.handleReport(r.Context(), p)
    case p.Sender != "" && (p.Message != "" || p.Text != ""):
        h.handleInbound(r.Context(), p, body)
    default:
        metrics.WebhookEventsTotal.WithLabelValues("unknown", "dropped").Inc()
        h.Log.Warn().RawJSON("payload", body).Msg("unrecognized webhook shape, dropping")
    }
}

func (h *Handler) handleReport(ctx context.Context, p webhookPayload) {
    err := h.Reconciler.ApplyReport(ctx, DeliveryReport{
        MessageID: p.MessageID,
        Status:    p.Status,
        Error:     p.Error,
    })
    if err != nil {
        metrics.WebhookEventsTotal.WithLabelValues("report", "error").Inc()
        h.Log.Error().Err(err).Str("message_id", p.MessageID).Msg("applying delivery report failed")
        return
    }
    metrics.WebhookEventsTotal.WithLabelValues("report", "applied").Inc()
}

func (h *Handler) handleInbound(ctx context.Context, p webhookPayload, raw []byte) {
    text := p.Message
    if text == "" {
        text = p.Text
    }
    err := h.Inbound.Create(ctx, &model.InboundMessage{
        Sender:     p.Sender,
        Recipient:  p.Recipient,
        Body:       text,
        RawPayload: string(raw),
    })
    if err != nil {
        metrics.WebhookEventsTotal.WithLabelValues("inbound", "error").Inc()
        h.Log.Error().Err(err).Str("sender", p.Sender).Msg("journaling inbound message failed")
        return
    }
    metrics.WebhookEventsTotal.WithLabelValues("inbound", "applied").Inc()
}

// ack responds 200 regardless of the internal outcome.
func (h *Handler) ack(w http.ResponseWriter) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(http.StatusOK)
    _ = json.NewEncoder(w).Encode(map[string]string{"status": "received"})
}
