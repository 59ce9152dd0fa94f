package webhook

import (
    "context"
    "strings"
    "time"

    "github.com/rs/zerolog"

    "github.com/bulkwave/campaign-engine/internal/model"
    "github.com/bulkwave/campaign-engine/internal/repository"
)

type LogRepo interface {
    GetByProviderMessageID(ctx context.Context, providerMessageID string) (*model.MessageLog, error)
    AdvanceDelivered(ctx context.Context, providerMessageID string, at time.Time) (bool, error)
    AdvanceRead(ctx context.Context, providerMessageID string, at time.Time) (bool, error)
    MarkFailed(ctx context.Context, providerMessageID, reason string) (bool, error)
    SetStatusRaw(ctx context.Context, providerMessageID, status string) error
}

type CounterRepo interface {
    ApplyCounterDeltas(ctx context.Context, campaignID int64, d repository.CounterDeltas) error
}

// DeliveryReport is the provider's asynchronous status callback for one
// previously sent message.
type DeliveryReport struct {
    MessageID string
    Status    string
    Error     string
}

// Reconciler applies delivery reports onto the message log and the
// campaign aggregate. Events arrive out of order and at least once; the
// guarded forward-only advances in the log repository make replays and
// stale events no-ops, and counters only move when an advance actually
// happened.
type Reconciler struct {
    Logs      LogRepo
    Campaigns CounterRepo
    Log       zerolog.Logger

    // Now is overridable in tests; defaults to time.Now.
    Now func() time.Time
}

// ApplyReport processes one report. Events for unknown message ids are
// dropped, never fabricated into rows.
func (r *Reconciler) ApplyReport(ctx context.Context, rep DeliveryReport) error {
    msg, err := r.Logs.GetByProviderMessageID(ctx, rep.MessageID)
    if err != nil {
        return err
    }
    if msg == nil {
        r.Log.Info().Str("message_id", rep.MessageID).Str("status", rep.Status).
            Msg("report for untracked message id, dropping")
        return nil
    }

    now := r.now()
    var d repository.CounterDeltas

    switch strings.ToLower(rep.Status) {
    case model.MessageSent:
        // The dispatch worker already recorded sent at send time; a
        // sent report never moves the row (or counters) backward.
        return nil

    case model.MessageDelivered:
        advanced, err := r.Logs.AdvanceDelivered(ctx, rep.MessageID, now)
        if err != nil {
            return err
        }
        if advanced {
            d.Delivered = 1
        }

    case model.MessageRead:
        // A read with no observed delivered event counts as both a
        // delivery and a read, exactly once each. Trying the delivered
        // advance first makes the jump explicit: it only fires when the
        // row was still in sent.
        deliveredNow, err := r.Logs.AdvanceDelivered(ctx, rep.MessageID, now)
        if err != nil {
            return err
        }
        readNow, err := r.Logs.AdvanceRead(ctx, rep.MessageID, now)
        if err != nil {
            return err
        }
        if deliveredNow {
            d.Delivered = 1
        }
        if readNow {
            d.Read = 1
        }

    case model.MessageFailed:
        reason := rep.Error
        if reason == "" {
            reason = "provider reported failure"
        }
        failedNow, err := r.Logs.MarkFailed(ctx, rep.MessageID, reason)
        if err != nil {
            return err
        }
        if failedNow {
            d.Failed = 1
        }

    default:
        // Unknown status strings are stored verbatim and never move
        // counters.
        r.Log.Warn().Str("message_id", rep.MessageID).Str("status", rep.Status).
            Msg("unrecognized report status, storing verbatim")
        return r.Logs.SetStatusRaw(ctx, rep.MessageID, rep.Status)
    }

    if d.IsZero() {
        return nil
    }
    return r.Campaigns.ApplyCounterDeltas(ctx, msg.CampaignID, d)
}

func (r *Reconciler) now() time.Time {
    if r.Now != nil {
        return r.Now()
    }
    return time.Now()
}
