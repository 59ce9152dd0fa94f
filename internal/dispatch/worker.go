package dispatch

import (
    "context"
    "time"

    "github.com/google/uuid"
    "github.com/rs/zerolog"
    "golang.org/x/time/rate"

    appErrors "github.com/bulkwave/campaign-engine/internal/errors"
    "github.com/bulkwave/campaign-engine/internal/metrics"
    "github.com/bulkwave/campaign-engine/internal/model"
    "github.com/bulkwave/campaign-engine/internal/provider"
    "github.com/bulkwave/campaign-engine/internal/repository"
)

// QueueRepo defines the methods the worker needs from the queue store.
type QueueRepo interface {
    ClaimPending(ctx context.Context, limit int) ([]repository.ClaimedItem, error)
    MarkSent(ctx context.Context, id int64, providerMessageID string) error
    MarkFailed(ctx context.Context, id int64, reason string) error
}

type LogRepo interface {
    Create(ctx context.Context, log *model.MessageLog) error
}

type CounterRepo interface {
    ApplyCounterDeltas(ctx context.Context, campaignID int64, d repository.CounterDeltas) error
}

type Sender interface {
    Send(ctx context.Context, recipient, templateName string) provider.Outcome
    SendRaw(ctx context.Context, recipient, text string) provider.Outcome
}

type TokenGetter interface {
    Token(ctx context.Context) (string, error)
}

// Worker drains the queue against the provider. One RunCycle claims a
// bounded batch, fans the sends out concurrently under a batch-wide
// deadline, and flushes one aggregate counter update per campaign.
type Worker struct {
    Queue     QueueRepo
    Logs      LogRepo
    Campaigns CounterRepo
    Provider  Sender
    Tokens    TokenGetter

    // Limiter paces all provider calls in a cycle; nil means unpaced.
    Limiter *rate.Limiter

    BatchSize     int
    BatchDeadline time.Duration
    Concurrency   int

    Log zerolog.Logger
}

type CycleStats struct {
    Claimed   int
    Sent      int
    Failed    int
    Abandoned int
}

type itemOutcome int

const (
    outcomeSent itemOutcome = iota
    outcomeFailed
    // outcomeSkipped: the batch deadline fired while the item was still
    // queued for the rate limiter; it never reached the provider and
    // stays in processing.
    outcomeSkipped
)

// RunCycle executes one poll cycle. A token failure aborts the cycle
// before anything is claimed; per-recipient failures only fail that
// recipient. Items still in flight when the batch deadline fires are
// abandoned in the processing state: their network call is not
// cancelled and may still complete and write item state afterwards, but
// their counter contribution is dropped with the cycle.
func (w *Worker) RunCycle(ctx context.Context) (CycleStats, error) {
    start := time.Now()
    defer func() {
        metrics.CycleDuration.Observe(time.Since(start).Seconds())
    }()

    log := w.Log.With().Str("cycle", uuid.NewString()[:8]).Logger()
    stats := CycleStats{}

    // Cheap gate: abort the whole cycle when no token is available, so
    // a provider auth outage does not claim (and strand) a batch.
    if _, err := w.Tokens.Token(ctx); err != nil {
        log.Warn().Err(err).Msg("provider token unavailable, skipping cycle")
        return stats, err
    }

    items, err := w.Queue.ClaimPending(ctx, w.batchSize())
    if err != nil {
        return stats, err
    }
    if len(items) == 0 {
        return stats, nil
    }
    stats.Claimed = len(items)
    log.Info().Int("claimed", len(items)).Msg("dispatch cycle started")

    // bctx bounds limiter waits and the fan-out/collection loops. The
    // sends themselves run on the worker context: the deadline is a
    // soft cap on batch wall-clock time, not a per-item timeout.
    bctx, cancel := context.WithTimeout(ctx, w.batchDeadline())
    defer cancel()

    type result struct {
        campaignID int64
        outcome    itemOutcome
    }
    results := make(chan result, len(items))
    sem := make(chan struct{}, w.concurrency())

    launched := 0
    for _, it := range items {
        select {
        case <-bctx.Done():
        case sem <- struct{}{}:
            launched++
            go func(it repository.ClaimedItem) {
                defer func() { <-sem }()
                results <- result{it.CampaignID, w.processItem(ctx, bctx, it, log)}
            }(it)
        }
        if bctx.Err() != nil {
            break
        }
    }

    deltas := map[int64]repository.CounterDeltas{}
    account := func(r result) {
        d := deltas[r.campaignID]
        switch r.outcome {
        case outcomeSent:
            stats.Sent++
            d.Sent++
        case outcomeFailed:
            stats.Failed++
            d.Failed++
        case outcomeSkipped:
        }
        deltas[r.campaignID] = d
    }

    collected := 0
collect:
    for ; collected < launched; collected++ {
        select {
        case r := <-results:
            account(r)
        case <-bctx.Done():
            break collect
        }
    }
    // Items that finished before the deadline may still sit buffered on
    // the results channel when Done wins the select; count them before
    // declaring anything abandoned.
drain:
    for ; collected < launched; collected++ {
        select {
        case r := <-results:
            account(r)
        default:
            break drain
        }
    }

    stats.Abandoned = stats.Claimed - stats.Sent - stats.Failed
    if stats.Abandoned > 0 {
        metrics.ItemsDispatchedTotal.WithLabelValues("abandoned").Add(float64(stats.Abandoned))
        log.Warn().Int("abandoned", stats.Abandoned).Msg("batch deadline exceeded, items left in processing")
    }

    // One atomic increment per campaign, not one per item.
    for cid, d := range deltas {
        if err := w.Campaigns.ApplyCounterDeltas(ctx, cid, d); err != nil {
            log.Error().Err(err).Int64("campaign_id", cid).Msg("applying campaign counters failed")
        }
    }

    log.Info().
        Int("sent", stats.Sent).
        Int("failed", stats.Failed).
        Int("abandoned", stats.Abandoned).
        Dur("dur", time.Since(start)).
        Msg("dispatch cycle finished")
    return stats, nil
}

// processItem attempts one recipient: template send first, raw-text
// fallback with the campaign name second. A template outcome without a
// message id counts as ambiguous and also takes the fallback path.
func (w *Worker) processItem(ctx, bctx context.Context, it repository.ClaimedItem, log zerolog.Logger) itemOutcome {
    if w.Limiter != nil {
        if err := w.Limiter.Wait(bctx); err != nil {
            return outcomeSkipped
        }
    }

    out := w.Provider.Send(ctx, it.Recipient, it.TemplateName)
    if !out.OK || out.MessageID == "" {
        metrics.FallbackSendsTotal.Inc()
        log.Debug().
            Int64("item_id", it.ID).
            Str("reason", out.Reason).
            Msg("template send failed, attempting raw fallback")

        fb := w.Provider.SendRaw(ctx, it.Recipient, it.CampaignName)
        if !fb.OK || fb.MessageID == "" {
            reason := fb.Reason
            if reason == "" {
                reason = out.Reason
            }
            if reason == "" {
                reason = "provider returned no message id"
            }
            log.Warn().Err(appErrors.NewSendError(it.Recipient, reason)).
                Int64("item_id", it.ID).
                Msg("both send attempts failed, marking item failed")
            if err := w.Queue.MarkFailed(ctx, it.ID, reason); err != nil {
                log.Error().Err(err).Int64("item_id", it.ID).Msg("persisting failed item state failed")
            }
            metrics.ItemsDispatchedTotal.WithLabelValues("failed").Inc()
            return outcomeFailed
        }
        out = fb
    }

    // Storage failures here are logged, not propagated: the item's
    // counter contribution is still applied best-effort rather than
    // aborting the batch over one storage hiccup.
    if err := w.Queue.MarkSent(ctx, it.ID, out.MessageID); err != nil {
        log.Error().Err(err).Int64("item_id", it.ID).Msg("persisting sent item state failed")
    }
    if err := w.Logs.Create(ctx, &model.MessageLog{
        CampaignID:        it.CampaignID,
        ProviderMessageID: out.MessageID,
        Recipient:         it.Recipient,
        Status:            model.MessageSent,
    }); err != nil {
        log.Error().Err(err).Int64("item_id", it.ID).Msg("creating message log failed")
    }
    metrics.ItemsDispatchedTotal.WithLabelValues("sent").Inc()
    return outcomeSent
}

func (w *Worker) batchSize() int {
    if w.BatchSize > 0 {
        return w.BatchSize
    }
    return 1000
}

func (w *Worker) batchDeadline() time.Duration {
    if w.BatchDeadline > 0 {
        return w.BatchDeadline
    }
    return 15 * time.Second
}

func (w *Worker) concurrency() int {
    if w.Concurrency > 0 {
        return w.Concurrency
    }
    return 32
}
