package dispatch

import (
    "context"
    "time"

    "github.com/rs/zerolog"

    "github.com/bulkwave/campaign-engine/internal/metrics"
)

type StaleRequeuer interface {
    RequeueStale(ctx context.Context, olderThan time.Time) (int64, error)
}

// Sweeper requeues items stranded in processing by an exceeded batch
// deadline (or a crashed worker) back to pending. It runs on its own
// cadence, separate from the dispatch cycle.
type Sweeper struct {
    Queue StaleRequeuer
    // Grace is how long an item may sit in processing before it is
    // considered abandoned. Zero disables the sweep.
    Grace time.Duration
    Log   zerolog.Logger
}

func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
    if s.Grace <= 0 {
        return 0, nil
    }
    n, err := s.Queue.RequeueStale(ctx, time.Now().Add(-s.Grace))
    if err != nil {
        s.Log.Error().Err(err).Msg("requeue sweep failed")
        return 0, err
    }
    if n > 0 {
        metrics.StaleItemsRequeuedTotal.Add(float64(n))
        s.Log.Info().Int64("requeued", n).Msg("requeued stale processing items")
    }
    return n, nil
}
