package repository

import (
    "context"
    "database/sql"
    "time"

    "github.com/lib/pq"

    "github.com/bulkwave/campaign-engine/internal/model"
)

// ClaimedItem is a queue item joined with the campaign fields the
// dispatch worker needs for the send: the template name for the
// template attempt and the campaign name for the raw fallback body.
type ClaimedItem struct {
    ID           int64
    CampaignID   int64
    Recipient    string
    CampaignName string
    TemplateName string
}

type QueueItemRepositoryInterface interface {
    Enqueue(campaignID int64, recipients []string) (int, error)
    ClaimPending(ctx context.Context, limit int) ([]ClaimedItem, error)
    MarkSent(ctx context.Context, id int64, providerMessageID string) error
    MarkFailed(ctx context.Context, id int64, reason string) error
    RequeueStale(ctx context.Context, olderThan time.Time) (int64, error)
    CountByStatus(campaignID int64) (map[string]int, error)
}

type QueueItemRepository struct {
    DB *sql.DB
}

// Enqueue inserts one pending item per recipient. Duplicate recipients
// within a campaign are skipped (idempotent enqueue).
func (r *QueueItemRepository) Enqueue(campaignID int64, recipients []string) (int, error) {
    query := `
        INSERT INTO queue_items (campaign_id, recipient, status, created_at, updated_at)
        SELECT $1, r, 'pending', NOW(), NOW()
        FROM unnest($2::text[]) AS r
        ON CONFLICT (campaign_id, recipient) DO NOTHING
    `
    res, err := r.DB.Exec(query, campaignID, pq.Array(recipients))
    if err != nil {
        return 0, err
    }
    n, err := res.RowsAffected()
    return int(n), err
}

// ClaimPending selects up to limit pending items whose campaign is
// running and transitions them to processing in one transaction. The
// batch is returned already joined with campaign name and template.
func (r *QueueItemRepository) ClaimPending(ctx context.Context, limit int) ([]ClaimedItem, error) {
    tx, err := r.DB.BeginTx(ctx, nil)
    if err != nil {
        return nil, err
    }
    defer func() { _ = tx.Rollback() }()

    const selectQ = `
        SELECT qi.id, qi.campaign_id, qi.recipient, c.name, c.template_name
        FROM queue_items qi
        JOIN campaigns c ON c.id = qi.campaign_id
        WHERE qi.status = 'pending' AND c.status = 'running'
        ORDER BY qi.id
        LIMIT $1
        FOR UPDATE OF qi SKIP LOCKED
    `
    rows, err := tx.QueryContext(ctx, selectQ, limit)
    if err != nil {
        return nil, err
    }

    items := []ClaimedItem{}
    ids := []int64{}
    for rows.Next() {
        var it ClaimedItem
        if err := rows.Scan(&it.ID, &it.CampaignID, &it.Recipient, &it.CampaignName, &it.TemplateName); err != nil {
            rows.Close()
            return nil, err
        }
        items = append(items, it)
        ids = append(ids, it.ID)
    }
    rows.Close()
    if err := rows.Err(); err != nil {
        return nil, err
    }

    if len(items) == 0 {
        _ = tx.Commit()
        return items, nil
    }

    const updateQ = `
        UPDATE queue_items
        SET status = 'processing', updated_at = NOW()
        WHERE id = ANY($1)
    `
    if _, err := tx.ExecContext(ctx, updateQ, pq.Array(ids)); err != nil {
        return nil, err
    }

    if err := tx.Commit(); err != nil {
        return nil, err
    }
    return items, nil
}

// MarkSent transitions processing -> sent. The status guard keeps
// terminal items immutable even if a late send attempt lands after the
// batch deadline already moved on.
func (r *QueueItemRepository) MarkSent(ctx context.Context, id int64, providerMessageID string) error {
    query := `
        UPDATE queue_items
        SET status = 'sent', provider_message_id = $2, error_message = NULL, updated_at = NOW()
        WHERE id = $1 AND status = 'processing'
    `
    _, err := r.DB.ExecContext(ctx, query, id, providerMessageID)
    return err
}

func (r *QueueItemRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
    query := `
        UPDATE queue_items
        SET status = 'failed', error_message = $2, updated_at = NOW()
        WHERE id = $1 AND status = 'processing'
    `
    _, err := r.DB.ExecContext(ctx, query, id, reason)
    return err
}

// RequeueStale moves items abandoned in processing before the cutoff
// back to pending so the next cycle can retry them.
func (r *QueueItemRepository) RequeueStale(ctx context.Context, olderThan time.Time) (int64, error) {
    query := `
        UPDATE queue_items
        SET status = 'pending', updated_at = NOW()
        WHERE status = 'processing' AND updated_at < $1
    `
    res, err := r.DB.ExecContext(ctx, query, olderThan)
    if err != nil {
        return 0, err
    }
    return res.RowsAffected()
}

func (r *QueueItemRepository) CountByStatus(campaignID int64) (map[string]int, error) {
    query := `SELECT status, COUNT(*) FROM queue_items WHERE campaign_id=$1 GROUP BY status`
    rows, err := r.DB.Query(query, campaignID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()

    stats := map[string]int{
        model.ItemPending:    0,
        model.ItemProcessing: 0,
        model.ItemSent:       0,
        model.ItemFailed:     0,
    }
    for rows.Next() {
        var status string
        var count int
        if err := rows.Scan(&status, &count); err != nil {
            return nil, err
        }
        stats[status] = count
    }
    return stats, rows.Err()
}

var _ QueueItemRepositoryInterface = (*QueueItemRepository)(nil)
