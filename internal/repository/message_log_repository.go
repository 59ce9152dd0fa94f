package repository

import (
    "context"
    "database/sql"
    "time"

    "github.com/bulkwave/campaign-engine/internal/model"
)

type MessageLogRepositoryInterface interface {
    Create(ctx context.Context, log *model.MessageLog) error
    GetByProviderMessageID(ctx context.Context, providerMessageID string) (*model.MessageLog, error)
    AdvanceDelivered(ctx context.Context, providerMessageID string, at time.Time) (bool, error)
    AdvanceRead(ctx context.Context, providerMessageID string, at time.Time) (bool, error)
    MarkFailed(ctx context.Context, providerMessageID, reason string) (bool, error)
    SetStatusRaw(ctx context.Context, providerMessageID, status string) error
}

type MessageLogRepository struct {
    DB *sql.DB
}

// Create inserts the log row the dispatch worker writes at the moment
// of a successful send.
func (r *MessageLogRepository) Create(ctx context.Context, log *model.MessageLog) error {
    log.CreatedAt = time.Now()
    if log.Status == "" {
        log.Status = model.MessageSent
    }
    query := `
        INSERT INTO message_logs (campaign_id, provider_message_id, recipient, status, created_at)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id
    `
    return r.DB.QueryRowContext(ctx, query,
        log.CampaignID, log.ProviderMessageID, log.Recipient, log.Status, log.CreatedAt,
    ).Scan(&log.ID)
}

func (r *MessageLogRepository) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*model.MessageLog, error) {
    query := `
        SELECT id, campaign_id, provider_message_id, recipient, status,
               delivery_time, read_time, failure_reason, created_at
        FROM message_logs
        WHERE provider_message_id=$1
    `
    var log model.MessageLog
    var reason sql.NullString
    err := r.DB.QueryRowContext(ctx, query, providerMessageID).Scan(
        &log.ID, &log.CampaignID, &log.ProviderMessageID, &log.Recipient, &log.Status,
        &log.DeliveryTime, &log.ReadTime, &reason, &log.CreatedAt,
    )
    if err != nil {
        if err == sql.ErrNoRows {
            return nil, nil
        }
        return nil, err
    }
    log.FailureReason = reason.String
    return &log, nil
}

// AdvanceDelivered moves sent -> delivered. The WHERE guard makes the
// advance idempotent and forward-only: a duplicate or late delivered
// event affects zero rows and the caller skips the counter increment.
func (r *MessageLogRepository) AdvanceDelivered(ctx context.Context, providerMessageID string, at time.Time) (bool, error) {
    query := `
        UPDATE message_logs
        SET status = 'delivered', delivery_time = $2
        WHERE provider_message_id = $1 AND status = 'sent'
    `
    res, err := r.DB.ExecContext(ctx, query, providerMessageID, at)
    if err != nil {
        return false, err
    }
    n, err := res.RowsAffected()
    return n > 0, err
}

// AdvanceRead moves sent|delivered -> read and backfills delivery_time
// if no delivered event was ever observed.
func (r *MessageLogRepository) AdvanceRead(ctx context.Context, providerMessageID string, at time.Time) (bool, error) {
    query := `
        UPDATE message_logs
        SET status = 'read', read_time = $2, delivery_time = COALESCE(delivery_time, $2)
        WHERE provider_message_id = $1 AND status IN ('sent', 'delivered')
    `
    res, err := r.DB.ExecContext(ctx, query, providerMessageID, at)
    if err != nil {
        return false, err
    }
    n, err := res.RowsAffected()
    return n > 0, err
}

// MarkFailed records a terminal failure. Read is the top of the
// hierarchy and failed is itself terminal, so only sent and delivered
// rows can move here.
func (r *MessageLogRepository) MarkFailed(ctx context.Context, providerMessageID, reason string) (bool, error) {
    query := `
        UPDATE message_logs
        SET status = 'failed', failure_reason = $2
        WHERE provider_message_id = $1 AND status IN ('sent', 'delivered')
    `
    res, err := r.DB.ExecContext(ctx, query, providerMessageID, reason)
    if err != nil {
        return false, err
    }
    n, err := res.RowsAffected()
    return n > 0, err
}

// SetStatusRaw stores an unrecognized provider status verbatim without
// touching the hierarchy timestamps or campaign counters.
func (r *MessageLogRepository) SetStatusRaw(ctx context.Context, providerMessageID, status string) error {
    query := `UPDATE message_logs SET status = $2 WHERE provider_message_id = $1`
    _, err := r.DB.ExecContext(ctx, query, providerMessageID, status)
    return err
}

var _ MessageLogRepositoryInterface = (*MessageLogRepository)(nil)
