package repository

import (
    "context"
    "database/sql"
    "time"

    "github.com/bulkwave/campaign-engine/internal/model"
)

type InboundMessageRepositoryInterface interface {
    Create(ctx context.Context, msg *model.InboundMessage) error
}

type InboundMessageRepository struct {
    DB *sql.DB
}

func (r *InboundMessageRepository) Create(ctx context.Context, msg *model.InboundMessage) error {
    msg.ReceivedAt = time.Now()
    query := `
        INSERT INTO inbound_messages (sender, recipient, body, raw_payload, received_at)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id
    `
    return r.DB.QueryRowContext(ctx, query,
        msg.Sender, msg.Recipient, msg.Body, msg.RawPayload, msg.ReceivedAt,
    ).Scan(&msg.ID)
}

var _ InboundMessageRepositoryInterface = (*InboundMessageRepository)(nil)
