// internal/model/queue_item.go
package model

import "time"

// QueueItem states. Transitions only move forward:
// pending -> processing -> sent | failed.
const (
    ItemPending    = "pending"
    ItemProcessing = "processing"
    ItemSent       = "sent"
    ItemFailed     = "failed"
)

type QueueItem struct {
    ID                int64     `db:"id" json:"id"`
    CampaignID        int64     `db:"campaign_id" json:"campaign_id"`
    Recipient         string    `db:"recipient" json:"recipient"`
    Status            string    `db:"status" json:"status"`
    ProviderMessageID string    `db:"provider_message_id" json:"provider_message_id,omitempty"`
    ErrorMessage      string    `db:"error_message" json:"error_message,omitempty"`
    CreatedAt         time.Time `db:"created_at" json:"created_at"`
    UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}
