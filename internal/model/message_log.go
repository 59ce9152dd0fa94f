// internal/model/message_log.go
package model

import "time"

// MessageLog states form the hierarchy sent < delivered < read, with
// failed as a terminal branch of its own. The reconciler never moves a
// message backward along the hierarchy.
const (
    MessageSent      = "sent"
    MessageDelivered = "delivered"
    MessageRead      = "read"
    MessageFailed    = "failed"
)

type MessageLog struct {
    ID                int64      `db:"id" json:"id"`
    CampaignID        int64      `db:"campaign_id" json:"campaign_id"`
    ProviderMessageID string     `db:"provider_message_id" json:"provider_message_id"`
    Recipient         string     `db:"recipient" json:"recipient"`
    Status            string     `db:"status" json:"status"`
    DeliveryTime      *time.Time `db:"delivery_time" json:"delivery_time,omitempty"`
    ReadTime          *time.Time `db:"read_time" json:"read_time,omitempty"`
    FailureReason     string     `db:"failure_reason" json:"failure_reason,omitempty"`
    CreatedAt         time.Time  `db:"created_at" json:"created_at"`
}
