// internal/model/campaign.go
package model

import "time"

// Campaign status values. The dispatch worker only claims queue items
// whose owning campaign is exactly StatusRunning.
const (
    StatusDraft     = "draft"
    StatusRunning   = "running"
    StatusPaused    = "paused"
    StatusCompleted = "completed"
)

type Campaign struct {
    ID             int64      `db:"id" json:"id"`
    Name           string     `db:"name" json:"name"`
    Channel        string     `db:"channel" json:"channel"`
    Status         string     `db:"status" json:"status"`
    TemplateName   string     `db:"template_name" json:"template_name"`
    SentCount      int        `db:"sent_count" json:"sent_count"`
    FailedCount    int        `db:"failed_count" json:"failed_count"`
    DeliveredCount int        `db:"delivered_count" json:"delivered_count"`
    ReadCount      int        `db:"read_count" json:"read_count"`
    CreatedAt      time.Time  `db:"created_at" json:"created_at"`
    UpdatedAt      *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}
