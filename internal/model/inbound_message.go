// internal/model/inbound_message.go
package model

import "time"

// InboundMessage is a customer reply received on the provider webhook.
// It is journaled independently and never touches MessageLog or
// campaign counters.
type InboundMessage struct {
    ID         int64     `db:"id" json:"id"`
    Sender     string    `db:"sender" json:"sender"`
    Recipient  string    `db:"recipient" json:"recipient,omitempty"`
    Body       string    `db:"body" json:"body"`
    RawPayload string    `db:"raw_payload" json:"raw_payload,omitempty"`
    ReceivedAt time.Time `db:"received_at" json:"received_at"`
}
