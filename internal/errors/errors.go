package appErrors

import "fmt"

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
    CampaignID int64
}

func (e *ErrCampaignNotFound) Error() string {
    return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id int64) error {
    return &ErrCampaignNotFound{CampaignID: id}
}

// AuthError means the provider token fetch failed. It aborts the whole
// dispatch cycle; nothing is claimed and the cycle is retried next poll.
type AuthError struct {
    Err error
}

func (e *AuthError) Error() string {
    return fmt.Sprintf("provider auth failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

func NewAuthError(err error) error {
    return &AuthError{Err: err}
}

// SendError means the provider rejected one recipient's message (or the
// request itself failed). It only fails that recipient, never the batch.
type SendError struct {
    Recipient string
    Reason    string
}

func (e *SendError) Error() string {
    return fmt.Sprintf("send to %s failed: %s", e.Recipient, e.Reason)
}

func NewSendError(recipient, reason string) error {
    return &SendError{Recipient: recipient, Reason: reason}
}
