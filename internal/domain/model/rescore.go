package model

import "time"

const (
	RescoreStatusPending    = "Pending"
	RescoreStatusProcessing = "Processing"
	RescoreStatusCompleted  = "Completed"
	RescoreStatusFailed     = "Failed"
)

// RescoreJob is the durable outbox record for a full-contest rescore. It is
// written in the same transaction as the configuration edit that triggered
// it, so the worker always scores against the committed configuration.
type RescoreJob struct {
	ID        string    `json:"id"`
	ContestID string    `json:"contest_id"`
	Status    string    `json:"status"`
	Attempts  int       `json:"attempts"`
	LastError *string   `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
