package model

import "time"

// ContestSubmission is the scoring-relevant record of a judged submission
// inside a contest. The judging backend that produces these is external.
type ContestSubmission struct {
	ID               string    `json:"id"`
	ParticipationID  string    `json:"participation_id"`
	ContestProblemID string    `json:"contest_problem_id"`
	Points           float64   `json:"points"`
	Bonus            int       `json:"bonus"`
	IsPretest        bool      `json:"is_pretest"`
	UpdatedFrozen    bool      `json:"updated_frozen"`
	SubmittedAt      time.Time `json:"submitted_at"`
}
