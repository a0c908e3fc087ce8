package model

import "time"

type Problem struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"` // unique slug
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ContestProblem assigns a problem to a contest. Order determines scoreboard
// column ordering; (contest, problem) is unique.
type ContestProblem struct {
	ID                   string `json:"id"`
	ContestID            string `json:"contest_id"`
	ProblemID            string `json:"problem_id"`
	Points               int    `json:"points"`
	Partial              bool   `json:"partial"`
	IsPretested          bool   `json:"is_pretested"`
	Order                int    `json:"order"`
	OutputPrefixOverride *int   `json:"output_prefix_override,omitempty"`
	MaxSubmissions       int    `json:"max_submissions"` // 0 = unlimited

	ProblemCode string `json:"problem_code,omitempty"` // For display
	ProblemName string `json:"problem_name,omitempty"` // For display
	Label       string `json:"label,omitempty"`        // Rendered by the contest's label strategy
}
