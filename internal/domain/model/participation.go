package model

import (
	"encoding/json"
	"time"
)

const (
	// Virtual counter values. 0 is the official live attempt, -1 is an
	// organizer spectating, n>=1 are successive virtual attempts.
	ParticipationLive     = 0
	ParticipationSpectate = -1
)

// DisqualifiedScore overrides the plugin-computed score of a disqualified
// participation, sinking it to the bottom of any ordering.
const DisqualifiedScore = -9999

type ContestParticipation struct {
	ID             string          `json:"id"`
	ContestID      string          `json:"contest_id"`
	UserID         string          `json:"user_id"`
	RealStart      time.Time       `json:"real_start"`
	Score          int             `json:"score"`
	CumTime        int64           `json:"cumtime"` // seconds
	IsDisqualified bool            `json:"is_disqualified"`
	Virtual        int             `json:"virtual"`
	FormatData     json.RawMessage `json:"format_data,omitempty"`
}

func (p *ContestParticipation) Live() bool {
	return p.Virtual == ParticipationLive
}

func (p *ContestParticipation) Spectate() bool {
	return p.Virtual == ParticipationSpectate
}

// Start is the attempt's effective start: the contest start for an unlimited
// live or spectate attempt, the real start otherwise.
func (p *ContestParticipation) Start(c *Contest) time.Time {
	if c.TimeLimit == nil && (p.Live() || p.Spectate()) {
		return c.StartTime
	}
	return p.RealStart
}

// EndTimeIn is the attempt's effective end. Spectators follow the contest
// window; virtual attempts get a full window (or the duration cap) from their
// real start; live attempts are additionally clamped to the contest end.
func (p *ContestParticipation) EndTimeIn(c *Contest) time.Time {
	if p.Spectate() {
		return c.EndTime
	}
	if p.Virtual > 0 {
		if c.TimeLimit != nil {
			return p.RealStart.Add(*c.TimeLimit)
		}
		return p.RealStart.Add(c.ContestWindowLength())
	}
	if c.TimeLimit == nil {
		return c.EndTime
	}
	limited := p.RealStart.Add(*c.TimeLimit)
	if limited.Before(c.EndTime) {
		return limited
	}
	return c.EndTime
}

func (p *ContestParticipation) Ended(c *Contest, now time.Time) bool {
	return p.EndTimeIn(c).Before(now)
}

func (p *ContestParticipation) TimeRemaining(c *Contest, now time.Time) (time.Duration, bool) {
	end := p.EndTimeIn(c)
	if end.Before(now) {
		return 0, false
	}
	return end.Sub(now), true
}
