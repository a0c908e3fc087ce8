package model

import (
	"encoding/json"
	"time"

	"colosseum/internal/common"
)

type Contest struct {
	ID          string `json:"id"`
	Key         string `json:"key"` // unique slug, ^[a-z0-9]+$
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Summary     string `json:"summary,omitempty"`

	StartTime time.Time      `json:"start_time"`
	EndTime   time.Time      `json:"end_time"`
	TimeLimit *time.Duration `json:"time_limit,omitempty"` // per-attempt duration cap

	IsVisible                 bool `json:"is_visible"`
	IsPrivate                 bool `json:"is_private"`
	IsOrganizationPrivate     bool `json:"is_organization_private"`
	IsPrivateViewable         bool `json:"is_private_viewable"` // org-restricted joining, public viewing
	HideScoreboard            bool `json:"hide_scoreboard"`
	PermanentlyHideScoreboard bool `json:"permanently_hide_scoreboard"`
	RunPretestsOnly           bool `json:"run_pretests_only"`
	FreezeSubmissions         bool `json:"freeze_submissions"`

	AccessCode string `json:"-"`

	FormatName    string          `json:"format_name"`
	FormatConfig  json.RawMessage `json:"format_config,omitempty"`
	LabelStrategy string          `json:"label_strategy,omitempty"` // empty = format default

	UserCount int `json:"user_count"` // live participants

	OrganizerIDs         []string `json:"organizer_ids,omitempty"`
	OrganizationIDs      []string `json:"organization_ids,omitempty"`
	PrivateContestantIDs []string `json:"private_contestant_ids,omitempty"`
	BannedUserIDs        []string `json:"banned_user_ids,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidateWindow enforces start_time < end_time.
func (c *Contest) ValidateWindow() error {
	if !c.StartTime.Before(c.EndTime) {
		return common.Errorf("contest cannot end before it starts: %w", common.ErrValidation)
	}
	return nil
}

func (c *Contest) ContestWindowLength() time.Duration {
	return c.EndTime.Sub(c.StartTime)
}

func (c *Contest) CanJoin(now time.Time) bool {
	return !c.StartTime.After(now)
}

func (c *Contest) Ended(now time.Time) bool {
	return c.EndTime.Before(now)
}

func (c *Contest) TimeBeforeStart(now time.Time) (time.Duration, bool) {
	if !c.StartTime.Before(now) {
		return c.StartTime.Sub(now), true
	}
	return 0, false
}

func (c *Contest) TimeBeforeEnd(now time.Time) (time.Duration, bool) {
	if !c.EndTime.Before(now) {
		return c.EndTime.Sub(now), true
	}
	return 0, false
}

func (c *Contest) IsOrganizer(u *User) bool {
	if u == nil {
		return false
	}
	for _, id := range c.OrganizerIDs {
		if id == u.ID {
			return true
		}
	}
	return false
}

func (c *Contest) isPrivateContestant(u *User) bool {
	if u == nil {
		return false
	}
	for _, id := range c.PrivateContestantIDs {
		if id == u.ID {
			return true
		}
	}
	return false
}

func (c *Contest) IsBanned(u *User) bool {
	if u == nil {
		return false
	}
	for _, id := range c.BannedUserIDs {
		if id == u.ID {
			return true
		}
	}
	return false
}

func (c *Contest) IsEditableBy(u *User) bool {
	if u == nil {
		return false
	}
	if u.CanEditAllContests {
		return true
	}
	return u.CanEditOwnContests && c.IsOrganizer(u)
}

// AccessCheck decides whether the user may view the contest. It returns nil,
// common.ErrInaccessible (not visible at all) or common.ErrPrivateContest
// (visible but the membership requirement is unmet). Anonymous users satisfy
// neither membership condition.
func (c *Contest) AccessCheck(u *User) error {
	if c.IsEditableBy(u) {
		return nil
	}

	if !c.IsVisible {
		return common.ErrInaccessible
	}

	if !c.IsPrivate && !c.IsOrganizationPrivate {
		return nil
	}

	inOrg := u.InAnyOrganization(c.OrganizationIDs)
	inUsers := c.isPrivateContestant(u)

	if !c.IsPrivate && c.IsOrganizationPrivate {
		if inOrg {
			return nil
		}
		return common.ErrPrivateContest
	}

	if c.IsPrivate && !c.IsOrganizationPrivate {
		if inUsers {
			return nil
		}
		return common.ErrPrivateContest
	}

	if inOrg && inUsers {
		return nil
	}
	return common.ErrPrivateContest
}

func (c *Contest) IsAccessibleBy(u *User) bool {
	return c.AccessCheck(u) == nil
}

func (c *Contest) IsJoinableBy(u *User) bool {
	if u == nil || !c.IsAccessibleBy(u) {
		return false
	}

	if u.CanEditOwnContests && c.IsOrganizer(u) {
		return true
	}

	if !c.IsPrivate && !c.IsOrganizationPrivate && !c.IsPrivateViewable {
		return true
	}

	if (c.IsPrivateViewable || c.IsOrganizationPrivate) && u.InAnyOrganization(c.OrganizationIDs) {
		return true
	}
	if c.IsPrivate && c.isPrivateContestant(u) {
		return true
	}
	return false
}

// ShowScoreboard reports whether scores are published at all right now.
// A hidden scoreboard reappears once the contest ends, unless it is
// permanently hidden.
func (c *Contest) ShowScoreboard(now time.Time) bool {
	if !c.CanJoin(now) {
		return false
	}
	if c.HideScoreboard && !c.Ended(now) {
		return false
	}
	if c.HideScoreboard && c.PermanentlyHideScoreboard {
		return false
	}
	return true
}

// CanSeeFullScoreboard grants the complete board to editors, and to anyone
// with access while the scoreboard is published.
func (c *Contest) CanSeeFullScoreboard(u *User, now time.Time) bool {
	if c.IsEditableBy(u) {
		return true
	}
	if !c.IsAccessibleBy(u) {
		return false
	}
	return c.ShowScoreboard(now)
}

// CanSeeScoreboard additionally lets a current participant see the (possibly
// restricted) board while it is hidden. current is the user's active
// participation, if any.
func (c *Contest) CanSeeScoreboard(u *User, current *ContestParticipation, now time.Time) bool {
	if c.CanSeeFullScoreboard(u, now) {
		return true
	}
	if !c.IsAccessibleBy(u) {
		return false
	}
	if !c.CanJoin(now) {
		return false
	}
	if c.HideScoreboard && !c.IsInContest(current) && c.EndTime.After(now) {
		return false
	}
	return true
}

func (c *Contest) IsInContest(current *ContestParticipation) bool {
	return current != nil && current.ContestID == c.ID
}
