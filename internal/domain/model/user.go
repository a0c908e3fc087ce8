package model

import (
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	HashedPassword string    `json:"-"` // Not exposed
	Role           string    `json:"role"`
	DisplayRank    string    `json:"display_rank"`
	IsUnlisted     bool      `json:"is_unlisted"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	// Permission bits. EditAllContests grants unconditional contest edit;
	// EditOwnContests only applies to contests the user organizes.
	CanEditAllContests bool `json:"can_edit_all_contests"`
	CanEditOwnContests bool `json:"can_edit_own_contests"`

	OrganizationIDs []string `json:"organization_ids,omitempty"`

	// CurrentParticipationID tracks the user's active contest attempt. Nil
	// when the user is not in a contest.
	CurrentParticipationID *string `json:"current_participation_id,omitempty"`
}

// InAnyOrganization reports whether the user belongs to at least one of the
// given organizations.
func (u *User) InAnyOrganization(orgIDs []string) bool {
	if u == nil {
		return false
	}
	for _, mine := range u.OrganizationIDs {
		for _, id := range orgIDs {
			if mine == id {
				return true
			}
		}
	}
	return false
}

type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	ShortName string    `json:"short_name"`
	About     string    `json:"about,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
