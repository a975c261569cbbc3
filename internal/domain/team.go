package domain

import "time"

// Team is a node in the team forest.
type Team struct {
	ID        string
	Name      string
	ParentID  string // empty for root teams
	CreatedBy string
	CreatedAt time.Time
}

// TeamMembership links a user to a team through a role.
type TeamMembership struct {
	UserID    string
	TeamID    string
	RoleID    string
	Enabled   bool
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// Active reports whether the membership counts at the given instant.
// Expired or disabled memberships are treated as absent, never as errors.
func (m TeamMembership) Active(now time.Time) bool {
	if !m.Enabled {
		return false
	}
	return m.ExpiresAt == nil || m.ExpiresAt.After(now)
}
