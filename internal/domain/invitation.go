package domain

import "time"

// Invitation offers team visibility to a user before membership exists.
// TeamID may be empty for invitations not yet bound to a team.
type Invitation struct {
	ID        string
	TeamID    string
	UserID    string
	Email     string
	CreatedBy string
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// Invitee is an acceptance-tracking record attached to an invitation.
type Invitee struct {
	ID           string
	InvitationID string
	UserID       string
	Declined     bool
	ExpiresAt    *time.Time
	CreatedAt    time.Time
}
