package domain

import "time"

// PermissionGrant is an explicit, optionally expiring grant of capabilities
// on one resource instance. Exactly one of UserID, TeamID, RoleID is the
// scope; a RoleID grant implies TeamID unless the role is team-agnostic.
type PermissionGrant struct {
	ID           string
	ResourceType string
	ResourceID   string
	UserID       string
	TeamID       string
	RoleID       string
	CanView      bool
	CanExecute   bool
	CanCopy      bool
	CanEdit      bool
	CanDelete    bool
	CanShare     bool
	ExpiresAt    *time.Time
	CreatedBy    string
	CreatedAt    time.Time
}

// Allows reports whether the grant carries the capability flag.
func (g PermissionGrant) Allows(c Capability) bool {
	switch c {
	case CapabilityView:
		return g.CanView
	case CapabilityExecute:
		return g.CanExecute
	case CapabilityCopy:
		return g.CanCopy
	case CapabilityEdit:
		return g.CanEdit
	case CapabilityDelete:
		return g.CanDelete
	case CapabilityShare:
		return g.CanShare
	}
	return false
}

// Active reports whether the grant counts at the given instant.
func (g PermissionGrant) Active(now time.Time) bool {
	return g.ExpiresAt == nil || g.ExpiresAt.After(now)
}
