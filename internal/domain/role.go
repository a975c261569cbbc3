package domain

// Role names a seniority position. ParentID pointers form a forest used to
// derive hierarchy levels; TeamID scopes the role to one team, empty means a
// system-wide role.
type Role struct {
	ID       string
	Name     string
	ParentID string
	TeamID   string
}

// AdminRoleName is the role whose hierarchy level is the threshold for
// elevated team-scoped access.
const AdminRoleName = "admin"
