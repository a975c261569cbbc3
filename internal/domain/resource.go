package domain

import "time"

// ResourceMeta is the per-row metadata the engine reads to decide access.
// Optional columns absent from the resource's schema stay empty.
type ResourceMeta struct {
	ID          string
	OwnerID     string // user_id column
	CreatedByID string // created_by_user_id column
	TeamID      string
	DeletedAt   *time.Time
	// References maps a declared permission-reference field to the id it
	// points at; only declared fields are fetched.
	References map[string]string
}

// User is a platform account; modeled here only as far as the engine needs.
type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
}
