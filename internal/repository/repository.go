package repository

import (
	"context"
	"time"

	"github.com/splax/gatehouse/internal/descriptor"
	"github.com/splax/gatehouse/internal/domain"
	"github.com/splax/gatehouse/internal/predicate"
)

// ResourceStore reads resource rows through descriptors. The engine performs
// no writes through this interface and opens no transactions of its own;
// every call runs in whatever session the implementation already holds.
type ResourceStore interface {
	// GetResourceMeta fetches one row's access metadata, including
	// soft-deleted rows. Missing rows yield ErrNotFound.
	GetResourceMeta(ctx context.Context, res descriptor.Resource, id string) (*domain.ResourceMeta, error)
	// ResourceMatches reports whether the identified row satisfies the
	// predicate.
	ResourceMatches(ctx context.Context, res descriptor.Resource, id string, pred predicate.Node) (bool, error)
}

// RoleStore reads the role table for hierarchy resolution.
type RoleStore interface {
	ListRoles(ctx context.Context, limit int) ([]domain.Role, error)
	// CountRoles is the cheap existence probe issued even on cache hits.
	CountRoles(ctx context.Context) (int, error)
}

// TeamStore reads memberships, invitations and the team forest.
type TeamStore interface {
	ListActiveMemberships(ctx context.Context, userID string, now time.Time) ([]domain.TeamMembership, error)
	ListInvitedTeamIDs(ctx context.Context, userID string, now time.Time) ([]string, error)
	ListInviteeTeamIDs(ctx context.Context, userID string, now time.Time) ([]string, error)
	// TeamParents maps each given team id to its parent id; roots are
	// omitted from the result.
	TeamParents(ctx context.Context, teamIDs []string) (map[string]string, error)
}

// GrantStore reads and manages explicit permission grants.
type GrantStore interface {
	// UserGrantAllows reports whether a live grant scoped directly to the
	// user carries the capability on the resource.
	UserGrantAllows(ctx context.Context, resourceType, resourceID, userID string, c domain.Capability, now time.Time) (bool, error)
	GetGrant(ctx context.Context, id string) (*domain.PermissionGrant, error)
	CreateGrant(ctx context.Context, grant *domain.PermissionGrant) error
	UpdateGrant(ctx context.Context, grant *domain.PermissionGrant) error
	DeleteGrant(ctx context.Context, id string) error
}

// Store is the full surface the engine and grant service consume.
type Store interface {
	ResourceStore
	RoleStore
	TeamStore
	GrantStore
}
