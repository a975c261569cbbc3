package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/gatehouse/internal/descriptor"
	"github.com/splax/gatehouse/internal/domain"
	"github.com/splax/gatehouse/internal/predicate"
	"github.com/splax/gatehouse/internal/repository"
)

// Repository implements the store interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ repository.Store = (*Repository)(nil)

// GetResourceMeta fetches one row's access metadata through its descriptor,
// soft-deleted rows included.
func (r *Repository) GetResourceMeta(ctx context.Context, res descriptor.Resource, id string) (*domain.ResourceMeta, error) {
	columns := []string{"id"}
	var meta domain.ResourceMeta
	var owner, creator, team sql.NullString
	var deleted sql.NullTime
	dest := []any{&meta.ID}

	if res.HasOwner {
		columns = append(columns, "user_id")
		dest = append(dest, &owner)
	}
	if res.HasCreator {
		columns = append(columns, "created_by_user_id")
		dest = append(dest, &creator)
	}
	if res.HasTeam {
		columns = append(columns, "team_id")
		dest = append(dest, &team)
	}
	if res.SoftDelete {
		columns = append(columns, "deleted_at")
		dest = append(dest, &deleted)
	}
	refs := make([]sql.NullString, len(res.PermissionReferences))
	for i, ref := range res.PermissionReferences {
		columns = append(columns, ref.FKColumn)
		dest = append(dest, &refs[i])
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", strings.Join(columns, ", "), res.Name)
	if err := r.pool.QueryRow(ctx, query, id).Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	meta.OwnerID = owner.String
	meta.CreatedByID = creator.String
	meta.TeamID = team.String
	if deleted.Valid {
		t := deleted.Time
		meta.DeletedAt = &t
	}
	if len(refs) > 0 {
		meta.References = make(map[string]string, len(refs))
		for i, ref := range res.PermissionReferences {
			if refs[i].Valid {
				meta.References[ref.FKColumn] = refs[i].String
			}
		}
	}
	return &meta, nil
}

// ResourceMatches evaluates a compiled filter against a single row.
func (r *Repository) ResourceMatches(ctx context.Context, res descriptor.Resource, id string, pred predicate.Node) (bool, error) {
	clause, args, err := Compile(pred, "r0", 1)
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s AS r0 WHERE r0.id = $1 AND (%s))", res.Name, clause)
	var match bool
	if err := r.pool.QueryRow(ctx, query, append([]any{id}, args...)...).Scan(&match); err != nil {
		return false, err
	}
	return match, nil
}

// ListRoles fetches up to limit roles for hierarchy resolution.
func (r *Repository) ListRoles(ctx context.Context, limit int) ([]domain.Role, error) {
	const query = `SELECT id, name, COALESCE(parent_id, ''), COALESCE(team_id, '')
		FROM roles ORDER BY created_at LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := make([]domain.Role, 0)
	for rows.Next() {
		var role domain.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.ParentID, &role.TeamID); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// CountRoles is the cheap probe issued on role-cache hits.
func (r *Repository) CountRoles(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(1) FROM roles`
	var count int
	if err := r.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// ListActiveMemberships returns enabled, unexpired memberships for a user.
func (r *Repository) ListActiveMemberships(ctx context.Context, userID string, now time.Time) ([]domain.TeamMembership, error) {
	const query = `SELECT user_id, team_id, role_id, enabled, expires_at, created_at
		FROM team_members
		WHERE user_id = $1 AND enabled AND (expires_at IS NULL OR expires_at > $2)`
	rows, err := r.pool.Query(ctx, query, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	memberships := make([]domain.TeamMembership, 0)
	for rows.Next() {
		var m domain.TeamMembership
		var roleID sql.NullString
		var expires sql.NullTime
		if err := rows.Scan(&m.UserID, &m.TeamID, &roleID, &m.Enabled, &expires, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.RoleID = roleID.String
		if expires.Valid {
			t := expires.Time
			m.ExpiresAt = &t
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

// ListInvitedTeamIDs returns teams with a live invitation targeting the user.
func (r *Repository) ListInvitedTeamIDs(ctx context.Context, userID string, now time.Time) ([]string, error) {
	const query = `SELECT team_id FROM invitations
		WHERE user_id = $1 AND team_id IS NOT NULL
		AND (expires_at IS NULL OR expires_at > $2)`
	return r.listIDs(ctx, query, userID, now)
}

// ListInviteeTeamIDs returns teams reachable through non-declined invitee
// records for the user.
func (r *Repository) ListInviteeTeamIDs(ctx context.Context, userID string, now time.Time) ([]string, error) {
	const query = `SELECT i.team_id FROM invitees e
		INNER JOIN invitations i ON i.id = e.invitation_id
		WHERE e.user_id = $1 AND NOT e.declined
		AND (e.expires_at IS NULL OR e.expires_at > $2)
		AND (i.expires_at IS NULL OR i.expires_at > $2)
		AND i.team_id IS NOT NULL`
	return r.listIDs(ctx, query, userID, now)
}

func (r *Repository) listIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TeamParents maps the given teams to their parents; root teams are omitted.
func (r *Repository) TeamParents(ctx context.Context, teamIDs []string) (map[string]string, error) {
	if len(teamIDs) == 0 {
		return map[string]string{}, nil
	}
	const query = `SELECT id, parent_id FROM teams WHERE id = ANY($1) AND parent_id IS NOT NULL`
	rows, err := r.pool.Query(ctx, query, teamIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	parents := make(map[string]string, len(teamIDs))
	for rows.Next() {
		var id, parent string
		if err := rows.Scan(&id, &parent); err != nil {
			return nil, err
		}
		parents[id] = parent
	}
	return parents, rows.Err()
}

// UserGrantAllows reports whether a live user-scoped grant carries the
// capability on the resource.
func (r *Repository) UserGrantAllows(ctx context.Context, resourceType, resourceID, userID string, c domain.Capability, now time.Time) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM permission_grants
		WHERE resource_type = $1 AND resource_id = $2 AND user_id = $3
		AND %s AND (expires_at IS NULL OR expires_at > $4))`, c.Column())
	var allowed bool
	if err := r.pool.QueryRow(ctx, query, resourceType, resourceID, userID, now).Scan(&allowed); err != nil {
		return false, err
	}
	return allowed, nil
}

// GetGrant fetches a grant by id.
func (r *Repository) GetGrant(ctx context.Context, id string) (*domain.PermissionGrant, error) {
	const query = `SELECT id, resource_type, resource_id,
		COALESCE(user_id, ''), COALESCE(team_id, ''), COALESCE(role_id, ''),
		can_view, can_execute, can_copy, can_edit, can_delete, can_share,
		expires_at, created_by, created_at
		FROM permission_grants WHERE id = $1`
	var g domain.PermissionGrant
	var expires sql.NullTime
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&g.ID, &g.ResourceType, &g.ResourceID,
		&g.UserID, &g.TeamID, &g.RoleID,
		&g.CanView, &g.CanExecute, &g.CanCopy, &g.CanEdit, &g.CanDelete, &g.CanShare,
		&expires, &g.CreatedBy, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if expires.Valid {
		t := expires.Time
		g.ExpiresAt = &t
	}
	return &g, nil
}

// CreateGrant inserts a grant.
func (r *Repository) CreateGrant(ctx context.Context, grant *domain.PermissionGrant) error {
	const query = `INSERT INTO permission_grants
		(id, resource_type, resource_id, user_id, team_id, role_id,
		 can_view, can_execute, can_copy, can_edit, can_delete, can_share,
		 expires_at, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err := r.pool.Exec(ctx, query,
		grant.ID, grant.ResourceType, grant.ResourceID,
		nullString(grant.UserID), nullString(grant.TeamID), nullString(grant.RoleID),
		grant.CanView, grant.CanExecute, grant.CanCopy, grant.CanEdit, grant.CanDelete, grant.CanShare,
		grant.ExpiresAt, grant.CreatedBy, grant.CreatedAt)
	return err
}

// UpdateGrant rewrites a grant's capability flags and expiry.
func (r *Repository) UpdateGrant(ctx context.Context, grant *domain.PermissionGrant) error {
	const query = `UPDATE permission_grants SET
		can_view = $2, can_execute = $3, can_copy = $4,
		can_edit = $5, can_delete = $6, can_share = $7, expires_at = $8
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query,
		grant.ID, grant.CanView, grant.CanExecute, grant.CanCopy,
		grant.CanEdit, grant.CanDelete, grant.CanShare, grant.ExpiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteGrant removes a grant.
func (r *Repository) DeleteGrant(ctx context.Context, id string) error {
	const query = `DELETE FROM permission_grants WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
