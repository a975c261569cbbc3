package engine

import (
	"context"
	"io"
	"time"

	"log/slog"

	"github.com/splax/gatehouse/internal/descriptor"
	"github.com/splax/gatehouse/internal/domain"
	"github.com/splax/gatehouse/internal/predicate"
	"github.com/splax/gatehouse/internal/repository"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func future() *time.Time {
	t := testNow.Add(24 * time.Hour)
	return &t
}

func past() *time.Time {
	t := testNow.Add(-24 * time.Hour)
	return &t
}

// memStore implements repository.Store against in-memory rows, evaluating
// filter predicates with the predicate interpreter so engine tests exercise
// the same trees the Postgres adapter would compile.
type memStore struct {
	rows         map[string][]predicate.Row
	memberships  []domain.TeamMembership
	invitedTeams map[string][]string
	inviteeTeams map[string][]string
	teamParents  map[string]string
	roles        []domain.Role
	grants       []domain.PermissionGrant

	listRolesCalls  int
	countRolesCalls int
}

func newMemStore() *memStore {
	return &memStore{
		rows:         make(map[string][]predicate.Row),
		invitedTeams: make(map[string][]string),
		inviteeTeams: make(map[string][]string),
		teamParents:  make(map[string]string),
	}
}

func (m *memStore) addRow(table string, row predicate.Row) {
	m.rows[table] = append(m.rows[table], row)
}

// addGrant records the grant both as typed data (point lookups) and as a
// permission_grants row (filter Exists clauses).
func (m *memStore) addGrant(g domain.PermissionGrant) {
	m.grants = append(m.grants, g)
	row := predicate.Row{
		"id":            g.ID,
		"resource_type": g.ResourceType,
		"resource_id":   g.ResourceID,
		"user_id":       g.UserID,
		"team_id":       g.TeamID,
		"role_id":       g.RoleID,
		"can_view":      g.CanView,
		"can_execute":   g.CanExecute,
		"can_copy":      g.CanCopy,
		"can_edit":      g.CanEdit,
		"can_delete":    g.CanDelete,
		"can_share":     g.CanShare,
		"expires_at":    g.ExpiresAt,
	}
	m.addRow("permission_grants", row)
}

// addMembership records the membership for team resolution and mirrors it
// into the team_members table used by the user-visibility override.
func (m *memStore) addMembership(mem domain.TeamMembership) {
	m.memberships = append(m.memberships, mem)
	m.addRow("team_members", predicate.Row{
		"user_id":    mem.UserID,
		"team_id":    mem.TeamID,
		"role_id":    mem.RoleID,
		"enabled":    mem.Enabled,
		"expires_at": mem.ExpiresAt,
	})
}

func (m *memStore) findRow(table, id string) (predicate.Row, bool) {
	for _, row := range m.rows[table] {
		if v, _ := row["id"].(string); v == id {
			return row, true
		}
	}
	return nil, false
}

func (m *memStore) GetResourceMeta(_ context.Context, res descriptor.Resource, id string) (*domain.ResourceMeta, error) {
	row, ok := m.findRow(res.Name, id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	meta := &domain.ResourceMeta{ID: id}
	if res.HasOwner {
		meta.OwnerID, _ = row["user_id"].(string)
	}
	if res.HasCreator {
		meta.CreatedByID, _ = row["created_by_user_id"].(string)
	}
	if res.HasTeam {
		meta.TeamID, _ = row["team_id"].(string)
	}
	if res.SoftDelete {
		if t, ok := row["deleted_at"].(*time.Time); ok {
			meta.DeletedAt = t
		}
	}
	if len(res.PermissionReferences) > 0 {
		meta.References = make(map[string]string)
		for _, ref := range res.PermissionReferences {
			if v, _ := row[ref.FKColumn].(string); v != "" {
				meta.References[ref.FKColumn] = v
			}
		}
	}
	return meta, nil
}

func (m *memStore) ResourceMatches(_ context.Context, res descriptor.Resource, id string, pred predicate.Node) (bool, error) {
	row, ok := m.findRow(res.Name, id)
	if !ok {
		return false, nil
	}
	return predicate.Eval(pred, row, func(table string) []predicate.Row {
		return m.rows[table]
	})
}

func (m *memStore) ListRoles(_ context.Context, limit int) ([]domain.Role, error) {
	m.listRolesCalls++
	if len(m.roles) > limit {
		return m.roles[:limit], nil
	}
	return m.roles, nil
}

func (m *memStore) CountRoles(_ context.Context) (int, error) {
	m.countRolesCalls++
	return len(m.roles), nil
}

func (m *memStore) ListActiveMemberships(_ context.Context, userID string, now time.Time) ([]domain.TeamMembership, error) {
	var out []domain.TeamMembership
	for _, mem := range m.memberships {
		if mem.UserID == userID && mem.Active(now) {
			out = append(out, mem)
		}
	}
	return out, nil
}

func (m *memStore) ListInvitedTeamIDs(_ context.Context, userID string, _ time.Time) ([]string, error) {
	return m.invitedTeams[userID], nil
}

func (m *memStore) ListInviteeTeamIDs(_ context.Context, userID string, _ time.Time) ([]string, error) {
	return m.inviteeTeams[userID], nil
}

func (m *memStore) TeamParents(_ context.Context, teamIDs []string) (map[string]string, error) {
	parents := make(map[string]string)
	for _, id := range teamIDs {
		if parent, ok := m.teamParents[id]; ok {
			parents[id] = parent
		}
	}
	return parents, nil
}

func (m *memStore) UserGrantAllows(_ context.Context, resourceType, resourceID, userID string, c domain.Capability, now time.Time) (bool, error) {
	for _, g := range m.grants {
		if g.ResourceType == resourceType && g.ResourceID == resourceID &&
			g.UserID == userID && g.Active(now) && g.Allows(c) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) GetGrant(_ context.Context, id string) (*domain.PermissionGrant, error) {
	for i := range m.grants {
		if m.grants[i].ID == id {
			g := m.grants[i]
			return &g, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) CreateGrant(_ context.Context, grant *domain.PermissionGrant) error {
	m.addGrant(*grant)
	return nil
}

func (m *memStore) UpdateGrant(_ context.Context, grant *domain.PermissionGrant) error {
	for i := range m.grants {
		if m.grants[i].ID == grant.ID {
			m.grants[i] = *grant
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memStore) DeleteGrant(_ context.Context, id string) error {
	for i := range m.grants {
		if m.grants[i].ID == id {
			m.grants = append(m.grants[:i], m.grants[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

var testSentinels = Sentinels{Root: "root-1", System: "system-1", Template: "template-1"}

func testRegistry() *descriptor.Registry {
	registry, err := descriptor.NewRegistry(
		descriptor.Resource{Name: "users", Kind: descriptor.KindUser},
		descriptor.Resource{Name: "teams", Kind: descriptor.KindTeam, HasCreator: true},
		descriptor.Resource{Name: "invitations", Kind: descriptor.KindInvitation, HasCreator: true, HasTeam: true},
		descriptor.Resource{Name: "invitees", Kind: descriptor.KindInvitee},
		descriptor.Resource{
			Name:     "documents",
			HasOwner: true, HasCreator: true, HasTeam: true,
			SoftDelete: true, Grantable: true,
		},
		descriptor.Resource{
			Name:       "attachments",
			HasCreator: true, SoftDelete: true, Grantable: true,
			PermissionReferences: []descriptor.Reference{
				{Field: "document", FKColumn: "document_id", TargetType: "documents"},
			},
			CreateReference: "document",
		},
		descriptor.Resource{Name: "announcements", System: true, HasCreator: true, Grantable: true},
		descriptor.Resource{Name: "badges"},
		descriptor.Resource{
			Name:       "cycle_a",
			HasCreator: true, Grantable: true,
			PermissionReferences: []descriptor.Reference{
				{Field: "peer", FKColumn: "peer_id", TargetType: "cycle_b"},
			},
		},
		descriptor.Resource{
			Name:       "cycle_b",
			HasCreator: true, Grantable: true,
			PermissionReferences: []descriptor.Reference{
				{Field: "peer", FKColumn: "peer_id", TargetType: "cycle_a"},
			},
		},
	)
	if err != nil {
		panic(err)
	}
	return registry
}

func newTestEngine(store *memStore) *Engine {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := New(store, testRegistry(), testSentinels, NewRoleLevelCache(DefaultRoleCacheTTL), log)
	return eng.WithClock(func() time.Time { return testNow })
}
