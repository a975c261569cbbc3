package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/splax/gatehouse/internal/domain"
)

// AccessibleTeamIDs computes the set of teams the actor can see: teams with
// an active membership, teams with a live invitation targeting the actor,
// teams reachable through a non-declined invitee record, and every ancestor
// of those teams up to the ancestry bound. The result is sorted so repeated
// calls compose deterministically inside one larger query.
func (e *Engine) AccessibleTeamIDs(ctx context.Context, actor string) ([]string, error) {
	if actor == "" {
		return nil, ErrNilArgument
	}
	now := e.now()
	seen := make(map[string]struct{})

	memberships, err := e.store.ListActiveMemberships(ctx, actor, now)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	for _, m := range memberships {
		seen[m.TeamID] = struct{}{}
	}

	invited, err := e.store.ListInvitedTeamIDs(ctx, actor, now)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	for _, id := range invited {
		seen[id] = struct{}{}
	}

	viaInvitee, err := e.store.ListInviteeTeamIDs(ctx, actor, now)
	if err != nil {
		return nil, fmt.Errorf("list invitee teams: %w", err)
	}
	for _, id := range viaInvitee {
		seen[id] = struct{}{}
	}

	// Ancestry is upward-only: parents of visible teams become visible,
	// siblings and descendants never do.
	frontier := make([]string, 0, len(seen))
	for id := range seen {
		frontier = append(frontier, id)
	}
	for hop := 0; hop < maxTeamAncestry && len(frontier) > 0; hop++ {
		parents, err := e.store.TeamParents(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("resolve team parents: %w", err)
		}
		frontier = frontier[:0]
		for _, parent := range parents {
			if parent == "" {
				continue
			}
			if _, ok := seen[parent]; ok {
				continue
			}
			seen[parent] = struct{}{}
			frontier = append(frontier, parent)
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// elevatedTeamIDs returns the teams where the actor directly holds a role at
// least as senior as the admin role. Ancestor teams never qualify; seniority
// attaches to the specific team the membership names. An unknown admin role
// yields the empty set, which makes elevated team clauses false.
func (e *Engine) elevatedTeamIDs(ctx context.Context, actor string) ([]string, error) {
	state, err := e.roleLevelState(ctx)
	if err != nil {
		return nil, err
	}
	adminLevel, ok := state.byName[domain.AdminRoleName]
	if !ok {
		return nil, nil
	}
	memberships, err := e.store.ListActiveMemberships(ctx, actor, e.now())
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	var ids []string
	for _, m := range memberships {
		level, ok := state.byID[m.RoleID]
		if !ok {
			continue
		}
		if AtLeastAsSenior(level, adminLevel) {
			ids = append(ids, m.TeamID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// actorRoleIDs returns the roles the actor holds through active memberships.
func (e *Engine) actorRoleIDs(ctx context.Context, actor string) ([]string, error) {
	memberships, err := e.store.ListActiveMemberships(ctx, actor, e.now())
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	var ids []string
	for _, m := range memberships {
		if m.RoleID != "" {
			ids = append(ids, m.RoleID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
