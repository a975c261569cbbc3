package engine

import (
	"context"
	"fmt"

	"github.com/splax/gatehouse/internal/descriptor"
	"github.com/splax/gatehouse/internal/domain"
	"github.com/splax/gatehouse/internal/predicate"
)

// PermissionFilter builds a predicate selecting exactly the rows of the
// resource type the actor may access at the capability. Callers hand the
// predicate to a storage adapter so bulk reads exclude unauthorized rows at
// the data layer.
//
// Errors raised while building the predicate propagate: a partial filter is
// never returned. The one exception is a type-level reference cycle, which
// yields an always-false predicate and a log line instead of failing every
// listing for the type.
func (e *Engine) PermissionFilter(ctx context.Context, actor, typeName string, level domain.Capability) (predicate.Node, error) {
	if actor == "" || typeName == "" {
		return nil, ErrNilArgument
	}
	res, ok := e.registry.Lookup(typeName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, typeName)
	}
	return e.permissionFilter(ctx, actor, res, level, make(map[string]struct{}))
}

// permissionFilter carries the per-call visited-type set used while
// recursing through permission references.
func (e *Engine) permissionFilter(ctx context.Context, actor string, res descriptor.Resource, level domain.Capability, visited map[string]struct{}) (predicate.Node, error) {
	// Root sees everything, soft-deleted rows included.
	if e.sentinels.IsRoot(actor) {
		return predicate.True(), nil
	}
	if _, seen := visited[res.Name]; seen {
		e.logger.Warn("permission reference cycle at type level, filter forced to match nothing",
			"resource_type", res.Name, "actor_id", actor)
		return predicate.False(), nil
	}
	visited[res.Name] = struct{}{}

	if res.System {
		if level == domain.CapabilityView || e.sentinels.IsSystem(actor) {
			return predicate.True(), nil
		}
		return predicate.False(), nil
	}

	accessible, err := e.AccessibleTeamIDs(ctx, actor)
	if err != nil {
		return nil, err
	}

	var gates []predicate.Node
	if res.SoftDelete {
		gates = append(gates, predicate.IsNull("deleted_at"))
	}

	var clauses []predicate.Node
	switch res.Kind {
	case descriptor.KindUser:
		clauses = e.userClauses(actor, level, accessible)
	case descriptor.KindTeam:
		clauses = e.teamClauses(actor, res, accessible)
	case descriptor.KindInvitation:
		clauses = e.invitationClauses(actor, accessible)
	case descriptor.KindInvitee:
		clauses = e.inviteeClauses(actor, accessible)
	default:
		generic, genericGates, err := e.genericClauses(ctx, actor, res, level, accessible, visited)
		if err != nil {
			return nil, err
		}
		clauses = generic
		gates = append(gates, genericGates...)
	}

	if len(clauses) == 0 {
		e.logger.Warn("no permission clauses could be constructed, filter forced to match nothing",
			"resource_type", res.Name, "actor_id", actor, "level", level.String())
		return predicate.False(), nil
	}
	gates = append(gates, predicate.AnyOf(clauses...))
	return predicate.AllOf(gates...), nil
}

// genericClauses builds the standard ownership/team/grant/delegation clauses
// plus the sentinel exclusion gates for types without special handling.
func (e *Engine) genericClauses(ctx context.Context, actor string, res descriptor.Resource, level domain.Capability, accessible []string, visited map[string]struct{}) (clauses, gates []predicate.Node, err error) {
	if res.HasOwner {
		clauses = append(clauses, predicate.Eq("user_id", actor))
	}
	if res.HasCreator {
		clauses = append(clauses, predicate.Eq("created_by_user_id", actor))
	}

	if res.HasTeam {
		teamIDs := accessible
		if level.Elevated() {
			// Elevated access through a team needs an admin-or-above
			// role held on that team specifically.
			teamIDs, err = e.elevatedTeamIDs(ctx, actor)
			if err != nil {
				return nil, nil, err
			}
		}
		if len(teamIDs) > 0 {
			clauses = append(clauses, predicate.InSet{Column: "team_id", Values: teamIDs})
		}
	}

	// Sentinel-owned rows: exclusions and public allowances mirror the
	// point rules, applied to user_id and created_by_user_id independently.
	for _, column := range res.OwnerColumns() {
		for _, sentinel := range []string{e.sentinels.Root, e.sentinels.System, e.sentinels.Template} {
			if sentinel == "" {
				continue
			}
			if allowed, _ := e.sentinels.CanAccessSentinelRecord(actor, sentinel, level); !allowed {
				gates = append(gates, predicate.Not{Node: predicate.Eq(column, sentinel)})
			}
			if e.sentinels.PublicSentinelAllows(sentinel, level) {
				clauses = append(clauses, predicate.Eq(column, sentinel))
			}
		}
	}

	if res.Grantable {
		grantClause, err := e.grantExistsClause(ctx, actor, res, level, accessible)
		if err != nil {
			return nil, nil, err
		}
		clauses = append(clauses, grantClause)
	}

	for _, ref := range res.PermissionReferences {
		target, ok := e.registry.Lookup(ref.TargetType)
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrUnknownType, ref.TargetType)
		}
		sub, err := e.permissionFilter(ctx, actor, target, level, visited)
		if err != nil {
			return nil, nil, err
		}
		clauses = append(clauses, predicate.Exists{
			Table: target.Name,
			Links: []predicate.Link{{Column: "id", OuterColumn: ref.FKColumn}},
			Where: []predicate.Node{sub},
		})
	}
	return clauses, gates, nil
}

// grantExistsClause matches rows carrying a live grant with the capability,
// scoped to the actor directly, to any accessible team, or to any role the
// actor holds.
func (e *Engine) grantExistsClause(ctx context.Context, actor string, res descriptor.Resource, level domain.Capability, accessible []string) (predicate.Node, error) {
	roleIDs, err := e.actorRoleIDs(ctx, actor)
	if err != nil {
		return nil, err
	}
	scopes := []predicate.Node{predicate.Eq("user_id", actor)}
	if len(accessible) > 0 {
		scopes = append(scopes, predicate.InSet{Column: "team_id", Values: accessible})
	}
	if len(roleIDs) > 0 {
		scopes = append(scopes, predicate.InSet{Column: "role_id", Values: roleIDs})
	}
	return predicate.Exists{
		Table: "permission_grants",
		Links: []predicate.Link{{Column: "resource_id", OuterColumn: "id"}},
		Where: []predicate.Node{
			predicate.Eq("resource_type", res.Name),
			predicate.Eq(level.Column(), true),
			predicate.NotExpired("expires_at", e.now()),
			predicate.AnyOf(scopes...),
		},
	}, nil
}

// userClauses: a user row is visible to itself, and for plain view to anyone
// sharing an accessible team.
func (e *Engine) userClauses(actor string, level domain.Capability, accessible []string) []predicate.Node {
	clauses := []predicate.Node{predicate.Eq("id", actor)}
	if level == domain.CapabilityView && len(accessible) > 0 {
		clauses = append(clauses, predicate.Exists{
			Table: "team_members",
			Links: []predicate.Link{{Column: "user_id", OuterColumn: "id"}},
			Where: []predicate.Node{
				predicate.InSet{Column: "team_id", Values: accessible},
				predicate.Eq("enabled", true),
				predicate.NotExpired("expires_at", e.now()),
			},
		})
	}
	return clauses
}

// teamClauses: a team row is visible when accessible, or when created by the
// system sentinel or the actor themselves.
func (e *Engine) teamClauses(actor string, res descriptor.Resource, accessible []string) []predicate.Node {
	var clauses []predicate.Node
	if len(accessible) > 0 {
		clauses = append(clauses, predicate.InSet{Column: "id", Values: accessible})
	}
	if res.HasCreator {
		if e.sentinels.System != "" {
			clauses = append(clauses, predicate.Eq("created_by_user_id", e.sentinels.System))
		}
		clauses = append(clauses, predicate.Eq("created_by_user_id", actor))
	}
	return clauses
}

// invitationClauses: team-bound invitations follow team visibility, unbound
// ones belong to their creator, and invitees see their own invitations.
func (e *Engine) invitationClauses(actor string, accessible []string) []predicate.Node {
	clauses := make([]predicate.Node, 0, 3)
	if len(accessible) > 0 {
		clauses = append(clauses, predicate.AllOf(
			predicate.Compare{Column: "team_id", Op: predicate.OpNotNull},
			predicate.InSet{Column: "team_id", Values: accessible},
		))
	}
	clauses = append(clauses, predicate.AllOf(
		predicate.IsNull("team_id"),
		predicate.Eq("created_by_user_id", actor),
	))
	clauses = append(clauses, predicate.Exists{
		Table: "invitees",
		Links: []predicate.Link{{Column: "invitation_id", OuterColumn: "id"}},
		Where: []predicate.Node{predicate.Eq("user_id", actor)},
	})
	return clauses
}

// inviteeClauses: an invitee row is visible through its invitation, either
// one the actor created or one scoped to an accessible team.
func (e *Engine) inviteeClauses(actor string, accessible []string) []predicate.Node {
	scopes := []predicate.Node{predicate.Eq("created_by_user_id", actor)}
	if len(accessible) > 0 {
		scopes = append(scopes, predicate.InSet{Column: "team_id", Values: accessible})
	}
	return []predicate.Node{predicate.Exists{
		Table: "invitations",
		Links: []predicate.Link{{Column: "id", OuterColumn: "invitation_id"}},
		Where: []predicate.Node{predicate.AnyOf(scopes...)},
	}}
}
