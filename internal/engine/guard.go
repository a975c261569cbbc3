package engine

import (
	"context"
	"fmt"

	"github.com/splax/gatehouse/internal/domain"
)

// GrantOperation names an action on a permission grant itself.
type GrantOperation string

const (
	GrantCreate GrantOperation = "create"
	GrantUpdate GrantOperation = "update"
	GrantDelete GrantOperation = "delete"
)

// CanManageGrant gates who may create, update or delete grants on a
// resource: root and system always may; otherwise the actor needs Share or
// Edit on the resource, and deleting a grant additionally requires Delete.
func (e *Engine) CanManageGrant(ctx context.Context, actor, typeName, id string, op GrantOperation) (bool, string) {
	if actor == "" || typeName == "" || id == "" {
		return false, "actor, resource type and resource id are required"
	}
	switch op {
	case GrantCreate, GrantUpdate, GrantDelete:
	default:
		return false, fmt.Sprintf("unknown grant operation %q", op)
	}

	if e.sentinels.IsRoot(actor) || e.sentinels.IsSystem(actor) {
		return true, "sentinel actor"
	}

	if op == GrantDelete {
		if !e.CheckPermission(ctx, actor, typeName, id, domain.CapabilityDelete).Granted() {
			return false, "deleting a grant requires delete access on the resource"
		}
	}
	if e.UserCanShare(ctx, actor, typeName, id) {
		return true, "share access on the resource"
	}
	if e.UserCanEdit(ctx, actor, typeName, id) {
		return true, "edit access on the resource"
	}
	return false, "share or edit access required on the resource"
}
