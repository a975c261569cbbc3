package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/splax/gatehouse/internal/domain"
	"github.com/splax/gatehouse/internal/repository"
)

// CheckPermission decides whether the actor may perform the capability on one
// resource instance. The decision sequence is ordered; the first matching
// rule wins. Unexpected failures are logged and reported as ResultError,
// never propagated raw.
func (e *Engine) CheckPermission(ctx context.Context, actor, typeName, id string, level domain.Capability) (decision Decision) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic during permission check",
				"actor_id", actor, "resource_type", typeName, "resource_id", id, "panic", r)
			decision = failure("internal error during permission check")
		}
	}()

	if actor == "" || typeName == "" || id == "" {
		return failure("actor, resource type and resource id are required")
	}
	res, ok := e.registry.Lookup(typeName)
	if !ok {
		return failure(fmt.Sprintf("unknown resource type %q", typeName))
	}

	// Root bypasses every other rule.
	if e.sentinels.IsRoot(actor) {
		return granted("root access")
	}

	meta, err := e.store.GetResourceMeta(ctx, res, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(fmt.Sprintf("%s %s does not exist", typeName, id))
		}
		e.logger.Error("resource lookup failed",
			"resource_type", typeName, "resource_id", id, "error", err)
		return failure("resource lookup failed")
	}

	// Soft-deleted rows are visible to root alone.
	if meta.DeletedAt != nil {
		return denied("resource has been deleted")
	}

	if res.System {
		if level == domain.CapabilityView {
			return granted("system resources are viewable by anyone")
		}
		if e.sentinels.IsSystem(actor) {
			return granted("system actor on system resource")
		}
		return denied("system resources are writable only by root or system")
	}

	if meta.CreatedByID != "" && meta.CreatedByID == actor {
		return granted("actor created this resource")
	}
	if allowed, applies := e.sentinels.CanAccessSentinelRecord(actor, meta.CreatedByID, level); applies {
		if allowed {
			return granted(fmt.Sprintf("sentinel-owned resource permits %s", level))
		}
		return denied(fmt.Sprintf("sentinel-owned resource forbids %s", level))
	}

	allowed, err := e.store.UserGrantAllows(ctx, typeName, id, actor, level, e.now())
	if err != nil {
		e.logger.Error("grant lookup failed",
			"resource_type", typeName, "resource_id", id, "actor_id", actor, "error", err)
		return failure("grant lookup failed")
	}
	if allowed {
		return granted(fmt.Sprintf("explicit grant permits %s", level))
	}

	// Fall through to the bulk filter so team, role and delegated access
	// stay consistent between point and list decisions.
	pred, err := e.permissionFilter(ctx, actor, res, level, make(map[string]struct{}))
	if err != nil {
		e.logger.Error("permission filter construction failed",
			"resource_type", typeName, "actor_id", actor, "error", err)
		return failure("permission evaluation failed")
	}
	match, err := e.store.ResourceMatches(ctx, res, id, pred)
	if err != nil {
		e.logger.Error("permission filter evaluation failed",
			"resource_type", typeName, "resource_id", id, "actor_id", actor, "error", err)
		return failure("permission evaluation failed")
	}
	if match {
		return granted(fmt.Sprintf("team or role access permits %s", level))
	}
	return denied(fmt.Sprintf("no rule permits %s", level))
}

// RequiredLevelForRole maps a minimum-role requirement to the capability it
// demands: superadmin needs Share, admin needs Edit, anything else View.
func RequiredLevelForRole(minimumRole string) domain.Capability {
	switch minimumRole {
	case "superadmin":
		return domain.CapabilityShare
	case "admin":
		return domain.CapabilityEdit
	default:
		return domain.CapabilityView
	}
}

// CheckPermissionForRole is CheckPermission with the required level derived
// from a minimum-role name.
func (e *Engine) CheckPermissionForRole(ctx context.Context, actor, typeName, id, minimumRole string) Decision {
	return e.CheckPermission(ctx, actor, typeName, id, RequiredLevelForRole(minimumRole))
}

// UserCanEdit reports whether the actor holds Edit on the instance.
func (e *Engine) UserCanEdit(ctx context.Context, actor, typeName, id string) bool {
	return e.CheckPermission(ctx, actor, typeName, id, domain.CapabilityEdit).Granted()
}

// UserCanShare reports whether the actor holds Share on the instance.
func (e *Engine) UserCanShare(ctx context.Context, actor, typeName, id string) bool {
	return e.CheckPermission(ctx, actor, typeName, id, domain.CapabilityShare).Granted()
}
