package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/splax/gatehouse/internal/domain"
	"github.com/splax/gatehouse/internal/repository"
)

// CanCreateReferencedEntity decides whether the actor may create a new
// instance of a delegating resource type. The foreign key for the first hop
// of the create-reference chain must be supplied; there is no fallback. The
// chain is then followed through stored rows to the terminal instance, on
// which the actor must hold Edit. Types with no chain default to allowed.
//
// fks maps reference field names or foreign-key columns to candidate ids, as
// supplied by the caller building the new row.
func (e *Engine) CanCreateReferencedEntity(ctx context.Context, typeName, actor string, fks map[string]string) (bool, string, error) {
	if typeName == "" || actor == "" {
		return false, "resource type and actor are required", ErrNilArgument
	}
	chain, err := e.CreateReferenceChain(typeName)
	if err != nil {
		return false, "create reference chain could not be resolved", err
	}
	if len(chain) == 0 {
		return true, "no create permission reference declared", nil
	}

	first := chain[0].Ref
	targetID := fks[first.FKColumn]
	if targetID == "" {
		targetID = fks[first.Field]
	}
	if targetID == "" {
		return false, fmt.Sprintf("missing required reference %s", first.FKColumn), nil
	}

	currentType := first.TargetType
	currentID := targetID
	for _, hop := range chain[1:] {
		res, ok := e.registry.Lookup(currentType)
		if !ok {
			return false, "create reference chain could not be resolved", fmt.Errorf("%w: %s", ErrUnknownType, currentType)
		}
		meta, err := e.store.GetResourceMeta(ctx, res, currentID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return false, fmt.Sprintf("referenced %s %s does not exist", currentType, currentID), nil
			}
			return false, "referenced resource lookup failed", err
		}
		next := meta.References[hop.Ref.FKColumn]
		if next == "" {
			return false, fmt.Sprintf("referenced %s %s has no %s", currentType, currentID, hop.Ref.FKColumn), nil
		}
		currentType = hop.Ref.TargetType
		currentID = next
	}

	decision := e.CheckPermission(ctx, actor, currentType, currentID, domain.CapabilityEdit)
	switch decision.Result {
	case ResultGranted:
		return true, fmt.Sprintf("edit access on %s %s", currentType, currentID), nil
	case ResultNotFound:
		return false, fmt.Sprintf("referenced %s %s does not exist", currentType, currentID), nil
	default:
		return false, fmt.Sprintf("edit access required on %s %s", currentType, currentID), nil
	}
}
