package engine

import (
	"context"
	"fmt"

	"github.com/splax/gatehouse/internal/descriptor"
	"github.com/splax/gatehouse/internal/domain"
)

// ReferencedRecord is one instance reached while following a permission
// reference chain.
type ReferencedRecord struct {
	Type string
	Meta *domain.ResourceMeta
}

type typedID struct {
	typeName string
	id       string
}

// ReferencedRecords follows the instance's declared permission references
// recursively and returns every visited instance. An explicit worklist owns
// the visited set, so a repeat visit of any (type, id) pair is a local
// invariant violation and returns ErrCircularReference: a cycle here is a
// modeling bug and fails loudly.
func (e *Engine) ReferencedRecords(ctx context.Context, typeName, id string) ([]ReferencedRecord, error) {
	if typeName == "" || id == "" {
		return nil, ErrNilArgument
	}
	root, ok := e.registry.Lookup(typeName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, typeName)
	}

	visited := map[typedID]struct{}{{typeName: typeName, id: id}: {}}
	var records []ReferencedRecord

	stack, err := e.pushReferences(ctx, root, id, nil)
	if err != nil {
		return nil, err
	}
	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, seen := visited[item]; seen {
			return nil, fmt.Errorf("%w: %s/%s revisited", ErrCircularReference, item.typeName, item.id)
		}
		visited[item] = struct{}{}

		res, ok := e.registry.Lookup(item.typeName)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownType, item.typeName)
		}
		meta, err := e.store.GetResourceMeta(ctx, res, item.id)
		if err != nil {
			return nil, fmt.Errorf("fetch %s/%s: %w", item.typeName, item.id, err)
		}
		records = append(records, ReferencedRecord{Type: item.typeName, Meta: meta})

		stack, err = e.pushReferencesFromMeta(res, meta, stack)
		if err != nil {
			return nil, err
		}
	}
	return records, nil
}

// pushReferences loads the instance and queues its declared references.
func (e *Engine) pushReferences(ctx context.Context, res descriptor.Resource, id string, stack []typedID) ([]typedID, error) {
	if len(res.PermissionReferences) == 0 {
		return stack, nil
	}
	meta, err := e.store.GetResourceMeta(ctx, res, id)
	if err != nil {
		return nil, fmt.Errorf("fetch %s/%s: %w", res.Name, id, err)
	}
	return e.pushReferencesFromMeta(res, meta, stack)
}

func (e *Engine) pushReferencesFromMeta(res descriptor.Resource, meta *domain.ResourceMeta, stack []typedID) ([]typedID, error) {
	// Push in reverse declaration order so the worklist pops references in
	// the order they were declared.
	for i := len(res.PermissionReferences) - 1; i >= 0; i-- {
		ref := res.PermissionReferences[i]
		target := meta.References[ref.FKColumn]
		if target == "" {
			continue
		}
		stack = append(stack, typedID{typeName: ref.TargetType, id: target})
	}
	return stack, nil
}

// ReferenceHop is one step of a class-level create-permission chain: the
// declaring type and the reference it delegates through.
type ReferenceHop struct {
	Type string
	Ref  descriptor.Reference
}

// CreateReferenceChain walks the class-level delegation chain of a resource
// type to the terminal type that owns permission semantics. Each step takes
// the explicit create reference, or the sole permission reference when
// exactly one exists; a type with several references and no explicit choice
// is treated as terminal and logged. A type-level cycle returns
// ErrCircularReference. An empty chain means the type is itself terminal.
func (e *Engine) CreateReferenceChain(typeName string) ([]ReferenceHop, error) {
	if typeName == "" {
		return nil, ErrNilArgument
	}
	current, ok := e.registry.Lookup(typeName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, typeName)
	}

	visited := map[string]struct{}{current.Name: {}}
	var chain []ReferenceHop
	for {
		ref, ok := createReferenceOf(current)
		if !ok {
			if len(current.PermissionReferences) > 1 {
				e.logger.Warn("ambiguous create permission reference, treating type as terminal",
					"resource_type", current.Name,
					"references", len(current.PermissionReferences))
			}
			return chain, nil
		}
		chain = append(chain, ReferenceHop{Type: current.Name, Ref: ref})

		next, ok := e.registry.Lookup(ref.TargetType)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownType, ref.TargetType)
		}
		if _, seen := visited[next.Name]; seen {
			return nil, fmt.Errorf("%w: type %s revisited", ErrCircularReference, next.Name)
		}
		visited[next.Name] = struct{}{}
		current = next
	}
}

func createReferenceOf(res descriptor.Resource) (descriptor.Reference, bool) {
	if res.CreateReference != "" {
		return res.ReferenceByField(res.CreateReference)
	}
	if len(res.PermissionReferences) == 1 {
		return res.PermissionReferences[0], true
	}
	return descriptor.Reference{}, false
}
