// Package descriptor holds the static registry of resource types the
// authorization engine can reason about. The registry is built once at
// startup; the engine only ever consumes descriptors, never live schema.
package descriptor

import (
	"fmt"
	"sort"
)

// Kind is the closed set of resource families with special filter semantics.
// Everything else is KindGeneric and gets the standard ownership/team/grant
// clauses.
type Kind int

const (
	KindGeneric Kind = iota
	KindUser
	KindTeam
	KindInvitation
	KindInvitee
)

// Reference declares that permission semantics for a resource delegate to a
// related resource reachable through a foreign key column.
type Reference struct {
	Field      string // logical field name, e.g. "parent"
	FKColumn   string // column holding the referenced id, e.g. "parent_id"
	TargetType string // registered type name of the referenced resource
}

// Resource describes one resource type: its table name, which optional
// columns exist, and any declared permission delegation.
type Resource struct {
	Name       string // type name, also the table name
	Kind       Kind
	System     bool // system-flagged: world-viewable, sentinel-writable
	HasOwner   bool // user_id column
	HasCreator bool // created_by_user_id column
	HasTeam    bool // team_id column
	SoftDelete bool // deleted_at column
	Grantable  bool // rows can be targeted by permission grants

	// PermissionReferences is the ordered delegation chain; CreateReference
	// names the field governing create permission when the chain is
	// ambiguous.
	PermissionReferences []Reference
	CreateReference      string
}

// OwnerColumns lists the identity-bearing columns the resource carries.
func (r Resource) OwnerColumns() []string {
	cols := make([]string, 0, 2)
	if r.HasOwner {
		cols = append(cols, "user_id")
	}
	if r.HasCreator {
		cols = append(cols, "created_by_user_id")
	}
	return cols
}

// ReferenceByField returns the declared reference with the given field name.
func (r Resource) ReferenceByField(field string) (Reference, bool) {
	for _, ref := range r.PermissionReferences {
		if ref.Field == field {
			return ref, true
		}
	}
	return Reference{}, false
}

// Registry maps resource-type names to descriptors.
type Registry struct {
	byName map[string]Resource
}

// NewRegistry builds a registry, rejecting duplicate names and references to
// unregistered types so misconfiguration fails at startup, not per request.
func NewRegistry(resources ...Resource) (*Registry, error) {
	byName := make(map[string]Resource, len(resources))
	for _, res := range resources {
		if res.Name == "" {
			return nil, fmt.Errorf("descriptor: resource with empty name")
		}
		if _, dup := byName[res.Name]; dup {
			return nil, fmt.Errorf("descriptor: duplicate resource %q", res.Name)
		}
		byName[res.Name] = res
	}
	for _, res := range byName {
		for _, ref := range res.PermissionReferences {
			if _, ok := byName[ref.TargetType]; !ok {
				return nil, fmt.Errorf("descriptor: %s.%s references unregistered type %q", res.Name, ref.Field, ref.TargetType)
			}
		}
		if res.CreateReference != "" {
			if _, ok := res.ReferenceByField(res.CreateReference); !ok {
				return nil, fmt.Errorf("descriptor: %s declares create reference %q with no matching permission reference", res.Name, res.CreateReference)
			}
		}
	}
	return &Registry{byName: byName}, nil
}

// Lookup returns the descriptor for a type name.
func (r *Registry) Lookup(name string) (Resource, bool) {
	res, ok := r.byName[name]
	return res, ok
}

// Names lists registered type names in stable order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
