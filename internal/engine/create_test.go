package engine

import (
	"context"
	"testing"

	"github.com/splax/gatehouse/internal/predicate"
)

func TestCreateAllowedWithEditOnParent(t *testing.T) {
	store := newMemStore()
	store.addRow("documents", predicate.Row{"id": "doc-1", "created_by_user_id": "user-1"})
	eng := newTestEngine(store)

	allowed, reason, err := eng.CanCreateReferencedEntity(context.Background(), "attachments", "user-1",
		map[string]string{"document_id": "doc-1"})
	if err != nil {
		t.Fatalf("CanCreateReferencedEntity: %v", err)
	}
	if !allowed {
		t.Fatalf("document creator must attach to it: %s", reason)
	}
}

func TestCreateAcceptsFieldNameKey(t *testing.T) {
	store := newMemStore()
	store.addRow("documents", predicate.Row{"id": "doc-1", "created_by_user_id": "user-1"})
	eng := newTestEngine(store)

	allowed, reason, err := eng.CanCreateReferencedEntity(context.Background(), "attachments", "user-1",
		map[string]string{"document": "doc-1"})
	if err != nil {
		t.Fatalf("CanCreateReferencedEntity: %v", err)
	}
	if !allowed {
		t.Fatalf("the reference field name must key the foreign keys too: %s", reason)
	}
}

func TestCreateDeniedWithoutEdit(t *testing.T) {
	store := newMemStore()
	store.addRow("documents", predicate.Row{"id": "doc-1", "created_by_user_id": "owner-1"})
	eng := newTestEngine(store)

	allowed, _, err := eng.CanCreateReferencedEntity(context.Background(), "attachments", "user-1",
		map[string]string{"document_id": "doc-1"})
	if err != nil {
		t.Fatalf("CanCreateReferencedEntity: %v", err)
	}
	if allowed {
		t.Fatalf("view-less actor must not attach to a foreign document")
	}
}

func TestCreateRequiresForeignKey(t *testing.T) {
	store := newMemStore()
	store.addRow("documents", predicate.Row{"id": "doc-1", "created_by_user_id": "user-1"})
	eng := newTestEngine(store)

	allowed, reason, err := eng.CanCreateReferencedEntity(context.Background(), "attachments", "user-1", nil)
	if err != nil {
		t.Fatalf("CanCreateReferencedEntity: %v", err)
	}
	if allowed {
		t.Fatalf("a missing required reference must deny, got allowed (%s)", reason)
	}
}

func TestCreateMissingParentDenies(t *testing.T) {
	eng := newTestEngine(newMemStore())

	allowed, _, err := eng.CanCreateReferencedEntity(context.Background(), "attachments", "user-1",
		map[string]string{"document_id": "ghost"})
	if err != nil {
		t.Fatalf("CanCreateReferencedEntity: %v", err)
	}
	if allowed {
		t.Fatalf("a dangling parent reference must deny")
	}
}

func TestCreateTerminalTypeAlwaysAllowed(t *testing.T) {
	eng := newTestEngine(newMemStore())

	allowed, _, err := eng.CanCreateReferencedEntity(context.Background(), "documents", "user-1", nil)
	if err != nil {
		t.Fatalf("CanCreateReferencedEntity: %v", err)
	}
	if !allowed {
		t.Fatalf("a type without a create reference must default to allowed")
	}
}

func TestCreateRootAllowedAnywhere(t *testing.T) {
	store := newMemStore()
	store.addRow("documents", predicate.Row{"id": "doc-1", "created_by_user_id": "owner-1"})
	eng := newTestEngine(store)

	allowed, _, err := eng.CanCreateReferencedEntity(context.Background(), "attachments", "root-1",
		map[string]string{"document_id": "doc-1"})
	if err != nil {
		t.Fatalf("CanCreateReferencedEntity: %v", err)
	}
	if !allowed {
		t.Fatalf("root must be able to attach anywhere")
	}
}

func TestCreateCyclicChainFails(t *testing.T) {
	eng := newTestEngine(newMemStore())

	allowed, _, err := eng.CanCreateReferencedEntity(context.Background(), "cycle_a", "user-1",
		map[string]string{"peer_id": "b-1"})
	if err == nil {
		t.Fatalf("a cyclic create chain must surface an error")
	}
	if allowed {
		t.Fatalf("a cyclic create chain must not allow creation")
	}
}
