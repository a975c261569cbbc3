package engine

import (
	"context"
	"testing"

	"github.com/splax/gatehouse/internal/domain"
	"github.com/splax/gatehouse/internal/predicate"
)

func TestManageGrantSentinelsAlwaysAllowed(t *testing.T) {
	eng := newTestEngine(newMemStore())
	ctx := context.Background()

	for _, actor := range []string{"root-1", "system-1"} {
		if ok, reason := eng.CanManageGrant(ctx, actor, "documents", "missing", GrantDelete); !ok {
			t.Fatalf("%s must manage grants unconditionally: %s", actor, reason)
		}
	}
}

func TestManageGrantCreatorAllowed(t *testing.T) {
	store := newMemStore()
	store.addRow("documents", predicate.Row{"id": "doc-1", "created_by_user_id": "user-1"})
	eng := newTestEngine(store)

	if ok, reason := eng.CanManageGrant(context.Background(), "user-1", "documents", "doc-1", GrantCreate); !ok {
		t.Fatalf("creator must manage grants on their resource: %s", reason)
	}
}

func TestManageGrantStrangerRefused(t *testing.T) {
	store := newMemStore()
	store.addRow("documents", predicate.Row{"id": "doc-1", "created_by_user_id": "owner-1"})
	eng := newTestEngine(store)

	if ok, _ := eng.CanManageGrant(context.Background(), "user-2", "documents", "doc-1", GrantCreate); ok {
		t.Fatalf("unrelated actor must not manage grants")
	}
}

func TestManageGrantDeleteNeedsDeleteCapability(t *testing.T) {
	// A share grant lets the holder create further grants but not delete
	// them: delete on the grant needs delete on the resource.
	store := newMemStore()
	store.addRow("documents", predicate.Row{"id": "doc-1", "created_by_user_id": "owner-1"})
	store.addGrant(domain.PermissionGrant{
		ID: "g-1", ResourceType: "documents", ResourceID: "doc-1",
		UserID: "user-1", CanShare: true, CanEdit: true,
	})
	eng := newTestEngine(store)
	ctx := context.Background()

	if ok, reason := eng.CanManageGrant(ctx, "user-1", "documents", "doc-1", GrantCreate); !ok {
		t.Fatalf("share holder must create grants: %s", reason)
	}
	if ok, _ := eng.CanManageGrant(ctx, "user-1", "documents", "doc-1", GrantDelete); ok {
		t.Fatalf("delete must additionally require delete access on the resource")
	}
}

func TestManageGrantValidatesInputs(t *testing.T) {
	eng := newTestEngine(newMemStore())
	ctx := context.Background()

	if ok, _ := eng.CanManageGrant(ctx, "", "documents", "doc-1", GrantCreate); ok {
		t.Fatalf("empty actor must be refused")
	}
	if ok, _ := eng.CanManageGrant(ctx, "user-1", "documents", "doc-1", GrantOperation("drop")); ok {
		t.Fatalf("unknown operations must be refused")
	}
}
