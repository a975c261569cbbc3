package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/splax/gatehouse/internal/predicate"
	"github.com/splax/gatehouse/internal/repository"
)

func TestReferencedRecordsFollowsChain(t *testing.T) {
	store := newMemStore()
	store.addRow("documents", predicate.Row{"id": "doc-1", "user_id": "owner-1"})
	store.addRow("attachments", predicate.Row{"id": "att-1", "document_id": "doc-1"})
	eng := newTestEngine(store)

	records, err := eng.ReferencedRecords(context.Background(), "attachments", "att-1")
	if err != nil {
		t.Fatalf("ReferencedRecords: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one referenced record, got %d", len(records))
	}
	if records[0].Type != "documents" || records[0].Meta.ID != "doc-1" {
		t.Fatalf("unexpected record: %+v", records[0])
	}
	if records[0].Meta.OwnerID != "owner-1" {
		t.Fatalf("referenced meta must carry ownership, got %+v", records[0].Meta)
	}
}

func TestReferencedRecordsEmptyWithoutReferences(t *testing.T) {
	store := newMemStore()
	store.addRow("documents", predicate.Row{"id": "doc-1"})
	eng := newTestEngine(store)

	records, err := eng.ReferencedRecords(context.Background(), "documents", "doc-1")
	if err != nil {
		t.Fatalf("ReferencedRecords: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("type without references must yield nothing, got %v", records)
	}
}

func TestReferencedRecordsNullForeignKeySkipped(t *testing.T) {
	store := newMemStore()
	store.addRow("attachments", predicate.Row{"id": "att-1"})
	eng := newTestEngine(store)

	records, err := eng.ReferencedRecords(context.Background(), "attachments", "att-1")
	if err != nil {
		t.Fatalf("ReferencedRecords: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("null foreign keys must be skipped, got %v", records)
	}
}

func TestReferencedRecordsDetectsInstanceCycle(t *testing.T) {
	store := newMemStore()
	store.addRow("cycle_a", predicate.Row{"id": "a-1", "peer_id": "b-1"})
	store.addRow("cycle_b", predicate.Row{"id": "b-1", "peer_id": "a-1"})
	eng := newTestEngine(store)

	_, err := eng.ReferencedRecords(context.Background(), "cycle_a", "a-1")
	if !errors.Is(err, ErrCircularReference) {
		t.Fatalf("instance cycle must return ErrCircularReference, got %v", err)
	}
}

func TestReferencedRecordsMissingTarget(t *testing.T) {
	store := newMemStore()
	store.addRow("attachments", predicate.Row{"id": "att-1", "document_id": "ghost"})
	eng := newTestEngine(store)

	_, err := eng.ReferencedRecords(context.Background(), "attachments", "att-1")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("dangling reference must surface ErrNotFound, got %v", err)
	}
}

func TestReferencedRecordsRejectsNilArguments(t *testing.T) {
	eng := newTestEngine(newMemStore())
	if _, err := eng.ReferencedRecords(context.Background(), "", "att-1"); !errors.Is(err, ErrNilArgument) {
		t.Fatalf("empty type must be rejected, got %v", err)
	}
	if _, err := eng.ReferencedRecords(context.Background(), "attachments", ""); !errors.Is(err, ErrNilArgument) {
		t.Fatalf("empty id must be rejected, got %v", err)
	}
}

func TestCreateReferenceChainExplicit(t *testing.T) {
	eng := newTestEngine(newMemStore())

	chain, err := eng.CreateReferenceChain("attachments")
	if err != nil {
		t.Fatalf("CreateReferenceChain: %v", err)
	}
	if len(chain) != 1 {
		t.Fatalf("expected one hop, got %d", len(chain))
	}
	if chain[0].Type != "attachments" || chain[0].Ref.TargetType != "documents" {
		t.Fatalf("unexpected hop: %+v", chain[0])
	}
}

func TestCreateReferenceChainTerminalType(t *testing.T) {
	eng := newTestEngine(newMemStore())

	chain, err := eng.CreateReferenceChain("documents")
	if err != nil {
		t.Fatalf("CreateReferenceChain: %v", err)
	}
	if len(chain) != 0 {
		t.Fatalf("terminal type must yield an empty chain, got %v", chain)
	}
}

func TestCreateReferenceChainDetectsTypeCycle(t *testing.T) {
	eng := newTestEngine(newMemStore())

	_, err := eng.CreateReferenceChain("cycle_a")
	if !errors.Is(err, ErrCircularReference) {
		t.Fatalf("type cycle must return ErrCircularReference, got %v", err)
	}
}

func TestCreateReferenceChainUnknownType(t *testing.T) {
	eng := newTestEngine(newMemStore())

	if _, err := eng.CreateReferenceChain("nonesuch"); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("unknown type must be rejected, got %v", err)
	}
}
