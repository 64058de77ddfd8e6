package store

import (
	"fmt"
	"testing"

	"github.com/tsawler/qdocgraph/object"
)

type fakeXref struct {
	entries    map[object.IndirectRef]object.Object
	recovered  bool
	resolveOK  bool
	resolveErr error
}

func newFakeXref() *fakeXref {
	return &fakeXref{entries: make(map[object.IndirectRef]object.Object), resolveOK: true}
}

func (x *fakeXref) Initialize() error                              { return nil }
func (x *fakeXref) InitializeEmpty() (object.IndirectRef, error)   { return object.IndirectRef{Number: 1}, nil }
func (x *fakeXref) Resolve() (bool, error)                         { return x.resolveOK, x.resolveErr }
func (x *fakeXref) Size() int                                      { return len(x.entries) }
func (x *fakeXref) HasIdentifier(ref object.IndirectRef) bool      { _, ok := x.entries[ref]; return ok }
func (x *fakeXref) IgnoreStreams(bool)                             {}
func (x *fakeXref) AttemptRecovery(bool)                           { x.recovered = true }
func (x *fakeXref) Initialized() bool                              { return true }
func (x *fakeXref) Show() string                                   { return "fake" }
func (x *fakeXref) AllIdentifiers() []object.IndirectRef {
	out := make([]object.IndirectRef, 0, len(x.entries))
	for ref := range x.entries {
		out = append(out, ref)
	}
	return out
}
func (x *fakeXref) ResolveEntry(ref object.IndirectRef) (object.Object, error) {
	v, ok := x.entries[ref]
	if !ok {
		return nil, fmt.Errorf("no such entry: %v", ref)
	}
	return v, nil
}

func TestGetLazilyResolvesThroughXref(t *testing.T) {
	xref := newFakeXref()
	ref := object.IndirectRef{Number: 3}
	xref.entries[ref] = object.Int(99)

	s := New(1, xref, "test.pdf")
	v, err := s.Get(ref)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != object.Int(99) {
		t.Fatalf("Get = %v, want 99", v)
	}
	if s.NextID().Number <= ref.Number {
		t.Fatalf("NextID() = %v, want > %d after resolving object %d", s.NextID(), ref.Number, ref.Number)
	}
}

func TestGetUnknownIdentifierReturnsNullWithoutCreatingSlot(t *testing.T) {
	s := New(1, newFakeXref(), "test.pdf")
	v, err := s.Get(object.IndirectRef{Number: 50})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v.Type() != object.ObjNull {
		t.Fatalf("Get = %v, want Null", v)
	}
	if _, ok := s.slots[object.IndirectRef{Number: 50}]; ok {
		t.Fatal("unknown identifier should not create a slot")
	}
}

func TestMakeIndirectAndReplacePreserveIdentity(t *testing.T) {
	s := New(1, newFakeXref(), "test.pdf")
	ref, err := s.MakeIndirect(object.Int(1))
	if err != nil {
		t.Fatalf("MakeIndirect: %v", err)
	}
	if err := s.Replace(ref, object.Int(2)); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	v, _ := s.Get(ref)
	if v != object.Int(2) {
		t.Fatalf("Get after Replace = %v, want 2", v)
	}
}

func TestReplaceReservedRejectsNonReservedSlot(t *testing.T) {
	s := New(1, newFakeXref(), "test.pdf")
	ref, _ := s.MakeIndirect(object.Int(5))
	if err := s.ReplaceReserved(ref, object.Int(6)); err == nil {
		t.Fatal("expected error replacing a non-Reserved, non-Null slot")
	}
}

func TestSwapExchangesValues(t *testing.T) {
	s := New(1, newFakeXref(), "test.pdf")
	refA, _ := s.MakeIndirect(object.Int(1))
	refB, _ := s.MakeIndirect(object.Int(2))
	if err := s.Swap(refA, refB); err != nil {
		t.Fatalf("Swap: %v", err)
	}
	a, _ := s.Get(refA)
	b, _ := s.Get(refB)
	if a != object.Int(2) || b != object.Int(1) {
		t.Fatalf("after Swap: a=%v b=%v, want a=2 b=1", a, b)
	}
}

func TestFixDanglingReferencesAttemptsRecoveryOnCorruption(t *testing.T) {
	xref := newFakeXref()
	xref.resolveOK = false
	s := New(1, xref, "test.pdf")

	err := s.FixDanglingReferences()
	if err == nil {
		t.Fatal("expected an error when recovery does not fix the table")
	}
	if !xref.recovered {
		t.Fatal("expected AttemptRecovery to be called")
	}
}
