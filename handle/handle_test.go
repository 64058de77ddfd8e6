package handle

import (
	"testing"

	"github.com/tsawler/qdocgraph/object"
)

// fakeStore is a minimal in-memory Resolver for exercising Handle without
// pulling in the store package.
type fakeStore struct {
	slots map[object.IndirectRef]object.Object
	next  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{slots: make(map[object.IndirectRef]object.Object)}
}

func (s *fakeStore) Get(ref object.IndirectRef) (object.Object, error) {
	v, ok := s.slots[ref]
	if !ok {
		return object.Null{}, nil
	}
	return v, nil
}

func (s *fakeStore) MakeIndirect(value object.Object) (object.IndirectRef, error) {
	s.next++
	ref := object.IndirectRef{Number: s.next}
	s.slots[ref] = value
	return ref, nil
}

func (s *fakeStore) Replace(ref object.IndirectRef, value object.Object) error {
	s.slots[ref] = value
	return nil
}

func (s *fakeStore) DocumentID() uint64 { return 42 }

func TestDictHandleGetSetRemove(t *testing.T) {
	store := newFakeStore()
	ref, _ := store.MakeIndirect(object.NewDictFrom(
		object.E("Type", object.Name("Page")),
		object.E("Parent", object.IndirectRef{Number: 5}),
	))
	h := NewIndirect(store, ref)

	if !h.IsPageObject() {
		t.Fatal("expected IsPageObject true")
	}
	if h.IsPagesObject() {
		t.Fatal("expected IsPagesObject false")
	}
	if !h.HasKey("Parent") {
		t.Fatal("expected HasKey(Parent) true")
	}

	parent := h.Get("Parent")
	if !parent.IsIndirect() {
		t.Fatal("Parent should resolve to an indirect child handle")
	}
	num, gen := parent.GetIdentifier()
	if num != 5 || gen != 0 {
		t.Fatalf("Parent identifier = (%d,%d), want (5,0)", num, gen)
	}

	if err := h.Replace("Count", NewDirect(object.Int(3))); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	count := h.Get("Count")
	v, _ := count.value()
	if v != object.Int(3) {
		t.Fatalf("Count = %v, want 3", v)
	}

	if err := h.Remove("Parent"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if h.HasKey("Parent") {
		t.Fatal("Parent should be removed")
	}
}

func TestArrayHandleAppendAndSet(t *testing.T) {
	store := newFakeStore()
	ref, _ := store.MakeIndirect(object.Array{object.Int(1), object.Int(2)})
	h := NewIndirect(store, ref)

	if h.Length() != 2 {
		t.Fatalf("Length() = %d, want 2", h.Length())
	}
	if err := h.Append(NewDirect(object.Int(3))); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if h.Length() != 3 {
		t.Fatalf("Length() after Append = %d, want 3", h.Length())
	}
	if err := h.Set(0, NewDirect(object.Int(99))); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, _ := h.Item(0).value(); v != object.Int(99) {
		t.Fatalf("Item(0) = %v, want 99", v)
	}
}

func TestGetIdentifierPanicsOnDirect(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic calling GetIdentifier on a direct handle")
		}
	}()
	NewDirect(object.Int(1)).GetIdentifier()
}

func TestMakeDirectResolvesNestedReferencesAndDetectsCycles(t *testing.T) {
	store := newFakeStore()
	leafRef, _ := store.MakeIndirect(object.Int(7))
	arrRef, _ := store.MakeIndirect(object.Array{leafRef})
	h := NewIndirect(store, arrRef)

	direct, err := h.MakeDirect()
	if err != nil {
		t.Fatalf("MakeDirect: %v", err)
	}
	resolved, _ := direct.value()
	a, ok := resolved.(object.Array)
	if !ok || len(a) != 1 || a[0] != object.Int(7) {
		t.Fatalf("resolved array = %v, want [7]", resolved)
	}

	// Now build a self-referencing array and confirm MakeDirect reports a cycle.
	cyclicRef, _ := store.MakeIndirect(object.Array{})
	store.Replace(cyclicRef, object.Array{cyclicRef})
	cyclic := NewIndirect(store, cyclicRef)
	if _, err := cyclic.MakeDirect(); err == nil {
		t.Fatal("expected cycle error from MakeDirect")
	}
}
