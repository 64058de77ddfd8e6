package store

import (
	"fmt"

	"github.com/tsawler/qdocgraph/handle"
	"github.com/tsawler/qdocgraph/object"
	"github.com/tsawler/qdocgraph/qerr"
)

// XrefView is the subset of the xref view (spec §4.4) the store calls
// into. A concrete adapter over the xrefview package's tokenizer/table
// reader implements this; store never imports xrefview directly, so the
// dependency runs one way (document wires an XrefView implementation into
// a Store, not the other way around).
type XrefView interface {
	Initialize() error
	InitializeEmpty() (object.IndirectRef, error)
	Resolve() (bool, error)
	Size() int
	HasIdentifier(ref object.IndirectRef) bool
	AllIdentifiers() []object.IndirectRef
	IgnoreStreams(flag bool)
	AttemptRecovery(flag bool)
	Initialized() bool
	Show() string
	// ResolveEntry parses the object named by ref from wherever the xref
	// says it lives (a direct file offset, or an index into an object
	// stream) and returns its value. The store — not the xref — installs
	// the result into the slot map; the xref never needs a reference back
	// to the store to do this, avoiding an import cycle the spec's literal
	// "calls back into the store" phrasing would otherwise require.
	ResolveEntry(ref object.IndirectRef) (object.Object, error)
}

// Store is the (id, generation) -> value slot map plus allocator per
// spec §4.3.
type Store struct {
	documentID uint64
	xref       XrefView
	filename   string

	slots map[object.IndirectRef]object.Object
	// insertOrder records the encounter order of identifiers MakeIndirect
	// allocates (streams, reserved slots, anything else built up rather
	// than read from the xref) — Go map iteration order is unspecified,
	// so AllObjects walks this instead of s.slots to make the locally-
	// allocated portion of its enumeration deterministic: two runs over the
	// same document see local objects in the same order.
	insertOrder []object.IndirectRef
	nextID      int
	inParse     map[object.IndirectRef]bool

	fixedDangling bool
}

// New creates an empty Store for the given document identity and xref
// view. filename is used only for diagnostic messages.
func New(documentID uint64, xref XrefView, filename string) *Store {
	return &Store{
		documentID: documentID,
		xref:       xref,
		filename:   filename,
		slots:      make(map[object.IndirectRef]object.Object),
		nextID:     1,
		inParse:    make(map[object.IndirectRef]bool),
	}
}

// DocumentID satisfies handle.Resolver.
func (s *Store) DocumentID() uint64 { return s.documentID }

// Initialize reads the trailer and xref through the xref view.
func (s *Store) Initialize() error { return s.xref.Initialize() }

// InitializeEmpty seeds a minimum empty document and returns the
// freshly reserved catalog's identifier.
func (s *Store) InitializeEmpty() (object.IndirectRef, error) { return s.xref.InitializeEmpty() }

// Get resolves ref to its current value, satisfying handle.Resolver.
//
// If the slot already holds a value, it is returned as-is (this includes
// Reserved — a caller that dereferences a Reserved slot before it is
// replaced is a copier-internal bug and copier checks for it explicitly
// rather than relying on Get to reject it). If the slot is unknown but the
// xref recognizes the identifier, the xref is asked to parse it; the
// result is installed into the slot before being returned. Otherwise the
// identifier does not exist anywhere and a null value is returned without
// creating a slot.
func (s *Store) Get(ref object.IndirectRef) (object.Object, error) {
	if ref.IsNull() {
		return object.Null{}, nil
	}
	if v, ok := s.slots[ref]; ok {
		return v, nil
	}
	if s.xref == nil || !s.xref.HasIdentifier(ref) {
		return object.Null{}, nil
	}

	if s.inParse[ref] {
		return nil, qerr.Logic("re-entrant parsing of %d %d R", ref.Number, ref.Generation)
	}
	s.inParse[ref] = true
	defer delete(s.inParse, ref)

	value, err := s.xref.ResolveEntry(ref)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %d %d R: %w", ref.Number, ref.Generation, err)
	}
	s.slots[ref] = value
	s.bumpNextID(ref.Number)
	return value, nil
}

// MakeIndirect allocates the next identifier (generation 0), inserts a
// resolved slot holding value, and returns its reference.
func (s *Store) MakeIndirect(value object.Object) (object.IndirectRef, error) {
	if value == nil {
		return object.IndirectRef{}, fmt.Errorf("store: cannot make an indirect object from a nil value")
	}
	ref := object.IndirectRef{Number: s.nextID, Generation: 0}
	s.nextID++
	s.slots[ref] = value
	s.insertOrder = append(s.insertOrder, ref)
	return ref, nil
}

// NewReserved allocates an identifier whose slot holds Reserved.
func (s *Store) NewReserved() (object.IndirectRef, error) {
	return s.MakeIndirect(object.Reserved{})
}

// NewIndirectNull allocates an identifier whose slot holds Null.
func (s *Store) NewIndirectNull() (object.IndirectRef, error) {
	return s.MakeIndirect(object.Null{})
}

// NewStream allocates an identifier whose slot holds a stream with a
// fresh empty dictionary and an empty data source.
func (s *Store) NewStream() (object.IndirectRef, error) {
	return s.MakeIndirect(&object.Stream{Dict: object.NewDict(), Source: object.EmptyData{}})
}

// Replace overwrites ref's slot with value without changing its
// identity, satisfying handle.Resolver.
func (s *Store) Replace(ref object.IndirectRef, value object.Object) error {
	if value == nil {
		return fmt.Errorf("store: cannot replace %d %d R with a nil value", ref.Number, ref.Generation)
	}
	s.slots[ref] = value
	s.bumpNextID(ref.Number)
	return nil
}

// ReplaceReserved asserts that ref's current slot is Reserved or Null,
// then replaces it.
func (s *Store) ReplaceReserved(ref object.IndirectRef, value object.Object) error {
	current, ok := s.slots[ref]
	if ok {
		switch current.(type) {
		case object.Reserved, object.Null:
			// fine
		default:
			return qerr.Logic("ReplaceReserved: %d %d R is not Reserved or Null (got %T)", ref.Number, ref.Generation, current)
		}
	}
	return s.Replace(ref, value)
}

// Swap exchanges the values held by idA and idB, keeping both
// identifiers, so existing handles to either now see the other's former
// value.
func (s *Store) Swap(idA, idB object.IndirectRef) error {
	valA, err := s.Get(idA)
	if err != nil {
		return err
	}
	valB, err := s.Get(idB)
	if err != nil {
		return err
	}
	s.slots[idA] = valB
	s.slots[idB] = valA
	return nil
}

// AllObjects returns a handle for every identifier currently known to the
// store: everything the xref view knows plus everything allocated locally
// (streams, reserved slots) that the xref has never heard of. Enumeration
// order is deterministic — xref identifiers in the xref view's own order,
// then locally-allocated ones in the order MakeIndirect produced them —
// rather than following Go's unspecified map iteration order.
func (s *Store) AllObjects() []handle.Handle {
	seen := make(map[object.IndirectRef]bool)
	var refs []object.IndirectRef

	if s.xref != nil {
		for _, ref := range s.xref.AllIdentifiers() {
			if !seen[ref] {
				seen[ref] = true
				refs = append(refs, ref)
			}
		}
	}
	for _, ref := range s.insertOrder {
		if !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}

	handles := make([]handle.Handle, len(refs))
	for i, ref := range refs {
		handles[i] = handle.NewIndirect(s, ref)
	}
	return handles
}

// FixDanglingReferences asks the xref to resolve every entry; if the
// first pass reports corruption, it asks the xref to attempt recovery
// and resolves again. Idempotent: a second call is a no-op.
func (s *Store) FixDanglingReferences() error {
	if s.fixedDangling {
		return nil
	}
	ok, err := s.xref.Resolve()
	if err != nil {
		return err
	}
	if !ok {
		s.xref.AttemptRecovery(true)
		ok, err = s.xref.Resolve()
		if err != nil {
			return err
		}
		if !ok {
			return qerr.Damage("xref/unrecoverable", s.filename, "", 0, "cross-reference table is damaged beyond recovery")
		}
	}
	s.fixedDangling = true
	return nil
}

// NextID returns the identifier the next MakeIndirect-family call will
// produce.
func (s *Store) NextID() object.IndirectRef {
	return object.IndirectRef{Number: s.nextID, Generation: 0}
}

func (s *Store) bumpNextID(objNum int) {
	if objNum >= s.nextID {
		s.nextID = objNum + 1
	}
}
