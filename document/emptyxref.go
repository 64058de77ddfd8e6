package document

import "github.com/tsawler/qdocgraph/object"

// emptyXrefView is the store.XrefView used by Context.EmptyPDF: there is
// no backing file or byte-level xref to read, only a trailer seeded with
// a freshly reserved catalog and pages root (spec §4.8's empty_pdf).
//
// makeIndirect is bound to the owning store after construction (Context
// builds the store and the view together, then closes this loop) rather
// than this type importing the store package directly, keeping the
// document -> store dependency one-way.
type emptyXrefView struct {
	makeIndirect func(object.Object) (object.IndirectRef, error)
	trailer      object.Dict
}

func newEmptyXrefView() *emptyXrefView {
	return &emptyXrefView{trailer: object.NewDict()}
}

func (e *emptyXrefView) Initialize() error { return nil }

func (e *emptyXrefView) InitializeEmpty() (object.IndirectRef, error) {
	pagesRef, err := e.makeIndirect(object.NewDict().
		Set("Type", object.Name("Pages")).
		Set("Kids", object.Array{}).
		Set("Count", object.Int(0)))
	if err != nil {
		return object.IndirectRef{}, err
	}
	catalogRef, err := e.makeIndirect(object.NewDict().
		Set("Type", object.Name("Catalog")).
		Set("Pages", pagesRef))
	if err != nil {
		return object.IndirectRef{}, err
	}
	e.trailer = object.NewDict().Set("Root", catalogRef)
	return catalogRef, nil
}

// Trailer returns the trailer seeded by InitializeEmpty.
func (e *emptyXrefView) Trailer() object.Dict { return e.trailer }

func (e *emptyXrefView) Resolve() (bool, error)                     { return true, nil }
func (e *emptyXrefView) Size() int                                  { return 0 }
func (e *emptyXrefView) HasIdentifier(ref object.IndirectRef) bool  { return false }
func (e *emptyXrefView) AllIdentifiers() []object.IndirectRef       { return nil }
func (e *emptyXrefView) IgnoreStreams(flag bool)                    {}
func (e *emptyXrefView) AttemptRecovery(flag bool)                  {}
func (e *emptyXrefView) Initialized() bool                          { return true }
func (e *emptyXrefView) Show() string                               { return "empty document" }
func (e *emptyXrefView) ResolveEntry(ref object.IndirectRef) (object.Object, error) {
	return object.Null{}, nil
}
