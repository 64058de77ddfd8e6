package copier

import (
	"errors"
	"testing"

	"github.com/tsawler/qdocgraph/handle"
	"github.com/tsawler/qdocgraph/object"
	"github.com/tsawler/qdocgraph/pipeline"
	"github.com/tsawler/qdocgraph/qerr"
	"github.com/tsawler/qdocgraph/store"
)

// fakeTarget adapts a plain store.Store to the Target interface, the way
// document.Context will.
type fakeTarget struct {
	store             *store.Store
	immediateCopyFrom bool
}

func (f *fakeTarget) NewReservedRef() (object.IndirectRef, error) { return f.store.NewReserved() }
func (f *fakeTarget) NewStreamRef() (object.IndirectRef, error)   { return f.store.NewStream() }
func (f *fakeTarget) ReplaceReserved(ref object.IndirectRef, value object.Object) error {
	return f.store.ReplaceReserved(ref, value)
}
func (f *fakeTarget) Replace(ref object.IndirectRef, value object.Object) error {
	return f.store.Replace(ref, value)
}
func (f *fakeTarget) ImmediateCopyFrom() bool { return f.immediateCopyFrom }
func (f *fakeTarget) HandleFor(ref object.IndirectRef) handle.Handle {
	return handle.NewIndirect(f.store, ref)
}

func newTestStore(id uint64) *store.Store { return store.New(id, nil, "test.pdf") }

func TestCopyRewritesNestedIndirectReference(t *testing.T) {
	source := newTestStore(1)
	dest := &fakeTarget{store: newTestStore(2)}

	childRef, err := source.MakeIndirect(object.Int(42))
	if err != nil {
		t.Fatalf("MakeIndirect: %v", err)
	}
	rootRef, err := source.MakeIndirect(object.NewDictFrom(object.E("Child", childRef)))
	if err != nil {
		t.Fatalf("MakeIndirect: %v", err)
	}

	foreign := handle.NewIndirect(source, rootRef)
	state := NewState()
	local, err := Copy(dest, state, foreign)
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}

	if !local.IsDictionary() {
		t.Fatalf("copied root is not a dictionary")
	}
	child := local.Get("Child")
	if !child.IsIndirect() {
		t.Fatalf("copied Child is not indirect")
	}
	v, err := child.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if v != object.Int(42) {
		t.Fatalf("copied Child = %v, want 42", v)
	}
}

func TestCopyHandlesCycles(t *testing.T) {
	source := newTestStore(1)
	dest := &fakeTarget{store: newTestStore(2)}

	aRef, err := source.NewReserved()
	if err != nil {
		t.Fatalf("NewReserved: %v", err)
	}
	bRef, err := source.MakeIndirect(object.NewDictFrom(object.E("A", aRef)))
	if err != nil {
		t.Fatalf("MakeIndirect: %v", err)
	}
	if err := source.Replace(aRef, object.NewDictFrom(object.E("B", bRef))); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	foreign := handle.NewIndirect(source, aRef)
	state := NewState()
	local, err := Copy(dest, state, foreign)
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}

	b := local.Get("B")
	if !b.IsIndirect() {
		t.Fatalf("B is not indirect")
	}
	a2 := b.Get("A")
	if !a2.IsIndirect() {
		t.Fatalf("round-tripped A is not indirect")
	}
	aNum, _ := local.GetIdentifier()
	a2Num, _ := a2.GetIdentifier()
	if a2Num != aNum {
		t.Fatalf("cycle did not round-trip to the same local object: got %d, want %d", a2Num, aNum)
	}
}

func TestCopySharesResidentStreamBuffer(t *testing.T) {
	source := newTestStore(1)
	dest := &fakeTarget{store: newTestStore(2)}

	streamRef, err := source.MakeIndirect(&object.Stream{
		Dict:   object.NewDictFrom(object.E("Length", object.Int(5))),
		Source: object.BufferData{Bytes: []byte("hello")},
	})
	if err != nil {
		t.Fatalf("MakeIndirect: %v", err)
	}

	foreign := handle.NewIndirect(source, streamRef)
	state := NewState()
	local, err := Copy(dest, state, foreign)
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}

	if !local.IsStream() {
		t.Fatalf("copied object is not a stream")
	}
	raw, ok := local.GetRawData()
	if !ok || string(raw) != "hello" {
		t.Fatalf("GetRawData() = (%q, %v), want (\"hello\", true)", raw, ok)
	}
}

type constProvider struct{ data []byte }

func (c constProvider) ProvideStreamData(ref object.IndirectRef, pl object.Pipeline, suppressWarnings, willRetry bool) bool {
	if _, err := pl.Write(c.data); err != nil {
		return false
	}
	return pl.Finish() == nil
}

func TestCopyDefersStreamDataToProvider(t *testing.T) {
	source := newTestStore(1)
	dest := &fakeTarget{store: newTestStore(2)}

	streamRef, err := source.MakeIndirect(&object.Stream{
		Dict:   object.NewDict(),
		Source: object.ProviderData{Provider: constProvider{data: []byte("deferred")}},
	})
	if err != nil {
		t.Fatalf("MakeIndirect: %v", err)
	}

	foreign := handle.NewIndirect(source, streamRef)
	state := NewState()
	local, err := Copy(dest, state, foreign)
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}

	if _, ok := local.GetRawData(); ok {
		t.Fatalf("deferred stream should not be resident yet")
	}

	buf := pipeline.NewBuffer()
	if !local.PipeData(buf, false, false, false) {
		t.Fatalf("PipeData on the copied stream failed")
	}
	if string(buf.Bytes()) != "deferred" {
		t.Fatalf("piped data = %q, want %q", buf.Bytes(), "deferred")
	}
}

func TestCopyStopsAtPagesObject(t *testing.T) {
	source := newTestStore(1)
	dest := &fakeTarget{store: newTestStore(2)}

	pagesRef, err := source.MakeIndirect(object.NewDictFrom(
		object.E("Type", object.Name("Pages")),
		object.E("Kids", object.Array{}),
	))
	if err != nil {
		t.Fatalf("MakeIndirect: %v", err)
	}

	foreign := handle.NewIndirect(source, pagesRef)
	state := NewState()
	local, err := Copy(dest, state, foreign)
	if err == nil {
		t.Fatalf("Copy of a /Pages object should report a warning, got nil error")
	}
	var warn *qerr.Warning
	if !errors.As(err, &warn) {
		t.Fatalf("expected a *qerr.Warning, got %T: %v", err, err)
	}
	if !local.IsNull() {
		t.Fatalf("Copy of a /Pages object should return a null handle")
	}
}

func TestCopyRejectsDirectHandle(t *testing.T) {
	dest := &fakeTarget{store: newTestStore(2)}
	state := NewState()
	_, err := Copy(dest, state, handle.NewDirect(object.Int(1)))
	if err == nil {
		t.Fatalf("expected an error copying a direct handle")
	}
}
