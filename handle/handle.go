package handle

import (
	"fmt"

	"github.com/tsawler/qdocgraph/object"
)

// Resolver is the store-side contract a Handle needs: resolve an
// identifier to its current value, allocate a fresh identifier for a
// value, overwrite a slot's value in place (preserving identity), and
// report which document owns the store. store.Store implements this.
type Resolver interface {
	Get(ref object.IndirectRef) (object.Object, error)
	MakeIndirect(value object.Object) (object.IndirectRef, error)
	Replace(ref object.IndirectRef, value object.Object) error
	DocumentID() uint64
}

// DocumentRef identifies the document a Handle's store belongs to, per
// §4.2's get_document operation.
type DocumentRef struct {
	ID uint64
}

// Handle is either direct (carries its value inline) or indirect (names a
// slot in a Resolver's store). The zero Handle is a direct null.
type Handle struct {
	store  Resolver
	ref    object.IndirectRef
	direct object.Object
}

// NewDirect wraps a value with no identity of its own.
func NewDirect(value object.Object) Handle {
	if value == nil {
		value = object.Null{}
	}
	return Handle{direct: value}
}

// NewIndirect wraps a reference into store's object graph.
func NewIndirect(store Resolver, ref object.IndirectRef) Handle {
	return Handle{store: store, ref: ref}
}

// Null returns a direct null handle.
func Null() Handle { return NewDirect(object.Null{}) }

// IsIndirect reports whether this handle names a store slot rather than
// carrying its value inline.
func (h Handle) IsIndirect() bool { return h.store != nil }

// GetIdentifier returns the (id, generation) pair this handle names.
// Panics if the handle is direct, per §4.2.
func (h Handle) GetIdentifier() (int, int) {
	if !h.IsIndirect() {
		panic("handle: GetIdentifier called on a direct handle")
	}
	return h.ref.Number, h.ref.Generation
}

// GetDocument returns the document owning this handle's store. Panics if
// the handle is direct, per §4.2.
func (h Handle) GetDocument() DocumentRef {
	if !h.IsIndirect() {
		panic("handle: GetDocument called on a direct handle")
	}
	return DocumentRef{ID: h.store.DocumentID()}
}

// value resolves the handle's own value: for an indirect handle this asks
// the store for the current slot contents (parsed on demand by the store;
// a Reserved slot comes back as Reserved); for a direct handle it is simply the
// value the handle was constructed with. It does not descend into
// children — a Dict value may itself contain IndirectRef entries, which
// remain unresolved until a child Handle is requested for them.
func (h Handle) value() (object.Object, error) {
	if h.IsIndirect() {
		return h.store.Get(h.ref)
	}
	return h.direct, nil
}

// TypeCode returns the resolved value's type tag.
func (h Handle) TypeCode() (object.ObjectType, error) {
	v, err := h.value()
	if err != nil {
		return 0, err
	}
	return v.Type(), nil
}

// Value returns the handle's own resolved value without descending into
// children: a Dict/Array's entries may themselves be IndirectRef values,
// which stay unresolved until a child Handle is requested for them via
// Get/Item. Exported for callers (the foreign copier, diagnostics) that
// need the concrete scalar or container value rather than one of the
// predicate/accessor views below.
func (h Handle) Value() (object.Object, error) { return h.value() }

func (h Handle) is(t object.ObjectType) bool {
	code, err := h.TypeCode()
	return err == nil && code == t
}

// IsArray reports whether the resolved value is an Array.
func (h Handle) IsArray() bool { return h.is(object.ObjArray) }

// IsDictionary reports whether the resolved value is a Dict.
func (h Handle) IsDictionary() bool { return h.is(object.ObjDict) }

// IsStream reports whether the resolved value is a Stream.
func (h Handle) IsStream() bool { return h.is(object.ObjStream) }

// IsNull reports whether the resolved value is Null.
func (h Handle) IsNull() bool { return h.is(object.ObjNull) }

// IsPageObject reports whether the resolved value is a dictionary whose
// /Type is /Page.
func (h Handle) IsPageObject() bool { return h.dictTypeIs("Page") }

// IsPagesObject reports whether the resolved value is a dictionary whose
// /Type is /Pages.
func (h Handle) IsPagesObject() bool { return h.dictTypeIs("Pages") }

func (h Handle) dictTypeIs(want object.Name) bool {
	dict, ok := h.asDict()
	if !ok {
		return false
	}
	name, ok := dict.GetName("Type")
	return ok && name == want
}

func (h Handle) asDict() (object.Dict, bool) {
	v, err := h.value()
	if err != nil {
		return object.Dict{}, false
	}
	d, ok := v.(object.Dict)
	return d, ok
}

func (h Handle) asArray() (object.Array, bool) {
	v, err := h.value()
	if err != nil {
		return nil, false
	}
	a, ok := v.(object.Array)
	return a, ok
}

func (h Handle) asStream() (*object.Stream, bool) {
	v, err := h.value()
	if err != nil {
		return nil, false
	}
	s, ok := v.(*object.Stream)
	return s, ok
}

// childHandle wraps a value found inside a container: an IndirectRef
// becomes a lazily-resolved indirect Handle against the same store; any
// other value becomes a direct handle carrying it inline.
func (h Handle) childHandle(v object.Object) Handle {
	if ref, ok := v.(object.IndirectRef); ok && h.store != nil {
		return NewIndirect(h.store, ref)
	}
	return NewDirect(v)
}

// Length returns the number of items in an array handle, or 0 if the
// resolved value is not an array.
func (h Handle) Length() int {
	a, ok := h.asArray()
	if !ok {
		return 0
	}
	return a.Len()
}

// Item returns the element at index as a child handle, or a null handle
// if out of range or this is not an array.
func (h Handle) Item(index int) Handle {
	a, ok := h.asArray()
	if !ok {
		return Null()
	}
	v := a.Get(index)
	if v == nil {
		return Null()
	}
	return h.childHandle(v)
}

// Append adds item to the end of an array handle, persisting the updated
// array through the store if this handle is indirect.
func (h Handle) Append(item Handle) error {
	a, ok := h.asArray()
	if !ok {
		return fmt.Errorf("handle: Append called on non-array")
	}
	newArr := make(object.Array, len(a)+1)
	copy(newArr, a)
	newArr[len(a)] = item.storedValue()
	return h.writeBack(newArr)
}

// Set replaces the element at index in an array handle.
func (h Handle) Set(index int, item Handle) error {
	a, ok := h.asArray()
	if !ok {
		return fmt.Errorf("handle: Set called on non-array")
	}
	if index < 0 || index >= len(a) {
		return fmt.Errorf("handle: Set index %d out of range [0, %d)", index, len(a))
	}
	newArr := make(object.Array, len(a))
	copy(newArr, a)
	newArr[index] = item.storedValue()
	return h.writeBack(newArr)
}

// HasKey reports whether the resolved dictionary has key.
func (h Handle) HasKey(key object.Name) bool {
	d, ok := h.asDict()
	return ok && d.Has(key)
}

// Keys returns the resolved dictionary's keys in insertion order.
func (h Handle) Keys() []object.Name {
	d, ok := h.asDict()
	if !ok {
		return nil
	}
	return d.Keys()
}

// Get returns the value bound to key as a child handle, or a null handle
// if absent.
func (h Handle) Get(key object.Name) Handle {
	d, ok := h.asDict()
	if !ok {
		return Null()
	}
	v := d.Get(key)
	if v == nil {
		return Null()
	}
	return h.childHandle(v)
}

// Replace binds key to value in the resolved dictionary, persisting
// through the store if this handle is indirect.
func (h Handle) Replace(key object.Name, value Handle) error {
	d, ok := h.asDict()
	if !ok {
		return fmt.Errorf("handle: Replace called on non-dictionary")
	}
	return h.writeBack(d.Set(key, value.storedValue()))
}

// Remove deletes key from the resolved dictionary, persisting through the
// store if this handle is indirect.
func (h Handle) Remove(key object.Name) error {
	d, ok := h.asDict()
	if !ok {
		return fmt.Errorf("handle: Remove called on non-dictionary")
	}
	return h.writeBack(d.Delete(key))
}

// GetDict returns the stream's dictionary as a handle.
func (h Handle) GetDict() Handle {
	s, ok := h.asStream()
	if !ok {
		return Null()
	}
	return h.childHandle(s.Dict)
}

// GetRawData returns the stream's encoded bytes if resident in memory.
func (h Handle) GetRawData() ([]byte, bool) {
	s, ok := h.asStream()
	if !ok {
		return nil, false
	}
	return s.RawBytes()
}

// ReplaceData installs new data, filter, and decode parameters on a
// stream handle.
func (h Handle) ReplaceData(source object.DataSource, filter, decodeParms object.Object) error {
	s, ok := h.asStream()
	if !ok {
		return fmt.Errorf("handle: ReplaceData called on non-stream")
	}
	s.ReplaceData(source, filter, decodeParms)
	return h.writeBack(s)
}

// PipeData writes the stream's bytes (decoded, if requested) to pl.
// Returns false (and records no error of its own — the caller inspects
// warnings) if the stream could not be read and willRetry doesn't apply.
func (h Handle) PipeData(pl object.Pipeline, decode, suppressWarnings, willRetry bool) bool {
	s, ok := h.asStream()
	if !ok {
		return false
	}

	if provider, ok := s.Source.(object.ProviderData); ok {
		ref, _ := h.identifierOrZero()
		return provider.Provider.ProvideStreamData(ref, pl, suppressWarnings, willRetry)
	}

	if input, ok := s.Source.(object.InputStreamData); ok {
		raw, err := input.Source.ReadAt(input.Offset, input.Length)
		if err != nil {
			return false
		}
		if input.Decrypt != nil {
			raw, err = input.Decrypt(raw)
			if err != nil {
				return false
			}
		}
		data := raw
		if decode {
			data, err = s.DecodeBytes(raw)
			if err != nil {
				return false
			}
		}
		if _, err := pl.Write(data); err != nil {
			return false
		}
		return pl.Finish() == nil
	}

	var data []byte
	var err error
	if decode {
		data, err = s.Decode()
	} else {
		raw, ok := s.RawBytes()
		if !ok {
			return false
		}
		data = raw
	}
	if err != nil {
		return false
	}
	if _, err := pl.Write(data); err != nil {
		return false
	}
	return pl.Finish() == nil
}

func (h Handle) identifierOrZero() (object.IndirectRef, bool) {
	if !h.IsIndirect() {
		return object.IndirectRef{}, false
	}
	return h.ref, true
}

// storedValue returns the raw value this handle contributes when it is
// installed as a container element: an indirect handle contributes its
// IndirectRef (preserving the reference rather than inlining the target),
// a direct handle contributes its value verbatim.
func (h Handle) storedValue() object.Object {
	if h.IsIndirect() {
		return h.ref
	}
	return h.direct
}

// writeBack persists a modified container value: through the store if
// this handle is indirect (preserving the slot's identity), or in place
// on the handle's own direct value otherwise. Because Handle is a value
// type, direct writes only take effect through the handle on which
// writeBack was called — callers mutating a direct container should use
// the handle returned by accessors, not a copy made before the mutation.
func (h *Handle) writeBack(value object.Object) error {
	if h.IsIndirect() {
		return h.store.Replace(h.ref, value)
	}
	h.direct = value
	return nil
}

// MakeDirect deep-copies an indirect sub-graph into a direct one,
// substituting every nested IndirectRef with its resolved value. Returns
// an error if a cycle is found during the traversal — a well-formed PDF
// object graph copied this way must be acyclic by construction (cyclic
// graphs are handled by the copier package, which works in indirect
// space throughout).
func (h Handle) MakeDirect() (Handle, error) {
	visited := make(map[object.IndirectRef]bool)
	if h.IsIndirect() {
		visited[h.ref] = true
	}
	v, err := h.makeDirectValue(visited)
	if err != nil {
		return Handle{}, err
	}
	return NewDirect(v), nil
}

func (h Handle) makeDirectValue(visited map[object.IndirectRef]bool) (object.Object, error) {
	v, err := h.value()
	if err != nil {
		return nil, err
	}

	switch val := v.(type) {
	case object.Array:
		out := make(object.Array, len(val))
		for i, elem := range val {
			child := h.childHandle(elem)
			if err := child.checkCycle(visited); err != nil {
				return nil, err
			}
			resolved, err := child.makeDirectValue(visited)
			if err != nil {
				return nil, err
			}
			child.unmarkCycle(visited)
			out[i] = resolved
		}
		return out, nil

	case object.Dict:
		out := object.NewDict()
		for _, k := range val.Keys() {
			child := h.childHandle(val.Get(k))
			if err := child.checkCycle(visited); err != nil {
				return nil, err
			}
			resolved, err := child.makeDirectValue(visited)
			if err != nil {
				return nil, err
			}
			child.unmarkCycle(visited)
			out = out.Set(k, resolved)
		}
		return out, nil

	case *object.Stream:
		dictHandle := h.childHandle(val.Dict)
		resolvedDict, err := dictHandle.makeDirectValue(visited)
		if err != nil {
			return nil, err
		}
		return &object.Stream{Dict: resolvedDict.(object.Dict), Source: val.Source}, nil

	default:
		return v, nil
	}
}

func (h Handle) checkCycle(visited map[object.IndirectRef]bool) error {
	if !h.IsIndirect() {
		return nil
	}
	if visited[h.ref] {
		return fmt.Errorf("handle: cycle detected at %d %d R during MakeDirect", h.ref.Number, h.ref.Generation)
	}
	visited[h.ref] = true
	return nil
}

func (h Handle) unmarkCycle(visited map[object.IndirectRef]bool) {
	if h.IsIndirect() {
		delete(visited, h.ref)
	}
}
