package copier

import (
	"fmt"

	"github.com/tsawler/qdocgraph/handle"
	"github.com/tsawler/qdocgraph/object"
	"github.com/tsawler/qdocgraph/pipeline"
	"github.com/tsawler/qdocgraph/qerr"
)

// Target is the destination-document contract Copy needs: allocate a
// reserved (not-yet-valued) slot or a fresh stream slot, overwrite a
// reserved slot once its copy is ready, overwrite a stream slot with its
// rebuilt dictionary and data source, report whether stream data should
// be pulled resident immediately rather than deferred to a provider, and
// hand back a Handle for a reference this package allocated.
// document.Context satisfies this structurally.
type Target interface {
	NewReservedRef() (object.IndirectRef, error)
	NewStreamRef() (object.IndirectRef, error)
	ReplaceReserved(ref object.IndirectRef, value object.Object) error
	Replace(ref object.IndirectRef, value object.Object) error
	ImmediateCopyFrom() bool
	HandleFor(ref object.IndirectRef) handle.Handle
}

// State is the per-(destination, source) bookkeeping a copy needs:
// the foreign-to-local reference map (persists across multiple Copy
// calls against the same source document, so objects shared by two
// copied subgraphs are copied once), the list of objects awaiting their
// rewritten value, the in-progress cycle-detection set (empty between
// calls), and the stream data provider lazily created the first time a
// foreign stream's data has to be deferred rather than copied resident.
// Grounded on QPDF.cc's ObjCopier, one of which the owning QPDF keeps per
// foreign source (m->object_copiers, keyed by the source's unique id).
type State struct {
	objectMap  map[object.IndirectRef]object.IndirectRef
	toCopy     []handle.Handle
	visiting   map[object.IndirectRef]bool
	streamData *CopiedStreamDataProvider
}

// NewState returns an empty State for one (destination, source) document
// pair.
func NewState() *State {
	return &State{
		objectMap: make(map[object.IndirectRef]object.IndirectRef),
		visiting:  make(map[object.IndirectRef]bool),
	}
}

// Copy brings foreign (an indirect handle belonging to some other
// document's store) into dest, renumbering every indirect reference it
// reaches along the way, and returns a handle to the local copy.
//
// If the traversal never reaches foreign itself — the only way that
// happens is foreign being a /Pages object, which reserveObjects refuses
// to cross — Copy returns a direct null handle and a *qerr.Warning
// (not a *qerr.DamageError): the operation is not fatal, but the caller
// should record the warning rather than silently accept a null in place
// of the object it asked to copy.
func Copy(dest Target, state *State, foreign handle.Handle) (handle.Handle, error) {
	if !foreign.IsIndirect() {
		return handle.Handle{}, qerr.Logic("copier: Copy requires an indirect handle, got a direct value")
	}
	if len(state.visiting) != 0 {
		return handle.Handle{}, qerr.Logic("copier: visiting set is not empty at the start of Copy")
	}

	if err := reserve(dest, state, foreign, true); err != nil {
		return handle.Handle{}, err
	}
	if len(state.visiting) != 0 {
		return handle.Handle{}, qerr.Logic("copier: visiting set is not empty after reserving objects")
	}

	toCopy := state.toCopy
	state.toCopy = nil
	for _, entry := range toCopy {
		ref := sourceRef(entry)
		local := state.objectMap[ref]

		typeCode, err := entry.TypeCode()
		if err != nil {
			return handle.Handle{}, fmt.Errorf("copier: resolving type of %s while rewriting: %w", ref, err)
		}

		if typeCode == object.ObjStream {
			if err := rewriteStream(dest, state, entry, local); err != nil {
				return handle.Handle{}, err
			}
			continue
		}

		value, err := rewriteForeign(dest, state, entry, true)
		if err != nil {
			return handle.Handle{}, err
		}
		if err := dest.ReplaceReserved(local, value); err != nil {
			return handle.Handle{}, err
		}
	}

	ref := sourceRef(foreign)
	local, ok := state.objectMap[ref]
	if !ok {
		return handle.Null(), qerr.NewWarning(
			"copier/pages-escaped", "", ref.String(), 0,
			"unexpected reference to a /Pages object while copying a foreign object; replacing with null",
		)
	}
	return dest.HandleFor(local), nil
}

// reserve is Pass 1 (QPDF.cc's reserveObjects): walk foreign's reachable
// graph, allocating a local slot for every indirect object encountered
// and recording it in state.objectMap, without yet resolving any of the
// references the copies will contain. top is true only for the object
// Copy was originally called with; it controls the /Pages-boundary and
// page-reentry rules below.
func reserve(dest Target, state *State, foreign handle.Handle, top bool) error {
	typeCode, err := foreign.TypeCode()
	if err != nil {
		return fmt.Errorf("copier: resolving type while reserving: %w", err)
	}
	if typeCode == object.ObjReserved {
		return qerr.Logic("copier: attempted to copy a foreign object that is itself Reserved")
	}
	if foreign.IsPagesObject() {
		// Never follow into a /Pages node: copying one page must never
		// drag the rest of the document's page tree along with it.
		return nil
	}

	if foreign.IsIndirect() {
		ref := sourceRef(foreign)
		if state.visiting[ref] {
			return nil
		}
		state.visiting[ref] = true

		local, already := state.objectMap[ref]
		if already {
			// A page object may be reserved once as a stopped-at nested
			// reference (its slot is still Reserved) and later become the
			// top-level object of its own Copy call: that reentry needs to
			// fall through and actually copy it this time.
			if !(top && foreign.IsPageObject() && isReserved(dest.HandleFor(local))) {
				delete(state.visiting, ref)
				return nil
			}
		} else {
			if typeCode == object.ObjStream {
				local, err = dest.NewStreamRef()
			} else {
				local, err = dest.NewReservedRef()
			}
			if err != nil {
				delete(state.visiting, ref)
				return fmt.Errorf("copier: reserving a local slot for %s: %w", ref, err)
			}
			state.objectMap[ref] = local

			if !top && foreign.IsPageObject() {
				// A reference to a page found somewhere other than at the
				// root: stop here. It stays mapped to its Reserved
				// placeholder until (if ever) it is copied in its own
				// right.
				delete(state.visiting, ref)
				return nil
			}
		}

		state.toCopy = append(state.toCopy, foreign)
		defer delete(state.visiting, ref)
	}

	switch typeCode {
	case object.ObjArray:
		for i := 0; i < foreign.Length(); i++ {
			if err := reserve(dest, state, foreign.Item(i), false); err != nil {
				return err
			}
		}
	case object.ObjDict:
		for _, k := range foreign.Keys() {
			if err := reserve(dest, state, foreign.Get(k), false); err != nil {
				return err
			}
		}
	case object.ObjStream:
		dict := foreign.GetDict()
		for _, k := range dict.Keys() {
			if err := reserve(dest, state, dict.Get(k), false); err != nil {
				return err
			}
		}
	}

	return nil
}

// rewriteForeign is Pass 2 for everything but a stream's own slot
// (QPDF.cc's replaceForeignIndirectObjects): it produces the value to
// install in place of foreign, substituting every non-top-level indirect
// reference with its mapped local reference. A stream can never appear
// here except as the top-level entry of a to_copy item — PDF streams are
// always indirect objects, so a nested reference to one is caught by the
// "!top && IsIndirect()" branch before typeCode is even considered,
// which is why this function has no Stream case of its own.
func rewriteForeign(dest Target, state *State, foreign handle.Handle, top bool) (object.Object, error) {
	if !top && foreign.IsIndirect() {
		ref := sourceRef(foreign)
		local, ok := state.objectMap[ref]
		if !ok {
			// A reference to a /Pages node we refused to traverse into.
			return object.Null{}, nil
		}
		return local, nil
	}

	typeCode, err := foreign.TypeCode()
	if err != nil {
		return nil, fmt.Errorf("copier: resolving type while rewriting: %w", err)
	}

	switch typeCode {
	case object.ObjArray:
		out := make(object.Array, foreign.Length())
		for i := range out {
			v, err := rewriteForeign(dest, state, foreign.Item(i), false)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case object.ObjDict:
		out := object.NewDict()
		for _, k := range foreign.Keys() {
			v, err := rewriteForeign(dest, state, foreign.Get(k), false)
			if err != nil {
				return nil, err
			}
			out = out.Set(k, v)
		}
		return out, nil

	default:
		v, err := foreign.Value()
		if err != nil {
			return nil, fmt.Errorf("copier: reading scalar value while rewriting: %w", err)
		}
		return v, nil
	}
}

// rewriteStream handles a to_copy entry that is itself a stream: rebuild
// its dictionary the same way rewriteForeign would, then install its data
// behind one of the three reachable tiers (installStreamData), and
// install both into the already-reserved local stream slot via Replace
// rather than ReplaceReserved — the slot was never Reserved to begin
// with, since reserve allocates a real stream slot for it up front.
func rewriteStream(dest Target, state *State, foreign handle.Handle, local object.IndirectRef) error {
	foreignDict := foreign.GetDict()
	newDict := object.NewDict()
	for _, k := range foreignDict.Keys() {
		v, err := rewriteForeign(dest, state, foreignDict.Get(k), false)
		if err != nil {
			return err
		}
		newDict = newDict.Set(k, v)
	}

	source, err := installStreamData(dest, state, foreign, local)
	if err != nil {
		return err
	}

	return dest.Replace(local, &object.Stream{Dict: newDict, Source: source})
}

// installStreamData picks the data source for a newly copied stream, in
// the priority order QPDF.cc's copyStreamData follows:
//
//  1. The foreign stream's bytes are already resident (BufferData):
//     just copy them.
//  2. They are not resident, but the destination wants stream data
//     pulled in immediately rather than deferred (immediate_copy_from):
//     pipe the foreign stream's raw bytes into a Buffer and copy those.
//  3. Otherwise, defer: register a provider that pipes from the foreign
//     handle lazily, the first time something actually asks for this
//     stream's data.
//
// QPDF.cc's fourth tier, ForeignStreamData, re-opens the foreign file and
// reads a raw byte range without needing the foreign QPDF object at all.
// There is no separate branch for it here: a foreign stream whose data is
// input-backed (object.InputStreamData, not yet resident) falls to tier 3
// like any other non-resident stream, and CopiedStreamDataProvider's
// ProvideStreamData pipes through foreign.PipeData exactly as it would for
// a provider-backed one — PipeData's own InputStreamData branch is what
// reopens the source input and decrypts, playing the role QPDF.cc gives a
// distinct tier.
func installStreamData(dest Target, state *State, foreign handle.Handle, local object.IndirectRef) (object.DataSource, error) {
	if raw, ok := foreign.GetRawData(); ok {
		return object.BufferData{Bytes: append([]byte(nil), raw...)}, nil
	}

	if dest.ImmediateCopyFrom() {
		buf := pipeline.NewBuffer()
		if foreign.PipeData(buf, false, true, false) {
			return object.BufferData{Bytes: buf.Bytes()}, nil
		}
	}

	if state.streamData == nil {
		state.streamData = newCopiedStreamDataProvider()
	}
	state.streamData.register(local, foreign)
	return object.ProviderData{Provider: state.streamData}, nil
}

func sourceRef(h handle.Handle) object.IndirectRef {
	num, gen := h.GetIdentifier()
	return object.IndirectRef{Number: num, Generation: gen}
}

func isReserved(h handle.Handle) bool {
	t, err := h.TypeCode()
	return err == nil && t == object.ObjReserved
}
