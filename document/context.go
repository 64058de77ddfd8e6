package document

import (
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/tsawler/qdocgraph/copier"
	"github.com/tsawler/qdocgraph/encryption"
	"github.com/tsawler/qdocgraph/handle"
	"github.com/tsawler/qdocgraph/inputsource"
	"github.com/tsawler/qdocgraph/object"
	"github.com/tsawler/qdocgraph/qerr"
	"github.com/tsawler/qdocgraph/store"
	"github.com/tsawler/qdocgraph/xrefview"
)

var nextDocumentID uint64

// xrefView is everything Context needs from whichever concrete xref view
// it built: the store.XrefView contract the store itself calls, plus the
// trailer dictionary neither FileXRefView nor emptyXrefView need to
// expose through that narrower interface.
type xrefView interface {
	store.XrefView
	Trailer() object.Dict
}

// Context is a single open PDF document: the object store, the xref view
// feeding it, the input bytes it was read from, its encryption state (if
// any), and the bookkeeping spec §4.5 describes. A zero Context is not
// usable; construct one with New, then call one of the process_*
// operations or EmptyPDF before doing anything else.
type Context struct {
	id uint64

	input    inputsource.InputSource
	filename string
	version  string

	xref  xrefView
	store *store.Store

	password          string
	passwordIsHexKey  bool
	encryptionHandler *encryption.Handler

	warnings         []*qerr.Warning
	suppressWarnings bool
	maxWarnings      int
	attemptRecovery  bool
	immediateCopyFrom bool
	checkMode        bool

	lastObjectDesc string

	foreignCopiers map[uint64]*copier.State
}

// New allocates a Context with a fresh process-wide unique id. It holds
// no document yet — call ProcessFile/ProcessMemoryFile/ProcessInputSource
// or EmptyPDF before using it.
func New() *Context {
	return &Context{
		id:             atomic.AddUint64(&nextDocumentID, 1),
		foreignCopiers: make(map[uint64]*copier.State),
	}
}

// ProcessFile opens path and parses it.
func (c *Context) ProcessFile(path, password string) error {
	src, err := inputsource.OpenFile(path)
	if err != nil {
		return err
	}
	return c.ProcessInputSource(src, path, password)
}

// ProcessMemoryFile parses data as a PDF held entirely in memory. desc is
// a caller-chosen label used in diagnostics.
func (c *Context) ProcessMemoryFile(data []byte, desc, password string) error {
	return c.ProcessInputSource(inputsource.NewMemoryInputSource(data, desc), desc, password)
}

// ProcessInputSource parses src, which the caller has already opened.
func (c *Context) ProcessInputSource(src inputsource.InputSource, desc, password string) error {
	c.input = src
	c.filename = desc
	return c.parse(password)
}

// parse runs the lifecycle spec §4.8 describes: locate the header
// (defaulting the version and warning if none is found), read the xref,
// initialize encryption if the trailer carries an /Encrypt entry, then
// confirm the catalog looks sane enough to use.
func (c *Context) parse(password string) error {
	c.password = password

	if offset, version, found := inputsource.FindHeader(c.input); found {
		if offset != 0 {
			c.input = inputsource.NewHeaderOffset(c.input, offset)
		}
		c.version = version
	} else {
		c.version = "1.2"
		if err := c.warn(qerr.NewWarning(
			"header/not-found", c.filename, "", 0,
			"no %PDF- header found in the first 1024 bytes; defaulting to version 1.2",
		)); err != nil {
			return err
		}
	}

	parser := xrefview.NewXRefParser(c.input)
	fxv := NewFileXRefView(parser, c.filename)
	c.xref = fxv
	c.store = store.New(c.id, fxv, c.filename)
	if c.attemptRecovery {
		fxv.AttemptRecovery(true)
	}

	if err := c.store.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize cross-reference data: %w", err)
	}

	trailer := fxv.Trailer()

	if encObj := trailer.Get("Encrypt"); encObj != nil {
		encDict, err := c.resolveDict(encObj, "/Encrypt")
		if err != nil {
			return err
		}
		handler, err := encryption.New(encDict, firstIDBytes(trailer), c.password, c.passwordIsHexKey)
		if err != nil {
			return fmt.Errorf("failed to initialize encryption: %w", err)
		}
		c.encryptionHandler = handler
		fxv.SetEncryptionHandler(handler)
	}

	if fxv.Size() > 0 {
		rootObj := trailer.Get("Root")
		if rootObj == nil {
			return c.damagedPDF("trailer/missing-root", 0, "trailer is missing /Root")
		}
		root := c.handleForValue(rootObj)
		if !root.HasKey("Pages") {
			return c.damagedPDF("catalog/missing-pages", 0, "document catalog is missing /Pages")
		}
	}

	return nil
}

func (c *Context) resolveDict(v object.Object, what string) (object.Dict, error) {
	if ref, ok := v.(object.IndirectRef); ok {
		resolved, err := c.store.Get(ref)
		if err != nil {
			return object.Dict{}, fmt.Errorf("failed to resolve %s: %w", what, err)
		}
		v = resolved
	}
	d, ok := v.(object.Dict)
	if !ok {
		return object.Dict{}, c.damagedPDF("trailer/not-a-dict", 0, fmt.Sprintf("%s is not a dictionary: %T", what, v))
	}
	return d, nil
}

func firstIDBytes(trailer object.Dict) []byte {
	idArr, ok := trailer.GetArray("ID")
	if !ok || len(idArr) == 0 {
		return nil
	}
	s, ok := idArr[0].(object.String)
	if !ok {
		return nil
	}
	return []byte(s)
}

func (c *Context) handleForValue(v object.Object) handle.Handle {
	if ref, ok := v.(object.IndirectRef); ok {
		return handle.NewIndirect(c.store, ref)
	}
	return handle.NewDirect(v)
}

// EmptyPDF replaces whatever this Context held with a freshly minted
// minimal document: version 1.3, an empty page tree under a fresh
// catalog, no xref entries to read.
func (c *Context) EmptyPDF() error {
	c.filename = "(empty document)"
	c.version = "1.3"

	view := newEmptyXrefView()
	c.xref = view
	c.store = store.New(c.id, view, c.filename)
	view.makeIndirect = c.store.MakeIndirect

	if _, err := c.store.InitializeEmpty(); err != nil {
		return fmt.Errorf("failed to initialize empty document: %w", err)
	}
	return nil
}

// CloseInputSource releases the underlying file or buffer and installs
// the invalidating sentinel in its place: objects already resolved into
// the store stay readable, but any further attempt to read fresh bytes
// from the input fails with a logic error instead of reading garbage or
// panicking.
func (c *Context) CloseInputSource() error {
	if c.input == nil {
		return nil
	}
	desc := c.input.Description()
	err := c.input.Close()
	c.input = inputsource.NewInvalidated(desc)
	return err
}

// GetRoot returns the document catalog (the trailer's /Root entry).
func (c *Context) GetRoot() handle.Handle {
	return c.handleForValue(c.xref.Trailer().Get("Root"))
}

// GetTrailer returns the trailer dictionary as a direct handle.
func (c *Context) GetTrailer() handle.Handle {
	return handle.NewDirect(c.xref.Trailer())
}

// Version returns the detected (or, for EmptyPDF/missing-header
// documents, assigned) PDF version string.
func (c *Context) Version() string { return c.version }

// ExtensionLevel walks /Root/Extensions/ADBE/ExtensionLevel, returning 0
// if any part of that path is absent or not an integer.
func (c *Context) ExtensionLevel() int {
	v, err := c.GetRoot().Get("Extensions").Get("ADBE").Get("ExtensionLevel").Value()
	if err != nil {
		return 0
	}
	level, ok := v.(object.Int)
	if !ok {
		return 0
	}
	return int(level)
}

// Warnings drains and returns every warning recorded since the last
// call, in the order they were raised.
func (c *Context) Warnings() []*qerr.Warning {
	out := c.warnings
	c.warnings = nil
	return out
}

// warn records w per spec §4.7: always kept in the warnings list (and,
// unless suppressed, logged through the stdlib logger — this repo
// carries no structured logging dependency, matching the teacher, which
// reports diagnostics as returned data rather than through a logging
// library). If max_warnings is configured and reached, warn itself
// escalates to a fatal "too many warnings" damage error.
func (c *Context) warn(w *qerr.Warning) error {
	c.warnings = append(c.warnings, w)
	if !c.suppressWarnings {
		log.Printf("qdocgraph: %s", w.Error())
	}
	if c.maxWarnings > 0 && len(c.warnings) >= c.maxWarnings {
		return qerr.TooManyWarnings(c.filename, len(c.warnings))
	}
	return nil
}

func (c *Context) damagedPDF(code string, offset int64, message string) *qerr.DamageError {
	return qerr.Damage(code, c.filename, c.lastObjectDesc, offset, message)
}

// CopyForeignObject brings foreign, an indirect handle owned by some
// other Context, into this document, per spec §4.6. A per-source-
// document copier.State is created the first time this document copies
// from a given source and reused for every later copy from the same
// source, so repeated copies of shared sub-objects keep sharing local
// identity.
//
// If the copy escapes to an un-copied /Pages node, copier.Copy reports
// that as a *qerr.Warning rather than a fatal error; CopyForeignObject
// folds that into this document's warnings list via warn rather than
// returning it as an error, matching damaged_pdf's non-fatal warning
// path elsewhere in this package.
func (c *Context) CopyForeignObject(foreign handle.Handle) (handle.Handle, error) {
	if !foreign.IsIndirect() {
		return handle.Handle{}, qerr.Logic("copy_foreign_object requires an indirect handle")
	}
	sourceID := foreign.GetDocument().ID
	if sourceID == c.id {
		return handle.Handle{}, qerr.Logic("copy_foreign_object called with an object already owned by this document")
	}

	state, ok := c.foreignCopiers[sourceID]
	if !ok {
		state = copier.NewState()
		c.foreignCopiers[sourceID] = state
	}

	local, err := copier.Copy(c, state, foreign)
	if err != nil {
		var warning *qerr.Warning
		if errors.As(err, &warning) {
			if warnErr := c.warn(warning); warnErr != nil {
				return handle.Handle{}, warnErr
			}
			return local, nil
		}
		return handle.Handle{}, err
	}
	return local, nil
}

// SwapObjects exchanges the values held by two identifiers in this
// document's store, keeping both identities, so existing handles to
// either now see the other's former value.
func (c *Context) SwapObjects(a, b object.IndirectRef) error {
	return c.store.Swap(a, b)
}

// RemoveSecurityRestrictions strips the advisory security hooks spec
// §6 names: /Perms on the catalog, and /AcroForm/SigFlags zeroed rather
// than removed (its absence and its being 0 are not equivalent per the
// AcroForm spec, so a zeroed flag rather than a missing one is what
// "no restrictions" actually means).
func (c *Context) RemoveSecurityRestrictions() error {
	root := c.GetRoot()
	if root.HasKey("Perms") {
		if err := root.Remove("Perms"); err != nil {
			return fmt.Errorf("failed to remove /Perms: %w", err)
		}
	}

	acroForm := root.Get("AcroForm")
	if acroForm.IsDictionary() && acroForm.HasKey("SigFlags") {
		var err error
		if acroForm.IsIndirect() {
			err = acroForm.Replace("SigFlags", handle.NewDirect(object.Int(0)))
		} else {
			// A direct /AcroForm is part of the catalog's own value, so the
			// updated dictionary is written back through root.
			v, _ := acroForm.Value()
			err = root.Replace("AcroForm", handle.NewDirect(v.(object.Dict).Set("SigFlags", object.Int(0))))
		}
		if err != nil {
			return fmt.Errorf("failed to zero /AcroForm/SigFlags: %w", err)
		}
	}
	return nil
}

// FixDanglingReferences asks the xref view to resolve, attempting xref
// recovery if it reports corruption. With a file-backed FileXRefView this
// only confirms the table was read; it does not parse every entry into the
// store. Mirrors spec
// §4.5's fixed_dangling_refs flag; that flag itself lives on store.Store
// rather than being duplicated here, since the store already owns the
// exactly-once bookkeeping this operation needs.
func (c *Context) FixDanglingReferences() error { return c.store.FixDanglingReferences() }

// AllObjects returns a handle for every identifier currently known to
// the store.
func (c *Context) AllObjects() []handle.Handle { return c.store.AllObjects() }

// NumObjects returns the number of distinct identifiers currently known
// to the store.
func (c *Context) NumObjects() int { return len(c.store.AllObjects()) }

// MakeIndirectHandle allocates a fresh identifier holding value and
// returns a handle to it.
func (c *Context) MakeIndirectHandle(value object.Object) (handle.Handle, error) {
	ref, err := c.store.MakeIndirect(value)
	if err != nil {
		return handle.Handle{}, err
	}
	return handle.NewIndirect(c.store, ref), nil
}

// NewReservedHandle allocates an identifier whose slot holds Reserved.
func (c *Context) NewReservedHandle() (handle.Handle, error) {
	ref, err := c.store.NewReserved()
	if err != nil {
		return handle.Handle{}, err
	}
	return handle.NewIndirect(c.store, ref), nil
}

// NewIndirectNullHandle allocates an identifier whose slot holds Null.
func (c *Context) NewIndirectNullHandle() (handle.Handle, error) {
	ref, err := c.store.NewIndirectNull()
	if err != nil {
		return handle.Handle{}, err
	}
	return handle.NewIndirect(c.store, ref), nil
}

// NewStreamHandle allocates an identifier whose slot holds an empty
// stream.
func (c *Context) NewStreamHandle() (handle.Handle, error) {
	ref, err := c.store.NewStream()
	if err != nil {
		return handle.Handle{}, err
	}
	return handle.NewIndirect(c.store, ref), nil
}

// ReplaceObject overwrites ref's slot with value without changing its
// identity.
func (c *Context) ReplaceObject(ref object.IndirectRef, value object.Object) error {
	return c.store.Replace(ref, value)
}

// The methods below satisfy copier.Target, letting CopyForeignObject
// pass this Context straight to copier.Copy as its destination.

func (c *Context) NewReservedRef() (object.IndirectRef, error) { return c.store.NewReserved() }
func (c *Context) NewStreamRef() (object.IndirectRef, error)   { return c.store.NewStream() }

func (c *Context) ReplaceReserved(ref object.IndirectRef, value object.Object) error {
	return c.store.ReplaceReserved(ref, value)
}

func (c *Context) Replace(ref object.IndirectRef, value object.Object) error {
	return c.store.Replace(ref, value)
}

func (c *Context) ImmediateCopyFrom() bool { return c.immediateCopyFrom }

func (c *Context) HandleFor(ref object.IndirectRef) handle.Handle {
	return handle.NewIndirect(c.store, ref)
}

// Configuration toggles (spec §4.5).

func (c *Context) SetSuppressWarnings(v bool)   { c.suppressWarnings = v }
func (c *Context) SetMaxWarnings(n int)         { c.maxWarnings = n }
func (c *Context) SetImmediateCopyFrom(v bool)  { c.immediateCopyFrom = v }
func (c *Context) SetCheckMode(v bool)          { c.checkMode = v }
func (c *Context) SetPasswordIsHexKey(v bool)   { c.passwordIsHexKey = v }

func (c *Context) SetAttemptRecovery(v bool) {
	c.attemptRecovery = v
	if c.xref != nil {
		c.xref.AttemptRecovery(v)
	}
}
