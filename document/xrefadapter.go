package document

import (
	"fmt"
	"sort"

	"github.com/tsawler/qdocgraph/encryption"
	"github.com/tsawler/qdocgraph/object"
	"github.com/tsawler/qdocgraph/qerr"
	"github.com/tsawler/qdocgraph/xrefview"
)

// FileXRefView adapts xrefview's byte-level tokenizer and xref-table
// reader into the store.XrefView contract (spec §4.4). It owns file
// offsets and object-stream locations; store.Store owns the resulting
// values.
//
// Grounded on tsawler-tabula's reader.Reader.GetObject (object-number-only
// lookup, ignoring generation — matching what most real-world PDF readers
// tolerate) generalized to also fall through to compressed (object-stream)
// entries, which the teacher never read.
type FileXRefView struct {
	filename string
	parser   *xrefview.XRefParser
	table    *xrefview.XRefTable

	objStreams      map[int]*xrefview.ObjectStream
	ignoreStreams   bool
	attemptRecovery bool
	initialized     bool

	handler *encryption.Handler
}

// SetEncryptionHandler installs the security handler used to decrypt
// strings and stream data read from here on. Context calls this once,
// right after deriving the handler from the trailer's /Encrypt entry and
// the caller's password — before that point (including while Initialize
// itself reads the xref, and while the /Encrypt dictionary's own strings
// are read) handler is nil and ResolveEntry returns bytes as-is, which is
// correct: the /Encrypt dictionary's own strings are never encrypted.
func (fx *FileXRefView) SetEncryptionHandler(h *encryption.Handler) { fx.handler = h }

// NewFileXRefView builds a FileXRefView that reads through parser.
func NewFileXRefView(parser *xrefview.XRefParser, filename string) *FileXRefView {
	return &FileXRefView{
		filename:   filename,
		parser:     parser,
		objStreams: make(map[int]*xrefview.ObjectStream),
	}
}

// Initialize reads the xref section the file's startxref points to, and
// any /Prev chain of incremental updates, merging them so the most recent
// generation of an object number wins.
func (fx *FileXRefView) Initialize() error {
	tables, err := fx.parser.ParseAllXRefs()
	if err != nil {
		return fmt.Errorf("failed to read cross-reference data: %w", err)
	}
	fx.table = xrefview.MergeXRefTables(tables...)
	fx.initialized = true
	return nil
}

// InitializeEmpty is never called on a FileXRefView: a document built
// from a file always has a real xref to read. Only the in-memory
// emptyXrefView (used by document.Context.EmptyPDF) implements it for
// real.
func (fx *FileXRefView) InitializeEmpty() (object.IndirectRef, error) {
	return object.IndirectRef{}, qerr.Logic("InitializeEmpty called on a file-backed xref view")
}

// Resolve reports whether the table was read by Initialize. It does not
// parse any entry into the store and does not scan for corruption (qpdf's
// reconstruct_xref has no counterpart here); entries are parsed only when
// store.Store.Get asks for them through ResolveEntry.
func (fx *FileXRefView) Resolve() (bool, error) {
	return fx.table != nil, nil
}

func (fx *FileXRefView) Size() int { return fx.table.Size() }

// Trailer returns the merged trailer dictionary. Valid only after
// Initialize has succeeded.
func (fx *FileXRefView) Trailer() object.Dict { return fx.table.Trailer }

func (fx *FileXRefView) HasIdentifier(ref object.IndirectRef) bool {
	entry, ok := fx.table.Get(ref.Number)
	return ok && entry.InUse
}

// AllIdentifiers returns every in-use object number the table knows
// about, in ascending numeric order — not Go's unspecified map iteration
// order — so store.Store.AllObjects enumerates the same way across runs.
func (fx *FileXRefView) AllIdentifiers() []object.IndirectRef {
	nums := make([]int, 0, fx.table.Size())
	for num := range fx.table.Entries {
		nums = append(nums, num)
	}
	sort.Ints(nums)

	out := make([]object.IndirectRef, 0, len(nums))
	for _, num := range nums {
		entry, _ := fx.table.Get(num)
		if entry.InUse {
			out = append(out, object.IndirectRef{Number: num, Generation: entry.Generation})
		}
	}
	return out
}

func (fx *FileXRefView) IgnoreStreams(flag bool)   { fx.ignoreStreams = flag }
func (fx *FileXRefView) AttemptRecovery(flag bool) { fx.attemptRecovery = flag }
func (fx *FileXRefView) Initialized() bool         { return fx.initialized }

func (fx *FileXRefView) Show() string {
	return fmt.Sprintf("%s: %d entries", fx.filename, fx.table.Size())
}

// ResolveEntry parses the object named by ref, wherever the table says it
// lives: a direct byte offset, or an index into a compressed object
// stream.
func (fx *FileXRefView) ResolveEntry(ref object.IndirectRef) (object.Object, error) {
	entry, ok := fx.table.Get(ref.Number)
	if !ok || !entry.InUse {
		return object.Null{}, nil
	}

	if entry.Type == xrefview.EntryCompressed {
		if fx.ignoreStreams {
			return object.Null{}, nil
		}
		return fx.resolveCompressed(ref.Number, entry)
	}

	indirect, err := fx.parser.ParseIndirectObjectAt(entry.Offset)
	if err != nil {
		return nil, qerr.Damage("object/parse-failed", fx.filename, fmt.Sprintf("%d %d obj", ref.Number, ref.Generation), entry.Offset, err.Error())
	}
	if indirect.Ref.Number != ref.Number {
		return nil, qerr.Damage("object/number-mismatch", fx.filename, fmt.Sprintf("%d %d obj", ref.Number, ref.Generation), entry.Offset,
			fmt.Sprintf("xref says object %d, file has object %d", ref.Number, indirect.Ref.Number))
	}

	// Objects read directly off a byte offset (as opposed to pulled out of
	// an object stream, see resolveCompressed) are exactly the ones the
	// standard security handler expects to decrypt: compressed objects are
	// exempt because the object stream that contains them was already
	// decrypted as a stream. A direct stream's own bytes are left alone
	// here (decryptStreamBytes false) and replaced below with a lazy
	// source that decrypts on read instead: the tokenizer already read
	// them once into indirect.Object just to find "endstream", and
	// re-decrypting that copy now would only be thrown away.
	decrypted, err := fx.decryptObject(ref, indirect.Object, false)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt %d %d R: %w", ref.Number, ref.Generation, err)
	}

	if stream, ok := decrypted.(*object.Stream); ok {
		stream.Source = fx.lazyStreamSource(ref, stream.Dict, indirect)
	}

	return decrypted, nil
}

// lazyStreamSource builds the input-backed data source for a stream
// parsed directly off a byte offset (spec §3, §4.6 tier 4): its bytes
// stay in the file, read and decrypted only when something pipes them.
func (fx *FileXRefView) lazyStreamSource(ref object.IndirectRef, dict object.Dict, indirect *object.IndirectObject) object.DataSource {
	var decrypt func([]byte) ([]byte, error)
	if fx.handler != nil && fx.shouldDecryptStreamData(dict) {
		decrypt = func(raw []byte) ([]byte, error) {
			return fx.handler.DecryptBytes(ref, raw)
		}
	}
	return object.InputStreamData{
		Source:  parserByteReader{parser: fx.parser},
		Offset:  indirect.StreamDataOffset,
		Length:  indirect.StreamDataLength,
		Decrypt: decrypt,
	}
}

// parserByteReader adapts xrefview.XRefParser's raw seek-and-read to
// object.StreamByteReader, so a lazy stream can read back its bytes
// through the same file the tokenizer parsed it from.
type parserByteReader struct {
	parser *xrefview.XRefParser
}

func (r parserByteReader) ReadAt(offset, n int64) ([]byte, error) {
	return r.parser.ReadRawBytesAt(offset, n)
}

// decryptObject walks v, decrypting every literal string under ref's
// per-object key (ISO 32000-2 Algorithm 1); when decryptStreamBytes is
// true it also decrypts a resident stream's raw bytes the same way,
// leaving the result as BufferData — used only for an object-stream
// container, whose bytes must be resident and decoded immediately to
// extract the objects compressed inside it. Direct (non-compressed)
// streams pass decryptStreamBytes false: ResolveEntry replaces their
// source with a lazy one afterward, whose own Decrypt closure handles
// this instead. ref is always the enclosing indirect object's identifier:
// nested dictionaries/arrays are direct values, so strings buried inside
// them are still keyed by the object that contains them, not by any
// identifier of their own. A nil handler (no /Encrypt in this document,
// or decrypting the /Encrypt dictionary itself before the handler
// exists) makes this a no-op.
func (fx *FileXRefView) decryptObject(ref object.IndirectRef, v object.Object, decryptStreamBytes bool) (object.Object, error) {
	if fx.handler == nil {
		return v, nil
	}

	switch val := v.(type) {
	case object.String:
		dec, err := fx.handler.DecryptBytes(ref, []byte(val))
		if err != nil {
			return nil, err
		}
		return object.String(dec), nil

	case object.Array:
		out := make(object.Array, len(val))
		for i, elem := range val {
			d, err := fx.decryptObject(ref, elem, decryptStreamBytes)
			if err != nil {
				return nil, err
			}
			out[i] = d
		}
		return out, nil

	case object.Dict:
		out := object.NewDict()
		for _, k := range val.Keys() {
			d, err := fx.decryptObject(ref, val.Get(k), decryptStreamBytes)
			if err != nil {
				return nil, err
			}
			out = out.Set(k, d)
		}
		return out, nil

	case *object.Stream:
		decDict, err := fx.decryptObject(ref, val.Dict, decryptStreamBytes)
		if err != nil {
			return nil, err
		}
		dict := decDict.(object.Dict)

		source := val.Source
		if decryptStreamBytes {
			if raw, ok := val.RawBytes(); ok && fx.shouldDecryptStreamData(dict) {
				dec, err := fx.handler.DecryptBytes(ref, raw)
				if err != nil {
					return nil, err
				}
				source = object.BufferData{Bytes: dec}
			}
		}
		return &object.Stream{Dict: dict, Source: source}, nil

	default:
		return v, nil
	}
}

// shouldDecryptStreamData reports whether a stream's raw bytes should be
// decrypted: every stream does, except an XMP /Metadata stream when the
// security handler's /EncryptMetadata is false.
func (fx *FileXRefView) shouldDecryptStreamData(dict object.Dict) bool {
	if fx.handler.EncryptMetadata() {
		return true
	}
	t, ok := dict.GetName("Type")
	return !ok || t != "Metadata"
}

func (fx *FileXRefView) resolveCompressed(objNum int, entry *xrefview.XRefEntry) (object.Object, error) {
	containerNum := entry.ContainerStream()

	objStm, ok := fx.objStreams[containerNum]
	if !ok {
		containerEntry, ok := fx.table.Get(containerNum)
		if !ok || !containerEntry.InUse || containerEntry.Type == xrefview.EntryCompressed {
			return nil, qerr.Damage("objstm/missing-container", fx.filename, "", 0,
				fmt.Sprintf("object %d claims to live in object stream %d, which is missing or itself compressed", objNum, containerNum))
		}
		indirect, err := fx.parser.ParseIndirectObjectAt(containerEntry.Offset)
		if err != nil {
			return nil, fmt.Errorf("failed to read object stream %d: %w", containerNum, err)
		}
		// The object stream itself is an ordinary stream as far as
		// encryption is concerned — it decrypts here, under its own
		// (containerNum, 0) key, before its members are extracted. The
		// members themselves are never decrypted individually (see
		// decryptObject's doc comment): they were already plaintext the
		// moment this container's bytes were.
		decrypted, err := fx.decryptObject(object.IndirectRef{Number: containerNum, Generation: containerEntry.Generation}, indirect.Object, true)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt object stream %d: %w", containerNum, err)
		}
		stream, ok := decrypted.(*object.Stream)
		if !ok {
			return nil, qerr.Damage("objstm/not-a-stream", fx.filename, "", containerEntry.Offset,
				fmt.Sprintf("object %d is not a stream", containerNum))
		}
		objStm, err = xrefview.NewObjectStream(stream)
		if err != nil {
			return nil, fmt.Errorf("invalid object stream %d: %w", containerNum, err)
		}
		fx.objStreams[containerNum] = objStm
	}

	value, foundNum, err := objStm.GetObjectByIndex(entry.IndexInStream())
	if err != nil {
		return nil, fmt.Errorf("failed to extract object %d from stream %d: %w", objNum, containerNum, err)
	}
	if foundNum != objNum {
		return nil, qerr.Damage("objstm/index-mismatch", fx.filename, "", 0,
			fmt.Sprintf("expected object %d at recorded index, found %d", objNum, foundNum))
	}
	return value, nil
}
