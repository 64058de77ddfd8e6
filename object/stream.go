package object

import (
	"fmt"

	"github.com/tsawler/qdocgraph/internal/filters"
)

// Stream is a PDF stream: a dictionary plus a data source. The data itself
// is never embedded in Dict — it lives behind one of the DataSource
// variants below, so a stream copied from a foreign document can keep
// reading from that document's input without the bytes ever passing
// through the destination's memory until something actually pipes them.
type Stream struct {
	Dict   Dict
	Source DataSource
}

func (s *Stream) Type() ObjectType { return ObjStream }
func (s *Stream) String() string {
	return fmt.Sprintf("stream %s", s.Dict.String())
}

// DataSource is the backing of a Stream's bytes: exactly one of EmptyData,
// BufferData, ProviderData, or InputStreamData (a foreign back-reference
// is just a ProviderData whose Provider reads through to another document
// — see the copier package's CopiedStreamDataProvider).
type DataSource interface {
	dataSource()
}

// EmptyData is the data source of a freshly allocated, not-yet-populated
// stream.
type EmptyData struct{}

func (EmptyData) dataSource() {}

// BufferData is stream data owned in memory by this document.
type BufferData struct {
	Bytes []byte
}

func (BufferData) dataSource() {}

// ProviderData defers to a StreamDataProvider, invoked only when the data
// is actually piped out. This is how foreign-copied streams (§4.6) stay
// readable without eagerly materializing their bytes.
type ProviderData struct {
	Provider StreamDataProvider
}

func (ProviderData) dataSource() {}

// InputStreamData is a stream's data source when its bytes still live
// only in the input they were read from, at a known (Offset, Length):
// nothing is copied into memory until something actually pipes the
// stream. Decrypt, if non-nil, is applied to the raw bytes read from
// Source before anything else sees them — the per-object decryption key
// for whichever document and object this stream belongs to.
type InputStreamData struct {
	Source  StreamByteReader
	Offset  int64
	Length  int64
	Decrypt func([]byte) ([]byte, error)
}

func (InputStreamData) dataSource() {}

// StreamByteReader is the minimal capability InputStreamData needs: read
// exactly n bytes starting at an absolute offset. Defined here (rather
// than importing an input-source package) for the same reason Pipeline
// is: object stays dependency-free of everything above it.
type StreamByteReader interface {
	ReadAt(offset, n int64) ([]byte, error)
}

// StreamDataProvider supplies a stream's raw (still-encoded) bytes on
// demand. Ref identifies the local stream being piped, so one provider can
// serve many streams (as the copier's CopiedStreamDataProvider does).
type StreamDataProvider interface {
	ProvideStreamData(ref IndirectRef, pl Pipeline, suppressWarnings, willRetry bool) bool
}

// Pipeline is the chainable byte sink streams are decoded into. Defined
// here (rather than imported from a pipeline package) to keep object
// dependency-free of everything above it; the pipeline package's concrete
// types satisfy this interface structurally.
type Pipeline interface {
	Write(p []byte) (int, error)
	Finish() error
}

// RawBytes returns the stream's encoded bytes if they are already resident
// in memory (BufferData), without invoking any provider or reading from an
// input source. Returns false for Empty, Provider-backed, or input-backed
// streams.
func (s *Stream) RawBytes() ([]byte, bool) {
	if b, ok := s.Source.(BufferData); ok {
		return b.Bytes, true
	}
	return nil, false
}

// ReplaceData installs new stream data, filter name(s), and decode
// parameters in one step, matching §4.2's replace_data operation.
func (s *Stream) ReplaceData(source DataSource, filter Object, decodeParms Object) {
	s.Source = source
	if filter == nil {
		s.Dict = s.Dict.Delete("Filter")
	} else {
		s.Dict = s.Dict.Set("Filter", filter)
	}
	if decodeParms == nil {
		s.Dict = s.Dict.Delete("DecodeParms")
	} else {
		s.Dict = s.Dict.Set("DecodeParms", decodeParms)
	}
}

// Decode returns the stream's fully-decoded (filter-applied) bytes. It
// requires the data to be resident (BufferData); callers piping from a
// provider or an input-backed source should use PipeData instead.
func (s *Stream) Decode() ([]byte, error) {
	raw, ok := s.RawBytes()
	if !ok {
		return nil, fmt.Errorf("stream data is not resident in memory (source %T): pipe instead of decode", s.Source)
	}
	return s.DecodeBytes(raw)
}

// DecodeBytes applies this stream's /Filter chain to raw, bytes already
// obtained some other way (piped from a provider or an input-backed
// source) rather than read via RawBytes.
func (s *Stream) DecodeBytes(raw []byte) ([]byte, error) {
	filterObj := s.Dict.Get("Filter")
	if filterObj == nil {
		return raw, nil
	}
	paramsObj := s.Dict.Get("DecodeParms")

	if filterName, ok := filterObj.(Name); ok {
		return decodeWithFilter(raw, string(filterName), paramsObjToDict(paramsObj))
	}

	if filterArray, ok := filterObj.(Array); ok {
		data := raw
		for i, f := range filterArray {
			filterName, ok := f.(Name)
			if !ok {
				return nil, fmt.Errorf("filter %d is not a name: %T", i, f)
			}
			var params Dict
			if paramsArray, ok := paramsObj.(Array); ok {
				if i < len(paramsArray) {
					params = paramsObjToDict(paramsArray[i])
				}
			} else {
				params = paramsObjToDict(paramsObj)
			}
			var err error
			data, err = decodeWithFilter(data, string(filterName), params)
			if err != nil {
				return nil, fmt.Errorf("filter %d (%s) failed: %w", i, filterName, err)
			}
		}
		return data, nil
	}

	return nil, fmt.Errorf("invalid Filter type: %T", filterObj)
}

func decodeWithFilter(data []byte, filterName string, params Dict) ([]byte, error) {
	switch filterName {
	case "FlateDecode", "Fl":
		return filters.FlateDecode(data, dictToParams(params))
	case "ASCIIHexDecode", "AHx":
		return filters.ASCIIHexDecode(data)
	case "ASCII85Decode", "A85":
		return filters.ASCII85Decode(data)
	case "LZWDecode", "LZW":
		return filters.LZWDecode(data, dictToParams(params))
	case "RunLengthDecode", "RL":
		return filters.RunLengthDecode(data)
	case "CCITTFaxDecode", "CCF":
		return filters.CCITTFaxDecode(data, dictToParams(params))
	case "JBIG2Decode":
		return nil, fmt.Errorf("JBIG2Decode not yet implemented")
	case "DCTDecode", "DCT":
		return data, nil // JPEG: left encoded for the image-extraction layer.
	case "JPXDecode":
		return data, nil // JPEG2000: left encoded.
	case "Crypt":
		return nil, fmt.Errorf("Crypt filter not yet implemented")
	default:
		return nil, fmt.Errorf("unknown filter: %s", filterName)
	}
}

func paramsObjToDict(obj Object) Dict {
	if obj == nil {
		return Dict{}
	}
	if dict, ok := obj.(Dict); ok {
		return dict
	}
	return Dict{}
}

func dictToParams(dict Dict) filters.Params {
	if dict.Len() == 0 {
		return nil
	}
	params := make(filters.Params)
	for _, k := range dict.Keys() {
		switch v := dict.Get(k).(type) {
		case Int:
			params[string(k)] = int(v)
		case Real:
			params[string(k)] = float64(v)
		case Bool:
			params[string(k)] = bool(v)
		case String:
			params[string(k)] = string(v)
		case Name:
			params[string(k)] = string(v)
		default:
			params[string(k)] = v
		}
	}
	return params
}
