package xrefview

import (
	"bytes"
	"fmt"
)

// ObjectStream wraps a decoded Type /ObjStm stream (PDF 1.5, ISO 32000-2
// §7.5.7) and gives random access to the compressed objects it packs
// together: a plain-text header of (object number, offset) pairs followed
// by the objects themselves back to back, all after filter decoding.
type ObjectStream struct {
	stream  *Stream
	n       int
	first   int
	extends IndirectRef
	objects map[int]Object
	offsets []objstmOffset
	decoded []byte
}

// objstmOffset is one header entry: an object number and where its data
// starts, relative to First.
type objstmOffset struct {
	ObjNum int
	Offset int
}

// NewObjectStream validates stream as an object stream (/Type /ObjStm with
// /N and /First present) and wraps it; nothing is decoded yet.
func NewObjectStream(stream *Stream) (*ObjectStream, error) {
	if stream == nil {
		return nil, fmt.Errorf("stream is nil")
	}

	if typeObj := stream.Dict.Get("Type"); typeObj == nil {
		return nil, fmt.Errorf("object stream missing /Type")
	} else if name, ok := typeObj.(Name); !ok || string(name) != "ObjStm" {
		return nil, fmt.Errorf("stream is not an object stream, got type: %v", typeObj)
	}

	n, ok, err := dictInt(stream.Dict, "N")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("object stream missing /N")
	}
	if n < 0 {
		return nil, fmt.Errorf("invalid /N value: %d", n)
	}

	first, ok, err := dictInt(stream.Dict, "First")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("object stream missing /First")
	}
	if first < 0 {
		return nil, fmt.Errorf("invalid /First value: %d", first)
	}

	var extends IndirectRef
	if extendsObj := stream.Dict.Get("Extends"); extendsObj != nil {
		ref, ok := extendsObj.(IndirectRef)
		if !ok {
			return nil, fmt.Errorf("invalid /Extends type: %T", extendsObj)
		}
		extends = ref
	}

	return &ObjectStream{
		stream:  stream,
		n:       n,
		first:   first,
		extends: extends,
		objects: make(map[int]Object),
	}, nil
}

// dictInt reads an integer-valued dictionary entry. ok is false when the
// key is absent; a present, non-Int value is an error rather than a
// missing-key report.
func dictInt(dict Dict, key Name) (value int, ok bool, err error) {
	v := dict.Get(key)
	if v == nil {
		return 0, false, nil
	}
	n, isInt := v.(Int)
	if !isInt {
		return 0, false, fmt.Errorf("invalid /%s type: %T", key, v)
	}
	return int(n), true, nil
}

// N returns the number of objects the header declares.
func (os *ObjectStream) N() int { return os.n }

// First returns the byte offset of the first object's data within the
// decoded stream; the header occupies the bytes before it.
func (os *ObjectStream) First() int { return os.first }

// Extends returns the object stream this one extends, if any. A null
// IndirectRef (IsNull() true) means it extends nothing.
func (os *ObjectStream) Extends() IndirectRef { return os.extends }

// decode filter-decodes the stream and parses its header, memoizing both;
// every other method calls this before touching os.offsets or os.decoded.
func (os *ObjectStream) decode() error {
	if os.decoded != nil {
		return nil
	}

	decoded, err := os.stream.Decode()
	if err != nil {
		return fmt.Errorf("failed to decode object stream: %w", err)
	}
	os.decoded = decoded

	if err := os.parseHeader(); err != nil {
		return fmt.Errorf("failed to parse object stream header: %w", err)
	}
	return nil
}

// parseHeader reads the N (object number, offset) integer pairs preceding
// First, using the ordinary object parser on the header's own byte range —
// the header is just PDF integers separated by whitespace, so nothing
// stream-specific is needed to tokenize it.
func (os *ObjectStream) parseHeader() error {
	if os.first > len(os.decoded) {
		return fmt.Errorf("First offset (%d) exceeds decoded data length (%d)", os.first, len(os.decoded))
	}

	parser := NewParser(bytes.NewReader(os.decoded[:os.first]))
	os.offsets = make([]objstmOffset, 0, os.n)

	for i := 0; i < os.n; i++ {
		objNum, err := parseHeaderInt(parser, fmt.Sprintf("object number %d", i))
		if err != nil {
			return err
		}
		offset, err := parseHeaderInt(parser, fmt.Sprintf("offset %d", i))
		if err != nil {
			return err
		}
		os.offsets = append(os.offsets, objstmOffset{ObjNum: objNum, Offset: offset})
	}
	return nil
}

func parseHeaderInt(parser *Parser, what string) (int, error) {
	obj, err := parser.ParseObject()
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", what, err)
	}
	n, ok := obj.(Int)
	if !ok {
		return 0, fmt.Errorf("%s is not an integer: %T", what, obj)
	}
	return int(n), nil
}

// GetObjectByIndex parses and returns the object at the header's index'th
// entry (0-based, not an object number), caching the result.
func (os *ObjectStream) GetObjectByIndex(index int) (Object, int, error) {
	if err := os.decode(); err != nil {
		return nil, 0, err
	}
	if index < 0 || index >= len(os.offsets) {
		return nil, 0, fmt.Errorf("index %d out of range [0, %d)", index, len(os.offsets))
	}
	if obj, ok := os.objects[index]; ok {
		return obj, os.offsets[index].ObjNum, nil
	}

	slice, err := os.objectSlice(index)
	if err != nil {
		return nil, 0, err
	}

	obj, err := NewParser(bytes.NewReader(slice)).ParseObject()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse object at index %d: %w", index, err)
	}
	os.objects[index] = obj
	return obj, os.offsets[index].ObjNum, nil
}

// objectSlice bounds the raw bytes belonging to the index'th object: from
// its own header-declared offset up to the next object's offset, or the
// end of the decoded data for the last entry.
func (os *ObjectStream) objectSlice(index int) ([]byte, error) {
	start := os.first + os.offsets[index].Offset
	if start >= len(os.decoded) {
		return nil, fmt.Errorf("object offset %d exceeds decoded data length %d", start, len(os.decoded))
	}

	end := len(os.decoded)
	if index+1 < len(os.offsets) {
		end = os.first + os.offsets[index+1].Offset
	}
	if end > len(os.decoded) {
		end = len(os.decoded)
	}
	return os.decoded[start:end], nil
}

// GetObjectByNumber finds objNum's header entry and parses it, returning
// the object alongside its index within the stream.
func (os *ObjectStream) GetObjectByNumber(objNum int) (Object, int, error) {
	if err := os.decode(); err != nil {
		return nil, 0, err
	}
	for i, entry := range os.offsets {
		if entry.ObjNum == objNum {
			obj, _, err := os.GetObjectByIndex(i)
			return obj, i, err
		}
	}
	return nil, 0, fmt.Errorf("object %d not found in object stream", objNum)
}

// ObjectNumbers returns every object number the header declares, in
// header order.
func (os *ObjectStream) ObjectNumbers() ([]int, error) {
	if err := os.decode(); err != nil {
		return nil, err
	}
	nums := make([]int, len(os.offsets))
	for i, entry := range os.offsets {
		nums[i] = entry.ObjNum
	}
	return nums, nil
}

// ContainsObject reports whether objNum has a header entry in this stream.
func (os *ObjectStream) ContainsObject(objNum int) (bool, error) {
	if err := os.decode(); err != nil {
		return false, err
	}
	for _, entry := range os.offsets {
		if entry.ObjNum == objNum {
			return true, nil
		}
	}
	return false, nil
}
