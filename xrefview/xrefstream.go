package xrefview

import (
	"fmt"
	"io"
)

// EntryType distinguishes the three kinds of cross-reference-stream record
// (PDF 1.5+, ISO 32000-1 §7.5.8.3). Classic xref-table entries are always
// EntryFree or EntryNormal; EntryCompressed only appears via a
// cross-reference stream or an /XRefStm hybrid reference.
type EntryType int

const (
	EntryFree       EntryType = 0
	EntryNormal     EntryType = 1
	EntryCompressed EntryType = 2
)

// ContainerStream and IndexInStream reinterpret Offset/Generation for a
// compressed entry: the object lives at index IndexInStream within the object stream numbered
// ContainerStream, generation 0.
func (e *XRefEntry) ContainerStream() int { return int(e.Offset) }
func (e *XRefEntry) IndexInStream() int   { return e.Generation }

// ParseXRefSection parses the cross-reference data at offset, dispatching
// on whether it is a classic "xref" table or a cross-reference stream
// (PDF 1.5+): qpdf's read_xref does the same keyword peek before deciding
// how to read the section.
func (x *XRefParser) ParseXRefSection(offset int64) (*XRefTable, error) {
	if _, err := x.reader.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to xref section: %w", err)
	}

	peek := make([]byte, 4)
	n, _ := io.ReadFull(x.reader, peek)
	if string(peek[:n]) == "xref" {
		return x.ParseXRef(offset)
	}
	return x.ParseXRefStreamAt(offset)
}

// ParseXRefStreamAt parses a PDF 1.5+ cross-reference stream: an indirect
// object whose dictionary carries /Type /XRef, /W, /Size, and optionally
// /Index and /Prev, and whose (decoded) stream data is the xref table
// itself, packed as fixed-width binary records instead of ASCII lines.
func (x *XRefParser) ParseXRefStreamAt(offset int64) (*XRefTable, error) {
	if _, err := x.reader.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to xref stream: %w", err)
	}

	parser := NewParser(x.reader)
	indirect, err := parser.ParseIndirectObject()
	if err != nil {
		return nil, fmt.Errorf("failed to parse xref stream object: %w", err)
	}

	stream, ok := indirect.Object.(*Stream)
	if !ok {
		return nil, fmt.Errorf("object at xref stream offset is not a stream, got %T", indirect.Object)
	}

	typeName, _ := stream.Dict.GetName("Type")
	if typeName != "XRef" {
		return nil, fmt.Errorf("expected /Type /XRef, got /%s", typeName)
	}

	widths, err := parseWidths(stream.Dict)
	if err != nil {
		return nil, err
	}

	sizeObj, ok := stream.Dict.GetInt("Size")
	if !ok {
		return nil, fmt.Errorf("xref stream missing /Size")
	}

	index := parseIndex(stream.Dict, int(sizeObj))

	decoded, err := stream.Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode xref stream: %w", err)
	}

	table := NewXRefTable()
	table.Trailer = stream.Dict

	recordWidth := widths[0] + widths[1] + widths[2]
	pos := 0
	for _, rng := range index {
		for i := 0; i < rng.count; i++ {
			objNum := rng.start + i
			if pos+recordWidth > len(decoded) {
				return nil, fmt.Errorf("xref stream truncated at object %d", objNum)
			}
			record := decoded[pos : pos+recordWidth]
			pos += recordWidth

			entryType := EntryNormal
			if widths[0] > 0 {
				entryType = EntryType(readField(record[:widths[0]]))
			}
			field2 := readField(record[widths[0] : widths[0]+widths[1]])
			field3 := readField(record[widths[0]+widths[1] : recordWidth])

			switch entryType {
			case EntryFree:
				table.Set(objNum, &XRefEntry{Offset: field2, Generation: int(field3), InUse: false, Type: EntryFree})
			case EntryNormal:
				table.Set(objNum, &XRefEntry{Offset: field2, Generation: int(field3), InUse: true, Type: EntryNormal})
			case EntryCompressed:
				// field2 = containing object-stream number, field3 = index within it.
				table.Set(objNum, &XRefEntry{Offset: field2, Generation: int(field3), InUse: true, Type: EntryCompressed})
			default:
				return nil, fmt.Errorf("unknown xref stream entry type %d for object %d", entryType, objNum)
			}
		}
	}

	return table, nil
}

type indexRange struct{ start, count int }

// parseIndex reads /Index, defaulting to a single range covering [0, size)
// when absent, per ISO 32000-1 §7.5.8.2 Table 17.
func parseIndex(dict Dict, size int) []indexRange {
	arr, ok := dict.GetArray("Index")
	if !ok || len(arr)%2 != 0 || len(arr) == 0 {
		return []indexRange{{start: 0, count: size}}
	}
	ranges := make([]indexRange, 0, len(arr)/2)
	for i := 0; i+1 < len(arr); i += 2 {
		start, ok1 := arr[i].(Int)
		count, ok2 := arr[i+1].(Int)
		if !ok1 || !ok2 {
			return []indexRange{{start: 0, count: size}}
		}
		ranges = append(ranges, indexRange{start: int(start), count: int(count)})
	}
	return ranges
}

// parseWidths reads /W, the three field byte-widths. A zero width for
// field 1 is permitted and implies EntryNormal for every record.
func parseWidths(dict Dict) ([3]int, error) {
	var widths [3]int
	arr, ok := dict.GetArray("W")
	if !ok || len(arr) != 3 {
		return widths, fmt.Errorf("xref stream missing or malformed /W")
	}
	for i, v := range arr {
		n, ok := v.(Int)
		if !ok || n < 0 {
			return widths, fmt.Errorf("/W entry %d is not a non-negative integer", i)
		}
		widths[i] = int(n)
	}
	return widths, nil
}

func readField(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}
