// Package document ties together the object store, the xref view, the
// input source, and the encryption parameters into a single document
// context (spec §4.5): the thing a caller opens a PDF into, and the thing
// a foreign copier reads from and writes into.
//
// Grounded on original_source/libqpdf/QPDF.cc's QPDF class (unique_id,
// trailer, version, warnings, in_parse, fixed_dangling_refs, config
// flags) for the fields a context carries, and on tsawler-tabula's
// reader.Reader (NewReader, Open, parseHeader, Version, Trailer,
// GetCatalog) for the process_file / header-detection / version
// machinery — generalized to route object access through store.Store
// instead of a bare objCache map.
package document
