// Package xrefview provides the low-level tokenizer and byte-level
// cross-reference reader that the rest of this module is built on: the
// [Lexer] turns raw file bytes into tokens, the [Parser] turns a token
// stream into [object.Object] values, and [XRefParser] locates and reads a
// PDF's cross-reference data (classic xref tables, their trailers, and
// their PDF 1.5+ cross-reference-stream and object-stream replacements).
//
// Nothing here resolves indirect references or owns object identity; that
// is the store package's job. xrefview only answers "where are the bytes
// for object N" and "how do I turn bytes into an [object.Object]".
package xrefview
