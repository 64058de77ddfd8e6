// Package object provides the PDF object value model.
//
// PDF defines eight basic object types, all implemented as types
// satisfying the Object interface: Null, Bool, Int, Real, String, Name,
// Array, and Dict. Stream represents a stream (dictionary plus a data
// source). IndirectRef names an indirect object by its (id, generation)
// pair.
//
// Two further variants exist only inside an object store (see the store
// package): Reserved, an identifier allocated before its value is known,
// and Unresolved, an identifier known from the xref view but not yet
// parsed.
package object
