// Package handle provides Handle, the object-graph accessor spec §4.2
// describes: a reference to a PDF value that is either direct (the value
// is carried in the handle itself) or indirect (the value lives in a
// document's object store, named by an identifier). Callers navigate
// arrays, dictionaries, and streams through Handle without caring which
// kind of value they are holding — indirect children are resolved lazily,
// one level at a time, the same way a real PDF reader follows references.
//
// Grounded on tsawler-tabula's resolver.ObjectResolver (the cycle-detection
// and depth-limited traversal pattern MakeDirect generalizes) and on
// original_source/libqpdf/QPDF.cc's QPDFObjectHandle, which this package's
// name and accessor set are modeled after directly.
package handle
