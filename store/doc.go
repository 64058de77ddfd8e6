// Package store owns object identity: the mapping from (id, generation)
// pairs to their current values, the allocator that hands out fresh
// identifiers, and the re-entrancy guard that keeps a lazy parse from
// recursing into itself. Nothing above this package (handle, document,
// copier) is allowed to hold onto a value independent of its identity —
// every mutation goes through Store.Replace or Store.Swap so that
// existing handles to an identifier always observe its current value.
//
// Grounded on original_source/libqpdf/QPDF.cc's Objects member (getObject,
// makeIndirectObject, replaceObject, swapObjects, fixDanglingReferences)
// and, for the day-to-day slot-cache shape, on tsawler-tabula's
// reader.Reader.objCache — generalized here into a real read/write store
// instead of a read-only cache, since §4.3 requires mutation.
package store
