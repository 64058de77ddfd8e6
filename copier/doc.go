// Package copier implements the foreign-object copy spec §4.6 describes:
// bringing an indirect object (and everything it reaches) from one
// document's store into another's, renumbering indirect references along
// the way and keeping cyclic object graphs intact.
//
// Grounded directly on original_source/libqpdf/QPDF.cc's
// copyForeignObject/reserveObjects/replaceForeignIndirectObjects/
// copyStreamData quartet: a two-pass algorithm (reserve local slots for
// everything reachable, then rewrite each reserved object's value with
// local references substituted in) that lets circular references resolve
// regardless of traversal order, plus the special handling that stops
// descending at /Pages boundaries and at nested /Page references so that
// copying one page never drags along the rest of the document's page
// tree.
//
// The destination document is consumed through the Target interface
// rather than a concrete document.Context, the same way store.XrefView
// and handle.Resolver let their consumers avoid importing the package
// that would otherwise own the concrete type — document.Context imports
// copier, not the reverse.
package copier
