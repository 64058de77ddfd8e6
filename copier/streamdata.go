package copier

import (
	"github.com/tsawler/qdocgraph/handle"
	"github.com/tsawler/qdocgraph/object"
)

// CopiedStreamDataProvider is a destination-scoped object.StreamDataProvider
// that pipes a copied stream's data lazily from the foreign handle it was
// copied from, so the foreign document's bytes never have to be resident
// in the destination until something actually reads them.
//
// One provider is shared by every tier-3 stream copied out of the same
// source document (see installStreamData); it is created lazily on the
// State the first time a deferred copy is needed. Grounded on QPDF.cc's
// CopiedStreamDataProvider, which the owning QPDF likewise keeps one
// instance of per foreign source.
type CopiedStreamDataProvider struct {
	sources map[object.IndirectRef]handle.Handle
}

func newCopiedStreamDataProvider() *CopiedStreamDataProvider {
	return &CopiedStreamDataProvider{sources: make(map[object.IndirectRef]handle.Handle)}
}

// register records that ref's data, once asked for, should be piped from
// foreign.
func (p *CopiedStreamDataProvider) register(ref object.IndirectRef, foreign handle.Handle) {
	p.sources[ref] = foreign
}

// ProvideStreamData satisfies object.StreamDataProvider.
func (p *CopiedStreamDataProvider) ProvideStreamData(ref object.IndirectRef, pl object.Pipeline, suppressWarnings, willRetry bool) bool {
	foreign, ok := p.sources[ref]
	if !ok {
		return false
	}
	return foreign.PipeData(pl, false, suppressWarnings, willRetry)
}
