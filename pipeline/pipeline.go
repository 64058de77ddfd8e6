// Package pipeline provides concrete implementations of object.Pipeline,
// the chainable byte sink a stream's data is decoded into (§4.2's
// pipe_data). object.Pipeline is defined in the object package itself to
// keep it dependency-free; the types here are what callers actually
// construct and pass in.
//
// Grounded on original_source/libqpdf/QPDF.cc's Pipeline/Pl_Discard
// usage (pipeForeignStreamData chains a pipeline, finish()es it even on
// an error path so a partially-written destination is still flushed) and
// on tsawler-tabula's io.Writer-centric style throughout (text
// extraction, filter application) — generalized here into the small
// concrete set a copier or a caller piping decoded page content actually
// needs.
package pipeline

import "io"

// Buffer accumulates piped bytes in memory. Used by the foreign copier's
// immediate_copy_from tier to force a source stream's data resident
// before installing it into a destination stream.
type Buffer struct {
	data []byte
}

// NewBuffer returns an empty Buffer pipeline.
func NewBuffer() *Buffer { return &Buffer{} }

func (b *Buffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *Buffer) Finish() error { return nil }

// Bytes returns the accumulated data. Valid after Finish.
func (b *Buffer) Bytes() []byte { return b.data }

// Discard drops every byte written to it, for callers that only need to
// exercise a stream's decode path (e.g. validating a filter chain)
// without keeping the result.
type Discard struct{}

func (Discard) Write(p []byte) (int, error) { return len(p), nil }
func (Discard) Finish() error               { return nil }

// Chain writes through to Next and, once Next is done, also to Sink —
// mirroring qpdf's practice of tapping a pipeline for a side effect
// (checksumming, length counting) without disturbing its primary
// destination.
type Chain struct {
	Next io.Writer
	Sink io.Writer
}

func (c *Chain) Write(p []byte) (int, error) {
	if n, err := c.Next.Write(p); err != nil {
		return n, err
	}
	return c.Sink.Write(p)
}

func (c *Chain) Finish() error {
	if f, ok := c.Next.(interface{ Finish() error }); ok {
		if err := f.Finish(); err != nil {
			return err
		}
	}
	if f, ok := c.Sink.(interface{ Finish() error }); ok {
		return f.Finish()
	}
	return nil
}
