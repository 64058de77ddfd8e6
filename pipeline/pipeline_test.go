package pipeline

import "testing"

func TestBufferAccumulatesWrites(t *testing.T) {
	b := NewBuffer()
	b.Write([]byte("hello, "))
	b.Write([]byte("world"))
	if err := b.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if string(b.Bytes()) != "hello, world" {
		t.Fatalf("Bytes() = %q, want %q", b.Bytes(), "hello, world")
	}
}

func TestDiscardAcceptsAnyWrite(t *testing.T) {
	var d Discard
	n, err := d.Write([]byte("anything"))
	if err != nil || n != len("anything") {
		t.Fatalf("Write = (%d, %v), want (%d, nil)", n, err, len("anything"))
	}
}

func TestChainWritesToBothSinks(t *testing.T) {
	next := NewBuffer()
	sink := NewBuffer()
	c := &Chain{Next: next, Sink: sink}

	if _, err := c.Write([]byte("data")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := c.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if string(next.Bytes()) != "data" || string(sink.Bytes()) != "data" {
		t.Fatalf("next=%q sink=%q, want both %q", next.Bytes(), sink.Bytes(), "data")
	}
}
