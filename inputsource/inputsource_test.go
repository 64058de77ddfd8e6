package inputsource

import (
	"io"
	"testing"
)

func TestFindHeaderAtStart(t *testing.T) {
	src := NewMemoryInputSource([]byte("%PDF-1.7\n%...\n"), "mem")
	offset, version, ok := FindHeader(src)
	if !ok {
		t.Fatal("expected header to be found")
	}
	if offset != 0 {
		t.Fatalf("offset = %d, want 0", offset)
	}
	if version != "1.7" {
		t.Fatalf("version = %q, want 1.7", version)
	}
}

func TestFindHeaderAtNonZeroOffset(t *testing.T) {
	data := append([]byte("\x00\x00\x00garbage"), []byte("%PDF-1.4\n")...)
	src := NewMemoryInputSource(data, "mem")
	offset, version, ok := FindHeader(src)
	if !ok {
		t.Fatal("expected header to be found")
	}
	if offset != int64(len(data)-len("%PDF-1.4\n")) {
		t.Fatalf("offset = %d, want %d", offset, len(data)-len("%PDF-1.4\n"))
	}
	if version != "1.4" {
		t.Fatalf("version = %q, want 1.4", version)
	}
}

func TestFindHeaderMissingReturnsNotOK(t *testing.T) {
	src := NewMemoryInputSource([]byte("not a pdf at all"), "mem")
	if _, _, ok := FindHeader(src); ok {
		t.Fatal("expected header not to be found")
	}
}

func TestHeaderOffsetRebasesSeekAndRead(t *testing.T) {
	inner := NewMemoryInputSource([]byte("XXX%PDF-1.5\nBODY"), "mem")
	wrapped := NewHeaderOffset(inner, 3)

	pos, err := wrapped.Seek(0, io.SeekStart)
	if err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if pos != 0 {
		t.Fatalf("Seek returned %d, want 0", pos)
	}

	buf := make([]byte, 5)
	n, err := wrapped.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "%PDF-" {
		t.Fatalf("Read = %q, want %%PDF-", buf[:n])
	}
}

func TestInvalidatedFailsReadAndSeek(t *testing.T) {
	inv := NewInvalidated("closed.pdf")
	if _, err := inv.Read(make([]byte, 1)); err == nil {
		t.Fatal("expected error from Read on invalidated source")
	}
	if _, err := inv.Seek(0, io.SeekStart); err == nil {
		t.Fatal("expected error from Seek on invalidated source")
	}
}
