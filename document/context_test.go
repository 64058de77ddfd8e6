package document

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tsawler/qdocgraph/object"
	"github.com/tsawler/qdocgraph/qerr"
)

// minimalPDF mirrors the teacher's reader package fixture: a catalog, an
// empty page tree, and a classic (non-stream) xref table.
const minimalPDF = `%PDF-1.4
1 0 obj
<< /Type /Catalog /Pages 2 0 R >>
endobj
2 0 obj
<< /Type /Pages /Kids [] /Count 0 >>
endobj
xref
0 3
0000000000 65535 f
0000000009 00000 n
0000000058 00000 n
trailer
<< /Size 3 /Root 1 0 R >>
startxref
110
%%EOF`

func createTempPDF(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.pdf")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp PDF: %v", err)
	}
	return path
}

func TestProcessFile(t *testing.T) {
	path := createTempPDF(t, minimalPDF)

	c := New()
	if err := c.ProcessFile(path, ""); err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	defer c.CloseInputSource()

	if got := c.Version(); got != "1.4" {
		t.Fatalf("Version() = %q, want 1.4", got)
	}
	root := c.GetRoot()
	if !root.HasKey("Pages") {
		t.Fatalf("root catalog is missing /Pages")
	}
	if got := c.NumObjects(); got != 2 {
		t.Fatalf("NumObjects() = %d, want 2", got)
	}
}

func TestProcessFileNonExistent(t *testing.T) {
	c := New()
	if err := c.ProcessFile("/nonexistent/file.pdf", ""); err == nil {
		t.Fatalf("expected an error opening a nonexistent file")
	}
}

func TestProcessMemoryFileMissingHeaderWarns(t *testing.T) {
	c := New()
	if err := c.ProcessMemoryFile([]byte("not a pdf at all"), "garbage.pdf", ""); err == nil {
		t.Fatalf("expected an error: a headerless, xref-less byte blob is not a usable document")
	}

	warnings := c.Warnings()
	if len(warnings) == 0 {
		t.Fatalf("expected at least one warning for the missing header")
	}
	if warnings[0].Code != "header/not-found" {
		t.Fatalf("warnings[0].Code = %q, want header/not-found", warnings[0].Code)
	}
	if c.Version() != "1.2" {
		t.Fatalf("Version() = %q, want the 1.2 fallback", c.Version())
	}
}

func TestWarningsDrainOnRead(t *testing.T) {
	c := New()
	c.SetSuppressWarnings(true)
	if err := c.warn(qerr.NewWarning("test/one", "x.pdf", "", 0, "first")); err != nil {
		t.Fatalf("warn: %v", err)
	}
	if err := c.warn(qerr.NewWarning("test/two", "x.pdf", "", 0, "second")); err != nil {
		t.Fatalf("warn: %v", err)
	}
	if got := len(c.Warnings()); got != 2 {
		t.Fatalf("Warnings() returned %d entries, want 2", got)
	}
	if got := len(c.Warnings()); got != 0 {
		t.Fatalf("Warnings() should drain: second call returned %d entries, want 0", got)
	}
}

func TestMaxWarningsEscalatesToDamageError(t *testing.T) {
	c := New()
	c.SetSuppressWarnings(true)
	c.SetMaxWarnings(2)
	if err := c.warn(qerr.NewWarning("test/one", "x.pdf", "", 0, "first")); err != nil {
		t.Fatalf("first warning should not escalate: %v", err)
	}
	if err := c.warn(qerr.NewWarning("test/two", "x.pdf", "", 0, "second")); err == nil {
		t.Fatalf("expected the second warning to hit max_warnings and escalate")
	}
}

func TestEmptyPDF(t *testing.T) {
	c := New()
	if err := c.EmptyPDF(); err != nil {
		t.Fatalf("EmptyPDF: %v", err)
	}

	if got := c.Version(); got != "1.3" {
		t.Fatalf("Version() = %q, want 1.3", got)
	}
	root := c.GetRoot()
	if !root.HasKey("Pages") {
		t.Fatalf("empty document's catalog is missing /Pages")
	}
	pages := root.Get("Pages")
	if !pages.IsDictionary() {
		t.Fatalf("/Pages is not a dictionary")
	}
	if got := pages.Get("Kids").Length(); got != 0 {
		t.Fatalf("/Pages/Kids length = %d, want 0", got)
	}
}

func TestCopyForeignObjectRewritesIdentity(t *testing.T) {
	source := New()
	if err := source.EmptyPDF(); err != nil {
		t.Fatalf("EmptyPDF (source): %v", err)
	}
	dest := New()
	if err := dest.EmptyPDF(); err != nil {
		t.Fatalf("EmptyPDF (dest): %v", err)
	}

	foreign, err := source.MakeIndirectHandle(object.Int(99))
	if err != nil {
		t.Fatalf("MakeIndirectHandle: %v", err)
	}

	local, err := dest.CopyForeignObject(foreign)
	if err != nil {
		t.Fatalf("CopyForeignObject: %v", err)
	}
	v, err := local.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if v != object.Int(99) {
		t.Fatalf("copied value = %v, want 99", v)
	}

	// Copying the same foreign object again through the same destination
	// must reuse the same local identity rather than duplicating it.
	again, err := dest.CopyForeignObject(foreign)
	if err != nil {
		t.Fatalf("CopyForeignObject (again): %v", err)
	}
	aNum, _ := local.GetIdentifier()
	bNum, _ := again.GetIdentifier()
	if aNum != bNum {
		t.Fatalf("repeated copy of the same foreign object produced different local identities: %d != %d", aNum, bNum)
	}
}

func TestCopyForeignObjectRejectsOwnDocument(t *testing.T) {
	c := New()
	if err := c.EmptyPDF(); err != nil {
		t.Fatalf("EmptyPDF: %v", err)
	}
	own, err := c.MakeIndirectHandle(object.Int(1))
	if err != nil {
		t.Fatalf("MakeIndirectHandle: %v", err)
	}
	if _, err := c.CopyForeignObject(own); err == nil {
		t.Fatalf("expected an error copying an object from a document into itself")
	}
}

func TestRemoveSecurityRestrictions(t *testing.T) {
	c := New()
	if err := c.EmptyPDF(); err != nil {
		t.Fatalf("EmptyPDF: %v", err)
	}

	root := c.GetRoot()
	if err := root.Replace("Perms", c.handleForValue(object.NewDict())); err != nil {
		t.Fatalf("Replace Perms: %v", err)
	}
	acroForm := object.NewDictFrom(object.E("SigFlags", object.Int(3)))
	if err := root.Replace("AcroForm", c.handleForValue(acroForm)); err != nil {
		t.Fatalf("Replace AcroForm: %v", err)
	}

	if err := c.RemoveSecurityRestrictions(); err != nil {
		t.Fatalf("RemoveSecurityRestrictions: %v", err)
	}

	root = c.GetRoot()
	if root.HasKey("Perms") {
		t.Fatalf("/Perms should have been removed")
	}
	sigFlags, err := root.Get("AcroForm").Get("SigFlags").Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if sigFlags != object.Int(0) {
		t.Fatalf("/AcroForm/SigFlags = %v, want 0", sigFlags)
	}
}

func TestSwapObjects(t *testing.T) {
	c := New()
	if err := c.EmptyPDF(); err != nil {
		t.Fatalf("EmptyPDF: %v", err)
	}

	refA, err := c.store.MakeIndirect(object.Int(1))
	if err != nil {
		t.Fatalf("MakeIndirect: %v", err)
	}
	refB, err := c.store.MakeIndirect(object.Int(2))
	if err != nil {
		t.Fatalf("MakeIndirect: %v", err)
	}

	if err := c.SwapObjects(refA, refB); err != nil {
		t.Fatalf("SwapObjects: %v", err)
	}

	va, err := c.HandleFor(refA).Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	vb, err := c.HandleFor(refB).Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if va != object.Int(2) || vb != object.Int(1) {
		t.Fatalf("after swap, A=%v B=%v, want A=2 B=1", va, vb)
	}
}
