package services

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPDFInspector_RejectsGarbage(t *testing.T) {
	p := filepath.Join(t.TempDir(), "out.pdf")
	if err := os.WriteFile(p, []byte("<html>conversion error</html>"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := NewPDFInspector().PageCount(p); err == nil {
		t.Fatal("expected error for non-pdf content")
	}
}

func TestPDFInspector_MissingFile(t *testing.T) {
	if _, err := NewPDFInspector().PageCount(filepath.Join(t.TempDir(), "missing.pdf")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestArchiveKey(t *testing.T) {
	if got, want := ArchiveKey("converted", "job-1", "q1.pdf"), "converted/job-1/q1.pdf"; got != want {
		t.Errorf("ArchiveKey = %q, want %q", got, want)
	}
	if got, want := ArchiveKey("", "job-1", "q1.pdf"), "job-1/q1.pdf"; got != want {
		t.Errorf("ArchiveKey = %q, want %q", got, want)
	}
}
