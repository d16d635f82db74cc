package readfile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadNormalized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crlf.txt")
	if err := os.WriteFile(path, []byte("one\r\ntwo\rthree\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	got, err := ReadNormalized(path)
	if err != nil {
		t.Fatalf("ReadNormalized failed: %v", err)
	}
	if got != "one\ntwo\nthree\n" {
		t.Fatalf("normalized content = %q", got)
	}
}

func TestReadNormalizedMissing(t *testing.T) {
	if _, err := ReadNormalized(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
