package atomicfile_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/teleinfo-cn/idpointer/pkg/atomicfile"
)

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "..", "id.key")

	if err := atomicfile.WriteFile(path, []byte("first"), 0600); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("first")) {
		t.Fatalf("unexpected contents: %q", got)
	}

	// Overwrite must replace the contents completely.
	if err := atomicfile.WriteFile(path, []byte("second"), 0600); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	got, err = os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("second")) {
		t.Fatalf("unexpected contents: %q", got)
	}

	// No staging files may be left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 file, got %d", len(entries))
	}
}

func TestWriteFile_Perm(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id.key")
	if err := atomicfile.WriteFile(path, []byte("secret"), 0600); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := fi.Mode().Perm(); perm != 0600 {
		t.Fatalf("unexpected perm: %o", perm)
	}
}
