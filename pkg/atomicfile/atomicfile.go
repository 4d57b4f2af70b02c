// Package atomicfile writes files so that readers never observe a partial write.
package atomicfile // import "github.com/teleinfo-cn/idpointer/pkg/atomicfile"

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFile writes data to path atomically. The data is staged in a
// temporary file in the same directory, synced to disk, and renamed over
// the target. A crash mid-write leaves the previous contents intact.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %s", err)
	}
	tmp := f.Name()

	// Clean the staging file up on any failure path.
	fail := func(err error) error {
		f.Close()
		os.Remove(tmp)
		return err
	}

	if _, err := f.Write(data); err != nil {
		return fail(fmt.Errorf("write temp file: %s", err))
	}
	if err := f.Sync(); err != nil {
		return fail(fmt.Errorf("sync temp file: %s", err))
	}
	if err := f.Chmod(perm); err != nil {
		return fail(fmt.Errorf("chmod temp file: %s", err))
	}
	if err := f.Close(); err != nil {
		return fail(fmt.Errorf("close temp file: %s", err))
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp file: %s", err)
	}

	// Sync the directory so the rename itself is durable.
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
