package registry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/modelops/internal/fsutil"
)

// EnsureSeeded copies bundled seed artifacts into an empty registry so a fresh
// install has something servable. It reports whether anything was copied.
//
// A registry that already holds a version is left untouched, as is one with no
// seed directory. Entries already present in the registry are never
// overwritten.
func (r *Registry) EnsureSeeded(seedDir string) (bool, error) {
	const op = "registry.seed"

	versions, err := r.ListVersions()
	if err != nil {
		return false, err
	}
	if len(versions) > 0 || !fsutil.IsDir(seedDir) {
		return false, nil
	}

	entries, err := os.ReadDir(seedDir)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	for _, e := range entries {
		src := filepath.Join(seedDir, e.Name())
		dst := filepath.Join(r.dir, e.Name())
		if _, err := os.Lstat(dst); err == nil {
			continue
		}
		if e.IsDir() {
			err = fsutil.CopyDir(src, dst)
		} else {
			err = fsutil.CopyFile(src, dst, 0o644)
		}
		if err != nil {
			return false, fmt.Errorf("%s: copy %s: %w", op, e.Name(), err)
		}
	}

	r.logger.Info("seeded empty registry", "seed_dir", seedDir, "entries", len(entries))
	return true, nil
}
