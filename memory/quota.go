package memory

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// treeSize sums regular file sizes under dir without following symlinks.
// A missing dir has size zero.
func treeSize(dir string) (int64, error) {
	if _, err := os.Lstat(dir); errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}

// checkGrowth verifies that adding delta bytes at abs keeps every non-root
// ancestor directory within D and the root within R. Callers check F against
// the new content themselves. Shrinking writes always pass.
func (f *FS) checkGrowth(op, rel, abs string, delta int64) error {
	if err := f.checkDirGrowth(op, rel, abs, delta); err != nil {
		return err
	}
	if limit := f.limits.MaxRootBytes; limit > 0 && delta > 0 {
		size, err := treeSize(f.root)
		if err != nil {
			return newErr(KindIO, op, rel, "measure root: %v", err)
		}
		if size+delta > limit {
			return newErr(KindQuotaExceeded, op, rel,
				"memory root would hold %d bytes (limit %d)", size+delta, limit)
		}
	}
	return nil
}

// checkDirGrowth applies D alone. Moves use it directly: they never grow the
// root.
func (f *FS) checkDirGrowth(op, rel, abs string, delta int64) error {
	limit := f.limits.MaxDirBytes
	if limit <= 0 || delta <= 0 {
		return nil
	}
	for dir := filepath.Dir(abs); dir != f.root; dir = filepath.Dir(dir) {
		dirRel, ok := relToRoot(f.root, dir)
		if !ok {
			break
		}
		size, err := treeSize(dir)
		if err != nil {
			return newErr(KindIO, op, rel, "measure directory: %v", err)
		}
		if size+delta > limit {
			return newErr(KindQuotaExceeded, op, rel,
				"directory %s would hold %d bytes (limit %d)", dirRel, size+delta, limit)
		}
	}
	return nil
}

func (f *FS) checkFileSize(op, rel string, n int64) error {
	if limit := f.limits.MaxFileBytes; limit > 0 && n > limit {
		return newErr(KindTooLarge, op, rel, "%d bytes exceeds the per-file limit of %d", n, limit)
	}
	return nil
}
