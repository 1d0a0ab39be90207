package memory

import (
	"os"
	"path/filepath"
)

const tempPattern = ".memagent-*.tmp"

// writeAtomic replaces abs with data. The temp file lives in the target
// directory so the final rename never crosses filesystems; on any failure it
// is removed and abs keeps its previous bytes.
func writeAtomic(abs string, data []byte) (err error) {
	dir := filepath.Dir(abs)
	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Chmod(0o644); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), abs)
}
