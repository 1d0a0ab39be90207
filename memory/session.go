package memory

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Session carries the current directory for one snippet execution. It is not
// safe for concurrent use; each snippet gets its own.
type Session struct {
	fs  *FS
	cwd string // slash-separated, relative to the root, "." for the root
}

// FS returns the root this session navigates.
func (s *Session) FS() *FS { return s.fs }

// CurrentDir returns the current directory relative to the root.
func (s *Session) CurrentDir() string { return s.cwd }

// ListFiles returns the entries of the current directory, sorted, with
// directories suffixed by "/". Temp files left by interrupted writes are
// skipped.
func (s *Session) ListFiles() ([]string, error) {
	const op = "list_files"
	t, err := s.resolve(op, ".")
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(t.abs)
	if err != nil {
		return nil, s.fsErr(op, t.rel, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if isTemp(name) {
			continue
		}
		if e.IsDir() || (e.Type()&fs.ModeSymlink != 0 && isDir(filepath.Join(t.abs, name))) {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ReadFile returns the contents of a file.
func (s *Session) ReadFile(name string) (string, error) {
	const op = "read_file"
	t, err := s.resolve(op, name)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(t.abs)
	if err != nil {
		return "", s.fsErr(op, t.rel, err)
	}
	if info.IsDir() {
		return "", newErr(KindNotAFile, op, t.rel, "is a directory")
	}
	if err := s.fs.checkFileSize(op, t.rel, info.Size()); err != nil {
		return "", err
	}
	data, err := os.ReadFile(t.abs)
	if err != nil {
		return "", s.fsErr(op, t.rel, err)
	}
	return string(data), nil
}

// CreateFile writes a new file. Missing parent directories are created once
// every check has passed.
func (s *Session) CreateFile(name, content string) error {
	const op = "create_file"
	t, err := s.resolve(op, name)
	if err != nil {
		return err
	}
	if t.isRoot() || t.abs == s.fs.root {
		return newErr(KindExists, op, t.rel, "the memory root is a directory")
	}
	if _, err := os.Lstat(t.abs); err == nil {
		return newErr(KindExists, op, t.rel, "file already exists")
	} else if !isNotExist(err) {
		return s.fsErr(op, t.rel, err)
	}
	size := int64(len(content))
	if err := s.fs.checkFileSize(op, t.rel, size); err != nil {
		return err
	}
	if err := s.fs.checkGrowth(op, t.rel, t.abs, size); err != nil {
		return err
	}
	if err := s.ensureParent(op, t); err != nil {
		return err
	}
	if err := writeAtomic(t.abs, []byte(content)); err != nil {
		return s.fsErr(op, t.rel, err)
	}
	s.fs.logger.Debug("memory write", "op", op, "path", t.rel, "bytes", size)
	return nil
}

// UpdateFile replaces the whole content of an existing file.
func (s *Session) UpdateFile(name, content string) error {
	const op = "update_file"
	t, old, err := s.existingFile(op, name)
	if err != nil {
		return err
	}
	return s.rewrite(op, t, int64(len(old)), content)
}

// ReplaceInFile replaces the single occurrence of old with replacement. Zero
// or several occurrences fail with ambiguous_replace and leave the file as is.
func (s *Session) ReplaceInFile(name, old, replacement string) error {
	const op = "update_file"
	t, current, err := s.existingFile(op, name)
	if err != nil {
		return err
	}
	if old == "" {
		return newErr(KindAmbiguousReplace, op, t.rel, "text to replace is empty")
	}
	switch n := strings.Count(current, old); n {
	case 1:
	case 0:
		return newErr(KindAmbiguousReplace, op, t.rel, "text to replace was not found")
	default:
		return newErr(KindAmbiguousReplace, op, t.rel, "text to replace appears %d times", n)
	}
	return s.rewrite(op, t, int64(len(current)), strings.Replace(current, old, replacement, 1))
}

func (s *Session) existingFile(op, name string) (target, string, error) {
	t, err := s.resolve(op, name)
	if err != nil {
		return target{}, "", err
	}
	info, err := os.Stat(t.abs)
	if err != nil {
		return target{}, "", s.fsErr(op, t.rel, err)
	}
	if info.IsDir() {
		return target{}, "", newErr(KindIsADirectory, op, t.rel, "cannot update a directory")
	}
	data, err := os.ReadFile(t.abs)
	if err != nil {
		return target{}, "", s.fsErr(op, t.rel, err)
	}
	return t, string(data), nil
}

func (s *Session) rewrite(op string, t target, oldSize int64, content string) error {
	size := int64(len(content))
	if err := s.fs.checkFileSize(op, t.rel, size); err != nil {
		return err
	}
	if err := s.fs.checkGrowth(op, t.rel, t.abs, size-oldSize); err != nil {
		return err
	}
	if err := writeAtomic(t.abs, []byte(content)); err != nil {
		return s.fsErr(op, t.rel, err)
	}
	s.fs.logger.Debug("memory write", "op", op, "path", t.rel, "bytes", size)
	return nil
}

// DeleteFile removes a file.
func (s *Session) DeleteFile(name string) error {
	const op = "delete_file"
	t, err := s.resolve(op, name)
	if err != nil {
		return err
	}
	info, err := os.Lstat(t.abs)
	if err != nil {
		return s.fsErr(op, t.rel, err)
	}
	if info.IsDir() {
		return newErr(KindIsADirectory, op, t.rel, "use delete_dir for directories")
	}
	if err := os.Remove(t.abs); err != nil {
		return s.fsErr(op, t.rel, err)
	}
	s.fs.logger.Debug("memory delete", "op", op, "path", t.rel)
	return nil
}

// CreateDir creates a directory and any missing parents.
func (s *Session) CreateDir(name string) error {
	const op = "create_dir"
	t, err := s.resolve(op, name)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(t.abs); err == nil {
		return newErr(KindExists, op, t.rel, "already exists")
	} else if !isNotExist(err) {
		return s.fsErr(op, t.rel, err)
	}
	if err := os.MkdirAll(t.abs, 0o755); err != nil {
		return s.fsErr(op, t.rel, err)
	}
	return nil
}

// DeleteDir removes a directory. A non-empty directory is only removed when
// recursive is true. The root itself and the current directory's ancestors
// cannot be removed.
func (s *Session) DeleteDir(name string, recursive bool) error {
	const op = "delete_dir"
	t, err := s.resolve(op, name)
	if err != nil {
		return err
	}
	if t.isRoot() || t.abs == s.fs.root {
		return newErr(KindScope, op, t.rel, "cannot delete the memory root")
	}
	if s.cwd == t.rel || strings.HasPrefix(s.cwd, t.rel+"/") {
		return newErr(KindScope, op, t.rel, "cannot delete the current directory or one of its parents")
	}
	info, err := os.Lstat(t.abs)
	if err != nil {
		return s.fsErr(op, t.rel, err)
	}
	if !info.IsDir() {
		return newErr(KindNotFound, op, t.rel, "not a directory")
	}
	entries, err := os.ReadDir(t.abs)
	if err != nil {
		return s.fsErr(op, t.rel, err)
	}
	if len(entries) > 0 && !recursive {
		return newErr(KindNotEmpty, op, t.rel, "directory has %d entries; pass recursive=True", len(entries))
	}
	if err := os.RemoveAll(t.abs); err != nil {
		return s.fsErr(op, t.rel, err)
	}
	s.fs.logger.Debug("memory delete", "op", op, "path", t.rel, "recursive", recursive)
	return nil
}

// GoToDir changes the current directory and returns the new one.
func (s *Session) GoToDir(name string) (string, error) {
	const op = "go_to_dir"
	t, err := s.resolve(op, name)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(t.abs)
	if err != nil {
		return "", s.fsErr(op, t.rel, err)
	}
	if !info.IsDir() {
		return "", newErr(KindNotFound, op, t.rel, "not a directory")
	}
	s.cwd = t.rel
	return s.cwd, nil
}

// MoveFile renames a file. The destination must not exist; moving into
// another directory counts as growth of that directory.
func (s *Session) MoveFile(src, dst string) error {
	const op = "move_file"
	from, err := s.resolve(op, src)
	if err != nil {
		return err
	}
	to, err := s.resolve(op, dst)
	if err != nil {
		return err
	}
	info, err := os.Lstat(from.abs)
	if err != nil {
		return s.fsErr(op, from.rel, err)
	}
	if info.IsDir() {
		return newErr(KindIsADirectory, op, from.rel, "only files can be moved")
	}
	if _, err := os.Lstat(to.abs); err == nil {
		return newErr(KindExists, op, to.rel, "destination already exists")
	}
	if path.Dir(from.rel) != path.Dir(to.rel) {
		if err := s.fs.checkDirGrowth(op, to.rel, to.abs, info.Size()); err != nil {
			return err
		}
	}
	if err := s.ensureParent(op, to); err != nil {
		return err
	}
	if err := os.Rename(from.abs, to.abs); err != nil {
		return s.fsErr(op, from.rel, err)
	}
	s.fs.logger.Debug("memory move", "from", from.rel, "to", to.rel)
	return nil
}

// FileExists reports whether name is an existing regular file.
func (s *Session) FileExists(name string) (bool, error) {
	t, err := s.resolve("file_exists", name)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(t.abs)
	return err == nil && !info.IsDir(), nil
}

// DirExists reports whether name is an existing directory.
func (s *Session) DirExists(name string) (bool, error) {
	t, err := s.resolve("dir_exists", name)
	if err != nil {
		return false, err
	}
	return isDir(t.abs), nil
}

// Size returns the byte size of a file or the recursive size of a directory.
// An empty name measures the whole root.
func (s *Session) Size(name string) (int64, error) {
	const op = "get_size"
	if name == "" {
		n, err := s.fs.Size()
		if err != nil {
			return 0, newErr(KindIO, op, ".", "%v", err)
		}
		return n, nil
	}
	t, err := s.resolve(op, name)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(t.abs)
	if err != nil {
		return 0, s.fsErr(op, t.rel, err)
	}
	if !info.IsDir() {
		return info.Size(), nil
	}
	n, err := treeSize(t.abs)
	if err != nil {
		return 0, s.fsErr(op, t.rel, err)
	}
	return n, nil
}

func (s *Session) ensureParent(op string, t target) error {
	if err := os.MkdirAll(filepath.Dir(t.abs), 0o755); err != nil {
		return s.fsErr(op, t.rel, err)
	}
	return nil
}

// fsErr maps an os error onto a Kind.
func (s *Session) fsErr(op, rel string, err error) error {
	switch {
	case isNotExist(err):
		return newErr(KindNotFound, op, rel, "no such file or directory")
	case errors.Is(err, fs.ErrExist):
		return newErr(KindExists, op, rel, "already exists")
	default:
		return newErr(KindIO, op, rel, "%v", err)
	}
}

func isDir(abs string) bool {
	info, err := os.Stat(abs)
	return err == nil && info.IsDir()
}

func isTemp(name string) bool {
	return strings.HasPrefix(name, ".memagent-") && strings.HasSuffix(name, ".tmp")
}
