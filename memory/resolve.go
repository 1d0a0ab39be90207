package memory

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/text/unicode/norm"
)

// target is a name resolved against a session: abs is the canonical absolute
// path, rel the slash-separated path relative to the root ("." for the root).
type target struct {
	abs string
	rel string
}

func (t target) isRoot() bool { return t.rel == "." }

// resolve maps name onto the tree. The lexical check runs first and makes no
// filesystem calls; only a lexically contained path is then checked for
// symlinks that lead outside the root.
func (s *Session) resolve(op, name string) (target, error) {
	if strings.ContainsRune(name, 0) {
		return target{}, newErr(KindScope, op, name, "name contains a NUL byte")
	}
	name = norm.NFC.String(strings.TrimSpace(name))
	slashed := filepath.ToSlash(name)

	var rel string
	switch {
	case filepath.IsAbs(name) || path.IsAbs(slashed):
		r, ok := relToRoot(s.fs.root, filepath.Clean(name))
		if !ok {
			return target{}, newErr(KindScope, op, name, "path is outside the memory root")
		}
		rel = r
	default:
		rel = path.Clean(path.Join(s.cwd, slashed))
	}
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return target{}, newErr(KindScope, op, name, "path is outside the memory root")
	}

	abs := filepath.Join(s.fs.root, filepath.FromSlash(rel))
	canon, err := s.fs.canonical(abs)
	if err != nil {
		return target{}, newErr(KindScope, op, name, "%v", err)
	}
	return target{abs: canon, rel: rel}, nil
}

// canonical follows symlinks along abs. The longest existing prefix is
// evaluated; the non-existent tail is appended unchanged.
func (f *FS) canonical(abs string) (string, error) {
	existing := abs
	var tail []string
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		} else if !isNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		tail = append([]string{filepath.Base(existing)}, tail...)
		existing = parent
	}

	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		// Dangling link: judge it by where it points.
		dest, lerr := os.Readlink(existing)
		if lerr != nil {
			return "", err
		}
		if !filepath.IsAbs(dest) {
			dest = filepath.Join(filepath.Dir(existing), dest)
		}
		resolved = filepath.Clean(dest)
	}
	if _, ok := relToRoot(f.root, resolved); !ok {
		return "", errors.New("path resolves outside the memory root")
	}
	return filepath.Join(append([]string{resolved}, tail...)...), nil
}

// isNotExist also treats ENOTDIR as missing: "file.md/child" does not exist.
func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}

// relToRoot reports whether abs is root or below it and returns the
// slash-separated relative path.
func relToRoot(root, abs string) (string, bool) {
	if abs == root {
		return ".", true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	if !strings.HasPrefix(abs, prefix) {
		return "", false
	}
	return filepath.ToSlash(strings.TrimPrefix(abs, prefix)), true
}
