// Package safeio confines file access to one directory. The file dataset
// source reads and writes company records through it so a record name can
// never reach outside the dataset checkout.
package safeio

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

var ErrOutsideRoot = errors.New("safeio: path resolves outside root")

// Root resolves names relative to a fixed directory.
type Root struct {
	abs string // absolute, symlink-free
}

// Open binds a Root to dir, which must exist and be a directory.
func Open(dir string) (*Root, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("safeio: empty root")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("safeio: %s is not a directory", dir)
	}
	return &Root{abs: abs}, nil
}

func (r *Root) Path() string {
	if r == nil {
		return ""
	}
	return r.abs
}

// ReadFile reads name relative to the root.
func (r *Root) ReadFile(name string) ([]byte, error) {
	p, err := r.resolve(name, true)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("safeio: %s is a directory", name)
	}
	return os.ReadFile(p)
}

// ReadDir lists the root itself.
func (r *Root) ReadDir() ([]fs.DirEntry, error) {
	if r == nil {
		return nil, errors.New("safeio: root not configured")
	}
	return os.ReadDir(r.abs)
}

// WriteFile replaces name atomically: the data goes to a temp file in the
// root first and is renamed over the target.
func (r *Root) WriteFile(name string, data []byte, perm fs.FileMode) error {
	p, err := r.resolve(name, false)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(r.abs, ".tmp-"+filepath.Base(p)+"-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, p); err != nil {
		cleanup()
		return err
	}
	return nil
}

// resolve joins name onto the root. With mustExist the result is also
// checked after following symlinks.
func (r *Root) resolve(name string, mustExist bool) (string, error) {
	if r == nil {
		return "", errors.New("safeio: root not configured")
	}
	if name == "" {
		return "", errors.New("safeio: empty path")
	}
	clean := filepath.Clean(name)
	if filepath.IsAbs(clean) || (runtime.GOOS == "windows" && filepath.VolumeName(clean) != "") {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, name)
	}
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, name)
	}
	joined := filepath.Join(r.abs, clean)
	if !mustExist {
		if _, err := os.Lstat(joined); errors.Is(err, fs.ErrNotExist) {
			return joined, nil
		}
	}
	resolved, err := filepath.EvalSymlinks(joined)
	if err != nil {
		return "", err
	}
	if !hasPathPrefix(resolved, r.abs) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, name)
	}
	return resolved, nil
}

func hasPathPrefix(path, root string) bool {
	path = filepath.Clean(path)
	root = filepath.Clean(root)
	if runtime.GOOS == "windows" {
		path = strings.ToLower(path)
		root = strings.ToLower(root)
	}
	if path == root {
		return true
	}
	sep := string(os.PathSeparator)
	if !strings.HasSuffix(root, sep) {
		root += sep
	}
	return strings.HasPrefix(path, root)
}
