package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// FS implements Files on the local file system.
type FS struct {
	root string // absolute path to the workspace directory
}

// NewFS creates an FS rooted at the given directory, which must exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("workspace: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("workspace: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute workspace directory.
func (f *FS) Root() string { return f.root }

// safePath resolves rel against the root, rejecting absolute paths, anything
// that escapes the root, and paths that pass through a symlink.
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("workspace: empty path")
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("workspace: absolute paths not allowed: %s", rel)
	}
	abs := filepath.Join(f.root, cleaned)
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("workspace: path escapes root: %s", rel)
	}

	cur := f.root
	for _, part := range strings.Split(cleaned, string(os.PathSeparator)) {
		cur = filepath.Join(cur, part)
		info, err := os.Lstat(cur)
		if isMissing(err) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("workspace: stat %s: %w", rel, err)
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return "", fmt.Errorf("workspace: symlink in path: %s", rel)
		}
	}
	return abs, nil
}

// Read returns the content of a workspace file, or exists=false if absent.
func (f *FS) Read(path string) ([]byte, bool, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(abs)
	switch {
	case isMissing(err):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("workspace: read %s: %w", path, err)
	}
	return data, true, nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(path string, content []byte) ([]string, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(abs)
	created := f.missingDirs(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return created, fmt.Errorf("workspace: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".jeebs-tmp-*")
	if err != nil {
		return created, fmt.Errorf("workspace: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return created, fmt.Errorf("workspace: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return created, fmt.Errorf("workspace: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return created, fmt.Errorf("workspace: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return created, fmt.Errorf("workspace: rename: %w", err)
	}
	success = true
	return created, nil
}

// Remove deletes a workspace file.
func (f *FS) Remove(path string) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !isMissing(err) {
		return fmt.Errorf("workspace: remove %s: %w", path, err)
	}
	return nil
}

// RemoveDir deletes an empty workspace directory.
func (f *FS) RemoveDir(path string) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	err = os.Remove(abs)
	switch {
	case err == nil, isMissing(err):
		return nil
	case errors.Is(err, syscall.ENOTEMPTY), errors.Is(err, syscall.EEXIST):
		return fmt.Errorf("workspace: remove dir %s: %w", path, ErrDirNotEmpty)
	}
	return fmt.Errorf("workspace: remove dir %s: %w", path, err)
}

// missingDirs lists the ancestors of dir, up to the root, that do not exist yet.
func (f *FS) missingDirs(dir string) []string {
	var missing []string
	for cur := dir; cur != f.root && strings.HasPrefix(cur, f.root); cur = filepath.Dir(cur) {
		if _, err := os.Lstat(cur); err == nil {
			break
		}
		rel, err := filepath.Rel(f.root, cur)
		if err != nil {
			break
		}
		missing = append([]string{filepath.ToSlash(rel)}, missing...)
	}
	return missing
}

// isMissing treats "a parent is a regular file" like "does not exist".
func isMissing(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}
