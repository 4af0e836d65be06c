// Package workspace applies proposal change sets to the project tree inside a
// path sandbox, with backup capture and revert on partial failure.
package workspace

import "errors"

// ErrDirNotEmpty is returned by RemoveDir when the directory still has entries.
var ErrDirNotEmpty = errors.New("directory not empty")

// Files is the filesystem surface the Applier mutates. Paths are slash
// separated and relative to the workspace root.
type Files interface {
	// Read returns the file content and whether the file exists.
	Read(path string) (content []byte, exists bool, err error)
	// Write replaces the file atomically and reports the directories it had
	// to create, outermost first. The list is valid even when err != nil.
	Write(path string, content []byte) (createdDirs []string, err error)
	// Remove deletes the file. A missing file is not an error.
	Remove(path string) error
	// RemoveDir deletes an empty directory. A missing directory is not an
	// error; a non-empty one fails with ErrDirNotEmpty.
	RemoveDir(path string) error
}
