// Package checksum provides the hex SHA-256 digests used for fingerprints.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Lines accumulates a digest over newline-terminated lines, so that
// ("ab", "c") and ("a", "bc") hash differently.
type Lines struct {
	h hash.Hash
}

// NewLines returns an empty line digest.
func NewLines() *Lines {
	return &Lines{h: sha256.New()}
}

// Add appends s and a trailing newline.
func (l *Lines) Add(s string) {
	l.h.Write([]byte(s))
	l.h.Write([]byte{'\n'})
}

// Sum returns the hex digest of everything added so far.
func (l *Lines) Sum() string {
	return hex.EncodeToString(l.h.Sum(nil))
}
