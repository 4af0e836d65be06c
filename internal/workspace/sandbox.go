package workspace

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/starford/jeebs/internal/apperr"
	"github.com/starford/jeebs/internal/models"
)

// Default sandbox settings.
var (
	DefaultAllowedPrefixes  = []string{"src/", "webui/", "migrations/", "scripts/", "evolution/"}
	DefaultAllowedRootFiles = []string{"README*", "CHANGELOG*", "go.mod", "Cargo.toml"}
)

const (
	DefaultMaxChangeBytes = 200_000
	DefaultMaxTotalBytes  = 1_000_000
)

var plainComponentRe = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9._-]*$`)

// Policy is the sandbox a change set has to fit into.
type Policy struct {
	AllowedPrefixes  []string
	AllowedRootFiles []string
	MaxChangeBytes   int
	MaxTotalBytes    int
}

// DefaultPolicy returns the built-in allow-list and byte caps.
func DefaultPolicy() Policy {
	return Policy{
		AllowedPrefixes:  DefaultAllowedPrefixes,
		AllowedRootFiles: DefaultAllowedRootFiles,
		MaxChangeBytes:   DefaultMaxChangeBytes,
		MaxTotalBytes:    DefaultMaxTotalBytes,
	}
}

// ValidationError rejects a change set before any side effect.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

func (e *ValidationError) Unwrap() error { return apperr.ErrValidation }

// ValidateChanges checks a change set against the policy: it must be
// non-empty, free of duplicate paths, sandboxed, and within the byte caps.
func (p Policy) ValidateChanges(changes []models.FileChange) error {
	if len(changes) == 0 {
		return &ValidationError{Reason: "change set is empty"}
	}
	seen := make(map[string]struct{}, len(changes))
	total := 0
	for _, c := range changes {
		if err := p.ValidatePath(c.Path); err != nil {
			return err
		}
		if _, dup := seen[c.Path]; dup {
			return &ValidationError{Path: c.Path, Reason: "duplicate path in change set"}
		}
		seen[c.Path] = struct{}{}

		size := len(c.NewContent)
		if p.MaxChangeBytes > 0 && size > p.MaxChangeBytes {
			return &ValidationError{Path: c.Path, Reason: fmt.Sprintf("change is %d bytes, limit is %d", size, p.MaxChangeBytes)}
		}
		total += size
	}
	if p.MaxTotalBytes > 0 && total > p.MaxTotalBytes {
		return &ValidationError{Reason: fmt.Sprintf("change set is %d bytes, limit is %d", total, p.MaxTotalBytes)}
	}
	return nil
}

// ValidatePath accepts relative slash paths made of plain names that sit
// under an allowed prefix or name an allowed root file.
func (p Policy) ValidatePath(rel string) error {
	switch {
	case rel == "":
		return &ValidationError{Reason: "path is empty"}
	case strings.HasPrefix(rel, "/"), strings.HasPrefix(rel, `\`):
		return &ValidationError{Path: rel, Reason: "absolute paths are not allowed"}
	case strings.Contains(rel, ".."):
		return &ValidationError{Path: rel, Reason: "parent traversal is not allowed"}
	case strings.Contains(rel, `\`):
		return &ValidationError{Path: rel, Reason: "backslashes are not allowed"}
	}

	parts := strings.Split(rel, "/")
	for _, part := range parts {
		if !plainComponentRe.MatchString(part) {
			return &ValidationError{Path: rel, Reason: fmt.Sprintf("path component %q is not a plain name", part)}
		}
	}

	if len(parts) == 1 {
		for _, pattern := range p.AllowedRootFiles {
			if ok, _ := path.Match(pattern, rel); ok {
				return nil
			}
		}
		return &ValidationError{Path: rel, Reason: "root file is not allow-listed"}
	}
	for _, prefix := range p.AllowedPrefixes {
		if strings.HasPrefix(rel, prefix) {
			return nil
		}
	}
	return &ValidationError{Path: rel, Reason: "path is outside the allowed directories"}
}
