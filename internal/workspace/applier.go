package workspace

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/jeebs/internal/models"
)

// Applier writes change sets to Files. It never retains a change set beyond a
// single call.
type Applier struct {
	files  Files
	policy Policy
	logger *slog.Logger
}

// NewApplier creates an Applier over files using the given sandbox policy.
func NewApplier(files Files, policy Policy, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{files: files, policy: policy, logger: logger}
}

// Policy returns the sandbox the applier enforces.
func (a *Applier) Policy() Policy { return a.policy }

// Validate rejects change sets that violate the sandbox policy.
func (a *Applier) Validate(changes []models.FileChange) error {
	return a.policy.ValidateChanges(changes)
}

// Snapshot captures the pre-image of every path in changes. It performs no writes.
func (a *Applier) Snapshot(changes []models.FileChange) ([]models.FileChange, error) {
	backup := make([]models.FileChange, 0, len(changes))
	for _, c := range changes {
		data, exists, err := a.files.Read(c.Path)
		if err != nil {
			return nil, fmt.Errorf("workspace: backup %s: %w", c.Path, err)
		}
		backup = append(backup, models.FileChange{
			Path:          c.Path,
			NewContent:    string(data),
			ExistedBefore: exists,
		})
	}
	return backup, nil
}

type undo struct {
	path    string
	prior   []byte
	existed bool
	dirs    []string
}

// ApplyAtomically writes changes in order and returns the directories it
// created, outermost first. If any write fails, every path touched so far is
// put back to its pre-call state, including removal of created files and
// directories, before the error is returned.
func (a *Applier) ApplyAtomically(changes []models.FileChange) ([]string, error) {
	done := make([]undo, 0, len(changes))
	var created []string
	for _, c := range changes {
		prior, existed, err := a.files.Read(c.Path)
		if err != nil {
			return nil, a.revert(done, fmt.Errorf("workspace: read %s: %w", c.Path, err))
		}
		dirs, err := a.files.Write(c.Path, []byte(c.NewContent))
		done = append(done, undo{path: c.Path, prior: prior, existed: existed, dirs: dirs})
		if err != nil {
			return nil, a.revert(done, fmt.Errorf("workspace: apply %s: %w", c.Path, err))
		}
		created = append(created, dirs...)
	}
	return created, nil
}

func (a *Applier) revert(done []undo, cause error) error {
	var errs []error
	for i := len(done) - 1; i >= 0; i-- {
		u := done[i]
		if u.existed {
			if _, err := a.files.Write(u.path, u.prior); err != nil {
				errs = append(errs, err)
			}
		} else if err := a.files.Remove(u.path); err != nil {
			errs = append(errs, err)
		}
		for j := len(u.dirs) - 1; j >= 0; j-- {
			if err := a.files.RemoveDir(u.dirs[j]); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if len(errs) > 0 {
		a.logger.Error("workspace: revert incomplete",
			slog.Int("paths", len(done)),
			slog.String("error", errors.Join(errs...).Error()))
		return errors.Join(append([]error{cause}, errs...)...)
	}
	a.logger.Warn("workspace: apply reverted",
		slog.Int("paths", len(done)),
		slog.String("error", cause.Error()))
	return cause
}

// Restore replays a backup in reverse order, rewriting original content or
// removing files that did not exist before, then removes createdDirs
// innermost first. Directories that gained other entries since are kept.
// It keeps going past failures and returns them joined.
func (a *Applier) Restore(backup []models.FileChange, createdDirs []string) error {
	var errs []error
	for i := len(backup) - 1; i >= 0; i-- {
		b := backup[i]
		if b.ExistedBefore {
			if _, err := a.files.Write(b.Path, []byte(b.NewContent)); err != nil {
				errs = append(errs, fmt.Errorf("workspace: restore %s: %w", b.Path, err))
			}
			continue
		}
		if err := a.files.Remove(b.Path); err != nil {
			errs = append(errs, fmt.Errorf("workspace: restore %s: %w", b.Path, err))
		}
	}
	for i := len(createdDirs) - 1; i >= 0; i-- {
		err := a.files.RemoveDir(createdDirs[i])
		switch {
		case errors.Is(err, ErrDirNotEmpty):
			a.logger.Info("workspace: kept non-empty directory", slog.String("path", createdDirs[i]))
		case err != nil:
			errs = append(errs, fmt.Errorf("workspace: restore %s: %w", createdDirs[i], err))
		}
	}
	return errors.Join(errs...)
}
