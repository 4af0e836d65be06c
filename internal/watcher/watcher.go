// Package watcher reports external edits to the allow-listed parts of the
// workspace. It never writes.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/jeebs/internal/workspace"
)

// Ops passed to Callback.
const (
	OpCreated = "created"
	OpUpdated = "updated"
	OpDeleted = "deleted"
)

// Callback receives coalesced changes as slash-separated workspace paths.
type Callback func(op, path string)

const debounce = 150 * time.Millisecond

// Watch observes the workspace root and every allow-listed directory under it
// until ctx is cancelled. Only paths the policy would accept are reported, so
// temporary files and anything outside the sandbox are ignored. Bursts of
// events for one path are coalesced into a single callback.
func Watch(ctx context.Context, root string, policy workspace.Policy, logger *slog.Logger, cb Callback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(root); err != nil {
		return err
	}
	for _, prefix := range policy.AllowedPrefixes {
		dir := filepath.Join(root, filepath.FromSlash(strings.TrimSuffix(prefix, "/")))
		if info, statErr := os.Stat(dir); statErr == nil && info.IsDir() {
			if err := addDirsRecursive(w, dir); err != nil {
				return err
			}
		}
	}

	logger.Info("watcher: started", slog.String("root", root))

	pending := make(map[string]string)
	var flushTimer *time.Timer
	var flushCh <-chan time.Time

	schedule := func(rel, op string) {
		if prev, ok := pending[rel]; ok && prev == OpCreated && op == OpUpdated {
			op = OpCreated
		}
		pending[rel] = op
		if flushTimer == nil {
			flushTimer = time.NewTimer(debounce)
			flushCh = flushTimer.C
		} else {
			flushTimer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if flushTimer != nil {
				flushTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-flushCh:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			for _, p := range paths {
				logger.Info("watcher: workspace changed", slog.String("path", p), slog.String("op", pending[p]))
				if cb != nil {
					cb(pending[p], p)
				}
			}
			clear(pending)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if allowedDir(policy, rel) {
						if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
							logger.Warn("watcher: add new dir failed",
								slog.String("path", rel),
								slog.String("error", addErr.Error()))
						}
						reportExisting(root, ev.Name, policy, schedule)
					}
					continue
				}
			}

			if policy.ValidatePath(rel) != nil {
				continue
			}

			switch {
			case ev.Op&fsnotify.Create != 0:
				schedule(rel, OpCreated)
			case ev.Op&fsnotify.Write != 0:
				schedule(rel, OpUpdated)
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				schedule(rel, OpDeleted)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// allowedDir reports whether rel is an allow-listed directory or lies below one.
func allowedDir(policy workspace.Policy, rel string) bool {
	for _, prefix := range policy.AllowedPrefixes {
		if rel+"/" == prefix || strings.HasPrefix(rel, prefix) {
			return true
		}
	}
	return false
}

// reportExisting schedules files that appeared together with a new directory.
func reportExisting(root, dir string, policy workspace.Policy, schedule func(rel, op string)) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if policy.ValidatePath(rel) == nil {
			schedule(rel, OpCreated)
		}
		return nil
	})
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
