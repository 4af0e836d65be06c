// Package proposal persists proposed updates and notifications and enforces
// the proposal lifecycle.
package proposal

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/starford/jeebs/internal/models"
	"github.com/starford/jeebs/internal/store"
)

// UpdatePrefix is the KV key prefix of every ProposedUpdate.
const UpdatePrefix = "evolution:update:"

// Store is the typed record store for ProposedUpdate.
type Store struct {
	updates *store.Collection[models.ProposedUpdate]
}

// NewStore creates a Store over kv.
func NewStore(kv store.KV, logger *slog.Logger) *Store {
	return &Store{updates: store.NewCollection[models.ProposedUpdate](kv, UpdatePrefix, logger)}
}

// Save writes u, replacing any previous record with the same id.
func (s *Store) Save(ctx context.Context, u *models.ProposedUpdate) error {
	if u.ID == "" {
		return fmt.Errorf("proposal: save: empty id")
	}
	if err := s.updates.Put(ctx, u.ID, u); err != nil {
		return fmt.Errorf("proposal: save %s: %w", u.ID, err)
	}
	return nil
}

// Load returns the proposal with id, or apperr.ErrNotFound.
func (s *Store) Load(ctx context.Context, id string) (*models.ProposedUpdate, error) {
	u, err := s.updates.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("proposal: load %s: %w", id, err)
	}
	return u, nil
}

// All returns every proposal, newest first. Ties are broken by id.
func (s *Store) All(ctx context.Context) ([]models.ProposedUpdate, error) {
	all, err := s.updates.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("proposal: load all: %w", err)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	return all, nil
}

// PendingCount returns how many proposals await review.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	counts, err := s.CountByStatus(ctx)
	if err != nil {
		return 0, err
	}
	return counts[models.StatusPending], nil
}

// CountByStatus tallies proposals per lifecycle state.
func (s *Store) CountByStatus(ctx context.Context) (map[models.ProposalStatus]int, error) {
	all, err := s.updates.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("proposal: count: %w", err)
	}
	counts := make(map[models.ProposalStatus]int, len(models.AllStatuses))
	for _, st := range models.AllStatuses {
		counts[st] = 0
	}
	for _, u := range all {
		counts[u.Status]++
	}
	return counts, nil
}

// HasActiveFingerprint reports whether a pending, applied or resolved
// proposal carries fingerprint fp.
func (s *Store) HasActiveFingerprint(ctx context.Context, fp string) (bool, error) {
	if fp == "" {
		return false, nil
	}
	all, err := s.updates.All(ctx)
	if err != nil {
		return false, fmt.Errorf("proposal: fingerprint lookup: %w", err)
	}
	for _, u := range all {
		if u.Fingerprint == fp && u.Status.Active() {
			return true, nil
		}
	}
	return false, nil
}
