// Package autonomy runs the think-cycle: collect signals, build a candidate,
// render it, deduplicate it and persist it as a pending proposal.
package autonomy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/starford/jeebs/internal/apperr"
	"github.com/starford/jeebs/internal/candidate"
	"github.com/starford/jeebs/internal/content"
	"github.com/starford/jeebs/internal/fingerprint"
	"github.com/starford/jeebs/internal/models"
	"github.com/starford/jeebs/internal/proposal"
	"github.com/starford/jeebs/internal/signals"
	"github.com/starford/jeebs/internal/store"
)

// RuntimeStateKey is the KV key of the persisted RuntimeState singleton.
const RuntimeStateKey = runtimePrefix + runtimeID

const (
	runtimePrefix = "evolution:runtime:"
	runtimeID     = "state"
)

// Author is recorded on every generated proposal.
const Author = "autonomy"

// CycleResult describes the outcome of one think-cycle.
type CycleResult struct {
	CreatedUpdate bool            `json:"created_update"`
	UpdateID      string          `json:"update_id,omitempty"`
	Title         string          `json:"title,omitempty"`
	Severity      models.Severity `json:"severity,omitempty"`
	Reason        string          `json:"reason"`
	Duplicate     bool            `json:"duplicate"`
}

// Thinker owns the think-cycle and the persisted RuntimeState.
type Thinker struct {
	settings  Settings
	collector *signals.Collector
	proposals *proposal.Service
	state     *store.Collection[models.RuntimeState]
	journal   store.Journal
	logger    *slog.Logger
	now       func() time.Time

	cycleMu   sync.Mutex
	stateMu   sync.Mutex
	status    atomic.Value // string
	startedAt time.Time
}

// Deps holds the collaborators of a Thinker.
type Deps struct {
	Settings  Settings
	Collector *signals.Collector
	Proposals *proposal.Service
	KV        store.KV
	Journal   store.Journal
	Logger    *slog.Logger
}

// New creates a Thinker. Journal and Logger are optional.
func New(d Deps) *Thinker {
	t := &Thinker{
		settings:  d.Settings.withDefaults(),
		collector: d.Collector,
		proposals: d.Proposals,
		journal:   d.Journal,
		logger:    d.Logger,
		now:       time.Now,
	}
	if t.journal == nil {
		t.journal = store.NopJournal{}
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	t.state = store.NewCollection[models.RuntimeState](d.KV, runtimePrefix, t.logger)
	t.status.Store(models.RuntimeIdle)
	t.startedAt = t.now().UTC()
	return t
}

// WithClock overrides the time source, for tests.
func (t *Thinker) WithClock(now func() time.Time) *Thinker {
	t.now = now
	t.startedAt = now().UTC()
	return t
}

// Settings returns the effective scheduler settings.
func (t *Thinker) Settings() Settings { return t.settings }

// State returns the persisted runtime state, or a fresh one if none exists yet.
func (t *Thinker) State(ctx context.Context) (models.RuntimeState, error) {
	st, err := t.state.Get(ctx, runtimeID)
	if errors.Is(err, apperr.ErrNotFound) {
		return models.RuntimeState{StartedAt: t.startedAt, Status: t.currentStatus()}, nil
	}
	if err != nil {
		return models.RuntimeState{}, fmt.Errorf("autonomy: load state: %w", err)
	}
	return *st, nil
}

// Cycle runs one think-cycle. force skips the cooldown but not the pending cap.
// Every outcome is recorded in the runtime state; errors are returned after
// being recorded.
func (t *Thinker) Cycle(ctx context.Context, force bool) (CycleResult, error) {
	now := t.now().UTC()

	pending, err := t.proposals.Store().PendingCount(ctx)
	if err != nil {
		t.logger.Warn("autonomy: pending count failed, assuming none", slog.String("error", err.Error()))
	}
	if pending >= t.settings.PendingCap {
		res := CycleResult{Reason: fmt.Sprintf("%d pending updates already in queue (cap %d)", pending, t.settings.PendingCap)}
		t.record(ctx, now, res.Reason, func(s *models.RuntimeState) { s.EmptyCycles++ })
		return res, nil
	}

	if !force {
		st, err := t.State(ctx)
		if err != nil {
			t.logger.Warn("autonomy: state unavailable for cooldown check", slog.String("error", err.Error()))
		}
		if st.LastProposalAt != nil {
			if since := now.Sub(*st.LastProposalAt); since < t.settings.Cooldown {
				res := CycleResult{Reason: fmt.Sprintf("cooldown active: last proposal %s ago, minimum interval %s",
					since.Round(time.Second), t.settings.Cooldown)}
				t.record(ctx, now, res.Reason, func(s *models.RuntimeState) { s.EmptyCycles++ })
				return res, nil
			}
		}
	}

	snap := t.collector.Collect(ctx)
	c := candidate.Build(snap)
	res := CycleResult{Title: c.Title, Severity: c.Severity}

	changes, err := content.Generate(c, snap, now)
	if err != nil {
		res.Reason = "content generation failed: " + err.Error()
		t.record(ctx, now, res.Reason, driveOnly(c.KnowledgeDrive))
		return res, fmt.Errorf("autonomy: %w", err)
	}

	u := &models.ProposedUpdate{
		ID:            uuid.NewString(),
		Title:         c.Title,
		Author:        Author,
		Severity:      c.Severity,
		Description:   c.Reason,
		Changes:       changes,
		Status:        models.StatusPending,
		CreatedAt:     now,
		AutoGenerated: true,
		Rationale:     c.Rationale,
		SourceSignals: c.SourceSignals,
		Confidence:    c.Confidence,
	}
	u.Fingerprint = fingerprint.Of(u)

	// cycleMu makes check-then-persist atomic within this process. Another
	// process sharing the store is not excluded.
	t.cycleMu.Lock()
	defer t.cycleMu.Unlock()
	dup, err := t.proposals.Store().HasActiveFingerprint(ctx, u.Fingerprint)
	if err != nil {
		res.Reason = "duplicate check failed: " + err.Error()
		t.record(ctx, now, res.Reason, driveOnly(c.KnowledgeDrive))
		return res, fmt.Errorf("autonomy: %w", err)
	}
	if dup {
		res.Duplicate = true
		res.Reason = "duplicate of an active proposal: " + c.Title
		t.logger.Info("autonomy: duplicate candidate skipped",
			slog.String("title", c.Title),
			slog.String("fingerprint", u.Fingerprint))
		t.record(ctx, now, res.Reason, func(s *models.RuntimeState) {
			s.DuplicateSkips++
			s.LastKnowledgeDrive = c.KnowledgeDrive
		})
		return res, nil
	}

	if err := t.proposals.Propose(ctx, u); err != nil {
		res.Reason = "failed to persist proposal: " + err.Error()
		t.record(ctx, now, res.Reason, driveOnly(c.KnowledgeDrive))
		return res, fmt.Errorf("autonomy: %w", err)
	}

	res.CreatedUpdate = true
	res.UpdateID = u.ID
	res.Reason = fmt.Sprintf("created %s proposal: %s", c.Severity, c.Title)
	t.logger.Info("autonomy: proposal created",
		slog.String("proposal_id", u.ID),
		slog.String("title", c.Title),
		slog.String("severity", string(c.Severity)),
		slog.Bool("forced", force))
	t.record(ctx, now, res.Reason, func(s *models.RuntimeState) {
		s.TotalProposals++
		s.LastProposalAt = &now
		s.LastKnowledgeDrive = c.KnowledgeDrive
	})
	return res, nil
}

func driveOnly(drive float64) func(*models.RuntimeState) {
	return func(s *models.RuntimeState) { s.LastKnowledgeDrive = drive }
}

// record applies one cycle outcome to the persisted state. Persistence is
// best-effort: a failure is logged and the cycle result stands. A state that
// cannot be read is left untouched rather than replaced.
func (t *Thinker) record(ctx context.Context, now time.Time, reason string, mutate func(*models.RuntimeState)) {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()

	defer t.journal.Log(ctx, "INFO", proposal.JournalCategory, "think-cycle: "+reason)

	st, err := t.State(ctx)
	if err != nil {
		t.logger.Warn("autonomy: cycle not recorded, state unreadable", slog.String("error", err.Error()))
		return
	}
	st.TotalCycles++
	st.LastCycleAt = &now
	st.LastReason = reason
	st.Status = t.currentStatus()
	if mutate != nil {
		mutate(&st)
	}
	if err := t.state.Put(ctx, runtimeID, &st); err != nil {
		t.logger.Warn("autonomy: persist state failed", slog.String("error", err.Error()))
	}
}

// setStatus updates the loop status in memory and in the persisted state.
func (t *Thinker) setStatus(ctx context.Context, status string, started bool) {
	t.status.Store(status)

	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	st, err := t.State(ctx)
	if err != nil {
		t.logger.Warn("autonomy: status not persisted, state unreadable",
			slog.String("status", status),
			slog.String("error", err.Error()))
		return
	}
	st.Status = status
	if started {
		st.StartedAt = t.now().UTC()
	}
	if err := t.state.Put(ctx, runtimeID, &st); err != nil {
		t.logger.Warn("autonomy: persist status failed", slog.String("error", err.Error()))
	}
}

func (t *Thinker) currentStatus() string {
	s, _ := t.status.Load().(string)
	return s
}
