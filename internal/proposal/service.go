package proposal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/starford/jeebs/internal/apperr"
	"github.com/starford/jeebs/internal/models"
	"github.com/starford/jeebs/internal/store"
	"github.com/starford/jeebs/internal/workspace"
)

// Event kinds passed to Publisher.PublishProposalEvent.
const (
	EventCreated    = "created"
	EventApplied    = "applied"
	EventDenied     = "denied"
	EventResolved   = "resolved"
	EventRolledBack = "rolled_back"
	EventCommented  = "commented"
)

// MaxCommentLen bounds a reviewer comment, in characters.
const MaxCommentLen = 4000

// JournalCategory tags every lifecycle entry written to the journal.
const JournalCategory = "EVOLUTION"

// Publisher receives lifecycle and notification events.
type Publisher interface {
	PublishProposalEvent(kind string, u *models.ProposedUpdate)
	PublishNotification(n *models.Notification)
}

type nopPublisher struct{}

func (nopPublisher) PublishProposalEvent(string, *models.ProposedUpdate) {}
func (nopPublisher) PublishNotification(*models.Notification)           {}

// Service runs proposal lifecycle actions. Actions are serialized so two
// reviewers cannot apply and deny the same proposal at once.
type Service struct {
	mu sync.Mutex

	store   *Store
	notes   *Notifications
	applier *workspace.Applier
	journal store.Journal
	events  Publisher
	logger  *slog.Logger
	now     func() time.Time
}

// ServiceDeps holds the collaborators of a Service.
type ServiceDeps struct {
	Store         *Store
	Notifications *Notifications
	Applier       *workspace.Applier
	Journal       store.Journal
	Events        Publisher
	Logger        *slog.Logger
}

// NewService creates a Service. Journal, Events and Logger are optional.
func NewService(d ServiceDeps) *Service {
	s := &Service{
		store:   d.Store,
		notes:   d.Notifications,
		applier: d.Applier,
		journal: d.Journal,
		events:  d.Events,
		logger:  d.Logger,
		now:     time.Now,
	}
	if s.journal == nil {
		s.journal = store.NopJournal{}
	}
	if s.events == nil {
		s.events = nopPublisher{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Store exposes the underlying record store.
func (s *Service) Store() *Store { return s.store }

// Notifications exposes the notification store.
func (s *Service) Notifications() *Notifications { return s.notes }

// Get returns one proposal.
func (s *Service) Get(ctx context.Context, id string) (*models.ProposedUpdate, error) {
	return s.store.Load(ctx, id)
}

// List returns proposals newest first, optionally restricted to one status.
func (s *Service) List(ctx context.Context, status models.ProposalStatus) ([]models.ProposedUpdate, error) {
	all, err := s.store.All(ctx)
	if err != nil || status == "" {
		return all, err
	}
	out := all[:0]
	for _, u := range all {
		if u.Status == status {
			out = append(out, u)
		}
	}
	return out, nil
}

// Propose persists a new pending proposal and, for Medium and High severity,
// raises a notification. Notification failures are logged, not returned.
func (s *Service) Propose(ctx context.Context, u *models.ProposedUpdate) error {
	u.Status = models.StatusPending
	if err := s.store.Save(ctx, u); err != nil {
		return err
	}
	s.journal.Log(ctx, "INFO", JournalCategory, fmt.Sprintf("proposal %s created: %s", u.ID, u.Title))
	s.events.PublishProposalEvent(EventCreated, u)

	if u.Severity.Notifies() && s.notes != nil {
		msg := fmt.Sprintf("New %s severity proposal: %s", u.Severity, u.Title)
		note, err := s.notes.Add(ctx, msg, u.Severity, "/api/evolution/updates/"+u.ID)
		if err != nil {
			s.logger.Warn("proposal: notification failed",
				slog.String("proposal_id", u.ID),
				slog.String("error", err.Error()))
			return nil
		}
		s.events.PublishNotification(note)
	}
	return nil
}

// Apply validates the change set, captures a backup, writes the files
// atomically and marks the proposal applied. If the applied record cannot be
// saved the files are restored and the proposal stays pending.
func (s *Service) Apply(ctx context.Context, id, actor string) (*models.ProposedUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !u.Status.CanTransition(models.StatusApplied) {
		return nil, &TransitionError{ID: id, From: u.Status, Action: "apply", Msg: MsgAlreadyProcessed}
	}
	if err := s.applier.Validate(u.Changes); err != nil {
		return nil, err
	}
	backup, err := s.applier.Snapshot(u.Changes)
	if err != nil {
		return nil, fmt.Errorf("proposal: apply %s: %w", id, err)
	}
	dirs, err := s.applier.ApplyAtomically(u.Changes)
	if err != nil {
		s.journal.Log(ctx, "ERROR", JournalCategory, fmt.Sprintf("apply of %s failed and was reverted: %v", id, err))
		return nil, fmt.Errorf("proposal: apply %s: %w", id, err)
	}

	now := s.now().UTC()
	u.Status = models.StatusApplied
	u.Backup = backup
	u.CreatedDirs = dirs
	u.AppliedAt = &now
	if err := s.store.Save(ctx, u); err != nil {
		if rerr := s.applier.Restore(backup, dirs); rerr != nil {
			s.logger.Error("proposal: restore after failed save",
				slog.String("proposal_id", id),
				slog.String("error", rerr.Error()))
			err = errors.Join(err, rerr)
		}
		return nil, fmt.Errorf("proposal: apply %s: %w", id, err)
	}

	s.logger.Info("proposal applied",
		slog.String("proposal_id", id),
		slog.String("actor", actor),
		slog.Int("files", len(u.Changes)))
	s.journal.Log(ctx, "INFO", JournalCategory, fmt.Sprintf("proposal %s applied by %s", id, actor))
	s.events.PublishProposalEvent(EventApplied, u)
	return u, nil
}

// Rollback restores the backup of an applied proposal.
func (s *Service) Rollback(ctx context.Context, id, actor string) (*models.ProposedUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !u.Status.CanTransition(models.StatusRolledBack) {
		return nil, &TransitionError{ID: id, From: u.Status, Action: "rollback", Msg: MsgNotApplied}
	}
	// An empty backup is valid: every file was new.
	if u.Backup == nil {
		return nil, &TransitionError{ID: id, From: u.Status, Action: "rollback", Msg: MsgNoBackup}
	}
	if err := s.applier.Restore(u.Backup, u.CreatedDirs); err != nil {
		s.journal.Log(ctx, "ERROR", JournalCategory, fmt.Sprintf("rollback of %s failed: %v", id, err))
		return nil, fmt.Errorf("proposal: rollback %s: %w", id, err)
	}

	now := s.now().UTC()
	u.Status = models.StatusRolledBack
	u.RolledBackAt = &now
	if err := s.store.Save(ctx, u); err != nil {
		if _, rerr := s.applier.ApplyAtomically(u.Changes); rerr != nil {
			err = errors.Join(err, rerr)
		}
		return nil, fmt.Errorf("proposal: rollback %s: %w", id, err)
	}

	s.logger.Info("proposal rolled back", slog.String("proposal_id", id), slog.String("actor", actor))
	s.journal.Log(ctx, "WARN", JournalCategory, fmt.Sprintf("proposal %s rolled back by %s", id, actor))
	s.events.PublishProposalEvent(EventRolledBack, u)
	return u, nil
}

// Deny closes a pending proposal without touching the filesystem.
func (s *Service) Deny(ctx context.Context, id, actor string) (*models.ProposedUpdate, error) {
	return s.close(ctx, id, actor, models.StatusDenied)
}

// Resolve marks a pending proposal as handled outside the applier.
func (s *Service) Resolve(ctx context.Context, id, actor string) (*models.ProposedUpdate, error) {
	return s.close(ctx, id, actor, models.StatusResolved)
}

func (s *Service) close(ctx context.Context, id, actor string, to models.ProposalStatus) (*models.ProposedUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !u.Status.CanTransition(to) {
		return nil, &TransitionError{ID: id, From: u.Status, Action: string(to), Msg: MsgAlreadyProcessed}
	}

	now := s.now().UTC()
	u.Status = to
	event := EventDenied
	if to == models.StatusDenied {
		u.DeniedAt = &now
	} else {
		u.ResolvedAt = &now
		event = EventResolved
	}
	if err := s.store.Save(ctx, u); err != nil {
		return nil, err
	}

	s.logger.Info("proposal "+string(to), slog.String("proposal_id", id), slog.String("actor", actor))
	s.journal.Log(ctx, "INFO", JournalCategory, fmt.Sprintf("proposal %s %s by %s", id, to, actor))
	s.events.PublishProposalEvent(event, u)
	return u, nil
}

// Comment appends a reviewer comment. Comments are accepted in every state
// and never change the status.
func (s *Service) Comment(ctx context.Context, id, actor, content string) (*models.ProposedUpdate, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: comment content is required", apperr.ErrValidation)
	}
	if utf8.RuneCountInString(content) > MaxCommentLen {
		return nil, fmt.Errorf("%w: comment exceeds %d characters", apperr.ErrValidation, MaxCommentLen)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Comments = append(u.Comments, models.Comment{
		Author:    actor,
		Content:   content,
		Timestamp: s.now().UTC(),
	})
	if err := s.store.Save(ctx, u); err != nil {
		return nil, err
	}
	s.events.PublishProposalEvent(EventCommented, u)
	return u, nil
}
