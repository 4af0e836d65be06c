package proposal

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/starford/jeebs/internal/models"
	"github.com/starford/jeebs/internal/store"
)

// NotificationPrefix is the KV key prefix of every Notification.
const NotificationPrefix = "notification:"

// DefaultNotificationCap bounds how many notifications are retained.
const DefaultNotificationCap = 200

// Notifications stores operator notifications, evicting the oldest beyond a cap.
type Notifications struct {
	coll   *store.Collection[models.Notification]
	cap    int
	logger *slog.Logger
	now    func() time.Time
}

// NewNotifications creates a notification store retaining at most limit entries.
func NewNotifications(kv store.KV, limit int, logger *slog.Logger) *Notifications {
	if limit <= 0 {
		limit = DefaultNotificationCap
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifications{
		coll:   store.NewCollection[models.Notification](kv, NotificationPrefix, logger),
		cap:    limit,
		logger: logger,
		now:    time.Now,
	}
}

// Add stores a new notification and evicts the oldest ones beyond the cap.
func (n *Notifications) Add(ctx context.Context, message string, severity models.Severity, link string) (*models.Notification, error) {
	note := &models.Notification{
		ID:        uuid.NewString(),
		Message:   message,
		Severity:  severity,
		CreatedAt: n.now().UTC(),
		Link:      link,
	}
	if err := n.coll.Put(ctx, note.ID, note); err != nil {
		return nil, fmt.Errorf("proposal: add notification: %w", err)
	}
	if err := n.evict(ctx); err != nil {
		n.logger.Warn("proposal: notification eviction failed", slog.String("error", err.Error()))
	}
	return note, nil
}

// List returns every notification, newest first.
func (n *Notifications) List(ctx context.Context) ([]models.Notification, error) {
	all, err := n.coll.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("proposal: list notifications: %w", err)
	}
	sortNewestFirst(all)
	return all, nil
}

// Dismiss deletes the notification with id, or returns apperr.ErrNotFound.
func (n *Notifications) Dismiss(ctx context.Context, id string) error {
	if _, err := n.coll.Get(ctx, id); err != nil {
		return fmt.Errorf("proposal: dismiss %s: %w", id, err)
	}
	if err := n.coll.Delete(ctx, id); err != nil {
		return fmt.Errorf("proposal: dismiss %s: %w", id, err)
	}
	return nil
}

func (n *Notifications) evict(ctx context.Context) error {
	all, err := n.coll.All(ctx)
	if err != nil {
		return err
	}
	if len(all) <= n.cap {
		return nil
	}
	sortNewestFirst(all)
	for _, old := range all[n.cap:] {
		if err := n.coll.Delete(ctx, old.ID); err != nil {
			return err
		}
	}
	return nil
}

func sortNewestFirst(ns []models.Notification) {
	sort.Slice(ns, func(i, j int) bool {
		if !ns[i].CreatedAt.Equal(ns[j].CreatedAt) {
			return ns[i].CreatedAt.After(ns[j].CreatedAt)
		}
		return ns[i].ID > ns[j].ID
	})
}

// WithClock overrides the time source, for tests.
func (n *Notifications) WithClock(now func() time.Time) *Notifications {
	n.now = now
	return n
}
