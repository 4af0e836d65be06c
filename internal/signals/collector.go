package signals

import (
	"context"
	"log/slog"
	"time"

	"github.com/starford/jeebs/internal/models"
)

// Source is the read-only query surface of the logging and knowledge collaborators.
type Source interface {
	CountLogs(ctx context.Context, level string, since time.Time) (int, error)
	CountChatLogs(ctx context.Context, since time.Time) (int, error)
	CountBrainNodes(ctx context.Context) (int, error)
	CountLearnedFacts(ctx context.Context) (int, error)
	ChatTurns(ctx context.Context, since time.Time) ([]models.ChatTurn, error)
}

// PendingCounter reports how many proposals await review.
type PendingCounter interface {
	PendingCount(ctx context.Context) (int, error)
}

// Collector builds Snapshots. Every sub-query is best-effort: a failing query
// degrades its field to zero instead of aborting the snapshot.
type Collector struct {
	src     Source
	pending PendingCounter
	logger  *slog.Logger
	now     func() time.Time
}

// NewCollector creates a Collector. pending may be nil.
func NewCollector(src Source, pending PendingCounter, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{src: src, pending: pending, logger: logger, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (c *Collector) WithClock(now func() time.Time) *Collector {
	c.now = now
	return c
}

// Collect queries every signal over the trailing Window.
func (c *Collector) Collect(ctx context.Context) Snapshot {
	now := c.now()
	since := now.Add(-Window)

	s := Snapshot{CollectedAt: now}
	s.ErrorLast24h = c.count("error_logs", func() (int, error) { return c.src.CountLogs(ctx, "ERROR", since) })
	s.WarnLast24h = c.count("warn_logs", func() (int, error) { return c.src.CountLogs(ctx, "WARN", since) })
	s.ChatLast24h = c.count("chat_logs", func() (int, error) { return c.src.CountChatLogs(ctx, since) })
	s.BrainNodes = c.count("brain_nodes", func() (int, error) { return c.src.CountBrainNodes(ctx) })
	s.LearnedFacts = c.count("learned_facts", func() (int, error) { return c.src.CountLearnedFacts(ctx) })
	if c.pending != nil {
		s.PendingProposals = c.count("pending_proposals", func() (int, error) { return c.pending.PendingCount(ctx) })
	}

	turns, err := c.src.ChatTurns(ctx, since)
	if err != nil {
		c.logger.Warn("signals: query failed, using zero",
			slog.String("signal", "unanswered_questions"),
			slog.String("error", err.Error()))
	}
	questions := UnansweredQuestions(turns)
	s.UnansweredLast24h = len(questions)
	s.UnknownTopics = TopTopics(questions, MaxTopics)

	return s
}

func (c *Collector) count(name string, fn func() (int, error)) int {
	n, err := fn()
	if err != nil {
		c.logger.Warn("signals: query failed, using zero",
			slog.String("signal", name),
			slog.String("error", err.Error()))
		return 0
	}
	return n
}
