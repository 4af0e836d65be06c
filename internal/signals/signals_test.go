package signals

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/jeebs/internal/models"
)

type fakeSource struct {
	errors, warns, chats, nodes, facts int
	turns                              []models.ChatTurn
	fail                               map[string]bool
	since                              time.Time
}

var errQuery = errors.New("query failed")

func (f *fakeSource) CountLogs(_ context.Context, level string, since time.Time) (int, error) {
	f.since = since
	if f.fail["logs"] {
		return 0, errQuery
	}
	if level == "ERROR" {
		return f.errors, nil
	}
	return f.warns, nil
}

func (f *fakeSource) CountChatLogs(context.Context, time.Time) (int, error) {
	if f.fail["chat"] {
		return 0, errQuery
	}
	return f.chats, nil
}

func (f *fakeSource) CountBrainNodes(context.Context) (int, error) {
	if f.fail["nodes"] {
		return 0, errQuery
	}
	return f.nodes, nil
}

func (f *fakeSource) CountLearnedFacts(context.Context) (int, error) { return f.facts, nil }

func (f *fakeSource) ChatTurns(context.Context, time.Time) ([]models.ChatTurn, error) {
	if f.fail["turns"] {
		return nil, errQuery
	}
	return f.turns, nil
}

type pendingFunc func() (int, error)

func (p pendingFunc) PendingCount(context.Context) (int, error) { return p() }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func turn(user, role, content string) models.ChatTurn {
	return models.ChatTurn{Username: user, Role: role, Content: content}
}

func TestCollect_AggregatesAllSignals(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{
		errors: 7, warns: 3, chats: 20, nodes: 4, facts: 2,
		turns: []models.ChatTurn{
			turn("ann", "user", "What is quantum entanglement?"),
			turn("ann", "assistant", "I don't know yet."),
			turn("bob", "user", "Tell me about quantum entanglement"),
			turn("bob", "assistant", "I’m not sure, sorry."),
			turn("bob", "user", "hello"),
			turn("bob", "assistant", "Hi there!"),
		},
	}
	c := NewCollector(src, pendingFunc(func() (int, error) { return 3, nil }), quietLogger()).
		WithClock(func() time.Time { return now })

	s := c.Collect(context.Background())

	assert.Equal(t, now.Add(-Window), src.since)
	want := Snapshot{
		CollectedAt:       now,
		ErrorLast24h:      7,
		WarnLast24h:       3,
		ChatLast24h:       20,
		UnansweredLast24h: 2,
		BrainNodes:        4,
		LearnedFacts:      2,
		PendingProposals:  3,
		UnknownTopics:     []TopicCount{{Topic: "quantum entanglement", Count: 2}},
	}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestCollect_DegradesFailedQueriesToZero(t *testing.T) {
	src := &fakeSource{
		errors: 9, chats: 5, nodes: 8, facts: 1,
		fail: map[string]bool{"logs": true, "nodes": true, "turns": true},
	}
	pending := pendingFunc(func() (int, error) { return 0, errQuery })
	s := NewCollector(src, pending, quietLogger()).Collect(context.Background())

	assert.Zero(t, s.ErrorLast24h)
	assert.Zero(t, s.WarnLast24h)
	assert.Zero(t, s.BrainNodes)
	assert.Zero(t, s.PendingProposals)
	assert.Zero(t, s.UnansweredLast24h)
	assert.Empty(t, s.UnknownTopics)
	assert.Equal(t, 5, s.ChatLast24h)
	assert.Equal(t, 1, s.LearnedFacts)
}

func TestUnansweredQuestions_PairsPerUser(t *testing.T) {
	turns := []models.ChatTurn{
		turn("a", "user", "q1"),
		turn("b", "user", "q2"),
		turn("b", "assistant", "I do not know."),
		turn("a", "assistant", "Sure, here it is."),
		turn("a", "assistant", "I don't know"), // no pending question
		turn("c", "user", "q3"),               // never answered
	}
	assert.Equal(t, []string{"q2"}, UnansweredQuestions(turns))
}

func TestTopicKey(t *testing.T) {
	cases := map[string]string{
		"What is the capital of France?":                 "capital france",
		"How do I configure Rust's borrow checker?":      "configure rust borrow checker",
		"a an of to":                                     "",
		"one two three four five six seven eight nine":   "one two three four five six",
		"Explain GRAPH databases & Neo4j, please!!":      "graph databases neo4j",
	}
	for in, want := range cases {
		assert.Equal(t, want, TopicKey(in), in)
	}
}

func TestTopTopics_OrderAndLimit(t *testing.T) {
	var qs []string
	for i := 0; i < 3; i++ {
		qs = append(qs, "zebra migration")
	}
	qs = append(qs, "alpha particles", "beta decay", "beta decay")
	for _, w := range []string{"one", "two", "three", "four", "five", "six", "seven", "eight"} {
		qs = append(qs, "topic "+w+"word")
	}

	got := TopTopics(qs, MaxTopics)
	require.Len(t, got, MaxTopics)
	assert.Equal(t, TopicCount{Topic: "zebra migration", Count: 3}, got[0])
	assert.Equal(t, TopicCount{Topic: "beta decay", Count: 2}, got[1])
	assert.Equal(t, TopicCount{Topic: "alpha particles", Count: 1}, got[2])
}

func TestKnowledgeDrive(t *testing.T) {
	assert.Zero(t, Snapshot{ErrorLast24h: 7}.KnowledgeDrive())

	hot := Snapshot{
		ChatLast24h:       60,
		UnansweredLast24h: 40,
		UnknownTopics:     []TopicCount{{Topic: "x", Count: 12}},
	}
	assert.InDelta(t, 0.35*(40.0/60.0)+0.20+0.25+0.20, hot.KnowledgeDrive(), 1e-9)
	assert.True(t, hot.SparseKnowledge())

	covered := Snapshot{ChatLast24h: 10, BrainNodes: 30}
	assert.False(t, covered.SparseKnowledge())
	assert.InDelta(t, 0.04, covered.KnowledgeDrive(), 1e-9)
}

func TestLinesAreStable(t *testing.T) {
	s := Snapshot{ErrorLast24h: 1, WarnLast24h: 2}
	assert.Equal(t, s.Lines(), s.Lines())
	assert.Equal(t, "error_last_24h=1", s.Lines()[0])
}

func TestLinesIgnorePendingProposals(t *testing.T) {
	a := Snapshot{ErrorLast24h: 3}
	b := Snapshot{ErrorLast24h: 3, PendingProposals: 5}
	assert.Equal(t, a.Lines(), b.Lines())
	assert.Len(t, a.Lines(), 6)
}
