package fingerprint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/jeebs/internal/candidate"
	"github.com/starford/jeebs/internal/content"
	"github.com/starford/jeebs/internal/models"
	"github.com/starford/jeebs/internal/signals"
)

func build(t *testing.T, s signals.Snapshot, now time.Time) *models.ProposedUpdate {
	t.Helper()
	c := candidate.Build(s)
	changes, err := content.Generate(c, s, now)
	require.NoError(t, err)
	return &models.ProposedUpdate{
		ID:            now.String(),
		Title:         c.Title,
		Description:   c.Reason,
		Changes:       changes,
		Rationale:     c.Rationale,
		SourceSignals: c.SourceSignals,
		CreatedAt:     now,
	}
}

func TestOf_StableAcrossRegeneration(t *testing.T) {
	s := signals.Snapshot{
		ErrorLast24h:  7,
		ChatLast24h:   12,
		UnknownTopics: []signals.TopicCount{{Topic: "graph databases", Count: 2}},
	}
	t1 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	t2 := t1.Add(49*time.Hour + 17*time.Second)

	a := build(t, s, t1)
	b := build(t, s, t2)
	require.NotEqual(t, a.Changes[0].Path, b.Changes[0].Path)
	require.NotEqual(t, a.Changes[0].NewContent, b.Changes[0].NewContent)

	assert.Equal(t, Of(a), Of(b))
	assert.Len(t, Of(a), 64)
}

func TestOf_DiffersOnSignals(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := build(t, signals.Snapshot{ErrorLast24h: 7}, now)
	b := build(t, signals.Snapshot{ErrorLast24h: 8}, now)
	assert.NotEqual(t, Of(a), Of(b))
}

func TestOf_NormalizesWhitespaceAndCase(t *testing.T) {
	a := &models.ProposedUpdate{Title: "Stability  Hardening", Description: "many\terrors", Rationale: []string{" A "}}
	b := &models.ProposedUpdate{Title: "stability hardening", Description: "MANY errors", Rationale: []string{"a"}}
	assert.Equal(t, Of(a), Of(b))

	b.Status = models.StatusApplied
	b.ID = "other"
	assert.Equal(t, Of(a), Of(b))
}

func TestStablePath(t *testing.T) {
	cases := map[string]string{
		"evolution/reflections/20260102-030405-stability.md": "evolution/reflections/stability.md",
		"evolution/reflections/stability.md":                 "evolution/reflections/stability.md",
		"20260102-030405-root.md":                            "root.md",
		"evolution/20260102-030405/x.md":                     "evolution/20260102-030405/x.md",
		"evolution/2026010-030405-short.md":                  "evolution/2026010-030405-short.md",
	}
	for in, want := range cases {
		assert.Equal(t, want, StablePath(in), in)
	}
}

func TestContentHash_IgnoresVolatileLines(t *testing.T) {
	a := "# T\nGenerated at: 2026-01-01T00:00:00Z\nbody\nRun Timestamp: 1\n"
	b := "# T\ngenerated AT: yesterday\nbody\nGENERATED ON: today\n"
	assert.Equal(t, ContentHash(a), ContentHash(b))
	assert.NotEqual(t, ContentHash(a), ContentHash("# T\nbody changed\n"))
}
