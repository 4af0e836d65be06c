package autonomy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/starford/jeebs/internal/apperr"
	"github.com/starford/jeebs/internal/models"
	"github.com/starford/jeebs/internal/proposal"
	"github.com/starford/jeebs/internal/signals"
	"github.com/starford/jeebs/internal/store"
	"github.com/starford/jeebs/internal/workspace"
)

// memKV is an in-memory store.KV.
type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemKV() *memKV { return &memKV{data: map[string][]byte{}} }

func (m *memKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return v, nil
}

func (m *memKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memKV) Scan(_ context.Context, prefix string) ([]store.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Entry
	for k, v := range m.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, store.Entry{Key: k, Value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

type fakeSource struct {
	errors int
	chats  int
}

func (f fakeSource) CountLogs(_ context.Context, level string, _ time.Time) (int, error) {
	if level == "ERROR" {
		return f.errors, nil
	}
	return 0, nil
}
func (f fakeSource) CountChatLogs(context.Context, time.Time) (int, error) { return f.chats, nil }
func (f fakeSource) CountBrainNodes(context.Context) (int, error)         { return 100, nil }
func (f fakeSource) CountLearnedFacts(context.Context) (int, error)       { return 100, nil }
func (f fakeSource) ChatTurns(context.Context, time.Time) ([]models.ChatTurn, error) {
	return nil, nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	thinker *Thinker
	svc     *proposal.Service
	clock   *fakeClock
	kv      *memKV
}

func newFixture(t *testing.T, src signals.Source, settings Settings) *fixture {
	t.Helper()
	kv := newMemKV()
	fs, err := workspace.NewFS(t.TempDir())
	require.NoError(t, err)

	clock := &fakeClock{t: time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)}
	props := proposal.NewStore(kv, nil)
	svc := proposal.NewService(proposal.ServiceDeps{
		Store:         props,
		Notifications: proposal.NewNotifications(kv, 50, nil),
		Applier:       workspace.NewApplier(fs, workspace.DefaultPolicy(), nil),
	}).WithClock(clock.Now)

	th := New(Deps{
		Settings:  settings,
		Collector: signals.NewCollector(src, props, nil).WithClock(clock.Now),
		Proposals: svc,
		KV:        kv,
	}).WithClock(clock.Now)
	return &fixture{thinker: th, svc: svc, clock: clock, kv: kv}
}

func testSettings() Settings {
	return Settings{Enabled: true, Interval: time.Hour, Cooldown: 15 * time.Minute, PendingCap: 12}
}

func (f *fixture) state(t *testing.T) models.RuntimeState {
	t.Helper()
	st, err := f.thinker.State(context.Background())
	require.NoError(t, err)
	return st
}

func (f *fixture) count(t *testing.T) int {
	t.Helper()
	all, err := f.svc.Store().All(context.Background())
	require.NoError(t, err)
	return len(all)
}

func TestCycle_PendingCapBlocksForcedCycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fakeSource{errors: 7}, testSettings())
	for i := 0; i < 12; i++ {
		require.NoError(t, f.svc.Store().Save(ctx, &models.ProposedUpdate{
			ID:          fmt.Sprintf("seed-%02d", i),
			Status:      models.StatusPending,
			Fingerprint: fmt.Sprintf("fp-%d", i),
			CreatedAt:   f.clock.Now(),
		}))
	}

	res, err := f.thinker.Cycle(ctx, true)
	require.NoError(t, err)
	assert.False(t, res.CreatedUpdate)
	assert.Contains(t, res.Reason, "pending updates already in queue")
	assert.Equal(t, 12, f.count(t))

	st := f.state(t)
	assert.EqualValues(t, 1, st.TotalCycles)
	assert.EqualValues(t, 1, st.EmptyCycles)
	assert.EqualValues(t, 0, st.TotalProposals)
	assert.Equal(t, res.Reason, st.LastReason)
}

func TestCycle_CreateCooldownAndDedup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fakeSource{errors: 7}, testSettings())

	res, err := f.thinker.Cycle(ctx, false)
	require.NoError(t, err)
	require.True(t, res.CreatedUpdate)
	assert.Equal(t, models.SeverityHigh, res.Severity)
	assert.Equal(t, "Stability hardening sprint", res.Title)

	u, err := f.svc.Get(ctx, res.UpdateID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, u.Status)
	assert.True(t, u.AutoGenerated)
	assert.Equal(t, Author, u.Author)
	assert.Len(t, u.Changes, 4)
	assert.NotEmpty(t, u.Fingerprint)
	assert.InDelta(t, 0.92, u.Confidence, 1e-6)

	notes, err := f.svc.Notifications().List(ctx)
	require.NoError(t, err)
	assert.Len(t, notes, 1)

	// Within the cooldown an unforced cycle is empty.
	f.clock.Advance(time.Minute)
	res, err = f.thinker.Cycle(ctx, false)
	require.NoError(t, err)
	assert.False(t, res.CreatedUpdate)
	assert.Contains(t, res.Reason, "cooldown")

	// Forcing skips the cooldown but hits the duplicate check.
	res, err = f.thinker.Cycle(ctx, true)
	require.NoError(t, err)
	assert.False(t, res.CreatedUpdate)
	assert.True(t, res.Duplicate)

	// Regenerated later with new paths and timestamps: still a duplicate.
	f.clock.Advance(2 * time.Hour)
	res, err = f.thinker.Cycle(ctx, false)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, 1, f.count(t))

	st := f.state(t)
	assert.EqualValues(t, 4, st.TotalCycles)
	assert.EqualValues(t, 1, st.TotalProposals)
	assert.EqualValues(t, 1, st.EmptyCycles)
	assert.EqualValues(t, 2, st.DuplicateSkips)
	require.NotNil(t, st.LastProposalAt)
	require.NotNil(t, st.LastCycleAt)
	assert.True(t, st.LastCycleAt.After(*st.LastProposalAt))
}

func TestCycle_DeniedProposalDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fakeSource{errors: 7}, testSettings())

	first, err := f.thinker.Cycle(ctx, true)
	require.NoError(t, err)
	require.True(t, first.CreatedUpdate)
	_, err = f.svc.Deny(ctx, first.UpdateID, "root")
	require.NoError(t, err)

	second, err := f.thinker.Cycle(ctx, true)
	require.NoError(t, err)
	assert.True(t, second.CreatedUpdate)
	assert.NotEqual(t, first.UpdateID, second.UpdateID)
}

func TestCycle_LowSeverityHasNoNotification(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fakeSource{}, testSettings())

	res, err := f.thinker.Cycle(ctx, true)
	require.NoError(t, err)
	require.True(t, res.CreatedUpdate)
	assert.Equal(t, models.SeverityLow, res.Severity)

	notes, err := f.svc.Notifications().List(ctx)
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestCycle_ConcurrentForcedCycles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fakeSource{errors: 9}, testSettings())

	var wg sync.WaitGroup
	results := make([]CycleResult, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.thinker.Cycle(ctx, true)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	created, dups := 0, 0
	for _, r := range results {
		if r.CreatedUpdate {
			created++
		}
		if r.Duplicate {
			dups++
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, dups)

	st := f.state(t)
	assert.EqualValues(t, 2, st.TotalCycles)
	assert.EqualValues(t, created, st.TotalProposals)
	assert.EqualValues(t, dups, st.DuplicateSkips)
}

func TestRun_StopsOnCancel(t *testing.T) {
	warmCodec(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	settings := testSettings()
	settings.Interval = 10 * time.Millisecond
	f := newFixture(t, fakeSource{errors: 7}, settings)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.thinker.Run(ctx) }()

	require.Eventually(t, func() bool {
		return f.state(t).TotalCycles >= 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, models.RuntimeRunning, f.state(t).Status)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	st := f.state(t)
	assert.Equal(t, models.RuntimeStopped, st.Status)
	assert.EqualValues(t, 1, st.TotalProposals)
	assert.GreaterOrEqual(t, st.EmptyCycles, int64(2))
}

func TestRun_Disabled(t *testing.T) {
	settings := testSettings()
	settings.Enabled = false
	f := newFixture(t, fakeSource{errors: 7}, settings)

	require.NoError(t, f.thinker.Run(context.Background()))
	st := f.state(t)
	assert.Equal(t, models.RuntimeDisabled, st.Status)
	assert.Zero(t, st.TotalCycles)
	assert.Zero(t, f.count(t))
}

func TestState_DefaultsBeforeFirstCycle(t *testing.T) {
	f := newFixture(t, fakeSource{}, testSettings())
	st := f.state(t)
	assert.Equal(t, models.RuntimeIdle, st.Status)
	assert.Equal(t, f.clock.Now(), st.StartedAt)
	assert.Nil(t, st.LastCycleAt)
}

func TestCycle_UnreadableStateIsNotOverwritten(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fakeSource{errors: 7}, testSettings())
	corrupt := []byte{store.FrameZstdJSON, 'x'}
	require.NoError(t, f.kv.Set(ctx, RuntimeStateKey, corrupt))

	_, err := f.thinker.Cycle(ctx, true)
	require.NoError(t, err)
	f.thinker.setStatus(ctx, models.RuntimeRunning, true)

	raw, err := f.kv.Get(ctx, RuntimeStateKey)
	require.NoError(t, err)
	assert.Equal(t, corrupt, raw)
	_, err = f.thinker.State(ctx)
	assert.Error(t, err)
}

func TestClampSeconds(t *testing.T) {
	assert.Equal(t, 30, ClampSeconds(0))
	assert.Equal(t, 30, ClampSeconds(-5))
	assert.Equal(t, 300, ClampSeconds(300))
	assert.Equal(t, 86400, ClampSeconds(1_000_000))
}

func warmCodec(t *testing.T) {
	t.Helper()
	data, err := store.Encode(map[string]int{"warm": 1})
	require.NoError(t, err)
	var v map[string]int
	require.NoError(t, store.Decode(data, &v))
}
