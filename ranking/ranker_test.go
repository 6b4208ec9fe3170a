package ranking

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/najoast/socialshard/core"
	"github.com/najoast/socialshard/metrics"
	"github.com/najoast/socialshard/store"
	"github.com/najoast/socialshard/store/memory"
)

const aggregator = core.Identity("actor:post_cache")

type sent struct {
	to      core.Identity
	method  string
	entries []Entry
}

type recordingNotifier struct {
	calls []sent
	err   error
}

func (n *recordingNotifier) Notify(to core.Identity, method string, args any) error {
	n.calls = append(n.calls, sent{to: to, method: method, entries: args.([]Entry)})
	return n.err
}

func newRanker(t *testing.T) (*Ranker, store.Store) {
	t.Helper()
	slots := memory.New()
	return NewRanker(slots, self, Config{
		SoftCap:    DefaultSoftCap,
		HardCap:    DefaultHardCap,
		TopN:       DefaultTopN,
		Aggregator: aggregator,
	}, nil), slots
}

func TestUpdateScorePersists(t *testing.T) {
	r, slots := newRanker(t)
	ctx := context.Background()

	require.NoError(t, r.UpdateScore(ctx, 1, 10))
	require.NoError(t, r.UpdateScore(ctx, 2, 20))
	require.NoError(t, r.UpdateScore(ctx, 1, 30))

	persisted, err := store.Load[[]Entry](ctx, slots, store.SlotPostsByScore)
	require.NoError(t, err)
	assert.Equal(t, []Entry{entry(30, 1), entry(20, 2)}, persisted)
}

func TestUpdateScoreWritesKeyedView(t *testing.T) {
	r, slots := newRanker(t)
	ctx := context.Background()

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 400; i++ {
		require.NoError(t, r.UpdateScore(ctx, uint64(rng.Intn(200)), uint64(rng.Intn(1000))))

		ix, err := r.Index(ctx)
		require.NoError(t, err)
		legacy, err := r.Legacy(ctx)
		require.NoError(t, err)
		require.Equal(t, ix.Legacy(), legacy)
		require.Equal(t, ix.Entries(), legacy.Ordered())
	}

	raw, err := slots.Get(ctx, store.SlotPostsByScoreOld)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"actor:user/u1#`)
}

func TestLegacyEmptyBeforeFirstUpdate(t *testing.T) {
	r, _ := newRanker(t)
	legacy, err := r.Legacy(context.Background())
	require.NoError(t, err)
	assert.Empty(t, legacy)
}

func TestUpdateScoreTrimsAcrossCalls(t *testing.T) {
	r, _ := newRanker(t)
	ctx := context.Background()

	for s := uint64(1); s <= 151; s++ {
		require.NoError(t, r.UpdateScore(ctx, s, s))
	}

	ix, err := r.Index(ctx)
	require.NoError(t, err)
	require.Equal(t, 100, ix.Len())
	assert.Equal(t, uint64(151), ix.Entries()[0].Score)
	assert.Equal(t, uint64(52), ix.Entries()[99].Score)
	assertParity(t, ix)
}

func TestBroadcastTop(t *testing.T) {
	r, _ := newRanker(t)
	ctx := context.Background()
	for i, s := range []uint64{10, 50, 30, 90, 5} {
		require.NoError(t, r.UpdateScore(ctx, uint64(i+1), s))
	}

	n := &recordingNotifier{}
	top, err := r.BroadcastTop(ctx, n)
	require.NoError(t, err)

	require.Len(t, n.calls, 1)
	assert.Equal(t, aggregator, n.calls[0].to)
	assert.Equal(t, ReceiveTopPosts, n.calls[0].method)
	assert.Equal(t, []uint64{90, 50, 30}, scores(n.calls[0].entries))
	assert.Equal(t, top, n.calls[0].entries)
	for _, e := range top {
		assert.Equal(t, self, e.Publisher)
	}
}

func TestBroadcastTopSendsFewerWhenSmall(t *testing.T) {
	r, _ := newRanker(t)
	ctx := context.Background()

	n := &recordingNotifier{}
	_, err := r.BroadcastTop(ctx, n)
	require.NoError(t, err)
	require.Len(t, n.calls, 1)
	assert.Empty(t, n.calls[0].entries)

	require.NoError(t, r.UpdateScore(ctx, 7, 70))
	_, err = r.BroadcastTop(ctx, n)
	require.NoError(t, err)
	assert.Len(t, n.calls[1].entries, 1)
}

func TestBroadcastFailureIsSwallowed(t *testing.T) {
	slots := memory.New()
	m := metrics.New(prometheus.NewRegistry())
	r := NewRanker(slots, self, Config{Aggregator: aggregator}, m)
	ctx := context.Background()
	require.NoError(t, r.UpdateScore(ctx, 1, 1))

	n := &recordingNotifier{err: errors.New("aggregator unreachable")}
	top, err := r.BroadcastTop(ctx, n)
	assert.NoError(t, err)
	assert.Len(t, top, 1)

	// The next broadcast resends the current snapshot
	n.err = nil
	require.NoError(t, r.UpdateScore(ctx, 2, 5))
	top, err = r.BroadcastTop(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, []uint64{5, 1}, scores(top))
	assert.Len(t, n.calls, 2)
}
