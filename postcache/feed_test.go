package postcache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/najoast/socialshard/core"
	"github.com/najoast/socialshard/ranking"
	"github.com/najoast/socialshard/store/memory"
)

func entries(pub core.Identity, scores ...uint64) []ranking.Entry {
	out := make([]ranking.Entry, len(scores))
	for i, s := range scores {
		out[i] = ranking.Entry{Score: s, PostID: uint64(i + 1), Publisher: pub}
	}
	return out
}

func TestFeedReceiveFiltersPublisher(t *testing.T) {
	ctx := context.Background()
	f := NewFeed(memory.New(), FeedConfig{})

	mixed := append(entries("actor:user/a", 10, 20), entries("actor:user/b", 30)...)
	accepted, size, err := f.Receive(ctx, "actor:user/a", mixed)
	require.NoError(t, err)
	assert.Equal(t, 2, accepted)
	assert.Equal(t, 2, size)

	accepted, size, err = f.Receive(ctx, "actor:user/c", mixed)
	require.NoError(t, err)
	assert.Zero(t, accepted)
	assert.Equal(t, 2, size)
}

func TestFeedReceiveReplacesSameKey(t *testing.T) {
	ctx := context.Background()
	f := NewFeed(memory.New(), FeedConfig{})

	_, _, err := f.Receive(ctx, "actor:user/a", entries("actor:user/a", 10, 20))
	require.NoError(t, err)
	_, size, err := f.Receive(ctx, "actor:user/a", entries("actor:user/a", 99))
	require.NoError(t, err)
	assert.Equal(t, 2, size)

	page, err := f.Page(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint64{99, 20}, []uint64{page[0].Score, page[1].Score})
}

func TestFeedTrims(t *testing.T) {
	ctx := context.Background()
	f := NewFeed(memory.New(), FeedConfig{SoftCap: 5, HardCap: 3})

	for i := uint64(1); i <= 6; i++ {
		pub := core.ActorIdentity("user/p")
		_, _, err := f.Receive(ctx, pub, []ranking.Entry{{Score: i, PostID: i, Publisher: pub}})
		require.NoError(t, err)
	}
	n, err := f.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestFeedPage(t *testing.T) {
	ctx := context.Background()
	f := NewFeed(memory.New(), FeedConfig{})
	_, _, err := f.Receive(ctx, "actor:user/a", entries("actor:user/a", 50, 40, 30, 20, 10))
	require.NoError(t, err)

	tests := []struct {
		name     string
		from, to uint64
		want     []uint64
		err      FetchError
	}{
		{name: "head", from: 0, to: 2, want: []uint64{50, 40}},
		{name: "clamped", from: 3, to: 50, want: []uint64{20, 10}},
		{name: "empty bounds", from: 2, to: 2, err: InvalidBoundsPassed},
		{name: "reversed", from: 4, to: 1, err: InvalidBoundsPassed},
		{name: "too wide", from: 0, to: 101, err: ExceededMaxNumberOfItemsAllowedInOneRequest},
		{name: "past end", from: 5, to: 10, err: ReachedEndOfItemsList},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := f.Page(ctx, tt.from, tt.to)
			if tt.err != "" {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			got := make([]uint64, len(page))
			for i, e := range page {
				got[i] = e.Score
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFeedMaxPageConfigurable(t *testing.T) {
	ctx := context.Background()
	f := NewFeed(memory.New(), FeedConfig{MaxPage: 2})

	_, err := f.Page(ctx, 0, 3)
	assert.ErrorIs(t, err, ExceededMaxNumberOfItemsAllowedInOneRequest)
}

func TestFeedClear(t *testing.T) {
	ctx := context.Background()
	f := NewFeed(memory.New(), FeedConfig{})
	_, _, err := f.Receive(ctx, "actor:user/a", entries("actor:user/a", 1))
	require.NoError(t, err)

	require.NoError(t, f.Clear(ctx))
	_, err = f.Page(ctx, 0, 1)
	assert.ErrorIs(t, err, ReachedEndOfItemsList)
}
