// Package postcache is the aggregation actor. It collects the top posts each
// user actor broadcasts and serves them as a paged feed.
package postcache

import (
	"context"

	"github.com/najoast/socialshard/core"
	"github.com/najoast/socialshard/ranking"
	"github.com/najoast/socialshard/store"
)

// Feed bounds.
const (
	DefaultSoftCap = 1500
	DefaultHardCap = 1000
	DefaultMaxPage = 100
)

// FetchError is the reason a page could not be served.
type FetchError string

const (
	InvalidBoundsPassed                         FetchError = "InvalidBoundsPassed"
	ExceededMaxNumberOfItemsAllowedInOneRequest FetchError = "ExceededMaxNumberOfItemsAllowedInOneRequest"
	ReachedEndOfItemsList                       FetchError = "ReachedEndOfItemsList"
)

func (e FetchError) Error() string { return string(e) }

// FeedConfig bounds the feed and its pages.
type FeedConfig struct {
	SoftCap int
	HardCap int
	MaxPage int
}

// Feed is the aggregated index persisted in the top_posts_feed slot.
type Feed struct {
	slots store.Store
	cfg   FeedConfig
}

// NewFeed binds a feed to the slots of the post cache.
func NewFeed(slots store.Store, cfg FeedConfig) *Feed {
	if cfg.SoftCap <= 0 {
		cfg.SoftCap = DefaultSoftCap
	}
	if cfg.HardCap <= 0 {
		cfg.HardCap = DefaultHardCap
	}
	if cfg.MaxPage <= 0 {
		cfg.MaxPage = DefaultMaxPage
	}
	return &Feed{slots: slots, cfg: cfg}
}

func (f *Feed) load(ctx context.Context) (*ranking.Index, error) {
	entries, err := store.Load[[]ranking.Entry](ctx, f.slots, store.SlotTopPostsFeed)
	if err != nil {
		return nil, err
	}
	return ranking.Restore(entries, f.cfg.SoftCap, f.cfg.HardCap), nil
}

// Receive merges entries published by from and returns how many were
// accepted and the resulting feed size. Entries naming another publisher
// are ignored.
func (f *Feed) Receive(ctx context.Context, from core.Identity, entries []ranking.Entry) (accepted, size int, err error) {
	ix, err := f.load(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, e := range entries {
		if e.Publisher != from {
			continue
		}
		ix.Upsert(e)
		accepted++
	}
	if accepted == 0 {
		return 0, ix.Len(), nil
	}
	if err := store.Save(ctx, f.slots, store.SlotTopPostsFeed, ix.Entries()); err != nil {
		return 0, 0, err
	}
	return accepted, ix.Len(), nil
}

// Page returns entries [from, to), best first. to is clamped to the feed
// length.
func (f *Feed) Page(ctx context.Context, from, to uint64) ([]ranking.Entry, error) {
	if from >= to {
		return nil, InvalidBoundsPassed
	}
	if to-from > uint64(f.cfg.MaxPage) {
		return nil, ExceededMaxNumberOfItemsAllowedInOneRequest
	}

	ix, err := f.load(ctx)
	if err != nil {
		return nil, err
	}
	n := uint64(ix.Len())
	if from >= n {
		return nil, ReachedEndOfItemsList
	}
	return ix.Range(int(from), int(min(to, n))), nil
}

// Clear drops every entry.
func (f *Feed) Clear(ctx context.Context) error {
	return store.Save(ctx, f.slots, store.SlotTopPostsFeed, []ranking.Entry{})
}

// Len returns the number of entries in the feed.
func (f *Feed) Len(ctx context.Context) (int, error) {
	ix, err := f.load(ctx)
	if err != nil {
		return 0, err
	}
	return ix.Len(), nil
}
