package ranking

import (
	"context"

	"github.com/najoast/socialshard/core"
	"github.com/najoast/socialshard/logger"
	"github.com/najoast/socialshard/metrics"
	"github.com/najoast/socialshard/store"
)

// ReceiveTopPosts is the aggregator operation the top entries are sent to.
const ReceiveTopPosts = "receive_top_posts"

// Notifier sends one-way messages. *core.Ref satisfies it.
type Notifier interface {
	Notify(to core.Identity, method string, args any) error
}

// Config bounds the index and names the aggregator.
type Config struct {
	SoftCap    int
	HardCap    int
	TopN       int
	Aggregator core.Identity
}

// Ranker runs the score protocol for one actor against its slots.
type Ranker struct {
	slots   store.Store
	self    core.Identity
	cfg     Config
	metrics *metrics.Metrics
}

// NewRanker creates the ranker of the actor addressed by self.
func NewRanker(slots store.Store, self core.Identity, cfg Config, m *metrics.Metrics) *Ranker {
	if cfg.TopN <= 0 {
		cfg.TopN = DefaultTopN
	}
	return &Ranker{slots: slots, self: self, cfg: cfg, metrics: m}
}

func (r *Ranker) load(ctx context.Context) (*Index, error) {
	entries, err := store.Load[[]Entry](ctx, r.slots, store.SlotPostsByScore)
	if err != nil {
		return nil, err
	}
	return Restore(entries, r.cfg.SoftCap, r.cfg.HardCap), nil
}

// UpdateScore records the new score of postID, published by this actor.
func (r *Ranker) UpdateScore(ctx context.Context, postID, score uint64) error {
	ix, err := r.load(ctx)
	if err != nil {
		return err
	}

	trimmed := ix.Upsert(Entry{Score: score, PostID: postID, Publisher: r.self})
	if err := r.save(ctx, ix); err != nil {
		return err
	}

	r.metrics.RecordScoreUpdate(trimmed)
	if trimmed {
		logger.DebugCtx(ctx, "score index trimmed", logger.KeyCount, ix.Len())
	}
	return nil
}

// save writes the ordered entries and the keyed view derived from them. The
// ordered slot is the one read back; the keyed slot serves older readers.
func (r *Ranker) save(ctx context.Context, ix *Index) error {
	if err := store.Save(ctx, r.slots, store.SlotPostsByScore, ix.Entries()); err != nil {
		return err
	}
	return store.Save(ctx, r.slots, store.SlotPostsByScoreOld, ix.Legacy())
}

// Legacy returns the persisted keyed view.
func (r *Ranker) Legacy(ctx context.Context) (LegacyView, error) {
	v, err := store.Load[LegacyView](ctx, r.slots, store.SlotPostsByScoreOld)
	if err != nil {
		return nil, err
	}
	if v == nil {
		v = LegacyView{}
	}
	return v, nil
}

// Index returns a snapshot of the persisted index.
func (r *Ranker) Index(ctx context.Context) (*Index, error) {
	return r.load(ctx)
}

// BroadcastTop sends the best entries to the aggregator and returns them.
// Delivery failures are logged and counted, never returned; the next
// broadcast carries a fresh snapshot. Only storage errors are reported.
func (r *Ranker) BroadcastTop(ctx context.Context, out Notifier) ([]Entry, error) {
	ix, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	top := ix.Top(r.cfg.TopN)
	if err := out.Notify(r.cfg.Aggregator, ReceiveTopPosts, top); err != nil {
		r.metrics.RecordBroadcast(metrics.BroadcastDropped)
		logger.WarnCtx(ctx, "top posts broadcast dropped",
			logger.KeyActor, r.cfg.Aggregator, logger.KeyCount, len(top), logger.Err(err))
		return top, nil
	}

	r.metrics.RecordBroadcast(metrics.BroadcastSent)
	return top, nil
}
