package postcache

import (
	"context"
	"errors"

	"github.com/najoast/socialshard/access"
	"github.com/najoast/socialshard/core"
	"github.com/najoast/socialshard/logger"
	"github.com/najoast/socialshard/metrics"
	"github.com/najoast/socialshard/ranking"
	"github.com/najoast/socialshard/store"
)

// ServiceName is the name the post cache is registered under.
const ServiceName = "post_cache"

// Identity is the address of the post cache.
var Identity = core.ActorIdentity(ServiceName)

// Remote operations. MethodReceiveTopPosts is one-way.
const (
	MethodReceiveTopPosts     = ranking.ReceiveTopPosts
	MethodQueryTopPosts       = "query_top_posts"
	MethodRemoveAllEntries    = "update_remove_all_feed_entries"
	MethodQueryKnownPrincipal = "query_well_known_principal"
)

// KnownPrincipal names a well-known principal of the deployment.
type KnownPrincipal string

const (
	CanisterIdUserIndex          KnownPrincipal = "CanisterIdUserIndex"
	CanisterIdConfiguration      KnownPrincipal = "CanisterIdConfiguration"
	CanisterIdProjectMemberIndex KnownPrincipal = "CanisterIdProjectMemberIndex"
	CanisterIdTopicCacheIndex    KnownPrincipal = "CanisterIdTopicCacheIndex"
	CanisterIdRootCanister       KnownPrincipal = "CanisterIdRootCanister"
	CanisterIdDataBackup         KnownPrincipal = "CanisterIdDataBackup"
	CanisterIdPostCache          KnownPrincipal = "CanisterIdPostCache"
	CanisterIdSNSController      KnownPrincipal = "CanisterIdSNSController"
	UserIdGlobalSuperAdmin       KnownPrincipal = "UserIdGlobalSuperAdmin"
)

// PageQuery is the payload of query_top_posts.
type PageQuery struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}

// FetchResult is the reply of query_top_posts. Err is empty on success.
type FetchResult struct {
	Entries []ranking.Entry `json:"ok,omitempty"`
	Err     FetchError      `json:"err,omitempty"`
}

// PrincipalQuery is the payload of query_well_known_principal.
type PrincipalQuery struct {
	Kind KnownPrincipal `json:"kind"`
}

// PrincipalResult is the reply of query_well_known_principal.
type PrincipalResult struct {
	Identity core.Identity `json:"identity,omitempty"`
	Found    bool          `json:"found"`
}

// Config wires the post cache.
type Config struct {
	Feed  FeedConfig
	Known map[KnownPrincipal]core.Identity
}

// Handler serves the post cache operations.
type Handler struct {
	roles   *access.Store
	feed    *Feed
	known   map[KnownPrincipal]core.Identity
	metrics *metrics.Metrics
}

// New creates the handler over the post cache's own slots.
func New(slots store.Store, cfg Config, m *metrics.Metrics) *Handler {
	known := make(map[KnownPrincipal]core.Identity, len(cfg.Known))
	for k, v := range cfg.Known {
		known[k] = v
	}
	return &Handler{
		roles:   access.New(slots),
		feed:    NewFeed(slots, cfg.Feed),
		known:   known,
		metrics: m,
	}
}

// Roles exposes the access map, used by bootstrap to seed administrators.
func (h *Handler) Roles() *access.Store {
	return h.roles
}

// Feed returns the aggregated feed.
func (h *Handler) Feed() *Feed {
	return h.feed
}

// HandleMessage implements core.MessageHandler.
func (h *Handler) HandleMessage(ctx context.Context, msg *core.Message) ([]byte, error) {
	if data, handled, err := h.roles.ServeRoleMethod(ctx, msg, h.metrics); handled {
		return data, err
	}

	switch msg.Method {
	case MethodReceiveTopPosts:
		var entries []ranking.Entry
		if err := core.Decode(msg.Data, &entries); err != nil {
			return nil, err
		}
		return nil, h.receive(ctx, entries)

	case MethodQueryTopPosts:
		var q PageQuery
		if err := core.Decode(msg.Data, &q); err != nil {
			return nil, err
		}
		page, err := h.feed.Page(ctx, q.From, q.To)
		var fe FetchError
		if errors.As(err, &fe) {
			return core.Reply(FetchResult{Err: fe})
		}
		if err != nil {
			return nil, err
		}
		return core.Reply(FetchResult{Entries: page})

	case MethodRemoveAllEntries:
		if err := h.roles.Require(ctx, core.Caller(ctx), access.CanisterAdmin); err != nil {
			return nil, err
		}
		if err := h.feed.Clear(ctx); err != nil {
			return nil, err
		}
		h.metrics.SetFeedSize(0)
		logger.InfoCtx(ctx, "feed cleared")
		return nil, nil

	case MethodQueryKnownPrincipal:
		var q PrincipalQuery
		if err := core.Decode(msg.Data, &q); err != nil {
			return nil, err
		}
		id, ok := h.known[q.Kind]
		return core.Reply(PrincipalResult{Identity: id, Found: ok})
	}

	return nil, core.Unknown(msg.Method)
}

func (h *Handler) receive(ctx context.Context, entries []ranking.Entry) error {
	from := core.Caller(ctx)
	accepted, size, err := h.feed.Receive(ctx, from, entries)
	if err != nil {
		return err
	}
	if rejected := len(entries) - accepted; rejected > 0 {
		logger.DebugCtx(ctx, "foreign entries ignored", logger.KeyIdentity, from, logger.KeyCount, rejected)
	}
	h.metrics.SetFeedSize(size)
	return nil
}
