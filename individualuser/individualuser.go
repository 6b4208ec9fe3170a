// Package individualuser is the per-user actor. It hosts the user's roles,
// profile and post score index.
package individualuser

import (
	"context"
	"fmt"

	"github.com/najoast/socialshard/access"
	"github.com/najoast/socialshard/core"
	"github.com/najoast/socialshard/directory"
	"github.com/najoast/socialshard/logger"
	"github.com/najoast/socialshard/metrics"
	"github.com/najoast/socialshard/ranking"
	"github.com/najoast/socialshard/store"
)

// Remote operations.
const (
	MethodUpdateScore       = "update_score"
	MethodBroadcastTopPosts = "update_broadcast_top_posts"
	MethodSetUsername       = "update_profile_set_unique_username"
	MethodQueryProfile      = "query_profile"
	MethodQueryTopPosts     = "query_top_posts"
	MethodQueryLegacyIndex  = "query_posts_index_legacy"

	// claimUsername is the user index operation the username is claimed with
	claimUsername = "update_claim_username"
)

// ServicePrefix starts the service name of every user actor.
const ServicePrefix = "user/"

// ServiceName returns the service name of the actor owning principal.
func ServiceName(principal core.Identity) string {
	return ServicePrefix + principal.String()
}

// IdentityOf returns the address of the actor owning principal.
func IdentityOf(principal core.Identity) core.Identity {
	return core.ActorIdentity(ServiceName(principal))
}

// ScoreArgs is the payload of update_score.
type ScoreArgs struct {
	PostID   uint64 `json:"post_id"`
	NewScore uint64 `json:"new_score"`
}

// UsernameArgs is the payload of update_profile_set_unique_username.
type UsernameArgs struct {
	Username string `json:"username"`
}

// TopQuery is the payload of query_top_posts.
type TopQuery struct {
	Limit int `json:"limit"`
}

// Profile is the persisted profile of the user.
type Profile struct {
	Principal core.Identity `json:"principal_id"`
	Username  string        `json:"unique_user_name,omitempty"`
}

// Config wires the actor to its collaborators.
type Config struct {
	Owner     core.Identity
	UserIndex core.Identity
	Ranking   ranking.Config
}

// Handler serves one user's actor.
type Handler struct {
	slots     store.Store
	roles     *access.Store
	ranker    *ranking.Ranker
	owner     core.Identity
	userIndex core.Identity
	metrics   *metrics.Metrics
}

// New creates the handler. slots must be private to this actor.
func New(slots store.Store, cfg Config, m *metrics.Metrics) *Handler {
	return &Handler{
		slots:     slots,
		roles:     access.New(slots),
		ranker:    ranking.NewRanker(slots, IdentityOf(cfg.Owner), cfg.Ranking, m),
		owner:     cfg.Owner,
		userIndex: cfg.UserIndex,
		metrics:   m,
	}
}

// Roles exposes the access map, used by bootstrap to seed the owner.
func (h *Handler) Roles() *access.Store {
	return h.roles
}

// HandleMessage implements core.MessageHandler.
func (h *Handler) HandleMessage(ctx context.Context, msg *core.Message) ([]byte, error) {
	if data, handled, err := h.roles.ServeRoleMethod(ctx, msg, h.metrics); handled {
		return data, err
	}

	switch msg.Method {
	case MethodUpdateScore:
		var args ScoreArgs
		if err := core.Decode(msg.Data, &args); err != nil {
			return nil, err
		}
		if err := h.requireAny(ctx, access.ProfileOwner, access.ProjectCanister); err != nil {
			return nil, err
		}
		return nil, h.ranker.UpdateScore(ctx, args.PostID, args.NewScore)

	case MethodBroadcastTopPosts:
		top, err := h.ranker.BroadcastTop(ctx, core.Self(ctx))
		if err != nil {
			return nil, err
		}
		return core.Reply(top)

	case MethodSetUsername:
		var args UsernameArgs
		if err := core.Decode(msg.Data, &args); err != nil {
			return nil, err
		}
		return h.setUsername(ctx, args.Username)

	case MethodQueryProfile:
		p, err := h.profile(ctx)
		if err != nil {
			return nil, err
		}
		return core.Reply(p)

	case MethodQueryTopPosts:
		var q TopQuery
		if err := core.Decode(msg.Data, &q); err != nil {
			return nil, err
		}
		ix, err := h.ranker.Index(ctx)
		if err != nil {
			return nil, err
		}
		if q.Limit <= 0 {
			return core.Reply(ix.Entries())
		}
		return core.Reply(ix.Top(q.Limit))

	case MethodQueryLegacyIndex:
		legacy, err := h.ranker.Legacy(ctx)
		if err != nil {
			return nil, err
		}
		return core.Reply(legacy)
	}

	return nil, core.Unknown(msg.Method)
}

func (h *Handler) requireAny(ctx context.Context, roles ...access.Role) error {
	caller := core.Caller(ctx)
	for _, role := range roles {
		ok, err := h.roles.HasRole(ctx, caller, role)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("%w: %s holds none of %v", core.ErrUnauthorized, caller, roles)
}

func (h *Handler) profile(ctx context.Context) (Profile, error) {
	p, err := store.Load[Profile](ctx, h.slots, store.SlotProfile)
	if err != nil {
		return Profile{}, err
	}
	if p.Principal == core.Anonymous {
		p.Principal = h.owner
	}
	return p, nil
}

// setUsername claims username at the user index on behalf of the owner and
// records it locally once the index accepted it.
func (h *Handler) setUsername(ctx context.Context, username string) ([]byte, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: username must not be empty", core.ErrInvalidArgument)
	}
	if err := h.roles.Require(ctx, core.Caller(ctx), access.ProfileOwner); err != nil {
		return nil, err
	}

	data, err := core.Self(ctx).Call(ctx, h.userIndex, claimUsername, directory.ClaimArgs{
		Username:          username,
		PurportedIdentity: h.owner,
	})
	if err != nil {
		return nil, err
	}

	var res directory.ClaimResult
	if err := core.Decode(data, &res); err != nil {
		return nil, err
	}
	if res.Err != "" {
		logger.DebugCtx(ctx, "username refused", logger.KeyUsername, username, logger.KeyOutcome, res.Err)
		return core.Reply(res)
	}

	p, err := h.profile(ctx)
	if err != nil {
		return nil, err
	}
	p.Username = username
	if err := store.Save(ctx, h.slots, store.SlotProfile, p); err != nil {
		return nil, err
	}
	return core.Reply(res)
}
