// Package userindex is the directory actor. It owns the user registry and
// the username directory and serves the claim protocol.
package userindex

import (
	"context"
	"fmt"

	"github.com/najoast/socialshard/access"
	"github.com/najoast/socialshard/core"
	"github.com/najoast/socialshard/directory"
	"github.com/najoast/socialshard/logger"
	"github.com/najoast/socialshard/metrics"
	"github.com/najoast/socialshard/store"
)

// ServiceName is the name the user index is registered under.
const ServiceName = "user_index"

// Identity is the address of the user index.
var Identity = core.ActorIdentity(ServiceName)

// Remote operations.
const (
	MethodClaimUsername     = "update_claim_username"
	MethodRegisterUser      = "update_register_user"
	MethodQueryUsername     = "query_username_owner"
	MethodQueryUserCanister = "query_user_canister"
)

// RegisterArgs is the payload of update_register_user.
type RegisterArgs struct {
	User     core.Identity `json:"user"`
	Canister core.Identity `json:"canister"`
}

// UsernameQuery is the payload of query_username_owner.
type UsernameQuery struct {
	Username string `json:"username"`
}

// UserQuery is the payload of query_user_canister.
type UserQuery struct {
	User core.Identity `json:"user"`
}

// Lookup is the reply of the query operations.
type Lookup struct {
	Identity core.Identity `json:"identity,omitempty"`
	Found    bool          `json:"found"`
}

// Handler serves the user index operations.
type Handler struct {
	roles     *access.Store
	registry  *directory.Registry
	usernames *directory.Usernames
	metrics   *metrics.Metrics
}

// New creates the handler over the user index's own slots.
func New(slots store.Store, m *metrics.Metrics) *Handler {
	registry := directory.NewRegistry(slots)
	return &Handler{
		roles:     access.New(slots),
		registry:  registry,
		usernames: directory.NewUsernames(slots, registry),
		metrics:   m,
	}
}

// Roles exposes the access map, used by bootstrap to seed administrators.
func (h *Handler) Roles() *access.Store {
	return h.roles
}

// Registry exposes the user registry, used by bootstrap to respawn the
// registered user actors.
func (h *Handler) Registry() *directory.Registry {
	return h.registry
}

// HandleMessage implements core.MessageHandler.
func (h *Handler) HandleMessage(ctx context.Context, msg *core.Message) ([]byte, error) {
	if data, handled, err := h.roles.ServeRoleMethod(ctx, msg, h.metrics); handled {
		return data, err
	}

	switch msg.Method {
	case MethodClaimUsername:
		var args directory.ClaimArgs
		if err := core.Decode(msg.Data, &args); err != nil {
			return nil, err
		}
		return h.claim(ctx, args)

	case MethodRegisterUser:
		var args RegisterArgs
		if err := core.Decode(msg.Data, &args); err != nil {
			return nil, err
		}
		if args.User == core.Anonymous || args.Canister == core.Anonymous {
			return nil, core.ErrInvalidArgument
		}
		if err := h.roles.Require(ctx, core.Caller(ctx), access.CanisterController); err != nil {
			return nil, err
		}
		if err := h.registry.Register(ctx, args.User, args.Canister); err != nil {
			return nil, err
		}
		logger.DebugCtx(ctx, "user registered", logger.KeyIdentity, args.User, logger.KeyActor, args.Canister)
		return nil, nil

	case MethodQueryUsername:
		var q UsernameQuery
		if err := core.Decode(msg.Data, &q); err != nil {
			return nil, err
		}
		owner, found, err := h.usernames.Owner(ctx, q.Username)
		if err != nil {
			return nil, err
		}
		return core.Reply(Lookup{Identity: owner, Found: found})

	case MethodQueryUserCanister:
		var q UserQuery
		if err := core.Decode(msg.Data, &q); err != nil {
			return nil, err
		}
		canister, found, err := h.registry.Lookup(ctx, q.User)
		if err != nil {
			return nil, err
		}
		return core.Reply(Lookup{Identity: canister, Found: found})
	}

	return nil, core.Unknown(msg.Method)
}

func (h *Handler) claim(ctx context.Context, args directory.ClaimArgs) ([]byte, error) {
	if args.Username == "" {
		return nil, fmt.Errorf("%w: username must not be empty", core.ErrInvalidArgument)
	}

	err := h.usernames.Claim(ctx, core.Caller(ctx), args.Username, args.PurportedIdentity)
	res, isOutcome := directory.ResultOf(err)
	if !isOutcome {
		return nil, err
	}

	outcome := "ok"
	if res.Err != "" {
		outcome = string(res.Err)
	}
	h.metrics.RecordClaim(outcome)
	logger.DebugCtx(ctx, "username claim", logger.KeyUsername, args.Username, logger.KeyOutcome, outcome)

	return core.Reply(res)
}
