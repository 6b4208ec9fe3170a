package access

import (
	"context"

	"github.com/najoast/socialshard/core"
	"github.com/najoast/socialshard/logger"
	"github.com/najoast/socialshard/metrics"
)

// Remote role operations shared by every actor that keeps an access map.
const (
	MethodRoleAdd    = "update_role_add"
	MethodRoleRemove = "update_role_remove"
	MethodQueryRoles = "query_roles"
)

// RoleArgs is the payload of update_role_add and update_role_remove.
type RoleArgs struct {
	Role     Role          `json:"role"`
	Identity core.Identity `json:"identity"`
}

// RolesQuery is the payload of query_roles.
type RolesQuery struct {
	Identity core.Identity `json:"identity"`
}

// ServeRoleMethod answers the role operations. handled is false for any
// other method. Mutations require the caller to hold CanisterAdmin.
func (s *Store) ServeRoleMethod(ctx context.Context, msg *core.Message, m *metrics.Metrics) (data []byte, handled bool, err error) {
	switch msg.Method {
	case MethodRoleAdd, MethodRoleRemove:
		var args RoleArgs
		if err := core.Decode(msg.Data, &args); err != nil {
			return nil, true, err
		}
		if args.Role == "" {
			return nil, true, core.ErrInvalidArgument
		}
		if err := s.Require(ctx, core.Caller(ctx), CanisterAdmin); err != nil {
			return nil, true, err
		}

		op := "grant"
		if msg.Method == MethodRoleAdd {
			err = s.Grant(ctx, args.Identity, args.Role)
		} else {
			op = "revoke"
			err = s.Revoke(ctx, args.Identity, args.Role)
		}
		if err != nil {
			return nil, true, err
		}
		m.RecordRoleChange(op, string(args.Role))
		logger.DebugCtx(ctx, "role changed", "op", op, logger.KeyRole, args.Role, logger.KeyIdentity, args.Identity)
		return nil, true, nil

	case MethodQueryRoles:
		var q RolesQuery
		if err := core.Decode(msg.Data, &q); err != nil {
			return nil, true, err
		}
		roles, err := s.ListRoles(ctx, q.Identity)
		if err != nil {
			return nil, true, err
		}
		data, err := core.Reply(roles)
		return data, true, err
	}
	return nil, false, nil
}
