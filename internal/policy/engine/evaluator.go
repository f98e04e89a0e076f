package engine

import "context"

// Action is an operation that needs a policy decision before it runs.
type Action string

const (
	ActionRevokeAll  Action = "revoke_all"
	ActionDeactivate Action = "deactivate"
)

// Subject is a user as seen by the policy: id and role.
type Subject struct {
	UserID int64
	Role   string
}

// Authorizer decides whether actor may perform action on target.
type Authorizer interface {
	Allow(ctx context.Context, action Action, actor, target Subject) (bool, error)
}
