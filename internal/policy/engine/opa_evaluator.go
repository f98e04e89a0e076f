package engine

import (
	"context"
	"fmt"
	"strconv"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"go.uber.org/zap"
)

const policyQuery = "data.authcore.sessions"

// DefaultPolicy: anyone may sign themselves out everywhere; ADMIN may act on non-ADMIN users,
// MANAGER on CLIENT users. Only ADMIN may deactivate, and never another ADMIN.
const DefaultPolicy = `package authcore.sessions

default allow_revoke_all := false
default allow_deactivate := false

allow_revoke_all if {
	input.actor.id == input.target.id
}

allow_revoke_all if {
	input.actor.role == "ADMIN"
	input.target.role != "ADMIN"
}

allow_revoke_all if {
	input.actor.role == "MANAGER"
	input.target.role == "CLIENT"
}

allow_deactivate if {
	input.actor.role == "ADMIN"
	input.target.role != "ADMIN"
}
`

var decisionKeys = map[Action]string{
	ActionRevokeAll:  "allow_revoke_all",
	ActionDeactivate: "allow_deactivate",
}

// OPAAuthorizer evaluates the sessions policy with an in-process Rego engine. The query is
// prepared once; every decision is a single evaluation.
type OPAAuthorizer struct {
	query rego.PreparedEvalQuery
	log   *zap.Logger
}

// NewOPAAuthorizer compiles policy (DefaultPolicy when empty) and prepares the decision query.
func NewOPAAuthorizer(ctx context.Context, policy string, log *zap.Logger) (*OPAAuthorizer, error) {
	if policy == "" {
		policy = DefaultPolicy
	}
	if log == nil {
		log = zap.NewNop()
	}
	compiler, err := ast.CompileModules(map[string]string{"sessions.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("compile policy: %w", err)
	}
	q, err := rego.New(
		rego.Query(policyQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare policy query: %w", err)
	}
	return &OPAAuthorizer{query: q, log: log.Named("policy")}, nil
}

// HealthCheck evaluates a self-revocation, which every valid policy must allow.
func (a *OPAAuthorizer) HealthCheck(ctx context.Context) error {
	self := Subject{UserID: 1, Role: "CLIENT"}
	ok, err := a.Allow(ctx, ActionRevokeAll, self, self)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("policy denies self revocation")
	}
	return nil
}

// Allow evaluates the decision for action. Unknown actions and evaluation failures deny.
func (a *OPAAuthorizer) Allow(ctx context.Context, action Action, actor, target Subject) (bool, error) {
	key, ok := decisionKeys[action]
	if !ok {
		return false, fmt.Errorf("unknown action %q", action)
	}
	input := map[string]interface{}{
		"action": string(action),
		"actor":  subjectInput(actor),
		"target": subjectInput(target),
	}
	rs, err := a.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		a.log.Warn("policy evaluation failed", zap.String("action", string(action)), zap.Error(err))
		return false, fmt.Errorf("evaluate policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, fmt.Errorf("policy query returned no result")
	}
	doc, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return false, fmt.Errorf("policy result is %T, want object", rs[0].Expressions[0].Value)
	}
	allowed, _ := doc[key].(bool)
	a.log.Debug("policy decision",
		zap.String("action", string(action)),
		zap.Int64("actor_id", actor.UserID),
		zap.Int64("target_id", target.UserID),
		zap.Bool("allowed", allowed))
	return allowed, nil
}

func subjectInput(s Subject) map[string]interface{} {
	return map[string]interface{}{
		"id":   strconv.FormatInt(s.UserID, 10),
		"role": s.Role,
	}
}
