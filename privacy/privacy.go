package privacy

import (
	"context"
	"errors"
	"fmt"

	"github.com/aguaragazu/mate-framework/model"
)

// Policy decision sentinel errors.
//
// These errors are used as return values from policy rules to indicate
// how the policy evaluation should proceed. Use errors.Is() to check
// for these values:
//
//	if errors.Is(err, privacy.Allow) { ... }
//	if errors.Is(err, privacy.Deny) { ... }
//	if errors.Is(err, privacy.Skip) { ... }
var (
	// Allow may be returned by rules to indicate that the policy
	// evaluation should terminate with an allow decision.
	Allow = errors.New("mate/privacy: allow rule")

	// Deny may be returned by rules to indicate that the policy
	// evaluation should terminate with a deny decision.
	Deny = errors.New("mate/privacy: deny rule")

	// Skip may be returned by rules to indicate that the policy
	// evaluation should continue to the next rule in the chain.
	Skip = errors.New("mate/privacy: skip rule")
)

// Allowf returns a formatted wrapped Allow decision.
func Allowf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Allow)...)
}

// Denyf returns a formatted wrapped Deny decision.
func Denyf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Deny)...)
}

// Skipf returns a formatted wrapped Skip decision.
func Skipf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Skip)...)
}

// MutationRule decides whether a record may be written.
type MutationRule interface {
	EvalMutation(ctx context.Context, op model.Op, r *model.Record) error
}

// MutationRuleFunc type is an adapter which allows the use of
// ordinary functions as mutation rules.
type MutationRuleFunc func(context.Context, model.Op, *model.Record) error

// EvalMutation returns f(ctx, op, r).
func (f MutationRuleFunc) EvalMutation(ctx context.Context, op model.Op, r *model.Record) error {
	return f(ctx, op, r)
}

// AlwaysAllowRule returns a rule that always returns an Allow decision.
func AlwaysAllowRule() MutationRule {
	return fixedDecision{Allow}
}

// AlwaysDenyRule returns a rule that always returns a Deny decision.
func AlwaysDenyRule() MutationRule {
	return fixedDecision{Deny}
}

// ContextMutationRule creates a mutation rule from a context evaluation
// function. Returning nil is equivalent to returning Skip.
func ContextMutationRule(eval func(context.Context) error) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, _ model.Op, _ *model.Record) error {
		return eval(ctx)
	})
}

// OnMutationOperation evaluates the given rule only on a given mutation operation.
func OnMutationOperation(rule MutationRule, op model.Op) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, o model.Op, r *model.Record) error {
		if o.Is(op) {
			return rule.EvalMutation(ctx, o, r)
		}
		return Skip
	})
}

// DenyMutationOperationRule returns a rule denying specified mutation operation.
func DenyMutationOperationRule(op model.Op) MutationRule {
	rule := MutationRuleFunc(func(_ context.Context, o model.Op, r *model.Record) error {
		return Denyf("mate/privacy: operation %s is not allowed on %s", o, r.Model().Name())
	})
	return OnMutationOperation(rule, op)
}

// AllowMutationOperationRule returns a rule allowing specified mutation operation.
func AllowMutationOperationRule(op model.Op) MutationRule {
	rule := MutationRuleFunc(func(context.Context, model.Op, *model.Record) error {
		return Allow
	})
	return OnMutationOperation(rule, op)
}

// Policy is an ordered list of mutation rules. It is a model mixin: the
// rules run before every insert, update and delete of the model, and a
// Deny decision aborts the write.
//
//	var Post = model.New("Post",
//		model.Mixins(privacy.Policy{
//			privacy.DenyIfNoViewer(),
//			privacy.HasRole("admin"),
//			privacy.IsOwner("user_id"),
//			privacy.AlwaysDenyRule(),
//		}),
//	)
type Policy []MutationRule

// EvalMutation evaluates the rules in order. The first decision other
// than Skip is final; Allow and a policy without a decision both return
// nil. A decision attached to ctx with DecisionContext overrides the
// rules.
func (p Policy) EvalMutation(ctx context.Context, op model.Op, r *model.Record) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		return decision
	}
	for _, rule := range p {
		switch decision := rule.EvalMutation(ctx, op, r); {
		case decision == nil || errors.Is(decision, Skip):
		case errors.Is(decision, Allow):
			return nil
		default:
			return decision
		}
	}
	return nil
}

// Hooks returns the hook evaluating the policy.
func (p Policy) Hooks() []model.Hook {
	return []model.Hook{
		model.On(p.EvalMutation, model.OpCreate|model.OpUpdate|model.OpDelete),
	}
}

// policy must implement `Mixin` interface.
var _ model.Mixin = Policy(nil)

type decisionCtxKey struct{}

// DecisionContext creates a new context from the given parent context with
// a policy decision attach to it.
func DecisionContext(parent context.Context, decision error) context.Context {
	if decision == nil || errors.Is(decision, Skip) {
		return parent
	}
	return context.WithValue(parent, decisionCtxKey{}, decision)
}

// DecisionFromContext retrieves the policy decision from the context.
func DecisionFromContext(ctx context.Context) (error, bool) {
	decision, ok := ctx.Value(decisionCtxKey{}).(error)
	if ok && errors.Is(decision, Allow) {
		decision = nil
	}
	return decision, ok
}

type fixedDecision struct {
	decision error
}

func (f fixedDecision) EvalMutation(context.Context, model.Op, *model.Record) error {
	return f.decision
}
