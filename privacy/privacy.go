package privacy

import (
	"context"
	"errors"
	"fmt"

	"github.com/syssam/blaze"
	"github.com/syssam/blaze/criteria"
)

// Policy decision sentinel errors. Rules return them, possibly wrapped, to
// end or continue the evaluation of a policy:
//
//	if errors.Is(err, privacy.Deny) { ... }
var (
	// Allow ends the evaluation and permits the operation.
	Allow = errors.New("blaze/privacy: allow rule")

	// Deny ends the evaluation and rejects the operation.
	Deny = errors.New("blaze/privacy: deny rule")

	// Skip continues with the next rule.
	Skip = errors.New("blaze/privacy: skip rule")
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

// AlwaysAllowRule returns a rule that always returns an Allow decision.
func AlwaysAllowRule() QueryMutationRule {
	return fixedDecision{Allow}
}

// AlwaysDenyRule returns a rule that always returns a Deny decision.
func AlwaysDenyRule() QueryMutationRule {
	return fixedDecision{Deny}
}

// ContextQueryMutationRule creates a query/mutation rule from a context evaluation function.
// Returning nil is equivalent to returning Skip.
func ContextQueryMutationRule(eval func(context.Context) error) QueryMutationRule {
	return contextDecision{eval}
}

type (
	// QueryRule decides whether a view query is allowed and optionally
	// restricts it.
	QueryRule interface {
		EvalQuery(context.Context, blaze.Query) error
	}

	// QueryPolicy combines multiple query rules into a single policy.
	QueryPolicy []QueryRule

	// MutationRule decides whether a flush operation is allowed.
	MutationRule interface {
		EvalMutation(context.Context, blaze.Mutation) error
	}

	// MutationPolicy combines multiple mutation rules into a single policy.
	MutationPolicy []MutationRule

	// QueryMutationRule is an interface which groups query and mutation rules.
	QueryMutationRule interface {
		QueryRule
		MutationRule
	}
)

// QueryRuleFunc type is an adapter which allows the use of
// ordinary functions as query rules.
type QueryRuleFunc func(context.Context, blaze.Query) error

// EvalQuery returns f(ctx, q).
func (f QueryRuleFunc) EvalQuery(ctx context.Context, q blaze.Query) error {
	return f(ctx, q)
}

// MutationRuleFunc type is an adapter which allows the use of
// ordinary functions as mutation rules.
type MutationRuleFunc func(context.Context, blaze.Mutation) error

// EvalMutation returns f(ctx, m).
func (f MutationRuleFunc) EvalMutation(ctx context.Context, m blaze.Mutation) error {
	return f(ctx, m)
}

// OnMutationOperation evaluates the given rule only on a given mutation operation.
func OnMutationOperation(rule MutationRule, op blaze.Op) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m blaze.Mutation) error {
		if m.Op().Is(op) {
			return rule.EvalMutation(ctx, m)
		}
		return Skip
	})
}

// DenyMutationOperationRule returns a rule denying specified mutation operation.
func DenyMutationOperationRule(op blaze.Op) MutationRule {
	rule := MutationRuleFunc(func(_ context.Context, m blaze.Mutation) error {
		return Denyf("blaze/privacy: operation %s is not allowed", m.Op())
	})
	return OnMutationOperation(rule, op)
}

// OnView evaluates rule only for queries and flushes of the named view
// types.
func OnView(rule QueryMutationRule, views ...string) QueryMutationRule {
	match := func(name string) bool {
		for _, v := range views {
			if v == name {
				return true
			}
		}
		return false
	}
	return queryMutationFuncs{
		query: func(ctx context.Context, q blaze.Query) error {
			if match(q.View()) {
				return rule.EvalQuery(ctx, q)
			}
			return Skip
		},
		mutation: func(ctx context.Context, m blaze.Mutation) error {
			if match(m.View()) {
				return rule.EvalMutation(ctx, m)
			}
			return Skip
		},
	}
}

// Policy groups query and mutation policies.
type Policy struct {
	Query    QueryPolicy
	Mutation MutationPolicy
}

// EvalQuery forwards evaluation to query a policy.
func (p Policy) EvalQuery(ctx context.Context, q blaze.Query) error {
	return p.Query.EvalQuery(ctx, q)
}

// EvalMutation forwards evaluation to mutate a policy.
func (p Policy) EvalMutation(ctx context.Context, m blaze.Mutation) error {
	return p.Mutation.EvalMutation(ctx, m)
}

// NewPolicies combines the non-nil policies into one.
func NewPolicies(ps ...blaze.Policy) blaze.Policy {
	policies := make(Policies, 0, len(ps))
	for _, p := range ps {
		if p != nil {
			policies = append(policies, p)
		}
	}
	return policies
}

// Policies combines multiple policies into a single policy.
type Policies []blaze.Policy

// EvalQuery evaluates the query policies. If the Allow error is returned
// from one of the policies, it stops the evaluation with a nil error.
func (policies Policies) EvalQuery(ctx context.Context, q blaze.Query) error {
	return policies.eval(ctx, func(policy blaze.Policy) error {
		return policy.EvalQuery(ctx, q)
	})
}

// EvalMutation evaluates the mutation policies. If the Allow error is returned
// from one of the policies, it stops the evaluation with a nil error.
func (policies Policies) EvalMutation(ctx context.Context, m blaze.Mutation) error {
	return policies.eval(ctx, func(policy blaze.Policy) error {
		return policy.EvalMutation(ctx, m)
	})
}

func (policies Policies) eval(ctx context.Context, eval func(blaze.Policy) error) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		return decision
	}
	for _, policy := range policies {
		switch decision := eval(policy); {
		case decision == nil || errors.Is(decision, Skip):
		case errors.Is(decision, Allow):
			return nil
		default:
			return decision
		}
	}
	return nil
}

// EvalQuery evaluates a query against a query policy.
func (policies QueryPolicy) EvalQuery(ctx context.Context, q blaze.Query) error {
	for _, policy := range policies {
		switch decision := policy.EvalQuery(ctx, q); {
		case decision == nil || errors.Is(decision, Skip):
		default:
			return decision
		}
	}
	return nil
}

// EvalMutation evaluates a mutation against a mutation policy.
func (policies MutationPolicy) EvalMutation(ctx context.Context, m blaze.Mutation) error {
	for _, policy := range policies {
		switch decision := policy.EvalMutation(ctx, m); {
		case decision == nil || errors.Is(decision, Skip):
		default:
			return decision
		}
	}
	return nil
}

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

func (f fixedDecision) EvalQuery(context.Context, blaze.Query) error {
	return f.decision
}

func (f fixedDecision) EvalMutation(context.Context, blaze.Mutation) error {
	return f.decision
}

type contextDecision struct {
	eval func(context.Context) error
}

func (c contextDecision) EvalQuery(ctx context.Context, _ blaze.Query) error {
	return c.eval(ctx)
}

func (c contextDecision) EvalMutation(ctx context.Context, _ blaze.Mutation) error {
	return c.eval(ctx)
}

type queryMutationFuncs struct {
	query    QueryRuleFunc
	mutation MutationRuleFunc
}

func (f queryMutationFuncs) EvalQuery(ctx context.Context, q blaze.Query) error {
	return f.query(ctx, q)
}

func (f queryMutationFuncs) EvalMutation(ctx context.Context, m blaze.Mutation) error {
	return f.mutation(ctx, m)
}

// Filter restricts the rows a view query returns. Paths of the predicates
// start at the root alias of the query.
type Filter interface {
	// Alias returns the alias of the query root, e.g. "d".
	Alias() string
	// WhereP appends predicates to the query.
	WhereP(...criteria.Predicate)
}

// Filterable is implemented by view queries.
type Filterable interface {
	Filter() Filter
}

// FilterFunc is an adapter that allows using ordinary functions as query
// rules that restrict the query:
//
//	privacy.FilterFunc(func(ctx context.Context, f privacy.Filter) error {
//	    f.WhereP(criteria.Path[string](f.Alias() + ".tenant").EQ(tenantID))
//	    return privacy.Skip
//	})
type FilterFunc func(context.Context, Filter) error

// EvalQuery calls f(ctx, q.Filter()) if the query implements Filterable.
func (f FilterFunc) EvalQuery(ctx context.Context, q blaze.Query) error {
	fr, ok := q.(Filterable)
	if !ok {
		return Denyf("blaze/privacy: query type %T does not support filtering", q)
	}
	return f(ctx, fr.Filter())
}

var _ QueryRule = FilterFunc(nil)
