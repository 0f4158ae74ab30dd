package privacy

import (
	"context"
	"fmt"
	"slices"

	"github.com/syssam/blaze"
	"github.com/syssam/blaze/criteria"
)

// Viewer is the authenticated user of a request.
type Viewer interface {
	GetID() string
	GetRoles() []string
	// GetTenantID returns "" when tenants are not used.
	GetTenantID() string
}

type viewerCtxKey struct{}

// WithViewer returns a context carrying the viewer.
func WithViewer(ctx context.Context, viewer Viewer) context.Context {
	return context.WithValue(ctx, viewerCtxKey{}, viewer)
}

// ViewerFromContext returns the viewer of ctx, or nil.
func ViewerFromContext(ctx context.Context) Viewer {
	v, _ := ctx.Value(viewerCtxKey{}).(Viewer)
	return v
}

// TenantID returns the tenant of the viewer of ctx. It reports false
// without a viewer or tenant.
func TenantID(ctx context.Context) (string, bool) {
	v := ViewerFromContext(ctx)
	if v == nil || v.GetTenantID() == "" {
		return "", false
	}
	return v.GetTenantID(), true
}

// SimpleViewer is a Viewer holding its values.
type SimpleViewer struct {
	UserID   string
	Roles    []string
	TenantID string
}

func (v *SimpleViewer) GetID() string       { return v.UserID }
func (v *SimpleViewer) GetRoles() []string  { return v.Roles }
func (v *SimpleViewer) GetTenantID() string { return v.TenantID }

// DenyIfNoViewer denies queries and flushes without a viewer. It is usually
// the first rule of a policy:
//
//	privacy.MutationPolicy{
//	    privacy.DenyIfNoViewer(),
//	    privacy.HasRole("editor"),
//	    privacy.AlwaysDenyRule(),
//	}
func DenyIfNoViewer() QueryMutationRule {
	return ContextQueryMutationRule(func(ctx context.Context) error {
		if ViewerFromContext(ctx) == nil {
			return Denyf("privacy: viewer required")
		}
		return Skip
	})
}

// HasRole allows viewers having the role.
func HasRole(role string) QueryMutationRule {
	return HasAnyRole(role)
}

// HasAnyRole allows viewers having one of the roles.
func HasAnyRole(roles ...string) QueryMutationRule {
	return ContextQueryMutationRule(func(ctx context.Context) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		if slices.ContainsFunc(roles, func(r string) bool { return slices.Contains(viewer.GetRoles(), r) }) {
			return Allow
		}
		return Skip
	})
}

// IsOwner allows flushes of views whose attribute holds the viewer id.
// Flushes not writing the attribute are skipped.
func IsOwner(attr string) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m blaze.Mutation) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		if v, ok := m.Field(attr); ok && format(v) == viewer.GetID() {
			return Allow
		}
		return Skip
	})
}

// TenantRule denies flushes writing another tenant into attr.
func TenantRule(attr string) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m blaze.Mutation) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil || viewer.GetTenantID() == "" {
			return Skip
		}
		v, ok := m.Field(attr)
		switch {
		case !ok:
			return Skip
		case format(v) == viewer.GetTenantID():
			return Allow
		default:
			return Denyf("privacy: tenant mismatch on %s", m.View())
		}
	})
}

// OwnerQueryRule restricts view queries to rows whose attribute path,
// relative to the query root, equals the viewer id:
//
//	privacy.QueryPolicy{privacy.OwnerQueryRule("owner.id")}
func OwnerQueryRule(path string) QueryRule {
	return filterRule("owner", path, Viewer.GetID)
}

// TenantQueryRule restricts view queries to the tenant of the viewer.
func TenantQueryRule(path string) QueryRule {
	return filterRule("tenant", path, Viewer.GetTenantID)
}

func filterRule(what, path string, value func(Viewer) string) QueryRule {
	return QueryRuleFunc(func(ctx context.Context, q blaze.Query) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Denyf("privacy: viewer required for %s filtered query of %s", what, q.View())
		}
		v := value(viewer)
		if v == "" {
			return Denyf("privacy: %s required for query of %s", what, q.View())
		}
		fr, ok := q.(Filterable)
		if !ok {
			return Denyf("privacy: query of %s can not be filtered by %s", q.View(), what)
		}
		f := fr.Filter()
		f.WhereP(criteria.Expr(f.Alias()+"."+path+" = ?", v))
		return Skip
	})
}

// AllowMutationOperationRule allows the given flush operations.
func AllowMutationOperationRule(op blaze.Op) MutationRule {
	return OnMutationOperation(MutationRuleFunc(func(context.Context, blaze.Mutation) error {
		return Allow
	}), op)
}

func format(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
