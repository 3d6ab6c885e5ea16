package privacy

import (
	"context"
	"slices"

	"github.com/aguaragazu/mate-framework/model"
)

// Viewer represents the authenticated user making a request.
// This interface should be implemented by application-specific user types.
type Viewer interface {
	// GetID returns the viewer's unique identifier.
	GetID() string
	// GetRoles returns the viewer's roles.
	GetRoles() []string
	// GetTenantID returns the viewer's tenant identifier for multi-tenancy.
	// Returns empty string if not applicable.
	GetTenantID() string
}

// viewerCtxKey is the context key for storing the viewer.
type viewerCtxKey struct{}

// WithViewer returns a new context with the viewer attached.
func WithViewer(ctx context.Context, viewer Viewer) context.Context {
	return context.WithValue(ctx, viewerCtxKey{}, viewer)
}

// ViewerFromContext retrieves the viewer from the context.
// Returns nil if no viewer is present.
func ViewerFromContext(ctx context.Context) Viewer {
	v, _ := ctx.Value(viewerCtxKey{}).(Viewer)
	return v
}

// SimpleViewer is a basic implementation of the Viewer interface.
type SimpleViewer struct {
	UserID   string
	Roles    []string
	TenantID string
}

// GetID returns the user ID.
func (v *SimpleViewer) GetID() string { return v.UserID }

// GetRoles returns the user's roles.
func (v *SimpleViewer) GetRoles() []string { return v.Roles }

// GetTenantID returns the tenant ID.
func (v *SimpleViewer) GetTenantID() string { return v.TenantID }

// DenyIfNoViewer returns a rule that denies access if no viewer is present in the context.
// This is typically used as the first rule in a policy to require authentication.
func DenyIfNoViewer() MutationRule {
	return ContextMutationRule(func(ctx context.Context) error {
		if ViewerFromContext(ctx) == nil {
			return Denyf("mate/privacy: viewer required")
		}
		return Skip
	})
}

// HasRole returns a rule that allows access if the viewer has the specified role.
func HasRole(role string) MutationRule {
	return HasAnyRole(role)
}

// HasAnyRole returns a rule that allows access if the viewer has any of the specified roles.
func HasAnyRole(roles ...string) MutationRule {
	return ContextMutationRule(func(ctx context.Context) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		if slices.ContainsFunc(roles, func(role string) bool {
			return slices.Contains(viewer.GetRoles(), role)
		}) {
			return Allow
		}
		return Skip
	})
}

// IsOwner returns a rule that allows access if the record's column holds
// the viewer's ID. Numeric columns match numeric IDs.
func IsOwner(column string) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, _ model.Op, r *model.Record) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		owner := r.Get(column)
		if owner.IsNull() {
			return Skip
		}
		if owner.Key() == model.String(viewer.GetID()).Key() {
			return Allow
		}
		return Skip
	})
}

// TenantRule returns a rule that allows access if the record's column
// holds the viewer's tenant, and denies it when it holds another one.
func TenantRule(column string) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, _ model.Op, r *model.Record) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil || viewer.GetTenantID() == "" {
			return Skip
		}
		tenant := r.Get(column)
		if tenant.IsNull() {
			return Skip
		}
		if tenant.Key() == model.String(viewer.GetTenantID()).Key() {
			return Allow
		}
		return Denyf("mate/privacy: tenant mismatch")
	})
}
