// Package privacy provides authorization rules evaluated before records are
// written.
//
// A Policy is an ordered list of rules attached to a model as a mixin:
//
//	var Post = model.New("Post",
//		model.Fillable("title", "body"),
//		model.Mixins(privacy.Policy{
//			privacy.DenyIfNoViewer(),   // Require authentication
//			privacy.HasRole("admin"),   // Allow admins
//			privacy.IsOwner("user_id"), // Allow owners
//			privacy.AlwaysDenyRule(),   // Deny by default
//		}),
//	)
//
// # Rule Evaluation
//
// Rules are evaluated in order until one returns a final decision:
//
//   - Allow: Grants access and stops evaluation
//   - Deny: Denies access and stops evaluation
//   - Skip: Continues to the next rule
//
// A policy whose rules all skip allows the write; end it with
// AlwaysDenyRule to deny by default. A denied Save, Update or Delete
// returns a *mate.MutationError wrapping the decision:
//
//	if _, err := post.Save(ctx); errors.Is(err, privacy.Deny) { ... }
//
// # Viewer
//
// The authenticated user travels in the context:
//
//	ctx = privacy.WithViewer(ctx, &privacy.SimpleViewer{
//		UserID: "42",
//		Roles:  []string{"editor"},
//	})
//
// DecisionContext attaches a decision that overrides every policy, for
// example to let background jobs write without a viewer:
//
//	ctx = privacy.DecisionContext(ctx, privacy.Allow)
package privacy
