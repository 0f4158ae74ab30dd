// Package privacy provides rule chains that decide whether view queries and
// flush operations are allowed.
//
// A policy is passed to the view manager and evaluated before every view
// query and before every row a flush writes:
//
//	m, err := view.NewManager(mm, drv,
//	    view.WithViews(view.Type[DocumentView]("Document", view.Updatable())),
//	    view.WithPolicy(privacy.Policy{
//	        Mutation: privacy.MutationPolicy{
//	            privacy.DenyIfNoViewer(),
//	            privacy.HasRole("admin"),
//	            privacy.IsOwner("owner"),
//	            privacy.AlwaysDenyRule(),
//	        },
//	        Query: privacy.QueryPolicy{
//	            privacy.AlwaysAllowRule(),
//	        },
//	    }),
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
// If all rules return Skip, the operation is allowed. A denied flush is
// rolled back and reported as a *blaze.PolicyError wrapping the decision.
//
// # Filtering
//
// Query rules can restrict the rows of a view query with criteria
// predicates through FilterFunc:
//
//	privacy.FilterFunc(func(ctx context.Context, f privacy.Filter) error {
//	    v := privacy.ViewerFromContext(ctx)
//	    if v == nil {
//	        return privacy.Denyf("viewer required")
//	    }
//	    f.WhereP(criteria.Path[string](f.Alias() + ".owner.name").EQ(v.GetID()))
//	    return privacy.Skip
//	})
//
// # Viewer
//
// The viewer is stored in the context and read by the role, owner and
// tenant rules:
//
//	ctx := privacy.WithViewer(ctx, &privacy.SimpleViewer{
//	    UserID: "user-123",
//	    Roles:  []string{"user"},
//	})
package privacy
