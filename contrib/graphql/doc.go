// Package graphql maps GraphQL selection sets to the fetch paths of entity
// views, so that a resolver only loads the attributes a client asked for.
//
// # Usage
//
// The attribute names of a view are the field names of its GraphQL type:
//
//	query Docs {
//	  documents {
//	    name
//	    owner { name }
//	    revisions { number }
//	  }
//	}
//
// selects the paths name, owner.name and revisions.number:
//
//	opt, err := graphql.FetchOption(query, "Docs", "documents")
//	if err != nil {
//		return nil, err
//	}
//	docs, err := view.Find[*DocumentView](ctx, m, opt)
//
// In a gqlgen resolver the selections come from the context, with @skip
// and @include applied:
//
//	paths, err := graphql.FetchesFromContext(ctx)
//
// # Connections
//
// Relay connections are unwrapped: the selections below edges.node and
// nodes are the paths of the elements, and pageInfo, totalCount and cursor
// are ignored.
//
// Fragments and inline fragments are expanded. Fields of the __schema
// and __type introspection and __typename are never paths.
package graphql
