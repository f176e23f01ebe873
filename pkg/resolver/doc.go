// Package resolver implements resolve_deps and its unblock path: parking
// envelopes whose dependencies are not yet satisfied, and rewaking them
// — in insertion order, with a retry-count increment and a cap — once a
// dependency validates. See Resolver.Resolve and Resolver.Unblock.
package resolver
