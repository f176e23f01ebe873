// Package projector is the boundary between validated events and
// queryable application state: a Registry of pure per-type Func values
// plus a delta applier that turns their declarative types.Delta output
// into SQL against the tables those Funcs own.
package projector
