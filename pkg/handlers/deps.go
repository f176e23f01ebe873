// Package handlers implements the ten pipeline stages named in
// spec.md §4.1-4.4: receive, resolve-deps, transit-crypto, event-crypto,
// signature, membership, validate, project, check-outgoing, send. Each is built as
// a dispatcher.Handler (filter+process pair) by a constructor in this
// package that closes over the shared Deps.
//
// Grounded structurally on
// _examples/cuemby-warren/pkg/scheduler/scheduler.go's "many small pure
// selection/decision functions composed by one runner" shape: each
// handler here is a small decision (does this envelope match?) plus a
// transform, the same division scheduler.go uses between
// selectNodeForService/selectNode/filterSchedulableNodes and the
// ticking runner that calls them.
package handlers

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/quietmesh/core/pkg/crypto"
	"github.com/quietmesh/core/pkg/log"
	"github.com/quietmesh/core/pkg/projector"
	"github.com/quietmesh/core/pkg/resolver"
	"github.com/quietmesh/core/pkg/secrets"
	"github.com/quietmesh/core/pkg/store"
)

// Deps bundles the shared collaborators every handler constructor
// needs. It is assembled once at startup (cmd/quietmesh-node) and
// passed to Build.
type Deps struct {
	Store      *store.DB
	Secrets    *secrets.Store
	Resolver   *resolver.Resolver
	Projectors *projector.Registry
	Crypto     crypto.Suite
	Validators *ValidatorRegistry
	Members    MembershipChecker
	RetryCap   int
	Now        func() time.Time
	Logger     zerolog.Logger
}

// NewDeps fills in sane defaults (real clock, component logger) for the
// required collaborators.
func NewDeps(db *store.DB, sec *secrets.Store, res *resolver.Resolver, proj *projector.Registry, suite crypto.Suite, retryCap int) *Deps {
	return &Deps{
		Store:      db,
		Secrets:    sec,
		Resolver:   res,
		Projectors: proj,
		Crypto:     suite,
		Validators: NewValidatorRegistry(),
		Members:    staticMembership{},
		RetryCap:   retryCap,
		Now:        time.Now,
		Logger:     log.WithComponent("handlers"),
	}
}

// nowMs returns the current time in epoch milliseconds using d.Now so
// tests can inject a fixed clock.
func (d *Deps) nowMs() int64 {
	return d.Now().UnixMilli()
}
