package handlers

import "github.com/quietmesh/core/pkg/dispatcher"

// Build returns every pipeline handler, ready to pass to
// dispatcher.New. Names are prefixed with a stage number purely for
// human readability when reading logs or the registry listing; the
// dispatcher itself sorts by Name and does not rely on the numbers
// meaning anything beyond producing a stable order (spec.md §4.1 "load
// order must not affect behavior").
func Build(d *Deps, sender Sender) []dispatcher.Handler {
	return []dispatcher.Handler{
		Receive(d),
		ResolveDeps(d),
		TransitCrypto(d),
		EventCrypto(d),
		Signature(d),
		Membership(d),
		Validate(d),
		Project(d),
		CheckOutgoing(d),
		Send(d, sender),
	}
}
