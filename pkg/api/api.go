// Package api is the external operation facade spec.md §4.9 describes:
// every externally callable operation is one of three Go function
// shapes — Command (mutate via the pipeline), Query (read projected
// state), Flow (a named multi-event composite) — registered here by
// name so a transport (CLI, RPC, test harness) can look one up without
// knowing its implementation.
package api

import (
	"context"
	"fmt"

	"github.com/quietmesh/core/pkg/dispatcher"
	"github.com/quietmesh/core/pkg/flow"
	"github.com/quietmesh/core/pkg/query"
	"github.com/quietmesh/core/pkg/types"
)

// Command submits one self-created event and returns the {ids, data}
// shape spec.md §6 defines for every external operation: ids names the
// emitted event's type against its event_id (spec.md §6 "An event type
// appears in ids only if exactly one event of that type was emitted in
// the operation" — a Command always emits exactly one).
type Command func(ctx context.Context, params map[string]any) (flow.Result, error)

// Query runs a read-only projected-state lookup.
type Query func(ctx context.Context, params map[string]any) ([]map[string]any, error)

// Flow runs a named multi-event composite operation.
type Flow func(ctx context.Context, params map[string]any) (flow.Result, error)

// API wires the three operation registries over a live pipeline.
type API struct {
	dispatcher *dispatcher.Dispatcher
	orch       *flow.Orchestrator
	facade     *query.Facade

	commands map[string]Command
	queries  map[string]Query
	flows    map[string]Flow
}

// New builds an empty API over the given collaborators. RegisterCommand/
// RegisterQuery/RegisterFlow populate it.
func New(d *dispatcher.Dispatcher, orch *flow.Orchestrator, facade *query.Facade) *API {
	return &API{
		dispatcher: d,
		orch:       orch,
		facade:     facade,
		commands:   make(map[string]Command),
		queries:    make(map[string]Query),
		flows:      make(map[string]Flow),
	}
}

func (a *API) RegisterCommand(name string, c Command) { a.commands[name] = c }
func (a *API) RegisterQuery(name string, q Query)      { a.queries[name] = q }
func (a *API) RegisterFlow(name string, f Flow)        { a.flows[name] = f }

// RunCommand looks up and invokes a registered Command by name.
func (a *API) RunCommand(ctx context.Context, name string, params map[string]any) (flow.Result, error) {
	c, ok := a.commands[name]
	if !ok {
		return flow.Result{}, fmt.Errorf("api: no such command %q", name)
	}
	return c(ctx, params)
}

// RunQuery looks up and invokes a registered Query by name.
func (a *API) RunQuery(ctx context.Context, name string, params map[string]any) ([]map[string]any, error) {
	q, ok := a.queries[name]
	if !ok {
		return nil, fmt.Errorf("api: no such query %q", name)
	}
	return q(ctx, params)
}

// RunFlow looks up and invokes a registered Flow by name.
func (a *API) RunFlow(ctx context.Context, name string, params map[string]any) (flow.Result, error) {
	f, ok := a.flows[name]
	if !ok {
		return flow.Result{}, fmt.Errorf("api: no such flow %q", name)
	}
	return f(ctx, params)
}

// SubmitRaw feeds a raw inbound wire datagram into the pipeline,
// exactly as the network transport would (spec.md §4.1 "A raw datagram
// enters the pipeline as an envelope with raw_data set"). It reports
// only fatal drops; successful delivery has no synchronous result,
// matching the asynchronous nature of an inbound network event.
func (a *API) SubmitRaw(raw []byte, originIP string, originPort int, receivedAt int64) []dispatcher.Dropped {
	env := types.Envelope{
		RawData:    raw,
		OriginIP:   originIP,
		OriginPort: originPort,
		ReceivedAt: receivedAt,
	}
	return a.dispatcher.Run([]types.Envelope{env})
}
