// Package dispatcher implements the handler registry and envelope
// pipeline loop (spec.md §4.1): a FIFO queue of envelopes, fanned out to
// every handler whose filter matches in deterministic registry order,
// each match running in its own transaction and re-enqueuing whatever
// it emits, until the queue drains or an envelope's retry_count exceeds
// the cap.
//
// Grounded on two teacher shapes: the registry/fan-out idiom of
// _examples/cuemby-warren/pkg/events/events.go's Broker (a registered
// set of subscribers, iterated deterministically, each given the same
// published value), and the Start/run/stopCh ticking-loop idiom of
// _examples/cuemby-warren/pkg/reconciler/reconciler.go for the
// dispatcher's outer drive loop.
package dispatcher

import (
	"database/sql"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/quietmesh/core/pkg/log"
	"github.com/quietmesh/core/pkg/metrics"
	"github.com/quietmesh/core/pkg/store"
	"github.com/quietmesh/core/pkg/types"
)

// Handler is a named, pure filter+transform subscribing to envelopes
// matching Filter (spec.md §4.1: "A handler is (filter, process)").
type Handler struct {
	// Name orders handlers deterministically; registry load order must
	// not affect behavior (spec.md §4.1), so Dispatcher always iterates
	// handlers sorted by Name rather than registration order.
	Name string

	Filter func(types.Envelope) bool

	// Process runs inside its own transaction per match. Returning an
	// error rolls back tx and drops this match's envelope (spec.md §5
	// "on exception the transaction rolls back and the envelope is
	// dropped"); other matches and other envelopes are unaffected.
	Process func(e types.Envelope, tx *sql.Tx) ([]types.Envelope, error)
}

// Dispatcher owns the handler registry and drives the FIFO pipeline
// loop against a single store.DB connection.
type Dispatcher struct {
	db       *store.DB
	handlers []Handler
	retryCap int
	logger   zerolog.Logger
}

// New builds a Dispatcher. Handlers are sorted by Name immediately so
// that registration order is never observable.
func New(db *store.DB, retryCap int, handlers []Handler) *Dispatcher {
	sorted := make([]Handler, len(handlers))
	copy(sorted, handlers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return &Dispatcher{
		db:       db,
		handlers: sorted,
		retryCap: retryCap,
		logger:   log.WithComponent("dispatcher"),
	}
}

// Dropped describes an envelope that left the pipeline without reaching
// a terminal stored/sent state, for callers (jobs, flows, tests) that
// want to observe fatal drops.
type Dropped struct {
	Envelope types.Envelope
	Reason   error
}

// Run seeds the FIFO queue with seed and drains it to quiescence,
// matching every dequeued envelope against every handler in registry
// order, running each match in its own transaction, and enqueuing
// whatever each match emits (spec.md §4.1). It returns every envelope
// that was fatally dropped (malformed, crypto failure, retry-cap
// exceeded, or a handler error) for observability; dropping one
// envelope never halts the drain of the rest.
func (d *Dispatcher) Run(seed []types.Envelope) []Dropped {
	queue := append([]types.Envelope(nil), seed...)
	var dropped []Dropped

	for len(queue) > 0 {
		env := queue[0]
		queue = queue[1:]

		matched := false
		for _, h := range d.handlers {
			if !h.Filter(env) {
				continue
			}
			matched = true
			emitted, dropErr := d.runOne(h, env)
			if dropErr != nil {
				dropped = append(dropped, Dropped{Envelope: env, Reason: dropErr})
				metrics.DispatcherDrops.WithLabelValues(h.Name).Inc()
				continue
			}
			for _, out := range emitted {
				out, capErr := d.applyRetryAccounting(env, out)
				if capErr != nil {
					dropped = append(dropped, Dropped{Envelope: out, Reason: capErr})
					metrics.DispatcherDrops.WithLabelValues("retry_cap").Inc()
					continue
				}
				queue = append(queue, out)
			}
		}
		if matched {
			metrics.EnvelopesDispatched.Inc()
		}
	}
	return dropped
}

// runOne executes a single handler match inside its own transaction.
func (d *Dispatcher) runOne(h Handler, env types.Envelope) ([]types.Envelope, error) {
	tx, err := d.db.BeginTx()
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx for handler %s: %v", types.ErrTransientIO, h.Name, err)
	}
	emitted, err := h.Process(env, tx)
	if err != nil {
		tx.Rollback()
		d.logger.Warn().Str("handler", h.Name).Err(err).Msg("handler dropped envelope")
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit handler %s: %v", types.ErrTransientIO, h.Name, err)
	}
	return emitted, nil
}

// applyRetryAccounting implements the loop-protection rule: re-emitting
// an envelope that carries the same event_id as its input (or neither
// has one yet) increments retry_count; exceeding the cap is a fatal
// drop (spec.md §4.1 "Loop protection").
func (d *Dispatcher) applyRetryAccounting(in, out types.Envelope) (types.Envelope, error) {
	sameLineage := (in.EventID != "" && out.EventID == in.EventID) || (in.EventID == "" && out.EventID == "")
	if sameLineage {
		out.RetryCount++
	}
	if out.RetryCount > d.retryCap {
		d.logger.Error().Str("event_id", out.EventID).Int("retry_count", out.RetryCount).Msg("retry cap exceeded, fatal drop")
		return out, fmt.Errorf("%w: event %s retry_count=%d", types.ErrRetryCapExceeded, out.EventID, out.RetryCount)
	}
	return out, nil
}
