// Package dispatcher drains a FIFO queue of envelopes against a
// registry of Handlers, in deterministic name order, one transaction
// per match, enforcing the retry-count loop guard. See Dispatcher.Run.
package dispatcher
