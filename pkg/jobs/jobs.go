// Package jobs runs the two background-work shapes spec.md §4.6
// names: a time-triggered, stateful Job (ticks on an interval, reads
// and writes its own job_states row across runs) and an event-triggered,
// stateless Reflector (reacts to a just-projected/stored event, carries
// nothing between invocations).
//
// Grounded on _examples/cuemby-warren/pkg/reconciler/reconciler.go's
// ticker/stopCh run loop, generalized from one hardcoded reconcile()
// cycle to a registry of named, independently ticking Jobs, and on
// _examples/cuemby-warren/pkg/events/events.go's subscriber-callback
// shape for Reflectors.
package jobs

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quietmesh/core/pkg/log"
	"github.com/quietmesh/core/pkg/metrics"
	"github.com/quietmesh/core/pkg/store"
	"github.com/quietmesh/core/pkg/types"
)

// Job is a time-triggered unit of work. Run receives the job's own
// last-persisted state (nil on first run) and returns the state to
// persist for next time; a non-nil error is recorded as a failed run
// without overwriting state (spec.md §4.6 "Job... state persists only
// on success").
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context, tx *sql.Tx, state []byte) (nextState []byte, err error)
}

// Reflector is an event-triggered unit of work with no state of its own.
type Reflector struct {
	Name   string
	Filter func(e types.Envelope) bool
	Run    func(ctx context.Context, tx *sql.Tx, e types.Envelope) error
}

// Runner drives a set of Jobs on their own tickers and dispatches
// stored/projected events to matching Reflectors.
type Runner struct {
	db         *store.DB
	jobs       []Job
	reflectors []Reflector
	logger     zerolog.Logger

	mu     sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRunner builds a Runner over db with the given jobs and reflectors.
func NewRunner(db *store.DB, jobs []Job, reflectors []Reflector) *Runner {
	return &Runner{
		db:         db,
		jobs:       jobs,
		reflectors: reflectors,
		logger:     log.WithComponent("jobs"),
		stopCh:     make(chan struct{}),
	}
}

// Start launches one ticking goroutine per Job. Call Stop to halt them.
func (r *Runner) Start(ctx context.Context) {
	for _, j := range r.jobs {
		r.wg.Add(1)
		go r.runJob(ctx, j)
	}
}

// Stop halts every running Job and waits for their goroutines to exit.
func (r *Runner) Stop() {
	r.mu.Lock()
	select {
	case <-r.stopCh:
	default:
		close(r.stopCh)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Runner) runJob(ctx context.Context, j Job) {
	defer r.wg.Done()
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	r.logger.Info().Str("job", j.Name).Dur("interval", j.Interval).Msg("job started")
	for {
		select {
		case <-ticker.C:
			r.tick(ctx, j)
		case <-r.stopCh:
			r.logger.Info().Str("job", j.Name).Msg("job stopped")
			return
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runner) tick(ctx context.Context, j Job) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.HandlerDuration, "job:"+j.Name)

	tx, err := r.db.BeginTx()
	if err != nil {
		r.logger.Error().Str("job", j.Name).Err(err).Msg("begin tx failed")
		return
	}

	state, _, _, err := r.db.GetJobState(tx, j.Name)
	if err != nil {
		tx.Rollback()
		r.logger.Error().Str("job", j.Name).Err(err).Msg("load job state failed")
		return
	}

	nextState, runErr := j.Run(ctx, tx, state)
	if runErr != nil {
		tx.Rollback()
		r.logger.Warn().Str("job", j.Name).Err(runErr).Msg("job run failed")
		r.recordRun(j.Name, false)
		return
	}

	if err := r.db.PutJobState(tx, j.Name, nextState, nowMs()); err != nil {
		tx.Rollback()
		r.logger.Error().Str("job", j.Name).Err(err).Msg("persist job state failed")
		return
	}
	if err := r.db.RecordJobRun(tx, j.Name, true, nowMs()); err != nil {
		tx.Rollback()
		r.logger.Error().Str("job", j.Name).Err(err).Msg("record job run failed")
		return
	}
	if err := tx.Commit(); err != nil {
		r.logger.Error().Str("job", j.Name).Err(err).Msg("commit job run failed")
		return
	}
	metrics.JobRuns.WithLabelValues(j.Name, "true").Inc()
}

func (r *Runner) recordRun(name string, ok bool) {
	tx, err := r.db.BeginTx()
	if err != nil {
		return
	}
	if err := r.db.RecordJobRun(tx, name, ok, nowMs()); err != nil {
		tx.Rollback()
		return
	}
	tx.Commit()
	metrics.JobRuns.WithLabelValues(name, "false").Inc()
}

// Notify runs every matching Reflector against e, inside its own
// transaction, immediately after e was stored and projected. Unlike
// Unblock (pkg/resolver), a reflector never re-enters the envelope
// pipeline — it reacts to the event, it does not emit one.
func (r *Runner) Notify(ctx context.Context, e types.Envelope) {
	for _, ref := range r.reflectors {
		if !ref.Filter(e) {
			continue
		}
		tx, err := r.db.BeginTx()
		if err != nil {
			r.logger.Error().Str("reflector", ref.Name).Err(err).Msg("begin tx failed")
			continue
		}
		if err := ref.Run(ctx, tx, e); err != nil {
			tx.Rollback()
			r.logger.Warn().Str("reflector", ref.Name).Err(err).Msg("reflector run failed")
			continue
		}
		if err := tx.Commit(); err != nil {
			r.logger.Error().Str("reflector", ref.Name).Err(err).Msg("commit reflector run failed")
		}
	}
}

func nowMs() int64 { return time.Now().UnixMilli() }
