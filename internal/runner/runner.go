// Package runner drives one assessment run: it pulls sequences from a
// source, hands each to the dispatcher and releases it before the next one
// is decoded.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"rand-assess/internal/assess"
	"rand-assess/internal/bitseq"
	"rand-assess/internal/clock"
	"rand-assess/internal/metrics"

	"github.com/google/uuid"
)

// Run statuses reported to metrics.
const (
	StatusCompleted   = "completed"
	StatusDecodeError = "decode_error"
	StatusCanceled    = "canceled"
	StatusFailed      = "failed"
)

// Summary describes a finished or aborted run.
type Summary struct {
	RunID       string
	Sequences   int
	Invocations int
	Errors      int
	Totals      bitseq.Counters
	Duration    time.Duration
	Status      string
}

// Option configures a Runner.
type Option func(*Runner)

// WithClock injects the clock used for run and dispatch timings.
func WithClock(clockSource clock.Clock) Option {
	return func(r *Runner) {
		r.clockSource = clockSource
	}
}

// WithSourceLabel sets the label decoded sequences are counted under.
func WithSourceLabel(label string) Option {
	return func(r *Runner) {
		r.label = label
	}
}

// Runner executes runs against a fixed suite and sink.
type Runner struct {
	suite       assess.Suite
	sink        assess.Sink
	clockSource clock.Clock
	label       string
}

// New returns a Runner.
func New(suite assess.Suite, sink assess.Sink, opts ...Option) *Runner {
	r := &Runner{
		suite:       suite,
		sink:        sink,
		clockSource: clock.RealClock{},
		label:       "input",
	}
	for _, opt := range opts {
		opt(r)
	}
	r.clockSource = clock.OrReal(r.clockSource)
	return r
}

// Run processes cfg.NumSequences() sequences from src. A decode error ends
// the run immediately and is returned together with the partial summary.
// ctx is only checked between sequences; a sequence that has started is
// always fully dispatched.
func (r *Runner) Run(ctx context.Context, cfg assess.RunConfig, src bitseq.Source) (Summary, error) {
	if src == nil {
		return Summary{}, errors.New("runner: nil source")
	}

	summary := Summary{RunID: uuid.NewString(), Status: StatusCompleted}
	dispatcher := assess.NewDispatcher(cfg, r.suite, r.sink, assess.WithClock(r.clockSource))
	start := r.clockSource.Now()

	metrics.RecordRunStarted()
	log.Printf("runner: run %s started (mode=%s tests=%s n=%d sequences=%d source=%s)",
		summary.RunID, cfg.Mode(), cfg.Enabled(), cfg.SequenceBits(), cfg.NumSequences(), r.label)

	var runErr error
	for i := 0; i < cfg.NumSequences(); i++ {
		if err := ctx.Err(); err != nil {
			summary.Status = StatusCanceled
			runErr = fmt.Errorf("runner: stopped before sequence %d: %w", i, err)
			break
		}

		seq, err := src.Next()
		if err != nil {
			summary.Status = StatusDecodeError
			var decodeErr *bitseq.DecodeError
			if errors.As(err, &decodeErr) {
				metrics.RecordDecodeError(decodeErr.Kind.String())
			} else {
				metrics.RecordDecodeError("unknown")
			}
			runErr = fmt.Errorf("runner: sequence %d: %w", i, err)
			break
		}

		counters := seq.Counters
		metrics.RecordSequenceDecoded(r.label, counters.BitsRead)
		stats, err := dispatcher.Dispatch(i, seq)
		seq.Release()
		if err != nil {
			summary.Status = StatusFailed
			runErr = fmt.Errorf("runner: sequence %d: %w", i, err)
			break
		}

		summary.Sequences++
		summary.Invocations += stats.Invocations
		summary.Errors += stats.Errors
		summary.Totals.Zeros += counters.Zeros
		summary.Totals.Ones += counters.Ones
		summary.Totals.BitsRead += counters.BitsRead
	}

	summary.Duration = clock.Since(r.clockSource, start)
	metrics.RecordRunFinished(summary.Status)

	if runErr != nil {
		log.Printf("runner: run %s aborted after %d sequences: %v", summary.RunID, summary.Sequences, runErr)
		return summary, runErr
	}
	log.Printf("runner: run %s completed (sequences=%d invocations=%d errors=%d duration=%s)",
		summary.RunID, summary.Sequences, summary.Invocations, summary.Errors, summary.Duration)
	return summary, nil
}
