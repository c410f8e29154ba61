package assess

import (
	"errors"
	"fmt"
	"log"
	"time"

	"rand-assess/internal/bitseq"
	"rand-assess/internal/clock"
	"rand-assess/internal/metrics"
)

var (
	// ErrIncompleteSequence is returned when a sequence shorter than N is
	// handed to the dispatcher.
	ErrIncompleteSequence = errors.New("assess: sequence is not complete")
	// ErrTestUnavailable is reported for an enabled test with no registered
	// implementation.
	ErrTestUnavailable = errors.New("assess: no implementation registered")
)

// Statistic is a named intermediate value produced by a test.
type Statistic struct {
	Name  string
	Value float64
}

// Outcome is what a test returns. Its content is opaque to the dispatcher and
// forwarded unchanged.
type Outcome struct {
	PValues    []float64
	Statistics []Statistic
}

// TestFunc runs one statistical test with the given parameter over bits,
// whose length is n. Tests must treat bits as read-only.
type TestFunc func(param int, bits []byte, n int) (Outcome, error)

// Suite maps test identifiers to implementations.
type Suite map[TestID]TestFunc

// Result is one test invocation as reported to the Sink.
type Result struct {
	Sequence int
	Test     TestID
	Param    int
	Outcome  Outcome
	Err      error
	Duration time.Duration
}

// Sink is the output collaborator. BeginSequence is called once per sequence
// before any of its results; Record once per invocation.
type Sink interface {
	BeginSequence(index int, counters bitseq.Counters)
	Record(result Result)
}

// DispatchStats summarizes the invocations for one sequence.
type DispatchStats struct {
	Invocations int
	Errors      int
	Duration    time.Duration
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithClock injects the clock used to time invocations.
func WithClock(clockSource clock.Clock) DispatcherOption {
	return func(d *Dispatcher) {
		d.clockSource = clockSource
	}
}

// Dispatcher invokes the enabled tests on one sequence at a time, in
// canonical order, once per configured parameter.
type Dispatcher struct {
	config      RunConfig
	suite       Suite
	sink        Sink
	clockSource clock.Clock
}

// NewDispatcher returns a Dispatcher bound to an immutable configuration.
func NewDispatcher(config RunConfig, suite Suite, sink Sink, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		config:      config,
		suite:       suite,
		sink:        sink,
		clockSource: clock.RealClock{},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.clockSource = clock.OrReal(d.clockSource)
	return d
}

// Dispatch runs every enabled test on seq. A failing or panicking test is
// reported through the sink and does not stop the remaining tests.
func (d *Dispatcher) Dispatch(index int, seq *bitseq.Sequence) (DispatchStats, error) {
	if seq == nil || !seq.Complete() || seq.Len() != d.config.SequenceBits() {
		return DispatchStats{}, ErrIncompleteSequence
	}

	start := d.clockSource.Now()
	if d.sink != nil {
		d.sink.BeginSequence(index, seq.Counters)
	}

	var stats DispatchStats
	bits := seq.Bits()
	n := seq.Len()

	for _, id := range d.config.Enabled().Tests() {
		for _, param := range d.config.Params(id) {
			result := d.invoke(index, id, param, bits, n)
			stats.Invocations++
			if result.Err != nil {
				stats.Errors++
				log.Printf("dispatch: sequence %d %s(%d) failed: %v", index, id, param, result.Err)
			}
			metrics.RecordTestInvocation(id.String(), result.Err == nil, result.Duration)
			if d.sink != nil {
				d.sink.Record(result)
			}
		}
	}

	stats.Duration = clock.Since(d.clockSource, start)
	metrics.RecordDispatch(stats.Duration)
	return stats, nil
}

func (d *Dispatcher) invoke(index int, id TestID, param int, bits []byte, n int) (result Result) {
	result = Result{Sequence: index, Test: id, Param: param}

	fn := d.suite[id]
	if fn == nil {
		result.Err = fmt.Errorf("%w: %s", ErrTestUnavailable, id)
		return result
	}

	start := d.clockSource.Now()
	defer func() {
		result.Duration = clock.Since(d.clockSource, start)
		if r := recover(); r != nil {
			result.Outcome = Outcome{}
			result.Err = fmt.Errorf("assess: %s(%d) panicked: %v", id, param, r)
		}
	}()

	result.Outcome, result.Err = fn(param, bits, n)
	return result
}
