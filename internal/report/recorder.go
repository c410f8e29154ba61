// Package report holds the output collaborators of an assessment run: an
// in-memory recorder, a file sink laid out per generator and test, a fan-out
// sink, and the final pass-proportion and uniformity analysis.
package report

import (
	"sync"

	"rand-assess/internal/assess"
	"rand-assess/internal/bitseq"
)

// SequenceRecord is the per-sequence bookkeeping reported before its tests
// run.
type SequenceRecord struct {
	Index    int
	Counters bitseq.Counters
}

// Recorder keeps every sequence and result in memory. It is safe for
// concurrent use.
type Recorder struct {
	mu        sync.Mutex
	sequences []SequenceRecord
	results   []assess.Result
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// BeginSequence implements assess.Sink.
func (r *Recorder) BeginSequence(index int, counters bitseq.Counters) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sequences = append(r.sequences, SequenceRecord{Index: index, Counters: counters})
}

// Record implements assess.Sink.
func (r *Recorder) Record(result assess.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

// Sequences returns a copy of the recorded sequences.
func (r *Recorder) Sequences() []SequenceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SequenceRecord(nil), r.sequences...)
}

// Results returns a copy of the recorded results in arrival order.
func (r *Recorder) Results() []assess.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]assess.Result(nil), r.results...)
}

// Totals sums the decode counters of every recorded sequence.
func (r *Recorder) Totals() bitseq.Counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total bitseq.Counters
	for _, s := range r.sequences {
		total.Zeros += s.Counters.Zeros
		total.Ones += s.Counters.Ones
		total.BitsRead += s.Counters.BitsRead
	}
	return total
}

// Reset drops everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sequences = nil
	r.results = nil
}

// Multi fans every call out to each sink in order. Nil entries are skipped.
type Multi []assess.Sink

// BeginSequence implements assess.Sink.
func (m Multi) BeginSequence(index int, counters bitseq.Counters) {
	for _, s := range m {
		if s != nil {
			s.BeginSequence(index, counters)
		}
	}
}

// Record implements assess.Sink.
func (m Multi) Record(result assess.Result) {
	for _, s := range m {
		if s != nil {
			s.Record(result)
		}
	}
}
