package report

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"rand-assess/internal/assess"
	"rand-assess/internal/bitseq"
)

const (
	freqFile        = "freq.txt"
	statsFile       = "stats.txt"
	resultsFile     = "results.txt"
	finalReportFile = "finalAnalysisReport.txt"
)

// FileSink writes per-sequence bit counts, per-test statistics and p-values,
// and a final analysis report under <dir>/<generator>. Writes happen as
// results arrive; the first I/O error is kept and later writes are skipped.
type FileSink struct {
	mu    sync.Mutex
	root  string
	alpha float64

	freq  *os.File
	files map[assess.TestID]*testFiles

	recorder *Recorder
	err      error
	closed   bool
}

type testFiles struct {
	stats   *os.File
	results *bufio.Writer
	raw     *os.File
}

// NewFileSink creates <dir>/<generator> and opens its freq.txt. alpha is
// the significance level of the final report.
func NewFileSink(dir, generator string, alpha float64) (*FileSink, error) {
	if dir == "" {
		return nil, errors.New("report: output directory is empty")
	}
	if generator == "" {
		generator = "input"
	}
	root := filepath.Join(dir, generator)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("report: create %s: %w", root, err)
	}
	freq, err := os.Create(filepath.Join(root, freqFile))
	if err != nil {
		return nil, fmt.Errorf("report: create %s: %w", freqFile, err)
	}
	return &FileSink{
		root:     root,
		alpha:    alpha,
		freq:     freq,
		files:    make(map[assess.TestID]*testFiles),
		recorder: NewRecorder(),
	}, nil
}

// Dir returns the generator directory the sink writes into.
func (s *FileSink) Dir() string {
	return s.root
}

// BeginSequence implements assess.Sink.
func (s *FileSink) BeginSequence(index int, counters bitseq.Counters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorder.BeginSequence(index, counters)
	if s.err != nil || s.closed {
		return
	}
	_, err := fmt.Fprintf(s.freq, "BITSREAD = %d 0s = %d 1s = %d\n", counters.BitsRead, counters.Zeros, counters.Ones)
	s.fail(err)
}

// Record implements assess.Sink.
func (s *FileSink) Record(result assess.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorder.Record(result)
	if s.err != nil || s.closed {
		return
	}

	tf, err := s.testFiles(result.Test)
	if err != nil {
		s.fail(err)
		return
	}

	if result.Err != nil {
		_, err = fmt.Fprintf(tf.stats, "sequence %d param %d: error: %v\n", result.Sequence, result.Param, result.Err)
		s.fail(err)
		return
	}

	if _, err = fmt.Fprintf(tf.stats, "sequence %d param %d\n", result.Sequence, result.Param); err != nil {
		s.fail(err)
		return
	}
	for _, st := range result.Outcome.Statistics {
		if _, err = fmt.Fprintf(tf.stats, "\t%s = %f\n", st.Name, st.Value); err != nil {
			s.fail(err)
			return
		}
	}
	for _, p := range result.Outcome.PValues {
		if _, err = fmt.Fprintf(tf.results, "%f\n", p); err != nil {
			s.fail(err)
			return
		}
	}
}

func (s *FileSink) testFiles(id assess.TestID) (*testFiles, error) {
	if tf, ok := s.files[id]; ok {
		return tf, nil
	}
	dir := filepath.Join(s.root, id.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("report: create %s: %w", dir, err)
	}
	stats, err := os.Create(filepath.Join(dir, statsFile))
	if err != nil {
		return nil, fmt.Errorf("report: create %s/%s: %w", id, statsFile, err)
	}
	raw, err := os.Create(filepath.Join(dir, resultsFile))
	if err != nil {
		_ = stats.Close()
		return nil, fmt.Errorf("report: create %s/%s: %w", id, resultsFile, err)
	}
	tf := &testFiles{stats: stats, results: bufio.NewWriter(raw), raw: raw}
	s.files[id] = tf
	return tf, nil
}

func (s *FileSink) fail(err error) {
	if err == nil || s.err != nil {
		return
	}
	s.err = err
	log.Printf("report: writing to %s failed: %v", s.root, err)
}

// Err returns the first write error, if any.
func (s *FileSink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Summaries returns the analysis of everything recorded so far.
func (s *FileSink) Summaries() []TestSummary {
	return Summarize(s.recorder.Results(), s.alpha)
}

// Close flushes the per-test files, writes finalAnalysisReport.txt and
// closes every file. It returns the first error seen during the run.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.err
	}
	s.closed = true

	for _, tf := range s.files {
		s.fail(tf.results.Flush())
		s.fail(tf.raw.Close())
		s.fail(tf.stats.Close())
	}
	s.fail(s.freq.Close())

	if s.err == nil {
		s.fail(s.writeFinalReport())
	}
	return s.err
}

func (s *FileSink) writeFinalReport() error {
	f, err := os.Create(filepath.Join(s.root, finalReportFile))
	if err != nil {
		return fmt.Errorf("report: create %s: %w", finalReportFile, err)
	}
	w := bufio.NewWriter(f)
	totals := s.recorder.Totals()
	WriteSummary(w, Summarize(s.recorder.Results(), s.alpha), s.alpha, len(s.recorder.Sequences()), totals)
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
