package report

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"rand-assess/internal/assess"
	"rand-assess/internal/bitseq"
)

func result(seq int, id assess.TestID, param int, pvalues ...float64) assess.Result {
	return assess.Result{
		Sequence: seq,
		Test:     id,
		Param:    param,
		Outcome:  assess.Outcome{PValues: pvalues},
	}
}

func TestRecorderCollectsInOrder(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	r.BeginSequence(0, bitseq.Counters{Zeros: 6, Ones: 4, BitsRead: 10})
	r.Record(result(0, assess.TestFrequency, 0, 0.5))
	r.BeginSequence(1, bitseq.Counters{Zeros: 3, Ones: 7, BitsRead: 10})
	r.Record(result(1, assess.TestFrequency, 0, 0.2))

	if got := len(r.Sequences()); got != 2 {
		t.Fatalf("Sequences() len = %d, want 2", got)
	}
	results := r.Results()
	if len(results) != 2 || results[0].Sequence != 0 || results[1].Sequence != 1 {
		t.Fatalf("Results() = %+v", results)
	}
	totals := r.Totals()
	if totals != (bitseq.Counters{Zeros: 9, Ones: 11, BitsRead: 20}) {
		t.Fatalf("Totals() = %+v", totals)
	}

	r.Reset()
	if len(r.Results()) != 0 || len(r.Sequences()) != 0 {
		t.Fatal("Reset() left data behind")
	}
}

func TestRecorderConcurrentUse(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.Record(result(i, assess.TestRuns, 0, 0.5))
			}
		}(i)
	}
	wg.Wait()

	if got := len(r.Results()); got != 400 {
		t.Fatalf("Results() len = %d, want 400", got)
	}
}

func TestMultiFansOutAndSkipsNil(t *testing.T) {
	t.Parallel()

	a, b := NewRecorder(), NewRecorder()
	m := Multi{a, nil, b}
	m.BeginSequence(0, bitseq.Counters{BitsRead: 1})
	m.Record(result(0, assess.TestRank, 0, 0.3))

	for i, r := range []*Recorder{a, b} {
		if len(r.Sequences()) != 1 || len(r.Results()) != 1 {
			t.Fatalf("sink %d did not receive calls", i)
		}
	}
}

func TestAcceptableProportion(t *testing.T) {
	t.Parallel()

	got := AcceptableProportion(0.01, 100)
	if math.Abs(got-0.960150) > 1e-6 {
		t.Fatalf("AcceptableProportion(0.01, 100) = %f, want 0.960150", got)
	}
	if AcceptableProportion(0.01, 0) != 0 {
		t.Fatal("AcceptableProportion with no samples should be 0")
	}
}

func TestUniformity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		histogram []int
		check     func(float64) bool
	}{
		{"flat", []int{10, 10, 10, 10, 10, 10, 10, 10, 10, 10}, func(p float64) bool { return math.Abs(p-1) < 1e-9 }},
		{"single bin", []int{100, 0, 0, 0, 0, 0, 0, 0, 0, 0}, func(p float64) bool { return p < 1e-100 }},
		{"empty", make([]int, 10), func(p float64) bool { return p == 0 }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Uniformity(tt.histogram); !tt.check(got) {
				t.Fatalf("Uniformity(%v) = %g", tt.histogram, got)
			}
		})
	}
}

func TestSummarizeGroupsAndOrders(t *testing.T) {
	t.Parallel()

	results := []assess.Result{
		result(0, assess.TestSerial, 5, 0.4, 0.6),
		result(0, assess.TestSerial, 2, 0.005, 0.9),
		result(0, assess.TestFrequency, 0, 0.05),
		result(1, assess.TestFrequency, 0, 0.95),
		{Sequence: 1, Test: assess.TestSerial, Param: 5, Err: errors.New("boom")},
	}

	got := Summarize(results, 0)
	if len(got) != 3 {
		t.Fatalf("Summarize() returned %d groups, want 3", len(got))
	}

	freq := got[0]
	if freq.Test != assess.TestFrequency || freq.Invocations != 2 || freq.Passed != 2 {
		t.Fatalf("frequency summary = %+v", freq)
	}
	if freq.Histogram[0] != 1 || freq.Histogram[9] != 1 {
		t.Fatalf("frequency histogram = %v", freq.Histogram)
	}
	if math.Abs(freq.MeanP-0.5) > 1e-12 || math.Abs(freq.MinP-0.05) > 1e-12 {
		t.Fatalf("frequency mean/min = %f/%f", freq.MeanP, freq.MinP)
	}

	serial2 := got[1]
	if serial2.Test != assess.TestSerial || serial2.Param != 2 {
		t.Fatalf("second group = %s", serial2.Name())
	}
	if serial2.Passed != 1 || serial2.Proportion != 0.5 {
		t.Fatalf("serial(2) passed = %d proportion = %f", serial2.Passed, serial2.Proportion)
	}

	serial5 := got[2]
	if serial5.Errors != 1 || serial5.Invocations != 2 {
		t.Fatalf("serial(5) errors = %d invocations = %d", serial5.Errors, serial5.Invocations)
	}
	if serial5.Pass() {
		t.Fatal("a group with errors must not pass")
	}
	if serial5.Name() != "Serial(5)" || freq.Name() != "Frequency" {
		t.Fatalf("names = %q, %q", serial5.Name(), freq.Name())
	}
}

func TestSummarizeClampsTopBin(t *testing.T) {
	t.Parallel()

	got := Summarize([]assess.Result{result(0, assess.TestRuns, 0, 1.0)}, 0.01)
	if got[0].Histogram[9] != 1 {
		t.Fatalf("p = 1 should land in the last bin, got %v", got[0].Histogram)
	}
}

func TestLegacyString(t *testing.T) {
	t.Parallel()

	summaries := Summarize([]assess.Result{
		result(0, assess.TestFrequency, 0, 0.5),
		result(0, assess.TestPoker, 4, 0.5),
		result(0, assess.TestPoker, 8, 0.0001),
		result(0, assess.TestRuns, 0, 0.7),
	}, 0.01)

	want := "Frequency=1&Runs=1&Poker=0"
	if got := LegacyString(summaries); got != want {
		t.Fatalf("LegacyString() = %q, want %q", got, want)
	}
}

func TestWriteSummary(t *testing.T) {
	t.Parallel()

	summaries := Summarize([]assess.Result{
		result(0, assess.TestFrequency, 0, 0.2),
		result(1, assess.TestFrequency, 0, 0.6),
		{Sequence: 0, Test: assess.TestRank, Err: errors.New("insufficient")},
	}, 0.01)
	var buf bytes.Buffer
	WriteSummary(&buf, summaries, 0.01, 2, bitseq.Counters{Zeros: 5, Ones: 5, BitsRead: 10})

	out := buf.String()
	for _, want := range []string{
		"bits read = 10", "PASS", "Frequency", "2/2",
		"P-VALUE STATISTICS",
		"0.400000   0.400000   0.200000   0.200000   Frequency",
		"-          -          -          -          Rank",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestFileSinkLayout(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sink, err := NewFileSink(dir, "XOR", 0.01)
	if err != nil {
		t.Fatalf("NewFileSink() error = %v", err)
	}

	sink.BeginSequence(0, bitseq.Counters{Zeros: 20480, Ones: 0, BitsRead: 20480})
	sink.Record(assess.Result{
		Test: assess.TestFrequency,
		Outcome: assess.Outcome{
			PValues:    []float64{0.25},
			Statistics: []assess.Statistic{{Name: "sum", Value: -20480}},
		},
	})
	sink.Record(assess.Result{Test: assess.TestRank, Err: errors.New("insufficient")})

	if err := sink.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	root := filepath.Join(dir, "XOR")
	if sink.Dir() != root {
		t.Fatalf("Dir() = %q, want %q", sink.Dir(), root)
	}

	freq := readFile(t, filepath.Join(root, "freq.txt"))
	if freq != "BITSREAD = 20480 0s = 20480 1s = 0\n" {
		t.Fatalf("freq.txt = %q", freq)
	}
	if got := readFile(t, filepath.Join(root, "Frequency", "results.txt")); got != "0.250000\n" {
		t.Fatalf("results.txt = %q", got)
	}
	if got := readFile(t, filepath.Join(root, "Frequency", "stats.txt")); !strings.Contains(got, "sum = -20480.000000") {
		t.Fatalf("stats.txt = %q", got)
	}
	if got := readFile(t, filepath.Join(root, "Rank", "stats.txt")); !strings.Contains(got, "error: insufficient") {
		t.Fatalf("rank stats.txt = %q", got)
	}
	final := readFile(t, filepath.Join(root, "finalAnalysisReport.txt"))
	if !strings.Contains(final, "Frequency") || !strings.Contains(final, "Rank") ||
		!strings.Contains(final, "0.250000   0.250000   0.000000   0.250000   Frequency") {
		t.Fatalf("final report = %q", final)
	}

	if got := len(sink.Summaries()); got != 2 {
		t.Fatalf("Summaries() len = %d, want 2", got)
	}
	if sink.Err() != nil {
		t.Fatalf("Err() = %v", sink.Err())
	}
}

func TestFileSinkIgnoresWritesAfterClose(t *testing.T) {
	t.Parallel()

	sink, err := NewFileSink(t.TempDir(), "", 0.01)
	if err != nil {
		t.Fatalf("NewFileSink() error = %v", err)
	}
	if filepath.Base(sink.Dir()) != "input" {
		t.Fatalf("default generator dir = %q", sink.Dir())
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	sink.BeginSequence(0, bitseq.Counters{BitsRead: 1})
	sink.Record(result(0, assess.TestFrequency, 0, 0.5))
	if sink.Err() != nil {
		t.Fatalf("Err() after late writes = %v", sink.Err())
	}
}

func TestNewFileSinkErrors(t *testing.T) {
	t.Parallel()

	if _, err := NewFileSink("", "XOR", 0.01); err == nil {
		t.Fatal("expected error for empty directory")
	}

	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileSink(blocker, "XOR", 0.01); err == nil {
		t.Fatal("expected error when output directory is a file")
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}
