// Package assess resolves which statistical tests run on each bit sequence
// and with which parameters, and dispatches them in the suite's canonical
// order. Configuration is resolved once into an immutable RunConfig; the
// Dispatcher then consumes one complete sequence at a time.
package assess

import (
	"fmt"
	"strconv"
	"strings"
)

// TestID identifies one of the suite's statistical tests. Valid identifiers
// are 1..NumTests; the numeric order is the dispatch order.
type TestID int

// Canonical test identifiers.
const (
	TestFrequency TestID = iota + 1
	TestBlockFrequency
	TestCumulativeSums
	TestRuns
	TestLongestRun
	TestRank
	TestFFT
	TestNonPeriodicTemplate
	TestOverlappingTemplate
	TestUniversal
	TestApproximateEntropy
	TestRandomExcursions
	TestRandomExcursionsVariant
	TestSerial
	TestLinearComplexity
	TestRunsDistribution
	TestPoker
	TestBinaryDerivative
	TestAutoCorrelation
)

// NumTests is the number of tests in the suite.
const NumTests = 19

var testNames = [NumTests + 1]string{
	"",
	"Frequency",
	"BlockFrequency",
	"CumulativeSums",
	"Runs",
	"LongestRun",
	"Rank",
	"FFT",
	"NonOverlappingTemplate",
	"OverlappingTemplate",
	"Universal",
	"ApproximateEntropy",
	"RandomExcursions",
	"RandomExcursionsVariant",
	"Serial",
	"LinearComplexity",
	"RunsDistribution",
	"Poker",
	"BinaryDerivative",
	"AutoCorrelation",
}

// AllTests lists every test in canonical order.
func AllTests() []TestID {
	ids := make([]TestID, 0, NumTests)
	for id := TestFrequency; id <= TestAutoCorrelation; id++ {
		ids = append(ids, id)
	}
	return ids
}

// Valid reports whether id names a real test.
func (id TestID) Valid() bool {
	return id >= TestFrequency && id <= TestAutoCorrelation
}

func (id TestID) String() string {
	if !id.Valid() {
		return "Test(" + strconv.Itoa(int(id)) + ")"
	}
	return testNames[id]
}

// ParseTestID accepts either a test number (1..19) or a test name, compared
// case-insensitively.
func ParseTestID(value string) (TestID, error) {
	trimmed := strings.TrimSpace(value)
	if n, err := strconv.Atoi(trimmed); err == nil {
		id := TestID(n)
		if !id.Valid() {
			return 0, fmt.Errorf("%w: test id %d out of range 1..%d", ErrUnrecognizedSelection, n, NumTests)
		}
		return id, nil
	}
	for id := TestFrequency; id <= TestAutoCorrelation; id++ {
		if strings.EqualFold(testNames[id], trimmed) {
			return id, nil
		}
	}
	if id, ok := paramAliases[strings.ToLower(trimmed)]; ok {
		return id, nil
	}
	return 0, fmt.Errorf("%w: unknown test %q", ErrUnrecognizedSelection, value)
}

// paramAliases maps the short names used for block-length overrides.
var paramAliases = map[string]TestID{
	"blockfreq":   TestBlockFrequency,
	"nonperiodic": TestNonPeriodicTemplate,
	"overlapping": TestOverlappingTemplate,
	"apen":        TestApproximateEntropy,
	"serial":      TestSerial,
	"linear":      TestLinearComplexity,
}

// EnableVector records which tests are enabled, indexed by TestID. Element 0
// is not a test and is ignored by every method.
type EnableVector [NumTests + 1]bool

// Enabled reports whether id is enabled. Invalid identifiers are never
// enabled.
func (v EnableVector) Enabled(id TestID) bool {
	return id.Valid() && v[id]
}

// With returns a copy of v with id set to enabled.
func (v EnableVector) With(id TestID, enabled bool) EnableVector {
	if id.Valid() {
		v[id] = enabled
	}
	return v
}

// Tests returns the enabled tests in canonical order.
func (v EnableVector) Tests() []TestID {
	var ids []TestID
	for id := TestFrequency; id <= TestAutoCorrelation; id++ {
		if v[id] {
			ids = append(ids, id)
		}
	}
	return ids
}

// Count returns the number of enabled tests.
func (v EnableVector) Count() int {
	return len(v.Tests())
}

// String renders the vector as NumTests characters of '0'/'1', test 1 first.
func (v EnableVector) String() string {
	var sb strings.Builder
	sb.Grow(NumTests)
	for id := TestFrequency; id <= TestAutoCorrelation; id++ {
		if v[id] {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// ParseEnableVector parses exactly NumTests '0'/'1' characters, test 1 first.
// Whitespace between digits is ignored.
func ParseEnableVector(value string) (EnableVector, error) {
	var v EnableVector
	id := TestFrequency
	for _, r := range value {
		switch r {
		case ' ', '\t', '\n', '\r':
			continue
		case '0', '1':
			if id > TestAutoCorrelation {
				return EnableVector{}, fmt.Errorf("%w: enable vector longer than %d", ErrUnrecognizedSelection, NumTests)
			}
			v[id] = r == '1'
			id++
		default:
			return EnableVector{}, fmt.Errorf("%w: enable vector contains %q", ErrUnrecognizedSelection, r)
		}
	}
	if id != TestAutoCorrelation+1 {
		return EnableVector{}, fmt.Errorf("%w: enable vector has %d entries, want %d", ErrUnrecognizedSelection, int(id)-1, NumTests)
	}
	return v, nil
}
