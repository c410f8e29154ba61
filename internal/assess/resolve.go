package assess

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrInvalidMode is returned for an evaluation mode outside {NIST, GM}.
	ErrInvalidMode = errors.New("assess: invalid evaluation mode")
	// ErrUnrecognizedSelection is returned for a selection mode or test
	// identifier outside the valid range.
	ErrUnrecognizedSelection = errors.New("assess: unrecognized selection")
	// ErrInvalidOverride is returned for a block-length override that targets
	// a non-parameterized test or carries an out-of-range value.
	ErrInvalidOverride = errors.New("assess: invalid parameter override")
)

// EvaluationMode selects the preset that decides default test selection and
// the fixed parameter values of some tests.
type EvaluationMode int

const (
	ModeNIST EvaluationMode = iota
	ModeGM
)

func (m EvaluationMode) String() string {
	switch m {
	case ModeNIST:
		return "NIST"
	case ModeGM:
		return "GM"
	default:
		return "Mode(" + strconv.Itoa(int(m)) + ")"
	}
}

// Valid reports whether m is NIST or GM.
func (m EvaluationMode) Valid() bool {
	return m == ModeNIST || m == ModeGM
}

// ParseEvaluationMode accepts "nist"/"0" and "gm"/"1".
func ParseEvaluationMode(value string) (EvaluationMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "0", "nist":
		return ModeNIST, nil
	case "1", "gm":
		return ModeGM, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidMode, value)
	}
}

// SelectionMode decides how the enabled test set is derived.
type SelectionMode int

const (
	SelectManual SelectionMode = iota
	SelectAll
	SelectNISTDefaults
	SelectGMDefaults
)

func (s SelectionMode) String() string {
	switch s {
	case SelectManual:
		return "manual"
	case SelectAll:
		return "all"
	case SelectNISTDefaults:
		return "nist"
	case SelectGMDefaults:
		return "gm"
	default:
		return "Selection(" + strconv.Itoa(int(s)) + ")"
	}
}

// ParseSelectionMode accepts the numeric legacy codes 0..3 or the names
// manual, all, nist and gm.
func ParseSelectionMode(value string) (SelectionMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "0", "manual":
		return SelectManual, nil
	case "1", "all":
		return SelectAll, nil
	case "2", "nist":
		return SelectNISTDefaults, nil
	case "3", "gm":
		return SelectGMDefaults, nil
	default:
		return 0, fmt.Errorf("%w: selection mode %q", ErrUnrecognizedSelection, value)
	}
}

// GM-only tests are disabled by the NIST preset; NIST-only tests are disabled
// by the GM preset.
var (
	gmOnlyTests   = []TestID{TestRunsDistribution, TestPoker, TestBinaryDerivative, TestAutoCorrelation}
	nistOnlyTests = []TestID{TestNonPeriodicTemplate, TestOverlappingTemplate, TestRandomExcursions, TestRandomExcursionsVariant}
)

// GMOnlyTests returns the tests the NIST preset leaves out.
func GMOnlyTests() []TestID {
	return append([]TestID(nil), gmOnlyTests...)
}

// NISTOnlyTests returns the tests the GM preset leaves out.
func NISTOnlyTests() []TestID {
	return append([]TestID(nil), nistOnlyTests...)
}

// ResolveEnabled derives the enabled test set. manual is only consulted for
// SelectManual.
func ResolveEnabled(selection SelectionMode, manual EnableVector) (EnableVector, error) {
	var v EnableVector
	switch selection {
	case SelectManual:
		v = manual
		v[0] = false
		return v, nil
	case SelectAll:
		return allEnabled(), nil
	case SelectNISTDefaults:
		v = allEnabled()
		for _, id := range gmOnlyTests {
			v[id] = false
		}
		return v, nil
	case SelectGMDefaults:
		v = allEnabled()
		for _, id := range nistOnlyTests {
			v[id] = false
		}
		return v, nil
	default:
		return EnableVector{}, fmt.Errorf("%w: selection mode %d", ErrUnrecognizedSelection, int(selection))
	}
}

func allEnabled() EnableVector {
	var v EnableVector
	for id := TestFrequency; id <= TestAutoCorrelation; id++ {
		v[id] = true
	}
	return v
}

// BlockLengths holds the configurable block length of each parameterized
// test.
type BlockLengths struct {
	BlockFrequency      int
	NonPeriodicTemplate int
	OverlappingTemplate int
	ApproximateEntropy  int
	Serial              int
	LinearComplexity    int
}

// DefaultBlockLengths returns the startup values of the configurable block
// lengths.
func DefaultBlockLengths() BlockLengths {
	return BlockLengths{
		BlockFrequency:      128,
		NonPeriodicTemplate: 9,
		OverlappingTemplate: 9,
		ApproximateEntropy:  10,
		Serial:              16,
		LinearComplexity:    500,
	}
}

// ParameterizedTests lists the tests that accept a block-length override.
func ParameterizedTests() []TestID {
	return []TestID{
		TestBlockFrequency,
		TestNonPeriodicTemplate,
		TestOverlappingTemplate,
		TestApproximateEntropy,
		TestSerial,
		TestLinearComplexity,
	}
}

// Get returns the block length configured for id.
func (b BlockLengths) Get(id TestID) (int, bool) {
	switch id {
	case TestBlockFrequency:
		return b.BlockFrequency, true
	case TestNonPeriodicTemplate:
		return b.NonPeriodicTemplate, true
	case TestOverlappingTemplate:
		return b.OverlappingTemplate, true
	case TestApproximateEntropy:
		return b.ApproximateEntropy, true
	case TestSerial:
		return b.Serial, true
	case TestLinearComplexity:
		return b.LinearComplexity, true
	default:
		return 0, false
	}
}

// Apply validates overrides against sequence length n and returns the
// updated block lengths. Every override must target a parameterized test and
// fall in that test's accepted range.
func (b BlockLengths) Apply(overrides map[TestID]int, n int) (BlockLengths, error) {
	ids := make([]int, 0, len(overrides))
	for id := range overrides {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)

	for _, raw := range ids {
		id := TestID(raw)
		value := overrides[id]
		lo, hi, ok := overrideRange(id, n)
		if !ok {
			return b, fmt.Errorf("%w: %s does not take a block length", ErrInvalidOverride, id)
		}
		if value < lo || value > hi {
			return b, fmt.Errorf("%w: %s block length %d outside [%d, %d]", ErrInvalidOverride, id, value, lo, hi)
		}
		switch id {
		case TestBlockFrequency:
			b.BlockFrequency = value
		case TestNonPeriodicTemplate:
			b.NonPeriodicTemplate = value
		case TestOverlappingTemplate:
			b.OverlappingTemplate = value
		case TestApproximateEntropy:
			b.ApproximateEntropy = value
		case TestSerial:
			b.Serial = value
		case TestLinearComplexity:
			b.LinearComplexity = value
		}
	}
	return b, nil
}

// withDefaults fills zero fields from DefaultBlockLengths and range-checks
// the rest. The sequence length is not known to bound them here; Apply
// bounds overrides against it.
func (b BlockLengths) withDefaults() (BlockLengths, error) {
	defaults := DefaultBlockLengths()
	fields := []*int{
		&b.BlockFrequency, &b.NonPeriodicTemplate, &b.OverlappingTemplate,
		&b.ApproximateEntropy, &b.Serial, &b.LinearComplexity,
	}
	for i, id := range ParameterizedTests() {
		field := fields[i]
		if *field == 0 {
			*field, _ = defaults.Get(id)
			continue
		}
		lo, hi, _ := overrideRange(id, math.MaxInt)
		if *field < lo || *field > hi {
			return b, fmt.Errorf("%w: %s block length %d outside [%d, %d]", ErrInvalidOverride, id, *field, lo, hi)
		}
	}
	return b, nil
}

// ParseOverride parses "name=value" or "name:value", where name is anything
// ParseTestID accepts. Range checks happen in Apply.
func ParseOverride(value string) (TestID, int, error) {
	name, raw, ok := strings.Cut(value, "=")
	if !ok {
		name, raw, ok = strings.Cut(value, ":")
	}
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q is not name=value", ErrInvalidOverride, value)
	}
	id, err := ParseTestID(name)
	if err != nil {
		return 0, 0, err
	}
	length, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %s block length %q is not a number", ErrInvalidOverride, id, raw)
	}
	return id, length, nil
}

// overrideRange returns the accepted block-length range for id.
func overrideRange(id TestID, n int) (int, int, bool) {
	upper := n
	if upper < 1 {
		upper = 1
	}
	switch id {
	case TestBlockFrequency:
		return 1, upper, true
	case TestNonPeriodicTemplate, TestOverlappingTemplate:
		return 2, 21, true
	case TestApproximateEntropy, TestSerial:
		return 1, 24, true
	case TestLinearComplexity:
		return 2, upper, true
	default:
		return 0, 0, false
	}
}

// ParameterSet maps each enabled test to the parameter values it is invoked
// with, one invocation per value. Tests without a parameter carry [0].
type ParameterSet map[TestID][]int

// Params returns a copy of the values configured for id.
func (p ParameterSet) Params(id TestID) []int {
	return append([]int(nil), p[id]...)
}

// Invocations returns the total number of test calls per sequence.
func (p ParameterSet) Invocations() int {
	total := 0
	for _, values := range p {
		total += len(values)
	}
	return total
}

// pokerThresholdBits is the sequence length (320 bytes) above which the
// poker test switches from m=2 to m=4 and m=8.
const pokerThresholdBits = 320 * 8

// ResolveParameters computes the parameter values for every enabled test. It
// has no hidden state: equal inputs always produce equal output.
func ResolveParameters(mode EvaluationMode, enabled EnableVector, lengths BlockLengths, n int) (ParameterSet, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMode, int(mode))
	}

	params := make(ParameterSet, NumTests)
	for _, id := range enabled.Tests() {
		switch id {
		case TestBlockFrequency:
			if mode == ModeGM {
				params[id] = []int{100}
			} else {
				params[id] = []int{lengths.BlockFrequency}
			}
		case TestApproximateEntropy:
			if mode == ModeGM {
				params[id] = []int{2, 5}
			} else {
				params[id] = []int{lengths.ApproximateEntropy}
			}
		case TestSerial:
			if mode == ModeGM {
				params[id] = []int{2, 5}
			} else {
				params[id] = []int{lengths.Serial}
			}
		case TestNonPeriodicTemplate:
			params[id] = []int{lengths.NonPeriodicTemplate}
		case TestOverlappingTemplate:
			params[id] = []int{lengths.OverlappingTemplate}
		case TestLinearComplexity:
			params[id] = []int{lengths.LinearComplexity}
		case TestPoker:
			if n > pokerThresholdBits {
				params[id] = []int{4, 8}
			} else {
				params[id] = []int{2}
			}
		case TestBinaryDerivative:
			params[id] = []int{3, 7}
		case TestAutoCorrelation:
			params[id] = []int{1, 2, 8, 16}
		default:
			params[id] = []int{0}
		}
	}
	return params, nil
}
