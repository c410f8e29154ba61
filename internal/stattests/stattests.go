// Package stattests implements the statistical tests run against each bit
// sequence: the fifteen tests of NIST SP 800-22 and the four additional tests
// of GM/T 0005 (runs distribution, poker, binary derivative and
// autocorrelation).
//
// Every test has the assess.TestFunc signature. bits holds one bit per byte
// (0 or 1) and n is the number of bits to examine. A test returns one or more
// p-values in [0, 1] together with the intermediate statistics that produced
// them. Inputs too short for a test, or parameters it cannot work with, yield
// an error wrapping ErrInsufficientData or ErrInvalidParameter; the caller
// reports the error and moves on.
package stattests

import (
	"errors"
	"fmt"
	"math"

	"rand-assess/internal/assess"

	"gonum.org/v1/gonum/mathext"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	// ErrInsufficientData is returned when a sequence is too short for a
	// test to produce a meaningful statistic.
	ErrInsufficientData = errors.New("stattests: insufficient data")
	// ErrInvalidParameter is returned when a block length or lag is outside
	// the range a test can work with.
	ErrInvalidParameter = errors.New("stattests: invalid parameter")
)

// Suite returns the default implementation of every test, keyed by its
// canonical identifier.
func Suite() assess.Suite {
	return assess.Suite{
		assess.TestFrequency:               Frequency,
		assess.TestBlockFrequency:          BlockFrequency,
		assess.TestCumulativeSums:          CumulativeSums,
		assess.TestRuns:                    Runs,
		assess.TestLongestRun:              LongestRun,
		assess.TestRank:                    Rank,
		assess.TestFFT:                     DFT,
		assess.TestNonPeriodicTemplate:     NonOverlappingTemplate,
		assess.TestOverlappingTemplate:     OverlappingTemplate,
		assess.TestUniversal:               Universal,
		assess.TestApproximateEntropy:      ApproximateEntropy,
		assess.TestRandomExcursions:        RandomExcursions,
		assess.TestRandomExcursionsVariant: RandomExcursionsVariant,
		assess.TestSerial:                  Serial,
		assess.TestLinearComplexity:        LinearComplexity,
		assess.TestRunsDistribution:        RunsDistribution,
		assess.TestPoker:                   Poker,
		assess.TestBinaryDerivative:        BinaryDerivative,
		assess.TestAutoCorrelation:         AutoCorrelation,
	}
}

// igamc is the regularized upper incomplete gamma function Q(a, x).
func igamc(a, x float64) float64 {
	if x <= 0 {
		return 1
	}
	if math.IsInf(x, 1) {
		return 0
	}
	return clamp(mathext.GammaIncRegComp(a, x))
}

// normalCDF is the standard normal cumulative distribution function.
func normalCDF(x float64) float64 {
	return distuv.UnitNormal.CDF(x)
}

// erfcP converts a standardized statistic into a two-sided p-value.
func erfcP(z float64) float64 {
	return clamp(math.Erfc(math.Abs(z) / math.Sqrt2))
}

func clamp(p float64) float64 {
	switch {
	case math.IsNaN(p):
		return 0
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

// chiSquare sums (observed-expected)^2/expected over the bins. Bins with a
// zero expectation are skipped.
func chiSquare(observed []int, expected []float64) float64 {
	var sum float64
	for i, o := range observed {
		e := expected[i]
		if e <= 0 {
			continue
		}
		d := float64(o) - e
		sum += d * d / e
	}
	return sum
}

// checkInput validates the common (bits, n) contract.
func checkInput(bits []byte, n, minBits int) error {
	if n > len(bits) {
		return fmt.Errorf("%w: n=%d exceeds %d available bits", ErrInsufficientData, n, len(bits))
	}
	if n < minBits {
		return fmt.Errorf("%w: n=%d, need at least %d bits", ErrInsufficientData, n, minBits)
	}
	return nil
}

// blockValue reads width bits starting at offset as a big-endian integer.
func blockValue(bits []byte, offset, width int) int {
	v := 0
	for i := 0; i < width; i++ {
		v = v<<1 | int(bits[offset+i]&1)
	}
	return v
}

func outcome(pvalues []float64, stats ...assess.Statistic) assess.Outcome {
	return assess.Outcome{PValues: pvalues, Statistics: stats}
}

func stat(name string, value float64) assess.Statistic {
	return assess.Statistic{Name: name, Value: value}
}
