package stattests

import (
	"fmt"
	"math"

	"rand-assess/internal/assess"
)

// maxPatternBits bounds the pattern width of the approximate entropy and
// serial tests.
const maxPatternBits = 25

// patternCounts counts every m-bit pattern over the sequence, wrapping the
// first m-1 bits around the end.
func patternCounts(bits []byte, n, m int) []uint32 {
	counts := make([]uint32, 1<<uint(m))
	if m == 0 {
		counts[0] = uint32(n)
		return counts
	}
	mask := 1<<uint(m) - 1
	window := 0
	for i := 0; i < m-1; i++ {
		window = window<<1 | int(bits[i%n]&1)
	}
	for i := 0; i < n; i++ {
		window = (window<<1 | int(bits[(i+m-1)%n]&1)) & mask
		counts[window]++
	}
	return counts
}

// ApproximateEntropy compares the frequency of overlapping m-bit and
// (m+1)-bit patterns.
func ApproximateEntropy(m int, bits []byte, n int) (assess.Outcome, error) {
	if err := checkInput(bits, n, 1); err != nil {
		return assess.Outcome{}, err
	}
	if m < 1 || m+1 > maxPatternBits {
		return assess.Outcome{}, fmt.Errorf("%w: block length %d", ErrInvalidParameter, m)
	}

	nf := float64(n)
	phi := func(width int) float64 {
		var sum float64
		for _, c := range patternCounts(bits, n, width) {
			if c > 0 {
				p := float64(c) / nf
				sum += p * math.Log(p)
			}
		}
		return sum
	}

	apen := phi(m) - phi(m+1)
	chi2 := 2 * nf * (math.Ln2 - apen)
	p := igamc(math.Ldexp(1, m-1), chi2/2)

	return outcome([]float64{p}, stat("apen", apen), stat("chi2", chi2)), nil
}

// Serial tests the uniformity of overlapping m-bit patterns and reports two
// p-values, for the first and second differences of the psi-squared
// statistics.
func Serial(m int, bits []byte, n int) (assess.Outcome, error) {
	if err := checkInput(bits, n, 1); err != nil {
		return assess.Outcome{}, err
	}
	if m < 1 || m > maxPatternBits {
		return assess.Outcome{}, fmt.Errorf("%w: block length %d", ErrInvalidParameter, m)
	}

	nf := float64(n)
	psi := func(width int) float64 {
		if width <= 0 {
			return 0
		}
		var sum float64
		for _, c := range patternCounts(bits, n, width) {
			sum += float64(c) * float64(c)
		}
		return math.Ldexp(sum, width)/nf - nf
	}

	psiM, psiM1, psiM2 := psi(m), psi(m-1), psi(m-2)
	del1 := psiM - psiM1
	del2 := psiM - 2*psiM1 + psiM2
	p1 := igamc(math.Ldexp(1, m-2), del1/2)
	p2 := igamc(math.Ldexp(1, m-3), del2/2)

	return outcome([]float64{p1, p2},
		stat("psi_m", psiM),
		stat("psi_m1", psiM1),
		stat("psi_m2", psiM2),
		stat("del1", del1),
		stat("del2", del2),
	), nil
}
