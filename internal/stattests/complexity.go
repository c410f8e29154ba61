package stattests

import (
	"fmt"
	"math"

	"rand-assess/internal/assess"
)

var linearComplexityProbs = []float64{0.010417, 0.03125, 0.125, 0.5, 0.25, 0.0625, 0.020833}

// LinearComplexity computes the Berlekamp-Massey linear complexity of each
// block of m bits and tests its deviation from the expected mean.
func LinearComplexity(m int, bits []byte, n int) (assess.Outcome, error) {
	if err := checkInput(bits, n, 1); err != nil {
		return assess.Outcome{}, err
	}
	if m < 2 {
		return assess.Outcome{}, fmt.Errorf("%w: block length %d", ErrInvalidParameter, m)
	}
	blocks := n / m
	if blocks == 0 {
		return assess.Outcome{}, fmt.Errorf("%w: block length %d exceeds n=%d", ErrInsufficientData, m, n)
	}

	mf := float64(m)
	sign := 1.0
	if m%2 == 0 {
		sign = -1
	}
	// mu uses (-1)^(M+1); the deviation uses (-1)^M.
	mu := mf/2 + (9+sign)/36 - (mf/3+2.0/9)*math.Ldexp(1, -m)

	nu := make([]int, len(linearComplexityProbs))
	scratch := newBMScratch(m)
	for i := 0; i < blocks; i++ {
		l := scratch.complexity(bits[i*m : (i+1)*m])
		t := -sign*(float64(l)-mu) + 2.0/9
		nu[linearComplexityBin(t)]++
	}

	expected := make([]float64, len(linearComplexityProbs))
	for i, p := range linearComplexityProbs {
		expected[i] = float64(blocks) * p
	}
	chi2 := chiSquare(nu, expected)
	k := len(linearComplexityProbs) - 1
	p := igamc(float64(k)/2, chi2/2)

	return outcome([]float64{p}, stat("chi2", chi2), stat("mu", mu), stat("blocks", float64(blocks))), nil
}

func linearComplexityBin(t float64) int {
	switch {
	case t <= -2.5:
		return 0
	case t <= -1.5:
		return 1
	case t <= -0.5:
		return 2
	case t <= 0.5:
		return 3
	case t <= 1.5:
		return 4
	case t <= 2.5:
		return 5
	default:
		return 6
	}
}

// bmScratch holds the Berlekamp-Massey working polynomials so blocks can be
// processed without reallocating.
type bmScratch struct {
	c, b, t []byte
}

func newBMScratch(m int) *bmScratch {
	return &bmScratch{c: make([]byte, m+1), b: make([]byte, m+1), t: make([]byte, m+1)}
}

// complexity returns the length of the shortest LFSR generating block.
func (s *bmScratch) complexity(block []byte) int {
	m := len(block)
	for i := range s.c {
		s.c[i], s.b[i] = 0, 0
	}
	s.c[0], s.b[0] = 1, 1

	l, mIdx := 0, -1
	for n := 0; n < m; n++ {
		d := block[n] & 1
		for i := 1; i <= l; i++ {
			d ^= s.c[i] & block[n-i] & 1
		}
		if d == 0 {
			continue
		}
		copy(s.t, s.c)
		shift := n - mIdx
		for j := 0; j+shift <= m; j++ {
			s.c[j+shift] ^= s.b[j]
		}
		if l <= n/2 {
			l = n + 1 - l
			mIdx = n
			copy(s.b, s.t)
		}
	}
	return l
}
