package stattests

import (
	"fmt"
	"math"

	"rand-assess/internal/assess"
)

const (
	// nonOverlappingBlocks is the number of blocks the sequence is split into
	// for the non-overlapping template test.
	nonOverlappingBlocks = 8
	// maxTemplates caps the number of aperiodic templates evaluated.
	maxTemplates = 148

	overlappingBlockBits = 1032
	overlappingDegrees   = 5
)

// NonOverlappingTemplate counts non-overlapping occurrences of every aperiodic
// template of m bits (up to maxTemplates of them, in increasing numeric
// order) and reports one p-value per template.
func NonOverlappingTemplate(m int, bits []byte, n int) (assess.Outcome, error) {
	if err := checkInput(bits, n, 1); err != nil {
		return assess.Outcome{}, err
	}
	if m < 2 || m > 21 {
		return assess.Outcome{}, fmt.Errorf("%w: template length %d", ErrInvalidParameter, m)
	}

	blockLen := n / nonOverlappingBlocks
	if blockLen < m {
		return assess.Outcome{}, fmt.Errorf("%w: block length %d shorter than template %d", ErrInsufficientData, blockLen, m)
	}

	templates := aperiodicTemplates(m, maxTemplates)
	pow := math.Ldexp(1, -m)
	lambda := float64(blockLen-m+1) * pow
	variance := float64(blockLen) * (pow - float64(2*m-1)*pow*pow)
	if lambda <= 0 || variance <= 0 {
		return assess.Outcome{}, fmt.Errorf("%w: lambda=%g variance=%g", ErrInsufficientData, lambda, variance)
	}

	pvalues := make([]float64, 0, len(templates))
	var worst float64
	mask := 1<<uint(m) - 1
	for _, tmpl := range templates {
		var chi2 float64
		for j := 0; j < nonOverlappingBlocks; j++ {
			block := bits[j*blockLen : (j+1)*blockLen]
			w := 0
			window := 0
			filled := 0
			for i := 0; i < blockLen; i++ {
				window = (window<<1 | int(block[i]&1)) & mask
				filled++
				if filled >= m && window == tmpl {
					w++
					filled = 0
					window = 0
				}
			}
			d := float64(w) - lambda
			chi2 += d * d / variance
		}
		if chi2 > worst {
			worst = chi2
		}
		pvalues = append(pvalues, igamc(nonOverlappingBlocks/2.0, chi2/2))
	}

	return outcome(pvalues,
		stat("templates", float64(len(templates))),
		stat("lambda", lambda),
		stat("variance", variance),
		stat("max_chi2", worst),
	), nil
}

// aperiodicTemplates returns up to limit m-bit patterns that cannot overlap a
// shifted copy of themselves, in increasing numeric order.
func aperiodicTemplates(m, limit int) []int {
	var out []int
	for v := 0; v < 1<<uint(m) && len(out) < limit; v++ {
		if isAperiodic(v, m) {
			out = append(out, v)
		}
	}
	return out
}

// isAperiodic reports whether no proper prefix of the m-bit pattern v equals
// the suffix of the same length.
func isAperiodic(v, m int) bool {
	for shift := 1; shift < m; shift++ {
		width := m - shift
		prefix := v >> uint(shift)
		suffix := v & (1<<uint(width) - 1)
		if prefix == suffix {
			return false
		}
	}
	return true
}

// OverlappingTemplate counts overlapping occurrences of the all-ones template
// of m bits in blocks of 1032 bits.
func OverlappingTemplate(m int, bits []byte, n int) (assess.Outcome, error) {
	if err := checkInput(bits, n, overlappingBlockBits); err != nil {
		return assess.Outcome{}, err
	}
	if m < 2 || m > 21 {
		return assess.Outcome{}, fmt.Errorf("%w: template length %d", ErrInvalidParameter, m)
	}

	blocks := n / overlappingBlockBits
	lambda := float64(overlappingBlockBits-m+1) * math.Ldexp(1, -m)
	probs := overlapProbabilities(m)

	nu := make([]int, overlappingDegrees+1)
	for j := 0; j < blocks; j++ {
		block := bits[j*overlappingBlockBits : (j+1)*overlappingBlockBits]
		w, run := 0, 0
		for _, b := range block {
			if b&1 == 1 {
				run++
				if run >= m {
					w++
				}
			} else {
				run = 0
			}
		}
		if w > overlappingDegrees {
			w = overlappingDegrees
		}
		nu[w]++
	}

	expected := make([]float64, len(probs))
	for i, p := range probs {
		expected[i] = float64(blocks) * p
	}
	chi2 := chiSquare(nu, expected)
	p := igamc(overlappingDegrees/2.0, chi2/2)

	return outcome([]float64{p}, stat("chi2", chi2), stat("lambda", lambda), stat("blocks", float64(blocks))), nil
}

// overlapProbabilities returns the exact probabilities of 0..K-1 and
// K-or-more overlapping matches of the all-ones m-bit template in a block of
// overlappingBlockBits random bits. It runs the Markov chain over (current
// run of ones, matches so far).
func overlapProbabilities(m int) []float64 {
	const k = overlappingDegrees
	states := func() [][]float64 {
		s := make([][]float64, m+1)
		for i := range s {
			s[i] = make([]float64, k+1)
		}
		return s
	}
	cur, next := states(), states()
	cur[0][0] = 1

	for step := 0; step < overlappingBlockBits; step++ {
		for r := range next {
			for w := range next[r] {
				next[r][w] = 0
			}
		}
		for r := 0; r <= m; r++ {
			for w := 0; w <= k; w++ {
				p := cur[r][w]
				if p == 0 {
					continue
				}
				next[0][w] += p / 2
				r2 := r + 1
				w2 := w
				if r2 >= m {
					r2 = m
					if w2 < k {
						w2++
					}
				}
				next[r2][w2] += p / 2
			}
		}
		cur, next = next, cur
	}

	probs := make([]float64, k+1)
	for r := range cur {
		for w, p := range cur[r] {
			probs[w] += p
		}
	}
	return probs
}
