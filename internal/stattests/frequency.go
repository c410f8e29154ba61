package stattests

import (
	"fmt"
	"math"

	"rand-assess/internal/assess"
)

// Frequency is the monobit test: the normalized excess of ones over zeros.
func Frequency(_ int, bits []byte, n int) (assess.Outcome, error) {
	if err := checkInput(bits, n, 1); err != nil {
		return assess.Outcome{}, err
	}

	sum := 0
	for _, b := range bits[:n] {
		sum += 2*int(b&1) - 1
	}
	sObs := math.Abs(float64(sum)) / math.Sqrt(float64(n))
	p := clamp(math.Erfc(sObs / math.Sqrt2))

	return outcome([]float64{p}, stat("sum", float64(sum)), stat("s_obs", sObs)), nil
}

// BlockFrequency splits the sequence into blocks of m bits and tests the
// proportion of ones in each block.
func BlockFrequency(m int, bits []byte, n int) (assess.Outcome, error) {
	if err := checkInput(bits, n, 1); err != nil {
		return assess.Outcome{}, err
	}
	if m < 1 {
		return assess.Outcome{}, fmt.Errorf("%w: block length %d", ErrInvalidParameter, m)
	}
	blocks := n / m
	if blocks == 0 {
		return assess.Outcome{}, fmt.Errorf("%w: block length %d exceeds n=%d", ErrInsufficientData, m, n)
	}

	var sum float64
	for i := 0; i < blocks; i++ {
		ones := 0
		for _, b := range bits[i*m : (i+1)*m] {
			ones += int(b & 1)
		}
		v := float64(ones)/float64(m) - 0.5
		sum += v * v
	}
	chi2 := 4 * float64(m) * sum
	p := igamc(float64(blocks)/2, chi2/2)

	return outcome([]float64{p}, stat("chi2", chi2), stat("blocks", float64(blocks))), nil
}

// CumulativeSums reports two p-values: the maximal excursion of the random
// walk taken forwards and backwards.
func CumulativeSums(_ int, bits []byte, n int) (assess.Outcome, error) {
	if err := checkInput(bits, n, 1); err != nil {
		return assess.Outcome{}, err
	}

	var s, sup, inf int
	for _, b := range bits[:n] {
		s += 2*int(b&1) - 1
		if s > sup {
			sup = s
		}
		if s < inf {
			inf = s
		}
	}
	forward := sup
	if -inf > forward {
		forward = -inf
	}
	// The backward walk ends at the same total, so its excursion is the
	// largest distance between the total and any prefix sum (including 0).
	total := s
	backward := abs(total)
	s = 0
	for _, b := range bits[:n-1] {
		s += 2*int(b&1) - 1
		if d := abs(total - s); d > backward {
			backward = d
		}
	}

	pf := cusumP(forward, n)
	pb := cusumP(backward, n)
	return outcome([]float64{pf, pb},
		stat("z_forward", float64(forward)),
		stat("z_backward", float64(backward)),
	), nil
}

func cusumP(z, n int) float64 {
	if z == 0 {
		return 1
	}
	sqrtN := math.Sqrt(float64(n))
	zf := float64(z)

	var sum1 float64
	for k := (-n/z + 1) / 4; k <= (n/z-1)/4; k++ {
		sum1 += normalCDF(float64(4*k+1)*zf/sqrtN) - normalCDF(float64(4*k-1)*zf/sqrtN)
	}
	var sum2 float64
	for k := (-n/z - 3) / 4; k <= (n/z-1)/4; k++ {
		sum2 += normalCDF(float64(4*k+3)*zf/sqrtN) - normalCDF(float64(4*k+1)*zf/sqrtN)
	}
	return clamp(1 - sum1 + sum2)
}

// Runs tests the number of uninterrupted runs of identical bits. A sequence
// failing the frequency prerequisite gets a p-value of 0.
func Runs(_ int, bits []byte, n int) (assess.Outcome, error) {
	if err := checkInput(bits, n, 2); err != nil {
		return assess.Outcome{}, err
	}

	ones := 0
	for _, b := range bits[:n] {
		ones += int(b & 1)
	}
	nf := float64(n)
	pi := float64(ones) / nf
	tau := 2 / math.Sqrt(nf)
	if math.Abs(pi-0.5) >= tau {
		return outcome([]float64{0}, stat("pi", pi)), nil
	}

	v := 1
	for i := 1; i < n; i++ {
		if bits[i]&1 != bits[i-1]&1 {
			v++
		}
	}
	num := math.Abs(float64(v) - 2*nf*pi*(1-pi))
	den := 2 * math.Sqrt(2*nf) * pi * (1 - pi)
	p := clamp(math.Erfc(num / den))

	return outcome([]float64{p}, stat("pi", pi), stat("v_obs", float64(v))), nil
}

// longestRunTable is one row of the longest-run configuration, chosen by
// sequence length.
type longestRunTable struct {
	minBits int
	m       int
	low     int // run lengths <= low fall into the first bin
	probs   []float64
}

var longestRunTables = []longestRunTable{
	{750000, 10000, 10, []float64{0.0882, 0.2092, 0.2483, 0.1933, 0.1208, 0.0675, 0.0727}},
	{6272, 128, 4, []float64{0.1174035788, 0.242955959, 0.249363483, 0.17517706, 0.102701071, 0.112398847}},
	{128, 8, 1, []float64{0.21484375, 0.3671875, 0.23046875, 0.1875}},
}

// LongestRun tests the longest run of ones within fixed-size blocks.
func LongestRun(_ int, bits []byte, n int) (assess.Outcome, error) {
	if err := checkInput(bits, n, 128); err != nil {
		return assess.Outcome{}, err
	}

	var table longestRunTable
	for _, t := range longestRunTables {
		if n >= t.minBits {
			table = t
			break
		}
	}

	k := len(table.probs) - 1
	blocks := n / table.m
	nu := make([]int, k+1)
	for i := 0; i < blocks; i++ {
		longest, run := 0, 0
		for _, b := range bits[i*table.m : (i+1)*table.m] {
			if b&1 == 1 {
				run++
				if run > longest {
					longest = run
				}
			} else {
				run = 0
			}
		}
		bin := longest - table.low
		if bin < 0 {
			bin = 0
		}
		if bin > k {
			bin = k
		}
		nu[bin]++
	}

	expected := make([]float64, k+1)
	for i, p := range table.probs {
		expected[i] = float64(blocks) * p
	}
	chi2 := chiSquare(nu, expected)
	p := igamc(float64(k)/2, chi2/2)

	return outcome([]float64{p}, stat("chi2", chi2), stat("block_length", float64(table.m))), nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
