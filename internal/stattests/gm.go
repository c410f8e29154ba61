package stattests

import (
	"fmt"
	"math"

	"rand-assess/internal/assess"
)

// Poker splits the sequence into non-overlapping m-bit words and tests the
// uniformity of the 2^m word frequencies.
func Poker(m int, bits []byte, n int) (assess.Outcome, error) {
	if err := checkInput(bits, n, 1); err != nil {
		return assess.Outcome{}, err
	}
	if m < 1 || m > 16 {
		return assess.Outcome{}, fmt.Errorf("%w: word length %d", ErrInvalidParameter, m)
	}
	words := n / m
	if words == 0 {
		return assess.Outcome{}, fmt.Errorf("%w: word length %d exceeds n=%d", ErrInsufficientData, m, n)
	}

	counts := make([]int, 1<<uint(m))
	for i := 0; i < words; i++ {
		counts[blockValue(bits, i*m, m)]++
	}
	var sumSq float64
	for _, c := range counts {
		sumSq += float64(c) * float64(c)
	}
	nw := float64(words)
	v := math.Ldexp(1, m)/nw*sumSq - nw
	p := igamc((math.Ldexp(1, m)-1)/2, v/2)

	return outcome([]float64{p}, stat("V", v), stat("words", nw)), nil
}

// RunsDistribution compares the number of runs of each length, for ones and
// zeros separately, with their expected counts.
func RunsDistribution(_ int, bits []byte, n int) (assess.Outcome, error) {
	if err := checkInput(bits, n, 1); err != nil {
		return assess.Outcome{}, err
	}

	// k is the longest run length whose expected count is at least 5.
	k := 0
	for i := 1; ; i++ {
		if float64(n-i+3)/math.Ldexp(1, i+2) < 5 {
			break
		}
		k = i
	}
	if k < 2 {
		return assess.Outcome{}, fmt.Errorf("%w: n=%d gives %d run classes", ErrInsufficientData, n, k)
	}

	ones := make([]int, k+1)
	zeros := make([]int, k+1)
	record := func(bit byte, length int) {
		if length > k {
			length = k
		}
		if bit == 1 {
			ones[length]++
		} else {
			zeros[length]++
		}
	}
	run := 1
	for i := 1; i < n; i++ {
		if bits[i]&1 == bits[i-1]&1 {
			run++
			continue
		}
		record(bits[i-1]&1, run)
		run = 1
	}
	record(bits[n-1]&1, run)

	total := 0
	for i := 1; i <= k; i++ {
		total += ones[i] + zeros[i]
	}
	t := float64(total)

	var v float64
	for i := 1; i <= k; i++ {
		e := t / math.Ldexp(1, i+1)
		if i == k {
			e = t / math.Ldexp(1, k)
		}
		db := float64(ones[i]) - e
		dg := float64(zeros[i]) - e
		v += (db*db + dg*dg) / e
	}
	p := igamc(float64(k-1), v/2)

	return outcome([]float64{p}, stat("V", v), stat("runs", t), stat("classes", float64(k))), nil
}

// BinaryDerivative XORs adjacent bits k times and applies the frequency test
// to the derived sequence.
func BinaryDerivative(k int, bits []byte, n int) (assess.Outcome, error) {
	if err := checkInput(bits, n, 1); err != nil {
		return assess.Outcome{}, err
	}
	if k < 1 {
		return assess.Outcome{}, fmt.Errorf("%w: derivative order %d", ErrInvalidParameter, k)
	}
	if k >= n {
		return assess.Outcome{}, fmt.Errorf("%w: derivative order %d needs more than %d bits", ErrInsufficientData, k, n)
	}

	derived := make([]byte, n)
	copy(derived, bits[:n])
	for round := 0; round < k; round++ {
		for i := 0; i < n-round-1; i++ {
			derived[i] = (derived[i] ^ derived[i+1]) & 1
		}
	}
	length := n - k
	sum := 0
	for _, b := range derived[:length] {
		sum += 2*int(b) - 1
	}
	v := float64(sum) / math.Sqrt(float64(length))
	p := erfcP(v)

	return outcome([]float64{p}, stat("sum", float64(sum)), stat("V", v)), nil
}

// AutoCorrelation tests the agreement between the sequence and itself
// shifted by d bits.
func AutoCorrelation(d int, bits []byte, n int) (assess.Outcome, error) {
	if err := checkInput(bits, n, 1); err != nil {
		return assess.Outcome{}, err
	}
	if d < 1 {
		return assess.Outcome{}, fmt.Errorf("%w: lag %d", ErrInvalidParameter, d)
	}
	if d >= n {
		return assess.Outcome{}, fmt.Errorf("%w: lag %d needs more than %d bits", ErrInsufficientData, d, n)
	}

	a := 0
	for i := 0; i < n-d; i++ {
		a += int((bits[i] ^ bits[i+d]) & 1)
	}
	length := float64(n - d)
	v := 2 * (float64(a) - length/2) / math.Sqrt(length)
	p := erfcP(v)

	return outcome([]float64{p}, stat("A", float64(a)), stat("V", v)), nil
}
