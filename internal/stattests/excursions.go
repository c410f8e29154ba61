package stattests

import (
	"fmt"
	"math"

	"rand-assess/internal/assess"
)

var (
	excursionStates = []int{-4, -3, -2, -1, 1, 2, 3, 4}
	variantStates   = []int{-9, -8, -7, -6, -5, -4, -3, -2, -1, 1, 2, 3, 4, 5, 6, 7, 8, 9}
)

// randomWalk returns the partial sums of the +/-1 sequence and the number of
// cycles, i.e. returns to zero with the final step closing the last cycle.
func randomWalk(bits []byte, n int) ([]int, int) {
	walk := make([]int, n)
	s := 0
	cycles := 0
	for i, b := range bits[:n] {
		s += 2*int(b&1) - 1
		walk[i] = s
		if s == 0 {
			cycles++
		}
	}
	if s != 0 {
		cycles++
	}
	return walk, cycles
}

// checkCycles rejects walks with too few cycles for the chi-square
// approximation.
func checkCycles(cycles, n int) error {
	limit := math.Max(0.005*math.Sqrt(float64(n)), 500)
	if float64(cycles) < limit {
		return fmt.Errorf("%w: %d cycles, need at least %.0f", ErrInsufficientData, cycles, limit)
	}
	return nil
}

// excursionProbability is the probability that state x is visited exactly k
// times in one cycle; k = 5 stands for five or more.
func excursionProbability(x, k int) float64 {
	ax := math.Abs(float64(x))
	q := 1 - 1/(2*ax)
	switch {
	case k == 0:
		return q
	case k < 5:
		return 1 / (4 * ax * ax) * math.Pow(q, float64(k-1))
	default:
		return 1 / (2 * ax) * math.Pow(q, 4)
	}
}

// RandomExcursions tests the number of visits to each state -4..4 within
// the cycles of the random walk. It reports one p-value per state.
func RandomExcursions(_ int, bits []byte, n int) (assess.Outcome, error) {
	if err := checkInput(bits, n, 1); err != nil {
		return assess.Outcome{}, err
	}
	walk, cycles := randomWalk(bits, n)
	if err := checkCycles(cycles, n); err != nil {
		return assess.Outcome{}, err
	}

	// nu[state][k] is the number of cycles visiting state exactly k times.
	nu := make([][6]int, len(excursionStates))
	var visits [9]int // indexed by state+4
	flush := func() {
		for i, x := range excursionStates {
			k := visits[x+4]
			if k > 5 {
				k = 5
			}
			nu[i][k]++
		}
		visits = [9]int{}
	}
	for _, s := range walk {
		if s == 0 {
			flush()
			continue
		}
		if s >= -4 && s <= 4 {
			visits[s+4]++
		}
	}
	if walk[n-1] != 0 {
		flush()
	}

	j := float64(cycles)
	pvalues := make([]float64, len(excursionStates))
	for i, x := range excursionStates {
		observed := nu[i][:]
		expected := make([]float64, 6)
		for k := range expected {
			expected[k] = j * excursionProbability(x, k)
		}
		chi2 := chiSquare(observed, expected)
		pvalues[i] = igamc(2.5, chi2/2)
	}

	return outcome(pvalues, stat("cycles", j)), nil
}

// RandomExcursionsVariant tests the total number of visits to each state
// -9..9 across the whole random walk. It reports one p-value per state.
func RandomExcursionsVariant(_ int, bits []byte, n int) (assess.Outcome, error) {
	if err := checkInput(bits, n, 1); err != nil {
		return assess.Outcome{}, err
	}
	walk, cycles := randomWalk(bits, n)
	if err := checkCycles(cycles, n); err != nil {
		return assess.Outcome{}, err
	}

	var visits [19]int // indexed by state+9
	for _, s := range walk {
		if s >= -9 && s <= 9 {
			visits[s+9]++
		}
	}

	j := float64(cycles)
	pvalues := make([]float64, len(variantStates))
	for i, x := range variantStates {
		ax := math.Abs(float64(x))
		pvalues[i] = clamp(math.Erfc(math.Abs(float64(visits[x+9])-j) / math.Sqrt(2*j*(4*ax-2))))
	}

	return outcome(pvalues, stat("cycles", j)), nil
}
