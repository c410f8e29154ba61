package stattests

import (
	"fmt"
	"math"

	"rand-assess/internal/assess"
)

// universalThresholds gives the minimum sequence length for block lengths
// L = 6..16.
var universalThresholds = []int{
	387840, 904960, 2068480, 4654080, 10342400, 22753280,
	49643520, 107560960, 231669760, 496435200, 1059061760,
}

var universalExpected = [17]float64{
	0, 0.73264948, 1.5374383, 2.40160681, 3.31122472,
	4.25342659, 5.2177052, 6.1962507, 7.1836656,
	8.1764248, 9.1723243, 10.170032, 11.168765,
	12.168070, 13.167693, 14.167488, 15.167379,
}

var universalVariance = [17]float64{
	0, 0.690, 1.338, 1.901, 2.358, 2.705, 2.954, 3.125, 3.238,
	3.311, 3.356, 3.384, 3.401, 3.410, 3.416, 3.419, 3.421,
}

// Universal is Maurer's universal statistical test. The block length L is
// derived from n; sequences shorter than 387840 bits are rejected.
func Universal(_ int, bits []byte, n int) (assess.Outcome, error) {
	if err := checkInput(bits, n, universalThresholds[0]); err != nil {
		return assess.Outcome{}, err
	}

	l := 5
	for i, threshold := range universalThresholds {
		if n >= threshold {
			l = 6 + i
		}
	}
	q := 10 << uint(l)
	k := n/l - q
	if k <= 0 {
		return assess.Outcome{}, fmt.Errorf("%w: no test blocks for L=%d", ErrInsufficientData, l)
	}

	table := make([]int, 1<<uint(l))
	for i := 1; i <= q; i++ {
		table[blockValue(bits, (i-1)*l, l)] = i
	}
	var sum float64
	for i := q + 1; i <= q+k; i++ {
		dec := blockValue(bits, (i-1)*l, l)
		sum += math.Log2(float64(i - table[dec]))
		table[dec] = i
	}

	fn := sum / float64(k)
	lf := float64(l)
	c := 0.7 - 0.8/lf + (4+32/lf)*math.Pow(float64(k), -3/lf)/15
	sigma := c * math.Sqrt(universalVariance[l]/float64(k))
	p := clamp(math.Erfc(math.Abs(fn-universalExpected[l]) / (math.Sqrt2 * sigma)))

	return outcome([]float64{p},
		stat("L", lf),
		stat("Q", float64(q)),
		stat("K", float64(k)),
		stat("fn", fn),
		stat("sigma", sigma),
	), nil
}
