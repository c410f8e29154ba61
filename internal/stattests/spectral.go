package stattests

import (
	"math"
	"math/cmplx"

	"rand-assess/internal/assess"

	"gonum.org/v1/gonum/dsp/fourier"
)

// DFT is the discrete Fourier transform (spectral) test. It counts the
// spectral peaks of the +/-1 sequence that fall under the 95% threshold.
func DFT(_ int, bits []byte, n int) (assess.Outcome, error) {
	if err := checkInput(bits, n, 2); err != nil {
		return assess.Outcome{}, err
	}

	x := make([]float64, n)
	for i, b := range bits[:n] {
		x[i] = float64(2*int(b&1) - 1)
	}
	coeffs := fourier.NewFFT(n).Coefficients(nil, x)

	nf := float64(n)
	threshold := math.Sqrt(math.Log(1/0.05) * nf)
	half := n / 2
	below := 0
	for i := 0; i < half; i++ {
		if cmplx.Abs(coeffs[i]) < threshold {
			below++
		}
	}

	expected := 0.95 * nf / 2
	d := (float64(below) - expected) / math.Sqrt(nf*0.95*0.05/4)
	p := erfcP(d)

	return outcome([]float64{p},
		stat("percentile", float64(below)/float64(half)*100),
		stat("n1_observed", float64(below)),
		stat("n0_expected", expected),
		stat("d", d),
	), nil
}
