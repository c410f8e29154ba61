package report

import (
	"math"
	"sort"
	"strconv"

	"rand-assess/internal/assess"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultAlpha is the significance level used when none is configured.
const DefaultAlpha = 0.01

// histogramBins is the number of equal-width p-value bins of the uniformity
// check.
const histogramBins = 10

// TestSummary aggregates every p-value produced by one test at one parameter
// value across all sequences.
type TestSummary struct {
	Test        assess.TestID
	Param       int
	Invocations int
	Errors      int
	PValues     []float64
	Passed      int
	Histogram   [histogramBins]int

	// Proportion is Passed / len(PValues).
	Proportion float64
	// MinProportion is the lower bound of the acceptable pass proportion.
	MinProportion float64
	// Uniformity is the chi-square p-value of the p-value histogram.
	Uniformity float64

	// Descriptive statistics of PValues; StdDevP is the population
	// standard deviation.
	MeanP   float64
	MedianP float64
	StdDevP float64
	MinP    float64
}

// Pass reports whether the test produced p-values, had no errors and met the
// acceptable pass proportion.
func (s TestSummary) Pass() bool {
	return len(s.PValues) > 0 && s.Errors == 0 && s.Proportion >= s.MinProportion
}

// Name renders the test name with its parameter when it has one.
func (s TestSummary) Name() string {
	if s.Param == 0 {
		return s.Test.String()
	}
	return s.Test.String() + "(" + strconv.Itoa(s.Param) + ")"
}

type summaryKey struct {
	test  assess.TestID
	param int
}

// Summarize groups results by test and parameter and computes the pass
// proportion at alpha and the uniformity of the p-values. The output is in
// canonical test order, then parameter order. alpha <= 0 selects
// DefaultAlpha.
func Summarize(results []assess.Result, alpha float64) []TestSummary {
	if alpha <= 0 || alpha >= 1 {
		alpha = DefaultAlpha
	}

	groups := make(map[summaryKey]*TestSummary)
	for _, r := range results {
		key := summaryKey{r.Test, r.Param}
		s, ok := groups[key]
		if !ok {
			s = &TestSummary{Test: r.Test, Param: r.Param}
			groups[key] = s
		}
		s.Invocations++
		if r.Err != nil {
			s.Errors++
			continue
		}
		for _, p := range r.Outcome.PValues {
			s.PValues = append(s.PValues, p)
			if p >= alpha {
				s.Passed++
			}
			bin := int(p * histogramBins)
			if bin >= histogramBins {
				bin = histogramBins - 1
			}
			if bin < 0 {
				bin = 0
			}
			s.Histogram[bin]++
		}
	}

	out := make([]TestSummary, 0, len(groups))
	for _, s := range groups {
		finish(s, alpha)
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Test != out[j].Test {
			return out[i].Test < out[j].Test
		}
		return out[i].Param < out[j].Param
	})
	return out
}

func finish(s *TestSummary, alpha float64) {
	m := len(s.PValues)
	if m == 0 {
		return
	}
	s.Proportion = float64(s.Passed) / float64(m)
	s.MinProportion = AcceptableProportion(alpha, m)
	s.Uniformity = Uniformity(s.Histogram[:])

	data := stats.Float64Data(s.PValues)
	s.MeanP, _ = stats.Mean(data)
	s.MedianP, _ = stats.Median(data)
	s.StdDevP, _ = stats.StandardDeviation(data)
	s.MinP, _ = stats.Min(data)
}

// AcceptableProportion is the lower edge of the confidence interval
// p-hat - 3*sqrt(p-hat*(1-p-hat)/m) with p-hat = 1 - alpha.
func AcceptableProportion(alpha float64, m int) float64 {
	if m <= 0 {
		return 0
	}
	pHat := 1 - alpha
	return pHat - 3*math.Sqrt(pHat*(1-pHat)/float64(m))
}

// Uniformity computes the chi-square goodness-of-fit p-value of a p-value
// histogram against the uniform distribution.
func Uniformity(histogram []int) float64 {
	total := 0
	for _, c := range histogram {
		total += c
	}
	if total == 0 || len(histogram) < 2 {
		return 0
	}
	expected := float64(total) / float64(len(histogram))
	var chi2 float64
	for _, c := range histogram {
		d := float64(c) - expected
		chi2 += d * d / expected
	}
	dist := distuv.ChiSquared{K: float64(len(histogram) - 1)}
	return dist.Survival(chi2)
}
