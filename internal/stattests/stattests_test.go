package stattests

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"rand-assess/internal/assess"
)

// piBits is the 100-bit sample sequence used throughout SP 800-22 section 2.
const piBits = "1100100100001111110110101010001000100001011010001100001000110100110001001100011001100010100010111000"

func parseBits(t testing.TB, s string) []byte {
	t.Helper()
	out := make([]byte, 0, len(s))
	for _, r := range s {
		switch r {
		case '0':
			out = append(out, 0)
		case '1':
			out = append(out, 1)
		default:
			t.Fatalf("invalid bit %q", r)
		}
	}
	return out
}

func randomBits(seed int64, n int) []byte {
	rng := rand.New(rand.NewSource(seed))
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(rng.Intn(2))
	}
	return out
}

func alternating(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i & 1)
	}
	return out
}

func assertP(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-5 {
		t.Errorf("%s p-value = %.6f, want %.6f", name, got, want)
	}
}

func assertValidPValues(t *testing.T, name string, out assess.Outcome) {
	t.Helper()
	if len(out.PValues) == 0 {
		t.Fatalf("%s returned no p-values", name)
	}
	for i, p := range out.PValues {
		if math.IsNaN(p) || p < 0 || p > 1 {
			t.Errorf("%s p-value[%d] = %v outside [0,1]", name, i, p)
		}
	}
}

func TestSuite_CoversEveryTest(t *testing.T) {
	t.Parallel()

	suite := Suite()
	for _, id := range assess.AllTests() {
		if suite[id] == nil {
			t.Errorf("no implementation for %s", id)
		}
	}
}

func TestReferenceVectors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		fn    assess.TestFunc
		param int
		bits  string
		want  []float64
	}{
		{"Frequency/10", Frequency, 0, "1011010101", []float64{0.527089}},
		{"Frequency/100", Frequency, 0, piBits, []float64{0.109599}},
		{"BlockFrequency/10", BlockFrequency, 3, "0110011010", []float64{0.801252}},
		{"BlockFrequency/100", BlockFrequency, 10, piBits, []float64{0.706438}},
		{"CumulativeSums/100", CumulativeSums, 0, piBits, []float64{0.219194, 0.114866}},
		{"Runs/10", Runs, 0, "1001101011", []float64{0.147232}},
		{"Runs/100", Runs, 0, piBits, []float64{0.500798}},
		{"DFT/10", DFT, 0, "1001010011", []float64{0.468160}},
		{"ApproximateEntropy/10", ApproximateEntropy, 3, "0100110101", []float64{0.261961}},
		{"ApproximateEntropy/100", ApproximateEntropy, 2, piBits, []float64{0.235301}},
		{"Serial/10", Serial, 3, "0011011101", []float64{0.808792, 0.670320}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			bits := parseBits(t, tt.bits)
			out, err := tt.fn(tt.param, bits, len(bits))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(out.PValues) != len(tt.want) {
				t.Fatalf("got %d p-values, want %d", len(out.PValues), len(tt.want))
			}
			for i, want := range tt.want {
				assertP(t, tt.name, out.PValues[i], want)
			}
		})
	}
}

func TestCumulativeSums_ForwardExample(t *testing.T) {
	t.Parallel()

	bits := parseBits(t, "1011010111")
	out, err := CumulativeSums(0, bits, len(bits))
	if err != nil {
		t.Fatal(err)
	}
	assertP(t, "forward", out.PValues[0], 0.4116588)
}

func TestRandomInputPasses(t *testing.T) {
	t.Parallel()

	const n = 1 << 20
	bits := randomBits(42, n)

	tests := []struct {
		id    assess.TestID
		param int
	}{
		{assess.TestFrequency, 0},
		{assess.TestBlockFrequency, 128},
		{assess.TestCumulativeSums, 0},
		{assess.TestRuns, 0},
		{assess.TestLongestRun, 0},
		{assess.TestRank, 0},
		{assess.TestFFT, 0},
		{assess.TestOverlappingTemplate, 9},
		{assess.TestUniversal, 0},
		{assess.TestApproximateEntropy, 10},
		{assess.TestSerial, 16},
		{assess.TestLinearComplexity, 500},
		{assess.TestRunsDistribution, 0},
		{assess.TestPoker, 4},
		{assess.TestPoker, 8},
		{assess.TestBinaryDerivative, 3},
		{assess.TestBinaryDerivative, 7},
		{assess.TestAutoCorrelation, 1},
		{assess.TestAutoCorrelation, 16},
	}

	suite := Suite()
	for _, tt := range tests {
		out, err := suite[tt.id](tt.param, bits, n)
		if err != nil {
			t.Errorf("%s(%d): %v", tt.id, tt.param, err)
			continue
		}
		assertValidPValues(t, tt.id.String(), out)
		for _, p := range out.PValues {
			// A fixed seed keeps this deterministic; 1e-4 leaves ample room.
			if p < 1e-4 {
				t.Errorf("%s(%d) rejected random input: p=%v", tt.id, tt.param, p)
			}
		}
	}
}

func TestNonOverlappingTemplate_OnePValuePerTemplate(t *testing.T) {
	t.Parallel()

	const n = 1 << 16
	out, err := NonOverlappingTemplate(9, randomBits(7, n), n)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.PValues) != maxTemplates {
		t.Errorf("p-values = %d, want %d", len(out.PValues), maxTemplates)
	}
	assertValidPValues(t, "NonOverlappingTemplate", out)
}

func TestAperiodicTemplates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		m    int
		want int
	}{
		{2, 2},
		{3, 4},
		{4, 6},
		{9, 148},
	}
	for _, tt := range tests {
		if got := len(aperiodicTemplates(tt.m, 1000)); got != tt.want {
			t.Errorf("m=%d: %d aperiodic templates, want %d", tt.m, got, tt.want)
		}
	}
	if got := len(aperiodicTemplates(21, maxTemplates)); got != maxTemplates {
		t.Errorf("cap not applied: %d", got)
	}
	if !isAperiodic(0b001, 3) || isAperiodic(0b101, 3) {
		t.Error("isAperiodic misclassifies 3-bit templates")
	}
}

func TestRandomExcursions_RandomInput(t *testing.T) {
	t.Parallel()

	const n = 1_000_000
	bits := randomBits(3, n)

	_, cycles := randomWalk(bits, n)
	if cycles < 500 {
		t.Skipf("seed produced only %d cycles", cycles)
	}

	out, err := RandomExcursions(0, bits, n)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.PValues) != len(excursionStates) {
		t.Errorf("p-values = %d, want %d", len(out.PValues), len(excursionStates))
	}
	assertValidPValues(t, "RandomExcursions", out)

	out, err = RandomExcursionsVariant(0, bits, n)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.PValues) != len(variantStates) {
		t.Errorf("p-values = %d, want %d", len(out.PValues), len(variantStates))
	}
	assertValidPValues(t, "RandomExcursionsVariant", out)
}

func TestExcursionProbabilitiesSumToOne(t *testing.T) {
	t.Parallel()

	for _, x := range excursionStates {
		var sum float64
		for k := 0; k <= 5; k++ {
			sum += excursionProbability(x, k)
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("state %d probabilities sum to %v", x, sum)
		}
	}
}

func TestInsufficientData(t *testing.T) {
	t.Parallel()

	short := randomBits(1, 100)
	tests := []struct {
		name  string
		fn    assess.TestFunc
		param int
	}{
		{"LongestRun", LongestRun, 0},
		{"Rank", Rank, 0},
		{"OverlappingTemplate", OverlappingTemplate, 9},
		{"Universal", Universal, 0},
		{"RandomExcursions", RandomExcursions, 0},
		{"RandomExcursionsVariant", RandomExcursionsVariant, 0},
		{"BlockFrequency", BlockFrequency, 128},
		{"LinearComplexity", LinearComplexity, 500},
		{"NonOverlappingTemplate", NonOverlappingTemplate, 21},
		{"AutoCorrelation", AutoCorrelation, 100},
	}
	for _, tt := range tests {
		if _, err := tt.fn(tt.param, short, len(short)); !errors.Is(err, ErrInsufficientData) {
			t.Errorf("%s: error = %v, want ErrInsufficientData", tt.name, err)
		}
	}

	if _, err := Frequency(0, short, 200); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("n beyond slice: error = %v", err)
	}
}

func TestInvalidParameters(t *testing.T) {
	t.Parallel()

	bits := randomBits(1, 4096)
	tests := []struct {
		name  string
		fn    assess.TestFunc
		param int
	}{
		{"BlockFrequency", BlockFrequency, 0},
		{"NonOverlappingTemplate", NonOverlappingTemplate, 1},
		{"OverlappingTemplate", OverlappingTemplate, 22},
		{"ApproximateEntropy", ApproximateEntropy, 0},
		{"Serial", Serial, 30},
		{"LinearComplexity", LinearComplexity, 1},
		{"Poker", Poker, 0},
		{"BinaryDerivative", BinaryDerivative, 0},
		{"AutoCorrelation", AutoCorrelation, 0},
	}
	for _, tt := range tests {
		if _, err := tt.fn(tt.param, bits, len(bits)); !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("%s(%d): error = %v, want ErrInvalidParameter", tt.name, tt.param, err)
		}
	}
}

func TestStructuredInputFails(t *testing.T) {
	t.Parallel()

	const n = 4096
	alt := alternating(n)
	zero := make([]byte, n)

	tests := []struct {
		name  string
		fn    assess.TestFunc
		param int
		bits  []byte
	}{
		{"Frequency/zeros", Frequency, 0, zero},
		{"Runs/zeros", Runs, 0, zero},
		{"Runs/alternating", Runs, 0, alt},
		{"Poker/alternating", Poker, 2, alt},
		{"AutoCorrelation/alternating", AutoCorrelation, 1, alt},
		{"AutoCorrelation/alternating-even", AutoCorrelation, 2, alt},
		{"BinaryDerivative/zeros", BinaryDerivative, 3, zero},
		{"RunsDistribution/alternating", RunsDistribution, 0, alt},
		{"Serial/alternating", Serial, 2, alt},
	}
	for _, tt := range tests {
		out, err := tt.fn(tt.param, tt.bits, n)
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if out.PValues[0] > 1e-6 {
			t.Errorf("%s: p-value %v, want ~0", tt.name, out.PValues[0])
		}
	}
}

func TestBinaryDerivative_SecondOrder(t *testing.T) {
	t.Parallel()

	// 1101 -> 011 -> 10; sum = +1 -1 = 0.
	bits := parseBits(t, "1101")
	out, err := BinaryDerivative(2, bits, len(bits))
	if err != nil {
		t.Fatal(err)
	}
	if out.Statistics[0].Value != 0 {
		t.Errorf("sum = %v, want 0", out.Statistics[0].Value)
	}
	assertP(t, "BinaryDerivative", out.PValues[0], 1)
}

func TestPoker_UniformWords(t *testing.T) {
	t.Parallel()

	// Every 2-bit word exactly once: V = 0.
	bits := parseBits(t, "00011011")
	out, err := Poker(2, bits, len(bits))
	if err != nil {
		t.Fatal(err)
	}
	assertP(t, "Poker", out.PValues[0], 1)
}

func TestBerlekampMassey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		bits string
		want int
	}{
		{"1101011110001", 4},
		{"0000000000", 0},
		{"0000000001", 10},
		{"1010101010", 2},
		{"1111111111", 1},
	}
	for _, tt := range tests {
		block := parseBits(t, tt.bits)
		if got := newBMScratch(len(block)).complexity(block); got != tt.want {
			t.Errorf("complexity(%s) = %d, want %d", tt.bits, got, tt.want)
		}
	}
}

func TestGF2Rank(t *testing.T) {
	t.Parallel()

	var identity, zero, dup [rankDim]uint32
	for i := range identity {
		identity[i] = 1 << uint(i)
		dup[i] = 0xdeadbeef
	}
	if got := gf2Rank(identity[:]); got != rankDim {
		t.Errorf("identity rank = %d", got)
	}
	if got := gf2Rank(zero[:]); got != 0 {
		t.Errorf("zero rank = %d", got)
	}
	if got := gf2Rank(dup[:]); got != 1 {
		t.Errorf("duplicate-row rank = %d", got)
	}

	if p := rankProbability(rankDim); math.Abs(p-0.2888) > 1e-4 {
		t.Errorf("P(rank=32) = %v, want ~0.2888", p)
	}
	if p := rankProbability(rankDim - 1); math.Abs(p-0.5776) > 1e-4 {
		t.Errorf("P(rank=31) = %v, want ~0.5776", p)
	}
}

func TestOverlapProbabilities(t *testing.T) {
	t.Parallel()

	// Class probabilities for m=9, M=1032 from SP 800-22.
	want := []float64{0.364091, 0.185659, 0.139381, 0.100571, 0.070432, 0.139865}
	got := overlapProbabilities(9)
	for i, w := range want {
		if math.Abs(got[i]-w) > 1e-5 {
			t.Errorf("pi[%d] = %v, want %v", i, got[i], w)
		}
	}

	var sum float64
	for _, p := range overlapProbabilities(12) {
		sum += p
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("m=12 probabilities sum to %v", sum)
	}
}

func TestTestsDoNotModifyInput(t *testing.T) {
	t.Parallel()

	const n = 8192
	bits := randomBits(11, n)
	orig := append([]byte(nil), bits...)

	for id, fn := range Suite() {
		param := 0
		switch id {
		case assess.TestBlockFrequency:
			param = 128
		case assess.TestNonPeriodicTemplate, assess.TestOverlappingTemplate:
			param = 9
		case assess.TestApproximateEntropy, assess.TestSerial:
			param = 5
		case assess.TestLinearComplexity:
			param = 500
		case assess.TestPoker:
			param = 4
		case assess.TestBinaryDerivative:
			param = 3
		case assess.TestAutoCorrelation:
			param = 8
		}
		_, _ = fn(param, bits, n)
		for i := range bits {
			if bits[i] != orig[i] {
				t.Fatalf("%s modified its input at bit %d", id, i)
			}
		}
	}
}

func BenchmarkSuite_1Mbit(b *testing.B) {
	const n = 1 << 20
	bits := randomBits(5, n)
	suite := Suite()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = suite[assess.TestFrequency](0, bits, n)
		_, _ = suite[assess.TestRuns](0, bits, n)
		_, _ = suite[assess.TestFFT](0, bits, n)
	}
}
