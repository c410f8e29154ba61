package stattests

import (
	"math"

	"rand-assess/internal/assess"
)

const rankDim = 32

// Rank tests the rank distribution of disjoint 32x32 binary matrices.
func Rank(_ int, seq []byte, n int) (assess.Outcome, error) {
	if err := checkInput(seq, n, rankDim*rankDim); err != nil {
		return assess.Outcome{}, err
	}

	matrices := n / (rankDim * rankDim)
	var full, fullMinusOne int
	for k := 0; k < matrices; k++ {
		var rows [rankDim]uint32
		base := k * rankDim * rankDim
		for r := 0; r < rankDim; r++ {
			rows[r] = uint32(blockValue(seq, base+r*rankDim, rankDim))
		}
		switch gf2Rank(rows[:]) {
		case rankDim:
			full++
		case rankDim - 1:
			fullMinusOne++
		}
	}

	pFull := rankProbability(rankDim)
	pMinus := rankProbability(rankDim - 1)
	pRest := 1 - pFull - pMinus

	nf := float64(matrices)
	chi2 := chiSquare(
		[]int{full, fullMinusOne, matrices - full - fullMinusOne},
		[]float64{nf * pFull, nf * pMinus, nf * pRest},
	)
	p := clamp(math.Exp(-chi2 / 2))

	return outcome([]float64{p},
		stat("chi2", chi2),
		stat("full_rank", float64(full)),
		stat("full_rank_minus_one", float64(fullMinusOne)),
	), nil
}

// rankProbability is the probability that a random rankDim x rankDim matrix
// over GF(2) has rank r.
func rankProbability(r int) float64 {
	const m, q = rankDim, rankDim
	product := 1.0
	for i := 0; i < r; i++ {
		product *= (1 - math.Ldexp(1, i-q)) * (1 - math.Ldexp(1, i-m)) / (1 - math.Ldexp(1, i-r))
	}
	return math.Ldexp(product, r*(q+m-r)-m*q)
}

// gf2Rank computes the rank of rows over GF(2). rows is modified.
func gf2Rank(rows []uint32) int {
	rank := 0
	for col := rankDim - 1; col >= 0 && rank < len(rows); col-- {
		mask := uint32(1) << uint(col)
		pivot := -1
		for i := rank; i < len(rows); i++ {
			if rows[i]&mask != 0 {
				pivot = i
				break
			}
		}
		if pivot < 0 {
			continue
		}
		rows[rank], rows[pivot] = rows[pivot], rows[rank]
		for i := range rows {
			if i != rank && rows[i]&mask != 0 {
				rows[i] ^= rows[rank]
			}
		}
		rank++
	}
	return rank
}
