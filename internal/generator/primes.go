package generator

import (
	"crypto/sha1"
	"math/big"
	"sync"
)

const blumPrimeBits = 512

var (
	blumOnce sync.Once
	blumN    *big.Int
	blumPhi  *big.Int
)

// blumModulus returns n = p*q for two fixed 512-bit primes congruent to 3
// mod 4. The primes are derived deterministically on first use.
func blumModulus() *big.Int {
	blumOnce.Do(func() {
		p := blumPrime("rand-assess/blum/p")
		q := blumPrime("rand-assess/blum/q")
		blumN = new(big.Int).Mul(p, q)
		p1 := new(big.Int).Sub(p, big.NewInt(1))
		q1 := new(big.Int).Sub(q, big.NewInt(1))
		blumPhi = new(big.Int).Mul(p1, q1)
	})
	return new(big.Int).Set(blumN)
}

// blumPrime expands label into a blumPrimeBits candidate with SHA-1 and
// searches upwards, in steps of 4, for a prime congruent to 3 mod 4.
func blumPrime(label string) *big.Int {
	var material []byte
	block := []byte(label)
	for len(material)*8 < blumPrimeBits {
		sum := sha1.Sum(block)
		material = append(material, sum[:]...)
		block = sum[:]
	}
	candidate := new(big.Int).SetBytes(material[:blumPrimeBits/8])
	candidate.SetBit(candidate, blumPrimeBits-1, 1)
	candidate.SetBit(candidate, blumPrimeBits-2, 1)
	candidate.SetBit(candidate, 0, 1)
	candidate.SetBit(candidate, 1, 1)

	four := big.NewInt(4)
	for !candidate.ProbablyPrime(20) {
		candidate.Add(candidate, four)
	}
	return candidate
}

// micaliSchnorrExponent picks the smallest odd e >= 3 coprime to phi(n) with
// 80e <= bitlen(n).
func micaliSchnorrExponent(n *big.Int) *big.Int {
	blumModulus()
	limit := int64(n.BitLen() / 80)
	gcd := new(big.Int)
	for e := int64(3); e <= limit; e += 2 {
		candidate := big.NewInt(e)
		if gcd.GCD(nil, nil, candidate, blumPhi).Cmp(big.NewInt(1)) == 0 {
			return candidate
		}
	}
	return big.NewInt(3)
}
