package generator

import (
	"crypto/sha1"
	"math/big"

	"github.com/bits-and-blooms/bitset"
	"github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
)

const (
	lcgModulus    = 1<<31 - 1
	lcgMultiplier = 16807
	lcgSeed       = 23482349

	// xorLag is the length of the XOR generator's shift register.
	xorLag = 127

	// wordBits is the modulus width of the quadratic-II and cubic
	// generators.
	wordBits = 512
)

// seedHex is the 512-bit seed shared by the big-number generators.
const seedHex = "7844506a9456c564b8b8538e0cc15aff46c95e69600f084f0657c2401b3c244734b62ea9bb95be4923b9b7e84eeaf1a224894ef0328d44bc3eb3e983644da3f5"

func seedInt() *big.Int {
	v, _ := new(big.Int).SetString(seedHex, 16)
	return v
}

// newLCG is the Park-Miller minimal standard generator. Each state emits one
// bit: whether it lies in the upper half of the range.
func newLCG() stepFunc {
	x := uint64(lcgSeed)
	return func(dst []byte) []byte {
		for i := 0; i < 64; i++ {
			x = x * lcgMultiplier % lcgModulus
			bit := byte(0)
			if x > lcgModulus/2 {
				bit = 1
			}
			dst = append(dst, bit)
		}
		return dst
	}
}

// newQCG1 squares in the BLS12-377 scalar field: x <- x^2 mod r. Each step
// emits the low 128 bits of x.
func newQCG1() stepFunc {
	var x fr.Element
	x.SetBigInt(seedInt())
	return func(dst []byte) []byte {
		x.Square(&x)
		b := x.Bytes()
		return appendBytes(dst, b[len(b)-16:])
	}
}

// newQCG2 iterates x <- 2x^2 + 3x + 1 mod 2^512 and emits the high half of x.
func newQCG2() stepFunc {
	x := seedInt()
	mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), wordBits), big.NewInt(1))
	sq := new(big.Int)
	lin := new(big.Int)
	three := big.NewInt(3)
	return func(dst []byte) []byte {
		sq.Mul(x, x)
		sq.Lsh(sq, 1)
		lin.Mul(x, three)
		x.Add(sq, lin)
		x.Add(x, big.NewInt(1))
		x.And(x, mask)
		return appendHighHalf(dst, x)
	}
}

// newCubic iterates x <- x^3 mod 2^512 from an odd seed and emits the high
// half of x.
func newCubic() stepFunc {
	x := seedInt()
	x.SetBit(x, 0, 1)
	mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), wordBits), big.NewInt(1))
	tmp := new(big.Int)
	return func(dst []byte) []byte {
		tmp.Mul(x, x)
		tmp.Mul(tmp, x)
		x.And(tmp, mask)
		return appendHighHalf(dst, x)
	}
}

// appendHighHalf emits bits wordBits-1 down to wordBits/2 of x.
func appendHighHalf(dst []byte, x *big.Int) []byte {
	for i := wordBits - 1; i >= wordBits/2; i-- {
		dst = append(dst, byte(x.Bit(i)))
	}
	return dst
}

// appendBits emits the low width bits of v, most significant first.
func appendBits(dst []byte, v *big.Int, width int) []byte {
	for i := width - 1; i >= 0; i-- {
		dst = append(dst, byte(v.Bit(i)))
	}
	return dst
}

// newXOR is the lagged recurrence x_i = x_{i-1} XOR x_{i-127}, seeded from
// the low 127 bits of the shared seed.
func newXOR() stepFunc {
	reg := bitset.New(xorLag)
	seed := seedInt()
	for i := uint(0); i < xorLag; i++ {
		reg.SetTo(i, seed.Bit(int(i)) == 1)
	}
	// head indexes x_{i-127}; the previous bit x_{i-1} sits just before it.
	head := uint(0)
	return func(dst []byte) []byte {
		for i := 0; i < 64; i++ {
			prev := (head + xorLag - 1) % xorLag
			next := reg.Test(prev) != reg.Test(head)
			reg.SetTo(head, next)
			head = (head + 1) % xorLag
			if next {
				dst = append(dst, 1)
			} else {
				dst = append(dst, 0)
			}
		}
		return dst
	}
}

// newModExp iterates y <- g^y mod r in the BLS12-377 scalar field with g = 3
// and emits the low 128 bits of y.
func newModExp() stepFunc {
	var g, y fr.Element
	g.SetUint64(3)
	y.SetBigInt(seedInt())
	exp := new(big.Int)
	return func(dst []byte) []byte {
		y.BigInt(exp)
		y.Exp(g, exp)
		b := y.Bytes()
		return appendBytes(dst, b[len(b)-16:])
	}
}

// newBBS is Blum-Blum-Shub over a 1024-bit Blum integer: x <- x^2 mod n,
// emitting the least significant bit of each state.
func newBBS() stepFunc {
	n := blumModulus()
	x := new(big.Int).Mod(seedInt(), n)
	x.Mul(x, x).Mod(x, n)
	return func(dst []byte) []byte {
		for i := 0; i < 64; i++ {
			x.Mul(x, x).Mod(x, n)
			dst = append(dst, byte(x.Bit(0)))
		}
		return dst
	}
}

// newMicaliSchnorr computes y = x^e mod n over the Blum modulus, emits the
// low k bits of y and feeds the remaining high bits back as x.
func newMicaliSchnorr() stepFunc {
	n := blumModulus()
	bits := n.BitLen()
	e := micaliSchnorrExponent(n)
	k := bits * (int(e.Int64()) - 2) / int(e.Int64())
	r := bits - k

	x := seedInt()
	if extra := x.BitLen() - r; extra > 0 {
		x.Rsh(x, uint(extra))
	}
	lowMask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(k)), big.NewInt(1))
	y := new(big.Int)
	low := new(big.Int)
	return func(dst []byte) []byte {
		y.Exp(x, e, n)
		low.And(y, lowMask)
		x.Rsh(y, uint(k))
		return appendBits(dst, low, k)
	}
}

// newSHA1 is the FIPS 186 style one-way function generator: each step emits
// SHA1(x) and advances x <- x + SHA1(x) + 1 mod 2^160.
func newSHA1() stepFunc {
	var x [sha1.Size]byte
	seed := seedInt().Bytes()
	copy(x[:], seed[len(seed)-sha1.Size:])
	return func(dst []byte) []byte {
		out := sha1.Sum(x[:])
		carry := 1
		for i := sha1.Size - 1; i >= 0; i-- {
			sum := int(x[i]) + int(out[i]) + carry
			x[i] = byte(sum)
			carry = sum >> 8
		}
		return appendBytes(dst, out[:])
	}
}
