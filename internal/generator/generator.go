// Package generator provides the deterministic reference generators whose
// output can be assessed in place of an input file. Each generator is a
// bitseq.Source yielding consecutive, non-overlapping sequences of exactly N
// bits from one continuous stream.
package generator

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"rand-assess/internal/bitseq"
)

// Generator names, as used on the command line and in report directories.
const (
	NameLCG           = "Linear-Congruential"
	NameQCG1          = "Quadratic-Congruential-1"
	NameQCG2          = "Quadratic-Congruential-2"
	NameCubic         = "Cubic-Congruential"
	NameXOR           = "XOR"
	NameModExp        = "Modular-Exponentiation"
	NameBBS           = "Blum-Blum-Shub"
	NameMicaliSchnorr = "Micali-Schnorr"
	NameSHA1          = "G using SHA-1"
)

// ErrUnknownGenerator is returned by New for a name not in Names.
var ErrUnknownGenerator = errors.New("generator: unknown generator")

// stepFunc appends the next block of output bits (one bit per byte) to dst.
type stepFunc func(dst []byte) []byte

var constructors = map[string]func() stepFunc{
	NameLCG:           newLCG,
	NameQCG1:          newQCG1,
	NameQCG2:          newQCG2,
	NameCubic:         newCubic,
	NameXOR:           newXOR,
	NameModExp:        newModExp,
	NameBBS:           newBBS,
	NameMicaliSchnorr: newMicaliSchnorr,
	NameSHA1:          newSHA1,
}

// order is the menu order of the generators.
var order = []string{
	NameLCG, NameQCG1, NameQCG2, NameCubic, NameXOR,
	NameModExp, NameBBS, NameMicaliSchnorr, NameSHA1,
}

// Names lists the available generators in menu order.
func Names() []string {
	return append([]string(nil), order...)
}

// Lookup resolves name case-insensitively, also accepting the 1-based menu
// number.
func Lookup(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	for i, candidate := range order {
		if strings.EqualFold(candidate, trimmed) || strconv.Itoa(i+1) == trimmed {
			return candidate, nil
		}
	}
	known := Names()
	sort.Strings(known)
	return "", fmt.Errorf("%w %q (known: %s)", ErrUnknownGenerator, name, strings.Join(known, ", "))
}

// Generator produces sequences of a fixed length from a deterministic bit
// stream. It is not safe for concurrent use.
type Generator struct {
	name     string
	n        int
	step     stepFunc
	buf      []byte
	pos      int
	produced int
}

// New returns the generator registered under name, producing sequences of n
// bits. The same name always yields the same stream.
func New(name string, n int) (*Generator, error) {
	canonical, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	if n <= 0 || n > bitseq.MaxSequenceBits {
		return nil, fmt.Errorf("generator: sequence length %d outside [1, %d]", n, bitseq.MaxSequenceBits)
	}
	return &Generator{name: canonical, n: n, step: constructors[canonical]()}, nil
}

// Name returns the canonical generator name.
func (g *Generator) Name() string {
	return g.name
}

// Produced returns the number of sequences returned so far.
func (g *Generator) Produced() int {
	return g.produced
}

// Next returns the next sequence. Bits left over from the last block carry
// into the following sequence.
func (g *Generator) Next() (*bitseq.Sequence, error) {
	seq, err := bitseq.NewSequence(g.n)
	if err != nil {
		return nil, err
	}
	for {
		for g.pos < len(g.buf) {
			bit := g.buf[g.pos]
			g.pos++
			if seq.AppendBit(bit) {
				g.produced++
				return seq, nil
			}
		}
		g.buf = g.step(g.buf[:0])
		g.pos = 0
	}
}

// appendBytes appends the bits of b to dst, most significant bit first.
func appendBytes(dst []byte, b []byte) []byte {
	for _, v := range b {
		for shift := 7; shift >= 0; shift-- {
			dst = append(dst, (v>>uint(shift))&1)
		}
	}
	return dst
}
