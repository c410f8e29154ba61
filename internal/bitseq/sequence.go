// Package bitseq turns raw input into fixed-length bit sequences. It provides
// the chunk decoder that unpacks bytes most-significant-bit first, the packed
// binary and ASCII stream decoders built on top of it, and the Sequence type
// consumed by the test dispatcher.
package bitseq

const (
	// ChunkSize is the number of bytes consumed per read from a packed-binary
	// source.
	ChunkSize = 4
	// ChunkBits is the number of bits encoded by one chunk.
	ChunkBits = ChunkSize * 8
	// MaxSequenceBits bounds the bit buffer a single sequence may allocate.
	MaxSequenceBits = 1 << 30
)

// Source yields one complete Sequence per call. Implementations return a
// *DecodeError when a sequence cannot be produced; the caller must treat it
// as fatal for the remaining run.
type Source interface {
	Next() (*Sequence, error)
}

// Counters records per-sequence decode statistics. After a successful decode
// Zeros+Ones == BitsRead == the sequence length.
type Counters struct {
	Zeros    int
	Ones     int
	BitsRead int
}

// Sequence is an ordered buffer of single-bit values (each element is 0 or 1)
// with a fixed target length. It is handed to the dispatcher only once it is
// complete.
type Sequence struct {
	bits     []byte
	n        int
	Counters Counters
}

// NewSequence acquires the bit buffer for a sequence of n bits. It fails with
// a KindAllocation error when n is not in [1, MaxSequenceBits].
func NewSequence(n int) (*Sequence, error) {
	if n <= 0 || n > MaxSequenceBits {
		return nil, &DecodeError{Kind: KindAllocation, Want: n}
	}
	return &Sequence{bits: make([]byte, 0, n), n: n}, nil
}

// FromBits builds a complete sequence from a slice of 0/1 values. Any
// non-zero element is treated as a one. It is mainly useful to generators and
// tests.
func FromBits(bits []byte) *Sequence {
	seq := &Sequence{bits: make([]byte, 0, len(bits)), n: len(bits)}
	for _, b := range bits {
		if b != 0 {
			seq.AppendBit(1)
		} else {
			seq.AppendBit(0)
		}
	}
	return seq
}

// AppendBit stores bit at the current offset and reports whether the target
// length has been reached. Appending to a complete sequence is a no-op that
// reports true.
func (s *Sequence) AppendBit(bit byte) bool {
	if len(s.bits) >= s.n {
		return true
	}
	if bit != 0 {
		s.bits = append(s.bits, 1)
		s.Counters.Ones++
	} else {
		s.bits = append(s.bits, 0)
		s.Counters.Zeros++
	}
	s.Counters.BitsRead++
	return len(s.bits) == s.n
}

// Len returns the number of bits stored so far.
func (s *Sequence) Len() int {
	return len(s.bits)
}

// Target returns the length the sequence is being filled to.
func (s *Sequence) Target() int {
	return s.n
}

// Complete reports whether the sequence holds exactly Target bits.
func (s *Sequence) Complete() bool {
	return s.bits != nil && len(s.bits) == s.n
}

// Bits exposes the decoded bits. Callers must not modify the returned slice.
func (s *Sequence) Bits() []byte {
	return s.bits
}

// Release drops the bit buffer. The sequence must not be used afterwards.
func (s *Sequence) Release() {
	if s == nil {
		return
	}
	s.bits = nil
}
