package bitseq

import (
	"errors"
	"fmt"
)

// Kind classifies fatal decode failures.
type Kind int

const (
	// KindAllocation means the bit buffer for a sequence could not be obtained.
	KindAllocation Kind = iota + 1
	// KindShortRead means a packed-binary source returned fewer bytes than a
	// full chunk.
	KindShortRead
	// KindInsufficientData means an ASCII source ended before N bits.
	KindInsufficientData
	// KindInvalidSymbol means an ASCII source contained a byte that is neither
	// a bit nor whitespace.
	KindInvalidSymbol
)

// Sentinel errors matched by errors.Is against a *DecodeError of the same
// kind.
var (
	ErrAllocation       = errors.New("bitseq: insufficient memory for bit sequence")
	ErrShortRead        = errors.New("bitseq: insufficient data in binary source")
	ErrInsufficientData = errors.New("bitseq: insufficient data in ascii source")
	ErrInvalidSymbol    = errors.New("bitseq: invalid symbol in ascii source")
)

func (k Kind) String() string {
	switch k {
	case KindAllocation:
		return "allocation"
	case KindShortRead:
		return "short_read"
	case KindInsufficientData:
		return "insufficient_data"
	case KindInvalidSymbol:
		return "invalid_symbol"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindAllocation:
		return ErrAllocation
	case KindShortRead:
		return ErrShortRead
	case KindInsufficientData:
		return ErrInsufficientData
	case KindInvalidSymbol:
		return ErrInvalidSymbol
	default:
		return nil
	}
}

// DecodeError describes why a sequence could not be produced. BytesRead is the
// total consumed from the source so far and BitsRead the bits decoded into the
// abandoned sequence.
type DecodeError struct {
	Kind      Kind
	Sequence  int
	Want      int
	BytesRead int64
	BitsRead  int
	Symbol    byte
	Err       error
}

func (e *DecodeError) Error() string {
	switch e.Kind {
	case KindAllocation:
		return fmt.Sprintf("%v (bits=%d)", ErrAllocation, e.Want)
	case KindInvalidSymbol:
		return fmt.Sprintf("%v: sequence %d, byte 0x%02x at offset %d", ErrInvalidSymbol, e.Sequence, e.Symbol, e.BytesRead-1)
	default:
		msg := fmt.Sprintf("%v: sequence %d, bytes_read=%d bits_read=%d want=%d",
			e.Kind.sentinel(), e.Sequence, e.BytesRead, e.BitsRead, e.Want)
		if e.Err != nil {
			msg += ": " + e.Err.Error()
		}
		return msg
	}
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel error of the same kind.
func (e *DecodeError) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}
