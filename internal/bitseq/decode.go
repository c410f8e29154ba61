package bitseq

import (
	"bufio"
	"errors"
	"io"
)

// DecodeChunk unpacks up to chunkBits bits from chunk, most-significant bit of
// each byte first, appending them to seq. It returns true the moment seq
// reaches its target length, even mid-chunk; the remaining bits of the chunk
// are dropped and are not carried into the next sequence. It returns false
// when the chunk is exhausted before the target is reached.
func DecodeChunk(chunk []byte, chunkBits int, seq *Sequence) bool {
	if seq.Complete() {
		return true
	}

	count := 0
	for i := 0; i < (chunkBits+7)/8 && i < len(chunk); i++ {
		for mask := byte(0x80); mask != 0; mask >>= 1 {
			var bit byte
			if chunk[i]&mask != 0 {
				bit = 1
			}
			if seq.AppendBit(bit) {
				return true
			}
			count++
			if count == chunkBits {
				return false
			}
		}
	}
	return false
}

// BinaryDecoder produces sequences from a packed-binary source read in
// ChunkSize-byte units. Every read must return a full chunk; anything shorter
// is a KindShortRead failure.
type BinaryDecoder struct {
	r         io.Reader
	n         int
	index     int
	bytesRead int64
	chunk     [ChunkSize]byte
}

// NewBinaryDecoder returns a decoder yielding sequences of n bits from r.
func NewBinaryDecoder(r io.Reader, n int) *BinaryDecoder {
	return &BinaryDecoder{r: r, n: n}
}

// Next decodes the next sequence. No partial sequence is ever returned.
func (d *BinaryDecoder) Next() (*Sequence, error) {
	seq, err := NewSequence(d.n)
	if err != nil {
		return nil, withSequence(err, d.index)
	}

	for {
		read, err := io.ReadFull(d.r, d.chunk[:])
		d.bytesRead += int64(read)
		if err != nil {
			bits := seq.Counters.BitsRead
			seq.Release()
			return nil, &DecodeError{
				Kind:      KindShortRead,
				Sequence:  d.index,
				Want:      d.n,
				BytesRead: d.bytesRead,
				BitsRead:  bits,
				Err:       err,
			}
		}
		if DecodeChunk(d.chunk[:], ChunkBits, seq) {
			break
		}
	}

	d.index++
	return seq, nil
}

// BytesRead returns the number of bytes consumed from the source.
func (d *BinaryDecoder) BytesRead() int64 {
	return d.bytesRead
}

func withSequence(err error, index int) error {
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		decodeErr.Sequence = index
	}
	return err
}

// ASCIIDecoder produces sequences from a source whose characters are the bits
// themselves. '0' and '1' are accepted, as are raw 0x00 and 0x01 bytes.
// ASCII whitespace is skipped; any other byte fails the run.
type ASCIIDecoder struct {
	r         *bufio.Reader
	n         int
	index     int
	bytesRead int64
}

// NewASCIIDecoder returns a decoder yielding sequences of n bits from r.
// Consecutive sequences are read back to back.
func NewASCIIDecoder(r io.Reader, n int) *ASCIIDecoder {
	return &ASCIIDecoder{r: bufio.NewReader(r), n: n}
}

// Next decodes the next sequence.
func (d *ASCIIDecoder) Next() (*Sequence, error) {
	seq, err := NewSequence(d.n)
	if err != nil {
		return nil, withSequence(err, d.index)
	}

	for !seq.Complete() {
		c, err := d.r.ReadByte()
		if err != nil {
			bits := seq.Counters.BitsRead
			seq.Release()
			decodeErr := &DecodeError{
				Kind:      KindInsufficientData,
				Sequence:  d.index,
				Want:      d.n,
				BytesRead: d.bytesRead,
				BitsRead:  bits,
			}
			if !errors.Is(err, io.EOF) {
				decodeErr.Err = err
			}
			return nil, decodeErr
		}
		d.bytesRead++

		switch c {
		case '0', 0x00:
			seq.AppendBit(0)
		case '1', 0x01:
			seq.AppendBit(1)
		case ' ', '\t', '\n', '\r', '\v', '\f':
		default:
			bits := seq.Counters.BitsRead
			seq.Release()
			return nil, &DecodeError{
				Kind:      KindInvalidSymbol,
				Sequence:  d.index,
				Want:      d.n,
				BytesRead: d.bytesRead,
				BitsRead:  bits,
				Symbol:    c,
			}
		}
	}

	d.index++
	return seq, nil
}
