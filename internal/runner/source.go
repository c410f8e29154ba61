package runner

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"rand-assess/internal/bitseq"
	"rand-assess/internal/generator"
)

// Input formats of file sources.
const (
	FormatASCII  = "ascii"
	FormatBinary = "binary"
)

// SourceFile selects a file input instead of a generator.
const SourceFile = "file"

// ErrUnknownFormat is returned for an input format other than ascii or
// binary.
var ErrUnknownFormat = errors.New("runner: unknown input format")

// SourceOptions describes where sequences come from. Source is either
// SourceFile or a generator name or number.
type SourceOptions struct {
	Source string
	Path   string
	Format string
}

// Source is an opened sequence source. Close releases the underlying file,
// if any.
type Source struct {
	bitseq.Source
	Label  string
	closer io.Closer
}

// Close implements io.Closer.
func (s *Source) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}

// ParseFormat normalizes an input format name.
func ParseFormat(value string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "0", FormatASCII:
		return FormatASCII, nil
	case "1", FormatBinary:
		return FormatBinary, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, value)
	}
}

// NewDecoder wraps r in the decoder for format, producing sequences of n
// bits.
func NewDecoder(r io.Reader, format string, n int) (bitseq.Source, error) {
	format, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	if format == FormatBinary {
		return bitseq.NewBinaryDecoder(r, n), nil
	}
	return bitseq.NewASCIIDecoder(r, n), nil
}

// OpenSource opens the source described by opts for sequences of n bits.
func OpenSource(opts SourceOptions, n int) (*Source, error) {
	if opts.Source == "" || strings.EqualFold(opts.Source, SourceFile) {
		if opts.Path == "" {
			return nil, errors.New("runner: file source needs an input path")
		}
		f, err := os.Open(opts.Path)
		if err != nil {
			return nil, fmt.Errorf("runner: open input: %w", err)
		}
		dec, err := NewDecoder(f, opts.Format, n)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		return &Source{Source: dec, Label: SourceFile, closer: f}, nil
	}

	name, err := generator.Lookup(opts.Source)
	if err != nil {
		return nil, err
	}
	gen, err := generator.New(name, n)
	if err != nil {
		return nil, err
	}
	return &Source{Source: gen, Label: name}, nil
}
