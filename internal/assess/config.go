package assess

import (
	"errors"
	"fmt"

	"rand-assess/internal/bitseq"
)

// Options are the raw configuration values accepted from the user before
// resolution.
type Options struct {
	Mode         EvaluationMode
	Selection    SelectionMode
	Manual       EnableVector
	Overrides    map[TestID]int
	Lengths      BlockLengths // zero fields take DefaultBlockLengths
	SequenceBits int
	NumSequences int
}

// RunConfig is the resolved configuration for one run. It is built once by
// BuildRunConfig and only read afterwards; accessors return copies.
type RunConfig struct {
	mode         EvaluationMode
	selection    SelectionMode
	enabled      EnableVector
	lengths      BlockLengths
	params       ParameterSet
	sequenceBits int
	numSequences int
}

// BuildRunConfig validates opts and resolves the enabled set and parameter
// set.
func BuildRunConfig(opts Options) (RunConfig, error) {
	if !opts.Mode.Valid() {
		return RunConfig{}, fmt.Errorf("%w: %d", ErrInvalidMode, int(opts.Mode))
	}
	if opts.SequenceBits <= 0 || opts.SequenceBits > bitseq.MaxSequenceBits {
		return RunConfig{}, fmt.Errorf("assess: sequence length %d outside [1, %d]", opts.SequenceBits, bitseq.MaxSequenceBits)
	}
	if opts.NumSequences <= 0 {
		return RunConfig{}, errors.New("assess: number of sequences must be positive")
	}

	enabled, err := ResolveEnabled(opts.Selection, opts.Manual)
	if err != nil {
		return RunConfig{}, err
	}

	lengths, err := opts.Lengths.withDefaults()
	if err != nil {
		return RunConfig{}, err
	}
	lengths, err = lengths.Apply(opts.Overrides, opts.SequenceBits)
	if err != nil {
		return RunConfig{}, err
	}

	params, err := ResolveParameters(opts.Mode, enabled, lengths, opts.SequenceBits)
	if err != nil {
		return RunConfig{}, err
	}

	return RunConfig{
		mode:         opts.Mode,
		selection:    opts.Selection,
		enabled:      enabled,
		lengths:      lengths,
		params:       params,
		sequenceBits: opts.SequenceBits,
		numSequences: opts.NumSequences,
	}, nil
}

// Mode returns the evaluation mode.
func (c RunConfig) Mode() EvaluationMode { return c.mode }

// Selection returns the selection mode the enabled set was derived from.
func (c RunConfig) Selection() SelectionMode { return c.selection }

// Enabled returns the enabled test set.
func (c RunConfig) Enabled() EnableVector { return c.enabled }

// Lengths returns the effective block lengths after overrides.
func (c RunConfig) Lengths() BlockLengths { return c.lengths }

// SequenceBits returns N, the length of every sequence.
func (c RunConfig) SequenceBits() int { return c.sequenceBits }

// NumSequences returns the number of sequences to process.
func (c RunConfig) NumSequences() int { return c.numSequences }

// Params returns the parameter values id is invoked with, or nil when id is
// disabled.
func (c RunConfig) Params(id TestID) []int {
	if !c.enabled.Enabled(id) {
		return nil
	}
	return c.params.Params(id)
}

// Parameters returns a copy of the full parameter set.
func (c RunConfig) Parameters() ParameterSet {
	out := make(ParameterSet, len(c.params))
	for id, values := range c.params {
		out[id] = append([]int(nil), values...)
	}
	return out
}

// Invocations returns the number of test calls dispatched per sequence.
func (c RunConfig) Invocations() int {
	return c.params.Invocations()
}
