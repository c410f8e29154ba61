package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"rand-assess/internal/assess"
)

// DefaultGenerator names the topic segment used when results come from an
// input file rather than a built-in generator.
const DefaultGenerator = "input"

// Publisher is the part of Client the BatchPublisher needs.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// ResultMessage is the JSON form of one test invocation.
type ResultMessage struct {
	Sequence   int                `json:"sequence"`
	Param      int                `json:"param,omitempty"`
	PValues    []float64          `json:"p_values,omitempty"`
	Statistics map[string]float64 `json:"statistics,omitempty"`
	Error      string             `json:"error,omitempty"`
	DurationUs int64              `json:"duration_us"`
}

// BatchMessage is the payload published once per test per batch.
type BatchMessage struct {
	Batch     uint32          `json:"batch"`
	Generator string          `json:"generator"`
	Test      string          `json:"test"`
	Results   []ResultMessage `json:"results"`
}

// BatchPublisher turns result batches into one message per test on
// <prefix>/<generator>/<Test>/results. It satisfies collector.BatchSender.
type BatchPublisher struct {
	publisher Publisher
	prefix    string
	generator string
}

// NewBatchPublisher returns a BatchPublisher. An empty generator selects
// DefaultGenerator.
func NewBatchPublisher(publisher Publisher, prefix, generator string) (*BatchPublisher, error) {
	if publisher == nil {
		return nil, errors.New("mqtt: publisher required")
	}
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return nil, errors.New("mqtt: topic prefix required")
	}
	if generator == "" {
		generator = DefaultGenerator
	}
	return &BatchPublisher{publisher: publisher, prefix: prefix, generator: generator}, nil
}

// Topic returns the topic results of test are published on.
func (p *BatchPublisher) Topic(test assess.TestID) string {
	return p.prefix + "/" + p.generator + "/" + test.String() + "/results"
}

// SendBatch publishes results grouped by test, in canonical test order. Every
// group is attempted; the first failure is returned.
func (p *BatchPublisher) SendBatch(results []assess.Result, sequence uint32) error {
	groups := make(map[assess.TestID][]ResultMessage)
	for _, r := range results {
		groups[r.Test] = append(groups[r.Test], toMessage(r))
	}

	var firstErr error
	for _, id := range assess.AllTests() {
		msgs, ok := groups[id]
		if !ok {
			continue
		}
		payload, err := json.Marshal(BatchMessage{
			Batch:     sequence,
			Generator: p.generator,
			Test:      id.String(),
			Results:   msgs,
		})
		if err == nil {
			err = p.publisher.Publish(p.Topic(id), payload)
		}
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("mqtt: batch %d %s: %w", sequence, id, err)
		}
	}
	return firstErr
}

func toMessage(r assess.Result) ResultMessage {
	msg := ResultMessage{
		Sequence:   r.Sequence,
		Param:      r.Param,
		PValues:    r.Outcome.PValues,
		DurationUs: r.Duration.Microseconds(),
	}
	if len(r.Outcome.Statistics) > 0 {
		msg.Statistics = make(map[string]float64, len(r.Outcome.Statistics))
		for _, s := range r.Outcome.Statistics {
			msg.Statistics[s.Name] = s.Value
		}
	}
	if r.Err != nil {
		msg.Error = r.Err.Error()
	}
	return msg
}
