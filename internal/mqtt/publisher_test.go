package mqtt

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"rand-assess/internal/assess"
)

type recordingPublisher struct {
	topics   []string
	payloads [][]byte
	failOn   string
}

func (p *recordingPublisher) Publish(topic string, payload []byte) error {
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	if p.failOn != "" && strings.Contains(topic, p.failOn) {
		return errors.New("publish refused")
	}
	return nil
}

func TestNewBatchPublisher(t *testing.T) {
	t.Parallel()

	if _, err := NewBatchPublisher(nil, "rand-assess", ""); err == nil {
		t.Fatal("expected error for nil publisher")
	}
	if _, err := NewBatchPublisher(&recordingPublisher{}, "//", ""); err == nil {
		t.Fatal("expected error for empty prefix")
	}

	p, err := NewBatchPublisher(&recordingPublisher{}, "/lab/rng/", "")
	if err != nil {
		t.Fatalf("NewBatchPublisher: %v", err)
	}
	if got := p.Topic(assess.TestSerial); got != "lab/rng/input/Serial/results" {
		t.Fatalf("Topic = %q", got)
	}
}

func TestBatchPublisher_GroupsByTestInCanonicalOrder(t *testing.T) {
	t.Parallel()

	rec := &recordingPublisher{}
	p, err := NewBatchPublisher(rec, "rand-assess", "blum-blum-shub")
	if err != nil {
		t.Fatalf("NewBatchPublisher: %v", err)
	}

	results := []assess.Result{
		{Sequence: 0, Test: assess.TestSerial, Param: 16, Outcome: assess.Outcome{PValues: []float64{0.4, 0.6}}},
		{Sequence: 0, Test: assess.TestFrequency, Outcome: assess.Outcome{
			PValues:    []float64{0.5},
			Statistics: []assess.Statistic{{Name: "sum", Value: 12}},
		}, Duration: 3 * time.Millisecond},
		{Sequence: 1, Test: assess.TestFrequency, Err: errors.New("insufficient data")},
	}

	if err := p.SendBatch(results, 7); err != nil {
		t.Fatalf("SendBatch: %v", err)
	}

	wantTopics := []string{
		"rand-assess/blum-blum-shub/Frequency/results",
		"rand-assess/blum-blum-shub/Serial/results",
	}
	if strings.Join(rec.topics, ",") != strings.Join(wantTopics, ",") {
		t.Fatalf("topics = %v, want %v", rec.topics, wantTopics)
	}

	var msg BatchMessage
	if err := json.Unmarshal(rec.payloads[0], &msg); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if msg.Batch != 7 || msg.Generator != "blum-blum-shub" || msg.Test != "Frequency" {
		t.Fatalf("unexpected header: %+v", msg)
	}
	if len(msg.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(msg.Results))
	}
	if msg.Results[0].Statistics["sum"] != 12 || msg.Results[0].DurationUs != 3000 {
		t.Fatalf("first result = %+v", msg.Results[0])
	}
	if msg.Results[1].Sequence != 1 || msg.Results[1].Error != "insufficient data" {
		t.Fatalf("second result = %+v", msg.Results[1])
	}
}

func TestBatchPublisher_ContinuesAfterFailure(t *testing.T) {
	t.Parallel()

	rec := &recordingPublisher{failOn: "Frequency"}
	p, err := NewBatchPublisher(rec, "rand-assess", "")
	if err != nil {
		t.Fatalf("NewBatchPublisher: %v", err)
	}

	err = p.SendBatch([]assess.Result{
		{Test: assess.TestFrequency, Outcome: assess.Outcome{PValues: []float64{0.1}}},
		{Test: assess.TestRuns, Outcome: assess.Outcome{PValues: []float64{0.2}}},
	}, 1)
	if err == nil || !strings.Contains(err.Error(), "Frequency") {
		t.Fatalf("expected Frequency failure, got %v", err)
	}
	if len(rec.topics) != 2 {
		t.Fatalf("expected both groups attempted, got %v", rec.topics)
	}
}
