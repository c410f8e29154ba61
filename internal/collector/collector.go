// Package collector batches test results and hands them to a sender such as
// the MQTT publisher. Batches are flushed when full or after a periodic
// interval, whichever comes first.
package collector

import (
	"context"
	"log"
	"sync"
	"time"

	"rand-assess/internal/assess"
	"rand-assess/internal/bitseq"
	"rand-assess/internal/clock"
	"rand-assess/internal/metrics"
)

const defaultFlushInterval = 10 * time.Second

// BatchSender consumes result batches. sequence numbers batches from 1 in
// dispatch order.
type BatchSender interface {
	SendBatch(results []assess.Result, sequence uint32) error
}

// Option applies an optional configuration to a ResultCollector during
// construction.
type Option func(*ResultCollector)

// WithClock injects a custom clock for deterministic flush timing in tests.
func WithClock(clockSource clock.Clock) Option {
	return func(rc *ResultCollector) {
		rc.clockSource = clockSource
	}
}

// ResultCollector is an assess.Sink that buffers results and dispatches them
// in batches on a single send goroutine, which keeps batches in order. All
// methods are safe for concurrent use.
type ResultCollector struct {
	results            []assess.Result
	maxSize            int
	sender             BatchSender
	flushInterval      time.Duration
	clockSource        clock.Clock
	mu                 sync.Mutex
	pendingSendGroup   sync.WaitGroup
	sendWorkerGroup    sync.WaitGroup
	autoFlushGroup     sync.WaitGroup
	sendQueue          chan sendRequest
	closeSendQueueOnce sync.Once
	closed             bool
	sequence           uint32
	ctx                context.Context
	cancel             context.CancelFunc
}

type sendRequest struct {
	batch []assess.Result
	seq   uint32
}

// New starts a ResultCollector. A non-positive flushInterval selects ten
// seconds. Call Close to flush and release its goroutines.
func New(maxSize int, flushInterval time.Duration, sender BatchSender, opts ...Option) *ResultCollector {
	if maxSize < 1 {
		maxSize = 1
	}
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	rc := &ResultCollector{
		results:       make([]assess.Result, 0, maxSize),
		maxSize:       maxSize,
		sender:        sender,
		flushInterval: flushInterval,
		clockSource:   clock.RealClock{},
		ctx:           ctx,
		cancel:        cancel,
	}
	for _, opt := range opts {
		opt(rc)
	}
	rc.clockSource = clock.OrReal(rc.clockSource)

	rc.sendQueue = make(chan sendRequest, max(1, maxSize/2))
	rc.sendWorkerGroup.Add(1)
	go rc.runSendLoop()

	rc.autoFlushGroup.Add(1)
	go rc.autoFlush()
	return rc
}

// BeginSequence implements assess.Sink. Sequence boundaries do not affect
// batching.
func (rc *ResultCollector) BeginSequence(int, bitseq.Counters) {}

// Record implements assess.Sink. Results recorded after Close are dropped.
func (rc *ResultCollector) Record(result assess.Result) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.closed {
		metrics.RecordResultsDropped("closed", 1)
		return
	}

	rc.results = append(rc.results, result)
	metrics.SetCollectorPending(len(rc.results))

	if len(rc.results) >= rc.maxSize {
		rc.flush()
	}
}

// Pending returns the number of buffered results.
func (rc *ResultCollector) Pending() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.results)
}

// flush enqueues the current buffer for dispatch. The caller must hold rc.mu.
func (rc *ResultCollector) flush() {
	if len(rc.results) == 0 {
		return
	}

	start := rc.clockSource.Now()

	batch := make([]assess.Result, len(rc.results))
	copy(batch, rc.results)
	rc.sequence++
	seq := rc.sequence

	rc.results = rc.results[:0]
	metrics.SetCollectorPending(0)
	metrics.RecordCollectorFlush(clock.Since(rc.clockSource, start))

	rc.pendingSendGroup.Add(1)
	rc.sendQueue <- sendRequest{batch: batch, seq: seq}
}

// autoFlush periodically flushes partial batches so results from a slow run
// are not held back indefinitely.
func (rc *ResultCollector) autoFlush() {
	defer rc.autoFlushGroup.Done()

	for {
		select {
		case <-rc.ctx.Done():
			return
		case <-rc.clockSource.After(rc.flushInterval):
			rc.mu.Lock()
			rc.flush()
			rc.mu.Unlock()
		}
	}
}

// Close stops the auto-flush goroutine, flushes remaining results, and waits
// up to five seconds for all pending sends to complete.
func (rc *ResultCollector) Close() {
	rc.cancel()

	rc.mu.Lock()
	if !rc.closed {
		rc.flush()
		rc.closed = true
	}
	rc.mu.Unlock()

	rc.closeSendQueueOnce.Do(func() {
		close(rc.sendQueue)
	})

	done := make(chan struct{})
	go func() {
		rc.sendWorkerGroup.Wait()
		rc.pendingSendGroup.Wait()
		rc.autoFlushGroup.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("collector: all batches sent")
	case <-rc.clockSource.After(5 * time.Second):
		log.Println("collector: timeout waiting for sends")
	}
}

func (rc *ResultCollector) runSendLoop() {
	defer rc.sendWorkerGroup.Done()
	for job := range rc.sendQueue {
		if rc.sender == nil {
			metrics.RecordResultsDropped("no_sender", len(job.batch))
			rc.pendingSendGroup.Done()
			continue
		}
		if err := rc.sender.SendBatch(job.batch, job.seq); err != nil {
			log.Printf("collector: failed to send batch %d: %v", job.seq, err)
			metrics.RecordResultBatch(len(job.batch), false)
			metrics.RecordResultsDropped("send_failed", len(job.batch))
		} else {
			metrics.RecordResultBatch(len(job.batch), true)
		}
		rc.pendingSendGroup.Done()
	}
}
