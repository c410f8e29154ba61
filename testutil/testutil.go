// Package testutil holds helpers shared by the package tests: metric
// registry isolation, polling for asynchronous results, and input fixtures.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"rand-assess/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultWaitTimeout bounds WaitForCondition when ctx carries no deadline.
const DefaultWaitTimeout = 5 * time.Second

var registryMu sync.Mutex

// ResetRegistryForTest points the metrics package at a fresh registry for
// the lifetime of the test and restores the default registerer afterwards.
//
// The swap is guarded by a package-level lock held until cleanup, so tests
// using this helper run one at a time even when marked parallel.
func ResetRegistryForTest(t *testing.T) *prometheus.Registry {
	t.Helper()

	registryMu.Lock()

	reg := prometheus.NewRegistry()
	metrics.ResetForTesting(reg)

	t.Cleanup(func() {
		metrics.ResetForTesting(prometheus.DefaultRegisterer)
		registryMu.Unlock()
	})

	return reg
}

// WaitForCondition polls probe until it reports success, ctx ends, or
// DefaultWaitTimeout passes when ctx has no deadline.
func WaitForCondition[T any](ctx context.Context, probe func() (T, bool)) (T, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultWaitTimeout)
		defer cancel()
	}

	var zero T
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()

	for {
		if val, ok := probe(); ok {
			return val, nil
		}

		runtime.Gosched()
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-ticker.C:
		}
	}
}

// ASCIIBits returns n characters of '0'/'1' cycling through pattern, with a
// newline after every 80 digits the way text bit files are usually wrapped.
func ASCIIBits(n int, pattern string) []byte {
	if pattern == "" {
		pattern = "0"
	}
	var sb strings.Builder
	sb.Grow(n + n/80)
	for i := 0; i < n; i++ {
		sb.WriteByte(pattern[i%len(pattern)])
		if i%80 == 79 {
			sb.WriteByte('\n')
		}
	}
	return []byte(sb.String())
}

// WriteInput writes data to name inside a per-test temporary directory and
// returns the full path.
func WriteInput(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}
