package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"rand-assess/internal/assess"
	"rand-assess/internal/config"
	"rand-assess/internal/mqtt"
	"rand-assess/internal/runner"
	"rand-assess/testutil"
)

type stubMetricsServer struct {
	startErr    error
	started     bool
	startedTLS  bool
	tlsCertFile string
	clientAuth  tls.ClientAuthType
	shutdowns   int
}

func (s *stubMetricsServer) Start() error {
	s.started = true
	return s.startErr
}

func (s *stubMetricsServer) StartTLS(certFile, _, _ string, clientAuth tls.ClientAuthType) error {
	s.startedTLS = true
	s.tlsCertFile = certFile
	s.clientAuth = clientAuth
	return s.startErr
}

func (s *stubMetricsServer) Shutdown(context.Context) error {
	s.shutdowns++
	return nil
}

type stubMQTTClient struct {
	mu           sync.Mutex
	connectErrs  []error
	connectCalls int
	closeCalls   int
	topics       []string
}

func (s *stubMQTTClient) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectCalls++
	if len(s.connectErrs) > 0 {
		err := s.connectErrs[0]
		s.connectErrs = s.connectErrs[1:]
		return err
	}
	return nil
}

func (s *stubMQTTClient) Publish(topic string, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics = append(s.topics, topic)
	return nil
}

func (s *stubMQTTClient) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
}

func withStubbedDeps(t *testing.T) {
	t.Helper()

	origLoadConfig := loadConfigFunc
	origConfigLoad := configLoadFunc
	origConnectMQTT := connectMQTTFunc
	origNotifyContext := notifyContextFunc
	origNewMetricsServer := newMetricsServerFunc
	origNewMQTTClient := newMQTTClient
	origSleep := sleepFunc

	t.Cleanup(func() {
		loadConfigFunc = origLoadConfig
		configLoadFunc = origConfigLoad
		connectMQTTFunc = origConnectMQTT
		notifyContextFunc = origNotifyContext
		newMetricsServerFunc = origNewMetricsServer
		newMQTTClient = origNewMQTTClient
		sleepFunc = origSleep
	})
}

// useConfig makes run use cfg, with output under a temporary directory.
func useConfig(t *testing.T, mutate func(*config.Config)) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Assessment.OutputDir = t.TempDir()
	if mutate != nil {
		mutate(&cfg)
	}
	loadConfigFunc = func() (config.Config, error) { return cfg, nil }
	return cfg
}

func TestRun_HelpFlag(t *testing.T) {
	withStubbedDeps(t)

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}

	if code := run([]string{"-h"}, stdout, stderr); code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(stdout.String(), "Usage of rand-assess") {
		t.Fatalf("expected usage text in stdout, got %q", stdout.String())
	}
	if !strings.Contains(stdout.String(), "-param") {
		t.Fatalf("usage lacks -param: %q", stdout.String())
	}
}

func TestRun_FlagErrors(t *testing.T) {
	withStubbedDeps(t)
	useConfig(t, nil)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "unknown flag", args: []string{"-bogus"}, want: "parse flags"},
		{name: "unexpected argument", args: []string{"data.txt"}, want: "unexpected arguments"},
		{name: "bad override", args: []string{"-param", "Frequency"}, want: "parse flags"},
		{name: "bad mode", args: []string{"-mode", "fips"}, want: "invalid evaluation mode"},
		{name: "bad tests", args: []string{"-tests", "Frequency,Entropy"}, want: "unknown test"},
		{name: "bad format", args: []string{"-format", "hex"}, want: "unknown input format"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stdout := &bytes.Buffer{}
			stderr := &bytes.Buffer{}
			if code := run(tc.args, stdout, stderr); code != 2 {
				t.Fatalf("exit code = %d, want 2 (stderr=%q)", code, stderr.String())
			}
			if !strings.Contains(stderr.String(), tc.want) {
				t.Fatalf("stderr = %q, want %q", stderr.String(), tc.want)
			}
		})
	}
}

func TestRun_ConfigError(t *testing.T) {
	withStubbedDeps(t)

	configLoadFunc = func() (config.Config, error) {
		return config.Config{}, errors.New("load failed")
	}

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	if code := run(nil, stdout, stderr); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if stdout.Len() != 0 {
		t.Fatalf("expected empty stdout, got %q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "config: load failed") {
		t.Fatalf("expected config error in stderr, got %q", stderr.String())
	}
}

func TestRun_InvalidFlagCombination(t *testing.T) {
	withStubbedDeps(t)
	useConfig(t, nil)

	stderr := &bytes.Buffer{}
	// Serial accepts block lengths up to 24.
	if code := run([]string{"-source", "XOR", "-n", "1000", "-param", "serial=30"}, &bytes.Buffer{}, stderr); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "invalid parameter override") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestRun_BatchFromGenerator(t *testing.T) {
	withStubbedDeps(t)
	cfg := useConfig(t, nil)

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	args := []string{"-source", "xor", "-n", "1000", "-streams", "3", "-tests", "Frequency,Runs,CumulativeSums"}
	if code := run(args, stdout, stderr); code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr.String())
	}

	out := stdout.String()
	for _, want := range []string{"Frequency", "Runs", "CumulativeSums", "results written to"} {
		if !strings.Contains(out, want) {
			t.Errorf("stdout missing %q:\n%s", want, out)
		}
	}

	root := filepath.Join(cfg.Assessment.OutputDir, "XOR")
	for _, name := range []string{"freq.txt", "finalAnalysisReport.txt", "Frequency/results.txt", "Runs/stats.txt"} {
		if _, err := os.Stat(filepath.Join(root, name)); err != nil {
			t.Errorf("expected %s: %v", name, err)
		}
	}

	freq, err := os.ReadFile(filepath.Join(root, "freq.txt"))
	if err != nil {
		t.Fatalf("read freq.txt: %v", err)
	}
	if lines := strings.Count(string(freq), "BITSREAD = 1000"); lines != 3 {
		t.Fatalf("freq.txt has %d sequences, want 3:\n%s", lines, freq)
	}
}

func TestRun_BatchFromFile(t *testing.T) {
	withStubbedDeps(t)
	cfg := useConfig(t, nil)

	input := testutil.WriteInput(t, "data.txt", testutil.ASCIIBits(2000, "0110100111"))

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	args := []string{"-input", input, "-n", "1000", "-streams", "2", "-tests", "1000000000000000000"}
	if code := run(args, stdout, stderr); code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr.String())
	}

	results, err := os.ReadFile(filepath.Join(cfg.Assessment.OutputDir, "input", "Frequency", "results.txt"))
	if err != nil {
		t.Fatalf("read results: %v", err)
	}
	if got := strings.Count(string(results), "\n"); got != 2 {
		t.Fatalf("results.txt has %d p-values, want 2", got)
	}
}

func TestRun_BatchShortInputFails(t *testing.T) {
	withStubbedDeps(t)
	useConfig(t, nil)

	input := testutil.WriteInput(t, "short.txt", testutil.ASCIIBits(1400, "01"))

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	args := []string{"-input", input, "-n", "1000", "-streams", "2", "-tests", "Frequency"}
	if code := run(args, stdout, stderr); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "sequence 1") {
		t.Fatalf("stderr = %q", stderr.String())
	}
	// The first sequence is still reported.
	if !strings.Contains(stdout.String(), "Frequency") {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRun_BatchPublishesToMQTT(t *testing.T) {
	withStubbedDeps(t)
	useConfig(t, func(cfg *config.Config) {
		cfg.MQTT.Enabled = true
		cfg.MQTT.TopicPrefix = "lab"
		cfg.Collector.BatchSize = 2
	})

	client := &stubMQTTClient{}
	connectMQTTFunc = func(config.MQTT) (mqttClient, error) { return client, nil }

	stderr := &bytes.Buffer{}
	args := []string{"-source", "XOR", "-n", "1000", "-streams", "2", "-tests", "Frequency,Runs"}
	if code := run(args, &bytes.Buffer{}, stderr); code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr.String())
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if client.closeCalls != 1 {
		t.Fatalf("close calls = %d, want 1", client.closeCalls)
	}
	seen := make(map[string]int)
	for _, topic := range client.topics {
		seen[topic]++
	}
	for _, topic := range []string{"lab/XOR/Frequency/results", "lab/XOR/Runs/results"} {
		if seen[topic] == 0 {
			t.Errorf("no publish on %s (got %v)", topic, client.topics)
		}
	}
}

func TestRun_BatchMQTTConnectFailure(t *testing.T) {
	withStubbedDeps(t)
	useConfig(t, func(cfg *config.Config) {
		cfg.MQTT.Enabled = true
	})
	connectMQTTFunc = func(config.MQTT) (mqttClient, error) { return nil, errors.New("broker down") }

	stderr := &bytes.Buffer{}
	if code := run([]string{"-source", "XOR", "-n", "1000", "-tests", "Frequency"}, &bytes.Buffer{}, stderr); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "broker down") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestRun_ServeShutsDownOnCancel(t *testing.T) {
	withStubbedDeps(t)
	useConfig(t, func(cfg *config.Config) {
		cfg.API.Bind = "127.0.0.1:0"
		cfg.Metrics.Bind = "127.0.0.1:0"
	})

	metricsStub := &stubMetricsServer{}
	newMetricsServerFunc = func(string) metricsServer { return metricsStub }
	notifyContextFunc = cancelledContext

	stderr := &bytes.Buffer{}
	if code := run([]string{"-serve"}, &bytes.Buffer{}, stderr); code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr.String())
	}
	if !metricsStub.started {
		t.Fatal("metrics server not started")
	}
	if metricsStub.shutdowns != 1 {
		t.Fatalf("metrics shutdowns = %d, want 1", metricsStub.shutdowns)
	}
}

func TestRun_ServeMetricsTLS(t *testing.T) {
	withStubbedDeps(t)
	useConfig(t, func(cfg *config.Config) {
		cfg.API.Bind = "127.0.0.1:0"
		cfg.Metrics.TLSEnabled = true
		cfg.Metrics.TLSCertFile = "cert.pem"
		cfg.Metrics.TLSKeyFile = "key.pem"
		cfg.Metrics.TLSCAFile = "ca.pem"
		cfg.Metrics.TLSClientAuth = "require"
	})

	metricsStub := &stubMetricsServer{}
	newMetricsServerFunc = func(string) metricsServer { return metricsStub }
	notifyContextFunc = cancelledContext

	if code := run([]string{"-serve"}, &bytes.Buffer{}, &bytes.Buffer{}); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !metricsStub.startedTLS || metricsStub.tlsCertFile != "cert.pem" {
		t.Fatalf("metrics TLS not used: %+v", metricsStub)
	}
	if metricsStub.clientAuth != tls.RequireAndVerifyClientCert {
		t.Fatalf("client auth = %v", metricsStub.clientAuth)
	}
}

func TestRun_ServeMetricsFailure(t *testing.T) {
	withStubbedDeps(t)
	useConfig(t, func(cfg *config.Config) {
		cfg.API.Bind = "127.0.0.1:0"
	})

	metricsStub := &stubMetricsServer{startErr: errors.New("address in use")}
	newMetricsServerFunc = func(string) metricsServer { return metricsStub }
	notifyContextFunc = func(ctx context.Context, _ ...os.Signal) (context.Context, context.CancelFunc) {
		return context.WithCancel(ctx)
	}

	stderr := &bytes.Buffer{}
	done := make(chan int, 1)
	go func() { done <- run([]string{"-serve"}, &bytes.Buffer{}, stderr) }()

	select {
	case code := <-done:
		if code != 1 {
			t.Fatalf("exit code = %d, want 1", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after metrics failure")
	}
	if !strings.Contains(stderr.String(), "address in use") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func cancelledContext(ctx context.Context, _ ...os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	cancel()
	return ctx, cancel
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name   string
		values flagValues
		set    []string
		check  func(t *testing.T, cfg config.Config)
	}{
		{
			name:   "gm mode selects gm preset",
			values: flagValues{mode: "gm"},
			set:    []string{"mode"},
			check: func(t *testing.T, cfg config.Config) {
				if cfg.Assessment.Mode != assess.ModeGM || cfg.Assessment.Selection != assess.SelectGMDefaults {
					t.Fatalf("assessment = %+v", cfg.Assessment)
				}
			},
		},
		{
			name:   "explicit selection wins over mode preset",
			values: flagValues{mode: "gm", selection: "all"},
			set:    []string{"mode", "selection"},
			check: func(t *testing.T, cfg config.Config) {
				if cfg.Assessment.Selection != assess.SelectAll {
					t.Fatalf("selection = %v", cfg.Assessment.Selection)
				}
			},
		},
		{
			name:   "tests imply manual selection",
			values: flagValues{tests: "Serial,15"},
			set:    []string{"tests"},
			check: func(t *testing.T, cfg config.Config) {
				a := cfg.Assessment
				if a.Selection != assess.SelectManual || a.Tests.Count() != 2 {
					t.Fatalf("assessment = %+v", a)
				}
				if !a.Tests.Enabled(assess.TestSerial) || !a.Tests.Enabled(assess.TestLinearComplexity) {
					t.Fatalf("tests = %s", a.Tests)
				}
			},
		},
		{
			name:   "input implies file source",
			values: flagValues{input: "data.bin", format: "1"},
			set:    []string{"input", "format"},
			check: func(t *testing.T, cfg config.Config) {
				a := cfg.Assessment
				if a.Source != runner.SourceFile || a.InputFile != "data.bin" || a.InputFormat != runner.FormatBinary {
					t.Fatalf("assessment = %+v", a)
				}
			},
		},
		{
			name:   "overrides merge",
			values: flagValues{overrides: map[assess.TestID]int{assess.TestSerial: 8}},
			check: func(t *testing.T, cfg config.Config) {
				if cfg.Assessment.Overrides[assess.TestSerial] != 8 || cfg.Assessment.Overrides[assess.TestBlockFrequency] != 64 {
					t.Fatalf("overrides = %v", cfg.Assessment.Overrides)
				}
			},
		},
		{
			name:   "serve enables api",
			values: flagValues{serve: true, n: 5000, streams: 4, alpha: 0.05},
			set:    []string{"n", "streams", "alpha"},
			check: func(t *testing.T, cfg config.Config) {
				a := cfg.Assessment
				if !cfg.API.Enabled || a.SequenceBits != 5000 || a.NumSequences != 4 || a.Alpha != 0.05 {
					t.Fatalf("config = %+v", cfg)
				}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Assessment.Overrides = map[assess.TestID]int{assess.TestBlockFrequency: 64}
			set := make(map[string]bool)
			for _, name := range tc.set {
				set[name] = true
			}
			if err := applyFlags(&cfg, tc.values, set); err != nil {
				t.Fatalf("applyFlags: %v", err)
			}
			tc.check(t, cfg)
		})
	}
}

func TestParseTests(t *testing.T) {
	vector, err := parseTests("1010000000000000000")
	if err != nil {
		t.Fatalf("parseTests(vector): %v", err)
	}
	if vector.Count() != 2 || !vector.Enabled(assess.TestCumulativeSums) {
		t.Fatalf("vector = %s", vector)
	}

	named, err := parseTests("frequency, 19,")
	if err != nil {
		t.Fatalf("parseTests(names): %v", err)
	}
	if named.String() != "1000000000000000001" {
		t.Fatalf("named = %s", named)
	}

	if _, err := parseTests("101"); err == nil {
		t.Fatal("expected error for short vector")
	}
}

func TestParseClientAuth(t *testing.T) {
	tests := map[string]tls.ClientAuthType{
		"require": tls.RequireAndVerifyClientCert,
		"request": tls.RequestClientCert,
		"none":    tls.NoClientCert,
		"":        tls.NoClientCert,
		"bogus":   tls.NoClientCert,
	}
	for mode, want := range tests {
		if got := parseClientAuth(mode); got != want {
			t.Errorf("parseClientAuth(%q) = %v, want %v", mode, got, want)
		}
	}
}

func TestConnectMQTTWithRetry(t *testing.T) {
	withStubbedDeps(t)

	var slept []time.Duration
	sleepFunc = func(d time.Duration) { slept = append(slept, d) }

	t.Run("succeeds after retries", func(t *testing.T) {
		slept = nil
		client := &stubMQTTClient{connectErrs: []error{errors.New("refused"), errors.New("refused")}}
		var got mqtt.Config
		newMQTTClient = func(cfg mqtt.Config) (mqttClient, error) {
			got = cfg
			return client, nil
		}

		c, err := connectMQTTWithRetry(config.MQTT{BrokerURL: "tcp://127.0.0.1:1883", ClientID: "x", QoS: 1})
		if err != nil {
			t.Fatalf("connectMQTTWithRetry: %v", err)
		}
		if c != client || client.connectCalls != 3 {
			t.Fatalf("connect calls = %d", client.connectCalls)
		}
		if got.BrokerURL != "tcp://127.0.0.1:1883" || got.ClientID != "x" || got.QoS != 1 {
			t.Fatalf("mqtt config = %+v", got)
		}
		if len(slept) != 2 {
			t.Fatalf("sleeps = %v, want 2", slept)
		}
		// First delay is 1s with at most 20% jitter.
		if slept[0] < 800*time.Millisecond || slept[0] > 1200*time.Millisecond {
			t.Fatalf("first delay = %v", slept[0])
		}
	})

	t.Run("gives up", func(t *testing.T) {
		slept = nil
		refused := errors.New("refused")
		client := &stubMQTTClient{connectErrs: []error{refused, refused, refused, refused, refused}}
		newMQTTClient = func(mqtt.Config) (mqttClient, error) { return client, nil }

		if _, err := connectMQTTWithRetry(config.MQTT{BrokerURL: "tcp://127.0.0.1:1883"}); !errors.Is(err, refused) {
			t.Fatalf("expected refused, got %v", err)
		}
		if client.connectCalls != 5 || client.closeCalls != 1 {
			t.Fatalf("connect=%d close=%d", client.connectCalls, client.closeCalls)
		}
	})

	t.Run("init error", func(t *testing.T) {
		newMQTTClient = func(mqtt.Config) (mqttClient, error) { return nil, errors.New("bad url") }
		if _, err := connectMQTTWithRetry(config.MQTT{}); err == nil || !strings.Contains(err.Error(), "mqtt init") {
			t.Fatalf("err = %v", err)
		}
	})
}
