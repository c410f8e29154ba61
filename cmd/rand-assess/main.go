package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"rand-assess/internal/api"
	"rand-assess/internal/assess"
	"rand-assess/internal/collector"
	"rand-assess/internal/config"
	"rand-assess/internal/metrics"
	"rand-assess/internal/mqtt"
	"rand-assess/internal/report"
	"rand-assess/internal/runner"
	"rand-assess/internal/stattests"
)

var (
	loadConfigFunc       = loadConfig
	configLoadFunc       = config.Load
	connectMQTTFunc      = connectMQTTWithRetry
	notifyContextFunc    = signal.NotifyContext
	newMetricsServerFunc = func(addr string) metricsServer {
		return metrics.NewServer(addr)
	}
	newMQTTClient = func(cfg mqtt.Config) (mqttClient, error) {
		return mqtt.NewClient(cfg)
	}
	sleepFunc = time.Sleep
)

type metricsServer interface {
	Start() error
	StartTLS(certFile, keyFile, caFile string, clientAuth tls.ClientAuthType) error
	Shutdown(context.Context) error
}

type mqttClient interface {
	Connect() error
	Publish(topic string, payload []byte) error
	Close()
}

// parseClientAuth maps a configuration string to the corresponding
// tls.ClientAuthType. Unrecognised values default to tls.NoClientCert.
func parseClientAuth(mode string) tls.ClientAuthType {
	switch mode {
	case "require":
		return tls.RequireAndVerifyClientCert
	case "request":
		return tls.RequestClientCert
	default:
		return tls.NoClientCert
	}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// flagValues holds the command line overrides of the environment
// configuration. Only flags that were set are applied.
type flagValues struct {
	mode      string
	selection string
	tests     string
	n         int
	streams   int
	source    string
	input     string
	format    string
	out       string
	alpha     float64
	serve     bool
	overrides map[assess.TestID]int
}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	if err := godotenv.Overload(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("dotenv: %v", err)
	}

	values := flagValues{overrides: make(map[assess.TestID]int)}
	flags := flag.NewFlagSet("rand-assess", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() {
		_, _ = fmt.Fprintf(stdout, "Usage of %s:\n", flags.Name())
		flags.PrintDefaults()
	}
	flags.StringVar(&values.mode, "mode", "", "evaluation mode: nist or gm")
	flags.StringVar(&values.selection, "selection", "", "test selection: manual, all, nist or gm")
	flags.StringVar(&values.tests, "tests", "", "manual selection: 19 0/1 digits or a comma separated list of test names")
	flags.IntVar(&values.n, "n", 0, "sequence length in bits")
	flags.IntVar(&values.streams, "streams", 0, "number of sequences")
	flags.StringVar(&values.source, "source", "", `"file" or a generator name`)
	flags.StringVar(&values.input, "input", "", "input file for the file source")
	flags.StringVar(&values.format, "format", "", "input format: ascii or binary")
	flags.StringVar(&values.out, "out", "", "output directory")
	flags.Float64Var(&values.alpha, "alpha", 0, "significance level of the final analysis")
	flags.BoolVar(&values.serve, "serve", false, "serve the HTTP assessment API instead of running a batch")
	flags.Func("param", "block length override name=value (repeatable)", func(value string) error {
		id, length, err := assess.ParseOverride(value)
		if err != nil {
			return err
		}
		values.overrides[id] = length
		return nil
	})

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			flags.Usage()
			return 0
		}
		_, _ = fmt.Fprintf(stderr, "parse flags: %v\n", err)
		return 2
	}

	if flags.NArg() > 0 {
		_, _ = fmt.Fprintf(stderr, "unexpected arguments: %v\n", flags.Args())
		flags.Usage()
		return 2
	}

	cfg, err := loadConfigFunc()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	set := make(map[string]bool)
	flags.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if err := applyFlags(&cfg, values, set); err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return 2
	}
	if err := cfg.Validate(); err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	ctx, stop := notifyContextFunc(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if values.serve {
		err = serve(ctx, cfg)
	} else {
		err = runBatch(ctx, cfg, stdout)
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	return 0
}

// loadConfig loads the configuration from environment variables and the
// optional .env file.
func loadConfig() (config.Config, error) {
	cfg, err := configLoadFunc()
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}

	log.Printf("environment: %s", cfg.Environment)
	return cfg, nil
}

// applyFlags overlays the flags named in set onto cfg. Setting -tests
// implies manual selection and setting -mode alone selects that mode's
// preset.
func applyFlags(cfg *config.Config, values flagValues, set map[string]bool) error {
	a := &cfg.Assessment

	if set["mode"] {
		mode, err := assess.ParseEvaluationMode(values.mode)
		if err != nil {
			return err
		}
		a.Mode = mode
		if !set["selection"] && !set["tests"] {
			a.Selection = assess.SelectNISTDefaults
			if mode == assess.ModeGM {
				a.Selection = assess.SelectGMDefaults
			}
		}
	}
	if set["tests"] {
		tests, err := parseTests(values.tests)
		if err != nil {
			return err
		}
		a.Tests = tests
		a.Selection = assess.SelectManual
	}
	if set["selection"] {
		selection, err := assess.ParseSelectionMode(values.selection)
		if err != nil {
			return err
		}
		a.Selection = selection
	}
	if set["n"] {
		a.SequenceBits = values.n
	}
	if set["streams"] {
		a.NumSequences = values.streams
	}
	if set["source"] {
		a.Source = values.source
	}
	if set["input"] {
		a.InputFile = values.input
		if !set["source"] {
			a.Source = runner.SourceFile
		}
	}
	if set["format"] {
		format, err := runner.ParseFormat(values.format)
		if err != nil {
			return err
		}
		a.InputFormat = format
	}
	if set["out"] {
		a.OutputDir = values.out
	}
	if set["alpha"] {
		a.Alpha = values.alpha
	}
	if len(values.overrides) > 0 {
		if a.Overrides == nil {
			a.Overrides = make(map[assess.TestID]int)
		}
		for id, length := range values.overrides {
			a.Overrides[id] = length
		}
	}
	if values.serve {
		cfg.API.Enabled = true
	}
	return nil
}

// parseTests accepts an enable vector or a comma separated list of test
// names or numbers.
func parseTests(value string) (assess.EnableVector, error) {
	if strings.Trim(value, "01 \t") == "" {
		return assess.ParseEnableVector(value)
	}
	var tests assess.EnableVector
	for _, field := range strings.Split(value, ",") {
		if strings.TrimSpace(field) == "" {
			continue
		}
		id, err := assess.ParseTestID(field)
		if err != nil {
			return assess.EnableVector{}, err
		}
		tests = tests.With(id, true)
	}
	return tests, nil
}

// runBatch assesses the configured source and prints the final analysis.
func runBatch(ctx context.Context, cfg config.Config, stdout io.Writer) error {
	a := cfg.Assessment
	runCfg, err := assess.BuildRunConfig(a.Options())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	src, err := runner.OpenSource(runner.SourceOptions{
		Source: a.Source,
		Path:   a.InputFile,
		Format: a.InputFormat,
	}, runCfg.SequenceBits())
	if err != nil {
		return err
	}
	defer func() {
		if err := src.Close(); err != nil {
			log.Printf("runner: close input: %v", err)
		}
	}()

	generatorName := src.Label
	if generatorName == runner.SourceFile {
		generatorName = ""
	}

	fileSink, err := report.NewFileSink(a.OutputDir, generatorName, a.Alpha)
	if err != nil {
		return err
	}
	sinks := report.Multi{fileSink}

	var (
		client        mqttClient
		resultBatches *collector.ResultCollector
	)
	if cfg.MQTT.Enabled {
		client, err = connectMQTTFunc(cfg.MQTT)
		if err != nil {
			_ = fileSink.Close()
			return err
		}
		publisher, err := mqtt.NewBatchPublisher(client, cfg.MQTT.TopicPrefix, generatorName)
		if err != nil {
			client.Close()
			_ = fileSink.Close()
			return err
		}
		resultBatches = collector.New(cfg.Collector.BatchSize, cfg.Collector.FlushInterval, publisher)
		log.Printf("collector: initialized (batch_size=%d, flush_interval=%s)", cfg.Collector.BatchSize, cfg.Collector.FlushInterval)
		sinks = append(sinks, resultBatches)
	}

	log.Printf("rand-assess: %s mode, tests %s, %d x %d bits from %s",
		runCfg.Mode(), runCfg.Enabled(), runCfg.NumSequences(), runCfg.SequenceBits(), src.Label)

	summary, runErr := runner.New(stattests.Suite(), sinks, runner.WithSourceLabel(src.Label)).Run(ctx, runCfg, src)

	if resultBatches != nil {
		resultBatches.Close()
	}
	if client != nil {
		client.Close()
	}
	closeErr := fileSink.Close()

	report.WriteSummary(stdout, fileSink.Summaries(), a.Alpha, summary.Sequences, summary.Totals)
	_, _ = fmt.Fprintf(stdout, "results written to %s\n", fileSink.Dir())

	return errors.Join(runErr, closeErr, fileSink.Err())
}

// serve runs the HTTP assessment API and the metrics server until ctx is
// cancelled or one of them fails.
func serve(ctx context.Context, cfg config.Config) error {
	apiServer, err := api.NewServer(api.Settings{
		Addr:           cfg.API.Bind,
		AllowPublic:    cfg.API.AllowPublic,
		RateLimitRPS:   cfg.API.RateLimitRPS,
		RateLimitBurst: cfg.API.RateLimitBurst,
		MaxBodyBytes:   cfg.API.MaxBodyBytes,
		MinBits:        cfg.API.MinBits,
		Alpha:          cfg.Assessment.Alpha,
	}, stattests.Suite())
	if err != nil {
		return err
	}

	if cfg.API.TLSEnabled {
		err = apiServer.StartTLS(cfg.API.TLSCertFile, cfg.API.TLSKeyFile, cfg.API.TLSCAFile, parseClientAuth(cfg.API.TLSClientAuth))
	} else {
		err = apiServer.Start()
	}
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)

	var metricsHTTPServer metricsServer
	if cfg.Metrics.Enabled {
		metricsHTTPServer = newMetricsServerFunc(cfg.Metrics.Bind)
		group.Go(func() error {
			if cfg.Metrics.TLSEnabled {
				return metricsHTTPServer.StartTLS(
					cfg.Metrics.TLSCertFile,
					cfg.Metrics.TLSKeyFile,
					cfg.Metrics.TLSCAFile,
					parseClientAuth(cfg.Metrics.TLSClientAuth),
				)
			}
			return metricsHTTPServer.Start()
		})
	}

	log.Println("rand-assess: ready, serving assessments...")

	group.Go(func() error {
		<-groupCtx.Done()
		log.Println("shutting down gracefully...")

		shutdownContext, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(shutdownContext); err != nil {
			log.Printf("api: shutdown error: %v", err)
		}
		if metricsHTTPServer != nil {
			if err := metricsHTTPServer.Shutdown(shutdownContext); err != nil {
				log.Printf("metrics: shutdown error: %v", err)
			}
		}
		log.Println("shutdown complete")
		return nil
	})

	return group.Wait()
}

// connectMQTTWithRetry connects to the broker, retrying with exponential
// back-off and bounded jitter. A batch run gives up after five attempts.
func connectMQTTWithRetry(cfg config.MQTT) (mqttClient, error) {
	const (
		maxAttempts    = 5
		initialDelay   = 1 * time.Second
		maxDelay       = 30 * time.Second
		jitterFraction = 0.2
	)

	client, err := newMQTTClient(mqtt.Config{
		BrokerURL: cfg.BrokerURL,
		ClientID:  cfg.ClientID,
		QoS:       cfg.QoS,
		Username:  cfg.Username,
		Password:  cfg.Password,
		TLSCAFile: cfg.TLSCAFile,
	})
	if err != nil {
		return nil, fmt.Errorf("mqtt init: %w", err)
	}

	delay := initialDelay
	for attempt := 1; ; attempt++ {
		err := client.Connect()
		if err == nil {
			if attempt > 1 {
				log.Printf("mqtt: connected after %d attempt(s)", attempt)
			}
			return client, nil
		}
		if attempt == maxAttempts {
			client.Close()
			return nil, fmt.Errorf("mqtt connect: %w", err)
		}

		jitter := 1 + (rand.Float64()*2-1)*jitterFraction
		wait := time.Duration(float64(delay) * jitter)
		log.Printf("mqtt: connect attempt %d failed: %v (retrying in %s)", attempt, err, wait)
		sleepFunc(wait)

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}
