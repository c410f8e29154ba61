// Package config provides configuration management for the rand-assess
// application. Configuration is loaded from environment variables with
// sensible defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"rand-assess/internal/assess"
)

// Environment constants define the application runtime environments.
const (
	EnvironmentDevelopment = "dev"
	EnvironmentProduction  = "prod"

	defaultSequenceBits  = 1000000
	defaultNumSequences  = 1
	defaultAlpha         = 0.01
	defaultOutputDir     = "experiments"
	defaultAPIMinBits    = 1000000
	defaultAPIMaxBody    = 16 << 20
	defaultBatchSize     = 64
	minBatchSize         = 1
	maxBatchSize         = 4096
	defaultFlushInterval = 5 * time.Second
)

// Input formats and the file source name.
const (
	FormatASCII  = "ascii"
	FormatBinary = "binary"
	SourceFile   = "file"
)

// Assessment contains the parameters of a batch run.
type Assessment struct {
	Mode         assess.EvaluationMode `json:"mode"`
	Selection    assess.SelectionMode  `json:"selection"`
	Tests        assess.EnableVector   `json:"tests"`         // Manual selection, only used with SelectManual
	SequenceBits int                   `json:"sequence_bits"` // N
	NumSequences int                   `json:"num_sequences"`
	Source       string                `json:"source"`     // "file" or a generator name
	InputFile    string                `json:"input_file"` // Path read when Source is "file"
	InputFormat  string                `json:"input_format"`
	Overrides    map[assess.TestID]int `json:"overrides"` // Block-length overrides
	OutputDir    string                `json:"output_dir"`
	Alpha        float64               `json:"alpha"` // Significance level of the final analysis
}

// Options converts the assessment settings into resolver input.
func (a Assessment) Options() assess.Options {
	overrides := make(map[assess.TestID]int, len(a.Overrides))
	for id, v := range a.Overrides {
		overrides[id] = v
	}
	return assess.Options{
		Mode:         a.Mode,
		Selection:    a.Selection,
		Manual:       a.Tests,
		Overrides:    overrides,
		SequenceBits: a.SequenceBits,
		NumSequences: a.NumSequences,
	}
}

// Metrics contains Prometheus metrics server configuration
type Metrics struct {
	Bind          string `json:"bind"`            // Bind address for metrics server (e.g., "127.0.0.1:8080")
	Enabled       bool   `json:"enabled"`         // Enable metrics server
	TLSEnabled    bool   `json:"tls_enabled"`     // Enable TLS for metrics server
	TLSCertFile   string `json:"tls_cert_file"`   // Path to server certificate for TLS
	TLSKeyFile    string `json:"tls_key_file"`    // Path to server private key for TLS
	TLSCAFile     string `json:"tls_ca_file"`     // Path to CA certificate for mTLS client verification (optional)
	TLSClientAuth string `json:"tls_client_auth"` // mTLS client auth mode: "none", "request", "require" (default: "none")
}

// API contains the HTTP assessment API configuration.
type API struct {
	Enabled        bool   `json:"enabled"`
	Bind           string `json:"bind"`
	AllowPublic    bool   `json:"allow_public"`
	RateLimitRPS   int    `json:"rate_limit_rps"`
	RateLimitBurst int    `json:"rate_limit_burst"`
	MaxBodyBytes   int    `json:"max_body_bytes"`
	MinBits        int    `json:"min_bits"` // Smallest accepted submission
	TLSEnabled     bool   `json:"tls_enabled"`
	TLSCertFile    string `json:"tls_cert_file"`
	TLSKeyFile     string `json:"tls_key_file"`
	TLSCAFile      string `json:"tls_ca_file"`
	TLSClientAuth  string `json:"tls_client_auth"`
}

// MQTT contains configuration for publishing results to a broker.
type MQTT struct {
	Enabled     bool   `json:"enabled"`
	BrokerURL   string `json:"broker_url"`   // MQTT broker URL (e.g., "tcp://localhost:1883" or "ssl://mqtt.example.com:8883")
	ClientID    string `json:"client_id"`    // MQTT client ID (auto-generated if empty)
	TopicPrefix string `json:"topic_prefix"` // Results go to <prefix>/<generator>/<test>/results
	QoS         byte   `json:"qos"`          // Quality of Service level (0 or 1)
	Username    string `json:"username"`
	Password    string `json:"password"`
	TLSCAFile   string `json:"tls_ca_file"`
}

// Collector contains result batching configuration
type Collector struct {
	BatchSize     int           `json:"batch_size"`     // Results per published batch
	FlushInterval time.Duration `json:"flush_interval"` // Upper bound on how long a partial batch waits
}

// Config holds the complete application configuration.
type Config struct {
	Assessment  Assessment `json:"assessment"`
	Metrics     Metrics    `json:"metrics"`
	API         API        `json:"api"`
	MQTT        MQTT       `json:"mqtt"`
	Collector   Collector  `json:"collector"`
	Environment string     `json:"environment"` // Runtime environment ("dev" or "prod")
}

// Default returns the configuration used when no environment variable is
// set.
func Default() Config {
	return Config{
		Assessment: Assessment{
			Mode:         assess.ModeNIST,
			Selection:    assess.SelectNISTDefaults,
			SequenceBits: defaultSequenceBits,
			NumSequences: defaultNumSequences,
			Source:       SourceFile,
			InputFormat:  FormatASCII,
			Overrides:    map[assess.TestID]int{},
			OutputDir:    defaultOutputDir,
			Alpha:        defaultAlpha,
		},
		Metrics: Metrics{
			Bind:          "127.0.0.1:8080", // Default to localhost only
			Enabled:       true,
			TLSClientAuth: "none",
		},
		API: API{
			Enabled:        false,
			Bind:           "127.0.0.1:8081",
			RateLimitRPS:   5,
			RateLimitBurst: 5,
			MaxBodyBytes:   defaultAPIMaxBody,
			MinBits:        defaultAPIMinBits,
			TLSClientAuth:  "none",
		},
		MQTT: MQTT{
			BrokerURL:   "tcp://127.0.0.1:1883",
			TopicPrefix: "rand-assess",
		},
		Collector: Collector{
			BatchSize:     defaultBatchSize,
			FlushInterval: defaultFlushInterval,
		},
		Environment: EnvironmentDevelopment,
	}
}

// Load reads configuration from environment variables and returns a validated Config.
// It applies defaults first, then overrides with environment variables.
func Load() (Config, error) {
	configuration := Default()

	appliers := []func(*Config) error{
		applyAssessmentEnvVars,
		applyMetricsEnvVars,
		applyAPIEnvVars,
		applyMQTTEnvVars,
		applyCollectorEnvVars,
		applyEnvironmentEnvVars,
	}
	for _, apply := range appliers {
		if err := apply(&configuration); err != nil {
			return configuration, err
		}
	}

	if err := configuration.Validate(); err != nil {
		return configuration, err
	}
	return configuration, nil
}

// blockLengthKeys maps the override variables to their tests.
var blockLengthKeys = []struct {
	key string
	id  assess.TestID
}{
	{"ASSESS_BLOCK_FREQUENCY_M", assess.TestBlockFrequency},
	{"ASSESS_NONPERIODIC_M", assess.TestNonPeriodicTemplate},
	{"ASSESS_OVERLAPPING_M", assess.TestOverlappingTemplate},
	{"ASSESS_APEN_M", assess.TestApproximateEntropy},
	{"ASSESS_SERIAL_M", assess.TestSerial},
	{"ASSESS_LINEAR_COMPLEXITY_M", assess.TestLinearComplexity},
}

// applyAssessmentEnvVars reads the ASSESS_* variables. When ASSESS_SELECTION
// is unset the preset follows ASSESS_MODE.
func applyAssessmentEnvVars(configuration *Config) error {
	a := &configuration.Assessment

	if v := GetEnvDefault("ASSESS_MODE", ""); v != "" {
		mode, err := assess.ParseEvaluationMode(v)
		if err != nil {
			return fmt.Errorf("config: ASSESS_MODE: %w", err)
		}
		a.Mode = mode
		if mode == assess.ModeGM {
			a.Selection = assess.SelectGMDefaults
		}
	}

	if v := GetEnvDefault("ASSESS_SELECTION", ""); v != "" {
		selection, err := assess.ParseSelectionMode(v)
		if err != nil {
			return fmt.Errorf("config: ASSESS_SELECTION: %w", err)
		}
		a.Selection = selection
	}

	if v := GetEnvDefault("ASSESS_TESTS", ""); v != "" {
		tests, err := assess.ParseEnableVector(v)
		if err != nil {
			return fmt.Errorf("config: ASSESS_TESTS: %w", err)
		}
		a.Tests = tests
	}

	a.SequenceBits = ParsePositiveEnvInt("ASSESS_SEQUENCE_LENGTH", a.SequenceBits)
	a.NumSequences = ParsePositiveEnvInt("ASSESS_NUM_SEQUENCES", a.NumSequences)
	a.Source = GetEnvDefault("ASSESS_SOURCE", a.Source)
	a.InputFile = GetEnvDefault("ASSESS_INPUT_FILE", a.InputFile)
	a.InputFormat = strings.ToLower(GetEnvDefault("ASSESS_INPUT_FORMAT", a.InputFormat))
	a.OutputDir = GetEnvDefault("ASSESS_OUTPUT_DIR", a.OutputDir)

	for _, entry := range blockLengthKeys {
		v := GetEnvDefault(entry.key, "")
		if v == "" {
			continue
		}
		length, err := strconv.Atoi(v)
		if err != nil || length <= 0 {
			return fmt.Errorf("config: %s must be a positive integer, got %q", entry.key, v)
		}
		if a.Overrides == nil {
			a.Overrides = make(map[assess.TestID]int)
		}
		a.Overrides[entry.id] = length
	}

	if v := GetEnvDefault("ASSESS_ALPHA", ""); v != "" {
		alpha, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: ASSESS_ALPHA must be a number, got %q", v)
		}
		a.Alpha = alpha
	}

	return nil
}

// applyMetricsEnvVars reads Prometheus metrics server environment variables
func applyMetricsEnvVars(configuration *Config) error {
	configuration.Metrics.Bind = GetEnvDefault("METRICS_BIND", configuration.Metrics.Bind)
	configuration.Metrics.Enabled = ParseBoolEnv("METRICS_ENABLED", configuration.Metrics.Enabled)
	configuration.Metrics.TLSEnabled = ParseBoolEnv("METRICS_TLS_ENABLED", configuration.Metrics.TLSEnabled)

	// Use component-specific TLS files if set, otherwise fall back to shared TLS_* variables
	configuration.Metrics.TLSCertFile = GetEnvDefault("METRICS_TLS_CERT_FILE", os.Getenv("TLS_CERT_FILE"))
	configuration.Metrics.TLSKeyFile = GetEnvDefault("METRICS_TLS_KEY_FILE", os.Getenv("TLS_KEY_FILE"))
	configuration.Metrics.TLSCAFile = GetEnvDefault("METRICS_TLS_CA_FILE", os.Getenv("TLS_CA_FILE"))
	configuration.Metrics.TLSClientAuth = strings.ToLower(GetEnvDefault("METRICS_TLS_CLIENT_AUTH", "none"))

	return nil
}

// applyAPIEnvVars reads the HTTP assessment API variables.
func applyAPIEnvVars(configuration *Config) error {
	api := &configuration.API
	api.Enabled = ParseBoolEnv("API_ENABLED", api.Enabled)
	api.Bind = GetEnvDefault("API_BIND", api.Bind)
	api.AllowPublic = ParseBoolEnv("API_ALLOW_PUBLIC", api.AllowPublic)
	api.RateLimitRPS = ParsePositiveEnvInt("API_RATE_LIMIT_RPS", api.RateLimitRPS)
	api.RateLimitBurst = ParsePositiveEnvInt("API_RATE_LIMIT_BURST", api.RateLimitBurst)
	api.MaxBodyBytes = ParsePositiveEnvInt("API_MAX_BODY_BYTES", api.MaxBodyBytes)
	api.MinBits = ParsePositiveEnvInt("API_MIN_BITS", api.MinBits)

	api.TLSEnabled = ParseBoolEnv("API_TLS_ENABLED", api.TLSEnabled)
	api.TLSCertFile = GetEnvDefault("API_TLS_CERT_FILE", os.Getenv("TLS_CERT_FILE"))
	api.TLSKeyFile = GetEnvDefault("API_TLS_KEY_FILE", os.Getenv("TLS_KEY_FILE"))
	api.TLSCAFile = GetEnvDefault("API_TLS_CA_FILE", os.Getenv("TLS_CA_FILE"))
	api.TLSClientAuth = strings.ToLower(GetEnvDefault("API_TLS_CLIENT_AUTH", "none"))

	return nil
}

// applyMQTTEnvVars reads MQTT environment variables and applies them to the provided configuration.
// MQTT_QOS clamps QoS to 0 or 1.
func applyMQTTEnvVars(configuration *Config) error {
	configuration.MQTT.Enabled = ParseBoolEnv("MQTT_ENABLED", configuration.MQTT.Enabled)
	configuration.MQTT.BrokerURL = GetEnvDefault("MQTT_BROKER_URL", configuration.MQTT.BrokerURL)
	configuration.MQTT.ClientID = GetEnvDefault("MQTT_CLIENT_ID", configuration.MQTT.ClientID)
	configuration.MQTT.TopicPrefix = strings.Trim(GetEnvDefault("MQTT_TOPIC_PREFIX", configuration.MQTT.TopicPrefix), "/")

	if v := GetEnvDefault("MQTT_QOS", ""); v != "" {
		qos, err := strconv.Atoi(v)
		if err != nil {
			return errors.New("config: MQTT_QOS must be a number (0 or 1)")
		}
		if qos < 0 {
			qos = 0
		}
		if qos > 1 {
			qos = 1
		}
		configuration.MQTT.QoS = byte(qos)
	}

	configuration.MQTT.Username = GetEnvDefault("MQTT_USERNAME", configuration.MQTT.Username)
	configuration.MQTT.Password = GetEnvDefault("MQTT_PASSWORD", configuration.MQTT.Password)

	// Read password from file if MQTT_PASSWORD_FILE is set (more secure)
	if passwordFile := os.Getenv("MQTT_PASSWORD_FILE"); passwordFile != "" {
		passwordBytes, err := readSecretFile(passwordFile)
		if err != nil {
			return fmt.Errorf("config: failed to read MQTT_PASSWORD_FILE: %w", err)
		}
		configuration.MQTT.Password = strings.TrimSpace(string(passwordBytes))
	}

	configuration.MQTT.TLSCAFile = GetEnvDefault("MQTT_TLS_CA_FILE", configuration.MQTT.TLSCAFile)
	return nil
}

// applyCollectorEnvVars reads result batching variables. MQTT_BATCH_SIZE is
// clamped to [minBatchSize, maxBatchSize] with a warning log.
func applyCollectorEnvVars(configuration *Config) error {
	if v := GetEnvDefault("MQTT_BATCH_SIZE", ""); v != "" {
		parsed, err := strconv.Atoi(v)
		switch {
		case err != nil:
			log.Printf("config: MQTT_BATCH_SIZE invalid (%q), using default %d", v, defaultBatchSize)
			configuration.Collector.BatchSize = defaultBatchSize
		case parsed < minBatchSize:
			log.Printf("config: MQTT_BATCH_SIZE (%d) below minimum (%d), clamping to min", parsed, minBatchSize)
			configuration.Collector.BatchSize = minBatchSize
		case parsed > maxBatchSize:
			log.Printf("config: MQTT_BATCH_SIZE (%d) above maximum (%d), clamping to max", parsed, maxBatchSize)
			configuration.Collector.BatchSize = maxBatchSize
		default:
			configuration.Collector.BatchSize = parsed
		}
	}
	configuration.Collector.FlushInterval = ParseDurationEnv("MQTT_FLUSH_INTERVAL", configuration.Collector.FlushInterval)
	return nil
}

// applyEnvironmentEnvVars normalizes ENVIRONMENT into "dev" or "prod".
// Valid inputs are "dev"/"development" and "prod"/"production"; other values error out.
func applyEnvironmentEnvVars(configuration *Config) error {
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "dev", "development":
			configuration.Environment = EnvironmentDevelopment
		case "prod", "production":
			configuration.Environment = EnvironmentProduction
		default:
			return errors.New("config: ENVIRONMENT must be 'dev' or 'prod'")
		}
	}
	return nil
}

func readSecretFile(path string) ([]byte, error) {
	absPath, err := sanitizeAbsolutePath(path)
	if err != nil {
		return nil, err
	}
	return readFileWithinRoot(absPath)
}

func sanitizeAbsolutePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("config: empty file path")
	}
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("config: resolve path %q: %w", path, err)
	}
	return abs, nil
}

func readFileWithinRoot(absPath string) ([]byte, error) {
	f, err := os.OpenInRoot(filepath.Dir(absPath), filepath.Base(absPath))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("config: error closing file: %v", err)
		}
	}()
	return io.ReadAll(f)
}

var validClientAuthModes = map[string]bool{
	"none":    true,
	"request": true,
	"require": true,
}

// validateTLS checks a server TLS block whose variables share prefix.
func validateTLS(prefix string, enabled bool, certFile, keyFile, caFile, clientAuth string) error {
	if !enabled {
		return nil
	}
	if certFile == "" {
		return fmt.Errorf("config: %s_TLS_CERT_FILE is required when %s_TLS_ENABLED=true", prefix, prefix)
	}
	if keyFile == "" {
		return fmt.Errorf("config: %s_TLS_KEY_FILE is required when %s_TLS_ENABLED=true", prefix, prefix)
	}
	if !validClientAuthModes[clientAuth] {
		return fmt.Errorf("config: %s_TLS_CLIENT_AUTH must be 'none', 'request', or 'require', got %q", prefix, clientAuth)
	}
	if clientAuth == "require" && caFile == "" {
		return fmt.Errorf("config: %s_TLS_CA_FILE is required when %s_TLS_CLIENT_AUTH=require", prefix, prefix)
	}
	return nil
}

// Validate checks that the configuration is complete and consistent. The
// assessment parameters are resolved once here so that a bad override fails
// at startup rather than at the first run.
func (cfg *Config) Validate() error {
	a := cfg.Assessment

	if a.Selection == assess.SelectManual && a.Tests.Count() == 0 {
		return errors.New("config: ASSESS_TESTS is required when ASSESS_SELECTION=manual")
	}
	if a.Alpha <= 0 || a.Alpha >= 1 {
		return fmt.Errorf("config: ASSESS_ALPHA must be in (0, 1), got %g", a.Alpha)
	}
	switch a.InputFormat {
	case FormatASCII, FormatBinary:
	default:
		return fmt.Errorf("config: ASSESS_INPUT_FORMAT must be 'ascii' or 'binary', got %q", a.InputFormat)
	}
	if _, err := assess.BuildRunConfig(a.Options()); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if cfg.Environment != EnvironmentDevelopment && cfg.Environment != EnvironmentProduction {
		return errors.New("config: environment must be 'dev' or 'prod'")
	}

	if err := validateTLS("METRICS", cfg.Metrics.TLSEnabled, cfg.Metrics.TLSCertFile, cfg.Metrics.TLSKeyFile,
		cfg.Metrics.TLSCAFile, cfg.Metrics.TLSClientAuth); err != nil {
		return err
	}
	if err := validateTLS("API", cfg.API.TLSEnabled, cfg.API.TLSCertFile, cfg.API.TLSKeyFile,
		cfg.API.TLSCAFile, cfg.API.TLSClientAuth); err != nil {
		return err
	}

	// SECURITY: public HTTP without TLS is refused in production
	if cfg.API.Enabled && cfg.API.AllowPublic && !cfg.API.TLSEnabled {
		if cfg.IsProduction() {
			return errors.New("config: SECURITY: TLS is required when API_ALLOW_PUBLIC=true in production mode")
		}
		log.Printf("WARNING: Running public HTTP without TLS in development mode - this is insecure!")
	}

	if cfg.MQTT.Enabled {
		if cfg.MQTT.BrokerURL == "" {
			return errors.New("config: MQTT_BROKER_URL is required when MQTT_ENABLED=true")
		}
		if cfg.MQTT.TopicPrefix == "" {
			return errors.New("config: MQTT_TOPIC_PREFIX must not be empty")
		}
	}

	return nil
}

// IsProduction returns true if the application is running in production mode.
func (cfg *Config) IsProduction() bool {
	return cfg.Environment == EnvironmentProduction
}

// IsDevelopment returns true if the application is running in development mode.
func (cfg *Config) IsDevelopment() bool {
	return cfg.Environment == EnvironmentDevelopment
}

// String returns a human-readable representation of the configuration.
func (cfg *Config) String() string {
	return "Config{" +
		"Environment=" + cfg.Environment +
		", Mode=" + cfg.Assessment.Mode.String() +
		", Selection=" + cfg.Assessment.Selection.String() +
		", N=" + strconv.Itoa(cfg.Assessment.SequenceBits) +
		", Sequences=" + strconv.Itoa(cfg.Assessment.NumSequences) +
		", Source=" + cfg.Assessment.Source +
		"}"
}

// cleanEnvValue removes inline comments and trims whitespace from environment variable values.
// This handles systemd EnvironmentFile format where inline comments are included in the value.
// Example: "127.0.0.1:8080 # bind address" becomes "127.0.0.1:8080"
func cleanEnvValue(value string) string {
	cleaned := strings.TrimSpace(value)
	if idx := strings.Index(cleaned, "#"); idx >= 0 {
		cleaned = strings.TrimSpace(cleaned[:idx])
	}
	return cleaned
}

// GetEnvDefault retrieves an environment variable or returns a fallback value.
// Empty or whitespace-only values are treated as unset.
// Inline comments (e.g., "value # comment") are stripped.
func GetEnvDefault(key string, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		if cleaned := cleanEnvValue(value); cleaned != "" {
			return cleaned
		}
	}
	return fallback
}

// ParsePositiveEnvInt reads an integer environment variable with validation.
// Returns the fallback if the variable is unset, invalid, or non-positive.
// Inline comments (e.g., "512 # comment") are stripped.
func ParsePositiveEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	cleaned := cleanEnvValue(value)
	if cleaned == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(cleaned)
	if err != nil {
		log.Printf("config: %s invalid (%q), using fallback %d", key, value, fallback)
		return fallback
	}
	if parsed <= 0 {
		log.Printf("config: %s non-positive (%d), using fallback %d", key, parsed, fallback)
		return fallback
	}
	return parsed
}

// ParseDurationEnv reads a duration environment variable with validation.
// Values must include a unit suffix (e.g., "500ms", "30s", "5m").
// Returns the fallback if the variable is unset, invalid, or negative.
func ParseDurationEnv(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	cleaned := cleanEnvValue(value)
	if cleaned == "" {
		return fallback
	}
	if !strings.ContainsAny(strings.ToLower(cleaned), "abcdefghijklmnopqrstuvwxyz") {
		log.Printf("config: %s missing duration unit (%q), using fallback %s", key, value, fallback)
		return fallback
	}
	parsed, err := time.ParseDuration(cleaned)
	if err != nil {
		log.Printf("config: %s invalid (%q), using fallback %s", key, value, fallback)
		return fallback
	}
	if parsed < 0 {
		log.Printf("config: %s negative (%s), using fallback %s", key, parsed, fallback)
		return fallback
	}
	return parsed
}

// ParseBoolEnv interprets typical boolean environment values (true/false, 1/0, yes/no).
// Inline comments (e.g., "true # enable feature") are stripped.
func ParseBoolEnv(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	cleaned := cleanEnvValue(value)
	if cleaned == "" {
		return fallback
	}
	switch strings.ToLower(cleaned) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		log.Printf("config: %s has unrecognised boolean value %q, using fallback %v", key, value, fallback)
		return fallback
	}
}
