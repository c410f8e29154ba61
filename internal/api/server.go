// Package api serves the assessment suite over HTTP. A client posts a bit
// stream, the server splits it into sequences, runs the resolved test set on
// each and answers with per-test p-values and verdicts.
package api

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"rand-assess/internal/assess"
	"rand-assess/internal/clock"
	"rand-assess/internal/tlsconfig"
)

const (
	defaultAddress         = "127.0.0.1:8081"
	defaultShutdownTimeout = 5 * time.Second
	defaultIdleTimeout     = 30 * time.Second
	defaultReadTimeout     = 30 * time.Second
	defaultWriteTimeout    = 5 * time.Minute
	defaultRateLimitRPS    = 5
	defaultRateLimitBurst  = 5
	defaultMaxBodyBytes    = 16 << 20
	defaultMinBits         = 1000000
	baseURLV1              = "/api/v1"
)

// Settings configures a Server. Zero values select the defaults.
type Settings struct {
	Addr           string
	AllowPublic    bool
	RateLimitRPS   int
	RateLimitBurst int
	MaxBodyBytes   int
	MinBits        int
	Alpha          float64
	// Lengths are the block lengths used unless a request overrides them.
	Lengths assess.BlockLengths
}

// Option customizes a Server.
type Option func(*Server)

// WithClock injects the clock used for rate limiting and run timings.
func WithClock(clockSource clock.Clock) Option {
	return func(s *Server) {
		if clockSource != nil {
			s.clock = clockSource
		}
	}
}

// Server is the HTTP front end of the assessment suite.
type Server struct {
	settings        Settings
	suite           assess.Suite
	server          *http.Server
	listener        net.Listener
	shutdownTimeout time.Duration
	clock           clock.Clock
	rateLimiter     *tokenBucket
}

// NewServer builds a Server bound to settings.Addr. Unless AllowPublic is
// set the address must be loopback. Endpoints:
//   - POST /api/v1/assess runs the suite on the request body.
//   - GET /api/v1/tests lists the test identifiers and their parameters.
//   - GET /api/v1/health answers "OK".
func NewServer(settings Settings, suite assess.Suite, opts ...Option) (*Server, error) {
	if suite == nil {
		return nil, errors.New("api: nil test suite")
	}
	if settings.RateLimitRPS <= 0 {
		settings.RateLimitRPS = defaultRateLimitRPS
	}
	if settings.RateLimitBurst <= 0 {
		settings.RateLimitBurst = defaultRateLimitBurst
	}
	if settings.MaxBodyBytes <= 0 {
		settings.MaxBodyBytes = defaultMaxBodyBytes
	}
	if settings.MinBits <= 0 {
		settings.MinBits = defaultMinBits
	}
	if settings.Lengths == (assess.BlockLengths{}) {
		settings.Lengths = assess.DefaultBlockLengths()
	}

	addr, err := enforceLoopbackAddr(settings.Addr, settings.AllowPublic)
	if err != nil {
		return nil, err
	}
	settings.Addr = addr

	s := &Server{
		settings:        settings,
		suite:           suite,
		shutdownTimeout: defaultShutdownTimeout,
		clock:           clock.RealClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.rateLimiter = newTokenBucket(float64(settings.RateLimitRPS), float64(settings.RateLimitBurst), s.clock)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       defaultReadTimeout,
		WriteTimeout:      defaultWriteTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}

	log.Printf("api: rate limiter configured (rps=%d, burst=%d)", settings.RateLimitRPS, settings.RateLimitBurst)
	return s, nil
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(baseURLV1+"/assess", s.handleAssess)
	mux.HandleFunc(baseURLV1+"/tests", s.handleTests)
	mux.HandleFunc(baseURLV1+"/health", handleHealth)
	return mux
}

// Addr returns the bound address once started, or the configured one.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.settings.Addr
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("api: listen: %w", err)
	}
	s.serve(listener)
	log.Printf("api: listening on %s", listener.Addr())
	return nil
}

// StartTLS begins listening for HTTPS requests. caFile, when non-empty,
// verifies client certificates according to clientAuth.
func (s *Server) StartTLS(certFile, keyFile, caFile string, clientAuth tls.ClientAuthType) error {
	tlsConfig, err := tlsconfig.Server(certFile, keyFile, caFile, clientAuth)
	if err != nil {
		return fmt.Errorf("api: configure TLS: %w", err)
	}
	s.server.TLSConfig = tlsConfig

	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("api: listen: %w", err)
	}
	s.serve(tls.NewListener(listener, tlsConfig))
	log.Printf("api: listening on %s (TLS enabled)", listener.Addr())
	return nil
}

func (s *Server) serve(listener net.Listener) {
	s.listener = listener
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("api: serve error: %v", err)
		}
	}()
}

// Shutdown gracefully stops the server. A nil ctx waits up to the default
// shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
	}
	err := s.server.Shutdown(ctx)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// enforceLoopbackAddr validates that addr resolves to a loopback interface.
// With allowPublic, other addresses are accepted with a warning log.
func enforceLoopbackAddr(addr string, allowPublic bool) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		addr = defaultAddress
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("api: invalid address %q: %w", addr, err)
	}
	if host == "" {
		return "", errors.New("api: host must be specified")
	}
	if strings.EqualFold(host, "localhost") {
		return net.JoinHostPort("localhost", port), nil
	}

	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		if !allowPublic {
			return "", fmt.Errorf("api: host %q must be loopback", host)
		}
		log.Printf("api: API_ALLOW_PUBLIC=true, binding to %s", addr)
		if ip == nil {
			return addr, nil
		}
	}
	return net.JoinHostPort(ip.String(), port), nil
}

func handleHealth(response http.ResponseWriter, _ *http.Request) {
	setNoStoreHeaders(response)
	response.Header().Set("Content-Type", "text/plain; charset=utf-8")
	response.WriteHeader(http.StatusOK)
	_, _ = response.Write([]byte("OK"))
}

func setNoStoreHeaders(response http.ResponseWriter) {
	response.Header().Set("Cache-Control", "no-store")
	response.Header().Set("Pragma", "no-cache")
}
