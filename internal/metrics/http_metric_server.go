package metrics

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"rand-assess/internal/tlsconfig"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const baseURLV1 = "/api/v1"

// Server exposes the Prometheus registry at /api/v1/metrics and a liveness
// probe at /api/v1/health.
type Server struct {
	addr   string
	server *http.Server
}

// NewServer builds a metrics server for addr ("host:port"). It does not
// listen until Start or StartTLS is called.
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle(baseURLV1+"/metrics", promhttp.Handler())
	mux.HandleFunc(baseURLV1+"/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Printf("metrics: health write failed: %v", err)
		}
	})

	return &Server{
		addr: addr,
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// Handler returns the server's request multiplexer.
func (s *Server) Handler() http.Handler {
	if s.server == nil {
		return http.NotFoundHandler()
	}
	return s.server.Handler
}

// Start serves plain HTTP and blocks until Shutdown. A graceful shutdown
// returns nil.
func (s *Server) Start() error {
	if err := s.precheck(); err != nil {
		return err
	}
	log.Printf("metrics: listening on http://%s%s/metrics", s.addr, baseURLV1)
	return s.serve(s.server.ListenAndServe)
}

// StartTLS serves HTTPS using the given key pair. caFile may be empty; it is
// only needed when clientAuth verifies client certificates.
func (s *Server) StartTLS(certFile, keyFile, caFile string, clientAuth tls.ClientAuthType) error {
	if err := s.precheck(); err != nil {
		return err
	}

	cfg, err := tlsconfig.Server(certFile, keyFile, caFile, clientAuth)
	if err != nil {
		return fmt.Errorf("metrics: configure TLS: %w", err)
	}
	s.server.TLSConfig = cfg

	log.Printf("metrics: listening on https://%s%s/metrics (client auth %v)", s.addr, baseURLV1, clientAuth)
	return s.serve(func() error { return s.server.ListenAndServeTLS("", "") })
}

func (s *Server) precheck() error {
	if s.server == nil {
		return errors.New("metrics server not initialized")
	}
	if err := validateAddress(s.addr); err != nil {
		return fmt.Errorf("metrics: invalid address %q: %w", s.addr, err)
	}
	return nil
}

func (s *Server) serve(listen func() error) error {
	if err := listen(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics: server error: %w", err)
	}
	log.Println("metrics: server stopped")
	return nil
}

// Shutdown stops the server, waiting for in-flight scrapes until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics: shutdown error: %w", err)
	}
	return nil
}

// validateAddress rejects addresses that cannot be bound before the listener
// is created. Empty and wildcard hosts are accepted.
func validateAddress(addr string) error {
	if addr == "" {
		return errors.New("empty address")
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid host:port format: %w", err)
	}
	if port == "" {
		return errors.New("port is required")
	}
	switch host {
	case "", "0.0.0.0", "::":
		return nil
	}
	if net.ParseIP(host) != nil {
		return nil
	}
	if _, err := net.LookupHost(host); err != nil {
		return fmt.Errorf("cannot resolve host %q: %w", host, err)
	}
	return nil
}
