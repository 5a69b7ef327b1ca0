package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"docpipe/internal/analysis"
	"docpipe/internal/blobs"
	"docpipe/internal/metrics"
)

const (
	allowRemoteEnvKey = "DOCPIPE_ALLOW_REMOTE"
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 2 * time.Minute
	writeTimeout      = 2 * time.Minute
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 15 * time.Second

	DefaultMaxUploadBytes = 100 << 20 // 100 MiB
	multipartMemory       = 8 << 20   // 8 MiB
)

// Options carries the ambient dependencies shared by both daemons.
type Options struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	MaxUploadBytes int64
}

// Server wraps HTTP handlers for one docpipe daemon.
type Server struct {
	addr           string
	name           string
	blobs          *blobs.Service
	analysis       *analysis.Service
	logger         *slog.Logger
	metrics        *metrics.Metrics
	gatherer       prometheus.Gatherer
	maxUploadBytes int64
}

// NewBlobServer serves the blob store API.
func NewBlobServer(addr string, svc *blobs.Service, opts Options) *Server {
	s := newServer(addr, "blobd", opts)
	s.blobs = svc
	return s
}

// NewAnalysisServer serves the analysis API.
func NewAnalysisServer(addr string, svc *analysis.Service, opts Options) *Server {
	s := newServer(addr, "analyzerd", opts)
	s.analysis = svc
	return s
}

func newServer(addr, name string, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}
	return &Server{
		addr:           addr,
		name:           name,
		logger:         logger,
		metrics:        opts.Metrics,
		gatherer:       opts.Gatherer,
		maxUploadBytes: maxUpload,
	}
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.withRequestLogging(s.routes())
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.log().Info("starting server", "daemon", s.name, "addr", s.addr)
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.log().Info("shutting down server", "daemon", s.name)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAddr converts a base API URL into a listen address.
func ListenAddr(apiURL string) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("api url is required")
	}
	if u, err := url.Parse(apiURL); err == nil && u.Host != "" {
		host := u.Hostname()
		if !isAllowedListenHost(host) {
			return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
		}
		return u.Host, nil
	}

	host, _, err := net.SplitHostPort(apiURL)
	if err == nil && !isAllowedListenHost(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}

	return apiURL, nil
}

func isAllowedListenHost(host string) bool {
	if host == "" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true") {
		return true
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
