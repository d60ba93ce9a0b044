// Package server serves local indexes over the HTTP/JSON protocol spoken by
// package remote, so a Service on a remote backend can talk to a vecsearch
// process as it would to a hosted index.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hupe1980/vecsearch"
	"github.com/hupe1980/vecsearch/backend/local"
	"github.com/hupe1980/vecsearch/backend/remote"
	"github.com/hupe1980/vecsearch/distance"
	"github.com/hupe1980/vecsearch/resource"
)

// ErrAlreadyExists is returned by CreateIndex for a taken name.
var ErrAlreadyExists = errors.New("index already exists")

// Options configures the Server.
type Options struct {
	// APIKey is required in the Api-Key header when non-empty.
	APIKey string

	// Logger receives request logs. Defaults to a discarding logger.
	Logger *slog.Logger

	// RequestTimeout bounds a request once admitted.
	RequestTimeout time.Duration

	// MaxInFlight bounds concurrently served requests.
	MaxInFlight int

	// MaxBodyBytes bounds a request body, before and after decompression.
	MaxBodyBytes int64

	// BodyMemoryLimit bounds the body bytes of all admitted requests
	// (0 disables the limit).
	BodyMemoryLimit int64

	// RequestsPerSecond limits admitted requests (0 disables the limit).
	RequestsPerSecond float64

	// AdmissionTimeout bounds the wait for a request slot before the server
	// answers 503.
	AdmissionTimeout time.Duration

	// ServiceOptions configure the Service of every index.
	ServiceOptions []vecsearch.Option
}

// DefaultOptions contains the default server configuration.
var DefaultOptions = Options{
	RequestTimeout:   30 * time.Second,
	MaxInFlight:      64,
	MaxBodyBytes:     32 << 20,
	AdmissionTimeout: time.Second,
}

type hostedIndex struct {
	svc    *vecsearch.Service
	metric distance.Metric
}

// Server hosts named in-process indexes.
type Server struct {
	opts   Options
	logger *slog.Logger
	ctrl   *resource.Controller

	mu      sync.RWMutex
	indexes map[string]*hostedIndex
}

// New creates a server without indexes.
func New(optFns ...func(o *Options)) *Server {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultOptions.MaxBodyBytes
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = DefaultOptions.MaxInFlight
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultOptions.RequestTimeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Server{
		opts:   opts,
		logger: logger.With("component", "server"),
		ctrl: resource.NewController(resource.Config{
			MemoryLimitBytes:  opts.BodyMemoryLimit,
			MaxInFlight:       int64(opts.MaxInFlight),
			RequestsPerSecond: opts.RequestsPerSecond,
		}),
		indexes: make(map[string]*hostedIndex),
	}
}

// CreateIndex adds an empty index.
func (s *Server) CreateIndex(name string, dimension int, metric distance.Metric) (remote.IndexDescription, error) {
	if name == "" {
		return remote.IndexDescription{}, errors.New("index name must not be empty")
	}

	b, err := local.New(dimension, metric, func(o *local.Options) { o.Logger = s.logger })
	if err != nil {
		return remote.IndexDescription{}, err
	}
	svc, err := vecsearch.New(b, s.serviceOptions(name)...)
	if err != nil {
		return remote.IndexDescription{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.indexes[name]; ok {
		_ = svc.Close()
		return remote.IndexDescription{}, fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	}
	s.indexes[name] = &hostedIndex{svc: svc, metric: metric}
	s.logger.Info("index created", "index", name, "dimension", dimension, "metric", metric)
	return remote.IndexDescription{Name: name, Dimension: dimension, Metric: metric}, nil
}

func (s *Server) serviceOptions(name string) []vecsearch.Option {
	opts := []vecsearch.Option{
		vecsearch.WithLogger(vecsearch.NewLogger(s.logger.With("index", name).Handler())),
	}
	return append(opts, s.opts.ServiceOptions...)
}

func (s *Server) lookup(name string) (*hostedIndex, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.indexes[name]
	return idx, ok
}

// Service returns the service of the named index.
func (s *Server) Service(name string) (*vecsearch.Service, bool) {
	idx, ok := s.lookup(name)
	if !ok {
		return nil, false
	}
	return idx.svc, true
}

// Indexes returns the index names in order.
func (s *Server) Indexes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.indexes))
	for name := range s.indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handler returns the HTTP handler of the protocol.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.admit)
		r.Use(s.decompress)
		r.Use(middleware.Timeout(s.opts.RequestTimeout))
		r.Use(middleware.Compress(5))

		r.Post("/indexes", s.handleCreateIndex)
		r.Route("/indexes/{name}", func(r chi.Router) {
			r.Get("/", s.handleDescribeIndex)
			r.Post("/vectors/upsert", s.handleUpsert)
			r.Post("/query", s.handleQuery)
			r.Post("/vectors/delete", s.handleDelete)
		})
	})
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.RequestTimeout+time.Second)
	defer cancel()
	s.logger.Info("shutting down server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close closes every index.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for name, idx := range s.indexes {
		if err := idx.svc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close index %q: %w", name, err))
		}
		delete(s.indexes, name)
	}
	return errors.Join(errs...)
}
