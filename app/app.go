package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/flowgate/httpd/config"
	flowhttp "github.com/flowgate/httpd/core/http"
	"github.com/flowgate/httpd/core/loop"
	"github.com/flowgate/httpd/core/observability"
	"github.com/flowgate/httpd/core/pools"
	"github.com/flowgate/httpd/core/router"
)

// pooledWorkerPool starts the shared request-dispatch WorkerPool every
// core/loop.Worker submits parsed requests to. size <= 0 defaults to
// runtime.NumCPU() workers, matching pools.NewWorkerPool.
func pooledWorkerPool(size int) *pools.WorkerPool {
	return pools.NewWorkerPool(size)
}

// Supervisor is the Go-idiomatic replacement for the source's
// fork()-based master/worker process pair: it starts N core/loop.Worker
// goroutines, each its own SO_REUSEPORT listener/poller/pool, sharing
// one Router and FileServer, and tears them all down together on
// SIGINT/SIGTERM via context cancellation.
type Supervisor struct {
	cfg     *config.Config
	router  *router.Router
	files   flowhttp.FileServer
	metrics *observability.Registry

	metricsAddr string
	numWorkers  int
}

// New creates a Supervisor bound to cfg, with its own empty Router and
// Prometheus registry ready for route registration and request
// recording respectively.
func New(cfg *config.Config) *Supervisor {
	return &Supervisor{
		cfg:        cfg,
		router:     router.New(),
		metrics:    observability.NewRegistry(),
		numWorkers: runtime.NumCPU(),
	}
}

// Router returns the underlying router for route/middleware registration.
func (s *Supervisor) Router() *router.Router { return s.router }

// Metrics returns the Prometheus registry every worker records request
// and pool occupancy metrics into.
func (s *Supervisor) Metrics() *observability.Registry { return s.metrics }

// SetFileServer installs a static file server (core/sendfile.Server)
// handlers can reach via Context.ServeFile.
func (s *Supervisor) SetFileServer(fs flowhttp.FileServer) { s.files = fs }

// SetMetricsAddr starts a plain net/http listener exposing
// /internal/metrics on addr (e.g. ":9090") alongside the worker fleet.
// Left empty, no metrics endpoint is served.
func (s *Supervisor) SetMetricsAddr(addr string) { s.metricsAddr = addr }

// SetWorkerCount overrides the default (runtime.NumCPU()) number of
// SO_REUSEPORT worker goroutines started by Run.
func (s *Supervisor) SetWorkerCount(n int) {
	if n > 0 {
		s.numWorkers = n
	}
}

// Run starts the worker fleet and blocks until SIGINT/SIGTERM or a
// worker's fatal error, then cancels every worker's context and waits
// for them to unwind before returning.
func (s *Supervisor) Run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch s.cfg.Env {
	case "production":
		pools.OptimizeForHighThroughput()
	case "development":
		pools.OptimizeForLowLatency()
	default:
		pools.ApplyGCConfig(pools.DefaultGCConfig())
	}

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	log.Printf("httpd starting on %s [%s], %d workers (SO_REUSEPORT)", addr, s.cfg.Env, s.numWorkers)

	jobs := pooledWorkerPool(s.cfg.WorkerPoolSize)
	defer jobs.Close()

	s.router.Use(s.metrics.Middleware())

	g, gctx := errgroup.WithContext(ctx)

	if s.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/internal/metrics", s.metrics.Handler())
		metricsSrv := &http.Server{Addr: s.metricsAddr, Handler: mux}
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsSrv.Shutdown(shutdownCtx)
		})
		g.Go(func() error {
			log.Printf("httpd: metrics listening on %s (path /internal/metrics)", s.metricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	for i := 0; i < s.numWorkers; i++ {
		id := i
		w := loop.New(loop.Config{
			ID:             id,
			Addr:           addr,
			Router:         s.router,
			Files:          s.files,
			Jobs:           jobs,
			MaxConnections: s.cfg.WorkerConnections,
			ReclaimGrace:   s.cfg.ReclaimGrace,
			SendWorkers:    runtime.NumCPU(),
			SendCapacity:   0,
			Metrics:        s.metrics,
		})
		g.Go(func() error {
			return w.Run(gctx)
		})
	}

	err := g.Wait()
	if err != nil && gctx.Err() == nil {
		return err
	}
	log.Printf("httpd: shutdown complete")
	return nil
}

// ExitOnFatal is a convenience wrapper for cmd/httpd's main: log and
// exit non-zero rather than panicking on a startup failure.
func ExitOnFatal(err error) {
	if err == nil {
		return
	}
	log.Printf("fatal: %v", err)
	os.Exit(1)
}
