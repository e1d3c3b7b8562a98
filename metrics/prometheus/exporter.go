package prometheus

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/playht/playht-go-sdk/logger"
)

const (
	readHeaderTimeout = 10 * time.Second
	stopTimeout       = 5 * time.Second
)

// Exporter serves the client's collectors at /metrics and a liveness check
// at /healthz.
type Exporter struct {
	addr string
	reg  *prometheus.Registry

	mu  sync.Mutex
	srv *http.Server
	ln  net.Listener
}

// ExporterOption configures an Exporter.
type ExporterOption func(*Exporter)

// WithRegistry serves reg instead of a private registry holding the client
// collectors plus Go runtime and process collectors.
func WithRegistry(reg *prometheus.Registry) ExporterOption {
	return func(e *Exporter) { e.reg = reg }
}

// NewExporter prepares an exporter for addr. Nothing listens until Start.
func NewExporter(addr string, opts ...ExporterOption) *Exporter {
	e := &Exporter{addr: addr}
	for _, opt := range opts {
		opt(e)
	}
	if e.reg == nil {
		e.reg = prometheus.NewRegistry()
		e.reg.MustRegister(allMetrics...)
		e.reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return e
}

func (e *Exporter) Registry() *prometheus.Registry { return e.reg }

// Handler serves the registry in the text or OpenMetrics format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (e *Exporter) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", e.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Start listens on the configured address and serves until ctx ends or
// Shutdown runs. Calling it again returns the address already bound.
func (e *Exporter) Start(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.srv != nil {
		return e.ln.Addr().String(), nil
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", e.addr)
	if err != nil {
		return "", err
	}
	srv := &http.Server{Handler: e.routes(), ReadHeaderTimeout: readHeaderTimeout}
	e.srv, e.ln = srv, ln
	bound := ln.Addr().String()

	go func() {
		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics exporter stopped", "addr", bound, "error", err)
		}
	}()
	stop := context.AfterFunc(ctx, func() {
		sctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		_ = e.Shutdown(sctx)
	})
	srv.RegisterOnShutdown(func() { stop() })
	return bound, nil
}

// Shutdown stops serving. It is safe to call more than once.
func (e *Exporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	srv := e.srv
	e.srv, e.ln = nil, nil
	e.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
