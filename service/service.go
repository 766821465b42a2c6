// Package service runs the healthz and metrics endpoints next to a
// conformance run.
package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-conformance/metrics"
)

const (
	HealthzHost = "0.0.0.0"
	HealthzPort = "8080"

	shutdownTimeout = 5 * time.Second
)

// Config holds configuration for creating a Service
type Config struct {
	HealthzAddr string
	MetricsAddr string
	Log         log.Logger
}

type Service struct {
	Healthz *HealthzServer
	Metrics *MetricsServer

	cfg      Config
	log      log.Logger
	stopOnce sync.Once
}

func New(cfg Config) *Service {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.HealthzAddr == "" {
		cfg.HealthzAddr = net.JoinHostPort(HealthzHost, HealthzPort)
	}
	return &Service{
		Healthz: &HealthzServer{log: cfg.Log},
		Metrics: &MetricsServer{},
		cfg:     cfg,
		log:     cfg.Log,
	}
}

// Start binds both endpoints and serves them in the background. Binding
// errors are returned; errors while serving are logged and counted.
func (s *Service) Start() error {
	s.log.Info("service starting")

	if err := s.Healthz.Listen(s.cfg.HealthzAddr); err != nil {
		return fmt.Errorf("failed to listen for healthz on %s: %w", s.cfg.HealthzAddr, err)
	}
	if err := s.Metrics.Listen(s.cfg.MetricsAddr); err != nil {
		_ = s.Healthz.listener.Close()
		return fmt.Errorf("failed to listen for metrics on %s: %w", s.cfg.MetricsAddr, err)
	}

	go func() {
		s.log.Info("starting healthz server", "addr", s.Healthz.Addr())
		if err := s.Healthz.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("error serving healthz", "err", err)
			metrics.RecordErrorDetails("error serving healthz", err)
		}
	}()

	go func() {
		s.log.Info("starting metrics server", "addr", s.Metrics.Addr())
		if err := s.Metrics.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("error serving metrics", "err", err)
			metrics.RecordErrorDetails("error serving metrics", err)
		}
	}()

	s.log.Info("service started")
	return nil
}

// Shutdown stops both servers. It is safe to call more than once.
func (s *Service) Shutdown() {
	s.stopOnce.Do(func() {
		s.log.Info("service shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		_ = s.Healthz.Shutdown(ctx)
		s.log.Info("healthz stopped")

		_ = s.Metrics.Shutdown(ctx)
		s.log.Info("metrics stopped")

		s.log.Info("service stopped")
	})
}
