package service

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/rs/cors"
)

type HealthzServer struct {
	log      log.Logger
	server   *http.Server
	listener net.Listener
}

// Listen binds addr. Serving starts with Serve.
func (h *HealthzServer) Listen(addr string) error {
	hdlr := http.NewServeMux()
	hdlr.HandleFunc("/healthz", h.Handle)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	h.listener = ln
	h.server = &http.Server{
		Handler:           c.Handler(hdlr),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

func (h *HealthzServer) Serve() error {
	return h.server.Serve(h.listener)
}

// Addr returns the bound address, nil before Listen.
func (h *HealthzServer) Addr() net.Addr {
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

func (h *HealthzServer) Shutdown(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

func (h *HealthzServer) Handle(w http.ResponseWriter, r *http.Request) {
	h.log.Debug("Received health check request", "path", r.URL.Path)
	w.Write([]byte("OK")) //nolint:errcheck
}
