// Package server exposes the trigger endpoint over HTTP, plus health and
// metrics. It is the process-level replacement for the function-invoke entry
// point: one POST carries one trigger.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/lifecycle"
	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/slogger"
)

// trigger is the internal interface for dispatching one trigger request.
type trigger interface {
	Handle(ctx context.Context, req lifecycle.Request) lifecycle.Response
}

// Config holds server settings.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// ShutdownGrace bounds how long in-flight triggers may run after a
	// shutdown signal.
	ShutdownGrace time.Duration
}

// Server is the HTTP front for the lifecycle controller.
type Server struct {
	controller trigger
	cfg        Config
	httpServer *http.Server
}

// New creates the server and wires its routes.
func New(controller trigger, cfg Config) *Server {
	if cfg.ShutdownGrace == 0 {
		cfg.ShutdownGrace = 30 * time.Second
	}

	s := &Server{controller: controller, cfg: cfg}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /trigger", s.handleTrigger)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Run serves until the context is cancelled, then drains in-flight triggers
// within the shutdown grace.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer.BaseContext = func(net.Listener) context.Context { return ctx }

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	slogger.L(ctx).Info("trigger server listening", "addr", s.cfg.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req lifecycle.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(ctx, w, http.StatusBadRequest, lifecycle.Response{
			Status: "error",
			Detail: "malformed trigger body: " + err.Error(),
		})
		return
	}

	resp := s.controller.Handle(ctx, req)

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusInternalServerError
		if errors.Is(actionError(req.Action), lifecycle.ErrUnknownAction) {
			status = http.StatusBadRequest
		}
	}
	writeJSON(ctx, w, status, resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

// actionError reports whether the action is outside the trigger vocabulary.
func actionError(a lifecycle.Action) error {
	switch a {
	case lifecycle.ActionStart, lifecycle.ActionStop, lifecycle.ActionStartAndProcess,
		lifecycle.ActionScaleUp, lifecycle.ActionScaleDown:
		return nil
	default:
		return lifecycle.ErrUnknownAction
	}
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slogger.L(ctx).Error("write response failed", "error", err)
	}
}
