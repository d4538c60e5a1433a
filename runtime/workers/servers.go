package workers

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"google.golang.org/grpc"
)

// HTTPServer serves the HTTP and WebSocket endpoints until the context is canceled.
type HTTPServer struct {
	log             *slog.Logger
	server          *http.Server
	shutdownTimeout time.Duration
}

func NewHTTPServer(log *slog.Logger, server *http.Server, shutdownTimeout time.Duration) HTTPServer {
	return HTTPServer{log: log, server: server, shutdownTimeout: shutdownTimeout}
}

func (w HTTPServer) Run(ctx context.Context) error {
	// Request contexts, hijacked WebSocket ones included, end with the worker.
	w.server.BaseContext = func(net.Listener) context.Context { return ctx }

	errCh := make(chan error, 1)
	go func() {
		w.log.Info("HTTP server listening", "address", w.server.Addr)
		errCh <- w.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.shutdownTimeout)
		defer cancel()
		if err := w.server.Shutdown(shutdownCtx); err != nil {
			w.log.Warn("HTTP server shutdown incomplete", "error", err)
		}
		return nil
	}
}

// GRPCServer serves the event stream until the context is canceled.
type GRPCServer struct {
	log             *slog.Logger
	server          *grpc.Server
	address         string
	shutdownTimeout time.Duration
}

func NewGRPCServer(log *slog.Logger, server *grpc.Server, address string, shutdownTimeout time.Duration) GRPCServer {
	return GRPCServer{log: log, server: server, address: address, shutdownTimeout: shutdownTimeout}
}

func (w GRPCServer) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", w.address)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		w.log.Info("gRPC server listening", "address", w.address)
		errCh <- w.server.Serve(listener)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		stopped := make(chan struct{})
		go func() {
			w.server.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(w.shutdownTimeout):
			// Streams are long-lived, force them closed.
			w.server.Stop()
		}
		return nil
	}
}
