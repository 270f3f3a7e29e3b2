package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"system-insight/internal/config"
	"system-insight/internal/exporter"
	"system-insight/internal/stream"
)

// WSPath is where the websocket ingest endpoint is mounted.
const WSPath = "/ws/metrics"

// App wires the report ingest paths to the repository and serves the
// exposition endpoint from the same repository.
type App struct {
	cfg    config.ServerConfig
	logger *slog.Logger

	repo      *MetricsRepository
	service   *MetricsService
	grpc      *grpc.Server
	responder *exporter.ExpositionResponder
	ws        *http.Server

	mu     sync.Mutex
	grpcLn net.Listener
	wsLn   net.Listener
}

func NewApp(cfg config.ServerConfig, logger *slog.Logger) (*App, error) {
	tlsCfg, err := cfg.TLSConfig()
	if err != nil {
		return nil, fmt.Errorf("tls config: %w", err)
	}

	repo := NewMetricsRepository()
	service := NewMetricsService(repo, logger)

	opts := []grpc.ServerOption{
		grpc.ForceServerCodec(stream.JSONCodec{}),
		grpc.ChainUnaryInterceptor(TokenInterceptor(cfg.Token)),
	}
	if tlsCfg != nil {
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsCfg)))
	}
	gs := grpc.NewServer(opts...)
	gs.RegisterService(&ServiceDesc, service)

	a := &App{
		cfg:     cfg,
		logger:  logger,
		repo:    repo,
		service: service,
		grpc:    gs,
		responder: exporter.NewExpositionResponder(repo, cfg.ExporterAddr(), exporter.ResponderOptions{
			ConnTimeout: cfg.ExporterConnTimeout,
		}, logger),
	}
	if cfg.WSListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle(WSPath, NewWSIngest(service, cfg.Token, logger))
		a.ws = &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			TLSConfig:         tlsCfg,
		}
	}
	return a, nil
}

func (a *App) Repository() *MetricsRepository { return a.repo }

// Listen binds every endpoint. Run calls it when it has not been called yet.
func (a *App) Listen() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.grpcLn != nil {
		return nil
	}

	grpcLn, err := net.Listen("tcp", a.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen grpc %s: %w", a.cfg.ListenAddr, err)
	}
	if a.ws != nil {
		wsLn, err := net.Listen("tcp", a.cfg.WSListenAddr)
		if err != nil {
			_ = grpcLn.Close()
			return fmt.Errorf("listen websocket %s: %w", a.cfg.WSListenAddr, err)
		}
		a.wsLn = wsLn
	}
	if err := a.responder.Start(); err != nil {
		_ = grpcLn.Close()
		if a.wsLn != nil {
			_ = a.wsLn.Close()
			a.wsLn = nil
		}
		return err
	}
	a.grpcLn = grpcLn
	return nil
}

func (a *App) GRPCAddr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.grpcLn == nil {
		return nil
	}
	return a.grpcLn.Addr()
}

func (a *App) WSAddr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.wsLn == nil {
		return nil
	}
	return a.wsLn.Addr()
}

func (a *App) ExporterAddr() net.Addr { return a.responder.Addr() }

// Run serves until ctx is canceled or an endpoint fails, then stops every
// endpoint.
func (a *App) Run(ctx context.Context) error {
	if err := a.Listen(); err != nil {
		return err
	}
	a.mu.Lock()
	grpcLn, wsLn := a.grpcLn, a.wsLn
	a.mu.Unlock()

	a.logger.Info("server listening", "grpc", grpcLn.Addr().String(), "exporter", a.responder.Addr(), "websocket", a.cfg.WSListenAddr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.grpc.Serve(grpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})
	if wsLn != nil {
		g.Go(func() error {
			var err error
			if a.ws.TLSConfig != nil {
				err = a.ws.ServeTLS(wsLn, "", "")
			} else {
				err = a.ws.Serve(wsLn)
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("websocket serve: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		a.stop()
		return nil
	})
	return g.Wait()
}

// stop drains gRPC gracefully, falling back to a hard stop after the
// shutdown timeout.
func (a *App) stop() {
	a.responder.Stop()

	stopped := make(chan struct{})
	go func() {
		a.grpc.GracefulStop()
		close(stopped)
	}()
	timer := time.NewTimer(a.cfg.ShutdownTimeout)
	defer timer.Stop()
	select {
	case <-stopped:
	case <-timer.C:
		a.logger.Warn("grpc graceful stop timed out, forcing stop", "timeout", a.cfg.ShutdownTimeout)
		a.grpc.Stop()
		<-stopped
	}

	if a.ws != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := a.ws.Shutdown(ctx); err != nil {
			a.logger.Warn("websocket shutdown failed", "error", err)
			_ = a.ws.Close()
		}
	}
	a.logger.Info("server stopped", "hosts", a.repo.Len())
}
