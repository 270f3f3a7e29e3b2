package agent

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"
)

func (a *Agent) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.scheduler.Run(gctx)
	})
	if strings.TrimSpace(a.cfg.ProbeListenAddr) != "" {
		g.Go(func() error {
			return a.runProbeListener(gctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *Agent) shutdown(ctx context.Context) {
	if err := a.sink.Close(ctx); err != nil {
		a.logger.Warn("stream sink close failed", "error", err)
	}
	a.health.SetStreamConnected(false)
	if err := a.collector.Close(); err != nil {
		a.logger.Warn("collector close failed", "error", err)
	}
	a.logger.Debug("agent health", "snapshot", a.health.Snapshot())
}
