package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"system-insight/internal/agent/version"
)

type probeResponse struct {
	Status  string           `json:"status"`
	Health  map[string]any   `json:"health"`
	Version version.Response `json:"version"`
}

func (a *Agent) runProbeListener(ctx context.Context) error {
	addr := strings.TrimSpace(a.cfg.ProbeListenAddr)
	if addr == "" {
		return fmt.Errorf("empty probe listen address")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen probe endpoint %s: %w", addr, err)
	}
	a.logger.Info("probe endpoint listening", "addr", ln.Addr().String())
	return a.serveProbe(ctx, ln)
}

// serveProbe answers every connection with one JSON line and closes it.
func (a *Agent) serveProbe(ctx context.Context, ln net.Listener) error {
	defer func() { _ = ln.Close() }()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, acceptErr := ln.Accept()
		if acceptErr != nil {
			if ctx.Err() != nil || errors.Is(acceptErr, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(acceptErr, &ne) && ne.Timeout() {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return fmt.Errorf("accept probe endpoint %s: %w", ln.Addr(), acceptErr)
		}

		_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
		_, _ = conn.Write(a.probePayload())
		_ = conn.Close()
	}
}

func (a *Agent) probePayload() []byte {
	resp := probeResponse{
		Status:  "ok",
		Health:  a.health.Snapshot(),
		Version: version.Get(a.cfg, a.collector.Mode().String()),
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return []byte(`{"status":"error"}` + "\n")
	}
	return append(data, '\n')
}
