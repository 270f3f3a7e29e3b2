package server

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"system-insight/internal/config"
	"system-insight/internal/model"
	"system-insight/internal/stream"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startApp(t *testing.T, mutate func(*config.ServerConfig)) *App {
	t.Helper()
	cfg := config.DefaultServer()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.ExporterListenAddr = "127.0.0.1:0"
	cfg.ShutdownTimeout = 2 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}

	app, err := NewApp(cfg, quietLogger())
	require.NoError(t, err)
	require.NoError(t, app.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return app
}

func sampleReport(host string) model.MetricsReport {
	return model.MetricsReport{
		HostID:           host,
		CollectorVersion: "system_insight_client/test",
		Samples: []model.MetricSample{
			{Name: "x", Value: 1.5, Labels: []model.Label{{Key: "core", Value: "0"}}},
		},
	}
}

func scrape(t *testing.T, addr net.Addr) string {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr.String(), 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("GET /metrics HTTP/1.1\r\nHost: test\r\n\r\n"))
	require.NoError(t, err)
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestGRPCReportReachesExposition(t *testing.T) {
	app := startApp(t, nil)

	client := stream.NewGRPCClient(app.GRPCAddr().String(), nil, "", "session-1", quietLogger())
	t.Cleanup(func() { _ = client.Close(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ack, err := client.SendReport(ctx, sampleReport("h1"))
	require.NoError(t, err)
	assert.Equal(t, model.ReportAck{OK: true, Message: "accepted"}, ack)

	assert.Equal(t, 1, app.Repository().Len())
	assert.Equal(t, "x{host=\"h1\",core=\"0\"} 1.5\n", scrape(t, app.ExporterAddr()))
}

func TestGRPCRejectsMissingHost(t *testing.T) {
	app := startApp(t, nil)

	client := stream.NewGRPCClient(app.GRPCAddr().String(), nil, "", "", quietLogger())
	t.Cleanup(func() { _ = client.Close(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := client.SendReport(ctx, sampleReport(""))
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Equal(t, 0, app.Repository().Len())
}

func TestGRPCTokenCheck(t *testing.T) {
	app := startApp(t, func(c *config.ServerConfig) { c.Token = "s3cret" })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	anon := stream.NewGRPCClient(app.GRPCAddr().String(), nil, "", "", quietLogger())
	t.Cleanup(func() { _ = anon.Close(context.Background()) })
	_, err := anon.SendReport(ctx, sampleReport("h1"))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	authed := stream.NewGRPCClient(app.GRPCAddr().String(), nil, "s3cret", "", quietLogger())
	t.Cleanup(func() { _ = authed.Close(context.Background()) })
	ack, err := authed.SendReport(ctx, sampleReport("h1"))
	require.NoError(t, err)
	assert.True(t, ack.OK)
}

func TestWebSocketIngest(t *testing.T) {
	app := startApp(t, func(c *config.ServerConfig) { c.WSListenAddr = "127.0.0.1:0" })
	url := "ws://" + app.WSAddr().String() + WSPath

	client := stream.NewWebSocketClient(url, "", "session-ws", nil, 2*time.Second, 2*time.Second, quietLogger())
	t.Cleanup(func() { _ = client.Close(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ack, err := client.SendReport(ctx, sampleReport("h2"))
	require.NoError(t, err)
	assert.True(t, ack.OK)

	ack, err = client.SendReport(ctx, sampleReport(""))
	require.NoError(t, err)
	assert.False(t, ack.OK)
	assert.Equal(t, ErrMissingHostID.Error(), ack.Message)

	snap := app.Repository().Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "h2", snap[0].HostID)
}

func TestWebSocketIngestRequiresToken(t *testing.T) {
	app := startApp(t, func(c *config.ServerConfig) {
		c.WSListenAddr = "127.0.0.1:0"
		c.Token = "s3cret"
	})
	url := "ws://" + app.WSAddr().String() + WSPath
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	anon := stream.NewWebSocketClient(url, "", "", nil, time.Second, time.Second, quietLogger())
	_, err := anon.SendReport(ctx, sampleReport("h1"))
	assert.Error(t, err)

	authed := stream.NewWebSocketClient(url, "s3cret", "", nil, time.Second, time.Second, quietLogger())
	t.Cleanup(func() { _ = authed.Close(context.Background()) })
	ack, err := authed.SendReport(ctx, sampleReport("h1"))
	require.NoError(t, err)
	assert.True(t, ack.OK)
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := config.DefaultServer()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.ExporterListenAddr = "127.0.0.1:0"
	app, err := NewApp(cfg, quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, app.Run(ctx))
	assert.Nil(t, app.ExporterAddr())
}
