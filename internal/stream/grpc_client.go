package stream

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"system-insight/internal/model"
)

// GRPCClient sends reports with the unary SendMetrics call.
type GRPCClient struct {
	mu sync.Mutex

	logger    *slog.Logger
	addr      string
	tlsConfig *tls.Config
	token     string
	sessionID string
	method    string
	conn      *grpc.ClientConn
}

func NewGRPCClient(addr string, tlsCfg *tls.Config, token, sessionID string, logger *slog.Logger) *GRPCClient {
	return &GRPCClient{
		logger:    logger,
		addr:      addr,
		tlsConfig: tlsCfg,
		token:     token,
		sessionID: sessionID,
		method:    SendMetricsMethod,
	}
}

func (c *GRPCClient) SendReport(ctx context.Context, report model.MetricsReport) (model.ReportAck, error) {
	conn, err := c.connection()
	if err != nil {
		return model.ReportAck{}, err
	}
	var ack model.ReportAck
	if err := conn.Invoke(c.decorateContext(ctx), c.method, &report, &ack); err != nil {
		return model.ReportAck{}, fmt.Errorf("send metrics to %s: %w", c.addr, err)
	}
	return ack, nil
}

func (c *GRPCClient) Close(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *GRPCClient) connection() (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn, nil
	}

	var creds credentials.TransportCredentials
	if c.tlsConfig != nil {
		creds = credentials.NewTLS(c.tlsConfig)
	} else {
		creds = insecure.NewCredentials()
	}

	conn, err := grpc.NewClient(
		c.addr,
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(JSONCodec{})),
	)
	if err != nil {
		return nil, fmt.Errorf("grpc client %s: %w", c.addr, err)
	}
	c.conn = conn
	c.logger.Info("grpc transport ready", "addr", c.addr)
	return conn, nil
}

func (c *GRPCClient) decorateContext(ctx context.Context) context.Context {
	pairs := make([]string, 0, 4)
	if c.token != "" {
		pairs = append(pairs, AuthorizationHeader, "Bearer "+c.token)
	}
	if c.sessionID != "" {
		pairs = append(pairs, SessionHeader, c.sessionID)
	}
	if len(pairs) == 0 {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, pairs...)
}
