package stream

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"system-insight/internal/model"
)

// WebSocketClient sends each report as a JSON envelope and waits for the
// matching ack frame on the same connection.
type WebSocketClient struct {
	mu sync.Mutex

	logger       *slog.Logger
	url          string
	token        string
	sessionID    string
	tlsConfig    *tls.Config
	writeTimeout time.Duration
	readTimeout  time.Duration
	conn         *websocket.Conn
}

func NewWebSocketClient(url, token, sessionID string, tlsCfg *tls.Config, writeTimeout, readTimeout time.Duration, logger *slog.Logger) *WebSocketClient {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	return &WebSocketClient{
		logger:       logger,
		url:          url,
		token:        token,
		sessionID:    sessionID,
		tlsConfig:    tlsCfg,
		writeTimeout: writeTimeout,
		readTimeout:  readTimeout,
	}
}

func (c *WebSocketClient) SendReport(ctx context.Context, report model.MetricsReport) (model.ReportAck, error) {
	payload, err := EncodeEnvelope(NewReportEnvelope(report, time.Now()))
	if err != nil {
		return model.ReportAck{}, fmt.Errorf("encode envelope: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureConnLocked(ctx); err != nil {
		return model.ReportAck{}, err
	}
	if err := c.writeLocked(payload); err != nil {
		c.logger.Warn("websocket write failed, reconnecting", "error", err)
		c.dropLocked()
		if err2 := c.ensureConnLocked(ctx); err2 != nil {
			return model.ReportAck{}, err2
		}
		if err2 := c.writeLocked(payload); err2 != nil {
			c.dropLocked()
			return model.ReportAck{}, fmt.Errorf("write envelope retry: %w", err2)
		}
	}

	_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		c.dropLocked()
		return model.ReportAck{}, fmt.Errorf("read ack: %w", err)
	}
	return DecodeAck(data)
}

func (c *WebSocketClient) Close(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	deadline := time.Now().Add(c.writeTimeout)
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"), deadline)
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *WebSocketClient) writeLocked(payload []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *WebSocketClient) dropLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *WebSocketClient) ensureConnLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	if c.sessionID != "" {
		h.Set(SessionHeader, c.sessionID)
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: c.writeTimeout,
		TLSClientConfig:  c.tlsConfig,
		Proxy:            http.ProxyFromEnvironment,
	}
	conn, _, err := dialer.DialContext(ctx, c.url, h)
	if err != nil {
		return fmt.Errorf("websocket dial %s: %w", c.url, err)
	}
	conn.SetReadLimit(1 << 20)
	c.conn = conn
	c.logger.Info("websocket transport connected", "url", c.url)
	return nil
}
