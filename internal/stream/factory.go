package stream

import (
	"crypto/tls"
	"log/slog"

	"system-insight/internal/config"
)

func NewSinkFromConfig(cfg config.AgentConfig, tlsCfg *tls.Config, sessionID string, logger *slog.Logger) (Sink, error) {
	switch cfg.StreamMode {
	case config.StreamModeWebSocket:
		return NewWebSocketClient(cfg.WSURL, cfg.Token, sessionID, tlsCfg, cfg.SendTimeout, cfg.SendTimeout, logger), nil
	default:
		return NewGRPCClient(cfg.Target, tlsCfg, cfg.Token, sessionID, logger), nil
	}
}
