package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"system-insight/internal/model"
	"system-insight/internal/stream"
)

const wsWriteTimeout = 5 * time.Second

// WSIngest accepts report envelopes over a websocket and answers each one
// with an ack envelope.
type WSIngest struct {
	logger   *slog.Logger
	service  *MetricsService
	token    string
	upgrader websocket.Upgrader
}

func NewWSIngest(service *MetricsService, token string, logger *slog.Logger) *WSIngest {
	return &WSIngest{
		logger:  logger,
		service: service,
		token:   token,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (w *WSIngest) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	if w.token != "" && !bearerMatches(req.Header.Values("Authorization"), w.token) {
		http.Error(rw, ErrUnauthorized.Error(), http.StatusUnauthorized)
		return
	}
	conn, err := w.upgrader.Upgrade(rw, req, nil)
	if err != nil {
		w.logger.Warn("websocket upgrade failed", "remote", req.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(1 << 20)

	session := req.Header.Get(stream.SessionHeader)
	w.logger.Info("websocket agent connected", "remote", req.RemoteAddr, "session", session)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				w.logger.Warn("websocket read failed", "session", session, "error", err)
			}
			return
		}

		var ack model.ReportAck
		report, err := stream.DecodeReport(data)
		if err != nil {
			ack = model.ReportAck{OK: false, Message: err.Error()}
		} else {
			ack, _ = w.service.Accept(report, session)
		}

		payload, err := stream.EncodeEnvelope(stream.NewAckEnvelope(report.HostID, ack, time.Now()))
		if err != nil {
			w.logger.Error("encode ack failed", "error", err)
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			w.logger.Warn("websocket write failed", "session", session, "error", err)
			return
		}
	}
}
