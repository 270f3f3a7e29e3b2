package exporter

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"system-insight/internal/model"
)

// Snapshotter is the read side of the metrics repository.
type Snapshotter interface {
	Snapshot() []model.MetricsReport
}

type ResponderOptions struct {
	// ConnTimeout bounds the time spent on one connection. Zero disables it,
	// in which case a stalled client holds up the accept loop.
	ConnTimeout time.Duration
}

const (
	drainTimeout  = time.Second
	maxHeadBytes  = 16 << 10
	acceptBackoff = 100 * time.Millisecond
)

// ExpositionResponder serves the latest snapshot to any client that connects.
// Connections are handled one at a time on a single goroutine; the request
// is never parsed.
type ExpositionResponder struct {
	logger      *slog.Logger
	source      Snapshotter
	addr        string
	connTimeout time.Duration

	mu   sync.Mutex
	ln   net.Listener
	done chan struct{}
}

func NewExpositionResponder(source Snapshotter, addr string, opts ResponderOptions, logger *slog.Logger) *ExpositionResponder {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpositionResponder{
		logger:      logger,
		source:      source,
		addr:        addr,
		connTimeout: opts.ConnTimeout,
	}
}

// Start binds the listener and spawns the serving loop. It is a no-op when
// already serving.
func (r *ExpositionResponder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ln != nil {
		return nil
	}

	ln, err := net.Listen("tcp", r.addr)
	if err != nil {
		return fmt.Errorf("listen exposition endpoint %s: %w", r.addr, err)
	}
	r.ln = ln
	r.done = make(chan struct{})
	r.logger.Info("exposition endpoint listening", "addr", ln.Addr().String())

	go r.serve(ln, r.done)
	return nil
}

// Stop closes the listener, which unblocks Accept, and waits for the serving
// loop to return. It is a no-op when stopped.
func (r *ExpositionResponder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ln == nil {
		return
	}
	_ = r.ln.Close()
	<-r.done
	r.ln = nil
	r.done = nil
	r.logger.Info("exposition endpoint stopped", "addr", r.addr)
}

// Addr is the bound address, or nil when stopped.
func (r *ExpositionResponder) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ln == nil {
		return nil
	}
	return r.ln.Addr()
}

func (r *ExpositionResponder) Serving() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ln != nil
}

func (r *ExpositionResponder) serve(ln net.Listener, done chan struct{}) {
	defer close(done)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			r.logger.Warn("exposition accept failed", "error", err)
			time.Sleep(acceptBackoff)
			continue
		}
		r.handle(conn)
	}
}

func (r *ExpositionResponder) handle(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	if r.connTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(r.connTimeout))
	}
	drainRequestHead(conn, r.connTimeout)

	body := Render(r.source.Snapshot())
	if _, err := conn.Write(buildResponse(body)); err != nil {
		r.logger.Debug("exposition write failed", "remote", conn.RemoteAddr().String(), "error", err)
	}
}

// drainRequestHead consumes the request line and headers so closing the
// socket does not reset the connection under the client. Errors are ignored.
func drainRequestHead(conn net.Conn, limit time.Duration) {
	wait := drainTimeout
	if limit > 0 && limit < wait {
		wait = limit
	}
	_ = conn.SetReadDeadline(time.Now().Add(wait))

	br := bufio.NewReaderSize(conn, 4096)
	read := 0
	for read < maxHeadBytes {
		line, err := br.ReadSlice('\n')
		read += len(line)
		if err != nil {
			if errors.Is(err, bufio.ErrBufferFull) {
				continue
			}
			return
		}
		if len(bytes.TrimRight(line, "\r\n")) == 0 {
			return
		}
	}
}

func buildResponse(body []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(body) + 128)
	buf.WriteString("HTTP/1.1 200 OK\r\n")
	buf.WriteString("Content-Type: " + ContentType + "\r\n")
	buf.WriteString("Content-Length: " + strconv.Itoa(len(body)) + "\r\n")
	buf.WriteString("Connection: close\r\n\r\n")
	buf.Write(body)
	return buf.Bytes()
}
