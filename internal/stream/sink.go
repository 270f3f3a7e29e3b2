package stream

import (
	"context"

	"system-insight/internal/model"
)

// Sink delivers one report per collection cycle to the collection point.
// A failed send is not retried; the next cycle carries fresh samples.
type Sink interface {
	SendReport(ctx context.Context, report model.MetricsReport) (model.ReportAck, error)
	Close(ctx context.Context) error
}

const (
	// SessionHeader carries the agent session id on every transport.
	SessionHeader = "x-session-id"
	// AuthorizationHeader carries "Bearer <token>" when a token is configured.
	AuthorizationHeader = "authorization"
)
