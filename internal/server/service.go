package server

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"system-insight/internal/model"
	"system-insight/internal/stream"
)

var (
	ErrMissingHostID = errors.New("host_id is required")
	ErrUnauthorized  = errors.New("unauthorized")
)

const ackAccepted = "accepted"

// MetricsServer is the handler type of the SystemInsightService descriptor.
type MetricsServer interface {
	SendMetrics(ctx context.Context, report *model.MetricsReport) (*model.ReportAck, error)
}

// MetricsService stores every accepted report in the repository. It backs
// both the gRPC method and the websocket ingest endpoint.
type MetricsService struct {
	logger *slog.Logger
	repo   *MetricsRepository
}

func NewMetricsService(repo *MetricsRepository, logger *slog.Logger) *MetricsService {
	return &MetricsService{logger: logger, repo: repo}
}

// Accept validates and stores one report.
func (s *MetricsService) Accept(report model.MetricsReport, session string) (model.ReportAck, error) {
	if strings.TrimSpace(report.HostID) == "" {
		return model.ReportAck{OK: false, Message: ErrMissingHostID.Error()}, ErrMissingHostID
	}
	s.repo.UpdateReport(report)
	s.logger.Debug("report accepted",
		"host_id", report.HostID,
		"collector_version", report.CollectorVersion,
		"samples", len(report.Samples),
		"session", session,
	)
	return model.ReportAck{OK: true, Message: ackAccepted}, nil
}

func (s *MetricsService) SendMetrics(ctx context.Context, report *model.MetricsReport) (*model.ReportAck, error) {
	if report == nil {
		return nil, status.Error(codes.InvalidArgument, "empty request")
	}
	ack, err := s.Accept(*report, sessionFromContext(ctx))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return &ack, nil
}

func sessionFromContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(stream.SessionHeader); len(v) > 0 {
		return v[0]
	}
	return ""
}

// TokenInterceptor rejects calls whose bearer token does not match. An empty
// token disables the check.
func TokenInterceptor(token string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if token == "" {
			return handler(ctx, req)
		}
		md, _ := metadata.FromIncomingContext(ctx)
		if !bearerMatches(md.Get(stream.AuthorizationHeader), token) {
			return nil, status.Error(codes.Unauthenticated, ErrUnauthorized.Error())
		}
		return handler(ctx, req)
	}
}

func bearerMatches(values []string, token string) bool {
	for _, v := range values {
		if strings.TrimSpace(strings.TrimPrefix(v, "Bearer ")) == token {
			return true
		}
	}
	return false
}

func sendMetricsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(model.MetricsReport)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MetricsServer).SendMetrics(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: stream.SendMetricsMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MetricsServer).SendMetrics(ctx, req.(*model.MetricsReport))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc registers SendMetrics without generated code; messages travel
// through stream.JSONCodec.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: stream.ServiceName,
	HandlerType: (*MetricsServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SendMetrics",
			Handler:    sendMetricsHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "system_insight.proto",
}
