package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"system-insight/internal/agent/version"
	"system-insight/internal/collector"
	"system-insight/internal/config"
	"system-insight/internal/lifecycle"
	"system-insight/internal/model"
	"system-insight/internal/stream"
)

type Agent struct {
	cfg       config.AgentConfig
	logger    *slog.Logger
	sessionID string
	collector *collector.SampleCollector
	scheduler *collector.Scheduler
	sink      stream.Sink
	health    *HealthStatus
}

func New(cfg config.AgentConfig, logger *slog.Logger) (*Agent, error) {
	tlsCfg, err := cfg.TLSConfig()
	if err != nil {
		return nil, fmt.Errorf("tls config: %w", err)
	}

	sessionID := uuid.NewString()
	logger = logger.With("host_id", cfg.HostID, "session", sessionID)

	sink, err := stream.NewSinkFromConfig(cfg, tlsCfg, sessionID, logger)
	if err != nil {
		return nil, fmt.Errorf("stream sink: %w", err)
	}

	sc := collector.NewSampleCollector(collector.Options{
		UseShared:         cfg.UseMmap,
		CPUDevicePath:     cfg.CPUDevicePath,
		SoftirqDevicePath: cfg.SoftirqDevicePath,
		ProcRoot:          cfg.ProcRoot,
	}, logger)

	health := NewHealthStatus()
	health.SetMode(sc.Mode().String())
	wrappedSink := &healthSink{sink: sink, health: health}

	scheduler := collector.NewScheduler(logger, sc, wrappedSink, collector.SchedulerOptions{
		HostID:           cfg.HostID,
		CollectorVersion: version.CollectorVersion(),
		Interval:         cfg.CollectionInterval,
		SendTimeout:      cfg.SendTimeout,
		ErrorBackoffMax:  cfg.ErrorBackoffMax,
	})

	return &Agent{
		cfg:       cfg,
		logger:    logger,
		sessionID: sessionID,
		collector: sc,
		scheduler: scheduler,
		sink:      wrappedSink,
		health:    health,
	}, nil
}

// Run blocks until ctx is canceled, a termination signal arrives or a
// component fails.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("agent configured",
		"target", a.cfg.Target,
		"stream_mode", a.cfg.StreamMode,
		"collection_mode", a.collector.Mode().String(),
		"interval", a.cfg.CollectionInterval,
		"version", version.AgentVersion,
	)
	return lifecycle.Execute(ctx, lifecycle.Process{
		Name:            "system-insight agent",
		Logger:          a.logger,
		ShutdownTimeout: a.cfg.ShutdownTimeout,
		Run:             a.run,
		Shutdown:        a.shutdown,
	})
}

func (a *Agent) Health() *HealthStatus { return a.health }

type healthSink struct {
	sink   stream.Sink
	health *HealthStatus
}

func (s *healthSink) SendReport(ctx context.Context, report model.MetricsReport) (model.ReportAck, error) {
	ack, err := s.sink.SendReport(ctx, report)
	if err != nil {
		s.health.SetStreamConnected(false)
		s.health.MarkFailure()
		return ack, err
	}
	s.health.SetStreamConnected(true)
	if !ack.OK {
		s.health.MarkFailure()
		return ack, nil
	}
	s.health.MarkReport(time.Now(), len(report.Samples))
	return ack, nil
}

func (s *healthSink) Close(ctx context.Context) error {
	return s.sink.Close(ctx)
}
