package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jpillora/backoff"

	"system-insight/internal/model"
	"system-insight/internal/stream"
)

// ErrRejected is returned when the server answers a report with ok=false.
var ErrRejected = errors.New("report rejected")

// Source produces one cycle of samples.
type Source interface {
	Collect() []model.MetricSample
}

type SchedulerOptions struct {
	HostID           string
	CollectorVersion string
	Interval         time.Duration
	SendTimeout      time.Duration
	ErrorBackoffMin  time.Duration
	ErrorBackoffMax  time.Duration
}

// Scheduler runs the collect and send loop. A report that fails to send is
// dropped; the next cycle carries fresh samples.
type Scheduler struct {
	logger  *slog.Logger
	source  Source
	sink    stream.Sink
	opts    SchedulerOptions
	backoff *backoff.Backoff
}

func NewScheduler(logger *slog.Logger, source Source, sink stream.Sink, opts SchedulerOptions) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 5 * time.Second
	}
	if opts.ErrorBackoffMin <= 0 {
		opts.ErrorBackoffMin = 1500 * time.Millisecond
	}
	if opts.ErrorBackoffMax < opts.ErrorBackoffMin {
		opts.ErrorBackoffMax = opts.ErrorBackoffMin
	}
	return &Scheduler{
		logger: logger,
		source: source,
		sink:   sink,
		opts:   opts,
		backoff: &backoff.Backoff{
			Min:    opts.ErrorBackoffMin,
			Max:    opts.ErrorBackoffMax,
			Factor: 2,
			Jitter: true,
		},
	}
}

func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	if err := s.RunOnce(ctx); err != nil {
		s.logger.Warn("initial collect/send failed", "error", err)
		s.pause(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("collect/send failed", "error", err, "attempt", s.backoff.Attempt())
				s.pause(ctx)
			}
		}
	}
}

// RunOnce collects one cycle and sends it when it produced samples.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	samples := s.source.Collect()
	if len(samples) == 0 {
		s.logger.Debug("no samples this cycle")
		return nil
	}

	report := model.MetricsReport{
		HostID:           s.opts.HostID,
		CollectorVersion: s.opts.CollectorVersion,
		Samples:          samples,
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.opts.SendTimeout)
	defer cancel()
	ack, err := s.sink.SendReport(sendCtx, report)
	if err != nil {
		return err
	}
	if !ack.OK {
		return fmt.Errorf("%w: %s", ErrRejected, ack.Message)
	}

	s.backoff.Reset()
	s.logger.Debug("report sent", "samples", len(samples), "message", ack.Message)
	return nil
}

func (s *Scheduler) pause(ctx context.Context) {
	d := s.backoff.Duration()
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
