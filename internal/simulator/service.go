// Package simulator drives the periodic telemetry broadcast and fault injection.
package simulator

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"machine-monitor-backend/config"
	"machine-monitor-backend/internal/event"
	"machine-monitor-backend/internal/metrics"
	"machine-monitor-backend/internal/model"
	"machine-monitor-backend/internal/telemetry"
)

// Snapshotter lists the machines a tick works from.
type Snapshotter interface {
	ListMachineSummaries(ctx context.Context) ([]model.MachineSummary, error)
}

// Injector decides whether a fault occurs this tick.
type Injector interface {
	Inject(ctx context.Context, snapshot []model.MachineSummary) (*model.FaultAlert, error)
}

// Broadcaster fans a payload out to the connected viewers.
type Broadcaster interface {
	Broadcast(payload []byte) int
	Len() int
}

// AlertDispatcher hands alerts to an out-of-band notifier without blocking.
type AlertDispatcher interface {
	Dispatch(alert model.FaultAlert) bool
}

// Publisher sends an event to an external bus.
type Publisher interface {
	Publish(ctx context.Context, subj string, v any) error
}

// CacheInvalidator drops cached record API responses.
type CacheInvalidator interface {
	Flush()
}

// Deps are the collaborators of a Service. Dispatcher, Publisher and Invalidator
// are optional.
type Deps struct {
	Store        Snapshotter
	Generator    *telemetry.Generator
	Injector     Injector
	Hub          Broadcaster
	Metrics      *metrics.Metrics
	Dispatcher   AlertDispatcher
	Publisher    Publisher
	FaultSubject string
	Invalidator  CacheInvalidator
}

// Service runs one tick per interval until its context is cancelled.
type Service struct {
	cfg     config.SimulatorConfig
	deps    Deps
	tracer  trace.Tracer
	now     func() time.Time
	running atomic.Bool
}

// NewService creates a simulator service.
func NewService(cfg config.SimulatorConfig, deps Deps) *Service {
	return &Service{
		cfg:    cfg,
		deps:   deps,
		tracer: otel.Tracer("machine-monitor-backend/simulator"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run starts the broadcast loop. The first tick fires one interval after start.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		log.Info().Msg("simulator is disabled; not starting")
		return
	}
	log.Info().Dur("interval", s.cfg.Interval).Float64("fault_probability", s.cfg.FaultProbability).Msg("starting simulator")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("simulator shutting down")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick performs one snapshot, telemetry broadcast and injection round. It reports false
// when it was skipped because another tick was still in progress.
func (s *Service) Tick(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.deps.Metrics.TicksSkipped.Inc()
		log.Warn().Msg("previous tick still running; skipping")
		return false
	}
	defer s.running.Store(false)

	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "simulator.tick")
	defer func() {
		span.End()
		s.deps.Metrics.Ticks.Inc()
		s.deps.Metrics.TickDuration.Observe(time.Since(start).Seconds())
	}()

	s.deps.Metrics.Subscribers.Set(float64(s.deps.Hub.Len()))

	snapshot, err := s.deps.Store.ListMachineSummaries(ctx)
	if err != nil {
		s.fail(span, metrics.StageSnapshot, err, "snapshot machines")
		return true
	}
	span.SetAttributes(attribute.Int("machines", len(snapshot)))

	readings := s.deps.Generator.GenerateAll(snapshot, s.now())
	payload, err := event.EncodeSensorUpdate(readings)
	if err != nil {
		s.fail(span, metrics.StageEncode, err, "encode sensor update")
		return true
	}
	delivered := s.deps.Hub.Broadcast(payload)
	s.deps.Metrics.EventsDelivered.WithLabelValues(string(event.SensorUpdate)).Add(float64(delivered))

	alert, err := s.deps.Injector.Inject(ctx, snapshot)
	if err != nil {
		s.fail(span, metrics.StageInject, err, "inject fault")
		return true
	}
	span.SetAttributes(attribute.Bool("fault", alert != nil))
	if alert == nil {
		return true
	}

	// Viewers refetch on FAULT_ALERT, so the cache must be gone before it is sent.
	if s.deps.Invalidator != nil {
		s.deps.Invalidator.Flush()
	}
	s.deps.Metrics.FaultsInjected.WithLabelValues(alert.FaultType).Inc()
	log.Info().Str("machine_id", alert.MachineID).Str("fault_type", alert.FaultType).Msg("fault injected")

	payload, err = event.EncodeFaultAlert(*alert)
	if err != nil {
		s.fail(span, metrics.StageEncode, err, "encode fault alert")
		return true
	}
	delivered = s.deps.Hub.Broadcast(payload)
	s.deps.Metrics.EventsDelivered.WithLabelValues(string(event.FaultAlert)).Add(float64(delivered))

	s.forward(ctx, span, *alert)
	return true
}

// forward hands the alert to the optional push notifier and event bus.
func (s *Service) forward(ctx context.Context, span trace.Span, alert model.FaultAlert) {
	if s.deps.Dispatcher != nil {
		s.deps.Dispatcher.Dispatch(alert)
	}
	if s.deps.Publisher == nil {
		return
	}
	msg := event.FaultDetected{
		MachineID:   alert.MachineID,
		MachineName: alert.MachineName,
		FaultType:   alert.FaultType,
		DetectedAt:  s.now(),
	}
	if err := s.deps.Publisher.Publish(ctx, s.deps.FaultSubject, msg); err != nil {
		s.fail(span, metrics.StagePublish, err, "publish fault event")
	}
}

func (s *Service) fail(span trace.Span, stage string, err error, msg string) {
	s.deps.Metrics.TickErrors.WithLabelValues(stage).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	log.Error().Err(err).Str("stage", stage).Msg(msg)
}
