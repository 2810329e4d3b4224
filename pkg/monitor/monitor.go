/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package monitor drives periodic poll cycles against the router.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/carverauto/netpresence/pkg/keenetic"
	"github.com/carverauto/netpresence/pkg/logger"
	"github.com/carverauto/netpresence/pkg/models"
	"github.com/carverauto/netpresence/pkg/presence"
)

const (
	TriggerInterval = "interval"
	TriggerCron     = "cron"
	TriggerStartup  = "startup"
	TriggerManual   = "manual"

	tracerName = "github.com/carverauto/netpresence/pkg/monitor"
)

var (
	errScheduleRequired = errors.New("schedule config is required")
	errAlreadyStarted   = errors.New("monitor already started")
	// ErrCycleFailed wraps the stage error of a failed poll cycle.
	ErrCycleFailed = errors.New("poll cycle failed")
)

// Monitor runs poll cycles: authenticate, fetch the client snapshot,
// reconcile it against the store and hand the events to the dispatcher.
// At most one cycle runs at a time.
type Monitor struct {
	schedule   models.ScheduleConfig
	router     Router
	engine     Reconciler
	dispatcher EventDispatcher
	logger     logger.Logger
	clock      Clock
	tracer     trace.Tracer

	pruner    presence.Pruner
	retention time.Duration

	// sem holds the exclusive cycle slot.
	sem chan struct{}

	statusMu sync.RWMutex
	status   models.CycleStatus
	cycles   atomic.Int64
	skipped  atomic.Int64

	runCtx    context.Context
	cancel    context.CancelFunc
	scheduler *cron.Cron
	done      chan struct{}
	closeOnce sync.Once
	started   atomic.Bool
	wg        sync.WaitGroup
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock overrides the clock used for tickers and reconciliation time.
func WithClock(clock Clock) Option {
	return func(m *Monitor) {
		m.clock = clock
	}
}

// WithRetention prunes events older than retention after every cycle.
func WithRetention(pruner presence.Pruner, retention time.Duration) Option {
	return func(m *Monitor) {
		m.pruner = pruner
		m.retention = retention
	}
}

// WithTracer overrides the tracer used for cycle spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(m *Monitor) {
		m.tracer = tracer
	}
}

// New creates a Monitor. The dispatcher may be nil.
func New(
	cfg *models.ScheduleConfig,
	router Router,
	engine Reconciler,
	dispatcher EventDispatcher,
	log logger.Logger,
	opts ...Option,
) (*Monitor, error) {
	if cfg == nil {
		return nil, errScheduleRequired
	}

	if log == nil {
		log = logger.NewTestLogger()
	}

	m := &Monitor{
		schedule:   *cfg,
		router:     router,
		engine:     engine,
		dispatcher: dispatcher,
		logger:     log,
		clock:      realClock{},
		sem:        make(chan struct{}, 1),
		done:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.tracer == nil {
		m.tracer = logger.GetTracer(tracerName)
	}

	return m, nil
}

// Start schedules poll cycles and returns immediately.
func (m *Monitor) Start(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return errAlreadyStarted
	}

	m.runCtx, m.cancel = context.WithCancel(context.WithoutCancel(ctx))

	if m.schedule.Interval > 0 {
		interval := time.Duration(m.schedule.Interval)
		ticker := m.clock.Ticker(interval)

		m.wg.Add(1)

		go m.loop(ticker)

		m.logger.Info().Dur("interval", interval).Msg("Presence monitor started")
	} else {
		spec := m.schedule.Cron
		if spec == "" {
			spec = models.DefaultCronSchedule
		}

		m.scheduler = cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{m.logger})))

		if _, err := m.scheduler.AddFunc(spec, func() { m.tick(TriggerCron) }); err != nil {
			m.cancel()
			m.started.Store(false)

			return fmt.Errorf("invalid cron schedule %q: %w", spec, err)
		}

		m.scheduler.Start()

		m.logger.Info().Str("cron", spec).Msg("Presence monitor started")
	}

	if m.schedule.RunOnStart {
		m.wg.Add(1)

		go func() {
			defer m.wg.Done()

			m.tick(TriggerStartup)
		}()
	}

	return nil
}

// Stop halts scheduling and waits for the running cycle to finish.
// The running cycle is cancelled between device writes.
func (m *Monitor) Stop(ctx context.Context) error {
	if !m.started.Load() {
		return nil
	}

	m.closeOnce.Do(func() {
		close(m.done)

		var cronDone context.Context
		if m.scheduler != nil {
			cronDone = m.scheduler.Stop()
		}

		m.cancel()

		if cronDone != nil {
			<-cronDone.Done()
		}
	})

	waitDone := make(chan struct{})

	go func() {
		m.wg.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
		m.logger.Info().Msg("Presence monitor stopped")

		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Monitor) loop(ticker Ticker) {
	defer m.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.Chan():
			m.tick(TriggerInterval)
		}
	}
}

// tick runs a scheduled cycle unless one is already running.
func (m *Monitor) tick(trigger string) {
	select {
	case m.sem <- struct{}{}:
	default:
		m.skipped.Add(1)
		m.logger.Warn().Str("trigger", trigger).Msg("Previous poll cycle still running, skipping tick")

		return
	}

	defer func() { <-m.sem }()

	ctx := m.runCtx
	if ctx == nil {
		ctx = context.Background()
	}

	_, _ = m.runCycle(ctx, trigger)
}

// RunOnce performs a manual scan, waiting for any running cycle to finish first.
func (m *Monitor) RunOnce(ctx context.Context) (*models.ScanResponse, error) {
	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	defer func() { <-m.sem }()

	return m.runCycle(ctx, TriggerManual)
}

// Status returns a snapshot of the latest cycle.
func (m *Monitor) Status() models.CycleStatus {
	m.statusMu.RLock()
	status := m.status
	m.statusMu.RUnlock()

	status.Cycles = m.cycles.Load()
	status.Skipped = m.skipped.Load()

	return status
}

func (m *Monitor) runCycle(ctx context.Context, trigger string) (*models.ScanResponse, error) {
	cycleID := uuid.NewString()
	started := m.clock.Now()

	ctx, span := m.tracer.Start(ctx, "presence.cycle",
		trace.WithAttributes(
			attribute.String("cycle.id", cycleID),
			attribute.String("cycle.trigger", trigger),
		))
	defer span.End()

	m.setStatus(models.CycleStatus{
		CycleID:   cycleID,
		Trigger:   trigger,
		StartedAt: started,
		Running:   true,
	})

	m.cycles.Add(1)

	log := m.logger.With().Str("cycle_id", cycleID).Str("trigger", trigger).Logger()

	result, err := m.execute(ctx, &log)

	resp := &models.ScanResponse{
		Status: models.CycleStatus{
			CycleID:    cycleID,
			Trigger:    trigger,
			StartedAt:  started,
			FinishedAt: m.clock.Now(),
		},
		Events: []*models.PresenceEvent{},
	}

	if result != nil {
		if result.Events != nil {
			resp.Events = result.Events
		}

		resp.Status.Events = len(result.Events)
		resp.Status.Unresolved = len(result.Unresolved)

		span.SetAttributes(
			attribute.Int("cycle.observed", result.Observed),
			attribute.Int("cycle.events", len(result.Events)),
			attribute.Int("cycle.unresolved", len(result.Unresolved)),
		)
	}

	if err != nil {
		resp.Status.Error = err.Error()

		span.RecordError(err)
		span.SetStatus(codes.Error, classify(err))
	}

	m.setStatus(resp.Status)

	log.Debug().
		Int("events", resp.Status.Events).
		Dur("duration", resp.Status.FinishedAt.Sub(started)).
		Msg("Poll cycle finished")

	return resp, err
}

// execute runs the cycle stages. A failure before reconciliation yields no
// events. Events from a partially completed reconciliation are persisted and
// are therefore still dispatched.
func (m *Monitor) execute(ctx context.Context, log *zerolog.Logger) (*models.ReconcileResult, error) {
	if err := m.router.Authenticate(ctx); err != nil {
		m.logFailure(log, "authenticate", err)

		return nil, fmt.Errorf("%w: authenticate: %w", ErrCycleFailed, err)
	}

	snapshot, err := m.router.FetchSnapshot(ctx)
	if err != nil {
		m.logFailure(log, "fetch snapshot", err)

		return nil, fmt.Errorf("%w: fetch snapshot: %w", ErrCycleFailed, err)
	}

	now := m.clock.Now()

	result, err := m.engine.Reconcile(ctx, snapshot, now)
	if err != nil {
		m.logFailure(log, "reconcile", err)

		err = fmt.Errorf("%w: reconcile: %w", ErrCycleFailed, err)
	}

	if result == nil {
		return nil, err
	}

	for _, u := range result.Unresolved {
		log.Warn().Str("mac", u.MAC).Str("op", u.Op).Str("error", u.Error).
			Msg("Transition left unresolved, will retry next cycle")
	}

	if len(result.Events) > 0 && m.dispatcher != nil {
		// The events are already persisted, so delivery must outlive a Stop
		// that interrupted the pass. Per-delivery timeouts still bound it.
		report := m.dispatcher.Dispatch(context.WithoutCancel(ctx), result.Events)
		if report.Failed > 0 {
			log.Warn().Int("failed", report.Failed).Int("delivered", report.Delivered).
				Msg("Some notifications were not delivered")
		}
	}

	log.Info().
		Int("observed", result.Observed).
		Int("discarded", result.Discarded).
		Int("events", len(result.Events)).
		Msg("Snapshot reconciled")

	if err == nil {
		m.prune(ctx, log, now)
	}

	return result, err
}

func (m *Monitor) prune(ctx context.Context, log *zerolog.Logger, now time.Time) {
	if m.pruner == nil || m.retention <= 0 {
		return
	}

	removed, err := m.pruner.PruneEvents(ctx, now.Add(-m.retention))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to prune old events")

		return
	}

	if removed > 0 {
		log.Info().Int64("removed", removed).Dur("retention", m.retention).Msg("Pruned old events")
	}
}

func (m *Monitor) logFailure(log *zerolog.Logger, stage string, err error) {
	class := classify(err)

	event := log.Error()
	if class == classTransport || class == classCancelled {
		event = log.Warn()
	}

	event.Err(err).
		Str("stage", stage).
		Str("class", class).
		Bool("hard", class == classAuthProtocol).
		Msg("Poll cycle failed")
}

func (m *Monitor) setStatus(status models.CycleStatus) {
	m.statusMu.Lock()
	m.status = status
	m.statusMu.Unlock()
}

const (
	classTransport    = "transport"
	classAuthProtocol = "auth_protocol"
	classAuthFailed   = "auth_failed"
	classRouter       = "router"
	classPersistence  = "persistence"
	classCancelled    = "cancelled"
	classUnknown      = "unknown"
)

// classify maps a cycle error to a short failure class.
func classify(err error) string {
	switch {
	case errors.Is(err, keenetic.ErrTransport):
		return classTransport
	case errors.Is(err, keenetic.ErrAuthProtocol):
		return classAuthProtocol
	case errors.Is(err, keenetic.ErrAuthFailed):
		return classAuthFailed
	case errors.Is(err, keenetic.ErrUnexpectedStatus), errors.Is(err, keenetic.ErrInvalidPayload):
		return classRouter
	case errors.Is(err, presence.ErrPersistence):
		return classPersistence
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return classCancelled
	default:
		return classUnknown
	}
}
