package weather

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultRefreshInterval is the period of the automatic refresh.
const DefaultRefreshInterval = 15 * time.Minute

// ErrServiceClosed is returned by Refresh after Close.
var ErrServiceClosed = errors.New("weather service closed")

// Service chains location acquisition to a weather fetch and owns the
// resulting State, the periodic refresh and the user-controlled settings
// (units, credential override, location permission).
type Service struct {
	acquirer  LocationAcquirer
	fetcher   Fetcher
	scheduler Scheduler
	clock     clockwork.Clock
	logger    *zap.Logger
	tracer    trace.Tracer

	interval          time.Duration
	defaultCredential string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// schedMu orders arming and disarming of the periodic refresh.
	schedMu sync.Mutex

	mu          sync.Mutex
	state       State
	units       UnitSystem
	override    string
	permitted   bool
	closed      bool
	generation  uint64
	applied     uint64
	nextSubID   int
	subscribers map[int]func(State)
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock sets the clock used to stamp successful refreshes.
func WithClock(c clockwork.Clock) ServiceOption {
	return func(s *Service) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithInterval overrides DefaultRefreshInterval.
func WithInterval(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithDefaultCredential sets the credential used while no override is set.
func WithDefaultCredential(key string) ServiceOption {
	return func(s *Service) { s.defaultCredential = strings.TrimSpace(key) }
}

// WithUnits sets the initial unit system.
func WithUnits(u UnitSystem) ServiceOption {
	return func(s *Service) { s.units = u }
}

// NewService creates an idle Service. Location permission starts revoked.
func NewService(acquirer LocationAcquirer, fetcher Fetcher, scheduler Scheduler, opts ...ServiceOption) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		acquirer:    acquirer,
		fetcher:     fetcher,
		scheduler:   scheduler,
		clock:       clockwork.NewRealClock(),
		logger:      zap.NewNop(),
		tracer:      otel.Tracer("github.com/i474232898/always-on-dashboard/internal/weather"),
		interval:    DefaultRefreshInterval,
		ctx:         ctx,
		cancel:      cancel,
		subscribers: make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state.Units = s.units
	s.logger = s.logger.Named("weather")
	return s
}

// SetLocationPermission reacts to edges only. A grant refreshes
// immediately and arms the periodic refresh; a revocation disarms it.
func (s *Service) SetLocationPermission(granted bool) {
	s.mu.Lock()
	prev := s.permitted
	s.permitted = granted
	closed := s.closed
	s.mu.Unlock()

	if closed || prev == granted {
		return
	}

	if granted {
		s.logger.Info("Location permission granted")
		_ = s.Refresh(false)
		s.restartSchedule()
		return
	}

	s.logger.Info("Location permission revoked")
	s.disarm()
}

// Refresh starts one asynchronous refresh run. With forceFresh only a
// fresh, high-accuracy fix is accepted. Without location permission the
// state fails immediately and ErrPermissionDenied is returned.
func (s *Service) Refresh(forceFresh bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServiceClosed
	}
	if !s.permitted {
		st := s.setStateLocked(s.state.Deny())
		subs := s.subscribersLocked()
		s.mu.Unlock()
		publish(subs, st)
		return ErrPermissionDenied
	}

	s.generation++
	gen := s.generation
	units := s.units
	credential := s.credentialLocked()
	st := s.setStateLocked(s.state.Begin())
	subs := s.subscribersLocked()
	s.wg.Add(1)
	s.mu.Unlock()

	publish(subs, st)
	go s.run(gen, forceFresh, units, credential)
	return nil
}

func (s *Service) run(gen uint64, forceFresh bool, units UnitSystem, credential string) {
	defer s.wg.Done()

	runID := uuid.NewString()
	logger := s.logger.With(zap.String("run_id", runID), zap.Uint64("generation", gen))

	ctx, span := s.tracer.Start(s.ctx, "weather.refresh", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.Bool("force_fresh", forceFresh),
		attribute.String("units", units.APIValue()),
	))
	defer span.End()

	started := s.clock.Now()
	logger.Debug("Refresh started", zap.Bool("force_fresh", forceFresh), zap.Stringer("units", units))

	fix, err := s.acquirer.Acquire(ctx, forceFresh)
	if err != nil {
		if ctx.Err() != nil {
			logger.Debug("Refresh cancelled during location acquisition")
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "location acquisition failed")
		logger.Warn("Location acquisition failed", zap.Error(err))
		s.finish(gen, func(st State, _ UnitSystem) State {
			return st.Fail(reasonFor(err, locationUnavailableReason))
		})
		return
	}
	span.SetAttributes(attribute.String("location.tier", fix.Tier.String()))

	snap, err := s.fetcher.Fetch(ctx, fix.Latitude, fix.Longitude, units, credential)
	if err != nil {
		if ctx.Err() != nil {
			logger.Debug("Refresh cancelled during weather fetch")
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "weather fetch failed")
		kind := KindNetwork
		var fe *FetchError
		if errors.As(err, &fe) {
			kind = fe.Kind
		}
		logger.Warn("Weather fetch failed",
			zap.String("provider", s.fetcher.Name()),
			zap.Stringer("kind", kind),
			zap.Error(err))
		s.finish(gen, func(st State, _ UnitSystem) State {
			return st.Fail(reasonFor(err, weatherUnavailableReason))
		})
		return
	}

	now := s.clock.Now()
	applied := s.finish(gen, func(st State, current UnitSystem) State {
		return st.Succeed(Convert(snap, units, current), now)
	})
	if applied {
		logger.Info("Weather refreshed",
			zap.String("location", snap.LocationLabel),
			zap.Stringer("tier", fix.Tier),
			zap.Duration("took", now.Sub(started)))
	}
}

// finish applies a terminal transition unless a newer run already did.
func (s *Service) finish(gen uint64, next func(State, UnitSystem) State) bool {
	s.mu.Lock()
	if s.closed || gen < s.applied {
		s.mu.Unlock()
		s.logger.Debug("Discarding superseded refresh result", zap.Uint64("generation", gen))
		return false
	}
	s.applied = gen
	st := s.setStateLocked(next(s.state, s.units))
	subs := s.subscribersLocked()
	s.mu.Unlock()

	publish(subs, st)
	return true
}

// SetCredential sets the API key override. A blank value clears it. The
// weather is refreshed and the periodic refresh restarted.
func (s *Service) SetCredential(value string) {
	s.mu.Lock()
	s.override = strings.TrimSpace(value)
	cleared := s.override == ""
	s.mu.Unlock()

	s.logger.Info("Weather credential updated", zap.Bool("override_cleared", cleared))
	_ = s.Refresh(false)
	s.restartSchedule()
}

// ToggleUnits flips the unit system, converts the displayed snapshot and
// then refreshes. It returns the new unit system.
func (s *Service) ToggleUnits() UnitSystem {
	s.mu.Lock()
	from := s.units
	to := from.Toggle()
	s.units = to
	st := s.setStateLocked(s.state.ConvertUnits(from, to))
	subs := s.subscribersLocked()
	s.mu.Unlock()

	publish(subs, st)
	s.logger.Info("Units toggled", zap.Stringer("from", from), zap.Stringer("to", to))
	_ = s.Refresh(false)
	return to
}

// State returns the current state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Units returns the active unit system.
func (s *Service) Units() UnitSystem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.units
}

// LocationPermitted reports the last permission level seen.
func (s *Service) LocationPermitted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permitted
}

// HasCredentialOverride reports whether a user-supplied key is in use.
func (s *Service) HasCredentialOverride() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.override != ""
}

// Subscribe registers fn for every state change and returns a function
// that removes it. fn runs on the goroutine that made the change and must
// not block. Changes made on different goroutines (a unit toggle and a
// finishing run) may be delivered in either order; State always returns
// the latest one. Every delivered State carries the units of its snapshot.
func (s *Service) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// Wait blocks until every started run has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Close cancels the periodic refresh and every in-flight run, then waits
// for them. Results of cancelled runs are never applied.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.disarm()
	s.cancel()
	s.wg.Wait()
	s.logger.Debug("Weather service closed")
}

// restartSchedule arms the periodic refresh while permitted. Permission is
// read under schedMu, so a concurrent revocation disarms after this returns.
func (s *Service) restartSchedule() {
	s.schedMu.Lock()
	defer s.schedMu.Unlock()

	s.mu.Lock()
	permitted, closed := s.permitted, s.closed
	s.mu.Unlock()

	if closed || !permitted {
		s.scheduler.Cancel()
		return
	}

	err := s.scheduler.Every(s.interval, func() {
		if err := s.Refresh(false); err != nil {
			s.logger.Debug("Scheduled refresh skipped", zap.Error(err))
		}
	})
	if err != nil {
		s.logger.Error("Failed to arm periodic refresh", zap.Error(err))
	}
}

func (s *Service) disarm() {
	s.schedMu.Lock()
	defer s.schedMu.Unlock()
	s.scheduler.Cancel()
}

func (s *Service) credentialLocked() string {
	if s.override != "" {
		return s.override
	}
	return s.defaultCredential
}

func (s *Service) setStateLocked(st State) State {
	st.Units = s.units
	s.state = st
	return st
}

func (s *Service) subscribersLocked() []func(State) {
	if len(s.subscribers) == 0 {
		return nil
	}
	subs := make([]func(State), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	return subs
}

func publish(subs []func(State), st State) {
	for _, fn := range subs {
		fn(st)
	}
}
