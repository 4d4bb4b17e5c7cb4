// Package dashboard composes the always-on screen: the wall clock, today's
// calendar events and the weather panel.
package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/i474232898/always-on-dashboard/internal/calendar"
	"github.com/i474232898/always-on-dashboard/internal/weather"
)

const (
	TimeLayout = "03:04:05 PM"
	DateLayout = "Mon, Jan 2 2006"
)

// Weather is the part of weather.Service the dashboard drives. State
// carries its own units, so one State call is a consistent read.
type Weather interface {
	SetLocationPermission(granted bool)
	State() weather.State
	LocationPermitted() bool
	HasCredentialOverride() bool
	Subscribe(fn func(weather.State)) func()
}

// Recorder keeps successful weather refreshes.
type Recorder interface {
	Save(rec weather.Record)
}

// Service owns the dashboard session.
type Service struct {
	weather  Weather
	calendar calendar.Source
	history  Recorder
	clock    clockwork.Clock
	zone     *time.Location
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
	unsub  func()

	mu           sync.Mutex
	now          time.Time
	events       []calendar.Event
	hasCalendar  bool
	lastRecorded time.Time
}

type Option func(*Service)

// WithCalendar sets the event source. Without one the event list stays empty.
func WithCalendar(src calendar.Source) Option {
	return func(s *Service) { s.calendar = src }
}

// WithHistory records every successful weather refresh into r.
func WithHistory(r Recorder) Option {
	return func(s *Service) { s.history = r }
}

func WithClock(c clockwork.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithLocation sets the zone the clock and the calendar day are shown in.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.zone = loc }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(w Weather, opts ...Option) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		weather: w,
		clock:   clockwork.NewRealClock(),
		zone:    time.Local,
		logger:  zap.NewNop(),
		ctx:     ctx,
		cancel:  cancel,
		events:  []calendar.Event{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("dashboard")
	s.now = s.clock.Now().In(s.zone)
	return s
}

// Start begins the clock ticker and history recording.
func (s *Service) Start() {
	s.once.Do(func() {
		if s.history != nil {
			s.unsub = s.weather.Subscribe(s.record)
		}
		s.wg.Add(1)
		go s.tick()
		s.logger.Info("Dashboard started", zap.String("zone", s.zone.String()))
	})
}

// Stop ends the ticker and history recording.
func (s *Service) Stop() {
	s.cancel()
	s.wg.Wait()
	if s.unsub != nil {
		s.unsub()
	}
}

// tick updates the clock at every whole second.
func (s *Service) tick() {
	defer s.wg.Done()
	for {
		now := s.clock.Now()
		next := now.Truncate(time.Second).Add(time.Second)
		timer := s.clock.NewTimer(next.Sub(now))
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case t := <-timer.Chan():
			s.mu.Lock()
			s.now = t.In(s.zone)
			s.mu.Unlock()
		}
	}
}

// OnPermissionsChanged forwards the location level to the weather panel and
// reloads the calendar when its permission is newly granted.
func (s *Service) OnPermissionsChanged(hasLocation, hasCalendar bool) {
	s.weather.SetLocationPermission(hasLocation)

	s.mu.Lock()
	prev := s.hasCalendar
	s.hasCalendar = hasCalendar
	if !hasCalendar {
		s.events = []calendar.Event{}
	}
	s.mu.Unlock()

	if hasCalendar && !prev {
		s.RefreshCalendar(context.Background())
	}
}

// RefreshCalendar reloads today's events. Errors leave the list empty.
func (s *Service) RefreshCalendar(ctx context.Context) {
	s.mu.Lock()
	permitted := s.hasCalendar
	s.mu.Unlock()
	if !permitted || s.calendar == nil {
		return
	}

	events, err := s.calendar.TodaysEvents(ctx, s.clock.Now().In(s.zone))
	if err != nil {
		s.logger.Warn("Failed to load calendar events", zap.Error(err))
		events = []calendar.Event{}
	}

	s.mu.Lock()
	// Permission may have been revoked while the query ran.
	if s.hasCalendar {
		s.events = events
	}
	s.mu.Unlock()
	s.logger.Debug("Calendar refreshed", zap.Int("events", len(events)))
}

func (s *Service) record(st weather.State) {
	if st.Phase != weather.PhaseSuccess || st.Snapshot == nil || st.UpdatedAt == nil {
		return
	}

	s.mu.Lock()
	// A unit toggle republishes the same refresh.
	if s.lastRecorded.Equal(*st.UpdatedAt) {
		s.mu.Unlock()
		return
	}
	s.lastRecorded = *st.UpdatedAt
	s.mu.Unlock()

	s.history.Save(weather.Record{
		UpdatedAt: *st.UpdatedAt,
		Units:     st.Units,
		Snapshot:  *st.Snapshot,
	})
}
