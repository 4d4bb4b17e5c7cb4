package location

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// DefaultLegacyTimeout bounds the wait for a single live legacy update.
const DefaultLegacyTimeout = 12 * time.Second

// legacyCriteria selects the source for the live legacy update.
var legacyCriteria = Criteria{Coarse: true, LowPower: true}

// step is one tier of the fallback chain.
type step int

const (
	stepPrimaryFresh step = iota
	stepPrimaryLastKnown
	stepLegacyCached
	stepLegacyLive
	stepDone
)

func (s step) String() string {
	switch s {
	case stepPrimaryFresh:
		return "primary_fresh"
	case stepPrimaryLastKnown:
		return "primary_last_known"
	case stepLegacyCached:
		return "legacy_cached"
	case stepLegacyLive:
		return "legacy_live"
	default:
		return "done"
	}
}

// attempt is the mutable state of one Acquire call.
type attempt struct {
	highAccuracy bool
	lastErr      error
}

// failure is the error reported once the chain is exhausted.
func (a *attempt) failure() error {
	if a.lastErr != nil {
		return a.lastErr
	}
	return ErrLocationUnavailable
}

// failureOr prefers an earlier captured error over err.
func (a *attempt) failureOr(err error) error {
	if a.lastErr != nil {
		return a.lastErr
	}
	return err
}

// Acquirer produces a best-effort GeoFix by walking a tiered set of providers.
type Acquirer struct {
	primary       PrimaryProvider
	secondary     SecondaryProvider
	clock         clockwork.Clock
	legacyTimeout time.Duration
	logger        *zap.Logger
}

// Option configures an Acquirer.
type Option func(*Acquirer)

// WithClock sets the clock used for the legacy update timeout.
func WithClock(c clockwork.Clock) Option {
	return func(a *Acquirer) { a.clock = c }
}

// WithLegacyTimeout overrides DefaultLegacyTimeout.
func WithLegacyTimeout(d time.Duration) Option {
	return func(a *Acquirer) {
		if d > 0 {
			a.legacyTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Acquirer) { a.logger = l }
}

// NewAcquirer creates an Acquirer over the given providers.
func NewAcquirer(primary PrimaryProvider, secondary SecondaryProvider, opts ...Option) *Acquirer {
	a := &Acquirer{
		primary:       primary,
		secondary:     secondary,
		clock:         clockwork.NewRealClock(),
		legacyTimeout: DefaultLegacyTimeout,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.Named("location")
	return a
}

// Acquire runs the fallback chain. When highAccuracy is set only fresh fixes
// are accepted: the last-known tiers are skipped. Cancelling ctx aborts the
// chain and releases any pending registration before Acquire returns.
func (a *Acquirer) Acquire(ctx context.Context, highAccuracy bool) (GeoFix, error) {
	run := &attempt{highAccuracy: highAccuracy}

	for st := stepPrimaryFresh; st != stepDone; {
		if err := ctx.Err(); err != nil {
			return GeoFix{}, err
		}

		fix, next, err := a.advance(ctx, st, run)
		if err != nil {
			a.logger.Debug("Location acquisition failed",
				zap.Stringer("step", st),
				zap.Error(err))
			return GeoFix{}, err
		}
		if fix != nil {
			a.logger.Debug("Location acquired",
				zap.Stringer("step", st),
				zap.Stringer("tier", fix.Tier),
				zap.Time("captured_at", fix.CapturedAt))
			return *fix, nil
		}
		st = next
	}

	return GeoFix{}, run.failure()
}

func (a *Acquirer) advance(ctx context.Context, st step, run *attempt) (*GeoFix, step, error) {
	switch st {
	case stepPrimaryFresh:
		return a.primaryFresh(ctx, run)
	case stepPrimaryLastKnown:
		return a.primaryLastKnown(ctx, run)
	case stepLegacyCached:
		return a.legacyCached(run)
	case stepLegacyLive:
		return a.legacyLive(ctx, run)
	default:
		return nil, stepDone, run.failure()
	}
}

func (a *Acquirer) primaryFresh(ctx context.Context, run *attempt) (*GeoFix, step, error) {
	priority, tier := PriorityBalanced, TierBalanced
	if run.highAccuracy {
		priority, tier = PriorityHighAccuracy, TierPrecise
	}

	fix, err := a.primary.RequestFix(ctx, priority)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, stepDone, ctxErr
	}
	if err != nil {
		// A failing primary goes straight to the legacy provider.
		run.lastErr = err
		return nil, stepLegacyCached, nil
	}
	if fix != nil {
		f := fix.withTier(tier)
		return &f, stepDone, nil
	}

	run.lastErr = ErrLocationUnavailable
	if run.highAccuracy {
		return nil, stepLegacyCached, nil
	}
	return nil, stepPrimaryLastKnown, nil
}

func (a *Acquirer) primaryLastKnown(ctx context.Context, run *attempt) (*GeoFix, step, error) {
	fix, err := a.primary.LastKnownFix(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, stepDone, ctxErr
	}
	if err != nil {
		run.lastErr = err
		return nil, stepLegacyCached, nil
	}
	if fix != nil {
		f := fix.withTier(TierLastKnown)
		return &f, stepDone, nil
	}
	run.lastErr = ErrLocationUnavailable
	return nil, stepLegacyCached, nil
}

func (a *Acquirer) legacyCached(run *attempt) (*GeoFix, step, error) {
	if run.highAccuracy {
		return nil, stepLegacyLive, nil
	}

	var newest *GeoFix
	for _, source := range a.secondary.Sources() {
		fix, err := a.secondary.LastKnownFix(source)
		if err != nil || fix == nil {
			continue
		}
		if newest == nil || fix.CapturedAt.After(newest.CapturedAt) {
			newest = fix
		}
	}
	if newest != nil {
		f := newest.withTier(TierLastKnown)
		return &f, stepDone, nil
	}
	return nil, stepLegacyLive, nil
}

func (a *Acquirer) legacyLive(ctx context.Context, run *attempt) (*GeoFix, step, error) {
	source, ok := a.secondary.BestSource(legacyCriteria)
	if !ok {
		source = SourceNetwork
	}

	fixes := make(chan GeoFix, 1)
	timer := a.clock.NewTimer(a.legacyTimeout)

	reg, err := a.secondary.RequestSingleUpdate(source, func(f GeoFix) {
		select {
		case fixes <- f:
		default:
		}
	})
	if err != nil {
		timer.Stop()
		a.logger.Warn("Legacy provider failed",
			zap.String("source", string(source)),
			zap.Error(err))
		return nil, stepDone, run.failureOr(err)
	}
	defer reg.Cancel()
	defer timer.Stop()

	select {
	case f := <-fixes:
		fix := f.withTier(TierLegacy)
		return &fix, stepDone, nil
	case <-timer.Chan():
		a.logger.Debug("Legacy update timed out",
			zap.String("source", string(source)),
			zap.Duration("timeout", a.legacyTimeout))
		return nil, stepDone, run.failure()
	case <-ctx.Done():
		return nil, stepDone, ctx.Err()
	}
}
