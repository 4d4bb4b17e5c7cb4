package location

import (
	"fmt"
	"sync"
)

// Source is one location source of the LegacyProvider.
type Source interface {
	ID() SourceID
	Enabled() bool
	Coarse() bool
	LowPower() bool
	LastKnown() (*GeoFix, error)
	Subscribe(onFix func(GeoFix)) (Registration, error)
}

// LegacyProvider is the secondary provider over a fixed set of sources.
type LegacyProvider struct {
	sources []Source
	byID    map[SourceID]Source
}

// NewLegacyProvider creates a provider over sources. Declaration order
// breaks ties during best-source selection.
func NewLegacyProvider(sources ...Source) *LegacyProvider {
	p := &LegacyProvider{byID: make(map[SourceID]Source, len(sources))}
	for _, s := range sources {
		if _, dup := p.byID[s.ID()]; dup {
			continue
		}
		p.sources = append(p.sources, s)
		p.byID[s.ID()] = s
	}
	return p
}

// Sources lists every registered source id.
func (p *LegacyProvider) Sources() []SourceID {
	ids := make([]SourceID, 0, len(p.sources))
	for _, s := range p.sources {
		ids = append(ids, s.ID())
	}
	return ids
}

// LastKnownFix returns the cached fix of one source.
func (p *LegacyProvider) LastKnownFix(id SourceID) (*GeoFix, error) {
	s, ok := p.byID[id]
	if !ok {
		return nil, fmt.Errorf("unknown location source %q", id)
	}
	if !s.Enabled() {
		return nil, nil
	}
	return s.LastKnown()
}

// BestSource returns the enabled source that satisfies most of c.
func (p *LegacyProvider) BestSource(c Criteria) (SourceID, bool) {
	var (
		best      Source
		bestScore = -1
	)
	for _, s := range p.sources {
		if !s.Enabled() {
			continue
		}
		score := 0
		if !c.Coarse || s.Coarse() {
			score++
		}
		if !c.LowPower || s.LowPower() {
			score++
		}
		if score > bestScore {
			best, bestScore = s, score
		}
	}
	if best == nil {
		return "", false
	}
	return best.ID(), true
}

// RequestSingleUpdate subscribes onFix to one update of the given source.
// The callback is invoked at most once.
func (p *LegacyProvider) RequestSingleUpdate(id SourceID, onFix func(GeoFix)) (Registration, error) {
	s, ok := p.byID[id]
	if !ok {
		return nil, fmt.Errorf("unknown location source %q", id)
	}
	if !s.Enabled() {
		return nil, fmt.Errorf("location source %q is disabled", id)
	}

	var once sync.Once
	return s.Subscribe(func(f GeoFix) {
		once.Do(func() { onFix(f) })
	})
}

// cancelFunc adapts a function to Registration.
type cancelFunc struct {
	once sync.Once
	fn   func()
}

func newRegistration(fn func()) *cancelFunc {
	return &cancelFunc{fn: fn}
}

func (c *cancelFunc) Cancel() {
	c.once.Do(c.fn)
}
