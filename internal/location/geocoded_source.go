package location

import (
	"errors"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/kelvins/geocoder"
	"go.uber.org/zap"
)

// Address is the configured postal address of the device.
type Address struct {
	Street  string
	City    string
	State   string
	Country string
}

func (a Address) empty() bool {
	return a.Street == "" && a.City == "" && a.State == "" && a.Country == ""
}

type geocodeFunc func(geocoder.Address) (geocoder.Location, error)

// GeocodedSource is a coarse, low-power source that resolves a fixed
// address through the Google Geocoding API.
type GeocodedSource struct {
	address Address
	geocode geocodeFunc
	clock   clockwork.Clock
	logger  *zap.Logger

	mu   sync.Mutex
	last *GeoFix
}

// NewGeocodedSource creates a source for address. It is disabled when the
// address or apiKey is empty.
func NewGeocodedSource(apiKey string, address Address, clock clockwork.Clock, logger *zap.Logger) *GeocodedSource {
	s := &GeocodedSource{address: address, clock: clock, logger: logger.Named("geocoder")}
	if apiKey != "" {
		geocoder.ApiKey = apiKey
		s.geocode = geocoder.Geocoding
	}
	return s
}

func (s *GeocodedSource) ID() SourceID   { return SourceNetwork }
func (s *GeocodedSource) Enabled() bool  { return s.geocode != nil && !s.address.empty() }
func (s *GeocodedSource) Coarse() bool   { return true }
func (s *GeocodedSource) LowPower() bool { return true }

// LastKnown returns the last resolved position.
func (s *GeocodedSource) LastKnown() (*GeoFix, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil, nil
	}
	fix := *s.last
	return &fix, nil
}

// Subscribe resolves the address in the background and delivers the
// result unless the registration was cancelled first.
func (s *GeocodedSource) Subscribe(onFix func(GeoFix)) (Registration, error) {
	if !s.Enabled() {
		return nil, errors.New("geocoded source not configured")
	}

	var (
		mu        sync.Mutex
		cancelled bool
	)
	go func() {
		loc, err := s.geocode(geocoder.Address{
			Street:  s.address.Street,
			City:    s.address.City,
			State:   s.address.State,
			Country: s.address.Country,
		})
		if err != nil {
			s.logger.Warn("Geocoding failed", zap.Error(err))
			return
		}
		if loc.Latitude == 0 && loc.Longitude == 0 {
			return
		}

		fix := GeoFix{Latitude: loc.Latitude, Longitude: loc.Longitude, CapturedAt: s.clock.Now()}
		s.mu.Lock()
		cached := fix
		s.last = &cached
		s.mu.Unlock()

		mu.Lock()
		defer mu.Unlock()
		if !cancelled {
			onFix(fix)
		}
	}()

	return newRegistration(func() {
		mu.Lock()
		cancelled = true
		mu.Unlock()
	}), nil
}
