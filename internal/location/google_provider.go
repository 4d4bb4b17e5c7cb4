package location

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"googlemaps.github.io/maps"
)

// geolocator is the subset of *maps.Client used by GoogleProvider.
type geolocator interface {
	Geolocate(ctx context.Context, r *maps.GeolocationRequest) (*maps.GeolocationResult, error)
}

// wifiScanner lists nearby access points for high-accuracy requests.
type wifiScanner func(ctx context.Context) ([]maps.WiFiAccessPoint, error)

// GoogleProvider is the primary provider backed by the Google Maps Geolocation API.
type GoogleProvider struct {
	client   geolocator
	scanWiFi wifiScanner
	clock    clockwork.Clock
	timeout  time.Duration
	logger   *zap.Logger

	mu   sync.Mutex
	last *GeoFix
}

// NewGoogleProvider creates a GoogleProvider. WiFi scanning is only used for
// high-accuracy requests and only when scanWiFi is set.
func NewGoogleProvider(apiKey string, scanWiFi bool, clock clockwork.Clock, logger *zap.Logger) (*GoogleProvider, error) {
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	p := &GoogleProvider{
		client:  c,
		clock:   clock,
		timeout: 10 * time.Second,
		logger:  logger.Named("google-geolocation"),
	}
	if scanWiFi {
		p.scanWiFi = scanWiFiAccessPoints
	}
	return p, nil
}

// RequestFix asks the Geolocation API for a fresh fix.
func (g *GoogleProvider) RequestFix(ctx context.Context, priority Priority) (*GeoFix, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req := &maps.GeolocationRequest{ConsiderIP: true}

	if priority == PriorityHighAccuracy && g.scanWiFi != nil {
		aps, err := g.scanWiFi(ctx)
		if err != nil {
			// Still worth asking with IP only.
			g.logger.Warn("WiFi scan failed", zap.Error(err))
		} else {
			req.WiFiAccessPoints = aps
		}
	}

	resp, err := g.client.Geolocate(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp == nil || (resp.Location.Lat == 0 && resp.Location.Lng == 0) {
		return nil, nil
	}

	fix := GeoFix{
		Latitude:   resp.Location.Lat,
		Longitude:  resp.Location.Lng,
		CapturedAt: g.clock.Now(),
	}

	g.mu.Lock()
	g.last = &fix
	g.mu.Unlock()

	g.logger.Debug("Geolocation fix received",
		zap.Stringer("priority", priority),
		zap.Float64("accuracy_m", resp.Accuracy),
		zap.Int("wifi_access_points", len(req.WiFiAccessPoints)))

	out := fix
	return &out, nil
}

// LastKnownFix returns the most recent successful fix, if any.
func (g *GoogleProvider) LastKnownFix(context.Context) (*GeoFix, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.last == nil {
		return nil, nil
	}
	fix := *g.last
	return &fix, nil
}

// UnavailablePrimary stands in when no primary service is configured.
type UnavailablePrimary struct{}

func (UnavailablePrimary) RequestFix(context.Context, Priority) (*GeoFix, error) { return nil, nil }

func (UnavailablePrimary) LastKnownFix(context.Context) (*GeoFix, error) { return nil, nil }
