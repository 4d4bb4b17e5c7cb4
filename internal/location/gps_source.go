package location

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/adrianmo/go-nmea"
	"github.com/jonboulle/clockwork"
	"github.com/tarm/serial"
	"go.uber.org/zap"
)

var errNoGPSData = errors.New("no valid GPS data found")

// portOpener opens the NMEA stream of a GPS receiver.
type portOpener func() (io.ReadCloser, error)

// GPSSource reads GGA sentences from a serial GPS receiver.
type GPSSource struct {
	open   portOpener
	clock  clockwork.Clock
	logger *zap.Logger

	mu   sync.Mutex
	last *GeoFix
}

// NewGPSSource creates a source for the receiver on port. An empty port
// yields a disabled source.
func NewGPSSource(port string, baudRate int, clock clockwork.Clock, logger *zap.Logger) *GPSSource {
	s := &GPSSource{clock: clock, logger: logger.Named("gps")}
	if port != "" {
		s.open = func() (io.ReadCloser, error) {
			return serial.OpenPort(&serial.Config{Name: port, Baud: baudRate})
		}
	}
	return s
}

func (g *GPSSource) ID() SourceID   { return SourceGPS }
func (g *GPSSource) Enabled() bool  { return g.open != nil }
func (g *GPSSource) Coarse() bool   { return false }
func (g *GPSSource) LowPower() bool { return false }

// LastKnown returns the last fix read from the receiver.
func (g *GPSSource) LastKnown() (*GeoFix, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.last == nil {
		return nil, nil
	}
	fix := *g.last
	return &fix, nil
}

// Subscribe opens the port and delivers the first valid fix. Cancel closes
// the port and waits for the reader to exit.
func (g *GPSSource) Subscribe(onFix func(GeoFix)) (Registration, error) {
	if g.open == nil {
		return nil, errors.New("gps port not configured")
	}

	port, err := g.open()
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		fix, err := g.readFix(port)
		if err != nil {
			g.logger.Debug("GPS read stopped", zap.Error(err))
			return
		}
		onFix(fix)
	}()

	return newRegistration(func() {
		_ = port.Close()
		<-done
	}), nil
}

func (g *GPSSource) readFix(r io.Reader) (GeoFix, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fix, ok := parseGGA(scanner.Text())
		if !ok {
			continue
		}
		fix.CapturedAt = g.clock.Now()

		g.mu.Lock()
		cached := fix
		g.last = &cached
		g.mu.Unlock()

		return fix, nil
	}
	if err := scanner.Err(); err != nil {
		return GeoFix{}, err
	}
	return GeoFix{}, errNoGPSData
}

// parseGGA extracts a position from a GGA sentence with a valid fix.
func parseGGA(line string) (GeoFix, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") || !strings.Contains(line, "GGA") {
		return GeoFix{}, false
	}
	sentence, err := nmea.Parse(line)
	if err != nil {
		return GeoFix{}, false
	}
	gga, ok := sentence.(nmea.GGA)
	if !ok || gga.FixQuality == nmea.Invalid {
		return GeoFix{}, false
	}
	return GeoFix{Latitude: gga.Latitude, Longitude: gga.Longitude}, true
}
