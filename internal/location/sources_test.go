package location

import (
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/kelvins/geocoder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const ggaSentence = "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47"

type stubSource struct {
	id       SourceID
	enabled  bool
	coarse   bool
	lowPower bool
	last     *GeoFix
	fixes    []GeoFix
}

func (s *stubSource) ID() SourceID                { return s.id }
func (s *stubSource) Enabled() bool               { return s.enabled }
func (s *stubSource) Coarse() bool                { return s.coarse }
func (s *stubSource) LowPower() bool              { return s.lowPower }
func (s *stubSource) LastKnown() (*GeoFix, error) { return s.last, nil }

func (s *stubSource) Subscribe(onFix func(GeoFix)) (Registration, error) {
	for _, f := range s.fixes {
		onFix(f)
	}
	return newRegistration(func() {}), nil
}

func TestLegacyProvider_BestSource(t *testing.T) {
	gps := &stubSource{id: SourceGPS, enabled: true}
	network := &stubSource{id: SourceNetwork, enabled: true, coarse: true, lowPower: true}

	p := NewLegacyProvider(gps, network)
	id, ok := p.BestSource(Criteria{Coarse: true, LowPower: true})
	require.True(t, ok)
	assert.Equal(t, SourceNetwork, id)

	id, ok = p.BestSource(Criteria{})
	require.True(t, ok)
	assert.Equal(t, SourceGPS, id, "ties go to declaration order")

	network.enabled = false
	id, ok = p.BestSource(Criteria{Coarse: true, LowPower: true})
	require.True(t, ok)
	assert.Equal(t, SourceGPS, id)

	gps.enabled = false
	_, ok = p.BestSource(Criteria{})
	assert.False(t, ok)
}

func TestLegacyProvider_LastKnownFix(t *testing.T) {
	gps := &stubSource{id: SourceGPS, enabled: false, last: fixAt(1, 1, t0)}
	network := &stubSource{id: SourceNetwork, enabled: true, last: fixAt(2, 2, t0)}
	p := NewLegacyProvider(gps, network)

	assert.Equal(t, []SourceID{SourceGPS, SourceNetwork}, p.Sources())

	fix, err := p.LastKnownFix(SourceGPS)
	require.NoError(t, err)
	assert.Nil(t, fix, "disabled sources have no cached fix")

	fix, err = p.LastKnownFix(SourceNetwork)
	require.NoError(t, err)
	assert.Equal(t, 2.0, fix.Latitude)

	_, err = p.LastKnownFix("passive")
	assert.Error(t, err)
}

func TestLegacyProvider_RequestSingleUpdateDeliversOnce(t *testing.T) {
	src := &stubSource{id: SourceGPS, enabled: true, fixes: []GeoFix{{Latitude: 1}, {Latitude: 2}}}
	p := NewLegacyProvider(src)

	var got []GeoFix
	reg, err := p.RequestSingleUpdate(SourceGPS, func(f GeoFix) { got = append(got, f) })
	require.NoError(t, err)
	reg.Cancel()
	reg.Cancel()

	require.Len(t, got, 1)
	assert.Equal(t, 1.0, got[0].Latitude)
}

func TestLegacyProvider_RequestSingleUpdateRejectsDisabled(t *testing.T) {
	p := NewLegacyProvider(&stubSource{id: SourceGPS})

	_, err := p.RequestSingleUpdate(SourceGPS, func(GeoFix) {})
	assert.Error(t, err)

	_, err = p.RequestSingleUpdate(SourceNetwork, func(GeoFix) {})
	assert.Error(t, err)
}

func TestParseGGA(t *testing.T) {
	fix, ok := parseGGA(ggaSentence)
	require.True(t, ok)
	assert.InDelta(t, 48.1173, fix.Latitude, 1e-4)
	assert.InDelta(t, 11.516666, fix.Longitude, 1e-4)

	_, ok = parseGGA("$GPGGA,123519,4807.038,N,01131.000,E,0,08,0.9,545.4,M,46.9,M,,*46")
	assert.False(t, ok, "fix quality 0 is rejected")

	_, ok = parseGGA("$GPRMC,garbage")
	assert.False(t, ok)

	_, ok = parseGGA("not nmea")
	assert.False(t, ok)
}

func TestGPSSource_SubscribeDeliversAndCaches(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	src := NewGPSSource("", 4800, clock, zap.NewNop())
	assert.False(t, src.Enabled())

	src.open = func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("$GPGSV,noise\n" + ggaSentence + "\n")), nil
	}
	require.True(t, src.Enabled())

	fixes := make(chan GeoFix, 1)
	reg, err := src.Subscribe(func(f GeoFix) { fixes <- f })
	require.NoError(t, err)

	select {
	case f := <-fixes:
		assert.InDelta(t, 48.1173, f.Latitude, 1e-4)
		assert.Equal(t, t0, f.CapturedAt)
	case <-time.After(time.Second):
		t.Fatal("no fix delivered")
	}
	reg.Cancel()

	last, err := src.LastKnown()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.InDelta(t, 11.516666, last.Longitude, 1e-4)
}

func TestGPSSource_CancelUnblocksReader(t *testing.T) {
	src := NewGPSSource("", 4800, clockwork.NewFakeClock(), zap.NewNop())
	pr, pw := io.Pipe()
	defer pw.Close()
	src.open = func() (io.ReadCloser, error) { return pr, nil }

	called := false
	reg, err := src.Subscribe(func(GeoFix) { called = true })
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		reg.Cancel()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cancel did not return")
	}
	assert.False(t, called)

	last, _ := src.LastKnown()
	assert.Nil(t, last)
}

func TestGPSSource_OpenError(t *testing.T) {
	src := NewGPSSource("", 4800, clockwork.NewFakeClock(), zap.NewNop())
	src.open = func() (io.ReadCloser, error) { return nil, errors.New("no such device") }

	_, err := src.Subscribe(func(GeoFix) {})
	assert.EqualError(t, err, "no such device")
}

func TestGeocodedSource(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	src := NewGeocodedSource("", Address{City: "Prague", Country: "CZ"}, clock, zap.NewNop())
	assert.False(t, src.Enabled(), "no API key")
	assert.True(t, src.Coarse())
	assert.True(t, src.LowPower())

	var mu sync.Mutex
	var asked geocoder.Address
	src.geocode = func(a geocoder.Address) (geocoder.Location, error) {
		mu.Lock()
		asked = a
		mu.Unlock()
		return geocoder.Location{Latitude: 50.08, Longitude: 14.43}, nil
	}
	require.True(t, src.Enabled())

	fixes := make(chan GeoFix, 1)
	reg, err := src.Subscribe(func(f GeoFix) { fixes <- f })
	require.NoError(t, err)
	defer reg.Cancel()

	select {
	case f := <-fixes:
		assert.Equal(t, 50.08, f.Latitude)
		assert.Equal(t, t0, f.CapturedAt)
	case <-time.After(time.Second):
		t.Fatal("no fix delivered")
	}

	mu.Lock()
	assert.Equal(t, "Prague", asked.City)
	mu.Unlock()

	last, err := src.LastKnown()
	require.NoError(t, err)
	assert.Equal(t, 14.43, last.Longitude)
}

func TestGeocodedSource_DisabledWithoutAddress(t *testing.T) {
	src := NewGeocodedSource("", Address{}, clockwork.NewFakeClock(), zap.NewNop())
	src.geocode = func(geocoder.Address) (geocoder.Location, error) { return geocoder.Location{}, nil }

	assert.False(t, src.Enabled())
	_, err := src.Subscribe(func(GeoFix) {})
	assert.Error(t, err)
}

func TestParseNmcliOutput(t *testing.T) {
	out := "AA\\:BB\\:CC\\:DD\\:EE\\:FF:72\n" +
		"garbage\n" +
		"11\\:22\\:33\\:44\\:55:50\n" +
		"00\\:14\\:22\\:01\\:23\\:45:100\n"

	aps, err := parseNmcliOutput(out)
	require.NoError(t, err)
	require.Len(t, aps, 2)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", aps[0].MACAddress)
	assert.Equal(t, -64.0, aps[0].SignalStrength)
	assert.Equal(t, -50.0, aps[1].SignalStrength)
}

func TestSignalToDBm_Clamps(t *testing.T) {
	assert.Equal(t, -100.0, signalToDBm(-5))
	assert.Equal(t, -50.0, signalToDBm(150))
}
