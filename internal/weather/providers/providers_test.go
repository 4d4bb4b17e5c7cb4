package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/i474232898/always-on-dashboard/internal/weather"
)

// 2026-10-14 08:00 UTC.
var fetchNow = time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)

const owCurrentBody = `{
  "weather": [{"id": 500, "main": "Rain", "description": "light rain", "icon": "10d"}],
  "main": {"temp": 12.5, "feels_like": 11.2, "humidity": 81},
  "wind": {"speed": 4.1},
  "sys": {"sunrise": 1791952800, "sunset": 1791991200}
}`

// Forecast points at 09:00 and 12:00 on the 14th and 03:00 and 15:00 on the 15th, UTC+2.
const owForecastBody = `{
  "city": {"name": "Prague", "timezone": 7200},
  "list": [
    {"dt": 1791961200, "main": {"temp": 13, "feels_like": 12, "temp_min": 12, "temp_max": 14}, "weather": [{"description": "overcast clouds", "icon": "04d"}], "pop": 0.2},
    {"dt": 1791972000, "main": {"temp": 15, "feels_like": 14}, "weather": [], "pop": 0},
    {"dt": 1792026000, "main": {"temp": 8, "feels_like": 7, "temp_min": 7.5, "temp_max": 8.5}, "weather": [{"description": "clear sky", "icon": "01n"}]},
    {"dt": 1792069200, "main": {"temp": 17, "feels_like": 16, "temp_min": 16, "temp_max": 18}, "weather": [{"description": "few clouds", "icon": "02d"}], "pop": 0.1}
  ]
}`

func newOpenWeather(t *testing.T, handler http.HandlerFunc) *OpenWeatherFetcher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p := NewOpenWeatherFetcher(srv.Client(), srv.URL, DefaultBackoff, zap.NewNop())
	p.now = func() time.Time { return fetchNow }
	return p
}

func TestOpenWeather_Fetch(t *testing.T) {
	var paths []string
	p := newOpenWeather(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "50.08", q.Get("lat"))
		assert.Equal(t, "14.43", q.Get("lon"))
		assert.Equal(t, "metric", q.Get("units"))
		assert.Equal(t, "secret", q.Get("appid"))

		switch r.URL.Path {
		case "/data/2.5/weather":
			fmt.Fprint(w, owCurrentBody)
		case "/data/2.5/forecast":
			fmt.Fprint(w, owForecastBody)
		default:
			http.NotFound(w, r)
		}
	})

	snap, err := p.Fetch(context.Background(), 50.08, 14.43, weather.Metric, " secret ")
	require.NoError(t, err)

	assert.Equal(t, []string{"/data/2.5/weather", "/data/2.5/forecast"}, paths)
	assert.Equal(t, "Prague", snap.LocationLabel)
	assert.Equal(t, 12.5, snap.Current.Temperature)
	assert.Equal(t, 11.2, snap.Current.FeelsLike)
	assert.Equal(t, "Light rain", snap.Current.Description)
	assert.Equal(t, "10d", *snap.Current.Icon)
	assert.Equal(t, 81, *snap.Current.Humidity)
	assert.Equal(t, 4.1, *snap.Current.WindSpeed)
	require.NotNil(t, snap.Sunrise)
	assert.Equal(t, int64(1791952800), snap.Sunrise.Unix())

	require.Len(t, snap.Hourly, 4)
	assert.Equal(t, int64(1791961200), snap.Hourly[0].Time.Unix())
	assert.Equal(t, 0.2, *snap.Hourly[0].PrecipitationChance)
	assert.Nil(t, snap.Hourly[1].Icon)

	require.NotNil(t, snap.Tomorrow)
	assert.Equal(t, 7.5, snap.Tomorrow.MinTemp)
	assert.Equal(t, 18.0, snap.Tomorrow.MaxTemp)
	assert.Equal(t, "Clear sky", snap.Tomorrow.Description)
	assert.True(t, snap.Tomorrow.Date.Equal(time.Date(2026, 10, 15, 0, 0, 0, 0, time.FixedZone("", 7200))))
}

func TestOpenWeather_DefaultsForMissingFields(t *testing.T) {
	p := newOpenWeather(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/data/2.5/weather" {
			fmt.Fprint(w, `{"weather": [], "main": {"temp": 70, "feels_like": 70}}`)
			return
		}
		fmt.Fprint(w, `{"city": {}, "list": []}`)
	})

	snap, err := p.Fetch(context.Background(), 1, 2, weather.Imperial, "secret")
	require.NoError(t, err)

	assert.Equal(t, "Current location", snap.LocationLabel)
	assert.Equal(t, "Unknown", snap.Current.Description)
	assert.Nil(t, snap.Current.Humidity)
	assert.Nil(t, snap.Current.WindSpeed)
	assert.Empty(t, snap.Hourly)
	assert.Nil(t, snap.Tomorrow)
}

func TestOpenWeather_MissingCredentialMakesNoRequest(t *testing.T) {
	var hits int32
	p := newOpenWeather(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	})

	_, err := p.Fetch(context.Background(), 1, 2, weather.Metric, "   ")

	var fe *weather.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, weather.KindMissingCredential, fe.Kind)
	assert.ErrorIs(t, err, weather.ErrCredentialMissing)
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestOpenWeather_ErrorKinds(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		p := newOpenWeather(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "invalid key", http.StatusUnauthorized)
		})
		_, err := p.Fetch(context.Background(), 1, 2, weather.Metric, "bad")

		var fe *weather.FetchError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, weather.KindNetwork, fe.Kind)
		assert.ErrorIs(t, err, errUnexpected)
	})

	t.Run("decode", func(t *testing.T) {
		p := newOpenWeather(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"main": `)
		})
		_, err := p.Fetch(context.Background(), 1, 2, weather.Metric, "key")

		var fe *weather.FetchError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, weather.KindDecode, fe.Kind)
	})

	t.Run("no main block", func(t *testing.T) {
		p := newOpenWeather(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"weather": []}`)
		})
		_, err := p.Fetch(context.Background(), 1, 2, weather.Metric, "key")

		var fe *weather.FetchError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, weather.KindDecode, fe.Kind)
	})
}

const omBody = `{
  "utc_offset_seconds": 7200,
  "current": {"temperature_2m": 12.3, "apparent_temperature": 10.9, "relative_humidity_2m": 77, "wind_speed_10m": 3.2, "weather_code": 61, "is_day": 1},
  "hourly": {
    "time": [1791928800, 1791964800, 1791968400, 1791972000],
    "temperature_2m": [9.0, 12.0, 12.5, 13.0],
    "precipitation_probability": [0, 40, null, 100],
    "weather_code": [0, 3, 61, 95],
    "is_day": [0, 1, 1, 1]
  },
  "daily": {
    "time": [1791928800, 1792015200, 1792101600],
    "temperature_2m_max": [15.0, 17.5, 16.0],
    "temperature_2m_min": [7.0, 6.5, 8.0],
    "weather_code": [61, 2, 3],
    "sunrise": [1791952800, 1792039260, 1792125720],
    "sunset": [1791991200, 1792077540, 1792163880]
  }
}`

func newOpenMeteo(t *testing.T, handler http.HandlerFunc) *OpenMeteoFetcher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p := NewOpenMeteoFetcher(srv.Client(), srv.URL, DefaultBackoff, zap.NewNop())
	p.now = func() time.Time { return fetchNow }
	return p
}

func TestOpenMeteo_Fetch(t *testing.T) {
	p := newOpenMeteo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/forecast", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "celsius", q.Get("temperature_unit"))
		assert.Equal(t, "ms", q.Get("wind_speed_unit"))
		assert.Equal(t, "unixtime", q.Get("timeformat"))
		fmt.Fprint(w, omBody)
	})

	snap, err := p.Fetch(context.Background(), 50.08, 14.43, weather.Metric, "")
	require.NoError(t, err)

	assert.Equal(t, 12.3, snap.Current.Temperature)
	assert.Equal(t, 10.9, snap.Current.FeelsLike)
	assert.Equal(t, "Slight rain", snap.Current.Description)
	assert.Equal(t, "10d", *snap.Current.Icon)
	assert.Equal(t, 77, *snap.Current.Humidity)

	// The midnight point is before the current hour.
	require.Len(t, snap.Hourly, 3)
	assert.Equal(t, int64(1791964800), snap.Hourly[0].Time.Unix())
	assert.Equal(t, 0.4, *snap.Hourly[0].PrecipitationChance)
	assert.Nil(t, snap.Hourly[1].PrecipitationChance)
	assert.Equal(t, 1.0, *snap.Hourly[2].PrecipitationChance)
	assert.Equal(t, "11d", *snap.Hourly[2].Icon)

	require.NotNil(t, snap.Tomorrow)
	assert.Equal(t, 6.5, snap.Tomorrow.MinTemp)
	assert.Equal(t, 17.5, snap.Tomorrow.MaxTemp)
	assert.Equal(t, "Partly cloudy", snap.Tomorrow.Description)
	assert.Equal(t, int64(1792015200), snap.Tomorrow.Date.Unix())

	require.NotNil(t, snap.Sunset)
	assert.Equal(t, int64(1791991200), snap.Sunset.Unix())
}

func TestOpenMeteo_ImperialParams(t *testing.T) {
	p := newOpenMeteo(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "fahrenheit", q.Get("temperature_unit"))
		assert.Equal(t, "mph", q.Get("wind_speed_unit"))
		fmt.Fprint(w, omBody)
	})

	_, err := p.Fetch(context.Background(), 1, 2, weather.Imperial, "")
	require.NoError(t, err)
}

func TestOpenMeteo_MissingCurrentIsDecodeError(t *testing.T) {
	p := newOpenMeteo(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"hourly": {}}`)
	})

	_, err := p.Fetch(context.Background(), 1, 2, weather.Metric, "")

	var fe *weather.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, weather.KindDecode, fe.Kind)
}

func TestWMOMapping(t *testing.T) {
	code := func(c int) *int { return &c }

	assert.Equal(t, "Clear sky", wmoDescription(code(0)))
	assert.Equal(t, "Unknown", wmoDescription(code(42)))
	assert.Equal(t, "Unknown", wmoDescription(nil))

	assert.Equal(t, "01n", *wmoIcon(code(0), code(0)))
	assert.Equal(t, "13d", *wmoIcon(code(73), nil))
	assert.Nil(t, wmoIcon(nil, nil))
}

func TestDoRequestWithResilience_RetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := HTTPClientConfig{
		Client:  srv.Client(),
		Backoff: BackoffConfig{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond},
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{Name: "test"})

	resp, err := doRequestWithResilience(context.Background(), cfg, cb, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestDoRequestWithResilience_NoRetriesByDefault(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cfg := HTTPClientConfig{Client: srv.Client(), Backoff: DefaultBackoff}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{Name: "test"})

	_, err := doRequestWithResilience(context.Background(), cfg, cb, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	})
	assert.ErrorIs(t, err, errRateLimited)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestDoRequestWithResilience_Config(t *testing.T) {
	build := func(ctx context.Context) (*http.Request, error) {
		return nil, errors.New("not reached")
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{Name: "test"})

	_, err := doRequestWithResilience(context.Background(), HTTPClientConfig{}, cb, build)
	assert.ErrorIs(t, err, errNoHTTPClient)

	_, err = doRequestWithResilience(context.Background(), HTTPClientConfig{Client: http.DefaultClient}, cb, build)
	assert.ErrorIs(t, err, errInvalidConfig)
}

func TestDoRequestWithResilience_OpenCircuit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := HTTPClientConfig{Client: srv.Client(), Backoff: DefaultBackoff}
	cb := newCircuitBreaker("test", zap.NewNop())
	build := func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	}

	for i := 0; i < 3; i++ {
		_, err := doRequestWithResilience(context.Background(), cfg, cb, build)
		assert.ErrorIs(t, err, errServerError)
	}
	_, err := doRequestWithResilience(context.Background(), cfg, cb, build)
	assert.ErrorIs(t, err, errCircuitOpen)
}
