package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/i474232898/always-on-dashboard/internal/weather"
)

// DefaultOpenMeteoBaseURL is the Open-Meteo API root.
const DefaultOpenMeteoBaseURL = "https://api.open-meteo.com"

// OpenMeteoFetcher implements weather.Fetcher for Open-Meteo, which needs no
// API key. The credential argument is ignored.
type OpenMeteoFetcher struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	now     func() time.Time
}

func NewOpenMeteoFetcher(client *http.Client, baseURL string, backoff BackoffConfig, logger *zap.Logger) *OpenMeteoFetcher {
	if baseURL == "" {
		baseURL = DefaultOpenMeteoBaseURL
	}
	logger = logger.Named("openmeteo")

	return &OpenMeteoFetcher{
		name:    "openmeteo",
		baseURL: strings.TrimRight(baseURL, "/"),
		httpCfg: HTTPClientConfig{Client: client, Backoff: backoff, Logger: logger},
		circuit: newCircuitBreaker("openmeteo", logger),
		now:     time.Now,
	}
}

func (p *OpenMeteoFetcher) Name() string {
	return p.name
}

type omResponse struct {
	UTCOffsetSeconds int `json:"utc_offset_seconds"`
	Current          *struct {
		Temperature      float64  `json:"temperature_2m"`
		ApparentTemp     *float64 `json:"apparent_temperature"`
		RelativeHumidity *int     `json:"relative_humidity_2m"`
		WindSpeed        *float64 `json:"wind_speed_10m"`
		WeatherCode      *int     `json:"weather_code"`
		IsDay            *int     `json:"is_day"`
	} `json:"current"`
	Hourly struct {
		Time                     []int64    `json:"time"`
		Temperature              []float64  `json:"temperature_2m"`
		PrecipitationProbability []*float64 `json:"precipitation_probability"`
		WeatherCode              []*int     `json:"weather_code"`
		IsDay                    []*int     `json:"is_day"`
	} `json:"hourly"`
	Daily struct {
		Time        []int64   `json:"time"`
		TempMax     []float64 `json:"temperature_2m_max"`
		TempMin     []float64 `json:"temperature_2m_min"`
		WeatherCode []*int    `json:"weather_code"`
		Sunrise     []int64   `json:"sunrise"`
		Sunset      []int64   `json:"sunset"`
	} `json:"daily"`
}

func (p *OpenMeteoFetcher) Fetch(ctx context.Context, lat, lon float64, units weather.UnitSystem, _ string) (weather.Snapshot, error) {
	ctx, span := startSpan(ctx, "openmeteo.fetch", trace.WithAttributes(
		attribute.Float64("lat", lat),
		attribute.Float64("lon", lon),
		attribute.String("units", units.APIValue()),
	))
	defer span.End()

	values := url.Values{}
	values.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	values.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	values.Set("current", "temperature_2m,apparent_temperature,relative_humidity_2m,wind_speed_10m,weather_code,is_day")
	values.Set("hourly", "temperature_2m,precipitation_probability,weather_code,is_day")
	values.Set("daily", "temperature_2m_max,temperature_2m_min,weather_code,sunrise,sunset")
	values.Set("timeformat", "unixtime")
	values.Set("timezone", "auto")
	values.Set("forecast_days", "3")
	if units == weather.Imperial {
		values.Set("temperature_unit", "fahrenheit")
		values.Set("wind_speed_unit", "mph")
	} else {
		values.Set("temperature_unit", "celsius")
		values.Set("wind_speed_unit", "ms")
	}

	var payload omResponse
	if err := getJSON(ctx, p.httpCfg, p.circuit, fmt.Sprintf("%s/v1/forecast?%s", p.baseURL, values.Encode()), &payload); err != nil {
		recordError(span, err, "failed to get forecast")
		return weather.Snapshot{}, err
	}
	if payload.Current == nil {
		err := weather.NewFetchError(weather.KindDecode, fmt.Errorf("forecast response has no current block"))
		recordError(span, err, "failed to decode forecast")
		return weather.Snapshot{}, err
	}
	if len(payload.Hourly.Temperature) < len(payload.Hourly.Time) {
		err := weather.NewFetchError(weather.KindDecode, fmt.Errorf("hourly series lengths differ"))
		recordError(span, err, "failed to decode forecast")
		return weather.Snapshot{}, err
	}

	return p.toSnapshot(payload), nil
}

func (p *OpenMeteoFetcher) toSnapshot(payload omResponse) weather.Snapshot {
	zone := time.FixedZone("", payload.UTCOffsetSeconds)
	now := p.now()
	cur := payload.Current

	snap := weather.Snapshot{
		LocationLabel: "Current location",
		Current: weather.Current{
			Temperature: cur.Temperature,
			FeelsLike:   cur.Temperature,
			Description: wmoDescription(cur.WeatherCode),
			Icon:        wmoIcon(cur.WeatherCode, cur.IsDay),
			Humidity:    cur.RelativeHumidity,
			WindSpeed:   cur.WindSpeed,
		},
	}
	if cur.ApparentTemp != nil {
		snap.Current.FeelsLike = *cur.ApparentTemp
	}

	// The hourly series starts at local midnight; the strip starts at the current hour.
	from := now.Truncate(time.Hour)
	var points []weather.ForecastPoint
	for i, ts := range payload.Hourly.Time {
		t := time.Unix(ts, 0).UTC()
		if t.Before(from) {
			continue
		}
		code := at(payload.Hourly.WeatherCode, i)
		points = append(points, weather.ForecastPoint{
			Time:                t,
			Temperature:         payload.Hourly.Temperature[i],
			Description:         wmoDescription(code),
			Icon:                wmoIcon(code, at(payload.Hourly.IsDay, i)),
			PrecipitationChance: percentToChance(at(payload.Hourly.PrecipitationProbability, i)),
		})
	}
	snap.Hourly, snap.Tomorrow = weather.AggregateForecast(points, zone, now)

	d := payload.Daily
	if i := tomorrowIndex(d.Time, zone, now); i >= 0 && i < len(d.TempMin) && i < len(d.TempMax) {
		code := at(d.WeatherCode, i)
		snap.Tomorrow = &weather.Daily{
			Date:        time.Unix(d.Time[i], 0).In(zone),
			MinTemp:     d.TempMin[i],
			MaxTemp:     d.TempMax[i],
			Description: wmoDescription(code),
			Icon:        wmoIcon(code, nil),
		}
	}
	if i := todayIndex(d.Time, zone, now); i >= 0 {
		if i < len(d.Sunrise) {
			t := time.Unix(d.Sunrise[i], 0).UTC()
			snap.Sunrise = &t
		}
		if i < len(d.Sunset) {
			t := time.Unix(d.Sunset[i], 0).UTC()
			snap.Sunset = &t
		}
	}

	return snap
}

func dayIndex(days []int64, zone *time.Location, day time.Time) int {
	y, m, dd := day.Date()
	for i, ts := range days {
		ty, tm, td := time.Unix(ts, 0).In(zone).Date()
		if ty == y && tm == m && td == dd {
			return i
		}
	}
	return -1
}

func todayIndex(days []int64, zone *time.Location, now time.Time) int {
	return dayIndex(days, zone, now.In(zone))
}

func tomorrowIndex(days []int64, zone *time.Location, now time.Time) int {
	return dayIndex(days, zone, now.In(zone).AddDate(0, 0, 1))
}

func at[T any](values []*T, i int) *T {
	if i < len(values) {
		return values[i]
	}
	return nil
}

func percentToChance(pct *float64) *float64 {
	if pct == nil {
		return nil
	}
	v := *pct / 100
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return &v
}

// WMO weather interpretation codes.
var wmoDescriptions = map[int]string{
	0:  "Clear sky",
	1:  "Mainly clear",
	2:  "Partly cloudy",
	3:  "Overcast",
	45: "Foggy",
	48: "Depositing rime fog",
	51: "Light drizzle",
	53: "Moderate drizzle",
	55: "Dense drizzle",
	56: "Light freezing drizzle",
	57: "Dense freezing drizzle",
	61: "Slight rain",
	63: "Moderate rain",
	65: "Heavy rain",
	66: "Light freezing rain",
	67: "Heavy freezing rain",
	71: "Slight snow fall",
	73: "Moderate snow fall",
	75: "Heavy snow fall",
	77: "Snow grains",
	80: "Slight rain showers",
	81: "Moderate rain showers",
	82: "Violent rain showers",
	85: "Slight snow showers",
	86: "Heavy snow showers",
	95: "Thunderstorm",
	96: "Thunderstorm with slight hail",
	99: "Thunderstorm with heavy hail",
}

func wmoDescription(code *int) string {
	if code == nil {
		return "Unknown"
	}
	if desc, ok := wmoDescriptions[*code]; ok {
		return desc
	}
	return "Unknown"
}

// wmoIcon maps a WMO code to an OpenWeather icon code.
func wmoIcon(code *int, isDay *int) *string {
	if code == nil {
		return nil
	}

	var base string
	switch c := *code; {
	case c == 0:
		base = "01"
	case c <= 2:
		base = "02"
	case c == 3:
		base = "04"
	case c <= 48:
		base = "50"
	case c <= 57:
		base = "09"
	case c <= 67:
		base = "10"
	case c <= 77:
		base = "13"
	case c <= 82:
		base = "09"
	case c <= 86:
		base = "13"
	default:
		base = "11"
	}

	suffix := "d"
	if isDay != nil && *isDay == 0 {
		suffix = "n"
	}
	icon := base + suffix
	return &icon
}
