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

	"github.com/i474232898/always-on-dashboard/internal/common"
	"github.com/i474232898/always-on-dashboard/internal/weather"
)

// DefaultOpenWeatherBaseURL is the OpenWeatherMap API root.
const DefaultOpenWeatherBaseURL = "https://api.openweathermap.org"

// OpenWeatherFetcher implements weather.Fetcher against the OpenWeatherMap
// current weather and 5 day / 3 hour forecast endpoints.
type OpenWeatherFetcher struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	now     func() time.Time
}

// NewOpenWeatherFetcher creates a fetcher. An empty baseURL selects
// DefaultOpenWeatherBaseURL.
func NewOpenWeatherFetcher(client *http.Client, baseURL string, backoff BackoffConfig, logger *zap.Logger) *OpenWeatherFetcher {
	if baseURL == "" {
		baseURL = DefaultOpenWeatherBaseURL
	}
	logger = logger.Named("openweather")

	return &OpenWeatherFetcher{
		name:    "openweathermap",
		baseURL: strings.TrimRight(baseURL, "/"),
		httpCfg: HTTPClientConfig{Client: client, Backoff: backoff, Logger: logger},
		circuit: newCircuitBreaker("openweather", logger),
		now:     time.Now,
	}
}

func (p *OpenWeatherFetcher) Name() string {
	return p.name
}

type owCondition struct {
	Description *string `json:"description"`
	Icon        *string `json:"icon"`
}

type owMain struct {
	Temp      float64  `json:"temp"`
	FeelsLike float64  `json:"feels_like"`
	TempMin   *float64 `json:"temp_min"`
	TempMax   *float64 `json:"temp_max"`
	Humidity  *int     `json:"humidity"`
}

type owCurrentResponse struct {
	Weather []owCondition `json:"weather"`
	Main    *owMain       `json:"main"`
	Wind    *struct {
		Speed *float64 `json:"speed"`
	} `json:"wind"`
	Sys *struct {
		Sunrise *int64 `json:"sunrise"`
		Sunset  *int64 `json:"sunset"`
	} `json:"sys"`
}

type owForecastResponse struct {
	City struct {
		Name     *string `json:"name"`
		Timezone *int    `json:"timezone"`
	} `json:"city"`
	List []struct {
		Dt      int64         `json:"dt"`
		Main    owMain        `json:"main"`
		Weather []owCondition `json:"weather"`
		Pop     *float64      `json:"pop"`
	} `json:"list"`
}

// Fetch reads current conditions and the forecast for lat/lon in units.
// A blank credential fails before any request is made.
func (p *OpenWeatherFetcher) Fetch(ctx context.Context, lat, lon float64, units weather.UnitSystem, credential string) (weather.Snapshot, error) {
	ctx, span := startSpan(ctx, "openweather.fetch", trace.WithAttributes(
		attribute.Float64("lat", lat),
		attribute.Float64("lon", lon),
		attribute.String("units", units.APIValue()),
	))
	defer span.End()

	credential = strings.TrimSpace(credential)
	if credential == "" {
		err := weather.NewFetchError(weather.KindMissingCredential, weather.ErrCredentialMissing)
		recordError(span, err, "API key is not set")
		return weather.Snapshot{}, err
	}

	values := url.Values{}
	values.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	values.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	values.Set("units", units.APIValue())
	values.Set("appid", credential)
	query := values.Encode()

	var current owCurrentResponse
	if err := getJSON(ctx, p.httpCfg, p.circuit, fmt.Sprintf("%s/data/2.5/weather?%s", p.baseURL, query), &current); err != nil {
		recordError(span, err, "failed to get current weather")
		return weather.Snapshot{}, err
	}
	if current.Main == nil {
		err := weather.NewFetchError(weather.KindDecode, fmt.Errorf("current weather response has no main block"))
		recordError(span, err, "failed to decode current weather")
		return weather.Snapshot{}, err
	}

	var forecast owForecastResponse
	if err := getJSON(ctx, p.httpCfg, p.circuit, fmt.Sprintf("%s/data/2.5/forecast?%s", p.baseURL, query), &forecast); err != nil {
		recordError(span, err, "failed to get forecast")
		return weather.Snapshot{}, err
	}

	return p.toSnapshot(current, forecast), nil
}

func (p *OpenWeatherFetcher) toSnapshot(current owCurrentResponse, forecast owForecastResponse) weather.Snapshot {
	offset := 0
	if forecast.City.Timezone != nil {
		offset = *forecast.City.Timezone
	}
	zone := time.FixedZone("", offset)

	desc, icon := firstCondition(current.Weather)
	snap := weather.Snapshot{
		LocationLabel: "Current location",
		Current: weather.Current{
			Temperature: current.Main.Temp,
			FeelsLike:   current.Main.FeelsLike,
			Description: common.FirstNonBlank(common.Capitalize(desc), "Unknown"),
			Icon:        icon,
			Humidity:    current.Main.Humidity,
		},
	}
	if forecast.City.Name != nil && *forecast.City.Name != "" {
		snap.LocationLabel = *forecast.City.Name
	}
	if current.Wind != nil {
		snap.Current.WindSpeed = current.Wind.Speed
	}
	if current.Sys != nil {
		snap.Sunrise = unixPtr(current.Sys.Sunrise)
		snap.Sunset = unixPtr(current.Sys.Sunset)
	}

	points := make([]weather.ForecastPoint, 0, len(forecast.List))
	for _, item := range forecast.List {
		d, ic := firstCondition(item.Weather)
		points = append(points, weather.ForecastPoint{
			Time:                time.Unix(item.Dt, 0).UTC(),
			Temperature:         item.Main.Temp,
			TempMin:             item.Main.TempMin,
			TempMax:             item.Main.TempMax,
			Description:         common.Capitalize(d),
			Icon:                ic,
			PrecipitationChance: item.Pop,
		})
	}
	snap.Hourly, snap.Tomorrow = weather.AggregateForecast(points, zone, p.now())

	return snap
}

func firstCondition(items []owCondition) (string, *string) {
	if len(items) == 0 {
		return "", nil
	}
	desc := ""
	if items[0].Description != nil {
		desc = *items[0].Description
	}
	return desc, items[0].Icon
}

func unixPtr(sec *int64) *time.Time {
	if sec == nil {
		return nil
	}
	t := time.Unix(*sec, 0).UTC()
	return &t
}
