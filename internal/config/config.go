package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/i474232898/always-on-dashboard/internal/location"
	"github.com/i474232898/always-on-dashboard/internal/weather"
)

// BuildAPIKey is the OpenWeather key baked in at build time:
//
//	go build -ldflags "-X github.com/i474232898/always-on-dashboard/internal/config.BuildAPIKey=..."
var BuildAPIKey string

const (
	ProviderOpenWeather = "openweather"
	ProviderOpenMeteo   = "openmeteo"
)

type AppConfig struct {
	Port     string
	LogLevel string

	// Weather provider selection and credentials.
	WeatherProvider    string
	OpenWeatherAPIKey  string
	OpenWeatherBaseURL string
	OpenMeteoBaseURL   string
	HTTPTimeout        time.Duration
	WeatherMaxRetries  int

	// RefreshInterval controls how often the weather is refreshed automatically.
	RefreshInterval time.Duration

	// Region selects the default unit system.
	Region string

	// Location providers.
	GoogleMapsAPIKey      string
	WiFiScan              bool
	GPSDevicePort         string
	GPSBaudRate           int
	LegacyLocationTimeout time.Duration
	FallbackAddress       location.Address

	CalendarDB string

	// Initial permission levels.
	LocationPermission bool
	CalendarPermission bool

	// In-memory history retention.
	StoreMaxHistory int           // max number of refreshes kept (0 = unlimited)
	StoreMaxAge     time.Duration // max age of refreshes (0 = unlimited)

	OTLPEndpoint string

	// DotEnvLoaded reports whether a .env file was read.
	DotEnvLoaded bool
}

// Units is the default unit system for the configured region.
func (c *AppConfig) Units() weather.UnitSystem {
	return weather.UnitSystemForRegion(c.Region)
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{}
	cfg.DotEnvLoaded = godotenv.Load() == nil

	cfg.Port = getenvDefault("PORT", "8080")
	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")

	cfg.WeatherProvider = strings.ToLower(getenvDefault("WEATHER_PROVIDER", ProviderOpenWeather))
	if cfg.WeatherProvider != ProviderOpenWeather && cfg.WeatherProvider != ProviderOpenMeteo {
		return nil, fmt.Errorf("invalid WEATHER_PROVIDER %q: want %s or %s", cfg.WeatherProvider, ProviderOpenWeather, ProviderOpenMeteo)
	}
	cfg.OpenWeatherAPIKey = strings.TrimSpace(getenvDefault("OPENWEATHER_API_KEY", BuildAPIKey))
	cfg.OpenWeatherBaseURL = os.Getenv("OPENWEATHER_BASE_URL")
	cfg.OpenMeteoBaseURL = os.Getenv("OPENMETEO_BASE_URL")

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.WeatherMaxRetries, err = getenvInt("WEATHER_MAX_RETRIES", 0); err != nil {
		return nil, err
	}
	if cfg.WeatherMaxRetries < 0 {
		return nil, fmt.Errorf("invalid WEATHER_MAX_RETRIES: must not be negative")
	}

	// Refresh interval: default 15 minutes.
	if cfg.RefreshInterval, err = getenvDuration("REFRESH_INTERVAL", "15m"); err != nil {
		return nil, err
	}
	if cfg.LegacyLocationTimeout, err = getenvDuration("LOCATION_LEGACY_TIMEOUT", "12s"); err != nil {
		return nil, err
	}

	cfg.Region = os.Getenv("REGION")
	if cfg.Region == "" {
		cfg.Region = weather.RegionFromLocale(getenvDefault("LC_ALL", os.Getenv("LANG")))
	}

	cfg.GoogleMapsAPIKey = os.Getenv("GOOGLE_MAPS_API_KEY")
	if cfg.WiFiScan, err = getenvBool("LOCATION_WIFI_SCAN", false); err != nil {
		return nil, err
	}
	cfg.GPSDevicePort = os.Getenv("GPS_DEVICE_PORT")
	if cfg.GPSBaudRate, err = getenvInt("GPS_BAUD_RATE", 4800); err != nil {
		return nil, err
	}
	cfg.FallbackAddress = location.Address{
		Street:  os.Getenv("LOCATION_FALLBACK_STREET"),
		City:    os.Getenv("LOCATION_FALLBACK_CITY"),
		State:   os.Getenv("LOCATION_FALLBACK_STATE"),
		Country: os.Getenv("LOCATION_FALLBACK_COUNTRY"),
	}

	cfg.CalendarDB = os.Getenv("CALENDAR_DB")
	if cfg.LocationPermission, err = getenvBool("PERMISSION_LOCATION", true); err != nil {
		return nil, err
	}
	if cfg.CalendarPermission, err = getenvBool("PERMISSION_CALENDAR", cfg.CalendarDB != ""); err != nil {
		return nil, err
	}

	// Store retention.
	if cfg.StoreMaxHistory, err = getenvInt("STORE_MAX_HISTORY", 96); err != nil { // roughly 24h at 15-minute intervals
		return nil, err
	}
	if cfg.StoreMaxAge, err = getenvDuration("STORE_MAX_AGE", "24h"); err != nil {
		return nil, err
	}

	cfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getenvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
