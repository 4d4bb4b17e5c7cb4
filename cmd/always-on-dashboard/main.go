package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	httpapi "github.com/i474232898/always-on-dashboard/internal/api/http"
	"github.com/i474232898/always-on-dashboard/internal/calendar"
	"github.com/i474232898/always-on-dashboard/internal/config"
	"github.com/i474232898/always-on-dashboard/internal/dashboard"
	"github.com/i474232898/always-on-dashboard/internal/location"
	"github.com/i474232898/always-on-dashboard/internal/scheduler"
	"github.com/i474232898/always-on-dashboard/internal/store"
	"github.com/i474232898/always-on-dashboard/internal/telemetry"
	"github.com/i474232898/always-on-dashboard/internal/weather"
	"github.com/i474232898/always-on-dashboard/internal/weather/providers"
)

const serviceName = "always-on-dashboard"

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer zl.Sync()

	if !cfg.DotEnvLoaded {
		zl.Info("No .env file found, using process environment")
	}

	shutdownTracing, err := telemetry.Setup(serviceName, cfg.OTLPEndpoint, zl)
	if err != nil {
		zl.Fatal("Failed to set up tracing", zap.Error(err))
	}

	clock := clockwork.NewRealClock()

	// Location: fused primary provider with the legacy sources as fallback.
	var primary location.PrimaryProvider = location.UnavailablePrimary{}
	if cfg.GoogleMapsAPIKey != "" {
		gp, err := location.NewGoogleProvider(cfg.GoogleMapsAPIKey, cfg.WiFiScan, clock, zl)
		if err != nil {
			zl.Fatal("Failed to create geolocation client", zap.Error(err))
		}
		primary = gp
	} else {
		zl.Warn("GOOGLE_MAPS_API_KEY not set, primary location provider disabled")
	}

	gps := location.NewGPSSource(cfg.GPSDevicePort, cfg.GPSBaudRate, clock, zl)
	geocoded := location.NewGeocodedSource(cfg.GoogleMapsAPIKey, cfg.FallbackAddress, clock, zl)
	acquirer := location.NewAcquirer(primary, location.NewLegacyProvider(gps, geocoded),
		location.WithClock(clock),
		location.WithLegacyTimeout(cfg.LegacyLocationTimeout),
		location.WithLogger(zl),
	)

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}
	backoff := providers.DefaultBackoff
	backoff.MaxRetries = cfg.WeatherMaxRetries

	var fetcher weather.Fetcher
	switch cfg.WeatherProvider {
	case config.ProviderOpenMeteo:
		fetcher = providers.NewOpenMeteoFetcher(httpClient, cfg.OpenMeteoBaseURL, backoff, zl)
	default:
		fetcher = providers.NewOpenWeatherFetcher(httpClient, cfg.OpenWeatherBaseURL, backoff, zl)
	}

	sched := scheduler.New(zl)
	defer sched.Stop()

	weatherSvc := weather.NewService(acquirer, fetcher, sched,
		weather.WithClock(clock),
		weather.WithLogger(zl),
		weather.WithInterval(cfg.RefreshInterval),
		weather.WithDefaultCredential(cfg.OpenWeatherAPIKey),
		weather.WithUnits(cfg.Units()),
	)
	defer weatherSvc.Close()

	// In-memory store with configured retention.
	memStore := store.NewMemoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge, clock)

	dashOpts := []dashboard.Option{
		dashboard.WithClock(clock),
		dashboard.WithLogger(zl),
		dashboard.WithHistory(memStore),
	}
	if cfg.CalendarDB != "" {
		cal, err := calendar.NewSQLiteSource(cfg.CalendarDB, zl)
		if err != nil {
			zl.Error("Calendar unavailable", zap.String("path", cfg.CalendarDB), zap.Error(err))
		} else {
			defer cal.Close()
			dashOpts = append(dashOpts, dashboard.WithCalendar(cal))
		}
	}
	dash := dashboard.NewService(weatherSvc, dashOpts...)
	dash.Start()
	defer dash.Stop()

	zl.Info("Dashboard configured",
		zap.String("provider", fetcher.Name()),
		zap.Stringer("units", cfg.Units()),
		zap.Duration("refresh_interval", cfg.RefreshInterval))

	dash.OnPermissionsChanged(cfg.LocationPermission, cfg.CalendarPermission)

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": serviceName,
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, dash, weatherSvc, memStore)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			zl.Info("Fiber server stopped", zap.Error(err))
		}
	}()
	zl.Info("HTTP server listening", zap.String("port", cfg.Port))

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		zl.Error("Error during shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		zl.Error("Error flushing traces", zap.Error(err))
	}
	zl.Info("Shutting down")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = lvl
	return zc.Build()
}
