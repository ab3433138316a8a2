package app

import (
	"os"
	"time"

	"github.com/wawa9149/speech-gateway/internal/config"
	"github.com/wawa9149/speech-gateway/internal/observability/logging"

	"github.com/rs/zerolog"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration
}

// New constructs a new Application from the provided configuration.
func New(cfg *config.Configuration) *Application {
	a := &Application{
		Cfg: cfg,
	}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("component", "application").
		Str("method", "New").
		Logger()

	appLogger.Info().Msg("speech gateway application created")
	return a
}

// setupLogger configures zerolog for the service from the loaded
// observability config, falling back to console output in dev.
func (a *Application) setupLogger() {
	format := a.Cfg.Observability.LogFormat
	if os.Getenv("ENV") == "dev" {
		format = "console"
	}

	logging.Init(logging.Config{
		Level:      a.Cfg.Observability.LogLevel,
		Format:     format,
		TimeFormat: time.RFC3339,
	})

	a.Logger = logging.Logger().With().
		Str("service", "speech-gateway").
		Str("component", "application").
		Logger()

	a.Logger.Info().
		Str("logLevel", a.Cfg.Observability.LogLevel).
		Str("environment", os.Getenv("ENV")).
		Msg("Logger setup completed")
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Msg("speech gateway starting")

	return nil
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown() {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	shutdownLogger.Info().Msg("speech gateway shutting down")
}

