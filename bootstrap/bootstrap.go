// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/chatgate/chatgate/adapters/auth"
	"github.com/chatgate/chatgate/adapters/clock"
	chathttp "github.com/chatgate/chatgate/adapters/http"
	"github.com/chatgate/chatgate/adapters/idgen"
	"github.com/chatgate/chatgate/adapters/metrics"
	"github.com/chatgate/chatgate/adapters/openai"
	"github.com/chatgate/chatgate/adapters/payment"
	"github.com/chatgate/chatgate/adapters/sqlite"
	"github.com/chatgate/chatgate/app"
	"github.com/chatgate/chatgate/config"
	"github.com/chatgate/chatgate/domain/plan"
	"github.com/chatgate/chatgate/ports"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Config
	DB         *sqlite.DB
	HTTPServer *http.Server
	Metrics    *metrics.Collector

	// Services
	Meter *app.MeterService
	Gate  *app.GateService
	Subs  *app.SubscriptionService

	// Stores
	Entitlements ports.EntitlementStore
	Users        ports.UserStore

	holder *config.Holder
}

// New creates and initializes the application from configuration.
func New(cfg *config.Config) (*App, error) {
	logger := SetupLogger(cfg.Logging)

	logger.Info().Msg("initializing chatgate")

	a := &App{
		Logger: logger,
		Config: cfg,
	}

	db, err := sqlite.Open(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	a.DB = db
	logger.Info().Str("dsn", cfg.Database.DSN).Msg("database initialized")

	registry, err := BuildRegistry(cfg.Plans)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("build plan registry: %w", err)
	}

	collector, promRegistry := metrics.New()
	a.Metrics = collector

	entitlements := sqlite.NewEntitlementStore(db)
	users := sqlite.NewUserStore(db)
	subs := sqlite.NewSubscriptionStore(db)
	a.Entitlements = entitlements
	a.Users = users

	realClock := clock.Real{}

	a.Meter = app.NewMeterService(entitlements, realClock, app.MeterConfig{
		Registry:   registry,
		OwnerEmail: cfg.Owner.Email,
	})

	completer := openai.New(openai.Config{
		APIKey:    cfg.OpenAI.APIKey,
		BaseURL:   cfg.OpenAI.BaseURL,
		AccountID: cfg.OpenAI.AccountID,
		GatewayID: cfg.OpenAI.GatewayID,
		Timeout:   cfg.OpenAI.Timeout,
	})

	a.Gate = app.NewGateService(app.GateDeps{
		Meter:     a.Meter,
		Completer: completer,
		Metrics:   collector,
		Clock:     realClock,
		Log:       logger,
	})

	provider, err := payment.NewProvider(cfg.Billing)
	if err != nil {
		logger.Warn().Err(err).Msg("payment provider unavailable, billing disabled")
		provider = payment.NewNoopProvider()
	}

	a.Subs = app.NewSubscriptionService(app.SubscriptionDeps{
		Entitlements: entitlements,
		Subs:         subs,
		Provider:     provider,
		Metrics:      collector,
		Clock:        realClock,
		Log:          logger,
	}, CheckoutConfigFor(cfg))

	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	handler := chathttp.NewHandler(chathttp.HandlerDeps{
		Gate:   a.Gate,
		Meter:  a.Meter,
		Subs:   a.Subs,
		Users:  users,
		Tokens: tokens,
		IDGen:  idgen.UUID{},
		Clock:  realClock,
		Logger: logger,
	})

	routerCfg := chathttp.RouterConfig{Metrics: collector}
	if cfg.Metrics.Enabled {
		routerCfg.MetricsHandler = promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{
			Registry: promRegistry,
		})
	}

	router := chathttp.NewRouter(handler, logger, routerCfg)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	a.HTTPServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info().Str("addr", addr).Msg("http server configured")
	return a, nil
}

// WatchConfig starts hot reloading of the given config file. Plan,
// owner, and checkout configuration are swapped without a restart.
func (a *App) WatchConfig(path string) error {
	holder, err := config.NewHolder(path, a.Logger)
	if err != nil {
		return err
	}

	holder.OnChange(func(cfg *config.Config) {
		registry, err := BuildRegistry(cfg.Plans)
		if err != nil {
			a.Logger.Error().Err(err).Msg("reloaded config has invalid plans, keeping previous registry")
			return
		}
		a.Meter.UpdateConfig(app.MeterConfig{
			Registry:   registry,
			OwnerEmail: cfg.Owner.Email,
		})
		a.Subs.UpdateConfig(CheckoutConfigFor(cfg))
		a.Metrics.ConfigReloads.Inc()
		a.Logger.Info().Int("plans", len(cfg.Plans)).Msg("runtime configuration updated")
	})

	if err := holder.WatchFile(); err != nil {
		return err
	}
	holder.WatchSignals()

	a.holder = holder
	return nil
}

// Run starts the HTTP server and blocks until shutdown.
func (a *App) Run() error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", a.HTTPServer.Addr).Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.holder != nil {
		a.holder.Stop()
	}

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// BuildRegistry converts configured plans into a registry.
func BuildRegistry(plans []config.PlanConfig) (*plan.Registry, error) {
	out := make([]plan.Plan, 0, len(plans))
	for _, p := range plans {
		out = append(out, plan.Plan{
			ID:               p.ID,
			Name:             p.Name,
			MessagesPerMonth: p.MessagesPerMonth,
			PriceMonthly:     p.PriceMonthly,
			AllowedModels:    p.AllowedModels,
			LemonVariantID:   p.LemonVariantID,
			StripePriceID:    p.StripePriceID,
		})
	}
	return plan.NewRegistry(out)
}

// CheckoutConfigFor builds the checkout price map for the active
// payment provider.
func CheckoutConfigFor(cfg *config.Config) app.CheckoutConfig {
	prices := make(map[string]string, len(cfg.Plans))
	for _, p := range cfg.Plans {
		switch cfg.Billing.Provider {
		case "lemonsqueezy":
			if p.LemonVariantID != "" {
				prices[p.ID] = p.LemonVariantID
			}
		case "stripe":
			if p.StripePriceID != "" {
				prices[p.ID] = p.StripePriceID
			}
		}
	}
	return app.CheckoutConfig{
		Prices:     prices,
		SuccessURL: cfg.Billing.SuccessURL,
		CancelURL:  cfg.Billing.CancelURL,
	}
}

// SetupLogger builds the zerolog logger from logging configuration.
func SetupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
