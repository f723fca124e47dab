package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/solar-inverter-monitor/internal/config"
	httpHandlers "github.com/ANIKETSHETTY47/solar-inverter-monitor/internal/http"
	"github.com/ANIKETSHETTY47/solar-inverter-monitor/internal/metrics"
	"github.com/ANIKETSHETTY47/solar-inverter-monitor/internal/schedule"
	"github.com/ANIKETSHETTY47/solar-inverter-monitor/internal/service"
)

func main() {
	if err := config.Load(); err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	settings := config.Current()
	logger := config.SetupLogging(settings.LogLevel)
	if err := settings.ValidateRuntime(); err != nil {
		logger.Fatal().Err(err).Msg("invalid runtime configuration")
	}
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, settings, logger)
	stop()
	if err != nil {
		logger.Error().Err(err).Msg("server exit")
		os.Exit(1)
	}
}

// run serves until ctx is cancelled and closes the service connections before returning.
func run(ctx context.Context, settings config.Settings, logger zerolog.Logger) error {
	svcs, err := service.New(ctx, settings, logger)
	if err != nil {
		return fmt.Errorf("service init: %w", err)
	}
	defer svcs.Close()

	if settings.SchedulerEnabled {
		sched, err := schedule.NewScheduler(settings.Schedule, settings.ScheduleLocation, func(ctx context.Context, date time.Time) string {
			return svcs.Checker.RunCheck(ctx, &date)
		}, logger.With().Str("component", "scheduler").Logger())
		if err != nil {
			return err
		}
		go sched.Start(ctx)
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	httpHandlers.Register(app, svcs.Checker)

	go func() {
		<-ctx.Done()
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	logger.Info().Str("addr", settings.APIAddr).Msg("api listening")
	return app.Listen(settings.APIAddr)
}
