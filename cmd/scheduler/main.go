package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/solar-inverter-monitor/internal/config"
	"github.com/ANIKETSHETTY47/solar-inverter-monitor/internal/metrics"
	"github.com/ANIKETSHETTY47/solar-inverter-monitor/internal/schedule"
	"github.com/ANIKETSHETTY47/solar-inverter-monitor/internal/service"
)

func main() {
	once := flag.String("date", "", "run a single check for YYYY-MM-DD and exit")
	flag.Parse()

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
	err := run(ctx, settings, logger, *once, os.Stdout)
	stop()
	if err != nil {
		logger.Error().Err(err).Msg("scheduler exit")
		os.Exit(1)
	}
}

// run returns only after the service connections are closed.
func run(ctx context.Context, settings config.Settings, logger zerolog.Logger, once string, out io.Writer) error {
	var date time.Time
	if once != "" {
		d, err := time.Parse("2006-01-02", once)
		if err != nil {
			return fmt.Errorf("invalid -date %q, use YYYY-MM-DD", once)
		}
		date = d
	}

	svcs, err := service.New(ctx, settings, logger)
	if err != nil {
		return fmt.Errorf("service init: %w", err)
	}
	defer svcs.Close()

	if once != "" {
		fmt.Fprintln(out, svcs.Checker.RunCheck(ctx, &date))
		return nil
	}

	sched, err := schedule.NewScheduler(settings.Schedule, settings.ScheduleLocation, func(ctx context.Context, date time.Time) string {
		return svcs.Checker.RunCheck(ctx, &date)
	}, logger.With().Str("component", "scheduler").Logger())
	if err != nil {
		return err
	}

	logger.Info().Str("schedule", settings.Schedule).Str("tz", settings.ScheduleLocation.String()).Msg("scheduler running; Ctrl+C to stop")
	sched.Start(ctx)
	return nil
}
