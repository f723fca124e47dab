package main

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/solar-inverter-monitor/internal/config"
	"github.com/ANIKETSHETTY47/solar-inverter-monitor/internal/metrics"
	"github.com/ANIKETSHETTY47/solar-inverter-monitor/internal/service"
)

const dateLayout = "2006-01-02"

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

	// Reused across warm invocations.
	svcs, err := service.New(context.Background(), settings, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("service init failed")
	}

	loc := settings.ScheduleLocation
	if loc == nil {
		loc = time.UTC
	}
	h := &handler{checker: svcs.Checker, loc: loc, logger: logger}
	lambda.Start(h.Handle)
}
