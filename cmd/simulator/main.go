package main

import (
	"flag"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/solar-inverter-monitor/internal/config"
)

func main() {
	addr := flag.String("addr", ":8081", "listen address")
	inverters := flag.Int("inverters", 3, "number of inverters on the site")
	failing := flag.String("fail", "", "serial whose telemetry endpoint returns 500")
	weak := flag.String("weak", "", "serial that reports low power")
	apiKey := flag.String("api-key", "", "required api_key value (empty accepts any)")
	flag.Parse()

	config.SetupLogging("info")

	sim := newSite(*inverters, *failing, *weak, *apiKey)
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	sim.register(app)

	log.Info().Str("addr", *addr).Int("inverters", *inverters).Msg("simulator listening")
	log.Fatal().Err(app.Listen(*addr)).Msg("server exit")
}
