package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ANIKETSHETTY47/solar-inverter-monitor/internal/domain"
)

// site fakes the power-monitoring API for one installation.
type site struct {
	devices []domain.DeviceRecord
	failing string
	weak    string
	apiKey  string
	rnd     *rand.Rand
}

func newSite(inverters int, failing, weak, apiKey string) *site {
	s := &site{
		failing: failing,
		weak:    weak,
		apiKey:  apiKey,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for i := 1; i <= inverters; i++ {
		s.devices = append(s.devices, domain.DeviceRecord{
			Name:         fmt.Sprintf("Inverter %d", i),
			Manufacturer: "SolarEdge",
			Model:        "SE5000H",
			SerialNumber: fmt.Sprintf("7E1%05d-SIM", i),
		})
	}
	s.devices = append(s.devices, domain.DeviceRecord{Name: "Meter 1", Manufacturer: "SolarEdge", Model: "SE-MTR", SerialNumber: "MTR-SIM"})
	return s
}

func (s *site) register(app *fiber.App) {
	g := app.Group("/equipment/:site", s.auth)
	g.Get("/list", s.list)
	g.Get("/:serial/data", s.data)
}

func (s *site) auth(c *fiber.Ctx) error {
	if s.apiKey != "" && c.Query("api_key") != s.apiKey {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"String": "Invalid token"})
	}
	return c.Next()
}

func (s *site) list(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"reporters": fiber.Map{
			"count": len(s.devices),
			"list":  s.devices,
		},
	})
}

func (s *site) data(c *fiber.Ctx) error {
	serial := c.Params("serial")
	if serial == s.failing {
		return c.Status(fiber.StatusInternalServerError).SendString("simulated failure")
	}

	start, err := time.Parse(domain.TimestampLayout, c.Query("startTime"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("startTime: " + err.Error())
	}
	end, err := time.Parse(domain.TimestampLayout, c.Query("endTime"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("endTime: " + err.Error())
	}

	var samples []fiber.Map
	for t := start; !t.After(end); t = t.Add(5 * time.Minute) {
		samples = append(samples, fiber.Map{
			"date":             t.Format(domain.TimestampLayout),
			"totalActivePower": s.power(serial),
		})
	}
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"count":       len(samples),
			"telemetries": samples,
		},
	})
}

func (s *site) power(serial string) float64 {
	if serial == s.weak {
		return 20 + s.rnd.Float64()*60
	}
	return 2500 + s.rnd.Float64()*1500
}
