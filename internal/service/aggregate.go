package service

import "github.com/ANIKETSHETTY47/solar-inverter-monitor/internal/domain"

// Summarize reduces samples to the last reading and the unweighted mean.
// Empty input yields the zero sentinel.
func Summarize(serial domain.InverterID, samples []domain.TelemetrySample) domain.PowerSummary {
	if len(samples) == 0 {
		return domain.ZeroSummary(serial)
	}
	var total float64
	for _, s := range samples {
		total += s.TotalActivePower
	}
	return domain.PowerSummary{
		Serial:       serial,
		AveragePower: total / float64(len(samples)),
		LastPower:    samples[len(samples)-1].TotalActivePower,
		Samples:      len(samples),
	}
}
