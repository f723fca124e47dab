package service

import "github.com/ANIKETSHETTY47/solar-inverter-monitor/internal/domain"

// ShouldAlert holds when either the last reading or the average is strictly
// below the threshold.
func ShouldAlert(summary domain.PowerSummary, threshold domain.AlertThreshold) bool {
	limit := float64(threshold)
	return summary.LastPower < limit || summary.AveragePower < limit
}
