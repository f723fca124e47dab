package service

import (
	"strings"

	"github.com/ANIKETSHETTY47/solar-inverter-monitor/internal/domain"
)

// SelectInverters keeps inverter records with a serial number, in input order.
func SelectInverters(records []domain.DeviceRecord) []domain.InverterID {
	out := []domain.InverterID{}
	for _, r := range records {
		if !strings.HasPrefix(r.Name, domain.InverterPrefix) || r.SerialNumber == "" {
			continue
		}
		out = append(out, domain.InverterID(r.SerialNumber))
	}
	return out
}
