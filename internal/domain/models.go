package domain

import (
	"fmt"
	"strings"
	"time"
)

// InverterPrefix marks inventory entries that are inverters.
const InverterPrefix = "Inverter"

// TimestampLayout is the upstream API's time format.
const TimestampLayout = "2006-01-02 15:04:05"

type DeviceRecord struct {
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Model        string `json:"model,omitempty"`
	SerialNumber string `json:"serialNumber"`
}

type InverterID string

type TelemetrySample struct {
	Date             string  `json:"date"`
	TotalActivePower float64 `json:"totalActivePower"`
}

type PowerSummary struct {
	Serial       InverterID `json:"serial"`
	AveragePower float64    `json:"average_power"`
	LastPower    float64    `json:"last_power"`
	Samples      int        `json:"samples"`
}

// ZeroSummary is the sentinel used when no samples were observed.
func ZeroSummary(serial InverterID) PowerSummary {
	return PowerSummary{Serial: serial}
}

// AlertThreshold is compared in Watts.
type AlertThreshold float64

// Window is the observation range, inclusive on both ends.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) StartParam() string { return w.Start.Format(TimestampLayout) }
func (w Window) EndParam() string   { return w.End.Format(TimestampLayout) }

func (w Window) Label() string {
	return fmt.Sprintf("%s-%s", w.Start.Format("15:04:05"), w.End.Format("15:04:05"))
}

type AlertStatus string

const (
	AlertNone    AlertStatus = ""
	AlertSent    AlertStatus = "sent"
	AlertFailed  AlertStatus = "failed"
	AlertSkipped AlertStatus = "skipped"
)

// DeviceResult is the per-device outcome of one run.
type DeviceResult struct {
	Summary   PowerSummary
	FetchErr  error
	Triggered bool
	Alert     AlertStatus
}

func (r DeviceResult) Line() string {
	line := fmt.Sprintf("%s: last=%.1f, average=%.1f", r.Summary.Serial, r.Summary.LastPower, r.Summary.AveragePower)
	if r.Triggered && r.Alert != AlertNone {
		line += ", alert " + string(r.Alert)
	}
	return line
}

// RunReport is the sole output of one pipeline invocation.
type RunReport struct {
	SiteID  string
	Date    time.Time
	Window  Window
	Devices []DeviceResult
}

func (r RunReport) AlertsSent() int {
	n := 0
	for _, d := range r.Devices {
		if d.Alert == AlertSent {
			n++
		}
	}
	return n
}

func (r RunReport) Lines() []string {
	lines := make([]string, 0, len(r.Devices)+1)
	lines = append(lines, fmt.Sprintf("Checked %d inverters for site %s on %s (%s): %d alerts sent",
		len(r.Devices), r.SiteID, r.Date.Format("2006-01-02"), r.Window.Label(), r.AlertsSent()))
	for _, d := range r.Devices {
		lines = append(lines, d.Line())
	}
	return lines
}

func (r RunReport) String() string {
	return strings.Join(r.Lines(), "\n")
}

// NotificationReceipt identifies a delivered alert.
type NotificationReceipt struct {
	Channel   string
	MessageID string
}
