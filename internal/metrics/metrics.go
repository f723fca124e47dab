package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "inverter_monitor_"

const (
	RunCompleted   = "completed"
	RunConfigError = "config_error"
	RunUpstream    = "inventory_error"
	RunNoInverters = "no_inverters"
	RunLocked      = "locked"
	RunPanic       = "panic"
	RunCancelled   = "cancelled"

	FetchSuccess = "success"
	FetchError   = "error"
)

var (
	registerOnce sync.Once

	runsTotal     *prometheus.CounterVec
	runLatency    *prometheus.HistogramVec
	deviceFetches *prometheus.CounterVec
	alertsTotal   *prometheus.CounterVec
	lastPower     *prometheus.GaugeVec
)

// Init registers the collectors with the default registry. Observers are
// no-ops until Init runs, so packages can be tested without it.
func Init() {
	registerOnce.Do(func() {
		runsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "runs_total",
				Help: "Total inverter check runs by outcome",
			},
			[]string{"outcome"},
		)
		runLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "run_latency_seconds",
				Help:    "Inverter check run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		)
		deviceFetches = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "device_fetches_total",
				Help: "Total per-device telemetry fetches by result",
			},
			[]string{"result"},
		)
		alertsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alerts_total",
				Help: "Total flagged inverters by alert status",
			},
			[]string{"status"},
		)
		lastPower = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "last_power_watts",
				Help: "Last observed active power per inverter",
			},
			[]string{"serial"},
		)

		prometheus.MustRegister(runsTotal, runLatency, deviceFetches, alertsTotal, lastPower)
	})
}

// ObserveRun records run outcome and duration.
func ObserveRun(outcome string, duration time.Duration) {
	if outcome == "" {
		outcome = RunCompleted
	}
	if runsTotal != nil {
		runsTotal.WithLabelValues(outcome).Inc()
	}
	if runLatency != nil {
		runLatency.WithLabelValues(outcome).Observe(duration.Seconds())
	}
}

// IncDeviceFetch counts one device telemetry fetch.
func IncDeviceFetch(result string) {
	if deviceFetches != nil {
		deviceFetches.WithLabelValues(result).Inc()
	}
}

// IncAlert counts one flagged device by alert status.
func IncAlert(status string) {
	if status == "" {
		status = "unknown"
	}
	if alertsTotal != nil {
		alertsTotal.WithLabelValues(status).Inc()
	}
}

// SetLastPower publishes an inverter's last reading.
func SetLastPower(serial string, watts float64) {
	if lastPower != nil {
		lastPower.WithLabelValues(serial).Set(watts)
	}
}
