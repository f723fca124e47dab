package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ANIKETSHETTY47/solar-inverter-monitor/internal/config"
	"github.com/ANIKETSHETTY47/solar-inverter-monitor/internal/domain"
	"github.com/ANIKETSHETTY47/solar-inverter-monitor/internal/metrics"
	"github.com/ANIKETSHETTY47/solar-inverter-monitor/internal/solaredge"
)

const dateLayout = "2006-01-02"

// TelemetrySource fetches device inventory and samples for one site.
type TelemetrySource interface {
	FetchInventory(ctx context.Context) ([]domain.DeviceRecord, error)
	FetchSamples(ctx context.Context, serial domain.InverterID, w domain.Window) ([]domain.TelemetrySample, error)
}

// SourceFactory builds a TelemetrySource from validated settings.
type SourceFactory func(s config.Settings) TelemetrySource

// Alerter sends one alert for a flagged inverter.
type Alerter interface {
	SendAlert(ctx context.Context, serial domain.InverterID) (domain.NotificationReceipt, error)
}

// RunLock coordinates runs across processes. TryLock reports false when the
// key is held elsewhere.
type RunLock interface {
	TryLock(ctx context.Context, key string) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// Checker runs the inverter check pipeline for one site.
type Checker struct {
	settings  config.Settings
	newSource SourceFactory
	alerter   Alerter
	lock      RunLock
	now       func() time.Time
	log       zerolog.Logger
	flight    singleflight.Group
}

type Option func(*Checker)

// WithAlerter enables alert sending. Without it flagged devices are reported as skipped.
func WithAlerter(a Alerter) Option {
	return func(c *Checker) {
		if a != nil {
			c.alerter = a
		}
	}
}

// WithRunLock adds a cross-process guard keyed by site and date.
func WithRunLock(l RunLock) Option {
	return func(c *Checker) {
		if l != nil {
			c.lock = l
		}
	}
}

func WithSourceFactory(f SourceFactory) Option {
	return func(c *Checker) {
		if f != nil {
			c.newSource = f
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Checker) {
		if now != nil {
			c.now = now
		}
	}
}

func NewChecker(settings config.Settings, logger zerolog.Logger, opts ...Option) *Checker {
	c := &Checker{
		settings:  settings,
		newSource: defaultSource,
		now:       time.Now,
		log:       logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func defaultSource(s config.Settings) TelemetrySource {
	return solaredge.NewClient(s.BaseURL, s.SiteID, s.APIKey, s.RequestTimeout)
}

// RunCheck evaluates every inverter for the given date (today when nil) and
// returns the textual report. It never fails; every error becomes report text.
// Overlapping calls for the same site and date share one run.
func (c *Checker) RunCheck(ctx context.Context, date *time.Time) string {
	day := c.resolveDate(date)
	key := c.settings.SiteID + "|" + day.Format(dateLayout)
	v, _, shared := c.flight.Do(key, func() (any, error) {
		return c.run(ctx, day), nil
	})
	if shared {
		c.log.Debug().Str("key", key).Msg("joined in-flight check")
	}
	return v.(string)
}

func (c *Checker) resolveDate(date *time.Time) time.Time {
	if date != nil {
		return *date
	}
	now := c.now()
	if c.settings.Location != nil {
		now = now.In(c.settings.Location)
	}
	return now
}

func (c *Checker) run(ctx context.Context, day time.Time) (report string) {
	started := time.Now()
	outcome := metrics.RunCompleted
	logger := c.log.With().
		Str("run_id", uuid.NewString()).
		Str("site_id", c.settings.SiteID).
		Str("date", day.Format(dateLayout)).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			outcome = metrics.RunPanic
			logger.Error().Interface("panic", r).Msg("check aborted")
			report = fmt.Sprintf("Check failed for site %s: internal error: %v", c.settings.SiteID, r)
		}
		metrics.ObserveRun(outcome, time.Since(started))
	}()

	if cfgErr := c.settings.Validate(); cfgErr != nil {
		outcome = metrics.RunConfigError
		logger.Error().Err(cfgErr).Str("phase", "config").Msg("check aborted")
		return "Configuration error: " + cfgErr.Error()
	}

	window := c.settings.WindowFor(day)

	if c.lock != nil {
		release, held := c.acquire(ctx, logger, c.settings.SiteID+"|"+day.Format(dateLayout))
		if held {
			outcome = metrics.RunLocked
			return fmt.Sprintf("Check already in progress for site %s on %s", c.settings.SiteID, day.Format(dateLayout))
		}
		defer release()
	}

	source := c.newSource(c.settings)

	records, err := source.FetchInventory(ctx)
	if err != nil {
		outcome = metrics.RunUpstream
		logger.Error().Err(err).Str("phase", "inventory").Msg("check aborted")
		return fmt.Sprintf("Failed to fetch inventory for site %s: %v", c.settings.SiteID, err)
	}

	serials := SelectInverters(records)
	if len(serials) == 0 {
		outcome = metrics.RunNoInverters
		logger.Warn().Int("devices", len(records)).Str("phase", "inventory").Msg("no inverters found")
		return fmt.Sprintf("No inverters found for site %s", c.settings.SiteID)
	}
	logger.Info().Int("inverters", len(serials)).Str("window", window.Label()).Msg("checking inverters")

	results := c.evaluate(ctx, logger, source, serials, window)
	if err := ctx.Err(); err != nil {
		// fetch failures after cancellation are not real zero readings
		outcome = metrics.RunCancelled
		logger.Warn().Err(err).Str("phase", "samples").Msg("check cancelled; no alerts sent")
		return fmt.Sprintf("Check cancelled for site %s on %s: %v", c.settings.SiteID, day.Format(dateLayout), err)
	}
	c.notify(ctx, logger, results)

	rr := domain.RunReport{
		SiteID:  c.settings.SiteID,
		Date:    day,
		Window:  window,
		Devices: results,
	}
	logger.Info().Int("inverters", len(results)).Int("alerts_sent", rr.AlertsSent()).Msg("check completed")
	return rr.String()
}

// evaluate fetches, summarizes and applies the policy per device on a bounded
// pool. Results keep inventory order; a failed fetch yields the zero sentinel.
func (c *Checker) evaluate(ctx context.Context, logger zerolog.Logger, source TelemetrySource, serials []domain.InverterID, window domain.Window) []domain.DeviceResult {
	results := make([]domain.DeviceResult, len(serials))

	workers := c.settings.DeviceWorkers
	if workers < 1 {
		workers = 1
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for i, serial := range serials {
		i, serial := i, serial
		g.Go(func() error {
			results[i] = c.evaluateDevice(ctx, logger, source, serial, window)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (c *Checker) evaluateDevice(ctx context.Context, logger zerolog.Logger, source TelemetrySource, serial domain.InverterID, window domain.Window) domain.DeviceResult {
	var res domain.DeviceResult

	samples, err := source.FetchSamples(ctx, serial, window)
	if err != nil {
		metrics.IncDeviceFetch(metrics.FetchError)
		logger.Error().Err(err).Str("serial", string(serial)).Str("phase", "samples").Msg("telemetry fetch failed; using zero reading")
		res = domain.DeviceResult{Summary: domain.ZeroSummary(serial), FetchErr: err}
	} else {
		metrics.IncDeviceFetch(metrics.FetchSuccess)
		res = domain.DeviceResult{Summary: Summarize(serial, samples)}
		if len(samples) == 0 {
			logger.Warn().Str("serial", string(serial)).Str("phase", "samples").Msg("no telemetry samples")
		}
	}

	metrics.SetLastPower(string(serial), res.Summary.LastPower)
	res.Triggered = ShouldAlert(res.Summary, c.settings.Threshold)
	logger.Debug().
		Str("serial", string(serial)).
		Int("samples", res.Summary.Samples).
		Float64("last", res.Summary.LastPower).
		Float64("average", res.Summary.AveragePower).
		Bool("alert", res.Triggered).
		Msg("inverter evaluated")
	return res
}

func (c *Checker) notify(ctx context.Context, logger zerolog.Logger, results []domain.DeviceResult) {
	for i := range results {
		if !results[i].Triggered {
			continue
		}
		serial := results[i].Summary.Serial
		if c.alerter == nil {
			results[i].Alert = domain.AlertSkipped
			metrics.IncAlert(string(domain.AlertSkipped))
			logger.Warn().Str("serial", string(serial)).Str("phase", "notify").Msg("alert skipped: notification transport not configured")
			continue
		}
		receipt, err := c.alerter.SendAlert(ctx, serial)
		if err != nil {
			results[i].Alert = domain.AlertFailed
			metrics.IncAlert(string(domain.AlertFailed))
			logger.Error().Err(err).Str("serial", string(serial)).Str("phase", "notify").Msg("alert send failed")
			continue
		}
		results[i].Alert = domain.AlertSent
		metrics.IncAlert(string(domain.AlertSent))
		logger.Info().Str("serial", string(serial)).Str("channel", receipt.Channel).Str("message_id", receipt.MessageID).Msg("alert sent")
	}
}

// acquire takes the cross-process lock. A lock backend failure is logged and
// the run proceeds unguarded.
func (c *Checker) acquire(ctx context.Context, logger zerolog.Logger, key string) (release func(), held bool) {
	noop := func() {}
	ok, err := c.lock.TryLock(ctx, key)
	if err != nil {
		logger.Warn().Err(err).Str("phase", "lock").Msg("run lock unavailable; continuing without it")
		return noop, false
	}
	if !ok {
		logger.Warn().Str("phase", "lock").Msg("check already running elsewhere")
		return noop, true
	}
	return func() {
		uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := c.lock.Unlock(uctx, key); err != nil {
			logger.Warn().Err(err).Str("phase", "lock").Msg("run lock release failed")
		}
	}, false
}
