package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ANIKETSHETTY47/solar-inverter-monitor/internal/config"
	"github.com/ANIKETSHETTY47/solar-inverter-monitor/internal/domain"
)

type stubSource struct {
	records      []domain.DeviceRecord
	inventoryErr error
	samples      map[domain.InverterID][]domain.TelemetrySample
	sampleErrs   map[domain.InverterID]error
	delay        func(domain.InverterID) time.Duration
	gate         chan struct{}

	inventoryCalls atomic.Int32
	sampleCalls    atomic.Int32
	mu             sync.Mutex
	windows        []domain.Window
}

func (s *stubSource) FetchInventory(ctx context.Context) ([]domain.DeviceRecord, error) {
	s.inventoryCalls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	return s.records, s.inventoryErr
}

func (s *stubSource) FetchSamples(ctx context.Context, serial domain.InverterID, w domain.Window) ([]domain.TelemetrySample, error) {
	s.sampleCalls.Add(1)
	s.mu.Lock()
	s.windows = append(s.windows, w)
	s.mu.Unlock()
	if s.delay != nil {
		time.Sleep(s.delay(serial))
	}
	if err := s.sampleErrs[serial]; err != nil {
		return nil, err
	}
	return s.samples[serial], nil
}

type recordingAlerter struct {
	mu      sync.Mutex
	serials []domain.InverterID
	err     error
}

func (a *recordingAlerter) SendAlert(_ context.Context, serial domain.InverterID) (domain.NotificationReceipt, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.serials = append(a.serials, serial)
	if a.err != nil {
		return domain.NotificationReceipt{}, a.err
	}
	return domain.NotificationReceipt{Channel: "test", MessageID: string(serial)}, nil
}

type stubLock struct {
	held     bool
	err      error
	locked   []string
	unlocked []string
}

func (l *stubLock) TryLock(_ context.Context, key string) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	if l.held {
		return false, nil
	}
	l.locked = append(l.locked, key)
	return true, nil
}

func (l *stubLock) Unlock(_ context.Context, key string) error {
	l.unlocked = append(l.unlocked, key)
	return nil
}

var checkDate = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func testSettings(overrides map[string]string) config.Settings {
	values := config.MapLookup{
		config.KeyBaseURL:      "http://solar.test",
		config.KeySiteID:       "1",
		config.KeyAPIKey:       "secret",
		config.KeySiteTimezone: "UTC",
	}
	for k, v := range overrides {
		values[k] = v
	}
	return config.FromLookup(values)
}

func mixedSource() *stubSource {
	return &stubSource{
		records: []domain.DeviceRecord{
			{Name: "Inverter 1", SerialNumber: "SN1"},
			{Name: "Meter", SerialNumber: "M1"},
			{Name: "Inverter 2", SerialNumber: "SN2"},
			{Name: "Inverter 3", SerialNumber: "SN3"},
		},
		samples: map[domain.InverterID][]domain.TelemetrySample{
			"SN1": {{TotalActivePower: 500}, {TotalActivePower: 480}, {TotalActivePower: 50}},
			"SN2": {{TotalActivePower: 900}, {TotalActivePower: 950}},
		},
		sampleErrs: map[domain.InverterID]error{
			"SN3": &domain.UpstreamError{Op: "fetch samples", SiteID: "1", Serial: "SN3", StatusCode: 500},
		},
	}
}

func newTestChecker(settings config.Settings, src TelemetrySource, opts ...Option) *Checker {
	opts = append([]Option{WithSourceFactory(func(config.Settings) TelemetrySource { return src })}, opts...)
	return NewChecker(settings, zerolog.Nop(), opts...)
}

func TestRunCheckReport(t *testing.T) {
	src := mixedSource()
	alerter := &recordingAlerter{}
	c := newTestChecker(testSettings(nil), src, WithAlerter(alerter))

	date := checkDate
	report := c.RunCheck(context.Background(), &date)

	want := strings.Join([]string{
		"Checked 3 inverters for site 1 on 2024-05-01 (12:00:00-12:59:59): 2 alerts sent",
		"SN1: last=50.0, average=343.3, alert sent",
		"SN2: last=950.0, average=925.0",
		"SN3: last=0.0, average=0.0, alert sent",
	}, "\n")
	if report != want {
		t.Fatalf("unexpected report:\n%s\nwant:\n%s", report, want)
	}
	if len(alerter.serials) != 2 || alerter.serials[0] != "SN1" || alerter.serials[1] != "SN3" {
		t.Fatalf("expected alerts for SN1 and SN3, got %v", alerter.serials)
	}
	if got := src.sampleCalls.Load(); got != 3 {
		t.Fatalf("expected 3 sample fetches, got %d", got)
	}
}

func TestRunCheckUsesConfiguredWindow(t *testing.T) {
	src := mixedSource()
	c := newTestChecker(testSettings(map[string]string{
		config.KeyWindowStart: "10:30",
		config.KeyWindowEnd:   "14:00:00",
	}), src)

	date := time.Date(2024, 5, 1, 18, 45, 0, 0, time.UTC)
	report := c.RunCheck(context.Background(), &date)
	if !strings.Contains(report, "(10:30:00-14:00:00)") {
		t.Fatalf("expected window in header, got %s", report)
	}
	for _, w := range src.windows {
		if w.StartParam() != "2024-05-01 10:30:00" || w.EndParam() != "2024-05-01 14:00:00" {
			t.Fatalf("unexpected window %s - %s", w.StartParam(), w.EndParam())
		}
	}
}

func TestRunCheckDefaultsToToday(t *testing.T) {
	src := mixedSource()
	now := time.Date(2024, 6, 2, 22, 0, 0, 0, time.UTC)
	c := newTestChecker(testSettings(nil), src, WithClock(func() time.Time { return now }))

	report := c.RunCheck(context.Background(), nil)
	if !strings.Contains(report, "on 2024-06-02") {
		t.Fatalf("expected today's date, got %s", report)
	}
}

func TestRunCheckNoInverters(t *testing.T) {
	src := &stubSource{records: []domain.DeviceRecord{{Name: "Meter", SerialNumber: "M1"}}}
	alerter := &recordingAlerter{}
	c := newTestChecker(testSettings(nil), src, WithAlerter(alerter))

	date := checkDate
	report := c.RunCheck(context.Background(), &date)
	if report != "No inverters found for site 1" {
		t.Fatalf("unexpected report %q", report)
	}
	if src.sampleCalls.Load() != 0 || len(alerter.serials) != 0 {
		t.Fatalf("expected no sample fetches or alerts")
	}
}

func TestRunCheckConfigurationError(t *testing.T) {
	settings := testSettings(map[string]string{config.KeyAPIKey: ""})
	called := false
	c := NewChecker(settings, zerolog.Nop(), WithSourceFactory(func(config.Settings) TelemetrySource {
		called = true
		return &stubSource{}
	}))

	date := checkDate
	report := c.RunCheck(context.Background(), &date)
	if !strings.HasPrefix(report, "Configuration error: ") || !strings.Contains(report, config.KeyAPIKey) {
		t.Fatalf("unexpected report %q", report)
	}
	if called {
		t.Fatal("source must not be built for an invalid configuration")
	}
}

func TestRunCheckInvalidThreshold(t *testing.T) {
	c := newTestChecker(testSettings(map[string]string{config.KeyThreshold: "abc"}), mixedSource())
	date := checkDate
	report := c.RunCheck(context.Background(), &date)
	if !strings.Contains(report, "Configuration error") || !strings.Contains(report, config.KeyThreshold) {
		t.Fatalf("unexpected report %q", report)
	}
}

func TestRunCheckInventoryFailure(t *testing.T) {
	src := &stubSource{inventoryErr: errors.New("connection refused")}
	c := newTestChecker(testSettings(nil), src)

	date := checkDate
	report := c.RunCheck(context.Background(), &date)
	if report != "Failed to fetch inventory for site 1: connection refused" {
		t.Fatalf("unexpected report %q", report)
	}
}

func TestRunCheckAlertStatuses(t *testing.T) {
	date := checkDate

	failing := newTestChecker(testSettings(nil), mixedSource(), WithAlerter(&recordingAlerter{err: errors.New("smtp down")}))
	report := failing.RunCheck(context.Background(), &date)
	if !strings.Contains(report, ": 0 alerts sent") || !strings.Contains(report, "SN1: last=50.0, average=343.3, alert failed") {
		t.Fatalf("expected failed alerts, got %s", report)
	}

	unconfigured := newTestChecker(testSettings(nil), mixedSource())
	report = unconfigured.RunCheck(context.Background(), &date)
	if !strings.Contains(report, "SN3: last=0.0, average=0.0, alert skipped") {
		t.Fatalf("expected skipped alerts, got %s", report)
	}
}

func TestRunCheckPreservesInventoryOrder(t *testing.T) {
	src := &stubSource{samples: map[domain.InverterID][]domain.TelemetrySample{}}
	for i := 0; i < 12; i++ {
		serial := fmt.Sprintf("SN%02d", i)
		src.records = append(src.records, domain.DeviceRecord{Name: "Inverter", SerialNumber: serial})
		src.samples[domain.InverterID(serial)] = []domain.TelemetrySample{{TotalActivePower: float64(1000 + i)}}
	}
	// later devices finish first
	src.delay = func(serial domain.InverterID) time.Duration {
		var n int
		fmt.Sscanf(string(serial), "SN%d", &n)
		return time.Duration(12-n) * time.Millisecond
	}
	c := newTestChecker(testSettings(map[string]string{config.KeyDeviceWorkers: "8"}), src)

	date := checkDate
	lines := strings.Split(c.RunCheck(context.Background(), &date), "\n")
	if len(lines) != 13 {
		t.Fatalf("expected 13 lines, got %d", len(lines))
	}
	for i := 0; i < 12; i++ {
		if !strings.HasPrefix(lines[i+1], fmt.Sprintf("SN%02d:", i)) {
			t.Fatalf("line %d out of order: %s", i+1, lines[i+1])
		}
	}
}

func TestRunCheckIdempotent(t *testing.T) {
	c := newTestChecker(testSettings(nil), mixedSource(), WithAlerter(&recordingAlerter{}))
	date := checkDate
	first := c.RunCheck(context.Background(), &date)
	second := c.RunCheck(context.Background(), &date)
	if first != second {
		t.Fatalf("reports differ:\n%s\n---\n%s", first, second)
	}
}

func TestRunCheckLockHeld(t *testing.T) {
	src := mixedSource()
	c := newTestChecker(testSettings(nil), src, WithRunLock(&stubLock{held: true}))

	date := checkDate
	report := c.RunCheck(context.Background(), &date)
	if report != "Check already in progress for site 1 on 2024-05-01" {
		t.Fatalf("unexpected report %q", report)
	}
	if src.inventoryCalls.Load() != 0 {
		t.Fatal("inventory fetched while lock held")
	}
}

func TestRunCheckLockReleased(t *testing.T) {
	lock := &stubLock{}
	c := newTestChecker(testSettings(nil), mixedSource(), WithRunLock(lock))

	date := checkDate
	c.RunCheck(context.Background(), &date)
	if len(lock.locked) != 1 || lock.locked[0] != "1|2024-05-01" {
		t.Fatalf("unexpected lock keys %v", lock.locked)
	}
	if len(lock.unlocked) != 1 || lock.unlocked[0] != "1|2024-05-01" {
		t.Fatalf("expected lock released, got %v", lock.unlocked)
	}
}

func TestRunCheckLockBackendDown(t *testing.T) {
	src := mixedSource()
	c := newTestChecker(testSettings(nil), src, WithRunLock(&stubLock{err: errors.New("dial tcp: refused")}))

	date := checkDate
	report := c.RunCheck(context.Background(), &date)
	if !strings.HasPrefix(report, "Checked 3 inverters") {
		t.Fatalf("expected unguarded run, got %s", report)
	}
}

func TestRunCheckSharesInFlightRun(t *testing.T) {
	src := mixedSource()
	src.gate = make(chan struct{})
	c := newTestChecker(testSettings(nil), src)

	date := checkDate
	reports := make([]string, 2)
	var wg sync.WaitGroup
	for i := range reports {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			reports[i] = c.RunCheck(context.Background(), &date)
		}()
	}

	deadline := time.Now().Add(time.Second)
	for src.inventoryCalls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	if got := src.inventoryCalls.Load(); got != 1 {
		t.Fatalf("expected one shared run, got %d inventory calls", got)
	}
	if reports[0] != reports[1] {
		t.Fatalf("expected identical reports:\n%s\n---\n%s", reports[0], reports[1])
	}
}

func TestRunCheckRecoversPanic(t *testing.T) {
	c := newTestChecker(testSettings(nil), panicSource{})
	date := checkDate
	report := c.RunCheck(context.Background(), &date)
	if !strings.HasPrefix(report, "Check failed for site 1: internal error") {
		t.Fatalf("unexpected report %q", report)
	}
}

type panicSource struct{}

func (panicSource) FetchInventory(context.Context) ([]domain.DeviceRecord, error) {
	panic("boom")
}

func (panicSource) FetchSamples(context.Context, domain.InverterID, domain.Window) ([]domain.TelemetrySample, error) {
	return nil, nil
}

func TestRunCheckIgnoresTriggerSettings(t *testing.T) {
	settings := testSettings(map[string]string{
		config.KeySchedulerEnabled: "yes",
		config.KeyLockTTL:          "soon",
	})
	c := newTestChecker(settings, mixedSource())

	date := checkDate
	report := c.RunCheck(context.Background(), &date)
	if !strings.HasPrefix(report, "Checked 3 inverters") {
		t.Fatalf("expected a normal run, got %q", report)
	}
}

// cancellingSource cancels the run while the device fetches are in flight.
type cancellingSource struct {
	*stubSource
	cancel context.CancelFunc
}

func (s cancellingSource) FetchSamples(ctx context.Context, serial domain.InverterID, w domain.Window) ([]domain.TelemetrySample, error) {
	s.cancel()
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRunCheckCancelledSendsNoAlerts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alerter := &recordingAlerter{}
	src := cancellingSource{stubSource: mixedSource(), cancel: cancel}
	c := newTestChecker(testSettings(nil), src, WithAlerter(alerter))

	date := checkDate
	report := c.RunCheck(ctx, &date)
	if !strings.HasPrefix(report, "Check cancelled for site 1 on 2024-05-01") {
		t.Fatalf("unexpected report %q", report)
	}
	if len(alerter.serials) != 0 {
		t.Fatalf("expected no alerts after cancellation, got %v", alerter.serials)
	}
}
