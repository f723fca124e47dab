package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ANIKETSHETTY47/solar-inverter-monitor/internal/domain"
)

const (
	KeyBaseURL        = "baseURL"
	KeySiteID         = "siteId"
	KeyAPIKey         = "solarEdgeApiKey"
	KeyThreshold      = "alertPowerThreshold"
	KeySendGridAPIKey = "sendGridApiKey"
	KeyToEmail        = "toEmail"
	KeyFromEmail      = "fromEmail"
	KeySendGridHost   = "sendGridHost"
	KeyWindowStart    = "windowStart"
	KeyWindowEnd      = "windowEnd"
	KeySiteTimezone   = "siteTimezone"
	KeyRequestTimeout = "requestTimeout"
	KeyDeviceWorkers  = "deviceWorkers"

	KeyAPIAddr          = "API_ADDR"
	KeySchedule         = "CHECK_SCHEDULE"
	KeyScheduleTZ       = "CHECK_SCHEDULE_TZ"
	KeySchedulerEnabled = "SCHEDULER_ENABLED"
	KeyLogLevel         = "LOG_LEVEL"
	KeyLockBackend      = "RUN_LOCK_BACKEND"
	KeyLockTTL          = "RUN_LOCK_TTL"
	KeyDBDSN            = "DB_DSN"
	KeyAWSRegion        = "AWS_REGION"
	KeySNSTopicArn      = "AWS_SNS_TOPIC_ARN"
	KeyLockTable        = "AWS_DYNAMODB_LOCK_TABLE"
	KeyMQTTBroker       = "MQTT_BROKER"
	KeyMQTTAlertTopic   = "MQTT_ALERT_TOPIC"
)

var defaults = map[string]string{
	KeyThreshold:      "200",
	KeySendGridHost:   "https://api.sendgrid.com",
	KeyWindowStart:    "12:00:00",
	KeyWindowEnd:      "12:59:59",
	KeySiteTimezone:   "Local",
	KeyRequestTimeout: "30s",
	KeyDeviceWorkers:  "4",

	KeyAPIAddr:          ":8080",
	KeySchedule:         "22:00",
	KeyScheduleTZ:       "UTC",
	KeySchedulerEnabled: "false",
	KeyLogLevel:         "info",
	KeyLockBackend:      "none",
	KeyLockTTL:          "10m",
	KeyAWSRegion:        "us-east-1",
	KeyLockTable:        "InverterCheckLocks",
	KeyMQTTAlertTopic:   "solar/alerts",
}

// Function-app style names first, then conventional env names.
var envNames = map[string][]string{
	KeyBaseURL:        {"baseURL", "BASE_URL"},
	KeySiteID:         {"siteId", "SITE_ID"},
	KeyAPIKey:         {"solarEdgeApiKey", "SOLAREDGE_API_KEY"},
	KeyThreshold:      {"alertPowerThreshold", "ALERT_POWER_THRESHOLD"},
	KeySendGridAPIKey: {"sendGridApiKey", "SENDGRID_API_KEY"},
	KeyToEmail:        {"toEmail", "TO_EMAIL"},
	KeyFromEmail:      {"fromEmail", "FROM_EMAIL"},
	KeySendGridHost:   {"sendGridHost", "SENDGRID_HOST"},
	KeyWindowStart:    {"windowStart", "WINDOW_START"},
	KeyWindowEnd:      {"windowEnd", "WINDOW_END"},
	KeySiteTimezone:   {"siteTimezone", "SITE_TIMEZONE"},
	KeyRequestTimeout: {"requestTimeout", "REQUEST_TIMEOUT"},
	KeyDeviceWorkers:  {"deviceWorkers", "DEVICE_WORKERS"},
}

// Lookup is the string-keyed configuration capability. *viper.Viper satisfies it.
type Lookup interface {
	GetString(key string) string
}

// MapLookup is a Lookup over a plain map, handy for tests and one-off runs.
type MapLookup map[string]string

func (m MapLookup) GetString(key string) string { return m[key] }

// Settings is the explicit configuration object handed to the pipeline.
type Settings struct {
	BaseURL   string
	SiteID    string
	APIKey    string
	Threshold domain.AlertThreshold

	SendGridAPIKey string
	ToEmail        string
	FromEmail      string
	SendGridHost   string

	WindowStart    time.Duration
	WindowEnd      time.Duration
	Location       *time.Location
	RequestTimeout time.Duration
	DeviceWorkers  int

	APIAddr          string
	Schedule         string
	ScheduleLocation *time.Location
	SchedulerEnabled bool
	LogLevel         string
	LockBackend      string
	LockTTL          time.Duration
	DBDSN            string
	AWSRegion        string
	SNSTopicArn      string
	LockTable        string
	MQTTBroker       string
	MQTTAlertTopic   string

	invalid        map[string]string
	invalidRuntime map[string]string
}

// Load reads .env, config.yaml and the environment into the global viper instance.
func Load() error {
	_ = godotenv.Load() // optional

	for key, value := range defaults {
		viper.SetDefault(key, value)
	}
	for key, names := range envNames {
		if err := viper.BindEnv(append([]string{key}, names...)...); err != nil {
			return fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("reading config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	return nil
}

// Current builds Settings from the global viper instance.
func Current() Settings { return FromLookup(viper.GetViper()) }

// FromLookup builds Settings from any key-value source. Parse failures are
// kept and surface through Validate so a run can report them.
func FromLookup(l Lookup) Settings {
	get := func(key string) string {
		if v := strings.TrimSpace(l.GetString(key)); v != "" {
			return v
		}
		return defaults[key]
	}

	s := Settings{
		BaseURL:        strings.TrimRight(get(KeyBaseURL), "/"),
		SiteID:         get(KeySiteID),
		APIKey:         get(KeyAPIKey),
		SendGridAPIKey: get(KeySendGridAPIKey),
		ToEmail:        get(KeyToEmail),
		FromEmail:      get(KeyFromEmail),
		SendGridHost:   get(KeySendGridHost),

		APIAddr:        get(KeyAPIAddr),
		Schedule:       get(KeySchedule),
		LogLevel:       get(KeyLogLevel),
		LockBackend:    strings.ToLower(get(KeyLockBackend)),
		DBDSN:          get(KeyDBDSN),
		AWSRegion:      get(KeyAWSRegion),
		SNSTopicArn:    get(KeySNSTopicArn),
		LockTable:      get(KeyLockTable),
		MQTTBroker:     get(KeyMQTTBroker),
		MQTTAlertTopic: get(KeyMQTTAlertTopic),

		invalid:        map[string]string{},
		invalidRuntime: map[string]string{},
	}

	if v, err := strconv.ParseFloat(get(KeyThreshold), 64); err != nil {
		s.invalid[KeyThreshold] = "not a number"
	} else {
		s.Threshold = domain.AlertThreshold(v)
	}

	var err error
	if s.WindowStart, err = parseClock(get(KeyWindowStart)); err != nil {
		s.invalid[KeyWindowStart] = err.Error()
	}
	if s.WindowEnd, err = parseClock(get(KeyWindowEnd)); err != nil {
		s.invalid[KeyWindowEnd] = err.Error()
	}
	if _, startBad := s.invalid[KeyWindowStart]; !startBad {
		if _, endBad := s.invalid[KeyWindowEnd]; !endBad && s.WindowEnd < s.WindowStart {
			s.invalid[KeyWindowEnd] = "before windowStart"
		}
	}

	if s.Location, err = time.LoadLocation(get(KeySiteTimezone)); err != nil {
		s.invalid[KeySiteTimezone] = "unknown timezone"
		s.Location = time.Local
	}
	if s.ScheduleLocation, err = time.LoadLocation(get(KeyScheduleTZ)); err != nil {
		s.invalidRuntime[KeyScheduleTZ] = "unknown timezone"
		s.ScheduleLocation = time.UTC
	}

	if s.RequestTimeout, err = time.ParseDuration(get(KeyRequestTimeout)); err != nil || s.RequestTimeout <= 0 {
		s.invalid[KeyRequestTimeout] = "not a positive duration"
		s.RequestTimeout = 30 * time.Second
	}
	if s.LockTTL, err = time.ParseDuration(get(KeyLockTTL)); err != nil || s.LockTTL <= 0 {
		s.invalidRuntime[KeyLockTTL] = "not a positive duration"
		s.LockTTL = 10 * time.Minute
	}
	if s.DeviceWorkers, err = strconv.Atoi(get(KeyDeviceWorkers)); err != nil || s.DeviceWorkers < 1 {
		s.invalid[KeyDeviceWorkers] = "not a positive integer"
		s.DeviceWorkers = 1
	}
	if s.SchedulerEnabled, err = strconv.ParseBool(get(KeySchedulerEnabled)); err != nil {
		s.invalidRuntime[KeySchedulerEnabled] = "not a boolean"
	}

	return s
}

// Validate reports missing required keys and parse failures of pipeline keys.
func (s Settings) Validate() *domain.ConfigurationError {
	cfgErr := &domain.ConfigurationError{}
	required := []struct {
		key   string
		value string
	}{
		{KeyBaseURL, s.BaseURL},
		{KeySiteID, s.SiteID},
		{KeyAPIKey, s.APIKey},
	}
	for _, r := range required {
		if r.value == "" {
			cfgErr.Missing = append(cfgErr.Missing, r.key)
		}
	}
	for key, reason := range s.invalid {
		if cfgErr.Invalid == nil {
			cfgErr.Invalid = map[string]string{}
		}
		cfgErr.Invalid[key] = reason
	}
	if cfgErr.Empty() {
		return nil
	}
	return cfgErr
}

// ValidateRuntime reports parse failures of trigger and lock settings. They
// never affect a check run; binaries refuse to start on them.
func (s Settings) ValidateRuntime() *domain.ConfigurationError {
	if len(s.invalidRuntime) == 0 {
		return nil
	}
	cfgErr := &domain.ConfigurationError{Invalid: map[string]string{}}
	for key, reason := range s.invalidRuntime {
		cfgErr.Invalid[key] = reason
	}
	return cfgErr
}

// EmailConfigured reports whether all SendGrid settings are present.
func (s Settings) EmailConfigured() bool {
	return s.SendGridAPIKey != "" && s.ToEmail != "" && s.FromEmail != ""
}

// WindowFor resolves the observation window for a calendar date on the site clock.
func (s Settings) WindowFor(date time.Time) domain.Window {
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}
	return domain.Window{
		Start: wallClock(date, s.WindowStart, loc),
		End:   wallClock(date, s.WindowEnd, loc),
	}
}

// wallClock places a time of day on the date's calendar day in loc. The clock
// reading is kept on DST transition days.
func wallClock(date time.Time, clock time.Duration, loc *time.Location) time.Time {
	y, m, d := date.Date()
	h := int(clock / time.Hour)
	mi := int(clock % time.Hour / time.Minute)
	sec := int(clock % time.Minute / time.Second)
	return time.Date(y, m, d, h, mi, sec, 0, loc)
}

func parseClock(v string) (time.Duration, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		t, err := time.Parse(layout, v)
		if err == nil {
			return time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second, nil
		}
	}
	return 0, fmt.Errorf("expected HH:MM[:SS], got %q", v)
}
