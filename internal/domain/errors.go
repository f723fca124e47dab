package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNoTransport indicates that no notification channel is configured.
var ErrNoTransport = errors.New("notify: no transport configured")

// ConfigurationError reports missing or unusable settings. It is fatal to a run.
type ConfigurationError struct {
	Missing []string
	Invalid map[string]string
}

func (e *ConfigurationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required settings: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		keys := make([]string, 0, len(e.Invalid))
		for k := range e.Invalid {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		invalid := make([]string, 0, len(keys))
		for _, k := range keys {
			invalid = append(invalid, fmt.Sprintf("%s (%s)", k, e.Invalid[k]))
		}
		parts = append(parts, "invalid settings: "+strings.Join(invalid, ", "))
	}
	if len(parts) == 0 {
		return "configuration error"
	}
	return strings.Join(parts, "; ")
}

// Empty reports whether the error carries no findings.
func (e *ConfigurationError) Empty() bool {
	return e == nil || (len(e.Missing) == 0 && len(e.Invalid) == 0)
}

// UpstreamError wraps a failed call to the power-monitoring API.
type UpstreamError struct {
	Op         string
	SiteID     string
	Serial     InverterID
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(" site=")
	b.WriteString(e.SiteID)
	if e.Serial != "" {
		b.WriteString(" serial=")
		b.WriteString(string(e.Serial))
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " status=%d", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// NotificationError wraps a failed alert send. It never aborts a run.
type NotificationError struct {
	Channel string
	Serial  InverterID
	Err     error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify %s serial=%s: %v", e.Channel, e.Serial, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }
