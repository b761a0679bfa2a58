package config

import (
	"fmt"
	"strings"
	"time"
)

// Duration fields stay Go duration strings in the YAML; parsing happens
// through these accessors so an invalid value is reported by its config
// path and an omitted one falls back to the section's default.
func parseDuration(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}

func (c TelegramConfig) PollTimeoutDuration() (time.Duration, error) {
	return parseDuration("telegram.poll_timeout", c.PollTimeout, 10*time.Second)
}

func (c StorageConfig) BusyTimeoutDuration() (time.Duration, error) {
	return parseDuration("storage.busy_timeout", c.BusyTimeout, 0)
}

func (c WatchConfig) PollIntervalDuration() (time.Duration, error) {
	return parseDuration("watch.poll_interval", c.PollInterval, 5*time.Minute)
}

func (c PairsConfig) IntervalDuration() (time.Duration, error) {
	return parseDuration("pairs.interval", c.Interval, time.Minute)
}

func (c NotifierConfig) RetryBaseDuration() (time.Duration, error) {
	return parseDuration("notifier.retry_base", c.RetryBase, 500*time.Millisecond)
}
