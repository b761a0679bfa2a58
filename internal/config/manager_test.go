package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "slotwatch/pkg/logx"
)

const sampleYAML = `
telegram:
  token: "123:abc"
  poll_timeout: "10s"
logging:
  level: "DEBUG"
  console: true
  file:
    enabled: true
    path: "./slotwatch.log"
storage:
  path: "./data/slotwatch.db"
  busy_timeout: "5s"
watch:
  enabled: true
  poll_interval: "90s"
  date_window_days: 30
  max_slot_notifications: 5
pairs:
  enabled: true
  interval: "1m"
  provider: "lode"
  mode: "pairs"
  max_notifications: 3
notifier:
  workers: 2
  rate_per_sec: 3
  retry_max: 2
  retry_base: "500ms"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, sampleYAML), logx.Nop())

	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Telegram.Token != "123:abc" || cfg.Telegram.PollTimeout != "10s" {
		t.Fatalf("telegram section: %+v", cfg.Telegram)
	}
	if cfg.Logging.Level != "DEBUG" || !cfg.Logging.File.Enabled {
		t.Fatalf("logging section: %+v", cfg.Logging)
	}
	if cfg.Storage.Path != "./data/slotwatch.db" {
		t.Fatalf("storage section: %+v", cfg.Storage)
	}
	if !cfg.Watch.Enabled || cfg.Watch.PollInterval != "90s" || cfg.Watch.DateWindowDays != 30 {
		t.Fatalf("watch section: %+v", cfg.Watch)
	}
	if cfg.Pairs.Provider != "lode" || cfg.Pairs.MaxNotifications != 3 {
		t.Fatalf("pairs section: %+v", cfg.Pairs)
	}
	if cfg.Notifier.RetryBase != "500ms" {
		t.Fatalf("notifier section: %+v", cfg.Notifier)
	}

	if got := m.Get(); got != cfg {
		t.Fatal("Get did not return the loaded config")
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, `
telegram:
  token: "x"
  typo_field: true
`), logx.Nop())
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseRejectsMissingFile(t *testing.T) {
	t.Parallel()
	m := NewManager(filepath.Join(t.TempDir(), "nope.yaml"), logx.Nop())
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDurationAccessors(t *testing.T) {
	t.Parallel()

	d, err := WatchConfig{PollInterval: "90s"}.PollIntervalDuration()
	if err != nil || d != 90*time.Second {
		t.Fatalf("got %v, %v", d, err)
	}
	// Omitted fields fall back to the section default.
	d, err = WatchConfig{}.PollIntervalDuration()
	if err != nil || d != 5*time.Minute {
		t.Fatalf("default not applied: %v, %v", d, err)
	}
	d, err = TelegramConfig{}.PollTimeoutDuration()
	if err != nil || d != 10*time.Second {
		t.Fatalf("default not applied: %v, %v", d, err)
	}
	d, err = PairsConfig{Interval: "30s"}.IntervalDuration()
	if err != nil || d != 30*time.Second {
		t.Fatalf("got %v, %v", d, err)
	}
	// Busy timeout has no default: empty stays zero.
	d, err = StorageConfig{}.BusyTimeoutDuration()
	if err != nil || d != 0 {
		t.Fatalf("got %v, %v", d, err)
	}

	// Bad values report their config path.
	_, err = WatchConfig{PollInterval: "ninety"}.PollIntervalDuration()
	if err == nil || !strings.Contains(err.Error(), "watch.poll_interval") {
		t.Fatalf("expected path in error, got %v", err)
	}
	if _, err := (NotifierConfig{RetryBase: "-5s"}).RetryBaseDuration(); err == nil {
		t.Fatal("expected error for negative duration")
	}
}

func TestReloadPublishesOnChange(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, sampleYAML)
	m := NewManager(path, logx.Nop())
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	// Unchanged content: reload must not publish.
	m.reload()
	select {
	case cfg := <-sub:
		t.Fatalf("unchanged reload published %+v", cfg)
	default:
	}

	// Changed content: subscriber sees the new config.
	changed := strings.Replace(sampleYAML, `poll_interval: "90s"`, `poll_interval: "2m"`, 1)
	if err := os.WriteFile(path, []byte(changed), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	m.reload()
	select {
	case cfg := <-sub:
		if cfg.Watch.PollInterval != "2m" {
			t.Fatalf("stale config published: %+v", cfg.Watch)
		}
	default:
		t.Fatal("changed reload did not publish")
	}
}

func TestReloadKeepsPreviousOnParseError(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, sampleYAML)
	m := NewManager(path, logx.Nop())
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if err := os.WriteFile(path, []byte("{{{ not yaml"), 0o644); err != nil {
		t.Fatalf("corrupt config: %v", err)
	}
	m.reload()

	if got := m.Get(); got != cfg {
		t.Fatal("broken reload replaced the config")
	}
}
