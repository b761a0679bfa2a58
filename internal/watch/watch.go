// Package watch is the slot polling engine: on every tick it fetches
// the current slot feed per enabled doctor, diffs it against the
// stored snapshot, replaces the snapshot and announces genuinely new
// slots to every recipient. A secondary pipeline scans one provider's
// feed for consecutive 30-minute slot pairs.
package watch

import (
	"context"
	"time"

	"slotwatch/internal/domain"
	kit "slotwatch/internal/transport"
)

// Mode selects what the pair pipeline announces.
type Mode string

const (
	// ModePairs announces only consecutive 30-minute pairs.
	ModePairs Mode = "pairs"
	// ModeAll announces every previously-unseen slot in the feed.
	ModeAll Mode = "all"
)

// pairGap is the exact spacing between two slots that makes them a
// bookable contiguous block.
const pairGap = 30 * time.Minute

type Config struct {
	Enabled      bool
	PollInterval time.Duration
	// DateWindow is how far ahead of today each fetch looks.
	DateWindow time.Duration
	// MaxSlotNotifications caps new slots announced per cycle; the
	// earliest-occurring ones win.
	MaxSlotNotifications int

	Pairs PairsConfig
}

type PairsConfig struct {
	Enabled          bool
	Interval         time.Duration
	Provider         string
	Mode             Mode
	MaxNotifications int
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Minute
	}
	if c.DateWindow <= 0 {
		c.DateWindow = 30 * 24 * time.Hour
	}
	if c.MaxSlotNotifications <= 0 {
		c.MaxSlotNotifications = 5
	}
	if c.Pairs.Interval <= 0 {
		c.Pairs.Interval = time.Minute
	}
	if c.Pairs.Provider == "" {
		c.Pairs.Provider = domain.ProviderLode
	}
	if c.Pairs.Mode == "" {
		c.Pairs.Mode = ModePairs
	}
	if c.Pairs.MaxNotifications <= 0 {
		c.Pairs.MaxNotifications = 3
	}
}

// Store is the persistence surface the pipeline needs.
type Store interface {
	EnabledDoctors(ctx context.Context, provider string) ([]domain.Doctor, error)
	Recipients(ctx context.Context) ([]domain.Recipient, error)
	Slots(ctx context.Context, doctorID int64) ([]domain.Slot, error)
	ReplaceSlots(ctx context.Context, doctorID int64, slots []domain.Slot) error
}

// Notifier accepts outbound messages for async delivery.
type Notifier interface {
	Notify(ctx context.Context, n kit.Notification) error
}
