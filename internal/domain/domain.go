// Package domain holds the shared types passed between providers,
// storage and the watch pipeline.
package domain

import "time"

// Provider tags. A doctor belongs to exactly one provider; the tag
// selects which gateway is used to fetch its slots.
const (
	ProviderAibolit = "aibolit"
	ProviderLode    = "lode"
)

// Doctor is a monitored practitioner. Keys carry provider-specific
// lookup identifiers (assignment/physician ids, worker id, ...) that
// are opaque to everything except the owning gateway.
type Doctor struct {
	ID       int64
	Provider string
	FullName string
	Position string
	Location string
	Enabled  bool
	Keys     map[string]string
}

// Slot is a single bookable appointment opportunity. ID is unique
// within the owning provider's feed; a slot either exists in the
// current feed or it does not, there is no update semantics.
//
// Start is the normalized occurrence time. Gateways convert whatever
// the upstream uses (absolute timestamp, split date+time strings) into
// Start so nothing downstream branches on provider identity.
type Slot struct {
	ID    string            `json:"id"`
	Start time.Time         `json:"start"`
	Extra map[string]string `json:"extra,omitempty"`
}

// Date returns the slot's calendar date as YYYY-MM-DD.
func (s Slot) Date() string { return s.Start.Format("2006-01-02") }

// TimeOfDay returns the slot's start time as HH:MM.
func (s Slot) TimeOfDay() string { return s.Start.Format("15:04") }

// Pair is two slots on the same date exactly one gap apart,
// representing a resource that is only bookable as a contiguous block.
type Pair struct {
	First  Slot
	Second Slot
	Date   string // YYYY-MM-DD
	Start  string // HH:MM of First
	End    string // HH:MM of Second
}

// Key identifies a pair for dedupe purposes.
func (p Pair) Key() string { return p.Date + "|" + p.Start + "|" + p.End }

// Recipient is a notification target. The watch pipeline only ever
// reads recipients; registration happens in the bot command flow.
type Recipient struct {
	ChatID    int64
	Username  string
	FirstName string
}
