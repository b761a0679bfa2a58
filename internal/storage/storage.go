// Package storage is the persistence layer: the doctor registry, the
// recipient registry and the per-doctor slot snapshots.
//
// Snapshots are replaced wholesale on every successful fetch, never
// merged; Slots/ReplaceSlots is deliberately the whole contract.
package storage

import (
	"context"
	"errors"
	"time"

	"slotwatch/internal/domain"
)

var ErrNotFound = errors.New("storage: not found")

type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Store is the persistence API used by the bot flow and the watch
// pipeline.
type Store interface {
	// Doctors.
	AddDoctor(ctx context.Context, d domain.Doctor) (int64, error)
	Doctors(ctx context.Context) ([]domain.Doctor, error)
	EnabledDoctors(ctx context.Context, provider string) ([]domain.Doctor, error)
	ToggleDoctor(ctx context.Context, id int64) (domain.Doctor, error)

	// Recipients.
	AddRecipient(ctx context.Context, r domain.Recipient) error
	Recipients(ctx context.Context) ([]domain.Recipient, error)

	// Slot snapshots. Slots returns an empty list for a doctor that was
	// never stored. ReplaceSlots overwrites the whole snapshot.
	Slots(ctx context.Context, doctorID int64) ([]domain.Slot, error)
	ReplaceSlots(ctx context.Context, doctorID int64, slots []domain.Slot) error

	Close() error
}
