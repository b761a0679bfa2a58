package watch

import (
	"testing"
	"time"

	"slotwatch/internal/domain"
)

func TestCapSlotEventsKeepsEarliest(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	// 8 new slots, deliberately out of order.
	var events []slotEvent
	for _, off := range []int{5, 2, 7, 0, 4, 1, 6, 3} {
		events = append(events, slotEvent{
			slot: slotAt(string(rune('a'+off)), base.Add(time.Duration(off)*time.Hour)),
		})
	}

	kept, suppressed := capSlotEvents(events, 5)
	if len(kept) != 5 || suppressed != 3 {
		t.Fatalf("kept=%d suppressed=%d, want 5/3", len(kept), suppressed)
	}
	for i, ev := range kept {
		want := base.Add(time.Duration(i) * time.Hour)
		if !ev.slot.Start.Equal(want) {
			t.Fatalf("kept[%d] = %v, want %v (earliest first)", i, ev.slot.Start, want)
		}
	}
}

func TestCapSlotEventsUnderLimit(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	events := []slotEvent{{slot: slotAt("a", base)}}

	kept, suppressed := capSlotEvents(events, 5)
	if len(kept) != 1 || suppressed != 0 {
		t.Fatalf("kept=%d suppressed=%d, want 1/0", len(kept), suppressed)
	}
}

func TestCapPairEventsKeepsEarliest(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	var events []pairEvent
	for _, off := range []int{3, 0, 2, 1} {
		first := slotAt("f", base.Add(time.Duration(off)*time.Hour))
		events = append(events, pairEvent{pair: domain.Pair{
			First: first, Date: first.Date(), Start: first.TimeOfDay(),
		}})
	}

	kept, suppressed := capPairEvents(events, 3)
	if len(kept) != 3 || suppressed != 1 {
		t.Fatalf("kept=%d suppressed=%d, want 3/1", len(kept), suppressed)
	}
	if kept[0].pair.Start != "08:00" {
		t.Fatalf("expected earliest pair first, got %+v", kept[0].pair)
	}
}

func TestFormatSlot(t *testing.T) {
	t.Parallel()
	d := domain.Doctor{FullName: "A. Ionescu", Position: "Cardiologist"}
	s := slotAt("s1", time.Date(2026, 9, 14, 10, 30, 0, 0, time.UTC))

	got := formatSlot(d, s)
	want := "🕒 New slot for A. Ionescu (Cardiologist): <b>14.09.2026 10:30</b>"
	if got != want {
		t.Fatalf("formatSlot = %q, want %q", got, want)
	}
}
