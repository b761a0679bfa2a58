package watch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"slotwatch/internal/domain"
	kit "slotwatch/internal/transport"
	logx "slotwatch/pkg/logx"
)

// slotEvent and pairEvent carry the doctor alongside the finding so
// the message can name who the availability belongs to.
type slotEvent struct {
	doctor domain.Doctor
	slot   domain.Slot
}

type pairEvent struct {
	doctor domain.Doctor
	pair   domain.Pair
}

// capSlotEvents keeps at most max events, earliest occurrence first.
// The suppressed remainder is dropped on purpose: a cycle that finds a
// flood of new slots should not flood every recipient.
func capSlotEvents(events []slotEvent, max int) (kept []slotEvent, suppressed int) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].slot.Start.Before(events[j].slot.Start)
	})
	if max <= 0 || len(events) <= max {
		return events, 0
	}
	return events[:max], len(events) - max
}

func capPairEvents(events []pairEvent, max int) (kept []pairEvent, suppressed int) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].pair.First.Start.Before(events[j].pair.First.Start)
	})
	if max <= 0 || len(events) <= max {
		return events, 0
	}
	return events[:max], len(events) - max
}

var htmlOpts = &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}

// announce fans the texts out to every recipient. A failure for one
// recipient is logged and never blocks the rest.
func (s *Service) announce(ctx context.Context, texts []string) {
	if len(texts) == 0 {
		return
	}
	recipients, err := s.store.Recipients(ctx)
	if err != nil {
		s.log.Error("listing recipients failed, notifications lost", logx.Err(err))
		return
	}

	for _, text := range texts {
		for _, r := range recipients {
			n := kit.Notification{Target: kit.ChatTarget{ChatID: r.ChatID}, Text: text, Options: htmlOpts}
			if err := s.notif.Notify(ctx, n); err != nil {
				s.log.Warn("recipient notification failed",
					logx.Err(err), logx.Int64("chat_id", r.ChatID))
			}
		}
	}
}

func formatSlot(d domain.Doctor, slot domain.Slot) string {
	return fmt.Sprintf("🕒 New slot for %s: <b>%s</b>",
		doctorLabel(d), slot.Start.Format("02.01.2006 15:04"))
}

func formatPair(d domain.Doctor, p domain.Pair) string {
	date := p.Date
	if t, err := time.Parse("2006-01-02", p.Date); err == nil {
		date = t.Format("02.01.2006")
	}
	return fmt.Sprintf("🔗 New back-to-back slots for %s on <b>%s</b>: %s-%s",
		doctorLabel(d), date, p.Start, p.End)
}

func doctorLabel(d domain.Doctor) string {
	if d.Position == "" {
		return d.FullName
	}
	return fmt.Sprintf("%s (%s)", d.FullName, d.Position)
}
