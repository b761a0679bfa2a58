package watch

import "slotwatch/internal/domain"

// newSlots returns the fetched slots whose ids do not appear in the
// previous snapshot. Comparison is by id only: a provider re-issuing a
// known id with different content is not reported.
func newSlots(previous, fetched []domain.Slot) []domain.Slot {
	if len(fetched) == 0 {
		return nil
	}
	known := make(map[string]struct{}, len(previous))
	for _, s := range previous {
		known[s.ID] = struct{}{}
	}

	var fresh []domain.Slot
	for _, s := range fetched {
		if _, ok := known[s.ID]; !ok {
			fresh = append(fresh, s)
		}
	}
	return fresh
}
