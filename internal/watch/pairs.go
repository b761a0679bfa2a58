package watch

import (
	"sort"
	"time"

	"slotwatch/internal/domain"
)

// pairState is the pair pipeline's dedupe memory: slot ids and pair
// keys already observed during this process lifetime. It only grows,
// and it resets on restart; the first successful scan seeds it without
// emitting anything so a restart never replays the whole feed.
//
// The state is mutated only from within the pair tick (which holds the
// single-active-run guard), so it needs no locking of its own.
type pairState struct {
	seeded bool
	slots  map[string]struct{}
	pairs  map[string]struct{}
}

func newPairState() *pairState {
	return &pairState{
		slots: make(map[string]struct{}),
		pairs: make(map[string]struct{}),
	}
}

func (st *pairState) knownSlot(id string) bool {
	_, ok := st.slots[id]
	return ok
}

func (st *pairState) knownPair(key string) bool {
	_, ok := st.pairs[key]
	return ok
}

func (st *pairState) observe(feed []domain.Slot, pairs []domain.Pair) {
	for _, s := range feed {
		st.slots[s.ID] = struct{}{}
	}
	for _, p := range pairs {
		st.pairs[p.Key()] = struct{}{}
	}
}

// detectPairs groups the feed by calendar date, sorts each group by
// time of day and emits a pair for every two adjacent slots spaced
// exactly gap apart. Pairs never span non-adjacent slots; three slots
// each 30 minutes apart yield two pairs.
func detectPairs(feed []domain.Slot, gap time.Duration) []domain.Pair {
	byDate := make(map[string][]domain.Slot)
	for _, s := range feed {
		d := s.Date()
		byDate[d] = append(byDate[d], s)
	}

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	var out []domain.Pair
	for _, date := range dates {
		group := byDate[date]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Start.Before(group[j].Start)
		})
		for i := 0; i+1 < len(group); i++ {
			first, second := group[i], group[i+1]
			if second.Start.Sub(first.Start) != gap {
				continue
			}
			out = append(out, domain.Pair{
				First:  first,
				Second: second,
				Date:   date,
				Start:  first.TimeOfDay(),
				End:    second.TimeOfDay(),
			})
		}
	}
	return out
}
