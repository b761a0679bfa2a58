package providers

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"slotwatch/internal/domain"
	logx "slotwatch/pkg/logx"
)

const aibolitBaseURL = "https://my2.aibolit.md/api/v2/my"

// Aibolit fetches doctor timetables from my2.aibolit.md. Lookup keys:
// assignment_id and physician_id.
type Aibolit struct {
	base string
	http *http.Client
	log  logx.Logger
}

func NewAibolit(log logx.Logger) *Aibolit {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Aibolit{
		base: aibolitBaseURL,
		http: &http.Client{Timeout: 15 * time.Second},
		log:  log.With(logx.String("provider", domain.ProviderAibolit)),
	}
}

func (a *Aibolit) Name() string { return domain.ProviderAibolit }

type aibolitTimetable struct {
	Timetable []aibolitSlot `json:"timetable"`
}

type aibolitSlot struct {
	ID    feedID `json:"id"`
	Start string `json:"start"`
	End   string `json:"end"`
}

func (a *Aibolit) FetchSlots(ctx context.Context, d domain.Doctor, dateStart, dateEnd time.Time) []domain.Slot {
	q := url.Values{}
	q.Set("assignmentId", d.Keys[KeyAssignmentID])
	q.Set("physicianId", d.Keys[KeyPhysicianID])
	q.Set("dateStart", dateStart.Format("2006-01-02"))
	q.Set("dateEnd", dateEnd.Format("2006-01-02"))

	req, err := http.NewRequest(http.MethodGet, a.base+"/providers/timetables?"+q.Encode(), nil)
	if err != nil {
		a.log.Error("building timetables request", logx.Err(err), logx.String("doctor", d.FullName))
		return nil
	}

	var payload []aibolitTimetable
	if err := getJSON(ctx, a.http, req, &payload); err != nil {
		a.log.Warn("fetching timetables failed",
			logx.Err(err), logx.String("doctor", d.FullName))
		return nil
	}
	if len(payload) == 0 {
		return nil
	}

	slots := make([]domain.Slot, 0, len(payload[0].Timetable))
	for _, raw := range payload[0].Timetable {
		if raw.ID == "" {
			continue
		}
		start, err := parseSlotTime(raw.Start)
		if err != nil {
			a.log.Warn("skipping slot with bad start time",
				logx.String("slot_id", string(raw.ID)), logx.Err(err))
			continue
		}
		slot := domain.Slot{ID: string(raw.ID), Start: start}
		if raw.End != "" {
			slot.Extra = map[string]string{"end": raw.End}
		}
		slots = append(slots, slot)
	}
	sortSlots(slots)
	return slots
}
