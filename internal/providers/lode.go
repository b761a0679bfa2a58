package providers

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"slotwatch/internal/domain"
	logx "slotwatch/pkg/logx"
)

const lodeBaseURL = "https://z-api-lode.vot.by"

// Lode fetches ticket feeds from lode.by. Lookup key: worker_id.
//
// The upstream is fronted by the public website, so requests carry the
// browser-shaped headers the site itself sends; without them the API
// rejects the call.
type Lode struct {
	base string
	http *http.Client
	log  logx.Logger
}

func NewLode(log logx.Logger) *Lode {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Lode{
		base: lodeBaseURL,
		http: &http.Client{Timeout: 15 * time.Second},
		log:  log.With(logx.String("provider", domain.ProviderLode)),
	}
}

func (l *Lode) Name() string { return domain.ProviderLode }

type lodeTicket struct {
	ID       feedID `json:"id"`
	Start    string `json:"start"`
	Date     string `json:"date"`
	Time     string `json:"time"`
	WorkerID feedID `json:"worker_id"`
	RoomID   feedID `json:"room_id"`
	SpecID   feedID `json:"spec_id"`
}

func (l *Lode) FetchSlots(ctx context.Context, d domain.Doctor, dateStart, dateEnd time.Time) []domain.Slot {
	workerID := d.Keys[KeyWorkerID]
	if workerID == "" {
		l.log.Warn("doctor has no worker_id", logx.String("doctor", d.FullName))
		return nil
	}

	q := url.Values{}
	q.Set("workerId", workerID)
	q.Set("lastData", dateEnd.UTC().Format("2006-01-02T15:04:05.000Z"))

	req, err := http.NewRequest(http.MethodGet, l.base+"/getTicketsByWorker?"+q.Encode(), nil)
	if err != nil {
		l.log.Error("building tickets request", logx.Err(err), logx.String("doctor", d.FullName))
		return nil
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Origin", "https://www.lode.by")
	req.Header.Set("Referer", "https://www.lode.by/")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/136.0.0.0 Safari/537.36")

	var tickets []lodeTicket
	if err := getJSON(ctx, l.http, req, &tickets); err != nil {
		l.log.Warn("fetching tickets failed",
			logx.Err(err), logx.String("doctor", d.FullName), logx.String("worker_id", workerID))
		return nil
	}

	slots := make([]domain.Slot, 0, len(tickets))
	for _, t := range tickets {
		if t.ID == "" {
			continue
		}
		start, err := l.ticketStart(t)
		if err != nil {
			l.log.Warn("skipping ticket with bad time",
				logx.String("slot_id", string(t.ID)), logx.Err(err))
			continue
		}
		if start.Before(dateStart) || start.After(dateEnd) {
			continue
		}
		slots = append(slots, domain.Slot{
			ID:    string(t.ID),
			Start: start,
			Extra: map[string]string{
				"worker_id": string(t.WorkerID),
				"room_id":   string(t.RoomID),
				"spec_id":   string(t.SpecID),
			},
		})
	}
	sortSlots(slots)
	l.log.Debug("tickets fetched", logx.String("doctor", d.FullName), logx.Int("count", len(slots)))
	return slots
}

// ticketStart prefers the absolute start timestamp and falls back to
// the split date+time fields some feed revisions serve instead.
func (l *Lode) ticketStart(t lodeTicket) (time.Time, error) {
	if t.Start != "" {
		return parseSlotTime(t.Start)
	}
	return time.ParseInLocation("2006-01-02 15:04", t.Date+" "+t.Time, time.Local)
}
