// Package providers contains the gateways to the external scheduling
// sources. Each gateway owns its provider's request shaping and
// response normalization; downstream code only ever sees domain.Slot.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"slotwatch/internal/domain"
)

// Doctor key names understood by the gateways.
const (
	KeyAssignmentID = "assignment_id" // aibolit
	KeyPhysicianID  = "physician_id"  // aibolit
	KeyWorkerID     = "worker_id"     // lode
)

// Gateway fetches the current slot feed for one doctor.
//
// FetchSlots never fails the caller: upstream errors and malformed
// payloads are logged by the gateway and an empty list is returned, so
// one bad provider cannot abort a whole poll cycle. The result is
// sorted ascending by start time.
type Gateway interface {
	Name() string
	FetchSlots(ctx context.Context, d domain.Doctor, dateStart, dateEnd time.Time) []domain.Slot
}

// Registry maps provider tags to gateways.
type Registry struct {
	tags []string
	gws  map[string]Gateway
}

func NewRegistry(gws ...Gateway) *Registry {
	r := &Registry{gws: make(map[string]Gateway, len(gws))}
	for _, gw := range gws {
		if _, dup := r.gws[gw.Name()]; dup {
			continue
		}
		r.tags = append(r.tags, gw.Name())
		r.gws[gw.Name()] = gw
	}
	return r
}

func (r *Registry) Get(tag string) (Gateway, bool) {
	gw, ok := r.gws[tag]
	return gw, ok
}

// Tags returns provider tags in registration order.
func (r *Registry) Tags() []string {
	return append([]string(nil), r.tags...)
}

func sortSlots(slots []domain.Slot) {
	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].Start.Before(slots[j].Start)
	})
}

// feedID tolerates providers that serve slot ids as either JSON
// strings or numbers.
type feedID string

func (f *feedID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = feedID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = feedID(n.String())
	return nil
}

var slotTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

func parseSlotTime(raw string) (time.Time, error) {
	for _, layout := range slotTimeLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized slot time %q", raw)
}

func getJSON(ctx context.Context, client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
