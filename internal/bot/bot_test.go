package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"slotwatch/internal/domain"
	kit "slotwatch/internal/transport"
	logx "slotwatch/pkg/logx"
)

type fakeStore struct {
	mu         sync.Mutex
	doctors    []domain.Doctor
	recipients []domain.Recipient
	nextID     int64
}

func (f *fakeStore) AddDoctor(_ context.Context, d domain.Doctor) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	d.ID = f.nextID
	f.doctors = append(f.doctors, d)
	return d.ID, nil
}

func (f *fakeStore) Doctors(context.Context) ([]domain.Doctor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Doctor(nil), f.doctors...), nil
}

func (f *fakeStore) ToggleDoctor(_ context.Context, id int64) (domain.Doctor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.doctors {
		if f.doctors[i].ID == id {
			f.doctors[i].Enabled = !f.doctors[i].Enabled
			return f.doctors[i], nil
		}
	}
	return domain.Doctor{}, errNotFound
}

var errNotFound = errors.New("doctor not found")

func (f *fakeStore) AddRecipient(_ context.Context, r domain.Recipient) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recipients = append(f.recipients, r)
	return nil
}

type fakeRefresher struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeRefresher) RefreshNow() {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

func (f *fakeRefresher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSender struct {
	mu      sync.Mutex
	replies []string
}

func (f *fakeSender) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, text)
	return kit.MessageRef{}, nil
}

func (f *fakeSender) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		return ""
	}
	return f.replies[len(f.replies)-1]
}

func newTestBot() (*Service, *fakeStore, *fakeRefresher, *fakeSender) {
	st := &fakeStore{}
	rf := &fakeRefresher{}
	sn := &fakeSender{}
	return New(st, rf, sn, logx.Nop()), st, rf, sn
}

func msg(chatID int64, text string) kit.Message {
	return kit.Message{ChatID: chatID, FromUsername: "user", FromName: "User", Text: text}
}

func TestStartRegistersRecipient(t *testing.T) {
	t.Parallel()
	s, st, _, sn := newTestBot()
	s.handle(context.Background(), msg(100, "/start"))

	if len(st.recipients) != 1 || st.recipients[0].ChatID != 100 {
		t.Fatalf("recipient not registered: %+v", st.recipients)
	}
	if !strings.Contains(sn.last(), "registered") {
		t.Fatalf("unexpected reply %q", sn.last())
	}
}

func TestAddDoctorAibolitFlow(t *testing.T) {
	t.Parallel()
	s, st, rf, sn := newTestBot()
	ctx := context.Background()

	s.handle(ctx, msg(100, "/adddoctor"))
	if !strings.Contains(sn.last(), "provider") {
		t.Fatalf("expected provider question, got %q", sn.last())
	}
	s.handle(ctx, msg(100, "aibolit"))
	s.handle(ctx, msg(100, "777"))       // assignment id
	s.handle(ctx, msg(100, "42"))        // physician id
	s.handle(ctx, msg(100, "Cardiolog")) // position
	s.handle(ctx, msg(100, "Dr. One"))   // full name

	if len(st.doctors) != 1 {
		t.Fatalf("doctor not stored: %+v", st.doctors)
	}
	d := st.doctors[0]
	if d.Provider != domain.ProviderAibolit || !d.Enabled {
		t.Fatalf("bad doctor: %+v", d)
	}
	if d.Keys["assignment_id"] != "777" || d.Keys["physician_id"] != "42" {
		t.Fatalf("lookup keys lost: %+v", d.Keys)
	}
	if d.Position != "Cardiolog" || d.FullName != "Dr. One" {
		t.Fatalf("details lost: %+v", d)
	}

	// Registration triggers an immediate refresh.
	if rf.count() != 1 {
		t.Fatalf("refresh calls = %d, want 1", rf.count())
	}
	if !strings.Contains(sn.last(), "added") {
		t.Fatalf("unexpected confirmation %q", sn.last())
	}
}

func TestAddDoctorLodeFlow(t *testing.T) {
	t.Parallel()
	s, st, _, _ := newTestBot()
	ctx := context.Background()

	s.handle(ctx, msg(100, "/adddoctor"))
	s.handle(ctx, msg(100, "lode"))
	s.handle(ctx, msg(100, "9001")) // worker id
	s.handle(ctx, msg(100, "Terapeut"))
	s.handle(ctx, msg(100, "Dr. Two"))

	if len(st.doctors) != 1 {
		t.Fatalf("doctor not stored: %+v", st.doctors)
	}
	if st.doctors[0].Keys["worker_id"] != "9001" {
		t.Fatalf("worker id lost: %+v", st.doctors[0].Keys)
	}
}

func TestAddDoctorUnknownProviderReprompts(t *testing.T) {
	t.Parallel()
	s, st, _, sn := newTestBot()
	ctx := context.Background()

	s.handle(ctx, msg(100, "/adddoctor"))
	s.handle(ctx, msg(100, "nosuch"))
	if !strings.Contains(sn.last(), "Unknown provider") {
		t.Fatalf("expected reprompt, got %q", sn.last())
	}
	// Session is still open: a valid answer proceeds.
	s.handle(ctx, msg(100, "lode"))
	if !strings.Contains(sn.last(), "worker id") {
		t.Fatalf("flow did not continue: %q", sn.last())
	}
	if len(st.doctors) != 0 {
		t.Fatalf("doctor stored prematurely: %+v", st.doctors)
	}
}

func TestCancelAbortsDialog(t *testing.T) {
	t.Parallel()
	s, st, _, _ := newTestBot()
	ctx := context.Background()

	s.handle(ctx, msg(100, "/adddoctor"))
	s.handle(ctx, msg(100, "/cancel"))
	// Free text after cancel is ignored.
	s.handle(ctx, msg(100, "aibolit"))

	if len(st.doctors) != 0 {
		t.Fatalf("cancelled dialog stored a doctor: %+v", st.doctors)
	}
}

func TestSessionsAreIndependentPerChat(t *testing.T) {
	t.Parallel()
	s, st, _, _ := newTestBot()
	ctx := context.Background()

	s.handle(ctx, msg(100, "/adddoctor"))
	s.handle(ctx, msg(200, "/adddoctor"))
	s.handle(ctx, msg(100, "lode"))
	s.handle(ctx, msg(200, "aibolit"))
	s.handle(ctx, msg(100, "9001"))
	s.handle(ctx, msg(100, "Terapeut"))
	s.handle(ctx, msg(100, "Dr. Lode"))

	if len(st.doctors) != 1 || st.doctors[0].Provider != domain.ProviderLode {
		t.Fatalf("cross-chat session leak: %+v", st.doctors)
	}
}

func TestShowDoctors(t *testing.T) {
	t.Parallel()
	s, st, _, sn := newTestBot()
	ctx := context.Background()

	s.handle(ctx, msg(100, "/showdoctors"))
	if !strings.Contains(sn.last(), "No doctors") {
		t.Fatalf("expected empty-list reply, got %q", sn.last())
	}

	st.doctors = []domain.Doctor{
		{ID: 1, Provider: domain.ProviderLode, FullName: "Dr. On", Position: "LOR", Enabled: true},
		{ID: 2, Provider: domain.ProviderAibolit, FullName: "Dr. Off", Position: "Chirurg"},
	}
	s.handle(ctx, msg(100, "/showdoctors"))
	out := sn.last()
	if !strings.Contains(out, "🟢 Dr. On") || !strings.Contains(out, "🔴 Dr. Off") {
		t.Fatalf("markers missing: %q", out)
	}
	if !strings.Contains(out, "<code>1</code>") {
		t.Fatalf("id not shown: %q", out)
	}
}

func TestToggleDoctorFlow(t *testing.T) {
	t.Parallel()
	s, st, _, sn := newTestBot()
	ctx := context.Background()
	st.doctors = []domain.Doctor{{ID: 7, FullName: "Dr. Seven", Enabled: true}}

	s.handle(ctx, msg(100, "/toggledoctor"))
	s.handle(ctx, msg(100, "7"))

	if st.doctors[0].Enabled {
		t.Fatal("doctor not toggled")
	}
	if !strings.Contains(sn.last(), "disabled") {
		t.Fatalf("unexpected reply %q", sn.last())
	}
}

func TestToggleDoctorBadID(t *testing.T) {
	t.Parallel()
	s, _, _, sn := newTestBot()
	ctx := context.Background()

	s.handle(ctx, msg(100, "/toggledoctor"))
	s.handle(ctx, msg(100, "seven"))
	if !strings.Contains(sn.last(), "doesn't look like") {
		t.Fatalf("unexpected reply %q", sn.last())
	}
}

func TestCommandWithBotSuffix(t *testing.T) {
	t.Parallel()
	s, st, _, _ := newTestBot()
	s.handle(context.Background(), msg(100, "/start@slotwatch_bot"))
	if len(st.recipients) != 1 {
		t.Fatal("suffixed command not recognized")
	}
}
