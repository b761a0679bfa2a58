// Package bot implements the chat command surface: recipient
// registration, the conversational doctor-registration flow, listing
// and enabling/disabling doctors.
package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"slotwatch/internal/domain"
	"slotwatch/internal/providers"
	kit "slotwatch/internal/transport"
	logx "slotwatch/pkg/logx"
)

// Store is the persistence surface the command flow needs.
type Store interface {
	AddDoctor(ctx context.Context, d domain.Doctor) (int64, error)
	Doctors(ctx context.Context) ([]domain.Doctor, error)
	ToggleDoctor(ctx context.Context, id int64) (domain.Doctor, error)
	AddRecipient(ctx context.Context, r domain.Recipient) error
}

// Refresher triggers an immediate poll cycle, so a freshly registered
// doctor is picked up without waiting for the next tick.
type Refresher interface {
	RefreshNow()
}

type stage int

const (
	stageIdle stage = iota
	stageProvider
	stageAssignmentID
	stagePhysicianID
	stageWorkerID
	stagePosition
	stageFullName
	stageToggleID
)

type session struct {
	stage stage
	draft domain.Doctor
}

type Service struct {
	store   Store
	refresh Refresher
	sender  kit.Sender
	log     logx.Logger

	mu       sync.Mutex
	sessions map[int64]*session
}

func New(store Store, refresh Refresher, sender kit.Sender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		store:    store,
		refresh:  refresh,
		sender:   sender,
		log:      log,
		sessions: make(map[int64]*session),
	}
}

// Run consumes inbound messages until ctx is done.
func (s *Service) Run(ctx context.Context, updates <-chan kit.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-updates:
			if !ok {
				return
			}
			s.handle(ctx, m)
		}
	}
}

func (s *Service) handle(ctx context.Context, m kit.Message) {
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return
	}

	if strings.HasPrefix(text, "/") {
		s.handleCommand(ctx, m, text)
		return
	}
	s.handleStage(ctx, m, text)
}

func (s *Service) handleCommand(ctx context.Context, m kit.Message, text string) {
	cmd := strings.ToLower(strings.Fields(text)[0])
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}

	switch cmd {
	case "/start":
		s.cmdStart(ctx, m)
	case "/adddoctor":
		s.setSession(m.ChatID, &session{stage: stageProvider})
		s.reply(ctx, m, fmt.Sprintf("Which provider? (%s)", strings.Join(knownProviders(), " / ")))
	case "/showdoctors":
		s.cmdShowDoctors(ctx, m)
	case "/toggledoctor":
		s.setSession(m.ChatID, &session{stage: stageToggleID})
		s.reply(ctx, m, "Send the doctor id to toggle:")
	case "/cancel":
		s.clearSession(m.ChatID)
		s.reply(ctx, m, "Cancelled.")
	case "/help":
		s.reply(ctx, m, helpText)
	default:
		s.reply(ctx, m, "Unknown command. Try /help.")
	}
}

const helpText = `Commands:
/start - register for slot notifications
/adddoctor - register a doctor to watch
/showdoctors - list watched doctors
/toggledoctor - enable or disable a doctor
/cancel - abort the current dialog`

func (s *Service) cmdStart(ctx context.Context, m kit.Message) {
	err := s.store.AddRecipient(ctx, domain.Recipient{
		ChatID:    m.ChatID,
		Username:  m.FromUsername,
		FirstName: m.FromName,
	})
	if err != nil {
		s.log.Error("registering recipient failed", logx.Err(err), logx.Int64("chat_id", m.ChatID))
		s.reply(ctx, m, "Registration failed, please try again.")
		return
	}
	s.reply(ctx, m, "Hi! You are registered and will be notified about new appointment slots.")
}

func (s *Service) cmdShowDoctors(ctx context.Context, m kit.Message) {
	doctors, err := s.store.Doctors(ctx)
	if err != nil {
		s.log.Error("listing doctors failed", logx.Err(err))
		s.reply(ctx, m, "Could not load the doctor list.")
		return
	}
	if len(doctors) == 0 {
		s.reply(ctx, m, "No doctors registered yet. Use /adddoctor.")
		return
	}

	var b strings.Builder
	b.WriteString("<b>Watched doctors:</b>\n")
	for _, d := range doctors {
		marker := "🟢"
		if !d.Enabled {
			marker = "🔴"
		}
		fmt.Fprintf(&b, "%s %s - %s [%s] (id: <code>%d</code>)\n",
			marker, d.FullName, d.Position, d.Provider, d.ID)
	}
	s.replyHTML(ctx, m, b.String())
}

func (s *Service) handleStage(ctx context.Context, m kit.Message, text string) {
	sess := s.session(m.ChatID)
	if sess == nil || sess.stage == stageIdle {
		return
	}

	switch sess.stage {
	case stageProvider:
		tag := strings.ToLower(text)
		switch tag {
		case domain.ProviderAibolit:
			sess.draft = domain.Doctor{Provider: tag, Enabled: true, Keys: map[string]string{}}
			sess.stage = stageAssignmentID
			s.reply(ctx, m, "Send the doctor's assignment id:")
		case domain.ProviderLode:
			sess.draft = domain.Doctor{Provider: tag, Enabled: true, Keys: map[string]string{}}
			sess.stage = stageWorkerID
			s.reply(ctx, m, "Send the doctor's worker id:")
		default:
			s.reply(ctx, m, fmt.Sprintf("Unknown provider %q. Choose one of: %s",
				text, strings.Join(knownProviders(), ", ")))
		}

	case stageAssignmentID:
		sess.draft.Keys[providers.KeyAssignmentID] = text
		sess.stage = stagePhysicianID
		s.reply(ctx, m, "Send the doctor's physician id:")

	case stagePhysicianID:
		sess.draft.Keys[providers.KeyPhysicianID] = text
		sess.stage = stagePosition
		s.reply(ctx, m, "Send the doctor's position/speciality:")

	case stageWorkerID:
		sess.draft.Keys[providers.KeyWorkerID] = text
		sess.stage = stagePosition
		s.reply(ctx, m, "Send the doctor's position/speciality:")

	case stagePosition:
		sess.draft.Position = text
		sess.stage = stageFullName
		s.reply(ctx, m, "Send the doctor's full name:")

	case stageFullName:
		sess.draft.FullName = text
		s.finishAddDoctor(ctx, m, sess.draft)
		s.clearSession(m.ChatID)

	case stageToggleID:
		s.finishToggle(ctx, m, text)
		s.clearSession(m.ChatID)
	}
}

func (s *Service) finishAddDoctor(ctx context.Context, m kit.Message, d domain.Doctor) {
	id, err := s.store.AddDoctor(ctx, d)
	if err != nil {
		s.log.Error("adding doctor failed", logx.Err(err))
		s.reply(ctx, m, "Could not add the doctor, please try again.")
		return
	}
	s.log.Info("doctor added",
		logx.Int64("id", id), logx.String("name", d.FullName), logx.String("provider", d.Provider))
	s.reply(ctx, m, fmt.Sprintf("Doctor %s added (id %d). Watching for slots now.", d.FullName, id))

	// Announce the newcomer's slots without waiting for the next tick.
	s.refresh.RefreshNow()
}

func (s *Service) finishToggle(ctx context.Context, m kit.Message, text string) {
	id, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil {
		s.reply(ctx, m, "That doesn't look like a doctor id.")
		return
	}
	d, err := s.store.ToggleDoctor(ctx, id)
	if err != nil {
		s.log.Error("toggling doctor failed", logx.Err(err), logx.Int64("id", id))
		s.reply(ctx, m, "Could not toggle that doctor.")
		return
	}
	state := "disabled"
	if d.Enabled {
		state = "enabled"
	}
	s.reply(ctx, m, fmt.Sprintf("Doctor %s is now %s.", d.FullName, state))
}

func knownProviders() []string {
	return []string{domain.ProviderAibolit, domain.ProviderLode}
}

func (s *Service) session(chatID int64) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[chatID]
}

func (s *Service) setSession(chatID int64, sess *session) {
	s.mu.Lock()
	s.sessions[chatID] = sess
	s.mu.Unlock()
}

func (s *Service) clearSession(chatID int64) {
	s.mu.Lock()
	delete(s.sessions, chatID)
	s.mu.Unlock()
}

func (s *Service) reply(ctx context.Context, m kit.Message, text string) {
	if _, err := s.sender.SendText(ctx, kit.ChatTarget{ChatID: m.ChatID}, text, nil); err != nil {
		s.log.Warn("reply failed", logx.Err(err), logx.Int64("chat_id", m.ChatID))
	}
}

func (s *Service) replyHTML(ctx context.Context, m kit.Message, text string) {
	opts := &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}
	if _, err := s.sender.SendText(ctx, kit.ChatTarget{ChatID: m.ChatID}, text, opts); err != nil {
		s.log.Warn("reply failed", logx.Err(err), logx.Int64("chat_id", m.ChatID))
	}
}
