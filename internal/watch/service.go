package watch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"slotwatch/internal/domain"
	"slotwatch/internal/providers"
	logx "slotwatch/pkg/logx"
)

// Service drives the two pipelines: a primary tick running
// fetch/diff/notify for every enabled doctor across all providers, and
// an optional secondary tick running the pair analysis over one
// provider's feed. A registration can request an immediate refresh via
// RefreshNow so a fresh doctor doesn't wait for the next tick.
type Service struct {
	store    Store
	gateways *providers.Registry
	notif    Notifier
	log      logx.Logger

	mu      sync.Mutex
	cfg     Config
	c       *cron.Cron
	runCtx  context.Context
	started bool

	refresh chan struct{}

	// At most one cycle per pipeline may be in flight; a tick firing
	// while the previous one still runs is skipped, not queued.
	pollBusy atomic.Bool
	pairBusy atomic.Bool

	pairs *pairState

	now func() time.Time
}

func New(cfg Config, store Store, gateways *providers.Registry, notif Notifier, log logx.Logger) *Service {
	cfg.applyDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:      cfg,
		store:    store,
		gateways: gateways,
		notif:    notif,
		log:      log,
		refresh:  make(chan struct{}, 1),
		pairs:    newPairState(),
		now:      time.Now,
	}
}

func (s *Service) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.started = true
	s.runCtx = ctx

	if err := s.startCronLocked(); err != nil {
		s.started = false
		return err
	}

	go s.refreshLoop(ctx)

	s.log.Info("watch started",
		logx.Bool("poll", s.cfg.Enabled),
		logx.Duration("poll_interval", s.cfg.PollInterval),
		logx.Bool("pairs", s.cfg.Pairs.Enabled),
		logx.Duration("pairs_interval", s.cfg.Pairs.Interval))
	return nil
}

func (s *Service) startCronLocked() error {
	c := cron.New()
	ctx := s.runCtx
	if s.cfg.Enabled {
		if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.cfg.PollInterval), func() { s.runPoll(ctx) }); err != nil {
			return err
		}
	}
	if s.cfg.Pairs.Enabled {
		if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.cfg.Pairs.Interval), func() { s.runPairs(ctx) }); err != nil {
			return err
		}
	}
	c.Start()
	s.c = c
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.started = false
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("watch stopped")
}

// Apply swaps config at runtime. Timer entries are rebuilt when an
// interval or enable flag changed; pair dedupe memory is kept.
func (s *Service) Apply(cfg Config) {
	cfg.applyDefaults()
	s.mu.Lock()
	defer s.mu.Unlock()

	rebuild := s.started &&
		(cfg.Enabled != s.cfg.Enabled ||
			cfg.PollInterval != s.cfg.PollInterval ||
			cfg.Pairs.Enabled != s.cfg.Pairs.Enabled ||
			cfg.Pairs.Interval != s.cfg.Pairs.Interval)
	s.cfg = cfg

	if !rebuild {
		return
	}
	if s.c != nil {
		<-s.c.Stop().Done()
	}
	if err := s.startCronLocked(); err != nil {
		s.log.Error("rebuilding timers failed", logx.Err(err))
		return
	}
	s.log.Info("watch timers rebuilt",
		logx.Duration("poll_interval", cfg.PollInterval),
		logx.Duration("pairs_interval", cfg.Pairs.Interval))
}

// RefreshNow requests an immediate poll cycle. Non-blocking; if a
// refresh is already pending it is collapsed into it.
func (s *Service) RefreshNow() {
	select {
	case s.refresh <- struct{}{}:
	default:
	}
}

func (s *Service) refreshLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.refresh:
			s.log.Info("refresh requested")
			s.runPoll(ctx)
		}
	}
}

func (s *Service) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// window returns the fetch date range: today (midnight) until the end
// of the configured look-ahead window.
func (s *Service) window(cfg Config) (time.Time, time.Time) {
	now := s.now()
	y, m, d := now.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return start, start.Add(cfg.DateWindow)
}

// runPoll executes one full fetch/diff/notify cycle across all
// providers. Doctors are processed strictly sequentially to respect
// upstream rate limits and keep snapshot writes race-free; findings are
// collected across all doctors and the notification cap is applied once
// per cycle, not per doctor.
func (s *Service) runPoll(ctx context.Context) {
	if !s.pollBusy.CompareAndSwap(false, true) {
		s.log.Warn("poll cycle still running, skipping tick")
		return
	}
	defer s.pollBusy.Store(false)

	cfg := s.config()
	started := s.now()

	var events []slotEvent
	for _, tag := range s.gateways.Tags() {
		gw, _ := s.gateways.Get(tag)
		doctors, err := s.store.EnabledDoctors(ctx, tag)
		if err != nil {
			// One provider group failing (including the store being
			// unreachable for it) must not stop the others.
			s.log.Error("listing doctors failed", logx.Err(err), logx.String("provider", tag))
			continue
		}
		for _, d := range doctors {
			if ctx.Err() != nil {
				return
			}
			events = append(events, s.pollDoctor(ctx, cfg, gw, d)...)
		}
	}

	kept, suppressed := capSlotEvents(events, cfg.MaxSlotNotifications)
	if suppressed > 0 {
		s.log.Warn("slot notification cap reached",
			logx.Int("announced", len(kept)), logx.Int("suppressed", suppressed))
	}
	texts := make([]string, 0, len(kept))
	for _, ev := range kept {
		texts = append(texts, formatSlot(ev.doctor, ev.slot))
	}
	s.announce(ctx, texts)
	if len(kept) > 0 {
		s.log.Info("new slots announced", logx.Int("count", len(kept)))
	}

	s.log.Debug("poll cycle finished", logx.Duration("took", time.Since(started)))
}

// pollDoctor fetches and diffs one doctor's feed and returns the new
// slots found. The snapshot is replaced here; announcing is left to the
// caller so the per-cycle cap spans all doctors.
func (s *Service) pollDoctor(ctx context.Context, cfg Config, gw providers.Gateway, d domain.Doctor) []slotEvent {
	dateStart, dateEnd := s.window(cfg)
	fetched := gw.FetchSlots(ctx, d, dateStart, dateEnd)

	previous, err := s.store.Slots(ctx, d.ID)
	if err != nil {
		s.log.Error("reading snapshot failed", logx.Err(err), logx.Int64("doctor", d.ID))
		return nil
	}

	// An empty feed is indistinguishable from a swallowed fetch error,
	// so the snapshot is kept and the doctor retried next tick.
	if len(fetched) == 0 {
		if len(previous) > 0 {
			s.log.Debug("empty feed, snapshot kept", logx.Int64("doctor", d.ID))
		}
		return nil
	}

	fresh := newSlots(previous, fetched)

	// Snapshot first: a slot is only ever announced after it is part of
	// the stored snapshot, so a crash between the two can at worst drop
	// a notification, never duplicate the snapshot state.
	if err := s.store.ReplaceSlots(ctx, d.ID, fetched); err != nil {
		s.log.Error("snapshot write failed, notifications withheld",
			logx.Err(err), logx.Int64("doctor", d.ID))
		return nil
	}

	// First fetch for a doctor seeds the snapshot silently instead of
	// announcing the entire feed to every recipient.
	if len(previous) == 0 {
		s.log.Info("snapshot seeded",
			logx.Int64("doctor", d.ID), logx.String("name", d.FullName), logx.Int("slots", len(fetched)))
		return nil
	}

	if len(fresh) == 0 {
		return nil
	}

	events := make([]slotEvent, 0, len(fresh))
	for _, slot := range fresh {
		events = append(events, slotEvent{doctor: d, slot: slot})
	}
	s.log.Info("new slots found",
		logx.Int64("doctor", d.ID), logx.String("name", d.FullName), logx.Int("count", len(events)))
	return events
}

// runPairs executes one pair-analysis cycle over the configured
// provider's feed. Dedupe memory is process-local and only mutated
// here, under the pairBusy guard.
func (s *Service) runPairs(ctx context.Context) {
	if !s.pairBusy.CompareAndSwap(false, true) {
		s.log.Warn("pair cycle still running, skipping tick")
		return
	}
	defer s.pairBusy.Store(false)

	cfg := s.config()
	gw, ok := s.gateways.Get(cfg.Pairs.Provider)
	if !ok {
		s.log.Error("unknown pair provider", logx.String("provider", cfg.Pairs.Provider))
		return
	}
	doctors, err := s.store.EnabledDoctors(ctx, cfg.Pairs.Provider)
	if err != nil {
		s.log.Error("listing doctors failed", logx.Err(err), logx.String("provider", cfg.Pairs.Provider))
		return
	}

	dateStart, dateEnd := s.window(cfg)

	var (
		slotEvents []slotEvent
		pairEvents []pairEvent
		fetchedAny bool
	)
	for _, d := range doctors {
		if ctx.Err() != nil {
			return
		}
		feed := gw.FetchSlots(ctx, d, dateStart, dateEnd)
		if len(feed) == 0 {
			continue
		}
		fetchedAny = true

		pairs := detectPairs(feed, pairGap)
		if !s.pairs.seeded {
			s.pairs.observe(feed, pairs)
			continue
		}

		switch cfg.Pairs.Mode {
		case ModeAll:
			for _, slot := range feed {
				if !s.pairs.knownSlot(slot.ID) {
					slotEvents = append(slotEvents, slotEvent{doctor: d, slot: slot})
				}
			}
		default:
			for _, p := range pairs {
				if !s.pairs.knownPair(p.Key()) {
					pairEvents = append(pairEvents, pairEvent{doctor: d, pair: p})
				}
			}
		}
		// Suppressed-by-cap findings are remembered too; the cap drops
		// them for good rather than deferring them.
		s.pairs.observe(feed, pairs)
	}

	// The very first scan that actually saw data only seeds memory.
	if !s.pairs.seeded {
		if fetchedAny {
			s.pairs.seeded = true
			s.log.Info("pair memory seeded",
				logx.Int("slots", len(s.pairs.slots)), logx.Int("pairs", len(s.pairs.pairs)))
		}
		return
	}

	if cfg.Pairs.Mode == ModeAll {
		kept, suppressed := capSlotEvents(slotEvents, cfg.MaxSlotNotifications)
		if suppressed > 0 {
			s.log.Warn("slot notification cap reached",
				logx.Int("announced", len(kept)), logx.Int("suppressed", suppressed))
		}
		texts := make([]string, 0, len(kept))
		for _, ev := range kept {
			texts = append(texts, formatSlot(ev.doctor, ev.slot))
		}
		s.announce(ctx, texts)
		return
	}

	kept, suppressed := capPairEvents(pairEvents, cfg.Pairs.MaxNotifications)
	if suppressed > 0 {
		s.log.Warn("pair notification cap reached",
			logx.Int("announced", len(kept)), logx.Int("suppressed", suppressed))
	}
	texts := make([]string, 0, len(kept))
	for _, ev := range kept {
		texts = append(texts, formatPair(ev.doctor, ev.pair))
	}
	s.announce(ctx, texts)
	if len(kept) > 0 {
		s.log.Info("new pairs announced", logx.Int("count", len(kept)))
	}
}
