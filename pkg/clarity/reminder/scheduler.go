// Package reminder implements the event reminder scheduler: it polls the
// event store, fires each event's reminder exactly once per day inside its
// trigger window, and keeps the set of active (fired, not yet dismissed)
// reminders for the presentation layer.
//
// The clock and the fired-set persistence are injectable so the window logic
// is testable without wall-clock waits.
package reminder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Defaults.
const (
	DefaultPollInterval = 10 * time.Second
	DefaultLeadMinutes  = 15
	DefaultDismissDelay = 300 * time.Millisecond

	// GraceMinutes extends the trigger window past the event start, so a
	// reminder still fires for an event the poll loop saw slightly late.
	GraceMinutes = 5
)

// Event is the scheduler's view of a stored event.
type Event struct {
	ID          string
	Title       string
	Type        string
	StartAt     time.Time
	LeadMinutes int // 0 means DefaultLeadMinutes
	ClientName  string
}

// EventSource yields the events of one calendar day.
type EventSource interface {
	EventsForDay(ctx context.Context, day time.Time) ([]Event, error)
}

// FiredStore persists which reminders already fired, keyed by local day
// ("2006-01-02"), so a restart never re-fires them.
type FiredStore interface {
	MarkReminderFired(ctx context.Context, day, eventID string) error
	FiredReminderIDs(ctx context.Context, day string) (map[string]bool, error)
	ClearFiredRemindersBefore(ctx context.Context, day string) error
}

// ActiveReminder is a fired reminder awaiting dismissal.
type ActiveReminder struct {
	ID         string    `json:"id"`
	EventID    string    `json:"event_id"`
	Title      string    `json:"title"`
	Type       string    `json:"type"`
	ClientName string    `json:"client_name"` // "no client" when unset
	Time       string    `json:"time"`        // HH:MM in the local timezone
	StartAt    time.Time `json:"start_at"`
	FiredAt    time.Time `json:"fired_at"`
	Dismissed  bool      `json:"dismissed"`
}

// Listener is invoked for every newly fired reminder.
type Listener func(ActiveReminder)

// Options configures a Scheduler.
type Options struct {
	PollInterval time.Duration
	LeadMinutes  int
	DismissDelay time.Duration
	Location     *time.Location

	// Now overrides the time source (tests).
	Now func() time.Time
}

// Scheduler polls the event source and manages the active reminder set.
// All poll work happens on a single goroutine, so ticks never overlap.
type Scheduler struct {
	source EventSource
	fired  FiredStore
	logger *slog.Logger

	pollInterval time.Duration
	defaultLead  int
	dismissDelay time.Duration
	loc          *time.Location
	now          func() time.Time

	notify chan struct{}
	cron   *cron.Cron

	mu        sync.Mutex
	active    map[string]*ActiveReminder
	order     []string
	listeners []Listener
	day       string
}

// New builds a scheduler over an event source and a fired-set store.
func New(source EventSource, fired FiredStore, opts Options, logger *slog.Logger) *Scheduler {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.LeadMinutes <= 0 {
		opts.LeadMinutes = DefaultLeadMinutes
	}
	if opts.DismissDelay <= 0 {
		opts.DismissDelay = DefaultDismissDelay
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Scheduler{
		source:       source,
		fired:        fired,
		logger:       logger.With("component", "reminder"),
		pollInterval: opts.PollInterval,
		defaultLead:  opts.LeadMinutes,
		dismissDelay: opts.DismissDelay,
		loc:          opts.Location,
		now:          opts.Now,
		notify:       make(chan struct{}, 1),
		active:       make(map[string]*ActiveReminder),
	}
}

// AddListener subscribes to fired reminders. Must be called before Run.
func (s *Scheduler) AddListener(fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Notify forces an immediate re-poll (the "event created" signal).
// Non-blocking; coalesces with a pending signal.
func (s *Scheduler) Notify() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Run polls until the context is cancelled. The first pass is eager.
func (s *Scheduler) Run(ctx context.Context) {
	// Midnight reset of the fired set, in the local timezone.
	s.cron = cron.New(cron.WithLocation(s.loc))
	_, err := s.cron.AddFunc("@daily", func() { s.resetDay(context.Background()) })
	if err != nil {
		s.logger.Error("registering midnight reset", "error", err)
	}
	s.cron.Start()
	defer s.cron.Stop()

	s.logger.Info("reminder scheduler started",
		"poll_interval", s.pollInterval,
		"lead_minutes", s.defaultLead,
	)

	s.Poll(ctx)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reminder scheduler stopped")
			return
		case <-ticker.C:
			s.Poll(ctx)
		case <-s.notify:
			s.Poll(ctx)
		}
	}
}

// Poll scans today's events and fires every reminder whose window contains
// the current instant and that has not fired today. Exported so tests can
// drive the loop with a simulated clock.
func (s *Scheduler) Poll(ctx context.Context) {
	now := s.now().In(s.loc)
	day := now.Format("2006-01-02")

	// Lazy day rollover, in case the cron entry missed (e.g. laptop sleep).
	s.mu.Lock()
	if s.day != "" && s.day != day {
		s.active = make(map[string]*ActiveReminder)
		s.order = nil
	}
	s.day = day
	s.mu.Unlock()

	firedToday, err := s.fired.FiredReminderIDs(ctx, day)
	if err != nil {
		s.logger.Error("reading fired set", "error", err)
		return
	}

	events, err := s.source.EventsForDay(ctx, now)
	if err != nil {
		s.logger.Error("reading events", "error", err)
		return
	}

	for _, event := range events {
		if firedToday[event.ID] {
			continue
		}
		if !s.inWindow(event, now) {
			continue
		}
		s.fire(ctx, event, day, now)
	}
}

// inWindow reports whether now falls inside the event's trigger window
// [start - lead, start + grace].
func (s *Scheduler) inWindow(event Event, now time.Time) bool {
	lead := event.LeadMinutes
	if lead <= 0 {
		lead = s.defaultLead
	}
	start := event.StartAt.In(s.loc)
	from := start.Add(-time.Duration(lead) * time.Minute)
	until := start.Add(GraceMinutes * time.Minute)
	return !now.Before(from) && !now.After(until)
}

// fire persists the fired mark, then activates the reminder. Persist-first
// ordering: a crash between the two steps loses a notification rather than
// duplicating one.
func (s *Scheduler) fire(ctx context.Context, event Event, day string, now time.Time) {
	if err := s.fired.MarkReminderFired(ctx, day, event.ID); err != nil {
		s.logger.Error("persisting fired mark", "event_id", event.ID, "error", err)
		return
	}

	clientName := event.ClientName
	if clientName == "" {
		clientName = "no client"
	}

	reminder := ActiveReminder{
		ID:         day + ":" + event.ID,
		EventID:    event.ID,
		Title:      event.Title,
		Type:       event.Type,
		ClientName: clientName,
		Time:       event.StartAt.In(s.loc).Format("15:04"),
		StartAt:    event.StartAt,
		FiredAt:    now,
	}

	s.mu.Lock()
	s.active[reminder.ID] = &reminder
	s.order = append(s.order, reminder.ID)
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	s.logger.Info("reminder fired",
		"event_id", event.ID,
		"title", event.Title,
		"starts_at", reminder.Time,
	)

	for _, fn := range listeners {
		fn(reminder)
	}
}

// Active returns the fired reminders still on screen, in firing order.
// Dismissed reminders stay flagged until their removal delay elapses.
func (s *Scheduler) Active() []ActiveReminder {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ActiveReminder, 0, len(s.order))
	for _, id := range s.order {
		if r, ok := s.active[id]; ok {
			out = append(out, *r)
		}
	}
	return out
}

// Dismiss flags a reminder immediately and removes it after the configured
// delay, so reads racing the dismissal still see it flagged. The persisted
// fired mark stays, so the reminder never re-fires within the day.
func (s *Scheduler) Dismiss(id string) bool {
	s.mu.Lock()
	r, ok := s.active[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	r.Dismissed = true
	s.mu.Unlock()

	time.AfterFunc(s.dismissDelay, func() { s.remove(id) })
	return true
}

func (s *Scheduler) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.active, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// resetDay clears the in-memory set and drops persisted marks from previous
// days.
func (s *Scheduler) resetDay(ctx context.Context) {
	day := s.now().In(s.loc).Format("2006-01-02")

	s.mu.Lock()
	s.active = make(map[string]*ActiveReminder)
	s.order = nil
	s.day = day
	s.mu.Unlock()

	if err := s.fired.ClearFiredRemindersBefore(ctx, day); err != nil {
		s.logger.Error("clearing stale fired marks", "error", err)
	}

	s.logger.Info("reminder day reset", "day", day)
}
