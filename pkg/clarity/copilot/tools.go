// Package copilot – tools.go declares the dashboard tools the assistant can
// call: agenda and event management, notes between CEO and team, client
// lookups and the aggregated dashboard summary.
package copilot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Peterhat541/ceo-clarity-hub/pkg/clarity/store"
)

// Notifier pushes a team-visible announcement to an out-of-band channel
// (e.g. Discord). Implementations must tolerate being called concurrently.
type Notifier interface {
	AnnounceTeamNote(ctx context.Context, text string) error
}

// UISnapshot is the caller-supplied view of what is currently rendered on
// screen. When present, the dashboard summary prefers it over fresh store
// reads so the assistant never contradicts what the operator is looking at.
type UISnapshot struct {
	TodayEvents    []map[string]any `json:"todayEvents,omitempty"`
	PendingNotes   []map[string]any `json:"pendingNotes,omitempty"`
	IncidentCounts map[string]any   `json:"incidentCounts,omitempty"`
}

// DashboardTools binds the tool handlers to the store and the out-of-band
// notifier. It holds no per-turn state: the UI snapshot is bound per
// executor, and everything else flows through arguments.
type DashboardTools struct {
	store    *store.Store
	loc      *time.Location
	notifier Notifier
	logger   *slog.Logger

	// now is injectable for tests.
	now func() time.Time

	// onEventCreated, when set, is invoked after every successful event
	// insert (reminder scheduler re-poll signal).
	onEventCreated func()
}

// NewDashboardTools builds the tool set against a store handle.
func NewDashboardTools(st *store.Store, loc *time.Location, logger *slog.Logger) *DashboardTools {
	if loc == nil {
		loc = time.UTC
	}
	return &DashboardTools{
		store:  st,
		loc:    loc,
		logger: logger.With("component", "tools"),
		now:    time.Now,
	}
}

// SetNotifier attaches the out-of-band announcer for team notes.
func (d *DashboardTools) SetNotifier(n Notifier) { d.notifier = n }

// SetOnEventCreated attaches the event-created signal listener.
func (d *DashboardTools) SetOnEventCreated(fn func()) { d.onEventCreated = fn }

// SetClock overrides the time source.
func (d *DashboardTools) SetClock(now func() time.Time) { d.now = now }

// Executor builds a tool executor with every dashboard tool registered.
// The snapshot (may be nil) is captured by the dashboard-summary handler,
// so a fresh executor is built per turn.
func (d *DashboardTools) Executor(snapshot *UISnapshot) (*ToolExecutor, error) {
	exec := NewToolExecutor(d.logger)

	tools := []Tool{
		{
			Name:        "get_dashboard_summary",
			Description: "Get an aggregated dashboard summary: today's events, clients needing attention (red/orange), status counts, pending CEO notes and recent incidents. Call this first for open-ended status questions.",
			Handler: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				return d.dashboardSummary(ctx, snapshot), nil
			},
		},
		{
			Name:        "create_event",
			Description: "Schedule a call, meeting or reminder. Dates are interpreted in the executive's timezone.",
			Params: []ParamSpec{
				{Name: "title", Type: "string", Description: "Event title", Required: true},
				{Name: "type", Type: "string", Description: "Event type", Required: true, Enum: []string{store.EventCall, store.EventMeeting, store.EventReminder}},
				{Name: "start_at", Type: "string", Description: "Start date-time, e.g. 2026-08-31T10:00", Required: true},
				{Name: "client_id", Type: "string", Description: "Related client id"},
				{Name: "client_name", Type: "string", Description: "Related client name (display only)"},
				{Name: "reminder_minutes", Type: "integer", Description: "Reminder lead time in minutes (default 15)"},
				{Name: "notes", Type: "string", Description: "Free-text notes"},
			},
			Handler: d.createEvent,
		},
		{
			Name:        "create_note",
			Description: "Leave a note for the team, the CEO, or both.",
			Params: []ParamSpec{
				{Name: "text", Type: "string", Description: "Note text", Required: true},
				{Name: "visible_to", Type: "string", Description: "Who can see the note", Required: true, Enum: []string{store.VisibleTeam, store.VisibleCEO, store.VisibleBoth}},
				{Name: "client_id", Type: "string", Description: "Related client id"},
				{Name: "due_at", Type: "string", Description: "Due date-time"},
				{Name: "target_employee", Type: "string", Description: "Employee the note is addressed to"},
			},
			Handler: d.createNote,
		},
		{
			Name:        "get_today_agenda",
			Description: "List the events of a calendar day (default today), ordered by start time.",
			Params: []ParamSpec{
				{Name: "date", Type: "string", Description: "Calendar day, e.g. 2026-08-31 (default today)"},
			},
			Handler: d.todayAgenda,
		},
		{
			Name:        "get_ceo_notes",
			Description: "List the most recent pending notes visible to the CEO.",
			Params: []ParamSpec{
				{Name: "date", Type: "string", Description: "Calendar day, e.g. 2026-08-31 (optional)"},
			},
			Handler: d.ceoNotes,
		},
		{
			Name:        "get_client_context",
			Description: "Look up a client by id or by (partial, case-insensitive) name, with its recent history.",
			Params: []ParamSpec{
				{Name: "client_id", Type: "string", Description: "Client id"},
				{Name: "client_name", Type: "string", Description: "Client name, partial match allowed"},
			},
			Handler: d.clientContext,
		},
		{
			Name:        "get_clients_overview",
			Description: "List all clients ordered by severity (red first).",
			Handler:     d.clientsOverview,
		},
		{
			Name:        "log_history_entry",
			Description: "Append an interaction record to a client's history.",
			Params: []ParamSpec{
				{Name: "client_id", Type: "string", Description: "Client id", Required: true},
				{Name: "type", Type: "string", Description: "Interaction type", Required: true, Enum: []string{store.HistoryEmail, store.HistoryNote, store.HistoryIncident, store.HistoryEvent, store.HistoryCall, store.HistoryMeeting}},
				{Name: "summary", Type: "string", Description: "Short summary of the interaction", Required: true},
				{Name: "visible_to", Type: "string", Description: "Visibility of the record", Required: true, Enum: []string{store.VisibleTeam, store.VisibleCEO, store.VisibleBoth}},
			},
			Handler: d.logHistory,
		},
	}

	for _, t := range tools {
		if err := exec.Register(t); err != nil {
			return nil, err
		}
	}
	return exec, nil
}

// ---------- Handlers ----------

// dashboardSummary aggregates the executive overview. It never fails
// outright: a failed sub-read contributes an empty section, not an error.
func (d *DashboardTools) dashboardSummary(ctx context.Context, snapshot *UISnapshot) map[string]any {
	summary := map[string]any{"success": true}

	fromSnapshot := snapshot != nil && len(snapshot.TodayEvents) > 0
	if fromSnapshot {
		summary["dataSource"] = "ui_snapshot"
		summary["todayEvents"] = snapshot.TodayEvents
	} else {
		summary["dataSource"] = "database"
		events, err := d.store.ListEventsForDay(ctx, d.now().In(d.loc))
		if err != nil {
			d.logger.Warn("dashboard summary: events read failed", "error", err)
			events = nil
		}
		summary["todayEvents"] = d.eventMaps(events)
	}

	attention, err := d.store.ListClientsByStatus(ctx, store.StatusRed, store.StatusOrange)
	if err != nil {
		d.logger.Warn("dashboard summary: attention clients read failed", "error", err)
	}
	attn := make([]map[string]any, 0, len(attention))
	for _, c := range attention {
		attn = append(attn, map[string]any{
			"id":      c.ID,
			"name":    c.Name,
			"status":  c.Status,
			"contact": c.ContactName,
			"phone":   c.Phone,
		})
	}
	summary["attentionClients"] = attn

	counts, err := d.store.CountClientsByStatus(ctx)
	if err != nil {
		d.logger.Warn("dashboard summary: status counts read failed", "error", err)
		counts = map[string]int{}
	}
	summary["statusCounts"] = counts

	if snapshot != nil && len(snapshot.PendingNotes) > 0 {
		summary["pendingNotes"] = snapshot.PendingNotes
	} else {
		notes, err := d.store.ListCEONotes(ctx, 5)
		if err != nil {
			d.logger.Warn("dashboard summary: notes read failed", "error", err)
			notes = nil
		}
		summary["pendingNotes"] = noteMaps(notes)
	}

	incidents, err := d.store.RecentIncidents(ctx, 5)
	if err != nil {
		d.logger.Warn("dashboard summary: incidents read failed", "error", err)
		incidents = nil
	}
	count, err := d.store.CountIncidents(ctx)
	if err != nil {
		count = len(incidents)
	}
	sample := make([]map[string]any, 0, len(incidents))
	for _, h := range incidents {
		sample = append(sample, map[string]any{
			"client_id": h.ClientID,
			"summary":   h.Summary,
			"at":        h.CreatedAt.In(d.loc).Format("2006-01-02 15:04"),
		})
	}
	summary["recentIncidents"] = map[string]any{"count": count, "sample": sample}

	return summary
}

func (d *DashboardTools) createEvent(ctx context.Context, args map[string]any) (map[string]any, error) {
	title := stringArg(args, "title")
	eventType := stringArg(args, "type")

	startAt, err := parseLocalTime(stringArg(args, "start_at"), d.loc)
	if err != nil {
		return nil, fmt.Errorf("start_at: %w", err)
	}

	event := &store.Event{
		Title:     title,
		Type:      eventType,
		StartAt:   startAt,
		Notes:     stringArg(args, "notes"),
		CreatedBy: "assistant",
	}
	if id := stringArg(args, "client_id"); id != "" {
		event.ClientID = &id
	}
	if mins, ok := intArg(args, "reminder_minutes"); ok {
		event.ReminderMinutes = &mins
	}

	if err := d.store.CreateEvent(ctx, event); err != nil {
		return nil, err
	}

	if event.ClientID != nil {
		entry := &store.HistoryEntry{
			ClientID:  *event.ClientID,
			Type:      historyTypeForEvent(eventType),
			Summary:   fmt.Sprintf("%s: %s (%s)", eventLabel(eventType), title, startAt.Format("02/01 15:04")),
			VisibleTo: store.VisibleBoth,
		}
		if err := d.store.AppendHistory(ctx, entry); err != nil {
			d.logger.Warn("event history entry failed", "event_id", event.ID, "error", err)
		}
	}

	if eventType == store.EventCall || eventType == store.EventMeeting {
		d.announceEvent(ctx, event, stringArg(args, "client_name"))
	}

	if d.onEventCreated != nil {
		d.onEventCreated()
	}

	reminderAt := startAt.Add(-time.Duration(event.EffectiveReminderMinutes()) * time.Minute)

	return map[string]any{
		"success":     true,
		"event_id":    event.ID,
		"reminder_at": reminderAt.Format(time.RFC3339),
	}, nil
}

// announceEvent creates the team-visible note for a new call/meeting and
// pushes it out-of-band. Announcement failures never fail the event.
func (d *DashboardTools) announceEvent(ctx context.Context, event *store.Event, clientName string) {
	text := fmt.Sprintf("Nueva %s agendada: %s", eventLabel(event.Type), event.Title)
	if clientName == "" && event.ClientID != nil {
		if c, err := d.store.GetClient(ctx, *event.ClientID); err == nil {
			clientName = c.Name
		}
	}
	if clientName != "" {
		text += " con " + clientName
	}
	text += " el " + event.StartAt.In(d.loc).Format("02/01/2006 a las 15:04")

	note := &store.Note{
		Text:      text,
		VisibleTo: store.VisibleTeam,
		ClientID:  event.ClientID,
		CreatedBy: "assistant",
	}
	if err := d.store.CreateNote(ctx, note); err != nil {
		d.logger.Warn("event announcement note failed", "event_id", event.ID, "error", err)
		return
	}

	if d.notifier != nil {
		if err := d.notifier.AnnounceTeamNote(ctx, text); err != nil {
			d.logger.Warn("out-of-band announcement failed", "event_id", event.ID, "error", err)
		}
	}
}

func (d *DashboardTools) createNote(ctx context.Context, args map[string]any) (map[string]any, error) {
	note := &store.Note{
		Text:      stringArg(args, "text"),
		VisibleTo: stringArg(args, "visible_to"),
		CreatedBy: "assistant",
	}
	if id := stringArg(args, "client_id"); id != "" {
		note.ClientID = &id
	}
	if target := stringArg(args, "target_employee"); target != "" {
		note.Target = &target
	}
	if raw := stringArg(args, "due_at"); raw != "" {
		due, err := parseLocalTime(raw, d.loc)
		if err != nil {
			return nil, fmt.Errorf("due_at: %w", err)
		}
		note.DueAt = &due
	}

	if err := d.store.CreateNote(ctx, note); err != nil {
		return nil, err
	}

	if d.notifier != nil && (note.VisibleTo == store.VisibleTeam || note.VisibleTo == store.VisibleBoth) {
		if err := d.notifier.AnnounceTeamNote(ctx, note.Text); err != nil {
			d.logger.Warn("out-of-band note announcement failed", "note_id", note.ID, "error", err)
		}
	}

	return map[string]any{"success": true, "note_id": note.ID}, nil
}

func (d *DashboardTools) todayAgenda(ctx context.Context, args map[string]any) (map[string]any, error) {
	day := d.now().In(d.loc)
	if raw := stringArg(args, "date"); raw != "" {
		parsed, err := parseLocalDate(raw, d.loc)
		if err != nil {
			return nil, fmt.Errorf("date: %w", err)
		}
		day = parsed
	}

	events, err := d.store.ListEventsForDay(ctx, day)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"success": true,
		"date":    day.Format("2006-01-02"),
		"events":  d.eventMaps(events),
	}, nil
}

func (d *DashboardTools) ceoNotes(ctx context.Context, args map[string]any) (map[string]any, error) {
	// The date argument is accepted for symmetry with the agenda tool;
	// pending notes are not day-scoped.
	if raw := stringArg(args, "date"); raw != "" {
		if _, err := parseLocalDate(raw, d.loc); err != nil {
			return nil, fmt.Errorf("date: %w", err)
		}
	}

	notes, err := d.store.ListCEONotes(ctx, 10)
	if err != nil {
		return nil, err
	}

	return map[string]any{"success": true, "notes": noteMaps(notes)}, nil
}

func (d *DashboardTools) clientContext(ctx context.Context, args map[string]any) (map[string]any, error) {
	var (
		client *store.Client
		err    error
	)

	switch {
	case stringArg(args, "client_id") != "":
		client, err = d.store.GetClient(ctx, stringArg(args, "client_id"))
	case stringArg(args, "client_name") != "":
		client, err = d.store.FindClientByName(ctx, stringArg(args, "client_name"))
	default:
		return nil, fmt.Errorf("client_id or client_name is required")
	}
	if err != nil {
		return nil, err
	}

	history, err := d.store.RecentHistory(ctx, client.ID, 5)
	if err != nil {
		d.logger.Warn("client history read failed", "client_id", client.ID, "error", err)
		history = nil
	}
	entries := make([]map[string]any, 0, len(history))
	for _, h := range history {
		entries = append(entries, map[string]any{
			"type":    h.Type,
			"summary": h.Summary,
			"at":      h.CreatedAt.In(d.loc).Format("2006-01-02 15:04"),
		})
	}

	result := map[string]any{
		"success": true,
		"client": map[string]any{
			"id":            client.ID,
			"name":          client.Name,
			"status":        client.Status,
			"contact":       client.ContactName,
			"phone":         client.Phone,
			"email":         client.Email,
			"project_type":  client.ProjectType,
			"description":   client.Description,
			"budget":        client.Budget,
			"manager":       client.Manager,
			"pending_tasks": client.PendingTasks,
			"incidents":     incidentText(client.Incidents),
			"last_contact":  client.LastContact,
		},
		"recent_history": entries,
	}
	return result, nil
}

func (d *DashboardTools) clientsOverview(ctx context.Context, args map[string]any) (map[string]any, error) {
	clients, err := d.store.ListClients(ctx)
	if err != nil {
		return nil, err
	}

	list := make([]map[string]any, 0, len(clients))
	for _, c := range clients {
		list = append(list, map[string]any{
			"id":      c.ID,
			"name":    c.Name,
			"status":  c.Status,
			"contact": c.ContactName,
		})
	}

	return map[string]any{"success": true, "clients": list}, nil
}

func (d *DashboardTools) logHistory(ctx context.Context, args map[string]any) (map[string]any, error) {
	entry := &store.HistoryEntry{
		ClientID:  stringArg(args, "client_id"),
		Type:      stringArg(args, "type"),
		Summary:   stringArg(args, "summary"),
		VisibleTo: stringArg(args, "visible_to"),
	}

	if err := d.store.AppendHistory(ctx, entry); err != nil {
		return nil, err
	}

	return map[string]any{"success": true, "entry_id": entry.ID}, nil
}

// ---------- Internal Helpers ----------

func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}

func intArg(args map[string]any, name string) (int, bool) {
	switch n := args[name].(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

// timeFormats are the accepted date-time layouts for tool arguments, tried
// in order. Layouts without an offset resolve in the configured timezone.
var timeFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

func parseLocalTime(raw string, loc *time.Location) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty date-time")
	}
	for _, layout := range timeFormats {
		if layout == time.RFC3339 {
			if t, err := time.Parse(layout, raw); err == nil {
				return t, nil
			}
			continue
		}
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date-time %q", raw)
}

func parseLocalDate(raw string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
	}
	return t, nil
}

func (d *DashboardTools) eventMaps(events []store.EventWithClient) []map[string]any {
	out := make([]map[string]any, 0, len(events))
	for _, e := range events {
		local := e.StartAt.In(d.loc)
		out = append(out, map[string]any{
			"id":          e.ID,
			"title":       e.Title,
			"type":        e.Type,
			"time":        local.Format("15:04"),
			"start_at":    local.Format(time.RFC3339),
			"client_name": e.ClientName,
			"notes":       e.Notes,
		})
	}
	return out
}

func noteMaps(notes []store.NoteWithClient) []map[string]any {
	out := make([]map[string]any, 0, len(notes))
	for _, n := range notes {
		out = append(out, map[string]any{
			"id":          n.ID,
			"text":        n.Text,
			"client_name": n.ClientName,
			"author":      n.CreatedBy,
		})
	}
	return out
}

// historyTypeForEvent maps an event type to its history record type.
// Standalone reminders log as generic events.
func historyTypeForEvent(eventType string) string {
	switch eventType {
	case store.EventCall:
		return store.HistoryCall
	case store.EventMeeting:
		return store.HistoryMeeting
	default:
		return store.HistoryEvent
	}
}

// eventLabel is the human-readable (Spanish) label used in announcements.
func eventLabel(eventType string) string {
	switch eventType {
	case store.EventCall:
		return "llamada"
	case store.EventMeeting:
		return "reunión"
	default:
		return "recordatorio"
	}
}

func incidentText(p *string) string {
	if p == nil || *p == "" {
		return "no incidents"
	}
	return *p
}
