package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	st, err := Open(Config{Path: ":memory:"}, logger)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestClients(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	t.Run("create defaults", func(t *testing.T) {
		c := &Client{Name: "Vega Retail"}
		if err := st.CreateClient(ctx, c); err != nil {
			t.Fatalf("create: %v", err)
		}
		if c.ID == "" {
			t.Error("expected generated id")
		}
		if c.Status != StatusGreen {
			t.Errorf("expected default status green, got %q", c.Status)
		}
	})

	t.Run("rejects bad status", func(t *testing.T) {
		err := st.CreateClient(ctx, &Client{Name: "Bad", Status: "purple"})
		if err == nil {
			t.Fatal("expected error for invalid status")
		}
	})

	t.Run("severity ordering with stable ties", func(t *testing.T) {
		for _, c := range []Client{
			{Name: "Helios", Status: StatusYellow},
			{Name: "Nexus Tech", Status: StatusRed},
			{Name: "Atlas", Status: StatusOrange},
			{Name: "Borealis", Status: StatusRed},
		} {
			c := c
			if err := st.CreateClient(ctx, &c); err != nil {
				t.Fatalf("create %s: %v", c.Name, err)
			}
		}

		clients, err := st.ListClients(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}

		var names []string
		for _, c := range clients {
			names = append(names, c.Name)
		}
		want := []string{"Nexus Tech", "Borealis", "Atlas", "Helios", "Vega Retail"}
		if len(names) != len(want) {
			t.Fatalf("expected %d clients, got %d", len(want), len(names))
		}
		for i := range want {
			if names[i] != want[i] {
				t.Errorf("position %d: expected %q, got %q", i, want[i], names[i])
			}
		}

		// Identical ordering on a second read.
		again, err := st.ListClients(ctx)
		if err != nil {
			t.Fatalf("list again: %v", err)
		}
		for i := range again {
			if again[i].ID != clients[i].ID {
				t.Errorf("ordering not stable at position %d", i)
			}
		}
	})

	t.Run("find by partial name is case-insensitive", func(t *testing.T) {
		c, err := st.FindClientByName(ctx, "nexus")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if c.Name != "Nexus Tech" {
			t.Errorf("expected Nexus Tech, got %q", c.Name)
		}
	})

	t.Run("find miss yields not found", func(t *testing.T) {
		if _, err := st.FindClientByName(ctx, "zzz-nope"); err == nil {
			t.Fatal("expected not found error")
		}
	})

	t.Run("status counts include empty buckets", func(t *testing.T) {
		counts, err := st.CountClientsByStatus(ctx)
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		for _, status := range []string{StatusRed, StatusOrange, StatusYellow, StatusGreen} {
			if _, ok := counts[status]; !ok {
				t.Errorf("bucket %q missing", status)
			}
		}
		if counts[StatusRed] != 2 {
			t.Errorf("expected 2 red clients, got %d", counts[StatusRed])
		}
	})

	t.Run("mark reviewed touches only last contact", func(t *testing.T) {
		c, err := st.FindClientByName(ctx, "Atlas")
		if err != nil {
			t.Fatalf("find: %v", err)
		}

		if err := st.MarkClientReviewed(ctx, c.ID, "Reviewed today"); err != nil {
			t.Fatalf("review: %v", err)
		}

		got, err := st.GetClient(ctx, c.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.LastContact != "Reviewed today" {
			t.Errorf("expected updated last contact, got %q", got.LastContact)
		}
		if got.Status != c.Status || got.Name != c.Name {
			t.Error("review must not touch other fields")
		}
	})

	t.Run("nil incidents distinct from empty", func(t *testing.T) {
		empty := ""
		c := &Client{Name: "Cleared Incidents", Incidents: &empty}
		if err := st.CreateClient(ctx, c); err != nil {
			t.Fatalf("create: %v", err)
		}
		got, err := st.GetClient(ctx, c.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Incidents == nil || *got.Incidents != "" {
			t.Error("expected empty-string incidents to survive round trip")
		}

		fresh, err := st.FindClientByName(ctx, "Vega Retail")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if fresh.Incidents != nil {
			t.Error("expected never-set incidents to stay nil")
		}
	})

	t.Run("delete is hard", func(t *testing.T) {
		c := &Client{Name: "Ephemeral"}
		if err := st.CreateClient(ctx, c); err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := st.DeleteClient(ctx, c.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := st.GetClient(ctx, c.ID); err == nil {
			t.Fatal("expected not found after delete")
		}
	})
}

func TestEvents(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	loc := time.UTC

	client := &Client{Name: "Nexus Tech", Status: StatusRed}
	if err := st.CreateClient(ctx, client); err != nil {
		t.Fatalf("create client: %v", err)
	}

	day := time.Date(2026, 8, 31, 0, 0, 0, 0, loc)

	t.Run("create and list by day ascending", func(t *testing.T) {
		late := &Event{Title: "Late call", Type: EventCall, StartAt: day.Add(16 * time.Hour), ClientID: &client.ID, CreatedBy: "test"}
		early := &Event{Title: "Early meeting", Type: EventMeeting, StartAt: day.Add(9 * time.Hour), CreatedBy: "test"}
		other := &Event{Title: "Tomorrow", Type: EventReminder, StartAt: day.Add(30 * time.Hour), CreatedBy: "test"}

		for _, e := range []*Event{late, early, other} {
			if err := st.CreateEvent(ctx, e); err != nil {
				t.Fatalf("create %s: %v", e.Title, err)
			}
		}

		events, err := st.ListEventsForDay(ctx, day.Add(12*time.Hour))
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(events) != 2 {
			t.Fatalf("expected 2 events on the day, got %d", len(events))
		}
		if events[0].Title != "Early meeting" || events[1].Title != "Late call" {
			t.Errorf("expected ascending start order, got %q then %q", events[0].Title, events[1].Title)
		}
		if events[1].ClientName != "Nexus Tech" {
			t.Errorf("expected client name annotation, got %q", events[1].ClientName)
		}
		if events[0].ClientName != "" {
			t.Errorf("expected empty client name, got %q", events[0].ClientName)
		}
	})

	t.Run("reminder minutes default", func(t *testing.T) {
		e := &Event{Title: "No lead", Type: EventCall, StartAt: day.Add(11 * time.Hour), CreatedBy: "test"}
		if err := st.CreateEvent(ctx, e); err != nil {
			t.Fatalf("create: %v", err)
		}
		if e.EffectiveReminderMinutes() != DefaultReminderMinutes {
			t.Errorf("expected default lead %d, got %d", DefaultReminderMinutes, e.EffectiveReminderMinutes())
		}

		lead := 30
		e2 := &Event{Title: "Custom lead", Type: EventCall, StartAt: day.Add(11 * time.Hour), ReminderMinutes: &lead, CreatedBy: "test"}
		if err := st.CreateEvent(ctx, e2); err != nil {
			t.Fatalf("create: %v", err)
		}

		events, err := st.ListEventsForDay(ctx, day)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		for _, got := range events {
			if got.ID == e2.ID {
				if got.ReminderMinutes == nil || *got.ReminderMinutes != 30 {
					t.Error("expected custom lead to round-trip")
				}
			}
			if got.ID == e.ID && got.ReminderMinutes != nil {
				t.Error("expected unset lead to stay nil")
			}
		}
	})

	t.Run("rejects bad type", func(t *testing.T) {
		err := st.CreateEvent(ctx, &Event{Title: "Bad", Type: "party", StartAt: day})
		if err == nil {
			t.Fatal("expected error for invalid event type")
		}
	})

	t.Run("delete", func(t *testing.T) {
		e := &Event{Title: "Gone", Type: EventCall, StartAt: day.Add(13 * time.Hour), CreatedBy: "test"}
		if err := st.CreateEvent(ctx, e); err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := st.DeleteEvent(ctx, e.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
	})
}

func TestNotes(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	t.Run("status cycle", func(t *testing.T) {
		if NextNoteStatus(NotePending) != NoteSeen {
			t.Error("pending should advance to seen")
		}
		if NextNoteStatus(NoteSeen) != NoteResolved {
			t.Error("seen should advance to resolved")
		}
		if NextNoteStatus(NoteResolved) != NotePending {
			t.Error("resolved should cycle back to pending")
		}
	})

	t.Run("legacy done normalizes to resolved", func(t *testing.T) {
		if NormalizeNoteStatus("done") != NoteResolved {
			t.Error("done should normalize to resolved")
		}
	})

	t.Run("ceo visibility filter", func(t *testing.T) {
		for _, n := range []Note{
			{Text: "team only", VisibleTo: VisibleTeam, CreatedBy: "test"},
			{Text: "ceo only", VisibleTo: VisibleCEO, CreatedBy: "test"},
			{Text: "both", VisibleTo: VisibleBoth, CreatedBy: "test"},
		} {
			n := n
			if err := st.CreateNote(ctx, &n); err != nil {
				t.Fatalf("create: %v", err)
			}
		}

		notes, err := st.ListCEONotes(ctx, 10)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(notes) != 2 {
			t.Fatalf("expected 2 ceo-visible notes, got %d", len(notes))
		}
		for _, n := range notes {
			if n.VisibleTo == VisibleTeam {
				t.Error("team note leaked into ceo view")
			}
			if n.Status != NotePending {
				t.Errorf("expected pending status, got %q", n.Status)
			}
		}
	})

	t.Run("advance persists", func(t *testing.T) {
		n := &Note{Text: "advance me", VisibleTo: VisibleCEO, CreatedBy: "test"}
		if err := st.CreateNote(ctx, n); err != nil {
			t.Fatalf("create: %v", err)
		}

		status, err := st.AdvanceNoteStatus(ctx, n.ID)
		if err != nil {
			t.Fatalf("advance: %v", err)
		}
		if status != NoteSeen {
			t.Errorf("expected seen, got %q", status)
		}

		// Seen notes drop out of the pending ceo feed.
		notes, err := st.ListCEONotes(ctx, 50)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		for _, got := range notes {
			if got.ID == n.ID {
				t.Error("non-pending note still in ceo feed")
			}
		}
	})

	t.Run("mark seen only touches pending", func(t *testing.T) {
		n := &Note{Text: "read me", VisibleTo: VisibleBoth, CreatedBy: "test"}
		if err := st.CreateNote(ctx, n); err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := st.MarkNoteSeen(ctx, n.ID); err != nil {
			t.Fatalf("mark seen: %v", err)
		}
	})
}

func TestHistory(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	client := &Client{Name: "Atlas"}
	if err := st.CreateClient(ctx, client); err != nil {
		t.Fatalf("create client: %v", err)
	}

	types := []string{HistoryEmail, HistoryCall, HistoryIncident, HistoryMeeting, HistoryNote, HistoryEvent}
	for i, typ := range types {
		err := st.AppendHistory(ctx, &HistoryEntry{
			ClientID:  client.ID,
			Type:      typ,
			Summary:   typ + " summary",
			VisibleTo: VisibleBoth,
			CreatedAt: time.Date(2026, 8, 1, 10, i, 0, 0, time.UTC),
		})
		if err != nil {
			t.Fatalf("append %s: %v", typ, err)
		}
	}

	t.Run("recent history capped and newest first", func(t *testing.T) {
		entries, err := st.RecentHistory(ctx, client.ID, 5)
		if err != nil {
			t.Fatalf("recent: %v", err)
		}
		if len(entries) != 5 {
			t.Fatalf("expected 5 entries, got %d", len(entries))
		}
		if entries[0].Type != HistoryEvent {
			t.Errorf("expected newest entry first, got %q", entries[0].Type)
		}
	})

	t.Run("incident queries", func(t *testing.T) {
		incidents, err := st.RecentIncidents(ctx, 10)
		if err != nil {
			t.Fatalf("incidents: %v", err)
		}
		if len(incidents) != 1 {
			t.Fatalf("expected 1 incident, got %d", len(incidents))
		}

		count, err := st.CountIncidents(ctx)
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if count != 1 {
			t.Errorf("expected incident count 1, got %d", count)
		}
	})

	t.Run("rejects bad type", func(t *testing.T) {
		err := st.AppendHistory(ctx, &HistoryEntry{ClientID: client.ID, Type: "telepathy", Summary: "x", VisibleTo: VisibleBoth})
		if err == nil {
			t.Fatal("expected error for invalid history type")
		}
	})
}

func TestReminderFiredSet(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	t.Run("mark is idempotent", func(t *testing.T) {
		if err := st.MarkReminderFired(ctx, "2026-08-31", "ev1"); err != nil {
			t.Fatalf("mark: %v", err)
		}
		if err := st.MarkReminderFired(ctx, "2026-08-31", "ev1"); err != nil {
			t.Fatalf("second mark should not error: %v", err)
		}

		fired, err := st.FiredReminderIDs(ctx, "2026-08-31")
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if !fired["ev1"] || len(fired) != 1 {
			t.Errorf("expected exactly ev1 fired, got %v", fired)
		}
	})

	t.Run("day keyed", func(t *testing.T) {
		fired, err := st.FiredReminderIDs(ctx, "2026-09-01")
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if len(fired) != 0 {
			t.Errorf("expected empty set for other day, got %v", fired)
		}
	})

	t.Run("clear before day", func(t *testing.T) {
		if err := st.MarkReminderFired(ctx, "2026-09-01", "ev2"); err != nil {
			t.Fatalf("mark: %v", err)
		}
		if err := st.ClearFiredRemindersBefore(ctx, "2026-09-01"); err != nil {
			t.Fatalf("clear: %v", err)
		}

		old, _ := st.FiredReminderIDs(ctx, "2026-08-31")
		if len(old) != 0 {
			t.Errorf("expected old day cleared, got %v", old)
		}
		current, _ := st.FiredReminderIDs(ctx, "2026-09-01")
		if !current["ev2"] {
			t.Error("expected current day preserved")
		}
	})
}

func TestConversations(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	t.Run("latest is nil when none", func(t *testing.T) {
		conv, err := st.LatestConversation(ctx, "ceo")
		if err != nil {
			t.Fatalf("latest: %v", err)
		}
		if conv != nil {
			t.Error("expected nil conversation")
		}
	})

	t.Run("ensure creates then reuses", func(t *testing.T) {
		first, err := st.EnsureConversation(ctx, "ceo")
		if err != nil {
			t.Fatalf("ensure: %v", err)
		}
		second, err := st.EnsureConversation(ctx, "ceo")
		if err != nil {
			t.Fatalf("ensure again: %v", err)
		}
		if first.ID != second.ID {
			t.Error("expected the same conversation to be reused")
		}
	})

	t.Run("recent messages in chronological order", func(t *testing.T) {
		conv, err := st.EnsureConversation(ctx, "ceo")
		if err != nil {
			t.Fatalf("ensure: %v", err)
		}

		for i := 0; i < 15; i++ {
			role := "user"
			if i%2 == 1 {
				role = "assistant"
			}
			err := st.AppendMessage(ctx, &ChatMessage{
				ConversationID: conv.ID,
				Role:           role,
				Content:        fmt.Sprintf("message %d", i),
			})
			if err != nil {
				t.Fatalf("append %d: %v", i, err)
			}
		}

		msgs, err := st.RecentMessages(ctx, conv.ID, 10)
		if err != nil {
			t.Fatalf("recent: %v", err)
		}
		if len(msgs) != 10 {
			t.Fatalf("expected 10 messages, got %d", len(msgs))
		}
		if msgs[0].Content != "message 5" || msgs[9].Content != "message 14" {
			t.Errorf("expected last 10 in order, got %q .. %q", msgs[0].Content, msgs[9].Content)
		}
	})
}
