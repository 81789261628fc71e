package reminder

import (
	"context"
	"time"

	"github.com/Peterhat541/ceo-clarity-hub/pkg/clarity/store"
)

// StoreSource adapts the SQLite store to the scheduler's event view.
type StoreSource struct {
	Store *store.Store
}

// EventsForDay implements EventSource.
func (s StoreSource) EventsForDay(ctx context.Context, day time.Time) ([]Event, error) {
	rows, err := s.Store.ListEventsForDay(ctx, day)
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(rows))
	for _, row := range rows {
		lead := 0
		if row.ReminderMinutes != nil {
			lead = *row.ReminderMinutes
		}
		events = append(events, Event{
			ID:          row.ID,
			Title:       row.Title,
			Type:        row.Type,
			StartAt:     row.StartAt,
			LeadMinutes: lead,
			ClientName:  row.ClientName,
		})
	}
	return events, nil
}
