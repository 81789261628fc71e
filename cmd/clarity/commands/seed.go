package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/Peterhat541/ceo-clarity-hub/pkg/clarity/store"
	"github.com/spf13/cobra"
)

// newSeedCmd creates the `clarity seed` command that loads demo data.
func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load demo clients, events and notes",
		RunE:  runSeed,
	}
}

func runSeed(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(cmd, cfg)

	st, err := store.Open(store.Config{
		Path:          cfg.Database.Path,
		BusyTimeoutMs: cfg.Database.BusyTimeoutMs,
	}, logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	loc := cfg.Location()
	now := time.Now().In(loc)

	clients := []store.Client{
		{
			Name: "Nexus Tech", Status: store.StatusRed,
			ContactName: "Laura Gómez", Phone: "+34 600 111 222", Email: "laura@nexustech.example",
			ProjectType: "ERP migration", Budget: "120k",
			Manager: "Marta", PendingTasks: "Sign-off on phase 2",
			LastContact: "Escalation call last Friday",
		},
		{
			Name: "Atlas Logistics", Status: store.StatusOrange,
			ContactName: "Pedro Ruiz", Phone: "+34 600 333 444", Email: "pedro@atlas.example",
			ProjectType: "Fleet tracking", Budget: "80k",
			Manager: "Jorge", PendingTasks: "Delayed hardware delivery",
		},
		{
			Name: "Helios Energy", Status: store.StatusYellow,
			ContactName: "Carmen Díaz", Phone: "+34 600 555 666", Email: "carmen@helios.example",
			ProjectType: "Billing portal", Budget: "45k",
			Manager: "Marta",
		},
		{
			Name: "Vega Retail", Status: store.StatusGreen,
			ContactName: "Andrés Molina", Phone: "+34 600 777 888", Email: "andres@vega.example",
			ProjectType: "Loyalty app", Budget: "60k",
			Manager: "Jorge",
		},
	}

	for i := range clients {
		if err := st.CreateClient(ctx, &clients[i]); err != nil {
			return fmt.Errorf("seeding client %q: %w", clients[i].Name, err)
		}
	}

	nexus := clients[0].ID
	atlas := clients[1].ID

	incident := "Server outage during demo, client escalated to management"
	if err := st.AppendHistory(ctx, &store.HistoryEntry{
		ClientID: nexus, Type: store.HistoryIncident,
		Summary: incident, VisibleTo: store.VisibleBoth,
	}); err != nil {
		return fmt.Errorf("seeding history: %w", err)
	}

	events := []store.Event{
		{
			Title: "Llamada de seguimiento Nexus Tech", Type: store.EventCall,
			StartAt: time.Date(now.Year(), now.Month(), now.Day(), 10, 0, 0, 0, loc).AddDate(0, 0, 1),
			ClientID: &nexus, CreatedBy: "seed",
		},
		{
			Title: "Reunión de entrega Atlas", Type: store.EventMeeting,
			StartAt: time.Date(now.Year(), now.Month(), now.Day(), 16, 30, 0, 0, loc),
			ClientID: &atlas, CreatedBy: "seed",
		},
	}
	for i := range events {
		if err := st.CreateEvent(ctx, &events[i]); err != nil {
			return fmt.Errorf("seeding event %q: %w", events[i].Title, err)
		}
	}

	notes := []store.Note{
		{Text: "Revisar propuesta de renovación de Nexus Tech antes del viernes", VisibleTo: store.VisibleCEO, ClientID: &nexus, CreatedBy: "seed"},
		{Text: "El equipo de Atlas espera confirmación del nuevo calendario", VisibleTo: store.VisibleBoth, ClientID: &atlas, CreatedBy: "seed"},
		{Text: "Recordad actualizar los partes de horas", VisibleTo: store.VisibleTeam, CreatedBy: "seed"},
	}
	for i := range notes {
		if err := st.CreateNote(ctx, &notes[i]); err != nil {
			return fmt.Errorf("seeding note: %w", err)
		}
	}

	fmt.Printf("seeded %d clients, %d events, %d notes\n", len(clients), len(events), len(notes))
	return nil
}
