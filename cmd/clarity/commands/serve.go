package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Peterhat541/ceo-clarity-hub/pkg/clarity/copilot"
	"github.com/Peterhat541/ceo-clarity-hub/pkg/clarity/gateway"
	"github.com/Peterhat541/ceo-clarity-hub/pkg/clarity/notify/discord"
	"github.com/Peterhat541/ceo-clarity-hub/pkg/clarity/reminder"
	"github.com/Peterhat541/ceo-clarity-hub/pkg/clarity/store"
	"github.com/spf13/cobra"
)

// newServeCmd creates the `clarity serve` command that starts the daemon.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard backend",
		Long: `Start the Clarity daemon: the HTTP gateway for the dashboard
frontend, the reminder scheduler and, when configured, the Discord
team announcer.

Examples:
  clarity serve
  clarity serve --config ./config.yaml`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(cmd, cfg)

	copilot.AuditSecrets(cfg, logger)
	copilot.ResolveAPIKey(cfg, logger)

	st, err := store.Open(store.Config{
		Path:          cfg.Database.Path,
		BusyTimeoutMs: cfg.Database.BusyTimeoutMs,
	}, logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	loc := cfg.Location()

	tools := copilot.NewDashboardTools(st, loc, logger)
	llm := copilot.NewLLMClient(cfg, logger)

	orchestrator, err := copilot.NewOrchestrator(cfg, llm, tools, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Discord announcer (optional).
	if cfg.Notify.Discord.Enabled && cfg.Notify.Discord.BotToken != "" {
		announcer, err := discord.New(cfg.Notify.Discord.BotToken, cfg.Notify.Discord.ChannelID, logger)
		if err != nil {
			logger.Error("discord announcer misconfigured", "error", err)
		} else if err := announcer.Start(); err != nil {
			logger.Error("discord announcer failed to start", "error", err)
		} else {
			defer announcer.Stop()
			tools.SetNotifier(announcer)
		}
	}

	// Reminder scheduler (optional).
	var feed gateway.ReminderFeed
	if cfg.Reminders.Enabled {
		scheduler := reminder.New(
			reminder.StoreSource{Store: st},
			st,
			reminder.Options{
				PollInterval: time.Duration(cfg.Reminders.PollSeconds) * time.Second,
				LeadMinutes:  cfg.Reminders.LeadMinutes,
				DismissDelay: time.Duration(cfg.Reminders.DismissDelayMs) * time.Millisecond,
				Location:     loc,
			},
			logger,
		)
		tools.SetOnEventCreated(scheduler.Notify)
		go scheduler.Run(ctx)
		feed = scheduler
	}

	// HTTP gateway.
	var server *gateway.Server
	if cfg.Gateway.Enabled {
		server = gateway.New(cfg.Gateway, orchestrator, feed, st, logger)
		server.Start()
		defer server.Stop()
	}

	logger.Info("clarity running",
		"model", cfg.Model,
		"timezone", cfg.Timezone,
		"database", cfg.Database.Path,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	return nil
}
