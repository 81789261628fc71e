package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Peterhat541/ceo-clarity-hub/pkg/clarity/copilot"
	"github.com/Peterhat541/ceo-clarity-hub/pkg/clarity/store"
	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

// newChatCmd creates the `clarity chat` command: a local REPL driving the
// orchestrator without the HTTP gateway.
func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant from the terminal",
		Long: `Start an interactive terminal session with the assistant.

Inside the session:
  /client <name>   set the active client (partial name match)
  /client          clear the active client
  exit             quit`,
		RunE: runChat,
	}
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(cmd, cfg)
	copilot.ResolveAPIKey(cfg, logger)

	st, err := store.Open(store.Config{
		Path:          cfg.Database.Path,
		BusyTimeoutMs: cfg.Database.BusyTimeoutMs,
	}, logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	tools := copilot.NewDashboardTools(st, cfg.Location(), logger)
	llm := copilot.NewLLMClient(cfg, logger)
	orchestrator, err := copilot.NewOrchestrator(cfg, llm, tools, logger)
	if err != nil {
		return err
	}

	homeDir, _ := os.UserHomeDir()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "you> ",
		HistoryFile:       filepath.Join(homeDir, ".clarity_history"),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("initializing readline: %w", err)
	}
	defer rl.Close()

	fmt.Printf("%s: type a message, /client <name> to focus a client, exit to quit.\n\n", cfg.Name)

	ctx := context.Background()
	var (
		history          []copilot.HistoryTurn
		activeClientID   string
		activeClientName string
	)

	for {
		input, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(input) == 0 {
				break
			}
			continue
		}
		if err == io.EOF {
			break
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		if name, ok := strings.CutPrefix(input, "/client"); ok {
			name = strings.TrimSpace(name)
			if name == "" {
				activeClientID, activeClientName = "", ""
				fmt.Println("active client cleared")
				continue
			}
			client, err := st.FindClientByName(ctx, name)
			if err != nil {
				fmt.Printf("no client matching %q\n", name)
				continue
			}
			activeClientID, activeClientName = client.ID, client.Name
			fmt.Printf("active client: %s (%s)\n", client.Name, client.Status)
			continue
		}

		result, err := orchestrator.Respond(ctx, copilot.TurnRequest{
			Message:          input,
			ActiveClientID:   activeClientID,
			ActiveClientName: activeClientName,
			History:          history,
		})
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}

		for _, action := range result.Actions {
			status := "ok"
			if !action.Succeeded() {
				status = "failed"
			}
			fmt.Printf("  [%s %s]\n", action.Tool, status)
		}
		fmt.Printf("\n%s\n\n", result.Message)

		history = append(history,
			copilot.HistoryTurn{Role: "user", Content: input},
			copilot.HistoryTurn{Role: "assistant", Content: result.Message},
		)
		if len(history) > 2*copilot.DefaultHistoryLimit {
			history = history[len(history)-2*copilot.DefaultHistoryLimit:]
		}
	}

	fmt.Println("bye")
	return nil
}
