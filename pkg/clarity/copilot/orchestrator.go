// Package copilot – orchestrator.go runs one assistant turn: compose the
// prompt, let the model propose tool calls, execute them, and fold the
// results into the final reply.
//
// The orchestrator is a pure function of its inputs: message, prior history,
// active client and UI snapshot all arrive in the TurnRequest, and the
// outcome is returned. Conversation persistence is the caller's concern.
package copilot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DefaultHistoryLimit caps how many prior turns are replayed into a request.
const DefaultHistoryLimit = 10

// HistoryTurn is one prior user or assistant message.
type HistoryTurn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// TurnRequest carries everything a turn depends on.
type TurnRequest struct {
	Message          string
	ActiveClientID   string
	ActiveClientName string
	History          []HistoryTurn
	Snapshot         *UISnapshot
}

// Action records one executed tool call and its result envelope.
type Action struct {
	Tool   string         `json:"tool"`
	Result map[string]any `json:"result"`
}

// Succeeded reports whether the action's envelope carries success=true.
func (a Action) Succeeded() bool {
	ok, _ := a.Result["success"].(bool)
	return ok
}

// TurnResult is the outcome of one turn: the reply text plus the ordered
// list of executed actions. Callers use the action list to decide whether to
// refresh downstream views.
type TurnResult struct {
	Message string   `json:"message"`
	Actions []Action `json:"actions"`
	Usage   LLMUsage `json:"-"`
}

// Orchestrator drives the two-phase exchange with the model provider.
type Orchestrator struct {
	cfg    *Config
	llm    *LLMClient
	tools  *DashboardTools
	logger *slog.Logger
	now    func() time.Time
}

// NewOrchestrator wires the orchestrator. The tool registry is built once
// here so a bad declaration fails at startup rather than mid-turn.
func NewOrchestrator(cfg *Config, llm *LLMClient, tools *DashboardTools, logger *slog.Logger) (*Orchestrator, error) {
	if _, err := tools.Executor(nil); err != nil {
		return nil, fmt.Errorf("building tool registry: %w", err)
	}
	return &Orchestrator{
		cfg:    cfg,
		llm:    llm,
		tools:  tools,
		logger: logger.With("component", "orchestrator"),
		now:    time.Now,
	}, nil
}

// SetClock overrides the time source.
func (o *Orchestrator) SetClock(now func() time.Time) { o.now = now }

// Respond runs one complete turn. Provider and configuration failures come
// back as errors (a *ProviderError where a provider was involved); tool and
// store failures are absorbed into the action envelopes and the turn still
// completes.
func (o *Orchestrator) Respond(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	if !o.llm.HasAPIKey() {
		return nil, ErrAPIKeyMissing
	}

	executor, err := o.tools.Executor(req.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("building tool registry: %w", err)
	}

	messages := o.composeMessages(req)

	// Phase one: offer the tools and let the model decide.
	proposal, err := o.llm.CompleteWithTools(ctx, messages, executor.Definitions())
	if err != nil {
		return nil, err
	}

	if len(proposal.ToolCalls) == 0 {
		return &TurnResult{
			Message: proposal.Content,
			Actions: []Action{},
			Usage:   proposal.Usage,
		}, nil
	}

	o.logger.Info("model proposed tool calls", "count", len(proposal.ToolCalls))

	results := executor.Execute(ctx, proposal.ToolCalls)

	actions := make([]Action, 0, len(results))
	for _, r := range results {
		actions = append(actions, Action{Tool: r.Name, Result: r.Envelope})
	}

	// Phase two: replay the proposal and the tool results for the final
	// reply. A transport failure here is fatal to the turn.
	messages = append(messages, chatMessage{
		Role:      "assistant",
		Content:   proposal.Content,
		ToolCalls: proposal.ToolCalls,
	})
	for _, r := range results {
		messages = append(messages, chatMessage{
			Role:       "tool",
			Content:    r.Content(),
			ToolCallID: r.ToolCallID,
		})
	}

	final, err := o.llm.CompleteWithTools(ctx, messages, nil)
	if err != nil {
		return nil, err
	}

	if len(final.ToolCalls) > 0 {
		// Strictly two phases; a second round of tool calls is not honored.
		o.logger.Warn("model requested tools in the finalize pass, ignoring",
			"count", len(final.ToolCalls))
	}

	message := strings.TrimSpace(final.Content)
	if message == "" {
		message = fallbackConfirmation(actions)
	}

	usage := proposal.Usage
	usage.PromptTokens += final.Usage.PromptTokens
	usage.CompletionTokens += final.Usage.CompletionTokens
	usage.TotalTokens += final.Usage.TotalTokens

	return &TurnResult{
		Message: message,
		Actions: actions,
		Usage:   usage,
	}, nil
}

// composeMessages builds the request transcript: system prompt, capped
// history, then the annotated user message.
func (o *Orchestrator) composeMessages(req TurnRequest) []chatMessage {
	limit := o.cfg.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	history := req.History
	if len(history) > limit {
		history = history[len(history)-limit:]
	}

	messages := make([]chatMessage, 0, len(history)+2)
	messages = append(messages, chatMessage{
		Role:    "system",
		Content: buildSystemPrompt(o.cfg, o.now().In(o.cfg.Location())),
	})

	for _, turn := range history {
		if turn.Role != "user" && turn.Role != "assistant" {
			continue
		}
		messages = append(messages, chatMessage{Role: turn.Role, Content: turn.Content})
	}

	messages = append(messages, chatMessage{
		Role:    "user",
		Content: annotateUserMessage(req.Message, req.ActiveClientID, req.ActiveClientName),
	})

	return messages
}

// fallbackConfirmation covers providers that answer the finalize pass with
// empty content.
func fallbackConfirmation(actions []Action) string {
	for _, a := range actions {
		if !a.Succeeded() {
			return "Algo falló al completar la acción. Revisa el detalle e inténtalo de nuevo."
		}
	}
	return "✅ Hecho."
}
