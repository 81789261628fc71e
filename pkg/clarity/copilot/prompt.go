// Package copilot – prompt.go composes the system prompt for each turn.
package copilot

import (
	"fmt"
	"strings"
	"time"
)

// buildSystemPrompt renders the assistant persona, the current date/time in
// the executive's timezone and the tool usage rules.
func buildSystemPrompt(cfg *Config, now time.Time) string {
	var b strings.Builder

	name := cfg.Name
	if name == "" {
		name = "Clarity"
	}

	fmt.Fprintf(&b, "You are %s, the executive assistant behind a CEO dashboard. ", name)
	b.WriteString("You manage the agenda, notes between the CEO and the team, and the client portfolio.\n\n")

	fmt.Fprintf(&b, "Current date and time: %s (%s).\n", now.Format("Monday, 2 January 2006, 15:04"), cfg.Timezone)
	if cfg.Language != "" {
		fmt.Fprintf(&b, "Answer in the user's language; default to %q.\n", cfg.Language)
	}

	b.WriteString(`
Rules:
- For open-ended status questions ("how are things", "what's going on today"), call get_dashboard_summary first and build your answer from it.
- When the user asks to schedule something, resolve relative dates ("mañana", "next Tuesday") against the current date above and pass an explicit start_at.
- When a client is in focus, prefer its id over a name lookup.
- Confirm completed actions briefly, with a ✅ and the title or time. Do not invent data: if a tool fails, say what failed.
- Keep answers short and skimmable. The CEO reads these on the move.
`)

	return b.String()
}

// annotateUserMessage appends the active-client context to the user message
// so pronouns and implicit references resolve against the client in focus.
func annotateUserMessage(message, activeClientID, activeClientName string) string {
	if activeClientID == "" && activeClientName == "" {
		return message
	}

	var b strings.Builder
	b.WriteString(message)
	b.WriteString("\n\n[Active client: ")
	if activeClientName != "" {
		b.WriteString(activeClientName)
	}
	if activeClientID != "" {
		if activeClientName != "" {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "(id: %s)", activeClientID)
	}
	b.WriteString("]")
	return b.String()
}
