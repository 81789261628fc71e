// Package gateway – handlers.go implements the API endpoints.
package gateway

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Peterhat541/ceo-clarity-hub/pkg/clarity/copilot"
	"github.com/Peterhat541/ceo-clarity-hub/pkg/clarity/store"
)

// defaultUser owns the gateway's conversation thread.
const defaultUser = "ceo"

// assistantRequest is the inbound body of POST /api/assistant.
type assistantRequest struct {
	Message             string                `json:"message"`
	ActiveClientID      *string               `json:"activeClientId"`
	ActiveClientName    *string               `json:"activeClientName"`
	ConversationHistory []copilot.HistoryTurn `json:"conversationHistory"`
	UISnapshot          *copilot.UISnapshot   `json:"uiSnapshot"`
}

// handleAssistant runs one assistant turn. Provider failures map onto the
// error taxonomy: 429 rate_limit, 402 payment_required, 500 internal_error.
func (s *Server) handleAssistant(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req assistantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": err.Error()})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": "message is required"})
		return
	}

	turn := copilot.TurnRequest{
		Message:  req.Message,
		History:  req.ConversationHistory,
		Snapshot: req.UISnapshot,
	}
	if req.ActiveClientID != nil {
		turn.ActiveClientID = *req.ActiveClientID
	}
	if req.ActiveClientName != nil {
		turn.ActiveClientName = *req.ActiveClientName
	}

	result, err := s.assistant.Respond(r.Context(), turn)
	if err != nil {
		s.writeAssistantError(w, err)
		return
	}

	s.persistTurn(r, &turn, result)

	writeJSON(w, http.StatusOK, result)
}

// writeAssistantError maps orchestrator failures onto the wire taxonomy.
// The underlying detail is logged, not shown to the end user.
func (s *Server) writeAssistantError(w http.ResponseWriter, err error) {
	s.logger.Error("assistant turn failed", "error", err)

	var perr *copilot.ProviderError
	if errors.As(err, &perr) {
		switch perr.Kind {
		case copilot.ErrorRateLimit:
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error":   perr.Kind.String(),
				"message": "El proveedor de IA está saturado. Espera unos segundos y vuelve a intentarlo.",
			})
			return
		case copilot.ErrorPaymentRequired:
			writeJSON(w, http.StatusPaymentRequired, map[string]string{
				"error":   perr.Kind.String(),
				"message": "Sin crédito en el proveedor de IA. Contacta con el administrador para recargar.",
			})
			return
		}
	}

	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error":   copilot.ErrorInternal.String(),
		"message": "No he podido procesar tu mensaje. Inténtalo de nuevo en un momento.",
	})
}

// persistTurn appends the user and assistant messages to the stored
// conversation thread. Persistence failures are logged, never surfaced.
func (s *Server) persistTurn(r *http.Request, turn *copilot.TurnRequest, result *copilot.TurnResult) {
	ctx := r.Context()

	conv, err := s.store.EnsureConversation(ctx, defaultUser)
	if err != nil {
		s.logger.Warn("conversation persistence failed", "error", err)
		return
	}

	userMsg := &store.ChatMessage{
		ConversationID: conv.ID,
		Role:           "user",
		Content:        turn.Message,
	}
	if turn.ActiveClientID != "" {
		id := turn.ActiveClientID
		userMsg.ClientID = &id
	}
	if err := s.store.AppendMessage(ctx, userMsg); err != nil {
		s.logger.Warn("persisting user message failed", "error", err)
	}

	assistantMsg := &store.ChatMessage{
		ConversationID: conv.ID,
		Role:           "assistant",
		Content:        result.Message,
	}
	if err := s.store.AppendMessage(ctx, assistantMsg); err != nil {
		s.logger.Warn("persisting assistant message failed", "error", err)
	}
}

// handleReminders serves the active reminder feed.
func (s *Server) handleReminders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if s.reminders == nil {
		writeJSON(w, http.StatusOK, map[string]any{"reminders": []any{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reminders": s.reminders.Active()})
}

// handleReminderAction routes POST /api/reminders/{id}/dismiss.
func (s *Server) handleReminderAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/reminders/")
	id, action, ok := strings.Cut(rest, "/")
	if !ok || action != "dismiss" || id == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if s.reminders == nil || !s.reminders.Dismiss(id) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "reminder not found"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"dismissed": true})
}

// handleClients serves GET (list) and POST (create) on /api/clients.
func (s *Server) handleClients(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		clients, err := s.store.ListClients(r.Context())
		if err != nil {
			s.logger.Error("listing clients", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "store error"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"clients": clients})

	case http.MethodPost:
		var client store.Client
		if err := decodeJSON(r, &client); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if err := s.store.CreateClient(r.Context(), &client); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusCreated, client)

	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

// handleClientByID serves /api/clients/{id} (GET, PUT, DELETE) and
// POST /api/clients/{id}/review.
func (s *Server) handleClientByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/clients/")
	id, action, hasAction := strings.Cut(rest, "/")
	if id == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if hasAction {
		if action == "review" && r.Method == http.MethodPost {
			s.handleClientReview(w, r, id)
			return
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		client, err := s.store.GetClient(r.Context(), id)
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "client not found"})
			return
		}
		writeJSON(w, http.StatusOK, client)

	case http.MethodPut:
		var client store.Client
		if err := decodeJSON(r, &client); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		client.ID = id
		if err := s.store.UpdateClient(r.Context(), &client); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, client)

	case http.MethodDelete:
		if err := s.store.DeleteClient(r.Context(), id); err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": true})

	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

// handleClientReview applies the "mark reviewed" action: only the
// last-contact note and the updated timestamp change.
func (s *Server) handleClientReview(w http.ResponseWriter, r *http.Request, id string) {
	var body struct {
		LastContact string `json:"last_contact"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if body.LastContact == "" {
		body.LastContact = "Reviewed " + time.Now().Format("2006-01-02")
	}

	if err := s.store.MarkClientReviewed(r.Context(), id, body.LastContact); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reviewed": true})
}

// handleHealth reports liveness and uptime.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	uptime := time.Duration(0)
	if !s.started.IsZero() {
		uptime = time.Since(s.started)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": uptime.Round(time.Second).String(),
	})
}
