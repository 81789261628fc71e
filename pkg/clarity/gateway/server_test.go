package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Peterhat541/ceo-clarity-hub/pkg/clarity/copilot"
	"github.com/Peterhat541/ceo-clarity-hub/pkg/clarity/reminder"
	"github.com/Peterhat541/ceo-clarity-hub/pkg/clarity/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// stubAssistant returns a canned result or error and records the last request.
type stubAssistant struct {
	result *copilot.TurnResult
	err    error
	last   *copilot.TurnRequest
}

func (a *stubAssistant) Respond(ctx context.Context, req copilot.TurnRequest) (*copilot.TurnResult, error) {
	a.last = &req
	if a.err != nil {
		return nil, a.err
	}
	return a.result, nil
}

// stubFeed is a fixed reminder feed.
type stubFeed struct {
	reminders []reminder.ActiveReminder
	dismissed []string
}

func (f *stubFeed) Active() []reminder.ActiveReminder { return f.reminders }

func (f *stubFeed) Dismiss(id string) bool {
	for _, r := range f.reminders {
		if r.ID == id {
			f.dismissed = append(f.dismissed, id)
			return true
		}
	}
	return false
}

func newTestServer(t *testing.T, cfg copilot.GatewayConfig, assistant Assistant, feed ReminderFeed) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(store.Config{Path: ":memory:"}, testLogger())
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(cfg, assistant, feed, st, testLogger()), st
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestGatewayAssistant(t *testing.T) {
	assistant := &stubAssistant{result: &copilot.TurnResult{
		Message: "✅ Hecho.",
		Actions: []copilot.Action{{Tool: "create_event", Result: map[string]any{"success": true}}},
	}}
	srv, st := newTestServer(t, copilot.GatewayConfig{}, assistant, nil)
	handler := srv.Handler()

	t.Run("turn round trip", func(t *testing.T) {
		clientID := "c1"
		rec := doJSON(t, handler, http.MethodPost, "/api/assistant", map[string]any{
			"message":        "agenda una llamada",
			"activeClientId": clientID,
			"uiSnapshot":     map[string]any{"todayEvents": []map[string]any{{"title": "Junta"}}},
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		body := decodeBody(t, rec)
		if body["message"] != "✅ Hecho." {
			t.Errorf("unexpected message: %v", body["message"])
		}
		actions, ok := body["actions"].([]any)
		if !ok || len(actions) != 1 {
			t.Errorf("expected one action in response, got %v", body["actions"])
		}

		if assistant.last.ActiveClientID != clientID {
			t.Errorf("active client id not forwarded: %+v", assistant.last)
		}
		if assistant.last.Snapshot == nil || len(assistant.last.Snapshot.TodayEvents) != 1 {
			t.Errorf("snapshot not forwarded: %+v", assistant.last.Snapshot)
		}
	})

	t.Run("turn is persisted", func(t *testing.T) {
		conv, err := st.LatestConversation(context.Background(), "ceo")
		if err != nil {
			t.Fatalf("latest conversation: %v", err)
		}
		if conv == nil {
			t.Fatal("expected a persisted conversation")
		}
		msgs, err := st.RecentMessages(context.Background(), conv.ID, 10)
		if err != nil {
			t.Fatalf("recent messages: %v", err)
		}
		if len(msgs) != 2 || msgs[0].Role != "user" || msgs[1].Role != "assistant" {
			t.Fatalf("expected user+assistant pair, got %+v", msgs)
		}
		if msgs[0].ClientID == nil || *msgs[0].ClientID != "c1" {
			t.Errorf("expected client id on the user message, got %+v", msgs[0].ClientID)
		}
	})

	t.Run("empty message rejected", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/assistant", map[string]any{"message": "   "})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("malformed body rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/assistant", strings.NewReader("{not json"))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, "/api/assistant", nil)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
	})
}

func TestGatewayAssistantErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{
			name:       "rate limited",
			err:        &copilot.ProviderError{Kind: copilot.ErrorRateLimit, StatusCode: 429},
			wantStatus: http.StatusTooManyRequests,
			wantError:  "rate_limit",
		},
		{
			name:       "payment required",
			err:        &copilot.ProviderError{Kind: copilot.ErrorPaymentRequired, StatusCode: 402},
			wantStatus: http.StatusPaymentRequired,
			wantError:  "payment_required",
		},
		{
			name:       "provider internal",
			err:        &copilot.ProviderError{Kind: copilot.ErrorInternal, StatusCode: 500},
			wantStatus: http.StatusInternalServerError,
			wantError:  "internal_error",
		},
		{
			name:       "missing credential",
			err:        copilot.ErrAPIKeyMissing,
			wantStatus: http.StatusInternalServerError,
			wantError:  "internal_error",
		},
		{
			name:       "wrapped provider error",
			err:        fmt.Errorf("turn failed: %w", &copilot.ProviderError{Kind: copilot.ErrorRateLimit}),
			wantStatus: http.StatusTooManyRequests,
			wantError:  "rate_limit",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := newTestServer(t, copilot.GatewayConfig{}, &stubAssistant{err: tc.err}, nil)
			rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/assistant", map[string]any{"message": "hola"})
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rec.Code)
			}
			body := decodeBody(t, rec)
			if body["error"] != tc.wantError {
				t.Errorf("expected error %q, got %v", tc.wantError, body["error"])
			}
			msg, _ := body["message"].(string)
			if strings.TrimSpace(msg) == "" {
				t.Error("expected a user-facing message")
			}
		})
	}
}

func TestGatewayReminders(t *testing.T) {
	feed := &stubFeed{reminders: []reminder.ActiveReminder{
		{ID: "2026-08-31:e1", EventID: "e1", Title: "Llamada", Type: "call", Time: "10:00"},
	}}
	srv, _ := newTestServer(t, copilot.GatewayConfig{}, &stubAssistant{}, feed)
	handler := srv.Handler()

	t.Run("feed", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, "/api/reminders", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		body := decodeBody(t, rec)
		list, ok := body["reminders"].([]any)
		if !ok || len(list) != 1 {
			t.Fatalf("expected one reminder, got %v", body["reminders"])
		}
	})

	t.Run("dismiss", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/reminders/2026-08-31:e1/dismiss", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if len(feed.dismissed) != 1 || feed.dismissed[0] != "2026-08-31:e1" {
			t.Errorf("dismiss not forwarded, got %v", feed.dismissed)
		}
	})

	t.Run("dismiss unknown", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/reminders/nope/dismiss", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("unknown action", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/reminders/2026-08-31:e1/snooze", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("nil feed serves an empty list", func(t *testing.T) {
		bare, _ := newTestServer(t, copilot.GatewayConfig{}, &stubAssistant{}, nil)
		rec := doJSON(t, bare.Handler(), http.MethodGet, "/api/reminders", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		body := decodeBody(t, rec)
		if list, ok := body["reminders"].([]any); !ok || len(list) != 0 {
			t.Errorf("expected empty list, got %v", body["reminders"])
		}
	})
}

func TestGatewayClients(t *testing.T) {
	srv, st := newTestServer(t, copilot.GatewayConfig{}, &stubAssistant{}, nil)
	handler := srv.Handler()
	ctx := context.Background()

	var createdID string

	t.Run("create", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/clients", map[string]any{
			"name": "Nexus Tech", "status": "red", "contact_name": "Laura Gómez",
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		body := decodeBody(t, rec)
		createdID, _ = body["id"].(string)
		if createdID == "" {
			t.Fatal("expected a generated id")
		}
	})

	t.Run("create with bad status", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/clients", map[string]any{"name": "X", "status": "purple"})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("list", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, "/api/clients", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		body := decodeBody(t, rec)
		if list, ok := body["clients"].([]any); !ok || len(list) != 1 {
			t.Errorf("expected one client, got %v", body["clients"])
		}
	})

	t.Run("get", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, "/api/clients/"+createdID, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if body := decodeBody(t, rec); body["name"] != "Nexus Tech" {
			t.Errorf("unexpected client: %v", body)
		}
	})

	t.Run("get unknown", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, "/api/clients/ghost", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("update", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPut, "/api/clients/"+createdID, map[string]any{
			"name": "Nexus Tech", "status": "orange",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		client, err := st.GetClient(ctx, createdID)
		if err != nil {
			t.Fatalf("get client: %v", err)
		}
		if client.Status != store.StatusOrange {
			t.Errorf("expected status updated, got %q", client.Status)
		}
	})

	t.Run("review", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/clients/"+createdID+"/review", map[string]any{
			"last_contact": "Llamada el 2026-08-30",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		client, err := st.GetClient(ctx, createdID)
		if err != nil {
			t.Fatalf("get client: %v", err)
		}
		if client.LastContact != "Llamada el 2026-08-30" {
			t.Errorf("expected last contact updated, got %q", client.LastContact)
		}
	})

	t.Run("delete", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodDelete, "/api/clients/"+createdID, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if _, err := st.GetClient(ctx, createdID); err == nil {
			t.Error("expected the client gone")
		}
	})
}

func TestGatewayAuth(t *testing.T) {
	cfg := copilot.GatewayConfig{AuthToken: "secret-token"}
	srv, _ := newTestServer(t, cfg, &stubAssistant{result: &copilot.TurnResult{Message: "ok"}}, nil)
	handler := srv.Handler()

	t.Run("missing token", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, "/api/clients", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("wrong token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/clients", nil)
		req.Header.Set("Authorization", "Bearer wrong")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/clients", nil)
		req.Header.Set("Authorization", "Bearer secret-token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("health stays open", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, "/health", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200 without a token, got %d", rec.Code)
		}
	})
}

func TestGatewayCORS(t *testing.T) {
	cfg := copilot.GatewayConfig{AllowedOrigins: []string{"https://dashboard.example.com"}}
	assistant := &stubAssistant{result: &copilot.TurnResult{Message: "ok"}}
	srv, _ := newTestServer(t, cfg, assistant, nil)
	handler := srv.Handler()

	t.Run("preflight answered without touching handlers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/assistant", nil)
		req.Header.Set("Origin", "https://dashboard.example.com")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rec.Code)
		}
		if rec.Header().Get("Access-Control-Allow-Origin") != "https://dashboard.example.com" {
			t.Errorf("missing allow-origin header: %v", rec.Header())
		}
		if assistant.last != nil {
			t.Error("preflight must not reach the assistant")
		}
	})

	t.Run("disallowed origin gets no CORS headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Header().Get("Access-Control-Allow-Origin") != "" {
			t.Error("unexpected allow-origin header for a disallowed origin")
		}
	})

	t.Run("wildcard allows any origin", func(t *testing.T) {
		open, _ := newTestServer(t, copilot.GatewayConfig{AllowedOrigins: []string{"*"}}, assistant, nil)
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "https://anywhere.example.com")
		rec := httptest.NewRecorder()
		open.Handler().ServeHTTP(rec, req)

		if rec.Header().Get("Access-Control-Allow-Origin") != "https://anywhere.example.com" {
			t.Errorf("expected the origin echoed, got %q", rec.Header().Get("Access-Control-Allow-Origin"))
		}
	})
}

func TestGatewaySecurityHeaders(t *testing.T) {
	srv, _ := newTestServer(t, copilot.GatewayConfig{}, &stubAssistant{}, nil)
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/health", nil)

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing nosniff header")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("missing frame-options header")
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Error("missing cache-control header")
	}
}

func TestGatewayHealth(t *testing.T) {
	srv, _ := newTestServer(t, copilot.GatewayConfig{}, &stubAssistant{}, nil)
	srv.started = time.Now().Add(-90 * time.Second)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" {
		t.Errorf("unexpected status: %v", body["status"])
	}
	if uptime, _ := body["uptime"].(string); !strings.Contains(uptime, "m") && !strings.Contains(uptime, "s") {
		t.Errorf("unexpected uptime format: %v", body["uptime"])
	}
}

func TestGatewayAddr(t *testing.T) {
	srv, _ := newTestServer(t, copilot.GatewayConfig{}, &stubAssistant{}, nil)
	if srv.Addr() != "127.0.0.1:8787" {
		t.Errorf("expected default address, got %q", srv.Addr())
	}

	custom, _ := newTestServer(t, copilot.GatewayConfig{Host: "0.0.0.0", Port: 9000}, &stubAssistant{}, nil)
	if custom.Addr() != "0.0.0.0:9000" {
		t.Errorf("expected custom address, got %q", custom.Addr())
	}
}
