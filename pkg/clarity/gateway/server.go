// Package gateway exposes the assistant, the reminder feed and the admin
// client endpoints over HTTP for the dashboard frontend.
package gateway

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Peterhat541/ceo-clarity-hub/pkg/clarity/copilot"
	"github.com/Peterhat541/ceo-clarity-hub/pkg/clarity/reminder"
	"github.com/Peterhat541/ceo-clarity-hub/pkg/clarity/store"
)

// Assistant runs one conversational turn.
type Assistant interface {
	Respond(ctx context.Context, req copilot.TurnRequest) (*copilot.TurnResult, error)
}

// ReminderFeed is the scheduler's presentation surface.
type ReminderFeed interface {
	Active() []reminder.ActiveReminder
	Dismiss(id string) bool
}

// Server is the HTTP gateway.
type Server struct {
	cfg       copilot.GatewayConfig
	assistant Assistant
	reminders ReminderFeed
	store     *store.Store
	logger    *slog.Logger

	server  *http.Server
	started time.Time
}

// New wires the gateway. The reminder feed may be nil when the scheduler is
// disabled.
func New(cfg copilot.GatewayConfig, assistant Assistant, reminders ReminderFeed, st *store.Store, logger *slog.Logger) *Server {
	return &Server{
		cfg:       cfg,
		assistant: assistant,
		reminders: reminders,
		store:     st,
		logger:    logger.With("component", "gateway"),
	}
}

// Addr is the configured listen address.
func (s *Server) Addr() string {
	host := s.cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := s.cfg.Port
	if port == 0 {
		port = 8787
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/assistant", s.authMiddleware(s.handleAssistant))
	mux.HandleFunc("/api/reminders", s.authMiddleware(s.handleReminders))
	mux.HandleFunc("/api/reminders/", s.authMiddleware(s.handleReminderAction))
	mux.HandleFunc("/api/clients", s.authMiddleware(s.handleClients))
	mux.HandleFunc("/api/clients/", s.authMiddleware(s.handleClientByID))
	return s.corsMiddleware(securityHeaders(mux))
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	s.started = time.Now()

	s.server = &http.Server{
		Addr:         s.Addr(),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("gateway starting", "address", s.server.Addr)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("gateway server error", "error", err)
		}
	}()
}

// Stop gracefully shuts down the gateway.
func (s *Server) Stop() {
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("gateway shutdown", "error", err)
	}
}

// ---------- Middleware ----------

// corsMiddleware adds CORS headers and answers the preflight probe without
// touching the handlers.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// authMiddleware validates the bearer token if configured.
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AuthToken == "" {
			next(w, r)
			return
		}

		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !compareTokens(token, s.cfg.AuthToken) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}

		next(w, r)
	}
}

// securityHeaders sets the baseline response headers for an API that fronts
// a browser UI.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// compareTokens performs timing-safe comparison by hashing both inputs with
// SHA-256 before calling ConstantTimeCompare to prevent length-based leakage.
func compareTokens(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}

// ---------- JSON helpers ----------

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
