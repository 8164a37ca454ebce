// Package httpapi implements the standin control surface: a small JSON API
// to toggle the assistant and inspect or clear stored transcripts.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/standinhq/standin/pkg/standin/assist"
)

// Config holds control surface configuration.
type Config struct {
	// Address is the listen address (e.g. ":8081").
	Address string `yaml:"address"`

	// AuthToken is the Bearer token for authentication (empty = no auth).
	AuthToken string `yaml:"auth_token"`
}

// Controller is the assistant side the API drives.
type Controller interface {
	SetAvailable(ctx context.Context, available bool) error
}

// Server serves the control surface over HTTP.
type Server struct {
	cfg        Config
	store      assist.Store
	controller Controller
	logger     *slog.Logger
	server     *http.Server
}

// New creates a control surface server.
func New(cfg Config, store assist.Store, controller Controller, logger *slog.Logger) *Server {
	if cfg.Address == "" {
		cfg.Address = ":8081"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		cfg:        cfg,
		store:      store,
		controller: controller,
		logger:     logger.With("component", "httpapi"),
	}
}

// routes builds the request mux.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /", s.handleRoot)
	mux.HandleFunc("GET /activate-ai", s.authMiddleware(s.handleActivate))
	mux.HandleFunc("GET /deactivate-ai", s.authMiddleware(s.handleDeactivate))
	mux.HandleFunc("GET /assist-history/{sender}", s.authMiddleware(s.handleHistory))
	mux.HandleFunc("GET /clear-assist-history/{sender}", s.authMiddleware(s.handleClearHistory))

	return mux
}

// Start begins serving. Returns immediately; errors after bind are logged.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("control surface starting", "address", s.cfg.Address)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("control surface server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(ctx)
		s.logger.Info("control surface stopped")
	}
}

// ---------- Handlers ----------

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	// The mux treats "GET /" as a catch-all; keep it a strict liveness probe.
	if r.URL.Path != "/" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "hello world!"})
}

// handleActivate marks the owner unavailable, so the assistant answers.
func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.SetAvailable(r.Context(), false); err != nil {
		s.logger.Error("activating assistant", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to activate AI"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "AI is activated"})
}

// handleDeactivate marks the owner available again.
func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.SetAvailable(r.Context(), true); err != nil {
		s.logger.Error("deactivating assistant", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to deactivate AI"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "AI is deactivated"})
}

// handleHistory returns the stored turns as a JSON array; a sender with no
// record gets an empty array, not an error.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sender := r.PathValue("sender")

	transcript, err := s.store.Load(sender)
	if err != nil {
		s.logger.Error("loading transcript", "sender", sender, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to load assist history"})
		return
	}

	turns := []assist.Turn{}
	if transcript != nil {
		turns = transcript.Turns
	}
	writeJSON(w, http.StatusOK, turns)
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	sender := r.PathValue("sender")

	cleared, err := s.store.Clear(sender)
	if err != nil {
		s.logger.Error("clearing transcript", "sender", sender, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to clear assist history"})
		return
	}
	if !cleared {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "No assist history found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Assist history is cleared"})
}

// ---------- Middleware ----------

// authMiddleware validates the Bearer token if one is configured.
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AuthToken == "" {
			next(w, r)
			return
		}

		token := extractToken(r)
		if !compareTokens(token, s.cfg.AuthToken) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			return
		}
		next(w, r)
	}
}

// extractToken reads the Bearer token from the Authorization header.
func extractToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// compareTokens does a constant-time comparison.
func compareTokens(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
