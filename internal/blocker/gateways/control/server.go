// Package control exposes the loopback HTTP API that the panel and
// command line clients drive the daemon with.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dzli1/blocking/internal/blocker/common/log"
	"github.com/dzli1/blocking/internal/blocker/domain"
	"github.com/dzli1/blocking/internal/blocker/repos/journal"
)

const (
	readTimeout   = 5 * time.Second
	writeTimeout  = 10 * time.Second
	idleTimeout   = 60 * time.Second
	shutdownGrace = 5 * time.Second

	defaultExceptionMinutes = 15
	defaultJournalLimit     = 50
	maxJournalLimit         = 500
)

// Commander is the slice of the engine the API drives.
type Commander interface {
	Status() domain.Status
	AddSite(raw string) (domain.Status, error)
	RemoveSite(raw string) (domain.Status, error)
	GrantException(raw string, minutes int) (domain.Status, error)
	RevokeException(raw string) (domain.Status, error)
	Toggle() (domain.Status, error)
}

// JournalReader is the slice of the journal the API reads.
type JournalReader interface {
	Recent(n int) ([]journal.Event, error)
}

// Options wires the server.
type Options struct {
	Addr    string
	Engine  Commander
	Journal JournalReader // optional, /api/journal serves empty without it
	Logger  log.Logger
}

// Server serves the control API on a loopback address. Authentication is
// the bind address: only local processes can reach it.
type Server struct {
	addr    string
	engine  Commander
	journal JournalReader
	logger  log.Logger
}

// New validates the wiring and returns a server.
func New(opts Options) (*Server, error) {
	if opts.Engine == nil {
		return nil, errors.New("control: engine is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	return &Server{
		addr:    opts.Addr,
		engine:  opts.Engine,
		journal: opts.Journal,
		logger:  opts.Logger,
	}, nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn(map[string]any{"error": err.Error()}, "control api shutdown")
		}
	}()

	s.logger.Info(map[string]any{"addr": s.addr}, "control api listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler returns the API routes. Exposed so tests can drive the mux
// without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/ping", s.route(http.MethodGet, s.handlePing))
	mux.HandleFunc("/api/status", s.route(http.MethodGet, s.handleStatus))
	mux.HandleFunc("/api/journal", s.route(http.MethodGet, s.handleJournal))
	mux.HandleFunc("/api/add_site", s.route(http.MethodPost, s.handleAddSite))
	mux.HandleFunc("/api/remove_site", s.route(http.MethodPost, s.handleRemoveSite))
	mux.HandleFunc("/api/add_exception", s.route(http.MethodPost, s.handleAddException))
	mux.HandleFunc("/api/remove_exception", s.route(http.MethodPost, s.handleRemoveException))
	mux.HandleFunc("/api/toggle", s.route(http.MethodPost, s.handleToggle))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeCORS(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})
	return mux
}

// route applies CORS headers, answers preflight, and enforces the method.
func (s *Server) route(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeCORS(w)
		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusNoContent)
		case method:
			h(w, r)
		default:
			w.Header().Set("Allow", method)
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		}
	}
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeJSON(w, http.StatusOK, map[string]any{"events": []journal.Event{}})
		return
	}
	limit := defaultJournalLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxJournalLimit)
	}
	events, err := s.journal.Recent(limit)
	if err != nil {
		s.logger.Error(map[string]any{"error": err.Error()}, "journal read failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "journal unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleAddSite(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	st, err := s.engine.AddSite(req.Site)
	s.respond(w, st, err, "site blocked")
}

func (s *Server) handleRemoveSite(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	st, err := s.engine.RemoveSite(req.Site)
	s.respond(w, st, err, "site unblocked")
}

func (s *Server) handleAddException(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	minutes := defaultExceptionMinutes
	if req.Minutes != nil {
		minutes = *req.Minutes
	}
	st, err := s.engine.GrantException(req.Site, minutes)
	s.respond(w, st, err, fmt.Sprintf("exception granted for %d minutes", minutes))
}

func (s *Server) handleRemoveException(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	st, err := s.engine.RevokeException(req.Site)
	s.respond(w, st, err, "exception revoked")
}

func (s *Server) handleToggle(w http.ResponseWriter, _ *http.Request) {
	st, err := s.engine.Toggle()
	msg := "blocking disabled"
	if st.Enabled {
		msg = "blocking enabled"
	}
	s.respond(w, st, err, msg)
}

// commandRequest is the body of every mutating endpoint. Minutes is a
// pointer so an absent field defaults while an explicit zero still
// reaches validation.
type commandRequest struct {
	Site    string `json:"site"`
	Minutes *int   `json:"minutes"`
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request) (commandRequest, bool) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return req, false
	}
	return req, true
}

// commandResponse carries a human message plus the full status snapshot.
// Warning is set when the command stuck in memory but the hosts table or
// the state document lagged behind.
type commandResponse struct {
	Message string `json:"message"`
	domain.Status
	Warning string `json:"warning,omitempty"`
}

func (s *Server) respond(w http.ResponseWriter, st domain.Status, err error, msg string) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, commandResponse{Message: msg, Status: st})
	case errors.Is(err, domain.ErrInvalidSite) || errors.Is(err, domain.ErrInvalidDuration):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusOK, commandResponse{Message: msg, Status: st, Warning: err.Error()})
	}
}

func writeCORS(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
