// Package api exposes the coordination core over a small REST surface for
// the management CLI and dashboards.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/waggle-io/waggle/internal/analytics"
	"github.com/waggle-io/waggle/internal/logbuf"
	"github.com/waggle-io/waggle/internal/ticket"
	"github.com/waggle-io/waggle/internal/workflow"
	"github.com/waggle-io/waggle/pkg/protocol"
)

// Workflow is the mutation surface the API needs from the orchestrator.
type Workflow interface {
	CreateTicket(ctx context.Context, req workflow.CreateRequest) (*protocol.Ticket, error)
	TransitionStatus(ctx context.Context, ticketID string, next protocol.TicketStatus, actor string) (*protocol.Ticket, error)
	Assign(ctx context.Context, ticketID, target, assigner string) (*protocol.Ticket, error)
	Block(ctx context.Context, ticketID, reason string, kind workflow.EscalationKind, reporter, assigned string) (*protocol.Ticket, error)
	Get(ticketID string) (*protocol.Ticket, error)
}

// Analytics is the read surface the API needs.
type Analytics interface {
	BacklogSummary() (*analytics.BacklogSummary, error)
	AgentWorkload(agentID string) (*analytics.AgentWorkload, error)
	UpcomingDeadlines(daysAhead int) ([]*protocol.Ticket, error)
}

// LogQuerier abstracts log entry querying to avoid coupling to logbuf
// directly.
type LogQuerier interface {
	Tail(since time.Time, minLevel slog.Level, limit int) []logbuf.Entry
}

// Config holds API server configuration.
type Config struct {
	Host string
	Port int
	Key  string // API key for Bearer auth
}

// Server is the waggled REST API server.
type Server struct {
	wf     Workflow
	stats  Analytics
	lister interface {
		List(ticket.Filter) ([]*protocol.Ticket, error)
	}
	cfg    Config
	logger *slog.Logger
	logs   LogQuerier
	srv    *http.Server
}

// NewServer creates a new API server. logs may be nil.
func NewServer(wf Workflow, stats Analytics, store ticket.Store, cfg Config, logger *slog.Logger, logs LogQuerier) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		wf:     wf,
		stats:  stats,
		lister: store,
		cfg:    cfg,
		logger: logger,
		logs:   logs,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/tickets", s.requireAuth(s.handleCreateTicket))
	mux.HandleFunc("GET /api/tickets", s.requireAuth(s.handleListTickets))
	mux.HandleFunc("GET /api/tickets/{id}", s.requireAuth(s.handleGetTicket))
	mux.HandleFunc("POST /api/tickets/{id}/status", s.requireAuth(s.handleTransition))
	mux.HandleFunc("POST /api/tickets/{id}/assignee", s.requireAuth(s.handleAssign))
	mux.HandleFunc("POST /api/tickets/{id}/block", s.requireAuth(s.handleBlock))
	mux.HandleFunc("GET /api/backlog", s.requireAuth(s.handleBacklog))
	mux.HandleFunc("GET /api/agents/{id}/workload", s.requireAuth(s.handleWorkload))
	mux.HandleFunc("GET /api/deadlines", s.requireAuth(s.handleDeadlines))
	mux.HandleFunc("GET /api/logs", s.requireAuth(s.handleGetLogs))

	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.corsMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start begins listening. Blocks until context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutCtx)
	}()

	s.logger.Info("api server starting", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// --- Middleware ---

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Key == "" {
			next(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.cfg.Key {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createTicketRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Type        string     `json:"type,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	CreatedBy   string     `json:"created_by"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

func (s *Server) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var req createTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	t, err := s.wf.CreateTicket(r.Context(), workflow.CreateRequest{
		Title:       req.Title,
		Description: req.Description,
		Type:        protocol.TicketType(req.Type),
		Priority:    protocol.TicketPriority(req.Priority),
		CreatedBy:   req.CreatedBy,
		DueDate:     req.DueDate,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleListTickets(w http.ResponseWriter, r *http.Request) {
	filter := ticket.Filter{}
	if status := r.URL.Query().Get("status"); status != "" {
		ts := protocol.TicketStatus(status)
		filter.Status = &ts
	}
	if agent := r.URL.Query().Get("assigned_to"); agent != "" {
		filter.AssignedTo = agent
	}
	if creator := r.URL.Query().Get("created_by"); creator != "" {
		filter.CreatedBy = creator
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = n
		}
	}

	tickets, err := s.lister.List(filter)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if tickets == nil {
		tickets = []*protocol.Ticket{}
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (s *Server) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	t, err := s.wf.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type transitionRequest struct {
	Status string `json:"status"`
	Actor  string `json:"actor"`
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	t, err := s.wf.TransitionStatus(r.Context(), r.PathValue("id"), protocol.TicketStatus(req.Status), req.Actor)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type assignRequest struct {
	Assignee string `json:"assignee"` // empty unassigns
	Actor    string `json:"actor"`
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	t, err := s.wf.Assign(r.Context(), r.PathValue("id"), req.Assignee, req.Actor)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type blockRequest struct {
	Reason     string `json:"reason"`
	Kind       string `json:"kind,omitempty"` // human (default) or supervisor
	Reporter   string `json:"reporter"`
	AssignedTo string `json:"assigned_to,omitempty"`
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	kind := workflow.EscalationKind(req.Kind)
	if kind == "" {
		kind = workflow.EscalateHuman
	}

	t, err := s.wf.Block(r.Context(), r.PathValue("id"), req.Reason, kind, req.Reporter, req.AssignedTo)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleBacklog(w http.ResponseWriter, _ *http.Request) {
	sum, err := s.stats.BacklogSummary()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleWorkload(w http.ResponseWriter, r *http.Request) {
	wl, err := s.stats.AgentWorkload(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, wl)
}

func (s *Server) handleDeadlines(w http.ResponseWriter, r *http.Request) {
	days := 7
	if d := r.URL.Query().Get("days"); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "days must be a non-negative integer"})
			return
		}
		days = n
	}

	tickets, err := s.stats.UpcomingDeadlines(days)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if tickets == nil {
		tickets = []*protocol.Ticket{}
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeJSON(w, http.StatusOK, []logbuf.Entry{})
		return
	}

	limit := 200
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	minLevel := slog.LevelDebug
	if lvl := r.URL.Query().Get("level"); lvl != "" {
		switch strings.ToLower(lvl) {
		case "info":
			minLevel = slog.LevelInfo
		case "warn":
			minLevel = slog.LevelWarn
		case "error":
			minLevel = slog.LevelError
		}
	}

	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			since = time.UnixMilli(ms)
		}
	}

	entries := s.logs.Tail(since, minLevel, limit)
	if entries == nil {
		entries = []logbuf.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- Helpers ---

// writeError maps workflow error kinds to HTTP statuses: bad input 400,
// permission 403, missing ticket 404, illegal transition 409.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var verr *workflow.ValidationError
	var nerr *workflow.NotFoundError
	var terr *workflow.TransitionError

	switch {
	case errors.As(err, &verr):
		status := http.StatusBadRequest
		if verr.TicketID != "" {
			// Authorization failure on an existing ticket.
			status = http.StatusForbidden
		}
		writeJSON(w, status, map[string]string{"error": verr.Error()})
	case errors.As(err, &nerr):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": nerr.Error()})
	case errors.As(err, &terr):
		writeJSON(w, http.StatusConflict, map[string]string{"error": terr.Error()})
	default:
		s.logger.Error("api request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
