// Package api is the HTTP surface of the brain (§6): chat, webhook job
// dispatch, conversation/job/skill/schedule CRUD, and the brain state
// endpoints the orchestrator polls during a transfer.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/baker-street/brain/pkg/agent"
	"github.com/baker-street/brain/pkg/apperr"
	"github.com/baker-street/brain/pkg/brain"
	"github.com/baker-street/brain/pkg/dispatcher"
	"github.com/baker-street/brain/pkg/logger"
	"github.com/baker-street/brain/pkg/scheduler"
	"github.com/baker-street/brain/pkg/store"
)

// Config configures a Server.
type Config struct {
	AuthToken   string
	AgentName   string
	CORSOrigins []string
	StartedAt   time.Time
	MCPRegistry *RegistryProxy
	Usage       *UsageTracker
}

// Server wires the HTTP surface to the brain's collaborators (§6).
type Server struct {
	router     *mux.Router
	store      *store.Store
	agent      *agent.Agent
	dispatcher *dispatcher.Dispatcher
	scheduler  *scheduler.Scheduler
	brain      *brain.Brain
	version    string
	cfg        Config
}

// New constructs a Server and wires its routes (§6).
func New(st *store.Store, ag *agent.Agent, d *dispatcher.Dispatcher, sch *scheduler.Scheduler, br *brain.Brain, version string, cfg Config) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		store:      st,
		agent:      ag,
		dispatcher: d,
		scheduler:  sch,
		brain:      br,
		version:    version,
		cfg:        cfg,
	}
	s.setupRoutes()
	return s
}

// Handler returns the root http.Handler, for use with an http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/ping", s.handlePing).Methods(http.MethodGet)
	s.router.HandleFunc("/brain/state", s.handleBrainState).Methods(http.MethodGet)
	s.router.HandleFunc("/webhook", s.handleWebhook).Methods(http.MethodPost)
	s.router.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
	s.router.HandleFunc("/chat/stream", s.handleChatStream).Methods(http.MethodPost)
	s.router.HandleFunc("/conversations", s.handleListConversations).Methods(http.MethodGet)
	s.router.HandleFunc("/conversations/{id}/messages", s.handleGetConversationMessages).Methods(http.MethodGet)
	s.router.HandleFunc("/jobs", s.handleListJobs).Methods(http.MethodGet)
	s.router.HandleFunc("/jobs/{id}/status", s.handleJobStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/skills", s.handleListSkills).Methods(http.MethodGet)
	s.router.HandleFunc("/skills", s.handleCreateSkill).Methods(http.MethodPost)
	s.router.HandleFunc("/skills/{name}", s.handleUpdateSkill).Methods(http.MethodPut)
	s.router.HandleFunc("/skills/{name}", s.handleDeleteSkill).Methods(http.MethodDelete)
	s.router.HandleFunc("/schedules", s.handleListSchedules).Methods(http.MethodGet)
	s.router.HandleFunc("/schedules", s.handleCreateSchedule).Methods(http.MethodPost)
	s.router.HandleFunc("/schedules/{id}", s.handleGetSchedule).Methods(http.MethodGet)
	s.router.HandleFunc("/schedules/{id}", s.handleUpdateSchedule).Methods(http.MethodPut)
	s.router.HandleFunc("/schedules/{id}", s.handleDeleteSchedule).Methods(http.MethodDelete)
	s.router.HandleFunc("/mcps/registry", s.handleMCPRegistry).Methods(http.MethodGet)
	s.router.HandleFunc("/usage", s.handleUsage).Methods(http.MethodGet)

	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
	s.router.Use(s.authMiddleware)
	s.router.Use(s.drainingMiddleware)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.G(r.Context()).WithFields(map[string]any{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rw.status,
			"duration": time.Since(start),
		}).Info("http request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// corsMiddleware applies the allowed-origin list from CORS_ORIGINS; an
// empty list is dev-permissive (§6).
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", originOrWildcard(origin, s.cfg.CORSOrigins))
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	if len(s.cfg.CORSOrigins) == 0 {
		return true
	}
	for _, allowed := range s.cfg.CORSOrigins {
		if allowed == origin {
			return true
		}
	}
	return false
}

func originOrWildcard(origin string, allowed []string) string {
	if len(allowed) == 0 {
		return "*"
	}
	return origin
}

// authMiddleware enforces Bearer auth with a constant-time comparison
// when AUTH_TOKEN is configured; /ping and /brain/state bypass it (§6).
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AuthToken == "" || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if r.URL.Path == "/ping" || r.URL.Path == "/brain/state" {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == header || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// drainingMiddleware rejects every non-health, non-state request with 503
// while the brain is draining or shutting down (§4.11, §6).
func (s *Server) drainingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ping" || r.URL.Path == "/brain/state" || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if s.brain != nil && !s.brain.IsAcceptingRequests() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"error": "service draining",
				"state": string(s.brain.State()),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	if s.brain != nil && !s.brain.IsReady() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service": s.cfg.AgentName,
		"version": s.version,
	})
}

func (s *Server) handleBrainState(w http.ResponseWriter, r *http.Request) {
	state := "active"
	if s.brain != nil {
		state = string(s.brain.State())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":   state,
		"version": s.version,
		"uptime":  time.Since(s.cfg.StartedAt).Seconds(),
	})
}

func parseLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

// writeAppErr maps an error to its HTTP status using the apperr taxonomy
// when the error (or something it wraps) is a *apperr.Error, falling back
// to 500 for anything untyped.
func writeAppErr(w http.ResponseWriter, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		writeError(w, appErr.HTTPStatus(), appErr.Message)
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
