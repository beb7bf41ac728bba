package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/baker-street/brain/pkg/agent"
	"github.com/baker-street/brain/pkg/dispatcher"
	"github.com/baker-street/brain/pkg/logger"
	"github.com/baker-street/brain/pkg/scheduler"
	"github.com/baker-street/brain/pkg/store"
)

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
	Channel        string `json:"channel"`
}

// handleChat implements POST /chat (§6 scenario 1).
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeError(w, http.StatusBadRequest, "missing message")
		return
	}

	result, err := s.agent.Chat(r.Context(), req.Message, agent.ChatOptions{ConversationID: req.ConversationID, Channel: req.Channel})
	if err != nil {
		writeAppErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"response":       result.Response,
		"conversationId": result.ConversationID,
		"jobIds":         result.JobIDs,
		"toolCallCount":  result.ToolCallCount,
	})
}

// handleChatStream implements POST /chat/stream: one SSE "data:" line per
// agent-loop event (§4.8, §6).
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeError(w, http.StatusBadRequest, "missing message")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	s.agent.ChatStream(r.Context(), req.Message, agent.ChatOptions{ConversationID: req.ConversationID, Channel: req.Channel}, func(evt agent.StreamEvent) {
		payload, err := json.Marshal(evt)
		if err != nil {
			logger.G(r.Context()).WithError(err).Error("failed to marshal stream event")
			return
		}
		_, _ = w.Write([]byte("data: "))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n\n"))
		flusher.Flush()
	})
}

type webhookRequest struct {
	Type    string         `json:"type"`
	Job     string         `json:"job"`
	Command string         `json:"command"`
	URL     string         `json:"url"`
	Method  string         `json:"method"`
	Vars    map[string]any `json:"vars"`
}

// handleWebhook implements POST /webhook: an external caller dispatches a
// job without going through the agent loop (§6).
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	jobType := store.JobType(req.Type)
	var input string
	switch jobType {
	case store.JobTypeAgent:
		input = req.Job
	case store.JobTypeCommand:
		input = encodeOrEmpty(map[string]any{"command": req.Command})
	case store.JobTypeHTTP:
		input = encodeOrEmpty(map[string]any{"method": req.Method, "url": req.URL, "vars": req.Vars})
	default:
		writeError(w, http.StatusBadRequest, "invalid job type")
		return
	}

	dispatch, err := s.dispatcher.Dispatch(r.Context(), dispatcher.Params{Type: jobType, Source: "webhook", Input: input})
	if err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"jobId": dispatch.JobID, "status": "dispatched"})
}

func encodeOrEmpty(v map[string]any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// handleListConversations implements GET /conversations?search=&sortBy=
// (supplemented search/sort, additive to the plain listing).
func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.store.ListConversations(r.Context(), store.ConversationQuery{
		Search: r.URL.Query().Get("search"),
		SortBy: r.URL.Query().Get("sortBy"),
		Limit:  parseLimit(r, 50),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

// handleGetConversationMessages implements GET /conversations/:id/messages.
func (s *Server) handleGetConversationMessages(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	conv, err := s.store.GetConversation(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	messages, err := s.store.ListMessages(r.Context(), id, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversation": conv, "messages": messages})
}

// handleListJobs implements GET /jobs[?status=&type=&limit=].
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	status := store.JobStatus(r.URL.Query().Get("status"))
	jobType := store.JobType(r.URL.Query().Get("type"))
	jobs, err := s.store.ListJobs(r.Context(), status, jobType, parseLimit(r, 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// handleJobStatus implements GET /jobs/:id/status.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleListSkills implements GET /skills.
func (s *Server) handleListSkills(w http.ResponseWriter, r *http.Request) {
	skills, err := s.store.ListSkills(r.Context(), false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, skills)
}

type skillRequest struct {
	Name               string  `json:"name"`
	Version            string  `json:"version"`
	Description        string  `json:"description"`
	Tier               int     `json:"tier"`
	Transport          *string `json:"transport,omitempty"`
	Config             string  `json:"config"`
	StdioCommand       *string `json:"stdioCommand,omitempty"`
	StdioArgs          *string `json:"stdioArgs,omitempty"`
	HTTPURL            *string `json:"httpUrl,omitempty"`
	InstructionPath    *string `json:"instructionPath,omitempty"`
	InstructionContent *string `json:"instructionContent,omitempty"`
	Enabled            bool    `json:"enabled"`
}

// handleCreateSkill implements POST /skills.
func (s *Server) handleCreateSkill(w http.ResponseWriter, r *http.Request) {
	var req skillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid skill definition")
		return
	}

	skill := store.Skill{
		ID:                 uuid.NewString(),
		Name:               req.Name,
		Version:            req.Version,
		Description:        req.Description,
		Tier:               store.SkillTier(req.Tier),
		Transport:          req.Transport,
		Enabled:            req.Enabled,
		Config:             req.Config,
		StdioCommand:       req.StdioCommand,
		StdioArgs:          req.StdioArgs,
		HTTPURL:            req.HTTPURL,
		InstructionPath:    req.InstructionPath,
		InstructionContent: req.InstructionContent,
		Owner:              store.OwnerSystem,
	}
	if err := s.store.CreateSkill(r.Context(), skill); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, skill)
}

// handleUpdateSkill implements PUT /skills/:name, currently limited to
// flipping the enabled flag (§3).
func (s *Server) handleUpdateSkill(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.store.SetSkillEnabled(r.Context(), name, req.Enabled); err != nil {
		writeError(w, http.StatusNotFound, "skill not found")
		return
	}
	skill, err := s.store.GetSkillByName(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusNotFound, "skill not found")
		return
	}
	writeJSON(w, http.StatusOK, skill)
}

// handleDeleteSkill implements DELETE /skills/:name.
func (s *Server) handleDeleteSkill(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := s.store.DeleteSkill(r.Context(), name); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListSchedules implements GET /schedules.
func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	scheds, err := s.scheduler.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, scheds)
}

// handleGetSchedule implements GET /schedules/:id.
func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	sched, err := s.scheduler.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusNotFound, "schedule not found")
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

type scheduleRequest struct {
	Name     string        `json:"name"`
	Schedule string        `json:"schedule"`
	Type     store.JobType `json:"type"`
	Config   string        `json:"config"`
	Enabled  bool          `json:"enabled"`
}

// handleCreateSchedule implements POST /schedules.
func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || req.Schedule == "" {
		writeError(w, http.StatusBadRequest, "invalid schedule definition")
		return
	}
	sched, err := s.scheduler.Create(r.Context(), schedulerCreateParams(req))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sched)
}

// handleUpdateSchedule implements PUT /schedules/:id.
func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid schedule definition")
		return
	}
	sched, err := s.scheduler.Update(r.Context(), id, req.Name, req.Schedule, req.Type, req.Config, req.Enabled)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

func schedulerCreateParams(req scheduleRequest) scheduler.CreateParams {
	return scheduler.CreateParams{
		Name:     req.Name,
		CronExpr: req.Schedule,
		Type:     req.Type,
		Config:   req.Config,
		Enabled:  req.Enabled,
	}
}

// handleDeleteSchedule implements DELETE /schedules/:id.
func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	if err := s.scheduler.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
