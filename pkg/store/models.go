package store

import "time"

// JobStatus is the lifecycle status of a dispatched job (§3).
type JobStatus string

const (
	JobDispatched JobStatus = "dispatched"
	JobReceived   JobStatus = "received"
	JobRunning    JobStatus = "running"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// jobStatusRank gives the monotonic ordering used to reject status
// updates that would demote a job (§3 invariant, §4.9 status tracker).
var jobStatusRank = map[JobStatus]int{
	JobDispatched: 0,
	JobReceived:   1,
	JobRunning:    2,
	JobCompleted:  3,
	JobFailed:     3,
}

// IsTerminal reports whether a status is a terminal state.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// JobType enumerates the kinds of work the dispatcher can hand to a worker.
type JobType string

const (
	JobTypeAgent   JobType = "agent"
	JobTypeCommand JobType = "command"
	JobTypeHTTP    JobType = "http"
)

// Job is the persisted record of a unit of dispatched work.
type Job struct {
	JobID      string     `db:"job_id" json:"jobId"`
	Type       JobType    `db:"type" json:"type"`
	Source     string     `db:"source" json:"source"`
	Input      string     `db:"input" json:"input"`
	Status     JobStatus  `db:"status" json:"status"`
	WorkerID   *string    `db:"worker_id" json:"workerId,omitempty"`
	Result     *string    `db:"result" json:"result,omitempty"`
	Error      *string    `db:"error" json:"error,omitempty"`
	DurationMs *int64     `db:"duration_ms" json:"durationMs,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updatedAt"`
}

// Conversation is an ordered sequence of messages sharing context (§3).
type Conversation struct {
	ID        string    `db:"id" json:"id"`
	Title     *string   `db:"title" json:"title,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// MessageRole enumerates the originator of a message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// Message is a single turn in a conversation.
type Message struct {
	ID             string      `db:"id" json:"id"`
	ConversationID string      `db:"conversation_id" json:"conversationId"`
	Role           MessageRole `db:"role" json:"role"`
	Content        string      `db:"content" json:"content"`
	CreatedAt      time.Time   `db:"created_at" json:"createdAt"`
}

// MemoryState tracks observation/reflection bookkeeping for a conversation,
// guarded by optimistic concurrency (§3).
type MemoryState struct {
	ConversationID         string     `db:"conversation_id" json:"conversationId"`
	ObservedCursorMessageID *string   `db:"observed_cursor_message_id" json:"observedCursorMessageId,omitempty"`
	UnobservedTokenCount   int        `db:"unobserved_token_count" json:"unobservedTokenCount"`
	ObservationTokenCount  int        `db:"observation_token_count" json:"observationTokenCount"`
	LastObserverRun        *time.Time `db:"last_observer_run" json:"lastObserverRun,omitempty"`
	LastReflectorRun       *time.Time `db:"last_reflector_run" json:"lastReflectorRun,omitempty"`
	LockVersion            int        `db:"lock_version" json:"lockVersion"`
}

// Observation is a summary of a contiguous message range (§3).
type Observation struct {
	ID                string    `db:"id" json:"id"`
	ConversationID    string    `db:"conversation_id" json:"conversationId"`
	CreatedAt         time.Time `db:"created_at" json:"createdAt"`
	Text              string    `db:"text" json:"text"`
	TokenCount        int       `db:"token_count" json:"tokenCount"`
	Tags              *string   `db:"tags" json:"tags,omitempty"`
	SourceMessageFrom string    `db:"source_message_from" json:"sourceMessageFrom"`
	SourceMessageTo   string    `db:"source_message_to" json:"sourceMessageTo"`
}

// ObservationLogVersion is one append-only version of the active
// conversation-context summary block (§3).
type ObservationLogVersion struct {
	ConversationID string    `db:"conversation_id" json:"conversationId"`
	Version        int       `db:"version" json:"version"`
	Text           string    `db:"text" json:"text"`
	TokenCount     int       `db:"token_count" json:"tokenCount"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// Reflection records one reflector pass that compressed the active
// observation log into a smaller one (§4.7).
type Reflection struct {
	ID              string    `db:"id" json:"id"`
	ConversationID  string    `db:"conversation_id" json:"conversationId"`
	ReplacedVersion int       `db:"replaced_version" json:"replacedVersion"`
	NewVersion      int       `db:"new_version" json:"newVersion"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
}

// SkillTier classifies a skill's transport requirements (§3).
type SkillTier int

const (
	TierInstruction SkillTier = 0
	TierStdio       SkillTier = 1
	TierHTTPSidecar SkillTier = 2
	TierHTTPService SkillTier = 3
)

// SkillOwner attributes a skill to the party that registered it.
type SkillOwner string

const (
	OwnerSystem    SkillOwner = "system"
	OwnerAgent     SkillOwner = "agent"
	OwnerExtension SkillOwner = "extension"
)

// Skill is the persisted metadata row for a registered tool capability (§3).
type Skill struct {
	ID                 string     `db:"id" json:"id"`
	Name               string     `db:"name" json:"name"`
	Version            string     `db:"version" json:"version"`
	Description        string     `db:"description" json:"description"`
	Tier               SkillTier  `db:"tier" json:"tier"`
	Transport          *string    `db:"transport" json:"transport,omitempty"`
	Enabled            bool       `db:"enabled" json:"enabled"`
	Config             string     `db:"config" json:"config"`
	StdioCommand       *string    `db:"stdio_command" json:"stdioCommand,omitempty"`
	StdioArgs          *string    `db:"stdio_args" json:"stdioArgs,omitempty"`
	HTTPURL            *string    `db:"http_url" json:"httpUrl,omitempty"`
	InstructionPath    *string    `db:"instruction_path" json:"instructionPath,omitempty"`
	InstructionContent *string    `db:"instruction_content" json:"instructionContent,omitempty"`
	Owner              SkillOwner `db:"owner" json:"owner"`
	Tags               *string    `db:"tags" json:"tags,omitempty"`
}

// Schedule is a persisted cron-like trigger (§3).
type Schedule struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	ScheduleCron string  `db:"schedule" json:"schedule"`
	Type       JobType   `db:"type" json:"type"`
	Config     string    `db:"config" json:"config"`
	Enabled    bool      `db:"enabled" json:"enabled"`
	LastRunAt  *time.Time `db:"last_run_at" json:"lastRunAt,omitempty"`
	LastStatus *string   `db:"last_status" json:"lastStatus,omitempty"`
	LastOutput *string   `db:"last_output" json:"lastOutput,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time `db:"updated_at" json:"updatedAt"`
}

// HandoffNote is the durable record an outgoing brain writes so an
// incoming brain can resume state during a zero-downtime transfer (§3).
type HandoffNote struct {
	ID                  string    `db:"id" json:"id"`
	FromVersion         string    `db:"from_version" json:"fromVersion"`
	ToVersion           *string   `db:"to_version" json:"toVersion,omitempty"`
	ActiveConversations string    `db:"active_conversations" json:"activeConversations"`
	PendingSchedules    string    `db:"pending_schedules" json:"pendingSchedules"`
	AgentNotes          *string   `db:"agent_notes" json:"agentNotes,omitempty"`
	CreatedAt           time.Time `db:"created_at" json:"createdAt"`
}

// DoorPolicyStatus is the per-sender ingress state (§3, §4.12).
type DoorPolicyStatus string

const (
	DoorPending  DoorPolicyStatus = "pending"
	DoorApproved DoorPolicyStatus = "approved"
	DoorBlocked  DoorPolicyStatus = "blocked"
)

// DoorPolicyEntry is the gateway's per-sender pairing state.
type DoorPolicyEntry struct {
	Platform  string           `db:"platform" json:"platform"`
	SenderID  string           `db:"sender_id" json:"senderId"`
	Status    DoorPolicyStatus `db:"status" json:"status"`
	PairedAt  *time.Time       `db:"paired_at" json:"pairedAt,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"createdAt"`
}

// PairingChallenge is a short-lived pairing code (§3, §4.12).
type PairingChallenge struct {
	Code      string    `db:"code" json:"code"`
	Platform  *string   `db:"platform" json:"platform,omitempty"`
	ExpiresAt time.Time `db:"expires_at" json:"expiresAt"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
