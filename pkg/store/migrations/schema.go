package migrations

const createJobsTable = `
CREATE TABLE IF NOT EXISTS jobs (
	job_id      TEXT PRIMARY KEY,
	type        TEXT NOT NULL,
	source      TEXT NOT NULL DEFAULT '',
	input       TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	worker_id   TEXT,
	result      TEXT,
	error       TEXT,
	duration_ms INTEGER,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
)`

const createConversationsTable = `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	title      TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`

const createMessagesTable = `
CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	created_at      TEXT NOT NULL
)`

const createMemoryStateTable = `
CREATE TABLE IF NOT EXISTS memory_state (
	conversation_id            TEXT PRIMARY KEY REFERENCES conversations(id) ON DELETE CASCADE,
	observed_cursor_message_id TEXT,
	unobserved_token_count     INTEGER NOT NULL DEFAULT 0,
	observation_token_count    INTEGER NOT NULL DEFAULT 0,
	last_observer_run          TEXT,
	last_reflector_run         TEXT,
	lock_version               INTEGER NOT NULL DEFAULT 0
)`

const createObservationsTable = `
CREATE TABLE IF NOT EXISTS observations (
	id                  TEXT PRIMARY KEY,
	conversation_id     TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	created_at          TEXT NOT NULL,
	text                TEXT NOT NULL,
	token_count         INTEGER NOT NULL,
	tags                TEXT,
	source_message_from TEXT,
	source_message_to   TEXT
)`

const createObservationLogTable = `
CREATE TABLE IF NOT EXISTS observation_log (
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	version         INTEGER NOT NULL,
	text            TEXT NOT NULL,
	token_count     INTEGER NOT NULL,
	created_at      TEXT NOT NULL,
	PRIMARY KEY (conversation_id, version)
)`

const createSkillsTable = `
CREATE TABLE IF NOT EXISTS skills (
	id                  TEXT PRIMARY KEY,
	name                TEXT NOT NULL,
	version             TEXT NOT NULL DEFAULT '',
	description         TEXT NOT NULL DEFAULT '',
	tier                INTEGER NOT NULL,
	transport           TEXT,
	enabled             INTEGER NOT NULL DEFAULT 1,
	config              TEXT NOT NULL DEFAULT '{}',
	stdio_command       TEXT,
	stdio_args          TEXT,
	http_url            TEXT,
	instruction_path    TEXT,
	instruction_content TEXT,
	owner               TEXT NOT NULL DEFAULT 'system',
	tags                TEXT
)`

const createSchedulesTable = `
CREATE TABLE IF NOT EXISTS schedules (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	schedule   TEXT NOT NULL,
	type       TEXT NOT NULL,
	config     TEXT NOT NULL DEFAULT '{}',
	enabled    INTEGER NOT NULL DEFAULT 1,
	last_run_at     TEXT,
	last_status     TEXT,
	last_output     TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`

const createHandoffNotesTable = `
CREATE TABLE IF NOT EXISTS handoff_notes (
	id                   TEXT PRIMARY KEY,
	from_version         TEXT NOT NULL,
	to_version           TEXT,
	active_conversations TEXT NOT NULL DEFAULT '[]',
	pending_schedules    TEXT NOT NULL DEFAULT '[]',
	agent_notes          TEXT,
	created_at           TEXT NOT NULL
)`

const createDoorPolicyTable = `
CREATE TABLE IF NOT EXISTS door_policy (
	platform   TEXT NOT NULL,
	sender_id  TEXT NOT NULL,
	status     TEXT NOT NULL,
	paired_at  TEXT,
	created_at TEXT NOT NULL,
	PRIMARY KEY (platform, sender_id)
)`

const createPairingChallengesTable = `
CREATE TABLE IF NOT EXISTS pairing_challenges (
	code       TEXT PRIMARY KEY,
	platform   TEXT,
	expires_at TEXT NOT NULL,
	created_at TEXT NOT NULL
)`

const createReflectionsTable = `
CREATE TABLE IF NOT EXISTS reflections (
	id               TEXT PRIMARY KEY,
	conversation_id  TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	replaced_version INTEGER NOT NULL,
	new_version      INTEGER NOT NULL,
	created_at       TEXT NOT NULL
)`

const createIndexMessagesConversationCreated = `
CREATE INDEX IF NOT EXISTS idx_messages_conversation_created ON messages(conversation_id, created_at)`

const createIndexJobsCreatedAt = `
CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at DESC)`

const createIndexSchedulesEnabled = `
CREATE INDEX IF NOT EXISTS idx_schedules_enabled ON schedules(enabled)`

const createIndexObservationLogVersion = `
CREATE INDEX IF NOT EXISTS idx_observation_log_version ON observation_log(conversation_id, version DESC)`
