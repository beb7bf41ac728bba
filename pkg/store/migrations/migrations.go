// Package migrations holds the timestamp-versioned schema migrations for
// the Brain's embedded SQLite database (§3, §4.1).
package migrations

import (
	"database/sql"

	"github.com/baker-street/brain/pkg/store"
)

// All returns every migration in the order they should be considered;
// store.MigrationRunner sorts by Version before applying so order here is
// cosmetic but kept chronological for readability.
func All() []store.Migration {
	return []store.Migration{
		{
			Version:     20260101000001,
			Description: "create jobs table",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec(createJobsTable)
				return err
			},
			Down: func(tx *sql.Tx) error {
				_, err := tx.Exec(`DROP TABLE IF EXISTS jobs`)
				return err
			},
		},
		{
			Version:     20260101000002,
			Description: "create conversations, messages and memory_state tables",
			Up: func(tx *sql.Tx) error {
				for _, stmt := range []string{createConversationsTable, createMessagesTable, createMemoryStateTable} {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
			Down: func(tx *sql.Tx) error {
				for _, stmt := range []string{
					`DROP TABLE IF EXISTS memory_state`,
					`DROP TABLE IF EXISTS messages`,
					`DROP TABLE IF EXISTS conversations`,
				} {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			Version:     20260101000003,
			Description: "create observations and observation_log tables",
			Up: func(tx *sql.Tx) error {
				for _, stmt := range []string{createObservationsTable, createObservationLogTable} {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
			Down: func(tx *sql.Tx) error {
				for _, stmt := range []string{
					`DROP TABLE IF EXISTS observation_log`,
					`DROP TABLE IF EXISTS observations`,
				} {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			Version:     20260101000004,
			Description: "create skills and schedules tables",
			Up: func(tx *sql.Tx) error {
				for _, stmt := range []string{createSkillsTable, createSchedulesTable} {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
			Down: func(tx *sql.Tx) error {
				for _, stmt := range []string{
					`DROP TABLE IF EXISTS schedules`,
					`DROP TABLE IF EXISTS skills`,
				} {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			Version:     20260101000005,
			Description: "create handoff_notes table",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec(createHandoffNotesTable)
				return err
			},
			Down: func(tx *sql.Tx) error {
				_, err := tx.Exec(`DROP TABLE IF EXISTS handoff_notes`)
				return err
			},
		},
		{
			Version:     20260101000006,
			Description: "create door_policy and pairing_challenges tables",
			Up: func(tx *sql.Tx) error {
				for _, stmt := range []string{createDoorPolicyTable, createPairingChallengesTable} {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
			Down: func(tx *sql.Tx) error {
				for _, stmt := range []string{
					`DROP TABLE IF EXISTS pairing_challenges`,
					`DROP TABLE IF EXISTS door_policy`,
				} {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			Version:     20260101000007,
			Description: "add required indexes",
			Up: func(tx *sql.Tx) error {
				for _, stmt := range []string{
					createIndexMessagesConversationCreated,
					createIndexJobsCreatedAt,
					createIndexSchedulesEnabled,
					createIndexObservationLogVersion,
				} {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			Version:     20260101000008,
			Description: "create reflections table",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec(createReflectionsTable)
				return err
			},
			Down: func(tx *sql.Tx) error {
				_, err := tx.Exec(`DROP TABLE IF EXISTS reflections`)
				return err
			},
		},
	}
}
