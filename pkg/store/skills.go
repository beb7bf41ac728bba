package store

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// CreateSkill persists a new skill registration row (§4.5).
func (s *Store) CreateSkill(ctx context.Context, skill Skill) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO skills (
			id, name, version, description, tier, transport, enabled, config,
			stdio_command, stdio_args, http_url, instruction_path, instruction_content, owner, tags
		) VALUES (
			:id, :name, :version, :description, :tier, :transport, :enabled, :config,
			:stdio_command, :stdio_args, :http_url, :instruction_path, :instruction_content, :owner, :tags
		)
	`, skill)
	return errors.Wrap(err, "failed to insert skill")
}

// GetSkillByName loads a skill by its registered name.
func (s *Store) GetSkillByName(ctx context.Context, name string) (Skill, error) {
	var skill Skill
	err := s.db.GetContext(ctx, &skill, `SELECT * FROM skills WHERE name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return Skill{}, errors.Errorf("skill not found: %s", name)
	}
	return skill, errors.Wrap(err, "failed to load skill")
}

// ListSkills returns every registered skill, optionally only the enabled ones.
func (s *Store) ListSkills(ctx context.Context, enabledOnly bool) ([]Skill, error) {
	var skills []Skill
	var err error
	if enabledOnly {
		err = s.db.SelectContext(ctx, &skills, `SELECT * FROM skills WHERE enabled = 1 ORDER BY tier ASC, name ASC`)
	} else {
		err = s.db.SelectContext(ctx, &skills, `SELECT * FROM skills ORDER BY tier ASC, name ASC`)
	}
	return skills, errors.Wrap(err, "failed to list skills")
}

// SetSkillEnabled toggles a skill's enabled flag.
func (s *Store) SetSkillEnabled(ctx context.Context, name string, enabled bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE skills SET enabled = ? WHERE name = ?`, enabled, name)
	if err != nil {
		return errors.Wrap(err, "failed to update skill")
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read rows affected")
	}
	if rows == 0 {
		return errors.Errorf("skill not found: %s", name)
	}
	return nil
}

// DeleteSkill removes a skill registration.
func (s *Store) DeleteSkill(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM skills WHERE name = ?`, name)
	return errors.Wrap(err, "failed to delete skill")
}
