package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSkill(tier SkillTier) Skill {
	return Skill{
		ID:          uuid.New().String(),
		Name:        "util_time",
		Version:     "1.0.0",
		Description: "returns the current time",
		Tier:        tier,
		Enabled:     true,
		Config:      "{}",
		Owner:       OwnerSystem,
	}
}

func TestCreateAndGetSkillByName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	skill := newTestSkill(TierInstruction)
	require.NoError(t, s.CreateSkill(ctx, skill))

	loaded, err := s.GetSkillByName(ctx, skill.Name)
	require.NoError(t, err)
	assert.Equal(t, skill.ID, loaded.ID)
	assert.Equal(t, TierInstruction, loaded.Tier)
}

func TestListSkills_FiltersEnabled(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	enabled := newTestSkill(TierStdio)
	require.NoError(t, s.CreateSkill(ctx, enabled))

	disabled := newTestSkill(TierHTTPService)
	disabled.Name = "disabled_skill"
	disabled.Enabled = false
	require.NoError(t, s.CreateSkill(ctx, disabled))

	all, err := s.ListSkills(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyEnabled, err := s.ListSkills(ctx, true)
	require.NoError(t, err)
	require.Len(t, onlyEnabled, 1)
	assert.Equal(t, enabled.ID, onlyEnabled[0].ID)
}

func TestSetSkillEnabled(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	skill := newTestSkill(TierStdio)
	require.NoError(t, s.CreateSkill(ctx, skill))

	require.NoError(t, s.SetSkillEnabled(ctx, skill.Name, false))

	loaded, err := s.GetSkillByName(ctx, skill.Name)
	require.NoError(t, err)
	assert.False(t, loaded.Enabled)
}

func TestSetSkillEnabled_NotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.SetSkillEnabled(context.Background(), "nonexistent", true)
	assert.ErrorContains(t, err, "skill not found")
}

func TestDeleteSkill(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	skill := newTestSkill(TierStdio)
	require.NoError(t, s.CreateSkill(ctx, skill))
	require.NoError(t, s.DeleteSkill(ctx, skill.Name))

	_, err := s.GetSkillByName(ctx, skill.Name)
	assert.ErrorContains(t, err, "skill not found")
}
