package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baker-street/brain/pkg/router"
)

func TestUsageTracker_AccumulatesByModel(t *testing.T) {
	tracker := NewUsageTracker()

	inTok, outTok := 100, 50
	tracker.Record(router.AuditEvent{Model: "claude-default", InputTokens: &inTok, OutputTokens: &outTok, Cost: 1.5})
	tracker.Record(router.AuditEvent{Model: "claude-default", InputTokens: &inTok, OutputTokens: &outTok, Cost: 1.5})

	total, byModel := tracker.Snapshot()
	assert.Equal(t, 2, total.Calls)
	assert.Equal(t, 200, total.InputTokens)
	assert.Equal(t, 100, total.OutputTokens)
	assert.InDelta(t, 3.0, total.Cost, 1e-9)

	require.Contains(t, byModel, "claude-default")
	assert.Equal(t, 2, byModel["claude-default"].Calls)
}

func TestUsageTracker_CountsErrorsSeparately(t *testing.T) {
	tracker := NewUsageTracker()

	tracker.Record(router.AuditEvent{Model: "claude-default", Err: assertErr("breaker open")})

	total, _ := tracker.Snapshot()
	assert.Equal(t, 1, total.Calls)
	assert.Equal(t, 1, total.Errors)
	assert.Zero(t, total.Cost)
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func assertErr(msg string) error { return simpleErr(msg) }
