package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDoorPolicy_DefaultsToPending(t *testing.T) {
	s := newTestStore(t)
	entry, err := s.GetDoorPolicy(context.Background(), "discord", "user-1")
	require.NoError(t, err)
	assert.Equal(t, DoorPending, entry.Status)
}

func TestUpsertDoorPolicy_RoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, s.UpsertDoorPolicy(ctx, DoorPolicyEntry{
		Platform: "discord",
		SenderID: "user-1",
		Status:   DoorApproved,
		PairedAt: &now,
	}))

	entry, err := s.GetDoorPolicy(ctx, "discord", "user-1")
	require.NoError(t, err)
	assert.Equal(t, DoorApproved, entry.Status)
	require.NotNil(t, entry.PairedAt)
}

func TestUpsertDoorPolicy_OverwritesExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertDoorPolicy(ctx, DoorPolicyEntry{Platform: "discord", SenderID: "user-1", Status: DoorPending}))
	require.NoError(t, s.UpsertDoorPolicy(ctx, DoorPolicyEntry{Platform: "discord", SenderID: "user-1", Status: DoorBlocked}))

	entry, err := s.GetDoorPolicy(ctx, "discord", "user-1")
	require.NoError(t, err)
	assert.Equal(t, DoorBlocked, entry.Status)

	entries, err := s.ListDoorPolicy(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPairingChallenge_LookupThenDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, s.CreatePairingChallenge(ctx, PairingChallenge{
		Code:      "ABCD1234",
		ExpiresAt: now.Add(5 * time.Minute),
		CreatedAt: now,
	}))

	count, err := s.CountActivePairingChallenges(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	challenge, ok, err := s.LookupPairingChallenge(ctx, "ABCD1234", now)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ABCD1234", challenge.Code)

	// A lookup alone does not consume the code.
	_, ok, err = s.LookupPairingChallenge(ctx, "ABCD1234", now)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.DeletePairingChallenge(ctx, "ABCD1234"))

	_, ok, err = s.LookupPairingChallenge(ctx, "ABCD1234", now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPairingChallenge_ExpiredIsRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, s.CreatePairingChallenge(ctx, PairingChallenge{
		Code:      "EXPIRED1",
		ExpiresAt: now.Add(-time.Minute),
		CreatedAt: now.Add(-10 * time.Minute),
	}))

	_, ok, err := s.LookupPairingChallenge(ctx, "EXPIRED1", now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPruneExpiredPairingChallenges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, s.CreatePairingChallenge(ctx, PairingChallenge{
		Code:      "EXPIRED2",
		ExpiresAt: now.Add(-time.Minute),
		CreatedAt: now.Add(-10 * time.Minute),
	}))

	require.NoError(t, s.PruneExpiredPairingChallenges(ctx, now))

	count, err := s.CountActivePairingChallenges(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
