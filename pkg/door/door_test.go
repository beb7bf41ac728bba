package door

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baker-street/brain/pkg/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, t.TempDir()+"/brain.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCheckMessage_OpenModeAlwaysAllows(t *testing.T) {
	d := New(newTestStore(t), ModeOpen)
	v, err := d.CheckMessage(context.Background(), "telegram", "anyone", "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, ActionAllow, v.Action)
}

func TestCheckMessage_ListModeAllowsEmptyAllowlist(t *testing.T) {
	d := New(newTestStore(t), ModeList)
	v, err := d.CheckMessage(context.Background(), "telegram", "anyone", "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, ActionAllow, v.Action)
}

func TestCheckMessage_ListModeEnforcesAllowlist(t *testing.T) {
	d := New(newTestStore(t), ModeList)
	allowed, err := d.CheckMessage(context.Background(), "telegram", "friend", "hi", []string{"friend"})
	require.NoError(t, err)
	assert.Equal(t, ActionAllow, allowed.Action)

	denied, err := d.CheckMessage(context.Background(), "telegram", "stranger", "hi", []string{"friend"})
	require.NoError(t, err)
	assert.Equal(t, ActionDeny, denied.Action)
}

func TestCheckMessage_LandlordModeFirstSenderWins(t *testing.T) {
	d := New(newTestStore(t), ModeLandlord)
	first, err := d.CheckMessage(context.Background(), "telegram", "first", "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, ActionAllow, first.Action)

	second, err := d.CheckMessage(context.Background(), "telegram", "second", "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, ActionDeny, second.Action)

	firstAgain, err := d.CheckMessage(context.Background(), "telegram", "first", "hi again", nil)
	require.NoError(t, err)
	assert.Equal(t, ActionAllow, firstAgain.Action)
}

func TestCheckMessage_CardModeChallengesThenValidatesCode(t *testing.T) {
	d := New(newTestStore(t), ModeCard)
	ctx := context.Background()

	challenge, err := d.CheckMessage(ctx, "telegram", "X", "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, ActionChallenge, challenge.Action)

	validate, err := d.CheckMessage(ctx, "telegram", "X", "abcd2345", nil)
	require.NoError(t, err)
	assert.Equal(t, ActionValidateCode, validate.Action)
	assert.Equal(t, "ABCD2345", validate.Code)
}

func TestGeneratePairingCode_UsesUnambiguousCharsetAndLength(t *testing.T) {
	d := New(newTestStore(t), ModeCard)
	code, err := d.GeneratePairingCode(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, code, 8)
	for _, r := range code {
		assert.Contains(t, pairingCharset, string(r))
	}
}

func TestGeneratePairingCode_CapsAtThreeActiveCodes(t *testing.T) {
	d := New(newTestStore(t), ModeCard)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := d.GeneratePairingCode(ctx, nil)
		require.NoError(t, err)
	}
	_, err := d.GeneratePairingCode(ctx, nil)
	require.Error(t, err)
}

func TestAttemptPairing_SucceedsOnceThenFailsOnReplay(t *testing.T) {
	d := New(newTestStore(t), ModeCard)
	ctx := context.Background()

	code, err := d.GeneratePairingCode(ctx, nil)
	require.NoError(t, err)

	result, err := d.AttemptPairing(ctx, "telegram", "X", code)
	require.NoError(t, err)
	assert.True(t, result.Success)

	again, err := d.AttemptPairing(ctx, "telegram", "X", code)
	require.NoError(t, err)
	assert.False(t, again.Success)
}

func TestAttemptPairing_EnforcesPlatformRestriction(t *testing.T) {
	d := New(newTestStore(t), ModeCard)
	ctx := context.Background()
	platform := "telegram"

	code, err := d.GeneratePairingCode(ctx, &platform)
	require.NoError(t, err)

	result, err := d.AttemptPairing(ctx, "discord", "X", code)
	require.NoError(t, err)
	assert.False(t, result.Success)
}

func TestAttemptPairing_PlatformMismatchDoesNotConsumeCode(t *testing.T) {
	d := New(newTestStore(t), ModeCard)
	ctx := context.Background()
	platform := "telegram"

	code, err := d.GeneratePairingCode(ctx, &platform)
	require.NoError(t, err)

	mismatch, err := d.AttemptPairing(ctx, "discord", "X", code)
	require.NoError(t, err)
	require.False(t, mismatch.Success)

	retry, err := d.AttemptPairing(ctx, "telegram", "X", code)
	require.NoError(t, err)
	assert.True(t, retry.Success, "a correct-platform retry should still redeem the code")
}

func TestAfterPairing_ApprovedSenderIsAllowed(t *testing.T) {
	d := New(newTestStore(t), ModeCard)
	ctx := context.Background()

	code, err := d.GeneratePairingCode(ctx, nil)
	require.NoError(t, err)
	_, err = d.AttemptPairing(ctx, "telegram", "X", code)
	require.NoError(t, err)

	v, err := d.CheckMessage(ctx, "telegram", "X", "any message", nil)
	require.NoError(t, err)
	assert.Equal(t, ActionAllow, v.Action)
}
