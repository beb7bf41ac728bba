package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndListReflections(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.GetOrCreateConversation(ctx, "")
	require.NoError(t, err)

	_, err = s.UpsertObservationLog(ctx, conv.ID, "v1", 10)
	require.NoError(t, err)
	_, err = s.UpsertObservationLog(ctx, conv.ID, "v1 compressed", 4)
	require.NoError(t, err)

	_, err = s.CreateReflection(ctx, conv.ID, 1, 2)
	require.NoError(t, err)

	reflections, err := s.ListReflections(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, reflections, 1)
	assert.Equal(t, 1, reflections[0].ReplacedVersion)
	assert.Equal(t, 2, reflections[0].NewVersion)
}
