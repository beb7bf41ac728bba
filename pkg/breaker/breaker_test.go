package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := New(Config{FailureThreshold: 3})
	boom := errors.New("boom")

	for i := 0; i < 2; i++ {
		err := b.Call("anthropic", func() error { return boom })
		require.ErrorIs(t, err, boom)
		assert.Equal(t, Closed, b.State())
	}

	err := b.Call("anthropic", func() error { return boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, Open, b.State())
}

func TestBreaker_FailFastWhileOpen(t *testing.T) {
	b := New(Config{FailureThreshold: 1})
	require.Error(t, b.Call("anthropic", func() error { return errors.New("boom") }))
	require.Equal(t, Open, b.State())

	called := false
	err := b.Call("anthropic", func() error { called = true; return nil })
	require.Error(t, err)
	var openErr *ErrOpen
	assert.ErrorAs(t, err, &openErr)
	assert.False(t, called)
}

func TestBreaker_HalfOpenAfterResetTimeout(t *testing.T) {
	b := New(Config{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond, HalfOpenSuccessThreshold: 1})
	require.Error(t, b.Call("anthropic", func() error { return errors.New("boom") }))
	require.Equal(t, Open, b.State())

	time.Sleep(15 * time.Millisecond)
	assert.Equal(t, HalfOpen, b.State())

	require.NoError(t, b.Call("anthropic", func() error { return nil }))
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New(Config{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond})
	require.Error(t, b.Call("anthropic", func() error { return errors.New("boom") }))
	time.Sleep(15 * time.Millisecond)
	require.Equal(t, HalfOpen, b.State())

	require.Error(t, b.Call("anthropic", func() error { return errors.New("boom again") }))
	assert.Equal(t, Open, b.State())
}

func TestBreaker_SuccessResetsClosedFailureCount(t *testing.T) {
	b := New(Config{FailureThreshold: 2})
	require.Error(t, b.Call("anthropic", func() error { return errors.New("boom") }))
	require.NoError(t, b.Call("anthropic", func() error { return nil }))
	require.Error(t, b.Call("anthropic", func() error { return errors.New("boom") }))
	assert.Equal(t, Closed, b.State())
}
