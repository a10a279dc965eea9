package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_StartsClosed(t *testing.T) {
	b := New("domains")
	assert.False(t, b.IsOpen())
	assert.True(t, b.Allow())
	assert.Equal(t, "closed", b.State().String())
	assert.Equal(t, "domains", b.Name())
}

func TestBreaker_Transitions(t *testing.T) {
	t.Run("opens on the threshold failure", func(t *testing.T) {
		b := New("domains", WithFailureThreshold(2))

		useFallback, change := b.RecordFailure()
		assert.False(t, useFallback)
		assert.False(t, change.Opened)

		useFallback, change = b.RecordFailure()
		assert.True(t, useFallback)
		assert.True(t, change.Opened)
		assert.Equal(t, StateOpen, b.State())

		useFallback, change = b.RecordFailure()
		assert.True(t, useFallback)
		assert.False(t, change.Opened)
	})

	t.Run("success resets consecutive failures", func(t *testing.T) {
		b := New("domains", WithFailureThreshold(2))
		b.RecordFailure()
		b.RecordSuccess()
		b.RecordFailure()
		assert.False(t, b.IsOpen())
	})

	t.Run("closes after consecutive successes", func(t *testing.T) {
		b := New("domains", WithFailureThreshold(1), WithSuccessThreshold(2))
		b.RecordFailure()

		usePrimary, change := b.RecordSuccess()
		assert.False(t, usePrimary)
		assert.False(t, change.Closed)

		usePrimary, change = b.RecordSuccess()
		assert.True(t, usePrimary)
		assert.True(t, change.Closed)
		assert.False(t, b.IsOpen())
	})

	t.Run("failure while open restarts success count", func(t *testing.T) {
		b := New("domains", WithFailureThreshold(1), WithSuccessThreshold(2))
		b.RecordFailure()
		b.RecordSuccess()
		b.RecordFailure()
		b.RecordSuccess()
		assert.True(t, b.IsOpen())
		b.RecordSuccess()
		assert.False(t, b.IsOpen())
	})

	t.Run("reset closes", func(t *testing.T) {
		b := New("domains", WithFailureThreshold(1))
		b.RecordFailure()
		b.Reset()
		assert.Equal(t, StateClosed, b.State())
	})
}

func TestBreaker_AllowAfterCooldown(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	b := New("domains", WithFailureThreshold(1), WithCooldown(10*time.Second), WithClock(clock))

	b.RecordFailure()
	assert.False(t, b.Allow(), "open circuit rejects during cooldown")

	now = now.Add(10 * time.Second)
	assert.True(t, b.Allow(), "probe admitted once cooldown elapsed")

	b.RecordFailure()
	assert.False(t, b.Allow(), "failed probe restarts cooldown")
}
