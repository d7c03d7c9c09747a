package backoff

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_Wait(t *testing.T) {
	t.Run("retries", func(t *testing.T) {
		b := New(3, time.Millisecond, 10*time.Millisecond)
		assert.True(t, b.Wait(context.Background()))
		assert.True(t, b.Wait(context.Background()))
		assert.True(t, b.Wait(context.Background()))
		assert.False(t, b.Wait(context.Background()))
		assert.Equal(t, 3, b.Attempts())

		b.Reset()
		assert.True(t, b.Wait(context.Background()))
	})

	t.Run("cancelled", func(t *testing.T) {
		b := New(0, time.Hour, time.Hour)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.False(t, b.Wait(ctx))
	})
}

func TestBackoff_NextWait(t *testing.T) {
	b := New(0, time.Millisecond, 4*time.Millisecond)

	// Each wait doubles the previous up to the maximum, plus up to 10%
	// jitter.
	expected := []time.Duration{
		time.Millisecond,
		2 * time.Millisecond,
		4 * time.Millisecond,
		4 * time.Millisecond,
	}
	for _, e := range expected {
		wait := b.nextWait()
		assert.GreaterOrEqual(t, wait, e)
		assert.LessOrEqual(t, wait, e+e/10)

		b.lastBackoff = e
	}
}
