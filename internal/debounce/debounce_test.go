package debounce

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnlyLastTriggerRuns(t *testing.T) {
	d := New(30 * time.Millisecond)
	var calls atomic.Int32
	done := make(chan string, 3)

	for _, q := range []string{"p", "pa", "par"} {
		d.Trigger(func(uint64) {
			calls.Add(1)
			done <- q
		})
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case got := <-done:
		assert.Equal(t, "par", got)
	case <-time.After(time.Second):
		t.Fatal("debounced call never ran")
	}
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestStaleResultIsDiscarded(t *testing.T) {
	d := New(10 * time.Millisecond)
	started := make(chan uint64, 1)

	d.Trigger(func(gen uint64) { started <- gen })
	var gen uint64
	select {
	case gen = <-started:
	case <-time.After(time.Second):
		t.Fatal("call never ran")
	}
	require.True(t, d.IsCurrent(gen))

	// A newer search starts while the first one is still in flight.
	d.Trigger(func(uint64) {})
	assert.False(t, d.IsCurrent(gen))
}

func TestStopCancelsPending(t *testing.T) {
	d := New(20 * time.Millisecond)
	var ran atomic.Bool
	gen := d.Trigger(func(uint64) { ran.Store(true) })
	d.Stop()
	time.Sleep(50 * time.Millisecond)

	assert.False(t, ran.Load())
	assert.False(t, d.IsCurrent(gen))

	d.Trigger(func(uint64) { ran.Store(true) })
	time.Sleep(50 * time.Millisecond)
	assert.False(t, ran.Load())
}

func TestDefaultDelay(t *testing.T) {
	assert.Equal(t, DefaultDelay, New(0).delay)
	assert.Equal(t, 450*time.Millisecond, DefaultDelay)
}
