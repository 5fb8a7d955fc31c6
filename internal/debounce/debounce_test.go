package debounce_test

import (
	"sync/atomic"
	"testing"
	"time"

	"go-playbooks/internal/debounce"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestTriggerResetsQuietPeriod(t *testing.T) {
	clock := debounce.NewManualClock()
	d := debounce.New(2*time.Second, debounce.WithAfterFunc(clock.AfterFunc))

	var calls []int
	for i := 1; i <= 5; i++ {
		i := i
		d.Trigger(func() { calls = append(calls, i) })
		clock.Advance(1500 * time.Millisecond)
	}
	require.Empty(t, calls)

	clock.Advance(499 * time.Millisecond)
	require.Empty(t, calls)
	clock.Advance(time.Millisecond)
	require.Equal(t, []int{5}, calls)
	assert.False(t, d.Pending())
	assert.Equal(t, 0, clock.Scheduled())
}

func TestStopCancels(t *testing.T) {
	clock := debounce.NewManualClock()
	d := debounce.New(time.Second, debounce.WithAfterFunc(clock.AfterFunc))

	fired := false
	d.Trigger(func() { fired = true })
	assert.True(t, d.Stop())
	assert.False(t, d.Stop())
	clock.Advance(time.Hour)
	assert.False(t, fired)
}

func TestFlushRunsImmediately(t *testing.T) {
	clock := debounce.NewManualClock()
	d := debounce.New(time.Second, debounce.WithAfterFunc(clock.AfterFunc))

	n := 0
	d.Trigger(func() { n++ })
	assert.True(t, d.Flush())
	assert.Equal(t, 1, n)
	clock.Advance(time.Hour)
	assert.Equal(t, 1, n)
	assert.False(t, d.Flush())
}

func TestRealTimer(t *testing.T) {
	d := debounce.New(10 * time.Millisecond)
	var n atomic.Int32
	done := make(chan struct{})
	d.Trigger(func() { n.Add(1) })
	d.Trigger(func() {
		n.Add(1)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("debounced callback never ran")
	}
	assert.Equal(t, int32(1), n.Load())
}
