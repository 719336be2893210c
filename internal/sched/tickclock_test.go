package sched

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickClockEmits(t *testing.T) {
	c := NewTickClock(8)
	c.Start(time.Millisecond)
	defer c.Stop()

	select {
	case <-c.C:
	case <-time.After(time.Second):
		t.Fatal("no tick within a second")
	}
	assert.Positive(t, c.Count())
}

func TestTickClockDropsInsteadOfBlocking(t *testing.T) {
	c := NewTickClock(1)
	c.Start(time.Millisecond)
	defer c.Stop()

	// nobody consumes; the emitter must keep going and count drops
	require.Eventually(t, func() bool { return c.Dropped() > 0 },
		time.Second, 5*time.Millisecond)
}

func TestRunDrivesTicks(t *testing.T) {
	s := newTestScheduler(func(c *Config) { c.TickMS = 1 })
	_, err := s.RegisterTask("a", 1, hog())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))

	assert.Positive(t, int64(s.Now()), "Run must advance the logical clock")
	r := s.Report()
	assert.Positive(t, r.Switches)
}
