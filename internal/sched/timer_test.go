package sched

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOneShotTimerFiresExactlyOnce(t *testing.T) {
	s := newTestScheduler()

	var fired []Tick
	id, err := s.RegisterTimer("oneshot", 3, true, func(ops TimerOps) {
		fired = append(fired, ops.Now())
	})
	require.NoError(t, err)
	require.NoError(t, s.StartTimer(id))

	for i := 0; i < 5; i++ {
		s.Tick()
	}

	assert.Equal(t, []Tick{3}, fired)
	active, err := s.TimerActive(id)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestPeriodicTimerCadence(t *testing.T) {
	s := newTestScheduler()

	var fired []Tick
	id, err := s.RegisterTimer("periodic", 3, false, func(ops TimerOps) {
		fired = append(fired, ops.Now())
	})
	require.NoError(t, err)
	require.NoError(t, s.StartTimer(id))

	for i := 0; i < 10; i++ {
		s.Tick()
	}
	assert.Equal(t, []Tick{3, 6, 9}, fired)
}

func TestStopTimerHaltsFiring(t *testing.T) {
	s := newTestScheduler()

	count := 0
	id, err := s.RegisterTimer("p", 2, false, func(TimerOps) { count++ })
	require.NoError(t, err)
	require.NoError(t, s.StartTimer(id))

	s.Tick()
	s.Tick() // fires at 2
	require.Equal(t, 1, count)

	require.NoError(t, s.StopTimer(id))
	for i := 0; i < 6; i++ {
		s.Tick()
	}
	assert.Equal(t, 1, count)
}

func TestChangePeriodWhileInactive(t *testing.T) {
	s := newTestScheduler()

	var fired []Tick
	id, err := s.RegisterTimer("p", 3, false, func(ops TimerOps) {
		fired = append(fired, ops.Now())
	})
	require.NoError(t, err)

	require.NoError(t, s.ChangeTimerPeriod(id, 5))
	require.NoError(t, s.StartTimer(id))

	for i := 0; i < 11; i++ {
		s.Tick()
	}
	assert.Equal(t, []Tick{5, 10}, fired)
}

func TestChangePeriodMidFireAppliesOnRearm(t *testing.T) {
	s := newTestScheduler()

	var fired []Tick
	var id TimerID
	var err error
	id, err = s.RegisterTimer("p", 3, false, func(ops TimerOps) {
		fired = append(fired, ops.Now())
		if len(fired) == 1 {
			require.NoError(t, ops.ChangeTimerPeriod(id, 5))
		}
	})
	require.NoError(t, err)
	require.NoError(t, s.StartTimer(id))

	for i := 0; i < 9; i++ {
		s.Tick()
	}
	// first fire at 3; the mid-fire change defers to the rearm, so the next
	// fire lands at 3+5
	assert.Equal(t, []Tick{3, 8}, fired)
}

func TestTimerValidation(t *testing.T) {
	s := newTestScheduler(func(c *Config) { c.MaxTimers = 2 })

	_, err := s.RegisterTimer("a", 0, false, func(TimerOps) {})
	assert.ErrorIs(t, err, ErrInvalidPeriod)

	_, err = s.RegisterTimer("a", 2, false, func(TimerOps) {})
	require.NoError(t, err)
	_, err = s.RegisterTimer("a", 2, false, func(TimerOps) {})
	assert.ErrorIs(t, err, ErrDuplicateName)

	_, err = s.RegisterTimer("b", 2, false, func(TimerOps) {})
	require.NoError(t, err)
	_, err = s.RegisterTimer("c", 2, false, func(TimerOps) {})
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	assert.ErrorIs(t, s.StartTimer(99), ErrUnknownTimer)
	assert.ErrorIs(t, s.StopTimer(99), ErrUnknownTimer)
	assert.ErrorIs(t, s.ResetTimer(99), ErrUnknownTimer)
	assert.ErrorIs(t, s.ChangeTimerPeriod(99, 2), ErrUnknownTimer)
	assert.ErrorIs(t, s.ChangeTimerPeriod(99, 0), ErrInvalidPeriod)
}

func TestDeleteTimerFreesSlot(t *testing.T) {
	s := newTestScheduler(func(c *Config) { c.MaxTimers = 1 })

	id, err := s.RegisterTimer("a", 2, false, func(TimerOps) {})
	require.NoError(t, err)
	require.NoError(t, s.DeleteTimer(id))

	_, err = s.RegisterTimer("b", 2, false, func(TimerOps) {})
	require.NoError(t, err)
}

func TestTimerCallbackResumesTask(t *testing.T) {
	s := newTestScheduler()

	task, err := s.RegisterTask("worker", 5, func(context.Context) Verdict { return Block })
	require.NoError(t, err)
	assert.Equal(t, task, s.Tick().Task) // runs once, blocks

	id, err := s.RegisterTimer("waker", 2, false, func(ops TimerOps) {
		require.NoError(t, ops.Resume(task))
	})
	require.NoError(t, err)
	require.NoError(t, s.StartTimer(id))

	assert.True(t, s.Tick().Idle)              // tick 2, timer armed at 1+2=3
	assert.Equal(t, task, s.Tick().Task)       // tick 3: fire resumes, task dispatched
	st, err := s.TaskState(task)
	require.NoError(t, err)
	assert.Equal(t, StateBlocked, st)
}

func TestSelfRestartingOneShot(t *testing.T) {
	s := newTestScheduler()

	var fired []Tick
	var id TimerID
	var err error
	id, err = s.RegisterTimer("retrigger", 2, true, func(ops TimerOps) {
		fired = append(fired, ops.Now())
		if len(fired) < 2 {
			require.NoError(t, ops.ResetTimer(id))
		}
	})
	require.NoError(t, err)
	require.NoError(t, s.StartTimer(id))

	for i := 0; i < 6; i++ {
		s.Tick()
	}
	assert.Equal(t, []Tick{2, 4}, fired)
	active, err := s.TimerActive(id)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestCooperativeHogStarvesTimersIntoDeadlineMiss(t *testing.T) {
	s := newTestScheduler(func(c *Config) {
		c.Mode = "cooperative"
		c.DeadlineSlack = 1
	})

	var fired []Tick
	id, err := s.RegisterTimer("watchdog", 2, false, func(ops TimerOps) {
		fired = append(fired, ops.Now())
	})
	require.NoError(t, err)
	require.NoError(t, s.StartTimer(id))

	_, err = s.RegisterTask("hog", 5, fixedWork(6))
	require.NoError(t, err)

	for i := 0; i < 7; i++ {
		s.Tick()
	}

	// the hog held the CPU through tick 6; at tick 7 the service catches up:
	// the fires due at 2 and 4 are past the slack, the one due at 6 is not
	assert.Equal(t, []Tick{7, 7, 7}, fired)
	r := s.Report()
	require.Len(t, r.DeadlineMisses, 2)
	for _, missed := range r.DeadlineMisses {
		assert.Equal(t, id, missed)
	}
}

func TestManyTimersFireInDeadlineOrder(t *testing.T) {
	s := newTestScheduler()

	var order []string
	for i, period := range []Tick{4, 2, 3} {
		name := fmt.Sprintf("t%d", i)
		id, err := s.RegisterTimer(name, period, true, func(ops TimerOps) {
			order = append(order, name)
		})
		require.NoError(t, err)
		require.NoError(t, s.StartTimer(id))
	}

	for i := 0; i < 5; i++ {
		s.Tick()
	}
	assert.Equal(t, []string{"t1", "t2", "t0"}, order)
}
