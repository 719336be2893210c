package sched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportZeroedBeforeFirstTick(t *testing.T) {
	s := newTestScheduler()
	r := s.Report()

	assert.Zero(t, r.UtilizationPct)
	assert.Zero(t, r.Switches)
	assert.Zero(t, r.AvgOverheadUS)
	assert.Zero(t, r.ElapsedTicks)
	assert.Empty(t, r.DeadlineMisses)
}

func TestUtilizationStaysInBounds(t *testing.T) {
	s := newTestScheduler()

	_, err := s.RegisterTask("a", 1, fixedWork(3))
	require.NoError(t, err)

	// 3 busy ticks then 5 idle ones
	for i := 0; i < 8; i++ {
		s.Tick()
	}

	r := s.Report()
	assert.GreaterOrEqual(t, r.UtilizationPct, 0.0)
	assert.LessOrEqual(t, r.UtilizationPct, 100.0)
	assert.InDelta(t, 3.0/8.0*100, r.UtilizationPct, 0.001)
	assert.EqualValues(t, 5, r.IdleTicks)
	assert.EqualValues(t, 8, r.ElapsedTicks)
}

func TestFullyBusyUtilizationIsHundred(t *testing.T) {
	s := newTestScheduler()
	_, err := s.RegisterTask("a", 1, hog())
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		s.Tick()
	}
	assert.InDelta(t, 100.0, s.Report().UtilizationPct, 0.001)
}

func TestSwitchesCountDispatches(t *testing.T) {
	s := newTestScheduler(func(c *Config) { c.SliceTicks = 1 })

	_, err := s.RegisterTask("a", 3, hog())
	require.NoError(t, err)
	_, err = s.RegisterTask("b", 3, hog())
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		s.Tick()
	}
	// slice of one means a fresh dispatch per tick
	assert.EqualValues(t, 6, s.Report().Switches)
}

func TestDispatchSegments(t *testing.T) {
	s := newTestScheduler(func(c *Config) { c.SliceTicks = 2 })

	a, err := s.RegisterTask("a", 3, hog())
	require.NoError(t, err)
	b, err := s.RegisterTask("b", 3, hog())
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		s.Tick()
	}

	segs := s.RecentSegments()
	require.Len(t, segs, 2)
	assert.Equal(t, Segment{Task: a, Start: 1, End: 2}, segs[0])
	assert.Equal(t, Segment{Task: b, Start: 3, End: 4}, segs[1])
}

func TestSegmentRingBounded(t *testing.T) {
	a := newAccounting()
	for i := 0; i < segmentHistory+100; i++ {
		a.recordDispatch(TaskID(1), Tick(i))
		a.recordRun(TaskID(1), Tick(i))
	}
	segs := a.recentSegments()
	require.Len(t, segs, segmentHistory)
	// oldest retained entry first
	assert.Equal(t, Tick(100), segs[0].Start)
	assert.Equal(t, Tick(segmentHistory+99), segs[len(segs)-1].Start)
}

func TestOverheadAveraging(t *testing.T) {
	a := newAccounting()
	a.recordOverhead(10 * time.Microsecond)
	a.recordOverhead(30 * time.Microsecond)
	r := a.report(2, nil)
	assert.InDelta(t, 20.0, r.AvgOverheadUS, 0.001)
}

func TestSliceChangeKeepsHistory(t *testing.T) {
	s := newTestScheduler()
	_, err := s.RegisterTask("a", 1, hog())
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		s.Tick()
	}
	before := s.Report()
	require.NoError(t, s.ConfigureSlice(2))
	after := s.Report()

	assert.Equal(t, before.Switches, after.Switches)
	assert.Equal(t, before.ElapsedTicks, after.ElapsedTicks)
	assert.Equal(t, before.RanTotals, after.RanTotals)
}
