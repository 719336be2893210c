package sched

import "time"

// Segment is one dispatch interval: the task held the CPU from Start through
// End (inclusive, in ticks).
type Segment struct {
	Task  TaskID
	Start Tick
	End   Tick
}

// Report is an aggregate accounting snapshot.
type Report struct {
	UtilizationPct float64
	Switches       int64
	AvgOverheadUS  float64
	DeadlineMisses []TimerID
	ElapsedTicks   Tick
	IdleTicks      int64
	RanTotals      map[TaskID]int64
}

// segmentHistory bounds how many dispatch segments are retained.
const segmentHistory = 1024

// accounting accumulates dispatch statistics. History survives slice
// reconfiguration; only the scheduler mutates it, under its lock.
type accounting struct {
	ranTotals map[TaskID]int64
	segments  []Segment // ring of the most recent dispatch segments
	segNext   int
	segFull   bool
	switches  int64
	ranTicks  int64
	idleTicks int64

	overheadTotal   time.Duration
	overheadSamples int64
}

func newAccounting() *accounting {
	return &accounting{
		ranTotals: make(map[TaskID]int64),
		segments:  make([]Segment, 0, segmentHistory),
	}
}

func (a *accounting) recordDispatch(id TaskID, now Tick) {
	a.switches++
	seg := Segment{Task: id, Start: now, End: now}
	if len(a.segments) < segmentHistory {
		a.segments = append(a.segments, seg)
		a.segNext = len(a.segments) % segmentHistory
		a.segFull = len(a.segments) == segmentHistory
		return
	}
	a.segments[a.segNext] = seg
	a.segNext = (a.segNext + 1) % segmentHistory
}

func (a *accounting) recordRun(id TaskID, now Tick) {
	a.ranTotals[id]++
	a.ranTicks++
	// extend the open segment
	last := a.segNext - 1
	if last < 0 {
		last = len(a.segments) - 1
	}
	if last >= 0 && a.segments[last].Task == id {
		a.segments[last].End = now
	}
}

func (a *accounting) recordIdle() { a.idleTicks++ }

func (a *accounting) recordOverhead(d time.Duration) {
	a.overheadTotal += d
	a.overheadSamples++
}

// report computes the snapshot. A zero elapsed time yields a zeroed report
// instead of dividing by zero.
func (a *accounting) report(now Tick, misses []TimerID) Report {
	r := Report{
		Switches:       a.switches,
		DeadlineMisses: misses,
		ElapsedTicks:   now,
		IdleTicks:      a.idleTicks,
		RanTotals:      make(map[TaskID]int64, len(a.ranTotals)),
	}
	for id, n := range a.ranTotals {
		r.RanTotals[id] = n
	}
	if now > 0 {
		r.UtilizationPct = float64(a.ranTicks) / float64(now) * 100
	}
	if a.overheadSamples > 0 {
		r.AvgOverheadUS = float64(a.overheadTotal.Microseconds()) / float64(a.overheadSamples)
	}
	return r
}

// recentSegments returns retained dispatch segments, oldest first.
func (a *accounting) recentSegments() []Segment {
	if !a.segFull {
		out := make([]Segment, len(a.segments))
		copy(out, a.segments)
		return out
	}
	out := make([]Segment, 0, segmentHistory)
	out = append(out, a.segments[a.segNext:]...)
	out = append(out, a.segments[:a.segNext]...)
	return out
}
