package sched

import (
	"fmt"

	"github.com/emirpasic/gods/trees/binaryheap"
)

// TimerID uniquely identifies a software timer.
type TimerID uint64

// TimerOps is the restricted scheduler surface handed to timer callbacks.
// Callbacks run synchronously inside the dispatch tick, so they must not
// block; anything that waits belongs in a task.
type TimerOps interface {
	Now() Tick
	Resume(TaskID) error
	Suspend(TaskID) error
	SignalEmergency(TaskID) error
	StartTimer(TimerID) error
	StopTimer(TimerID) error
	ResetTimer(TimerID) error
	ChangeTimerPeriod(TimerID, Tick) error
}

// TimerCallback fires when a timer expires.
type TimerCallback func(ops TimerOps)

// Timer is one software timer slot. Created inactive; armed by StartTimer.
type Timer struct {
	ID        TimerID
	Name      string
	Period    Tick
	OneShot   bool
	Active    bool
	NextFire  Tick
	FireCount int64

	cb            TimerCallback
	firing        bool
	pendingPeriod Tick   // period change requested mid-fire, applied on rearm
	gen           uint64 // bumped on every rearm; stale heap entries are skipped
}

// heapEntry is a scheduled expiry. Entries are never removed eagerly: a
// generation mismatch on pop means the timer was stopped or rearmed since.
type heapEntry struct {
	fire Tick
	id   TimerID
	gen  uint64
}

func timerCmp(a, b any) int {
	ea, eb := a.(heapEntry), b.(heapEntry)
	switch {
	case ea.fire < eb.fire:
		return -1
	case ea.fire > eb.fire:
		return 1
	case ea.id < eb.id:
		return -1
	case ea.id > eb.id:
		return 1
	default:
		return 0
	}
}

// timerService owns the fixed timer pool and the expiry heap. All methods
// assume the scheduler's lock is held.
type timerService struct {
	capacity int
	slots    []*Timer
	byID     map[TimerID]int
	byName   map[string]int
	nextID   TimerID
	heap     *binaryheap.Heap
	slack    Tick
	missed   []TimerID
}

func newTimerService(capacity int, slack Tick) *timerService {
	return &timerService{
		capacity: capacity,
		slots:    make([]*Timer, capacity),
		byID:     make(map[TimerID]int, capacity),
		byName:   make(map[string]int, capacity),
		heap:     binaryheap.NewWith(timerCmp),
		slack:    slack,
	}
}

func (ts *timerService) create(name string, period Tick, oneShot bool, cb TimerCallback) (*Timer, error) {
	if period < 1 {
		return nil, fmt.Errorf("%w: timer period %d", ErrInvalidPeriod, period)
	}
	if _, dup := ts.byName[name]; dup {
		return nil, fmt.Errorf("%w: timer %q", ErrDuplicateName, name)
	}

	slot := -1
	for i, t := range ts.slots {
		if t == nil {
			slot = i
			break
		}
	}
	if slot < 0 {
		return nil, fmt.Errorf("%w: timer pool holds %d entries", ErrCapacityExceeded, ts.capacity)
	}

	ts.nextID++
	t := &Timer{
		ID:      ts.nextID,
		Name:    name,
		Period:  period,
		OneShot: oneShot,
		cb:      cb,
	}
	ts.slots[slot] = t
	ts.byID[t.ID] = slot
	ts.byName[name] = slot
	return t, nil
}

func (ts *timerService) lookup(id TimerID) (*Timer, error) {
	slot, ok := ts.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownTimer, id)
	}
	return ts.slots[slot], nil
}

func (ts *timerService) remove(id TimerID) error {
	t, err := ts.lookup(id)
	if err != nil {
		return err
	}
	t.Active = false
	t.gen++
	slot := ts.byID[id]
	delete(ts.byID, id)
	delete(ts.byName, t.Name)
	ts.slots[slot] = nil
	return nil
}

func (ts *timerService) arm(t *Timer, now Tick) {
	t.Active = true
	t.NextFire = now + t.Period
	t.gen++
	ts.heap.Push(heapEntry{fire: t.NextFire, id: t.ID, gen: t.gen})
}

func (ts *timerService) start(id TimerID, now Tick) error {
	t, err := ts.lookup(id)
	if err != nil {
		return err
	}
	ts.arm(t, now)
	return nil
}

// reset restarts the countdown from now, like xTimerReset in the labs.
func (ts *timerService) reset(id TimerID, now Tick) error {
	return ts.start(id, now)
}

func (ts *timerService) stop(id TimerID) error {
	t, err := ts.lookup(id)
	if err != nil {
		return err
	}
	t.Active = false
	t.gen++
	return nil
}

// changePeriod takes effect immediately unless the timer is mid-fire, in
// which case the new period is applied when the callback returns and the
// timer rearms.
func (ts *timerService) changePeriod(id TimerID, period, now Tick) error {
	if period < 1 {
		return fmt.Errorf("%w: timer period %d", ErrInvalidPeriod, period)
	}
	t, err := ts.lookup(id)
	if err != nil {
		return err
	}
	if t.firing {
		t.pendingPeriod = period
		return nil
	}
	t.Period = period
	if t.Active {
		ts.arm(t, now)
	}
	return nil
}

// fire expires every due timer in ascending (NextFire, id) order. Callbacks
// run synchronously; a periodic timer that overran by more than one period
// fires once per missed period within this tick. Each late occurrence beyond
// the configured slack is reported as a deadline miss.
func (ts *timerService) fire(now Tick, ops TimerOps, emit func(StatusEvent)) {
	for {
		v, ok := ts.heap.Peek()
		if !ok {
			break
		}
		e := v.(heapEntry)
		if e.fire > now {
			break
		}
		ts.heap.Pop()

		t, err := ts.lookup(e.id)
		if err != nil || !t.Active || t.gen != e.gen {
			continue // stale entry
		}

		if overrun := now - e.fire; overrun > ts.slack {
			ts.missed = append(ts.missed, t.ID)
			emit(StatusEvent{Kind: StatusDeadlineMiss, Timer: t.ID, Overrun: overrun - ts.slack})
		}

		t.FireCount++
		emit(StatusEvent{Kind: StatusTimerFired, Timer: t.ID})

		genBefore := t.gen
		t.firing = true
		t.cb(ops)
		t.firing = false

		if t.pendingPeriod > 0 {
			t.Period = t.pendingPeriod
			t.pendingPeriod = 0
		}
		if t.gen != genBefore {
			// the callback rearmed, stopped or reconfigured this timer itself
			continue
		}
		if t.OneShot {
			t.Active = false
			t.gen++
			continue
		}
		t.NextFire = e.fire + t.Period
		t.gen++
		ts.heap.Push(heapEntry{fire: t.NextFire, id: t.ID, gen: t.gen})
	}
}

// misses returns the ids of timers that have missed a deadline so far.
func (ts *timerService) misses() []TimerID {
	out := make([]TimerID, len(ts.missed))
	copy(out, ts.missed)
	return out
}
