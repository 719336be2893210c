// internal/sched/scheduler.go

// Package sched is a minimal tick-driven task scheduler with a software
// timer service. A single Scheduler instance owns all state: a fixed task
// table, a priority ready queue with optional aging, per-dispatch
// accounting, a timer pool and an emergency preemption path. One call to
// Tick advances logical time by one unit and runs one step of one task.
package sched

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// DispatchResult reports what a tick did: either one step of Task ran, or
// nothing was Ready and the tick was idle.
type DispatchResult struct {
	Idle bool
	Task TaskID
}

type emergencySig struct {
	id TaskID
	at Tick
}

// Scheduler drives all scheduling state and streams status events.
type Scheduler struct {
	// tickMu serializes Tick itself; mu protects the state below and is
	// released while a task step runs so steps may call back into the API.
	tickMu sync.Mutex
	mu     sync.Mutex

	mode       Mode
	sliceTicks Tick
	agingTicks Tick
	tickMS     int

	now      Tick
	reg      *registry
	ready    *readyQueue
	running  *Task
	runStart Tick

	timers *timerService
	acct   *accounting

	emergencyCh   chan emergencySig
	lastEmergency Tick
	emergencySeen bool

	stepCtx context.Context

	statusCh      chan StatusEvent
	droppedEvents atomic.Int64
	pending       []StatusEvent

	clock *TickClock
	log   zerolog.Logger
	csv   *csvLog
}

// New creates a Scheduler from the given configuration. Zero-valued fields
// fall back to the defaults Load would apply. The dispatch mode is fixed for
// the scheduler's lifetime.
func New(cfg Config) *Scheduler {
	def := defaultConfig()
	if cfg.SliceTicks < 1 {
		cfg.SliceTicks = def.SliceTicks
	}
	if cfg.TickMS < 1 {
		cfg.TickMS = def.TickMS
	}
	if cfg.MaxTasks < 1 {
		cfg.MaxTasks = def.MaxTasks
	}
	if cfg.MaxTimers < 1 {
		cfg.MaxTimers = def.MaxTimers
	}
	if cfg.AgingTicks < 0 {
		cfg.AgingTicks = 0
	}
	if cfg.DeadlineSlack < 0 {
		cfg.DeadlineSlack = 0
	}
	return &Scheduler{
		mode:        cfg.SchedMode(),
		sliceTicks:  Tick(cfg.SliceTicks),
		agingTicks:  Tick(cfg.AgingTicks),
		tickMS:      cfg.TickMS,
		reg:         newRegistry(cfg.MaxTasks),
		ready:       newReadyQueue(),
		timers:      newTimerService(cfg.MaxTimers, Tick(cfg.DeadlineSlack)),
		acct:        newAccounting(),
		emergencyCh: make(chan emergencySig, 64),
		stepCtx:     context.Background(),
		statusCh:    make(chan StatusEvent, 256),
		log:         zerolog.Nop(),
	}
}

// SetLogger installs the logger used by the Run-loop event consumer.
func (s *Scheduler) SetLogger(l zerolog.Logger) { s.log = l }

// EnableCSVLogging opens the given file path for CSV logging of events.
// Must be called before Run().
func (s *Scheduler) EnableCSVLogging(path string) error {
	c, err := newCSVLog(path)
	if err != nil {
		return err
	}
	s.csv = c
	return nil
}

// StatusChannel exposes the read-only event stream. Events are dropped, not
// buffered without bound, when nobody consumes them.
func (s *Scheduler) StatusChannel() <-chan StatusEvent { return s.statusCh }

// DroppedEvents returns how many status events found the channel full.
func (s *Scheduler) DroppedEvents() int64 { return s.droppedEvents.Load() }

// Mode returns the dispatch discipline the scheduler was built with.
func (s *Scheduler) Mode() Mode { return s.mode }

// Now returns the current logical tick.
func (s *Scheduler) Now() Tick {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// ConfigureSlice changes the preemptive time quantum at runtime. Accounting
// history is unaffected. n < 1 is rejected with ErrInvalidPeriod.
func (s *Scheduler) ConfigureSlice(n Tick) error {
	if n < 1 {
		return ErrInvalidPeriod
	}
	s.mu.Lock()
	s.sliceTicks = n
	s.mu.Unlock()
	return nil
}

// RegisterTask adds a task to the fixed table and marks it Ready. Fails with
// ErrCapacityExceeded when the table is full.
func (s *Scheduler) RegisterTask(name string, priority int, step StepFunc, opts ...TaskOption) (TaskID, error) {
	s.mu.Lock()
	t, err := s.reg.register(name, priority, step, opts...)
	if err != nil {
		s.mu.Unlock()
		return 0, err
	}
	t.readySince = s.now
	t.release = s.now
	s.ready.push(t)
	s.emit(StatusEvent{Kind: StatusEnqueue, Task: t.ID})
	evs := s.flush()
	s.mu.Unlock()
	s.publish(evs)
	return t.ID, nil
}

// Suspend parks the task until Resume. Suspending the running task takes
// effect at the next scheduling point.
func (s *Scheduler) Suspend(id TaskID) error {
	s.mu.Lock()
	err := s.suspendLocked(id)
	evs := s.flush()
	s.mu.Unlock()
	s.publish(evs)
	return err
}

func (s *Scheduler) suspendLocked(id TaskID) error {
	t, err := s.reg.lookup(id)
	if err != nil {
		return err
	}
	if t.State == StateDeleted {
		return ErrUnknownTask
	}
	s.ready.remove(t)
	t.State = StateSuspended
	s.emit(StatusEvent{Kind: StatusSuspend, Task: id})
	return nil
}

// Resume makes a Suspended or Blocked task Ready. Ready/Running tasks are
// left alone.
func (s *Scheduler) Resume(id TaskID) error {
	s.mu.Lock()
	err := s.resumeLocked(id)
	evs := s.flush()
	s.mu.Unlock()
	s.publish(evs)
	return err
}

func (s *Scheduler) resumeLocked(id TaskID) error {
	t, err := s.reg.lookup(id)
	if err != nil {
		return err
	}
	switch t.State {
	case StateSuspended, StateBlocked:
		t.State = StateReady
		t.readySince = s.now
		t.release = s.now
		s.ready.push(t)
		s.emit(StatusEvent{Kind: StatusResume, Task: id})
	case StateDeleted:
		return ErrUnknownTask
	}
	return nil
}

// Delete removes a task. Deleting the currently running task marks it and
// defers slot reclaim to the next scheduling point; a task can never destroy
// its own execution context mid-run.
func (s *Scheduler) Delete(id TaskID) error {
	s.mu.Lock()
	err := s.deleteLocked(id)
	evs := s.flush()
	s.mu.Unlock()
	s.publish(evs)
	return err
}

func (s *Scheduler) deleteLocked(id TaskID) error {
	t, err := s.reg.lookup(id)
	if err != nil {
		return err
	}
	if t.State == StateDeleted {
		return ErrUnknownTask
	}
	s.emit(StatusEvent{Kind: StatusDelete, Task: id})
	if t == s.running {
		t.State = StateDeleted
		return nil
	}
	s.ready.remove(t)
	t.State = StateDeleted
	s.reg.reclaim(t)
	return nil
}

// SignalEmergency marks the task Ready via the bounded emergency channel.
// Safe to call from any goroutine, including interrupt-like contexts. Under
// preemptive mode the target is dispatched by the very next Tick when its
// priority is strictly highest.
func (s *Scheduler) SignalEmergency(id TaskID) error {
	s.mu.Lock()
	t, err := s.reg.lookup(id)
	if err != nil || t.State == StateDeleted {
		s.mu.Unlock()
		if err == nil {
			err = ErrUnknownTask
		}
		return err
	}
	at := s.now
	s.mu.Unlock()

	select {
	case s.emergencyCh <- emergencySig{id: id, at: at}:
		return nil
	default:
		return ErrEmergencyBacklog
	}
}

// LastEmergencyLatency returns the signal-to-dispatch distance of the most
// recent emergency, and whether one has completed yet.
func (s *Scheduler) LastEmergencyLatency() (Tick, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEmergency, s.emergencySeen
}

// Timer facade.

// RegisterTimer creates an inactive timer; arm it with StartTimer.
func (s *Scheduler) RegisterTimer(name string, period Tick, oneShot bool, cb TimerCallback) (TimerID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.timers.create(name, period, oneShot, cb)
	if err != nil {
		return 0, err
	}
	return t.ID, nil
}

// StartTimer arms the timer to fire period ticks from now.
func (s *Scheduler) StartTimer(id TimerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers.start(id, s.now)
}

// StopTimer deactivates the timer. Takes effect at once; callbacks are never
// interrupted because they run synchronously inside the tick.
func (s *Scheduler) StopTimer(id TimerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers.stop(id)
}

// ResetTimer restarts the countdown from the current tick.
func (s *Scheduler) ResetTimer(id TimerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers.reset(id, s.now)
}

// ChangeTimerPeriod updates the period; mid-fire changes take effect on the
// next rearm.
func (s *Scheduler) ChangeTimerPeriod(id TimerID, period Tick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers.changePeriod(id, period, s.now)
}

// DeleteTimer frees the timer's pool slot.
func (s *Scheduler) DeleteTimer(id TimerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers.remove(id)
}

// TimerActive reports whether the timer is currently armed.
func (s *Scheduler) TimerActive(id TimerID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.timers.lookup(id)
	if err != nil {
		return false, err
	}
	return t.Active, nil
}

// Report returns the aggregate accounting snapshot.
func (s *Scheduler) Report() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acct.report(s.now, s.timers.misses())
}

// RecentSegments returns the retained dispatch segments, oldest first.
func (s *Scheduler) RecentSegments() []Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acct.recentSegments()
}

// TaskState reports a task's current state.
func (s *Scheduler) TaskState(id TaskID) (TaskState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.reg.lookup(id)
	if err != nil {
		return 0, err
	}
	return t.State, nil
}

// Tick advances the clock by one unit, services timers and releases, applies
// preemption rules and runs one step of the selected task. It never blocks
// waiting for work: with nothing Ready it returns an Idle result and the
// caller decides idle behavior.
func (s *Scheduler) Tick() DispatchResult {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	t0 := time.Now()

	s.mu.Lock()
	s.now++
	now := s.now

	// deferred transitions requested against the running task since the
	// last scheduling point
	if s.running != nil && s.running.State != StateRunning {
		if s.running.State == StateDeleted {
			s.reg.reclaim(s.running)
		}
		s.running = nil
	}

	s.drainEmergencies()
	// Cooperative mode services timers only while no task holds the CPU, the
	// same starvation exposure the labs' hogged timer task has; preemptive
	// mode services them every tick.
	if s.mode == Preemptive || s.running == nil {
		s.timers.fire(now, timerOps{s}, s.emit)
	}
	s.releasePeriodic(now)
	if s.agingTicks > 0 {
		s.applyAging(now)
	}

	if s.running != nil && s.mode == Preemptive {
		preempt := false
		if top := s.ready.peek(); top != nil && top.effPriority() > s.running.effPriority() {
			preempt = true
		}
		if now-s.runStart >= s.sliceTicks {
			preempt = true
		}
		if preempt {
			s.requeue(s.running, now)
			s.emit(StatusEvent{Kind: StatusPreempt, Task: s.running.ID, RanTicks: s.acct.ranTotals[s.running.ID]})
			s.running = nil
		}
	}

	if s.running == nil {
		next := s.ready.pop()
		if next == nil {
			s.acct.recordIdle()
			s.acct.recordOverhead(time.Since(t0))
			s.emit(StatusEvent{Kind: StatusIdle})
			evs := s.flush()
			s.mu.Unlock()
			s.publish(evs)
			return DispatchResult{Idle: true}
		}
		s.dispatch(next, now)
	}

	cur := s.running
	cur.LastRunTick = now
	s.acct.recordRun(cur.ID, now)
	evs := s.flush()
	ctx := s.stepCtx
	s.mu.Unlock()
	s.publish(evs)

	// the lock is dropped here so the step may call back into the scheduler
	verdict := cur.step(ctx)

	s.mu.Lock()
	if s.running == cur && cur.State == StateRunning {
		s.applyVerdict(cur, verdict, now)
	}
	s.acct.recordOverhead(time.Since(t0))
	evs = s.flush()
	s.mu.Unlock()
	s.publish(evs)

	return DispatchResult{Task: cur.ID}
}

func (s *Scheduler) dispatch(t *Task, now Tick) {
	t.State = StateRunning
	t.LastRunTick = now
	t.RunCount++
	t.boost = 0
	s.running = t
	s.runStart = now
	s.acct.recordDispatch(t.ID, now)

	ev := StatusEvent{Kind: StatusDispatch, Task: t.ID}
	if t.emergencyPending {
		t.emergencyPending = false
		s.lastEmergency = now - t.emergencyTick
		s.emergencySeen = true
		ev.Latency = s.lastEmergency
	}
	if t.Period > 0 && t.Deadline > 0 && now-t.release > t.Deadline {
		s.emit(StatusEvent{Kind: StatusLateDispatch, Task: t.ID, Overrun: now - t.release - t.Deadline})
	}
	s.emit(ev)
}

func (s *Scheduler) applyVerdict(t *Task, v Verdict, now Tick) {
	switch v {
	case Continue:
		// stays Running
	case Yield:
		s.requeue(t, now)
		s.emit(StatusEvent{Kind: StatusYield, Task: t.ID})
		s.running = nil
	case Block:
		s.block(t, now)
		s.emit(StatusEvent{Kind: StatusBlock, Task: t.ID})
		s.running = nil
	case Done:
		if t.Period > 0 {
			s.block(t, now)
			s.emit(StatusEvent{Kind: StatusBlock, Task: t.ID, RanTicks: s.acct.ranTotals[t.ID]})
		} else {
			t.State = StateDeleted
			s.reg.reclaim(t)
			s.emit(StatusEvent{Kind: StatusFinish, Task: t.ID, RanTicks: s.acct.ranTotals[t.ID]})
		}
		s.running = nil
	}
}

func (s *Scheduler) requeue(t *Task, now Tick) {
	t.State = StateReady
	t.readySince = now
	s.ready.push(t)
}

// block parks the task; periodic tasks get their next release scheduled,
// skipping releases that are already in the past rather than catching up.
func (s *Scheduler) block(t *Task, now Tick) {
	t.State = StateBlocked
	if t.Period > 0 {
		t.nextRelease = t.release + t.Period
		for t.nextRelease <= now {
			t.nextRelease += t.Period
		}
	}
}

func (s *Scheduler) releasePeriodic(now Tick) {
	s.reg.forEach(func(t *Task) {
		if t.State != StateBlocked || t.Period == 0 || t.nextRelease > now {
			return
		}
		t.State = StateReady
		t.release = t.nextRelease
		t.readySince = now
		s.ready.push(t)
		s.emit(StatusEvent{Kind: StatusEnqueue, Task: t.ID})
	})
}

// applyAging boosts tasks that have waited in the ready queue, one priority
// level per agingTicks of waiting, so low-priority tasks cannot starve.
func (s *Scheduler) applyAging(now Tick) {
	s.reg.forEach(func(t *Task) {
		if t.State != StateReady || !t.queued {
			return
		}
		boost := int((now - t.readySince) / s.agingTicks)
		if boost != t.boost {
			s.ready.remove(t)
			t.boost = boost
			s.ready.push(t)
		}
	})
}

func (s *Scheduler) drainEmergencies() {
	for {
		select {
		case sig := <-s.emergencyCh:
			t, err := s.reg.lookup(sig.id)
			if err != nil || t.State == StateDeleted {
				continue
			}
			t.emergencyPending = true
			t.emergencyTick = sig.at
			switch t.State {
			case StateSuspended, StateBlocked:
				t.State = StateReady
				t.readySince = s.now
				t.release = s.now
				s.ready.push(t)
			case StateRunning:
				// already on the CPU; latency is zero
				t.emergencyPending = false
				s.lastEmergency = 0
				s.emergencySeen = true
			}
			s.emit(StatusEvent{Kind: StatusEmergency, Task: t.ID})
		default:
			return
		}
	}
}

// emit queues an event for publication once the lock is released.
func (s *Scheduler) emit(ev StatusEvent) {
	ev.Time = time.Now()
	ev.Tick = s.now
	s.pending = append(s.pending, ev)
}

func (s *Scheduler) flush() []StatusEvent {
	evs := s.pending
	s.pending = nil
	return evs
}

// publish sends without blocking; the dispatcher must never stall on a slow
// or absent consumer.
func (s *Scheduler) publish(evs []StatusEvent) {
	for _, ev := range evs {
		select {
		case s.statusCh <- ev:
		default:
			s.droppedEvents.Add(1)
		}
	}
}

// Run drives Tick off a wall-clock TickClock and consumes the event stream
// until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.stepCtx = ctx
	s.clock = NewTickClock(256)
	clock := s.clock
	s.mu.Unlock()

	clock.Start(time.Duration(s.tickMS) * time.Millisecond)
	go func() {
		defer clock.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-clock.C:
				s.Tick()
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			if s.csv != nil {
				s.csv.close()
			}
			return nil
		case ev := <-s.statusCh:
			s.handleEvent(ev)
		}
	}
}

func (s *Scheduler) handleEvent(ev StatusEvent) {
	if s.csv != nil && ev.Kind != StatusIdle {
		s.csv.write(ev)
	}

	var l *zerolog.Event
	switch ev.Kind {
	case StatusIdle:
		return
	case StatusDeadlineMiss, StatusLateDispatch, StatusEmergency:
		l = s.log.Warn()
	case StatusEnqueue, StatusFinish, StatusDelete:
		l = s.log.Info()
	default:
		l = s.log.Debug()
	}
	e := l.Stringer("event", ev.Kind).Int64("tick", int64(ev.Tick))
	if ev.Task != 0 {
		e = e.Uint64("task", uint64(ev.Task))
	}
	if ev.Timer != 0 {
		e = e.Uint64("timer", uint64(ev.Timer))
	}
	if ev.Latency != 0 {
		e = e.Int64("latency_ticks", int64(ev.Latency))
	}
	if ev.Overrun != 0 {
		e = e.Int64("overrun_ticks", int64(ev.Overrun))
	}
	e.Msg("sched")
}

// timerOps adapts the scheduler's unlocked internals for timer callbacks,
// which already run under the scheduler lock.
type timerOps struct{ s *Scheduler }

func (o timerOps) Now() Tick { return o.s.now }

func (o timerOps) Resume(id TaskID) error  { return o.s.resumeLocked(id) }
func (o timerOps) Suspend(id TaskID) error { return o.s.suspendLocked(id) }

// SignalEmergency from a callback marks the target directly; the dispatch
// happens later in the same tick or on the next one.
func (o timerOps) SignalEmergency(id TaskID) error {
	s := o.s
	t, err := s.reg.lookup(id)
	if err != nil {
		return err
	}
	if t.State == StateDeleted {
		return ErrUnknownTask
	}
	t.emergencyPending = true
	t.emergencyTick = s.now
	switch t.State {
	case StateSuspended, StateBlocked:
		t.State = StateReady
		t.readySince = s.now
		t.release = s.now
		s.ready.push(t)
	case StateRunning:
		t.emergencyPending = false
		s.lastEmergency = 0
		s.emergencySeen = true
	}
	s.emit(StatusEvent{Kind: StatusEmergency, Task: id})
	return nil
}

func (o timerOps) StartTimer(id TimerID) error { return o.s.timers.start(id, o.s.now) }
func (o timerOps) StopTimer(id TimerID) error  { return o.s.timers.stop(id) }
func (o timerOps) ResetTimer(id TimerID) error { return o.s.timers.reset(id, o.s.now) }
func (o timerOps) ChangeTimerPeriod(id TimerID, p Tick) error {
	return o.s.timers.changePeriod(id, p, o.s.now)
}
