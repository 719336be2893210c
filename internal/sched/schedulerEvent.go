// internal/sched/schedulerEvent.go

package sched

import (
	"time"
)

// StatusKind represents the type of scheduler event
type StatusKind int

const (
	StatusIdle StatusKind = iota
	StatusEnqueue
	StatusDispatch
	StatusPreempt
	StatusYield
	StatusBlock
	StatusFinish
	StatusSuspend
	StatusResume
	StatusDelete
	StatusEmergency
	StatusTimerFired
	StatusDeadlineMiss
	StatusLateDispatch
)

// StatusEvent is emitted on every state transition the dispatcher makes.
// Task and Timer are zero when the event concerns neither.
type StatusEvent struct {
	Time     time.Time
	Tick     Tick
	Kind     StatusKind
	Task     TaskID
	Timer    TimerID
	Latency  Tick  // StatusDispatch after an emergency: signal-to-dispatch distance
	Overrun  Tick  // StatusDeadlineMiss / StatusLateDispatch: ticks past the deadline
	RanTicks int64 // cumulative ticks the task has run, where known
}

func (sk StatusKind) String() string {
	switch sk {
	case StatusIdle:
		return "Idle"
	case StatusEnqueue:
		return "Enqueued"
	case StatusDispatch:
		return "Dispatch"
	case StatusPreempt:
		return "Preempt"
	case StatusYield:
		return "Yield"
	case StatusBlock:
		return "Block"
	case StatusFinish:
		return "Finish"
	case StatusSuspend:
		return "Suspend"
	case StatusResume:
		return "Resume"
	case StatusDelete:
		return "Delete"
	case StatusEmergency:
		return "Emergency"
	case StatusTimerFired:
		return "TimerFired"
	case StatusDeadlineMiss:
		return "DeadlineMiss"
	case StatusLateDispatch:
		return "LateDispatch"
	default:
		return "Unknown"
	}
}
