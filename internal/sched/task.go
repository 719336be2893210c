package sched

import "context"

// Tick is the scheduler's logical time unit. The counter is monotonic and
// advanced only by Tick().
type Tick int64

// TaskID uniquely identifies a task in the scheduler.
type TaskID uint64

// Priority bounds. 0 is the lowest priority; numerically higher wins.
const (
	MinPriority = 0
	MaxPriority = 31
)

// TaskState is the lifecycle state of a task control block.
type TaskState int

const (
	StateReady TaskState = iota
	StateRunning
	StateBlocked
	StateSuspended
	StateDeleted
)

func (st TaskState) String() string {
	switch st {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateBlocked:
		return "blocked"
	case StateSuspended:
		return "suspended"
	case StateDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Verdict is returned by a task step to tell the dispatcher what to do next.
type Verdict int

const (
	// Continue keeps the task Running; the dispatcher steps it again on the
	// next tick unless it is preempted first.
	Continue Verdict = iota
	// Yield requeues the task as Ready (voluntary yield point).
	Yield
	// Block parks the task until Resume (or, for periodic tasks, the next
	// release tick).
	Block
	// Done completes the current activation. Periodic tasks block until their
	// next release; one-off tasks are reclaimed.
	Done
)

// StepFunc is one unit of task work. The dispatcher runs exactly one step of
// the Running task per tick; ctx is canceled when the scheduler shuts down.
// Steps must not block.
type StepFunc func(ctx context.Context) Verdict

// Task is a task control block. All fields are owned by the scheduler and
// must only be touched with its lock held.
type Task struct {
	ID       TaskID
	Name     string
	Priority int
	State    TaskState
	Period   Tick // 0 = not periodic
	Deadline Tick // 0 = no release deadline

	LastRunTick Tick
	RunCount    int64

	step StepFunc

	// dispatcher-private bookkeeping
	boost       int  // aging boost added to Priority
	queued      bool // currently in the ready queue
	queueKey    readyKey
	readySince  Tick // tick the task last became Ready
	release     Tick // tick of the current activation's release
	nextRelease Tick // pending release for a blocked periodic task
	periodSet   bool

	emergencyPending bool
	emergencyTick    Tick
}

func (t *Task) effPriority() int { return t.Priority + t.boost }

// TaskOption configures a task at registration time.
type TaskOption func(*Task)

// WithPeriod makes the task periodic: after each completed activation it
// blocks until the next release tick. p < 1 is rejected with
// ErrInvalidPeriod at registration.
func WithPeriod(p Tick) TaskOption {
	return func(t *Task) {
		t.Period = p
		t.periodSet = true
	}
}

// WithDeadline sets a release deadline: a periodic task dispatched more than
// d ticks after its release emits a StatusLateDispatch diagnostic.
func WithDeadline(d Tick) TaskOption {
	return func(t *Task) { t.Deadline = d }
}

func newTask(id TaskID, name string, priority int, step StepFunc, opts ...TaskOption) *Task {
	// clamp priority within the legal region
	if priority < MinPriority {
		priority = MinPriority
	} else if priority > MaxPriority {
		priority = MaxPriority
	}

	t := &Task{
		ID:       id,
		Name:     name,
		Priority: priority,
		State:    StateReady,
		step:     step,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}
