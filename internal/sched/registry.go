package sched

import "fmt"

// registry is the fixed-capacity task control block table. It hands out dense
// ids and reclaims slots on deletion so the table never grows past capacity.
// Not safe for concurrent use; the scheduler's lock covers it.
type registry struct {
	capacity int
	slots    []*Task
	byID     map[TaskID]int
	byName   map[string]int
	nextID   TaskID
}

func newRegistry(capacity int) *registry {
	return &registry{
		capacity: capacity,
		slots:    make([]*Task, capacity),
		byID:     make(map[TaskID]int, capacity),
		byName:   make(map[string]int, capacity),
	}
}

func (r *registry) register(name string, priority int, step StepFunc, opts ...TaskOption) (*Task, error) {
	if _, dup := r.byName[name]; dup {
		return nil, fmt.Errorf("%w: task %q", ErrDuplicateName, name)
	}

	slot := -1
	for i, t := range r.slots {
		if t == nil {
			slot = i
			break
		}
	}
	if slot < 0 {
		return nil, fmt.Errorf("%w: task table holds %d entries", ErrCapacityExceeded, r.capacity)
	}

	r.nextID++
	t := newTask(r.nextID, name, priority, step, opts...)
	if t.periodSet && t.Period < 1 {
		return nil, fmt.Errorf("%w: task period %d", ErrInvalidPeriod, t.Period)
	}

	r.slots[slot] = t
	r.byID[t.ID] = slot
	r.byName[name] = slot
	return t, nil
}

func (r *registry) lookup(id TaskID) (*Task, error) {
	slot, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownTask, id)
	}
	return r.slots[slot], nil
}

// reclaim frees the task's slot for reuse. The id stays retired.
func (r *registry) reclaim(t *Task) {
	slot, ok := r.byID[t.ID]
	if !ok {
		return
	}
	delete(r.byID, t.ID)
	delete(r.byName, t.Name)
	r.slots[slot] = nil
}

func (r *registry) live() int { return len(r.byID) }

func (r *registry) forEach(fn func(*Task)) {
	for _, t := range r.slots {
		if t != nil {
			fn(t)
		}
	}
}
