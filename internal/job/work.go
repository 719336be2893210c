// Package job provides canned task bodies for demos and tests. These stand
// in for the busy-wait workloads the firmware labs simulate; the scheduler
// itself only sees StepFunc values.
package job

import (
	"context"
	"time"

	"tinysched/internal/sched"
)

// FixedWork returns a body that occupies the CPU for n consecutive ticks per
// activation, then completes. The counter resets so periodic tasks reuse it.
func FixedWork(n int) sched.StepFunc {
	done := 0
	return func(ctx context.Context) sched.Verdict {
		done++
		if done >= n {
			done = 0
			return sched.Done
		}
		return sched.Continue
	}
}

// YieldingWork is like FixedWork but gives up the CPU after every tick, the
// cooperative-lab pattern of a voluntary yield point per work chunk.
func YieldingWork(n int) sched.StepFunc {
	done := 0
	return func(ctx context.Context) sched.Verdict {
		done++
		if done >= n {
			done = 0
			return sched.Done
		}
		return sched.Yield
	}
}

// Hog never finishes and never yields. Under cooperative scheduling it
// starves everything else, which is the point of the demo.
func Hog() sched.StepFunc {
	return func(ctx context.Context) sched.Verdict {
		return sched.Continue
	}
}

// Blocking runs one tick then blocks until resumed, the shape of an
// event-driven handler task.
func Blocking() sched.StepFunc {
	return func(ctx context.Context) sched.Verdict {
		return sched.Block
	}
}

// SpinWork burns roughly d of wall time per tick before continuing, for
// demos that want ticks to cost something. Simulation scaffolding only.
func SpinWork(d time.Duration, ticks int) sched.StepFunc {
	done := 0
	return func(ctx context.Context) sched.Verdict {
		deadline := time.Now().Add(d)
		for time.Now().Before(deadline) {
			if ctx.Err() != nil {
				return sched.Done
			}
		}
		done++
		if done >= ticks {
			done = 0
			return sched.Done
		}
		return sched.Continue
	}
}

// Counting wraps another body and bumps n on every step, for observing how
// often a task actually ran.
func Counting(n *int64, body sched.StepFunc) sched.StepFunc {
	return func(ctx context.Context) sched.Verdict {
		*n++
		return body(ctx)
	}
}
