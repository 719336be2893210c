package job

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"tinysched/internal/sched"
)

func TestFixedWorkResetsBetweenActivations(t *testing.T) {
	step := FixedWork(3)
	ctx := context.Background()

	for activation := 0; activation < 2; activation++ {
		assert.Equal(t, sched.Continue, step(ctx))
		assert.Equal(t, sched.Continue, step(ctx))
		assert.Equal(t, sched.Done, step(ctx))
	}
}

func TestYieldingWorkYieldsEveryTick(t *testing.T) {
	step := YieldingWork(2)
	ctx := context.Background()

	assert.Equal(t, sched.Yield, step(ctx))
	assert.Equal(t, sched.Done, step(ctx))
}

func TestCountingWraps(t *testing.T) {
	var n int64
	step := Counting(&n, Hog())
	ctx := context.Background()

	step(ctx)
	step(ctx)
	assert.EqualValues(t, 2, n)
	assert.Equal(t, sched.Continue, step(ctx))
}

func TestBlockingBlocks(t *testing.T) {
	assert.Equal(t, sched.Block, Blocking()(context.Background()))
}
