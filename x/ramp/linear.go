package ramp

import (
	"context"
	"errors"
	"time"

	"codecctl-go/x/mathx"
)

// ErrCancelled is returned when Tick stops a ramp early.
var ErrCancelled = errors.New("ramp: cancelled")

// Step applies one set of intermediate levels; an error stops the ramp.
type Step func(levels []int) error

// Tick waits for d and reports whether to continue (false => cancelled).
type Tick func(d time.Duration) bool

// ContextTick sleeps d unless ctx is done first.
func ContextTick(ctx context.Context) Tick {
	return func(d time.Duration) bool {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
			return true
		}
	}
}

// Linear moves every channel from cur to to in steps equal increments
// spread over d. Channels move in lockstep and the last step always lands
// exactly on to. steps<=1 or d<=0 snaps to to.
func Linear(cur, to []int, d time.Duration, steps int, tick Tick, set Step) error {
	if len(cur) != len(to) {
		return errors.New("ramp: channel count mismatch")
	}
	if steps <= 1 || d <= 0 {
		return set(append([]int(nil), to...))
	}

	stepDur := d / time.Duration(steps)
	if stepDur <= 0 {
		stepDur = time.Millisecond
	}
	level := append([]int(nil), cur...)
	acc := make([]int, len(cur))

	for i := 1; i < steps; i++ {
		if !tick(stepDur) {
			return ErrCancelled
		}
		for ch := range level {
			acc[ch] += to[ch] - cur[ch]
			inc := acc[ch] / steps
			if inc != 0 {
				acc[ch] -= inc * steps
				lo, hi := cur[ch], to[ch]
				level[ch] = mathx.Clamp(level[ch]+inc, lo, hi)
			}
		}
		if err := set(append([]int(nil), level...)); err != nil {
			return err
		}
	}
	if !tick(stepDur) {
		return ErrCancelled
	}
	return set(append([]int(nil), to...))
}
