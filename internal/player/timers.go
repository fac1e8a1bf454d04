package player

import (
	"sync/atomic"
	"time"
)

// DelayedTask is a cancellable delayed action. Arming records a new
// generation and fires the action only if the generation is still
// current when the delay elapses, so Disarm (or a newer Arm) anywhere
// before expiry cancels the pending action without extra bookkeeping.
type DelayedTask struct {
	gen atomic.Uint64
}

func (t *DelayedTask) Arm(d time.Duration, fn func()) {
	gen := t.gen.Add(1)
	time.AfterFunc(d, func() {
		if t.gen.Load() == gen {
			fn()
		}
	})
}

func (t *DelayedTask) Disarm() {
	t.gen.Add(1)
}
