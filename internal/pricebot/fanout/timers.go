package fanout

import (
	"sync/atomic"
	"time"

	"github.com/m3rciful/pricebot/core/state"
)

// pendingTimer is one armed fallback. claimed is flipped exactly once, either
// by the timer firing or by Cancel; the loser does nothing.
type pendingTimer struct {
	timer   *time.Timer
	claimed atomic.Bool
}

func (p *pendingTimer) claim() bool { return p.claimed.CompareAndSwap(false, true) }

// Timers holds the armed fallback timers keyed by inquiry id.
type Timers struct {
	pending *state.Store[*pendingTimer]
}

// NewTimers returns an empty registry.
func NewTimers() *Timers {
	return &Timers{pending: state.New[*pendingTimer]()}
}

// Arm schedules fn to run after delay unless Cancel claims inquiryID first.
// Re-arming an id cancels the previous timer.
func (t *Timers) Arm(inquiryID string, delay time.Duration, fn func()) {
	p := &pendingTimer{}
	t.pending.Update(inquiryID, func(cur *pendingTimer, exists bool) (*pendingTimer, bool) {
		if exists && cur.claim() {
			cur.timer.Stop()
		}
		// The callback's DeleteIf blocks on the shard lock until Update
		// returns, so it always observes p in the store.
		p.timer = time.AfterFunc(delay, func() {
			if !p.claim() {
				return
			}
			t.pending.DeleteIf(inquiryID, func(v *pendingTimer) bool { return v == p })
			fn()
		})
		return p, true
	})
}

// Cancel stops the timer for inquiryID. It reports whether this call won the
// claim; cancelling an absent, fired or already cancelled timer returns false.
func (t *Timers) Cancel(inquiryID string) bool {
	p, ok := t.pending.LoadAndDelete(inquiryID)
	if !ok || !p.claim() {
		return false
	}
	p.timer.Stop()
	return true
}

// Armed reports whether inquiryID has a pending fallback.
func (t *Timers) Armed(inquiryID string) bool {
	_, ok := t.pending.Get(inquiryID)
	return ok
}

// Len returns the number of armed timers.
func (t *Timers) Len() int { return t.pending.Len() }

// Close cancels every armed timer.
func (t *Timers) Close() {
	var ids []string
	t.pending.Range(func(id string, _ *pendingTimer) bool {
		ids = append(ids, id)
		return true
	})
	for _, id := range ids {
		t.Cancel(id)
	}
}
