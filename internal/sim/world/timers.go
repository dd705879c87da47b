package world

import (
	"time"
)

// timer fires on the world clock, never on wall time. Tests drive it with Step.
type timer struct {
	id    uint64
	at    time.Time
	every time.Duration
	fn    func()
	dead  bool
}

// After runs fn once, d after the current world time.
func (w *World) After(d time.Duration, fn func()) (cancel func()) {
	return w.schedule(d, 0, fn)
}

// Every runs fn each interval until cancelled. It satisfies navigation.Scheduler.
func (w *World) Every(interval time.Duration, fn func()) (cancel func()) {
	if interval <= 0 {
		interval = w.cfg.TickInterval()
	}
	return w.schedule(interval, interval, fn)
}

func (w *World) schedule(d, every time.Duration, fn func()) func() {
	if d < 0 {
		d = 0
	}
	w.timerSeq++
	t := &timer{id: w.timerSeq, at: w.now.Add(d), every: every, fn: fn}
	w.timers = append(w.timers, t)
	return func() { t.dead = true }
}

// runTimers fires every due timer in (due time, creation) order. Timers added
// by a callback run in the same pass if they are already due.
func (w *World) runTimers() {
	for {
		var next *timer
		for _, t := range w.timers {
			if t.dead || t.at.After(w.now) {
				continue
			}
			if next == nil || t.at.Before(next.at) || (t.at.Equal(next.at) && t.id < next.id) {
				next = t
			}
		}
		if next == nil {
			break
		}
		if next.every > 0 {
			next.at = next.at.Add(next.every)
		} else {
			next.dead = true
		}
		next.fn()
	}
	live := w.timers[:0]
	for _, t := range w.timers {
		if !t.dead {
			live = append(live, t)
		}
	}
	for i := len(live); i < len(w.timers); i++ {
		w.timers[i] = nil
	}
	w.timers = live
}

func (w *World) pendingTimers() int {
	n := 0
	for _, t := range w.timers {
		if !t.dead {
			n++
		}
	}
	return n
}
