package mqttmsgr

import "time"

// Clock schedules the client's timers. Tests substitute a virtual clock.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a scheduled call that can be cancelled.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// loopTimer runs fn on the dispatch loop. It is owned by the loop, so once
// stop returns fn will not run even if the clock already fired.
type loopTimer struct {
	t       Timer
	stopped bool
}

func (c *Client) after(d time.Duration, fn func()) *loopTimer {
	lt := &loopTimer{}
	lt.t = c.clock.AfterFunc(d, func() {
		c.post(func() {
			if !lt.stopped {
				lt.stopped = true
				fn()
			}
		})
	})
	return lt
}

func (lt *loopTimer) stop() {
	if lt != nil && !lt.stopped {
		lt.stopped = true
		lt.t.Stop()
	}
}
