// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"slices"
	"sync"
	"time"
)

// Fake returns a FakeClock frozen at initial. Time moves only when
// Advance is called.
func Fake(initial time.Time) *FakeClock {
	c := &FakeClock{now: initial}
	c.changed = sync.NewCond(&c.mu)
	return c
}

// FakeClock is a deterministic Clock for tests. It is safe for
// concurrent use.
//
// AfterFunc callbacks run synchronously inside Advance, in deadline
// order, without the clock's lock held. A callback may call Now, arm
// new timers, or stop timers, but must not call Advance.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*pendingTimer
	changed *sync.Cond
}

// pendingTimer is one armed After, AfterFunc, or ticker.
type pendingTimer struct {
	deadline time.Time
	period   time.Duration  // non-zero for tickers
	channel  chan time.Time // After and tickers
	callback func()         // AfterFunc
	active   bool
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After returns a channel that receives once the clock has advanced by
// at least d.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.now
		return channel
	}
	c.armLocked(&pendingTimer{deadline: c.now.Add(d), channel: channel})
	return channel
}

// AfterFunc arms f to run once the clock has advanced by at least d.
// If d <= 0, f runs before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	timer := &pendingTimer{callback: f}
	if d <= 0 {
		f()
	} else {
		c.mu.Lock()
		timer.deadline = c.now.Add(d)
		c.armLocked(timer)
		c.mu.Unlock()
	}

	return &Timer{
		stop: func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			return c.disarmLocked(timer)
		},
		reset: func(d time.Duration) bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			wasActive := c.disarmLocked(timer)
			timer.deadline = c.now.Add(d)
			c.armLocked(timer)
			return wasActive
		},
	}
}

// NewTicker returns a ticker firing every d of fake time.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	timer := &pendingTimer{deadline: c.now.Add(d), period: d, channel: channel}
	c.armLocked(timer)

	return &Ticker{
		C: channel,
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.disarmLocked(timer)
		},
	}
}

// Advance moves the clock forward by d and fires every timer whose
// deadline is at or before the new time, earliest first. A ticker
// spanning several periods fires once per period; ticks that do not
// fit in its channel are dropped.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now
	c.mu.Unlock()

	for {
		timer, ok := c.popDue(target)
		if !ok {
			return
		}
		if timer.callback != nil {
			timer.callback()
			continue
		}
		select {
		case timer.channel <- target:
		default:
		}
	}
}

// popDue removes and returns the earliest due timer, re-arming tickers.
func (c *FakeClock) popDue(target time.Time) (*pendingTimer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	index := -1
	for i, timer := range c.pending {
		if timer.deadline.After(target) {
			continue
		}
		if index < 0 || timer.deadline.Before(c.pending[index].deadline) {
			index = i
		}
	}
	if index < 0 {
		return nil, false
	}

	timer := c.pending[index]
	c.pending = slices.Delete(c.pending, index, index+1)
	timer.active = false
	if timer.period > 0 {
		fired := *timer
		timer.deadline = timer.deadline.Add(timer.period)
		c.armLocked(timer)
		return &fired, true
	}
	return timer, true
}

// WaitForTimers blocks until at least n timers are pending.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.pending) < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of armed timers.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *FakeClock) armLocked(timer *pendingTimer) {
	timer.active = true
	c.pending = append(c.pending, timer)
	c.changed.Broadcast()
}

func (c *FakeClock) disarmLocked(timer *pendingTimer) bool {
	if !timer.active {
		return false
	}
	timer.active = false
	c.pending = slices.DeleteFunc(c.pending, func(p *pendingTimer) bool { return p == timer })
	c.changed.Broadcast()
	return true
}
