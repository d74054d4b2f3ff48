/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package runloop

import (
	"sort"
	"time"
)

// ManualClock is a Scheduler driven by explicit Advance calls, for tests.
// Timers fire in deadline order (ties in scheduling order) on the caller's
// goroutine; if Loop is set it is drained after every fired timer so posted
// continuations interleave the way they would in production.
type ManualClock struct {
	Loop *Loop

	now    time.Duration
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	at       time.Duration
	seq      int
	fn       func()
	canceled bool
}

func NewManualClock(l *Loop) *ManualClock { return &ManualClock{Loop: l} }

// Now is the elapsed virtual time.
func (c *ManualClock) Now() time.Duration { return c.now }

func (c *ManualClock) After(d time.Duration, fn func()) func() {
	if d < 0 {
		d = 0
	}
	c.seq++
	t := &manualTimer{at: c.now + d, seq: c.seq, fn: fn}
	c.timers = append(c.timers, t)
	return func() { t.canceled = true }
}

// Pending reports timers that have not fired or been cancelled.
func (c *ManualClock) Pending() int {
	n := 0
	for _, t := range c.timers {
		if !t.canceled {
			n++
		}
	}
	return n
}

// Advance moves virtual time forward by d, firing every timer that comes
// due, including timers scheduled by the timers it fires.
func (c *ManualClock) Advance(d time.Duration) {
	target := c.now + d
	for {
		t := c.next(target)
		if t == nil {
			break
		}
		c.now = t.at
		t.canceled = true
		t.fn()
		if c.Loop != nil {
			c.Loop.Drain()
		}
	}
	c.now = target
}

// RunAll fires timers until none are left, however far in the future.
// limit bounds the number of fired timers to protect tests from loops.
func (c *ManualClock) RunAll(limit int) int {
	n := 0
	for n < limit {
		t := c.next(time.Duration(1<<62 - 1))
		if t == nil {
			break
		}
		c.now = t.at
		t.canceled = true
		t.fn()
		if c.Loop != nil {
			c.Loop.Drain()
		}
		n++
	}
	return n
}

func (c *ManualClock) next(until time.Duration) *manualTimer {
	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.canceled {
			live = append(live, t)
		}
	}
	c.timers = live
	if len(live) == 0 {
		return nil
	}
	sort.SliceStable(live, func(i, j int) bool {
		if live[i].at != live[j].at {
			return live[i].at < live[j].at
		}
		return live[i].seq < live[j].seq
	})
	if live[0].at > until {
		return nil
	}
	return live[0]
}
