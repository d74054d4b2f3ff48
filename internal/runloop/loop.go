/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package runloop provides the single logical thread the interpreter runs
// on. Work from other goroutines (asset loads, timers, UI input) is posted
// to a Loop and executed in order; nothing touches interpreter state
// concurrently.
package runloop

import (
	"context"
	"runtime/debug"
	"sync"
	"time"
)

// Loop is a FIFO of continuations. Post is safe from any goroutine; Run and
// Drain must only be used from one goroutine at a time.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	onPanic func(v any, stack []byte)
}

func New() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post enqueues fn. It never blocks and never runs fn inline.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// OnPanic installs h to receive panics raised by continuations. The panic
// is contained to the continuation that raised it and the loop keeps
// draining. Without a handler panics propagate to the caller of Drain.
func (l *Loop) OnPanic(h func(v any, stack []byte)) {
	l.mu.Lock()
	l.onPanic = h
	l.mu.Unlock()
}

// Pending reports the number of queued continuations.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *Loop) pop() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

// Drain runs queued continuations, including ones posted while draining,
// until the queue is empty. It returns how many ran.
func (l *Loop) Drain() int {
	n := 0
	for {
		fn, ok := l.pop()
		if !ok {
			return n
		}
		l.invoke(fn)
		n++
	}
}

func (l *Loop) invoke(fn func()) {
	l.mu.Lock()
	h := l.onPanic
	l.mu.Unlock()
	if h == nil {
		fn()
		return
	}
	defer func() {
		if r := recover(); r != nil {
			h(r, debug.Stack())
		}
	}()
	fn()
}

// Run processes continuations until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.Drain()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Scheduler runs fn after d on the interpreter's thread. The returned
// cancel func is idempotent; after it returns, fn will not run.
type Scheduler interface {
	After(d time.Duration, fn func()) (cancel func())
}

// TimerScheduler backs Scheduler with real timers whose callbacks are
// posted to Loop.
type TimerScheduler struct {
	Loop *Loop
}

func (s TimerScheduler) After(d time.Duration, fn func()) func() {
	var (
		mu       sync.Mutex
		canceled bool
	)
	t := time.AfterFunc(d, func() {
		s.Loop.Post(func() {
			mu.Lock()
			c := canceled
			mu.Unlock()
			if !c {
				fn()
			}
		})
	})
	return func() {
		mu.Lock()
		canceled = true
		mu.Unlock()
		t.Stop()
	}
}
