// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package watchdog

import (
	"sync"
	"time"

	"github.com/jmhodges/clock"
)

// Scheduler is the virtual time source and one-shot deadline timer the
// watchdogs run on. Time is a monotonic nanosecond count starting at zero
// when the scheduler is created.
//
// Schedule rearms the single outstanding deadline; a deadline that is
// already due fires promptly. After Cancel returns, a callback that has not
// yet started will never be delivered. Delivery happens on the scheduler's
// own goroutine and is not serialized against anything else; callers that
// need serialization (Strict does) must provide their own.
type Scheduler interface {
	Now() uint64
	Schedule(deadline uint64, fn func())
	Cancel()
}

// SystemScheduler runs deadlines against a clock.Clock. Production use
// passes clock.New(); tests can pass clock.NewFake() to control Now while
// still dispatching on real timers.
type SystemScheduler struct {
	clk   clock.Clock
	epoch time.Time

	mu    sync.Mutex
	gen   uint64
	timer *time.Timer
}

func NewSystemScheduler(clk clock.Clock) *SystemScheduler {
	return &SystemScheduler{clk: clk, epoch: clk.Now()}
}

func (s *SystemScheduler) Now() uint64 {
	return uint64(s.clk.Now().Sub(s.epoch))
}

func (s *SystemScheduler) Schedule(deadline uint64, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	var delay time.Duration
	if now := s.Now(); deadline > now {
		delay = time.Duration(deadline - now)
	}
	s.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		live := gen == s.gen
		s.mu.Unlock()
		if live {
			fn()
		}
	})
}

func (s *SystemScheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
