// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package watchdog

import (
	"testing"
	"time"

	"github.com/jmhodges/clock"
)

func TestSystemSchedulerNowTracksClock(t *testing.T) {
	fc := clock.NewFake()
	s := NewSystemScheduler(fc)
	if got := s.Now(); got != 0 {
		t.Fatalf("fresh scheduler Now() = %d, want 0", got)
	}
	fc.Add(5 * time.Second)
	if got := s.Now(); got != 5*second {
		t.Errorf("Now() after 5s = %d, want %d", got, 5*second)
	}
}

func TestSystemSchedulerFiresDueDeadline(t *testing.T) {
	s := NewSystemScheduler(clock.New())
	defer s.Cancel()

	fired := make(chan struct{})
	// Deadline already due: must fire promptly, not hang.
	s.Schedule(s.Now(), func() { close(fired) })
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("due deadline never fired")
	}
}

func TestSystemSchedulerRearmSupersedes(t *testing.T) {
	s := NewSystemScheduler(clock.New())
	defer s.Cancel()

	fired := make(chan int, 2)
	s.Schedule(s.Now()+uint64(time.Hour), func() { fired <- 1 })
	s.Schedule(s.Now()+uint64(10*time.Millisecond), func() { fired <- 2 })
	select {
	case got := <-fired:
		if got != 2 {
			t.Fatalf("superseded deadline fired (%d)", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("rearmed deadline never fired")
	}
	select {
	case got := <-fired:
		t.Fatalf("stale deadline fired (%d)", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSystemSchedulerCancel(t *testing.T) {
	s := NewSystemScheduler(clock.New())

	fired := make(chan struct{}, 1)
	s.Schedule(s.Now()+uint64(50*time.Millisecond), func() { fired <- struct{}{} })
	s.Cancel()
	select {
	case <-fired:
		t.Fatal("canceled deadline fired")
	case <-time.After(300 * time.Millisecond):
	}
}
