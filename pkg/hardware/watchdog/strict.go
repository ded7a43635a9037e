// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package watchdog models a challenge-response watchdog for high-assurance
// systems. It is not an emulation of any real watchdog chip.
//
// The strict variant must be fed within a predefined window of time; feeding
// it early or late means the software is malfunctioning and triggers a
// reset. Feeding requires reading a recipe from one register, computing
// Transform of it, and writing the result to a second register, which
// minimizes the chance that malfunctioning code feeds it by accident.
package watchdog

import (
	"fmt"
	"sync"

	"github.com/u-root/strictwdt/pkg/service/logger"
	"github.com/u-root/strictwdt/pkg/service/metric"
)

var log = logger.LogContainer.GetSimpleLogger()

const NanosecondsPerSecond uint64 = 1000 * 1000 * 1000

// Config is fixed at construction time.
type Config struct {
	// DisableAuto suppresses the reset action when the watchdog simply
	// times out, for debugging a system that cannot feed yet. Protocol
	// violations trigger the action regardless.
	DisableAuto bool
	// FeedingPeriodNs is the nominal interval between required feeds.
	// Must be positive.
	FeedingPeriodNs uint64
	// EarlyFeedLimitNs is how long before the deadline greeting and
	// feeding open up. The accepted window is
	// [deadline-EarlyFeedLimitNs, deadline].
	EarlyFeedLimitNs uint64
}

// Action performs the external reset or pause consequence. It must not call
// back into the watchdog that invoked it.
type Action func()

// Violation reasons, used as the metric label and logged with each reset.
const (
	vEarlyGreet     = "early_greet"
	vDoubleGreet    = "double_greet"
	vEarlyFeed      = "early_feed"
	vUngreetedFeed  = "ungreeted_feed"
	vWrongFood      = "wrong_food"
	vRegisterAccess = "register_access"
)

var (
	greets = metric.Counter(metric.MetricOpts{
		Namespace: "strictwdt", Subsystem: "strict", Name: "greets_total",
	}, nil)
	feeds = metric.Counter(metric.MetricOpts{
		Namespace: "strictwdt", Subsystem: "strict", Name: "feeds_total",
	}, nil)
	expirations = metric.Counter(metric.MetricOpts{
		Namespace: "strictwdt", Subsystem: "strict", Name: "expirations_total",
	}, nil)
	resets = metric.Counter(metric.MetricOpts{
		Namespace: "strictwdt", Subsystem: "strict", Name: "resets_total",
	}, nil)
)

func violations(reason string) {
	metric.Counter(metric.MetricOpts{
		Namespace: "strictwdt", Subsystem: "strict", Name: "violations_total",
	}, []string{`reason="` + reason + `"`}).Inc()
}

// Strict is the challenge-response watchdog. All operations on one instance
// are serialized by its mutex; the scheduler callback reenters through the
// same mutex.
type Strict struct {
	cfg    Config
	sched  Scheduler
	action Action

	mu                 sync.Mutex
	closed             bool
	wasGreeted         bool
	nextFoodExpected   uint32
	nextExpirationTime uint64
}

// New arms a strict watchdog with its first deadline one feeding period from
// now. The caller keeps ownership and must Close it to stop the timer.
func New(cfg Config, sched Scheduler, action Action) *Strict {
	if cfg.FeedingPeriodNs == 0 {
		log.Panicf("strict watchdog: feeding period must be positive")
	}
	w := &Strict{cfg: cfg, sched: sched, action: action}
	now := sched.Now()
	w.nextExpirationTime = now + cfg.FeedingPeriodNs
	sched.Schedule(w.nextExpirationTime, w.timerExpired)
	log.Infof("Strict watchdog initialized at %d.", now)
	metric.Gauge(metric.MetricOpts{
		Namespace: "strictwdt", Subsystem: "strict", Name: "deadline_ns",
	}, nil, func() float64 {
		return float64(w.DeadlineNs())
	})
	return w
}

// Greet opens a protocol round and returns the recipe whose Transform the
// next Feed must supply. Greeting outside the window, or while a round is
// already open, is a violation and returns 0 after triggering the reset
// action.
func (w *Strict) Greet() uint32 {
	w.mu.Lock()
	now := w.sched.Now()
	w.assertNotExpiredLocked(now)

	if now+w.cfg.EarlyFeedLimitNs < w.nextExpirationTime {
		w.violationLocked(now, vEarlyGreet)
		w.mu.Unlock()
		w.fireReset()
		return 0
	}
	if w.wasGreeted {
		w.violationLocked(now, vDoubleGreet)
		w.mu.Unlock()
		w.fireReset()
		return 0
	}

	// The recipe is derived from the current time so that replaying a
	// previously observed round never works twice.
	recipe := Transform(^uint32(now))
	w.wasGreeted = true
	w.nextFoodExpected = Transform(recipe)
	w.mu.Unlock()
	greets.Inc()
	return recipe
}

// Feed closes the protocol round opened by the last Greet. The value must be
// Transform of that greet's recipe and must arrive inside the same window;
// anything else is a violation. An accepted feed nudges the deadline out by
// exactly one feeding period.
func (w *Strict) Feed(value uint32) {
	w.mu.Lock()
	now := w.sched.Now()
	w.assertNotExpiredLocked(now)

	reason := ""
	switch {
	case now+w.cfg.EarlyFeedLimitNs < w.nextExpirationTime:
		reason = vEarlyFeed
	case !w.wasGreeted:
		reason = vUngreetedFeed
	case value != w.nextFoodExpected:
		reason = vWrongFood
	}
	if reason != "" {
		w.violationLocked(now, reason)
		w.mu.Unlock()
		w.fireReset()
		return
	}

	w.deferDeadlineLocked(now)
	w.wasGreeted = false
	w.mu.Unlock()
	feeds.Inc()
}

// DeadlineNs returns the absolute virtual time by which the next valid feed
// must complete.
func (w *Strict) DeadlineNs() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nextExpirationTime
}

// EarlyFeedLimitNs returns the width of the accepted window, measured
// backward from the deadline.
func (w *Strict) EarlyFeedLimitNs() uint64 {
	return w.cfg.EarlyFeedLimitNs
}

// Close cancels the outstanding deadline. The instance must not be used
// afterwards; a timer callback already in flight is discarded.
func (w *Strict) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.sched.Cancel()
}

// timerExpired runs when the deadline passes without a valid feed. The
// deadline always advances by one period and the timer rearms, so the
// machine keeps running whether or not the reset action fires.
func (w *Strict) timerExpired() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	now := w.sched.Now()
	log.Infof("Strict watchdog expired at %d.", now)
	if now < w.nextExpirationTime {
		log.Panicf("strict watchdog: timer fired at %d before deadline %d", now, w.nextExpirationTime)
	}
	w.nextExpirationTime += w.cfg.FeedingPeriodNs
	if now >= w.nextExpirationTime {
		log.Panicf("strict watchdog: feeding period %d cannot keep deadline ahead of clock %d", w.cfg.FeedingPeriodNs, now)
	}
	w.sched.Schedule(w.nextExpirationTime, w.timerExpired)

	// Any open protocol round is discarded with the missed deadline.
	w.wasGreeted = false
	fire := !w.cfg.DisableAuto
	w.mu.Unlock()

	expirations.Inc()
	if fire {
		w.fireReset()
	}
}

// deferDeadlineLocked pushes the deadline out by one feeding period, but
// only if it is within one period of now. A feed therefore cannot stack the
// deadline arbitrarily far into the future.
func (w *Strict) deferDeadlineLocked(now uint64) {
	w.assertNotExpiredLocked(now)
	if w.nextExpirationTime <= now+w.cfg.FeedingPeriodNs {
		w.nextExpirationTime += w.cfg.FeedingPeriodNs
		w.sched.Schedule(w.nextExpirationTime, w.timerExpired)
	}
}

// violationLocked records a protocol violation. The deadline is deferred so
// the timer does not pile a timeout onto the same instant, the open round is
// discarded, and the caller must invoke fireReset after unlocking: unlike a
// plain timeout, a violation resets even with DisableAuto set.
func (w *Strict) violationLocked(now uint64, reason string) {
	log.Errorf("Strict watchdog violation (%s) at %d.", reason, now)
	violations(reason)
	w.deferDeadlineLocked(now)
	w.wasGreeted = false
}

func (w *Strict) fireReset() {
	resets.Inc()
	w.action()
}

// assertNotExpiredLocked panics if the clock has run past the scheduled
// deadline. The scheduler contract says the expiry callback fires first and
// advances the deadline, so reaching this state means the surrounding timing
// model is broken, not that the caller misbehaved.
func (w *Strict) assertNotExpiredLocked(now uint64) {
	if now > w.nextExpirationTime {
		log.Panicf("strict watchdog: clock %d ran past scheduled deadline %d", now, w.nextExpirationTime)
	}
}

func (w *Strict) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return fmt.Sprintf("strict watchdog, deadline %d, greeted %v", w.nextExpirationTime, w.wasGreeted)
}
