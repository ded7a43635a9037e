// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package watchdog

import "github.com/u-root/strictwdt/pkg/service/metric"

// Auto is the autonomous debugging variant: a fixed one-shot timer with no
// feed protocol at all. It fires once, one period after construction, and
// invokes its action; it never rearms. Useful for pausing a system under a
// debugger at a known point, nothing more.
type Auto struct {
	sched  Scheduler
	action Action
}

var autoExpirations = metric.Counter(metric.MetricOpts{
	Namespace: "strictwdt", Subsystem: "auto", Name: "expirations_total",
}, nil)

func NewAuto(periodNs uint64, sched Scheduler, action Action) *Auto {
	a := &Auto{sched: sched, action: action}
	now := sched.Now()
	sched.Schedule(now+periodNs, a.expired)
	log.Infof("Autonomous watchdog initialized at %d.", now)
	return a
}

func (a *Auto) expired() {
	log.Infof("Autonomous watchdog expired at %d.", a.sched.Now())
	a.sched.Cancel()
	autoExpirations.Inc()
	a.action()
}

// Close cancels the timer if it has not fired yet.
func (a *Auto) Close() {
	a.sched.Cancel()
}
