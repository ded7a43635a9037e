// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
	"github.com/spf13/afero"

	"github.com/u-root/strictwdt/pkg/hardware/watchdog"
	"github.com/u-root/strictwdt/pkg/service/metric"
)

var feedLatency = metric.Histogram(metric.MetricOpts{
	Namespace: "strictwdt", Subsystem: "caretaker", Name: "feed_latency_seconds",
}, nil)

// caretaker plays the supervised software: it waits for the feed window,
// reads a recipe from GREET, computes Transform of it and writes the result
// to FEED. Fault modes make it misbehave in one specific way each.
type caretaker struct {
	wd        *watchdog.Strict
	mm        *watchdog.Mmio
	sched     watchdog.Scheduler
	fault     string
	fs        afero.Fs
	statePath string
	resetCh   chan struct{}
	reboot    *backoff.Backoff
}

func (c *caretaker) run(ctx context.Context) error {
	for {
		var wait time.Duration
		if c.fault == "starve" {
			// Never feed. Resets (or nothing, with -disable-auto)
			// arrive on resetCh and pace the loop.
			wait = time.Duration(1<<62 - 1)
		} else {
			wait = c.untilWindow()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.resetCh:
			// The system just got reset; stay down for the
			// simulated reboot before resuming service.
			d := c.reboot.Duration()
			log.Infof("caretaker: observed reset, rebooting for %v", d)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
			}
			continue
		case <-time.After(wait):
		}

		c.feedOnce()
	}
}

// untilWindow returns how long to sleep to land in the middle of the feed
// window. Aiming for the middle keeps the simulator away from both edges,
// where wall-clock timer lag could otherwise push an access past the
// deadline. The "early" fault aims a quarter window before it opens instead.
func (c *caretaker) untilWindow() time.Duration {
	deadline := c.wd.DeadlineNs()
	early := c.wd.EarlyFeedLimitNs()
	margin := early / 2
	if c.fault == "early" {
		margin = early + early/4
	}
	if margin >= deadline {
		return 0
	}
	target := deadline - margin
	now := c.sched.Now()
	if target <= now {
		return 0
	}
	return time.Duration(target - now)
}

func (c *caretaker) feedOnce() {
	start := time.Now()
	switch c.fault {
	case "wrong-food":
		recipe := c.mm.Read(watchdog.RegGreet, 4)
		c.mm.Write(watchdog.RegFeed, watchdog.Transform(recipe)+1, 4)
	case "double-greet":
		c.mm.Read(watchdog.RegGreet, 4)
		c.mm.Read(watchdog.RegGreet, 4)
	default:
		// The honest round, possibly mistimed by the "early" fault.
		recipe := c.mm.Read(watchdog.RegGreet, 4)
		c.mm.Write(watchdog.RegFeed, watchdog.Transform(recipe), 4)
		feedLatency.UpdateDuration(start)
		c.reboot.Reset()
		c.snapshot()
	}
}

func (c *caretaker) snapshot() {
	if c.statePath == "" {
		return
	}
	if err := watchdog.SaveState(c.fs, c.statePath, c.wd.Snapshot()); err != nil {
		log.Errorf("caretaker: snapshot failed: %v", err)
	}
}
