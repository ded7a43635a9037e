// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"github.com/u-root/strictwdt/pkg/hardware/watchdog"
)

type Config struct {
	Watchdog watchdog.Config

	// MetricsAddr is where the simulator serves /metrics.
	MetricsAddr string

	// StateFile, if set, receives a state snapshot after every accepted
	// feed. Empty disables snapshotting.
	StateFile string
}

var DefaultConfig = &Config{
	// The philosophy behind the default timing is that the window should
	// be as narrow as software can reliably hit. A one second period with
	// a one second early-feed limit keeps the window open the whole
	// period, which is forgiving enough for bring-up; production systems
	// are expected to shrink EarlyFeedLimitNs well below the period so
	// that only software tracking the DEADLINE register can feed in time.
	//
	// DisableAuto is off: a system that stops feeding gets reset. Turning
	// it on only mutes the timeout path; violations reset regardless, so
	// protocol bugs stay visible even in diagnostic mode.
	Watchdog: watchdog.Config{
		DisableAuto:      false,
		FeedingPeriodNs:  watchdog.NanosecondsPerSecond,
		EarlyFeedLimitNs: watchdog.NanosecondsPerSecond,
	},

	MetricsAddr: "[::]:9371",
}
