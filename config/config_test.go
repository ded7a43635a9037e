// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"net"
	"testing"
)

func TestDefaultWatchdogConfig(t *testing.T) {
	c := DefaultConfig.Watchdog
	if c.FeedingPeriodNs == 0 {
		t.Fatal("Default feeding period must be positive")
	}
	if c.EarlyFeedLimitNs > c.FeedingPeriodNs {
		t.Errorf("Default early feed limit %d exceeds period %d, the window would always be open",
			c.EarlyFeedLimitNs, c.FeedingPeriodNs)
	}
	if c.DisableAuto {
		t.Error("Default config must not ship with timeouts disabled")
	}
}

func TestDefaultMetricsAddr(t *testing.T) {
	if _, _, err := net.SplitHostPort(DefaultConfig.MetricsAddr); err != nil {
		t.Errorf("MetricsAddr %q does not parse: %v", DefaultConfig.MetricsAddr, err)
	}
}
