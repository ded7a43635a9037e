// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package watchdog

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/spf13/afero"
)

// State is the flat snapshot of a strict watchdog, for checkpointing and
// migration. TimerDeadlineNs duplicates NextExpirationTime because the timer
// is persisted as its own field; the two never diverge in a valid snapshot.
type State struct {
	FeedingPeriodNs    uint64 `cbor:"feeding_period_ns"`
	EarlyFeedLimitNs   uint64 `cbor:"early_feed_limit_ns"`
	WasGreeted         bool   `cbor:"was_greeted"`
	NextFoodExpected   uint32 `cbor:"next_food_expected"`
	NextExpirationTime uint64 `cbor:"next_expiration_time"`
	TimerDeadlineNs    uint64 `cbor:"timer_deadline_ns"`
}

// Snapshot captures the current state.
func (w *Strict) Snapshot() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return State{
		FeedingPeriodNs:    w.cfg.FeedingPeriodNs,
		EarlyFeedLimitNs:   w.cfg.EarlyFeedLimitNs,
		WasGreeted:         w.wasGreeted,
		NextFoodExpected:   w.nextFoodExpected,
		NextExpirationTime: w.nextExpirationTime,
		TimerDeadlineNs:    w.nextExpirationTime,
	}
}

// Restore overwrites the watchdog with a snapshot and rearms its timer at
// the snapshotted deadline. The scheduler the snapshot is restored onto must
// share the time base the snapshot was taken under.
func (w *Strict) Restore(s State) error {
	if s.FeedingPeriodNs == 0 {
		return fmt.Errorf("restore watchdog: feeding period must be positive")
	}
	if s.TimerDeadlineNs != s.NextExpirationTime {
		return fmt.Errorf("restore watchdog: timer deadline %d diverges from protocol deadline %d",
			s.TimerDeadlineNs, s.NextExpirationTime)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cfg.FeedingPeriodNs = s.FeedingPeriodNs
	w.cfg.EarlyFeedLimitNs = s.EarlyFeedLimitNs
	w.wasGreeted = s.WasGreeted
	w.nextFoodExpected = s.NextFoodExpected
	w.nextExpirationTime = s.NextExpirationTime
	w.sched.Schedule(w.nextExpirationTime, w.timerExpired)
	return nil
}

// SaveState writes a snapshot to path.
func SaveState(fs afero.Fs, path string, s State) error {
	b, err := cbor.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode watchdog state: %w", err)
	}
	if err := afero.WriteFile(fs, path, b, 0600); err != nil {
		return fmt.Errorf("write watchdog state: %w", err)
	}
	return nil
}

// LoadState reads a snapshot from path.
func LoadState(fs afero.Fs, path string) (State, error) {
	var s State
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return s, fmt.Errorf("read watchdog state: %w", err)
	}
	if err := cbor.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("decode watchdog state: %w", err)
	}
	return s, nil
}
