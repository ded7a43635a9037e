// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package watchdog

// Register offsets of the strict watchdog MMIO window.
const (
	RegGreet       uintptr = 0x00
	RegFeed        uintptr = 0x04
	RegDeadline    uintptr = 0x08
	RegEarlyOffset uintptr = 0x0C
	MmioSize       uintptr = 0x10
)

// Mmio maps the four 32-bit registers of a strict watchdog onto its
// operations, for whatever bus model carries the accesses. Every access must
// be exactly 4 bytes wide and land on a register boundary; a malformed
// access is itself a protocol violation and resets the system.
type Mmio struct {
	w *Strict
}

func NewMmio(w *Strict) *Mmio {
	return &Mmio{w: w}
}

func (m *Mmio) Read(addr uintptr, size uint) uint32 {
	if size != 4 {
		m.w.accessViolation(addr, size)
		return 0
	}
	switch addr {
	case RegGreet:
		return m.w.Greet()
	case RegFeed:
		// FEED is write-only.
		m.w.accessViolation(addr, size)
		return 0
	case RegDeadline:
		return uint32(m.w.DeadlineNs())
	case RegEarlyOffset:
		return uint32(m.w.EarlyFeedLimitNs())
	default:
		m.w.accessViolation(addr, size)
		return 0
	}
}

func (m *Mmio) Write(addr uintptr, value uint32, size uint) {
	if size != 4 {
		m.w.accessViolation(addr, size)
		return
	}
	switch addr {
	case RegFeed:
		m.w.Feed(value)
	default:
		// GREET, DEADLINE and EARLY_OFFSET are read-only.
		m.w.accessViolation(addr, size)
	}
}

func (w *Strict) accessViolation(addr uintptr, size uint) {
	w.mu.Lock()
	now := w.sched.Now()
	log.Errorf("Strict watchdog rejected %d byte access at %#02x.", size, addr)
	w.violationLocked(now, vRegisterAccess)
	w.mu.Unlock()
	w.fireReset()
}
