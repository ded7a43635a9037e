// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package watchdog

import (
	"testing"
)

func TestTransformKnownValues(t *testing.T) {
	// Values computed independently from the register-level definition:
	// ((recipe>>8)|1)^(recipe&0xFFFF) with 32-bit truncation, XOR the
	// bit-reversed recipe.
	vectors := []struct {
		in, out uint32
	}{
		{0x00000000, 0x00000001},
		{0x00000001, 0x80000001},
		{0x00000100, 0x00800001},
		{0x12345678, 0xc1b96b89},
		{0xDEADBEEF, 0x8f6b9344},
		{0xFFFFFFFF, 0x01000000},
		// The seed for a greet at t=200000000 (^uint32(now)).
		{0xf4143dff, 0x9aa6b33a},
	}
	for _, v := range vectors {
		if got := Transform(v.in); got != v.out {
			t.Errorf("Transform(%08x) = %08x, want %08x", v.in, got, v.out)
		}
	}
}

func TestTransformDeterminism(t *testing.T) {
	for in := uint32(0); in < 4096; in += 7 {
		a := Transform(in)
		b := Transform(in)
		if a != b {
			t.Fatalf("Transform(%08x) unstable: %08x then %08x", in, a, b)
		}
	}
}

func TestTransformOddBaseNeverCollapses(t *testing.T) {
	// The base is forced odd, so the exponentiation result is odd and the
	// low bit of the output is the complement of the recipe's top bit.
	for _, in := range []uint32{0x200, 0xFF00, 0x80000400, 0xCAFE0000} {
		got := Transform(in)
		want := uint32(1) ^ (in >> 31)
		if got&1 != want {
			t.Errorf("Transform(%08x) = %08x, low bit %d, want %d", in, got, got&1, want)
		}
	}
}

func TestPowTruncated(t *testing.T) {
	cases := []struct {
		base uint32
		exp  uint16
		out  uint32
	}{
		{1, 0, 1},
		{1, 0xFFFF, 1},
		{3, 0, 1},
		{3, 1, 3},
		{3, 4, 81},
		{2, 32, 0}, // wraps to zero
	}
	for _, c := range cases {
		if got := powTruncated(c.base, c.exp); got != c.out {
			t.Errorf("powTruncated(%d, %d) = %d, want %d", c.base, c.exp, got, c.out)
		}
	}
}
