// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package watchdog

import "math/bits"

// Transform derives the expected feed value from a recipe. It is also used
// to derive the recipe itself from the current virtual time, so a full
// protocol round applies it twice. The function is deliberately cheap rather
// than cryptographic; it only has to defeat software whose feeding works by
// accident.
//
// The computation is fixed: raise the base packed in the upper recipe bits
// to the 16-bit exponent in the lower bits, truncating every multiplication
// to 32 bits, then XOR with the bit-reversed recipe.
func Transform(recipe uint32) uint32 {
	// Force the base odd. An even base collapses to 0 under repeated
	// squaring and would make most recipes share one answer.
	food := powTruncated((recipe>>8)|1, uint16(recipe))
	return food ^ bits.Reverse32(recipe)
}

// powTruncated is square-and-multiply over the 16 exponent bits, MSB first,
// in ordinary wrapping uint32 arithmetic.
func powTruncated(base uint32, exp uint16) uint32 {
	out := uint32(1)
	for i := 15; i >= 0; i-- {
		out *= out
		if exp&(1<<uint(i)) != 0 {
			out *= base
		}
	}
	return out
}
