// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sohash

import "math/bits"

// reverse returns the bit-reversal of k. Bit 31 of k becomes bit 0 of the
// result and vice versa.
func reverse(k uint32) uint32 {
	return bits.Reverse32(k)
}

// dataKey returns the split-order key of a data node holding k. The low bit
// is always set so that a data node sorts after the sentinel of its bucket.
// The low bit replaces bit 31 of k, so k and k^(1<<31) map to the same
// split-order key.
func dataKey(k uint32) uint32 {
	return reverse(k) | 1
}

// sentinelKey returns the split-order key of the sentinel heading bucket i.
// Bucket indexes never use bit 31, so the result is always even.
func sentinelKey(i uint32) uint32 {
	return reverse(i)
}

// parent returns the bucket that bucket i was split from: i with its highest
// set bit cleared. The parent of bucket 0 is bucket 0.
func parent(i uint32) uint32 {
	if i == 0 {
		return 0
	}
	return i &^ (1 << (bits.Len32(i) - 1))
}
