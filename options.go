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

// option provide an interface to do work on Map while it is being created.
type option[V any] interface {
	apply(m *Map[V])
}

type disposerOption[V any] struct {
	dispose func(value V)
}

func (op disposerOption[V]) apply(m *Map[V]) {
	m.dispose = op.dispose
}

// WithDisposer is an option to specify the function that releases a value
// once it leaves a Map[V]. The disposer is called exactly once per value that
// is deleted, overwritten by Put, or dropped by Clear or Close. It is invoked
// while the Map's write lock is held: it must not panic and must not call
// back into the same Map.
func WithDisposer[V any](dispose func(value V)) option[V] {
	return disposerOption[V]{dispose}
}

// Allocator specifies an interface for allocating and releasing the bucket
// table used by a Map. The default allocator utilizes Go's builtin make() and
// allows the GC to reclaim memory.
//
// The bucket table is replaced wholesale every time the Map doubles. A
// reader that loaded the previous table before the swap may still be walking
// it, so an allocator that recycles the slices passed to FreeBuckets must
// not be combined with concurrent readers.
type Allocator[V any] interface {
	// AllocBuckets should return a slice equivalent to make([]Bucket[V], n).
	AllocBuckets(n int) []Bucket[V]

	// FreeBuckets can optional release the memory associated with the
	// supplied slice that is guaranteed to have been allocated by
	// AllocBuckets.
	FreeBuckets(b []Bucket[V])
}

type defaultAllocator[V any] struct{}

func (defaultAllocator[V]) AllocBuckets(n int) []Bucket[V] {
	return make([]Bucket[V], n)
}

func (defaultAllocator[V]) FreeBuckets(b []Bucket[V]) {
}

type allocatorOption[V any] struct {
	allocator Allocator[V]
}

func (op allocatorOption[V]) apply(m *Map[V]) {
	m.allocator = op.allocator
}

// WithAllocator is an option for specify the Allocator to use for a Map[V].
func WithAllocator[V any](allocator Allocator[V]) option[V] {
	return allocatorOption[V]{allocator}
}
