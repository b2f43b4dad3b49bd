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

import "github.com/cespare/xxhash/v2"

type stringEntry[V any] struct {
	key   string
	value V
}

// StringMap maps string keys to values on top of a Map. Keys are hashed to
// 32 bits with xxhash; keys whose hashes collide share a run of duplicate
// entries in the underlying Map and are told apart by comparing the strings.
//
// A StringMap is goroutine-safe in the same way as a Map.
type StringMap[V any] struct {
	m    *Map[stringEntry[V]]
	hash func(key string) uint32
}

// NewStringMap constructs an empty StringMap. maxLoad has the same meaning
// as for New. dispose, if not nil, is called once for every value leaving
// the map.
func NewStringMap[V any](maxLoad float32, dispose func(value V)) (*StringMap[V], error) {
	var options []option[stringEntry[V]]
	if dispose != nil {
		options = append(options, WithDisposer(func(e stringEntry[V]) {
			dispose(e.value)
		}))
	}
	m, err := New[stringEntry[V]](maxLoad, options...)
	if err != nil {
		return nil, err
	}
	return &StringMap[V]{m: m, hash: hashString}, nil
}

// hashString folds the 64-bit xxhash of key into 32 bits.
func hashString(key string) uint32 {
	h := xxhash.Sum64String(key)
	return uint32(h) ^ uint32(h>>32)
}

// Put inserts an entry into the map, overwriting (and disposing) the value
// of an existing entry with the same key.
func (s *StringMap[V]) Put(key string, value V) {
	s.m.PutFunc(s.hash(key), stringEntry[V]{key: key, value: value}, func(old stringEntry[V]) bool {
		return old.key == key
	})
}

// Get retrieves the value for the specified key, returning ok=false if the
// key is not present.
func (s *StringMap[V]) Get(key string) (value V, ok bool) {
	for _, e := range s.m.Find(s.hash(key)) {
		if e.key == key {
			return e.value, true
		}
	}
	return value, false
}

// Delete deletes the entry for the specified key, reporting whether it was
// present.
func (s *StringMap[V]) Delete(key string) bool {
	return s.m.DeleteFunc(s.hash(key), func(e stringEntry[V]) bool {
		return e.key == key
	}) > 0
}

// Len returns the number of entries in the map.
func (s *StringMap[V]) Len() int {
	return s.m.Len()
}

// All calls yield sequentially for each key and value present in the map.
// If yield returns false, All stops the iteration.
func (s *StringMap[V]) All(yield func(key string, value V) bool) {
	s.m.All(func(_ uint32, e stringEntry[V]) bool {
		return yield(e.key, e.value)
	})
}

// Clear disposes of every value and empties the map.
func (s *StringMap[V]) Clear() {
	s.m.Clear()
}

// Close disposes of every value and releases the map. It is invalid to
// modify a StringMap after it has been closed.
func (s *StringMap[V]) Close() {
	s.m.Close()
}
