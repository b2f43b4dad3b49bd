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

// Package sohash is a Go implementation of split-ordered hash tables as
// described in Shalev and Shavit, "Split-Ordered Lists: Lock-Free Extensible
// Hash Tables" (JACM 2006).
//
// # Split-Ordered Lists
//
// A split-ordered table keeps every entry in a single singly-linked list
// sorted by a "split-order" key, and a bucket table whose slots point into
// that list. Keys are 32-bit unsigned integers. The split-order key (SO-key)
// of an entry is its key with the bits reversed and the low bit set. Each
// bucket is headed by a sentinel node whose SO-key is the bit-reversal of
// the bucket index, which always has the low bit clear. Sorting on reversed
// bits groups every key with the same low-order bits into one contiguous
// run that directly follows the sentinel of their bucket.
//
// Setting the low bit discards bit 31 of the key, so a key k and k^(1<<31)
// share an SO-key. Such keys sit next to each other in one run of equal
// SO-keys and are told apart by the key stored in each node; the entries of
// a single key are always contiguous within that run.
//
// Consider a table of 4 buckets holding the keys 8, 2, 6 and 5 (8-bit keys
// are used for readability):
//
//	bucket:     0           2                       1
//	           +----+     +----+                   +----+
//	list:      | S0 | --> | S2 | ---------------> | S1 | ----------->
//	           +----+     +----+                   +----+
//	SO-key:     0x00  0x11  0x40  0x41  0x61       0x80  0xa1
//	node:       S0    8     S2    2     6          S1    5
//
// Bucket 3 has never been used, so its slot is empty and it has no sentinel
// yet. When bucket 3 is first written, its sentinel is created by splitting
// its parent bucket (the index with the highest set bit cleared, here 1) and
// so on recursively, which is why bucket 0 is always initialized first.
//
// When the table doubles to 8 buckets, the keys of bucket 2 are divided
// between buckets 2 and 6 according to bit 2 of the key. Because of the
// reversed ordering all the keys that move to bucket 6 already sit at the
// tail of bucket 2's run: the split consists of linking a sentinel with
// SO-key 0x60 in front of key 6 and pointing slot 6 at it. No entry is moved
// or rehashed:
//
//	           +----+     +----+     +----+        +----+     +----+
//	list:      | S0 | --> | S2 | --> | S6 | -----> | S1 | --> | S5 | -->
//	           +----+     +----+     +----+        +----+     +----+
//	SO-key:     0x00  0x11  0x40  0x41  0x60  0x61  0x80  0xa0  0xa1
//	node:       S0    8     S2    2     S6    6     S1    S5    5
//
// Bucket 4 would be split from bucket 0, but no key of bucket 0 has bit 2
// set, so slot 4 is left empty and initialized lazily if it is ever written.
//
// # Concurrency
//
// A single mutex serializes all mutations. Lookups and iteration do not take
// the mutex: every link in the list, every bucket slot and the bucket table
// itself are published with atomic stores, and a node is always completely
// linked before it becomes reachable. A concurrent reader therefore observes
// the list either before or after any insertion, deletion or split, never a
// torn state. A node unlinked by a deletion keeps its next pointer so a
// reader positioned on it continues on the live list.
package sohash

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sys/cpu"
)

const (
	debug = false

	// maxTableIndexBits bounds the bucket table at 2^31 slots. Doubling past
	// it would require a bucket index with bit 31 set, whose sentinel SO-key
	// is odd and indistinguishable from a data node.
	maxTableIndexBits = 31
)

// ErrInvalidMaxLoad is returned by New when the maximum load factor is not
// a positive number.
var ErrInvalidMaxLoad = errors.New("sohash: max load must be positive")

var errClosed = errors.New("sohash: use of closed Map")

// AddPolicy determines what Add does when the key is already present.
type AddPolicy int8

const (
	// ReplaceExisting overwrites the value of the first entry with the key.
	ReplaceExisting AddPolicy = iota
	// ReturnFalseOnExisting leaves the map untouched and reports false.
	ReturnFalseOnExisting
	// AddDuplicate inserts another entry with the same key in front of the
	// existing ones.
	AddDuplicate
)

func (p AddPolicy) String() string {
	switch p {
	case ReplaceExisting:
		return "replace-existing"
	case ReturnFalseOnExisting:
		return "return-false-on-existing"
	case AddDuplicate:
		return "add-duplicate"
	default:
		return fmt.Sprintf("AddPolicy(%d)", int8(p))
	}
}

// Status is the outcome of Remove.
type Status int8

const (
	// Removed indicates at least one entry was removed.
	Removed Status = iota
	// NotFound indicates the key was not present.
	NotFound
)

func (s Status) String() string {
	if s == Removed {
		return "removed"
	}
	return "not-found"
}

// node is an element of the split-ordered list. The parity of soKey tells
// the two kinds apart: sentinels have an even soKey and no value, data nodes
// have an odd soKey, a key and a value. soKey does not determine key: see
// dataKey.
type node[V any] struct {
	soKey uint32
	key   uint32
	next  atomic.Pointer[node[V]]
	value atomic.Pointer[V]
}

func (n *node[V]) isSentinel() bool {
	return n.soKey&1 == 0
}

// Bucket is a slot of a Map's bucket table. It holds the sentinel node that
// starts the bucket's run of the list, or nil if the bucket has not been
// initialized.
type Bucket[V any] struct {
	head atomic.Pointer[node[V]]
}

// bucketTable is an immutably sized bucket table. Doubling builds a new
// bucketTable and publishes it with a single store to Map.table.
type bucketTable[V any] struct {
	buckets []Bucket[V]
	// bits is the number of low-order key bits used to address buckets.
	// len(buckets) == 1<<bits.
	bits uint
}

func (t *bucketTable[V]) size() int {
	return 1 << t.bits
}

func (t *bucketTable[V]) mask() uint32 {
	return uint32(1)<<t.bits - 1
}

// lookupHead returns the sentinel a search for key starts from. A slot that
// has not been initialized cannot hold any entry, but its keys would sort
// inside the run of its nearest initialized ancestor, so the search starts
// there instead. Bucket 0 is always initialized.
func (t *bucketTable[V]) lookupHead(key uint32) *node[V] {
	i := key & t.mask()
	for {
		if n := t.buckets[i].head.Load(); n != nil {
			return n
		}
		i = parent(i)
	}
}

// Map is a split-ordered hash table from uint32 keys to values with Add,
// Put, FindFirst, Find, Delete and All operations. A key may be stored more
// than once when added with the AddDuplicate policy.
//
// A Map is goroutine-safe. Mutations are serialized by an internal mutex;
// lookups and iteration are lock-free.
type Map[V any] struct {
	// mu is held by every mutation, including the doubling of the bucket
	// table triggered by an insertion.
	mu sync.Mutex
	_  cpu.CacheLinePad
	// table is the current bucket table, read without holding mu. It is nil
	// once the Map has been closed.
	table atomic.Pointer[bucketTable[V]]
	// The number of data nodes in the list.
	count atomic.Int64
	// maxLoad is the ratio of count to table size above which the table
	// doubles.
	maxLoad float32
	// dispose is invoked on every value leaving the map.
	dispose func(value V)
	// The allocator to use for the bucket tables.
	allocator Allocator[V]
}

// New constructs an empty Map with a bucket table of 2 slots that doubles
// whenever the number of entries exceeds maxLoad times the table size.
// maxLoad must be positive.
func New[V any](maxLoad float32, options ...option[V]) (*Map[V], error) {
	// The negated comparison also rejects NaN.
	if !(maxLoad > 0) {
		return nil, errors.Wrapf(ErrInvalidMaxLoad, "max load %v", maxLoad)
	}
	m := &Map[V]{
		maxLoad:   maxLoad,
		allocator: defaultAllocator[V]{},
	}
	for _, op := range options {
		op.apply(m)
	}
	if m.dispose == nil {
		m.dispose = func(V) {}
	}
	if m.allocator == nil {
		m.allocator = defaultAllocator[V]{}
	}
	m.table.Store(m.newTable())
	m.checkInvariants()
	return m, nil
}

// newTable returns the initial bucket table: 2 slots, with bucket 0 holding
// the head of an otherwise empty list.
func (m *Map[V]) newTable() *bucketTable[V] {
	t := &bucketTable[V]{
		buckets: m.allocator.AllocBuckets(2),
		bits:    1,
	}
	t.buckets[0].head.Store(&node[V]{soKey: sentinelKey(0)})
	return t
}

// Close disposes of every value and releases the bucket table back to the
// configured allocator. It is invalid to modify a Map after it has been
// closed, though Close itself is idempotent. Lookups on a closed Map report
// that the key is not present.
func (m *Map[V]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.table.Load()
	if t == nil {
		return
	}
	m.table.Store(nil)
	m.disposeAll(t)
	m.allocator.FreeBuckets(t.buckets)
	m.count.Store(0)
}

// Clear disposes of every value and resets the map to its initial state:
// an empty list and a bucket table of 2 slots.
func (m *Map[V]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.mustTable()
	if debug {
		fmt.Printf("clear: count=%d table-size=%d\n", m.count.Load(), t.size())
	}
	// Publish the empty table first so that readers stop finding values that
	// are about to be disposed.
	m.table.Store(m.newTable())
	m.disposeAll(t)
	m.allocator.FreeBuckets(t.buckets)
	m.count.Store(0)
	m.checkInvariants()
}

// disposeAll hands the value of every data node reachable from bucket 0 of
// t to the disposer.
func (m *Map[V]) disposeAll(t *bucketTable[V]) {
	for n := t.buckets[0].head.Load(); n != nil; n = n.next.Load() {
		if !n.isSentinel() {
			m.dispose(*n.value.Load())
		}
	}
}

// Put inserts an entry into the map, overwriting the value of an existing
// entry with the same key. The overwritten value is disposed.
func (m *Map[V]) Put(key uint32, value V) {
	m.Add(key, value, ReplaceExisting)
}

// Add inserts an entry into the map, resolving an existing entry with the
// same key according to policy. It returns false only if policy is
// ReturnFalseOnExisting and the key is already present. Add panics if policy
// is not one of the defined policies.
func (m *Map[V]) Add(key uint32, value V, policy AddPolicy) bool {
	switch policy {
	case ReplaceExisting, ReturnFalseOnExisting, AddDuplicate:
	default:
		panic(errors.Errorf("sohash: unknown add policy %s", policy))
	}
	soKey := dataKey(key)

	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.mustTable()
	// With AddDuplicate, prev is where the new entry goes in either case: in
	// front of the existing entries of key, or at the start of the run.
	prev, existing := seek(locate(m.bucket(t, key), soKey), key, soKey)
	if debug {
		fmt.Printf("add(%d, %s): so-key=%08x after=%08x\n", key, policy, soKey, prev.soKey)
	}

	if existing != nil {
		switch policy {
		case ReplaceExisting:
			old := existing.value.Swap(&value)
			if debug {
				fmt.Printf("add(replacing): key=%d old=%v new=%v\n", key, *old, value)
			}
			m.dispose(*old)
			m.checkInvariants()
			return true
		case ReturnFalseOnExisting:
			if debug {
				fmt.Printf("add(exists): key=%d\n", key)
			}
			return false
		}
	}

	m.insertAfter(t, prev, key, soKey, value)
	return true
}

// PutFunc overwrites the value of the first entry with the key for which
// match returns true, disposing the previous value. If no entry matches, a
// new entry is inserted in front of any existing entries with the key.
// PutFunc reports whether a value was overwritten. match is called with the
// write lock held: it must not panic and must not call back into the map.
func (m *Map[V]) PutFunc(key uint32, value V, match func(old V) bool) (replaced bool) {
	soKey := dataKey(key)

	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.mustTable()
	prev, existing := seek(locate(m.bucket(t, key), soKey), key, soKey)
	for n := existing; n != nil && n.soKey == soKey; n = n.next.Load() {
		if n.key != key || !match(*n.value.Load()) {
			continue
		}
		old := n.value.Swap(&value)
		if debug {
			fmt.Printf("put-func(replacing): key=%d old=%v new=%v\n", key, *old, value)
		}
		m.dispose(*old)
		m.checkInvariants()
		return true
	}

	m.insertAfter(t, prev, key, soKey, value)
	return false
}

// insertAfter links a new data node directly after prev and grows the table
// if the insertion pushed it over the maximum load. m.mu must be held.
func (m *Map[V]) insertAfter(t *bucketTable[V], prev *node[V], key, soKey uint32, value V) {
	n := &node[V]{soKey: soKey, key: key}
	n.value.Store(&value)
	// Link the node before publishing it so that readers never see a
	// truncated list.
	n.next.Store(prev.next.Load())
	prev.next.Store(n)
	m.count.Add(1)

	if debug {
		fmt.Printf("add(inserting): key=%d so-key=%08x count=%d\n", key, soKey, m.count.Load())
	}

	m.expandIfNeeded(t)
	m.checkInvariants()
}

// FindFirst retrieves the value of the first entry with the specified key,
// returning ok=false if the key is not present. When the key has duplicates
// the most recently added one is first.
func (m *Map[V]) FindFirst(key uint32) (value V, ok bool) {
	if n := m.first(key); n != nil {
		return *n.value.Load(), true
	}
	return value, false
}

// Ref returns a pointer to the value of the first entry with the specified
// key. The value may be read or mutated in place through the pointer, though
// synchronizing such accesses is up to the caller. The pointer no longer
// refers to the stored value once the entry is overwritten or deleted.
func (m *Map[V]) Ref(key uint32) (*V, bool) {
	if n := m.first(key); n != nil {
		return n.value.Load(), true
	}
	return nil, false
}

// Find returns the values of every entry with the specified key, most
// recently added first. It returns nil if the key is not present.
func (m *Map[V]) Find(key uint32) []V {
	var values []V
	soKey := dataKey(key)
	for n := m.first(key); n != nil && n.soKey == soKey; n = n.next.Load() {
		if n.key == key {
			values = append(values, *n.value.Load())
		}
	}
	return values
}

// first returns the first data node with the key, or nil.
func (m *Map[V]) first(key uint32) *node[V] {
	t := m.table.Load()
	if t == nil {
		return nil
	}
	soKey := dataKey(key)
	_, n := seek(locate(t.lookupHead(key), soKey), key, soKey)
	return n
}

// Delete deletes every entry with the specified key, returning the number of
// entries deleted. It is a noop to delete a non-existent key.
func (m *Map[V]) Delete(key uint32) int {
	return m.DeleteFunc(key, func(V) bool { return true })
}

// Remove deletes every entry with the specified key and reports whether
// anything was removed.
func (m *Map[V]) Remove(key uint32) Status {
	if m.Delete(key) > 0 {
		return Removed
	}
	return NotFound
}

// DeleteFunc deletes the entries with the specified key whose value
// satisfies pred, disposing each deleted value, and returns the number of
// entries deleted. Entries that do not satisfy pred are left in place. pred
// is called with the write lock held: it must not panic and must not call
// back into the map.
func (m *Map[V]) DeleteFunc(key uint32, pred func(value V) bool) int {
	soKey := dataKey(key)

	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.mustTable()
	prev := locate(t.lookupHead(key), soKey)

	var deleted int
	for n := prev.next.Load(); n != nil && n.soKey == soKey; n = prev.next.Load() {
		if n.key != key {
			prev = n
			continue
		}
		value := *n.value.Load()
		if !pred(value) {
			prev = n
			continue
		}
		// n keeps its next pointer so a reader currently on n carries on
		// along the list.
		prev.next.Store(n.next.Load())
		m.dispose(value)
		m.count.Add(-1)
		deleted++
	}

	if debug {
		fmt.Printf("delete(%d): deleted=%d count=%d\n", key, deleted, m.count.Load())
	}
	m.checkInvariants()
	return deleted
}

// All calls yield sequentially for each key and value present in the map,
// in split order. If yield returns false, All stops the iteration. The map
// can be mutated during iteration, though there is no guarantee that the
// mutations will be visible to the iteration.
func (m *Map[V]) All(yield func(key uint32, value V) bool) {
	t := m.table.Load()
	if t == nil {
		return
	}
	for n := t.buckets[0].head.Load().next.Load(); n != nil; n = n.next.Load() {
		if n.isSentinel() {
			continue
		}
		if !yield(n.key, *n.value.Load()) {
			return
		}
	}
}

// Len returns the number of entries in the map.
func (m *Map[V]) Len() int {
	return int(m.count.Load())
}

// TableSize returns the number of slots in the bucket table.
func (m *Map[V]) TableSize() int {
	if t := m.table.Load(); t != nil {
		return t.size()
	}
	return 0
}

// TableIndexBits returns the number of low-order key bits used to address
// the bucket table.
func (m *Map[V]) TableIndexBits() int {
	if t := m.table.Load(); t != nil {
		return int(t.bits)
	}
	return 0
}

// MaxLoad returns the load factor above which the bucket table doubles.
func (m *Map[V]) MaxLoad() float32 {
	return m.maxLoad
}

func (m *Map[V]) mustTable() *bucketTable[V] {
	t := m.table.Load()
	if t == nil {
		panic(errClosed)
	}
	return t
}

// bucket returns the sentinel of the bucket for key, initializing the bucket
// if needed. m.mu must be held.
func (m *Map[V]) bucket(t *bucketTable[V], key uint32) *node[V] {
	i := key & t.mask()
	if n := t.buckets[i].head.Load(); n != nil {
		return n
	}
	return m.initializeBucket(t, i)
}

// initializeBucket creates the sentinel for bucket i, which must be empty,
// initializing its parent bucket first if needed. m.mu must be held.
func (m *Map[V]) initializeBucket(t *bucketTable[V], i uint32) *node[V] {
	p := parent(i)
	start := t.buckets[p].head.Load()
	if start == nil {
		start = m.initializeBucket(t, p)
	}

	s := &node[V]{soKey: sentinelKey(i)}
	if n := listInsert(start, s); n != s {
		panic(errors.Errorf("sohash: bucket %d: found node %08x in place of its sentinel", i, n.soKey))
	}
	t.buckets[i].head.Store(s)

	if debug {
		fmt.Printf("initialize-bucket(%d): parent=%d so-key=%08x\n", i, p, s.soKey)
	}
	return s
}

// expandIfNeeded doubles the bucket table if the number of entries exceeds
// the maximum load. m.mu must be held.
func (m *Map[V]) expandIfNeeded(t *bucketTable[V]) {
	if t.bits >= maxTableIndexBits {
		return
	}
	if float64(m.count.Load()) <= float64(m.maxLoad)*float64(t.size()) {
		return
	}
	m.double(t)
}

// double replaces the bucket table t with one twice its size. Bucket i of t
// is split into buckets i and i+len(t): every key of bucket i that has bit
// t.bits set moves to the new bucket. In split order those keys form the
// tail of bucket i's run, so the split amounts to linking a new sentinel in
// front of the first of them. Buckets that were never initialized, or whose
// keys all stay put, leave the new slot empty. m.mu must be held.
func (m *Map[V]) double(t *bucketTable[V]) {
	oldSize := t.size()
	nt := &bucketTable[V]{
		buckets: m.allocator.AllocBuckets(2 * oldSize),
		bits:    t.bits + 1,
	}
	for i := 0; i < oldSize; i++ {
		nt.buckets[i].head.Store(t.buckets[i].head.Load())
	}

	// A node belongs to bucket i's run while the top t.bits bits of its
	// SO-key match those of bucket i's sentinel. Within the run, testBit is
	// the SO-key bit that becomes significant after doubling.
	shift := 32 - t.bits
	testBit := uint32(1) << (31 - t.bits)

	var split int
	for i := 0; i < oldSize; i++ {
		prev := t.buckets[i].head.Load()
		if prev == nil {
			continue
		}
		msb := prev.soKey >> shift
		next := prev.next.Load()
		for next != nil && next.soKey&testBit == 0 && next.soKey>>shift == msb {
			prev = next
			next = prev.next.Load()
		}
		if next == nil || next.soKey>>shift != msb {
			continue
		}

		s := &node[V]{soKey: sentinelKey(uint32(oldSize + i))}
		// Link the sentinel before registering it so that the new slot
		// always points into a well-formed list.
		s.next.Store(next)
		prev.next.Store(s)
		nt.buckets[oldSize+i].head.Store(s)
		split++
	}

	m.table.Store(nt)
	m.allocator.FreeBuckets(t.buckets)

	if debug {
		fmt.Printf("double: table-size=%d->%d split=%d count=%d\n",
			oldSize, nt.size(), split, m.count.Load())
	}
}

// locate returns the last node at or after start whose SO-key is less than
// soKey. start must sort before soKey.
func locate[V any](start *node[V], soKey uint32) *node[V] {
	prev := start
	for next := prev.next.Load(); next != nil && next.soKey < soKey; next = prev.next.Load() {
		prev = next
	}
	return prev
}

// seek scans the run of data nodes with SO-key soKey that follows prev for
// the first node holding key. It returns that node and its predecessor, or
// prev and nil if the run holds no such node.
func seek[V any](prev *node[V], key, soKey uint32) (*node[V], *node[V]) {
	for p, n := prev, prev.next.Load(); n != nil && n.soKey == soKey; p, n = n, n.next.Load() {
		if n.key == key {
			return p, n
		}
	}
	return prev, nil
}

// listInsert links n into the list at its ordered position after start,
// unless a node with the same SO-key is already present, in which case that
// node is returned instead of n.
func listInsert[V any](start, n *node[V]) *node[V] {
	prev := locate(start, n.soKey)
	next := prev.next.Load()
	if next != nil && next.soKey == n.soKey {
		return next
	}
	n.next.Store(next)
	prev.next.Store(n)
	return n
}

func (m *Map[V]) checkInvariants() {
	if invariants {
		if err := m.verify(); err != nil {
			panic(fmt.Sprintf("invariant failed: %v\n%s", err, m.debugString()))
		}
	}
}

// verify walks the whole list and bucket table and checks the structural
// invariants of the map. It must not run concurrently with mutations.
func (m *Map[V]) verify() error {
	t := m.table.Load()
	if t == nil {
		if c := m.count.Load(); c != 0 {
			return errors.Errorf("closed map has count %d", c)
		}
		return nil
	}
	if t.bits < 1 || t.bits > maxTableIndexBits {
		return errors.Errorf("table index bits %d out of range", t.bits)
	}
	if len(t.buckets) != t.size() {
		return errors.Errorf("bucket table has %d slots, expected %d", len(t.buckets), t.size())
	}
	head := t.buckets[0].head.Load()
	if head == nil || head.soKey != sentinelKey(0) {
		return errors.New("bucket 0 is not initialized")
	}

	var count int64
	var sentinels int
	var prev *node[V]
	// Keys seen in the current run of equal SO-keys.
	run := make(map[uint32]bool)
	for n := head; n != nil; prev, n = n, n.next.Load() {
		if prev != nil {
			if n.soKey < prev.soKey {
				return errors.Errorf("so-key %08x follows %08x", n.soKey, prev.soKey)
			}
			if n.isSentinel() && n.soKey == prev.soKey {
				return errors.Errorf("duplicate sentinel %08x", n.soKey)
			}
		}
		if n.isSentinel() {
			i := reverse(n.soKey)
			if uint64(i) >= uint64(t.size()) || t.buckets[i].head.Load() != n {
				return errors.Errorf("sentinel %08x of bucket %d is not registered", n.soKey, i)
			}
			sentinels++
			continue
		}
		if n.soKey != dataKey(n.key) {
			return errors.Errorf("key %d has so-key %08x, expected %08x", n.key, n.soKey, dataKey(n.key))
		}
		if n.value.Load() == nil {
			return errors.Errorf("key %d has no value", n.key)
		}
		if prev.soKey != n.soKey {
			clear(run)
		} else if prev.key != n.key && run[n.key] {
			return errors.Errorf("entries of key %d are not contiguous", n.key)
		}
		run[n.key] = true
		if i := n.key & t.mask(); t.buckets[i].head.Load() == nil {
			return errors.Errorf("key %d lives in uninitialized bucket %d", n.key, i)
		}
		count++
	}
	if c := m.count.Load(); c != count {
		return errors.Errorf("found %d entries, but count is %d", count, c)
	}

	var initialized int
	for i := range t.buckets {
		n := t.buckets[i].head.Load()
		if n == nil {
			continue
		}
		if n.soKey != sentinelKey(uint32(i)) {
			return errors.Errorf("bucket %d points at %08x", i, n.soKey)
		}
		initialized++
	}
	if initialized != sentinels {
		return errors.Errorf("%d initialized buckets, but %d sentinels in the list", initialized, sentinels)
	}
	return nil
}

func (m *Map[V]) debugString() string {
	t := m.table.Load()
	if t == nil {
		return "closed\n"
	}
	var buf strings.Builder
	fmt.Fprintf(&buf, "table-size=%d  bits=%d  count=%d  max-load=%g\n",
		t.size(), t.bits, m.count.Load(), m.maxLoad)
	for n := t.buckets[0].head.Load(); n != nil; n = n.next.Load() {
		if n.isSentinel() {
			fmt.Fprintf(&buf, "  %08x: sentinel [bucket=%d]\n", n.soKey, reverse(n.soKey))
		} else {
			fmt.Fprintf(&buf, "  %08x: %d=%v\n", n.soKey, n.key, *n.value.Load())
		}
	}
	return buf.String()
}
