// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package retry implements a bounded, FIFO-evicting retry tracker: a
// concurrent messageId -> failure count map, used by the indexer's
// write-with-retry-then-DLQ path.
package retry

import (
	"container/list"
	"sync"
)

// Tracker is a bounded mapping from message identity to a failure counter.
// It evicts the oldest entry (insertion order, not access order — this is
// a FIFO tracker, not an LRU cache) once maxKeys would be exceeded.
type Tracker struct {
	mu      sync.Mutex
	maxKeys int

	// order holds keys in insertion order; order.Front() is the oldest.
	order *list.List
	// index maps key -> its element in order, for O(1) lookup and removal.
	index map[string]*list.Element
	count map[string]int

	totalRetries   int64
	totalEvictions int64
	dlqMovedCount  int64
}

// entry is the payload stored at each list element.
type entry struct {
	key string
}

// New creates a Tracker bounded at maxKeys entries. maxKeys must be
// positive; callers are expected to validate this at config time.
func New(maxKeys int) *Tracker {
	return &Tracker{
		maxKeys: maxKeys,
		order:   list.New(),
		index:   make(map[string]*list.Element, maxKeys),
		count:   make(map[string]int, maxKeys),
	}
}

// IncrementAndGet records one more failure for id and returns the new
// count. The first observation of id returns 1. If adding id as a new key
// would exceed maxKeys, the oldest tracked key is evicted first.
func (t *Tracker) IncrementAndGet(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.index[id]; !exists {
		if len(t.index) >= t.maxKeys {
			t.evictOldestLocked()
		}
		el := t.order.PushBack(entry{key: id})
		t.index[id] = el
	}

	t.count[id]++
	t.totalRetries++
	return t.count[id]
}

// evictOldestLocked removes the oldest tracked key. Caller holds t.mu.
func (t *Tracker) evictOldestLocked() {
	front := t.order.Front()
	if front == nil {
		return
	}
	oldest := front.Value.(entry).key
	t.order.Remove(front)
	delete(t.index, oldest)
	delete(t.count, oldest)
	t.totalEvictions++
}

// Get returns id's current failure count, or 0 if id isn't tracked.
func (t *Tracker) Get(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count[id]
}

// Reset actively removes id from the tracker, used on a successful write
// after prior failures.
func (t *Tracker) Reset(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(id)
}

// MarkMovedToDlq actively removes id from the tracker and records the
// handoff, used after a batch has been written to the dead-letter sink.
func (t *Tracker) MarkMovedToDlq(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.removeLocked(id) {
		t.dlqMovedCount++
	}
}

// removeLocked removes id if tracked, reporting whether it was present.
// Caller holds t.mu.
func (t *Tracker) removeLocked(id string) bool {
	el, exists := t.index[id]
	if !exists {
		return false
	}
	t.order.Remove(el)
	delete(t.index, id)
	delete(t.count, id)
	return true
}

// Metrics is a snapshot of the tracker's counters.
type Metrics struct {
	TrackedMessages           int
	TotalRetries              int64
	TotalEvictions            int64
	DlqMovedCount             int64
	CapacityUtilizationPercent float64
}

// Snapshot returns the tracker's current metrics.
func (t *Tracker) Snapshot() Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	util := 0.0
	if t.maxKeys > 0 {
		util = 100 * float64(len(t.index)) / float64(t.maxKeys)
	}
	return Metrics{
		TrackedMessages:            len(t.index),
		TotalRetries:               t.totalRetries,
		TotalEvictions:             t.totalEvictions,
		DlqMovedCount:              t.dlqMovedCount,
		CapacityUtilizationPercent: util,
	}
}
