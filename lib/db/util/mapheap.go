// Package util
//
// This file provides a priority queue with key-based access.
//
// The queue combines a binary min-heap with a hash map: priority operations are
// O(log n), lookups by key are O(1). The spine engine uses it to order dirty
// spines by the time they first became dirty, so the background flusher can
// always pick the spine that has waited longest, while a spine that is flushed by
// an explicit Save can be dropped from the queue by its key.
//
// Concurrency: the heap is not thread-safe. It is meant to be owned by a single
// goroutine (in the spine engine: the flusher loop) and fed through a queue.
//
// Example usage:
//
//	h := NewMapHeap[int]()
//	h.AddItem(3, firstDirtyAt.UnixNano())
//	h.AddItemIfAbsent(3, later.UnixNano()) // keeps the older priority
//
//	for {
//	    it, ok := h.Peek()
//	    if !ok || it.Priority > deadline {
//	        break
//	    }
//	    h.RemoveByKey(it.Key)
//	    flush(it.Key)
//	}
package util

import (
	"container/heap"
	"fmt"
)

// Item is an entry of a MapHeap
type Item[K comparable] struct {
	Key      K
	Priority int64
	index    int // maintained by the heap package
}

func (i *Item[K]) String() string {
	return fmt.Sprintf("{Key: %v, Priority: %d}", i.Key, i.Priority)
}

// MapHeap is a min-heap ordered by priority with O(1) access by key
type MapHeap[K comparable] struct {
	items    []*Item[K]
	itemsMap map[K]*Item[K]
}

// NewMapHeap creates an empty heap
func NewMapHeap[K comparable]() *MapHeap[K] {
	return &MapHeap[K]{
		items:    make([]*Item[K], 0),
		itemsMap: make(map[K]*Item[K]),
	}
}

// Len returns the number of items (part of heap.Interface)
func (h *MapHeap[K]) Len() int { return len(h.items) }

// Less orders items by ascending priority (part of heap.Interface)
func (h *MapHeap[K]) Less(i, j int) bool {
	return h.items[i].Priority < h.items[j].Priority
}

// Swap exchanges items at positions i and j (part of heap.Interface)
func (h *MapHeap[K]) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

// Push adds an item (part of heap.Interface, use AddItem instead)
func (h *MapHeap[K]) Push(x interface{}) {
	it := x.(*Item[K])
	it.index = len(h.items)
	h.items = append(h.items, it)
	h.itemsMap[it.Key] = it
}

// Pop removes the last item (part of heap.Interface, use PopMin instead)
func (h *MapHeap[K]) Pop() interface{} {
	old := h.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	h.items = old[:n-1]
	delete(h.itemsMap, it.Key)
	return it
}

// AddItem adds a new item or updates the priority of an existing one
func (h *MapHeap[K]) AddItem(key K, priority int64) {
	if it, exists := h.itemsMap[key]; exists {
		it.Priority = priority
		heap.Fix(h, it.index)
		return
	}
	heap.Push(h, &Item[K]{Key: key, Priority: priority})
}

// AddItemIfAbsent adds an item unless the key is already queued.
// It reports whether the item was added.
func (h *MapHeap[K]) AddItemIfAbsent(key K, priority int64) bool {
	if _, exists := h.itemsMap[key]; exists {
		return false
	}
	heap.Push(h, &Item[K]{Key: key, Priority: priority})
	return true
}

// RemoveByKey removes an item by its key and returns its priority
func (h *MapHeap[K]) RemoveByKey(key K) (int64, bool) {
	it, exists := h.itemsMap[key]
	if !exists {
		return 0, false
	}
	heap.Remove(h, it.index)
	return it.Priority, true
}

// Peek returns the item with the lowest priority without removing it
func (h *MapHeap[K]) Peek() (*Item[K], bool) {
	if len(h.items) == 0 {
		return nil, false
	}
	return h.items[0], true
}

// PopMin removes and returns the item with the lowest priority
func (h *MapHeap[K]) PopMin() (*Item[K], bool) {
	if len(h.items) == 0 {
		return nil, false
	}
	return heap.Pop(h).(*Item[K]), true
}

// Contains checks if a key is queued
func (h *MapHeap[K]) Contains(key K) bool {
	_, exists := h.itemsMap[key]
	return exists
}

// GetByKey retrieves an item by its key without removing it
func (h *MapHeap[K]) GetByKey(key K) (*Item[K], bool) {
	it, exists := h.itemsMap[key]
	return it, exists
}
