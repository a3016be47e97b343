package util

import (
	"sort"
	"testing"
)

// TestNewMapHeap tests the creation of a new MapHeap
func TestNewMapHeap(t *testing.T) {
	mh := NewMapHeap[int]()

	if mh.Len() != 0 {
		t.Errorf("New heap should be empty, but has length %d", mh.Len())
	}

	if len(mh.itemsMap) != 0 {
		t.Errorf("New heap's map should be empty, but has %d items", len(mh.itemsMap))
	}
}

// TestAddItem tests adding items to the heap
func TestAddItem(t *testing.T) {
	mh := NewMapHeap[int]()

	mh.AddItem(1, 100)
	mh.AddItem(2, 200)
	mh.AddItem(3, 50)

	if mh.Len() != 3 {
		t.Errorf("Heap should have 3 items, but has %d", mh.Len())
	}

	for _, key := range []int{1, 2, 3} {
		if !mh.Contains(key) {
			t.Errorf("Heap should contain key %d", key)
		}
	}

	item, exists := mh.Peek()
	if !exists {
		t.Fatal("Peek() should return an item")
	}
	if item.Key != 3 || item.Priority != 50 {
		t.Errorf("Expected min item to be (3,50), got (%d,%d)", item.Key, item.Priority)
	}
}

// TestUpdateItem tests updating existing items
func TestUpdateItem(t *testing.T) {
	mh := NewMapHeap[int]()

	mh.AddItem(1, 100)
	mh.AddItem(2, 200)
	mh.AddItem(1, 300)

	item, exists := mh.GetByKey(1)
	if !exists {
		t.Fatal("Item with key 1 should exist")
	}
	if item.Priority != 300 {
		t.Errorf("Item with key 1 should have priority 300, got %d", item.Priority)
	}

	min, _ := mh.Peek()
	if min.Key != 2 {
		t.Errorf("Min item should now be key 2, got %d", min.Key)
	}
}

// TestAddItemIfAbsent tests that the first priority of a key is kept
func TestAddItemIfAbsent(t *testing.T) {
	mh := NewMapHeap[int]()

	if !mh.AddItemIfAbsent(7, 10) {
		t.Fatal("first add should succeed")
	}
	if mh.AddItemIfAbsent(7, 99) {
		t.Error("second add of the same key should be ignored")
	}

	item, _ := mh.GetByKey(7)
	if item.Priority != 10 {
		t.Errorf("priority should stay 10, got %d", item.Priority)
	}
}

// TestRemoveByKey tests removing items by key
func TestRemoveByKey(t *testing.T) {
	mh := NewMapHeap[string]()

	mh.AddItem("a", 100)
	mh.AddItem("b", 200)
	mh.AddItem("c", 300)

	priority, exists := mh.RemoveByKey("b")
	if !exists {
		t.Fatal("RemoveByKey should return true for existing key")
	}
	if priority != 200 {
		t.Errorf("RemoveByKey should return priority 200, got %d", priority)
	}
	if mh.Len() != 2 {
		t.Errorf("Heap should have 2 items after removal, has %d", mh.Len())
	}
	if mh.Contains("b") {
		t.Error("Heap should not contain key b after removal")
	}

	if _, exists = mh.RemoveByKey("zz"); exists {
		t.Error("RemoveByKey should return false for non-existent key")
	}
}

// TestPopOrder tests if items are popped in priority order
func TestPopOrder(t *testing.T) {
	mh := NewMapHeap[int]()

	items := []struct {
		key      int
		priority int64
	}{
		{5, 50},
		{3, 30},
		{1, 10},
		{4, -40},
		{2, 20},
	}
	for _, it := range items {
		mh.AddItem(it.key, it.priority)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].priority < items[j].priority
	})

	for i, expected := range items {
		it, ok := mh.PopMin()
		if !ok {
			t.Fatalf("Heap empty after %d items, expected %d items", i, len(items))
		}
		if it.Key != expected.key || it.Priority != expected.priority {
			t.Errorf("Pop %d: expected (%d,%d), got (%d,%d)", i, expected.key, expected.priority, it.Key, it.Priority)
		}
	}

	if _, ok := mh.PopMin(); ok {
		t.Error("PopMin on empty heap should return false")
	}
}

// TestPeekEmptyHeap tests behavior when peeking an empty heap
func TestPeekEmptyHeap(t *testing.T) {
	mh := NewMapHeap[int]()

	if _, exists := mh.Peek(); exists {
		t.Error("Peek on empty heap should return exists=false")
	}
}

// TestLargeNumberOfItems checks the heap invariant with many updates and removals
func TestLargeNumberOfItems(t *testing.T) {
	mh := NewMapHeap[int]()
	const n = 5000

	for i := 0; i < n; i++ {
		mh.AddItem(i, int64((i*7919)%n))
	}
	for i := 0; i < n; i += 3 {
		mh.RemoveByKey(i)
	}

	prev := int64(-1)
	for mh.Len() > 0 {
		it, _ := mh.PopMin()
		if it.Priority < prev {
			t.Fatalf("heap order violated: %d after %d", it.Priority, prev)
		}
		prev = it.Priority
	}
}
