package crawler

import "sync"

// Frontier is the pool of pending work items, consumed last-in first-out, plus the set
// of items already popped. Push does not deduplicate; scheduling an item twice fetches
// it twice.
type Frontier struct {
	mu      sync.Mutex
	items   []WorkItem
	visited map[string]struct{}
}

// NewFrontier seeds a frontier. The last seed is fetched first.
func NewFrontier(seeds ...WorkItem) *Frontier {
	return &Frontier{
		items:   append([]WorkItem(nil), seeds...),
		visited: make(map[string]struct{}),
	}
}

// Push appends items to the end of the pool.
func (f *Frontier) Push(items ...WorkItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, items...)
}

// Pop removes and returns the most recently pushed item. The item is marked visited
// whatever the outcome of its fetch.
func (f *Frontier) Pop() (WorkItem, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.items)
	if n == 0 {
		return WorkItem{}, false
	}
	item := f.items[n-1]
	f.items[n-1] = WorkItem{}
	f.items = f.items[:n-1]
	f.visited[item.Key()] = struct{}{}
	return item, true
}

// Len returns the number of pending items.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

// Visited reports whether item has been popped.
func (f *Frontier) Visited(item WorkItem) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.visited[item.Key()]
	return ok
}

// VisitedCount returns the number of distinct items popped so far.
func (f *Frontier) VisitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visited)
}
