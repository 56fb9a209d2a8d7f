package crawler

import "sync"

// ErrorLog accumulates formatted diagnostics for the end-of-run summary.
type ErrorLog struct {
	mu      sync.Mutex
	entries []string
}

// Add appends one entry.
func (l *ErrorLog) Add(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

// Len returns the number of entries recorded.
func (l *ErrorLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// First returns up to n entries in the order they were recorded.
func (l *ErrorLog) First(n int) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n > len(l.entries) || n < 0 {
		n = len(l.entries)
	}
	return append([]string(nil), l.entries[:n]...)
}

// Entries returns a copy of every entry.
func (l *ErrorLog) Entries() []string {
	return l.First(-1)
}
