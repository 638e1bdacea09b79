package lifetime

import (
	"sort"
	"sync"
)

// Ledger counts how many handles of each kind are alive. Backends create every
// native object through Track which makes leaks visible in tests and in the
// shutdown log. A nil *Ledger is valid and does not count anything.
type Ledger struct {
	mu       sync.Mutex
	created  map[string]int
	released map[string]int
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		created:  make(map[string]int),
		released: make(map[string]int),
	}
}

// Track wraps handle into an Owned value whose release is recorded in l under
// kind. Null handles are returned as empty wrappers and are not counted.
func Track[T comparable](l *Ledger, kind string, handle T, release func(T)) *Owned[T] {
	var null T
	if l == nil || handle == null {
		return New(handle, release)
	}

	l.mu.Lock()
	l.created[kind]++
	l.mu.Unlock()

	return New(handle, func(h T) {
		if release != nil {
			release(h)
		}

		l.mu.Lock()
		l.released[kind]++
		l.mu.Unlock()
	})
}

// Live returns the number of handles of kind which were tracked and not yet
// released.
func (l *Ledger) Live(kind string) int {
	if l == nil {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.created[kind] - l.released[kind]
}

// Created returns how many handles of kind were ever tracked.
func (l *Ledger) Created(kind string) int {
	if l == nil {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.created[kind]
}

// LiveTotal returns the number of live handles over all kinds.
func (l *Ledger) LiveTotal() int {
	total := 0
	for _, n := range l.Snapshot() {
		total += n
	}
	return total
}

// Snapshot returns the live count for every kind which has live handles.
func (l *Ledger) Snapshot() map[string]int {
	out := make(map[string]int)
	if l == nil {
		return out
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for kind, n := range l.created {
		if live := n - l.released[kind]; live != 0 {
			out[kind] = live
		}
	}
	return out
}

// Kinds returns the sorted list of kinds ever tracked.
func (l *Ledger) Kinds() []string {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	kinds := make([]string, 0, len(l.created))
	for kind := range l.created {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
