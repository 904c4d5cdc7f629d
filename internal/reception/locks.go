package reception

import "sync"

// keyedLocks serialises work per reception key. Entries are dropped once no
// caller holds or waits for them.
type keyedLocks struct {
	mu      sync.Mutex
	entries map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func (l *keyedLocks) lock(key string) func() {
	l.mu.Lock()
	if l.entries == nil {
		l.entries = make(map[string]*keyedLock)
	}
	e, ok := l.entries[key]
	if !ok {
		e = &keyedLock{}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, key)
		}
		l.mu.Unlock()
	}
}

func (l *keyedLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
