package indexer

import "sync"

// keyLock is a per-key advisory lock. A second TryLock on a held key fails instead of waiting.
type keyLock struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newKeyLock() *keyLock {
	return &keyLock{held: make(map[string]struct{})}
}

// TryLock acquires key and reports whether it was free.
func (l *keyLock) TryLock(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return false
	}
	l.held[key] = struct{}{}
	return true
}

// Unlock releases key.
func (l *keyLock) Unlock(key string) {
	l.mu.Lock()
	delete(l.held, key)
	l.mu.Unlock()
}

// Held reports whether key is currently locked.
func (l *keyLock) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}
