package utils

import "sync"

// KeyedMutex is a set of non-blocking locks identified by string keys.
// Unused keys hold no memory.
type KeyedMutex struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewKeyedMutex creates an empty KeyedMutex
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{held: make(map[string]struct{})}
}

// TryLock acquires the lock for key and reports whether it succeeded
func (k *KeyedMutex) TryLock(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.held[key]; ok {
		return false
	}
	k.held[key] = struct{}{}
	return true
}

// Unlock releases the lock for key. Unlocking a key that is not held panics,
// like sync.Mutex.
func (k *KeyedMutex) Unlock(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.held[key]; !ok {
		panic("utils: unlock of unlocked key " + key)
	}
	delete(k.held, key)
}

// Locked reports whether key is currently held
func (k *KeyedMutex) Locked(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	_, ok := k.held[key]
	return ok
}
