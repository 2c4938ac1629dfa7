package store

import (
	"sync"
	"time"
)

type kvEntry struct {
	value     any
	expiresAt time.Time
}

func (e kvEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryKV is the in-process cache backend behind the JWKS cache and the
// replay-record store. A ttl of zero means no expiry.
type MemoryKV struct {
	mu      sync.Mutex
	entries map[string]kvEntry
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{entries: make(map[string]kvEntry)}
}

func (kv *MemoryKV) entryAt(key string, now time.Time) (kvEntry, bool) {
	e, ok := kv.entries[key]
	if !ok {
		return kvEntry{}, false
	}
	if e.expired(now) {
		delete(kv.entries, key)
		return kvEntry{}, false
	}
	return e, true
}

func (kv *MemoryKV) Get(key string) (any, bool) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	e, ok := kv.entryAt(key, time.Now())
	if !ok {
		return nil, false
	}
	return e.value, true
}

func (kv *MemoryKV) Set(key string, value any, ttl time.Duration) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	kv.entries[key] = newEntry(value, ttl)
}

// SetNX stores the value only if the key is absent (or expired). The single
// lock makes this atomic; a false return on a replay record is the
// "already used" signal.
func (kv *MemoryKV) SetNX(key string, value any, ttl time.Duration) bool {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	if _, exists := kv.entryAt(key, time.Now()); exists {
		return false
	}
	kv.entries[key] = newEntry(value, ttl)
	return true
}

func (kv *MemoryKV) Exists(key string) bool {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	_, ok := kv.entryAt(key, time.Now())
	return ok
}

// Sweep drops expired entries and returns how many were removed.
func (kv *MemoryKV) Sweep() int {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	now := time.Now()
	dropped := 0
	for key, e := range kv.entries {
		if e.expired(now) {
			delete(kv.entries, key)
			dropped++
		}
	}
	return dropped
}

func newEntry(value any, ttl time.Duration) kvEntry {
	e := kvEntry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	return e
}
