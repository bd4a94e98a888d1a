package registry

import "sync"

// keyedLocker hands out a per-key mutex so registry mutations for
// different IMEIs never contend, while mutations for the same IMEI
// are strictly serialized (spec §5 "recommended discipline: a
// per-IMEI critical section around registry mutations").
type keyedLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedLocker() keyedLocker {
	return keyedLocker{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for key and returns a function that
// releases it.
func (k *keyedLocker) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
