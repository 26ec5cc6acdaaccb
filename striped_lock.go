package smartermodel

import (
	"hash/fnv"
	"sync"
)

// StripedLocks spreads keys over a fixed set of RWMutexes by FNV-1a hash.
// The same key always maps to the same stripe, so per-key operations are
// serialised while unrelated keys rarely contend.
type StripedLocks struct {
	stripes []sync.RWMutex
	count   uint32
}

// NewStripedLocks creates a new striped lock with the specified number of stripes.
// Values <= 0 use DefaultStripeCount.
func NewStripedLocks(stripeCount int) *StripedLocks {
	if stripeCount <= 0 {
		stripeCount = DefaultStripeCount
	}
	return &StripedLocks{
		stripes: make([]sync.RWMutex, stripeCount),
		count:   uint32(stripeCount),
	}
}

// Lock acquires an exclusive lock for the given key.
// Returns an unlock function that MUST be called to release the lock.
//
//	unlock := locks.Lock(key)
//	defer unlock()
func (sl *StripedLocks) Lock(key string) func() {
	return sl.LockStripe(sl.Stripe(key))
}

// RLock acquires a shared read lock for the given key.
func (sl *StripedLocks) RLock(key string) func() {
	return sl.RLockStripe(sl.Stripe(key))
}

// LockStripe locks stripe idx exclusively.
func (sl *StripedLocks) LockStripe(idx uint32) func() {
	sl.stripes[idx].Lock()
	return sl.stripes[idx].Unlock
}

// RLockStripe locks stripe idx for reading.
func (sl *StripedLocks) RLockStripe(idx uint32) func() {
	sl.stripes[idx].RLock()
	return sl.stripes[idx].RUnlock
}

// Stripe returns the stripe index for a key.
func (sl *StripedLocks) Stripe(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32() % sl.count
}

// Len returns the number of stripes.
func (sl *StripedLocks) Len() int {
	return int(sl.count)
}
