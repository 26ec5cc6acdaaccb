package smartermodel

import "sync"

type identityKey struct {
	model string
	id    string
}

// IdentityMap keeps one live instance per (model, id). Entries are spread
// over lock stripes so unrelated ids do not contend.
type IdentityMap struct {
	locks  *StripedLocks
	shards []map[identityKey]Model
}

// NewIdentityMap creates an identity map with the given number of stripes.
// Values <= 0 use DefaultStripeCount.
func NewIdentityMap(stripes int) *IdentityMap {
	locks := NewStripedLocks(stripes)
	shards := make([]map[identityKey]Model, locks.Len())
	for i := range shards {
		shards[i] = make(map[identityKey]Model)
	}
	return &IdentityMap{locks: locks, shards: shards}
}

var defaultIdentityMap = sync.OnceValue(func() *IdentityMap {
	return NewIdentityMap(DefaultStripeCount)
})

// DefaultIdentityMap returns the process-wide identity map.
func DefaultIdentityMap() *IdentityMap {
	return defaultIdentityMap()
}

func (im *IdentityMap) stripe(model, id string) uint32 {
	return im.locks.Stripe(model + "\x00" + id)
}

// Get returns the registered instance.
func (im *IdentityMap) Get(model, id string) (Model, bool) {
	idx := im.stripe(model, id)
	unlock := im.locks.RLockStripe(idx)
	defer unlock()
	m, ok := im.shards[idx][identityKey{model, id}]
	return m, ok
}

// LoadOrStore returns the registered instance if there is one; otherwise
// it registers m. loaded reports whether an existing instance was returned.
func (im *IdentityMap) LoadOrStore(model, id string, m Model) (actual Model, loaded bool) {
	idx := im.stripe(model, id)
	unlock := im.locks.LockStripe(idx)
	defer unlock()
	key := identityKey{model, id}
	if existing, ok := im.shards[idx][key]; ok {
		return existing, true
	}
	im.shards[idx][key] = m
	return m, false
}

// Store registers m, replacing any previous instance.
func (im *IdentityMap) Store(model, id string, m Model) {
	idx := im.stripe(model, id)
	unlock := im.locks.LockStripe(idx)
	defer unlock()
	im.shards[idx][identityKey{model, id}] = m
}

// Delete removes the entry.
func (im *IdentityMap) Delete(model, id string) {
	idx := im.stripe(model, id)
	unlock := im.locks.LockStripe(idx)
	defer unlock()
	delete(im.shards[idx], identityKey{model, id})
}

// ClearModel removes every entry of one model.
func (im *IdentityMap) ClearModel(model string) {
	for i := range im.shards {
		unlock := im.locks.LockStripe(uint32(i))
		for k := range im.shards[i] {
			if k.model == model {
				delete(im.shards[i], k)
			}
		}
		unlock()
	}
}

// ClearAll empties the map.
func (im *IdentityMap) ClearAll() {
	for i := range im.shards {
		unlock := im.locks.LockStripe(uint32(i))
		clear(im.shards[i])
		unlock()
	}
}

// Len returns the number of entries.
func (im *IdentityMap) Len() int {
	n := 0
	for i := range im.shards {
		unlock := im.locks.RLockStripe(uint32(i))
		n += len(im.shards[i])
		unlock()
	}
	return n
}
