package router

import "math/rand"

// maxID is 2^53, the ceiling for every WAMP-visible id (session,
// subscription, registration, publication, invocation).
const maxID = uint64(1) << 53

// idAllocator draws random 53-bit ids, collision-checked against a
// short ring of recently issued ids plus an optional caller-supplied
// in-use predicate. Publication ids in particular are only checked
// against the recent ring, per the realm's global-uniqueness rule.
// Not safe for concurrent use; each allocator lives on one lane.
type idAllocator struct {
	rng    *rand.Rand
	recent []uint64
	pos    int
}

func newIDAllocator(history int) *idAllocator {
	return &idAllocator{
		rng:    rand.New(rand.NewSource(int64(rand.Uint64()))),
		recent: make([]uint64, 0, history),
	}
}

// Next returns a fresh id not present in the recent ring and not
// reported in-use by the predicate (which may be nil).
func (a *idAllocator) Next(inUse func(uint64) bool) uint64 {
	for {
		id := 1 + (a.rng.Uint64() % (maxID - 1))
		if a.seen(id) || (inUse != nil && inUse(id)) {
			continue
		}
		a.remember(id)
		return id
	}
}

func (a *idAllocator) seen(id uint64) bool {
	for _, r := range a.recent {
		if r == id {
			return true
		}
	}
	return false
}

func (a *idAllocator) remember(id uint64) {
	if cap(a.recent) == 0 {
		return
	}
	if len(a.recent) < cap(a.recent) {
		a.recent = append(a.recent, id)
		return
	}
	a.recent[a.pos] = id
	a.pos = (a.pos + 1) % len(a.recent)
}
