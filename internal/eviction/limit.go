package eviction

import "sync/atomic"

// DefaultLimit is the number of eligible files tolerated when nothing else is configured.
const DefaultLimit uint32 = 3

// Limit is the file-count threshold shared between the manager and whoever updates it.
// Writes become visible to the next cycle.
type Limit struct {
	v atomic.Uint32
}

func NewLimit(n uint32) *Limit {
	l := &Limit{}
	l.v.Store(n)
	return l
}

func (l *Limit) Load() uint32 {
	return l.v.Load()
}

func (l *Limit) Store(n uint32) {
	l.v.Store(n)
}
