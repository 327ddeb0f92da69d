package fold

import (
	"sync"

	"github.com/voyage-lab/project-voyage/internal/core/partition"
)

// KeyedLock serializes folds per journey: events for one journey must fold
// strictly in order, while different journeys may fold in parallel.
// Locks are striped by the stable journey partition, so memory stays bounded
// regardless of how many journey IDs pass through.
type KeyedLock struct {
	stripes [partition.Count]sync.Mutex
}

// NewKeyedLock creates a keyed lock with one stripe per partition.
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{}
}

// Lock acquires the stripe owning journeyID.
func (l *KeyedLock) Lock(journeyID string) {
	l.stripes[partition.For(journeyID)].Lock()
}

// Unlock releases the stripe owning journeyID.
func (l *KeyedLock) Unlock(journeyID string) {
	l.stripes[partition.For(journeyID)].Unlock()
}
