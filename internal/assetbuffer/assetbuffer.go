// Package assetbuffer implements the bounded keyed asset store: primary
// id index, secondary type/device_uuid indexes, and tombstone counters for
// removed-but-retained assets (C7).
package assetbuffer

import (
	"sync"

	"github.com/mtconnect/agent-core/internal/model"
)

type entry struct {
	asset     model.Asset
	insertSeq uint64
}

// AssetBuffer is a capacity-bounded, LRU-by-insertion-or-update asset
// store with secondary indexes by type and device_uuid.
type AssetBuffer struct {
	mu sync.RWMutex

	capacity int
	nextSeq  uint64

	primary    map[string]*entry
	insertion  []string // ids in insertion/update order, oldest first
	byType     map[string]map[string]struct{}
	byDevice   map[string]map[string]struct{}
	tombstones map[string]int // by type
}

// New builds an AssetBuffer bounded to capacity active-or-tombstoned
// assets.
func New(capacity int) *AssetBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &AssetBuffer{
		capacity:   capacity,
		primary:    make(map[string]*entry),
		byType:     make(map[string]map[string]struct{}),
		byDevice:   make(map[string]map[string]struct{}),
		tombstones: make(map[string]int),
	}
}

// Add inserts a new asset or replaces the existing one with the same id,
// evicting the least-recently-added active asset if the buffer is over
// capacity afterward.
func (b *AssetBuffer) Add(asset model.Asset) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.primary[asset.ID]; ok {
		b.unindex(asset.ID, old.asset)
		b.removeFromInsertion(asset.ID)
	}

	b.nextSeq++
	e := &entry{asset: asset, insertSeq: b.nextSeq}
	b.primary[asset.ID] = e
	b.insertion = append(b.insertion, asset.ID)
	b.index(asset.ID, asset)

	b.evictIfNeeded()
}

// Remove marks the asset tombstoned: it stays in every index but is
// excluded from active queries and bumps its type's tombstone counter.
func (b *AssetBuffer) Remove(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.primary[id]
	if !ok || e.asset.Removed {
		return false
	}
	e.asset.Removed = true
	b.tombstones[e.asset.Type]++
	return true
}

// QueryFilter selects which assets Query returns.
type QueryFilter struct {
	IDs           []string
	Type          string
	DeviceUUID    string
	IncludeRemoved bool
	Count         int
}

// Query walks assets most-recent-first (by insertion/update order),
// applying the filter and an overall result count cap. When f.IDs is set,
// the assets are returned in the order of f.IDs instead, and the type and
// device filters are not applied.
func (b *AssetBuffer) Query(f QueryFilter) []model.Asset {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := f.Count
	if count <= 0 {
		count = len(b.insertion)
	}

	if len(f.IDs) > 0 {
		var out []model.Asset
		for _, id := range f.IDs {
			e, ok := b.primary[id]
			if !ok {
				continue
			}
			if e.asset.Removed && !f.IncludeRemoved {
				continue
			}
			out = append(out, e.asset)
			if len(out) >= count {
				break
			}
		}
		return out
	}

	var candidateIDs map[string]struct{}
	if f.Type != "" {
		candidateIDs = b.byType[f.Type]
	} else if f.DeviceUUID != "" {
		candidateIDs = b.byDevice[f.DeviceUUID]
	}

	var out []model.Asset
	for i := len(b.insertion) - 1; i >= 0 && len(out) < count; i-- {
		id := b.insertion[i]
		if candidateIDs != nil {
			if _, ok := candidateIDs[id]; !ok {
				continue
			}
		}
		e, ok := b.primary[id]
		if !ok {
			continue
		}
		if f.DeviceUUID != "" && f.Type != "" {
			if _, ok := b.byDevice[f.DeviceUUID][id]; !ok {
				continue
			}
		}
		if e.asset.Removed && !f.IncludeRemoved {
			continue
		}
		out = append(out, e.asset)
	}
	return out
}

// ActiveCount returns the number of non-removed assets of the given type.
func (b *AssetBuffer) ActiveCount(assetType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	total := len(b.byType[assetType])
	return total - b.tombstones[assetType]
}

func (b *AssetBuffer) index(id string, asset model.Asset) {
	if asset.Type != "" {
		set, ok := b.byType[asset.Type]
		if !ok {
			set = make(map[string]struct{})
			b.byType[asset.Type] = set
		}
		set[id] = struct{}{}
	}
	if asset.DeviceUUID != "" {
		set, ok := b.byDevice[asset.DeviceUUID]
		if !ok {
			set = make(map[string]struct{})
			b.byDevice[asset.DeviceUUID] = set
		}
		set[id] = struct{}{}
	}
}

func (b *AssetBuffer) unindex(id string, asset model.Asset) {
	if set, ok := b.byType[asset.Type]; ok {
		delete(set, id)
	}
	if set, ok := b.byDevice[asset.DeviceUUID]; ok {
		delete(set, id)
	}
	if asset.Removed {
		b.tombstones[asset.Type]--
	}
}

func (b *AssetBuffer) removeFromInsertion(id string) {
	for i, existing := range b.insertion {
		if existing == id {
			b.insertion = append(b.insertion[:i], b.insertion[i+1:]...)
			return
		}
	}
}

// evictIfNeeded walks insertion order oldest-first, evicting the first
// active asset found once the buffer holds more than capacity entries.
func (b *AssetBuffer) evictIfNeeded() {
	for len(b.insertion) > b.capacity {
		evicted := false
		for i, id := range b.insertion {
			e := b.primary[id]
			if e == nil || e.asset.Removed {
				continue
			}
			b.insertion = append(b.insertion[:i], b.insertion[i+1:]...)
			b.unindex(id, e.asset)
			delete(b.primary, id)
			evicted = true
			break
		}
		if !evicted {
			return
		}
	}
}
