package pipeline

import (
	"sync"

	"github.com/mtconnect/agent-core/internal/model"
)

// DataItemRegistry resolves tokens carrying a data-item id, name, or source
// alias to the DataItem metadata a node needs to interpret a value. The
// real, device-model-backed implementation lives outside this package —
// callers supply their own.
type DataItemRegistry interface {
	Lookup(idOrName string) (model.DataItem, bool)
	LookupBySource(source string) (model.DataItem, bool)
}

// StaticRegistry is a map-backed DataItemRegistry for wiring and tests.
type StaticRegistry struct {
	mu       sync.RWMutex
	byID     map[model.DataItemID]model.DataItem
	byName   map[string]model.DataItem
	bySource map[string]model.DataItem
}

// NewStaticRegistry builds an empty StaticRegistry.
func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{
		byID:     make(map[model.DataItemID]model.DataItem),
		byName:   make(map[string]model.DataItem),
		bySource: make(map[string]model.DataItem),
	}
}

// Register adds or replaces a DataItem, indexed by id, name, and source.
func (r *StaticRegistry) Register(item model.DataItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[item.ID] = item
	if item.Name != "" {
		r.byName[item.Name] = item
	}
	if item.Source != "" {
		r.bySource[item.Source] = item
	}
}

// Lookup resolves by id first, then by name.
func (r *StaticRegistry) Lookup(idOrName string) (model.DataItem, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if item, ok := r.byID[model.DataItemID(idOrName)]; ok {
		return item, true
	}
	item, ok := r.byName[idOrName]
	return item, ok
}

// LookupBySource resolves by the adapter-side source alias.
func (r *StaticRegistry) LookupBySource(source string) (model.DataItem, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.bySource[source]
	return item, ok
}

// All returns every registered DataItem, used by Probe and by the "all
// ids" fallback when a request carries no path filter.
func (r *StaticRegistry) All() []model.DataItem {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]model.DataItem, 0, len(r.byID))
	for _, item := range r.byID {
		items = append(items, item)
	}
	return items
}
