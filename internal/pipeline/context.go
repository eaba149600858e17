package pipeline

import (
	"sync"

	"github.com/mtconnect/agent-core/internal/clock"
	"github.com/mtconnect/agent-core/internal/model"
)

// Sink receives the entities a pipeline produces once they pass every
// transform: observations go to the observation buffer, asset commands to
// the asset buffer.
type Sink interface {
	DeliverObservation(model.Observation) error
	DeliverAssetCommand(model.AssetCommand) error
}

// Context is the shared state threaded through every node of one pipeline
// run: the registry and sink collaborators, a relative-time clock, and a
// mutex-guarded cell map for cross-stage state (last-delivered values,
// sequence counters) — the per-pipeline analogue of the teacher's
// mutex-guarded map-with-copy-out-reads pattern.
type Context struct {
	Registry DataItemRegistry
	Sink     Sink
	Clock    *clock.Extractor

	mu    sync.Mutex
	cells map[string]any
}

// NewContext builds a Context ready for use.
func NewContext(registry DataItemRegistry, sink Sink, relativeTime bool) *Context {
	return &Context{
		Registry: registry,
		Sink:     sink,
		Clock:    &clock.Extractor{RelativeTime: relativeTime},
		cells:    make(map[string]any),
	}
}

// Cell returns the named shared-state cell, and whether it was present.
func (c *Context) Cell(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.cells[key]
	return v, ok
}

// SetCell stores a value under key.
func (c *Context) SetCell(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cells[key] = value
}
