package pipeline

import "github.com/mtconnect/agent-core/internal/model"

// RawLine is the entry entity for an adapter pipeline: one unparsed line of
// input text.
type RawLine struct {
	Text string
}

func (RawLine) Kind() model.EntityKind { return model.KindRawLine }

// Node is one stage of a transform pipeline. Accepts is the node's
// TypeGuard: the dispatch rule invokes the first node in bind order, after
// the node that produced the entity, whose Accepts matches the entity's
// kind. Apply may return a nil entity to drop the item from the pipeline.
type Node interface {
	Name() string
	Accepts(model.EntityKind) bool
	Apply(ctx *Context, e model.Entity) (model.Entity, error)
}

// Pipeline walks an ordered list of nodes, dispatching each entity to the
// first node whose guard accepts it, and feeding that node's output on to
// the first later node whose guard accepts it, until no later node accepts
// the result or a node drops the item.
type Pipeline struct {
	nodes []Node
}

// New builds a Pipeline from nodes in bind order.
func New(nodes ...Node) *Pipeline {
	return &Pipeline{nodes: nodes}
}

// Run feeds e through the pipeline, returning the final entity (nil if
// dropped) or the first error encountered.
func (p *Pipeline) Run(ctx *Context, e model.Entity) (model.Entity, error) {
	from := 0
	for {
		if e == nil {
			return nil, nil
		}
		idx := p.firstAccepting(e.Kind(), from)
		if idx < 0 {
			return e, nil
		}
		next, err := p.nodes[idx].Apply(ctx, e)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, nil
		}
		e = next
		from = idx + 1
	}
}

func (p *Pipeline) firstAccepting(kind model.EntityKind, from int) int {
	for i := from; i < len(p.nodes); i++ {
		if p.nodes[i].Accepts(kind) {
			return i
		}
	}
	return -1
}
