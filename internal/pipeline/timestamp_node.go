package pipeline

import (
	"github.com/mtconnect/agent-core/internal/clock"
	"github.com/mtconnect/agent-core/internal/model"
	"github.com/mtconnect/agent-core/internal/tokenizer"
)

// TimestampNode extracts the timestamp carried by the first token of a
// Tokens value (C1).
type TimestampNode struct{}

func (TimestampNode) Name() string { return "TimestampExtractor" }

func (TimestampNode) Accepts(k model.EntityKind) bool { return k == model.KindTokens }

func (TimestampNode) Apply(ctx *Context, e model.Entity) (model.Entity, error) {
	tokens := e.(tokenizer.Tokens)
	if len(tokens.Values) == 0 {
		return nil, nil
	}
	ts, err := ctx.Clock.Extract(tokens.Values[0], tokens.Values[1:])
	if err != nil {
		return nil, err
	}
	return clock.Timestamped{
		Timestamp:       ts.Timestamp,
		Duration:        ts.Duration,
		RemainingTokens: ts.RemainingTokens,
	}, nil
}
