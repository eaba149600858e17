package pipeline

import (
	"github.com/mtconnect/agent-core/internal/model"
	"github.com/mtconnect/agent-core/internal/tokenizer"
)

// TokenizerNode splits a RawLine into Tokens (C2).
type TokenizerNode struct{}

func (TokenizerNode) Name() string { return "Tokenizer" }

func (TokenizerNode) Accepts(k model.EntityKind) bool { return k == model.KindRawLine }

func (TokenizerNode) Apply(_ *Context, e model.Entity) (model.Entity, error) {
	line := e.(RawLine)
	t := tokenizer.Tokenize(line.Text)
	return t, nil
}
