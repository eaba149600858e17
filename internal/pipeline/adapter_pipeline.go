package pipeline

import (
	"github.com/mtconnect/agent-core/internal/clock"
	"github.com/mtconnect/agent-core/internal/tokenizer"
)

// AdapterPipeline is the fixed 8-stage pipeline an SHDR adapter connection
// drives one line at a time: Tokenizer → TimestampExtractor →
// ShdrTokenMapper → DuplicateFilter → DeltaFilter → PeriodFilter →
// UnitConverter → Delivery.
type AdapterPipeline struct {
	ctx    *Context
	head   *Pipeline // RawLine → Timestamped
	mapper ShdrTokenMapper
	tail   *Pipeline // Observation/AssetCommand → delivered

	multiline tokenizer.MultilineAccumulator
}

// NewAdapterPipeline builds the fixed pipeline against registry and sink.
func NewAdapterPipeline(registry DataItemRegistry, sink Sink, relativeTime bool) *AdapterPipeline {
	return &AdapterPipeline{
		ctx:    NewContext(registry, sink, relativeTime),
		head:   New(TokenizerNode{}, TimestampNode{}),
		mapper: ShdrTokenMapper{Registry: registry},
		tail: New(
			DuplicateFilterNode{},
			DeltaFilterNode{Registry: registry},
			PeriodFilterNode{Registry: registry},
			UnitConverterNode{Registry: registry},
			DeliveryNode{},
		),
	}
}

// ProcessLine drives one adapter line through the pipeline. Lines inside an
// active multiline capture are fed to the accumulator instead of being
// tokenized directly.
func (p *AdapterPipeline) ProcessLine(line string) error {
	if p.multiline.Active() {
		tokens, done := p.multiline.Feed(line)
		if !done {
			return nil
		}
		return p.dispatchTokens(tokens)
	}

	tokens := tokenizer.Tokenize(line)
	for i, v := range tokens.Values {
		if tag, ok := tokenizer.MultilineTag(v); ok {
			p.multiline.Start(tag, tokens, i)
			return nil
		}
	}
	return p.dispatchTokens(tokens)
}

func (p *AdapterPipeline) dispatchTokens(tokens tokenizer.Tokens) error {
	head, err := p.head.Run(p.ctx, tokens)
	if err != nil || head == nil {
		return err
	}
	timestamped, ok := head.(clock.Timestamped)
	if !ok {
		return nil
	}

	ents, err := p.mapper.Map(timestamped)
	if err != nil {
		return err
	}
	for _, e := range ents {
		if _, err := p.tail.Run(p.ctx, e); err != nil {
			return err
		}
	}
	return nil
}
