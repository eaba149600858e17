package api

import (
	"strings"
	"time"

	"github.com/mtconnect/agent-core/internal/assetbuffer"
	"github.com/mtconnect/agent-core/internal/buffer"
	"github.com/mtconnect/agent-core/internal/model"
	"github.com/mtconnect/agent-core/internal/pipeline"
	"github.com/mtconnect/agent-core/internal/printer"
)

// LineIngestor accepts one SHDR-shaped line and routes it through the
// ingestion pipeline, exactly as an adapter connection would. PutObservation
// uses this to make a PUT request indistinguishable, downstream, from data
// that arrived over a socket.
type LineIngestor interface {
	ProcessLine(line string) error
}

// DataService is the C11/C12 handlers' view of the running agent: the
// observation/asset stores, the data-item registry for path filtering and
// Probe, and (optionally) a pipeline to route PutObservation requests into.
type DataService struct {
	Buffer     *buffer.CircularBuffer
	Assets     *assetbuffer.AssetBuffer
	Registry   *pipeline.StaticRegistry
	Put        LineIngestor // nil disables PutObservation
	DeviceName string
	InstanceID uint64
	Version    string
	Sender     string
}

// header builds the document-level Header for the buffer's current state.
func (s *DataService) header() printer.Header {
	return printer.Header{
		InstanceID:    s.InstanceID,
		Version:       s.Version,
		Sender:        s.Sender,
		FirstSequence: s.Buffer.FirstSequence(),
		NextSequence:  s.Buffer.NextSequence(),
		LastSequence:  lastSequence(s.Buffer.NextSequence()),
		Creation:      time.Now().UTC(),
	}
}

func lastSequence(next uint64) uint64 {
	if next == 0 {
		return 0
	}
	return next - 1
}

// lookup adapts Registry.Lookup to printer.Lookup's signature.
func (s *DataService) lookup(id model.DataItemID) (model.DataItem, bool) {
	return s.Registry.Lookup(string(id))
}

// resolvePath turns a comma-separated path filter (data-item ids, names, or
// bare types, with an optional leading "//") into the matching set of
// DataItemIDs. An empty path matches every registered item. This is a
// deliberate simplification of the full MTConnect XPath grammar — enough to
// filter Current/Sample responses, not a general path-expression engine.
func (s *DataService) resolvePath(path string) map[model.DataItemID]struct{} {
	if path == "" {
		return nil
	}
	ids := make(map[model.DataItemID]struct{})
	for _, term := range strings.Split(path, ",") {
		term = strings.TrimSpace(strings.TrimPrefix(term, "//"))
		if term == "" {
			continue
		}
		if item, ok := s.Registry.Lookup(term); ok {
			ids[item.ID] = struct{}{}
			continue
		}
		for _, item := range s.Registry.All() {
			if item.Type == term {
				ids[item.ID] = struct{}{}
			}
		}
	}
	return ids
}
