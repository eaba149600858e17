// Package model holds the core data types shared across the ingestion and
// serving pipeline: data items, observations, and assets.
package model

// EntityKind tags the concrete type flowing through a pipeline.Node so that
// a node's TypeGuard can dispatch without a type switch over every variant.
type EntityKind int

const (
	KindRawLine EntityKind = iota
	KindTokens
	KindTimestamped
	KindObservation
	KindAssetCommand
)

func (k EntityKind) String() string {
	switch k {
	case KindRawLine:
		return "RawLine"
	case KindTokens:
		return "Tokens"
	case KindTimestamped:
		return "Timestamped"
	case KindObservation:
		return "Observation"
	case KindAssetCommand:
		return "AssetCommand"
	default:
		return "Unknown"
	}
}

// Entity is anything that can flow through a transform pipeline node.
type Entity interface {
	Kind() EntityKind
}
