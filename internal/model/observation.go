package model

import "time"

// Observation is one value for one data item at one instant, stamped with
// the sequence number the buffer assigned it.
type Observation struct {
	DataItem     DataItemID
	Sequence     uint64
	Timestamp    time.Time
	Value        ObservedValue
	Duration     *float64
	ResetTrigger string
}

func (Observation) Kind() EntityKind { return KindObservation }

// Clone returns a deep-enough copy safe to hand to a reader without
// aliasing the buffer's internal state — callers of CircularBuffer never
// pin a slot, they receive owned copies per §4.5.
func (o Observation) Clone() Observation {
	clone := o
	if o.Duration != nil {
		d := *o.Duration
		clone.Duration = &d
	}
	switch v := o.Value.(type) {
	case Vector:
		comps := make([]float64, len(v.Components))
		copy(comps, v.Components)
		clone.Value = Vector{Components: comps}
	case DataSet:
		entries := make(map[string]DataSetEntry, len(v.Entries))
		for k, e := range v.Entries {
			entries[k] = e
		}
		clone.Value = DataSet{Entries: entries}
	case Table:
		rows := make(map[string]DataSet, len(v.Rows))
		for k, ds := range v.Rows {
			entries := make(map[string]DataSetEntry, len(ds.Entries))
			for ek, e := range ds.Entries {
				entries[ek] = e
			}
			rows[k] = DataSet{Entries: entries}
		}
		clone.Value = Table{Rows: rows}
	case TimeSeries:
		samples := make([]float64, len(v.Samples))
		copy(samples, v.Samples)
		clone.Value = TimeSeries{Samples: samples, SampleRate: v.SampleRate}
	}
	return clone
}

// AssetAction names what an AssetCommand entity requests of the asset buffer.
type AssetAction int

const (
	AssetAdd AssetAction = iota
	AssetRemove
)

// AssetCommand is the pipeline entity produced when ingestion recognizes an
// asset add/remove (from SHDR @ASSET@ frames or upstream AssetChanged/
// AssetRemoved events).
type AssetCommand struct {
	Action    AssetAction
	Asset     Asset
	Timestamp time.Time
}

func (AssetCommand) Kind() EntityKind { return KindAssetCommand }

// Asset is a long-lived artifact (e.g. a cutting tool) referenced by one or
// more devices. Identity is Asset.ID; the buffer replaces on id collision.
type Asset struct {
	ID         string
	Type       string
	DeviceUUID string
	Removed    bool
	Timestamp  time.Time
	Body       any
}
