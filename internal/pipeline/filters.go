package pipeline

import (
	"math"

	"github.com/mtconnect/agent-core/internal/model"
	"github.com/mtconnect/agent-core/internal/units"
)

// lastValueKey builds the PipelineContext cell key for an item's last
// delivered value, used by DuplicateFilter and DeltaFilter.
func lastValueKey(id model.DataItemID) string { return "last:" + string(id) }

// DuplicateFilterNode drops an observation whose canonical value equals the
// last delivered value for that data item. Canonicalization: scalars
// compared numerically (exact) or byte-equal for strings; data sets by
// active entry set; conditions by (level, native_code).
type DuplicateFilterNode struct{}

func (DuplicateFilterNode) Name() string { return "DuplicateFilter" }

func (DuplicateFilterNode) Accepts(k model.EntityKind) bool { return k == model.KindObservation }

func (DuplicateFilterNode) Apply(ctx *Context, e model.Entity) (model.Entity, error) {
	obs := e.(model.Observation)
	key := lastValueKey(obs.DataItem)
	if prev, ok := ctx.Cell(key); ok {
		if equalCanonical(prev.(model.Observation).Value, obs.Value) {
			return nil, nil
		}
	}
	ctx.SetCell(key, obs)
	return obs, nil
}

func equalCanonical(a, b model.ObservedValue) bool {
	switch av := a.(type) {
	case model.Scalar:
		bv, ok := b.(model.Scalar)
		if !ok {
			return false
		}
		if av.IsString != bv.IsString {
			return false
		}
		if av.IsString {
			return av.String == bv.String
		}
		return av.Number == bv.Number
	case model.Unavailable:
		_, ok := b.(model.Unavailable)
		return ok
	case model.DataSet:
		bv, ok := b.(model.DataSet)
		if !ok {
			return false
		}
		aActive, bActive := av.ActiveKeys(), bv.ActiveKeys()
		if len(aActive) != len(bActive) {
			return false
		}
		for k, ae := range aActive {
			be, ok := bActive[k]
			if !ok || ae.IsText != be.IsText || ae.Value != be.Value || ae.Text != be.Text {
				return false
			}
		}
		return true
	case model.Condition:
		bv, ok := b.(model.Condition)
		if !ok {
			return false
		}
		return av.Level == bv.Level && av.NativeCode == bv.NativeCode
	default:
		return false
	}
}

// DeltaFilterNode drops SAMPLE values whose distance from the last
// delivered value is below the item's MINIMUM_DELTA filter.
type DeltaFilterNode struct {
	Registry DataItemRegistry
}

func (DeltaFilterNode) Name() string { return "DeltaFilter" }

func (DeltaFilterNode) Accepts(k model.EntityKind) bool { return k == model.KindObservation }

func (f DeltaFilterNode) Apply(ctx *Context, e model.Entity) (model.Entity, error) {
	obs := e.(model.Observation)
	item, ok := f.Registry.Lookup(string(obs.DataItem))
	if !ok || item.Category != model.CategorySample {
		return obs, nil
	}
	delta, ok := item.DeltaFilter()
	if !ok {
		return obs, nil
	}

	key := "delta:" + string(obs.DataItem)
	prevCell, hadPrev := ctx.Cell(key)
	if !hadPrev {
		ctx.SetCell(key, obs)
		return obs, nil
	}
	prev := prevCell.(model.Observation)

	diff, ok := valueDistance(prev.Value, obs.Value)
	if ok && diff < delta {
		return nil, nil
	}
	ctx.SetCell(key, obs)
	return obs, nil
}

func valueDistance(a, b model.ObservedValue) (float64, bool) {
	switch av := a.(type) {
	case model.Scalar:
		bv, ok := b.(model.Scalar)
		if !ok || av.IsString || bv.IsString {
			return 0, false
		}
		return math.Abs(av.Number - bv.Number), true
	case model.Vector:
		bv, ok := b.(model.Vector)
		if !ok || len(av.Components) != len(bv.Components) {
			return 0, false
		}
		max := 0.0
		for i := range av.Components {
			if d := math.Abs(av.Components[i] - bv.Components[i]); d > max {
				max = d
			}
		}
		return max, true
	default:
		return 0, false
	}
}

// PeriodFilterNode drops observations whose timestamp falls within the
// item's PERIOD filter of the last delivered observation.
type PeriodFilterNode struct {
	Registry DataItemRegistry
}

func (PeriodFilterNode) Name() string { return "PeriodFilter" }

func (PeriodFilterNode) Accepts(k model.EntityKind) bool { return k == model.KindObservation }

func (f PeriodFilterNode) Apply(ctx *Context, e model.Entity) (model.Entity, error) {
	obs := e.(model.Observation)
	item, ok := f.Registry.Lookup(string(obs.DataItem))
	if !ok {
		return obs, nil
	}
	period, ok := item.PeriodFilter()
	if !ok {
		return obs, nil
	}

	key := "period:" + string(obs.DataItem)
	prevCell, hadPrev := ctx.Cell(key)
	if hadPrev {
		prev := prevCell.(model.Observation)
		if obs.Timestamp.Sub(prev.Timestamp).Seconds() < period {
			return nil, nil
		}
	}
	ctx.SetCell(key, obs)
	return obs, nil
}

// UnitConverterNode applies the item's native_units → units conversion.
type UnitConverterNode struct {
	Registry DataItemRegistry
}

func (UnitConverterNode) Name() string { return "UnitConverter" }

func (UnitConverterNode) Accepts(k model.EntityKind) bool { return k == model.KindObservation }

func (f UnitConverterNode) Apply(ctx *Context, e model.Entity) (model.Entity, error) {
	obs := e.(model.Observation)
	item, ok := f.Registry.Lookup(string(obs.DataItem))
	if !ok || item.NativeUnits == "" || item.Units == "" || item.NativeUnits == item.Units {
		return obs, nil
	}
	conv, err := units.Resolve(item.NativeUnits, item.Units, item.NativeScale)
	if err != nil {
		return obs, nil // leave value as-is; the conversion is best-effort
	}

	switch v := obs.Value.(type) {
	case model.Scalar:
		if !v.IsString {
			obs.Value = model.NumberScalar(conv.Apply(v.Number))
		}
	case model.Vector:
		obs.Value = model.Vector{Components: conv.ApplyVector(v.Components)}
	}
	return obs, nil
}

// DeliveryNode hands the observation or asset command to the configured
// sink, terminating the pipeline.
type DeliveryNode struct{}

func (DeliveryNode) Name() string { return "Delivery" }

func (DeliveryNode) Accepts(k model.EntityKind) bool {
	return k == model.KindObservation || k == model.KindAssetCommand
}

func (DeliveryNode) Apply(ctx *Context, e model.Entity) (model.Entity, error) {
	switch v := e.(type) {
	case model.Observation:
		return nil, ctx.Sink.DeliverObservation(v)
	case model.AssetCommand:
		return nil, ctx.Sink.DeliverAssetCommand(v)
	}
	return nil, nil
}
