package pipeline

import (
	"strconv"
	"strings"

	"github.com/mtconnect/agent-core/internal/clock"
	"github.com/mtconnect/agent-core/internal/model"
)

// ShdrTokenMapper folds the remaining tokens of a Timestamped entity into
// one or more model.Observation (or model.AssetCommand) values, resolving
// each data-item reference against the registry and interpreting the value
// syntax that follows it per §4.3: scalars, condition tuples
// (LEVEL|CODE|SEVERITY|QUAL|MESSAGE), data-set entries ("k=v k2=v2"),
// tables ("k={k=v …}"), ":UNAVAILABLE", and ":reset" trigger suffixes.
//
// It is not itself a Node — it fans a single Timestamped entity out into a
// slice, which the caller threads individually through the per-observation
// filter chain.
type ShdrTokenMapper struct {
	Registry DataItemRegistry
}

const assetMarker = "@ASSET@"

// Map consumes ts.RemainingTokens left to right.
func (m ShdrTokenMapper) Map(ts clock.Timestamped) ([]model.Entity, error) {
	var out []model.Entity
	tokens := ts.RemainingTokens
	i := 0
	for i < len(tokens) {
		if tokens[i] == assetMarker {
			cmd, consumed, err := m.mapAsset(ts, tokens[i+1:])
			if err != nil {
				return nil, err
			}
			out = append(out, cmd)
			i += 1 + consumed
			continue
		}

		ref := tokens[i]
		item, ok := m.Registry.Lookup(ref)
		if !ok {
			item, ok = m.Registry.LookupBySource(ref)
		}
		if !ok {
			// Unknown reference: skip the id token and the single value
			// token that would ordinarily follow it, rather than stalling.
			i += 2
			continue
		}

		obs, consumed := m.mapValue(ts, item, tokens[i+1:])
		i += 1 + consumed
		if obs != nil {
			out = append(out, obs)
		}
	}
	return out, nil
}

func (m ShdrTokenMapper) mapValue(ts clock.Timestamped, item model.DataItem, rest []string) (model.Entity, int) {
	switch item.Category {
	case model.CategoryCondition:
		return m.mapCondition(ts, item, rest)
	}

	switch item.Representation {
	case model.RepresentationDataSet:
		return m.mapDataSet(ts, item, rest)
	case model.RepresentationTable:
		return m.mapTable(ts, item, rest)
	case model.RepresentationTimeSeries:
		return m.mapTimeSeries(ts, item, rest)
	default:
		return m.mapScalar(ts, item, rest)
	}
}

func (m ShdrTokenMapper) mapScalar(ts clock.Timestamped, item model.DataItem, rest []string) (model.Entity, int) {
	if len(rest) == 0 {
		return nil, 0
	}
	raw, reset := stripReset(rest[0])
	value := scalarValue(raw)
	return model.Observation{
		DataItem:     item.ID,
		Timestamp:    ts.Timestamp,
		Value:        value,
		Duration:     ts.Duration,
		ResetTrigger: reset,
	}, 1
}

func scalarValue(raw string) model.ObservedValue {
	if raw == "UNAVAILABLE" {
		return model.Unavailable{}
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return model.NumberScalar(n)
	}
	return model.StringScalar(raw)
}

func (m ShdrTokenMapper) mapCondition(ts clock.Timestamped, item model.DataItem, rest []string) (model.Entity, int) {
	if len(rest) == 0 {
		return nil, 0
	}
	// LEVEL|CODE|SEVERITY|QUAL|MESSAGE — any trailing fields may be absent.
	get := func(idx int) string {
		if idx < len(rest) {
			return rest[idx]
		}
		return ""
	}
	cond := model.Condition{
		Level:          model.ConditionLevel(strings.ToUpper(get(0))),
		NativeCode:     get(1),
		NativeSeverity: get(2),
		Qualifier:      get(3),
		Message:        get(4),
	}
	consumed := len(rest)
	if consumed > 5 {
		consumed = 5
	}
	return model.Observation{
		DataItem:  item.ID,
		Timestamp: ts.Timestamp,
		Value:     cond,
		Duration:  ts.Duration,
	}, consumed
}

func (m ShdrTokenMapper) mapDataSet(ts clock.Timestamped, item model.DataItem, rest []string) (model.Entity, int) {
	if len(rest) == 0 {
		return nil, 0
	}
	raw, reset := stripReset(rest[0])
	ds := model.NewDataSet()
	for _, pair := range strings.Fields(raw) {
		key, val, removed := splitDataSetPair(pair)
		ds.Entries[key] = dataSetEntry(key, val, removed)
	}
	return model.Observation{
		DataItem:     item.ID,
		Timestamp:    ts.Timestamp,
		Value:        ds,
		Duration:     ts.Duration,
		ResetTrigger: reset,
	}, 1
}

func dataSetEntry(key, val string, removed bool) model.DataSetEntry {
	if removed {
		return model.DataSetEntry{Key: key, Removed: true}
	}
	if n, err := strconv.ParseFloat(val, 64); err == nil {
		return model.DataSetEntry{Key: key, Value: n}
	}
	return model.DataSetEntry{Key: key, Text: val, IsText: true}
}

func splitDataSetPair(pair string) (key, val string, removed bool) {
	idx := strings.IndexByte(pair, '=')
	if idx < 0 {
		return pair, "", true
	}
	return pair[:idx], pair[idx+1:], false
}

func (m ShdrTokenMapper) mapTable(ts clock.Timestamped, item model.DataItem, rest []string) (model.Entity, int) {
	if len(rest) == 0 {
		return nil, 0
	}
	raw, reset := stripReset(rest[0])
	table := model.Table{Rows: make(map[string]model.DataSet)}
	for _, row := range strings.Fields(collapseBraces(raw)) {
		key, body, removed := splitDataSetPair(row)
		if removed {
			table.Rows[key] = model.NewDataSet()
			continue
		}
		inner := model.NewDataSet()
		for _, pair := range strings.Fields(strings.Trim(body, "{}")) {
			k, v, r := splitDataSetPair(pair)
			inner.Entries[k] = dataSetEntry(k, v, r)
		}
		table.Rows[key] = inner
	}
	return model.Observation{
		DataItem:     item.ID,
		Timestamp:    ts.Timestamp,
		Value:        table,
		Duration:     ts.Duration,
		ResetTrigger: reset,
	}, 1
}

// collapseBraces rewrites "k={a=1 b=2} k2={c=3}" tokens so strings.Fields
// does not split inside a brace group, by turning inner spaces into a
// sentinel that splitDataSetPair/trailing parse restores.
func collapseBraces(raw string) string {
	var b strings.Builder
	depth := 0
	for _, r := range raw {
		switch r {
		case '{':
			depth++
			b.WriteRune(r)
		case '}':
			depth--
			b.WriteRune(r)
		case ' ':
			if depth > 0 {
				b.WriteRune('\x00')
			} else {
				b.WriteRune(r)
			}
		default:
			b.WriteRune(r)
		}
	}
	return strings.ReplaceAll(b.String(), "\x00", " ")
}

func (m ShdrTokenMapper) mapTimeSeries(ts clock.Timestamped, item model.DataItem, rest []string) (model.Entity, int) {
	if len(rest) == 0 {
		return nil, 0
	}
	raw, reset := stripReset(rest[0])
	fields := strings.Fields(raw)
	samples := make([]float64, 0, len(fields))
	for _, f := range fields {
		if n, err := strconv.ParseFloat(f, 64); err == nil {
			samples = append(samples, n)
		}
	}
	return model.Observation{
		DataItem:     item.ID,
		Timestamp:    ts.Timestamp,
		Value:        model.TimeSeries{Samples: samples, SampleRate: item.SampleRate},
		Duration:     ts.Duration,
		ResetTrigger: reset,
	}, 1
}

func (m ShdrTokenMapper) mapAsset(ts clock.Timestamped, rest []string) (model.Entity, int, error) {
	get := func(idx int) string {
		if idx < len(rest) {
			return rest[idx]
		}
		return ""
	}
	id := get(0)
	assetType := get(1)
	action := model.AssetAdd
	body := get(2)
	if strings.EqualFold(body, "REMOVE") {
		action = model.AssetRemove
	}
	return model.AssetCommand{
		Action:    action,
		Timestamp: ts.Timestamp,
		Asset: model.Asset{
			ID:        id,
			Type:      assetType,
			Timestamp: ts.Timestamp,
			Body:      body,
		},
	}, 3, nil
}

func stripReset(raw string) (value string, resetTrigger string) {
	if idx := strings.LastIndex(raw, ":"); idx >= 0 {
		suffix := raw[idx+1:]
		if strings.EqualFold(suffix, "reset") || strings.EqualFold(suffix, "manual") || strings.EqualFold(suffix, "day") || strings.EqualFold(suffix, "shift") {
			return raw[:idx], strings.ToUpper(suffix)
		}
	}
	return raw, ""
}
