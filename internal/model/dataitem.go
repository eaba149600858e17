package model

// DataItemID is the opaque identifier of a recognized datum.
type DataItemID string

// Category classifies what kind of thing a DataItem measures.
type Category string

const (
	CategorySample    Category = "SAMPLE"
	CategoryEvent     Category = "EVENT"
	CategoryCondition Category = "CONDITION"
)

// Representation describes the shape of the values a DataItem emits.
type Representation string

const (
	RepresentationValue      Representation = "VALUE"
	RepresentationTimeSeries Representation = "TIME_SERIES"
	RepresentationDataSet    Representation = "DATA_SET"
	RepresentationTable      Representation = "TABLE"
)

// FilterKind names the two transform filters a DataItem can declare.
type FilterKind string

const (
	FilterMinimumDelta FilterKind = "MINIMUM_DELTA"
	FilterPeriod       FilterKind = "PERIOD"
)

// Filter is one entry of a DataItem's declared filter list.
type Filter struct {
	Kind  FilterKind
	Value float64
}

// DataItem is the immutable, externally supplied metadata for one recognized
// channel of data. The core never constructs or mutates a DataItem — it is
// supplied by the device model loader, which is out of scope here.
type DataItem struct {
	ID            DataItemID
	Name          string
	Source        string
	Category      Category
	Representation Representation
	Type          string
	SubType       string
	Units         string
	NativeUnits   string
	NativeScale   float64
	Filters       []Filter
	DefaultValue  string
	SampleRate    float64 // only meaningful for TIME_SERIES items
}

// DeltaFilter returns the MINIMUM_DELTA filter value and whether one is set.
func (d DataItem) DeltaFilter() (float64, bool) {
	for _, f := range d.Filters {
		if f.Kind == FilterMinimumDelta {
			return f.Value, true
		}
	}
	return 0, false
}

// PeriodFilter returns the PERIOD filter value (seconds) and whether one is set.
func (d DataItem) PeriodFilter() (float64, bool) {
	for _, f := range d.Filters {
		if f.Kind == FilterPeriod {
			return f.Value, true
		}
	}
	return 0, false
}
