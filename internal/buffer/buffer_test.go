package buffer

import (
	"testing"

	"github.com/mtconnect/agent-core/internal/model"
)

func obs(id model.DataItemID, value float64) model.Observation {
	return model.Observation{DataItem: id, Value: model.NumberScalar(value)}
}

func TestAddAssignsMonotoneSequence(t *testing.T) {
	b := New(8, 4)
	for i := 0; i < 5; i++ {
		seq := b.Add(obs("x", float64(i)))
		if seq != uint64(i+1) {
			t.Errorf("Add #%d: seq = %d, want %d", i, seq, i+1)
		}
	}
}

func TestGetOutOfRange(t *testing.T) {
	b := New(4, 4)
	for i := 0; i < 6; i++ {
		b.Add(obs("x", float64(i)))
	}
	// sequences are 1-based: 1..6 assigned, capacity 4 evicts 1,2; first_sequence == 3
	if _, ok := b.Get(0); ok {
		t.Error("Get(0) should miss: sequence 0 is never assigned")
	}
	if _, ok := b.Get(5); !ok {
		t.Error("Get(5) should hit")
	}
	if got := b.FirstSequence(); got != 3 {
		t.Errorf("FirstSequence = %d, want 3", got)
	}
}

func TestCurrentLatestPerDataItem(t *testing.T) {
	b := New(16, 4)
	b.Add(obs("x", 1))
	b.Add(obs("y", 2))
	b.Add(obs("x", 3))

	got, err := b.Current(nil, nil)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d observations, want 2", len(got))
	}
	for _, o := range got {
		if o.DataItem == "x" {
			if v := o.Value.(model.Scalar).Number; v != 3 {
				t.Errorf("x latest = %v, want 3", v)
			}
		}
	}
}

func TestCurrentAtHistorical(t *testing.T) {
	b := New(16, 2)
	b.Add(obs("x", 1)) // seq 1
	b.Add(obs("x", 2)) // seq 2
	b.Add(obs("x", 3)) // seq 3

	at := uint64(2)
	got, err := b.Current(nil, &at)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if len(got) != 1 || got[0].Value.(model.Scalar).Number != 2 {
		t.Fatalf("Current(at=2) = %+v, want x=2", got)
	}
}

func TestCurrentAtOutOfRange(t *testing.T) {
	b := New(4, 4)
	for i := 0; i < 6; i++ {
		b.Add(obs("x", float64(i)))
	}
	at := uint64(0)
	if _, err := b.Current(nil, &at); err == nil {
		t.Fatal("expected OutOfRangeError")
	}
}

func TestSampleRange(t *testing.T) {
	b := New(16, 4)
	for i := 0; i < 10; i++ {
		b.Add(obs("x", float64(i)))
	}

	got, endSeq, endOfBuffer, err := b.Sample(nil, 2, nil, 3)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d observations, want 3", len(got))
	}
	if got[0].Sequence != 2 || got[2].Sequence != 4 {
		t.Errorf("sequences = %d..%d, want 2..4", got[0].Sequence, got[2].Sequence)
	}
	if endSeq != 5 {
		t.Errorf("endSeq = %d, want 5", endSeq)
	}
	if endOfBuffer {
		t.Error("endOfBuffer should be false: count exhausted before range end")
	}
}

func TestSampleFromOutOfRange(t *testing.T) {
	b := New(4, 4)
	for i := 0; i < 10; i++ {
		b.Add(obs("x", float64(i)))
	}
	if _, _, _, err := b.Sample(nil, 0, nil, 10); err == nil {
		t.Fatal("expected OutOfRangeError for from < firstSequence")
	}
}

func TestSampleEndOfBuffer(t *testing.T) {
	b := New(16, 4)
	for i := 0; i < 5; i++ {
		b.Add(obs("x", float64(i)))
	}
	got, _, endOfBuffer, err := b.Sample(nil, 1, nil, 100)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d, want 5", len(got))
	}
	if !endOfBuffer {
		t.Error("expected endOfBuffer = true when range exhausted before count")
	}
}

func TestConditionStateTracking(t *testing.T) {
	b := New(16, 4)
	b.Add(model.Observation{DataItem: "system", Value: model.Condition{Level: model.ConditionFault, NativeCode: "400"}})
	b.Add(model.Observation{DataItem: "system", Value: model.Condition{Level: model.ConditionWarning, NativeCode: "401"}})

	active := b.ActiveConditions("system")
	if len(active) != 2 {
		t.Fatalf("got %d active conditions, want 2", len(active))
	}

	b.Add(model.Observation{DataItem: "system", Value: model.Condition{Level: model.ConditionNormal, NativeCode: "400"}})
	active = b.ActiveConditions("system")
	if len(active) != 1 || active[0].NativeCode != "401" {
		t.Fatalf("after clearing 400, active = %+v, want only 401", active)
	}
}
