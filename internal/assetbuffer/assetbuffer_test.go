package assetbuffer

import (
	"testing"

	"github.com/mtconnect/agent-core/internal/model"
)

func TestAddAndQueryByID(t *testing.T) {
	b := New(10)
	b.Add(model.Asset{ID: "T1", Type: "CuttingTool"})

	got := b.Query(QueryFilter{IDs: []string{"T1"}})
	if len(got) != 1 || got[0].ID != "T1" {
		t.Fatalf("Query(IDs=[T1]) = %+v", got)
	}
}

func TestAddReplacesExisting(t *testing.T) {
	b := New(10)
	b.Add(model.Asset{ID: "T1", Type: "CuttingTool", Body: "v1"})
	b.Add(model.Asset{ID: "T1", Type: "CuttingTool", Body: "v2"})

	got := b.Query(QueryFilter{IDs: []string{"T1"}})
	if len(got) != 1 || got[0].Body != "v2" {
		t.Fatalf("expected replaced body v2, got %+v", got)
	}
	if b.ActiveCount("CuttingTool") != 1 {
		t.Errorf("ActiveCount = %d, want 1 (replace should not double-count)", b.ActiveCount("CuttingTool"))
	}
}

func TestRemoveTombstones(t *testing.T) {
	b := New(10)
	b.Add(model.Asset{ID: "T1", Type: "CuttingTool"})
	if !b.Remove("T1") {
		t.Fatal("Remove should succeed for an existing asset")
	}

	if b.ActiveCount("CuttingTool") != 0 {
		t.Errorf("ActiveCount after remove = %d, want 0", b.ActiveCount("CuttingTool"))
	}

	activeOnly := b.Query(QueryFilter{Type: "CuttingTool"})
	if len(activeOnly) != 0 {
		t.Errorf("active-only query should exclude removed asset, got %+v", activeOnly)
	}

	withRemoved := b.Query(QueryFilter{Type: "CuttingTool", IncludeRemoved: true})
	if len(withRemoved) != 1 {
		t.Errorf("IncludeRemoved query should return the tombstoned asset, got %+v", withRemoved)
	}
}

func TestEvictionByInsertionOrder(t *testing.T) {
	b := New(2)
	b.Add(model.Asset{ID: "A", Type: "t"})
	b.Add(model.Asset{ID: "B", Type: "t"})
	b.Add(model.Asset{ID: "C", Type: "t"}) // should evict A

	if _, ok := b.primary["A"]; ok {
		t.Error("expected A to be evicted")
	}
	got := b.Query(QueryFilter{Type: "t"})
	if len(got) != 2 {
		t.Fatalf("got %d assets, want 2 after eviction", len(got))
	}
}

func TestQueryMostRecentFirst(t *testing.T) {
	b := New(10)
	b.Add(model.Asset{ID: "A", Type: "t"})
	b.Add(model.Asset{ID: "B", Type: "t"})
	b.Add(model.Asset{ID: "C", Type: "t"})

	got := b.Query(QueryFilter{Type: "t"})
	want := []string{"C", "B", "A"}
	if len(got) != len(want) {
		t.Fatalf("got %d assets, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("got[%d].ID = %q, want %q", i, got[i].ID, id)
		}
	}
}

func TestQueryByDeviceUUID(t *testing.T) {
	b := New(10)
	b.Add(model.Asset{ID: "A", Type: "t", DeviceUUID: "dev1"})
	b.Add(model.Asset{ID: "B", Type: "t", DeviceUUID: "dev2"})

	got := b.Query(QueryFilter{DeviceUUID: "dev1"})
	if len(got) != 1 || got[0].ID != "A" {
		t.Fatalf("Query(DeviceUUID=dev1) = %+v", got)
	}
}

func TestQueryCount(t *testing.T) {
	b := New(10)
	for _, id := range []string{"A", "B", "C", "D"} {
		b.Add(model.Asset{ID: id, Type: "t"})
	}
	got := b.Query(QueryFilter{Type: "t", Count: 2})
	if len(got) != 2 {
		t.Fatalf("got %d assets, want 2", len(got))
	}
}
