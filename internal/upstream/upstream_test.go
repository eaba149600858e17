package upstream

import (
	"strings"
	"testing"

	"github.com/mtconnect/agent-core/internal/model"
)

const sampleStreamsDoc = `<?xml version="1.0"?>
<MTConnectStreams>
  <Header instanceId="42" nextSequence="108" firstSequence="1"/>
  <Streams>
    <DeviceStream name="Lathe001">
      <ComponentStream component="Controller">
        <Samples>
          <Position dataItemId="x1" sequence="101" timestamp="2021-01-01T00:00:01Z">1.5</Position>
        </Samples>
        <Events>
          <Availability dataItemId="avail" sequence="102" timestamp="2021-01-01T00:00:02Z">AVAILABLE</Availability>
        </Events>
        <Condition>
          <Unavailable dataItemId="cond1" sequence="103" timestamp="2021-01-01T00:00:03Z"/>
        </Condition>
      </ComponentStream>
    </DeviceStream>
  </Streams>
</MTConnectStreams>`

const sampleAssetsDoc = `<?xml version="1.0"?>
<MTConnectAssets>
  <Header instanceId="42" nextSequence="109"/>
  <Assets>
    <AssetChanged assetId="tool1" assetType="CuttingTool" deviceUuid="Lathe001"/>
    <AssetRemoved assetId="tool2" assetType="CuttingTool" deviceUuid="Lathe001"/>
  </Assets>
</MTConnectAssets>`

const sampleErrorDoc = `<?xml version="1.0"?>
<MTConnectError>
  <Header instanceId="42" nextSequence="1"/>
  <Errors>
    <Error errorCode="OUT_OF_RANGE">sequence is out of range</Error>
  </Errors>
</MTConnectError>`

func TestParseStreamsDoc(t *testing.T) {
	ig := NewIngestor()
	doc, err := ig.Parse(strings.NewReader(sampleStreamsDoc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.InstanceID != 42 || doc.NextSequence != 108 {
		t.Fatalf("header = %+v", doc)
	}
	if len(doc.Observations) != 3 {
		t.Fatalf("got %d observations, want 3: %+v", len(doc.Observations), doc.Observations)
	}

	byID := map[model.DataItemID]model.Observation{}
	for _, o := range doc.Observations {
		byID[o.DataItem] = o
	}

	pos, ok := byID["x1"]
	if !ok {
		t.Fatal("missing x1 observation")
	}
	scalar, ok := pos.Value.(model.Scalar)
	if !ok || scalar.Number != 1.5 {
		t.Errorf("x1 value = %#v", pos.Value)
	}

	avail, ok := byID["avail"]
	if !ok {
		t.Fatal("missing avail observation")
	}
	if s, ok := avail.Value.(model.Scalar); !ok || !s.IsString || s.String != "AVAILABLE" {
		t.Errorf("avail value = %#v", avail.Value)
	}
}

func TestParseAssetsDoc(t *testing.T) {
	ig := NewIngestor()
	doc, err := ig.Parse(strings.NewReader(sampleAssetsDoc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(doc.AssetCommands) != 2 {
		t.Fatalf("got %d asset commands, want 2", len(doc.AssetCommands))
	}
	if doc.AssetCommands[0].Action != model.AssetAdd || doc.AssetCommands[0].Asset.ID != "tool1" {
		t.Errorf("first command = %+v", doc.AssetCommands[0])
	}
	if doc.AssetCommands[1].Action != model.AssetRemove || doc.AssetCommands[1].Asset.ID != "tool2" {
		t.Errorf("second command = %+v", doc.AssetCommands[1])
	}
}

func TestParseErrorDoc(t *testing.T) {
	ig := NewIngestor()
	doc, err := ig.Parse(strings.NewReader(sampleErrorDoc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(doc.Errors) != 1 {
		t.Fatalf("got %d errors, want 1", len(doc.Errors))
	}
	if doc.Errors[0].Code != "OUT_OF_RANGE" {
		t.Errorf("error code = %q", doc.Errors[0].Code)
	}
	if !strings.Contains(doc.Errors[0].Message, "out of range") {
		t.Errorf("error message = %q", doc.Errors[0].Message)
	}
}

func TestInstanceChangeDetected(t *testing.T) {
	ig := NewIngestor()
	if _, err := ig.Parse(strings.NewReader(sampleStreamsDoc)); err != nil {
		t.Fatalf("first Parse: %v", err)
	}

	changed := strings.Replace(sampleStreamsDoc, `instanceId="42"`, `instanceId="99"`, 1)
	_, err := ig.Parse(strings.NewReader(changed))
	if err == nil {
		t.Fatal("expected InstanceChangedError, got nil")
	}
	ice, ok := err.(*InstanceChangedError)
	if !ok {
		t.Fatalf("err type = %T, want *InstanceChangedError", err)
	}
	if ice.Previous != 42 || ice.Current != 99 {
		t.Errorf("ice = %+v", ice)
	}

	ig.Reseed(99)
	if _, err := ig.Parse(strings.NewReader(changed)); err != nil {
		t.Fatalf("Parse after Reseed: %v", err)
	}
}
