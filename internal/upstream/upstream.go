// Package upstream polls a peer MTConnect Agent's Streams/Assets/Error XML
// documents (C10), turning them into the same Observation/AssetCommand
// entities a local adapter pipeline produces.
package upstream

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/mtconnect/agent-core/internal/model"
)

// InstanceChangedError is raised when a peer's instanceId changes between
// two consecutive documents: the caller must refetch Current to re-seed
// before resuming Sample polling, per §4.9.
type InstanceChangedError struct {
	Previous uint64
	Current  uint64
}

func (e *InstanceChangedError) Error() string {
	return fmt.Sprintf("upstream: instanceId changed %d -> %d, refetch required", e.Previous, e.Current)
}

// AgentError is one `{code, message}` entry of an MTConnectError document.
type AgentError struct {
	Code    string
	Message string
}

// Document is the result of parsing one peer-Agent XML response.
type Document struct {
	Observations  []model.Observation
	AssetCommands []model.AssetCommand
	InstanceID    uint64
	NextSequence  uint64
	Errors        []AgentError
}

// Ingestor tracks the peer's instanceId across documents and exposes the
// XML parsing independent of transport, so it can be unit tested without a
// live peer.
type Ingestor struct {
	mu         sync.Mutex
	instanceID uint64
	primed     bool
}

// NewIngestor builds an unprimed Ingestor.
func NewIngestor() *Ingestor { return &Ingestor{} }

// Parse decodes one document body. Streams/Assets documents are tracked
// against the instanceId seen so far; a change raises
// InstanceChangedError and the ingestor returns to the unprimed state so
// the next successful Parse reseeds it.
func (ig *Ingestor) Parse(body io.Reader) (Document, error) {
	decoder := xml.NewDecoder(body)

	var doc Document
	var stack []string
	var current *pendingObservation

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Document{}, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			stack = append(stack, t.Name.Local)
			switch t.Name.Local {
			case "MTConnectStreams", "MTConnectAssets", "MTConnectError":
				// root element carries no header attributes itself
			case "Header":
				instanceID, nextSeq := parseHeaderAttrs(t.Attr)
				doc.InstanceID = instanceID
				doc.NextSequence = nextSeq
			case "Error":
				doc.Errors = append(doc.Errors, AgentError{
					Code:    attrValue(t.Attr, "errorCode"),
					Message: "",
				})
			case "AssetChanged", "AssetRemoved":
				cmd := model.AssetCommand{
					Action: assetAction(t.Name.Local),
					Asset: model.Asset{
						ID:         attrValue(t.Attr, "assetId"),
						Type:       attrValue(t.Attr, "assetType"),
						DeviceUUID: attrValue(t.Attr, "deviceUuid"),
					},
				}
				doc.AssetCommands = append(doc.AssetCommands, cmd)
			default:
				if id := attrValue(t.Attr, "dataItemId"); id != "" {
					current = &pendingObservation{
						category:  categoryFromAncestor(stack),
						dataItem:  id,
						sequence:  attrValue(t.Attr, "sequence"),
						timestamp: attrValue(t.Attr, "timestamp"),
					}
				}
			}
		case xml.CharData:
			if current != nil {
				current.text += string(t)
			} else if len(doc.Errors) > 0 && stack[len(stack)-1] == "Error" {
				doc.Errors[len(doc.Errors)-1].Message += string(t)
			}
		case xml.EndElement:
			if current != nil && t.Name.Local != "" {
				if obs, ok := current.build(); ok {
					doc.Observations = append(doc.Observations, obs)
				}
				current = nil
			}
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if len(doc.Errors) > 0 {
		return doc, nil
	}
	if err := ig.trackInstance(doc.InstanceID); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (ig *Ingestor) trackInstance(instanceID uint64) error {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	if !ig.primed {
		ig.instanceID = instanceID
		ig.primed = true
		return nil
	}
	if instanceID != ig.instanceID {
		prev := ig.instanceID
		ig.primed = false
		return &InstanceChangedError{Previous: prev, Current: instanceID}
	}
	return nil
}

// Reseed re-primes the ingestor after the caller has refetched Current
// following an InstanceChangedError.
func (ig *Ingestor) Reseed(instanceID uint64) {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	ig.instanceID = instanceID
	ig.primed = true
}

type pendingObservation struct {
	category  model.Category
	dataItem  string
	sequence  string
	timestamp string
	text      string
}

func (p *pendingObservation) build() (model.Observation, bool) {
	if p.dataItem == "" {
		return model.Observation{}, false
	}
	ts, _ := time.Parse(time.RFC3339Nano, p.timestamp)
	seq, _ := strconv.ParseUint(p.sequence, 10, 64)

	value := scalarOrUnavailable(p.text)
	return model.Observation{
		DataItem:  model.DataItemID(p.dataItem),
		Sequence:  seq,
		Timestamp: ts,
		Value:     value,
	}, true
}

func scalarOrUnavailable(text string) model.ObservedValue {
	if text == "UNAVAILABLE" || text == "" {
		return model.Unavailable{}
	}
	if n, err := strconv.ParseFloat(text, 64); err == nil {
		return model.NumberScalar(n)
	}
	return model.StringScalar(text)
}

func categoryFromAncestor(stack []string) model.Category {
	for i := len(stack) - 1; i >= 0; i-- {
		switch stack[i] {
		case "Samples":
			return model.CategorySample
		case "Events":
			return model.CategoryEvent
		case "Condition":
			return model.CategoryCondition
		}
	}
	return model.CategoryEvent
}

func assetAction(elementName string) model.AssetAction {
	if elementName == "AssetRemoved" {
		return model.AssetRemove
	}
	return model.AssetAdd
}

func attrValue(attrs []xml.Attr, name string) string {
	for _, a := range attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func parseHeaderAttrs(attrs []xml.Attr) (instanceID, nextSequence uint64) {
	instanceID, _ = strconv.ParseUint(attrValue(attrs, "instanceId"), 10, 64)
	nextSequence, _ = strconv.ParseUint(attrValue(attrs, "nextSequence"), 10, 64)
	return
}

// Poller fetches Current once to seed, then repeatedly polls Sample from
// the last nextSequence, re-seeding via Current whenever the peer's
// instanceId changes.
type Poller struct {
	BaseURL    string
	HTTPClient *http.Client
	Ingestor   *Ingestor

	next uint64
}

// NewPoller builds a Poller against baseURL using client (or
// http.DefaultClient if nil).
func NewPoller(baseURL string, client *http.Client) *Poller {
	if client == nil {
		client = http.DefaultClient
	}
	return &Poller{BaseURL: baseURL, HTTPClient: client, Ingestor: NewIngestor()}
}

// Seed fetches Current to establish the peer's instanceId and starting
// sequence.
func (p *Poller) Seed(ctx context.Context) (Document, error) {
	doc, err := p.fetch(ctx, p.BaseURL+"/current")
	if err != nil {
		return Document{}, err
	}
	p.Ingestor.Reseed(doc.InstanceID)
	p.next = doc.NextSequence
	return doc, nil
}

// Poll fetches the next Sample chunk. On InstanceChangedError the caller
// should call Seed again before retrying Poll.
func (p *Poller) Poll(ctx context.Context) (Document, error) {
	url := fmt.Sprintf("%s/sample?from=%d", p.BaseURL, p.next)
	doc, err := p.fetch(ctx, url)
	if err != nil {
		return Document{}, err
	}
	p.next = doc.NextSequence
	return doc, nil
}

func (p *Poller) fetch(ctx context.Context, url string) (Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Document{}, err
	}
	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return Document{}, err
	}
	defer resp.Body.Close()

	doc, err := p.Ingestor.Parse(resp.Body)
	if err != nil {
		return Document{}, err
	}
	if len(doc.Errors) > 0 {
		return doc, fmt.Errorf("upstream: peer returned %d error(s): %s", len(doc.Errors), doc.Errors[0].Message)
	}
	return doc, nil
}
