// Package printer renders Probe/Current/Sample/Asset documents as XML or
// JSON. It is a minimal stand-in for the full MTConnect schema formatter —
// enough structure to serve REST and MQTT documents, not a validating
// renderer of the complete device-model hierarchy.
package printer

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/mtconnect/agent-core/internal/model"
)

// Header carries the document-level attributes every MTConnect response
// shares.
type Header struct {
	InstanceID    uint64
	Version       string
	Sender        string
	BufferSize    int
	FirstSequence uint64
	NextSequence  uint64
	LastSequence  uint64
	Creation      time.Time
}

// Lookup resolves a data item's descriptive metadata for rendering.
type Lookup func(model.DataItemID) (model.DataItem, bool)

// Format selects the wire representation.
type Format int

const (
	FormatXML Format = iota
	FormatJSON
)

// ParseFormat maps an Accept header value to a Format, defaulting to XML.
func ParseFormat(accept string) (Format, error) {
	switch {
	case accept == "", strings.Contains(accept, "*/*"), strings.Contains(accept, "text/xml"), strings.Contains(accept, "application/xml"):
		return FormatXML, nil
	case strings.Contains(accept, "application/json"):
		return FormatJSON, nil
	default:
		return FormatXML, fmt.Errorf("unsupported accept type: %s", accept)
	}
}

// ContentType returns the MIME type a Format is served as.
func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/xml"
}

type jsonObservation struct {
	DataItemID string `json:"dataItemId"`
	Name       string `json:"name,omitempty"`
	Category   string `json:"category,omitempty"`
	Sequence   uint64 `json:"sequence"`
	Timestamp  string `json:"timestamp"`
	Value      string `json:"value"`
}

type jsonAsset struct {
	ID         string `json:"assetId"`
	Type       string `json:"type"`
	DeviceUUID string `json:"deviceUuid,omitempty"`
	Timestamp  string `json:"timestamp"`
	Removed    bool   `json:"removed"`
	Body       any    `json:"body,omitempty"`
}

type streamsEnvelope struct {
	Header       Header            `json:"header"`
	Observations []jsonObservation `json:"observations"`
}

type assetsEnvelope struct {
	Header Header      `json:"header"`
	Assets []jsonAsset `json:"assets"`
}

type errorsEnvelope struct {
	Header Header   `json:"header"`
	Errors []XMLErr `json:"errors"`
}

// XMLErr is one `{code, message}` pair of an error document.
type XMLErr struct {
	Code    string
	Message string
}

// RenderStreams writes a Current/Sample-shaped document: one entry per
// observation, grouped loosely by category.
func RenderStreams(w io.Writer, format Format, header Header, deviceName string, observations []model.Observation, lookup Lookup) error {
	entries := make([]jsonObservation, 0, len(observations))
	for _, o := range observations {
		entries = append(entries, toJSONObservation(o, lookup))
	}

	if format == FormatJSON {
		return json.NewEncoder(w).Encode(streamsEnvelope{Header: header, Observations: entries})
	}
	return renderStreamsXML(w, header, deviceName, observations, lookup)
}

func toJSONObservation(o model.Observation, lookup Lookup) jsonObservation {
	name, category := "", ""
	if lookup != nil {
		if item, ok := lookup(o.DataItem); ok {
			name = item.Name
			category = string(item.Category)
		}
	}
	return jsonObservation{
		DataItemID: string(o.DataItem),
		Name:       name,
		Category:   category,
		Sequence:   o.Sequence,
		Timestamp:  o.Timestamp.UTC().Format(time.RFC3339Nano),
		Value:      renderValue(o.Value),
	}
}

func renderStreamsXML(w io.Writer, header Header, deviceName string, observations []model.Observation, lookup Lookup) error {
	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString("<MTConnectStreams>\n")
	writeHeaderXML(&b, header)
	fmt.Fprintf(&b, "  <Streams>\n    <DeviceStream name=%q>\n      <ComponentStream>\n", xmlEscape(deviceName))

	bySection := map[model.Category][]model.Observation{}
	for _, o := range observations {
		cat := model.CategoryEvent
		if lookup != nil {
			if item, ok := lookup(o.DataItem); ok {
				cat = item.Category
			}
		}
		bySection[cat] = append(bySection[cat], o)
	}

	writeSectionXML(&b, "Samples", bySection[model.CategorySample], lookup)
	writeSectionXML(&b, "Events", bySection[model.CategoryEvent], lookup)
	writeSectionXML(&b, "Condition", bySection[model.CategoryCondition], lookup)

	b.WriteString("      </ComponentStream>\n    </DeviceStream>\n  </Streams>\n</MTConnectStreams>\n")
	_, err := w.Write([]byte(b.String()))
	return err
}

func writeSectionXML(b *strings.Builder, section string, obs []model.Observation, lookup Lookup) {
	if len(obs) == 0 {
		return
	}
	fmt.Fprintf(b, "        <%s>\n", section)
	for _, o := range obs {
		writeObservationXML(b, o, lookup)
	}
	fmt.Fprintf(b, "        </%s>\n", section)
}

func writeObservationXML(b *strings.Builder, o model.Observation, lookup Lookup) {
	tag := "Value"
	if lookup != nil {
		if item, ok := lookup(o.DataItem); ok && item.Type != "" {
			tag = item.Type
		}
	}

	if cond, ok := o.Value.(model.Condition); ok {
		tag = string(cond.Level)
		fmt.Fprintf(b, "          <%s dataItemId=%q sequence=\"%d\" timestamp=%q", tag,
			xmlEscape(string(o.DataItem)), o.Sequence, o.Timestamp.UTC().Format(time.RFC3339Nano))
		if cond.NativeCode != "" {
			fmt.Fprintf(b, " nativeCode=%q", xmlEscape(cond.NativeCode))
		}
		if cond.Qualifier != "" {
			fmt.Fprintf(b, " qualifier=%q", xmlEscape(cond.Qualifier))
		}
		fmt.Fprintf(b, ">%s</%s>\n", xmlEscape(cond.Message), tag)
		return
	}

	fmt.Fprintf(b, "          <%s dataItemId=%q sequence=\"%d\" timestamp=%q>%s</%s>\n",
		tag, xmlEscape(string(o.DataItem)), o.Sequence, o.Timestamp.UTC().Format(time.RFC3339Nano),
		xmlEscape(renderValue(o.Value)), tag)
}

func renderValue(v model.ObservedValue) string {
	switch val := v.(type) {
	case model.Unavailable:
		return "UNAVAILABLE"
	case model.Scalar:
		if val.IsString {
			return val.String
		}
		return strconv.FormatFloat(val.Number, 'g', -1, 64)
	case model.Vector:
		parts := make([]string, len(val.Components))
		for i, c := range val.Components {
			parts[i] = strconv.FormatFloat(c, 'g', -1, 64)
		}
		return strings.Join(parts, " ")
	case model.DataSet:
		var parts []string
		for k, e := range val.ActiveKeys() {
			parts = append(parts, fmt.Sprintf("%s=%s", k, entryText(e)))
		}
		return strings.Join(parts, " ")
	case model.Table:
		var rows []string
		for key, ds := range val.Rows {
			var cells []string
			for k, e := range ds.ActiveKeys() {
				cells = append(cells, fmt.Sprintf("%s=%s", k, entryText(e)))
			}
			rows = append(rows, fmt.Sprintf("%s{%s}", key, strings.Join(cells, " ")))
		}
		return strings.Join(rows, " ")
	case model.TimeSeries:
		parts := make([]string, len(val.Samples))
		for i, s := range val.Samples {
			parts[i] = strconv.FormatFloat(s, 'g', -1, 64)
		}
		return strings.Join(parts, " ")
	case model.Condition:
		return val.Message
	default:
		return ""
	}
}

// RenderAssets writes an Asset document for the given assets.
func RenderAssets(w io.Writer, format Format, header Header, assets []model.Asset) error {
	entries := make([]jsonAsset, 0, len(assets))
	for _, a := range assets {
		entries = append(entries, jsonAsset{
			ID: a.ID, Type: a.Type, DeviceUUID: a.DeviceUUID,
			Timestamp: a.Timestamp.UTC().Format(time.RFC3339Nano),
			Removed:   a.Removed, Body: a.Body,
		})
	}
	if format == FormatJSON {
		return json.NewEncoder(w).Encode(assetsEnvelope{Header: header, Assets: entries})
	}

	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString("<MTConnectAssets>\n")
	writeHeaderXML(&b, header)
	b.WriteString("  <Assets>\n")
	for _, a := range assets {
		fmt.Fprintf(&b, "    <Asset assetId=%q type=%q deviceUuid=%q timestamp=%q removed=%q>%v</Asset>\n",
			xmlEscape(a.ID), xmlEscape(a.Type), xmlEscape(a.DeviceUUID),
			a.Timestamp.UTC().Format(time.RFC3339Nano), strconv.FormatBool(a.Removed), a.Body)
	}
	b.WriteString("  </Assets>\n</MTConnectAssets>\n")
	_, err := w.Write([]byte(b.String()))
	return err
}

// RenderError writes an MTConnectError document — always the correct
// response body for a ParameterError/OutOfRange/NotFound failure
// regardless of the caller's requested Accept format, per §6.2.
func RenderError(w io.Writer, format Format, header Header, code, message string) error {
	if format == FormatJSON {
		return json.NewEncoder(w).Encode(errorsEnvelope{Header: header, Errors: []XMLErr{{Code: code, Message: message}}})
	}
	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString("<MTConnectError>\n")
	writeHeaderXML(&b, header)
	fmt.Fprintf(&b, "  <Errors>\n    <Error errorCode=%q>%s</Error>\n  </Errors>\n</MTConnectError>\n",
		xmlEscape(code), xmlEscape(message))
	_, err := w.Write([]byte(b.String()))
	return err
}

func writeHeaderXML(b *strings.Builder, h Header) {
	fmt.Fprintf(b, "  <Header instanceId=\"%d\" version=%q sender=%q bufferSize=\"%d\" firstSequence=\"%d\" lastSequence=\"%d\" nextSequence=\"%d\" creationTime=%q/>\n",
		h.InstanceID, xmlEscape(h.Version), xmlEscape(h.Sender), h.BufferSize,
		h.FirstSequence, h.LastSequence, h.NextSequence, h.Creation.UTC().Format(time.RFC3339Nano))
}

func entryText(e model.DataSetEntry) string {
	if e.IsText {
		return e.Text
	}
	return strconv.FormatFloat(e.Value, 'g', -1, 64)
}

func xmlEscape(s string) string {
	var b strings.Builder
	xml.EscapeText(&b, []byte(s))
	return b.String()
}
