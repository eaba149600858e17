package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mtconnect/agent-core/internal/assetbuffer"
	"github.com/mtconnect/agent-core/internal/buffer"
	"github.com/mtconnect/agent-core/internal/model"
	"github.com/mtconnect/agent-core/internal/printer"
)

// DataHandler implements Probe/Current/Sample/Asset/PutObservation (C11).
type DataHandler struct {
	svc *DataService
}

// NewDataHandler builds a DataHandler over svc.
func NewDataHandler(svc *DataService) *DataHandler { return &DataHandler{svc: svc} }

// Routes registers every C11 endpoint on r.
func (h *DataHandler) Routes(r chi.Router) {
	r.Get("/probe", h.Probe)
	r.Get("/{device}/probe", h.Probe)
	r.Get("/current", h.Current)
	r.Get("/{device}/current", h.Current)
	r.Get("/sample", h.Sample)
	r.Get("/{device}/sample", h.Sample)
	r.Get("/assets", h.AssetList)
	r.Get("/asset/{ids}", h.AssetGet)
	r.Put("/asset/{id}", h.AssetPut)
	r.Delete("/asset/{id}", h.AssetDelete)
	r.Put("/{device}", h.PutObservation)
}

func (h *DataHandler) format(r *http.Request) (printer.Format, error) {
	return printer.ParseFormat(r.Header.Get("Accept"))
}

func (h *DataHandler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	format, _ := h.format(r)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Cache-Control", "private, max-age=0")
	w.WriteHeader(status)
	printer.RenderError(w, format, h.svc.header(), code, message)
}

// Probe renders a Streams-shaped document with no observations: it carries
// the header and the device name only. Neither the device/component topology
// nor the registered data items are listed.
func (h *DataHandler) Probe(w http.ResponseWriter, r *http.Request) {
	format, err := h.format(r)
	if err != nil {
		h.writeError(w, r, http.StatusNotAcceptable, string(ErrUnsupportedAccept), err.Error())
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Cache-Control", "private, max-age=0")
	w.WriteHeader(http.StatusOK)
	printer.RenderStreams(w, format, h.svc.header(), deviceParam(r, h.svc.DeviceName), nil, h.svc.lookup)
}

// Current returns the latest observation per filtered data item, optionally
// as of a historical sequence.
func (h *DataHandler) Current(w http.ResponseWriter, r *http.Request) {
	format, err := h.format(r)
	if err != nil {
		h.writeError(w, r, http.StatusNotAcceptable, string(ErrUnsupportedAccept), err.Error())
		return
	}

	specs := []ParamSpec{
		{Name: "at", Type: ParamUnsignedInteger},
		{Name: "path", Type: ParamString, Default: ""},
	}
	values, err := ParseParams(r, specs)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, string(ErrInvalidParameter), err.Error())
		return
	}

	var at *uint64
	if v, ok := values["at"].(uint64); ok {
		at = &v
	}
	ids := h.svc.resolvePath(values["path"].(string))

	observations, err := h.svc.Buffer.Current(ids, at)
	if err != nil {
		h.handleBufferError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Cache-Control", "private, max-age=0")
	w.WriteHeader(http.StatusOK)
	printer.RenderStreams(w, format, h.svc.header(), deviceParam(r, h.svc.DeviceName), observations, h.svc.lookup)
}

// Sample returns up to count observations starting at from, or engages
// streaming when interval is present (delegated to stream.go).
func (h *DataHandler) Sample(w http.ResponseWriter, r *http.Request) {
	format, err := h.format(r)
	if err != nil {
		h.writeError(w, r, http.StatusNotAcceptable, string(ErrUnsupportedAccept), err.Error())
		return
	}

	specs := []ParamSpec{
		{Name: "from", Type: ParamUnsignedInteger},
		{Name: "to", Type: ParamUnsignedInteger},
		{Name: "count", Type: ParamInteger, Default: int64(100)},
		{Name: "path", Type: ParamString, Default: ""},
		{Name: "interval", Type: ParamDouble},
		{Name: "heartbeat", Type: ParamDouble, Default: 10.0},
	}
	values, err := ParseParams(r, specs)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, string(ErrInvalidParameter), err.Error())
		return
	}

	ids := h.svc.resolvePath(values["path"].(string))
	from, hasFrom := values["from"].(uint64)
	if !hasFrom {
		from = h.svc.Buffer.FirstSequence()
	}
	var to *uint64
	if v, ok := values["to"].(uint64); ok {
		to = &v
	}
	count := int(values["count"].(int64))

	if interval, ok := values["interval"].(float64); ok {
		heartbeat := values["heartbeat"].(float64)
		h.streamSample(w, r, format, ids, from, to, count, interval, heartbeat)
		return
	}

	observations, _, _, err := h.svc.Buffer.Sample(ids, from, to, count)
	if err != nil {
		h.handleBufferError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Cache-Control", "private, max-age=0")
	w.WriteHeader(http.StatusOK)
	printer.RenderStreams(w, format, h.svc.header(), deviceParam(r, h.svc.DeviceName), observations, h.svc.lookup)
}

func (h *DataHandler) handleBufferError(w http.ResponseWriter, r *http.Request, err error) {
	if _, ok := err.(*buffer.OutOfRangeError); ok {
		h.writeError(w, r, http.StatusBadRequest, string(ErrOutOfRange), err.Error())
		return
	}
	h.writeError(w, r, http.StatusInternalServerError, string(ErrInternal), err.Error())
}

func deviceParam(r *http.Request, fallback string) string {
	if d := chi.URLParam(r, "device"); d != "" {
		return d
	}
	return fallback
}

// AssetList returns filtered assets (GET /assets).
func (h *DataHandler) AssetList(w http.ResponseWriter, r *http.Request) {
	format, err := h.format(r)
	if err != nil {
		h.writeError(w, r, http.StatusNotAcceptable, string(ErrUnsupportedAccept), err.Error())
		return
	}

	specs := []ParamSpec{
		{Name: "type", Type: ParamString, Default: ""},
		{Name: "device", Type: ParamString, Default: ""},
		{Name: "count", Type: ParamInteger, Default: int64(0)},
		{Name: "removed", Type: ParamString, Default: "false"},
	}
	values, err := ParseParams(r, specs)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, string(ErrInvalidParameter), err.Error())
		return
	}

	removed, _ := strconv.ParseBool(values["removed"].(string))
	assets := h.svc.Assets.Query(assetbuffer.QueryFilter{
		Type:           values["type"].(string),
		DeviceUUID:     values["device"].(string),
		Count:          int(values["count"].(int64)),
		IncludeRemoved: removed,
	})

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Cache-Control", "private, max-age=0")
	w.WriteHeader(http.StatusOK)
	printer.RenderAssets(w, format, h.svc.header(), assets)
}

// AssetGet returns one or more named assets (GET /asset/{ids}).
func (h *DataHandler) AssetGet(w http.ResponseWriter, r *http.Request) {
	format, err := h.format(r)
	if err != nil {
		h.writeError(w, r, http.StatusNotAcceptable, string(ErrUnsupportedAccept), err.Error())
		return
	}

	raw := chi.URLParam(r, "ids")
	ids := strings.Split(raw, ";")
	assets := h.svc.Assets.Query(assetbuffer.QueryFilter{IDs: ids, IncludeRemoved: true})
	if len(assets) == 0 {
		h.writeError(w, r, http.StatusNotFound, string(ErrNotFound), "no matching asset")
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Cache-Control", "private, max-age=0")
	w.WriteHeader(http.StatusOK)
	printer.RenderAssets(w, format, h.svc.header(), assets)
}

// AssetPut ingests or replaces an asset (PUT /asset/{id}).
func (h *DataHandler) AssetPut(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	assetType, _ := QueryString(r, "type")
	deviceUUID, _ := QueryString(r, "device")

	body, err := readAssetBody(r)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, string(ErrInvalidParameter), err.Error())
		return
	}

	h.svc.Assets.Add(newAsset(id, assetType, deviceUUID, body))
	w.WriteHeader(http.StatusNoContent)
}

// AssetDelete tombstones an asset (DELETE /asset/{id}).
func (h *DataHandler) AssetDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.svc.Assets.Remove(id) {
		h.writeError(w, r, http.StatusNotFound, string(ErrNotFound), "no matching asset")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PutObservation routes each query parameter through the ingestion pipeline
// as if it had arrived from an adapter, per §4.10.
func (h *DataHandler) PutObservation(w http.ResponseWriter, r *http.Request) {
	if h.svc.Put == nil {
		h.writeError(w, r, http.StatusForbidden, string(ErrForbidden), "PUT observation ingestion is not enabled")
		return
	}

	query := r.URL.Query()
	ts := query.Get("time")
	if ts == "" {
		ts = time.Now().UTC().Format(time.RFC3339Nano)
	}

	var b strings.Builder
	b.WriteString(ts)
	for name, values := range query {
		if name == "time" {
			continue
		}
		for _, v := range values {
			b.WriteString("|")
			b.WriteString(name)
			b.WriteString("|")
			b.WriteString(v)
		}
	}

	if err := h.svc.Put.ProcessLine(b.String()); err != nil {
		h.writeError(w, r, http.StatusBadRequest, string(ErrInvalidParameter), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// readAssetBody reads the raw asset document from the request body. MTConnect
// assets carry an opaque, type-specific XML fragment; the agent stores it
// unparsed and returns it verbatim on retrieval.
func readAssetBody(r *http.Request) (string, error) {
	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, maxAssetBodyBytes))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

const maxAssetBodyBytes = 1 << 20

func newAsset(id, assetType, deviceUUID, body string) model.Asset {
	return model.Asset{
		ID:         id,
		Type:       assetType,
		DeviceUUID: deviceUUID,
		Timestamp:  time.Now().UTC(),
		Body:       body,
	}
}
