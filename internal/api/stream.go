package api

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/mtconnect/agent-core/internal/buffer"
	"github.com/mtconnect/agent-core/internal/model"
	"github.com/mtconnect/agent-core/internal/observer"
	"github.com/mtconnect/agent-core/internal/printer"
)

// streamSample implements the C12 long-poll streaming algorithm (§4.11):
// sample once, then repeatedly wait for either a new observation or the
// heartbeat timeout, resampling from wherever the previous chunk left off.
// It never returns until the peer disconnects, a write fails, or the
// requested window falls out of the buffer's retention.
func (h *DataHandler) streamSample(
	w http.ResponseWriter,
	r *http.Request,
	format printer.Format,
	ids map[model.DataItemID]struct{},
	from uint64,
	to *uint64,
	count int,
	interval float64,
	heartbeat float64,
) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, r, http.StatusInternalServerError, string(ErrInternal), "streaming not supported by this connection")
		return
	}

	obs := observer.NewObserver()
	h.svc.Buffer.Signaler().Attach(obs)
	defer func() {
		h.svc.Buffer.Signaler().Detach(obs)
		obs.Close()
	}()

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	log := hlog.FromRequest(r)
	heartbeatInterval := time.Duration(heartbeat * float64(time.Second))
	minInterval := time.Duration(interval * float64(time.Second))

	next := from
	for {
		observations, endSeq, _, err := h.svc.Buffer.Sample(ids, next, to, count)
		if err != nil {
			if _, ok := err.(*buffer.OutOfRangeError); ok {
				writeChunkError(w, flusher, format, h.svc.header(), string(ErrOutOfRange), err.Error())
				return
			}
			writeChunkError(w, flusher, format, h.svc.header(), string(ErrInternal), err.Error())
			return
		}

		if !writeChunk(w, flusher, format, h.svc.header(), deviceParam(r, h.svc.DeviceName), observations, h.svc.lookup) {
			log.Info().Msg("streaming client write failed, closing")
			return
		}
		next = endSeq

		start := time.Now()
		obs.Reset()
		_, timedOut := obs.Wait(r.Context(), heartbeatInterval)
		if r.Context().Err() != nil {
			log.Info().Msg("streaming client disconnected")
			return
		}
		if timedOut {
			if !writeKeepalive(w, flusher) {
				return
			}
			continue
		}

		if remaining := minInterval - time.Since(start); remaining > 0 {
			select {
			case <-time.After(remaining):
			case <-r.Context().Done():
				return
			}
		}
	}
}

const boundary = "mtconnect-stream-boundary"

func writeChunk(
	w http.ResponseWriter,
	flusher http.Flusher,
	format printer.Format,
	header printer.Header,
	deviceName string,
	observations []model.Observation,
	lookup printer.Lookup,
) bool {
	if _, err := w.Write([]byte("--" + boundary + "\r\nContent-Type: " + format.ContentType() + "\r\n\r\n")); err != nil {
		return false
	}
	if err := printer.RenderStreams(w, format, header, deviceName, observations, lookup); err != nil {
		return false
	}
	if _, err := w.Write([]byte("\r\n")); err != nil {
		return false
	}
	flusher.Flush()
	return true
}

func writeChunkError(w http.ResponseWriter, flusher http.Flusher, format printer.Format, header printer.Header, code, message string) {
	w.Write([]byte("--" + boundary + "\r\nContent-Type: " + format.ContentType() + "\r\n\r\n"))
	printer.RenderError(w, format, header, code, message)
	w.Write([]byte("\r\n--" + boundary + "--\r\n"))
	flusher.Flush()
}

func writeKeepalive(w http.ResponseWriter, flusher http.Flusher) bool {
	if _, err := w.Write([]byte("--" + boundary + "\r\n\r\n")); err != nil {
		return false
	}
	flusher.Flush()
	return true
}
