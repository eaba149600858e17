// Package mqttserver embeds an MQTT broker (§6.3) that the agent uses to
// publish its own Probe/Current/Asset documents, mirroring
// original_source's mqtt_server.cpp: the Agent is both a REST server and an
// MQTT broker for the same data.
package mqttserver

import (
	"time"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/rs/zerolog"

	"github.com/mtconnect/agent-core/internal/assetbuffer"
	"github.com/mtconnect/agent-core/internal/buffer"
	"github.com/mtconnect/agent-core/internal/model"
	"github.com/mtconnect/agent-core/internal/pipeline"
	"github.com/mtconnect/agent-core/internal/printer"
)

// Topics names the six publish topics of §6.3. Each is independently
// configurable; empty disables that document's publication. Nothing is
// published to the Sample and Device topics.
type Topics struct {
	Probe       string
	Current     string
	Sample      string
	Asset       string
	Device      string
	Observation string
}

// Server embeds a mochi-mqtt broker and periodically publishes MTConnect
// documents rendered from the shared buffers.
type Server struct {
	broker     *mqtt.Server
	buffer     *buffer.CircularBuffer
	assets     *assetbuffer.AssetBuffer
	registry   *pipeline.StaticRegistry
	topics     Topics
	qos        byte
	deviceName string
	instanceID uint64
	version    string
	sender     string
	log        zerolog.Logger
}

// Options configures a new embedded broker.
type Options struct {
	Addr       string
	QoS        byte
	Topics     Topics
	Buffer     *buffer.CircularBuffer
	Assets     *assetbuffer.AssetBuffer
	Registry   *pipeline.StaticRegistry
	DeviceName string
	InstanceID uint64
	Version    string
	Sender     string
	Log        zerolog.Logger
}

// New builds and configures (but does not start) an embedded broker with a
// single TCP listener and an allow-all auth hook, matching the teacher's
// "no external auth layer in front of MQTT ingest" posture.
func New(opts Options) (*Server, error) {
	broker := mqtt.New(&mqtt.Options{InlineClient: true})
	if err := broker.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, err
	}

	listener := listeners.NewTCP(listeners.Config{ID: "mtcagent", Address: opts.Addr})
	if err := broker.AddListener(listener); err != nil {
		return nil, err
	}

	return &Server{
		broker:     broker,
		buffer:     opts.Buffer,
		assets:     opts.Assets,
		registry:   opts.Registry,
		topics:     opts.Topics,
		qos:        opts.QoS,
		deviceName: opts.DeviceName,
		instanceID: opts.InstanceID,
		version:    opts.Version,
		sender:     opts.Sender,
		log:        opts.Log,
	}, nil
}

// Start runs the broker's accept loop in the background. Serve returns once
// the listener is closed by Stop.
func (s *Server) Start() error {
	s.log.Info().Msg("mqtt broker starting")
	return s.broker.Serve()
}

// Stop closes every listener and connected client.
func (s *Server) Stop() error {
	s.log.Info().Msg("mqtt broker stopping")
	return s.broker.Close()
}

func (s *Server) header() printer.Header {
	return printer.Header{
		InstanceID:    s.instanceID,
		Version:       s.version,
		Sender:        s.sender,
		FirstSequence: s.buffer.FirstSequence(),
		NextSequence:  s.buffer.NextSequence(),
		Creation:      time.Now().UTC(),
	}
}

func (s *Server) lookup(id model.DataItemID) (model.DataItem, bool) {
	return s.registry.Lookup(string(id))
}

// PublishOnce renders and publishes the Probe, Current and Asset documents
// to their configured topics; no Sample document is published. Called on a
// timer by the agent orchestrator. Single observations go to the Observation
// topic through PublishObservation.
func (s *Server) PublishOnce() {
	if s.topics.Probe != "" {
		s.publish(s.topics.Probe, func(w *writeBuf) error {
			return printer.RenderStreams(w, printer.FormatXML, s.header(), s.deviceName, nil, s.lookup)
		})
	}
	if s.topics.Current != "" {
		observations, err := s.buffer.Current(nil, nil)
		if err == nil {
			s.publish(s.topics.Current, func(w *writeBuf) error {
				return printer.RenderStreams(w, printer.FormatXML, s.header(), s.deviceName, observations, s.lookup)
			})
		}
	}
	if s.topics.Asset != "" {
		assets := s.assets.Query(assetbuffer.QueryFilter{})
		s.publish(s.topics.Asset, func(w *writeBuf) error {
			return printer.RenderAssets(w, printer.FormatXML, s.header(), assets)
		})
	}
}

// PublishObservation pushes one freshly-added observation to the Observation
// topic, letting subscribers react without polling Current/Sample.
func (s *Server) PublishObservation(obs model.Observation) {
	if s.topics.Observation == "" {
		return
	}
	s.publish(s.topics.Observation, func(w *writeBuf) error {
		return printer.RenderStreams(w, printer.FormatXML, s.header(), s.deviceName, []model.Observation{obs}, s.lookup)
	})
}

func (s *Server) publish(topic string, render func(*writeBuf) error) {
	buf := &writeBuf{}
	if err := render(buf); err != nil {
		s.log.Error().Err(err).Str("topic", topic).Msg("failed to render mqtt document")
		return
	}
	if err := s.broker.Publish(topic, buf.Bytes(), false, s.qos); err != nil {
		s.log.Error().Err(err).Str("topic", topic).Msg("mqtt publish failed")
	}
}

// writeBuf is the minimal io.Writer printer.Render* needs; avoids pulling in
// bytes.Buffer just to satisfy the interface.
type writeBuf struct {
	data []byte
}

func (w *writeBuf) Write(p []byte) (int, error) {
	w.data = append(w.data, p...)
	return len(p), nil
}

func (w *writeBuf) Bytes() []byte { return w.data }
