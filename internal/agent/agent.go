// Package agent wires the Agent's components (C1-C12) into one running
// process: buffers, the fixed adapter pipeline, zero or more adapter
// transports, the REST server, and the optional embedded MQTT broker — the
// analogue of the teacher's top-level Pipeline wiring in main.go.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mtconnect/agent-core/internal/adapter"
	"github.com/mtconnect/agent-core/internal/api"
	"github.com/mtconnect/agent-core/internal/assetbuffer"
	"github.com/mtconnect/agent-core/internal/buffer"
	"github.com/mtconnect/agent-core/internal/config"
	"github.com/mtconnect/agent-core/internal/metrics"
	"github.com/mtconnect/agent-core/internal/model"
	"github.com/mtconnect/agent-core/internal/mqttadapter"
	"github.com/mtconnect/agent-core/internal/mqttserver"
	"github.com/mtconnect/agent-core/internal/pipeline"
)

// Agent owns every long-lived component of one running instance.
type Agent struct {
	cfg *config.Config
	log zerolog.Logger

	buffer   *buffer.CircularBuffer
	assets   *assetbuffer.AssetBuffer
	registry *pipeline.StaticRegistry

	tcpAdapter   *adapter.Adapter
	mqttAdapter  *mqttadapter.Adapter
	restServer   *api.Server
	brokerServer *mqttserver.Server
	putPipeline  *pipeline.AdapterPipeline

	instanceID uint64
	cancelPub  context.CancelFunc
}

// New builds an Agent from cfg and an externally supplied data-item
// registry (the real device-model-backed registry is not part of this
// package per C3 — callers register their own data items before Start).
func New(cfg *config.Config, registry *pipeline.StaticRegistry, log zerolog.Logger) *Agent {
	return &Agent{
		cfg:        cfg,
		log:        log,
		buffer:     buffer.New(cfg.BufferSize, cfg.CheckpointInterval),
		assets:     assetbuffer.New(cfg.MaxAssets),
		registry:   registry,
		instanceID: uint64(time.Now().Unix()),
	}
}

// sink adapts Agent's buffer/assets into pipeline.Sink, publishing each
// delivered observation to the embedded broker (if any) and bumping the
// relevant metric.
type sink struct {
	a *Agent
}

func (s *sink) DeliverObservation(obs model.Observation) error {
	seq := s.a.buffer.Add(obs)
	obs.Sequence = seq
	metrics.ObservationsAddedTotal.WithLabelValues(categoryLabel(obs)).Inc()
	if s.a.brokerServer != nil {
		s.a.brokerServer.PublishObservation(obs)
	}
	return nil
}

func (s *sink) DeliverAssetCommand(cmd model.AssetCommand) error {
	switch cmd.Action {
	case model.AssetAdd:
		s.a.assets.Add(cmd.Asset)
	case model.AssetRemove:
		s.a.assets.Remove(cmd.Asset.ID)
		metrics.AssetEvictionsTotal.Inc()
	}
	return nil
}

func categoryLabel(obs model.Observation) string {
	if _, ok := obs.Value.(model.Condition); ok {
		return "CONDITION"
	}
	return "SAMPLE_EVENT"
}

// ProcessLine implements api.LineIngestor, letting PutObservation requests
// route through the exact same pipeline an adapter connection would use.
func (a *Agent) ProcessLine(line string) error {
	if a.putPipeline == nil {
		return fmt.Errorf("PUT observation ingestion is not enabled")
	}
	return a.putPipeline.ProcessLine(line)
}

// Start builds the fixed adapter pipeline, the configured transport(s), the
// REST server, and (if enabled) the embedded MQTT broker, then starts them
// all. It returns once every component has been launched; long-running work
// continues on background goroutines until Stop is called.
func (a *Agent) Start(ctx context.Context) error {
	relativeTime := false
	feeder := pipeline.NewAdapterPipeline(a.registry, &sink{a: a}, relativeTime)
	a.putPipeline = feeder

	if a.cfg.AdapterHost != "" {
		a.tcpAdapter = adapter.New(
			a.cfg.AdapterHost, a.cfg.AdapterPort, nil,
			adapter.DialTCP(a.cfg.AdapterHost, a.cfg.AdapterPort),
			pipeline.NewAdapterPipeline(a.registry, &sink{a: a}, relativeTime),
			adapter.Options{
				ReconnectInterval: a.cfg.AdapterReconnectDelay,
				LegacyTimeout:     a.cfg.AdapterLegacyTimeout,
				Log:               a.log.With().Str("component", "adapter").Logger(),
			},
		)
		a.tcpAdapter.Start(ctx)
		metrics.AdapterConnectionsActive.WithLabelValues(a.tcpAdapter.Identity()).Set(1)
	}

	if a.cfg.MQTTAdapterBrokerURL != "" {
		mqttAdapter, err := mqttadapter.Connect(mqttadapter.Options{
			BrokerURL: a.cfg.MQTTAdapterBrokerURL,
			ClientID:  a.cfg.MQTTAdapterClientID,
			Topics:    a.cfg.MQTTAdapterTopic,
			Username:  a.cfg.MQTTAdapterUsername,
			Password:  a.cfg.MQTTAdapterPassword,
			Log:       a.log.With().Str("component", "mqttadapter").Logger(),
		}, pipeline.NewAdapterPipeline(a.registry, &sink{a: a}, relativeTime))
		if err != nil {
			return fmt.Errorf("mqtt adapter connect: %w", err)
		}
		a.mqttAdapter = mqttAdapter
	}

	var putIngestor api.LineIngestor
	if a.cfg.AllowPut {
		putIngestor = a
	}
	a.restServer = api.NewServer(api.ServerOptions{
		Config: a.cfg,
		Data: &api.DataService{
			Buffer:     a.buffer,
			Assets:     a.assets,
			Registry:   a.registry,
			Put:        putIngestor,
			DeviceName: a.cfg.DeviceName,
			InstanceID: a.instanceID,
			Version:    a.cfg.Version,
			Sender:     a.cfg.Sender,
		},
		Log: a.log.With().Str("component", "api").Logger(),
	})

	go func() {
		if err := a.restServer.Start(); err != nil {
			a.log.Error().Err(err).Msg("rest server exited")
		}
	}()

	if a.cfg.MQTTServerEnabled {
		broker, err := mqttserver.New(mqttserver.Options{
			Addr: a.cfg.MQTTServerAddr,
			QoS:  a.cfg.MQTTServerQoS,
			Topics: mqttserver.Topics{
				Probe:       a.cfg.ProbeTopic,
				Current:     a.cfg.CurrentTopic,
				Sample:      a.cfg.SampleTopic,
				Asset:       a.cfg.AssetTopic,
				Device:      a.cfg.DeviceTopic,
				Observation: a.cfg.ObservationTopic,
			},
			Buffer:     a.buffer,
			Assets:     a.assets,
			Registry:   a.registry,
			DeviceName: a.cfg.DeviceName,
			InstanceID: a.instanceID,
			Version:    a.cfg.Version,
			Sender:     a.cfg.Sender,
			Log:        a.log.With().Str("component", "mqttserver").Logger(),
		})
		if err != nil {
			return fmt.Errorf("mqtt server init: %w", err)
		}
		a.brokerServer = broker
		go func() {
			if err := a.brokerServer.Start(); err != nil {
				a.log.Error().Err(err).Msg("mqtt broker exited")
			}
		}()

		pubCtx, cancel := context.WithCancel(ctx)
		a.cancelPub = cancel
		go a.publishLoop(pubCtx)
	}

	return nil
}

func (a *Agent) publishLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.MQTTPublishPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.brokerServer.PublishOnce()
		}
	}
}

// Stop tears down every component Start launched.
func (a *Agent) Stop(ctx context.Context) error {
	if a.cancelPub != nil {
		a.cancelPub()
	}
	if a.tcpAdapter != nil {
		a.tcpAdapter.Stop()
	}
	if a.mqttAdapter != nil {
		a.mqttAdapter.Close()
	}
	if a.brokerServer != nil {
		a.brokerServer.Stop()
	}
	if a.restServer != nil {
		return a.restServer.Shutdown(ctx)
	}
	return nil
}

// Buffer exposes the circular observation buffer for tests and CLI
// diagnostics.
func (a *Agent) Buffer() *buffer.CircularBuffer { return a.buffer }

// Assets exposes the asset buffer for tests and CLI diagnostics.
func (a *Agent) Assets() *assetbuffer.AssetBuffer { return a.assets }
