// Package mqttadapter sources SHDR-equivalent frames over an MQTT topic
// instead of a raw TCP connection, adapted from the teacher's paho client
// wrapper for the C9-alt adapter variant described in original_source's
// src/adapter/mqtt/mqtt_adapter.hpp.
package mqttadapter

import (
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/mtconnect/agent-core/internal/adapter"
)

// PipelineFeeder is the per-line collaborator a message feeds into —
// satisfied by *pipeline.AdapterPipeline.
type PipelineFeeder interface {
	ProcessLine(line string) error
}

// Options configures the broker connection.
type Options struct {
	BrokerURL string
	ClientID  string
	Topics    string // comma-separated
	Username  string
	Password  string
	Log       zerolog.Logger
}

// Adapter is an SHDR adapter whose frames arrive as MQTT message payloads
// rather than lines read off a socket: each payload is treated as one
// adapter line and handed to the pipeline unchanged.
type Adapter struct {
	conn      mqtt.Client
	topics    []string
	identity  string
	connected atomic.Bool
	log       zerolog.Logger
	pipeline  PipelineFeeder
}

// Connect dials the broker, subscribes to opts.Topics, and wires each
// message into pipeline.ProcessLine.
func Connect(opts Options, pipeline PipelineFeeder) (*Adapter, error) {
	topics := parseTopics(opts.Topics)
	a := &Adapter{
		topics:   topics,
		identity: adapter.Identity(opts.BrokerURL, 0, topics),
		log:      opts.Log,
		pipeline: pipeline,
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetOnConnectHandler(a.onConnect).
		SetConnectionLostHandler(a.onConnectionLost).
		SetDefaultPublishHandler(a.onMessage)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	a.conn = mqtt.NewClient(clientOpts)
	token := a.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}
	return a, nil
}

// Identity returns the adapter's stable identity, derived from the broker
// URL and subscribed topics per §4.8.
func (a *Adapter) Identity() string { return a.identity }

// IsConnected reports the current broker connection state.
func (a *Adapter) IsConnected() bool { return a.connected.Load() }

// Close disconnects from the broker.
func (a *Adapter) Close() {
	a.log.Info().Str("identity", a.identity).Msg("disconnecting mqtt adapter")
	a.conn.Disconnect(1000)
}

func (a *Adapter) onConnect(client mqtt.Client) {
	a.connected.Store(true)
	a.log.Info().Strs("topics", a.topics).Msg("mqtt adapter connected, subscribing")

	filters := make(map[string]byte, len(a.topics))
	for _, t := range a.topics {
		filters[t] = 0
	}
	token := client.SubscribeMultiple(filters, nil)
	token.Wait()
	if err := token.Error(); err != nil {
		a.log.Error().Err(err).Msg("mqtt adapter subscribe failed")
	}
}

func (a *Adapter) onConnectionLost(_ mqtt.Client, err error) {
	a.connected.Store(false)
	a.log.Warn().Err(err).Msg("mqtt adapter connection lost, will auto-reconnect")
}

func (a *Adapter) onMessage(_ mqtt.Client, msg mqtt.Message) {
	line := string(msg.Payload())
	if err := a.pipeline.ProcessLine(line); err != nil {
		a.log.Error().Err(err).Str("topic", msg.Topic()).Msg("pipeline rejected mqtt-sourced line")
	}
}

func parseTopics(raw string) []string {
	var topics []string
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			topics = append(topics, t)
		}
	}
	if len(topics) == 0 {
		return []string{"#"}
	}
	return topics
}
