// Package adapter drives the SHDR TCP connection state machine of C9:
// connect/reconnect, heartbeat, line framing, and protocol commands.
package adapter

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// State is a position in the adapter connection state machine.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateReading
	StateReconnecting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateReading:
		return "Reading"
	case StateReconnecting:
		return "Reconnecting"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// PipelineFeeder is the per-line collaborator an Adapter drives data into —
// satisfied by *pipeline.AdapterPipeline.
type PipelineFeeder interface {
	ProcessLine(line string) error
}

// Dialer opens the adapter's transport connection; tests substitute a
// net.Pipe-backed dialer.
type Dialer func(ctx context.Context) (net.Conn, error)

// Options configures reconnect/heartbeat behavior and the unknown-command
// callback.
type Options struct {
	ReconnectInterval time.Duration // default 10s
	LegacyTimeout     time.Duration // default 60s
	Device            string
	OnUnknownCommand  func(key, value string)
	Log               zerolog.Logger
}

// Adapter owns one SHDR connection's lifecycle.
type Adapter struct {
	host     string
	port     int
	identity string
	topics   []string
	pipeline PipelineFeeder
	dial     Dialer
	opts     Options

	mu                 sync.RWMutex
	state              State
	conversionRequired bool
	relativeTime       bool
	realTime           bool
	device             string
	shdrVersion        string

	lastActivity atomic.Int64 // unix nanos
	sawPong      atomic.Bool

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New builds an Adapter for host:port, identified by the given source
// topics (used only to derive Identity).
func New(host string, port int, topics []string, dial Dialer, pipeline PipelineFeeder, opts Options) *Adapter {
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = 10 * time.Second
	}
	if opts.LegacyTimeout <= 0 {
		opts.LegacyTimeout = 60 * time.Second
	}
	return &Adapter{
		host:     host,
		port:     port,
		identity: Identity(host, port, topics),
		topics:   topics,
		pipeline: pipeline,
		dial:     dial,
		opts:     opts,
		device:   opts.Device,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// DialTCP builds a Dialer that opens a plain TCP connection to host:port.
func DialTCP(host string, port int) Dialer {
	addr := fmt.Sprintf("%s:%d", host, port)
	return func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", addr)
	}
}

// Identity returns the adapter's stable identity.
func (a *Adapter) Identity() string { return a.identity }

// State returns the current connection state.
func (a *Adapter) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

func (a *Adapter) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// Start drives the connection state machine until ctx is canceled or Stop
// is called.
func (a *Adapter) Start(ctx context.Context) {
	go a.run(ctx)
}

// Stop transitions to Stopped and waits for the run loop to exit.
func (a *Adapter) Stop() {
	a.stopOnce.Do(func() { close(a.stopCh) })
	<-a.doneCh
}

func (a *Adapter) run(ctx context.Context) {
	defer close(a.doneCh)
	defer a.setState(StateStopped)

	a.setState(StateConnecting)
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stopCh:
			return
		default:
		}

		if err := a.connectAndRead(ctx); err != nil {
			a.opts.Log.Warn().Err(err).Str("identity", a.identity).Msg("adapter connection ended")
		}

		a.setState(StateReconnecting)
		select {
		case <-ctx.Done():
			return
		case <-a.stopCh:
			return
		case <-time.After(a.opts.ReconnectInterval):
		}
		a.setState(StateConnecting)
	}
}

func (a *Adapter) connectAndRead(ctx context.Context) error {
	conn, err := a.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	a.setState(StateConnected)
	a.touchActivity()
	a.sawPong.Store(false)
	if _, err := conn.Write([]byte(pingLine)); err != nil {
		return err
	}

	readDone := make(chan error, 1)
	go func() { readDone <- a.readLoop(conn) }()

	watchdog := time.NewTicker(a.opts.LegacyTimeout / 4)
	defer watchdog.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close()
			<-readDone
			return ctx.Err()
		case <-a.stopCh:
			conn.Close()
			<-readDone
			return nil
		case err := <-readDone:
			return err
		case <-watchdog.C:
			if !a.sawPong.Load() {
				continue // legacy mode: peer never PONGed, treat byte arrival as alive
			}
			last := time.Unix(0, a.lastActivity.Load())
			if time.Since(last) > a.opts.LegacyTimeout {
				conn.Close()
				<-readDone
				return fmt.Errorf("adapter %s: heartbeat timeout", a.identity)
			}
		}
	}
}

func (a *Adapter) readLoop(conn net.Conn) error {
	a.setState(StateReading)
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		a.touchActivity()
		line := scanner.Text()

		if isPong(line) {
			a.sawPong.Store(true)
			continue
		}
		if cmd, ok := parseProtocolCommand(line); ok {
			a.applyProtocolCommand(cmd)
			continue
		}
		if err := a.pipeline.ProcessLine(line); err != nil {
			a.opts.Log.Error().Err(err).Str("identity", a.identity).Msg("pipeline rejected line")
		}
	}
	return scanner.Err()
}

func (a *Adapter) touchActivity() {
	a.lastActivity.Store(time.Now().UnixNano())
}

// applyProtocolCommand updates runtime options the core recognizes;
// anything else is forwarded to OnUnknownCommand verbatim.
func (a *Adapter) applyProtocolCommand(cmd protocolCommand) {
	a.mu.Lock()
	switch cmd.Key {
	case "conversionrequired":
		a.conversionRequired = isTrue(cmd.Value)
	case "relativetime":
		a.relativeTime = isTrue(cmd.Value)
	case "realtime":
		a.realTime = isTrue(cmd.Value)
	case "device":
		a.device = cmd.Value
	case "shdrversion":
		a.shdrVersion = cmd.Value
	default:
		a.mu.Unlock()
		if a.opts.OnUnknownCommand != nil {
			a.opts.OnUnknownCommand(cmd.Key, cmd.Value)
		}
		return
	}
	a.mu.Unlock()
}

// Device returns the device this adapter's data is currently assigned to,
// possibly reassigned at runtime by a "* device:" command.
func (a *Adapter) Device() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.device
}
