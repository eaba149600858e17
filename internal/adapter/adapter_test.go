package adapter

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"
)

type recordingPipeline struct {
	lines chan string
}

func (p *recordingPipeline) ProcessLine(line string) error {
	p.lines <- line
	return nil
}

func pipeDialer(server net.Conn) Dialer {
	return func(ctx context.Context) (net.Conn, error) {
		return server, nil
	}
}

func TestAdapterReadsLinesAndHandshakes(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	pf := &recordingPipeline{lines: make(chan string, 4)}
	a := New("localhost", 7878, []string{"Xact"}, pipeDialer(client), pf, Options{
		LegacyTimeout: time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.Start(ctx)
	defer a.Stop()

	reader := bufio.NewReader(server)
	ping, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("reading PING: %v", err)
	}
	if ping != pingLine {
		t.Fatalf("got %q, want PING", ping)
	}

	server.Write([]byte("* PONG\n"))
	server.Write([]byte("2021-01-01T00:00:00Z|avail|AVAILABLE\n"))

	select {
	case line := <-pf.lines:
		if line != "2021-01-01T00:00:00Z|avail|AVAILABLE" {
			t.Errorf("line = %q", line)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for line to reach pipeline")
	}
}

func TestAdapterAppliesProtocolCommands(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	pf := &recordingPipeline{lines: make(chan string, 4)}
	a := New("localhost", 7878, nil, pipeDialer(client), pf, Options{LegacyTimeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.Start(ctx)
	defer a.Stop()

	reader := bufio.NewReader(server)
	reader.ReadString('\n') // consume PING

	server.Write([]byte("* device: Lathe001\n"))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if a.Device() == "Lathe001" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Device() = %q, want Lathe001", a.Device())
}

func TestIdentityDerivedFromHostPort(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	pf := &recordingPipeline{lines: make(chan string, 1)}
	a := New("shopfloor", 7878, []string{"Xact"}, pipeDialer(client), pf, Options{})

	want := Identity("shopfloor", 7878, []string{"Xact"})
	if a.Identity() != want {
		t.Errorf("Identity() = %q, want %q", a.Identity(), want)
	}
}
