package events

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hbp4/hbp4/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error"})
}

func readEvent(t *testing.T, r *bufio.Reader) Event {
	t.Helper()
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		t.Fatalf("read length prefix: %v", err)
	}
	body := make([]byte, length)
	if _, err := readFull(r, body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	return ev
}

type stubProvider struct {
	events []Event
}

func (p *stubProvider) Snapshot() []Event { return p.events }

func TestEmitter_EmitAndReceive(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "events.sock")
	e, err := New(Config{Enabled: true, Transport: "unix", UnixSocket: sock}, nil, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	conn := dialUnix(t, sock)
	defer conn.Close()
	// The emitter attaches the observer asynchronously and drops events
	// while none is attached; give the accept loop time to attach it.
	time.Sleep(20 * time.Millisecond)

	e.Emit("repeater_connected", map[string]any{"id": uint32(312000)})

	reader := bufio.NewReader(conn)
	ev := readEvent(t, reader)
	if ev.Type != "repeater_connected" {
		t.Fatalf("expected repeater_connected, got %q", ev.Type)
	}
	if ev.Data["id"] != float64(312000) {
		t.Fatalf("expected id 312000, got %v", ev.Data["id"])
	}
}

func TestEmitter_ResyncOnConnect(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "events.sock")
	provider := &stubProvider{events: []Event{
		{Type: "repeater_connected", Data: map[string]any{"id": float64(1)}},
		{Type: "repeater_connected", Data: map[string]any{"id": float64(2)}},
	}}
	e, err := New(Config{Transport: "unix", UnixSocket: sock}, provider, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	conn := dialUnix(t, sock)
	defer conn.Close()

	reader := bufio.NewReader(conn)
	first := readEvent(t, reader)
	second := readEvent(t, reader)
	if first.Type != "repeater_connected" || second.Type != "repeater_connected" {
		t.Fatalf("expected resync snapshot replayed, got %v %v", first, second)
	}
}

func TestEmitter_SingleObserverReplacesPrevious(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "events.sock")
	e, err := New(Config{Transport: "unix", UnixSocket: sock}, nil, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	first := dialUnix(t, sock)
	time.Sleep(20 * time.Millisecond)
	second := dialUnix(t, sock)
	defer second.Close()
	time.Sleep(20 * time.Millisecond)

	buf := make([]byte, 1)
	first.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := first.Read(buf); err == nil {
		t.Fatalf("expected previous observer connection to be closed")
	}
}

func dialUnix(t *testing.T, sock string) net.Conn {
	t.Helper()
	for i := 0; i < 50; i++ {
		if _, err := os.Stat(sock); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}
