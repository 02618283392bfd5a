// Package events implements the event egress fabric (C8): a single-
// observer, length-prefixed JSON stream over a unix-domain socket or TCP,
// used by external dashboards/loggers to watch repeater and stream
// lifecycle activity without coupling them to the relay's internals.
package events

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/hbp4/hbp4/pkg/logger"
)

// Event is one length-framed message: a 4-byte big-endian length prefix
// followed by this struct marshaled as JSON.
type Event struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// StateProvider supplies the current full state as a batch of events,
// replayed to an observer on connect or on an explicit sync_request —
// this is how a dashboard that attaches mid-session catches up without
// the emitter having to remember history itself.
type StateProvider interface {
	Snapshot() []Event
}

// Config selects the egress transport, per the event_emitter config
// stanza.
type Config struct {
	Enabled    bool
	Transport  string // "unix" or "tcp"
	Host       string
	Port       int
	UnixSocket string
}

const queueDepth = 256

// Emitter is the EventSink the stream engine and peer registry emit
// lifecycle notifications through. Only one observer may be attached at
// a time; a new connection replaces the previous one.
type Emitter struct {
	log      *logger.Logger
	listener net.Listener
	state    StateProvider

	mu       sync.Mutex
	conn     net.Conn
	queue    chan []byte
	done     chan struct{}
	dropOnce sync.Once
	closed   bool
}

// New starts listening per cfg and returns an Emitter ready to accept one
// observer at a time. Callers must call Close when done.
func New(cfg Config, state StateProvider, log *logger.Logger) (*Emitter, error) {
	log = log.WithComponent("events")

	var ln net.Listener
	var err error
	switch cfg.Transport {
	case "unix":
		_ = os.Remove(cfg.UnixSocket)
		ln, err = net.Listen("unix", cfg.UnixSocket)
		if err == nil {
			_ = os.Chmod(cfg.UnixSocket, 0660)
		}
	case "tcp", "":
		network := "tcp"
		if cfg.Host == "0.0.0.0" || cfg.Host == "" {
			network = "tcp4"
		}
		ln, err = net.Listen(network, fmt.Sprintf("%s:%d", cfg.Host, cfg.Port))
	default:
		return nil, fmt.Errorf("unknown event_emitter transport: %q", cfg.Transport)
	}
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	e := &Emitter{
		log:      log,
		listener: ln,
		state:    state,
		queue:    make(chan []byte, queueDepth),
		done:     make(chan struct{}),
	}
	go e.acceptLoop()
	go e.writeLoop()
	return e, nil
}

func (e *Emitter) acceptLoop() {
	for {
		conn, err := e.listener.Accept()
		if err != nil {
			return // listener closed
		}
		e.attach(conn)
	}
}

// attach replaces any existing observer with the new connection and
// replays a full-state resync.
func (e *Emitter) attach(conn net.Conn) {
	e.mu.Lock()
	if e.conn != nil {
		_ = e.conn.Close()
	}
	e.conn = conn
	e.dropOnce = sync.Once{}
	e.mu.Unlock()

	e.log.Info("observer attached", logger.String("addr", conn.RemoteAddr().String()))
	e.resync()
	go e.readLoop(conn)
}

func (e *Emitter) readLoop(conn net.Conn) {
	reader := bufio.NewReader(conn)
	for {
		var length uint32
		if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
			e.detach(conn)
			return
		}
		body := make([]byte, length)
		if _, err := readFull(reader, body); err != nil {
			e.detach(conn)
			return
		}
		var msg struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(body, &msg) == nil && msg.Type == "sync_request" {
			e.resync()
		}
	}
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (e *Emitter) detach(conn net.Conn) {
	e.mu.Lock()
	if e.conn == conn {
		e.conn = nil
	}
	e.mu.Unlock()
	_ = conn.Close()
	e.log.Info("observer detached")
}

func (e *Emitter) resync() {
	if e.state == nil {
		return
	}
	for _, ev := range e.state.Snapshot() {
		e.enqueue(ev)
	}
}

// Emit satisfies stream.EventSink and peer registry notifications alike.
// Non-blocking: if the observer's queue is saturated, the event is
// dropped and a warning is logged once until the next connect.
func (e *Emitter) Emit(eventType string, data map[string]any) {
	e.enqueue(Event{Type: eventType, Timestamp: time.Now(), Data: data})
}

func (e *Emitter) enqueue(ev Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		e.log.Error("failed to marshal event", logger.Error(err))
		return
	}
	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame[0:4], uint32(len(body)))
	copy(frame[4:], body)

	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return
	}

	select {
	case e.queue <- frame:
	default:
		e.dropOnce.Do(func() {
			e.log.Warn("observer queue full, dropping events until reconnect")
		})
	}
}

func (e *Emitter) writeLoop() {
	for {
		select {
		case <-e.done:
			return
		case frame := <-e.queue:
			e.mu.Lock()
			conn := e.conn
			e.mu.Unlock()
			if conn == nil {
				continue // no observer attached; drop silently
			}
			if _, err := conn.Write(frame); err != nil {
				e.detach(conn)
			}
		}
	}
}

// Close shuts down the listener and any attached observer connection.
// Safe to call once; further Emit calls after Close are silently dropped.
func (e *Emitter) Close() error {
	err := e.listener.Close()
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return err
	}
	e.closed = true
	if e.conn != nil {
		_ = e.conn.Close()
		e.conn = nil
	}
	e.mu.Unlock()
	close(e.done)
	return err
}
