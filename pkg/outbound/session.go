// Package outbound implements the client side of HBP: for each configured
// upstream master, it runs the login/auth/config handshake we initiate,
// then behaves as a stream.Peer so the routing engine can treat it exactly
// like an inbound repeater.
package outbound

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/hbp4/hbp4/pkg/logger"
	"github.com/hbp4/hbp4/pkg/matcher"
	"github.com/hbp4/hbp4/pkg/protocol"
)

// State mirrors the inbound session state machine, inverted: we drive
// every transition by sending first and waiting for the reply.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthSent
	StateConfigSent
	StateOptionsSent
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthSent:
		return "auth_sent"
	case StateConfigSent:
		return "config_sent"
	case StateOptionsSent:
		return "options_sent"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Config describes one upstream master connection, sourced from the
// outbound_connections array in the JSON config file.
type Config struct {
	Name       string
	RadioID    uint32
	MasterIP   string
	MasterPort int
	Passphrase string

	Callsign    string
	RXFreq      string
	TXFreq      string
	TXPower     string
	ColorCode   string
	Latitude    string
	Longitude   string
	Height      string
	Location    string
	Description string
	URL         string
	SoftwareID  string
	PackageID   string

	Slot1TGs []uint32
	Slot2TGs []uint32

	PingInterval time.Duration
	MaxMissed    int
}

// Session is one outbound connection to a master. It satisfies
// stream.Peer so the routing engine can address it like any inbound
// repeater's session; the stream engine never knows the direction the
// connection was initiated in.
type Session struct {
	cfg Config
	log *logger.Logger

	mu          sync.RWMutex
	state       State
	conn        *net.UDPConn
	masterAddr  *net.UDPAddr
	missedPongs int
	lastPongAt  time.Time
	rptoSent    bool

	slot1 *matcher.TalkgroupSet
	slot2 *matcher.TalkgroupSet

	onDMRD func(*protocol.DMRDPacket, []byte)
	sink   EventSink
}

// EventSink receives outbound connection lifecycle events. It is the same
// shape as stream.EventSink, declared locally so this package doesn't need
// to import pkg/stream just for the interface.
type EventSink interface {
	Emit(eventType string, data map[string]any)
}

type nopSink struct{}

func (nopSink) Emit(string, map[string]any) {}

func New(cfg Config, log *logger.Logger) *Session {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 5 * time.Second
	}
	if cfg.MaxMissed <= 0 {
		cfg.MaxMissed = 3
	}
	return &Session{
		cfg:   cfg,
		log:   log.WithComponent("outbound." + cfg.Name),
		state: StateDisconnected,
		slot1: matcher.NewTalkgroupSet(cfg.Slot1TGs...),
		slot2: matcher.NewTalkgroupSet(cfg.Slot2TGs...),
		sink:  nopSink{},
	}
}

// SetSink attaches the event sink used to report outbound_connecting,
// outbound_connected, outbound_disconnected and outbound_error. Optional;
// a Session with no sink attached runs exactly as before.
func (s *Session) SetSink(sink EventSink) {
	if sink == nil {
		sink = nopSink{}
	}
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

func (s *Session) emit(eventType string, data map[string]any) {
	s.mu.RLock()
	sink := s.sink
	s.mu.RUnlock()
	sink.Emit(eventType, data)
}

// ID satisfies stream.Peer.
func (s *Session) ID() uint32 { return s.cfg.RadioID }

// Name returns the outbound_connections entry name this session was built
// from, used to label its lifecycle events.
func (s *Session) Name() string { return s.cfg.Name }

// Connected satisfies stream.Peer.
func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == StateConnected
}

// SlotAllowed satisfies stream.Peer: an outbound session routes group
// traffic only for the talkgroups it was configured to subscribe to.
func (s *Session) SlotAllowed(slot int, tg uint32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch slot {
	case 1:
		return s.slot1.Allows(tg)
	case 2:
		return s.slot2.Allows(tg)
	default:
		return false
	}
}

// Send satisfies stream.Peer: encodes and transmits a DMRD frame upstream.
func (s *Session) Send(data []byte) error {
	s.mu.RLock()
	conn, addr := s.conn, s.masterAddr
	connected := s.state == StateConnected
	s.mu.RUnlock()
	if !connected || conn == nil {
		return fmt.Errorf("outbound %s: not connected", s.cfg.Name)
	}
	_, err := conn.WriteToUDP(data, addr)
	return err
}

// OnDMRD sets the handler invoked for every DMRD frame received from the
// master. handler receives both the parsed packet and the raw frame bytes,
// since the stream engine forwards frames verbatim rather than re-encoding
// them.
func (s *Session) OnDMRD(handler func(*protocol.DMRDPacket, []byte)) {
	s.mu.Lock()
	s.onDMRD = handler
	s.mu.Unlock()
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Run drives the connect/handshake/keepalive/reconnect lifecycle until
// ctx is cancelled. Every disconnect — handshake failure, missed pongs,
// MSTCL from the master — is a reconnect trigger with exponential backoff
// capped at 60s; nothing here is treated as fatal.
func (s *Session) Run(ctx context.Context) {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := s.connectAndRun(ctx); err != nil {
			s.log.Warn("outbound session ended, reconnecting", logger.Error(err), logger.String("backoff", backoff.String()))
			s.emit("outbound_error", map[string]any{"name": s.cfg.Name, "id": s.cfg.RadioID, "error": err.Error()})
		}
		s.setState(StateDisconnected)
		s.emit("outbound_disconnected", map[string]any{"name": s.cfg.Name, "id": s.cfg.RadioID})

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 60*time.Second {
			backoff = 60 * time.Second
		}
	}
}

func (s *Session) connectAndRun(ctx context.Context) error {
	masterAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", s.cfg.MasterIP, s.cfg.MasterPort))
	if err != nil {
		return fmt.Errorf("resolve master: %w", err)
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return fmt.Errorf("open local socket: %w", err)
	}
	defer conn.Close()

	s.mu.Lock()
	s.conn = conn
	s.masterAddr = masterAddr
	s.mu.Unlock()
	s.setState(StateConnecting)
	s.emit("outbound_connecting", map[string]any{"name": s.cfg.Name, "id": s.cfg.RadioID, "master": masterAddr.String()})

	salt, err := s.handshake(conn, masterAddr)
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	_ = salt
	s.setState(StateConnected)
	s.log.Info("outbound connected", logger.String("master", masterAddr.String()))
	s.emit("outbound_connected", map[string]any{"name": s.cfg.Name, "id": s.cfg.RadioID, "master": masterAddr.String()})

	errCh := make(chan error, 2)
	go func() { errCh <- s.receiveLoop(ctx, conn) }()
	go func() { errCh <- s.keepaliveLoop(ctx, conn, masterAddr) }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// handshake runs RPTL -> (RPTACK-with-salt | MSTCL-with-salt) -> RPTK ->
// RPTACK -> RPTC -> RPTACK -> optional RPTO -> RPTACK, per the outbound
// state machine.
func (s *Session) handshake(conn *net.UDPConn, masterAddr *net.UDPAddr) (uint32, error) {
	rptl := &protocol.RPTLPacket{RepeaterID: s.cfg.RadioID}
	data, _ := rptl.Encode()
	if _, err := conn.WriteToUDP(data, masterAddr); err != nil {
		return 0, fmt.Errorf("send RPTL: %w", err)
	}
	s.setState(StateAuthSent)

	salt, err := s.awaitSalt(conn)
	if err != nil {
		return 0, err
	}

	digest := sha256.Sum256(append(uint32ToBytes(salt), []byte(s.cfg.Passphrase)...))
	rptk := &protocol.RPTKPacket{RepeaterID: s.cfg.RadioID, Challenge: digest[:]}
	data, _ = rptk.Encode()
	if _, err := conn.WriteToUDP(data, masterAddr); err != nil {
		return 0, fmt.Errorf("send RPTK: %w", err)
	}
	if err := s.awaitRPTACK(conn); err != nil {
		return 0, fmt.Errorf("RPTK not acked: %w", err)
	}

	rptc := &protocol.RPTCPacket{
		RepeaterID:  s.cfg.RadioID,
		Callsign:    s.cfg.Callsign,
		RXFreq:      s.cfg.RXFreq,
		TXFreq:      s.cfg.TXFreq,
		TXPower:     s.cfg.TXPower,
		ColorCode:   s.cfg.ColorCode,
		Latitude:    s.cfg.Latitude,
		Longitude:   s.cfg.Longitude,
		Height:      s.cfg.Height,
		Location:    s.cfg.Location,
		Description: s.cfg.Description,
		URL:         s.cfg.URL,
		SoftwareID:  s.cfg.SoftwareID,
		PackageID:   s.cfg.PackageID,
	}
	data, _ = rptc.Encode()
	if _, err := conn.WriteToUDP(data, masterAddr); err != nil {
		return 0, fmt.Errorf("send RPTC: %w", err)
	}
	s.setState(StateConfigSent)
	if err := s.awaitRPTACK(conn); err != nil {
		return 0, fmt.Errorf("RPTC not acked: %w", err)
	}

	if len(s.cfg.Slot1TGs) > 0 || len(s.cfg.Slot2TGs) > 0 {
		rpto := &protocol.RPTOPacket{RepeaterID: s.cfg.RadioID, TS1: s.cfg.Slot1TGs, TS2: s.cfg.Slot2TGs}
		data, _ = rpto.Encode()
		if _, err := conn.WriteToUDP(data, masterAddr); err != nil {
			return 0, fmt.Errorf("send RPTO: %w", err)
		}
		s.setState(StateOptionsSent)
		if err := s.awaitRPTACK(conn); err != nil {
			return 0, fmt.Errorf("RPTO not acked: %w", err)
		}
		s.rptoSent = true
	}

	return salt, nil
}

// awaitSalt waits for either RPTACK-with-salt or MSTCL-with-salt in
// response to RPTL — masters differ on which they send; we accept both.
func (s *Session) awaitSalt(conn *net.UDPConn) (uint32, error) {
	buf := make([]byte, 1024)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		return 0, fmt.Errorf("no reply to RPTL: %w", err)
	}
	data := buf[:n]

	if len(data) >= protocol.RPTACKPacketSize && string(data[0:6]) == protocol.PacketTypeRPTACK {
		ack, err := protocol.ParseRPTACK(data)
		if err != nil {
			return 0, err
		}
		return ack.RepeaterID, nil // the trailing field carries the salt here, not a peer id
	}
	if len(data) >= protocol.MSTCLPacketSize && string(data[0:5]) == protocol.PacketTypeMSTCL {
		mst, err := protocol.ParseMSTCL(data)
		if err != nil {
			return 0, err
		}
		return mst.RepeaterID, nil
	}
	return 0, fmt.Errorf("unexpected reply to RPTL: %q", string(data))
}

func (s *Session) awaitRPTACK(conn *net.UDPConn) error {
	buf := make([]byte, 1024)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		return err
	}
	if n < protocol.RPTACKPacketSize || string(buf[0:6]) != protocol.PacketTypeRPTACK {
		return fmt.Errorf("expected RPTACK, got %q", string(buf[:n]))
	}
	return nil
}

func (s *Session) receiveLoop(ctx context.Context, conn *net.UDPConn) error {
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return err
		}
		s.handlePacket(buf[:n])
	}
}

func (s *Session) handlePacket(data []byte) {
	switch {
	case len(data) >= protocol.DMRDPacketSize && string(data[0:4]) == protocol.PacketTypeDMRD:
		packet := &protocol.DMRDPacket{}
		if err := packet.Parse(data); err != nil {
			s.log.Debug("malformed DMRD from master", logger.Error(err))
			return
		}
		s.mu.RLock()
		handler := s.onDMRD
		s.mu.RUnlock()
		if handler != nil {
			handler(packet, data)
		}
	case len(data) >= protocol.MSTPONGPacketSize && string(data[0:7]) == protocol.PacketTypeMSTPONG:
		s.mu.Lock()
		s.missedPongs = 0
		s.lastPongAt = time.Now()
		s.mu.Unlock()
	case len(data) >= protocol.MSTCLPacketSize && string(data[0:5]) == protocol.PacketTypeMSTCL:
		s.log.Warn("master closed outbound connection")
		s.setState(StateDisconnected)
	}
}

func (s *Session) keepaliveLoop(ctx context.Context, conn *net.UDPConn, masterAddr *net.UDPAddr) error {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.mu.Lock()
			s.missedPongs++
			missed := s.missedPongs
			s.mu.Unlock()
			if missed > s.cfg.MaxMissed {
				return fmt.Errorf("missed %d consecutive pongs", missed)
			}

			ping := &protocol.RPTPINGPacket{RepeaterID: s.cfg.RadioID}
			data, _ := ping.Encode()
			if _, err := conn.WriteToUDP(data, masterAddr); err != nil {
				s.log.Warn("failed to send RPTPING", logger.Error(err))
			}
		}
	}
}

func uint32ToBytes(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}
