// Package network implements the inbound UDP listener: the protocol
// dispatcher (C1) that parses every frame type, drives each peer's login
// state machine (C5) against the peer registry (C3), consults the
// access-control matcher (C2) at login, and hands authenticated DMRD
// traffic to the stream engine (C6).
package network

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/hbp4/hbp4/pkg/counters"
	"github.com/hbp4/hbp4/pkg/logger"
	"github.com/hbp4/hbp4/pkg/matcher"
	"github.com/hbp4/hbp4/pkg/metrics"
	"github.com/hbp4/hbp4/pkg/outbound"
	"github.com/hbp4/hbp4/pkg/peer"
	"github.com/hbp4/hbp4/pkg/protocol"
	"github.com/hbp4/hbp4/pkg/stream"
)

// Config holds the UDP bind address for the inbound listener.
type Config struct {
	BindAddr string
	BindPort int
}

// Server is the inbound HBP listener: one UDP socket shared by every
// registered peer session, dispatching each datagram synchronously so that
// two frames for the same stream are always processed in arrival order —
// handing a packet to a goroutine per-datagram would let a slow handler
// reorder a stream's voice frames relative to its terminator.
type Server struct {
	cfg Config
	log *logger.Logger

	conn *net.UDPConn

	peers    *peer.Manager
	matcher  *matcher.Matcher
	engine   *stream.Engine
	detector peer.ConnectionDetector
	sink     stream.EventSink
	metrics  *metrics.Collector
	counters *counters.Store

	mu           sync.Mutex
	pendingMatch map[uint32]matcher.Result

	ready chan struct{}
}

// New builds a Server. metrics and counters may be nil; both are optional
// per the relay's config.
func New(cfg Config, peers *peer.Manager, m *matcher.Matcher, engine *stream.Engine, detector peer.ConnectionDetector, sink stream.EventSink, collector *metrics.Collector, store *counters.Store, log *logger.Logger) *Server {
	if sink == nil {
		sink = noopSink{}
	}
	return &Server{
		cfg:          cfg,
		log:          log.WithComponent("network"),
		peers:        peers,
		matcher:      m,
		engine:       engine,
		detector:     detector,
		sink:         sink,
		metrics:      collector,
		counters:     store,
		pendingMatch: make(map[uint32]matcher.Result),
		ready:        make(chan struct{}),
	}
}

type noopSink struct{}

func (noopSink) Emit(string, map[string]any) {}

// Start binds the UDP socket and blocks, processing frames until ctx is
// cancelled. A bind failure is returned wrapped with the bind address;
// main maps an error from Start to the bind-failure exit code.
func (s *Server) Start(ctx context.Context) error {
	addr := &net.UDPAddr{IP: net.ParseIP(s.cfg.BindAddr), Port: s.cfg.BindPort}
	if addr.IP == nil {
		addr.IP = net.IPv4zero
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("bind %s:%d: %w", s.cfg.BindAddr, s.cfg.BindPort, err)
	}
	s.conn = conn
	defer conn.Close()
	close(s.ready)

	s.log.Info("listening", logger.String("addr", conn.LocalAddr().String()))
	s.receiveLoop(ctx)
	s.emitShutdownDisconnects()
	return ctx.Err()
}

// emitShutdownDisconnects emits repeater_disconnected(reason="shutdown")
// for every currently connected peer, so downstream consumers of the
// event stream see an explicit close instead of the connection simply
// going silent.
func (s *Server) emitShutdownDisconnects() {
	for _, sess := range s.peers.All() {
		if sess.State() != peer.StateConnected {
			continue
		}
		s.sink.Emit("repeater_disconnected", map[string]any{"id": sess.RadioID, "reason": "shutdown"})
	}
}

// Addr blocks until the listener is bound and returns its local address.
// Used by tests that bind to port 0 and need to learn the assigned port.
func (s *Server) Addr() net.Addr {
	<-s.ready
	return s.conn.LocalAddr()
}

func (s *Server) receiveLoop(ctx context.Context) {
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			s.log.Warn("read error", logger.Error(err))
			continue
		}
		s.handlePacket(buf[:n], addr, time.Now())
	}
}

// handlePacket dispatches one datagram by its leading literal. RPTCL and
// RPTPING are checked ahead of the shorter RPTC/RPTP literals they begin
// with, since Go's string comparison alone can't disambiguate a prefix
// relationship.
func (s *Server) handlePacket(data []byte, addr *net.UDPAddr, now time.Time) {
	if len(data) < 4 {
		return
	}
	switch {
	case len(data) >= 5 && string(data[0:5]) == protocol.PacketTypeRPTCL:
		s.handleRPTCL(data, addr, now)
	case len(data) >= 7 && string(data[0:7]) == protocol.PacketTypeRPTPING:
		s.handleRPTPING(data, addr, now)
	case string(data[0:4]) == protocol.PacketTypeDMRD:
		s.handleDMRD(data, addr, now)
	case string(data[0:4]) == protocol.PacketTypeRPTL:
		s.handleRPTL(data, addr, now)
	case string(data[0:4]) == protocol.PacketTypeRPTK:
		s.handleRPTK(data, addr, now)
	case string(data[0:4]) == protocol.PacketTypeRPTC:
		s.handleRPTC(data, addr, now)
	case string(data[0:4]) == protocol.PacketTypeRPTO:
		s.handleRPTO(data, addr, now)
	case string(data[0:4]) == protocol.PacketTypeRPTP:
		s.handleRPTP(data, addr, now)
	default:
		s.log.Debug("unrecognized frame", logger.String("prefix", string(data[0:4])))
	}
}

func (s *Server) handleRPTL(data []byte, addr *net.UDPAddr, now time.Time) {
	rptl, err := protocol.ParseRPTL(data)
	if err != nil {
		s.log.Debug("malformed RPTL", logger.Error(err))
		return
	}
	radioID := rptl.RepeaterID

	if !s.peers.VerifySource(radioID, addr) {
		s.log.Warn("RPTL from wrong source, refusing", logger.Uint32("radio_id", radioID), logger.String("addr", addr.String()))
		s.sendMSTNAK(radioID, addr)
		return
	}

	result := s.matcher.Query(radioID, "")
	if result.Blacklisted {
		s.log.Info("peer blacklisted, refusing login",
			logger.Uint32("radio_id", radioID),
			logger.String("rule", result.RuleName),
			logger.String("reason", result.Reason))
		s.sendMSTNAK(radioID, addr)
		return
	}

	salt, err := randomSalt()
	if err != nil {
		s.log.Error("failed to generate salt", logger.Error(err))
		s.sendMSTNAK(radioID, addr)
		return
	}

	sess := peer.New(radioID, addr, salt, result.Config.Passphrase)
	sess.SetConn(s.conn)
	s.peers.Put(sess)

	s.mu.Lock()
	s.pendingMatch[radioID] = result
	s.mu.Unlock()

	ack := &protocol.RPTACKPacket{RepeaterID: salt}
	s.send(ack, addr, radioID)
}

func (s *Server) handleRPTK(data []byte, addr *net.UDPAddr, now time.Time) {
	rptk, err := protocol.ParseRPTK(data)
	if err != nil {
		s.log.Debug("malformed RPTK", logger.Error(err))
		return
	}
	radioID := rptk.RepeaterID

	sess := s.peers.Get(radioID)
	if sess == nil || !s.peers.VerifySource(radioID, addr) || sess.State() != peer.StateLogin {
		s.sendMSTNAK(radioID, addr)
		return
	}

	expected := sha256.Sum256(append(uint32ToBytes(sess.Salt()), []byte(sess.Passphrase())...))
	if !bytes.Equal(expected[:], rptk.Challenge) {
		s.log.Warn("authentication failed", logger.Uint32("radio_id", radioID))
		s.peers.Remove(radioID)
		s.sendMSTNAK(radioID, addr)
		return
	}

	sess.Authenticate()
	sess.SetState(peer.StateConfig)
	s.sendRPTACK(radioID, addr)
}

func (s *Server) handleRPTC(data []byte, addr *net.UDPAddr, now time.Time) {
	rptc, err := protocol.ParseRPTC(data)
	if err != nil {
		s.log.Debug("malformed RPTC", logger.Error(err))
		return
	}
	radioID := rptc.RepeaterID

	sess := s.peers.Get(radioID)
	if sess == nil || !s.peers.VerifySource(radioID, addr) || sess.State() != peer.StateConfig {
		s.sendMSTNAK(radioID, addr)
		return
	}

	s.mu.Lock()
	result, ok := s.pendingMatch[radioID]
	delete(s.pendingMatch, radioID)
	s.mu.Unlock()
	if !ok {
		result = matcher.Result{Config: matcher.PeerConfig{
			Slot1: matcher.NewUnrestrictedSet(),
			Slot2: matcher.NewUnrestrictedSet(),
		}}
	}

	sess.ApplyConfig(rptc, s.detector, result.Config.Slot1, result.Config.Slot2)
	sess.SetState(peer.StateConnected)

	if s.metrics != nil {
		s.metrics.PeerConnected(radioID)
	}

	s.sink.Emit("repeater_connected", map[string]any{
		"id":              radioID,
		"callsign":        sess.Callsign(),
		"connection_type": sess.ConnectionType().String(),
	})
	s.sink.Emit("repeater_details", repeaterDetails(radioID, rptc, sess.ConnectionType().String()))

	s.sendRPTACK(radioID, addr)
}

func (s *Server) handleRPTO(data []byte, addr *net.UDPAddr, now time.Time) {
	rpto, err := protocol.ParseRPTO(data)
	if err != nil {
		s.log.Debug("malformed RPTO", logger.Error(err))
		return
	}
	radioID := rpto.RepeaterID

	sess := s.peers.Get(radioID)
	if sess == nil || !s.peers.VerifySource(radioID, addr) || sess.State() != peer.StateConnected {
		return
	}

	sess.ApplyOptions(rpto.TS1, rpto.TS2)
	s.sink.Emit("repeater_options_updated", map[string]any{
		"id":    radioID,
		"slot1": sess.SlotTalkgroups(protocol.Timeslot1).List(),
		"slot2": sess.SlotTalkgroups(protocol.Timeslot2).List(),
	})
}

func (s *Server) handleRPTPING(data []byte, addr *net.UDPAddr, now time.Time) {
	rptping, err := protocol.ParseRPTPING(data)
	if err != nil {
		s.log.Debug("malformed RPTPING", logger.Error(err))
		return
	}
	s.handlePing(rptping.RepeaterID, addr, now)
}

func (s *Server) handleRPTP(data []byte, addr *net.UDPAddr, now time.Time) {
	rptp, err := protocol.ParseRPTP(data)
	if err != nil {
		s.log.Debug("malformed RPTP", logger.Error(err))
		return
	}
	s.handlePing(rptp.RepeaterID, addr, now)
}

func (s *Server) handlePing(radioID uint32, addr *net.UDPAddr, now time.Time) {
	sess := s.peers.Get(radioID)
	if sess == nil || !s.peers.VerifySource(radioID, addr) || sess.State() != peer.StateConnected {
		return
	}
	sess.RecordPing(now)
	pong := &protocol.MSTPONGPacket{RepeaterID: radioID}
	s.send(pong, addr, radioID)
}

func (s *Server) handleRPTCL(data []byte, addr *net.UDPAddr, now time.Time) {
	rptcl, err := protocol.ParseRPTCL(data)
	if err != nil {
		s.log.Debug("malformed RPTCL", logger.Error(err))
		return
	}
	radioID := rptcl.RepeaterID

	sess := s.peers.Get(radioID)
	if sess == nil || !s.peers.VerifySource(radioID, addr) {
		return
	}

	s.engine.ReleasePeer(radioID, now)
	s.peers.Remove(radioID)

	if s.metrics != nil {
		s.metrics.PeerDisconnected(radioID)
	}
	s.sink.Emit("repeater_disconnected", map[string]any{"id": radioID, "reason": "disconnect"})
}

// handleDMRD looks up the session by the frame's embedded repeater_id
// (which is how HBP identifies the frame's origin, independent of the UDP
// source address), confirms it matches the source address and is
// CONNECTED, then admits and forwards the frame through the stream engine
// exactly as received.
func (s *Server) handleDMRD(data []byte, addr *net.UDPAddr, now time.Time) {
	dmrd, err := protocol.ParseDMRD(data)
	if err != nil {
		s.log.Debug("malformed DMRD", logger.Error(err))
		return
	}

	sess := s.peers.Get(dmrd.RepeaterID)
	if sess == nil || sess.State() != peer.StateConnected || !s.peers.VerifySource(dmrd.RepeaterID, addr) {
		return
	}

	if s.metrics != nil {
		s.metrics.PacketReceived("DMRD")
		s.metrics.BytesReceived(uint64(len(data)))
	}

	st, ok := s.engine.Admit(dmrd.RepeaterID, dmrd.Timeslot, dmrd.SourceID, dmrd.DestinationID, dmrd.StreamID, dmrd.CallType, dmrd.BER, dmrd.RSSI, now)
	if !ok {
		return
	}
	s.engine.Forward(st, data, dmrd.BER, dmrd.RSSI, now)

	if dmrd.FrameType == protocol.FrameTypeVoiceTerminator && dmrd.DataType == 2 {
		s.engine.Terminate(dmrd.RepeaterID, dmrd.Timeslot, now)
	}
}

func (s *Server) sendMSTNAK(radioID uint32, addr *net.UDPAddr) {
	nak := &protocol.MSTNAKPacket{RepeaterID: radioID}
	s.send(nak, addr, radioID)
}

func (s *Server) sendRPTACK(radioID uint32, addr *net.UDPAddr) {
	ack := &protocol.RPTACKPacket{RepeaterID: radioID}
	s.send(ack, addr, radioID)
}

type encoder interface {
	Encode() ([]byte, error)
}

func (s *Server) send(p encoder, addr *net.UDPAddr, radioID uint32) {
	data, err := p.Encode()
	if err != nil {
		s.log.Error("failed to encode reply", logger.Error(err), logger.Uint32("radio_id", radioID))
		return
	}
	if _, err := s.conn.WriteToUDP(data, addr); err != nil {
		s.log.Warn("failed to send reply", logger.Error(err), logger.Uint32("radio_id", radioID))
		return
	}
	if s.metrics != nil {
		s.metrics.BytesSent(uint64(len(data)))
	}
}

func randomSalt() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

func uint32ToBytes(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func callTypeLabel(callType int) string {
	if callType == protocol.CallTypePrivate {
		return "private"
	}
	return "group"
}

func repeaterDetails(radioID uint32, cfg *protocol.RPTCPacket, connectionType string) map[string]interface{} {
	return map[string]interface{}{
		"id":              radioID,
		"callsign":        cfg.Callsign,
		"rx_freq":         cfg.RXFreq,
		"tx_freq":         cfg.TXFreq,
		"tx_power":        cfg.TXPower,
		"color_code":      cfg.ColorCode,
		"latitude":        cfg.Latitude,
		"longitude":       cfg.Longitude,
		"height":          cfg.Height,
		"location":        cfg.Location,
		"description":     cfg.Description,
		"slots":           cfg.Slots,
		"url":             cfg.URL,
		"software_id":     cfg.SoftwareID,
		"package_id":      cfg.PackageID,
		"connection_type": connectionType,
	}
}

// NewRoster builds the stream.Roster the engine routes against, combining
// the inbound peer registry with the configured outbound sessions.
func NewRoster(peers *peer.Manager, outboundSessions []*outbound.Session) stream.Roster {
	return &roster{peers: peers, outbound: outboundSessions}
}
