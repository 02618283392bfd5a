// Package peer implements the inbound peer registry and session state
// machine: one authenticated session per radio_id, driven through
// LOGIN -> CONFIG -> CONNECTED -> DEAD by the frames described in
// pkg/protocol.
package peer

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/hbp4/hbp4/pkg/matcher"
	"github.com/hbp4/hbp4/pkg/protocol"
)

// State is a peer session's lifecycle state.
type State int

const (
	StateLogin State = iota
	StateConfig
	StateConnected
	StateDead
)

func (s State) String() string {
	switch s {
	case StateLogin:
		return "login"
	case StateConfig:
		return "config"
	case StateConnected:
		return "connected"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// ConnectionType is the peer hardware/software class inferred from its
// RPTC software_id/package_id fields.
type ConnectionType int

const (
	ConnectionUnknown ConnectionType = iota
	ConnectionRepeater
	ConnectionHotspot
	ConnectionNetwork
)

func (c ConnectionType) String() string {
	switch c {
	case ConnectionRepeater:
		return "repeater"
	case ConnectionHotspot:
		return "hotspot"
	case ConnectionNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// Session is one authenticated inbound peer. Identity (RadioID) is the
// canonical key; all other fields are protected by mu.
type Session struct {
	RadioID uint32
	Addr    *net.UDPAddr

	mu            sync.RWMutex
	callsign      string
	salt          uint32
	authenticated bool
	state         State
	passphrase    string // the matcher-resolved passphrase used for RPTK verification

	lastPingAt  time.Time
	missedPings int

	rawConfig *protocol.RPTCPacket
	connType  ConnectionType

	slot1TGs     *matcher.TalkgroupSet
	slot2TGs     *matcher.TalkgroupSet
	rptoReceived bool

	conn *net.UDPConn // shared listening socket; set once by the server
}

// New creates a peer session in LOGIN state with the given salt and the
// passphrase the matcher resolved for this radio_id. The keepalive clock
// starts here, at login, not at the first successful RPTPING — a peer
// that completes the handshake and then goes silent must still be
// reaped.
func New(radioID uint32, addr *net.UDPAddr, salt uint32, passphrase string) *Session {
	return &Session{
		RadioID:    radioID,
		Addr:       addr,
		state:      StateLogin,
		salt:       salt,
		passphrase: passphrase,
		lastPingAt: time.Now(),
	}
}

// SetConn attaches the shared listening socket this session sends through.
// Inbound peers have no dedicated socket of their own, unlike outbound
// client connections, so the server hands every session a reference to
// the one it's listening on.
func (s *Session) SetConn(conn *net.UDPConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
}

// Send satisfies stream.Peer, writing data to this peer's source address
// over the shared listening socket.
func (s *Session) Send(data []byte) error {
	s.mu.RLock()
	conn, addr := s.conn, s.Addr
	s.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("peer %d: no connection attached", s.RadioID)
	}
	_, err := conn.WriteToUDP(data, addr)
	return err
}

// ID satisfies routing-target interfaces keyed by radio_id.
func (s *Session) ID() uint32 { return s.RadioID }

func (s *Session) Salt() uint32 { return s.salt }

func (s *Session) Passphrase() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.passphrase
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) SetState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// Connected satisfies the stream engine's routing-target interface.
func (s *Session) Connected() bool {
	return s.State() == StateConnected
}

func (s *Session) Authenticate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = true
}

func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// Callsign returns the peer's RPTC callsign, or "" before CONFIG.
func (s *Session) Callsign() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.callsign
}

// ApplyConfig decodes an RPTC frame, stores it (raw fidelity is preserved
// by the caller re-encoding the same struct when needed), infers the
// connection type, and applies the matcher-resolved slot allow-sets.
func (s *Session) ApplyConfig(cfg *protocol.RPTCPacket, detect ConnectionDetector, slot1, slot2 *matcher.TalkgroupSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawConfig = cfg
	s.callsign = cfg.Callsign
	s.connType = detect.Detect(cfg.SoftwareID, cfg.PackageID)
	s.slot1TGs = slot1
	s.slot2TGs = slot2
}

func (s *Session) RawConfig() *protocol.RPTCPacket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rawConfig
}

func (s *Session) ConnectionType() ConnectionType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connType
}

// ApplyOptions intersects a peer-requested RPTO subscription with the
// configured allow-set for each slot ("config is master") and marks
// rpto_received.
func (s *Session) ApplyOptions(ts1, ts2 []uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slot1TGs != nil && ts1 != nil {
		s.slot1TGs = s.slot1TGs.Intersect(ts1)
	}
	if s.slot2TGs != nil && ts2 != nil {
		s.slot2TGs = s.slot2TGs.Intersect(ts2)
	}
	s.rptoReceived = true
}

func (s *Session) RPTOReceived() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rptoReceived
}

func (s *Session) SlotTalkgroups(slot int) *matcher.TalkgroupSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if slot == protocol.Timeslot2 {
		return s.slot2TGs
	}
	return s.slot1TGs
}

// SlotAllowed reports whether a group call to tg on slot is permitted by
// this peer's configured (and possibly RPTO-narrowed) allow-set.
func (s *Session) SlotAllowed(slot int, tg uint32) bool {
	return s.SlotTalkgroups(slot).Allows(tg)
}

func (s *Session) RecordPing(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPingAt = now
	s.missedPings = 0
}

func (s *Session) LastPingAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastPingAt
}

func (s *Session) MissedPings() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.missedPings
}

// IsDead reports whether this peer has gone silent beyond
// keepalive*(max_missed+1), measured from login if it has never sent a
// successful RPTPING.
func (s *Session) IsDead(now time.Time, keepalive time.Duration, maxMissed int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return now.Sub(s.lastPingAt) > keepalive*time.Duration(maxMissed+1)
}

// ConnectionDetector classifies a peer's software/package identifiers.
type ConnectionDetector interface {
	Detect(softwareID, packageID string) ConnectionType
}

// PackageDetector implements ConnectionDetector from configured substring
// lists (connection_type_detection in the config file).
type PackageDetector struct {
	HotspotPackages []string
	NetworkPackages []string
	RepeaterPackages []string
}

func (d PackageDetector) Detect(softwareID, packageID string) ConnectionType {
	id := strings.ToUpper(softwareID + " " + packageID)
	if matchesAny(id, d.HotspotPackages) {
		return ConnectionHotspot
	}
	if matchesAny(id, d.NetworkPackages) {
		return ConnectionNetwork
	}
	if matchesAny(id, d.RepeaterPackages) {
		return ConnectionRepeater
	}
	return ConnectionUnknown
}

func matchesAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if n == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToUpper(n)) {
			return true
		}
	}
	return false
}
