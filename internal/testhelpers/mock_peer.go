package testhelpers

import (
	"crypto/sha256"
	"net"
	"sync"
	"time"

	"github.com/hbp4/hbp4/pkg/protocol"
)

// MockPeer simulates an HBP repeater/hotspot talking to a real server over
// loopback UDP, for integration tests.
type MockPeer struct {
	PeerID     uint32
	Passphrase string
	Callsign   string

	conn       *net.UDPConn
	masterAddr *net.UDPAddr
	mu         sync.RWMutex
	packets    [][]byte
	closed     bool
}

// NewMockPeer creates a new mock peer.
func NewMockPeer(peerID uint32, passphrase string, callsign string) *MockPeer {
	return &MockPeer{
		PeerID:     peerID,
		Passphrase: passphrase,
		Callsign:   callsign,
		packets:    make([][]byte, 0),
	}
}

// Connect opens a UDP socket toward masterAddr ("host:port").
func (m *MockPeer) Connect(masterAddr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	addr, err := net.ResolveUDPAddr("udp", masterAddr)
	if err != nil {
		return err
	}
	m.masterAddr = addr

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return err
	}
	m.conn = conn
	return nil
}

func (m *MockPeer) write(data []byte) error {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()
	if conn == nil {
		return nil
	}
	_, err := conn.Write(data)
	return err
}

// SendRPTL sends a login request.
func (m *MockPeer) SendRPTL() error {
	packet := &protocol.RPTLPacket{RepeaterID: m.PeerID}
	data, err := packet.Encode()
	if err != nil {
		return err
	}
	return m.write(data)
}

// SendRPTK computes sha256(salt || passphrase) and sends the key exchange.
func (m *MockPeer) SendRPTK(salt uint32) error {
	digest := sha256.Sum256(append(uint32ToBytes(salt), []byte(m.Passphrase)...))
	packet := &protocol.RPTKPacket{RepeaterID: m.PeerID, Challenge: digest[:]}
	data, err := packet.Encode()
	if err != nil {
		return err
	}
	return m.write(data)
}

// SendRPTC sends a configuration frame with this peer's callsign and the
// given per-field values (any may be left empty).
func (m *MockPeer) SendRPTC(rxFreq, txFreq, colorCode, slots string) error {
	packet := &protocol.RPTCPacket{
		RepeaterID: m.PeerID,
		Callsign:   m.Callsign,
		RXFreq:     rxFreq,
		TXFreq:     txFreq,
		ColorCode:  colorCode,
		Slots:      slots,
	}
	data, err := packet.Encode()
	if err != nil {
		return err
	}
	return m.write(data)
}

// SendRPTO sends an options (talkgroup subscription) frame.
func (m *MockPeer) SendRPTO(ts1, ts2 []uint32) error {
	packet := &protocol.RPTOPacket{RepeaterID: m.PeerID, TS1: ts1, TS2: ts2}
	data, err := packet.Encode()
	if err != nil {
		return err
	}
	return m.write(data)
}

// SendRPTPING sends a keepalive ping.
func (m *MockPeer) SendRPTPING() error {
	packet := &protocol.RPTPINGPacket{RepeaterID: m.PeerID}
	data, err := packet.Encode()
	if err != nil {
		return err
	}
	return m.write(data)
}

// SendRPTCL sends a graceful disconnect.
func (m *MockPeer) SendRPTCL() error {
	packet := &protocol.RPTCLPacket{RepeaterID: m.PeerID}
	data, err := packet.Encode()
	if err != nil {
		return err
	}
	return m.write(data)
}

// SendDMRD sends one DMRD voice/data frame.
func (m *MockPeer) SendDMRD(sourceID, destID uint32, timeslot int, callType int, streamID uint32, seq byte, frameType, dataType byte, payload []byte) error {
	packet := &protocol.DMRDPacket{
		Sequence:      seq,
		SourceID:      sourceID,
		DestinationID: destID,
		RepeaterID:    m.PeerID,
		Timeslot:      timeslot,
		CallType:      callType,
		FrameType:     frameType,
		DataType:      dataType,
		StreamID:      streamID,
		Payload:       payload,
	}
	data, err := packet.Encode()
	if err != nil {
		return err
	}
	return m.write(data)
}

// ReceivePacket reads one packet from the master, or (nil, err) on timeout.
func (m *MockPeer) ReceivePacket(timeout time.Duration) ([]byte, error) {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()
	if conn == nil {
		return nil, nil
	}

	conn.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, 1500)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, err
	}

	packet := make([]byte, n)
	copy(packet, buf[:n])

	m.mu.Lock()
	m.packets = append(m.packets, packet)
	m.mu.Unlock()

	return packet, nil
}

// GetReceivedPackets returns every packet received so far.
func (m *MockPeer) GetReceivedPackets() [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	packets := make([][]byte, len(m.packets))
	copy(packets, m.packets)
	return packets
}

// Close closes the underlying UDP socket.
func (m *MockPeer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.conn != nil {
		return m.conn.Close()
	}
	return nil
}

// IsConnected reports whether the socket is open.
func (m *MockPeer) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn != nil && !m.closed
}

func uint32ToBytes(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}
