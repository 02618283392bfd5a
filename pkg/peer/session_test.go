package peer

import (
	"net"
	"testing"
	"time"

	"github.com/hbp4/hbp4/pkg/matcher"
	"github.com/hbp4/hbp4/pkg/protocol"
)

func TestSession_New(t *testing.T) {
	addr := &net.UDPAddr{IP: net.ParseIP("192.168.1.100"), Port: 62031}
	s := New(312000, addr, 0xdeadbeef, "s3cret")

	if s.State() != StateLogin {
		t.Errorf("expected StateLogin, got %v", s.State())
	}
	if s.Passphrase() != "s3cret" {
		t.Errorf("expected passphrase s3cret, got %q", s.Passphrase())
	}
	if s.Salt() != 0xdeadbeef {
		t.Errorf("expected salt 0xdeadbeef, got 0x%x", s.Salt())
	}
}

func TestSession_ApplyConfig(t *testing.T) {
	addr := &net.UDPAddr{IP: net.ParseIP("192.168.1.100"), Port: 62031}
	s := New(312000, addr, 1, "s3cret")

	cfg := &protocol.RPTCPacket{
		RepeaterID: 312000,
		Callsign:   "W1ABC",
		SoftwareID: "MMDVM",
		PackageID:  "20230101",
	}
	detector := PackageDetector{HotspotPackages: []string{"MMDVM"}}

	s.ApplyConfig(cfg, detector, matcher.NewUnrestrictedSet(), matcher.NewTalkgroupSet(9))

	if s.Callsign() != "W1ABC" {
		t.Errorf("expected callsign W1ABC, got %q", s.Callsign())
	}
	if s.ConnectionType() != ConnectionHotspot {
		t.Errorf("expected ConnectionHotspot, got %v", s.ConnectionType())
	}
	if !s.SlotAllowed(protocol.Timeslot1, 12345) {
		t.Error("expected slot1 unrestricted to allow any talkgroup")
	}
	if !s.SlotAllowed(protocol.Timeslot2, 9) {
		t.Error("expected slot2 to allow talkgroup 9")
	}
	if s.SlotAllowed(protocol.Timeslot2, 10) {
		t.Error("expected slot2 to reject talkgroup 10")
	}
}

func TestSession_ApplyOptions_ConfigIsMaster(t *testing.T) {
	addr := &net.UDPAddr{IP: net.ParseIP("192.168.1.100"), Port: 62031}
	s := New(312000, addr, 1, "s3cret")
	s.ApplyConfig(&protocol.RPTCPacket{}, PackageDetector{}, matcher.NewTalkgroupSet(1, 2, 3, 9), matcher.NewUnrestrictedSet())

	s.ApplyOptions([]uint32{1, 2, 999, 1000}, nil)

	if !s.RPTOReceived() {
		t.Error("expected rpto_received to be true")
	}
	if !s.SlotAllowed(protocol.Timeslot1, 1) || !s.SlotAllowed(protocol.Timeslot1, 2) {
		t.Error("expected 1 and 2 to remain allowed")
	}
	if s.SlotAllowed(protocol.Timeslot1, 999) || s.SlotAllowed(protocol.Timeslot1, 1000) {
		t.Error("expected 999 and 1000 to be excluded: not in configured allow-set")
	}
}

func TestSession_IsDead(t *testing.T) {
	addr := &net.UDPAddr{IP: net.ParseIP("192.168.1.100"), Port: 62031}
	s := New(312000, addr, 1, "s3cret")

	now := time.Now()
	if s.IsDead(now, 5*time.Second, 3) {
		t.Error("a session just logged in should not be considered dead")
	}
	if !s.IsDead(now.Add(21*time.Second), 5*time.Second, 3) {
		t.Error("a session that never pings must still be reaped once the keepalive window elapses since login")
	}

	s.RecordPing(now)
	if s.IsDead(now.Add(19*time.Second), 5*time.Second, 3) {
		t.Error("19s after a ping with keepalive=5s/max_missed=3 (threshold 20s) should not be dead yet")
	}
	if !s.IsDead(now.Add(21*time.Second), 5*time.Second, 3) {
		t.Error("21s after a ping with keepalive=5s/max_missed=3 (threshold 20s) should be dead")
	}
}

func TestPackageDetector_Detect(t *testing.T) {
	d := PackageDetector{
		HotspotPackages:  []string{"MMDVM_HS", "DVMEGA"},
		NetworkPackages:  []string{"OPENBRIDGE"},
		RepeaterPackages: []string{"MMDVM"},
	}

	tests := []struct {
		software, pkg string
		want          ConnectionType
	}{
		{"MMDVM_HS_Hat", "v1.0", ConnectionHotspot},
		{"MMDVM", "repeater-fw", ConnectionRepeater},
		{"OpenBridge", "", ConnectionNetwork},
		{"SomeOtherStack", "", ConnectionUnknown},
	}
	for _, tt := range tests {
		if got := d.Detect(tt.software, tt.pkg); got != tt.want {
			t.Errorf("Detect(%q, %q) = %v, want %v", tt.software, tt.pkg, got, tt.want)
		}
	}
}
