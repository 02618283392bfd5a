package outbound

import (
	"testing"

	"github.com/hbp4/hbp4/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error"})
}

func TestSession_SlotAllowed(t *testing.T) {
	s := New(Config{
		Name:     "test",
		RadioID:  312000,
		Slot1TGs: []uint32{9, 3100},
	}, testLogger())

	if !s.SlotAllowed(1, 9) {
		t.Fatalf("expected slot 1 tg 9 allowed")
	}
	if s.SlotAllowed(1, 1) {
		t.Fatalf("expected slot 1 tg 1 denied")
	}
	if s.SlotAllowed(2, 9) {
		t.Fatalf("expected slot 2 with no configured tgs to deny everything")
	}
	if s.SlotAllowed(3, 9) {
		t.Fatalf("expected invalid slot number to deny")
	}
}

func TestSession_NotConnectedRejectsSend(t *testing.T) {
	s := New(Config{Name: "test", RadioID: 312000}, testLogger())
	if err := s.Send([]byte("x")); err == nil {
		t.Fatalf("expected send to fail before connect")
	}
}

func TestSession_IDAndInitialState(t *testing.T) {
	s := New(Config{Name: "test", RadioID: 312000}, testLogger())
	if s.ID() != 312000 {
		t.Fatalf("expected ID to echo configured radio id")
	}
	if s.Connected() {
		t.Fatalf("expected session to start disconnected")
	}
	if s.State() != StateDisconnected {
		t.Fatalf("expected initial state disconnected, got %v", s.State())
	}
}

func TestState_String(t *testing.T) {
	cases := map[State]string{
		StateDisconnected: "disconnected",
		StateConnecting:   "connecting",
		StateAuthSent:     "auth_sent",
		StateConfigSent:   "config_sent",
		StateOptionsSent:  "options_sent",
		StateConnected:    "connected",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
