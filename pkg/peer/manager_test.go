package peer

import (
	"net"
	"testing"
)

func TestManager_PutAndGet(t *testing.T) {
	mgr := NewManager()
	addr := &net.UDPAddr{IP: net.ParseIP("192.168.1.100"), Port: 62031}
	s := New(312000, addr, 1, "s3cret")

	mgr.Put(s)

	if mgr.Count() != 1 {
		t.Errorf("expected 1 peer, got %d", mgr.Count())
	}
	if got := mgr.Get(312000); got != s {
		t.Error("Get did not return the session that was Put")
	}
	if got := mgr.Get(999999); got != nil {
		t.Error("expected nil for unknown radio id")
	}
}

func TestManager_Remove(t *testing.T) {
	mgr := NewManager()
	addr := &net.UDPAddr{IP: net.ParseIP("192.168.1.100"), Port: 62031}
	mgr.Put(New(312000, addr, 1, "s3cret"))

	mgr.Remove(312000)

	if mgr.Count() != 0 {
		t.Errorf("expected 0 peers after remove, got %d", mgr.Count())
	}
}

func TestManager_VerifySource(t *testing.T) {
	mgr := NewManager()
	addrA := &net.UDPAddr{IP: net.ParseIP("192.168.1.100"), Port: 62031}
	addrB := &net.UDPAddr{IP: net.ParseIP("192.168.1.200"), Port: 62031}
	mgr.Put(New(312000, addrA, 1, "s3cret"))

	if !mgr.VerifySource(312000, addrA) {
		t.Error("expected matching address to verify")
	}
	if mgr.VerifySource(312000, addrB) {
		t.Error("expected different address to fail verification")
	}
	if !mgr.VerifySource(999999, addrB) {
		t.Error("expected unknown radio id to verify (nothing to take over)")
	}
}

func TestManager_All(t *testing.T) {
	mgr := NewManager()
	addr := &net.UDPAddr{IP: net.ParseIP("192.168.1.100"), Port: 62031}
	mgr.Put(New(1, addr, 1, "a"))
	mgr.Put(New(2, addr, 1, "b"))

	all := mgr.All()
	if len(all) != 2 {
		t.Errorf("expected 2 sessions, got %d", len(all))
	}
}
