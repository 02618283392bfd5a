package scheduler

import (
	"net"
	"testing"
	"time"

	"github.com/hbp4/hbp4/pkg/counters"
	"github.com/hbp4/hbp4/pkg/logger"
	"github.com/hbp4/hbp4/pkg/peer"
	"github.com/hbp4/hbp4/pkg/stream"
)

type recordingSink struct {
	events []string
}

func (s *recordingSink) Emit(eventType string, data map[string]any) {
	s.events = append(s.events, eventType)
}

type emptyRoster struct{}

func (emptyRoster) Peers() []stream.Peer { return nil }

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error"})
}

func TestScheduler_ReapDeadPeers(t *testing.T) {
	addr := &net.UDPAddr{IP: net.ParseIP("10.0.0.1"), Port: 62031}
	alive := peer.New(312000, addr, 0xdeadbeef, "secret")
	alive.SetState(peer.StateConnected)
	alive.RecordPing(time.Now())

	stale := peer.New(312001, addr, 0xcafebabe, "secret")
	stale.SetState(peer.StateConnected)
	stale.RecordPing(time.Now().Add(-time.Hour))

	peers := peer.NewManager()
	peers.Put(alive)
	peers.Put(stale)

	engine := stream.New(emptyRoster{}, stream.Config{}, nil, nil)
	sink := &recordingSink{}

	store, err := counters.Load(t.TempDir()+"/counters.json", time.Now())
	if err != nil {
		t.Fatalf("counters.Load: %v", err)
	}

	s := New(Config{Keepalive: 5 * time.Second, MaxMissed: 3}, peers, engine, nil, sink, store, testLogger())
	s.reapDeadPeers(time.Now())

	if peers.Get(312001) != nil {
		t.Fatalf("expected stale peer reaped")
	}
	if peers.Get(312000) == nil {
		t.Fatalf("expected alive peer retained")
	}

	found := false
	for _, ev := range sink.events {
		if ev == "repeater_disconnected" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected repeater_disconnected event, got %v", sink.events)
	}
}
