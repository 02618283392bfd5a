// Package testhelpers provides shared scaffolding for integration tests:
// a mock peer that speaks the login sequence over real UDP sockets, and a
// suite that wires up a real server instance bound to an ephemeral port.
package testhelpers

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/hbp4/hbp4/pkg/config"
	"github.com/hbp4/hbp4/pkg/counters"
	"github.com/hbp4/hbp4/pkg/logger"
	"github.com/hbp4/hbp4/pkg/matcher"
	"github.com/hbp4/hbp4/pkg/network"
	"github.com/hbp4/hbp4/pkg/peer"
	"github.com/hbp4/hbp4/pkg/scheduler"
	"github.com/hbp4/hbp4/pkg/stream"
)

// RecordingSink is an EventSink that appends every emitted event, for
// assertions in tests that need to observe what the server announced.
type RecordingSink struct {
	events []RecordedEvent
	lock   chan struct{}
}

// RecordedEvent is one captured Emit call.
type RecordedEvent struct {
	Type string
	Data map[string]any
}

// NewRecordingSink returns a ready-to-use RecordingSink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{lock: make(chan struct{}, 1)}
}

// Emit implements the EventSink shape every package declares locally.
func (r *RecordingSink) Emit(eventType string, data map[string]any) {
	r.lock <- struct{}{}
	r.events = append(r.events, RecordedEvent{Type: eventType, Data: data})
	<-r.lock
}

// Events returns a snapshot of every event recorded so far.
func (r *RecordingSink) Events() []RecordedEvent {
	r.lock <- struct{}{}
	defer func() { <-r.lock }()
	out := make([]RecordedEvent, len(r.events))
	copy(out, r.events)
	return out
}

// HasEventType reports whether any recorded event matches eventType.
func (r *RecordingSink) HasEventType(eventType string) bool {
	for _, e := range r.Events() {
		if e.Type == eventType {
			return true
		}
	}
	return false
}

// IntegrationSuite bundles the state a full-stack test needs: a running
// server, its peer registry, and lifecycle helpers.
type IntegrationSuite struct {
	T      *testing.T
	Config *config.Config
	Logger *logger.Logger
	Ctx    context.Context
	Cancel context.CancelFunc

	MockPeers []*MockPeer

	TestServer *TestServer
}

// NewIntegrationSuite creates an empty suite with a default config and a
// context cancelled on Cleanup.
func NewIntegrationSuite(t *testing.T) *IntegrationSuite {
	ctx, cancel := context.WithCancel(context.Background())
	return &IntegrationSuite{
		T:      t,
		Config: CreateDefaultConfig(),
		Logger: logger.New(logger.Config{Level: "error", Format: "text"}),
		Ctx:    ctx,
		Cancel: cancel,
	}
}

// CreateMockPeer builds a MockPeer and tracks it for cleanup.
func (s *IntegrationSuite) CreateMockPeer(peerID uint32, passphrase string, callsign string) *MockPeer {
	p := NewMockPeer(peerID, passphrase, callsign)
	s.MockPeers = append(s.MockPeers, p)
	return p
}

// GetFreePort binds a TCP listener on port 0 to discover a free port, then
// releases it. Races against whatever else might grab the port between
// release and the caller's own bind, but is the same tradeoff the rest of
// the ecosystem makes for this kind of test helper.
func GetFreePort() int {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// TestServer wraps a running network.Server plus the collaborators needed
// to drive it from a test (the peer registry, for post-hoc assertions).
type TestServer struct {
	Server *network.Server
	Peers  *peer.Manager
	Engine *stream.Engine
	Sink   *RecordingSink
	Addr   string

	cancel context.CancelFunc
	done   chan struct{}
}

// StartTestServer builds a real matcher/engine/registry/server/scheduler
// stack from cfg and serves it in the background on cfg.Global.BindPort
// (0 for an ephemeral port), returning once the server is listening.
func (s *IntegrationSuite) StartTestServer(cfg *config.Config) *TestServer {
	s.T.Helper()

	m, err := config.BuildMatcher(cfg, matcher.NopDirectory{})
	if err != nil {
		s.T.Fatalf("build matcher: %v", err)
	}

	countersStore, err := counters.Load("", time.Now())
	if err != nil {
		s.T.Fatalf("load counters: %v", err)
	}

	sink := NewRecordingSink()
	peers := peer.NewManager()
	roster := network.NewRoster(peers, nil)
	engine := stream.New(roster, config.BuildStreamConfig(cfg), sink, nil)
	detector := config.BuildPackageDetector(cfg)

	srv := network.New(network.Config{
		BindAddr: cfg.Global.BindIPv4,
		BindPort: cfg.Global.BindPort,
	}, peers, m, engine, detector, sink, nil, countersStore, s.Logger)

	sched := scheduler.New(config.BuildSchedulerConfig(cfg), peers, engine, nil, sink, countersStore, s.Logger)

	ctx, cancel := context.WithCancel(s.Ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Start(ctx)
	}()
	go sched.Run(ctx)

	ts := &TestServer{
		Server: srv,
		Peers:  peers,
		Engine: engine,
		Sink:   sink,
		Addr:   srv.Addr().String(),
		cancel: cancel,
		done:   done,
	}
	s.TestServer = ts
	return ts
}

// Stop cancels the server's context and waits for its listener to close.
func (ts *TestServer) Stop() {
	if ts == nil || ts.cancel == nil {
		return
	}
	ts.cancel()
	<-ts.done
}

// StopTestServer stops the suite's current test server, if any.
func (s *IntegrationSuite) StopTestServer() {
	if s.TestServer != nil {
		s.TestServer.Stop()
		s.TestServer = nil
	}
}

// Cleanup closes every mock peer, stops the test server, and cancels the
// suite's context. Safe to call multiple times.
func (s *IntegrationSuite) Cleanup() {
	for _, p := range s.MockPeers {
		p.Close()
	}
	s.StopTestServer()
	s.Cancel()
}

// WaitFor polls condition every 10ms until it returns true or timeout
// elapses, failing the test with message on timeout.
func (s *IntegrationSuite) WaitFor(condition func() bool, timeout time.Duration, message string) bool {
	s.T.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	s.T.Errorf("timed out waiting: %s", message)
	return false
}

// AssertEventually fails the test if condition doesn't become true within
// timeout.
func (s *IntegrationSuite) AssertEventually(condition func() bool, timeout time.Duration, message string) {
	s.T.Helper()
	if !s.WaitFor(condition, timeout, message) {
		s.T.Fatalf("assertion failed: %s", message)
	}
}

// CreateDefaultConfig returns a minimal valid configuration for tests: an
// unrestricted default repeater pattern, no blacklist, no outbound
// connections, and a bind port of 0 (ephemeral).
func CreateDefaultConfig() *config.Config {
	return &config.Config{
		Global: config.GlobalConfig{
			BindIPv4:         "127.0.0.1",
			BindPort:         0,
			LogLevel:         "error",
			PingTime:         5.0,
			MaxMissedPings:   3,
			StreamTimeout:    2.0,
			HangTime:         10.0,
			UserCacheTimeout: 600.0,
			CountersFile:     "",
		},
		RepeaterConfigurations: config.RepeaterConfigurations{
			Default: config.PatternConfig{
				Name:            "default",
				Passphrase:      "passw0rd",
				Slot1Talkgroups: "unrestricted",
				Slot2Talkgroups: "unrestricted",
			},
		},
	}
}
