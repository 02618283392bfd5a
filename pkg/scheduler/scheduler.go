// Package scheduler runs the single timer loop (C9) that services every
// periodic concern in the relay: dead-peer reaping, stream/hang-time
// expiry, outbound reconnects, and user-cache eviction. Concentrating
// these in one place (rather than a ticker per concern scattered across
// packages) keeps their relative cadences easy to reason about and
// matches the teacher's own single cleanupLoop pattern, generalized to
// more than one concern.
package scheduler

import (
	"context"
	"time"

	"github.com/hbp4/hbp4/pkg/counters"
	"github.com/hbp4/hbp4/pkg/logger"
	"github.com/hbp4/hbp4/pkg/outbound"
	"github.com/hbp4/hbp4/pkg/peer"
	"github.com/hbp4/hbp4/pkg/stream"
)

const (
	deadPeerInterval  = time.Second
	sweepInterval     = 100 * time.Millisecond
	userCacheInterval = 60 * time.Second
)

// Config bundles the durations scheduler needs to evaluate staleness;
// these mirror the global config stanza (ping_time, max_missed_pings).
type Config struct {
	Keepalive time.Duration
	MaxMissed int
}

type Scheduler struct {
	cfg      Config
	log      *logger.Logger
	peers    *peer.Manager
	engine   *stream.Engine
	outbound []*outbound.Session
	sink     stream.EventSink
	counters *counters.Store
}

func New(cfg Config, peers *peer.Manager, engine *stream.Engine, outboundSessions []*outbound.Session, sink stream.EventSink, store *counters.Store, log *logger.Logger) *Scheduler {
	if sink == nil {
		sink = noopSink{}
	}
	return &Scheduler{
		cfg:      cfg,
		log:      log.WithComponent("scheduler"),
		peers:    peers,
		engine:   engine,
		outbound: outboundSessions,
		sink:     sink,
		counters: store,
	}
}

type noopSink struct{}

func (noopSink) Emit(string, map[string]any) {}

// Run blocks until ctx is cancelled, driving every periodic concern and
// persisting counters once on the way out.
func (s *Scheduler) Run(ctx context.Context) {
	for _, o := range s.outbound {
		go o.Run(ctx)
	}

	go s.deadPeerLoop(ctx)
	go s.sweepLoop(ctx)
	go s.userCacheLoop(ctx)

	<-ctx.Done()

	if s.counters != nil {
		if err := s.counters.Persist(); err != nil {
			s.log.Error("failed to persist counters at shutdown", logger.Error(err))
		}
	}
}

func (s *Scheduler) deadPeerLoop(ctx context.Context) {
	ticker := time.NewTicker(deadPeerInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reapDeadPeers(time.Now())
		}
	}
}

func (s *Scheduler) reapDeadPeers(now time.Time) {
	for _, p := range s.peers.All() {
		if !p.IsDead(now, s.cfg.Keepalive, s.cfg.MaxMissed) {
			continue
		}
		p.SetState(peer.StateDead)
		s.engine.ReleasePeer(p.RadioID, now)
		s.peers.Remove(p.RadioID)
		s.sink.Emit("repeater_disconnected", map[string]any{
			"id":     p.RadioID,
			"reason": "timeout",
		})
		s.log.Info("reaped dead peer", logger.Uint32("radio_id", p.RadioID))
	}
}

func (s *Scheduler) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			s.engine.TimeoutSweep(now)
			s.engine.HangTimeSweep(now)
		}
	}
}

func (s *Scheduler) userCacheLoop(ctx context.Context) {
	ticker := time.NewTicker(userCacheInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := s.engine.UserCache().Sweep(time.Now())
			if removed > 0 {
				s.log.Debug("user cache sweep", logger.Int("removed", removed))
			}
		}
	}
}
