package stream

import (
	"sync"
	"time"

	"github.com/hbp4/hbp4/pkg/protocol"
)

// slotKey identifies one (owner, slot) pair. A slot holds at most one
// Stream at a time, whether it is the owning peer's own admitted stream
// or an "assumed" copy installed to reserve a target's slot.
type slotKey struct {
	OwnerID uint32
	Slot    int
}

// Engine is the stream lifecycle state machine (C6) plus the user routing
// cache (C7) it consults for private calls.
type Engine struct {
	mu    sync.Mutex
	slots map[slotKey]*Stream

	roster Roster
	cache  *UserCache
	sink   EventSink
	metrics Metrics

	hangTime      time.Duration
	streamTimeout time.Duration

	updateEvery uint64
}

// Config controls Engine timing. Defaults match spec.md's stated
// defaults when zero.
type Config struct {
	HangTime         time.Duration
	StreamTimeout    time.Duration
	UserCacheTTL     time.Duration
	UpdateEveryNPkts uint64
}

func New(roster Roster, cfg Config, sink EventSink, metrics Metrics) *Engine {
	if cfg.HangTime <= 0 {
		cfg.HangTime = 10 * time.Second
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = 2 * time.Second
	}
	if cfg.UserCacheTTL <= 0 {
		cfg.UserCacheTTL = 600 * time.Second
	}
	if cfg.UpdateEveryNPkts == 0 {
		cfg.UpdateEveryNPkts = 60
	}
	if sink == nil {
		sink = nopSink{}
	}
	return &Engine{
		slots:         make(map[slotKey]*Stream),
		roster:        roster,
		cache:         NewUserCache(cfg.UserCacheTTL),
		sink:          sink,
		metrics:       metrics,
		hangTime:      cfg.HangTime,
		streamTimeout: cfg.StreamTimeout,
		updateEvery:   cfg.UpdateEveryNPkts,
	}
}

func (e *Engine) UserCache() *UserCache { return e.cache }

// Admit evaluates a DMRD packet's (rf_src, dst_id, stream_id) against the
// owning peer's current slot occupancy per the admit pseudocode in
// spec.md §4.5. On a fresh start it computes and caches the routing set,
// installs assumed records on every target's slot, and emits stream_start.
// Rejected packets return (nil, false) and must be dropped silently.
func (e *Engine) Admit(ownerID uint32, slot int, rfSrc, dstID, streamID uint32, callType int, ber, rssi *uint8, now time.Time) (*Stream, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := slotKey{ownerID, slot}
	cur := e.slots[key]

	if cur == nil || cur.Ended() {
		if cur != nil && !cur.HangTimeCompatible(rfSrc, dstID, e.hangTime, now) {
			return nil, false // hijack attempt during hang time
		}
		stream := e.startLocked(ownerID, slot, rfSrc, dstID, streamID, callType, ber, rssi, now)
		return stream, true
	}

	if streamID == cur.StreamID {
		return cur, true // continuation of the active stream
	}

	return nil, false // a different stream already owns this slot
}

func (e *Engine) startLocked(ownerID uint32, slot int, rfSrc, dstID, streamID uint32, callType int, ber, rssi *uint8, now time.Time) *Stream {
	s := &Stream{
		StreamID:  streamID,
		RFSrc:     rfSrc,
		DstID:     dstID,
		CallType:  callType,
		OwnerID:   ownerID,
		Slot:      slot,
		StartTime: now,
		LastSeen:  now,
		Active:    true,
		BER:       ber,
		RSSI:      rssi,
	}

	targets := e.computeTargetsLocked(ownerID, slot, rfSrc, dstID, callType, now)
	s.Routing = targets
	s.RoutingCached = true

	e.slots[slotKey{ownerID, slot}] = s
	for _, t := range targets {
		assumed := *s
		assumed.IsAssumed = true
		e.slots[slotKey{t, slot}] = &assumed
	}

	if callType == protocol.CallTypeGroup {
		e.cache.Update(rfSrc, ownerID, slot, dstID, now)
	}

	if e.metrics != nil {
		e.metrics.StreamStarted(streamID)
	}
	payload := map[string]any{
		"peer_id":   ownerID,
		"slot":      slot,
		"rf_src":    rfSrc,
		"dst_id":    dstID,
		"stream_id": streamID,
		"call_type": callTypeLabel(callType),
	}
	if ber != nil {
		payload["ber"] = *ber
	}
	if rssi != nil {
		payload["rssi"] = *rssi
	}
	e.sink.Emit("stream_start", payload)

	return s
}

func (e *Engine) computeTargetsLocked(ownerID uint32, slot int, rfSrc, dstID uint32, callType int, now time.Time) []uint32 {
	var targets []uint32
	for _, p := range e.roster.Peers() {
		if p.ID() == ownerID || !p.Connected() {
			continue
		}

		if cur := e.slots[slotKey{p.ID(), slot}]; cur != nil {
			if cur.Active {
				continue
			}
			if !cur.HangTimeCompatible(rfSrc, dstID, e.hangTime, now) {
				continue
			}
		}

		if callType == protocol.CallTypeGroup {
			if !p.SlotAllowed(slot, dstID) {
				continue
			}
		} else {
			owner, ok := e.cache.PeerFor(dstID, now)
			if !ok || owner != p.ID() {
				continue
			}
		}

		targets = append(targets, p.ID())
	}
	return targets
}

// Forward sends a verbatim packet to every target in the cached routing
// set, swallowing per-target send failures, and emits a periodic
// stream_update. Callers pass the Stream returned by a prior Admit call.
func (e *Engine) Forward(s *Stream, data []byte, ber, rssi *uint8, now time.Time) {
	e.mu.Lock()
	s.Packets++
	s.LastSeen = now
	if ber != nil {
		s.BER = ber
	}
	if rssi != nil {
		s.RSSI = rssi
	}
	packets := s.Packets
	routing := s.Routing
	curBER, curRSSI := s.BER, s.RSSI
	e.mu.Unlock()

	byID := make(map[uint32]Peer, len(routing))
	for _, p := range e.roster.Peers() {
		byID[p.ID()] = p
	}
	for _, id := range routing {
		if p, ok := byID[id]; ok {
			_ = p.Send(data) // transient send failures are swallowed; ping timeout alone removes a peer
		}
	}

	if packets%e.updateEvery == 0 {
		payload := map[string]any{
			"peer_id":   s.OwnerID,
			"slot":      s.Slot,
			"stream_id": s.StreamID,
			"packets":   packets,
		}
		if curBER != nil {
			payload["ber"] = *curBER
		}
		if curRSSI != nil {
			payload["rssi"] = *curRSSI
		}
		e.sink.Emit("stream_update", payload)
	}
}

// Terminate ends a stream on receipt of an explicit terminator frame.
func (e *Engine) Terminate(ownerID uint32, slot int, now time.Time) {
	e.end(ownerID, slot, "terminator", now)
}

// TimeoutSweep ends any active stream whose owner has gone silent past
// stream_timeout, called from the scheduler's periodic sweep.
func (e *Engine) TimeoutSweep(now time.Time) {
	e.mu.Lock()
	var stale []*Stream
	for key, s := range e.slots {
		if s.Active && !s.IsAssumed && now.Sub(s.LastSeen) > e.streamTimeout && key.OwnerID == s.OwnerID {
			stale = append(stale, s)
		}
	}
	e.mu.Unlock()

	for _, s := range stale {
		e.end(s.OwnerID, s.Slot, "timeout", now)
	}
}

func (e *Engine) end(ownerID uint32, slot int, reason string, now time.Time) {
	e.mu.Lock()
	key := slotKey{ownerID, slot}
	s := e.slots[key]
	if s == nil || !s.Active || s.IsAssumed {
		e.mu.Unlock()
		return
	}
	s.Active = false
	s.EndTime = now
	for _, t := range s.Routing {
		if assumed := e.slots[slotKey{t, slot}]; assumed != nil && assumed.StreamID == s.StreamID {
			assumed.Active = false
			assumed.EndTime = now
		}
	}
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.StreamEnded(s.StreamID)
	}
	e.sink.Emit("stream_end", map[string]any{
		"peer_id":     ownerID,
		"slot":        slot,
		"stream_id":   s.StreamID,
		"end_reason":  reason,
		"duration":    s.Duration().Seconds(),
		"packets":     s.Packets,
		"hang_time":   e.hangTime.Seconds(),
	})
}

// HangTimeSweep drops every stream (and its assumed copies) whose hang
// time has lapsed, freeing the slot. Called every 100ms by the
// scheduler.
func (e *Engine) HangTimeSweep(now time.Time) {
	e.mu.Lock()
	var expired []*Stream
	seen := make(map[uint32]bool)
	for key, s := range e.slots {
		if s.Active || seen[s.StreamID] || key.OwnerID != s.OwnerID || s.IsAssumed {
			continue
		}
		if now.Sub(s.EndTime) >= e.hangTime {
			expired = append(expired, s)
			seen[s.StreamID] = true
		}
	}
	for _, s := range expired {
		delete(e.slots, slotKey{s.OwnerID, s.Slot})
		for _, t := range s.Routing {
			if assumed := e.slots[slotKey{t, s.Slot}]; assumed != nil && assumed.StreamID == s.StreamID {
				delete(e.slots, slotKey{t, s.Slot})
			}
		}
	}
	e.mu.Unlock()

	for _, s := range expired {
		e.sink.Emit("hang_time_expired", map[string]any{
			"peer_id":   s.OwnerID,
			"slot":      s.Slot,
			"stream_id": s.StreamID,
		})
	}
}

// SlotBusy reports whether ownerID's slot is currently occupied (active
// or within hang time) — used for event-payload slot-occupancy reporting.
func (e *Engine) SlotBusy(ownerID uint32, slot int, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.slots[slotKey{ownerID, slot}]
	if s == nil {
		return false
	}
	if s.Active {
		return true
	}
	return now.Sub(s.EndTime) < e.hangTime
}

// ReleasePeer force-ends any active stream owned by ownerID on either
// slot, called by the scheduler when a peer is reaped for missed
// keepalives — the peer is gone, so its slots must not wait out a normal
// timeout or hang-time window.
func (e *Engine) ReleasePeer(ownerID uint32, now time.Time) {
	e.end(ownerID, 1, "peer_timeout", now)
	e.end(ownerID, 2, "peer_timeout", now)
}

// ActiveStreams returns a snapshot of every currently-active, non-assumed
// stream, used by the event emitter's connect-time resync.
func (e *Engine) ActiveStreams() []*Stream {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Stream, 0)
	for key, s := range e.slots {
		if s.Active && !s.IsAssumed && key.OwnerID == s.OwnerID {
			out = append(out, s)
		}
	}
	return out
}
