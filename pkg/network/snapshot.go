package network

import (
	"time"

	"github.com/hbp4/hbp4/pkg/events"
	"github.com/hbp4/hbp4/pkg/outbound"
	"github.com/hbp4/hbp4/pkg/peer"
	"github.com/hbp4/hbp4/pkg/stream"
)

// StateProvider satisfies events.StateProvider, replaying the relay's
// current state to a newly attached observer. Its references are filled
// in by Attach once the server, peer registry and stream engine exist —
// the emitter itself must be constructed first, since the stream engine
// depends on it as an EventSink.
type StateProvider struct {
	peers    *peer.Manager
	outbound []*outbound.Session
	engine   *stream.Engine
}

// NewStateProvider returns an empty provider ready for Attach.
func NewStateProvider() *StateProvider {
	return &StateProvider{}
}

// Attach wires the provider to the live registry, outbound sessions and
// stream engine. Must be called before any observer connects.
func (sp *StateProvider) Attach(peers *peer.Manager, outboundSessions []*outbound.Session, engine *stream.Engine) {
	sp.peers = peers
	sp.outbound = outboundSessions
	sp.engine = engine
}

// Snapshot implements events.StateProvider.
func (sp *StateProvider) Snapshot() []events.Event {
	now := time.Now()
	var out []events.Event

	if sp.peers != nil {
		for _, p := range sp.peers.All() {
			if p.State() != peer.StateConnected {
				continue
			}
			out = append(out, events.Event{
				Type:      "repeater_connected",
				Timestamp: now,
				Data: map[string]interface{}{
					"id":              p.RadioID,
					"callsign":        p.Callsign(),
					"connection_type": p.ConnectionType().String(),
				},
			})
			if cfg := p.RawConfig(); cfg != nil {
				out = append(out, events.Event{
					Type:      "repeater_details",
					Timestamp: now,
					Data:      repeaterDetails(p.RadioID, cfg, p.ConnectionType().String()),
				})
			}
		}
	}

	for _, o := range sp.outbound {
		if !o.Connected() {
			continue
		}
		out = append(out, events.Event{
			Type:      "outbound_connected",
			Timestamp: now,
			Data: map[string]interface{}{
				"id":   o.ID(),
				"name": o.Name(),
			},
		})
	}

	if sp.engine != nil {
		for _, s := range sp.engine.ActiveStreams() {
			out = append(out, events.Event{
				Type:      "stream_start",
				Timestamp: now,
				Data: map[string]interface{}{
					"peer_id":   s.OwnerID,
					"slot":      s.Slot,
					"rf_src":    s.RFSrc,
					"dst_id":    s.DstID,
					"stream_id": s.StreamID,
					"call_type": callTypeLabel(s.CallType),
				},
			})
		}
	}

	return out
}
