package network

import (
	"github.com/hbp4/hbp4/pkg/outbound"
	"github.com/hbp4/hbp4/pkg/peer"
	"github.com/hbp4/hbp4/pkg/stream"
)

// roster combines the inbound peer registry and the configured outbound
// sessions into a single stream.Roster, so the stream engine can route to
// either kind of connection without knowing which direction it originated
// from.
type roster struct {
	peers    *peer.Manager
	outbound []*outbound.Session
}

func (r *roster) Peers() []stream.Peer {
	all := r.peers.All()
	out := make([]stream.Peer, 0, len(all)+len(r.outbound))
	for _, p := range all {
		out = append(out, p)
	}
	for _, o := range r.outbound {
		out = append(out, o)
	}
	return out
}
