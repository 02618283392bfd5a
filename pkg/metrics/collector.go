// Package metrics exposes relay counters (C11) as Prometheus metrics:
// connected peers, packet/byte throughput, active voice streams, and
// active talkgroups-per-slot.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the Prometheus metric objects and the small amount of
// set-membership state (active peers/streams/talkgroups) a gauge can't
// track on its own — a gauge only knows Set/Inc/Dec, not "is this ID
// currently counted".
type Collector struct {
	mu sync.Mutex

	activePeers      map[uint32]struct{}
	activeStreams    map[uint32]struct{}
	activeTalkgroups map[string]struct{}

	peersTotal       prometheus.Counter
	peersActive      prometheus.Gauge
	packetsReceived  *prometheus.CounterVec
	packetsSent      *prometheus.CounterVec
	bytesReceived    prometheus.Counter
	bytesSent        prometheus.Counter
	streamsActive    prometheus.Gauge
	talkgroupsActive prometheus.Gauge
}

// NewCollector registers a fresh set of metric collectors against reg.
// Tests and the production wiring in cmd/hbp4 both pass a dedicated
// prometheus.NewRegistry() rather than the process default.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		activePeers:      make(map[uint32]struct{}),
		activeStreams:    make(map[uint32]struct{}),
		activeTalkgroups: make(map[string]struct{}),

		peersTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hbp4_peers_total",
			Help: "Total number of repeater/hotspot logins accepted.",
		}),
		peersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hbp4_peers_active",
			Help: "Number of currently connected repeaters/hotspots.",
		}),
		packetsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hbp4_packets_received_total",
			Help: "Total HBP packets received, by packet type.",
		}, []string{"type"}),
		packetsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hbp4_packets_sent_total",
			Help: "Total HBP packets sent, by packet type.",
		}, []string{"type"}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hbp4_bytes_received_total",
			Help: "Total bytes received from peers.",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hbp4_bytes_sent_total",
			Help: "Total bytes sent to peers.",
		}),
		streamsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hbp4_streams_active",
			Help: "Number of voice streams currently in progress.",
		}),
		talkgroupsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hbp4_talkgroups_active",
			Help: "Number of distinct (talkgroup, slot) pairs currently active.",
		}),
	}

	reg.MustRegister(
		c.peersTotal,
		c.peersActive,
		c.packetsReceived,
		c.packetsSent,
		c.bytesReceived,
		c.bytesSent,
		c.streamsActive,
		c.talkgroupsActive,
	)
	return c
}

// PeerConnected records a successful login.
func (c *Collector) PeerConnected(peerID uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peersTotal.Inc()
	if _, ok := c.activePeers[peerID]; !ok {
		c.activePeers[peerID] = struct{}{}
		c.peersActive.Set(float64(len(c.activePeers)))
	}
}

// PeerDisconnected records a logout or timeout reap.
func (c *Collector) PeerDisconnected(peerID uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.activePeers[peerID]; ok {
		delete(c.activePeers, peerID)
		c.peersActive.Set(float64(len(c.activePeers)))
	}
}

// PacketReceived increments the received-packet counter for packetType
// (e.g. "DMRD", "RPTL").
func (c *Collector) PacketReceived(packetType string) {
	c.packetsReceived.WithLabelValues(packetType).Inc()
}

// PacketSent increments the sent-packet counter for packetType.
func (c *Collector) PacketSent(packetType string) {
	c.packetsSent.WithLabelValues(packetType).Inc()
}

// BytesReceived adds n to the received-bytes counter.
func (c *Collector) BytesReceived(n uint64) {
	c.bytesReceived.Add(float64(n))
}

// BytesSent adds n to the sent-bytes counter.
func (c *Collector) BytesSent(n uint64) {
	c.bytesSent.Add(float64(n))
}

// StreamStarted satisfies stream.Metrics: a new voice transmission began.
func (c *Collector) StreamStarted(streamID uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.activeStreams[streamID]; !ok {
		c.activeStreams[streamID] = struct{}{}
		c.streamsActive.Set(float64(len(c.activeStreams)))
	}
}

// StreamEnded satisfies stream.Metrics: a voice transmission ended.
func (c *Collector) StreamEnded(streamID uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.activeStreams[streamID]; ok {
		delete(c.activeStreams, streamID)
		c.streamsActive.Set(float64(len(c.activeStreams)))
	}
}

// TalkgroupActive records a (talkgroup, slot) pair starting to carry
// traffic.
func (c *Collector) TalkgroupActive(tgid uint32, slot int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := talkgroupKey(tgid, slot)
	if _, ok := c.activeTalkgroups[key]; !ok {
		c.activeTalkgroups[key] = struct{}{}
		c.talkgroupsActive.Set(float64(len(c.activeTalkgroups)))
	}
}

// TalkgroupInactive records a (talkgroup, slot) pair falling silent.
func (c *Collector) TalkgroupInactive(tgid uint32, slot int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := talkgroupKey(tgid, slot)
	if _, ok := c.activeTalkgroups[key]; ok {
		delete(c.activeTalkgroups, key)
		c.talkgroupsActive.Set(float64(len(c.activeTalkgroups)))
	}
}

// ActivePeers returns the number of currently connected repeaters/hotspots.
func (c *Collector) ActivePeers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.activePeers)
}

// ActiveStreams returns the number of voice streams currently in progress.
func (c *Collector) ActiveStreams() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.activeStreams)
}

func talkgroupKey(tgid uint32, slot int) string {
	return string([]byte{byte(tgid >> 24), byte(tgid >> 16), byte(tgid >> 8), byte(tgid), byte(slot)})
}
