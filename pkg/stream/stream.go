package stream

import (
	"time"

	"github.com/hbp4/hbp4/pkg/protocol"
)

// Stream is one continuous voice transmission on one (peer, slot). Once
// routing_cached is true the Routing slice is never recomputed, even if
// the peer roster changes mid-stream; departed targets are tolerated as
// send failures.
type Stream struct {
	StreamID uint32
	RFSrc    uint32
	DstID    uint32
	CallType int // protocol.CallTypeGroup or protocol.CallTypePrivate
	OwnerID  uint32
	Slot     int

	Packets   uint64
	StartTime time.Time
	LastSeen  time.Time
	EndTime   time.Time

	Active        bool
	RoutingCached bool
	Routing       []uint32

	// IsAssumed marks a copy of this Stream installed on a target peer's
	// slot to reserve it against back-propagation; it is the same
	// transmission, viewed from the target's occupancy bookkeeping.
	IsAssumed bool

	// RSSI/BER are populated only for the DroidStar/hotspot DMRD variant
	// that carries trailing signal-quality bytes.
	RSSI *uint8
	BER  *uint8
}

// Ended reports whether the stream has reached its terminator/timeout end.
func (s *Stream) Ended() bool { return !s.Active }

// HangTimeCompatible reports whether a new admission with the given
// rf_src/dst_id is compatible with this ended stream's hang-time window:
// the same source (continuing under a new stream_id) or the same
// destination (another user on the same talkgroup) may proceed; anything
// else is a hijack attempt and is rejected until the window lapses.
func (s *Stream) HangTimeCompatible(rfSrc, dstID uint32, hangTime time.Duration, now time.Time) bool {
	if now.Sub(s.EndTime) >= hangTime {
		return true // hang time has lapsed: slot is free, anything may start
	}
	return rfSrc == s.RFSrc || dstID == s.DstID
}

func (s *Stream) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

func callTypeLabel(ct int) string {
	if ct == protocol.CallTypePrivate {
		return "private"
	}
	return "group"
}
