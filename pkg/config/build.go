package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hbp4/hbp4/pkg/events"
	"github.com/hbp4/hbp4/pkg/matcher"
	"github.com/hbp4/hbp4/pkg/outbound"
	"github.com/hbp4/hbp4/pkg/peer"
	"github.com/hbp4/hbp4/pkg/scheduler"
	"github.com/hbp4/hbp4/pkg/stream"
)

// BuildMatcher compiles the blacklist and repeater_configurations
// stanzas into a matcher.Matcher, with dir as the optional callsign
// fallback (may be nil for matcher.NopDirectory{}).
func BuildMatcher(cfg *Config, dir matcher.Directory) (*matcher.Matcher, error) {
	blacklist := make([]matcher.BlacklistEntry, 0, len(cfg.Blacklist.Patterns))
	for _, p := range cfg.Blacklist.Patterns {
		blacklist = append(blacklist, matcher.BlacklistEntry{
			Name:   p.Name,
			Match:  toMatch(p),
			Reason: p.Reason,
		})
	}

	patterns := make([]matcher.Pattern, 0, len(cfg.RepeaterConfigurations.Patterns))
	for i, p := range cfg.RepeaterConfigurations.Patterns {
		peerCfg, err := toPeerConfig(p)
		if err != nil {
			return nil, fmt.Errorf("repeater_configurations.patterns[%d]: %w", i, err)
		}
		patterns = append(patterns, matcher.Pattern{Match: toMatch(p), Config: peerCfg})
	}

	def, err := toPeerConfig(cfg.RepeaterConfigurations.Default)
	if err != nil {
		return nil, fmt.Errorf("repeater_configurations.default: %w", err)
	}

	return matcher.New(blacklist, patterns, def, dir)
}

func toMatch(p PatternConfig) matcher.Match {
	ranges := make([]matcher.IDRange, 0, len(p.IDRanges))
	for _, r := range p.IDRanges {
		ranges = append(ranges, matcher.IDRange{Start: r.Start, End: r.End})
	}
	return matcher.Match{
		IDs:       p.IDs,
		Ranges:    ranges,
		Callsigns: p.Callsigns,
	}
}

func toPeerConfig(p PatternConfig) (matcher.PeerConfig, error) {
	slot1, err := parseTalkgroupSpec(p.Slot1Talkgroups)
	if err != nil {
		return matcher.PeerConfig{}, fmt.Errorf("slot1_talkgroups: %w", err)
	}
	slot2, err := parseTalkgroupSpec(p.Slot2Talkgroups)
	if err != nil {
		return matcher.PeerConfig{}, fmt.Errorf("slot2_talkgroups: %w", err)
	}
	return matcher.PeerConfig{
		Name:       p.Name,
		Passphrase: p.Passphrase,
		Slot1:      slot1,
		Slot2:      slot2,
	}, nil
}

// parseTalkgroupSpec decodes a slot1_talkgroups/slot2_talkgroups value:
// either the literal string "unrestricted" or a JSON array of talkgroup
// IDs. Absent (nil) defaults to unrestricted so a pattern that omits the
// field doesn't silently deny every talkgroup.
func parseTalkgroupSpec(v interface{}) (*matcher.TalkgroupSet, error) {
	if v == nil {
		return matcher.NewUnrestrictedSet(), nil
	}
	if s, ok := v.(string); ok {
		if strings.EqualFold(s, "unrestricted") {
			return matcher.NewUnrestrictedSet(), nil
		}
		return nil, fmt.Errorf("unrecognized string value %q (expected \"unrestricted\")", s)
	}

	items, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected \"unrestricted\" or an array of talkgroup IDs, got %T", v)
	}
	ids := make([]uint32, 0, len(items))
	for _, item := range items {
		id, err := toUint32(item)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return matcher.NewTalkgroupSet(ids...), nil
}

func toUint32(v interface{}) (uint32, error) {
	switch n := v.(type) {
	case int:
		return uint32(n), nil
	case int64:
		return uint32(n), nil
	case uint32:
		return n, nil
	case uint64:
		return uint32(n), nil
	case float64:
		return uint32(n), nil
	default:
		return 0, fmt.Errorf("expected a numeric talkgroup ID, got %T", v)
	}
}

// BuildOutboundConfigs translates outbound_connections into the configs
// outbound.New needs; the caller constructs one Session per entry.
func BuildOutboundConfigs(cfg *Config) []outbound.Config {
	out := make([]outbound.Config, 0, len(cfg.OutboundConnections))
	for _, o := range cfg.OutboundConnections {
		pingInterval := cfg.Global.PingInterval()
		if o.PingTime > 0 {
			pingInterval = time.Duration(o.PingTime * float64(time.Second))
		}
		out = append(out, outbound.Config{
			Name:         o.Name,
			RadioID:      o.RadioID,
			MasterIP:     o.MasterIP,
			MasterPort:   o.MasterPort,
			Passphrase:   o.Passphrase,
			Callsign:     o.Callsign,
			RXFreq:       o.RXFreq,
			TXFreq:       o.TXFreq,
			TXPower:      o.TXPower,
			ColorCode:    o.ColorCode,
			Latitude:     o.Latitude,
			Longitude:    o.Longitude,
			Height:       o.Height,
			Location:     o.Location,
			Description:  o.Description,
			URL:          o.URL,
			SoftwareID:   o.SoftwareID,
			PackageID:    o.PackageID,
			Slot1TGs:     o.Slot1Talkgroups,
			Slot2TGs:     o.Slot2Talkgroups,
			PingInterval: pingInterval,
			MaxMissed:    cfg.Global.MaxMissedPings,
		})
	}
	return out
}

// BuildPackageDetector builds the connection-type classifier from
// connection_type_detection.
func BuildPackageDetector(cfg *Config) peer.PackageDetector {
	return peer.PackageDetector{
		HotspotPackages:  cfg.ConnectionTypeDetection.HotspotPackages,
		NetworkPackages:  cfg.ConnectionTypeDetection.NetworkPackages,
		RepeaterPackages: cfg.ConnectionTypeDetection.RepeaterPackages,
	}
}

// BuildEventsConfig translates the event_emitter stanza.
func BuildEventsConfig(cfg *Config) events.Config {
	return events.Config{
		Enabled:    cfg.EventEmitter.Enabled,
		Transport:  cfg.EventEmitter.Transport,
		Host:       cfg.EventEmitter.Host,
		Port:       cfg.EventEmitter.Port,
		UnixSocket: cfg.EventEmitter.UnixSocket,
	}
}

// BuildStreamConfig translates the global timing stanza into the stream
// engine's config.
func BuildStreamConfig(cfg *Config) stream.Config {
	return stream.Config{
		HangTime:      cfg.Global.HangTimeDuration(),
		StreamTimeout: cfg.Global.StreamTimeoutDuration(),
		UserCacheTTL:  cfg.Global.UserCacheTimeoutDuration(),
	}
}

// BuildSchedulerConfig translates the global timing stanza into the
// scheduler's config.
func BuildSchedulerConfig(cfg *Config) scheduler.Config {
	return scheduler.Config{
		Keepalive: cfg.Global.PingInterval(),
		MaxMissed: cfg.Global.MaxMissedPings,
	}
}
