package config

import "fmt"

// validate checks required fields and valid ranges, reporting the exact
// field path on failure per spec.md §7's "exit 1 with explicit field
// path" requirement.
func validate(cfg *Config) error {
	if cfg.Global.BindPort <= 0 || cfg.Global.BindPort > 65535 {
		return fmt.Errorf("global.bind_port: must be between 1 and 65535, got %d", cfg.Global.BindPort)
	}
	if cfg.Global.PingTime <= 0 {
		return fmt.Errorf("global.ping_time: must be positive, got %v", cfg.Global.PingTime)
	}
	if cfg.Global.MaxMissedPings <= 0 {
		return fmt.Errorf("global.max_missed_pings: must be positive, got %d", cfg.Global.MaxMissedPings)
	}
	if cfg.Global.StreamTimeout <= 0 {
		return fmt.Errorf("global.stream_timeout: must be positive, got %v", cfg.Global.StreamTimeout)
	}
	if cfg.Global.HangTime <= 0 {
		return fmt.Errorf("global.hang_time: must be positive, got %v", cfg.Global.HangTime)
	}
	if cfg.Global.UserCacheTimeout <= 0 {
		return fmt.Errorf("global.user_cache_timeout: must be positive, got %v", cfg.Global.UserCacheTimeout)
	}

	for i, p := range cfg.Blacklist.Patterns {
		if err := validatePattern(p, false); err != nil {
			return fmt.Errorf("blacklist.patterns[%d]: %w", i, err)
		}
	}

	for i, p := range cfg.RepeaterConfigurations.Patterns {
		if err := validatePattern(p, true); err != nil {
			return fmt.Errorf("repeater_configurations.patterns[%d]: %w", i, err)
		}
	}
	if err := validatePattern(cfg.RepeaterConfigurations.Default, true); err != nil {
		return fmt.Errorf("repeater_configurations.default: %w", err)
	}

	for i, o := range cfg.OutboundConnections {
		if o.RadioID == 0 {
			return fmt.Errorf("outbound_connections[%d].radio_id: is required", i)
		}
		if o.MasterIP == "" {
			return fmt.Errorf("outbound_connections[%d].master_ip: is required", i)
		}
		if o.MasterPort <= 0 || o.MasterPort > 65535 {
			return fmt.Errorf("outbound_connections[%d].master_port: must be between 1 and 65535", i)
		}
		if o.Passphrase == "" {
			return fmt.Errorf("outbound_connections[%d].passphrase: is required", i)
		}
	}

	if cfg.EventEmitter.Enabled {
		switch cfg.EventEmitter.Transport {
		case "unix":
			if cfg.EventEmitter.UnixSocket == "" {
				return fmt.Errorf("event_emitter.unix_socket: is required when transport is unix")
			}
		case "tcp":
			if cfg.EventEmitter.Port <= 0 || cfg.EventEmitter.Port > 65535 {
				return fmt.Errorf("event_emitter.port: must be between 1 and 65535 when transport is tcp")
			}
		default:
			return fmt.Errorf("event_emitter.transport: must be \"unix\" or \"tcp\", got %q", cfg.EventEmitter.Transport)
		}
	}

	if cfg.Metrics.Enabled && (cfg.Metrics.Port <= 0 || cfg.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port: must be between 1 and 65535, got %d", cfg.Metrics.Port)
	}

	if cfg.UserDirectory.Enabled && cfg.UserDirectory.CSVPath == "" {
		return fmt.Errorf("user_directory.csv_path: is required when user_directory is enabled")
	}

	return nil
}

// validatePattern is intentionally lenient about which match kind is
// present — a pattern with no ids/id_ranges/callsigns matches nothing,
// which is a no-op rather than an error, mirroring the matcher's own OR-
// across-kinds semantics.
func validatePattern(p PatternConfig, needsConfig bool) error {
	for i, r := range p.IDRanges {
		if r.Start > r.End {
			return fmt.Errorf("id_ranges[%d]: start %d > end %d", i, r.Start, r.End)
		}
	}
	if needsConfig && p.Passphrase == "" {
		return fmt.Errorf("passphrase: is required")
	}
	return nil
}
