// Package config loads and validates the relay's JSON configuration file
// (C10): global timing/bind settings, the blacklist and repeater access
// patterns the matcher compiles from, outbound upstream connections,
// connection-type detection, and the event/metrics/directory stanzas.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the raw, JSON-shaped configuration as loaded from disk,
// before the Build* functions in build.go turn it into the runtime types
// each package consumes.
type Config struct {
	Global                 GlobalConfig                 `mapstructure:"global"`
	Blacklist               BlacklistConfig              `mapstructure:"blacklist"`
	RepeaterConfigurations RepeaterConfigurations       `mapstructure:"repeater_configurations"`
	OutboundConnections    []OutboundConnectionConfig  `mapstructure:"outbound_connections"`
	ConnectionTypeDetection ConnectionTypeDetectionConfig `mapstructure:"connection_type_detection"`
	EventEmitter           EventEmitterConfig           `mapstructure:"event_emitter"`
	Metrics                MetricsConfig                `mapstructure:"metrics"`
	UserDirectory          UserDirectoryConfig           `mapstructure:"user_directory"`
}

type GlobalConfig struct {
	BindIPv4         string  `mapstructure:"bind_ipv4"`
	BindPort         int     `mapstructure:"bind_port"`
	LogLevel         string  `mapstructure:"log_level"`
	LogFile          string  `mapstructure:"log_file"`
	PingTime         float64 `mapstructure:"ping_time"`
	MaxMissedPings   int     `mapstructure:"max_missed_pings"`
	StreamTimeout    float64 `mapstructure:"stream_timeout"`
	HangTime         float64 `mapstructure:"hang_time"`
	UserCacheTimeout float64 `mapstructure:"user_cache_timeout"`
	CountersFile     string  `mapstructure:"counters_file"`
}

func (g GlobalConfig) PingInterval() time.Duration {
	return time.Duration(g.PingTime * float64(time.Second))
}

func (g GlobalConfig) StreamTimeoutDuration() time.Duration {
	return time.Duration(g.StreamTimeout * float64(time.Second))
}

func (g GlobalConfig) HangTimeDuration() time.Duration {
	return time.Duration(g.HangTime * float64(time.Second))
}

func (g GlobalConfig) UserCacheTimeoutDuration() time.Duration {
	return time.Duration(g.UserCacheTimeout * float64(time.Second))
}

// PatternConfig is one access-control pattern: the match kinds are OR'd
// together, per the matcher's specificity rules.
type PatternConfig struct {
	Name      string        `mapstructure:"name"`
	IDs       []uint32      `mapstructure:"ids"`
	IDRanges  []IDRangeConfig `mapstructure:"id_ranges"`
	Callsigns []string      `mapstructure:"callsigns"`

	// Blacklist-only.
	Reason string `mapstructure:"reason"`

	// Repeater-configuration-only. Slot1Talkgroups/Slot2Talkgroups is
	// either the literal string "unrestricted" or a JSON array of
	// talkgroup IDs.
	Passphrase      string      `mapstructure:"passphrase"`
	Slot1Talkgroups interface{} `mapstructure:"slot1_talkgroups"`
	Slot2Talkgroups interface{} `mapstructure:"slot2_talkgroups"`
}

type IDRangeConfig struct {
	Start uint32 `mapstructure:"start"`
	End   uint32 `mapstructure:"end"`
}

type BlacklistConfig struct {
	Patterns []PatternConfig `mapstructure:"patterns"`
}

type RepeaterConfigurations struct {
	Patterns []PatternConfig `mapstructure:"patterns"`
	Default  PatternConfig   `mapstructure:"default"`
}

type OutboundConnectionConfig struct {
	Name       string `mapstructure:"name"`
	RadioID    uint32 `mapstructure:"radio_id"`
	MasterIP   string `mapstructure:"master_ip"`
	MasterPort int    `mapstructure:"master_port"`
	Passphrase string `mapstructure:"passphrase"`

	Callsign    string `mapstructure:"callsign"`
	RXFreq      string `mapstructure:"rx_freq"`
	TXFreq      string `mapstructure:"tx_freq"`
	TXPower     string `mapstructure:"tx_power"`
	ColorCode   string `mapstructure:"color_code"`
	Latitude    string `mapstructure:"latitude"`
	Longitude   string `mapstructure:"longitude"`
	Height      string `mapstructure:"height"`
	Location    string `mapstructure:"location"`
	Description string `mapstructure:"description"`
	URL         string `mapstructure:"url"`
	SoftwareID  string `mapstructure:"software_id"`
	PackageID   string `mapstructure:"package_id"`

	Slot1Talkgroups []uint32 `mapstructure:"slot1_talkgroups"`
	Slot2Talkgroups []uint32 `mapstructure:"slot2_talkgroups"`

	PingTime float64 `mapstructure:"ping_time"`
}

type ConnectionTypeDetectionConfig struct {
	HotspotPackages  []string `mapstructure:"hotspot_packages"`
	NetworkPackages  []string `mapstructure:"network_packages"`
	RepeaterPackages []string `mapstructure:"repeater_packages"`
}

type EventEmitterConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Transport  string `mapstructure:"transport"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	UnixSocket string `mapstructure:"unix_socket"`
}

// MetricsConfig is the Prometheus exporter stanza (C11); additive to
// spec.md's documented keys.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// UserDirectoryConfig points at the optional radio_id->callsign CSV cache
// (C12); additive to spec.md's documented keys.
type UserDirectoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	CSVPath string `mapstructure:"csv_path"`
	DBPath  string `mapstructure:"db_path"`
}

// Load reads path (or the default search locations when path is empty),
// applies defaults, and validates the result. A configuration error here
// is always fatal — callers exit(1) on error per spec.md §6.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("json")
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/hbp4")
	}

	v.SetEnvPrefix("HBP4")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("global.bind_ipv4", "0.0.0.0")
	v.SetDefault("global.bind_port", 62031)
	v.SetDefault("global.log_level", "info")
	v.SetDefault("global.ping_time", 5.0)
	v.SetDefault("global.max_missed_pings", 3)
	v.SetDefault("global.stream_timeout", 2.0)
	v.SetDefault("global.hang_time", 10.0)
	v.SetDefault("global.user_cache_timeout", 600.0)
	v.SetDefault("global.counters_file", "counters.json")

	v.SetDefault("event_emitter.enabled", false)
	v.SetDefault("event_emitter.transport", "unix")
	v.SetDefault("event_emitter.unix_socket", "/var/run/hbp4-events.sock")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("user_directory.enabled", false)
}
