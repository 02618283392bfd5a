package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleConfig = `{
  "global": {
    "bind_ipv4": "0.0.0.0",
    "bind_port": 62031,
    "ping_time": 5,
    "max_missed_pings": 3,
    "stream_timeout": 2,
    "hang_time": 10,
    "user_cache_timeout": 600
  },
  "blacklist": {
    "patterns": [
      {"name": "known-bad", "ids": [9999999], "reason": "reported abuse"}
    ]
  },
  "repeater_configurations": {
    "patterns": [
      {
        "name": "local-cluster",
        "id_ranges": [{"start": 312000, "end": 312099}],
        "passphrase": "clustersecret",
        "slot1_talkgroups": [9, 3100],
        "slot2_talkgroups": "unrestricted"
      }
    ],
    "default": {
      "passphrase": "defaultsecret",
      "slot1_talkgroups": "unrestricted",
      "slot2_talkgroups": "unrestricted"
    }
  },
  "outbound_connections": [
    {
      "name": "upstream-1",
      "radio_id": 312999,
      "master_ip": "10.0.0.5",
      "master_port": 62031,
      "passphrase": "upstreamsecret",
      "callsign": "W1AW"
    }
  ],
  "connection_type_detection": {
    "hotspot_packages": ["MMDVM_HS"],
    "network_packages": ["ANDROID"]
  },
  "event_emitter": {
    "enabled": true,
    "transport": "unix",
    "unix_socket": "/tmp/hbp4-test.sock"
  },
  "metrics": {
    "enabled": true,
    "port": 9090
  }
}`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Global.BindPort != 62031 {
		t.Fatalf("expected bind_port 62031, got %d", cfg.Global.BindPort)
	}
	if len(cfg.RepeaterConfigurations.Patterns) != 1 {
		t.Fatalf("expected one repeater pattern")
	}
	if len(cfg.OutboundConnections) != 1 || cfg.OutboundConnections[0].RadioID != 312999 {
		t.Fatalf("unexpected outbound_connections: %+v", cfg.OutboundConnections)
	}
}

func TestLoad_InvalidBindPort(t *testing.T) {
	path := writeConfig(t, `{"global":{"bind_port":0,"ping_time":5,"max_missed_pings":3,"stream_timeout":2,"hang_time":10,"user_cache_timeout":600}}`)
	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error for bind_port 0")
	}
}

func TestLoad_OutboundMissingPassphrase(t *testing.T) {
	path := writeConfig(t, `{
  "global": {"bind_port": 62031, "ping_time": 5, "max_missed_pings": 3, "stream_timeout": 2, "hang_time": 10, "user_cache_timeout": 600},
  "outbound_connections": [{"name": "x", "radio_id": 1, "master_ip": "10.0.0.1", "master_port": 62031}]
}`)
	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error for missing outbound passphrase")
	}
}

func TestBuildMatcher_ResolvesSpecificityAndSlots(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	m, err := BuildMatcher(cfg, nil)
	if err != nil {
		t.Fatalf("BuildMatcher: %v", err)
	}

	result := m.Query(312050, "")
	if result.Blacklisted {
		t.Fatalf("expected 312050 not blacklisted")
	}
	if result.Config.Passphrase != "clustersecret" {
		t.Fatalf("expected local-cluster config to match by id_range, got %+v", result.Config)
	}
	if !result.Config.Slot1.Allows(9) || result.Config.Slot1.Allows(1) {
		t.Fatalf("expected slot1 allow-set restricted to {9,3100}, got %+v", result.Config.Slot1)
	}

	blk := m.Query(9999999, "")
	if !blk.Blacklisted {
		t.Fatalf("expected 9999999 blacklisted")
	}

	fallback := m.Query(1, "")
	if fallback.Config.Passphrase != "defaultsecret" {
		t.Fatalf("expected fallback to default config, got %+v", fallback.Config)
	}
}

func TestBuildOutboundConfigs(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	out := BuildOutboundConfigs(cfg)
	if len(out) != 1 || out[0].RadioID != 312999 || out[0].Callsign != "W1AW" {
		t.Fatalf("unexpected outbound configs: %+v", out)
	}
}
