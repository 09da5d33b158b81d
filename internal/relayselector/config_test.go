package relayselector

import "testing"

func TestConfigApplyDefaults(t *testing.T) {
	cfg := Config{TunnelIPv4: "10.64.0.2/32"}
	cfg.ApplyDefaults()
	if cfg.TunnelMTU != DefaultTunnelMTU {
		t.Errorf("TunnelMTU = %d, want %d", cfg.TunnelMTU, DefaultTunnelMTU)
	}
	if cfg.RelayPort != DefaultRelayPort {
		t.Errorf("RelayPort = %d, want %d", cfg.RelayPort, DefaultRelayPort)
	}
	if cfg.KeepaliveInterval != DefaultKeepaliveInterval {
		t.Errorf("KeepaliveInterval = %v, want %v", cfg.KeepaliveInterval, DefaultKeepaliveInterval)
	}
}

func TestConfigValidateRequiresTunnelIPv4(t *testing.T) {
	cfg := Config{}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() error = nil, want error for missing TunnelIPv4")
	}
}
