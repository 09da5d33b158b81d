package daemon

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConfig_ApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.APIBaseURL = "https://api.tunnelkeep.example.com"
	cfg.ApplyDefaults()

	if cfg.LogLevel != DefaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, DefaultLogLevel)
	}
	if cfg.DataDir != DefaultDataDir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, DefaultDataDir)
	}
	if cfg.TunnelGateway != defaultTunnelGateway {
		t.Errorf("TunnelGateway = %q, want %q", cfg.TunnelGateway, defaultTunnelGateway)
	}
	if cfg.AllowedEndpointProtocol != "tcp" {
		t.Errorf("AllowedEndpointProtocol = %q, want %q", cfg.AllowedEndpointProtocol, "tcp")
	}
	if cfg.API.BaseURL != cfg.APIBaseURL {
		t.Errorf("API.BaseURL = %q, want %q", cfg.API.BaseURL, cfg.APIBaseURL)
	}
	if cfg.VersionCheck.CacheDir != cfg.DataDir {
		t.Errorf("VersionCheck.CacheDir = %q, want %q", cfg.VersionCheck.CacheDir, cfg.DataDir)
	}
}

func TestConfig_Validate_MissingAPIBaseURL(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing api_url")
	}
}

func TestConfig_Validate_InvalidLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.LogLevel = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid log_level")
	}
}

func TestConfig_AllowedEndpoint(t *testing.T) {
	cfg := validConfig()
	cfg.AllowedEndpointAddress = "203.0.113.5"
	cfg.AllowedEndpointPort = 443
	cfg.ApplyDefaults()

	ep := cfg.AllowedEndpoint()
	if ep.Endpoint.Address != "203.0.113.5" {
		t.Errorf("Endpoint.Address = %q, want %q", ep.Endpoint.Address, "203.0.113.5")
	}
	if ep.Endpoint.Port != 443 {
		t.Errorf("Endpoint.Port = %d, want %d", ep.Endpoint.Port, 443)
	}
	if ep.Endpoint.Protocol != "tcp" {
		t.Errorf("Endpoint.Protocol = %q, want %q", ep.Endpoint.Protocol, "tcp")
	}
}

func TestParseConfig_ValidYAML(t *testing.T) {
	yaml := `
log_level: debug
data_dir: /tmp/tunnelkeepd
api_url: "https://api.tunnelkeep.example.com"
allow_lan: true
block_when_disconnected: true
custom_dns_servers:
  - "1.1.1.1"
`
	path := writeTemp(t, yaml)
	cfg, err := ParseConfig(path)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if cfg.DataDir != "/tmp/tunnelkeepd" {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, "/tmp/tunnelkeepd")
	}
	if !cfg.AllowLAN {
		t.Error("AllowLAN = false, want true")
	}
	if len(cfg.CustomDNSServers) != 1 || cfg.CustomDNSServers[0] != "1.1.1.1" {
		t.Errorf("CustomDNSServers = %v, want [1.1.1.1]", cfg.CustomDNSServers)
	}
}

func TestParseConfig_MissingAPIURL(t *testing.T) {
	yaml := `
log_level: info
`
	path := writeTemp(t, yaml)
	_, err := ParseConfig(path)
	if err == nil {
		t.Fatal("expected error for missing api_url")
	}
}

func TestParseConfig_DefaultValues(t *testing.T) {
	yaml := `
api_url: "https://api.tunnelkeep.example.com"
`
	path := writeTemp(t, yaml)
	cfg, err := ParseConfig(path)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, DefaultLogLevel)
	}
	if cfg.DataDir != DefaultDataDir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, DefaultDataDir)
	}
	if cfg.RelaySelector.TunnelIPv4 == "" {
		t.Error("RelaySelector.TunnelIPv4 should have a default")
	}
}

func TestParseConfig_FileNotFound(t *testing.T) {
	_, err := ParseConfig("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for non-existent file")
	}
}

func TestParseConfig_InvalidYAML(t *testing.T) {
	path := writeTemp(t, "{{invalid yaml")
	_, err := ParseConfig(path)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestTrustedRelayListKey(t *testing.T) {
	logger := testLogger()

	if key := TrustedRelayListKey(logger, ""); key != nil {
		t.Errorf("empty key: got %v, want nil", key)
	}
	if key := TrustedRelayListKey(logger, "not-valid-base64!!"); key != nil {
		t.Errorf("invalid base64: got %v, want nil", key)
	}

	// 32 raw zero bytes, base64-encoded.
	valid := "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="
	key := TrustedRelayListKey(logger, valid)
	if key == nil {
		t.Fatal("valid key: got nil, want non-nil")
	}
}

// validConfig returns a Config that passes Validate after ApplyDefaults.
func validConfig() Config {
	var cfg Config
	cfg.APIBaseURL = "https://api.tunnelkeep.example.com"
	cfg.ApplyDefaults()
	return cfg
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
