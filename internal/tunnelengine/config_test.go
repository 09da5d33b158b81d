package tunnelengine

import "testing"

func TestConfigApplyDefaults(t *testing.T) {
	var c Config
	c.ApplyDefaults()
	if c.DieTimeout != DefaultDieTimeout {
		t.Errorf("DieTimeout = %v, want %v", c.DieTimeout, DefaultDieTimeout)
	}
	if c.InterfaceName == "" {
		t.Error("InterfaceName not defaulted")
	}
	if c.OpenVPNBinary == "" {
		t.Error("OpenVPNBinary not defaulted")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaulted", func() Config { var c Config; c.ApplyDefaults(); return c }(), false},
		{"zero die timeout", Config{InterfaceName: "wg-tk0"}, true},
		{"empty interface name", Config{DieTimeout: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatalf("Validate() error = nil, want error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("Validate() error = %v, want nil", err)
			}
		})
	}
}
