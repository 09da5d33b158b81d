package accessmethod

import "testing"

func TestConfigApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	if cfg.MailboxSize != DefaultMailboxSize {
		t.Errorf("MailboxSize = %d, want %d", cfg.MailboxSize, DefaultMailboxSize)
	}
}

func TestConfigApplyDefaultsPreservesSetValue(t *testing.T) {
	cfg := Config{MailboxSize: 4}
	cfg.ApplyDefaults()
	if cfg.MailboxSize != 4 {
		t.Errorf("MailboxSize = %d, want 4", cfg.MailboxSize)
	}
}
