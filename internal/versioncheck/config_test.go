package versioncheck

import "testing"

func TestConfigApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	if cfg.Fresh != DefaultFresh {
		t.Errorf("Fresh = %v, want %v", cfg.Fresh, DefaultFresh)
	}
	if cfg.ErrorRetry != DefaultErrorRetry {
		t.Errorf("ErrorRetry = %v, want %v", cfg.ErrorRetry, DefaultErrorRetry)
	}
	if cfg.ImmediateRetries != DefaultImmediateRetries {
		t.Errorf("ImmediateRetries = %d, want %d", cfg.ImmediateRetries, DefaultImmediateRetries)
	}
	if cfg.MailboxSize != DefaultMailboxSize {
		t.Errorf("MailboxSize = %d, want %d", cfg.MailboxSize, DefaultMailboxSize)
	}
}

func TestConfigValidateRequiresCacheDir(t *testing.T) {
	cfg := Config{}
	if err := cfg.Validate(); err != errCacheDirRequired {
		t.Errorf("Validate() error = %v, want errCacheDirRequired", err)
	}
}
