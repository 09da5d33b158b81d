package cmd

import "testing"

func TestKernelVersion(t *testing.T) {
	v := kernelVersion()
	if v == "" {
		t.Fatal("kernelVersion() returned an empty string")
	}
}

func TestSetupLogger_Levels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", ""} {
		if l := setupLogger(level); l == nil {
			t.Errorf("setupLogger(%q) returned nil", level)
		}
	}
}
