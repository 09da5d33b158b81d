//go:build linux

package route

import (
	"io"
	"log/slog"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Compile-time check that NetlinkController implements Controller.
var _ Controller = (*NetlinkController)(nil)

func TestNewNetlinkController(t *testing.T) {
	ctrl := NewNetlinkController(Config{}, discardLogger())
	if ctrl == nil {
		t.Fatal("NewNetlinkController returned nil")
	}
	if ctrl.routes == nil {
		t.Fatal("routes map is nil")
	}
}

func TestAddRoutesInvalidCIDR(t *testing.T) {
	ctrl := NewNetlinkController(Config{}, discardLogger())

	err := ctrl.AddRoutes(map[string]Node{"not-a-cidr": {Device: "lo"}})
	if err == nil {
		t.Fatal("expected error for invalid CIDR")
	}
	expected := "route: add routes:"
	if !strings.HasPrefix(err.Error(), expected) {
		t.Errorf("expected error prefix %q, got %q", expected, err.Error())
	}
}

func TestAddRoutesNonExistentInterface(t *testing.T) {
	ctrl := NewNetlinkController(Config{}, discardLogger())

	err := ctrl.AddRoutes(map[string]Node{"10.99.0.0/24": {Device: "tunnelkeep-nonexistent"}})
	if err == nil {
		t.Fatal("expected error for non-existent interface")
	}
	expected := "route: add routes:"
	if !strings.HasPrefix(err.Error(), expected) {
		t.Errorf("expected error prefix %q, got %q", expected, err.Error())
	}
}

func TestAddAndClearRoutesRoundTrip(t *testing.T) {
	ctrl := NewNetlinkController(Config{}, discardLogger())

	routes := map[string]Node{"10.88.0.0/24": {Device: "lo"}}

	if err := ctrl.AddRoutes(routes); err != nil {
		t.Skipf("skipping: requires elevated privileges: %v", err)
	}

	// Adding again should be idempotent.
	if err := ctrl.AddRoutes(routes); err != nil {
		t.Fatalf("second AddRoutes failed: %v", err)
	}

	if err := ctrl.ClearRoutes(); err != nil {
		t.Fatalf("ClearRoutes failed: %v", err)
	}

	// Clearing again should be idempotent.
	if err := ctrl.ClearRoutes(); err != nil {
		t.Fatalf("second ClearRoutes failed: %v", err)
	}
}

func TestFamilyForPrefix(t *testing.T) {
	tests := []struct {
		prefix  string
		wantErr bool
	}{
		{"10.0.0.0/8", false},
		{"fd00::/8", false},
		{"not-a-cidr", true},
	}
	for _, tt := range tests {
		_, err := familyForPrefix(tt.prefix)
		if tt.wantErr && err == nil {
			t.Errorf("familyForPrefix(%q) expected error", tt.prefix)
		}
		if !tt.wantErr && err != nil {
			t.Errorf("familyForPrefix(%q) unexpected error: %v", tt.prefix, err)
		}
	}
}
