package tunnelengine

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/tunnelkeep/tunnelkeepd/internal/tunnelparams"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Compile-time checks that both engines implement Engine.
var (
	_ Engine = (*OpenVPNEngine)(nil)
	_ Handle = (*openvpnHandle)(nil)
)

func TestOpenVPNEngineStartRequiresParams(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	eng := NewOpenVPNEngine(cfg, testLogger())

	_, err := eng.Start(context.Background(), tunnelparams.TunnelParameters{}, nil, nil)
	if err == nil {
		t.Fatal("expected error when OpenVPN parameters are nil")
	}
	if !strings.Contains(err.Error(), "no OpenVPN parameters set") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestOpenVPNEngineWatchOutputFiresEventUp(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	eng := NewOpenVPNEngine(cfg, testLogger())

	r, w := io.Pipe()
	go func() {
		_, _ = w.Write([]byte("some preamble\n"))
		_, _ = w.Write([]byte(upMarker + "\n"))
		w.Close()
	}()

	fired := make(chan Event, 1)
	done := make(chan struct{})
	go func() {
		eng.watchOutput(r, func(ev Event) {
			fired <- ev
			close(ev.Ack)
		})
		close(done)
	}()

	select {
	case ev := <-fired:
		if ev.Kind != EventUp {
			t.Errorf("event kind = %v, want EventUp", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for EventUp")
	}
	<-done
}

func TestOpenVPNEngineGetStatsUnsupported(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	eng := NewOpenVPNEngine(cfg, testLogger())

	_, err := eng.GetStats(&openvpnHandle{})
	if err == nil {
		t.Fatal("expected GetStats to be unsupported")
	}
}
