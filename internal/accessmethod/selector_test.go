package accessmethod

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/tunnelkeep/tunnelkeepd/internal/tunnelparams"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func runSelector(t *testing.T, cfg Config) (*Selector, context.CancelFunc) {
	t.Helper()
	sel := New(cfg, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go sel.Run(ctx)
	t.Cleanup(cancel)
	return sel, cancel
}

func ackEvents(ctx context.Context, sel *Selector) {
	go func() {
		for {
			select {
			case ev, ok := <-sel.Events():
				if !ok {
					return
				}
				close(ev.Done)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func TestSelectorGetDefaultsToDirect(t *testing.T) {
	sel, _ := runSelector(t, Config{})
	mode, err := sel.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if mode.Setting.ID != "direct" {
		t.Errorf("Get().Setting.ID = %q, want %q", mode.Setting.ID, "direct")
	}
}

func TestSelectorUseSwitchesToEnabledSetting(t *testing.T) {
	sel, _ := runSelector(t, Config{})
	if err := sel.Use(context.Background(), "bridges"); err != nil {
		t.Fatalf("Use() error = %v", err)
	}
	mode, err := sel.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if mode.Setting.ID != "bridges" {
		t.Errorf("Get().Setting.ID = %q, want %q", mode.Setting.ID, "bridges")
	}
}

func TestSelectorUseUnknownIDFails(t *testing.T) {
	sel, _ := runSelector(t, Config{})
	if err := sel.Use(context.Background(), "nope"); err != ErrUnknownSetting {
		t.Errorf("Use() error = %v, want ErrUnknownSetting", err)
	}
}

func TestSelectorUseIgnoresDisabledSetting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sel, _ := runSelector(t, Config{})
	ackEvents(ctx, sel)

	custom := []Setting{{ID: "ss1", Name: "ss1", Enabled: false, Method: Method{Kind: MethodShadowsocks, Shadowsocks: &ShadowsocksParams{}}}}
	if err := sel.Update(ctx, custom); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := sel.Use(ctx, "ss1"); err != nil {
		t.Fatalf("Use() error = %v", err)
	}
	mode, err := sel.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if mode.Setting.ID == "ss1" {
		t.Error("Use() switched to a disabled setting")
	}
}

func TestSelectorRotateAdvancesCyclically(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sel, _ := runSelector(t, Config{})
	ackEvents(ctx, sel)

	mode, err := sel.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if mode.Setting.ID != "direct" {
		t.Fatalf("initial setting = %q, want direct", mode.Setting.ID)
	}

	if err := sel.Rotate(ctx); err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	mode, err = sel.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if mode.Setting.ID != "bridges" {
		t.Errorf("after Rotate() setting = %q, want bridges", mode.Setting.ID)
	}

	if err := sel.Rotate(ctx); err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	mode, err = sel.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if mode.Setting.ID != "direct" {
		t.Errorf("after second Rotate() setting = %q, want direct (wrap around)", mode.Setting.ID)
	}
}

func TestSelectorRotateSkipsDisabled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sel, _ := runSelector(t, Config{})
	ackEvents(ctx, sel)

	custom := []Setting{{ID: "ss1", Name: "ss1", Enabled: false, Method: Method{Kind: MethodShadowsocks, Shadowsocks: &ShadowsocksParams{}}}}
	if err := sel.Update(ctx, custom); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := sel.Rotate(ctx); err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	mode, err := sel.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if mode.Setting.ID != "bridges" {
		t.Errorf("Rotate() landed on %q, want bridges (ss1 disabled)", mode.Setting.ID)
	}
}

func TestSelectorRotateIncrementsGeneration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sel, _ := runSelector(t, Config{})
	ackEvents(ctx, sel)

	if err := sel.RotateIfGeneration(ctx, 0); err != nil {
		t.Fatalf("RotateIfGeneration() error = %v", err)
	}
	if sel.generation != 1 {
		t.Errorf("generation = %d, want 1", sel.generation)
	}

	// A stale generation (0) must not trigger a second rotation now that
	// generation is 1.
	if err := sel.RotateIfGeneration(ctx, 0); err != nil {
		t.Fatalf("RotateIfGeneration() error = %v", err)
	}
	if sel.generation != 1 {
		t.Errorf("generation = %d after stale RotateIfGeneration, want still 1", sel.generation)
	}
}

func TestSelectorUpdateRotatesAwayFromRemovedCurrent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sel, _ := runSelector(t, Config{})
	ackEvents(ctx, sel)

	custom := []Setting{{ID: "ss1", Name: "ss1", Enabled: true, Method: Method{Kind: MethodShadowsocks, Shadowsocks: &ShadowsocksParams{Endpoint: mustEndpoint()}}}}
	if err := sel.Update(ctx, custom); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := sel.Use(ctx, "ss1"); err != nil {
		t.Fatalf("Use() error = %v", err)
	}

	// Removing ss1 from the known set must rotate away from it.
	if err := sel.Update(ctx, nil); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	mode, err := sel.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if mode.Setting.ID == "ss1" {
		t.Error("Update() left the selector on a removed setting")
	}
}

func TestSelectorForceDirectAlwaysResolvesDirect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sel, _ := runSelector(t, Config{ForceDirect: true})
	ackEvents(ctx, sel)

	if err := sel.Use(ctx, "bridges"); err != nil {
		t.Fatalf("Use() error = %v", err)
	}
	if err := sel.Rotate(ctx); err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	mode, err := sel.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if mode.Setting.ID != "direct" {
		t.Errorf("ForceDirect Get().Setting.ID = %q, want direct", mode.Setting.ID)
	}
}

func TestSelectorResolveDoesNotSwitchCurrent(t *testing.T) {
	sel, _ := runSelector(t, Config{})
	custom := Setting{ID: "ss1", Name: "ss1", Enabled: true, Method: Method{Kind: MethodShadowsocks, Shadowsocks: &ShadowsocksParams{Endpoint: mustEndpoint()}}}

	mode, err := sel.Resolve(context.Background(), custom)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if mode.Setting.ID != "ss1" {
		t.Errorf("Resolve().Setting.ID = %q, want ss1", mode.Setting.ID)
	}

	current, err := sel.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if current.Setting.ID != "direct" {
		t.Errorf("Resolve() switched the active setting to %q", current.Setting.ID)
	}
}

func TestSelectorResolveMissingParamsFails(t *testing.T) {
	sel, _ := runSelector(t, Config{})
	bad := Setting{ID: "ss1", Name: "ss1", Enabled: true, Method: Method{Kind: MethodShadowsocks}}
	if _, err := sel.Resolve(context.Background(), bad); err == nil {
		t.Error("Resolve() error = nil, want error for missing shadowsocks params")
	}
}

func mustEndpoint() tunnelparams.Endpoint {
	return tunnelparams.Endpoint{Address: "10.0.0.1", Port: 443, Protocol: "tcp"}
}

func TestSelectorGetContextCancelled(t *testing.T) {
	sel := New(Config{}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := sel.Get(ctx); err == nil {
		t.Error("Get() with cancelled context and no running actor should error")
	}
}
