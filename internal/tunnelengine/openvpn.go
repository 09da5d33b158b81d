package tunnelengine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/tunnelkeep/tunnelkeepd/internal/tunnelparams"
)

// upMarker is the management-interface log line openvpn prints once the
// tunnel is fully established.
const upMarker = "Initialization Sequence Completed"

// openvpnHandle tracks one running openvpn process.
type openvpnHandle struct {
	cmd     *exec.Cmd
	exitCh  chan struct{}
	exitMu  sync.Mutex
	exitErr error
}

func (*openvpnHandle) isHandle() {}

// OpenVPNEngine implements Engine by shelling out to a pre-installed
// openvpn binary and watching its stdout for lifecycle markers. It does not
// reimplement the OpenVPN wire protocol.
type OpenVPNEngine struct {
	cfg    Config
	logger *slog.Logger
}

// NewOpenVPNEngine returns a new OpenVPNEngine.
func NewOpenVPNEngine(cfg Config, logger *slog.Logger) *OpenVPNEngine {
	cfg.ApplyDefaults()
	return &OpenVPNEngine{cfg: cfg, logger: logger.With("component", "tunnelengine", "protocol", "openvpn")}
}

// Start launches the openvpn binary against the given config file and
// watches its stdout for upMarker, which it treats as the EventUp signal.
func (e *OpenVPNEngine) Start(ctx context.Context, params tunnelparams.TunnelParameters, eventCb EventFunc, closeRx <-chan struct{}) (Handle, error) {
	ov := params.OpenVPN
	if ov == nil {
		return nil, fmt.Errorf("tunnelengine: openvpn: start: no OpenVPN parameters set")
	}

	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, e.cfg.OpenVPNBinary, "--config", ov.ConfigPath)
	cmd.WaitDelay = e.cfg.DieTimeout

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("tunnelengine: openvpn: start: stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("tunnelengine: openvpn: start: %w", err)
	}

	h := &openvpnHandle{cmd: cmd, exitCh: make(chan struct{})}

	go e.watchOutput(stdout, eventCb)
	go e.watchExit(h, cancel, eventCb)

	go func() {
		select {
		case <-closeRx:
			cancel()
		case <-h.exitCh:
		}
	}()

	e.logger.Info("openvpn process started", "config", ov.ConfigPath)
	return h, nil
}

// watchOutput scans the process's stdout for upMarker and fires EventUp the
// first time it appears. It does not parse anything else from the stream.
func (e *OpenVPNEngine) watchOutput(stdout io.Reader, eventCb EventFunc) {
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, upMarker) {
			if eventCb != nil {
				ack := make(chan struct{})
				eventCb(Event{Kind: EventUp, Ack: ack})
				<-ack
			}
			return
		}
	}
}

// watchExit waits for the process to exit and fires EventDown.
func (e *OpenVPNEngine) watchExit(h *openvpnHandle, cancel context.CancelFunc, eventCb EventFunc) {
	defer cancel()
	err := h.cmd.Wait()

	h.exitMu.Lock()
	h.exitErr = err
	h.exitMu.Unlock()
	close(h.exitCh)

	if eventCb != nil {
		ack := make(chan struct{})
		eventCb(Event{Kind: EventDown, Err: err, Ack: ack})
		<-ack
	}
}

// Wait blocks until the openvpn process exits.
func (e *OpenVPNEngine) Wait(h Handle) error {
	oh, ok := h.(*openvpnHandle)
	if !ok {
		return fmt.Errorf("tunnelengine: openvpn: wait: wrong handle type")
	}
	<-oh.exitCh
	oh.exitMu.Lock()
	defer oh.exitMu.Unlock()
	return oh.exitErr
}

// Kill sends SIGTERM and escalates to SIGKILL if the process has not
// exited within Config.DieTimeout.
func (e *OpenVPNEngine) Kill(h Handle) {
	oh, ok := h.(*openvpnHandle)
	if !ok {
		return
	}

	if oh.cmd.Process == nil {
		return
	}
	_ = oh.cmd.Process.Signal(syscall.SIGTERM)

	select {
	case <-oh.exitCh:
		return
	case <-time.After(e.cfg.DieTimeout):
	}

	_ = oh.cmd.Process.Kill()
	<-oh.exitCh
}

// GetStats is unsupported for OpenVPN tunnels: byte counters are only
// available through the management interface, which this thin wrapper
// does not connect to.
func (e *OpenVPNEngine) GetStats(h Handle) (PeerStats, error) {
	return PeerStats{}, fmt.Errorf("tunnelengine: openvpn: get stats: not supported")
}

// SetConfig is unsupported for OpenVPN tunnels: changing parameters
// requires a full reconnect.
func (e *OpenVPNEngine) SetConfig(h Handle, params tunnelparams.TunnelParameters) error {
	return fmt.Errorf("tunnelengine: openvpn: set config: not supported, reconnect required")
}
