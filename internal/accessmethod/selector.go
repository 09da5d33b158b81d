package accessmethod

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tunnelkeep/tunnelkeepd/internal/firewall"
)

// ErrUnknownSetting is returned by Use when no setting matches the given id.
var ErrUnknownSetting = errors.New("accessmethod: unknown setting id")

// ErrNoEnabledSetting is returned by Rotate when no enabled setting remains
// to rotate to.
var ErrNoEnabledSetting = errors.New("accessmethod: no enabled setting")

var directSetting = Setting{ID: "direct", Name: "Direct", Enabled: true, Method: Method{Kind: MethodDirect}}
var bridgesSetting = Setting{ID: "bridges", Name: "Bridges", Enabled: true, Method: Method{Kind: MethodBridges}}

// command is the private mailbox message type the Selector actor consumes.
type command interface {
	isCommand()
}

type getCmd struct {
	reply chan ResolvedConnectionMode
}

func (getCmd) isCommand() {}

type useCmd struct {
	id    string
	reply chan error
}

func (useCmd) isCommand() {}

type rotateCmd struct {
	ifGeneration bool
	generation   uint64
	reply        chan error
}

func (rotateCmd) isCommand() {}

type updateCmd struct {
	settings []Setting
	reply    chan error
}

func (updateCmd) isCommand() {}

type resolveResult struct {
	mode ResolvedConnectionMode
	err  error
}

type resolveCmd struct {
	setting Setting
	reply   chan resolveResult
}

func (resolveCmd) isCommand() {}

// Selector is the Access-Method Selector actor. It owns the set of known
// access methods and the index of the one currently in use, and rotates
// among enabled methods on demand. All state is only ever touched from the
// actor goroutine started by Run.
type Selector struct {
	cfg     Config
	logger  *slog.Logger
	mailbox chan command
	events  chan Event

	custom     []Setting
	index      int
	generation uint64
}

// New creates a Selector. Call Run to start its actor goroutine.
func New(cfg Config, logger *slog.Logger) *Selector {
	cfg.ApplyDefaults()
	return &Selector{
		cfg:     cfg,
		logger:  logger.With("component", "accessmethod"),
		mailbox: make(chan command, cfg.MailboxSize),
		events:  make(chan Event, 1),
		index:   0,
	}
}

// Events returns the channel Rotate emits on. The daemon's firewall-update
// handler must read it and close Event.Done once the new AllowedEndpoint is
// committed.
func (s *Selector) Events() <-chan Event {
	return s.events
}

// Run drives the actor loop until ctx is cancelled.
func (s *Selector) Run(ctx context.Context) {
	s.logger.Info("access method selector started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("access method selector stopped")
			return
		case cmd := <-s.mailbox:
			s.handle(ctx, cmd)
		}
	}
}

func (s *Selector) handle(ctx context.Context, cmd command) {
	switch c := cmd.(type) {
	case getCmd:
		mode, err := s.resolveCurrent()
		if err != nil {
			// resolveSetting fails only for a custom method with missing
			// parameters or an unknown kind; Update stores custom
			// settings without checking them. Fall back to Direct.
			mode, _ = s.resolveSetting(directSetting)
		}
		c.reply <- mode
	case useCmd:
		c.reply <- s.use(c.id)
	case rotateCmd:
		if c.ifGeneration && c.generation != s.generation {
			c.reply <- nil
			return
		}
		c.reply <- s.rotate(ctx)
	case updateCmd:
		c.reply <- s.update(ctx, c.settings)
	case resolveCmd:
		mode, err := s.resolveSetting(c.setting)
		c.reply <- resolveResult{mode: mode, err: err}
	}
}

func (s *Selector) all() []Setting {
	out := make([]Setting, 0, len(s.custom)+2)
	out = append(out, directSetting, bridgesSetting)
	out = append(out, s.custom...)
	return out
}

func (s *Selector) current() Setting {
	all := s.all()
	if s.index < 0 || s.index >= len(all) {
		return directSetting
	}
	return all[s.index]
}

func (s *Selector) resolveCurrent() (ResolvedConnectionMode, error) {
	if s.cfg.ForceDirect {
		return s.resolveSetting(directSetting)
	}
	return s.resolveSetting(s.current())
}

func (s *Selector) use(id string) error {
	if s.cfg.ForceDirect {
		return nil
	}
	all := s.all()
	for i, st := range all {
		if st.ID != id {
			continue
		}
		if !st.Enabled {
			return nil
		}
		s.index = i
		return nil
	}
	return ErrUnknownSetting
}

// rotate advances to the next enabled setting cyclically, starting from
// index+1, and emits an Event on s.events. It blocks until the event is
// delivered and its Done channel is closed, or until ctx is cancelled.
func (s *Selector) rotate(ctx context.Context) error {
	if s.cfg.ForceDirect {
		return nil
	}
	all := s.all()
	if len(all) == 0 {
		return ErrNoEnabledSetting
	}
	for i := 1; i <= len(all); i++ {
		candidate := (s.index + i) % len(all)
		st := all[candidate]
		if !st.Enabled {
			continue
		}
		mode, err := s.resolveSetting(st)
		if err != nil {
			continue
		}
		s.index = candidate
		s.generation++
		done := make(chan struct{})
		select {
		case s.events <- Event{New: mode, Done: done}:
		case <-ctx.Done():
			return ctx.Err()
		}
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}
	return ErrNoEnabledSetting
}

func (s *Selector) update(ctx context.Context, settings []Setting) error {
	currentID := s.current().ID
	s.custom = append([]Setting(nil), settings...)

	all := s.all()
	for i, st := range all {
		if st.ID == currentID && st.Enabled {
			s.index = i
			return nil
		}
	}
	// Current setting was removed or disabled; rotate to the next one.
	return s.rotate(ctx)
}

func (s *Selector) resolveSetting(setting Setting) (ResolvedConnectionMode, error) {
	switch setting.Method.Kind {
	case MethodDirect:
		return ResolvedConnectionMode{
			Setting: setting,
			Mode:    ApiConnectionMode{Kind: MethodDirect},
			AllowedEndpoint: firewall.AllowedEndpoint{
				Clients: firewall.ClientsRoot,
			},
		}, nil
	case MethodBridges:
		return ResolvedConnectionMode{
			Setting: setting,
			Mode:    ApiConnectionMode{Kind: MethodBridges},
			AllowedEndpoint: firewall.AllowedEndpoint{
				Clients: firewall.ClientsRoot,
			},
		}, nil
	case MethodShadowsocks:
		p := setting.Method.Shadowsocks
		if p == nil {
			return ResolvedConnectionMode{}, fmt.Errorf("accessmethod: resolve %q: missing shadowsocks params", setting.ID)
		}
		return ResolvedConnectionMode{
			Setting: setting,
			Mode: ApiConnectionMode{
				Kind:        MethodShadowsocks,
				ProxyAddr:   p.Endpoint,
				Shadowsocks: p,
			},
			AllowedEndpoint: firewall.AllowedEndpoint{
				Endpoint: p.Endpoint,
				Clients:  firewall.ClientsRoot,
			},
		}, nil
	case MethodSocks5Local:
		p := setting.Method.Socks5Local
		if p == nil {
			return ResolvedConnectionMode{}, fmt.Errorf("accessmethod: resolve %q: missing socks5 local params", setting.ID)
		}
		return ResolvedConnectionMode{
			Setting: setting,
			Mode:    ApiConnectionMode{Kind: MethodSocks5Local, ProxyAddr: p.RemoteEndpoint},
			AllowedEndpoint: firewall.AllowedEndpoint{
				Endpoint: p.RemoteEndpoint,
				Clients:  firewall.ClientsRoot,
			},
		}, nil
	case MethodSocks5Remote:
		p := setting.Method.Socks5Remote
		if p == nil {
			return ResolvedConnectionMode{}, fmt.Errorf("accessmethod: resolve %q: missing socks5 remote params", setting.ID)
		}
		return ResolvedConnectionMode{
			Setting: setting,
			Mode:    ApiConnectionMode{Kind: MethodSocks5Remote, ProxyAddr: p.Endpoint},
			AllowedEndpoint: firewall.AllowedEndpoint{
				Endpoint: p.Endpoint,
				Clients:  firewall.ClientsRoot,
			},
		}, nil
	default:
		return ResolvedConnectionMode{}, fmt.Errorf("accessmethod: resolve %q: unknown method kind %d", setting.ID, setting.Method.Kind)
	}
}

// Get returns the currently resolved connection mode.
func (s *Selector) Get(ctx context.Context) (ResolvedConnectionMode, error) {
	reply := make(chan ResolvedConnectionMode, 1)
	select {
	case s.mailbox <- getCmd{reply: reply}:
	case <-ctx.Done():
		return ResolvedConnectionMode{}, ctx.Err()
	}
	select {
	case mode := <-reply:
		return mode, nil
	case <-ctx.Done():
		return ResolvedConnectionMode{}, ctx.Err()
	}
}

// Use switches the active setting to id. Does nothing if the setting is
// disabled; returns ErrUnknownSetting if no such id exists.
func (s *Selector) Use(ctx context.Context, id string) error {
	return s.send(ctx, func(reply chan error) command { return useCmd{id: id, reply: reply} })
}

// Rotate advances to the next enabled setting and emits an Event on the
// Events channel, waiting for the firewall-update ack before returning.
func (s *Selector) Rotate(ctx context.Context) error {
	return s.send(ctx, func(reply chan error) command { return rotateCmd{reply: reply} })
}

// RotateIfGeneration rotates only if the selector's generation counter is
// still g, so an in-flight request's failure does not leap over a
// rotation that already succeeded for a newer generation.
func (s *Selector) RotateIfGeneration(ctx context.Context, g uint64) error {
	return s.send(ctx, func(reply chan error) command {
		return rotateCmd{ifGeneration: true, generation: g, reply: reply}
	})
}

// Update replaces the set of custom methods. If the current method was
// removed or disabled by the update, the selector rotates to the next one.
func (s *Selector) Update(ctx context.Context, settings []Setting) error {
	return s.send(ctx, func(reply chan error) command { return updateCmd{settings: settings, reply: reply} })
}

// Resolve materializes a setting into a ResolvedConnectionMode without
// switching the selector's active setting.
func (s *Selector) Resolve(ctx context.Context, setting Setting) (ResolvedConnectionMode, error) {
	reply := make(chan resolveResult, 1)
	select {
	case s.mailbox <- resolveCmd{setting: setting, reply: reply}:
	case <-ctx.Done():
		return ResolvedConnectionMode{}, ctx.Err()
	}
	select {
	case res := <-reply:
		return res.mode, res.err
	case <-ctx.Done():
		return ResolvedConnectionMode{}, ctx.Err()
	}
}

func (s *Selector) send(ctx context.Context, build func(chan error) command) error {
	reply := make(chan error, 1)
	select {
	case s.mailbox <- build(reply):
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
