//go:build linux

package route

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"syscall"

	"github.com/vishvananda/netlink"
)

// NetlinkController implements Controller using Linux netlink. Entries whose
// Node.IsDefault is set are re-resolved and re-pinned whenever the system's
// default route changes, via a single worker goroutine consuming
// netlink.RouteSubscribe updates.
type NetlinkController struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	routes  map[string]Node // prefix -> node as last installed
	closeCh chan struct{}
	doneCh  chan struct{}
}

// NewNetlinkController returns a new NetlinkController.
func NewNetlinkController(cfg Config, logger *slog.Logger) *NetlinkController {
	cfg.ApplyDefaults()
	return &NetlinkController{
		cfg:    cfg,
		logger: logger.With("component", "route"),
		routes: make(map[string]Node),
	}
}

// AddRoutes installs routes for each prefix -> node pairing. Idempotent:
// adding an already-installed route returns nil. Default-node entries are
// resolved against the current default route and tracked for re-pinning.
func (c *NetlinkController) AddRoutes(routes map[string]Node) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for prefix, node := range routes {
		resolved := node
		if node.IsDefault {
			real, err := c.resolveDefault(prefix)
			if err != nil {
				return fmt.Errorf("route: add routes: resolve default for %q: %w", prefix, err)
			}
			resolved = real
		}

		if err := c.install(prefix, resolved); err != nil {
			return fmt.Errorf("route: add routes: %q via %q: %w", prefix, resolved.Device, err)
		}

		c.routes[prefix] = node // keep the caller's original (possibly IsDefault) intent
	}

	if c.hasDefaultRoutesLocked() && c.doneCh == nil {
		c.startTrackerLocked()
	}
	return nil
}

// ClearRoutes removes every route this controller has added.
func (c *NetlinkController) ClearRoutes() error {
	c.mu.Lock()
	routes := c.routes
	c.routes = make(map[string]Node)
	done := c.doneCh
	closeCh := c.closeCh
	c.doneCh = nil
	c.closeCh = nil
	c.mu.Unlock()

	if closeCh != nil {
		close(closeCh)
		<-done
	}

	for prefix, node := range routes {
		if err := c.remove(prefix, node); err != nil {
			c.logger.Warn("failed to remove route", "prefix", prefix, "error", err)
		}
	}
	return nil
}

func (c *NetlinkController) hasDefaultRoutesLocked() bool {
	for _, n := range c.routes {
		if n.IsDefault {
			return true
		}
	}
	return false
}

// resolveDefault finds the lowest-metric default route for the prefix's
// address family and returns a concrete Node pointing at it.
func (c *NetlinkController) resolveDefault(prefix string) (Node, error) {
	family, err := familyForPrefix(prefix)
	if err != nil {
		return Node{}, err
	}

	routes, err := netlink.RouteList(nil, family)
	if err != nil {
		return Node{}, fmt.Errorf("list routes: %w", err)
	}

	var best *netlink.Route
	for i := range routes {
		r := routes[i]
		if r.Dst != nil {
			continue // not a default route
		}
		if best == nil || r.Priority < best.Priority {
			best = &routes[i]
		}
	}
	if best == nil {
		return Node{}, errors.New("no default route found")
	}

	link, err := netlink.LinkByIndex(best.LinkIndex)
	if err != nil {
		return Node{}, fmt.Errorf("lookup link for default route: %w", err)
	}

	gw := best.Gw
	if gw == nil {
		gw = best.Src
	}
	return Node{RealIP: gw, Device: link.Attrs().Name, IsDefault: true}, nil
}

func familyForPrefix(prefix string) (int, error) {
	_, dst, err := net.ParseCIDR(prefix)
	if err != nil {
		return 0, fmt.Errorf("parse CIDR %q: %w", prefix, err)
	}
	if dst.IP.To4() != nil {
		return netlink.FAMILY_V4, nil
	}
	return netlink.FAMILY_V6, nil
}

func (c *NetlinkController) install(prefix string, node Node) error {
	_, dst, err := net.ParseCIDR(prefix)
	if err != nil {
		return fmt.Errorf("parse CIDR %q: %w", prefix, err)
	}

	link, err := netlink.LinkByName(node.Device)
	if err != nil {
		return fmt.Errorf("lookup interface %q: %w", node.Device, err)
	}

	r := &netlink.Route{
		Dst:       dst,
		LinkIndex: link.Attrs().Index,
		Table:     c.cfg.Table,
	}
	if node.RealIP != nil {
		r.Gw = node.RealIP
	} else {
		r.Scope = netlink.SCOPE_LINK
	}

	if err := netlink.RouteReplace(r); err != nil {
		if errors.Is(err, syscall.EEXIST) {
			return nil
		}
		return err
	}
	return nil
}

func (c *NetlinkController) remove(prefix string, node Node) error {
	_, dst, err := net.ParseCIDR(prefix)
	if err != nil {
		return fmt.Errorf("route: remove: parse CIDR %q: %w", prefix, err)
	}

	link, err := netlink.LinkByName(node.Device)
	if err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		return fmt.Errorf("route: remove: lookup interface %q: %w", node.Device, err)
	}

	r := &netlink.Route{Dst: dst, LinkIndex: link.Attrs().Index, Table: c.cfg.Table}
	if err := netlink.RouteDel(r); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		return fmt.Errorf("route: remove %q via %q: %w", prefix, node.Device, err)
	}
	return nil
}

// startTrackerLocked starts the worker goroutine that re-resolves and
// re-pins default-route entries when the system default route changes.
// Caller must hold c.mu.
func (c *NetlinkController) startTrackerLocked() {
	updates := make(chan netlink.RouteUpdate)
	closeCh := make(chan struct{})
	done := make(chan struct{})
	c.closeCh = closeCh
	c.doneCh = done

	if err := netlink.RouteSubscribe(updates, closeCh); err != nil {
		c.logger.Warn("failed to subscribe to route updates, default-route tracking disabled", "error", err)
		close(done)
		c.doneCh = nil
		c.closeCh = nil
		return
	}

	go c.track(updates, done)
}

// track consumes route update notifications and re-pins every
// default-tracking entry whenever the default route itself changes.
func (c *NetlinkController) track(updates <-chan netlink.RouteUpdate, done chan<- struct{}) {
	defer close(done)
	for u := range updates {
		if u.Route.Dst != nil {
			continue // not a default-route change
		}
		c.repin()
	}
}

func (c *NetlinkController) repin() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for prefix, node := range c.routes {
		if !node.IsDefault {
			continue
		}
		resolved, err := c.resolveDefault(prefix)
		if err != nil {
			c.logger.Warn("failed to resolve new default route", "prefix", prefix, "error", err)
			continue
		}
		if err := c.install(prefix, resolved); err != nil {
			c.logger.Warn("failed to re-pin route after default-route change", "prefix", prefix, "error", err)
			continue
		}
		c.logger.Info("route re-pinned after default-route change", "prefix", prefix, "device", resolved.Device)
	}
}
