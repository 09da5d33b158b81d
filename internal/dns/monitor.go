package dns

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Monitor enforces a desired resolver list on every active network service
// and resists the OS overwriting it. It runs a single worker goroutine; the
// OS change-notification callback only enqueues a trigger and must never
// allocate or block.
type Monitor struct {
	store  Store
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	desired   ResolverConfig
	iface     string
	enforcing bool
	backup    map[string]*ResolverConfig // nil value = service had no config

	triggerCh chan struct{}
	doneCh    chan struct{}
}

// NewMonitor creates a Monitor over the given Store. Config defaults are
// applied automatically.
func NewMonitor(store Store, cfg Config, logger *slog.Logger) *Monitor {
	cfg.ApplyDefaults()
	return &Monitor{
		store:     store,
		cfg:       cfg,
		logger:    logger.With("component", "dns"),
		backup:    make(map[string]*ResolverConfig),
		triggerCh: make(chan struct{}, 1),
	}
}

// Set captures the current per-service DNS for every service not already
// under enforcement, writes the desired list to each service, and starts
// the debounce worker that resists subsequent OS-initiated changes.
func (m *Monitor) Set(iface string, cfg ResolverConfig) error {
	services, err := m.store.Services()
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.desired = cfg
	m.iface = iface
	for _, svc := range services {
		if _, backedUp := m.backup[svc]; backedUp {
			continue
		}
		current, err := m.store.Get(svc)
		if err == ErrNoConfig {
			m.backup[svc] = nil
		} else if err == nil {
			c := current
			m.backup[svc] = &c
		}
	}
	wasEnforcing := m.enforcing
	m.enforcing = true
	m.mu.Unlock()

	for _, svc := range services {
		if err := m.store.Set(svc, cfg); err != nil {
			m.logger.Warn("failed to apply DNS to service", "service", svc, "error", err)
		}
	}

	if !wasEnforcing {
		m.startWorker()
	}

	m.logger.Info("DNS applied", "interface", iface, "servers", cfg.Servers, "services", len(services))
	return nil
}

// OnChange is the OS change-notification callback. It must not allocate or
// block: it only posts a coalesced trigger to the worker goroutine.
func (m *Monitor) OnChange() {
	select {
	case m.triggerCh <- struct{}{}:
	default:
		// A trigger is already pending — coalesce.
	}
}

// Reset restores each backed-up service to its recorded prior value, or
// removes the DNS entry if the service originally had none. It stops the
// worker and clears the backup map on success.
func (m *Monitor) Reset() error {
	m.mu.Lock()
	backup := m.backup
	m.backup = make(map[string]*ResolverConfig)
	m.enforcing = false
	done := m.doneCh
	m.doneCh = nil
	m.mu.Unlock()

	if done != nil {
		close(done)
	}

	for svc, cfg := range backup {
		var err error
		if cfg == nil {
			err = m.store.Remove(svc)
		} else {
			err = m.store.Set(svc, *cfg)
		}
		if err != nil {
			m.logger.Warn("failed to restore DNS for service", "service", svc, "error", err)
		}
	}

	m.logger.Info("DNS reset", "services", len(backup))
	return nil
}

// startWorker launches the debounce worker goroutine. Caller must hold no locks.
func (m *Monitor) startWorker() {
	done := make(chan struct{})
	m.mu.Lock()
	m.doneCh = done
	m.mu.Unlock()
	go m.run(done)
}

// run implements the leading-delay-plus-hard-ceiling debounce: the first
// trigger after an idle period waits BurstDelay before applying, but a
// storm of triggers is never delayed past MaxDelay from the first trigger
// in the burst.
func (m *Monitor) run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-m.triggerCh:
		}

		burstStart := time.Now()
		timer := time.NewTimer(m.cfg.BurstDelay)

	debounce:
		for {
			select {
			case <-done:
				timer.Stop()
				return
			case <-m.triggerCh:
				elapsed := time.Since(burstStart)
				if elapsed >= m.cfg.MaxDelay {
					break debounce
				}
				if !timer.Stop() {
					<-timer.C
				}
				wait := m.cfg.BurstDelay
				if remaining := m.cfg.MaxDelay - elapsed; remaining < wait {
					wait = remaining
				}
				timer.Reset(wait)
			case <-timer.C:
				break debounce
			}
		}

		m.reapply()
	}
}

// reapply re-reads every service's actual DNS state and classifies each:
// services that already match the desired list are left untouched (no
// backup change); services with a different value have that value
// captured as the new backup and are overwritten with the desired list.
func (m *Monitor) reapply() {
	services, err := m.store.Services()
	if err != nil {
		m.logger.Warn("failed to list services during reapply", "error", err)
		return
	}

	m.mu.Lock()
	desired := m.desired
	m.mu.Unlock()

	for _, svc := range services {
		actual, err := m.store.Get(svc)
		var hadConfig bool
		if err == ErrNoConfig {
			hadConfig = false
		} else if err != nil {
			m.logger.Warn("failed to read DNS for service", "service", svc, "error", err)
			continue
		} else {
			hadConfig = true
		}

		if hadConfig && actual.Equal(desired) {
			// Matches desired already — no backup change, nothing to do.
			continue
		}

		m.mu.Lock()
		if hadConfig {
			c := actual
			m.backup[svc] = &c
		} else {
			m.backup[svc] = nil
		}
		m.mu.Unlock()

		if err := m.store.Set(svc, desired); err != nil {
			m.logger.Warn("failed to re-apply DNS for service", "service", svc, "error", err)
		} else {
			m.logger.Info("DNS re-applied after OS change", "service", svc)
		}
	}
}

// Wait blocks until ctx is cancelled. It exists so callers can bound the
// monitor's lifetime alongside other components in a select.
func (m *Monitor) Wait(ctx context.Context) {
	<-ctx.Done()
}
