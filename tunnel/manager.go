package tunnel

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Manager keeps at most one open tunnel per key, typically an app name.
type Manager struct {
	mu      sync.Mutex
	opts    []Option
	tunnels map[string]*Tunnel
}

// NewManager returns a Manager that passes opts to every Open.
func NewManager(opts ...Option) *Manager {
	return &Manager{
		opts:    opts,
		tunnels: make(map[string]*Tunnel),
	}
}

// Open disposes any tunnel already registered under key, then opens a new one.
// On failure nothing is registered under key.
func (m *Manager) Open(key string, params SessionParams, remotePort, localPort int) (*Tunnel, error) {
	m.mu.Lock()
	prev := m.tunnels[key]
	delete(m.tunnels, key)
	m.mu.Unlock()
	if prev != nil {
		log.WithFields(log.Fields{
			"key":       key,
			"localPort": prev.LocalPort(),
		}).Info("Replacing tunnel")
		prev.Dispose()
	}

	t, err := Open(params, remotePort, localPort, m.opts...)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if raced := m.tunnels[key]; raced != nil {
		raced.Dispose()
	}
	m.tunnels[key] = t
	return t, nil
}

// Get returns the live tunnel for key. Tunnels that disposed themselves are dropped.
func (m *Manager) Get(key string) (*Tunnel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tunnels[key]
	if ok && t.IsDisposed() {
		delete(m.tunnels, key)
		return nil, false
	}
	return t, ok
}

// Dispose disposes and forgets the tunnel for key. Returns false if there was none.
func (m *Manager) Dispose(key string) bool {
	m.mu.Lock()
	t, ok := m.tunnels[key]
	delete(m.tunnels, key)
	m.mu.Unlock()
	if ok {
		t.Dispose()
	}
	return ok
}

func (m *Manager) DisposeAll() {
	m.mu.Lock()
	tunnels := m.tunnels
	m.tunnels = make(map[string]*Tunnel)
	m.mu.Unlock()
	for _, t := range tunnels {
		t.Dispose()
	}
}

// Ports maps each key to the local port of its live tunnel.
func (m *Manager) Ports() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	ports := make(map[string]int, len(m.tunnels))
	for key, t := range m.tunnels {
		if !t.IsDisposed() {
			ports[key] = t.LocalPort()
		}
	}
	return ports
}
