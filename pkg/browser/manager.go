package browser

import "sync"

// Manager tracks the live browsers owned by in-flight tasks so a shutting
// down process can tear them down instead of leaking remote sessions.
type Manager struct {
	browsers map[string]Browser
	mu       sync.Mutex
}

// NewManager creates an empty registry.
func NewManager() *Manager {
	return &Manager{browsers: make(map[string]Browser)}
}

// Register records the browser owned by taskID. The task remains the
// owner; the manager only keeps a teardown handle.
func (m *Manager) Register(taskID string, b Browser) {
	if m == nil || b == nil {
		return
	}
	m.mu.Lock()
	m.browsers[taskID] = b
	m.mu.Unlock()
}

// Release forgets the browser for taskID. Called by the owning task after
// its own teardown.
func (m *Manager) Release(taskID string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	delete(m.browsers, taskID)
	m.mu.Unlock()
}

// Active returns the number of registered browsers.
func (m *Manager) Active() int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.browsers)
}

// Close closes every registered browser. Close errors are collapsed to the
// last one; shutdown must not mask earlier task outcomes.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	browsers := make([]Browser, 0, len(m.browsers))
	for _, b := range m.browsers {
		browsers = append(browsers, b)
	}
	m.browsers = make(map[string]Browser)
	m.mu.Unlock()

	var lastErr error
	for _, b := range browsers {
		if err := b.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
