package stream

import (
	"errors"
	"sync"

	"alert-console/internal/logging"
	"alert-console/internal/models"
)

var errManagerClosed = errors.New("stream manager closed")

// Manager owns one detection client per watched camera.
type Manager struct {
	base   Config
	logger *logging.Logger

	mu      sync.Mutex
	clients map[string]*Client
	closed  bool
}

// NewManager builds a manager whose clients inherit base as their
// template; CameraID is filled per Watch call.
func NewManager(base Config, logger *logging.Logger) *Manager {
	return &Manager{
		base:    base,
		logger:  logger,
		clients: make(map[string]*Client),
	}
}

// Watch starts (or returns) the detection feed for a camera. Watching
// the same camera twice reuses the existing client.
func (m *Manager) Watch(cameraID string) (*Client, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, errManagerClosed
	}
	if c, ok := m.clients[cameraID]; ok {
		m.mu.Unlock()
		return c, nil
	}
	cfg := m.base
	cfg.CameraID = cameraID
	c := NewClient(cfg, m.logger)
	m.clients[cameraID] = c
	m.mu.Unlock()

	if err := c.Connect(); err != nil {
		return c, err
	}
	return c, nil
}

// Latest returns the newest frame for a camera, if it is watched.
func (m *Manager) Latest(cameraID string) (models.DetectionFrame, bool) {
	m.mu.Lock()
	c, ok := m.clients[cameraID]
	m.mu.Unlock()
	if !ok {
		return models.DetectionFrame{}, false
	}
	return c.Latest(), true
}

// Reset clears a tripped breaker and reconnects the camera's feed.
func (m *Manager) Reset(cameraID string) error {
	m.mu.Lock()
	c, ok := m.clients[cameraID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return c.Reset()
}

// Unwatch closes and forgets a camera's feed.
func (m *Manager) Unwatch(cameraID string) {
	m.mu.Lock()
	c, ok := m.clients[cameraID]
	delete(m.clients, cameraID)
	m.mu.Unlock()
	if ok {
		c.Close()
	}
}

// Cameras lists the watched camera ids.
func (m *Manager) Cameras() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.clients))
	for id := range m.clients {
		ids = append(ids, id)
	}
	return ids
}

// Close tears down every feed.
func (m *Manager) Close() {
	m.mu.Lock()
	clients := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.clients = make(map[string]*Client)
	m.closed = true
	m.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}
