package hub

import (
	"sync"

	"github.com/google/uuid"

	"github.com/trackvote/internal/queue"
	"github.com/trackvote/pkg/errs"
)

// Manager routes requests to room hubs and owns their lifecycle.
type Manager struct {
	mu           sync.RWMutex
	hubs         map[uuid.UUID]*Hub
	notifier     Notifier
	historyLimit int
}

func NewManager(notifier Notifier, historyLimit int) *Manager {
	return &Manager{
		hubs:         make(map[uuid.UUID]*Hub),
		notifier:     notifier,
		historyLimit: historyLimit,
	}
}

// HistoryLimit returns the play-history capacity new stores get.
func (m *Manager) HistoryLimit() int {
	return m.historyLimit
}

// Open starts a hub for a freshly created room.
func (m *Manager) Open(roomID uuid.UUID) *Hub {
	return m.OpenWith(roomID, queue.New(m.historyLimit))
}

// OpenWith starts a hub over a pre-populated store, used when reloading
// persisted rooms at startup.
func (m *Manager) OpenWith(roomID uuid.UUID, store *queue.Store) *Hub {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.hubs[roomID]; ok {
		return existing
	}
	h := newHub(roomID, store, m.notifier)
	m.hubs[roomID] = h
	return h
}

// Get returns the hub for a live room. A missing hub means the room has
// been closed out from under the caller.
func (m *Manager) Get(roomID uuid.UUID) (*Hub, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, ok := m.hubs[roomID]
	if !ok {
		return nil, errs.Closed("room is closed")
	}
	return h, nil
}

// Close removes the room's hub from routing and drains it. Safe to call
// for rooms that never had a hub.
func (m *Manager) Close(roomID uuid.UUID) {
	m.mu.Lock()
	h, ok := m.hubs[roomID]
	delete(m.hubs, roomID)
	m.mu.Unlock()

	if ok {
		h.Close()
	}
}

// CloseAll drains every hub, used at shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	hubs := make([]*Hub, 0, len(m.hubs))
	for _, h := range m.hubs {
		hubs = append(hubs, h)
	}
	m.hubs = make(map[uuid.UUID]*Hub)
	m.mu.Unlock()

	for _, h := range hubs {
		h.Close()
	}
}
