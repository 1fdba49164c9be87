package notify

import "sync"

// Toast is a retained toast notification with its severity.
type Toast struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// maxRecentToasts bounds the toast ring buffer served to the UI.
const maxRecentToasts = 20

// Hub retains the latest connection and sync status for the UI status
// endpoint, forwarding every notification to an inner sink.
type Hub struct {
	inner Notifier

	mu                sync.RWMutex
	connection        ConnectionState
	connectionMessage string
	sync              SyncStatus
	toasts            []Toast
}

var _ Notifier = (*Hub)(nil)

// NewHub creates a Hub forwarding to inner.
func NewHub(inner Notifier) *Hub {
	return &Hub{
		inner:      inner,
		connection: ConnectionOffline,
		sync:       SyncStatus{Phase: SyncIdle},
	}
}

func (h *Hub) ConnectionStatus(state ConnectionState, message string) {
	h.mu.Lock()
	h.connection = state
	h.connectionMessage = message
	h.mu.Unlock()
	h.inner.ConnectionStatus(state, message)
}

func (h *Hub) SyncStatus(status SyncStatus) {
	h.mu.Lock()
	h.sync = status
	h.mu.Unlock()
	h.inner.SyncStatus(status)
}

func (h *Hub) Toast(severity Severity, message string) {
	h.mu.Lock()
	h.toasts = append(h.toasts, Toast{Severity: severity, Message: message})
	if len(h.toasts) > maxRecentToasts {
		h.toasts = h.toasts[len(h.toasts)-maxRecentToasts:]
	}
	h.mu.Unlock()
	h.inner.Toast(severity, message)
}

// Connection returns the latest connection state and its display text.
func (h *Hub) Connection() (ConnectionState, string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.connection, h.connectionMessage
}

// Sync returns the latest sync status.
func (h *Hub) Sync() SyncStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sync
}

// RecentToasts returns the retained toast notifications, oldest first.
func (h *Hub) RecentToasts() []Toast {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Toast, len(h.toasts))
	copy(out, h.toasts)
	return out
}
