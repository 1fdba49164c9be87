// Package notify pushes connection, sync, and toast updates from the sync
// core to the UI layer. The core never waits on a consumer; notifications are
// fire-and-forget.
package notify

import (
	"fmt"
	"log/slog"
)

// Severity of a toast notification.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// ConnectionState is the externally visible connectivity state of the agent.
type ConnectionState string

const (
	ConnectionOffline   ConnectionState = "offline"
	ConnectionChecking  ConnectionState = "checking"
	ConnectionConnected ConnectionState = "connected"
)

// SyncPhase describes what the sync processor is currently doing.
type SyncPhase string

const (
	SyncIdle    SyncPhase = "idle"
	SyncSyncing SyncPhase = "syncing"
	SyncError   SyncPhase = "error"
	SyncDone    SyncPhase = "synced"
)

// SyncStatus is a point-in-time summary of the pending-operation queue.
type SyncStatus struct {
	Phase   SyncPhase `json:"phase"`
	Pending int       `json:"pending"`
}

// Notifier receives push updates from the core.
type Notifier interface {
	ConnectionStatus(state ConnectionState, message string)
	SyncStatus(status SyncStatus)
	Toast(severity Severity, message string)
}

// LogNotifier writes every notification to the structured log. It is the
// terminal sink when no UI hub is attached.
type LogNotifier struct {
	logger *slog.Logger
}

var _ Notifier = (*LogNotifier)(nil)

// NewLogNotifier creates a Notifier backed by logger.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "notify")}
}

func (n *LogNotifier) ConnectionStatus(state ConnectionState, message string) {
	n.logger.Info("Connection status changed", "state", string(state), "message", message)
}

func (n *LogNotifier) SyncStatus(status SyncStatus) {
	n.logger.Info("Sync status changed", "phase", string(status.Phase), "pending", status.Pending)
}

func (n *LogNotifier) Toast(severity Severity, message string) {
	switch severity {
	case SeverityError:
		n.logger.Error(fmt.Sprintf("Toast: %s", message))
	case SeverityWarning:
		n.logger.Warn(fmt.Sprintf("Toast: %s", message))
	default:
		n.logger.Info(fmt.Sprintf("Toast: %s", message))
	}
}
