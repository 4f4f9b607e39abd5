package domain

import "sync"

// ConnectivityStatus is the process-wide availability of the remote store.
type ConnectivityStatus string

const (
	StatusLoading      ConnectivityStatus = "loading"
	StatusConnected    ConnectivityStatus = "connected"
	StatusOffline      ConnectivityStatus = "offline"
	StatusMissingTable ConnectivityStatus = "missing_table"
)

// StatusTracker holds the single connectivity status shared by every component.
//
// Transitions:
//
//	loading   -> connected | offline | missing_table  (Resolve, after reconciliation)
//	connected -> offline                              (Demote, on any remote failure)
//
// connected is only re-entered through Resolve, i.e. a full reconciliation.
type StatusTracker struct {
	mu     sync.RWMutex
	status ConnectivityStatus
}

func NewStatusTracker() *StatusTracker {
	return &StatusTracker{status: StatusLoading}
}

// Current returns the current status.
func (t *StatusTracker) Current() ConnectivityStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// IsConnected reports whether remote writes should be attempted.
func (t *StatusTracker) IsConnected() bool {
	return t.Current() == StatusConnected
}

// Resolve records the outcome of a reconciliation.
func (t *StatusTracker) Resolve(s ConnectivityStatus) {
	if s == StatusLoading {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = s
}

// Demote moves connected to offline. It returns true if the status changed.
func (t *StatusTracker) Demote() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusConnected {
		return false
	}
	t.status = StatusOffline
	return true
}
