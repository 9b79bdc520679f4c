package services

import (
	"sync"

	"coview/internal/core/domain"
)

// DropReason classifies why an outbound or inbound sync message was not
// processed.
type DropReason string

const (
	DropApplyingRemote DropReason = "applying_remote"
	DropDebounced      DropReason = "debounced"
	DropSelfEcho       DropReason = "self_echo"
	DropDecodeError    DropReason = "decode_error"
	DropNotConnected   DropReason = "not_connected"
)

// MetricsService keeps in-process counters for the session and the sync
// protocol. The prometheus collector exports snapshots of it.
type MetricsService struct {
	mu sync.RWMutex

	messagesSent     map[domain.SyncAction]int
	messagesApplied  map[domain.SyncAction]int
	messagesDropped  map[DropReason]int
	driftCorrections int
	stateTransitions map[domain.SessionState]int
	sessionState     domain.SessionState
}

func NewMetricsService() *MetricsService {
	return &MetricsService{
		messagesSent:     make(map[domain.SyncAction]int),
		messagesApplied:  make(map[domain.SyncAction]int),
		messagesDropped:  make(map[DropReason]int),
		stateTransitions: make(map[domain.SessionState]int),
		sessionState:     domain.SessionIdle,
	}
}

func (m *MetricsService) RecordSent(action domain.SyncAction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messagesSent[action]++
}

func (m *MetricsService) RecordApplied(action domain.SyncAction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messagesApplied[action]++
}

func (m *MetricsService) RecordDropped(reason DropReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messagesDropped[reason]++
}

func (m *MetricsService) RecordDriftCorrection() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.driftCorrections++
}

func (m *MetricsService) RecordStateTransition(state domain.SessionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateTransitions[state]++
	m.sessionState = state
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	MessagesSent     map[domain.SyncAction]int
	MessagesApplied  map[domain.SyncAction]int
	MessagesDropped  map[DropReason]int
	DriftCorrections int
	StateTransitions map[domain.SessionState]int
	SessionState     domain.SessionState
}

func (m *MetricsService) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := MetricsSnapshot{
		MessagesSent:     make(map[domain.SyncAction]int, len(m.messagesSent)),
		MessagesApplied:  make(map[domain.SyncAction]int, len(m.messagesApplied)),
		MessagesDropped:  make(map[DropReason]int, len(m.messagesDropped)),
		DriftCorrections: m.driftCorrections,
		StateTransitions: make(map[domain.SessionState]int, len(m.stateTransitions)),
		SessionState:     m.sessionState,
	}
	for k, v := range m.messagesSent {
		snap.MessagesSent[k] = v
	}
	for k, v := range m.messagesApplied {
		snap.MessagesApplied[k] = v
	}
	for k, v := range m.messagesDropped {
		snap.MessagesDropped[k] = v
	}
	for k, v := range m.stateTransitions {
		snap.StateTransitions[k] = v
	}
	return snap
}
