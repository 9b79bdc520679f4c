package ports

import "coview/internal/core/domain"

// SessionService drives one peer's connection lifecycle from idle to a
// connected channel or a terminal failure.
type SessionService interface {
	// Start begins hosting (Initiator) by generating the local signal.
	Start() error

	// SubmitRemoteSignal feeds pasted signal text into the session. For a
	// Responder in idle state this is the implicit start.
	SubmitRemoteSignal(text string) error

	State() domain.SessionState
	Role() domain.Role

	// LocalSignal returns the session's connection-setup blob once produced,
	// nil before that.
	LocalSignal() *domain.SignalBlob

	Close() error
}

// SyncService translates local player actions into outbound messages. The
// inbound direction is wired through the session's channel events.
type SyncService interface {
	LocalPlay()
	LocalPause()
	LocalSeek(seconds float64)
	LocalLoaded()
	SenderID() string
}

// Clipboard is the best-effort local clipboard collaborator. Failures are
// logged, never fatal.
type Clipboard interface {
	Write(text string) error
}

// Notifier receives user-facing session events; the UI layer implements it.
type Notifier interface {
	SessionStateChanged(state domain.SessionState)
	LocalSignalReady(blob *domain.SignalBlob, copiedToClipboard bool)
	PeerReady()
}
