package domain

import "time"

type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

// SessionState is the lifecycle state of one side's PeerSession.
type SessionState string

const (
	SessionIdle                  SessionState = "idle"
	SessionGeneratingLocalSignal SessionState = "generating_local_signal"
	SessionAwaitingRemoteSignal  SessionState = "awaiting_remote_signal"
	SessionNegotiating           SessionState = "negotiating"
	SessionConnected             SessionState = "connected"
	SessionClosed                SessionState = "closed"
	SessionFailed                SessionState = "failed"
)

// Terminal reports whether the session can never leave this state.
func (s SessionState) Terminal() bool {
	return s == SessionClosed || s == SessionFailed
}

// PeerSession is one side's view of the two-party connection. The role is
// fixed at creation and the channel is exclusively owned by the session.
type PeerSession struct {
	ID          string
	Role        Role
	State       SessionState
	LocalSignal *SignalBlob
	CreatedAt   time.Time
}

// LocalSignalKind is the SDP kind this side's role is expected to produce.
func (r Role) LocalSignalKind() SignalKind {
	if r == RoleInitiator {
		return SignalKindOffer
	}
	return SignalKindAnswer
}

// RemoteSignalKind is the counterpart kind this side accepts from the peer.
func (r Role) RemoteSignalKind() SignalKind {
	if r == RoleInitiator {
		return SignalKindAnswer
	}
	return SignalKindOffer
}
