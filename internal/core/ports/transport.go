package ports

import "coview/internal/core/domain"

// ChannelEvents carries the transport's lifecycle and data callbacks back
// into the core. Callbacks may fire on transport-owned goroutines.
type ChannelEvents struct {
	OnLocalSignal func(blob *domain.SignalBlob)
	OnConnected   func()
	OnMessage     func(data []byte)
	OnError       func(err error)
	OnClosed      func()
}

// Channel is a bidirectional message pipe between the two peers. The core
// treats it as opaque: reliable-enough, ordered per sender, no delivery
// guarantee after Close.
type Channel interface {
	// Send transmits a payload. Returns domain.ErrChannelNotConnected when
	// the channel is not yet (or no longer) connected; callers log and drop.
	Send(data []byte) error

	// SubmitRemoteSignal feeds the counterpart's connection-setup blob into
	// the transport's negotiation.
	SubmitRemoteSignal(blob *domain.SignalBlob) error

	Close() error
}

// Transport builds channels. isInitiator selects which side drives the
// initial offer.
type Transport interface {
	CreateChannel(isInitiator bool, events ChannelEvents) (Channel, error)
}
