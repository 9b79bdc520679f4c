package webrtc

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"coview/internal/core/domain"
	"coview/internal/core/ports"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

const dataChannelLabel = "sync"

// Config carries the WebRTC transport settings.
type Config struct {
	ICEServers []webrtc.ICEServer
	PortRange  struct {
		Min uint16
		Max uint16
	}
	// GatherTimeout bounds how long we wait for ICE gathering before
	// emitting the local signal blob.
	GatherTimeout time.Duration
}

// Transport builds datachannel-backed peer channels. Because the two users
// exchange signals by hand, each local blob must be self-contained: the
// transport waits for ICE gathering to complete so all candidates ride
// inside the SDP, then emits exactly one role-correct signal. Renegotiation
// offers pion produces later (e.g. media tracks being added) never surface.
type Transport struct {
	config Config
	logger *zap.SugaredLogger
}

func NewTransport(config Config, logger *zap.Logger) *Transport {
	if config.GatherTimeout <= 0 {
		config.GatherTimeout = 15 * time.Second
	}
	return &Transport{
		config: config,
		logger: logger.Sugar(),
	}
}

type channel struct {
	pc            *webrtc.PeerConnection
	events        ports.ChannelEvents
	logger        *zap.SugaredLogger
	gatherTimeout time.Duration

	mu        sync.Mutex
	dc        *webrtc.DataChannel
	connected bool
	closed    bool

	signalOnce sync.Once
	localKind  domain.SignalKind
}

// CreateChannel builds the peer connection and, for the initiator, the data
// channel plus the initial offer. The responder's answer is produced when
// the remote offer arrives via SubmitRemoteSignal.
func (t *Transport) CreateChannel(isInitiator bool, events ports.ChannelEvents) (ports.Channel, error) {
	pc, err := t.newPeerConnection()
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	ch := &channel{
		pc:            pc,
		events:        events,
		logger:        t.logger,
		gatherTimeout: t.config.GatherTimeout,
	}
	if isInitiator {
		ch.localKind = domain.SignalKindOffer
	} else {
		ch.localKind = domain.SignalKindAnswer
	}

	pc.OnConnectionStateChange(ch.handleConnectionState)

	if isInitiator {
		ordered := true
		dc, err := pc.CreateDataChannel(dataChannelLabel, &webrtc.DataChannelInit{
			Ordered: &ordered,
		})
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("failed to create data channel: %w", err)
		}
		ch.bindDataChannel(dc)

		go func() {
			if err := ch.produceLocalSignal(func() (webrtc.SessionDescription, error) {
				return pc.CreateOffer(nil)
			}); err != nil {
				ch.fail(err)
			}
		}()
	} else {
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			if dc.Label() != dataChannelLabel {
				t.logger.Debugw("ignoring unexpected data channel", "label", dc.Label())
				return
			}
			ch.bindDataChannel(dc)
		})
	}

	return ch, nil
}

func (t *Transport) newPeerConnection() (*webrtc.PeerConnection, error) {
	settingEngine := webrtc.SettingEngine{}
	if t.config.PortRange.Min > 0 && t.config.PortRange.Max > 0 {
		if err := settingEngine.SetEphemeralUDPPortRange(t.config.PortRange.Min, t.config.PortRange.Max); err != nil {
			return nil, err
		}
	}

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	return api.NewPeerConnection(webrtc.Configuration{
		ICEServers: t.config.ICEServers,
	})
}

// produceLocalSignal runs the local half of the negotiation and emits the
// session's one signal blob once ICE gathering has finished.
func (c *channel) produceLocalSignal(describe func() (webrtc.SessionDescription, error)) error {
	desc, err := describe()
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", c.localKind, err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(desc); err != nil {
		return fmt.Errorf("failed to set local description: %w", err)
	}

	select {
	case <-gatherComplete:
	case <-time.After(c.gatherTimeout):
		// Trickle is not an option over clipboard exchange; emit what we
		// have so far.
		c.logger.Warnw("ICE gathering timed out, emitting partial candidates", "kind", c.localKind)
	}

	local := c.pc.LocalDescription()
	if local == nil {
		return fmt.Errorf("no local description after gathering")
	}

	raw, err := json.Marshal(local)
	if err != nil {
		return fmt.Errorf("failed to encode local description: %w", err)
	}
	blob, err := domain.ParseSignalBlob(string(raw))
	if err != nil {
		return fmt.Errorf("generated signal is malformed: %w", err)
	}

	// Exactly one signal per channel, whatever pion renegotiates later.
	c.signalOnce.Do(func() {
		if blob.Kind != c.localKind {
			c.logger.Debugw("discarding non-role local signal", "kind", blob.Kind)
			return
		}
		if c.events.OnLocalSignal != nil {
			c.events.OnLocalSignal(blob)
		}
	})
	return nil
}

func (c *channel) bindDataChannel(dc *webrtc.DataChannel) {
	c.mu.Lock()
	c.dc = dc
	c.mu.Unlock()

	dc.OnOpen(func() {
		c.mu.Lock()
		c.connected = true
		c.mu.Unlock()
		c.logger.Infow("data channel open", "label", dc.Label())
		if c.events.OnConnected != nil {
			c.events.OnConnected()
		}
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if c.events.OnMessage != nil {
			c.events.OnMessage(msg.Data)
		}
	})

	dc.OnClose(func() {
		c.mu.Lock()
		c.connected = false
		alreadyClosed := c.closed
		c.mu.Unlock()
		if !alreadyClosed && c.events.OnClosed != nil {
			c.events.OnClosed()
		}
	})
}

func (c *channel) handleConnectionState(state webrtc.PeerConnectionState) {
	c.logger.Infow("peer connection state changed", "state", state)

	switch state {
	case webrtc.PeerConnectionStateFailed:
		c.fail(fmt.Errorf("peer connection failed"))
	case webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
		c.mu.Lock()
		c.connected = false
		alreadyClosed := c.closed
		c.mu.Unlock()
		if !alreadyClosed && c.events.OnClosed != nil {
			c.events.OnClosed()
		}
	}
}

func (c *channel) fail(err error) {
	c.mu.Lock()
	alreadyClosed := c.closed
	c.closed = true
	c.connected = false
	c.mu.Unlock()

	if !alreadyClosed && c.events.OnError != nil {
		c.events.OnError(err)
	}
}

// Send transmits a payload over the data channel. Not-connected sends are
// reported to the caller, which logs and drops.
func (c *channel) Send(data []byte) error {
	c.mu.Lock()
	dc := c.dc
	connected := c.connected
	c.mu.Unlock()

	if dc == nil || !connected {
		return domain.ErrChannelNotConnected
	}
	if err := dc.Send(data); err != nil {
		return fmt.Errorf("data channel send failed: %w", err)
	}
	return nil
}

// SubmitRemoteSignal applies the counterpart's blob. For a responder this
// also kicks off answer generation.
func (c *channel) SubmitRemoteSignal(blob *domain.SignalBlob) error {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(blob.Raw, &desc); err != nil {
		return fmt.Errorf("signal is not a session description: %w", err)
	}

	if err := c.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}

	if c.localKind == domain.SignalKindAnswer {
		go func() {
			if err := c.produceLocalSignal(func() (webrtc.SessionDescription, error) {
				return c.pc.CreateAnswer(nil)
			}); err != nil {
				c.fail(err)
			}
		}()
	}
	return nil
}

func (c *channel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.connected = false
	c.mu.Unlock()
	return c.pc.Close()
}
