package services

import (
	"sync"
	"testing"
	"time"

	"coview/internal/core/domain"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePlayer struct {
	mu          sync.Mutex
	playing     bool
	currentTime float64
	loaded      bool
	duration    float64

	// onPlay simulates the player's native play event handler firing
	// synchronously during the mutation, as a real media element does.
	onPlay func()
}

func (p *fakePlayer) Play() {
	p.mu.Lock()
	p.playing = true
	hook := p.onPlay
	p.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (p *fakePlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
}

func (p *fakePlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentTime
}

func (p *fakePlayer) SetCurrentTime(seconds float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.currentTime = seconds
}

func (p *fakePlayer) State() domain.PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return domain.PlayerState{
		IsPlaying:       p.playing,
		CurrentTime:     p.currentTime,
		DurationSeconds: p.duration,
		IsLoaded:        p.loaded,
	}
}

func (p *fakePlayer) isPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

type fakeChannel struct {
	mu      sync.Mutex
	sent    []domain.SyncMessage
	sendErr error
}

func (c *fakeChannel) Send(data []byte) error {
	msg, err := domain.DecodeSyncMessage(data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeChannel) setSendError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

func (c *fakeChannel) SubmitRemoteSignal(*domain.SignalBlob) error { return nil }
func (c *fakeChannel) Close() error                                { return nil }

func (c *fakeChannel) sentMessages() []domain.SyncMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.SyncMessage, len(c.sent))
	copy(out, c.sent)
	return out
}

type fakeNotifier struct {
	mu        sync.Mutex
	peerReady int
}

func (n *fakeNotifier) SessionStateChanged(domain.SessionState)   {}
func (n *fakeNotifier) LocalSignalReady(*domain.SignalBlob, bool) {}

func (n *fakeNotifier) PeerReady() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.peerReady++
}

func (n *fakeNotifier) peerReadyCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.peerReady
}

func newTestEngine(t *testing.T, cfg SyncConfig, player *fakePlayer) (*SyncEngine, *fakeChannel, *clockwork.FakeClock, *MetricsService) {
	t.Helper()
	if cfg.SenderID == "" {
		cfg.SenderID = "peer-local"
	}
	clock := clockwork.NewFakeClock()
	metrics := NewMetricsService()
	engine := NewSyncEngine(cfg, player, nil, metrics, clock, zap.NewNop())
	ch := &fakeChannel{}
	engine.AttachChannel(ch)
	return engine, ch, clock, metrics
}

func TestOutboundTimestampMatchesPlayerPosition(t *testing.T) {
	player := &fakePlayer{currentTime: 3.25}
	engine, ch, _, _ := newTestEngine(t, SyncConfig{SendInterval: time.Nanosecond}, player)

	engine.LocalPlay()
	player.SetCurrentTime(8.5)
	engine.LocalPause()
	engine.LocalSeek(42.125)
	engine.LocalLoaded()

	sent := ch.sentMessages()
	require.Len(t, sent, 4)

	assert.Equal(t, domain.ActionPlay, sent[0].Action)
	assert.InDelta(t, 3.25, sent[0].Timestamp, 1e-9)

	assert.Equal(t, domain.ActionPause, sent[1].Action)
	assert.InDelta(t, 8.5, sent[1].Timestamp, 1e-9)

	assert.Equal(t, domain.ActionSeek, sent[2].Action)
	assert.InDelta(t, 42.125, sent[2].Timestamp, 1e-9)

	assert.Equal(t, domain.ActionReady, sent[3].Action)
	assert.Zero(t, sent[3].Timestamp)

	for _, msg := range sent {
		assert.Equal(t, "peer-local", msg.SenderID)
	}
}

func TestSelfEchoNeverApplied(t *testing.T) {
	for _, action := range []domain.SyncAction{
		domain.ActionPlay, domain.ActionPause, domain.ActionSeek, domain.ActionReady,
	} {
		t.Run(string(action), func(t *testing.T) {
			player := &fakePlayer{currentTime: 5}
			engine, _, _, metrics := newTestEngine(t, SyncConfig{}, player)

			msg := domain.SyncMessage{Action: action, Timestamp: 99, SenderID: engine.SenderID()}
			data, err := msg.Encode()
			require.NoError(t, err)
			engine.HandleRemote(data)

			assert.False(t, player.isPlaying())
			assert.Equal(t, 5.0, player.CurrentTime())
			assert.Equal(t, 1, metrics.Snapshot().MessagesDropped[DropSelfEcho])
		})
	}
}

func TestApplyingRemotePlaySuppressesEcho(t *testing.T) {
	player := &fakePlayer{currentTime: 10}
	engine, ch, clock, _ := newTestEngine(t, SyncConfig{
		SendInterval: time.Nanosecond,
		SettleWindow: 400 * time.Millisecond,
	}, player)

	// The remote apply provokes the native play event before the apply
	// call returns; it must not bounce back out.
	player.onPlay = func() { engine.LocalPlay() }

	remote := domain.SyncMessage{Action: domain.ActionPlay, Timestamp: 10.1, SenderID: "peer-remote"}
	data, err := remote.Encode()
	require.NoError(t, err)
	engine.HandleRemote(data)

	assert.True(t, player.isPlaying())
	assert.Empty(t, ch.sentMessages(), "no outbound message within the settle window")

	// After the settle window the user's own actions flow again. The window
	// timer clears the flag on its own goroutine, so retry until it has run.
	clock.Advance(401 * time.Millisecond)
	player.onPlay = nil
	require.Eventually(t, func() bool {
		engine.LocalPlay()
		return len(ch.sentMessages()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestDebounceDropsRapidFire(t *testing.T) {
	player := &fakePlayer{}
	engine, ch, _, metrics := newTestEngine(t, SyncConfig{SendInterval: 200 * time.Millisecond}, player)

	engine.LocalSeek(1)
	engine.LocalSeek(2)

	assert.Len(t, ch.sentMessages(), 1, "second send within 200ms is dropped")
	assert.Equal(t, 1, metrics.Snapshot().MessagesDropped[DropDebounced])

	time.Sleep(210 * time.Millisecond)
	engine.LocalSeek(3)
	assert.Len(t, ch.sentMessages(), 2)
}

func TestDriftToleranceAsymmetry(t *testing.T) {
	remotePlay := func(ts float64) []byte {
		data, _ := domain.SyncMessage{Action: domain.ActionPlay, Timestamp: ts, SenderID: "peer-remote"}.Encode()
		return data
	}

	t.Run("within tolerance keeps local position", func(t *testing.T) {
		player := &fakePlayer{currentTime: 20}
		engine, _, _, metrics := newTestEngine(t, SyncConfig{DriftTolerance: 0.5}, player)

		engine.HandleRemote(remotePlay(20.3))

		assert.True(t, player.isPlaying())
		assert.Equal(t, 20.0, player.CurrentTime(), "small drift is left alone")
		assert.Zero(t, metrics.Snapshot().DriftCorrections)
	})

	t.Run("beyond tolerance snaps before playing", func(t *testing.T) {
		player := &fakePlayer{currentTime: 20}
		engine, _, _, metrics := newTestEngine(t, SyncConfig{DriftTolerance: 0.5}, player)

		engine.HandleRemote(remotePlay(20.6))

		assert.True(t, player.isPlaying())
		assert.Equal(t, 20.6, player.CurrentTime())
		assert.Equal(t, 1, metrics.Snapshot().DriftCorrections)
	})
}

func TestPauseAndSeekSnapExactly(t *testing.T) {
	player := &fakePlayer{currentTime: 11.9, playing: true}
	engine, _, _, _ := newTestEngine(t, SyncConfig{}, player)

	data, _ := domain.SyncMessage{Action: domain.ActionPause, Timestamp: 12.34, SenderID: "peer-remote"}.Encode()
	engine.HandleRemote(data)

	assert.False(t, player.isPlaying())
	assert.Equal(t, 12.34, player.CurrentTime(), "pause snaps unconditionally")

	data, _ = domain.SyncMessage{Action: domain.ActionSeek, Timestamp: 55.5, SenderID: "peer-remote"}.Encode()
	engine.HandleRemote(data)
	assert.Equal(t, 55.5, player.CurrentTime())
}

func TestReadyIsInformationalOnly(t *testing.T) {
	player := &fakePlayer{currentTime: 7, playing: true}
	notifier := &fakeNotifier{}
	clock := clockwork.NewFakeClock()
	engine := NewSyncEngine(SyncConfig{SenderID: "peer-local"}, player, notifier, nil, clock, zap.NewNop())

	data, _ := domain.SyncMessage{Action: domain.ActionReady, Timestamp: 0, SenderID: "peer-remote"}.Encode()
	engine.HandleRemote(data)

	assert.True(t, player.isPlaying(), "ready never changes player state")
	assert.Equal(t, 7.0, player.CurrentTime())
	assert.Equal(t, 1, notifier.peerReadyCount())
}

func TestUndecodablePayloadDropped(t *testing.T) {
	player := &fakePlayer{currentTime: 4}
	engine, _, _, metrics := newTestEngine(t, SyncConfig{}, player)

	engine.HandleRemote([]byte(`{{{not json`))

	assert.False(t, player.isPlaying())
	assert.Equal(t, 4.0, player.CurrentTime())
	assert.Equal(t, 1, metrics.Snapshot().MessagesDropped[DropDecodeError])
}

func TestSendWithoutChannelIsDropped(t *testing.T) {
	player := &fakePlayer{}
	clock := clockwork.NewFakeClock()
	metrics := NewMetricsService()
	engine := NewSyncEngine(SyncConfig{SenderID: "peer-local", SendInterval: time.Nanosecond}, player, nil, metrics, clock, zap.NewNop())

	engine.LocalPlay()

	assert.Equal(t, 1, metrics.Snapshot().MessagesDropped[DropNotConnected])
}

func TestNotConnectedDropDoesNotDebounce(t *testing.T) {
	player := &fakePlayer{currentTime: 6}
	clock := clockwork.NewFakeClock()
	metrics := NewMetricsService()
	engine := NewSyncEngine(SyncConfig{
		SenderID:     "peer-local",
		SendInterval: 200 * time.Millisecond,
	}, player, nil, metrics, clock, zap.NewNop())

	engine.LocalPlay()
	assert.Equal(t, 1, metrics.Snapshot().MessagesDropped[DropNotConnected])

	// The drop above must not have taken the debounce slot: the next action
	// goes out immediately once a channel is attached.
	ch := &fakeChannel{}
	engine.AttachChannel(ch)
	engine.LocalPlay()
	require.Len(t, ch.sentMessages(), 1)
}

func TestFailedSendReturnsDebounceSlot(t *testing.T) {
	player := &fakePlayer{}
	engine, ch, _, metrics := newTestEngine(t, SyncConfig{SendInterval: 200 * time.Millisecond}, player)

	ch.setSendError(domain.ErrChannelNotConnected)
	engine.LocalSeek(1)
	assert.Equal(t, 1, metrics.Snapshot().MessagesDropped[DropNotConnected])

	ch.setSendError(nil)
	engine.LocalSeek(2)

	sent := ch.sentMessages()
	require.Len(t, sent, 1, "the failed send must not debounce the retry")
	assert.InDelta(t, 2.0, sent[0].Timestamp, 1e-9)
}

func TestFastFollowUpExtendsSettleWindow(t *testing.T) {
	player := &fakePlayer{}
	engine, ch, clock, _ := newTestEngine(t, SyncConfig{
		SendInterval: time.Nanosecond,
		SettleWindow: 400 * time.Millisecond,
	}, player)

	pauseAt := func(ts float64) []byte {
		data, _ := domain.SyncMessage{Action: domain.ActionPause, Timestamp: ts, SenderID: "peer-remote"}.Encode()
		return data
	}

	engine.HandleRemote(pauseAt(1))
	clock.Advance(300 * time.Millisecond)

	// Second remote command lands inside the window and restarts it.
	engine.HandleRemote(pauseAt(2))
	assert.Equal(t, 2.0, player.CurrentTime(), "fast follow-up commands still apply")

	clock.Advance(300 * time.Millisecond)
	engine.LocalPlay()
	assert.Empty(t, ch.sentMessages(), "window extended by the second apply")

	// The timer callback clears the flag on its own goroutine after the
	// advance, so retry until the local action gets through.
	clock.Advance(101 * time.Millisecond)
	require.Eventually(t, func() bool {
		engine.LocalPlay()
		return len(ch.sentMessages()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestDetachChannelStopsEmission(t *testing.T) {
	player := &fakePlayer{}
	engine, ch, _, _ := newTestEngine(t, SyncConfig{SendInterval: time.Nanosecond}, player)

	engine.LocalPlay()
	require.Len(t, ch.sentMessages(), 1)

	engine.DetachChannel()
	engine.LocalPause()
	assert.Len(t, ch.sentMessages(), 1)
}
