package services

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"coview/internal/core/domain"
	"coview/internal/core/ports"
	"coview/pkg/tracing"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// SyncConfig tunes the protocol engine.
type SyncConfig struct {
	SenderID       string
	SendInterval   time.Duration // minimum spacing between outbound messages
	SettleWindow   time.Duration // how long inbound applies suppress outbound sends
	DriftTolerance float64       // seconds of drift a remote Play leaves uncorrected
}

// SyncEngine keeps the local player converging on the shared playback state.
// Outbound: local player events become wire messages, guarded against
// feedback loops and rapid-fire scrubbing. Inbound: remote messages mutate
// the player, with the applying-remote flag raised first so the native events
// that mutation provokes are never re-broadcast.
//
// Transport callbacks arrive on pion-owned goroutines, so the flag is an
// atomic rather than the single-threaded boolean the protocol alone would
// need.
type SyncEngine struct {
	cfg      SyncConfig
	player   ports.Player
	notifier ports.Notifier
	metrics  *MetricsService
	clock    clockwork.Clock
	limiter  *rate.Limiter
	logger   *zap.SugaredLogger

	applyingRemote atomic.Bool

	mu          sync.Mutex
	channel     ports.Channel
	settleTimer clockwork.Timer
}

func NewSyncEngine(
	cfg SyncConfig,
	player ports.Player,
	notifier ports.Notifier,
	metrics *MetricsService,
	clock clockwork.Clock,
	logger *zap.Logger,
) *SyncEngine {
	if cfg.SendInterval <= 0 {
		cfg.SendInterval = 200 * time.Millisecond
	}
	if cfg.SettleWindow <= 0 {
		cfg.SettleWindow = 400 * time.Millisecond
	}
	if cfg.DriftTolerance <= 0 {
		cfg.DriftTolerance = 0.5
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SyncEngine{
		cfg:      cfg,
		player:   player,
		notifier: notifier,
		metrics:  metrics,
		clock:    clock,
		limiter:  rate.NewLimiter(rate.Every(cfg.SendInterval), 1),
		logger:   logger.Sugar(),
	}
}

// SenderID returns the id stamped on every outbound message.
func (e *SyncEngine) SenderID() string {
	return e.cfg.SenderID
}

// AttachChannel hands the engine the connected channel. Before this, sends
// are dropped.
func (e *SyncEngine) AttachChannel(ch ports.Channel) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.channel = ch
}

// DetachChannel stops the engine from emitting messages, as part of session
// teardown.
func (e *SyncEngine) DetachChannel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.channel = nil
	if e.settleTimer != nil {
		e.settleTimer.Stop()
		e.settleTimer = nil
	}
	e.applyingRemote.Store(false)
}

func (e *SyncEngine) LocalPlay() {
	e.send(domain.ActionPlay, e.player.CurrentTime())
}

func (e *SyncEngine) LocalPause() {
	e.send(domain.ActionPause, e.player.CurrentTime())
}

func (e *SyncEngine) LocalSeek(seconds float64) {
	e.send(domain.ActionSeek, seconds)
}

func (e *SyncEngine) LocalLoaded() {
	e.send(domain.ActionReady, 0)
}

func (e *SyncEngine) send(action domain.SyncAction, timestamp float64) {
	// Primary loop-breaker: a player event provoked by a remote apply must
	// not bounce back to the peer.
	if e.applyingRemote.Load() {
		e.logger.Debugw("suppressed outbound while applying remote", "action", action)
		e.record(func(m *MetricsService) { m.RecordDropped(DropApplyingRemote) })
		return
	}
	e.mu.Lock()
	ch := e.channel
	e.mu.Unlock()
	if ch == nil {
		e.logger.Debugw("dropping outbound, no connected channel", "action", action)
		e.record(func(m *MetricsService) { m.RecordDropped(DropNotConnected) })
		return
	}

	// Take the debounce slot only once a send can actually happen, and give
	// it back on failure, so a dropped message never also swallows the
	// user's next action.
	reservation := e.limiter.Reserve()
	if !reservation.OK() || reservation.Delay() > 0 {
		reservation.Cancel()
		e.logger.Debugw("debounced outbound", "action", action)
		e.record(func(m *MetricsService) { m.RecordDropped(DropDebounced) })
		return
	}

	msg := domain.SyncMessage{
		Action:    action,
		Timestamp: timestamp,
		SenderID:  e.cfg.SenderID,
	}
	data, err := msg.Encode()
	if err != nil {
		reservation.Cancel()
		e.logger.Errorw("failed to encode sync message", "action", action, "error", err)
		return
	}

	_, span := tracing.TraceSyncMessage(context.Background(), "outbound", string(action))
	defer span.End()

	if err := ch.Send(data); err != nil {
		reservation.Cancel()
		e.logger.Warnw("failed to send sync message",
			"action", action,
			"timestamp", timestamp,
			"error", err,
		)
		e.record(func(m *MetricsService) { m.RecordDropped(DropNotConnected) })
		return
	}

	e.logger.Debugw("sent sync message", "action", action, "timestamp", timestamp)
	e.record(func(m *MetricsService) { m.RecordSent(action) })
}

// HandleRemote processes a payload received from the peer. Malformed
// payloads and self-echoes are dropped; everything else mutates the player
// under the applying-remote flag.
func (e *SyncEngine) HandleRemote(data []byte) {
	msg, err := domain.DecodeSyncMessage(data)
	if err != nil {
		e.logger.Warnw("dropping undecodable sync payload", "error", err)
		e.record(func(m *MetricsService) { m.RecordDropped(DropDecodeError) })
		return
	}

	if msg.SenderID == e.cfg.SenderID {
		e.logger.Debugw("dropping self-echo", "action", msg.Action)
		e.record(func(m *MetricsService) { m.RecordDropped(DropSelfEcho) })
		return
	}

	_, span := tracing.TraceSyncMessage(context.Background(), "inbound", string(msg.Action))
	defer span.End()

	// Raise the flag before touching the player: the mutation below can
	// synchronously provoke native play/pause/seeked events whose handlers
	// call back into LocalPlay/LocalPause/LocalSeek.
	if msg.Action != domain.ActionReady {
		e.applyingRemote.Store(true)
		e.extendSettleWindow()
	}

	switch msg.Action {
	case domain.ActionPlay:
		drift := math.Abs(e.player.CurrentTime() - msg.Timestamp)
		if drift > e.cfg.DriftTolerance {
			e.player.SetCurrentTime(msg.Timestamp)
			e.logger.Infow("corrected drift on play", "drift", drift, "timestamp", msg.Timestamp)
			e.record(func(m *MetricsService) { m.RecordDriftCorrection() })
		}
		e.player.Play()

	case domain.ActionPause:
		// Pause is a deliberate stop-here instruction: always snap exactly.
		e.player.Pause()
		e.player.SetCurrentTime(msg.Timestamp)

	case domain.ActionSeek:
		e.player.SetCurrentTime(msg.Timestamp)

	case domain.ActionReady:
		e.logger.Infow("peer reported media loaded")
		if e.notifier != nil {
			e.notifier.PeerReady()
		}
	}

	e.logger.Debugw("applied remote sync message", "action", msg.Action, "timestamp", msg.Timestamp)
	e.record(func(m *MetricsService) { m.RecordApplied(msg.Action) })
}

// extendSettleWindow (re)arms the timer clearing the applying-remote flag.
// A fast follow-up remote command restarts the window instead of being
// blocked by it.
func (e *SyncEngine) extendSettleWindow() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.settleTimer != nil {
		e.settleTimer.Stop()
	}
	e.settleTimer = e.clock.AfterFunc(e.cfg.SettleWindow, func() {
		e.applyingRemote.Store(false)
	})
}

func (e *SyncEngine) record(fn func(*MetricsService)) {
	if e.metrics != nil {
		fn(e.metrics)
	}
}
