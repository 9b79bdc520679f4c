package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"coview/internal/core/domain"
	"coview/internal/core/ports"
	"coview/pkg/tracing"
	"coview/pkg/utils"

	"go.uber.org/zap"
)

// sessionService drives one peer's connection from idle to a connected
// channel or a terminal failure, consuming the signal blobs the two users
// exchange out-of-band.
type sessionService struct {
	id        string
	role      domain.Role
	transport ports.Transport
	clipboard ports.Clipboard
	notifier  ports.Notifier
	engine    *SyncEngine
	metrics   *MetricsService
	logger    *zap.SugaredLogger

	mu              sync.Mutex
	state           domain.SessionState
	localSignal     *domain.SignalBlob
	channel         ports.Channel
	remoteSubmitted bool
	createdAt       time.Time

	// notifyCh serializes state notifications so observers see transitions
	// in the order they happened.
	notifyCh chan domain.SessionState
}

func NewSessionService(
	role domain.Role,
	transport ports.Transport,
	clipboard ports.Clipboard,
	notifier ports.Notifier,
	engine *SyncEngine,
	metrics *MetricsService,
	logger *zap.Logger,
) ports.SessionService {
	s := &sessionService{
		id:        utils.GenerateSessionID(),
		role:      role,
		transport: transport,
		clipboard: clipboard,
		notifier:  notifier,
		engine:    engine,
		metrics:   metrics,
		logger:    logger.Sugar(),
		state:     domain.SessionIdle,
		createdAt: time.Now(),
	}
	if notifier != nil {
		s.notifyCh = make(chan domain.SessionState, 16)
		go s.notifyLoop()
	}
	return s
}

func (s *sessionService) Role() domain.Role { return s.role }

func (s *sessionService) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *sessionService) LocalSignal() *domain.SignalBlob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localSignal
}

// Start begins hosting. Only the Initiator starts explicitly; a Responder
// starts implicitly when the first remote signal is submitted.
func (s *sessionService) Start() error {
	_, span := tracing.TraceHandshake(context.Background(), "start", s.id, string(s.role))
	defer span.End()

	s.mu.Lock()
	if s.state != domain.SessionIdle {
		s.mu.Unlock()
		return fmt.Errorf("session already started: %w", domain.ErrAlreadyNegotiating)
	}
	s.setStateLocked(domain.SessionGeneratingLocalSignal)
	s.mu.Unlock()

	return s.createChannel()
}

// createChannel asks the transport for the session's channel. Called without
// the lock held: transports may fire events from their own goroutines at any
// point after this.
func (s *sessionService) createChannel() error {
	ch, err := s.transport.CreateChannel(s.role == domain.RoleInitiator, ports.ChannelEvents{
		OnLocalSignal: s.handleLocalSignal,
		OnConnected:   s.handleConnected,
		OnMessage:     s.engine.HandleRemote,
		OnError:       s.handleTransportError,
		OnClosed:      s.handleClosed,
	})
	if err != nil {
		s.mu.Lock()
		s.setStateLocked(domain.SessionFailed)
		s.mu.Unlock()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	s.mu.Lock()
	s.channel = ch
	s.mu.Unlock()
	return nil
}

// SubmitRemoteSignal feeds pasted signal text into the handshake.
func (s *sessionService) SubmitRemoteSignal(text string) error {
	_, span := tracing.TraceHandshake(context.Background(), "submit_remote_signal", s.id, string(s.role))
	defer span.End()

	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return domain.ErrSessionTerminal
	}

	// Guard against duplicate submits racing a network round trip. This also
	// keeps a Responder from accepting a second offer after it has produced
	// its answer. A Responder whose previous blob was rejected by the
	// transport may retry while still generating.
	allowed := s.state == domain.SessionAwaitingRemoteSignal ||
		(s.role == domain.RoleResponder &&
			(s.state == domain.SessionIdle ||
				(s.state == domain.SessionGeneratingLocalSignal && s.channel != nil)))
	if s.remoteSubmitted || !allowed {
		s.mu.Unlock()
		return domain.ErrAlreadyNegotiating
	}

	implicitStart := s.role == domain.RoleResponder && s.state == domain.SessionIdle

	blob, err := domain.ParseSignalBlob(text)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if expected := s.role.RemoteSignalKind(); blob.Kind != expected {
		s.mu.Unlock()
		return fmt.Errorf("peer signal must be of kind %q, got %q: %w",
			expected, blob.Kind, domain.ErrSignalRoleMismatch)
	}

	s.remoteSubmitted = true
	if implicitStart {
		s.setStateLocked(domain.SessionGeneratingLocalSignal)
		s.mu.Unlock()

		if err := s.createChannel(); err != nil {
			return err
		}
		s.mu.Lock()
		ch := s.channel
		s.mu.Unlock()
		if err := ch.SubmitRemoteSignal(blob); err != nil {
			return s.rejectRemoteSignal(err)
		}
		return nil
	}

	ch := s.channel
	s.mu.Unlock()

	if err := ch.SubmitRemoteSignal(blob); err != nil {
		return s.rejectRemoteSignal(err)
	}

	s.mu.Lock()
	// A Responder still generating its answer reaches Negotiating when the
	// answer is produced, not here.
	if s.state == domain.SessionAwaitingRemoteSignal {
		s.setStateLocked(domain.SessionNegotiating)
	}
	s.mu.Unlock()
	return nil
}

// rejectRemoteSignal unwinds a transport-rejected blob so the user can paste
// again; the session state is unchanged.
func (s *sessionService) rejectRemoteSignal(cause error) error {
	s.mu.Lock()
	s.remoteSubmitted = false
	s.mu.Unlock()
	s.logger.Warnw("transport rejected remote signal", "error", cause)
	return fmt.Errorf("remote signal rejected by transport: %w", domain.ErrInvalidSignalFormat)
}

// handleLocalSignal receives blobs emitted by the transport. Only the first
// role-correct one becomes the session's local signal; renegotiation blobs
// for media tracks are silently discarded.
func (s *sessionService) handleLocalSignal(blob *domain.SignalBlob) {
	s.mu.Lock()
	if s.localSignal != nil || s.state.Terminal() {
		s.mu.Unlock()
		s.logger.Debugw("discarding extra transport signal", "kind", blob.Kind)
		return
	}
	if blob.Kind != s.role.LocalSignalKind() {
		s.mu.Unlock()
		s.logger.Debugw("discarding non-role signal", "kind", blob.Kind, "role", s.role)
		return
	}

	s.localSignal = blob
	if s.role == domain.RoleResponder {
		// The responder's remote offer was already consumed; producing the
		// answer moves it straight to negotiating.
		s.setStateLocked(domain.SessionNegotiating)
	} else {
		s.setStateLocked(domain.SessionAwaitingRemoteSignal)
	}
	s.mu.Unlock()

	copied := true
	if err := s.clipboard.Write(blob.String()); err != nil {
		copied = false
		s.logger.Warnw("clipboard copy failed", "error", err)
	}
	if s.notifier != nil {
		s.notifier.LocalSignalReady(blob, copied)
	}
}

func (s *sessionService) handleConnected() {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	s.setStateLocked(domain.SessionConnected)
	ch := s.channel
	s.mu.Unlock()

	s.engine.AttachChannel(ch)
	s.logger.Infow("peer session connected", "session_id", s.id, "role", s.role)
}

// handleTransportError is terminal: no automatic retry, the user starts a
// new session.
func (s *sessionService) handleTransportError(err error) {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	s.setStateLocked(domain.SessionFailed)
	ch := s.channel
	s.channel = nil
	s.mu.Unlock()

	s.engine.DetachChannel()
	if ch != nil {
		_ = ch.Close()
	}
	s.logger.Errorw("peer session failed", "session_id", s.id, "error", err)
}

func (s *sessionService) handleClosed() {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	if s.state == domain.SessionConnected {
		s.setStateLocked(domain.SessionClosed)
	} else {
		// Channel went away mid-handshake: that is a failure, not a clean
		// shutdown.
		s.setStateLocked(domain.SessionFailed)
	}
	s.channel = nil
	s.mu.Unlock()

	s.engine.DetachChannel()
	s.logger.Infow("peer session channel closed", "session_id", s.id)
}

// Close tears the session down at any lifecycle state, releasing the channel
// and stopping message flow.
func (s *sessionService) Close() error {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return nil
	}
	s.setStateLocked(domain.SessionClosed)
	ch := s.channel
	s.channel = nil
	s.mu.Unlock()

	s.engine.DetachChannel()
	if ch != nil {
		return ch.Close()
	}
	return nil
}

func (s *sessionService) setStateLocked(state domain.SessionState) {
	if s.state == state {
		return
	}
	s.state = state
	s.logger.Infow("session state changed", "session_id", s.id, "state", state)
	if s.metrics != nil {
		s.metrics.RecordStateTransition(state)
	}
	if s.notifyCh != nil {
		// The buffer far exceeds the number of lifecycle transitions; the
		// default arm only guards a notifier that stopped draining.
		select {
		case s.notifyCh <- state:
		default:
			s.logger.Warnw("dropping state notification", "state", state)
		}
	}
}

// notifyLoop delivers state notifications one at a time, in transition order.
// It exits after the terminal state since no transitions follow it.
func (s *sessionService) notifyLoop() {
	for state := range s.notifyCh {
		s.notifier.SessionStateChanged(state)
		if state.Terminal() {
			return
		}
	}
}
