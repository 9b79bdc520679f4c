package bridge

import (
	"net/http"
	"sync"
	"time"

	"coview/internal/core/domain"
	"coview/internal/core/ports"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The bridge only ever serves the local player page.
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// playerEvent is what the local player page reports to the bridge.
type playerEvent struct {
	Event       string  `json:"event"`
	CurrentTime float64 `json:"current_time"`
	Duration    float64 `json:"duration,omitempty"`
}

// playerCommand is what the bridge pushes back at the page.
type playerCommand struct {
	Command     string  `json:"command"`
	CurrentTime float64 `json:"current_time,omitempty"`
}

// PlayerBridge connects the local player surface (a browser page holding the
// video element) to the sync engine over a localhost WebSocket. It is the
// ports.Player implementation the engine mutates, and it forwards the page's
// native events into the engine's outbound path.
type PlayerBridge struct {
	log  *zap.SugaredLogger
	sync ports.SyncService

	pingInterval time.Duration
	pongTimeout  time.Duration
	writeTimeout time.Duration

	mu    sync.RWMutex
	conn  *websocket.Conn
	state domain.PlayerState

	// writeMu serializes writes; gorilla connections allow one writer.
	writeMu sync.Mutex
}

func NewPlayerBridge(pingInterval, pongTimeout time.Duration, logger *zap.Logger) *PlayerBridge {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if pongTimeout <= 0 {
		pongTimeout = 60 * time.Second
	}
	return &PlayerBridge{
		log:          logger.Sugar(),
		pingInterval: pingInterval,
		pongTimeout:  pongTimeout,
		writeTimeout: 10 * time.Second,
	}
}

// SetSyncService wires the engine in after construction; the engine needs
// the bridge as its player, so the two are built in that order.
func (b *PlayerBridge) SetSyncService(s ports.SyncService) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sync = s
}

// HandleWebSocket serves the player page connection. A reconnecting page
// replaces the previous connection.
func (b *PlayerBridge) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	b.mu.Lock()
	if b.conn != nil {
		b.conn.Close()
		b.log.Infow("closing previous player connection")
	}
	b.conn = conn
	b.mu.Unlock()

	b.log.Infow("player page connected", "remote", r.RemoteAddr)

	conn.SetReadDeadline(time.Now().Add(b.pongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(b.pongTimeout))
		return nil
	})

	done := make(chan struct{})
	go b.pingLoop(conn, done)
	defer close(done)

	for {
		var ev playerEvent
		if err := conn.ReadJSON(&ev); err != nil {
			b.log.Infow("player page disconnected", "error", err)
			break
		}
		conn.SetReadDeadline(time.Now().Add(b.pongTimeout))
		b.handleEvent(ev)
	}

	b.mu.Lock()
	if b.conn == conn {
		b.conn = nil
	}
	b.mu.Unlock()
}

func (b *PlayerBridge) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(b.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			b.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(b.writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			b.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (b *PlayerBridge) handleEvent(ev playerEvent) {
	b.mu.Lock()
	switch ev.Event {
	case "play":
		b.state.IsPlaying = true
		b.state.CurrentTime = ev.CurrentTime
	case "pause":
		b.state.IsPlaying = false
		b.state.CurrentTime = ev.CurrentTime
	case "seeked", "timeupdate":
		b.state.CurrentTime = ev.CurrentTime
	case "loaded":
		b.state.IsLoaded = true
		b.state.DurationSeconds = ev.Duration
		b.state.CurrentTime = ev.CurrentTime
	default:
		b.mu.Unlock()
		b.log.Debugw("ignoring unknown player event", "event", ev.Event)
		return
	}
	syncSvc := b.sync
	b.mu.Unlock()

	if syncSvc == nil {
		return
	}
	switch ev.Event {
	case "play":
		syncSvc.LocalPlay()
	case "pause":
		syncSvc.LocalPause()
	case "seeked":
		syncSvc.LocalSeek(ev.CurrentTime)
	case "loaded":
		syncSvc.LocalLoaded()
	}
}

func (b *PlayerBridge) sendCommand(cmd playerCommand) {
	b.mu.RLock()
	conn := b.conn
	b.mu.RUnlock()

	if conn == nil {
		b.log.Debugw("no player page connected, dropping command", "command", cmd.Command)
		return
	}
	b.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(b.writeTimeout))
	err := conn.WriteJSON(cmd)
	b.writeMu.Unlock()
	if err != nil {
		b.log.Warnw("failed to push player command", "command", cmd.Command, "error", err)
	}
}

// Play implements ports.Player.
func (b *PlayerBridge) Play() {
	b.mu.Lock()
	b.state.IsPlaying = true
	b.mu.Unlock()
	b.sendCommand(playerCommand{Command: "play"})
}

// Pause implements ports.Player.
func (b *PlayerBridge) Pause() {
	b.mu.Lock()
	b.state.IsPlaying = false
	b.mu.Unlock()
	b.sendCommand(playerCommand{Command: "pause"})
}

// CurrentTime implements ports.Player.
func (b *PlayerBridge) CurrentTime() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state.CurrentTime
}

// SetCurrentTime implements ports.Player.
func (b *PlayerBridge) SetCurrentTime(seconds float64) {
	b.mu.Lock()
	b.state.CurrentTime = seconds
	b.mu.Unlock()
	b.sendCommand(playerCommand{Command: "seek", CurrentTime: seconds})
}

// State implements ports.Player.
func (b *PlayerBridge) State() domain.PlayerState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}
