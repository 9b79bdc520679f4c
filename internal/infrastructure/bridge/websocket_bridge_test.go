package bridge

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSync struct {
	mu     sync.Mutex
	calls  []string
	seekTo float64
}

func (r *recordingSync) LocalPlay() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "play")
}

func (r *recordingSync) LocalPause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "pause")
}

func (r *recordingSync) LocalSeek(seconds float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "seek")
	r.seekTo = seconds
}

func (r *recordingSync) LocalLoaded() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "loaded")
}

func (r *recordingSync) SenderID() string { return "peer-test" }

func (r *recordingSync) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

func dialBridge(t *testing.T, b *PlayerBridge) (*websocket.Conn, func()) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(b.HandleWebSocket))
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn, func() {
		conn.Close()
		server.Close()
	}
}

func TestBridgeForwardsPlayerEvents(t *testing.T) {
	syncSvc := &recordingSync{}
	b := NewPlayerBridge(time.Second, 2*time.Second, zap.NewNop())
	b.SetSyncService(syncSvc)

	conn, cleanup := dialBridge(t, b)
	defer cleanup()

	require.NoError(t, conn.WriteJSON(playerEvent{Event: "play", CurrentTime: 10.5}))
	require.NoError(t, conn.WriteJSON(playerEvent{Event: "seeked", CurrentTime: 33.3}))
	require.NoError(t, conn.WriteJSON(playerEvent{Event: "pause", CurrentTime: 34}))

	require.Eventually(t, func() bool {
		return len(syncSvc.recorded()) == 3
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"play", "seek", "pause"}, syncSvc.recorded())
	assert.Equal(t, 33.3, syncSvc.seekTo)
	assert.Equal(t, 34.0, b.CurrentTime())
	assert.False(t, b.State().IsPlaying)
}

func TestBridgeLoadedEvent(t *testing.T) {
	syncSvc := &recordingSync{}
	b := NewPlayerBridge(time.Second, 2*time.Second, zap.NewNop())
	b.SetSyncService(syncSvc)

	conn, cleanup := dialBridge(t, b)
	defer cleanup()

	require.NoError(t, conn.WriteJSON(playerEvent{Event: "loaded", CurrentTime: 0, Duration: 7260}))

	require.Eventually(t, func() bool {
		return len(syncSvc.recorded()) == 1
	}, time.Second, 10*time.Millisecond)

	state := b.State()
	assert.True(t, state.IsLoaded)
	assert.Equal(t, 7260.0, state.DurationSeconds)
}

func TestBridgeIgnoresUnknownEvents(t *testing.T) {
	syncSvc := &recordingSync{}
	b := NewPlayerBridge(time.Second, 2*time.Second, zap.NewNop())
	b.SetSyncService(syncSvc)

	conn, cleanup := dialBridge(t, b)
	defer cleanup()

	require.NoError(t, conn.WriteJSON(playerEvent{Event: "volumechange", CurrentTime: 5}))
	require.NoError(t, conn.WriteJSON(playerEvent{Event: "play", CurrentTime: 5}))

	require.Eventually(t, func() bool {
		return len(syncSvc.recorded()) == 1
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"play"}, syncSvc.recorded())
}

func TestBridgePushesCommands(t *testing.T) {
	b := NewPlayerBridge(time.Second, 2*time.Second, zap.NewNop())

	conn, cleanup := dialBridge(t, b)
	defer cleanup()

	// The read loop registers the connection; give it a moment.
	require.Eventually(t, func() bool {
		b.mu.RLock()
		defer b.mu.RUnlock()
		return b.conn != nil
	}, time.Second, 10*time.Millisecond)

	b.Pause()
	b.SetCurrentTime(12.34)

	var cmd playerCommand
	require.NoError(t, conn.ReadJSON(&cmd))
	assert.Equal(t, "pause", cmd.Command)

	require.NoError(t, conn.ReadJSON(&cmd))
	assert.Equal(t, "seek", cmd.Command)
	assert.Equal(t, 12.34, cmd.CurrentTime)

	assert.False(t, b.State().IsPlaying)
	assert.Equal(t, 12.34, b.CurrentTime())
}

func TestBridgeCommandsWithoutConnectionAreDropped(t *testing.T) {
	b := NewPlayerBridge(time.Second, 2*time.Second, zap.NewNop())

	// No page connected: must not panic, state still tracked.
	b.Play()
	b.SetCurrentTime(3)
	assert.True(t, b.State().IsPlaying)
	assert.Equal(t, 3.0, b.CurrentTime())
}
