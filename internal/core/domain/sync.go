package domain

import (
	"encoding/json"
	"fmt"
)

// SyncAction is the verb of a playback synchronization message.
type SyncAction string

const (
	ActionPlay  SyncAction = "play"
	ActionPause SyncAction = "pause"
	ActionSeek  SyncAction = "seek"
	ActionReady SyncAction = "ready"
)

// SyncMessage is the wire unit of the sync protocol. The JSON layout is the
// interop contract: exactly these keys, unknown extra keys ignored on receipt.
type SyncMessage struct {
	Action    SyncAction `json:"action"`
	Timestamp float64    `json:"timestamp"`
	SenderID  string     `json:"senderId"`
}

// Encode serializes the message to its UTF-8 JSON wire form.
func (m SyncMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeSyncMessage parses and validates a received payload. Malformed
// payloads and unknown actions are decode errors; callers drop them.
func DecodeSyncMessage(data []byte) (SyncMessage, error) {
	var msg SyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SyncMessage{}, fmt.Errorf("malformed sync payload: %w", err)
	}
	switch msg.Action {
	case ActionPlay, ActionPause, ActionSeek, ActionReady:
	default:
		return SyncMessage{}, fmt.Errorf("unknown sync action %q", msg.Action)
	}
	if msg.Timestamp < 0 {
		return SyncMessage{}, fmt.Errorf("negative timestamp %f", msg.Timestamp)
	}
	return msg, nil
}
