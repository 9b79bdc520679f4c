package domain

// PlayerState is a snapshot of the local media element. It is never
// transmitted; only the deltas (SyncMessages) cross the wire.
type PlayerState struct {
	IsPlaying       bool    `json:"is_playing"`
	CurrentTime     float64 `json:"current_time"`
	DurationSeconds float64 `json:"duration_seconds"`
	IsLoaded        bool    `json:"is_loaded"`
}
