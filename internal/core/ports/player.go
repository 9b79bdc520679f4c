package ports

import "coview/internal/core/domain"

// Player is the local media element collaborator. Implementations mutate the
// actual playback surface (browser bridge, test fake); the sync engine is the
// only core component that calls it.
type Player interface {
	Play()
	Pause()
	CurrentTime() float64
	SetCurrentTime(seconds float64)
	State() domain.PlayerState
}
