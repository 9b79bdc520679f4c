package utils

import (
	"fmt"

	"github.com/google/uuid"
)

// GenerateSenderID generates the per-session sender id used for self-echo
// suppression. It carries no identity meaning.
func GenerateSenderID() string {
	return fmt.Sprintf("peer-%s", uuid.NewString())
}

// GenerateSessionID generates a unique session ID.
func GenerateSessionID() string {
	return fmt.Sprintf("session-%s", uuid.NewString())
}
