package clipboard

import (
	"github.com/atotto/clipboard"
)

// SystemClipboard writes to the OS clipboard. Best-effort: headless hosts
// have no clipboard and callers treat failures as non-fatal.
type SystemClipboard struct{}

func NewSystemClipboard() *SystemClipboard {
	return &SystemClipboard{}
}

func (c *SystemClipboard) Write(text string) error {
	return clipboard.WriteAll(text)
}
