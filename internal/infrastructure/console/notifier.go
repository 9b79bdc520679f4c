package console

import (
	"fmt"

	"coview/internal/core/domain"

	"go.uber.org/zap"
)

// Notifier is the terminal-facing collaborator: it turns session events into
// user guidance on stdout.
type Notifier struct {
	log *zap.SugaredLogger
}

func NewNotifier(logger *zap.Logger) *Notifier {
	return &Notifier{log: logger.Sugar()}
}

func (n *Notifier) SessionStateChanged(state domain.SessionState) {
	switch state {
	case domain.SessionAwaitingRemoteSignal:
		fmt.Println("Waiting for your peer's answer. Paste it below when you have it.")
	case domain.SessionNegotiating:
		fmt.Println("Negotiating connection...")
	case domain.SessionConnected:
		fmt.Println("Connected. Playback is now shared with your peer.")
	case domain.SessionClosed:
		fmt.Println("Session closed.")
	case domain.SessionFailed:
		fmt.Println("Session failed. Start a new session to try again.")
	}
}

func (n *Notifier) LocalSignalReady(blob *domain.SignalBlob, copiedToClipboard bool) {
	if copiedToClipboard {
		fmt.Printf("Your %s signal was copied to the clipboard. Send it to your peer.\n", blob.Kind)
		return
	}
	fmt.Printf("Send this %s signal to your peer:\n%s\n", blob.Kind, blob.String())
}

func (n *Notifier) PeerReady() {
	fmt.Println("Your peer has loaded their video file.")
}
