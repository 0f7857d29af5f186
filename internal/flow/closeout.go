// Package flow provides the inactivity close-out behavior.
package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/surtifrio/flowbot/internal/models"
)

// CloseOutConfig is the injected close-out payload. Two historical
// deployments diverged here (one sent an image plus text, the other text
// only); both are expressible: MediaURL empty means text-only.
type CloseOutConfig struct {
	// Text is always sent. Required.
	Text string
	// MediaURL, when set, is sent as an image before the text. A failed
	// media send is logged and does not suppress the text message.
	MediaURL string
}

// DefaultCloseOutText is used when no close-out text is configured.
const DefaultCloseOutText = "Hemos cerrado la conversación por inactividad. Escríbenos de nuevo cuando quieras, ¡estamos para servirte! 🛒"

// CloseOutNotifier performs the close-out when an inactivity timer fires:
// send the configured payload, append it to the transcript, and reset the
// session to the root flow without deleting captured history.
type CloseOutNotifier struct {
	sender   Sender
	sessions *SessionManager
	log      ConversationLog
	cfg      CloseOutConfig
}

// NewCloseOutNotifier creates a CloseOutNotifier with the given payload.
func NewCloseOutNotifier(sender Sender, sessions *SessionManager, log ConversationLog, cfg CloseOutConfig) *CloseOutNotifier {
	if cfg.Text == "" {
		cfg.Text = DefaultCloseOutText
	}
	return &CloseOutNotifier{sender: sender, sessions: sessions, log: log, cfg: cfg}
}

// CloseOut sends the close-out payload to the identity and resets its session
// to root. It satisfies CloseOutFunc. All failures are logged and swallowed;
// there is no retry of the close-out send.
func (n *CloseOutNotifier) CloseOut(identity string) {
	ctx := context.Background()
	slog.Info("CloseOutNotifier closing conversation", "identity", identity, "has_media", n.cfg.MediaURL != "")

	if n.cfg.MediaURL != "" {
		media := models.MediaMessage(n.cfg.Text, n.cfg.MediaURL)
		if err := n.sender.SendMessage(ctx, identity, media); err != nil {
			// Image delivery failure must not prevent the text close-out.
			slog.Error("CloseOutNotifier media send failed", "error", err, "identity", identity)
		}
	}

	text := models.TextMessage(n.cfg.Text)
	if err := n.sender.SendMessage(ctx, identity, text); err != nil {
		slog.Error("CloseOutNotifier text send failed", "error", err, "identity", identity)
	}

	if err := n.log.AppendConversationEntry(models.ConversationEntry{
		Identity:        identity,
		Role:            models.RoleBot,
		Text:            n.cfg.Text,
		InteractionKind: "close_out",
		Timestamp:       time.Now(),
	}); err != nil {
		slog.Error("CloseOutNotifier transcript append failed", "error", err, "identity", identity)
	}

	if err := n.sessions.ResetToRoot(identity); err != nil {
		slog.Error("CloseOutNotifier session reset failed", "error", err, "identity", identity)
	}
}
