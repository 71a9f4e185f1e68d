package discord

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/majordomo-ai/majordomo/internal/approval"
)

// approvalTracker maps approval prompt messages to their tool call IDs so
// a reaction on the prompt can be routed back to the gate.
type approvalTracker struct {
	mu    sync.Mutex
	byMsg map[string]string // message ID → call ID
}

func newApprovalTracker() *approvalTracker {
	return &approvalTracker{byMsg: make(map[string]string)}
}

func (t *approvalTracker) put(messageID, callID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byMsg[messageID] = callID
}

func (t *approvalTracker) take(messageID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	callID, ok := t.byMsg[messageID]
	if ok {
		delete(t.byMsg, messageID)
	}
	return callID, ok
}

// notifyApproval DMs the owner an approval prompt and pre-seeds the
// approve/deny reactions. Runs on the gate's request path, so failures
// only log — the gate's timeout still closes the request.
func (c *Channel) notifyApproval(p approval.Pending) {
	if c.cfg.OwnerID == "" {
		return
	}

	dm, err := c.session.UserChannelCreate(c.cfg.OwnerID)
	if err != nil {
		slog.Warn("approval DM channel failed", "error", err)
		return
	}

	text := fmt.Sprintf("**Approval required**\nTool: `%s`\nSession: `%s`\n\n%s\n\nReact %s to approve or %s to deny.",
		p.Tool, p.Session, p.Prompt, emojiApprove, emojiDeny)
	msg, err := c.session.ChannelMessageSend(dm.ID, clampMessage(text))
	if err != nil {
		slog.Warn("approval DM send failed", "error", err)
		return
	}

	c.pending.put(msg.ID, p.ID)
	c.session.MessageReactionAdd(dm.ID, msg.ID, emojiApprove)
	c.session.MessageReactionAdd(dm.ID, msg.ID, emojiDeny)
}

func (c *Channel) onReaction(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if r.UserID == s.State.User.ID {
		return
	}
	// Only the owner decides.
	if c.cfg.OwnerID != "" && r.UserID != c.cfg.OwnerID {
		return
	}

	var outcome approval.Outcome
	switch r.Emoji.Name {
	case emojiApprove:
		outcome = approval.OutcomeApproved
	case emojiDeny:
		outcome = approval.OutcomeDenied
	default:
		return
	}

	callID, ok := c.pending.take(r.MessageID)
	if !ok {
		return
	}

	err := c.gate.Resolve(callID, outcome, "discord:"+r.UserID)
	status := map[approval.Outcome]string{
		approval.OutcomeApproved: "✅ Approved.",
		approval.OutcomeDenied:   "⛔ Denied.",
	}[outcome]
	if err != nil {
		// The gate timed out or another surface answered first.
		status = "⌛ This request was already resolved or expired."
	}
	c.session.ChannelMessageSend(r.ChannelID, status)
}
