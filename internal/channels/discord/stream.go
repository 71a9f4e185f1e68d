package discord

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	// Discord caps messages at 2000 characters.
	maxMessageChars = 2000

	// editThrottle is the minimum delay between message edits, to stay
	// under the Discord edit rate limit.
	editThrottle = time.Second
)

// draftStream accumulates streamed text and mirrors it into a single
// Discord message that is created on first output and edited as more
// arrives. Finish posts the final text and stops all edits.
type draftStream struct {
	session   *discordgo.Session
	channelID string

	mu        sync.Mutex
	buf       strings.Builder
	note      string
	messageID string
	lastSent  string
	lastEdit  time.Time
	finished  bool
	timer     *time.Timer
}

func newDraftStream(session *discordgo.Session, channelID string) *draftStream {
	return &draftStream{session: session, channelID: channelID}
}

// Append adds a text delta and schedules a flush.
func (d *draftStream) Append(delta string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.finished {
		return
	}
	d.buf.WriteString(delta)
	d.scheduleFlushLocked()
}

// Note replaces the status line shown under the streamed text while a tool
// round or approval is in flight.
func (d *draftStream) Note(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.finished {
		return
	}
	d.note = text
	d.scheduleFlushLocked()
}

// Finish stops streaming and writes the final text.
func (d *draftStream) Finish(final string) {
	d.mu.Lock()
	d.finished = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.note = ""
	d.mu.Unlock()

	d.post(clampMessage(final))
}

// scheduleFlushLocked flushes now when outside the throttle window, or arms
// a timer for the window's end. Caller holds d.mu.
func (d *draftStream) scheduleFlushLocked() {
	if wait := editThrottle - time.Since(d.lastEdit); wait > 0 {
		if d.timer == nil {
			d.timer = time.AfterFunc(wait, d.flush)
		}
		return
	}
	go d.flush()
}

func (d *draftStream) flush() {
	d.mu.Lock()
	d.timer = nil
	if d.finished {
		d.mu.Unlock()
		return
	}
	text := d.buf.String()
	if d.note != "" {
		text += "\n\n_" + d.note + "_"
	}
	text = clampMessage(text)
	if text == "" || text == d.lastSent {
		d.mu.Unlock()
		return
	}
	d.lastEdit = time.Now()
	d.mu.Unlock()

	d.post(text)
}

// post creates or edits the draft message.
func (d *draftStream) post(text string) {
	if text == "" {
		return
	}

	d.mu.Lock()
	messageID := d.messageID
	d.mu.Unlock()

	if messageID == "" {
		msg, err := d.session.ChannelMessageSend(d.channelID, text)
		if err != nil {
			slog.Debug("draft send failed", "channel", d.channelID, "error", err)
			return
		}
		d.mu.Lock()
		d.messageID = msg.ID
		d.lastSent = text
		d.mu.Unlock()
		return
	}

	if _, err := d.session.ChannelMessageEdit(d.channelID, messageID, text); err != nil {
		slog.Debug("draft edit failed", "channel", d.channelID, "error", err)
		return
	}
	d.mu.Lock()
	d.lastSent = text
	d.mu.Unlock()
}

// clampMessage truncates to the Discord message limit, keeping the tail
// marker visible.
func clampMessage(s string) string {
	if len(s) <= maxMessageChars {
		return s
	}
	const marker = "… (truncated)"
	return s[:maxMessageChars-len(marker)] + marker
}
