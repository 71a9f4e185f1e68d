// Package discord runs the agent's Discord presence: owner messages become
// scheduled agent runs with live streamed replies, and sensitive tool calls
// surface as DM approval prompts resolved by reaction.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/majordomo-ai/majordomo/internal/approval"
	"github.com/majordomo-ai/majordomo/internal/bus"
	"github.com/majordomo-ai/majordomo/internal/config"
	"github.com/majordomo-ai/majordomo/internal/engine"
	"github.com/majordomo-ai/majordomo/internal/scheduler"
)

const (
	emojiApprove = "👍"
	emojiDeny    = "👎"

	dedupeTTL     = 20 * time.Minute
	dedupeMax     = 5000
	debounceDelay = 800 * time.Millisecond
)

// Channel is the Discord connector.
type Channel struct {
	cfg     config.DiscordConfig
	session *discordgo.Session
	sched   *scheduler.Scheduler
	gate    *approval.Gate

	dedupe   *bus.DedupeCache
	debounce *bus.InboundDebouncer
	history  *PendingHistory
	pending  *approvalTracker

	runCtx context.Context
}

// New builds the channel; Start must be called to connect.
func New(cfg config.DiscordConfig, sched *scheduler.Scheduler, gate *approval.Gate) (*Channel, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord token is required")
	}
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsDirectMessageReactions |
		discordgo.IntentMessageContent

	c := &Channel{
		cfg:     cfg,
		session: session,
		sched:   sched,
		gate:    gate,
		dedupe:  bus.NewDedupeCache(dedupeTTL, dedupeMax),
		history: NewPendingHistory(),
		pending: newApprovalTracker(),
	}
	c.debounce = bus.NewInboundDebouncer(debounceDelay, c.dispatch)
	return c, nil
}

// Start connects and begins handling events until ctx is cancelled.
func (c *Channel) Start(ctx context.Context) error {
	c.runCtx = ctx
	c.session.AddHandler(c.onMessage)
	c.session.AddHandler(c.onReaction)

	if c.gate != nil {
		c.gate.OnRequest(c.notifyApproval)
	}

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	slog.Info("discord channel connected", "owner", c.cfg.OwnerID)

	<-ctx.Done()
	c.debounce.Stop()
	return c.session.Close()
}

// Send delivers content to a Discord channel. Registered on the message bus
// so cron jobs with deliver=true can reach the owner.
func (c *Channel) Send(_ context.Context, msg bus.OutboundMessage) error {
	_, err := c.session.ChannelMessageSend(msg.ChatID, clampMessage(msg.Content))
	return err
}

func (c *Channel) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.Author.ID == s.State.User.ID {
		return
	}
	if c.dedupe.IsDuplicate("msg:" + m.ID) {
		return
	}

	// A personal agent answers its owner; everyone else's messages only feed
	// the group context window.
	if c.cfg.OwnerID != "" && m.Author.ID != c.cfg.OwnerID {
		c.history.Record(m.ChannelID, HistoryEntry{
			Sender:    m.Author.Username,
			Body:      m.Content,
			Timestamp: time.Now(),
			MessageID: m.ID,
		}, DefaultGroupHistoryLimit)
		return
	}
	if m.Content == "" {
		return
	}

	c.debounce.Push(bus.InboundMessage{
		Channel:      "discord",
		ChatID:       m.ChannelID,
		SenderID:     m.Author.ID,
		SenderName:   m.Author.Username,
		Session:      "discord:" + m.ChannelID,
		Content:      m.Content,
		ReceivedAtMS: time.Now().UnixMilli(),
	})
}

// dispatch runs one merged inbound message through the scheduler, streaming
// the answer into an edited draft message.
func (c *Channel) dispatch(msg bus.InboundMessage) {
	ctx := c.runCtx
	if ctx == nil {
		ctx = context.Background()
	}

	content := c.history.BuildContext(msg.ChatID, msg.Content, DefaultGroupHistoryLimit)
	c.history.Clear(msg.ChatID)

	draft := newDraftStream(c.session, msg.ChatID)
	sink := engine.SinkFuncs{
		Text: func(delta string) { draft.Append(delta) },
		Event: func(ev engine.ToolEvent) {
			if ev.Type == engine.ToolAwaitingApproval {
				draft.Note(fmt.Sprintf("⏳ waiting for approval: %s", ev.Tool))
			}
		},
	}

	outcomeCh := c.sched.Schedule(ctx, "main", scheduler.Request{
		Session: msg.Session,
		Message: content,
		Sink:    sink,
	})

	go func() {
		out := <-outcomeCh
		switch {
		case out.Err != nil:
			slog.Warn("discord run failed", "session", msg.Session, "error", out.Err)
			draft.Finish("Something went wrong: " + out.Err.Error())
		case out.Result.FinalText != "":
			draft.Finish(out.Result.FinalText)
		default:
			draft.Finish("(no reply)")
		}
	}()
}
