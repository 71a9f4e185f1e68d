package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// IMAPConfig carries the mailbox settings for the read_email tool.
type IMAPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// EmailSummary is one inbox message as reported to the model. Bodies are
// not fetched; the envelope is enough for a digest.
type EmailSummary struct {
	From    string    `json:"from"`
	Subject string    `json:"subject"`
	Date    time.Time `json:"date"`
}

// ReadEmailTool lists inbox mail over IMAP, unread by default. Reading is
// not gated on approval: it discloses nothing and changes nothing (messages
// are selected read-only, so the seen flag stays untouched).
type ReadEmailTool struct {
	cfg   IMAPConfig
	fetch func(cfg IMAPConfig, q mailQuery) ([]EmailSummary, error)
}

// mailQuery narrows an inbox listing.
type mailQuery struct {
	sender     string
	subject    string
	unreadOnly bool
	limit      int
}

func NewReadEmailTool(cfg IMAPConfig) *ReadEmailTool {
	return &ReadEmailTool{cfg: cfg, fetch: fetchInbox}
}

func (t *ReadEmailTool) Name() string { return "read_email" }

func (t *ReadEmailTool) Description() string {
	return "List recent inbox email, unread only by default. Returns sender, subject, and date for each message."
}

func (t *ReadEmailTool) Sensitive() bool { return false }

func (t *ReadEmailTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"sender": map[string]interface{}{
				"type":        "string",
				"description": "Only messages from this address.",
			},
			"subject": map[string]interface{}{
				"type":        "string",
				"description": "Only messages whose subject contains this text.",
			},
			"unread_only": map[string]interface{}{
				"type":        "boolean",
				"description": "Restrict to unread mail (default true).",
			},
			"limit": map[string]interface{}{
				"type":        "number",
				"description": "Maximum messages to return (default 10).",
			},
		},
	}
}

func (t *ReadEmailTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if t.cfg.Host == "" {
		return ErrorResult("email reading is not configured")
	}

	q := mailQuery{unreadOnly: true, limit: 10}
	q.sender, _ = args["sender"].(string)
	q.subject, _ = args["subject"].(string)
	if v, ok := args["unread_only"].(bool); ok {
		q.unreadOnly = v
	}
	if v, ok := args["limit"].(float64); ok && int(v) > 0 {
		q.limit = int(v)
	}

	type fetched struct {
		mail []EmailSummary
		err  error
	}
	done := make(chan fetched, 1)
	go func() {
		mail, err := t.fetch(t.cfg, q)
		done <- fetched{mail, err}
	}()

	select {
	case f := <-done:
		if f.err != nil {
			return ErrorResult(fmt.Sprintf("read email failed: %v", f.err)).WithError(f.err)
		}
		return NewResult(formatEmailSummaries(f.mail, q.unreadOnly))
	case <-ctx.Done():
		return ErrorResult("read email cancelled: " + ctx.Err().Error()).WithError(ctx.Err())
	}
}

// formatEmailSummaries renders the listing, newest first.
func formatEmailSummaries(mail []EmailSummary, unreadOnly bool) string {
	if len(mail) == 0 {
		if unreadOnly {
			return "No unread email."
		}
		return "No matching email."
	}
	sort.Slice(mail, func(i, j int) bool { return mail[i].Date.After(mail[j].Date) })
	data, _ := json.MarshalIndent(map[string]interface{}{
		"count":  len(mail),
		"emails": mail,
	}, "", "  ")
	return string(data)
}

// fetchInbox lists envelope data for matching inbox messages. The mailbox is
// selected read-only so listing never marks anything seen.
func fetchInbox(cfg IMAPConfig, q mailQuery) ([]EmailSummary, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	c, err := client.DialTLS(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer c.Logout()

	if err := c.Login(cfg.Username, cfg.Password); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if _, err := c.Select("INBOX", true); err != nil {
		return nil, fmt.Errorf("select inbox: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	if q.unreadOnly {
		criteria.WithoutFlags = []string{imap.SeenFlag}
	}
	if q.sender != "" {
		criteria.Header.Add("From", q.sender)
	}
	if q.subject != "" {
		criteria.Header.Add("Subject", q.subject)
	}
	ids, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	// Sequence numbers ascend with arrival, so the tail is the newest mail.
	if q.limit > 0 && len(ids) > q.limit {
		ids = ids[len(ids)-q.limit:]
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	messages := make(chan *imap.Message, len(ids))
	fetchErr := make(chan error, 1)
	go func() {
		fetchErr <- c.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope}, messages)
	}()

	var out []EmailSummary
	for msg := range messages {
		if msg.Envelope == nil {
			continue
		}
		s := EmailSummary{Subject: msg.Envelope.Subject, Date: msg.Envelope.Date}
		if len(msg.Envelope.From) > 0 {
			s.From = msg.Envelope.From[0].Address()
		}
		out = append(out, s)
	}
	if err := <-fetchErr; err != nil {
		return nil, fmt.Errorf("fetch envelopes: %w", err)
	}
	return out, nil
}
