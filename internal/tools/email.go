package tools

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPConfig carries the relay settings for the email tool.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// EmailTool sends mail through a configured SMTP relay. It is sensitive:
// every send is gated on human approval before the handler runs.
type EmailTool struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailTool(cfg SMTPConfig) *EmailTool {
	return &EmailTool{cfg: cfg, send: smtp.SendMail}
}

func (t *EmailTool) Name() string { return "send_email" }

func (t *EmailTool) Description() string {
	return "Send an email from the configured account. Requires approval for every send."
}

func (t *EmailTool) Sensitive() bool { return true }

func (t *EmailTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"to": map[string]interface{}{
				"type":        "string",
				"description": "Recipient address, or several separated by commas.",
			},
			"subject": map[string]interface{}{
				"type":        "string",
				"description": "Subject line.",
			},
			"body": map[string]interface{}{
				"type":        "string",
				"description": "Plain-text message body.",
			},
		},
		"required": []string{"to", "subject", "body"},
	}
}

func (t *EmailTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	to, _ := args["to"].(string)
	subject, _ := args["subject"].(string)
	body, _ := args["body"].(string)

	recipients := splitRecipients(to)
	if len(recipients) == 0 {
		return ErrorResult("to is required")
	}
	if t.cfg.Host == "" || t.cfg.From == "" {
		return ErrorResult("email is not configured")
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", t.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(recipients, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", t.cfg.Host, t.cfg.Port)
	var auth smtp.Auth
	if t.cfg.Username != "" {
		auth = smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)
	}

	done := make(chan error, 1)
	go func() {
		done <- t.send(addr, auth, t.cfg.From, recipients, []byte(msg.String()))
	}()
	select {
	case err := <-done:
		if err != nil {
			return ErrorResult(fmt.Sprintf("send failed: %v", err)).WithError(err)
		}
	case <-ctx.Done():
		return ErrorResult("send cancelled: " + ctx.Err().Error()).WithError(ctx.Err())
	}

	return UserResult(fmt.Sprintf("Email sent to %s: %s", strings.Join(recipients, ", "), subject))
}

func splitRecipients(to string) []string {
	var out []string
	for _, part := range strings.Split(to, ",") {
		if part = strings.TrimSpace(part); part != "" && strings.Contains(part, "@") {
			out = append(out, part)
		}
	}
	return out
}
