// Package notify publishes authentication-required and other run
// notifications through pluggable sinks (SMTP, webhook, Telegram), plus
// the remote-command producers that feed a watch.Loop's command channel:
// a webhook control channel and a Telegram bot.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
)

// Message is one notification to deliver.
type Message struct {
	Subject string
	Body    string
}

// Notifier delivers a Message through some external channel.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Multi fans a notification out to every configured Notifier, logging
// (not failing) on a per-sink error.
type Multi struct {
	Sinks  []Notifier
	Logger *slog.Logger
}

func (m *Multi) Notify(ctx context.Context, msg Message) error {
	for _, sink := range m.Sinks {
		if err := sink.Notify(ctx, msg); err != nil {
			m.Logger.Error("notifier sink failed", slog.String("error", err.Error()))
		}
	}

	return nil
}

// SMTPNotifier sends notifications via stdlib net/smtp for the account's
// NotificationEmail field — a standard-library component since no example
// repo in the corpus imports an SMTP client library (see DESIGN.md).
type SMTPNotifier struct {
	Addr     string // host:port
	Auth     smtp.Auth
	From     string
	To       []string
}

func (s *SMTPNotifier) Notify(ctx context.Context, msg Message) error {
	body := fmt.Sprintf("Subject: %s\r\n\r\n%s\r\n", msg.Subject, msg.Body)

	if err := smtp.SendMail(s.Addr, s.Auth, s.From, s.To, []byte(body)); err != nil {
		return fmt.Errorf("notify: sending mail: %w", err)
	}

	return nil
}
