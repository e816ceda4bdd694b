package alerting

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// EmailOptions parameterise the SMTP notifier.
type EmailOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// EmailNotifier delivers notifications over SMTP with STARTTLS.
type EmailNotifier struct {
	opts   EmailOptions
	logger zerolog.Logger
}

// NewEmailNotifier constructs an SMTP notifier.
func NewEmailNotifier(opts EmailOptions, logger zerolog.Logger) *EmailNotifier {
	if opts.Port <= 0 {
		opts.Port = 587
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &EmailNotifier{
		opts:   opts,
		logger: logger.With().Str("component", "alert_email").Logger(),
	}
}

// Notify sends one message to the notification recipient.
func (n *EmailNotifier) Notify(ctx context.Context, note Notification) error {
	if n.opts.Host == "" {
		return errors.New("smtp host not configured")
	}
	if note.Recipient == "" {
		return errors.New("notification recipient is empty")
	}

	addr := fmt.Sprintf("%s:%d", n.opts.Host, n.opts.Port)

	dialer := net.Dialer{Timeout: n.opts.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp server: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(n.opts.Timeout))
	}

	client, err := smtp.NewClient(conn, n.opts.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: n.opts.Host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}

	if n.opts.Username != "" {
		auth := smtp.PlainAuth("", n.opts.Username, n.opts.Password, n.opts.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(n.opts.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(note.Recipient); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := writer.Write([]byte(renderEmail(n.opts.From, note))); err != nil {
		writer.Close()
		return fmt.Errorf("smtp write body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("smtp finish body: %w", err)
	}

	if err := client.Quit(); err != nil {
		n.logger.Debug().Err(err).Msg("smtp quit failed after accepted message")
	}

	n.logger.Info().Str("recipient", note.Recipient).Str("subject", note.Subject).Msg("alert sent (email)")
	return nil
}

func renderEmail(from string, note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("From: " + from + "\r\n")
	builder.WriteString("To: " + note.Recipient + "\r\n")
	builder.WriteString("Subject: " + note.Subject + "\r\n")
	builder.WriteString("MIME-Version: 1.0\r\n")
	builder.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	builder.WriteString("\r\n")
	builder.WriteString(strings.ReplaceAll(note.Body, "\n", "\r\n"))
	builder.WriteString("\r\n")
	return builder.String()
}

var _ Notifier = (*EmailNotifier)(nil)
