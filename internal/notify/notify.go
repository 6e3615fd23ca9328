// Package notify delivers review notifications by email and to the console.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/joescharf/reviewpipe/internal/models"
	"github.com/joescharf/reviewpipe/internal/output"
	"github.com/joescharf/reviewpipe/internal/review"
)

// DefaultSMTPPort is the submission port used with STARTTLS.
const DefaultSMTPPort = 587

// SMTPConfig holds the mail server settings.
type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Password string
	To       []string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier emails each notification. smtp.SendMail upgrades the
// connection with STARTTLS when the server offers it.
type SMTPNotifier struct {
	cfg  SMTPConfig
	send sendFunc
	now  func() time.Time
}

// NewSMTPNotifier validates cfg and returns a notifier.
func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp server is required")
	}
	if cfg.From == "" {
		return nil, errors.New("sender address is required")
	}
	if len(cfg.To) == 0 {
		return nil, errors.New("at least one recipient is required")
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultSMTPPort
	}
	return &SMTPNotifier{cfg: cfg, send: smtp.SendMail, now: time.Now}, nil
}

// Notify implements review.Notifier.
func (n *SMTPNotifier) Notify(ctx context.Context, event models.NotificationEvent, msg models.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if n.cfg.Password != "" {
		auth = smtp.PlainAuth("", n.cfg.From, n.cfg.Password, n.cfg.Host)
	}
	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	if err := n.send(addr, auth, n.cfg.From, n.cfg.To, n.buildMessage(msg)); err != nil {
		return fmt.Errorf("send %s email: %w", event, err)
	}
	return nil
}

func (n *SMTPNotifier) buildMessage(msg models.Message) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(n.cfg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", n.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(msg.Body, "\r\n", "\n"), "\n", "\r\n"))
	return b.Bytes()
}

// ConsoleNotifier prints notifications through the UI. The body is only shown
// in verbose mode.
type ConsoleNotifier struct {
	UI *output.UI
}

// Notify implements review.Notifier.
func (c *ConsoleNotifier) Notify(_ context.Context, event models.NotificationEvent, msg models.Message) error {
	c.UI.Info("[%s] %s", event, msg.Subject)
	for _, line := range strings.Split(strings.TrimSpace(msg.Body), "\n") {
		c.UI.VerboseLog("%s", line)
	}
	return nil
}

// Multi fans a notification out to several notifiers. Every notifier is
// tried; the errors are joined.
type Multi []review.Notifier

// Notify implements review.Notifier.
func (m Multi) Notify(ctx context.Context, event models.NotificationEvent, msg models.Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, event, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
