// Package mail sends run notifications over SMTP.
package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"
)

const dialTimeout = 10 * time.Second

// ErrNoRecipients is returned by Send when the recipient list is empty.
var ErrNoRecipients = errors.New("no mail recipients")

// Config describes the SMTP account notifications are sent from.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// SSL selects implicit TLS (default port 465) instead of plain SMTP (default port 25).
	SSL bool
	// From defaults to Username.
	From string
}

// Addr returns host:port, applying the default port for the connection mode.
func (c Config) Addr() string {
	port := c.Port
	if port == 0 {
		port = 25
		if c.SSL {
			port = 465
		}
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

func (c Config) sender() string {
	if c.From != "" {
		return c.From
	}
	return c.Username
}

type sendFunc func(ctx context.Context, cfg Config, from string, to []string, msg []byte) error

// Notifier composes a plain-text message and delivers it over SMTP.
type Notifier struct {
	cfg    Config
	send   sendFunc
	now    func() time.Time
	logger *zap.Logger
}

// New validates cfg and returns a notifier.
func New(cfg Config, logger *zap.Logger) (*Notifier, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.sender() == "" {
		return nil, fmt.Errorf("smtp sender is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{cfg: cfg, send: deliver, now: time.Now, logger: logger}, nil
}

// Send mails subject and body to recipients.
func (n *Notifier) Send(ctx context.Context, recipients []string, subject, body string) error {
	to := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if r = strings.TrimSpace(r); r != "" {
			to = append(to, r)
		}
	}
	if len(to) == 0 {
		return ErrNoRecipients
	}
	from := n.cfg.sender()
	msg, err := Compose(from, to, subject, body, n.now())
	if err != nil {
		return err
	}
	if err := n.send(ctx, n.cfg, from, to, msg); err != nil {
		return fmt.Errorf("send mail via %s: %w", n.cfg.Addr(), err)
	}
	n.logger.Info("notification sent", zap.Strings("to", to), zap.String("subject", subject))
	return nil
}

// Compose renders a single-part UTF-8 text message.
func Compose(from string, to []string, subject, body string, date time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(date)
	h.SetAddressList("From", []*mail.Address{{Address: from}})
	rcpts := make([]*mail.Address, 0, len(to))
	for _, addr := range to {
		rcpts = append(rcpts, &mail.Address{Address: addr})
	}
	h.SetAddressList("To", rcpts)
	h.SetSubject(subject)
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generate message id: %w", err)
	}

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message writer: %w", err)
	}
	if _, err := w.Write([]byte(body)); err != nil {
		return nil, fmt.Errorf("write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close message writer: %w", err)
	}
	return buf.Bytes(), nil
}

func deliver(ctx context.Context, cfg Config, from string, to []string, msg []byte) error {
	addr := cfg.Addr()
	dialer := &net.Dialer{Timeout: dialTimeout}

	var (
		conn net.Conn
		err  error
	)
	if cfg.SSL {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}}
		conn, err = tlsDialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if !cfg.SSL {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}
	if cfg.Username != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)); err != nil {
				return fmt.Errorf("SMTP authentication failed: %w", err)
			}
		}
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("failed to set mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("failed to set mail recipient %s: %w", rcpt, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}
	return client.Quit()
}
