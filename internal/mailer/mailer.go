// Package mailer renders account mail and delivers it over SMTP from a background queue.
package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/bissquit/notes-garden/internal/pkg/ctxlog"
	"golang.org/x/time/rate"
)

// Config holds SMTP mailer configuration.
type Config struct {
	Enabled      bool
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	FromAddress  string
	// StartTLS upgrades the connection when the server offers it.
	StartTLS bool
	// RatePerSecond and Burst throttle outgoing mail.
	RatePerSecond float64
	Burst         int
	DialTimeout   time.Duration
}

// Message is a plain-text mail to one recipient.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers messages over SMTP.
type Mailer struct {
	config  Config
	auth    smtp.Auth
	limiter *rate.Limiter
}

// New creates a mailer. Returns error if enabled but required config is missing.
func New(config Config) (*Mailer, error) {
	if config.Enabled {
		if config.SMTPHost == "" {
			return nil, errors.New("mailer: SMTP host is required when enabled")
		}
		if config.FromAddress == "" {
			return nil, errors.New("mailer: from address is required when enabled")
		}
	}

	if config.SMTPPort == 0 {
		config.SMTPPort = 587
	}
	if config.RatePerSecond <= 0 {
		config.RatePerSecond = 1
	}
	if config.Burst <= 0 {
		config.Burst = 5
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 10 * time.Second
	}

	var auth smtp.Auth
	if config.SMTPUser != "" && config.SMTPPassword != "" {
		auth = smtp.PlainAuth("", config.SMTPUser, config.SMTPPassword, config.SMTPHost)
	}

	slog.Info("mailer configured",
		"enabled", config.Enabled,
		"smtp_host", config.SMTPHost,
		"smtp_port", config.SMTPPort,
		"from_address", config.FromAddress,
		"rate_per_second", config.RatePerSecond,
	)

	return &Mailer{
		config:  config,
		auth:    auth,
		limiter: rate.NewLimiter(rate.Limit(config.RatePerSecond), config.Burst),
	}, nil
}

// Send delivers msg to its single recipient, waiting for the rate limiter first.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if !m.config.Enabled {
		ctxlog.FromContext(ctx).Debug("mailer disabled, skipping send", "subject", msg.Subject)
		return nil
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	addr := net.JoinHostPort(m.config.SMTPHost, fmt.Sprint(m.config.SMTPPort))
	return m.deliver(ctx, addr, msg.To, m.buildMessage(msg.To, msg.Subject, msg.Body))
}

func (m *Mailer) buildMessage(to, subject, body string) []byte {
	var msg strings.Builder

	fmt.Fprintf(&msg, "From: %s\r\n", m.config.FromAddress)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", sanitizeHeader(subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	return []byte(msg.String())
}

func (m *Mailer) deliver(ctx context.Context, addr, to string, msg []byte) error {
	dialer := &net.Dialer{Timeout: m.config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	defer func() { _ = conn.Close() }()

	client, err := smtp.NewClient(conn, m.config.SMTPHost)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if m.config.StartTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			tlsConfig := &tls.Config{
				ServerName: m.config.SMTPHost,
				MinVersion: tls.VersionTLS12,
			}
			if err := client.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}

	if m.auth != nil {
		if err := client.Auth(m.auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := client.Mail(extractEmail(m.config.FromAddress)); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}

	return client.Quit()
}

// extractEmail extracts the address from formats like "Name <email@example.com>".
func extractEmail(address string) string {
	if start := strings.Index(address, "<"); start != -1 {
		if end := strings.Index(address, ">"); end > start {
			return address[start+1 : end]
		}
	}
	return address
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(v)
}
