package mailer

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/bissquit/notes-garden/internal/domain"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

const welcomeSubject = "Welcome to Notes Garden"

// Enqueuer accepts messages for background delivery.
type Enqueuer interface {
	Enqueue(msg Message) error
}

// Welcomer queues a welcome mail for every new user.
type Welcomer struct {
	tmpl  *template.Template
	queue Enqueuer
}

// NewWelcomer parses the embedded template.
func NewWelcomer(queue Enqueuer) (*Welcomer, error) {
	tmpl, err := template.New("welcome.tmpl").
		Funcs(template.FuncMap{"formatTime": formatTime}).
		ParseFS(templatesFS, "templates/welcome.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse welcome template: %w", err)
	}
	return &Welcomer{tmpl: tmpl, queue: queue}, nil
}

// OnUserCreated renders and queues the welcome mail. Delivery happens later.
func (w *Welcomer) OnUserCreated(_ context.Context, user *domain.User) error {
	msg, err := w.render(user)
	if err != nil {
		return err
	}
	if err := w.queue.Enqueue(msg); err != nil {
		return fmt.Errorf("queue welcome mail: %w", err)
	}
	return nil
}

func (w *Welcomer) render(user *domain.User) (Message, error) {
	var buf bytes.Buffer
	err := w.tmpl.Execute(&buf, struct {
		Name      string
		Email     string
		CreatedAt time.Time
	}{
		Name:      user.Profile.Name,
		Email:     user.Profile.Email,
		CreatedAt: user.CreatedAt,
	})
	if err != nil {
		return Message{}, fmt.Errorf("render welcome mail: %w", err)
	}

	return Message{
		To:      user.Profile.Email,
		Subject: welcomeSubject,
		Body:    strings.ReplaceAll(strings.TrimSpace(buf.String()), "\n", "\r\n"),
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format("Jan 2, 2006 15:04 UTC")
}
