// Package mail sends invoice emails over SMTP.
package mail

import (
	"bytes"
	"context"

	"github.com/go-faster/errors"
	gomail "github.com/wneessen/go-mail"

	"github.com/xenking/outlet-commerce/internal/domain/notification"
)

var _ notification.EmailSender = (*Sender)(nil)

// Config holds SMTP settings. Username enables PLAIN auth.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Sender delivers email through an SMTP relay.
type Sender struct {
	cfg    Config
	client *gomail.Client
}

// New creates a Sender. No connection is made until the first send.
func New(cfg Config) (*Sender, error) {
	if cfg.From == "" {
		return nil, errors.New("from address is required")
	}
	opts := []gomail.Option{
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
	}
	if cfg.Port > 0 {
		opts = append(opts, gomail.WithPort(cfg.Port))
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	c, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "smtp client")
	}
	return &Sender{cfg: cfg, client: c}, nil
}

// SendEmail implements notification.EmailSender.
func (s *Sender) SendEmail(ctx context.Context, e notification.Email) error {
	m, err := buildMessage(s.cfg.From, e)
	if err != nil {
		return err
	}
	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return errors.Wrap(err, "smtp send")
	}
	return nil
}

func buildMessage(from string, e notification.Email) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, errors.Wrap(err, "from")
	}
	if err := m.To(e.To); err != nil {
		return nil, errors.Wrap(err, "to")
	}
	m.Subject(e.Subject)
	m.SetBodyString(gomail.TypeTextHTML, e.HTMLBody)
	for _, a := range e.Attachments {
		if err := m.AttachReader(a.Name, bytes.NewReader(a.Data),
			gomail.WithFileContentType(gomail.ContentType(a.ContentType)),
		); err != nil {
			return nil, errors.Wrapf(err, "attach %s", a.Name)
		}
	}
	return m, nil
}
