package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"example/portfolio-api/app/config"
	"example/portfolio-api/app/models"

	"github.com/rs/zerolog"
)

var ErrUnknownKind = errors.New("unknown notification kind")

type Mail struct {
	To      string
	ReplyTo string
	Subject string
	HTML    string
}

type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

var templates = template.Must(template.New("thank_you").Parse(`<h1>Thank you, {{.Name}}!</h1>
<p>Thanks for visiting and signing the guestbook. It means a lot.</p>
<p>While you are around, try a game of chess against the bot.</p>
{{if .FrontendURL}}<p><a href="{{.FrontendURL}}">Back to the site</a></p>{{end}}
`))

func init() {
	template.Must(templates.New("contact_owner").Parse(`<h2>New contact form submission</h2>
<p><strong>Name:</strong> {{.Name}}</p>
<p><strong>Email:</strong> {{.Email}}</p>
<div style="background:#f5f5f5;padding:15px;border-radius:5px">{{range .Lines}}{{.}}<br>{{end}}</div>
`))
	template.Must(templates.New("contact_reply").Parse(`<h2>Hi {{.Name}}!</h2>
<p>Thanks for your message. I will get back to you as soon as I can.</p>
<hr>
<p><em>Your message:</em></p>
<div style="background:#f5f5f5;padding:15px;border-radius:5px">{{range .Lines}}{{.}}<br>{{end}}</div>
`))
}

type mailData struct {
	Name        string
	Email       string
	Lines       []string
	FrontendURL string
}

// Render turns a queued message into its mail.
func Render(msg models.NotificationMessage, cfg config.MailConfig) (Mail, error) {
	data := mailData{
		Name:        msg.Name,
		Email:       msg.Email,
		Lines:       strings.Split(msg.Message, "\n"),
		FrontendURL: cfg.FrontendURL,
	}
	var m Mail
	switch msg.Kind {
	case models.NotifyThankYou:
		m = Mail{To: msg.Email, Subject: "Thank you for visiting!"}
	case models.NotifyContactOwner:
		m = Mail{To: cfg.OwnerEmail, ReplyTo: msg.Email, Subject: "New contact form message from " + msg.Name}
	case models.NotifyContactReply:
		m = Mail{To: msg.Email, Subject: "Thanks for reaching out!"}
	default:
		return Mail{}, fmt.Errorf("%w: %q", ErrUnknownKind, msg.Kind)
	}
	body, err := execute(string(msg.Kind), data)
	if err != nil {
		return Mail{}, err
	}
	m.HTML = body
	return m, nil
}

func execute(name string, data mailData) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// SMTPMailer sends through an authenticated SMTP relay.
type SMTPMailer struct {
	cfg  config.MailConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailer(cfg config.MailConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail}
}

func (s *SMTPMailer) Send(_ context.Context, m Mail) error {
	if m.To == "" {
		return errors.New("mail has no recipient")
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := s.send(addr, auth, s.cfg.From, []string{m.To}, s.compose(m)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", m.To, err)
	}
	return nil
}

func (s *SMTPMailer) compose(m Mail) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", m.To)
	if m.ReplyTo != "" {
		fmt.Fprintf(&b, "Reply-To: %s\r\n", m.ReplyTo)
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", m.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n\r\n")
	b.WriteString(m.HTML)
	return []byte(b.String())
}

// LogMailer logs instead of sending; used when EMAIL_HOST is unset.
type LogMailer struct {
	Log zerolog.Logger
}

func (l LogMailer) Send(_ context.Context, m Mail) error {
	l.Log.Info().Str("to", m.To).Str("subject", m.Subject).Msg("mail not sent, no SMTP host configured")
	return nil
}

// NewMailer picks SMTP when a host is configured.
func NewMailer(cfg config.MailConfig, log zerolog.Logger) Mailer {
	if cfg.Host == "" {
		return LogMailer{Log: log}
	}
	return NewSMTPMailer(cfg)
}
