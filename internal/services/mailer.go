package services

import (
	"context"
	"fmt"
	"strings"

	"crmai/internal/config"
	"crmai/internal/models"

	"github.com/resend/resend-go/v2"
	log "github.com/sirupsen/logrus"
	"github.com/wneessen/go-mail"
)

// Delivery channel names as stored in the email preference setting.
const (
	ChannelResend = "resend"
	ChannelSMTP   = "smtp"
	// ChannelFrappe is the legacy name of the SMTP channel, still accepted on input.
	ChannelFrappe = "frappe"
)

// OutgoingMessage is one fully rendered email ready for delivery.
type OutgoingMessage struct {
	From     string
	FromName string
	To       []string
	Cc       []string
	Bcc      []string
	Subject  string
	HTML     string
	Text     string
}

// Mailer delivers rendered email over one channel.
type Mailer interface {
	// Send returns the provider's message id.
	Send(ctx context.Context, msg OutgoingMessage) (string, error)
	Name() string
}

// --- Resend ---

// ResendAPI is the part of the Resend SDK the mailer uses.
type ResendAPI interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendMailer sends through the Resend transactional API.
type ResendMailer struct {
	api         ResendAPI
	defaultFrom string
}

// NewResendMailer returns nil when no API key is configured.
func NewResendMailer(apiKey, defaultFrom string) *ResendMailer {
	if apiKey == "" {
		return nil
	}
	return &ResendMailer{api: resend.NewClient(apiKey).Emails, defaultFrom: defaultFrom}
}

// NewResendMailerWithAPI builds a mailer around an existing API implementation.
func NewResendMailerWithAPI(api ResendAPI, defaultFrom string) *ResendMailer {
	return &ResendMailer{api: api, defaultFrom: defaultFrom}
}

func (m *ResendMailer) Name() string { return ChannelResend }

func (m *ResendMailer) Send(ctx context.Context, msg OutgoingMessage) (string, error) {
	from := msg.From
	if from == "" {
		from = m.defaultFrom
	}
	if msg.FromName != "" && !strings.Contains(from, "<") {
		from = fmt.Sprintf("%s <%s>", msg.FromName, from)
	}
	params := &resend.SendEmailRequest{
		From:    from,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
		Cc:      msg.Cc,
		Bcc:     msg.Bcc,
	}
	log.Debugf("Sending email via Resend API to %v", msg.To)
	resp, err := m.api.SendWithContext(ctx, params)
	if err != nil {
		return "", fmt.Errorf("Resend failed: %w", err)
	}
	if resp == nil || resp.Id == "" {
		return "", fmt.Errorf("Resend failed: no message id returned")
	}
	log.Infof("Email sent successfully via Resend (ID: %s)", resp.Id)
	return resp.Id, nil
}

// --- SMTP ---

// SMTPMailer sends through the configured outgoing mail account.
type SMTPMailer struct {
	cfg config.SMTPConfig
}

// NewSMTPMailer returns nil when no outgoing account is configured.
func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	if !cfg.Configured() {
		return nil
	}
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) Name() string { return ChannelSMTP }

// buildMessage assembles the MIME message; split out so it can be checked without a server.
func (m *SMTPMailer) buildMessage(msg OutgoingMessage) (*mail.Msg, error) {
	from := msg.From
	if from == "" {
		from = m.cfg.From
	}
	out := mail.NewMsg()
	var err error
	if msg.FromName != "" {
		err = out.FromFormat(msg.FromName, from)
	} else {
		err = out.From(from)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", from, err)
	}
	if err := out.To(msg.To...); err != nil {
		return nil, fmt.Errorf("invalid recipients: %w", err)
	}
	if len(msg.Cc) > 0 {
		if err := out.Cc(msg.Cc...); err != nil {
			return nil, fmt.Errorf("invalid cc: %w", err)
		}
	}
	if len(msg.Bcc) > 0 {
		if err := out.Bcc(msg.Bcc...); err != nil {
			return nil, fmt.Errorf("invalid bcc: %w", err)
		}
	}
	out.Subject(msg.Subject)
	out.SetMessageID()
	out.SetBodyString(mail.TypeTextHTML, msg.HTML)
	if msg.Text != "" {
		out.AddAlternativeString(mail.TypeTextPlain, msg.Text)
	}
	return out, nil
}

func (m *SMTPMailer) Send(ctx context.Context, msg OutgoingMessage) (string, error) {
	out, err := m.buildMessage(msg)
	if err != nil {
		return "", err
	}

	opts := []mail.Option{mail.WithPort(m.cfg.Port)}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password))
	}
	if m.cfg.UseTLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to create SMTP client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, out); err != nil {
		return "", fmt.Errorf("SMTP delivery via %s failed: %w", m.cfg.Host, err)
	}

	var messageID string
	if ids := out.GetGenHeader(mail.HeaderMessageID); len(ids) > 0 {
		messageID = ids[0]
	}
	log.Infof("Email sent successfully via SMTP %s (Message-ID: %s)", m.cfg.Host, messageID)
	return messageID, nil
}

// --- Channel selection ---

// NormalizeChannel maps user input to a stored channel name.
func NormalizeChannel(preference string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(preference)) {
	case ChannelResend:
		return ChannelResend, nil
	case ChannelSMTP, ChannelFrappe:
		return ChannelSMTP, nil
	}
	return "", fmt.Errorf("%w: Invalid preference. Use 'resend' or 'frappe'.", models.ErrValidation)
}

// SplitAddresses parses a comma-separated address list, dropping blanks.
func SplitAddresses(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var (
	_ Mailer = (*ResendMailer)(nil)
	_ Mailer = (*SMTPMailer)(nil)
)
