package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crmai/internal/config"
	"crmai/internal/models"
	"crmai/internal/store"
	"crmai/internal/tasks"
	"crmai/pkg/composer"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"
)

// SettingEmailPreference is the settings key holding the delivery channel.
const SettingEmailPreference = "crm_email_sending_service"

// LeadDoctype is the reference type written on communications about leads.
const LeadDoctype = "CRM Lead"

type EmailServiceDeps struct {
	LeadStore          store.LeadStore
	UserStore          store.UserStore
	CommunicationStore store.CommunicationStore
	SettingsStore      store.SettingsStore
	JobClient          store.JobClient
	Composer           composer.Composer // nil when no LLM key is configured
	Resend             Mailer            // nil when Resend is not configured
	SMTP               Mailer            // nil when no outgoing account is configured
	ProductContext     string
	Config             *config.Config
}

// EmailService generates, renders, records and sends outreach email.
type EmailService struct {
	leads    store.LeadStore
	users    store.UserStore
	comms    store.CommunicationStore
	settings store.SettingsStore
	jobs     store.JobClient
	composer composer.Composer
	resend   Mailer
	smtp     Mailer

	productContext string
	cfg            *config.Config
}

func NewEmailService(deps EmailServiceDeps) *EmailService {
	return &EmailService{
		leads:          deps.LeadStore,
		users:          deps.UserStore,
		comms:          deps.CommunicationStore,
		settings:       deps.SettingsStore,
		jobs:           deps.JobClient,
		composer:       deps.Composer,
		resend:         deps.Resend,
		smtp:           deps.SMTP,
		productContext: deps.ProductContext,
		cfg:            deps.Config,
	}
}

// mapStoreErr lifts store sentinels into the models sentinels the API maps to statuses.
func mapStoreErr(err error, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%s: %w", msg, models.ErrNotFound)
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrDuplicate):
		return fmt.Errorf("%s: %w", msg, models.ErrConflict)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// --- Sender ---

// resolveSender looks up the acting user, falling back to the configured sender identity.
func (s *EmailService) resolveSender(ctx context.Context, userEmail string) composer.Sender {
	sender := composer.Sender{
		Name:  s.cfg.Company.FallbackSenderName,
		Email: s.cfg.Company.FallbackSenderEmail,
	}
	if userEmail == "" {
		userEmail = s.cfg.App.DefaultUser
	}
	user, err := s.users.GetUser(ctx, userEmail)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Warnf("Error getting user info for %s: %v", userEmail, err)
		}
		return sender
	}
	if user.FullName != "" {
		sender.Name = user.FullName
	}
	if user.Email != "" {
		sender.Email = user.Email
	}
	sender.Designation = user.Designation
	sender.Phone = user.Phone
	return sender
}

// displayName is the name printed in the signature block.
func (s *EmailService) displayName(ctx context.Context, userEmail string) string {
	if userEmail == "" {
		userEmail = s.cfg.App.DefaultUser
	}
	if user, err := s.users.GetUser(ctx, userEmail); err == nil && user.FullName != "" {
		return user.FullName
	}
	if s.cfg.Email.SenderName != "" {
		return s.cfg.Email.SenderName
	}
	return s.cfg.Company.Name
}

func (s *EmailService) branding() Branding {
	return Branding{Company: s.cfg.Company.Name, Website: s.cfg.Company.Website}
}

// --- Generation ---

// GeneratedEmail is the preview returned to the editor.
type GeneratedEmail struct {
	Subject   string                 `json:"subject"`
	Content   string                 `json:"content"`
	DebugInfo map[string]interface{} `json:"debug_info"`
}

// compose builds the prompt for lead and runs the model.
func (s *EmailService) compose(ctx context.Context, lead *models.Lead, sender composer.Sender, tone, additionalContext, jobID string) (composer.Draft, error) {
	if s.composer == nil {
		return composer.Draft{}, fmt.Errorf("%w: LLM API key not configured", models.ErrNotConfigured)
	}
	prompt := composer.BuildPrompt(composer.PromptInput{
		LeadFields:        lead.Fields(),
		Sender:            sender,
		CompanyName:       s.cfg.Company.Name,
		ProductContext:    s.productContext,
		Tone:              tone,
		AdditionalContext: additionalContext,
	})
	log.WithField("lead", lead.Name).Debug("Prompt constructed for AI")
	draft, err := s.composer.Compose(ctx, composer.Request{Prompt: prompt, RelatedLead: lead.Name, RelatedJobID: jobID})
	if err != nil {
		return composer.Draft{}, fmt.Errorf("%w: %v", models.ErrGenerationFailed, err)
	}
	return draft, nil
}

// GenerateEmailContent drafts an email for one lead without sending anything.
func (s *EmailService) GenerateEmailContent(ctx context.Context, leadName, tone, additionalContext, user string) (*GeneratedEmail, error) {
	log.Infof("Generating email for lead: %s", leadName)
	lead, err := s.leads.GetLead(ctx, leadName)
	if err != nil {
		return nil, mapStoreErr(err, "failed to load lead %s", leadName)
	}
	draft, err := s.compose(ctx, lead, s.resolveSender(ctx, user), tone, additionalContext, "")
	if err != nil {
		log.Errorf("Error generating email content: %v", err)
		return nil, err
	}
	if tone == "" {
		tone = "professional"
	}
	return &GeneratedEmail{
		Subject: draft.Subject,
		Content: draft.Content,
		DebugInfo: map[string]interface{}{
			"lead_name": lead.LeadName,
			"tone":      tone,
			"provider":  draft.Provider,
			"model":     draft.Model,
		},
	}, nil
}

// --- Sending ---

// SendTestEmail sends a rendered draft through Resend to a single recipient.
func (s *EmailService) SendTestEmail(ctx context.Context, leadName, content, subject, recipient, user string) (string, error) {
	if recipient == "" {
		recipient = s.cfg.Email.TestRecipient
	}
	if recipient == "" {
		return "", fmt.Errorf("%w: recipient email is required", models.ErrValidation)
	}
	log.Infof("Sending test email for lead %s to %s", leadName, recipient)
	if _, err := s.leads.GetLead(ctx, leadName); err != nil {
		return "", mapStoreErr(err, "failed to load lead %s", leadName)
	}
	if s.resend == nil {
		return "", fmt.Errorf("%w: Resend API Key missing", models.ErrNotConfigured)
	}

	html := RenderEmail(s.branding(), subject, content, s.displayName(ctx, user))
	if _, err := s.resend.Send(ctx, OutgoingMessage{
		From:    s.cfg.Email.ResendFrom,
		To:      []string{recipient},
		Subject: subject,
		HTML:    html,
		Text:    HTMLToText(html),
	}); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrDeliveryFailed, err)
	}
	return fmt.Sprintf("Test email sent to %s", recipient), nil
}

// SendAIEmailParams is an edited email the user asked to send from the lead page.
type SendAIEmailParams struct {
	Recipients string
	Subject    string
	Content    string
	Doctype    string
	Name       string
	CC         string
	BCC        string
	User       string
}

// SendAIEmail records the communication on the lead timeline and queues delivery.
// It returns the communication id.
func (s *EmailService) SendAIEmail(ctx context.Context, p SendAIEmailParams) (string, error) {
	to := SplitAddresses(p.Recipients)
	if len(to) == 0 {
		return "", fmt.Errorf("%w: at least one recipient is required", models.ErrValidation)
	}
	if p.Doctype == "" {
		p.Doctype = LeadDoctype
	}
	log.WithFields(log.Fields{"recipients": p.Recipients, "doctype": p.Doctype, "name": p.Name}).Info("AI email sending started")

	subject := p.Subject
	if p.Doctype == LeadDoctype && p.Name != "" {
		lead, err := s.leads.GetLead(ctx, p.Name)
		if err != nil {
			log.Errorf("Error fetching lead %s: %v", p.Name, err)
		} else if subject == "" || subject == "Email from Lead" {
			subject = FallbackSubject(lead)
			log.Infof("Updated subject to: %s", subject)
		}
	}

	senderName := s.displayName(ctx, p.User)
	sender := p.User
	if sender == "" {
		sender = s.cfg.App.DefaultUser
	}
	html := RenderEmail(s.branding(), subject, p.Content, senderName)

	comm := &models.Communication{
		Subject:          subject,
		Content:          html,
		TextContent:      HTMLToText(html),
		Sender:           sender,
		SenderFullName:   senderName,
		Recipients:       strings.Join(to, ", "),
		CC:               strings.Join(SplitAddresses(p.CC), ", "),
		BCC:              strings.Join(SplitAddresses(p.BCC), ", "),
		ReferenceDoctype: p.Doctype,
		ReferenceName:    p.Name,
		EmailStatus:      models.EmailStatusOpen,
		Channel:          ChannelSMTP,
		IsAIGenerated:    true,
	}
	if err := s.comms.CreateCommunication(ctx, comm); err != nil {
		return "", fmt.Errorf("failed to create communication: %w", err)
	}
	log.Infof("Communication created with ID: %s", comm.ID)

	task, err := tasks.NewEmailDeliverTask(tasks.EmailDeliverPayload{CommunicationID: comm.ID})
	if err != nil {
		return "", err
	}
	if _, err := s.jobs.Enqueue(ctx, task, "communication", comm.ID, asynq.Queue("default"), asynq.MaxRetry(3)); err != nil {
		s.markError(ctx, comm.ID, err)
		return "", fmt.Errorf("failed to queue email delivery: %w", err)
	}
	return comm.ID, nil
}

// FallbackSubject names the lead when the caller gave no usable subject.
func FallbackSubject(lead *models.Lead) string {
	prefix := lead.LeadName
	if prefix == "" {
		prefix = lead.Organization
	}
	if prefix != "" {
		return fmt.Sprintf("%s (%s)", prefix, lead.Name)
	}
	return fmt.Sprintf("Regarding Lead %s", lead.Name)
}

// DeliverCommunication sends a recorded communication through the SMTP account
// and marks it Sent or Error. It runs in the worker for email:deliver tasks.
func (s *EmailService) DeliverCommunication(ctx context.Context, commID string) error {
	comm, err := s.comms.GetCommunication(ctx, commID)
	if err != nil {
		return mapStoreErr(err, "failed to load communication %s", commID)
	}
	if comm.EmailStatus == models.EmailStatusSent {
		log.Infof("Communication %s already sent, skipping", commID)
		return nil
	}
	mailer := s.smtp
	if mailer == nil {
		// No outgoing account; the API channel still gets the mail out.
		mailer = s.resend
	}
	if mailer == nil {
		err := fmt.Errorf("%w: no outgoing email channel configured", models.ErrNotConfigured)
		s.markError(ctx, commID, err)
		return err
	}

	providerID, err := mailer.Send(ctx, OutgoingMessage{
		FromName: comm.SenderFullName,
		To:       SplitAddresses(comm.Recipients),
		Cc:       SplitAddresses(comm.CC),
		Bcc:      SplitAddresses(comm.BCC),
		Subject:  comm.Subject,
		HTML:     comm.Content,
		Text:     comm.TextContent,
	})
	if err != nil {
		s.markError(ctx, commID, err)
		return fmt.Errorf("%w: %v", models.ErrDeliveryFailed, err)
	}
	if err := s.comms.UpdateCommunicationStatus(ctx, commID, models.EmailStatusSent, &providerID, nil); err != nil {
		log.Errorf("Could not update communication status to Sent for %s: %v", commID, err)
	}
	log.Infof("Communication %s delivered via %s", commID, mailer.Name())
	return nil
}

func (s *EmailService) markError(ctx context.Context, commID string, cause error) {
	msg := cause.Error()
	if err := s.comms.UpdateCommunicationStatus(ctx, commID, models.EmailStatusError, nil, &msg); err != nil {
		log.Errorf("Could not update communication status to Error for %s: %v", commID, err)
	}
}

// --- Per-lead pipeline (bulk jobs) ---

// LeadEmailOptions controls one generate-and-send run.
type LeadEmailOptions struct {
	Tone              string
	AdditionalContext string
	TestMode          bool
	User              string
	JobID             string
}

// TestModeRecipient is where test-mode mail goes instead of the lead.
func (s *EmailService) TestModeRecipient() string {
	for _, addr := range []string{s.cfg.Email.SMTP.From, s.cfg.Email.TestRecipient, s.cfg.Email.ResendFrom} {
		if addr != "" {
			return addr
		}
	}
	return ""
}

// EmailLead generates, renders, records and sends one email. It returns the
// communication id, which is set whenever a record was written even if the send failed.
// Generation failures never send anything.
func (s *EmailService) EmailLead(ctx context.Context, lead *models.Lead, opts LeadEmailOptions) (string, error) {
	recipient := lead.Email
	if recipient == "" {
		return "", fmt.Errorf("%w: lead %s has no email address", models.ErrValidation, lead.Name)
	}
	if opts.TestMode {
		recipient = s.TestModeRecipient()
		if recipient == "" {
			return "", fmt.Errorf("%w: cannot run in test mode: no default outgoing address configured", models.ErrNotConfigured)
		}
		log.WithField("job_id", opts.JobID).Infof("TEST MODE: Overriding recipient to %s (Original: %s)", recipient, lead.Email)
	}

	sender := s.resolveSender(ctx, opts.User)
	draft, err := s.compose(ctx, lead, sender, opts.Tone, opts.AdditionalContext, opts.JobID)
	if err != nil {
		return "", err
	}

	mailer, err := s.preferredMailer(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrDeliveryFailed, err)
	}

	senderName := s.displayName(ctx, opts.User)
	html := RenderEmail(s.branding(), draft.Subject, draft.Content, senderName)
	comm := &models.Communication{
		Subject:          draft.Subject,
		Content:          html,
		TextContent:      HTMLToText(html),
		Sender:           sender.Email,
		SenderFullName:   senderName,
		Recipients:       recipient,
		ReferenceDoctype: LeadDoctype,
		ReferenceName:    lead.Name,
		EmailStatus:      models.EmailStatusOpen,
		Channel:          mailer.Name(),
		IsAIGenerated:    true,
	}
	if err := s.comms.CreateCommunication(ctx, comm); err != nil {
		return "", fmt.Errorf("failed to create communication: %w", err)
	}

	from := s.cfg.Email.SMTP.From
	if mailer.Name() == ChannelResend {
		from = s.cfg.Email.ResendFrom
	}
	providerID, err := mailer.Send(ctx, OutgoingMessage{
		From:     from,
		FromName: senderName,
		To:       []string{recipient},
		Subject:  draft.Subject,
		HTML:     html,
		Text:     comm.TextContent,
	})
	if err != nil {
		s.markError(ctx, comm.ID, err)
		return comm.ID, fmt.Errorf("%w: %v", models.ErrDeliveryFailed, err)
	}
	if err := s.comms.UpdateCommunicationStatus(ctx, comm.ID, models.EmailStatusSent, &providerID, nil); err != nil {
		log.Errorf("Could not update communication status to Sent for %s: %v", comm.ID, err)
	}
	return comm.ID, nil
}

// --- Preference ---

// EmailPreference reports the selected channel and what is configured.
type EmailPreference struct {
	EmailPreference       string `json:"email_preference"`
	FrappeEmailConfigured bool   `json:"frappe_email_configured"`
	ResendConfigured      bool   `json:"resend_configured"`
}

func (s *EmailService) resendConfigured() bool {
	return s.cfg.Email.ResendAPIKey != "" && s.cfg.Email.ResendFrom != ""
}

// GetEmailPreference returns the stored channel. When none is stored it picks
// smtp if an outgoing account is configured, else resend, and persists the choice.
func (s *EmailService) GetEmailPreference(ctx context.Context) (*EmailPreference, error) {
	pref := &EmailPreference{
		FrappeEmailConfigured: s.cfg.Email.SMTP.Configured(),
		ResendConfigured:      s.resendConfigured(),
	}
	value, err := s.settings.GetSetting(ctx, SettingEmailPreference)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to read email preference: %w", err)
	}
	if value != "" {
		if normalized, nerr := NormalizeChannel(value); nerr == nil {
			pref.EmailPreference = normalized
			return pref, nil
		}
		log.Warnf("Ignoring unknown stored email preference %q", value)
	}

	pref.EmailPreference = ChannelResend
	if pref.FrappeEmailConfigured {
		pref.EmailPreference = ChannelSMTP
	}
	if pref.FrappeEmailConfigured || pref.ResendConfigured {
		if err := s.settings.SetSetting(ctx, SettingEmailPreference, pref.EmailPreference); err != nil {
			log.Errorf("Failed to persist auto-selected email preference: %v", err)
		} else {
			log.Infof("Auto-set email preference to: %s", pref.EmailPreference)
		}
	}
	return pref, nil
}

// SetEmailPreference stores the channel; "frappe" is stored as smtp.
func (s *EmailService) SetEmailPreference(ctx context.Context, preference string) (string, error) {
	channel, err := NormalizeChannel(preference)
	if err != nil {
		return "", err
	}
	if err := s.settings.SetSetting(ctx, SettingEmailPreference, channel); err != nil {
		return "", fmt.Errorf("Error setting preference: %w", err)
	}
	return channel, nil
}

// preferredMailer returns the mailer for the stored preference, falling back
// to the other channel when the preferred one is not configured.
func (s *EmailService) preferredMailer(ctx context.Context) (Mailer, error) {
	pref, err := s.GetEmailPreference(ctx)
	if err != nil {
		return nil, err
	}
	first, second := s.resend, s.smtp
	if pref.EmailPreference == ChannelSMTP {
		first, second = s.smtp, s.resend
	}
	if first != nil {
		return first, nil
	}
	if second != nil {
		log.Warnf("Preferred email channel %s is not configured, falling back to %s", pref.EmailPreference, second.Name())
		return second, nil
	}
	return nil, fmt.Errorf("%w: no email channel configured", models.ErrNotConfigured)
}

// --- Status & diagnostics ---

// APIStatus reports which external keys are present.
type APIStatus struct {
	OpenAIConfigured bool   `json:"openai_configured"`
	ResendConfigured bool   `json:"resend_configured"`
	TestEmail        string `json:"test_email"`
}

func (s *EmailService) GetAPIStatus() APIStatus {
	return APIStatus{
		OpenAIConfigured: s.cfg.LLMKey() != "",
		ResendConfigured: s.cfg.Email.ResendAPIKey != "",
		TestEmail:        s.cfg.Email.TestRecipient,
	}
}

// EmailDiagnostics is the configuration snapshot served to operators.
type EmailDiagnostics struct {
	SystemSettings   map[string]interface{}   `json:"system_settings"`
	EmailAccounts    []map[string]interface{} `json:"email_accounts"`
	ResendConfig     map[string]interface{}   `json:"resend_config"`
	DetailedSettings map[string]interface{}   `json:"detailed_settings"`
}

func (s *EmailService) EmailDiagnostics(ctx context.Context) *EmailDiagnostics {
	d := &EmailDiagnostics{
		SystemSettings:   map[string]interface{}{},
		EmailAccounts:    []map[string]interface{}{},
		DetailedSettings: map[string]interface{}{},
	}
	if pref, err := s.settings.GetSetting(ctx, SettingEmailPreference); err == nil {
		d.SystemSettings[SettingEmailPreference] = pref
	} else if errors.Is(err, store.ErrNotFound) {
		d.SystemSettings[SettingEmailPreference] = nil
	} else {
		d.SystemSettings["error"] = err.Error()
	}

	smtp := s.cfg.Email.SMTP
	if smtp.Configured() {
		d.EmailAccounts = append(d.EmailAccounts, map[string]interface{}{
			"name":             "smtp",
			"email_id":         smtp.From,
			"default_outgoing": true,
			"smtp_server":      smtp.Host,
		})
	}
	d.ResendConfig = map[string]interface{}{
		"RESEND_API_KEY":      s.cfg.Email.ResendAPIKey != "",
		"RESEND_DEFAULT_FROM": s.cfg.Email.ResendFrom,
		"OPENROUTER_KEY":      s.cfg.LLMKey() != "",
		"SENDER_NAME":         s.cfg.Email.SenderName,
	}
	d.DetailedSettings["outgoing_mail_server"] = smtp.Host
	d.DetailedSettings["outgoing_mail_port"] = smtp.Port
	d.DetailedSettings["use_tls"] = smtp.UseTLS
	d.DetailedSettings["default_outgoing"] = smtp.Username
	return d
}

// SendTestEmailViaSystem sends a fixed test message through the preferred channel.
func (s *EmailService) SendTestEmailViaSystem(ctx context.Context, recipient, user string) (string, error) {
	if recipient == "" {
		recipient = user
	}
	if recipient == "" {
		recipient = s.TestModeRecipient()
	}
	if recipient == "" {
		return "", fmt.Errorf("%w: recipient email is required", models.ErrValidation)
	}
	mailer, err := s.preferredMailer(ctx)
	if err != nil {
		return "", err
	}
	html := fmt.Sprintf(`<p>This is a test email from your %s CRM system.</p>
<p>Current email sending service: <strong>%s</strong></p>
<p>Timestamp: %s</p>`, s.cfg.Company.Name, mailer.Name(), time.Now().Format("2006-01-02 15:04:05"))

	from := s.cfg.Email.SMTP.From
	if mailer.Name() == ChannelResend {
		from = s.cfg.Email.ResendFrom
	}
	if _, err := mailer.Send(ctx, OutgoingMessage{
		From:    from,
		To:      []string{recipient},
		Subject: fmt.Sprintf("Test Email from %s CRM", s.cfg.Company.Name),
		HTML:    html,
		Text:    HTMLToText(html),
	}); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrDeliveryFailed, err)
	}
	return fmt.Sprintf("Test email sent to %s using %s", recipient, mailer.Name()), nil
}
