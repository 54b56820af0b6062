// Package mailer composes and sends the notification emails: bulk
// import digests, renewal reminders and auto-cancellation notices.
// Composition is pure; transport goes through SendGrid.
package mailer

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/shopspring/decimal"
)

// Message is one composed, ready-to-send email.
type Message struct {
	To        string
	ToName    string
	Subject   string
	PlainText string
	HTML      string
}

// Mailer sends a composed message.
type Mailer interface {
	Send(msg Message) error
}

type Config struct {
	APIKey      string
	FromAddress string
	FromName    string
}

// SendGridMailer delivers through the SendGrid API.
type SendGridMailer struct {
	client *sendgrid.Client
	from   *mail.Email
	logger *slog.Logger
}

func NewSendGridMailer(cfg Config, logger *slog.Logger) *SendGridMailer {
	return &SendGridMailer{
		client: sendgrid.NewSendClient(cfg.APIKey),
		from:   mail.NewEmail(cfg.FromName, cfg.FromAddress),
		logger: logger,
	}
}

func (m *SendGridMailer) Send(msg Message) error {
	recipient := mail.NewEmail(msg.ToName, msg.To)
	message := mail.NewSingleEmail(m.from, msg.Subject, recipient, msg.PlainText, msg.HTML)

	response, err := m.client.Send(message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
	}

	m.logger.Debug("email sent", "to", msg.To, "subject", msg.Subject)
	return nil
}

// NoopMailer is used when mail delivery is disabled; sends are logged
// and dropped.
type NoopMailer struct {
	Logger *slog.Logger
}

func (m *NoopMailer) Send(msg Message) error {
	m.Logger.Info("mail delivery disabled, dropping message", "to", msg.To, "subject", msg.Subject)
	return nil
}

// EntrySummary carries the entry fields the templates render.
type EntrySummary struct {
	Particulars    string
	CardNumber     string
	BusinessUnit   string
	Amount         decimal.Decimal
	Currency       string
	Date           time.Time
	RenewalDate    time.Time
	ServiceHandler string
}

// ComposeEntryAccepted announces one bulk-imported entry to its
// business unit admins and the MIS inboxes.
func ComposeEntryAccepted(to, toName string, e EntrySummary) Message {
	subject := fmt.Sprintf("New expense entry: %s (%s)", e.Particulars, e.BusinessUnit)
	plain := fmt.Sprintf(
		"A new expense entry was imported.\n\nService: %s\nCard: %s\nBusiness unit: %s\nAmount: %s %s\nDate: %s\n",
		e.Particulars, maskCard(e.CardNumber), e.BusinessUnit,
		e.Amount.StringFixed(2), e.Currency, e.Date.Format("02 Jan 2006"))
	return Message{
		To:        to,
		ToName:    toName,
		Subject:   subject,
		PlainText: plain,
		HTML:      plainToHTML(plain),
	}
}

// ComposeRenewalReminder asks a service handler to continue or cancel
// before the renewal date. The action links embed signed tokens.
func ComposeRenewalReminder(to, toName string, e EntrySummary, continueURL, cancelURL string) Message {
	subject := fmt.Sprintf("Renewal due %s: %s", e.RenewalDate.Format("02 Jan 2006"), e.Particulars)
	plain := fmt.Sprintf(
		"The subscription %q (%s, %s %s) renews on %s.\n\nContinue: %s\nCancel: %s\n\nIf no action is taken, the entry will be cancelled automatically after the renewal date.",
		e.Particulars, e.BusinessUnit, e.Amount.StringFixed(2), e.Currency,
		e.RenewalDate.Format("02 Jan 2006"), continueURL, cancelURL)
	return Message{
		To:        to,
		ToName:    toName,
		Subject:   subject,
		PlainText: plain,
		HTML:      plainToHTML(plain),
	}
}

// ComposeAutoCancellationNotice informs the handler and MIS that an
// unanswered cycle was cancelled.
func ComposeAutoCancellationNotice(to, toName string, e EntrySummary) Message {
	subject := fmt.Sprintf("Auto-cancelled: %s", e.Particulars)
	plain := fmt.Sprintf(
		"The subscription %q (%s) passed its renewal date %s with no response and has been deactivated.\nHandler: %s\n",
		e.Particulars, e.BusinessUnit, e.RenewalDate.Format("02 Jan 2006"), e.ServiceHandler)
	return Message{
		To:        to,
		ToName:    toName,
		Subject:   subject,
		PlainText: plain,
		HTML:      plainToHTML(plain),
	}
}

// ComposeImportSummary reports a finished bulk upload to the uploader.
func ComposeImportSummary(to, toName string, fileName string, imported int, rowErrors []string) Message {
	subject := fmt.Sprintf("Import finished: %s (%d entries)", fileName, imported)
	var b strings.Builder
	fmt.Fprintf(&b, "Your upload %q finished.\n\nImported entries: %d\nFailed rows: %d\n", fileName, imported, len(rowErrors))
	if len(rowErrors) > 0 {
		b.WriteString("\nErrors:\n")
		for _, rowErr := range rowErrors {
			fmt.Fprintf(&b, "  - %s\n", rowErr)
		}
	}
	plain := b.String()
	return Message{
		To:        to,
		ToName:    toName,
		Subject:   subject,
		PlainText: plain,
		HTML:      plainToHTML(plain),
	}
}

func maskCard(cardNumber string) string {
	trimmed := strings.TrimSpace(cardNumber)
	if len(trimmed) <= 4 {
		return trimmed
	}
	return strings.Repeat("*", len(trimmed)-4) + trimmed[len(trimmed)-4:]
}

func plainToHTML(plain string) string {
	escaped := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(plain)
	return "<html><body><p>" + strings.ReplaceAll(escaped, "\n", "<br>") + "</p></body></html>"
}
