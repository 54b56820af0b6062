package renewal

import (
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/frahmantamala/cardspend/internal/auth"
	"github.com/frahmantamala/cardspend/internal/mailer"
	"github.com/frahmantamala/cardspend/internal/notification"
	"github.com/frahmantamala/cardspend/internal/user"
)

// RateRefresher re-fetches exchange rates; satisfied by the currency
// converter.
type RateRefresher interface {
	Refresh(currencies []string)
}

// SweepConfig tunes the scheduled jobs.
type SweepConfig struct {
	// ReminderDays is how many days before the renewal date the reminder
	// goes out.
	ReminderDays int
	// AutoCancelDays is the grace period after an unanswered renewal
	// date before the entry is cancelled.
	AutoCancelDays int
	// RejectedRetentionDays is how long rejected entries are kept.
	RejectedRetentionDays int
	// BaseURL prefixes the signed action links embedded in emails.
	BaseURL string
	// Currencies is the set the rate-refresh sweep warms.
	Currencies []string
}

// Sweeper runs the scheduled lifecycle jobs. Every job takes an explicit
// now so cycles are reproducible under test; all jobs are idempotent via
// the notification flags and the one-action-per-cycle gate, not locking.
type Sweeper struct {
	store    EntryStore
	logs     LogRepository
	users    user.Repository
	mail     mailer.Mailer
	notifier *notification.Service
	signer   *auth.ActionTokenSigner
	rates    RateRefresher
	cfg      SweepConfig
	logger   *slog.Logger
}

func NewSweeper(
	store EntryStore,
	logs LogRepository,
	users user.Repository,
	mail mailer.Mailer,
	notifier *notification.Service,
	signer *auth.ActionTokenSigner,
	rates RateRefresher,
	cfg SweepConfig,
	logger *slog.Logger,
) *Sweeper {
	if cfg.ReminderDays <= 0 {
		cfg.ReminderDays = 5
	}
	if cfg.AutoCancelDays <= 0 {
		cfg.AutoCancelDays = 2
	}
	if cfg.RejectedRetentionDays <= 0 {
		cfg.RejectedRetentionDays = 3
	}
	return &Sweeper{
		store:    store,
		logs:     logs,
		users:    users,
		mail:     mail,
		notifier: notifier,
		signer:   signer,
		rates:    rates,
		cfg:      cfg,
		logger:   logger,
	}
}

// SendReminders emails every handler whose entry renews within the
// reminder window and has not yet been asked this cycle.
func (s *Sweeper) SendReminders(now time.Time) {
	candidates, err := s.store.ListDueWithin(now, s.cfg.ReminderDays)
	if err != nil {
		s.logger.Error("reminder sweep: listing failed", "error", err)
		return
	}

	sent := 0
	for _, c := range candidates {
		handled, err := s.logs.HasCycleAction(c.ID, *c.RenewalDate)
		if err != nil {
			s.logger.Error("reminder sweep: gate check failed", "error", err, "entry_id", c.ID)
			continue
		}
		if handled {
			continue
		}

		recipient, ok := s.resolveHandler(c.ServiceHandler)
		if !ok {
			s.logger.Warn("reminder sweep: no user matches handler", "entry_id", c.ID, "handler", c.ServiceHandler)
			continue
		}

		msg := mailer.ComposeRenewalReminder(recipient.Email, recipient.Name, summarize(c),
			s.actionURL(c, ActionContinue), s.actionURL(c, ActionCancel))
		if err := s.mail.Send(msg); err != nil {
			s.logger.Error("reminder sweep: send failed", "error", err, "entry_id", c.ID, "to", recipient.Email)
			continue
		}
		s.notifier.Record(recipient.ID, recipient.Email, notification.TypeRenewalReminder, msg.Subject, msg.PlainText, c.ID)

		if err := s.store.MarkReminderSent(c.ID); err != nil {
			s.logger.Error("reminder sweep: failed to mark sent", "error", err, "entry_id", c.ID)
			continue
		}
		sent++
	}

	s.logger.Info("reminder sweep finished", "candidates", len(candidates), "sent", sent)
}

// SendAutoCancellations deactivates entries whose renewal date passed
// the grace period with no decision, logging a Cancel action and
// notifying the handler plus the MIS inboxes.
func (s *Sweeper) SendAutoCancellations(now time.Time) {
	overdue, err := s.store.ListOverdue(now, s.cfg.AutoCancelDays)
	if err != nil {
		s.logger.Error("auto-cancel sweep: listing failed", "error", err)
		return
	}

	cancelled := 0
	for _, c := range overdue {
		handled, err := s.logs.HasCycleAction(c.ID, *c.RenewalDate)
		if err != nil {
			s.logger.Error("auto-cancel sweep: gate check failed", "error", err, "entry_id", c.ID)
			continue
		}
		if handled {
			continue
		}

		log := &RenewalLog{
			ID:             uuid.NewString(),
			EntryID:        c.ID,
			ServiceHandler: c.ServiceHandler,
			Action:         ActionCancel,
			Reason:         fmt.Sprintf("auto-cancelled %d days after unanswered renewal", s.cfg.AutoCancelDays),
			RenewalDate:    c.RenewalDate,
			CreatedAt:      now,
		}
		if err := s.logs.Append(log); err != nil {
			s.logger.Error("auto-cancel sweep: failed to append log", "error", err, "entry_id", c.ID)
			continue
		}
		if err := s.store.Deactivate(c.ID, now); err != nil {
			s.logger.Error("auto-cancel sweep: failed to deactivate", "error", err, "entry_id", c.ID)
			continue
		}

		s.notifyCancellation(c)

		if err := s.store.MarkCancelNoticeSent(c.ID); err != nil {
			s.logger.Error("auto-cancel sweep: failed to mark notice sent", "error", err, "entry_id", c.ID)
		}
		cancelled++
	}

	s.logger.Info("auto-cancel sweep finished", "overdue", len(overdue), "cancelled", cancelled)
}

// AdvanceHandledCycles repairs entries whose cycle was resolved but
// whose renewal date was never moved (a crash between log and update,
// or a decision recorded out of band): the date is rolled forward past
// now and both notification flags reset for the fresh cycle.
func (s *Sweeper) AdvanceHandledCycles(now time.Time) {
	pastDue, err := s.store.ListPastDue(now)
	if err != nil {
		s.logger.Error("advance sweep: listing failed", "error", err)
		return
	}

	advanced := 0
	for _, c := range pastDue {
		handled, err := s.logs.HasCycleAction(c.ID, *c.RenewalDate)
		if err != nil || !handled {
			continue
		}
		next, moved := AdvanceOverdue(c.Recurring, *c.RenewalDate, now)
		if !moved {
			continue
		}
		if err := s.store.SetRenewalDate(c.ID, &next, true); err != nil {
			s.logger.Error("advance sweep: failed to move renewal date", "error", err, "entry_id", c.ID)
			continue
		}
		advanced++
	}

	s.logger.Info("advance sweep finished", "past_due", len(pastDue), "advanced", advanced)
}

// CleanupRejected drops rejected entries older than the retention
// window.
func (s *Sweeper) CleanupRejected(now time.Time) {
	cutoff := now.AddDate(0, 0, -s.cfg.RejectedRetentionDays)
	deleted, err := s.store.DeleteRejectedBefore(cutoff)
	if err != nil {
		s.logger.Error("rejected cleanup failed", "error", err)
		return
	}
	if deleted > 0 {
		s.logger.Info("rejected entries cleaned up", "deleted", deleted, "cutoff", cutoff.Format("2006-01-02"))
	}
}

// RefreshExchangeRates warms the currency cache.
func (s *Sweeper) RefreshExchangeRates(time.Time) {
	s.rates.Refresh(s.cfg.Currencies)
}

func (s *Sweeper) resolveHandler(handlerName string) (*user.User, bool) {
	users, err := s.users.GetAll()
	if err != nil {
		s.logger.Error("failed to load users for handler match", "error", err)
		return nil, false
	}
	return user.MatchByName(users, handlerName)
}

// notifyCancellation mails the handler (when resolvable) and every MIS
// manager.
func (s *Sweeper) notifyCancellation(c *Candidate) {
	recipients := make(map[string]*user.User)
	if handler, ok := s.resolveHandler(c.ServiceHandler); ok {
		recipients[handler.Email] = handler
	}
	managers, err := s.users.GetByRole(user.RoleMISManager)
	if err != nil {
		s.logger.Error("failed to load MIS managers", "error", err)
	}
	for _, m := range managers {
		recipients[m.Email] = m
	}

	for email, recipient := range recipients {
		msg := mailer.ComposeAutoCancellationNotice(email, recipient.Name, summarize(c))
		if err := s.mail.Send(msg); err != nil {
			s.logger.Error("auto-cancel notice send failed", "error", err, "to", email, "entry_id", c.ID)
			continue
		}
		s.notifier.Record(recipient.ID, email, notification.TypeAutoCancellation, msg.Subject, msg.PlainText, c.ID)
	}
}

func (s *Sweeper) actionURL(c *Candidate, action string) string {
	token, err := s.signer.Sign(c.ID, action, c.ServiceHandler, *c.RenewalDate)
	if err != nil {
		s.logger.Error("failed to sign action token", "error", err, "entry_id", c.ID)
		return ""
	}
	return fmt.Sprintf("%s/api/v1/renewals/action?token=%s", s.cfg.BaseURL, url.QueryEscape(token))
}

func summarize(c *Candidate) mailer.EntrySummary {
	summary := mailer.EntrySummary{
		Particulars:    c.Particulars,
		CardNumber:     c.CardNumber,
		BusinessUnit:   c.BusinessUnit,
		Amount:         c.Amount,
		Currency:       c.Currency,
		Date:           c.Date,
		ServiceHandler: c.ServiceHandler,
	}
	if c.RenewalDate != nil {
		summary.RenewalDate = *c.RenewalDate
	}
	return summary
}
