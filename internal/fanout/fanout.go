// Package fanout resolves who hears about an accepted expense entry and
// delivers the email plus in-app record to each recipient: SPOCs matched
// from the card assignment, service handlers matched by name, the
// business unit's admins, and always the MIS inboxes.
package fanout

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/frahmantamala/cardspend/internal/entry"
	"github.com/frahmantamala/cardspend/internal/mailer"
	"github.com/frahmantamala/cardspend/internal/notification"
	"github.com/frahmantamala/cardspend/internal/user"
)

// Task is one queued delivery: the email plus its in-app record.
type Task func() error

// Fanout owns the shared collaborators. MIS addresses are deduplicated
// out of the other recipient sets so nobody is mailed twice for one
// entry.
type Fanout struct {
	users   user.Repository
	mail    mailer.Mailer
	records *notification.Service
	logger  *slog.Logger
}

func New(users user.Repository, mail mailer.Mailer, records *notification.Service, logger *slog.Logger) *Fanout {
	return &Fanout{
		users:   users,
		mail:    mail,
		records: records,
		logger:  logger,
	}
}

// EntryAccepted announces one manually created entry. Satisfies the
// entry service's notifier hook; delivery failures are logged, never
// surfaced to the caller.
func (f *Fanout) EntryAccepted(e *entry.Entry, explicitActive bool) {
	batch := f.NewBatch()
	f.Dispatch(batch.Tasks(e, explicitActive))
}

// Dispatch runs queued tasks to completion concurrently. All-settled:
// one failed send never stops the rest, failures are logged only.
func (f *Fanout) Dispatch(tasks []Task) {
	if len(tasks) == 0 {
		return
	}
	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		go func(t Task) {
			defer wg.Done()
			if err := t(); err != nil {
				f.logger.Warn("entry notification send failed", "error", err)
			}
		}(task)
	}
	wg.Wait()
}

// Batch memoizes recipient resolution across many entries; big imports
// repeat the same handful of names hundreds of times.
type Batch struct {
	fanout      *Fanout
	misManagers []*user.User
	misEmails   map[string]struct{}
	lookup      *userLookup
}

func (f *Fanout) NewBatch() *Batch {
	misManagers, err := f.users.GetByRole(user.RoleMISManager)
	if err != nil {
		f.logger.Error("failed to load MIS managers", "error", err)
	}
	misEmails := make(map[string]struct{}, len(misManagers))
	for _, mis := range misManagers {
		misEmails[strings.ToLower(mis.Email)] = struct{}{}
	}
	return &Batch{
		fanout:      f,
		misManagers: misManagers,
		misEmails:   misEmails,
		lookup:      newUserLookup(f.users, f.logger),
	}
}

// Tasks builds the send closures for one accepted entry. The SPOC,
// handler and admin sets fire only for an explicitly active entry with a
// business unit; the MIS inboxes always hear about it.
func (b *Batch) Tasks(e *entry.Entry, explicitActive bool) []Task {
	var tasks []Task
	f := b.fanout

	summary := mailer.EntrySummary{
		Particulars:    e.Particulars,
		CardNumber:     e.CardNumber,
		BusinessUnit:   e.BusinessUnit,
		Amount:         e.Amount,
		Currency:       e.Currency,
		Date:           e.Date,
		ServiceHandler: e.ServiceHandler,
	}

	queueFor := func(recipient *user.User) {
		msg := mailer.ComposeEntryAccepted(recipient.Email, recipient.Name, summary)
		userID, email, entryID := recipient.ID, recipient.Email, e.ID
		tasks = append(tasks, func() error {
			if err := f.mail.Send(msg); err != nil {
				return err
			}
			f.records.Record(userID, email, notification.TypeEntryAccepted, msg.Subject, msg.PlainText, entryID)
			return nil
		})
	}

	if explicitActive && e.BusinessUnit != "" {
		for _, name := range splitNameList(e.CardAssignedTo) {
			for _, spoc := range b.lookup.byName(name, user.RoleSPOC, e.BusinessUnit) {
				if _, isMIS := b.misEmails[strings.ToLower(spoc.Email)]; !isMIS {
					queueFor(spoc)
				}
			}
		}

		for _, name := range splitNameList(e.ServiceHandler) {
			for _, handler := range b.lookup.byName(name, user.RoleServiceHandler, e.BusinessUnit) {
				if _, isMIS := b.misEmails[strings.ToLower(handler.Email)]; !isMIS {
					queueFor(handler)
				}
			}
		}

		for _, admin := range b.lookup.buAdmins(e.BusinessUnit) {
			if _, isMIS := b.misEmails[strings.ToLower(admin.Email)]; !isMIS {
				queueFor(admin)
			}
		}
	}

	for _, mis := range b.misManagers {
		if mis.Email != "" {
			queueFor(mis)
		}
	}

	return tasks
}

func splitNameList(raw string) []string {
	var names []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	return names
}

// userLookup memoizes role/name/business-unit user queries for the
// lifetime of one batch.
type userLookup struct {
	repo      user.Repository
	logger    *slog.Logger
	nameCache map[string][]*user.User
	buCache   map[string][]*user.User
}

func newUserLookup(repo user.Repository, logger *slog.Logger) *userLookup {
	return &userLookup{
		repo:      repo,
		logger:    logger,
		nameCache: make(map[string][]*user.User),
		buCache:   make(map[string][]*user.User),
	}
}

// byName finds active users of a role by exact (case-insensitive) name,
// scoped to the business unit first and falling back to role-wide when
// the scoped query finds nobody.
func (l *userLookup) byName(name, role, businessUnit string) []*user.User {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return nil
	}
	key := fmt.Sprintf("%s:%s:%s", role, normalized, businessUnit)
	if cached, ok := l.nameCache[key]; ok {
		return cached
	}

	matches := l.filterByName(l.fetch(role, businessUnit), normalized)
	if len(matches) == 0 && businessUnit != "" {
		matches = l.filterByName(l.fetch(role, ""), normalized)
	}

	l.nameCache[key] = matches
	return matches
}

func (l *userLookup) buAdmins(businessUnit string) []*user.User {
	if businessUnit == "" {
		return nil
	}
	if cached, ok := l.buCache[businessUnit]; ok {
		return cached
	}
	admins := l.fetch(user.RoleBusinessUnitAdmin, businessUnit)
	l.buCache[businessUnit] = admins
	return admins
}

func (l *userLookup) fetch(role, businessUnit string) []*user.User {
	var (
		users []*user.User
		err   error
	)
	if businessUnit == "" {
		users, err = l.repo.GetByRole(role)
	} else {
		users, err = l.repo.GetByRoleAndBusinessUnit(role, businessUnit)
	}
	if err != nil {
		l.logger.Error("user lookup failed", "error", err, "role", role, "business_unit", businessUnit)
		return nil
	}
	active := users[:0:0]
	for _, u := range users {
		if u.IsActive {
			active = append(active, u)
		}
	}
	return active
}

func (l *userLookup) filterByName(users []*user.User, normalizedName string) []*user.User {
	var matches []*user.User
	for _, u := range users {
		if strings.ToLower(strings.TrimSpace(u.Name)) == normalizedName {
			matches = append(matches, u)
		}
	}
	return matches
}
