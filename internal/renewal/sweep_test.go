package renewal_test

import (
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/cardspend/internal/auth"
	"github.com/frahmantamala/cardspend/internal/mailer"
	"github.com/frahmantamala/cardspend/internal/notification"
	"github.com/frahmantamala/cardspend/internal/renewal"
	"github.com/frahmantamala/cardspend/internal/user"
)

// Mock user repository for testing
type mockUserRepo struct {
	users []*user.User
}

func (m *mockUserRepo) Create(u *user.User) error { return nil }

func (m *mockUserRepo) GetByID(id string) (*user.User, error) {
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, user.ErrUserNotFound
}

func (m *mockUserRepo) GetByEmail(email string) (*user.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, user.ErrUserNotFound
}

func (m *mockUserRepo) GetByRole(role string) ([]*user.User, error) {
	var out []*user.User
	for _, u := range m.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *mockUserRepo) GetByRoleAndBusinessUnit(role, businessUnit string) ([]*user.User, error) {
	var out []*user.User
	for _, u := range m.users {
		if u.Role == role && u.BusinessUnit == businessUnit {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *mockUserRepo) GetAll() ([]*user.User, error) {
	return m.users, nil
}

// Mock mailer capturing sent messages
type mockMailer struct {
	mu        sync.Mutex
	sent      []mailer.Message
	sendError error
}

func (m *mockMailer) Send(msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendError != nil {
		return m.sendError
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mockMailer) recipients() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	for i, msg := range m.sent {
		out[i] = msg.To
	}
	return out
}

// Mock notification repository for the in-app record
type mockNotificationRepo struct {
	created []*notification.Notification
}

func (m *mockNotificationRepo) Create(n *notification.Notification) error {
	m.created = append(m.created, n)
	return nil
}

func (m *mockNotificationRepo) GetByUserID(userID string, limit, offset int) ([]*notification.Notification, error) {
	return nil, nil
}

func (m *mockNotificationRepo) MarkRead(id string, readAt time.Time) error { return nil }

// Mock rate refresher
type mockRateRefresher struct {
	refreshed [][]string
}

func (m *mockRateRefresher) Refresh(currencies []string) {
	m.refreshed = append(m.refreshed, currencies)
}

var _ = Describe("Sweeper", func() {
	var (
		sweeper   *renewal.Sweeper
		mockStore *mockEntryStore
		mockLogs  *mockLogRepo
		users     *mockUserRepo
		mail      *mockMailer
		notifRepo *mockNotificationRepo
		refresher *mockRateRefresher
	)

	now := time.Date(2025, time.June, 15, 9, 0, 0, 0, time.UTC)

	handler := &user.User{ID: "h1", Name: "Raghav", Email: "raghav@mail.com", Role: user.RoleServiceHandler, IsActive: true}
	mis := &user.User{ID: "m1", Name: "Priya MIS", Email: "priya.mis@mail.com", Role: user.RoleMISManager, IsActive: true}

	BeforeEach(func() {
		mockStore = newMockEntryStore()
		mockLogs = &mockLogRepo{}
		users = &mockUserRepo{users: []*user.User{handler, mis}}
		mail = &mockMailer{}
		notifRepo = &mockNotificationRepo{}
		refresher = &mockRateRefresher{}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		notifier := notification.NewService(notifRepo, logger)
		signer := auth.NewActionTokenSigner("test-secret", time.Hour)

		sweeper = renewal.NewSweeper(mockStore, mockLogs, users, mail, notifier, signer, refresher, renewal.SweepConfig{
			ReminderDays:          5,
			AutoCancelDays:        2,
			RejectedRetentionDays: 3,
			BaseURL:               "https://cardspend.example",
			Currencies:            []string{"USD", "EUR"},
		}, logger)
	})

	dueCandidate := func(id string, rd time.Time) *renewal.Candidate {
		return &renewal.Candidate{
			ID:             id,
			Particulars:    "ChatGPT",
			CardNumber:     "M003",
			BusinessUnit:   "Wytlabs",
			ServiceHandler: "Raghav",
			Recurring:      renewal.RecurringMonthly,
			Currency:       "USD",
			Amount:         decimal.RequireFromString("200"),
			Date:           rd.AddDate(0, -1, 0),
			RenewalDate:    &rd,
		}
	}

	Describe("SendReminders", func() {
		It("should email the matched handler and mark the reminder sent", func() {
			// Given
			rd := now.AddDate(0, 0, 3)
			mockStore.dueWithin = []*renewal.Candidate{dueCandidate("e1", rd)}

			// When
			sweeper.SendReminders(now)

			// Then
			Expect(mail.recipients()).To(ConsistOf("raghav@mail.com"))
			Expect(mockStore.reminderSent).To(ConsistOf("e1"))
			Expect(notifRepo.created).To(HaveLen(1))
			Expect(notifRepo.created[0].Type).To(Equal(notification.TypeRenewalReminder))
		})

		It("should embed signed continue and cancel links", func() {
			rd := now.AddDate(0, 0, 3)
			mockStore.dueWithin = []*renewal.Candidate{dueCandidate("e1", rd)}

			sweeper.SendReminders(now)

			Expect(mail.sent).To(HaveLen(1))
			body := mail.sent[0].PlainText
			Expect(body).To(ContainSubstring("https://cardspend.example/api/v1/renewals/action?token="))
		})

		It("should skip cycles that already have a decision", func() {
			rd := now.AddDate(0, 0, 3)
			mockStore.dueWithin = []*renewal.Candidate{dueCandidate("e1", rd)}
			mockLogs.logs = []*renewal.RenewalLog{{
				EntryID: "e1", Action: renewal.ActionContinue, RenewalDate: &rd,
			}}

			sweeper.SendReminders(now)

			Expect(mail.recipients()).To(BeEmpty())
			Expect(mockStore.reminderSent).To(BeEmpty())
		})

		It("should skip entries whose handler matches no user", func() {
			rd := now.AddDate(0, 0, 3)
			c := dueCandidate("e1", rd)
			c.ServiceHandler = "Nobody Known"
			mockStore.dueWithin = []*renewal.Candidate{c}

			sweeper.SendReminders(now)

			Expect(mail.recipients()).To(BeEmpty())
		})

		It("should not mark sent when the send fails", func() {
			rd := now.AddDate(0, 0, 3)
			mockStore.dueWithin = []*renewal.Candidate{dueCandidate("e1", rd)}
			mail.sendError = errors.New("smtp down")

			sweeper.SendReminders(now)

			Expect(mockStore.reminderSent).To(BeEmpty())
		})
	})

	Describe("SendAutoCancellations", func() {
		It("should log a cancel, deactivate and notify handler plus MIS", func() {
			rd := now.AddDate(0, 0, -3)
			mockStore.overdue = []*renewal.Candidate{dueCandidate("e1", rd)}

			sweeper.SendAutoCancellations(now)

			Expect(mockLogs.logs).To(HaveLen(1))
			Expect(mockLogs.logs[0].Action).To(Equal(renewal.ActionCancel))
			Expect(mockLogs.logs[0].Reason).To(ContainSubstring("auto-cancelled"))
			Expect(mockStore.deactivated).To(ConsistOf("e1"))
			Expect(mail.recipients()).To(ConsistOf("raghav@mail.com", "priya.mis@mail.com"))
			Expect(mockStore.noticeSent).To(ConsistOf("e1"))
		})

		It("should leave answered cycles alone", func() {
			rd := now.AddDate(0, 0, -3)
			mockStore.overdue = []*renewal.Candidate{dueCandidate("e1", rd)}
			mockLogs.logs = []*renewal.RenewalLog{{
				EntryID: "e1", Action: renewal.ActionContinue, RenewalDate: &rd,
			}}

			sweeper.SendAutoCancellations(now)

			Expect(mockStore.deactivated).To(BeEmpty())
			Expect(mail.recipients()).To(BeEmpty())
		})
	})

	Describe("AdvanceHandledCycles", func() {
		It("should roll handled past-due cycles forward with flags reset", func() {
			rd := now.AddDate(0, -2, 0)
			mockStore.pastDue = []*renewal.Candidate{dueCandidate("e1", rd)}
			mockLogs.logs = []*renewal.RenewalLog{{
				EntryID: "e1", Action: renewal.ActionContinue, RenewalDate: &rd,
			}}

			sweeper.AdvanceHandledCycles(now)

			Expect(mockStore.setDates).To(HaveKey("e1"))
			Expect(mockStore.setDates["e1"].After(now)).To(BeTrue())
			Expect(mockStore.setResetFlags["e1"]).To(BeTrue())
		})

		It("should leave unhandled past-due cycles for the auto-cancel sweep", func() {
			rd := now.AddDate(0, -2, 0)
			mockStore.pastDue = []*renewal.Candidate{dueCandidate("e1", rd)}

			sweeper.AdvanceHandledCycles(now)

			Expect(mockStore.setDates).To(BeEmpty())
		})
	})

	Describe("RefreshExchangeRates", func() {
		It("should warm the configured currency set", func() {
			sweeper.RefreshExchangeRates(now)

			Expect(refresher.refreshed).To(HaveLen(1))
			Expect(refresher.refreshed[0]).To(Equal([]string{"USD", "EUR"}))
		})
	})
})
