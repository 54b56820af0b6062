package renewal_test

import (
	"errors"
	"log/slog"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/cardspend/internal/renewal"
)

// Mock entry store for testing
type mockEntryStore struct {
	candidates    map[string]*renewal.Candidate
	dueWithin     []*renewal.Candidate
	overdue       []*renewal.Candidate
	pastDue       []*renewal.Candidate
	reminderSent  []string
	noticeSent    []string
	deactivated   []string
	deletedCount  int
	setDates      map[string]time.Time
	setResetFlags map[string]bool
	setDateError  error
}

func newMockEntryStore() *mockEntryStore {
	return &mockEntryStore{
		candidates:    make(map[string]*renewal.Candidate),
		setDates:      make(map[string]time.Time),
		setResetFlags: make(map[string]bool),
	}
}

func (m *mockEntryStore) GetCandidate(id string) (*renewal.Candidate, error) {
	c, ok := m.candidates[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return c, nil
}

func (m *mockEntryStore) ListDueWithin(now time.Time, days int) ([]*renewal.Candidate, error) {
	return m.dueWithin, nil
}

func (m *mockEntryStore) ListOverdue(now time.Time, graceDays int) ([]*renewal.Candidate, error) {
	return m.overdue, nil
}

func (m *mockEntryStore) ListPastDue(now time.Time) ([]*renewal.Candidate, error) {
	return m.pastDue, nil
}

func (m *mockEntryStore) SetRenewalDate(id string, next *time.Time, resetFlags bool) error {
	if m.setDateError != nil {
		return m.setDateError
	}
	m.setDates[id] = *next
	m.setResetFlags[id] = resetFlags
	return nil
}

func (m *mockEntryStore) MarkReminderSent(id string) error {
	m.reminderSent = append(m.reminderSent, id)
	return nil
}

func (m *mockEntryStore) MarkCancelNoticeSent(id string) error {
	m.noticeSent = append(m.noticeSent, id)
	return nil
}

func (m *mockEntryStore) Deactivate(id string, now time.Time) error {
	m.deactivated = append(m.deactivated, id)
	return nil
}

func (m *mockEntryStore) DeleteRejectedBefore(cutoff time.Time) (int, error) {
	return m.deletedCount, nil
}

// Mock log repository for testing
type mockLogRepo struct {
	logs        []*renewal.RenewalLog
	appendError error
}

func (m *mockLogRepo) Append(log *renewal.RenewalLog) error {
	if m.appendError != nil {
		return m.appendError
	}
	m.logs = append(m.logs, log)
	return nil
}

func (m *mockLogRepo) GetByEntryID(entryID string) ([]*renewal.RenewalLog, error) {
	var out []*renewal.RenewalLog
	for _, log := range m.logs {
		if log.EntryID == entryID {
			out = append(out, log)
		}
	}
	return out, nil
}

func (m *mockLogRepo) GetAll(limit, offset int) ([]*renewal.RenewalLog, error) {
	return m.logs, nil
}

func (m *mockLogRepo) HasCycleAction(entryID string, renewalDate time.Time) (bool, error) {
	for _, log := range m.logs {
		if log.EntryID != entryID || log.RenewalDate == nil {
			continue
		}
		for _, action := range renewal.CycleClosingActions {
			if log.Action == action && log.RenewalDate.Equal(renewalDate) {
				return true, nil
			}
		}
	}
	return false, nil
}

var _ = Describe("RenewalService", func() {
	var (
		service   *renewal.Service
		mockStore *mockEntryStore
		mockLogs  *mockLogRepo
	)

	renewalDate := time.Now().AddDate(0, 0, 3).Truncate(24 * time.Hour)

	candidate := func(id string) *renewal.Candidate {
		rd := renewalDate
		return &renewal.Candidate{
			ID:             id,
			Particulars:    "ChatGPT",
			CardNumber:     "M003",
			BusinessUnit:   "Wytlabs",
			ServiceHandler: "Raghav",
			Recurring:      renewal.RecurringMonthly,
			Currency:       "USD",
			Amount:         decimal.RequireFromString("200"),
			Date:           renewalDate.AddDate(0, -1, 0),
			RenewalDate:    &rd,
		}
	}

	BeforeEach(func() {
		mockStore = newMockEntryStore()
		mockLogs = &mockLogRepo{}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = renewal.NewService(mockStore, mockLogs, logger)
	})

	Describe("Continue", func() {
		It("should log the decision and advance the renewal date with flags reset", func() {
			// Given
			mockStore.candidates["e1"] = candidate("e1")

			// When
			err := service.Continue("e1", "Raghav", "still in use")

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(mockLogs.logs).To(HaveLen(1))
			Expect(mockLogs.logs[0].Action).To(Equal(renewal.ActionContinue))
			Expect(mockStore.setDates["e1"]).To(Equal(renewalDate.AddDate(0, 1, 0)))
			Expect(mockStore.setResetFlags["e1"]).To(BeTrue())
		})

		It("should reject a second action in the same cycle", func() {
			mockStore.candidates["e1"] = candidate("e1")
			Expect(service.Continue("e1", "Raghav", "")).To(Succeed())

			err := service.Cancel("e1", "Raghav", "changed my mind")

			Expect(err).To(Equal(renewal.ErrCycleAlreadyHandled))
		})

		It("should reject entries without a renewal schedule", func() {
			c := candidate("e1")
			c.RenewalDate = nil
			mockStore.candidates["e1"] = c

			err := service.Continue("e1", "Raghav", "")

			Expect(err).To(Equal(renewal.ErrNotRecurring))
		})

		It("should return not found for unknown entries", func() {
			err := service.Continue("ghost", "Raghav", "")

			Expect(err).To(Equal(renewal.ErrEntryNotFound))
		})

		It("should not move the date when the log write fails", func() {
			mockStore.candidates["e1"] = candidate("e1")
			mockLogs.appendError = errors.New("db down")

			err := service.Continue("e1", "Raghav", "")

			Expect(err).To(HaveOccurred())
			Expect(mockStore.setDates).To(BeEmpty())
		})

		It("should fall back to the candidate's handler name when none is given", func() {
			mockStore.candidates["e1"] = candidate("e1")

			Expect(service.Continue("e1", "", "")).To(Succeed())
			Expect(mockLogs.logs[0].ServiceHandler).To(Equal("Raghav"))
		})
	})

	Describe("Cancel", func() {
		It("should log the decision and deactivate the entry", func() {
			mockStore.candidates["e1"] = candidate("e1")

			err := service.Cancel("e1", "Raghav", "no longer needed")

			Expect(err).ToNot(HaveOccurred())
			Expect(mockLogs.logs[0].Action).To(Equal(renewal.ActionCancel))
			Expect(mockStore.deactivated).To(ContainElement("e1"))
		})

		It("should reject a cancel after a continue in the same cycle", func() {
			mockStore.candidates["e1"] = candidate("e1")
			Expect(service.Cancel("e1", "Raghav", "")).To(Succeed())

			err := service.Continue("e1", "Raghav", "")

			Expect(err).To(Equal(renewal.ErrCycleAlreadyHandled))
			Expect(mockStore.setDates).To(BeEmpty())
		})
	})

	Describe("AllLogs", func() {
		It("should default the page size", func() {
			mockLogs.logs = []*renewal.RenewalLog{{ID: "l1"}}

			logs, err := service.AllLogs(0, 0)

			Expect(err).ToNot(HaveOccurred())
			Expect(logs).To(HaveLen(1))
		})
	})
})
