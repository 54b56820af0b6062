package entry_test

import (
	"errors"
	"log/slog"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/cardspend/internal/entry"
	"github.com/frahmantamala/cardspend/internal/renewal"
	"github.com/frahmantamala/cardspend/internal/user"
)

// Mock repository for testing
type mockEntryRepository struct {
	entries     map[string]*entry.Entry
	order       []string
	createError error
	listError   error
	updateError error
}

func newMockEntryRepository() *mockEntryRepository {
	return &mockEntryRepository{entries: make(map[string]*entry.Entry)}
}

func (m *mockEntryRepository) Create(e *entry.Entry) error {
	if m.createError != nil {
		return m.createError
	}
	m.entries[e.ID] = e
	m.order = append(m.order, e.ID)
	return nil
}

func (m *mockEntryRepository) GetByID(id string) (*entry.Entry, error) {
	e, ok := m.entries[id]
	if !ok {
		return nil, errors.New("entry not found")
	}
	clone := *e
	return &clone, nil
}

func (m *mockEntryRepository) List(filters entry.ListFilters) ([]*entry.Entry, error) {
	if m.listError != nil {
		return nil, m.listError
	}
	var out []*entry.Entry
	for _, id := range m.order {
		e := m.entries[id]
		if filters.EntryStatus != "" && e.EntryStatus != filters.EntryStatus {
			continue
		}
		if filters.BusinessUnit != "" && e.BusinessUnit != filters.BusinessUnit {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *mockEntryRepository) Update(e *entry.Entry) error {
	if m.updateError != nil {
		return m.updateError
	}
	m.entries[e.ID] = e
	return nil
}

func (m *mockEntryRepository) Delete(id string) error {
	if _, ok := m.entries[id]; !ok {
		return errors.New("entry not found")
	}
	delete(m.entries, id)
	return nil
}

func (m *mockEntryRepository) DeleteMany(ids []string) error {
	for _, id := range ids {
		delete(m.entries, id)
	}
	return nil
}

// Mock renewal log repository for testing
type mockLogRepository struct {
	logs        []*renewal.RenewalLog
	appendError error
}

func (m *mockLogRepository) Append(log *renewal.RenewalLog) error {
	if m.appendError != nil {
		return m.appendError
	}
	m.logs = append(m.logs, log)
	return nil
}

func (m *mockLogRepository) GetByEntryID(entryID string) ([]*renewal.RenewalLog, error) {
	var out []*renewal.RenewalLog
	for _, log := range m.logs {
		if log.EntryID == entryID {
			out = append(out, log)
		}
	}
	return out, nil
}

func (m *mockLogRepository) GetAll(limit, offset int) ([]*renewal.RenewalLog, error) {
	return m.logs, nil
}

func (m *mockLogRepository) HasCycleAction(entryID string, renewalDate time.Time) (bool, error) {
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

func (m *mockLogRepository) actions() []string {
	out := make([]string, len(m.logs))
	for i, log := range m.logs {
		out[i] = log.Action
	}
	return out
}

// Mock rate source for testing
type mockRateSource struct {
	rates     map[string]decimal.Decimal
	rateError error
}

func newMockRateSource() *mockRateSource {
	return &mockRateSource{rates: map[string]decimal.Decimal{
		"USD": decimal.RequireFromString("83.50"),
		"EUR": decimal.RequireFromString("90"),
		"INR": decimal.NewFromInt(1),
	}}
}

func (m *mockRateSource) Rate(currency string) (decimal.Decimal, error) {
	if m.rateError != nil {
		return decimal.Decimal{}, m.rateError
	}
	rate, ok := m.rates[currency]
	if !ok {
		return decimal.Decimal{}, errors.New("no rate for " + currency)
	}
	return rate, nil
}

// Mock notifier recording announced entries
type mockNotifier struct {
	announced []*entry.Entry
	active    []bool
}

func (m *mockNotifier) EntryAccepted(e *entry.Entry, explicitActive bool) {
	m.announced = append(m.announced, e)
	m.active = append(m.active, explicitActive)
}

var _ = Describe("EntryService", func() {
	var (
		service  *entry.Service
		mockRepo *mockEntryRepository
		mockLogs *mockLogRepository
		rates    *mockRateSource
		notifier *mockNotifier
		admin    entry.Actor
		spoc     entry.Actor
	)

	txDate := time.Date(2025, time.January, 5, 0, 0, 0, 0, time.UTC)

	validDTO := func() entry.CreateEntryDTO {
		return entry.CreateEntryDTO{
			CardNumber:     "M003",
			CardAssignedTo: "John Doe",
			Particulars:    "ChatGPT",
			Amount:         dec("200"),
			Currency:       "USD",
			BusinessUnit:   "Wytlabs",
			Date:           txDate,
			Recurring:      "Yearly",
		}
	}

	BeforeEach(func() {
		mockRepo = newMockEntryRepository()
		mockLogs = &mockLogRepository{}
		rates = newMockRateSource()
		notifier = &mockNotifier{}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = entry.NewService(mockRepo, mockLogs, rates, notifier, logger)
		admin = entry.Actor{UserID: "u1", Name: "Tarun", Role: user.RoleMISManager, BusinessUnit: ""}
		spoc = entry.Actor{UserID: "u2", Name: "John Doe", Role: user.RoleSPOC, BusinessUnit: "Collabx"}
	})

	Describe("CreateEntry", func() {
		It("should snapshot the exchange rate and compute the INR amount", func() {
			// When
			created, err := service.CreateEntry(admin, validDTO())

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(created.XERate.Equal(dec("83.50"))).To(BeTrue())
			Expect(created.AmountInINR.Equal(dec("16700.00"))).To(BeTrue())
		})

		It("should prefer an explicitly provided positive rate", func() {
			dto := validDTO()
			dto.XERate = dec("80")

			created, err := service.CreateEntry(admin, dto)

			Expect(err).ToNot(HaveOccurred())
			Expect(created.XERate.Equal(dec("80"))).To(BeTrue())
			Expect(created.AmountInINR.Equal(dec("16000.00"))).To(BeTrue())
		})

		It("should schedule the renewal one year out for yearly entries", func() {
			created, err := service.CreateEntry(admin, validDTO())

			Expect(err).ToNot(HaveOccurred())
			Expect(created.NextRenewalDate).ToNot(BeNil())
			Expect(*created.NextRenewalDate).To(Equal(txDate.AddDate(1, 0, 0)))
		})

		It("should leave one-time entries without a renewal date", func() {
			dto := validDTO()
			dto.Recurring = "One-time"

			created, err := service.CreateEntry(admin, dto)

			Expect(err).ToNot(HaveOccurred())
			Expect(created.NextRenewalDate).To(BeNil())
		})

		It("should replace the nominal amount with a positive shared total", func() {
			dto := validDTO()
			dto.IsShared = true
			dto.Allocations = entry.AllocationList{
				{BusinessUnit: "Wytlabs", Amount: dec("120")},
				{BusinessUnit: "Collabx", Amount: dec("60")},
			}

			created, err := service.CreateEntry(admin, dto)

			Expect(err).ToNot(HaveOccurred())
			Expect(created.Amount.Equal(dec("180"))).To(BeTrue())
			Expect(created.IsShared).To(BeTrue())
		})

		It("should reject allocations exceeding the amount", func() {
			dto := validDTO()
			dto.IsShared = true
			dto.Allocations = entry.AllocationList{
				{BusinessUnit: "Wytlabs", Amount: dec("250")},
				{BusinessUnit: "Collabx", Amount: dec("100")},
			}

			_, err := service.CreateEntry(admin, dto)

			Expect(err).To(HaveOccurred())
		})

		It("should default narration to particulars and derive the month label", func() {
			created, err := service.CreateEntry(admin, validDTO())

			Expect(err).ToNot(HaveOccurred())
			Expect(created.Narration).To(Equal("ChatGPT"))
			Expect(created.Month).To(Equal("Jan-2025"))
		})

		It("should report all missing required fields at once", func() {
			_, err := service.CreateEntry(admin, entry.CreateEntryDTO{})

			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("Missing required fields:"))
			Expect(err.Error()).To(ContainSubstring("cardNumber"))
			Expect(err.Error()).To(ContainSubstring("amount"))
		})

		It("should default the entry status to Accepted", func() {
			// Manual creation is already the review: nobody parks their
			// own entry as Pending.
			created, err := service.CreateEntry(admin, validDTO())

			Expect(err).ToNot(HaveOccurred())
			Expect(created.EntryStatus).To(Equal(entry.EntryStatusAccepted))
		})

		It("should announce the stored entry with its active flag", func() {
			created, err := service.CreateEntry(admin, validDTO())

			Expect(err).ToNot(HaveOccurred())
			Expect(notifier.announced).To(HaveLen(1))
			Expect(notifier.announced[0].ID).To(Equal(created.ID))
			Expect(notifier.active[0]).To(BeTrue())
		})

		It("should announce deactive entries without the active flag", func() {
			dto := validDTO()
			dto.Status = "Deactive"

			_, err := service.CreateEntry(admin, dto)

			Expect(err).ToNot(HaveOccurred())
			Expect(notifier.announced).To(HaveLen(1))
			Expect(notifier.active[0]).To(BeFalse())
		})
	})

	Describe("CreateImported", func() {
		It("should keep the sheet amount even when allocations are present", func() {
			// Bulk rows trust the Amount column; the breakdown only
			// records how the cost splits.
			dto := validDTO()
			dto.IsShared = true
			dto.Allocations = entry.AllocationList{
				{BusinessUnit: "Wytlabs", Amount: dec("120")},
				{BusinessUnit: "Collabx", Amount: dec("60")},
			}

			created, err := service.CreateImported(admin, dto)

			Expect(err).ToNot(HaveOccurred())
			Expect(created.Amount.Equal(dec("200"))).To(BeTrue())
			Expect(created.SharedAllocations).To(HaveLen(2))
		})

		It("should not announce imported rows one by one", func() {
			// The import pipeline batches its own notifications.
			_, err := service.CreateImported(admin, validDTO())

			Expect(err).ToNot(HaveOccurred())
			Expect(notifier.announced).To(BeEmpty())
		})
	})

	Describe("ListEntries", func() {
		BeforeEach(func() {
			accepted := validDTO()
			accepted.EntryStatus = "Accepted"
			_, err := service.CreateEntry(admin, accepted)
			Expect(err).ToNot(HaveOccurred())

			dup := validDTO()
			dup.EntryStatus = "Accepted"
			_, err = service.CreateEntry(admin, dup)
			Expect(err).ToNot(HaveOccurred())

			other := validDTO()
			other.EntryStatus = "Accepted"
			other.Particulars = "Figma"
			other.BusinessUnit = "Collabx"
			_, err = service.CreateEntry(admin, other)
			Expect(err).ToNot(HaveOccurred())

			pending := validDTO()
			pending.EntryStatus = "Pending"
			_, err = service.CreateEntry(admin, pending)
			Expect(err).ToNot(HaveOccurred())
		})

		It("should default to accepted entries and annotate duplicates", func() {
			result, err := service.ListEntries(admin, entry.ListQuery{})

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Total).To(Equal(3))

			flags := map[string]int{}
			for _, v := range result.Entries {
				flags[v.DuplicateFlag]++
			}
			Expect(flags["duplicate"]).To(Equal(2))
			Expect(flags["unique"]).To(Equal(1))
		})

		It("should filter down to duplicates on request", func() {
			result, err := service.ListEntries(admin, entry.ListQuery{DuplicateFilter: "duplicate"})

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Total).To(Equal(2))
			for _, v := range result.Entries {
				Expect(v.DuplicateLabel).To(HavePrefix("Duplicate"))
			}
		})

		It("should scope business-unit roles to their own unit", func() {
			result, err := service.ListEntries(spoc, entry.ListQuery{BusinessUnit: "Wytlabs"})

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Total).To(Equal(1))
			Expect(result.Entries[0].BusinessUnit).To(Equal("Collabx"))
		})

		It("should paginate after filtering and report the full total", func() {
			result, err := service.ListEntries(admin, entry.ListQuery{Limit: 2})

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Total).To(Equal(3))
			Expect(result.Entries).To(HaveLen(2))
		})
	})

	Describe("UpdateEntry", func() {
		var created *entry.Entry

		BeforeEach(func() {
			var err error
			created, err = service.CreateEntry(admin, validDTO())
			Expect(err).ToNot(HaveOccurred())
		})

		It("should refresh the rate snapshot when the amount changes", func() {
			amount := dec("300")
			updated, err := service.UpdateEntry(admin, created.ID, entry.UpdateEntryDTO{Amount: &amount})

			Expect(err).ToNot(HaveOccurred())
			Expect(updated.AmountInINR.Equal(dec("25050.00"))).To(BeTrue())
		})

		It("should recompute the renewal date and reset flags when recurring changes", func() {
			monthly := "Monthly"
			updated, err := service.UpdateEntry(admin, created.ID, entry.UpdateEntryDTO{Recurring: &monthly})

			Expect(err).ToNot(HaveOccurred())
			Expect(*updated.NextRenewalDate).To(Equal(txDate.AddDate(0, 1, 0)))
			Expect(updated.RenewalNotificationSent).To(BeFalse())
			Expect(updated.AutoCancellationNotificationSent).To(BeFalse())
		})

		It("should deny deactivation to non-managing roles", func() {
			deactive := "Deactive"
			_, err := service.UpdateEntry(spoc, created.ID, entry.UpdateEntryDTO{Status: &deactive})

			Expect(err).To(Equal(entry.ErrUnauthorizedAccess))
		})

		It("should stamp disabled_at and log DisableByMIS on deactivation", func() {
			deactive := "Deactive"
			updated, err := service.UpdateEntry(admin, created.ID, entry.UpdateEntryDTO{Status: &deactive, Reason: "no longer needed"})

			Expect(err).ToNot(HaveOccurred())
			Expect(updated.Status).To(Equal(entry.StatusDeactive))
			Expect(updated.DisabledAt).ToNot(BeNil())
			Expect(mockLogs.actions()).To(ContainElement(renewal.ActionDisableByMIS))
		})

		It("should log SharedEdit when the allocation list changes", func() {
			allocations := entry.AllocationList{
				{BusinessUnit: "Wytlabs", Amount: dec("150")},
			}
			shared := true
			_, err := service.UpdateEntry(admin, created.ID, entry.UpdateEntryDTO{IsShared: &shared, Allocations: &allocations})

			Expect(err).ToNot(HaveOccurred())
			Expect(mockLogs.actions()).To(ContainElement(renewal.ActionSharedEdit))
		})

		It("should log DuplicateOverride when the duplicate status changes", func() {
			unique := "unique"
			updated, err := service.UpdateEntry(admin, created.ID, entry.UpdateEntryDTO{DuplicateStatus: &unique})

			Expect(err).ToNot(HaveOccurred())
			Expect(updated.DuplicateStatus).To(Equal(entry.DuplicateStatusUnique))
			Expect(mockLogs.actions()).To(ContainElement(renewal.ActionDuplicateOverride))
		})

		It("should deny duplicate overrides to non-managing roles", func() {
			unique := "Unique"
			_, err := service.UpdateEntry(spoc, created.ID, entry.UpdateEntryDTO{DuplicateStatus: &unique})

			Expect(err).To(Equal(entry.ErrUnauthorizedAccess))
		})

		It("should clear a pinned status when set back to Auto", func() {
			unique := "Unique"
			_, err := service.UpdateEntry(admin, created.ID, entry.UpdateEntryDTO{DuplicateStatus: &unique})
			Expect(err).ToNot(HaveOccurred())

			auto := "Auto"
			updated, err := service.UpdateEntry(admin, created.ID, entry.UpdateEntryDTO{DuplicateStatus: &auto})

			Expect(err).ToNot(HaveOccurred())
			Expect(updated.DuplicateStatus).To(Equal(""))
		})

		It("should ignore unrecognized duplicate status values", func() {
			bogus := "Suspicious"
			updated, err := service.UpdateEntry(admin, created.ID, entry.UpdateEntryDTO{DuplicateStatus: &bogus})

			Expect(err).ToNot(HaveOccurred())
			Expect(updated.DuplicateStatus).To(Equal(""))
			Expect(mockLogs.actions()).ToNot(ContainElement(renewal.ActionDuplicateOverride))
		})

		It("should deny entry status changes to non-managing roles", func() {
			accepted := "Accepted"
			_, err := service.UpdateEntry(spoc, created.ID, entry.UpdateEntryDTO{EntryStatus: &accepted})

			Expect(err).To(Equal(entry.ErrUnauthorizedAccess))
		})

		It("should reject an unsupported currency", func() {
			bogus := "XYZ"
			_, err := service.UpdateEntry(admin, created.ID, entry.UpdateEntryDTO{Currency: &bogus})

			Expect(err).To(HaveOccurred())
		})
	})

	Describe("DeleteEntry", func() {
		var created *entry.Entry

		BeforeEach(func() {
			var err error
			created, err = service.CreateEntry(admin, validDTO())
			Expect(err).ToNot(HaveOccurred())
		})

		It("should deny deletes to non-managing roles", func() {
			err := service.DeleteEntry(spoc, created.ID, "cleanup")

			Expect(err).To(Equal(entry.ErrUnauthorizedAccess))
		})

		It("should log before deleting", func() {
			err := service.DeleteEntry(admin, created.ID, "cleanup")

			Expect(err).ToNot(HaveOccurred())
			Expect(mockLogs.actions()).To(ContainElement(renewal.ActionDeleteEntry))
			_, getErr := mockRepo.GetByID(created.ID)
			Expect(getErr).To(HaveOccurred())
		})
	})

	Describe("BulkDeleteEntries", func() {
		It("should skip missing entries and delete the rest", func() {
			first, err := service.CreateEntry(admin, validDTO())
			Expect(err).ToNot(HaveOccurred())
			second, err := service.CreateEntry(admin, validDTO())
			Expect(err).ToNot(HaveOccurred())

			deleted, err := service.BulkDeleteEntries(admin, entry.BulkDeleteDTO{
				IDs:    []string{first.ID, "missing", second.ID},
				Reason: "month-end purge",
			})

			Expect(err).ToNot(HaveOccurred())
			Expect(deleted).To(Equal(2))
		})
	})
})
