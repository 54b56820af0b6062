package bulkimport

import (
	"encoding/csv"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/google/uuid"

	"github.com/frahmantamala/cardspend/internal/card"
	"github.com/frahmantamala/cardspend/internal/entry"
	"github.com/frahmantamala/cardspend/internal/fanout"
	"github.com/frahmantamala/cardspend/internal/mailer"
	"github.com/frahmantamala/cardspend/internal/notification"
	"github.com/frahmantamala/cardspend/internal/user"
)

// Mock entry creator for testing
type mockEntryCreator struct {
	created []entry.CreateEntryDTO
	failFor map[string]error
}

func (m *mockEntryCreator) CreateImported(actor entry.Actor, dto entry.CreateEntryDTO) (*entry.Entry, error) {
	if err, ok := m.failFor[dto.Particulars]; ok {
		return nil, err
	}
	m.created = append(m.created, dto)
	return &entry.Entry{
		ID:             uuid.NewString(),
		CardNumber:     dto.CardNumber,
		CardAssignedTo: dto.CardAssignedTo,
		Particulars:    dto.Particulars,
		Amount:         dto.Amount,
		Currency:       dto.Currency,
		BusinessUnit:   dto.BusinessUnit,
		ServiceHandler: dto.ServiceHandler,
		Date:           dto.Date,
	}, nil
}

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

// Mock card repository for testing
type mockCardRepo struct {
	cards map[string]*card.Card
}

func newMockCardRepo() *mockCardRepo {
	return &mockCardRepo{cards: make(map[string]*card.Card)}
}

func (m *mockCardRepo) Create(c *card.Card) error {
	m.cards[c.Number] = c
	return nil
}

func (m *mockCardRepo) GetByID(id string) (*card.Card, error) {
	for _, c := range m.cards {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, card.ErrCardNotFound
}

func (m *mockCardRepo) GetByNumber(normalized string) (*card.Card, error) {
	if c, ok := m.cards[normalized]; ok {
		return c, nil
	}
	return nil, card.ErrCardNotFound
}

func (m *mockCardRepo) GetAll() ([]*card.Card, error) {
	var out []*card.Card
	for _, c := range m.cards {
		out = append(out, c)
	}
	return out, nil
}

func (m *mockCardRepo) Update(c *card.Card) error { return nil }

// Mock notification repository for testing
type mockNotificationRepo struct {
	mu      sync.Mutex
	created []*notification.Notification
}

func (m *mockNotificationRepo) Create(n *notification.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, n)
	return nil
}

func (m *mockNotificationRepo) GetByUserID(userID string, limit, offset int) ([]*notification.Notification, error) {
	return nil, nil
}

func (m *mockNotificationRepo) MarkRead(id string, readAt time.Time) error { return nil }

// Mock mailer capturing sent messages
type mockMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (m *mockMailer) Send(msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
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

var _ = Describe("Importer", func() {
	var (
		importer  *Importer
		creator   *mockEntryCreator
		users     *mockUserRepo
		cardRepo  *mockCardRepo
		notifRepo *mockNotificationRepo
		mail      *mockMailer
	)

	actor := entry.Actor{UserID: "u1", Name: "Priya MIS", Role: user.RoleMISManager}

	headers := []string{
		"Card Number", "Card Assigned To", "Date", "Status", "Particulars",
		"Currency", "Amount", "Business Unit", "Tool or Service Handler", "Shared Bill",
	}

	writeCSV := func(records [][]string) string {
		f, err := os.CreateTemp(GinkgoT().TempDir(), "import-*.csv")
		Expect(err).ToNot(HaveOccurred())
		w := csv.NewWriter(f)
		Expect(w.Write(headers)).To(Succeed())
		Expect(w.WriteAll(records)).To(Succeed())
		w.Flush()
		Expect(f.Close()).To(Succeed())
		return f.Name()
	}

	BeforeEach(func() {
		creator = &mockEntryCreator{failFor: make(map[string]error)}
		users = &mockUserRepo{users: []*user.User{
			{ID: "h1", Name: "Raghav", Email: "raghav@mail.com", Role: user.RoleServiceHandler, BusinessUnit: "Wytlabs", IsActive: true},
			{ID: "s1", Name: "John Doe", Email: "john@mail.com", Role: user.RoleSPOC, BusinessUnit: "Wytlabs", IsActive: true},
			{ID: "m1", Name: "Priya MIS", Email: "priya.mis@mail.com", Role: user.RoleMISManager, IsActive: true},
		}}
		cardRepo = newMockCardRepo()
		notifRepo = &mockNotificationRepo{}
		mail = &mockMailer{}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		fan := fanout.New(users, mail, notification.NewService(notifRepo, logger), logger)
		importer = NewImporter(
			creator,
			card.NewService(cardRepo, logger),
			fan,
			0,
			logger,
		)
	})

	It("should import valid rows, register cards and delete the file", func() {
		// Given
		path := writeCSV([][]string{
			{"M003", "John Doe", "2025-01-05", "Active", "ChatGPT", "USD", "200", "Wytlabs", "Raghav", ""},
			{"M004", "John Doe", "2025-01-06", "Active", "Figma", "EUR", "45", "Wytlabs", "Raghav", ""},
		})

		// When
		summary, err := importer.Run(actor, path)

		// Then
		Expect(err).ToNot(HaveOccurred())
		Expect(summary.Total).To(Equal(2))
		Expect(summary.Success).To(Equal(2))
		Expect(summary.Failed).To(Equal(0))
		Expect(creator.created).To(HaveLen(2))
		Expect(creator.created[0].EntryStatus).To(Equal(entry.EntryStatusAccepted))
		Expect(cardRepo.cards).To(HaveKey("M003"))
		Expect(cardRepo.cards).To(HaveKey("M004"))

		_, statErr := os.Stat(path)
		Expect(os.IsNotExist(statErr)).To(BeTrue())
	})

	It("should report missing fields with spreadsheet row numbers", func() {
		path := writeCSV([][]string{
			{"M003", "John Doe", "2025-01-05", "Active", "ChatGPT", "USD", "200", "Wytlabs", "Raghav", ""},
			{"", "John Doe", "2025-01-06", "Active", "Figma", "EUR", "", "Wytlabs", "Raghav", ""},
		})

		summary, err := importer.Run(actor, path)

		Expect(err).ToNot(HaveOccurred())
		Expect(summary.Success).To(Equal(1))
		Expect(summary.Failed).To(Equal(1))
		Expect(summary.Errors).To(HaveLen(1))
		// First data row is spreadsheet row 2.
		Expect(summary.Errors[0].Row).To(Equal(3))
		Expect(summary.Errors[0].Error).To(Equal("Missing required fields: Card Number, Amount"))
	})

	It("should reject unparseable dates", func() {
		path := writeCSV([][]string{
			{"M003", "John Doe", "someday", "Active", "ChatGPT", "USD", "200", "Wytlabs", "Raghav", ""},
		})

		summary, err := importer.Run(actor, path)

		Expect(err).ToNot(HaveOccurred())
		Expect(summary.Failed).To(Equal(1))
		Expect(summary.Errors[0].Error).To(Equal("Invalid date"))
	})

	It("should check shared allocations before missing fields", func() {
		// Particulars is also missing, but the allocation overflow wins.
		path := writeCSV([][]string{
			{"M003", "John Doe", "2025-01-05", "Active", "", "USD", "200", "Wytlabs", "Raghav", "Wytlabs: 150, Collabx: 100"},
		})

		summary, err := importer.Run(actor, path)

		Expect(err).ToNot(HaveOccurred())
		Expect(summary.Failed).To(Equal(1))
		Expect(summary.Errors[0].Error).To(ContainSubstring("Shared allocations exceed total amount"))
	})

	It("should default unknown currencies to USD", func() {
		path := writeCSV([][]string{
			{"M003", "John Doe", "2025-01-05", "Active", "ChatGPT", "XYZ", "200", "Wytlabs", "Raghav", ""},
		})

		_, err := importer.Run(actor, path)

		Expect(err).ToNot(HaveOccurred())
		Expect(creator.created[0].Currency).To(Equal("USD"))
	})

	It("should fall back to the uploader's business unit", func() {
		buActor := actor
		buActor.BusinessUnit = "Collabx"
		path := writeCSV([][]string{
			{"M003", "John Doe", "2025-01-05", "Active", "ChatGPT", "USD", "200", "", "Raghav", ""},
		})

		_, err := importer.Run(buActor, path)

		Expect(err).ToNot(HaveOccurred())
		Expect(creator.created[0].BusinessUnit).To(Equal("Collabx"))
	})

	It("should count rows the entry service rejects without aborting the batch", func() {
		creator.failFor["Figma"] = errors.New("Invalid currency")
		path := writeCSV([][]string{
			{"M003", "John Doe", "2025-01-05", "Active", "ChatGPT", "USD", "200", "Wytlabs", "Raghav", ""},
			{"M004", "John Doe", "2025-01-06", "Active", "Figma", "EUR", "45", "Wytlabs", "Raghav", ""},
		})

		summary, err := importer.Run(actor, path)

		Expect(err).ToNot(HaveOccurred())
		Expect(summary.Success).To(Equal(1))
		Expect(summary.Failed).To(Equal(1))
		Expect(summary.Errors[0].Row).To(Equal(3))
		Expect(summary.Errors[0].Error).To(Equal("Invalid currency"))
	})

	It("should fail the whole upload when the sheet has no data rows", func() {
		path := writeCSV(nil)

		_, err := importer.Run(actor, path)

		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("No data found"))

		_, statErr := os.Stat(path)
		Expect(os.IsNotExist(statErr)).To(BeTrue())
	})

	Describe("notification fan-out", func() {
		It("should notify SPOC, handler and MIS for explicitly active rows", func() {
			path := writeCSV([][]string{
				{"M003", "John Doe", "2025-01-05", "Active", "ChatGPT", "USD", "200", "Wytlabs", "Raghav", ""},
			})

			_, err := importer.Run(actor, path)

			Expect(err).ToNot(HaveOccurred())
			Expect(mail.recipients()).To(ConsistOf("john@mail.com", "raghav@mail.com", "priya.mis@mail.com"))
			Expect(notifRepo.created).To(HaveLen(3))
		})

		It("should notify only MIS when the sheet left status blank", func() {
			// A blank status stores the default but is not an explicit
			// activation, so only the MIS inboxes hear about it.
			path := writeCSV([][]string{
				{"M003", "John Doe", "2025-01-05", "", "ChatGPT", "USD", "200", "Wytlabs", "Raghav", ""},
			})

			_, err := importer.Run(actor, path)

			Expect(err).ToNot(HaveOccurred())
			Expect(mail.recipients()).To(ConsistOf("priya.mis@mail.com"))
		})

		It("should not double-mail an MIS manager who is also the handler", func() {
			users.users = append(users.users, &user.User{
				ID: "m2", Name: "Raghav", Email: "raghav@mail.com", Role: user.RoleMISManager, IsActive: true,
			})
			path := writeCSV([][]string{
				{"M003", "John Doe", "2025-01-05", "Active", "ChatGPT", "USD", "200", "Wytlabs", "Raghav", ""},
			})

			_, err := importer.Run(actor, path)

			Expect(err).ToNot(HaveOccurred())
			count := 0
			for _, to := range mail.recipients() {
				if to == "raghav@mail.com" {
					count++
				}
			}
			Expect(count).To(Equal(1))
		})
	})
})
