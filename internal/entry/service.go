package entry

import (
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/cardspend/internal/normalize"
	"github.com/frahmantamala/cardspend/internal/renewal"
	"github.com/frahmantamala/cardspend/internal/user"
)

// Repository defines the data access methods for entries.
type Repository interface {
	Create(e *Entry) error
	GetByID(id string) (*Entry, error)
	List(filters ListFilters) ([]*Entry, error)
	Update(e *Entry) error
	Delete(id string) error
	DeleteMany(ids []string) error
}

// RateSource snapshots an exchange rate to INR for a currency.
type RateSource interface {
	Rate(currency string) (decimal.Decimal, error)
}

// Notifier announces a stored entry to its interested users: SPOCs,
// service handlers, business unit admins and the MIS inboxes.
type Notifier interface {
	EntryAccepted(e *Entry, explicitActive bool)
}

// Actor identifies who is performing an operation, resolved from the
// authenticated request.
type Actor struct {
	UserID       string
	Name         string
	Role         string
	BusinessUnit string
}

// Service handles entry business logic.
type Service struct {
	repo     Repository
	logs     renewal.LogRepository
	rates    RateSource
	notifier Notifier
	logger   *slog.Logger
}

func NewService(repo Repository, logs renewal.LogRepository, rates RateSource, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		logs:     logs,
		rates:    rates,
		notifier: notifier,
		logger:   logger,
	}
}

// CreateEntry validates, normalizes and persists a manually created
// entry. A positive shared total replaces the nominal amount. The
// notification fan-out runs here, not on the import path: the bulk
// pipeline batches its own sends.
func (s *Service) CreateEntry(actor Actor, dto CreateEntryDTO) (*Entry, error) {
	e, err := s.create(actor, dto, true)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.EntryAccepted(e, e.Status == StatusActive)
	}
	return e, nil
}

// CreateImported persists a bulk-import row. Unlike manual creation the
// nominal amount stands even when allocations are present; the uploaded
// sheet's Amount column is the trusted figure.
func (s *Service) CreateImported(actor Actor, dto CreateEntryDTO) (*Entry, error) {
	return s.create(actor, dto, false)
}

func (s *Service) create(actor Actor, dto CreateEntryDTO, sharedTotalReplacesAmount bool) (*Entry, error) {
	if err := dto.Validate(); err != nil {
		s.logger.Error("entry validation failed", "error", err, "user_id", actor.UserID)
		return nil, err
	}

	now := time.Now()
	e := &Entry{
		ID:             uuid.NewString(),
		CardNumber:     strings.TrimSpace(dto.CardNumber),
		CardAssignedTo: strings.TrimSpace(dto.CardAssignedTo),
		Particulars:    strings.TrimSpace(dto.Particulars),
		Narration:      strings.TrimSpace(dto.Narration),
		BillStatus:     strings.TrimSpace(dto.BillStatus),
		Amount:         dto.Amount.Abs(),
		Currency:       normalize.NormalizeEnum(dto.Currency, nil, AllowedCurrencies),
		Status:         canonicalOrDefault(dto.Status, AllowedStatuses, StatusActive),
		TypeOfService:  normalize.NormalizeEnum(dto.TypeOfService, nil, AllowedServiceTypes),
		BusinessUnit:   normalize.NormalizeEnum(dto.BusinessUnit, nil, AllowedBusinessUnits),
		CostCenter:     normalize.NormalizeEnum(dto.CostCenter, nil, AllowedCostCenters),
		ApprovedBy:     normalize.NormalizeEnum(dto.ApprovedBy, nil, AllowedApprovers),
		ServiceHandler: strings.TrimSpace(dto.ServiceHandler),
		// Every creating role auto-accepts; Pending exists only for
		// entries parked by an explicit review workflow.
		EntryStatus:    canonicalOrDefault(dto.EntryStatus, AllowedEntryStatuses, EntryStatusAccepted),
		Date:           dto.Date.UTC(),
		Recurring:      normalize.NormalizeEnum(dto.Recurring, nil, AllowedRecurring),
		IsShared:       dto.IsShared,
		CreatedBy:      actor.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if e.Narration == "" {
		e.Narration = e.Particulars
	}
	e.Month = normalize.ResolveMonthLabel(normalize.StringCell(dto.Month), e.Date)

	allocations, sharedTotal, err := ValidateSharedAllocations(e.IsShared, dto.Allocations, e.Amount, e.BusinessUnit)
	if err != nil {
		s.logger.Warn("shared allocation validation failed", "error", err, "user_id", actor.UserID)
		return nil, err
	}
	e.SharedAllocations = allocations
	e.IsShared = len(allocations) > 0
	// Once sharing is on, the allocation breakdown is authoritative over
	// the separately typed total.
	if sharedTotalReplacesAmount && sharedTotal.IsPositive() {
		e.Amount = sharedTotal
	}

	if err := s.applyRate(e, dto.XERate); err != nil {
		return nil, err
	}

	e.NextRenewalDate = renewal.NextRenewalDate(e.Recurring, e.Date)

	if err := s.repo.Create(e); err != nil {
		s.logger.Error("failed to create entry", "error", err, "user_id", actor.UserID)
		return nil, err
	}

	s.logger.Info("entry created",
		"entry_id", e.ID,
		"user_id", actor.UserID,
		"amount", e.Amount.String(),
		"currency", e.Currency,
		"shared", e.IsShared)

	return e, nil
}

// GetEntry retrieves a single entry.
func (s *Service) GetEntry(id string) (*Entry, error) {
	e, err := s.repo.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get entry", "error", err, "entry_id", id)
		return nil, ErrEntryNotFound
	}
	return e, nil
}

// ListEntries loads the filtered result set, layers the duplicate
// annotation over it and applies the duplicate filter plus pagination in
// memory. Grouping needs the full set, so pagination never reaches the
// repository.
func (s *Service) ListEntries(actor Actor, query ListQuery) (*ListResult, error) {
	filters := ListFilters{
		BusinessUnit:   query.BusinessUnit,
		CostCenter:     query.CostCenter,
		Status:         query.Status,
		EntryStatus:    query.EntryStatus,
		Month:          query.Month,
		CardNumber:     query.CardNumber,
		ServiceHandler: query.ServiceHandler,
		Search:         query.Search,
	}
	if filters.EntryStatus == "" {
		filters.EntryStatus = EntryStatusAccepted
	}
	if !user.SeesAllBusinessUnits(actor.Role) && actor.BusinessUnit != "" {
		filters.BusinessUnit = actor.BusinessUnit
	}

	entries, err := s.repo.List(filters)
	if err != nil {
		s.logger.Error("failed to list entries", "error", err)
		return nil, err
	}

	views := AnnotateEntries(entries)

	filter := ParseDuplicateFilter(query.DuplicateFilter)
	filtered := views[:0:0]
	for _, v := range views {
		if filter.Keep(v.DuplicateFlag) {
			filtered = append(filtered, v)
		}
	}

	total := len(filtered)
	page := paginate(filtered, query.Offset, query.Limit)
	return &ListResult{Entries: page, Total: total}, nil
}

// UpdateEntry applies a partial edit, recomputing the derived fields the
// edit invalidates: amount/currency changes refresh the rate snapshot
// and the INR amount, date/recurring changes recompute the renewal date
// and reset both notification flags, a transition into Deactive stamps
// disabled_at. Allocation and duplicate-override edits leave an audit
// log row behind.
func (s *Service) UpdateEntry(actor Actor, id string, dto UpdateEntryDTO) (*Entry, error) {
	e, err := s.repo.GetByID(id)
	if err != nil {
		s.logger.Error("entry not found for update", "error", err, "entry_id", id)
		return nil, ErrEntryNotFound
	}

	var (
		moneyChanged     bool
		rateProvided     = dto.XERate != nil
		scheduleChanged  bool
		sharedChanged    bool
		duplicateChanged bool
		deactivated      bool
	)

	if dto.CardNumber != nil {
		e.CardNumber = strings.TrimSpace(*dto.CardNumber)
	}
	if dto.CardAssignedTo != nil {
		e.CardAssignedTo = strings.TrimSpace(*dto.CardAssignedTo)
	}
	if dto.Particulars != nil {
		e.Particulars = strings.TrimSpace(*dto.Particulars)
	}
	if dto.Narration != nil {
		e.Narration = strings.TrimSpace(*dto.Narration)
	}
	if dto.BillStatus != nil {
		e.BillStatus = strings.TrimSpace(*dto.BillStatus)
	}
	if dto.TypeOfService != nil {
		e.TypeOfService = normalize.NormalizeEnum(*dto.TypeOfService, nil, AllowedServiceTypes)
	}
	if dto.BusinessUnit != nil {
		e.BusinessUnit = normalize.NormalizeEnum(*dto.BusinessUnit, nil, AllowedBusinessUnits)
	}
	if dto.CostCenter != nil {
		e.CostCenter = normalize.NormalizeEnum(*dto.CostCenter, nil, AllowedCostCenters)
	}
	if dto.ApprovedBy != nil {
		e.ApprovedBy = normalize.NormalizeEnum(*dto.ApprovedBy, nil, AllowedApprovers)
	}
	if dto.ServiceHandler != nil {
		e.ServiceHandler = strings.TrimSpace(*dto.ServiceHandler)
	}

	if dto.Amount != nil && !dto.Amount.Equal(e.Amount) {
		if dto.Amount.IsNegative() {
			e.Amount = dto.Amount.Abs()
		} else {
			e.Amount = *dto.Amount
		}
		moneyChanged = true
	}
	if dto.Currency != nil {
		canonical := normalize.NormalizeEnum(*dto.Currency, nil, AllowedCurrencies)
		if canonical == "" {
			return nil, ErrUnsupportedCurrency(*dto.Currency)
		}
		if canonical != e.Currency {
			e.Currency = canonical
			moneyChanged = true
		}
	}

	if dto.Date != nil && !dto.Date.UTC().Equal(e.Date) {
		e.Date = dto.Date.UTC()
		scheduleChanged = true
	}
	if dto.Recurring != nil {
		canonical := normalize.NormalizeEnum(*dto.Recurring, nil, AllowedRecurring)
		if canonical != e.Recurring {
			e.Recurring = canonical
			scheduleChanged = true
		}
	}
	if dto.Month != nil || scheduleChanged {
		monthRaw := ""
		if dto.Month != nil {
			monthRaw = *dto.Month
		}
		e.Month = normalize.ResolveMonthLabel(normalize.StringCell(monthRaw), e.Date)
	}

	if dto.IsShared != nil && *dto.IsShared != e.IsShared {
		e.IsShared = *dto.IsShared
		sharedChanged = true
	}
	if dto.Allocations != nil {
		e.SharedAllocations = *dto.Allocations
		sharedChanged = true
	}
	if sharedChanged || (moneyChanged && e.IsShared) {
		allocations, sharedTotal, err := ValidateSharedAllocations(e.IsShared, e.SharedAllocations, e.Amount, e.BusinessUnit)
		if err != nil {
			s.logger.Warn("shared allocation validation failed", "error", err, "entry_id", id)
			return nil, err
		}
		e.SharedAllocations = allocations
		if sharedTotal.IsPositive() {
			e.Amount = sharedTotal
			moneyChanged = true
		}
	}

	if moneyChanged || rateProvided {
		var provided decimal.Decimal
		if rateProvided {
			provided = *dto.XERate
		}
		if err := s.applyRate(e, provided); err != nil {
			return nil, err
		}
	}

	if scheduleChanged {
		e.NextRenewalDate = renewal.NextRenewalDate(e.Recurring, e.Date)
		e.RenewalNotificationSent = false
		e.AutoCancellationNotificationSent = false
	}

	if dto.Status != nil {
		canonical := canonicalOrDefault(*dto.Status, AllowedStatuses, e.Status)
		if canonical == StatusDeactive && e.Status != StatusDeactive {
			if !user.CanManageEntries(actor.Role) {
				s.logger.Warn("deactivate denied", "entry_id", id, "role", actor.Role)
				return nil, ErrUnauthorizedAccess
			}
			e.Deactivate(time.Now())
			deactivated = true
		} else {
			e.Status = canonical
		}
	}

	if dto.EntryStatus != nil {
		canonical := canonicalOrDefault(*dto.EntryStatus, AllowedEntryStatuses, e.EntryStatus)
		if canonical != e.EntryStatus && !user.CanManageEntries(actor.Role) {
			s.logger.Warn("entry status change denied", "entry_id", id, "role", actor.Role)
			return nil, ErrUnauthorizedAccess
		}
		e.EntryStatus = canonical
	}

	if dto.DuplicateStatus != nil {
		if !user.CanManageEntries(actor.Role) {
			s.logger.Warn("duplicate override denied", "entry_id", id, "role", actor.Role)
			return nil, ErrUnauthorizedAccess
		}
		if status, ok := canonicalDuplicateStatus(*dto.DuplicateStatus); ok && status != e.DuplicateStatus {
			e.DuplicateStatus = status
			duplicateChanged = true
		}
	}

	e.UpdatedAt = time.Now()
	if err := s.repo.Update(e); err != nil {
		s.logger.Error("failed to update entry", "error", err, "entry_id", id)
		return nil, err
	}

	if deactivated {
		s.appendLog(e, renewal.ActionDisableByMIS, dto.Reason, actor)
	}
	if sharedChanged {
		s.appendLog(e, renewal.ActionSharedEdit, dto.Reason, actor)
	}
	if duplicateChanged {
		s.appendLog(e, renewal.ActionDuplicateOverride, dto.Reason, actor)
	}

	s.logger.Info("entry updated", "entry_id", e.ID, "user_id", actor.UserID)
	return e, nil
}

// DeleteEntry removes an entry, leaving a DeleteEntry audit row. The log
// is written before the delete; an orphaned log on a failed delete is an
// accepted inconsistency.
func (s *Service) DeleteEntry(actor Actor, id, reason string) error {
	if !user.CanManageEntries(actor.Role) {
		s.logger.Warn("delete denied", "entry_id", id, "role", actor.Role)
		return ErrUnauthorizedAccess
	}

	e, err := s.repo.GetByID(id)
	if err != nil {
		return ErrEntryNotFound
	}

	s.appendLog(e, renewal.ActionDeleteEntry, reason, actor)

	if err := s.repo.Delete(id); err != nil {
		s.logger.Error("failed to delete entry", "error", err, "entry_id", id)
		return err
	}

	s.logger.Info("entry deleted", "entry_id", id, "user_id", actor.UserID)
	return nil
}

// BulkDeleteEntries removes a batch, one audit row each.
func (s *Service) BulkDeleteEntries(actor Actor, dto BulkDeleteDTO) (int, error) {
	if err := dto.Validate(); err != nil {
		return 0, err
	}
	if !user.CanManageEntries(actor.Role) {
		s.logger.Warn("bulk delete denied", "role", actor.Role, "count", len(dto.IDs))
		return 0, ErrUnauthorizedAccess
	}

	deletable := make([]string, 0, len(dto.IDs))
	for _, id := range dto.IDs {
		e, err := s.repo.GetByID(id)
		if err != nil {
			s.logger.Warn("bulk delete skipping missing entry", "entry_id", id)
			continue
		}
		s.appendLog(e, renewal.ActionDeleteEntry, dto.Reason, actor)
		deletable = append(deletable, id)
	}

	if len(deletable) == 0 {
		return 0, nil
	}
	if err := s.repo.DeleteMany(deletable); err != nil {
		s.logger.Error("bulk delete failed", "error", err, "count", len(deletable))
		return 0, err
	}

	s.logger.Info("entries bulk deleted", "count", len(deletable), "user_id", actor.UserID)
	return len(deletable), nil
}

// applyRate snapshots the exchange rate: an explicitly provided positive
// rate wins, otherwise the converter supplies the current one. The INR
// amount is recomputed either way.
func (s *Service) applyRate(e *Entry, provided decimal.Decimal) error {
	if provided.IsPositive() {
		e.XERate = provided
	} else {
		rate, err := s.rates.Rate(e.Currency)
		if err != nil {
			s.logger.Error("failed to resolve exchange rate", "error", err, "currency", e.Currency)
			return err
		}
		e.XERate = rate
	}
	e.RecomputeINR()
	return nil
}

func (s *Service) appendLog(e *Entry, action, reason string, actor Actor) {
	log := &renewal.RenewalLog{
		ID:             uuid.NewString(),
		EntryID:        e.ID,
		ServiceHandler: e.ServiceHandler,
		Action:         action,
		Reason:         reason,
		RenewalDate:    e.NextRenewalDate,
		CreatedAt:      time.Now(),
	}
	if log.ServiceHandler == "" {
		log.ServiceHandler = actor.Name
	}
	if err := s.logs.Append(log); err != nil {
		// Audit write failures never abort the mutation itself.
		s.logger.Error("failed to append renewal log", "error", err, "entry_id", e.ID, "action", action)
	}
}

// canonicalDuplicateStatus maps a reviewer override onto its stored
// form. "Auto" and empty clear the override so the detector decides
// again; anything unrecognized is ignored rather than stored.
func canonicalDuplicateStatus(raw string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "auto":
		return "", true
	case "unique":
		return DuplicateStatusUnique, true
	case "merged":
		return DuplicateStatusMerged, true
	default:
		return "", false
	}
}

func canonicalOrDefault(raw string, allowed []string, fallback string) string {
	canonical := normalize.NormalizeEnum(raw, nil, allowed)
	if canonical == "" {
		return fallback
	}
	return canonical
}

func paginate(views []*EntryView, offset, limit int) []*EntryView {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(views) {
		return []*EntryView{}
	}
	end := len(views)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return views[offset:end]
}
