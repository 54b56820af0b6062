package bulkimport

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	internal "github.com/frahmantamala/cardspend/internal"
	"github.com/frahmantamala/cardspend/internal/card"
	"github.com/frahmantamala/cardspend/internal/entry"
	"github.com/frahmantamala/cardspend/internal/fanout"
	"github.com/frahmantamala/cardspend/internal/normalize"
)

// RowError is one failed row in the batch summary. Row numbers are
// 1-indexed spreadsheet rows, so the first data row is row 2.
type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// Summary is the batch result. Partial failure is the normal case; a
// bad row never aborts the batch.
type Summary struct {
	Total   int        `json:"total"`
	Success int        `json:"success"`
	Failed  int        `json:"failed"`
	Errors  []RowError `json:"errors"`
}

// EntryCreator is the slice of the entry service the pipeline drives.
type EntryCreator interface {
	CreateImported(actor entry.Actor, dto entry.CreateEntryDTO) (*entry.Entry, error)
}

// Importer runs the bulk upload pipeline. Rows are processed strictly
// sequentially to keep row-number error reporting deterministic; email
// sends are the only concurrent unit, flushed in batches.
type Importer struct {
	entries   EntryCreator
	cards     *card.Service
	notify    *fanout.Fanout
	batchSize int
	logger    *slog.Logger
}

func NewImporter(
	entries EntryCreator,
	cards *card.Service,
	notify *fanout.Fanout,
	batchSize int,
	logger *slog.Logger,
) *Importer {
	if batchSize <= 0 {
		batchSize = 25
	}
	return &Importer{
		entries:   entries,
		cards:     cards,
		notify:    notify,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Run imports one uploaded file. The file is deleted exactly once on
// the way out, success or failure.
func (im *Importer) Run(actor entry.Actor, filePath string) (*Summary, error) {
	defer func() {
		if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
			im.logger.Warn("failed to delete uploaded file", "error", err, "path", filePath)
		}
	}()

	rows, err := ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, internal.NewValidationError("No data found in the uploaded file", internal.ErrCodeImportEmptyFile)
	}

	summary := &Summary{Total: len(rows)}

	batch := im.notify.NewBatch()
	var queue []fanout.Task

	flush := func() {
		pending := queue
		queue = nil
		im.notify.Dispatch(pending)
	}

	for i, row := range rows {
		rowNum := i + 2
		parsed, rowErr := im.parseRow(actor, row)
		if rowErr != "" {
			summary.Failed++
			summary.Errors = append(summary.Errors, RowError{Row: rowNum, Error: rowErr})
			im.logger.Warn("import row failed", "row", rowNum, "error", rowErr)
			continue
		}

		created, err := im.entries.CreateImported(actor, parsed.dto)
		if err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, RowError{Row: rowNum, Error: err.Error()})
			im.logger.Warn("import row failed", "row", rowNum, "error", err)
			continue
		}
		summary.Success++

		im.cards.EnsureRegistered(created.CardNumber, created.CardAssignedTo)

		queue = append(queue, batch.Tasks(created, parsed.explicitActive)...)
		if len(queue) >= im.batchSize {
			flush()
		}
	}

	flush()

	im.logger.Info("bulk import finished",
		"total", summary.Total,
		"success", summary.Success,
		"failed", summary.Failed,
		"user_id", actor.UserID)

	return summary, nil
}

// parsedRow carries the DTO plus the raw-status gate the notification
// fan-out keys on.
type parsedRow struct {
	dto            entry.CreateEntryDTO
	explicitActive bool
}

// parseRow resolves, normalizes and validates one row. The returned
// string is empty on success or the row-level error message. Validation
// order matches the historical behavior: the shared-allocation check
// runs before the missing-fields check.
func (im *Importer) parseRow(actor entry.Actor, row normalize.Row) (parsedRow, string) {
	field := func(aliases []string) normalize.Cell {
		c, _ := normalize.ResolveField(row, aliases...)
		return c
	}

	cardNumber := normalize.CleanText(field(cardNumberAliases))
	cardAssignedTo := normalize.CleanText(field(cardAssignedToAliases))
	dateCell := field(dateAliases)
	monthRaw := normalize.CleanText(field(monthAliases))
	statusRaw := normalize.CleanText(field(statusAliases))
	particulars := normalize.CleanText(field(particularsAliases))
	narration := normalize.CleanText(field(narrationAliases))
	billStatus := normalize.CleanText(field(billStatusAliases))
	serviceHandler := normalize.CleanText(field(serviceHandlerAliases))

	status := normalize.NormalizeEnum(statusRaw, statusMap, entry.AllowedStatuses)

	currencyRaw := strings.ToUpper(normalize.CleanText(field(currencyAliases)))
	currency := normalize.NormalizeEnum(currencyRaw, nil, entry.AllowedCurrencies)
	if currency == "" {
		// Unknown or missing currency falls back to USD rather than
		// failing the row.
		currency = "USD"
	}

	amount, amountOK := normalize.ParsePositiveAmount(field(amountAliases))

	typeOfService := normalize.NormalizeEnum(normalize.CleanText(field(typeOfServiceAliases)), typeOfServiceMap, entry.AllowedServiceTypes)
	costCenter := normalize.NormalizeEnum(normalize.CleanText(field(costCenterAliases)), costCenterMap, entry.AllowedCostCenters)
	approvedBy := normalize.NormalizeEnum(normalize.CleanText(field(approvedByAliases)), approvedByMap, entry.AllowedApprovers)
	recurring := normalize.NormalizeEnum(normalize.CleanText(field(recurringAliases)), recurringMap, entry.AllowedRecurring)

	businessUnit := normalizeBusinessUnit(normalize.CleanText(field(businessUnitAliases)))
	if businessUnit == "" {
		businessUnit = normalizeBusinessUnit(actor.BusinessUnit)
	}

	allocations := ParseAllocationText(normalize.CleanText(field(sharedBillAliases)))
	isShared := normalize.ParseBool(field(isSharedAliases)) || len(allocations) > 0

	if isShared && amountOK {
		if _, _, err := entry.ValidateSharedAllocations(true, allocations, amount, businessUnit); err != nil {
			return parsedRow{}, err.Error()
		}
	}

	var missing []string
	if cardNumber == "" {
		missing = append(missing, "Card Number")
	}
	if cardAssignedTo == "" {
		missing = append(missing, "Card Assigned To")
	}
	if dateCell.IsEmpty() {
		missing = append(missing, "Date")
	}
	if particulars == "" {
		missing = append(missing, "Particulars")
	}
	if !amountOK {
		missing = append(missing, "Amount")
	}
	if len(missing) > 0 {
		return parsedRow{}, fmt.Sprintf("Missing required fields: %s", strings.Join(missing, ", "))
	}

	date, ok := normalize.ParseDate(dateCell)
	if !ok {
		return parsedRow{}, "Invalid date"
	}

	dto := entry.CreateEntryDTO{
		CardNumber:     cardNumber,
		CardAssignedTo: cardAssignedTo,
		Particulars:    particulars,
		Narration:      narration,
		BillStatus:     billStatus,
		Amount:         amount,
		Currency:       currency,
		Status:         status,
		TypeOfService:  typeOfService,
		BusinessUnit:   businessUnit,
		CostCenter:     costCenter,
		ApprovedBy:     approvedBy,
		ServiceHandler: serviceHandler,
		Date:           date,
		Month:          monthRaw,
		Recurring:      recurring,
		IsShared:       isShared,
		Allocations:    allocations,
		// Bulk uploads bypass the approval workflow; the uploader
		// vouched for the sheet.
		EntryStatus: entry.EntryStatusAccepted,
	}

	return parsedRow{dto: dto, explicitActive: status == entry.StatusActive}, ""
}
