package bulkimport

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/frahmantamala/cardspend/internal/entry"
)

// templateHeaders is the canonical upload layout. The reader accepts
// older spellings via the alias tables, but fresh downloads always get
// this one.
var templateHeaders = []string{
	"Card Number",
	"Card Assigned To",
	"Date",
	"Month",
	"Status",
	"Particulars",
	"Narration",
	"Currency",
	"Bill Status",
	"Amount",
	"Types of Tools or Service",
	"Business Unit",
	"Cost Center",
	"Approved By",
	"Tool or Service Handler",
	"Recurring/One-time",
	"Is Shared (Yes/No)",
	"Shared Bill (BU:Amount, ...)",
}

var templateSampleRow = []interface{}{
	"M003",
	"John Doe",
	"2025-01-05",
	"Jan-2025",
	"Active",
	"ChatGPT",
	"ChatGPT Subscription",
	"USD",
	"Paid",
	200,
	"Tool",
	"Wytlabs",
	"Ops",
	"Raghav",
	"Raghav",
	"Yearly",
	"Yes",
	"Wytlabs: 200, Collabx: 100",
}

// BuildTemplate produces the downloadable upload template with one
// sample row.
func BuildTemplate() (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	if err := f.SetSheetRow(sheet, "A1", &templateHeaders); err != nil {
		return nil, fmt.Errorf("write template headers: %w", err)
	}
	if err := f.SetSheetRow(sheet, "A2", &templateSampleRow); err != nil {
		return nil, fmt.Errorf("write sample row: %w", err)
	}
	return f, nil
}

var exportHeaders = []string{
	"Card Number",
	"Card Assigned To",
	"Date",
	"Month",
	"Status",
	"Entry Status",
	"Particulars",
	"Narration",
	"Currency",
	"Bill Status",
	"Amount",
	"XE Rate",
	"Amount (INR)",
	"Types of Tools or Service",
	"Business Unit",
	"Cost Center",
	"Approved By",
	"Tool or Service Handler",
	"Recurring/One-time",
	"Is Shared",
	"Shared Bill",
	"Next Renewal Date",
	"Duplicate",
}

// BuildExport writes an annotated entry listing to a workbook, one row
// per entry in listing order.
func BuildExport(views []*entry.EntryView) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	if err := f.SetSheetRow(sheet, "A1", &exportHeaders); err != nil {
		return nil, fmt.Errorf("write export headers: %w", err)
	}

	for i, v := range views {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []interface{}{
			v.CardNumber,
			v.CardAssignedTo,
			v.Date.Format("2006-01-02"),
			v.Month,
			v.Status,
			v.EntryStatus,
			v.Particulars,
			v.Narration,
			v.Currency,
			v.BillStatus,
			v.Amount.StringFixed(2),
			v.XERate.String(),
			v.AmountInINR.StringFixed(2),
			v.TypeOfService,
			v.BusinessUnit,
			v.CostCenter,
			v.ApprovedBy,
			v.ServiceHandler,
			v.Recurring,
			formatYesNo(v.IsShared),
			formatAllocations(v.SharedAllocations),
			formatDate(v.NextRenewalDate),
			v.DuplicateLabel,
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write export row %d: %w", i+2, err)
		}
	}
	return f, nil
}

func formatYesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func formatAllocations(allocations entry.AllocationList) string {
	out := ""
	for i, a := range allocations {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s: %s", a.BusinessUnit, a.Amount.StringFixed(2))
	}
	return out
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
