// Package bulkimport turns uploaded spreadsheets into accepted expense
// entries: header-alias resolution, value normalization, per-row
// validation with partial failure, and batched notification fan-out.
package bulkimport

import (
	"regexp"
	"strings"

	"github.com/frahmantamala/cardspend/internal/entry"
	"github.com/frahmantamala/cardspend/internal/normalize"
)

// Header aliases per logical field. Years of hand-edited sheets left
// several spellings in circulation, typos included.
var (
	cardNumberAliases = []string{
		"Card Number/Payment from",
		"Card Number/Payment From",
		"Card Number/Pavment from",
		"Card Number",
		"cardNumber",
		"Card No",
	}
	cardAssignedToAliases = []string{"Card Assigned To", "cardAssignedTo", "Card assigned to"}
	dateAliases           = []string{"Date", "date"}
	monthAliases          = []string{"Month", "month"}
	statusAliases         = []string{"Status", "status"}
	particularsAliases    = []string{
		"Particulars",
		"particulars",
		"Particulars - from cc statement",
		"Particulars - from the statement",
	}
	narrationAliases = []string{
		"Narration",
		"narration",
		"Narration - from statement",
		"Narration - from the statement",
	}
	currencyAliases   = []string{"Currency", "currency"}
	billStatusAliases = []string{"Bill Status", "billStatus"}
	amountAliases     = []string{
		"Amount",
		"amount",
		"Amount (USD/Euro/Any)",
		"Amt",
		"Amt (USD/Euro/Any)",
	}
	typeOfServiceAliases = []string{
		"Types of Tools or Service",
		"Type of Tool or Service",
		"typeOfService",
		"Type",
		"Type of Tool or Service*",
	}
	businessUnitAliases = []string{"Business Unit", "businessUnit"}
	costCenterAliases   = []string{"Cost Center", "costCenter"}
	approvedByAliases   = []string{"Approved By", "approvedBy"}
	serviceHandlerAliases = []string{
		"Tool or Service Handler",
		"Tool or Service Handler (User Name)",
		"serviceHandler",
		"Service Handler",
	}
	recurringAliases = []string{"Recurring/One-time", "Recurring/One time", "recurring", "Recurring"}
	isSharedAliases  = []string{"Is Shared", "isShared", "Shared", "shared", "Shared Bill?"}
	sharedBillAliases = []string{
		"Shared Bill",
		"Shared Bills",
		"sharedBill",
		"sharedAllocation",
		"sharedAllocations",
	}
)

// Enum alias tables, keyed by lower-cased input.
var (
	typeOfServiceMap = map[string]string{
		"tool & service":          "Tools & Service",
		"tools & service":         "Tools & Service",
		"tool & services":         "Tools & Service",
		"tools & services":        "Tools & Service",
		"tool and service":        "Tools & Service",
		"tools and service":       "Tools & Service",
		"tool and services":       "Tools & Service",
		"tools and services":      "Tools & Service",
		"tools":                   "Tool",
		"services":                "Service",
		"tool":                    "Tool",
		"service":                 "Service",
		"google adwords expenses": "Google Adwords Expense",
		"google adwords expense":  "Google Adwords Expense",
		"staff & welfare":         "Staff & welfare",
		"staff and welfare":       "Staff & welfare",
		"staff welfare":           "Staff & welfare",
	}

	costCenterMap = map[string]string{
		"ops":                 "Ops",
		"op":                  "Ops",
		"oh exps":             "OH Exps",
		"oh exps.":            "OH Exps",
		"oh eps":              "OH Exps",
		"oh eps.":             "OH Exps",
		"oh exp":              "OH Exps",
		"oh exp.":             "OH Exps",
		"oh expenses":         "OH Exps",
		"opex":                "OH Exps",
		"fe":                  "FE",
		"support":             "Support",
		"management exps":     "Management EXPS",
		"management exps.":    "Management EXPS",
		"management exp":      "Management EXPS",
		"management expenses": "Management EXPS",
	}

	businessUnitMap = map[string]string{
		"dws g":           "DWSG",
		"dwsg":            "DWSG",
		"dws":             "DWSG",
		"signature":       "Signature",
		"collabx":         "Collabx",
		"wytlabs":         "Wytlabs",
		"wyt labs":        "Wytlabs",
		"wyt-labs":        "Wytlabs",
		"wytlab":          "Wytlabs",
		"smegoweb":        "Smegoweb",
		"shared":          "Wytlabs",
		"excel forum":     "Wytlabs",
		"excel fourm":     "Wytlabs",
		"wytlabs and dws": "Wytlabs",
	}

	statusMap = map[string]string{
		"deactive-nextmonth":   "Deactive",
		"deactivate-nextmonth": "Deactive",
		"inactive":             "Deactive",
		"deactivated":          "Deactive",
	}

	approvedByMap = map[string]string{
		"vaibhav":  "Vaibhav",
		"marc":     "Marc",
		"dawood":   "Dawood",
		"raghav":   "Raghav",
		"tarun":    "Tarun",
		"yulia":    "Yulia",
		"sarthak":  "Sarthak",
		"harshit":  "Harshit",
		"suspense": "Tarun",
	}

	recurringMap = map[string]string{
		"recurring_m": "Monthly",
		"recurring_y": "Yearly",
		"one time":    "One-time",
		"one-time":    "One-time",
		"one_time":    "One-time",
		"onetime":     "One-time",
		"monthly":     "Monthly",
		"monthy":      "Monthly",
		"month":       "Monthly",
		"yearly":      "Yearly",
		"year":        "Yearly",
		"annual":      "Yearly",
		"annually":    "Yearly",
		"quarterly":   "Quaterly",
		"quaterly":    "Quaterly",
		"quarter":     "Quaterly",
		"qtr":         "Quaterly",
		"qtrly":       "Quaterly",
	}
)

func normalizeBusinessUnit(raw string) string {
	return normalize.NormalizeEnum(raw, businessUnitMap, entry.AllowedBusinessUnits)
}

// allocationSegment matches one "name <sep> amount" pair inside the
// free-text shared-bill column.
var (
	allocationSegment = regexp.MustCompile(`(.+?)[\s:=\-]+([()\-.\d,]+)`)
	allocationSplit   = regexp.MustCompile(`[,;|]`)
)

// ParseAllocationText parses the "BU: amount, BU: amount" shared-bill
// column. Segments split on comma, semicolon or pipe; a segment whose
// business unit or amount does not resolve is dropped silently.
func ParseAllocationText(raw string) entry.AllocationList {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil
	}

	var allocations entry.AllocationList
	for _, part := range allocationSplit.Split(text, -1) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		m := allocationSegment.FindStringSubmatch(part)
		if m == nil {
			continue
		}
		unit := normalizeBusinessUnit(m[1])
		amount, ok := normalize.ParsePositiveAmount(normalize.StringCell(m[2]))
		if unit == "" || !ok || !amount.IsPositive() {
			continue
		}
		allocations = append(allocations, entry.Allocation{BusinessUnit: unit, Amount: amount})
	}
	return allocations
}
