package normalize

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var amountNoisePattern = regexp.MustCompile(`[^0-9.\-]`)

// ParseAmount extracts a decimal amount from a cell. Currency symbols,
// thousands separators and other noise are stripped; a value fully
// wrapped in parentheses is the accounting convention for a credit and
// parses negative. Returns ok=false for empty or unparseable input —
// a failed parse must surface as a row error, never silently become 0.
func ParseAmount(c Cell) (decimal.Decimal, bool) {
	switch c.Kind {
	case CellNumber:
		return decimal.NewFromFloat(c.Num), true
	case CellString:
		return parseAmountString(c.Str)
	default:
		return decimal.Decimal{}, false
	}
}

// ParsePositiveAmount is ParseAmount with the sign resolved to a
// magnitude, which is how every persisted amount is stored.
func ParsePositiveAmount(c Cell) (decimal.Decimal, bool) {
	amount, ok := ParseAmount(c)
	if !ok {
		return decimal.Decimal{}, false
	}
	return amount.Abs(), true
}

func parseAmountString(raw string) (decimal.Decimal, bool) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return decimal.Decimal{}, false
	}

	parenthesized := strings.HasPrefix(text, "(") && strings.HasSuffix(text, ")")
	cleaned := amountNoisePattern.ReplaceAllString(text, "")
	if cleaned == "" || cleaned == "-" || cleaned == "." {
		return decimal.Decimal{}, false
	}

	parsed, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, false
	}

	if parenthesized {
		return parsed.Abs().Neg(), true
	}
	return parsed, true
}
