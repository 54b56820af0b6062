package normalize

import (
	"regexp"
	"strings"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	dashRun       = regexp.MustCompile(`^[-\x{2014}]+$`)
)

// placeholderTokens are the values data-entry folks type to mean "blank".
var placeholderTokens = map[string]struct{}{
	"-": {}, "na": {}, "n/a": {}, "null": {}, "none": {},
}

// CleanText trims, collapses internal whitespace and blanks out
// placeholder tokens so downstream required-field checks see them as
// genuinely missing.
func CleanText(c Cell) string {
	text := c.Text()
	if text == "" {
		return ""
	}
	collapsed := whitespaceRun.ReplaceAllString(text, " ")
	lowered := strings.ToLower(collapsed)
	if _, ok := placeholderTokens[lowered]; ok {
		return ""
	}
	if dashRun.MatchString(collapsed) {
		return ""
	}
	return collapsed
}

// ParseBool interprets the loose spreadsheet vocabulary for yes.
func ParseBool(c Cell) bool {
	norm := strings.ToLower(strings.TrimSpace(c.Text()))
	switch norm {
	case "true", "yes", "y", "1", "shared", "checked":
		return true
	default:
		return false
	}
}

// NormalizeEnum maps a raw value onto an allowed enum value: first via
// the per-field alias table, then by case-insensitive exact match.
// Returns "" when nothing matches; the field is left unset rather than
// rejected unless the caller treats it as mandatory.
func NormalizeEnum(raw string, aliases map[string]string, allowed []string) string {
	norm := strings.ToLower(strings.TrimSpace(raw))
	if norm == "" {
		return ""
	}
	if mapped, ok := aliases[norm]; ok {
		return mapped
	}
	for _, candidate := range allowed {
		if strings.ToLower(candidate) == norm {
			return candidate
		}
	}
	return ""
}
