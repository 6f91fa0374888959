// Package extractor pulls currency amounts out of SMS bodies and OCR receipt text.
//
// Both extractors walk an ordered list of labeled tiers. The first tier with any
// match wins and, within it, the last occurrence in the text is used because bank
// messages tend to restate the amount. Receipt text gets extra fallbacks when no
// tier matches; SMS text does not, so phone numbers and OTPs are never read as amounts.
package extractor

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	currencyToken = `(?:\b(?:rs|inr|lkr)\.?|₹|\$)`
	numberToken   = `(\d(?:[\d,]*\d)?(?:\.\d{1,2})?)`
)

// tier is one labeled pattern. Every capture group holds a candidate number;
// a match contributes whichever group is non-empty.
type tier struct {
	name string
	re   *regexp.Regexp
}

// labeledTier matches "<keyword> [by|of|...] [:-] <currency> <number>" and the
// trailing form "<currency> <number> [has been|was|is] <keyword>".
func labeledTier(keyword string) tier {
	prefix := `\b` + keyword + `\b(?:\s+(?:by|of|for|with|to|at))?\s*[:\-]?\s*` + currencyToken + `\s*` + numberToken
	suffix := currencyToken + `\s*` + numberToken + `\s+(?:(?:has|have)\s+been\s+|was\s+|is\s+)?` + keyword + `\b`
	return tier{
		name: keyword,
		re:   regexp.MustCompile(`(?i)(?:` + prefix + `|` + suffix + `)`),
	}
}

var (
	currencyAmountRe = regexp.MustCompile(`(?i)` + currencyToken + `\s*` + numberToken)
	currencyTagRe    = regexp.MustCompile(`(?i)` + currencyToken)
)

// parseAmount strips thousands separators and parses to a decimal
func parseAmount(raw string) (decimal.Decimal, bool) {
	cleaned := strings.ReplaceAll(raw, ",", "")
	if cleaned == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	return d.Round(2), true
}

// matches returns every candidate amount for re in order of appearance
func matches(re *regexp.Regexp, text string) []decimal.Decimal {
	var out []decimal.Decimal
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		for _, group := range m[1:] {
			if group == "" {
				continue
			}
			if d, ok := parseAmount(group); ok {
				out = append(out, d)
			}
			break
		}
	}
	return out
}

// firstTier applies tiers in order and returns the last match of the first tier that hits
func firstTier(tiers []tier, text string) (decimal.Decimal, string, bool) {
	for _, t := range tiers {
		found := matches(t.re, text)
		if len(found) > 0 {
			return found[len(found)-1], t.name, true
		}
	}
	return decimal.Zero, "", false
}

func maxOf(values []decimal.Decimal) (decimal.Decimal, bool) {
	if len(values) == 0 {
		return decimal.Zero, false
	}
	best := values[0]
	for _, v := range values[1:] {
		if v.GreaterThan(best) {
			best = v
		}
	}
	return best, true
}

// DetectCurrency returns the ISO code of the last currency tag in text, or "" if none.
// "Rs" is read as Sri Lankan rupees, the app's home currency.
func DetectCurrency(text string) string {
	tags := currencyTagRe.FindAllString(text, -1)
	if len(tags) == 0 {
		return ""
	}
	tag := strings.ToUpper(strings.TrimSuffix(tags[len(tags)-1], "."))
	switch tag {
	case "$":
		return "USD"
	case "₹", "INR":
		return "INR"
	default:
		return "LKR"
	}
}
