package extractor

import (
	"regexp"

	"github.com/shopspring/decimal"
)

const totalKeywords = `(?:grand\s+total|total|amount\s+due|balance|amount)`

var (
	receiptTiers = []tier{
		labeledTier(`grand\s+total`),
		labeledTier(`total`),
		labeledTier(`amount\s+due`),
		labeledTier(`balance`),
		labeledTier(`amount`),
	}

	// subtotal, tendered cash and change lines never describe the charged total
	ignoredLineRe = regexp.MustCompile(`(?i)\b(?:sub\s*-?\s*total|cash|change)\b[\s:\-]*` + currencyToken + `?\s*[\d.,]+`)
	totalLikeRe   = regexp.MustCompile(`(?i)\b` + totalKeywords + `\b\s*[:\-]?\s*` + numberToken)
	standaloneRe  = regexp.MustCompile(numberToken)
	one           = decimal.NewFromInt(1)
)

// ExtractReceipt returns the charged total of OCR receipt text, or false if no
// plausible amount is present. Fallbacks, in order, when no labeled tier hits:
// the largest currency-prefixed number, the largest total-like keyword match,
// the largest standalone number above 1.
func ExtractReceipt(text string) (decimal.Decimal, bool) {
	cleaned := ignoredLineRe.ReplaceAllString(text, "")

	if amount, _, ok := firstTier(receiptTiers, cleaned); ok {
		return amount, true
	}
	if amount, ok := maxOf(matches(currencyAmountRe, cleaned)); ok {
		return amount, true
	}
	if amount, ok := maxOf(matches(totalLikeRe, cleaned)); ok {
		return amount, true
	}

	var candidates []decimal.Decimal
	for _, n := range matches(standaloneRe, cleaned) {
		if n.GreaterThan(one) {
			candidates = append(candidates, n)
		}
	}
	return maxOf(candidates)
}
