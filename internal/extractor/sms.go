package extractor

import (
	"github.com/shopspring/decimal"
)

var smsTiers = []tier{
	labeledTier("debited"),
	labeledTier("spent"),
	labeledTier("charged"),
	labeledTier("withdrawn"),
	labeledTier("paid"),
	labeledTier("amount"),
	{name: "currency", re: currencyAmountRe},
}

// ExtractSMS returns the transaction amount in a bank SMS, or false when the
// message carries no currency-tagged amount.
func ExtractSMS(text string) (decimal.Decimal, bool) {
	amount, _, ok := firstTier(smsTiers, text)
	return amount, ok
}
