package shared

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var moneyPrinter = message.NewPrinter(language.Vietnamese)

// FormatMoney renders an amount with grouping separators for display,
// e.g. 1250000 -> "1.250.000". Single authoritative implementation so
// every surface formats currency the same way.
func FormatMoney(amount decimal.Decimal) string {
	return moneyPrinter.Sprintf("%d", amount.Round(0).IntPart())
}

// Half returns 50% of the amount, used by the near-expiry discount.
func Half(amount decimal.Decimal) decimal.Decimal {
	return amount.Div(decimal.NewFromInt(2))
}
