package types

import "github.com/shopspring/decimal"

// Money is a display-ready amount. All internal arithmetic happens in integer
// minor units; conversion to a decimal display value is the last step before
// a response is written.
type Money struct {
	AmountCents int64           `json:"amount_cents"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
}

// NewMoney converts minor units into a Money value with two display decimals.
func NewMoney(cents int64, currency string) Money {
	if currency == "" {
		currency = "usd"
	}
	return Money{
		AmountCents: cents,
		Amount:      decimal.New(cents, -2),
		Currency:    currency,
	}
}
