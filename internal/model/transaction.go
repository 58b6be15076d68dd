package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a single ledger movement of funds from Sender to Receiver.
type Transaction struct {
	ID        string
	Sender    string
	Receiver  string
	Amount    decimal.Decimal
	Timestamp time.Time
}

// Account is a ledger participant, keyed by the address/account-number
// string used as Sender/Receiver in Transaction.
type Account struct {
	ID string
}

// AmountFloat returns the transaction amount as a float64, used only at
// statistical-computation boundaries (CV, variance, anomaly features)
// where decimal precision is not required.
func (t Transaction) AmountFloat() float64 {
	f, _ := t.Amount.Float64()
	return f
}
