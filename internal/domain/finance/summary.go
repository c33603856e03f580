package finance

import (
	"slices"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/shopspring/decimal"
)

// CurrencyTotals nets the active transactions of one currency.
type CurrencyTotals struct {
	Currency         string          `json:"currency"`
	TransactionCount int             `json:"transaction_count"`
	TotalCharges     decimal.Decimal `json:"total_charges"`
	TotalPayments    decimal.Decimal `json:"total_payments"`
	TotalRefunds     decimal.Decimal `json:"total_refunds"`
	Balance          decimal.Decimal `json:"balance"`
}

// Summary is the report view of a patient's ledger, with one CurrencyTotals
// per currency in code order. A patient without transactions has an empty
// Currencies list.
type Summary struct {
	TransactionCount  int              `json:"transaction_count"`
	Currencies        []CurrencyTotals `json:"currencies"`
	LastTransactionAt *time.Time       `json:"last_transaction_at,omitempty"`
}

// ForCurrency returns the totals for code, if the patient has any.
func (s *Summary) ForCurrency(code string) (CurrencyTotals, bool) {
	for _, c := range s.Currencies {
		if c.Currency == code {
			return c, true
		}
	}
	return CurrencyTotals{}, false
}

// Summarize nets the active transactions per currency: balance is charges
// minus payments plus refunds. Amounts in different currencies are never
// added together.
func Summarize(txns []*Transaction) *Summary {
	s := &Summary{}
	totals := make(map[string]*CurrencyTotals)
	currencies := mapset.NewThreadUnsafeSet[string]()

	for _, t := range txns {
		if t.Deleted {
			continue
		}
		ct, ok := totals[t.Currency]
		if !ok {
			ct = &CurrencyTotals{
				Currency:      t.Currency,
				TotalCharges:  decimal.Zero,
				TotalPayments: decimal.Zero,
				TotalRefunds:  decimal.Zero,
			}
			totals[t.Currency] = ct
			currencies.Add(t.Currency)
		}
		ct.TransactionCount++
		s.TransactionCount++
		switch t.Kind {
		case KindCharge:
			ct.TotalCharges = ct.TotalCharges.Add(t.Amount)
		case KindPayment:
			ct.TotalPayments = ct.TotalPayments.Add(t.Amount)
		case KindRefund:
			ct.TotalRefunds = ct.TotalRefunds.Add(t.Amount)
		}
		if s.LastTransactionAt == nil || t.OccurredAt.After(*s.LastTransactionAt) {
			at := t.OccurredAt
			s.LastTransactionAt = &at
		}
	}

	codes := currencies.ToSlice()
	slices.Sort(codes)
	s.Currencies = make([]CurrencyTotals, 0, len(codes))
	for _, code := range codes {
		ct := totals[code]
		ct.Balance = ct.TotalCharges.Sub(ct.TotalPayments).Add(ct.TotalRefunds)
		s.Currencies = append(s.Currencies, *ct)
	}
	return s
}
