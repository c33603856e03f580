package finance

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const ResourceType = "finance_transaction"

var ErrNotFound = errors.New("finance: transaction not found")

// Kind is the ledger direction of a transaction.
type Kind string

const (
	KindCharge  Kind = "charge"
	KindPayment Kind = "payment"
	KindRefund  Kind = "refund"
)

func (k Kind) Valid() bool {
	switch k {
	case KindCharge, KindPayment, KindRefund:
		return true
	}
	return false
}

var currencyCode = regexp.MustCompile(`^[A-Z]{3}$`)

// Transaction maps to finance."transaction". Amount is always positive; Kind
// carries the sign.
type Transaction struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	PatientID   uuid.UUID       `db:"patient_id" json:"patient_id"`
	Kind        Kind            `db:"kind" json:"kind"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Currency    string          `db:"currency" json:"currency"`
	Description *string         `db:"description" json:"description,omitempty"`
	CardLast4   *string         `db:"card_last4" json:"card_last4,omitempty"`
	IBAN        *string         `db:"iban" json:"iban,omitempty"`
	OccurredAt  time.Time       `db:"occurred_at" json:"occurred_at"`
	Deleted     bool            `db:"deleted" json:"deleted"`
	DeletedAt   *time.Time      `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedBy   string          `db:"created_by" json:"created_by"`
	UpdatedBy   string          `db:"updated_by" json:"updated_by"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

func (t *Transaction) Validate() error {
	if t.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if !t.Kind.Valid() {
		return fmt.Errorf("invalid kind: %q", t.Kind)
	}
	if !t.Amount.IsPositive() {
		return fmt.Errorf("amount must be greater than zero")
	}
	if !t.Amount.Equal(t.Amount.Round(2)) {
		return fmt.Errorf("amount must have at most two decimal places")
	}
	if !currencyCode.MatchString(t.Currency) {
		return fmt.Errorf("currency must be a three letter ISO code")
	}
	if t.CardLast4 != nil && len(*t.CardLast4) != 4 {
		return fmt.Errorf("card_last4 must have four digits")
	}
	if t.OccurredAt.IsZero() {
		return fmt.Errorf("occurred_at is required")
	}
	return nil
}
