package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ehr/records/internal/domain/clinical"
	"github.com/ehr/records/internal/domain/demographics"
	"github.com/ehr/records/internal/domain/finance"
)

const dateLayout = "2006-01-02"

func (r updatePatientRequest) patient(id uuid.UUID) (*demographics.Patient, error) {
	p := &demographics.Patient{
		ID:         id,
		FirstName:  r.FirstName,
		LastName:   r.LastName,
		NationalID: r.NationalID,
		Email:      r.Email,
		Phone:      r.Phone,
		Gender:     r.Gender,
		Address:    r.Address,
	}
	if r.BirthDate != nil && *r.BirthDate != "" {
		bd, err := time.Parse(dateLayout, *r.BirthDate)
		if err != nil {
			return nil, errors.New("birth_date must be YYYY-MM-DD")
		}
		p.BirthDate = &bd
	}
	return p, nil
}

func (r clinicalEntryRequest) entry(patientID uuid.UUID) (*clinical.Entry, error) {
	at, err := parseTimestamp("performed_at", r.PerformedAt)
	if err != nil {
		return nil, err
	}
	return &clinical.Entry{
		PatientID:   patientID,
		Kind:        r.Kind,
		Title:       r.Title,
		Notes:       r.Notes,
		PerformedAt: at,
		PerformedBy: r.PerformedBy,
	}, nil
}

func (r transactionRequest) transaction(patientID uuid.UUID) (*finance.Transaction, error) {
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return nil, errors.New("amount must be a decimal string")
	}
	at, err := parseTimestamp("occurred_at", r.OccurredAt)
	if err != nil {
		return nil, err
	}
	return &finance.Transaction{
		PatientID:   patientID,
		Kind:        r.Kind,
		Amount:      amount,
		Currency:    r.Currency,
		Description: r.Description,
		CardLast4:   r.CardLast4,
		IBAN:        r.IBAN,
		OccurredAt:  at,
	}, nil
}

// parseTimestamp accepts RFC 3339 timestamps or plain dates. An empty value
// is left zero for the domain validation to reject.
func parseTimestamp(field, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if t, err := time.Parse(dateLayout, v); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%s must be an RFC 3339 timestamp or YYYY-MM-DD", field)
}
