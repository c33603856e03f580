package demographics

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ResourceType names demographics records in the audit trail.
const ResourceType = "patient"

// ErrNotFound is returned when no patient row matches, or when an operation
// that requires an active patient finds a soft-deleted one.
var ErrNotFound = errors.New("demographics: patient not found")

// Patient maps to demographics.patient. Its ID is the identifier every other
// shard keys its records by.
type Patient struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	FirstName  string     `db:"first_name" json:"first_name"`
	LastName   string     `db:"last_name" json:"last_name"`
	NationalID *string    `db:"national_id" json:"national_id,omitempty"`
	Email      *string    `db:"email" json:"email,omitempty"`
	Phone      *string    `db:"phone" json:"phone,omitempty"`
	BirthDate  *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Gender     *string    `db:"gender" json:"gender,omitempty"`
	Address    *string    `db:"address" json:"address,omitempty"`
	Deleted    bool       `db:"deleted" json:"deleted"`
	DeletedAt  *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedBy  string     `db:"created_by" json:"created_by"`
	UpdatedBy  string     `db:"updated_by" json:"updated_by"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

var validGenders = map[string]bool{
	"male":    true,
	"female":  true,
	"other":   true,
	"unknown": true,
}

// Validate checks the fields a caller controls.
func (p *Patient) Validate() error {
	if strings.TrimSpace(p.FirstName) == "" || strings.TrimSpace(p.LastName) == "" {
		return fmt.Errorf("first_name and last_name are required")
	}
	if p.Gender != nil && !validGenders[*p.Gender] {
		return fmt.Errorf("invalid gender: %s", *p.Gender)
	}
	if p.BirthDate != nil && p.BirthDate.After(time.Now()) {
		return fmt.Errorf("birth_date must not be in the future")
	}
	return nil
}

// Active reports whether the patient has not been soft-deleted.
func (p *Patient) Active() bool {
	return !p.Deleted
}
