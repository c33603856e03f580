package clinical

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const ResourceType = "clinical_entry"

var ErrNotFound = errors.New("clinical: entry not found")

// Kind classifies a clinical entry.
type Kind string

const (
	KindExamination Kind = "examination"
	KindOperation   Kind = "operation"
	KindLab         Kind = "lab"
)

func (k Kind) Valid() bool {
	switch k {
	case KindExamination, KindOperation, KindLab:
		return true
	}
	return false
}

// Entry maps to clinical.entry.
type Entry struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	Kind        Kind       `db:"kind" json:"kind"`
	Title       string     `db:"title" json:"title"`
	Notes       *string    `db:"notes" json:"notes,omitempty"`
	PerformedAt time.Time  `db:"performed_at" json:"performed_at"`
	PerformedBy *string    `db:"performed_by" json:"performed_by,omitempty"`
	Deleted     bool       `db:"deleted" json:"deleted"`
	DeletedAt   *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedBy   string     `db:"created_by" json:"created_by"`
	UpdatedBy   string     `db:"updated_by" json:"updated_by"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

func (e *Entry) Validate() error {
	if e.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("invalid kind: %q", e.Kind)
	}
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if e.PerformedAt.IsZero() {
		return fmt.Errorf("performed_at is required")
	}
	return nil
}

// Summary is the report view of an entry. Notes are left out.
type Summary struct {
	ID          uuid.UUID `json:"id"`
	Kind        Kind      `json:"kind"`
	Title       string    `json:"title"`
	PerformedAt time.Time `json:"performed_at"`
	PerformedBy *string   `json:"performed_by,omitempty"`
}

func (e *Entry) Summary() Summary {
	return Summary{
		ID:          e.ID,
		Kind:        e.Kind,
		Title:       e.Title,
		PerformedAt: e.PerformedAt,
		PerformedBy: e.PerformedBy,
	}
}

// Summarize returns summaries of the active entries, never nil.
func Summarize(entries []*Entry) []Summary {
	out := make([]Summary, 0, len(entries))
	for _, e := range entries {
		if e.Deleted {
			continue
		}
		out = append(out, e.Summary())
	}
	return out
}
