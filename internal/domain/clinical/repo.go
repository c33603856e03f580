package clinical

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the clinical shard, keyed by patient id with no reference to
// the demographics shard.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	// ListByPatient returns entries newest first. Soft-deleted entries are
	// included only when includeDeleted is set. A patient without entries
	// yields an empty, non-nil slice.
	ListByPatient(ctx context.Context, patientID uuid.UUID, includeDeleted bool) ([]*Entry, error)
	SoftDelete(ctx context.Context, id uuid.UUID, actorID string) error
	// SoftDeleteByPatient marks every active entry of the patient deleted and
	// returns how many changed. Already deleted entries are left untouched.
	SoftDeleteByPatient(ctx context.Context, patientID uuid.UUID, actorID string) (int, error)
}
