package finance

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the finance shard ledger.
type Repository interface {
	Create(ctx context.Context, t *Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	// ListByPatient returns transactions newest first, never nil.
	ListByPatient(ctx context.Context, patientID uuid.UUID, includeDeleted bool) ([]*Transaction, error)
	SoftDelete(ctx context.Context, id uuid.UUID, actorID string) error
	SoftDeleteByPatient(ctx context.Context, patientID uuid.UUID, actorID string) (int, error)
}
