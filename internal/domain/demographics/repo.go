package demographics

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the demographics shard. It knows nothing about the other
// shards; cross-shard rules live in the orchestrators.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	// GetByID returns the patient whether or not it is soft-deleted.
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	// Update rewrites the mutable fields of an active patient.
	Update(ctx context.Context, p *Patient) error
	// SoftDelete marks the patient deleted. Deleting an already deleted
	// patient changes nothing and is not an error.
	SoftDelete(ctx context.Context, id uuid.UUID, actorID string) error
	// LockActive takes a shared row lock on an active patient for the rest of
	// the current transaction.
	LockActive(ctx context.Context, id uuid.UUID) error
}
