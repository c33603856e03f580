package finance

import (
	"context"

	"github.com/google/uuid"

	"github.com/ehr/records/internal/platform/audit"
)

type auditedRepository struct {
	inner Repository
	rec   audit.Recorder
}

func NewAuditedRepository(inner Repository, rec audit.Recorder) Repository {
	return &auditedRepository{inner: inner, rec: rec}
}

func (r *auditedRepository) Create(ctx context.Context, t *Transaction) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	details := map[string]any{
		"patient_id": t.PatientID.String(),
		"kind":       string(t.Kind),
		"amount":     t.Amount.String(),
		"currency":   t.Currency,
	}
	if t.CardLast4 != nil {
		details["card_last4"] = *t.CardLast4
	}
	if t.IBAN != nil {
		details["iban"] = *t.IBAN
	}
	return audit.ObserveErr(ctx, r.rec, audit.Access{
		Action:       audit.ActionCreate,
		ResourceType: ResourceType,
		ResourceID:   t.ID.String(),
		Details:      details,
	}, func(ctx context.Context) error {
		return r.inner.Create(ctx, t)
	})
}

func (r *auditedRepository) GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	return audit.Observe(ctx, r.rec, audit.Access{
		Action:       audit.ActionRead,
		ResourceType: ResourceType,
		ResourceID:   id.String(),
	}, func(ctx context.Context) (*Transaction, error) {
		return r.inner.GetByID(ctx, id)
	})
}

func (r *auditedRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, includeDeleted bool) ([]*Transaction, error) {
	return audit.Observe(ctx, r.rec, audit.Access{
		Action:       audit.ActionList,
		ResourceType: ResourceType,
		ResourceID:   patientID.String(),
		Details:      map[string]any{"include_deleted": includeDeleted},
	}, func(ctx context.Context) ([]*Transaction, error) {
		return r.inner.ListByPatient(ctx, patientID, includeDeleted)
	}, func(txns []*Transaction) map[string]any {
		return map[string]any{"count": len(txns)}
	})
}

func (r *auditedRepository) SoftDelete(ctx context.Context, id uuid.UUID, actorID string) error {
	return audit.ObserveErr(ctx, r.rec, audit.Access{
		Action:       audit.ActionSoftDelete,
		ResourceType: ResourceType,
		ResourceID:   id.String(),
	}, func(ctx context.Context) error {
		return r.inner.SoftDelete(ctx, id, actorID)
	})
}

func (r *auditedRepository) SoftDeleteByPatient(ctx context.Context, patientID uuid.UUID, actorID string) (int, error) {
	return audit.Observe(ctx, r.rec, audit.Access{
		Action:       audit.ActionBatchDelete,
		ResourceType: ResourceType,
		ResourceID:   patientID.String(),
	}, func(ctx context.Context) (int, error) {
		return r.inner.SoftDeleteByPatient(ctx, patientID, actorID)
	}, func(n int) map[string]any {
		return map[string]any{"count": n}
	})
}
