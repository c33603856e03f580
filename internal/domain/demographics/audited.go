package demographics

import (
	"context"

	"github.com/google/uuid"

	"github.com/ehr/records/internal/platform/audit"
)

type auditedRepository struct {
	inner Repository
	rec   audit.Recorder
}

// NewAuditedRepository wraps inner so that every call is recorded against the
// actor carried by the context.
func NewAuditedRepository(inner Repository, rec audit.Recorder) Repository {
	return &auditedRepository{inner: inner, rec: rec}
}

func (r *auditedRepository) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return audit.ObserveErr(ctx, r.rec, audit.Access{
		Action:       audit.ActionCreate,
		ResourceType: ResourceType,
		ResourceID:   p.ID.String(),
		Details:      patientDetails(p),
	}, func(ctx context.Context) error {
		return r.inner.Create(ctx, p)
	})
}

func (r *auditedRepository) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return audit.Observe(ctx, r.rec, audit.Access{
		Action:       audit.ActionRead,
		ResourceType: ResourceType,
		ResourceID:   id.String(),
	}, func(ctx context.Context) (*Patient, error) {
		return r.inner.GetByID(ctx, id)
	}, func(p *Patient) map[string]any {
		return map[string]any{"deleted": p.Deleted}
	})
}

func (r *auditedRepository) Update(ctx context.Context, p *Patient) error {
	return audit.ObserveErr(ctx, r.rec, audit.Access{
		Action:       audit.ActionUpdate,
		ResourceType: ResourceType,
		ResourceID:   p.ID.String(),
		Details:      patientDetails(p),
	}, func(ctx context.Context) error {
		return r.inner.Update(ctx, p)
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

func (r *auditedRepository) LockActive(ctx context.Context, id uuid.UUID) error {
	return audit.ObserveErr(ctx, r.rec, audit.Access{
		Action:       audit.ActionLock,
		ResourceType: ResourceType,
		ResourceID:   id.String(),
	}, func(ctx context.Context) error {
		return r.inner.LockActive(ctx, id)
	})
}

// patientDetails lists the written fields. Identifying values are masked by
// the audit redactor before they are stored.
func patientDetails(p *Patient) map[string]any {
	d := map[string]any{
		"first_name": p.FirstName,
		"last_name":  p.LastName,
	}
	if p.NationalID != nil {
		d["national_id"] = *p.NationalID
	}
	if p.Email != nil {
		d["email"] = *p.Email
	}
	if p.Phone != nil {
		d["phone"] = *p.Phone
	}
	if p.Gender != nil {
		d["gender"] = *p.Gender
	}
	return d
}
