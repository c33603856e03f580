package demographics

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/records/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const patientCols = `id, first_name, last_name, national_id, email, phone, birth_date, gender, address,
	deleted, deleted_at, created_by, updated_by, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.UpdatedBy == "" {
		p.UpdatedBy = p.CreatedBy
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO demographics.patient (
			id, first_name, last_name, national_id, email, phone, birth_date, gender, address,
			created_by, updated_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`,
		p.ID, p.FirstName, p.LastName, p.NationalID, p.Email, p.Phone, p.BirthDate, p.Gender, p.Address,
		p.CreatedBy, p.UpdatedBy,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("patient create: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM demographics.patient WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("patient get by id: %w", err)
	}
	return p, nil
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE demographics.patient SET
			first_name=$2, last_name=$3, national_id=$4, email=$5, phone=$6,
			birth_date=$7, gender=$8, address=$9, updated_by=$10, updated_at=NOW()
		WHERE id = $1 AND NOT deleted
		RETURNING updated_at`,
		p.ID, p.FirstName, p.LastName, p.NationalID, p.Email, p.Phone,
		p.BirthDate, p.Gender, p.Address, p.UpdatedBy,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("patient update: %w", err)
	}
	return nil
}

// An already deleted row keeps its deleted_at and updated_by, so a repeated
// delete leaves it unchanged.
func (r *repoPG) SoftDelete(ctx context.Context, id uuid.UUID, actorID string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE demographics.patient SET
			deleted    = TRUE,
			deleted_at = CASE WHEN deleted THEN deleted_at ELSE NOW() END,
			updated_by = CASE WHEN deleted THEN updated_by ELSE $2 END,
			updated_at = CASE WHEN deleted THEN updated_at ELSE NOW() END
		WHERE id = $1`, id, actorID)
	if err != nil {
		return fmt.Errorf("patient soft delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) LockActive(ctx context.Context, id uuid.UUID) error {
	var locked uuid.UUID
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id FROM demographics.patient WHERE id = $1 AND NOT deleted FOR SHARE`, id).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("patient lock: %w", err)
	}
	return nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID, &p.FirstName, &p.LastName, &p.NationalID, &p.Email, &p.Phone, &p.BirthDate, &p.Gender, &p.Address,
		&p.Deleted, &p.DeletedAt, &p.CreatedBy, &p.UpdatedBy, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}
